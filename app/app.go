// Package app exposes the server for embedding in other programs: build
// the application, mount its routes on a custom server, or reuse its
// locator.
package app

import (
	"log/slog"

	"github.com/karloscodes/cartridge"

	"hayzedd/internal"
	"hayzedd/internal/config"
	"hayzedd/internal/database"
	"hayzedd/internal/pkg/geoip"
)

// Re-export core types
type (
	Application = internal.Application
	Config      = config.Config
	DBManager   = database.DBManager
	Locator     = geoip.Locator
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	return config.GetConfig()
}

// NewApp creates a new application with default routes
func NewApp() (*Application, error) {
	return internal.NewApp()
}

// NewAppWithRoutes creates a new application with custom route mounting.
// Call MountAppRoutes from routeMount to keep the analytics API.
func NewAppWithRoutes(cfg *Config, routeMount func(*cartridge.Server)) (*Application, error) {
	return internal.NewAppWithRoutes(cfg, routeMount)
}

// MountAppRoutes mounts the ingestion and read APIs on srv.
func MountAppRoutes(srv *cartridge.Server) {
	internal.MountAppRoutes(srv)
}

// NewLocator returns the geolocation chain configured by cfg.
func NewLocator(cfg *Config, logger *slog.Logger) *Locator {
	return internal.NewLocator(cfg, logger)
}
