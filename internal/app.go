// Package internal wires the analytics server together: database, routes
// and background jobs.
package internal

import (
	"fmt"
	"log/slog"

	"github.com/karloscodes/cartridge"

	"hayzedd/internal/config"
	"hayzedd/internal/database"
	"hayzedd/internal/jobs"
	"hayzedd/internal/pkg/geoip"
	"hayzedd/internal/settings"
)

// Application wraps cartridge.Application with the analytics components.
type Application struct {
	*cartridge.Application
	DBManager *database.DBManager
	Jobs      *jobs.Scheduler
	logger    *slog.Logger
}

// NewApp creates a new application instance with default settings
func NewApp() (*Application, error) {
	return NewAppWithConfig(config.GetConfig())
}

// NewAppWithConfig creates a new application with the provided config
func NewAppWithConfig(cfg *config.Config) (*Application, error) {
	return NewAppWithRoutes(cfg, MountAppRoutes)
}

// NewAppWithRoutes creates a new application with a custom route mounting function
func NewAppWithRoutes(cfg *config.Config, routeMount func(*cartridge.Server)) (*Application, error) {
	logger := cartridge.NewLogger(cfg, nil)
	geoip.InitLogger(logger)

	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	scheduler := jobs.NewJobs(dbManager, cfg, logger)

	app, err := cartridge.NewApplication(cartridge.ApplicationOptions{
		Config:            cfg,
		Logger:            logger,
		DBManager:         dbManager,
		RouteMountFunc:    routeMount,
		BackgroundWorkers: []cartridge.BackgroundWorker{scheduler},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	return &Application{
		Application: app,
		DBManager:   dbManager,
		Jobs:        scheduler,
		logger:      logger,
	}, nil
}

// Prepare migrates the schema, seeds default settings and opens the GeoLite2
// database. It must run before the server starts.
func (a *Application) Prepare() error {
	if err := a.DBManager.MigrateDatabase(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if err := settings.SetupDefaultSettings(a.DBManager.GetConnection(), a.logger); err != nil {
		return fmt.Errorf("failed to set up default settings: %w", err)
	}
	if geoip.GetGeoDB() == nil {
		a.logger.Warn("GeoLite2 database not available; locations resolve through the HTTP provider or to Unknown")
	}
	return nil
}

// Logger returns the application logger.
func (a *Application) Logger() *slog.Logger {
	return a.logger
}
