// Command hayzedd runs the analytics server.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hayzedd/internal"
	"hayzedd/internal/config"
)

const shutdownTimeout = 30 * time.Second

func main() {
	app, err := internal.NewApp()
	if err != nil {
		log.Fatalf("Failed to create app: %v", err)
	}
	logger := app.Logger()

	if err := app.Prepare(); err != nil {
		logger.Error("Failed to prepare application", slog.Any("error", err))
		os.Exit(1)
	}

	cfg := config.GetConfig()
	logger.Info("Starting analytics server",
		slog.String("env", cfg.Environment),
		slog.String("port", cfg.AppPort),
		slog.String("api_prefix", cfg.APIPrefix),
		slog.Int("session_timeout_seconds", cfg.GetSessionTimeout()))

	if err := app.StartAsync(); err != nil {
		logger.Error("Failed to start application", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()
	<-ctx.Done()
	logger.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Server shutdown complete")
}
