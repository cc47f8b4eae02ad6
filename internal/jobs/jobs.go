// Package jobs runs the periodic maintenance work: closing out expired
// sessions, purging old records and refreshing the GeoLite2 database.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"

	"hayzedd/internal/config"
)

// Job is one unit of scheduled work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// NewJobs creates the scheduler with every maintenance job registered.
func NewJobs(dbManager cartridge.DBManager, cfg *config.Config, logger *slog.Logger) *Scheduler {
	s := NewScheduler(logger)

	interval := time.Duration(cfg.JobIntervalSeconds) * time.Second
	window := time.Duration(cfg.GetSessionTimeout()) * time.Second

	s.Register(NewSessionFinalizerJob(dbManager, window, logger), interval)
	s.Register(NewRetentionJob(dbManager, cfg.RetentionDays, logger), 24*time.Hour)
	s.Register(NewGeoLiteUpdaterJob(dbManager, cfg, logger), 24*time.Hour)
	return s
}
