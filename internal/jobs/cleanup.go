package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// retentionTables maps each purged table to the column that ages it.
var retentionTables = []struct {
	table  string
	column string
}{
	{"page_views", "timestamp"},
	{"events", "timestamp"},
	{"form_submissions", "timestamp"},
	{"error_events", "timestamp"},
	{"performance_metrics", "timestamp"},
	{"visitor_sessions", "last_activity"},
}

// RetentionJob deletes raw records older than the retention period.
// A retention of 0 days keeps everything.
type RetentionJob struct {
	dbManager     cartridge.DBManager
	retentionDays int
	logger        *slog.Logger
	batchSize     int
	now           func() time.Time
}

func NewRetentionJob(dbManager cartridge.DBManager, retentionDays int, logger *slog.Logger) *RetentionJob {
	return &RetentionJob{
		dbManager:     dbManager,
		retentionDays: retentionDays,
		logger:        logger,
		batchSize:     1000,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (j *RetentionJob) Name() string { return "retention_cleanup" }

// Run removes rows older than the retention period, in batches so the
// write lock is released between them.
func (j *RetentionJob) Run(ctx context.Context) error {
	if j.retentionDays <= 0 {
		j.logger.Debug("Retention disabled, keeping all records")
		return nil
	}

	db := j.dbManager.GetConnection().WithContext(ctx)
	cutoffDate := j.now().AddDate(0, 0, -j.retentionDays)

	j.logger.Info("Starting cleanup of old analytics records",
		slog.Int("retention_days", j.retentionDays),
		slog.Time("cutoff_date", cutoffDate))

	for _, rt := range retentionTables {
		deleted, err := j.purge(ctx, db, rt.table, rt.column, cutoffDate)
		if err != nil {
			return err
		}
		if deleted > 0 {
			j.logger.Info("Cleaned up old records",
				slog.String("table", rt.table),
				slog.Int64("deleted_count", deleted))
		}
	}
	return nil
}

func (j *RetentionJob) purge(ctx context.Context, db *gorm.DB, table, column string, cutoff time.Time) (int64, error) {
	query := fmt.Sprintf(
		"DELETE FROM %s WHERE id IN (SELECT id FROM %s WHERE %s < ? LIMIT ?)",
		table, table, column,
	)

	var totalDeleted int64
	for {
		if err := ctx.Err(); err != nil {
			return totalDeleted, err
		}

		var affected int64
		err := sqlite.PerformWrite(j.logger, db, func(tx *gorm.DB) error {
			result := tx.Exec(query, cutoff, j.batchSize)
			affected = result.RowsAffected
			return result.Error
		})
		if err != nil {
			j.logger.Error("Failed to delete old records",
				slog.String("table", table),
				slog.Any("error", err),
				slog.Int64("deleted_so_far", totalDeleted))
			return totalDeleted, err
		}

		totalDeleted += affected
		if affected < int64(j.batchSize) {
			return totalDeleted, nil
		}
	}
}
