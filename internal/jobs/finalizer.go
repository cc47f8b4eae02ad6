package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"hayzedd/internal/settings"
)

// SessionFinalizerJob stamps sessions whose window has passed with their
// exit page and bounce flag. A finalized session is never touched again.
type SessionFinalizerJob struct {
	dbManager cartridge.DBManager
	window    time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

func NewSessionFinalizerJob(dbManager cartridge.DBManager, window time.Duration, logger *slog.Logger) *SessionFinalizerJob {
	return &SessionFinalizerJob{
		dbManager: dbManager,
		window:    window,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the job's clock. Used by tests.
func (j *SessionFinalizerJob) WithClock(now func() time.Time) *SessionFinalizerJob {
	j.now = now
	return j
}

func (j *SessionFinalizerJob) Name() string { return "session_finalizer" }

func (j *SessionFinalizerJob) Run(ctx context.Context) error {
	db := j.dbManager.GetConnection().WithContext(ctx)
	now := j.now()
	cutoff := now.Add(-j.window)

	var finalized int64
	err := sqlite.PerformWrite(j.logger, db, func(tx *gorm.DB) error {
		result := tx.Exec(`
            UPDATE visitor_sessions
            SET bounced = (page_views = 1),
                exit_page = COALESCE((
                    SELECT pv.page FROM page_views pv
                    WHERE pv.session_id = visitor_sessions.session_id
                    ORDER BY pv.timestamp DESC, pv.id DESC
                    LIMIT 1
                ), ''),
                finalized_at = ?,
                updated_at = ?
            WHERE finalized_at IS NULL AND last_activity < ?
        `, now, now, cutoff)
		if result.Error != nil {
			return result.Error
		}
		finalized = result.RowsAffected
		return nil
	})
	if err != nil {
		return err
	}

	if finalized > 0 {
		j.logger.Info("Finalized expired sessions", slog.Int64("count", finalized), slog.Time("cutoff", cutoff))
	}
	if err := settings.SetTime(j.dbManager.GetConnection(), j.logger, settings.KeyLastFinalizerRun, now); err != nil {
		j.logger.Warn("Failed to record finalizer run", slog.Any("error", err))
	}
	return nil
}
