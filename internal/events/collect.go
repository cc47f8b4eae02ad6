package events

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/goccy/go-json"
	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"hayzedd/internal/metrics"
	"hayzedd/internal/sessions"
)

// Record kinds, used for logs and metric labels.
const (
	KindPageView    = "pageview"
	KindEvent       = "event"
	KindForm        = "form"
	KindError       = "error"
	KindPerformance = "performance"
)

// Collector persists ingestion records and keeps the owning session's
// aggregate in step, in one transaction per record.
type Collector struct {
	dbManager cartridge.DBManager
	store     *sessions.Store
	logger    *slog.Logger
}

func NewCollector(dbManager cartridge.DBManager, store *sessions.Store, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{dbManager: dbManager, store: store, logger: logger}
}

// Result reports what happened to the session side of a write.
type Result struct {
	// Orphan is true when the session id matched no session. The record is
	// still stored.
	Orphan bool
}

type PageViewInput struct {
	SessionID   string
	VisitorID   string
	Page        string
	Title       string
	Referrer    string
	Duration    *int64
	ScrollDepth *int
}

type EventInput struct {
	SessionID     string
	VisitorID     string
	EventType     string
	EventCategory string
	EventAction   string
	EventLabel    *string
	EventValue    *float64
	Page          string
	Metadata      map[string]any
}

type FormInput struct {
	SessionID      string
	VisitorID      string
	FormID         string
	FormName       string
	Success        bool
	Fields         []string
	CompletionTime *int64
	Page           string
}

type ErrorInput struct {
	SessionID    string
	VisitorID    string
	ErrorType    string
	ErrorMessage string
	ErrorStack   string
	Page         string
	UserAction   string
	Severity     string
}

type PerformanceInput struct {
	SessionID      string
	VisitorID      string
	MetricType     string
	MetricName     string
	Value          float64
	Page           string
	AdditionalData map[string]any
}

// CollectPageView stores a page view and adds one view plus its duration
// to the session.
func (c *Collector) CollectPageView(ctx context.Context, in PageViewInput) (Result, error) {
	var duration int64
	if in.Duration != nil && *in.Duration > 0 {
		duration = *in.Duration
	}

	row := &PageView{
		SessionID:   in.SessionID,
		VisitorID:   in.VisitorID,
		Page:        in.Page,
		Title:       in.Title,
		Referrer:    in.Referrer,
		Timestamp:   c.store.Now(),
		Duration:    in.Duration,
		ScrollDepth: in.ScrollDepth,
	}

	return c.write(ctx, KindPageView, in.SessionID, in.VisitorID,
		func(tx *gorm.DB, session *sessions.Session) error {
			if session != nil {
				row.DeviceType = session.Device.Type
				row.Browser = session.Device.Browser
				row.OS = session.Device.OS
				row.Country = session.Location.Country
			}
			return tx.Create(row).Error
		},
		func(tx *gorm.DB) error {
			return c.store.RecordPageView(ctx, tx, in.SessionID, duration)
		})
}

// CollectEvent stores an event and bumps the session's last activity.
func (c *Collector) CollectEvent(ctx context.Context, in EventInput) (Result, error) {
	row := &Event{
		SessionID:     in.SessionID,
		VisitorID:     in.VisitorID,
		EventType:     in.EventType,
		EventCategory: in.EventCategory,
		EventAction:   in.EventAction,
		EventLabel:    emptyToNil(in.EventLabel),
		EventValue:    in.EventValue,
		Page:          in.Page,
		Timestamp:     c.store.Now(),
		Metadata:      encodeJSON(in.Metadata),
	}
	return c.write(ctx, KindEvent, in.SessionID, in.VisitorID, createRow(row), c.touch(ctx, in.SessionID))
}

func (c *Collector) CollectForm(ctx context.Context, in FormInput) (Result, error) {
	row := &FormSubmission{
		SessionID:      in.SessionID,
		VisitorID:      in.VisitorID,
		FormID:         in.FormID,
		FormName:       in.FormName,
		Success:        in.Success,
		CompletionTime: in.CompletionTime,
		Page:           in.Page,
		Timestamp:      c.store.Now(),
	}
	if len(in.Fields) > 0 {
		row.Fields = encodeJSON(in.Fields)
	}
	return c.write(ctx, KindForm, in.SessionID, in.VisitorID, createRow(row), c.touch(ctx, in.SessionID))
}

func (c *Collector) CollectError(ctx context.Context, in ErrorInput) (Result, error) {
	severity := strings.ToLower(strings.TrimSpace(in.Severity))
	if severity == "" {
		severity = SeverityMedium
	}
	row := &ErrorEvent{
		SessionID:    in.SessionID,
		VisitorID:    in.VisitorID,
		ErrorType:    in.ErrorType,
		ErrorMessage: in.ErrorMessage,
		ErrorStack:   in.ErrorStack,
		Page:         in.Page,
		UserAction:   in.UserAction,
		Severity:     severity,
		Timestamp:    c.store.Now(),
	}
	return c.write(ctx, KindError, in.SessionID, in.VisitorID, createRow(row), c.touch(ctx, in.SessionID))
}

func (c *Collector) CollectPerformance(ctx context.Context, in PerformanceInput) (Result, error) {
	row := &PerformanceMetric{
		SessionID:      in.SessionID,
		VisitorID:      in.VisitorID,
		MetricType:     in.MetricType,
		MetricName:     in.MetricName,
		Value:          in.Value,
		Page:           in.Page,
		AdditionalData: encodeJSON(in.AdditionalData),
		Timestamp:      c.store.Now(),
	}
	return c.write(ctx, KindPerformance, in.SessionID, in.VisitorID, createRow(row), c.touch(ctx, in.SessionID))
}

// write runs create and then aggregate in one transaction. A missing
// session skips aggregate and is reported through Result.Orphan; any other
// failure rolls both back.
func (c *Collector) write(
	ctx context.Context,
	kind, sessionID, visitorID string,
	create func(tx *gorm.DB, session *sessions.Session) error,
	aggregate func(tx *gorm.DB) error,
) (Result, error) {
	db := c.dbManager.GetConnection().WithContext(ctx)

	var res Result
	err := sqlite.PerformWrite(c.logger, db, func(tx *gorm.DB) error {
		res = Result{}

		session, err := c.store.Lookup(tx, sessionID)
		if errors.Is(err, sessions.ErrSessionNotFound) {
			res.Orphan = true
		} else if err != nil {
			return err
		}

		if session != nil && session.VisitorID != visitorID {
			c.logger.Warn("Visitor id does not match session",
				slog.String("kind", kind),
				slog.String("session_id", sessionID),
				slog.String("visitor_id", visitorID))
		}

		if err := create(tx, session); err != nil {
			return err
		}

		if res.Orphan {
			return nil
		}
		if err := aggregate(tx); err != nil {
			if errors.Is(err, sessions.ErrSessionNotFound) {
				res.Orphan = true
				return nil
			}
			return err
		}
		return nil
	})
	if err != nil {
		metrics.IngestionErrors.WithLabelValues(kind, "storage").Inc()
		c.logger.Error("Failed to store analytics record",
			slog.String("kind", kind),
			slog.String("session_id", sessionID),
			slog.Any("error", err))
		return Result{}, storageError("store "+kind, err)
	}

	metrics.IngestedRecords.WithLabelValues(kind).Inc()
	if res.Orphan {
		metrics.OrphanRecords.WithLabelValues(kind).Inc()
		c.logger.Warn("Record stored without a matching session",
			slog.String("kind", kind),
			slog.String("session_id", sessionID))
	}
	return res, nil
}

func (c *Collector) touch(ctx context.Context, sessionID string) func(tx *gorm.DB) error {
	return func(tx *gorm.DB) error {
		return c.store.Touch(ctx, tx, sessionID)
	}
}

func createRow(row any) func(tx *gorm.DB, session *sessions.Session) error {
	return func(tx *gorm.DB, _ *sessions.Session) error {
		return tx.Create(row).Error
	}
}

func encodeJSON(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case map[string]any:
		if len(t) == 0 {
			return ""
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

func emptyToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
