package events_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"hayzedd/internal/events"
	"hayzedd/internal/metrics"
	"hayzedd/internal/sessions"
	"hayzedd/internal/testsupport"
	"hayzedd/internal/visitors"
)

const chromeWindows = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	collector *events.Collector
	store     *sessions.Store
	clock     *clock
	db        *gorm.DB
	session   *sessions.Session
}

func setup(t *testing.T) fixture {
	t.Helper()
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	testsupport.CleanAllTables(db)

	c := &clock{now: time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)}
	store := sessions.NewStore(dbManager, nil, logger, sessions.WithClock(c.Now))
	collector := events.NewCollector(dbManager, store, logger)

	res, err := store.Resolve(context.Background(),
		visitors.Fingerprint(chromeWindows, "203.0.113.8", "en-US", "gzip"),
		sessions.RequestContext{
			IPAddress:  "203.0.113.8",
			UserAgent:  chromeWindows,
			Language:   "en-US",
			CurrentURL: "https://example.com/",
		})
	require.NoError(t, err)

	return fixture{collector: collector, store: store, clock: c, db: db, session: res.Session}
}

func (f fixture) reload(t *testing.T) *sessions.Session {
	t.Helper()
	s, err := f.store.Get(context.Background(), f.session.SessionID)
	require.NoError(t, err)
	return s
}

func TestCollectPageView(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	ingested := testutil.ToFloat64(metrics.IngestedRecords.WithLabelValues(events.KindPageView))

	f.clock.Advance(2 * time.Minute)
	duration := int64(4500)
	depth := 60
	res, err := f.collector.CollectPageView(ctx, events.PageViewInput{
		SessionID:   f.session.SessionID,
		VisitorID:   f.session.VisitorID,
		Page:        "/pricing",
		Title:       "Pricing",
		Duration:    &duration,
		ScrollDepth: &depth,
	})
	require.NoError(t, err)
	assert.False(t, res.Orphan)

	s := f.reload(t)
	assert.Equal(t, 1, s.PageViews)
	assert.Equal(t, int64(4500), s.TotalDuration)
	assert.True(t, s.LastActivity.Equal(f.clock.Now()))

	var row events.PageView
	require.NoError(t, f.db.Where("session_id = ?", f.session.SessionID).First(&row).Error)
	assert.Equal(t, "/pricing", row.Page)
	assert.Equal(t, "desktop", row.DeviceType)
	assert.Equal(t, "Chrome", row.Browser)
	require.NotNil(t, row.ScrollDepth)
	assert.Equal(t, 60, *row.ScrollDepth)

	assert.Equal(t, ingested+1, testutil.ToFloat64(metrics.IngestedRecords.WithLabelValues(events.KindPageView)))

	t.Run("negative duration counts the view only", func(t *testing.T) {
		negative := int64(-10)
		_, err := f.collector.CollectPageView(ctx, events.PageViewInput{
			SessionID: f.session.SessionID,
			VisitorID: f.session.VisitorID,
			Page:      "/docs",
			Duration:  &negative,
		})
		require.NoError(t, err)

		s := f.reload(t)
		assert.Equal(t, 2, s.PageViews)
		assert.Equal(t, int64(4500), s.TotalDuration)
	})
}

func TestCollectOrphans(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	orphans := testutil.ToFloat64(metrics.OrphanRecords.WithLabelValues(events.KindPageView))

	res, err := f.collector.CollectPageView(ctx, events.PageViewInput{
		SessionID: "missing-session",
		VisitorID: "missing-visitor",
		Page:      "/",
	})
	require.NoError(t, err)
	assert.True(t, res.Orphan)

	var count int64
	require.NoError(t, f.db.Model(&events.PageView{}).Where("session_id = ?", "missing-session").Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, orphans+1, testutil.ToFloat64(metrics.OrphanRecords.WithLabelValues(events.KindPageView)))

	res, err = f.collector.CollectEvent(ctx, events.EventInput{
		SessionID:     "missing-session",
		VisitorID:     "missing-visitor",
		EventType:     events.EventTypeInteraction,
		EventCategory: "button",
		EventAction:   "click",
	})
	require.NoError(t, err)
	assert.True(t, res.Orphan)

	assert.Equal(t, 0, f.reload(t).PageViews)
}

func TestCollectEventTouchesSession(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.clock.Advance(90 * time.Second)
	label := "signup"
	empty := ""
	_, err := f.collector.CollectEvent(ctx, events.EventInput{
		SessionID:     f.session.SessionID,
		VisitorID:     f.session.VisitorID,
		EventType:     events.EventTypeConversion,
		EventCategory: "goal",
		EventAction:   "complete",
		EventLabel:    &label,
		Page:          "/welcome",
		Metadata:      map[string]any{"plan": "pro"},
	})
	require.NoError(t, err)

	_, err = f.collector.CollectEvent(ctx, events.EventInput{
		SessionID:     f.session.SessionID,
		VisitorID:     f.session.VisitorID,
		EventType:     events.EventTypeEngagement,
		EventCategory: "page",
		EventAction:   "visible",
		EventLabel:    &empty,
	})
	require.NoError(t, err)

	s := f.reload(t)
	assert.Equal(t, 0, s.PageViews)
	assert.True(t, s.LastActivity.Equal(f.clock.Now()))

	var rows []events.Event
	require.NoError(t, f.db.Order("id").Find(&rows).Error)
	require.Len(t, rows, 2)

	var metadata map[string]any
	require.NoError(t, json.Unmarshal([]byte(rows[0].Metadata), &metadata))
	assert.Equal(t, "pro", metadata["plan"])
	require.NotNil(t, rows[0].EventLabel)
	assert.Equal(t, "signup", *rows[0].EventLabel)

	assert.Nil(t, rows[1].EventLabel)
	assert.Empty(t, rows[1].Metadata)
}

func TestCollectSupplementaryRecords(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	completion := int64(12000)
	_, err := f.collector.CollectForm(ctx, events.FormInput{
		SessionID:      f.session.SessionID,
		VisitorID:      f.session.VisitorID,
		FormID:         "contact",
		FormName:       "Contact",
		Success:        true,
		Fields:         []string{"email", "message"},
		CompletionTime: &completion,
		Page:           "/contact",
	})
	require.NoError(t, err)

	_, err = f.collector.CollectError(ctx, events.ErrorInput{
		SessionID:    f.session.SessionID,
		VisitorID:    f.session.VisitorID,
		ErrorType:    "TypeError",
		ErrorMessage: "x is undefined",
		Page:         "/contact",
	})
	require.NoError(t, err)

	_, err = f.collector.CollectError(ctx, events.ErrorInput{
		SessionID:    f.session.SessionID,
		VisitorID:    f.session.VisitorID,
		ErrorType:    "ChunkLoadError",
		ErrorMessage: "chunk 4 failed",
		Severity:     " HIGH ",
	})
	require.NoError(t, err)

	_, err = f.collector.CollectPerformance(ctx, events.PerformanceInput{
		SessionID:      f.session.SessionID,
		VisitorID:      f.session.VisitorID,
		MetricType:     events.MetricWebVitals,
		MetricName:     "LCP",
		Value:          1830.5,
		Page:           "/contact",
		AdditionalData: map[string]any{"element": "img"},
	})
	require.NoError(t, err)

	var form events.FormSubmission
	require.NoError(t, f.db.First(&form).Error)
	assert.JSONEq(t, `["email","message"]`, form.Fields)
	assert.True(t, form.Success)

	var errs []events.ErrorEvent
	require.NoError(t, f.db.Order("id").Find(&errs).Error)
	require.Len(t, errs, 2)
	assert.Equal(t, events.SeverityMedium, errs[0].Severity)
	assert.Equal(t, events.SeverityHigh, errs[1].Severity)

	var perf events.PerformanceMetric
	require.NoError(t, f.db.First(&perf).Error)
	assert.Equal(t, "LCP", perf.MetricName)
	assert.InDelta(t, 1830.5, perf.Value, 0.001)
	assert.JSONEq(t, `{"element":"img"}`, perf.AdditionalData)
}

func TestStorageErrorUnwraps(t *testing.T) {
	cause := assert.AnError
	err := &events.StorageError{Op: "store pageview", Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "store pageview")
}
