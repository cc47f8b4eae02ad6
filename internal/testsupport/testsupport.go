package testsupport

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"hayzedd/internal"
	"hayzedd/internal/config"
	"hayzedd/internal/database"
	"hayzedd/internal/events"
	"hayzedd/internal/sessions"
	"hayzedd/internal/visitors"
)

// AdminKey is the shared secret CreateMinimalTestApp configures for the
// read-side routes.
const AdminKey = "test-admin-key"

// testDBCache caches test databases by root test name so every helper
// called from one test sees the same database.
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// TestDBManager wraps cartridge's TestDBManager.
type TestDBManager struct {
	*ctestsupport.TestDBManager
}

// NewTestDBManager creates a TestDBManager that implements cartridge.DBManager
func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{
		TestDBManager: ctestsupport.NewTestDBManager(db),
	}
}

var _ cartridge.DBManager = (*TestDBManager)(nil)

// SetupTestDB creates a named in-memory database with every model migrated.
// cache=shared lets the pool's connections see the same database; the pool
// is capped at one connection, like the test configuration, so concurrent
// writers queue instead of hitting table locks.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	testName := t.Name()

	// Subtests share the root test's database.
	rootName := testName
	if idx := strings.Index(testName, "/"); idx > 0 {
		rootName = testName[:idx]
	}

	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	sanitizedName := strings.ReplaceAll(rootName, "/", "_")
	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", sanitizedName, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("testsupport: failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	db.Exec("PRAGMA foreign_keys = ON")

	if err := db.AutoMigrate(database.Models()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		sqlDB.Close()
	})

	return db
}

// SetupTestDBManager forces the test environment and returns a DB manager
// over a fresh database.
func SetupTestDBManager(t *testing.T) (*TestDBManager, *slog.Logger) {
	t.Helper()

	cfg := config.GetConfig()
	cfg.Environment = config.Test

	db := SetupTestDB(t)
	return NewTestDBManager(db), GetLogger()
}

// CleanAllTables clears all non-system tables in the database
func CleanAllTables(db *gorm.DB) {
	var tableNames []string
	db.Raw("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'").Scan(&tableNames)
	CleanTables(db, tableNames)
}

// CleanTables deletes every row of the given tables.
func CleanTables(db *gorm.DB, tables []string) {
	if len(tables) == 0 {
		return
	}

	db.Exec("PRAGMA foreign_keys = OFF")
	defer db.Exec("PRAGMA foreign_keys = ON")

	db.Transaction(func(tx *gorm.DB) error {
		for _, table := range tables {
			tx.Exec("DELETE FROM " + table)
			tx.Exec("DELETE FROM sqlite_sequence WHERE name=?", table)
		}
		return nil
	})
}

// GetLogger returns a test logger
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// SessionFixture describes a session row to insert directly. Zero fields
// get sensible defaults.
type SessionFixture struct {
	SessionID     string
	VisitorID     string
	Fingerprint   string
	Country       string
	City          string
	DeviceType    string
	Browser       string
	OS            string
	FirstVisit    time.Time
	LastActivity  time.Time
	PageViews     int
	TotalDuration int64
	IsReturning   bool
	Source        string
	Medium        string
	Campaign      string
	Referrer      string
	Bounced       bool
}

// CreateTestSession inserts a session row.
func CreateTestSession(t *testing.T, db *gorm.DB, f SessionFixture) *sessions.Session {
	t.Helper()

	if f.SessionID == "" {
		f.SessionID = visitors.NewSessionID()
	}
	if f.VisitorID == "" {
		f.VisitorID = visitors.NewVisitorID()
	}
	if f.Fingerprint == "" {
		f.Fingerprint = "fp-" + f.VisitorID
	}
	if f.Country == "" {
		f.Country = "Spain"
	}
	if f.City == "" {
		f.City = "Madrid"
	}
	if f.DeviceType == "" {
		f.DeviceType = "desktop"
	}
	if f.Browser == "" {
		f.Browser = "Chrome"
	}
	if f.OS == "" {
		f.OS = "Windows"
	}
	if f.FirstVisit.IsZero() {
		f.FirstVisit = time.Now().UTC().Add(-time.Hour)
	}
	if f.LastActivity.IsZero() {
		f.LastActivity = f.FirstVisit
	}

	s := &sessions.Session{
		SessionID:         f.SessionID,
		VisitorID:         f.VisitorID,
		DeviceFingerprint: f.Fingerprint,
		UserAgent:         "Mozilla/5.0 Test Browser",
		Location: sessions.Location{
			Country:  f.Country,
			Region:   f.City,
			City:     f.City,
			Timezone: "UTC",
		},
		Device: sessions.Device{
			Type:      f.DeviceType,
			Browser:   f.Browser,
			OS:        f.OS,
			IsMobile:  f.DeviceType == "mobile",
			IsTablet:  f.DeviceType == "tablet",
			IsDesktop: f.DeviceType == "desktop",
		},
		Language:           "en",
		Timezone:           "UTC",
		FirstVisit:         f.FirstVisit.UTC(),
		LastActivity:       f.LastActivity.UTC(),
		PageViews:          f.PageViews,
		TotalDuration:      f.TotalDuration,
		IsReturningVisitor: f.IsReturning,
		Source:             f.Source,
		Medium:             f.Medium,
		Campaign:           f.Campaign,
		Referrer:           f.Referrer,
		Bounced:            f.Bounced,
	}
	require.NoError(t, db.Create(s).Error)
	return s
}

// CreateTestPageView inserts a page view row for a session.
func CreateTestPageView(t *testing.T, db *gorm.DB, s *sessions.Session, page string, ts time.Time, durationMs int64) *events.PageView {
	t.Helper()

	pv := &events.PageView{
		SessionID:  s.SessionID,
		VisitorID:  s.VisitorID,
		Page:       page,
		Title:      page,
		Timestamp:  ts.UTC(),
		DeviceType: s.Device.Type,
		Browser:    s.Device.Browser,
		OS:         s.Device.OS,
		Country:    s.Location.Country,
	}
	if durationMs >= 0 {
		d := durationMs
		pv.Duration = &d
	}
	require.NoError(t, db.Create(pv).Error)
	return pv
}

// CreateTestEvent inserts an interaction event row for a session.
func CreateTestEvent(t *testing.T, db *gorm.DB, s *sessions.Session, category, action string, ts time.Time) *events.Event {
	t.Helper()

	ev := &events.Event{
		SessionID:     s.SessionID,
		VisitorID:     s.VisitorID,
		EventType:     events.EventTypeInteraction,
		EventCategory: category,
		EventAction:   action,
		Page:          "/",
		Timestamp:     ts.UTC(),
	}
	require.NoError(t, db.Create(ev).Error)
	return ev
}

// CreateMinimalTestApp creates a test Fiber app with all routes mounted.
func CreateMinimalTestApp(t *testing.T, db *gorm.DB) *fiber.App {
	t.Helper()

	dbManager := NewTestDBManager(db)
	appConfig := config.GetConfig()
	appConfig.Environment = config.Test
	appConfig.AdminKey = AdminKey
	appConfig.GeoAPIURL = ""

	cfg := cartridge.DefaultServerConfig()
	cfg.Config = appConfig
	cfg.Logger = GetLogger()
	cfg.DBManager = dbManager
	// Enable SecFetchSite validation in tests to match production behavior.
	// Requests without the header are rejected.
	cfg.EnableSecFetchSite = true
	cfg.SecFetchSiteAllowedValues = []string{"cross-site", "same-site", "same-origin"}

	srv, err := cartridge.NewServer(cfg)
	require.NoError(t, err)

	internal.MountAppRoutes(srv)
	return srv.App()
}
