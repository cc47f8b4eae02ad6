package sessions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"hayzedd/internal/metrics"
	"hayzedd/internal/pkg/geoip"
	"hayzedd/internal/visitors"
)

// DefaultWindow is the inactivity gap after which a fingerprint gets a new session.
const DefaultWindow = 30 * time.Minute

// Locator resolves an address to a location and never fails.
type Locator interface {
	Locate(ctx context.Context, ipAddress string) geoip.Location
}

// RequestContext carries what the session-init request knows about the client.
type RequestContext struct {
	IPAddress  string
	UserAgent  string
	Language   string
	Timezone   string
	Referrer   string
	CurrentURL string
	Screen     Screen
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	Session            *Session
	IsNewSession       bool
	IsReturningVisitor bool
}

// Store owns every write to visitor_sessions.
type Store struct {
	dbManager cartridge.DBManager
	locator   Locator
	logger    *slog.Logger
	window    time.Duration
	now       func() time.Time
}

type Option func(*Store)

// WithWindow overrides the 30 minute session window.
func WithWindow(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.window = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func NewStore(dbManager cartridge.DBManager, locator Locator, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		dbManager: dbManager,
		locator:   locator,
		logger:    logger,
		window:    DefaultWindow,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Window returns the configured session window.
func (s *Store) Window() time.Duration {
	return s.window
}

// Now returns the store clock in UTC.
func (s *Store) Now() time.Time {
	return s.now().UTC()
}

// Resolve finds the active session for fingerprint or opens a new one.
//
// An active session (last activity inside the window) is continued and
// reported as returning. Otherwise a new session is created; it reuses the
// visitor id of any earlier session for the fingerprint, in which case it is
// returning as well.
//
// The active-session check is repeated inside the write transaction, so two
// concurrent first requests for the same fingerprint produce one session.
func (s *Store) Resolve(ctx context.Context, fingerprint string, rc RequestContext) (Resolution, error) {
	now := s.Now()
	cutoff := now.Add(-s.window)
	db := s.dbManager.GetConnection().WithContext(ctx)

	active, err := findActive(db, fingerprint, cutoff)
	if err != nil {
		return Resolution{}, fmt.Errorf("find active session: %w", err)
	}
	if active != nil {
		err := sqlite.PerformWrite(s.logger, db, func(tx *gorm.DB) error {
			return touch(tx, active.SessionID, now)
		})
		if err != nil {
			return Resolution{}, fmt.Errorf("continue session: %w", err)
		}
		metrics.SessionsResolved.WithLabelValues("continued").Inc()
		return continued(active, now), nil
	}

	// Geolocation can hit the network; keep it out of the write transaction.
	draft := s.draft(ctx, fingerprint, rc, now)

	var res Resolution
	err = sqlite.PerformWrite(s.logger, db, func(tx *gorm.DB) error {
		res = Resolution{}

		active, err := findActive(tx, fingerprint, cutoff)
		if err != nil {
			return err
		}
		if active != nil {
			if err := touch(tx, active.SessionID, now); err != nil {
				return err
			}
			res = continued(active, now)
			return nil
		}

		var prior Session
		result := tx.Select("visitor_id").
			Where("device_fingerprint = ?", fingerprint).
			Order("first_visit DESC").
			Limit(1).
			Find(&prior)
		if result.Error != nil {
			return result.Error
		}

		session := draft
		session.SessionID = visitors.NewSessionID()
		if result.RowsAffected > 0 && prior.VisitorID != "" {
			session.VisitorID = prior.VisitorID
			session.IsReturningVisitor = true
		} else {
			session.VisitorID = visitors.NewVisitorID()
		}

		if err := tx.Create(&session).Error; err != nil {
			return err
		}
		res = Resolution{
			Session:            &session,
			IsNewSession:       true,
			IsReturningVisitor: session.IsReturningVisitor,
		}
		return nil
	})
	if err != nil {
		return Resolution{}, fmt.Errorf("create session: %w", err)
	}

	switch {
	case !res.IsNewSession:
		metrics.SessionsResolved.WithLabelValues("continued").Inc()
	case res.IsReturningVisitor:
		metrics.SessionsResolved.WithLabelValues("returning_visitor").Inc()
	default:
		metrics.SessionsResolved.WithLabelValues("new_visitor").Inc()
	}

	if res.IsNewSession && res.Session.Device.Type == "bot" {
		metrics.BotSessions.Inc()
		s.logger.Info("Session opened by bot user agent",
			slog.String("session_id", res.Session.SessionID),
			slog.String("browser", res.Session.Device.Browser))
	}

	return res, nil
}

// draft builds the new session row without ids.
func (s *Store) draft(ctx context.Context, fingerprint string, rc RequestContext, now time.Time) Session {
	device := visitors.ResolveDevice(rc.UserAgent)
	if visitors.IsBot(rc.UserAgent) {
		device.Type = "bot"
		device.IsDesktop, device.IsMobile, device.IsTablet = false, false, false
	}

	loc := geoip.Unknown()
	if s.locator != nil {
		loc = s.locator.Locate(ctx, rc.IPAddress)
	}

	utm := visitors.ParseUTM(rc.CurrentURL)

	language := strings.TrimSpace(rc.Language)
	if language == "" {
		language = "en"
	}
	timezone := strings.TrimSpace(rc.Timezone)
	if timezone == "" {
		timezone = "UTC"
	}

	return Session{
		DeviceFingerprint: fingerprint,
		IPAddress:         visitors.AnonymizeIP(rc.IPAddress),
		UserAgent:         rc.UserAgent,
		Location: Location{
			Country:     loc.Country,
			CountryCode: loc.CountryCode,
			Region:      loc.Region,
			City:        loc.City,
			Timezone:    loc.Timezone,
			Latitude:    loc.Latitude,
			Longitude:   loc.Longitude,
		},
		Device: Device{
			Type:           device.Type,
			Browser:        device.Browser,
			BrowserVersion: device.BrowserVersion,
			OS:             device.OS,
			OSVersion:      device.OSVersion,
			IsMobile:       device.IsMobile,
			IsTablet:       device.IsTablet,
			IsDesktop:      device.IsDesktop,
		},
		Screen:       rc.Screen,
		Language:     language,
		Timezone:     timezone,
		Referrer:     rc.Referrer,
		LandingPage:  landingPage(rc.CurrentURL),
		FirstVisit:   now,
		LastActivity: now,
		Source:       utm.Source,
		Medium:       utm.Medium,
		Campaign:     utm.Campaign,
		Term:         utm.Term,
		Content:      utm.Content,
	}
}

// RecordPageView adds one page view and its duration to the session
// aggregate in a single statement. It must run inside the transaction that
// writes the page view row.
func (s *Store) RecordPageView(ctx context.Context, tx *gorm.DB, sessionID string, durationMs int64) error {
	if durationMs < 0 {
		durationMs = 0
	}
	now := s.Now()
	result := tx.WithContext(ctx).Exec(`
		UPDATE visitor_sessions
		SET page_views = page_views + 1,
		    total_duration = total_duration + ?,
		    last_activity = CASE WHEN last_activity < ? THEN ? ELSE last_activity END,
		    updated_at = ?
		WHERE session_id = ?`,
		durationMs, now, now, now, sessionID)
	if result.Error != nil {
		return fmt.Errorf("record page view: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Touch bumps last activity without touching the counters.
func (s *Store) Touch(ctx context.Context, tx *gorm.DB, sessionID string) error {
	return touch(tx.WithContext(ctx), sessionID, s.Now())
}

// Lookup reads a session inside an existing transaction.
func (s *Store) Lookup(tx *gorm.DB, sessionID string) (*Session, error) {
	var session Session
	err := tx.Where("session_id = ?", sessionID).Take(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Get returns a session by id.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	return s.Lookup(s.dbManager.GetConnection().WithContext(ctx), sessionID)
}

// ListByVisitor returns every session of a visitor, newest first.
func (s *Store) ListByVisitor(ctx context.Context, visitorID string) ([]Session, error) {
	var list []Session
	err := s.dbManager.GetConnection().WithContext(ctx).
		Where("visitor_id = ?", visitorID).
		Order("first_visit DESC").
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("list sessions for visitor: %w", err)
	}
	return list, nil
}

func findActive(db *gorm.DB, fingerprint string, cutoff time.Time) (*Session, error) {
	var session Session
	result := db.Where("device_fingerprint = ? AND last_activity >= ?", fingerprint, cutoff).
		Order("last_activity DESC").
		Limit(1).
		Find(&session)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &session, nil
}

func touch(tx *gorm.DB, sessionID string, now time.Time) error {
	result := tx.Exec(`
		UPDATE visitor_sessions
		SET last_activity = CASE WHEN last_activity < ? THEN ? ELSE last_activity END,
		    updated_at = ?
		WHERE session_id = ?`,
		now, now, now, sessionID)
	if result.Error != nil {
		return fmt.Errorf("touch session: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func continued(session *Session, now time.Time) Resolution {
	if now.After(session.LastActivity) {
		session.LastActivity = now
	}
	return Resolution{
		Session:            session,
		IsNewSession:       false,
		IsReturningVisitor: true,
	}
}

func landingPage(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return rawURL
	}
	return u.Path
}
