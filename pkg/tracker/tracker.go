// Package tracker is the client side of the analytics pipeline. A Client
// opens a session with the collector, times page views and turns host page
// activity (clicks, scrolling, forms, visibility) into records delivered in
// order by a single background goroutine.
//
// Nothing is recorded until the visitor grants consent, see GrantConsent.
// Tracking calls never block and never fail: before the session exists
// records wait in a FIFO queue, and delivery errors are only logged.
package tracker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultAPIEndpoint is the collector's path prefix.
const DefaultAPIEndpoint = "/api/analytics"

// DefaultQueueSize is the delivery buffer; records beyond it are dropped.
const DefaultQueueSize = 256

var (
	// ErrAlreadyInitialized is returned by a second Init.
	ErrAlreadyInitialized = errors.New("tracker already initialized")
	// ErrClosed is returned by Init after Close.
	ErrClosed = errors.New("tracker closed")
)

// Options configures a Client. Start from DefaultOptions: the Track*
// switches are plain booleans and the zero value turns them off.
type Options struct {
	// ServerURL is the collector's scheme and host, used by the default
	// transport and beacon.
	ServerURL   string
	APIEndpoint string
	Headers     map[string]string

	TrackPageViews       bool
	TrackEvents          bool
	TrackClicks          bool
	TrackScrolling       bool
	TrackFormSubmissions bool
	Debug                bool

	QueueSize int

	// Consent keeps the visitor's decision. Without one the client starts
	// with no consent recorded.
	Consent ConsentStore

	Transport   Transport
	Beacon      Beacon
	Environment Environment
	Now         func() time.Time
	Logger      *slog.Logger
}

// DefaultOptions enables every kind of automatic tracking.
func DefaultOptions() Options {
	return Options{
		APIEndpoint:          DefaultAPIEndpoint,
		TrackPageViews:       true,
		TrackEvents:          true,
		TrackClicks:          true,
		TrackScrolling:       true,
		TrackFormSubmissions: true,
		QueueSize:            DefaultQueueSize,
	}
}

// SessionData identifies the session the tracker reports into.
type SessionData struct {
	SessionID          string `json:"sessionId"`
	VisitorID          string `json:"visitorId"`
	IsReturningVisitor bool   `json:"isReturningVisitor"`
	IsNewSession       bool   `json:"isNewSession"`
}

// InitResult is delivered once on the channel returned by Init.
type InitResult struct {
	Session SessionData
	Err     error
}

type state int

const (
	stateIdle state = iota
	statePending
	stateReady
	stateDisabled
)

type delivery struct {
	path    string
	payload record
}

// Client tracks one page session. It is safe for concurrent use.
type Client struct {
	opts   Options
	logger *slog.Logger

	mu        sync.Mutex
	state     state
	closed    bool
	consented bool
	session   SessionData
	pending   []delivery

	page       string
	title      string
	pageStart  time.Time
	maxScroll  int
	milestones map[int]bool
	deliveries chan delivery
	workerDone chan struct{}
	closeOnce  sync.Once
}

// New builds a client and starts its delivery goroutine. Call Init to open
// the session and Close to stop.
func New(opts Options) *Client {
	if opts.APIEndpoint == "" {
		opts.APIEndpoint = DefaultAPIEndpoint
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Environment == nil {
		opts.Environment = StaticEnvironment{}
	}
	if opts.Transport == nil {
		opts.Transport = NewHTTPTransport(opts.ServerURL, opts.Headers)
	}
	if opts.Consent == nil {
		opts.Consent = NewMemoryConsentStore()
	}
	if opts.Beacon == nil {
		beacon := NewHTTPBeacon(opts.ServerURL, opts.Headers)
		logger := opts.Logger
		beacon.OnError = func(path string, err error) {
			logger.Warn("Analytics beacon failed", slog.String("path", path), slog.Any("error", err))
		}
		opts.Beacon = beacon
	}

	c := &Client{
		opts:       opts,
		logger:     opts.Logger.With(slog.String("component", "tracker")),
		milestones: make(map[int]bool),
		deliveries: make(chan delivery, opts.QueueSize),
		workerDone: make(chan struct{}),
	}
	if d, ok, err := opts.Consent.Load(); err != nil {
		c.logger.Warn("Failed to load analytics consent", slog.Any("error", err))
	} else {
		c.consented = ok && d.Valid(opts.Now())
	}
	go c.deliver()
	return c
}

// Init opens the session. The result arrives on the returned channel once;
// on failure the client stays disabled and queued records are dropped.
// Without a valid consent grant the result is ErrNoConsent and Init may be
// retried after GrantConsent.
// When TrackPageViews is set, the current page is recorded first.
func (c *Client) Init(ctx context.Context) <-chan InitResult {
	result := make(chan InitResult, 1)

	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		result <- InitResult{Err: ErrClosed}
		return result
	case c.state != stateIdle:
		c.mu.Unlock()
		result <- InitResult{Err: ErrAlreadyInitialized}
		return result
	}
	if err := c.checkConsentLocked(); err != nil {
		c.pending = nil
		c.mu.Unlock()
		result <- InitResult{Err: err}
		return result
	}
	c.state = statePending
	c.mu.Unlock()

	page := c.opts.Environment.PageContext()
	if c.opts.TrackPageViews {
		c.TrackPageView(page.Path(), page.Title)
	}

	go func() {
		session, err := c.openSession(ctx, page)
		if err != nil {
			c.logger.Error("Analytics session bootstrap failed; tracking disabled", slog.Any("error", err))
			c.disable()
			result <- InitResult{Err: err}
			return
		}
		c.ready(session)
		c.debug("Analytics session initialized",
			slog.String("session_id", session.SessionID),
			slog.Bool("returning", session.IsReturningVisitor))
		result <- InitResult{Session: session}
	}()

	return result
}

func (c *Client) openSession(ctx context.Context, page PageContext) (SessionData, error) {
	var resp sessionResponse
	err := c.opts.Transport.Send(ctx, c.opts.APIEndpoint+"/session", sessionRequest{
		Screen:     page.Screen,
		Language:   page.Language,
		Timezone:   page.Timezone,
		Referrer:   page.Referrer,
		CurrentURL: page.URL,
	}, &resp)
	if err != nil {
		return SessionData{}, err
	}
	if resp.SessionID == "" || resp.VisitorID == "" {
		return SessionData{}, errors.New("session response is missing ids")
	}
	return SessionData{
		SessionID:          resp.SessionID,
		VisitorID:          resp.VisitorID,
		IsReturningVisitor: resp.IsReturningVisitor,
		IsNewSession:       resp.IsNewSession,
	}, nil
}

// ready stamps and releases the queue in order. New records cannot slip in
// between because enqueue takes the same lock.
func (c *Client) ready(s SessionData) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.session = s
	if !c.consented {
		c.state = stateDisabled
		c.pending = nil
		return
	}
	c.state = stateReady
	if c.closed {
		c.pending = nil
		return
	}
	for _, d := range c.pending {
		d.payload.stamp(s)
		c.push(d)
	}
	c.pending = nil
}

func (c *Client) disable() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if dropped := len(c.pending); dropped > 0 {
		c.logger.Warn("Dropping queued analytics records", slog.Int("count", dropped))
	}
	c.state = stateDisabled
	c.pending = nil
}

// enqueue must be called with c.mu held.
func (c *Client) enqueue(path string, payload record) {
	if c.closed || !c.consented {
		return
	}
	d := delivery{path: c.opts.APIEndpoint + path, payload: payload}
	switch c.state {
	case stateReady:
		payload.stamp(c.session)
		c.push(d)
	case stateDisabled:
	default:
		c.pending = append(c.pending, d)
	}
}

// push must be called with c.mu held; it never blocks.
func (c *Client) push(d delivery) {
	select {
	case c.deliveries <- d:
	default:
		c.logger.Warn("Analytics delivery queue full, dropping record", slog.String("path", d.path))
	}
}

func (c *Client) deliver() {
	defer close(c.workerDone)
	for d := range c.deliveries {
		if !c.HasConsent() {
			continue
		}
		if err := c.opts.Transport.Send(context.Background(), d.path, d.payload, nil); err != nil {
			c.logger.Warn("Analytics delivery failed", slog.String("path", d.path), slog.Any("error", err))
			continue
		}
		c.debug("Analytics record delivered", slog.String("path", d.path))
	}
}

// Close stops accepting records and waits for queued deliveries, or for ctx.
func (c *Client) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.deliveries)
		c.mu.Unlock()
	})

	select {
	case <-c.workerDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SessionData returns the session once Init has succeeded.
func (c *Client) SessionData() (SessionData, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session, c.state == stateReady
}

func (c *Client) IsReturningVisitor() bool {
	s, ok := c.SessionData()
	return ok && s.IsReturningVisitor
}

func (c *Client) debug(msg string, attrs ...any) {
	if c.opts.Debug {
		c.logger.Info(msg, attrs...)
	}
}
