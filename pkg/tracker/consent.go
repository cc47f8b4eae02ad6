package tracker

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// ConsentTTL is how long a recorded decision stays valid. After it the
// visitor has to be asked again.
const ConsentTTL = 365 * 24 * time.Hour

// ErrNoConsent is returned by Init when the visitor has not granted
// analytics consent, refused it, or the grant has expired.
var ErrNoConsent = errors.New("analytics consent not granted")

// ConsentDecision is the visitor's answer and when it was given.
type ConsentDecision struct {
	Granted   bool      `json:"granted"`
	DecidedAt time.Time `json:"decidedAt"`
}

// Valid reports whether the decision allows tracking at now.
func (d ConsentDecision) Valid(now time.Time) bool {
	return d.Granted && !d.DecidedAt.IsZero() && now.Sub(d.DecidedAt) < ConsentTTL
}

// ConsentStore keeps the consent decision between page loads. Load reports
// ok=false when no decision has been recorded.
type ConsentStore interface {
	Load() (d ConsentDecision, ok bool, err error)
	Save(d ConsentDecision) error
}

// MemoryConsentStore holds the decision for the life of the process.
type MemoryConsentStore struct {
	mu       sync.Mutex
	decision *ConsentDecision
}

func NewMemoryConsentStore() *MemoryConsentStore {
	return &MemoryConsentStore{}
}

func (s *MemoryConsentStore) Load() (ConsentDecision, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.decision == nil {
		return ConsentDecision{}, false, nil
	}
	return *s.decision, true, nil
}

func (s *MemoryConsentStore) Save(d ConsentDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decision = &d
	return nil
}

// FileConsentStore persists the decision as a small JSON document.
type FileConsentStore struct {
	Path string
}

func NewFileConsentStore(path string) *FileConsentStore {
	return &FileConsentStore{Path: path}
}

func (s *FileConsentStore) Load() (ConsentDecision, bool, error) {
	raw, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return ConsentDecision{}, false, nil
	}
	if err != nil {
		return ConsentDecision{}, false, fmt.Errorf("read consent: %w", err)
	}
	var d ConsentDecision
	if err := json.Unmarshal(raw, &d); err != nil {
		return ConsentDecision{}, false, fmt.Errorf("decode consent: %w", err)
	}
	return d, true, nil
}

func (s *FileConsentStore) Save(d ConsentDecision) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode consent: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return fmt.Errorf("create consent dir: %w", err)
	}
	if err := os.WriteFile(s.Path, raw, 0o600); err != nil {
		return fmt.Errorf("write consent: %w", err)
	}
	return nil
}

// GrantConsent records the visitor's consent. Call Init afterwards to start
// tracking.
func (c *Client) GrantConsent() error {
	d := ConsentDecision{Granted: true, DecidedAt: c.opts.Now()}
	if err := c.opts.Consent.Save(d); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.consented = true
	c.debug("Analytics consent granted")
	return nil
}

// RevokeConsent records a refusal and stops tracking: queued records are
// dropped and nothing more is sent. The client stays disabled; a new Client
// picks up a later grant.
func (c *Client) RevokeConsent() error {
	err := c.opts.Consent.Save(ConsentDecision{Granted: false, DecidedAt: c.opts.Now()})

	c.mu.Lock()
	defer c.mu.Unlock()
	c.consented = false
	c.state = stateDisabled
	if dropped := len(c.pending); dropped > 0 {
		c.logger.Info("Analytics consent revoked, dropping queued records", slog.Int("count", dropped))
	}
	c.pending = nil
	return err
}

// HasConsent reports whether a valid grant is currently recorded.
func (c *Client) HasConsent() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.consented
}

// checkConsentLocked reloads the stored decision. c.mu must be held.
func (c *Client) checkConsentLocked() error {
	d, ok, err := c.opts.Consent.Load()
	if err != nil {
		c.consented = false
		return fmt.Errorf("%w: %w", ErrNoConsent, err)
	}
	c.consented = ok && d.Valid(c.opts.Now())
	if !c.consented {
		return ErrNoConsent
	}
	return nil
}
