package geoip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"hayzedd/internal/metrics"
)

// HTTPProvider queries an ipapi.co compatible JSON endpoint
// (GET {baseURL}/{ip}/json/) through a circuit breaker.
type HTTPProvider struct {
	client  *http.Client
	baseURL string
	cb      *gobreaker.CircuitBreaker[*Location]
	logger  *slog.Logger
}

type ipapiResponse struct {
	IP          string  `json:"ip"`
	City        string  `json:"city"`
	Region      string  `json:"region"`
	CountryName string  `json:"country_name"`
	CountryCode string  `json:"country_code"`
	Timezone    string  `json:"timezone"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Error       bool    `json:"error"`
	Reason      string  `json:"reason"`
}

// HTTPProviderOptions tunes the upstream client and its breaker.
type HTTPProviderOptions struct {
	BaseURL string
	Timeout time.Duration
	Client  *http.Client
	Logger  *slog.Logger

	// Breaker trips after this many consecutive failures. Defaults to 5.
	MaxConsecutiveFailures uint32
	// How long the breaker stays open before probing again. Defaults to 1 minute.
	OpenTimeout time.Duration
}

const breakerName = "geoip-http"

// NewHTTPProvider creates the upstream provider. An empty BaseURL disables it.
func NewHTTPProvider(opts HTTPProviderOptions) *HTTPProvider {
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxConsecutiveFailures == 0 {
		opts.MaxConsecutiveFailures = 5
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = time.Minute
	}

	p := &HTTPProvider{
		client:  opts.Client,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		logger:  opts.Logger,
	}

	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	maxFailures := opts.MaxConsecutiveFailures
	p.cb = gobreaker.NewCircuitBreaker[*Location](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// A miss is an answer, not an outage.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNoData)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.logger.Info("Geolocation circuit breaker state change",
				slog.String("from", from.String()),
				slog.String("to", to.String()))
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})

	return p
}

func (p *HTTPProvider) Name() string {
	return "ipapi"
}

func (p *HTTPProvider) IsAvailable() bool {
	return p.baseURL != ""
}

// State exposes the breaker state, mostly for tests and health output.
func (p *HTTPProvider) State() gobreaker.State {
	return p.cb.State()
}

func (p *HTTPProvider) Lookup(ctx context.Context, ip net.IP) (*Location, error) {
	loc, err := p.cb.Execute(func() (*Location, error) {
		return p.query(ctx, ip)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
		}
		return nil, err
	}
	return loc, nil
}

func (p *HTTPProvider) query(ctx context.Context, ip net.IP) (*Location, error) {
	url := fmt.Sprintf("%s/%s/json/", p.baseURL, ip.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUpstream, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "hayzedd-analytics/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request failed: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	var body ipapiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrUpstream, err)
	}
	if body.Error {
		return nil, fmt.Errorf("%w: %s", ErrNoData, body.Reason)
	}
	if body.CountryName == "" && body.CountryCode == "" {
		return nil, ErrNoData
	}

	loc := &Location{
		Country:     countryName(body.CountryCode, body.CountryName),
		CountryCode: body.CountryCode,
		Region:      body.Region,
		City:        body.City,
		Timezone:    body.Timezone,
	}
	if body.Latitude != 0 || body.Longitude != 0 {
		lat, lon := body.Latitude, body.Longitude
		loc.Latitude = &lat
		loc.Longitude = &lon
	}
	return loc, nil
}

func stateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
