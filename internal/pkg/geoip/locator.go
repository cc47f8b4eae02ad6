package geoip

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"

	"hayzedd/internal/metrics"
)

// UnknownValue fills every location field a lookup could not resolve.
const UnknownValue = "Unknown"

// ErrUpstream wraps every failure coming from a lookup provider. Callers of
// Locate never see it; it exists so providers and tests can classify errors.
var ErrUpstream = errors.New("geolocation upstream error")

// ErrNoData is returned by providers that answered but know nothing about the IP.
var ErrNoData = errors.New("geolocation: no data for address")

// Location is the structured result of an IP lookup.
type Location struct {
	Country     string   `json:"country"`
	CountryCode string   `json:"countryCode"`
	Region      string   `json:"region"`
	City        string   `json:"city"`
	Timezone    string   `json:"timezone"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
}

// Unknown returns the degraded location used whenever a lookup fails.
func Unknown() Location {
	return Location{
		Country:  UnknownValue,
		Region:   UnknownValue,
		City:     UnknownValue,
		Timezone: UnknownValue,
	}
}

// IsUnknown reports whether no provider resolved the country.
func (l Location) IsUnknown() bool {
	return l.Country == "" || l.Country == UnknownValue
}

// normalize replaces empty fields with UnknownValue.
func (l Location) normalize() Location {
	if l.Country == "" {
		l.Country = UnknownValue
	}
	if l.Region == "" {
		l.Region = UnknownValue
	}
	if l.City == "" {
		l.City = UnknownValue
	}
	if l.Timezone == "" {
		l.Timezone = UnknownValue
	}
	return l
}

// Provider is one source of geolocation data.
type Provider interface {
	// Lookup returns data for a public IP or an error.
	Lookup(ctx context.Context, ip net.IP) (*Location, error)
	// Name is used for logging and metrics.
	Name() string
	// IsAvailable reports whether the provider is configured.
	IsAvailable() bool
}

// Locator asks providers in order and degrades to Unknown.
type Locator struct {
	providers []Provider
	logger    *slog.Logger
}

// NewLocator builds a locator over the given providers. Order matters: the
// first provider that answers wins.
func NewLocator(logger *slog.Logger, providers ...Provider) *Locator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Locator{providers: providers, logger: logger}
}

// Locate never fails. Private, loopback and malformed addresses resolve to
// Unknown without touching any provider.
func (l *Locator) Locate(ctx context.Context, ipAddress string) Location {
	ip := net.ParseIP(strings.TrimSpace(ipAddress))
	if ip == nil || IsPrivateIP(ip) {
		metrics.GeoLookups.WithLabelValues("none", "skipped").Inc()
		return Unknown()
	}

	for _, p := range l.providers {
		if !p.IsAvailable() {
			continue
		}

		loc, err := p.Lookup(ctx, ip)
		if err != nil {
			result := "error"
			if errors.Is(err, ErrNoData) {
				result = "miss"
			}
			metrics.GeoLookups.WithLabelValues(p.Name(), result).Inc()
			l.logger.Debug("Geolocation provider failed",
				slog.String("provider", p.Name()),
				slog.Any("error", err))
			continue
		}

		metrics.GeoLookups.WithLabelValues(p.Name(), "hit").Inc()
		return loc.normalize()
	}

	return Unknown()
}

var privateBlocks = func() []*net.IPNet {
	var blocks []*net.IPNet
	for _, cidr := range []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		"169.254.0.0/16",
		"100.64.0.0/10",
		"0.0.0.0/8",
		"::1/128",
		"fc00::/7",
		"fe80::/10",
	} {
		_, block, _ := net.ParseCIDR(cidr)
		blocks = append(blocks, block)
	}
	return blocks
}()

// IsPrivateIP reports whether ip can never be geolocated.
func IsPrivateIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	if ip.IsUnspecified() {
		return true
	}
	for _, block := range privateBlocks {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}
