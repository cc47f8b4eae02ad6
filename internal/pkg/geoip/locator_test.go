package geoip

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name  string
	loc   *Location
	err   error
	calls int32
}

func (f *fakeProvider) Lookup(ctx context.Context, ip net.IP) (*Location, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.loc, f.err
}

func (f *fakeProvider) Name() string      { return f.name }
func (f *fakeProvider) IsAvailable() bool { return true }

func TestLocate(t *testing.T) {
	ctx := context.Background()

	t.Run("private addresses skip providers", func(t *testing.T) {
		p := &fakeProvider{name: "fake", loc: &Location{Country: "Spain"}}
		l := NewLocator(nil, p)

		for _, ip := range []string{"127.0.0.1", "10.1.2.3", "192.168.1.20", "172.20.0.1", "::1", "fe80::1", "not-an-ip", ""} {
			loc := l.Locate(ctx, ip)
			assert.Equal(t, Unknown(), loc, ip)
		}
		assert.Equal(t, int32(0), atomic.LoadInt32(&p.calls))
	})

	t.Run("provider failure degrades to unknown", func(t *testing.T) {
		p := &fakeProvider{name: "fake", err: errors.New("boom")}
		l := NewLocator(nil, p)

		loc := l.Locate(ctx, "8.8.8.8")
		assert.True(t, loc.IsUnknown())
		assert.Equal(t, UnknownValue, loc.City)
		assert.Equal(t, int32(1), atomic.LoadInt32(&p.calls))
	})

	t.Run("falls through to the next provider", func(t *testing.T) {
		first := &fakeProvider{name: "first", err: ErrNoData}
		second := &fakeProvider{name: "second", loc: &Location{Country: "Spain", CountryCode: "ES"}}
		l := NewLocator(nil, first, second)

		loc := l.Locate(ctx, "8.8.4.4")
		assert.Equal(t, "Spain", loc.Country)
		assert.Equal(t, "ES", loc.CountryCode)
		assert.Equal(t, UnknownValue, loc.City)
		assert.Equal(t, UnknownValue, loc.Region)
	})
}

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip      string
		private bool
	}{
		{"10.0.0.1", true},
		{"100.64.1.1", true},
		{"169.254.10.10", true},
		{"0.0.0.0", true},
		{"fc00::1", true},
		{"8.8.8.8", false},
		{"2001:4860:4860::8888", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.private, IsPrivateIP(net.ParseIP(tt.ip)), tt.ip)
	}
}

func TestHTTPProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("decodes upstream answer", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/1.2.3.4/json/", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"ip":"1.2.3.4","city":"Madrid","region":"Madrid","country_name":"Spain","country_code":"ES","timezone":"Europe/Madrid","latitude":40.4,"longitude":-3.7}`))
		}))
		defer srv.Close()

		p := NewHTTPProvider(HTTPProviderOptions{BaseURL: srv.URL})
		loc, err := p.Lookup(ctx, net.ParseIP("1.2.3.4"))
		require.NoError(t, err)
		assert.Equal(t, "Spain", loc.Country)
		assert.Equal(t, "Madrid", loc.City)
		assert.Equal(t, "Europe/Madrid", loc.Timezone)
		require.NotNil(t, loc.Latitude)
		assert.InDelta(t, 40.4, *loc.Latitude, 0.001)
	})

	t.Run("reserved answer is a miss", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"error":true,"reason":"Reserved IP Address"}`))
		}))
		defer srv.Close()

		p := NewHTTPProvider(HTTPProviderOptions{BaseURL: srv.URL})
		_, err := p.Lookup(ctx, net.ParseIP("1.2.3.4"))
		assert.ErrorIs(t, err, ErrNoData)
		assert.Equal(t, gobreaker.StateClosed, p.State())
	})

	t.Run("breaker opens after repeated failures", func(t *testing.T) {
		var hits int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&hits, 1)
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()

		p := NewHTTPProvider(HTTPProviderOptions{
			BaseURL:                srv.URL,
			MaxConsecutiveFailures: 3,
			OpenTimeout:            time.Hour,
		})

		for i := 0; i < 3; i++ {
			_, err := p.Lookup(ctx, net.ParseIP("1.2.3.4"))
			assert.ErrorIs(t, err, ErrUpstream)
		}
		assert.Equal(t, gobreaker.StateOpen, p.State())

		_, err := p.Lookup(ctx, net.ParseIP("1.2.3.4"))
		assert.ErrorIs(t, err, ErrUpstream)
		assert.Equal(t, int32(3), atomic.LoadInt32(&hits), "open breaker must not call upstream")

		loc := NewLocator(nil, p).Locate(ctx, "1.2.3.4")
		assert.True(t, loc.IsUnknown())
	})

	t.Run("empty base url is unavailable", func(t *testing.T) {
		p := NewHTTPProvider(HTTPProviderOptions{})
		assert.False(t, p.IsAvailable())
	})
}
