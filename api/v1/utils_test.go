package v1

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeIPVariants(t *testing.T) {
	t.Helper()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "plain ipv4", raw: "79.144.65.173", want: "79.144.65.173"},
		{name: "ipv4 with spaces", raw: " 79.144.65.173 ", want: "79.144.65.173"},
		{name: "quoted ipv4", raw: "\"79.144.65.173\"", want: "79.144.65.173"},
		{name: "ipv4 with port", raw: "79.144.65.173:443", want: "79.144.65.173"},
		{name: "quoted forwarded ipv4", raw: "\"79.144.65.173:1234\"", want: "79.144.65.173"},
		{name: "ipv6 literal", raw: "2001:db8::1", want: "2001:db8::1"},
		{name: "ipv6 in brackets", raw: "[2001:db8::1]", want: "2001:db8::1"},
		{name: "ipv6 with port", raw: "[2001:db8::1]:8443", want: "2001:db8::1"},
		{name: "ipv6 with zone", raw: "fe80::1%eth0", want: "fe80::1"},
		{name: "ipv4 mapped ipv6", raw: "::ffff:203.0.113.9", want: "203.0.113.9"},
		{name: "invalid value", raw: "not-an-ip", want: ""},
		{name: "empty", raw: "   ", want: ""},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got, parsed := normalizeIP(tc.raw)
			assert.Equal(t, tc.want, got)

			if tc.want == "" {
				assert.Nil(t, parsed)
				return
			}

			require.NotNil(t, parsed)
			assert.Equal(t, tc.want, parsed.String())
		})
	}
}

func TestSelectPreferredIP(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   string
	}{
		{
			name:   "prefers public ipv4 over ipv6",
			values: []string{"2001:db8::1", "203.0.113.20"},
			want:   "203.0.113.20",
		},
		{
			name:   "skips private addresses",
			values: []string{"192.168.1.10", "10.0.0.5", "::1", "198.51.100.7"},
			want:   "198.51.100.7",
		},
		{
			name:   "returns ipv6 fallback when no ipv4",
			values: []string{"2001:db8::2"},
			want:   "2001:db8::2",
		},
		{
			name:   "returns empty when no valid candidates",
			values: []string{"", "   ", "not-an-ip"},
			want:   "",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, selectPreferredIP(tc.values))
		})
	}
}

func TestParseForwardedHeader(t *testing.T) {
	got := parseForwardedHeader(`for=192.0.2.60;proto=http;by=203.0.113.43, For="[2001:db8:cafe::17]:4711"`)
	assert.Equal(t, []string{"192.0.2.60", `"[2001:db8:cafe::17]:4711"`}, got)

	assert.Equal(t, "192.0.2.60", selectPreferredIP(got))
}

func TestPrimaryLanguage(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{header: "en-US,en;q=0.9,es;q=0.8", want: "en-US"},
		{header: "fr;q=0.7", want: "fr"},
		{header: " de ", want: "de"},
		{header: "*", want: ""},
		{header: "", want: ""},
	}

	for _, tc := range tests {
		t.Run(tc.header, func(t *testing.T) {
			assert.Equal(t, tc.want, primaryLanguage(tc.header))
		})
	}
}

func TestClientHeaders(t *testing.T) {
	app := fiber.New()
	app.Get("/ip", func(c *fiber.Ctx) error { return c.SendString(getClientIP(c)) })
	app.Get("/ua", func(c *fiber.Ctx) error { return c.SendString(userAgent(c)) })

	get := func(t *testing.T, path string, headers map[string]string) string {
		t.Helper()
		req := httptest.NewRequest(fiber.MethodGet, path, nil)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return string(body)
	}

	ipCases := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{
			name:    "forwarded for skips proxies on private ranges",
			headers: map[string]string{"X-Forwarded-For": "10.0.0.1, 203.0.113.5"},
			want:    "203.0.113.5",
		},
		{
			name: "forwarded for wins over real ip",
			headers: map[string]string{
				"X-Forwarded-For": "203.0.113.6",
				"X-Real-IP":       "198.51.100.1",
			},
			want: "203.0.113.6",
		},
		{
			name:    "real ip",
			headers: map[string]string{"X-Real-IP": "198.51.100.9"},
			want:    "198.51.100.9",
		},
		{
			name:    "cloudflare",
			headers: map[string]string{"CF-Connecting-IP": "198.51.100.10"},
			want:    "198.51.100.10",
		},
		{
			name:    "client ip",
			headers: map[string]string{"X-Client-IP": "198.51.100.11"},
			want:    "198.51.100.11",
		},
		{
			name:    "rfc 7239",
			headers: map[string]string{"Forwarded": "for=192.0.2.60;proto=https"},
			want:    "192.0.2.60",
		},
	}
	for _, tc := range ipCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, get(t, "/ip", tc.headers))
		})
	}

	t.Run("forwarded user agent", func(t *testing.T) {
		got := get(t, "/ua", map[string]string{
			"User-Agent":             "hayzedd-proxy/1.0",
			"X-Forwarded-User-Agent": "Mozilla/5.0 (iPhone)",
		})
		assert.Equal(t, "Mozilla/5.0 (iPhone)", got)
	})
}
