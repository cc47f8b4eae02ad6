package user_agent_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"hayzedd/internal/pkg/user_agent"
)

func TestParseUserAgent(t *testing.T) {
	testCases := []struct {
		name            string
		userAgent       string
		expectedBrowser string
		expectedVersion string
		expectedOS      string
		expectedDevice  string
		expectedMobile  bool
		expectedTablet  bool
		expectedDesktop bool
	}{
		{
			name:            "Chrome on Windows",
			userAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
			expectedBrowser: "Chrome",
			expectedVersion: "91.0.4472.124",
			expectedOS:      "Windows",
			expectedDevice:  user_agent.DeviceDesktop,
			expectedDesktop: true,
		},
		{
			name:            "Safari on iPhone",
			userAgent:       "Mozilla/5.0 (iPhone; CPU iPhone OS 14_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.0 Mobile/15E148 Safari/604.1",
			expectedBrowser: "Mobile Safari",
			expectedVersion: "14.0",
			expectedOS:      "iOS",
			expectedDevice:  user_agent.DeviceMobile,
			expectedMobile:  true,
		},
		{
			name:            "Chrome on Android",
			userAgent:       "Mozilla/5.0 (Linux; Android 11; SM-G998B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.120 Mobile Safari/537.36",
			expectedBrowser: "Chrome Mobile",
			expectedVersion: "91.0.4472.120",
			expectedOS:      "Android",
			expectedDevice:  user_agent.DeviceMobile,
			expectedMobile:  true,
		},
		{
			name:            "Safari on iPad",
			userAgent:       "Mozilla/5.0 (iPad; CPU OS 14_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.0 Mobile/15E148 Safari/604.1",
			expectedBrowser: "Mobile Safari",
			expectedVersion: "14.0",
			expectedOS:      "iPadOS",
			expectedDevice:  user_agent.DeviceTablet,
			expectedTablet:  true,
		},
		{
			name:            "Edge on Windows",
			userAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.2210.91",
			expectedBrowser: "Microsoft Edge",
			expectedVersion: "120.0.2210.91",
			expectedOS:      "Windows",
			expectedDevice:  user_agent.DeviceDesktop,
			expectedDesktop: true,
		},
		{
			name:            "Firefox on Linux",
			userAgent:       "Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
			expectedBrowser: "Firefox",
			expectedVersion: "121.0",
			expectedOS:      "GNU/Linux",
			expectedDevice:  user_agent.DeviceDesktop,
			expectedDesktop: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := user_agent.ParseUserAgent(tc.userAgent)

			assert.Equal(t, tc.expectedBrowser, result.Browser)
			assert.Equal(t, tc.expectedVersion, result.BrowserVersion)
			assert.Equal(t, tc.expectedOS, result.OS)
			assert.Equal(t, tc.expectedDevice, result.Device)
			assert.Equal(t, tc.expectedMobile, result.Mobile)
			assert.Equal(t, tc.expectedTablet, result.Tablet)
			assert.Equal(t, tc.expectedDesktop, result.Desktop)
			assert.False(t, result.Bot)
		})
	}
}

func TestParseUserAgentBots(t *testing.T) {
	t.Run("known crawler", func(t *testing.T) {
		result := user_agent.ParseUserAgent("Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)")
		assert.True(t, result.Bot)
		assert.Equal(t, "Googlebot", result.Browser)
		assert.Equal(t, user_agent.DeviceBot, result.Device)
		assert.False(t, result.Desktop)
	})

	t.Run("generic crawler keyword", func(t *testing.T) {
		result := user_agent.ParseUserAgent("Mozilla/5.0 (compatible; AhrefsBot/7.0; +http://ahrefs.com/robot/)")
		assert.True(t, result.Bot)
		assert.Equal(t, "AhrefsBot", result.Browser)
	})
}

func TestParseUserAgentUnknownInput(t *testing.T) {
	for _, ua := range []string{"", "   ", "curl-ish/0.1"} {
		result := user_agent.ParseUserAgent(ua)
		assert.NotEmpty(t, result.Browser)
		assert.NotEmpty(t, result.OS)
		assert.Equal(t, user_agent.Unknown, result.OS, "input %q", ua)
		assert.Equal(t, user_agent.DeviceDesktop, result.Device)
	}
}
