package v1_test

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Ingestion posts must come from a browser; anything that cannot set
// Sec-Fetch-Site is turned away before the handler runs.
func TestIngestionRequiresSecFetchSite(t *testing.T) {
	app, _ := setupApp(t)

	eventBody := `{"sessionId":"s","visitorId":"v","eventType":"interaction","eventCategory":"button","eventAction":"click"}`

	browserCases := []string{"cross-site", "same-site", "same-origin"}
	for _, value := range browserCases {
		t.Run("allows "+value, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodPost, apiPrefix+"/event", strings.NewReader(eventBody))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("User-Agent", chromeWindows)
			req.Header.Set("Sec-Fetch-Site", value)

			resp, err := app.Test(req, 30000)
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		})
	}

	scripted := map[string]string{
		"curl":            "curl/8.4.0",
		"python requests": "python-requests/2.31.0",
		"node fetch":      "node-fetch/1.0",
	}
	for name, userAgent := range scripted {
		t.Run("blocks "+name, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodPost, apiPrefix+"/event", strings.NewReader(eventBody))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("User-Agent", userAgent)
			req.Header.Set("Origin", "https://example.com")

			resp, err := app.Test(req, 30000)
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
		})
	}
}

func TestReadRoutesSkipSecFetchSite(t *testing.T) {
	app, _ := setupApp(t)

	req := httptest.NewRequest(fiber.MethodGet, apiPrefix+"/stats?period=1d", nil)
	req.Header.Set("Authorization", "Bearer test-admin-key")

	resp, err := app.Test(req, 30000)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
