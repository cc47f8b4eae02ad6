package http_test

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hayzedd/internal/settings"
	"hayzedd/internal/testsupport"
)

func TestHealthIndexAction(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	app := testsupport.CreateMinimalTestApp(t, dbManager.GetConnection())

	req := httptest.NewRequest("GET", "/_health", nil)
	resp, err := app.Test(req, 30000)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ok", body["db_status"])
	assert.Contains(t, []any{"loaded", "missing"}, body["geo_db"])
}

func TestMetricsIndexAction(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	app := testsupport.CreateMinimalTestApp(t, dbManager.GetConnection())

	t.Run("requires the admin key", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil), 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("exposes prometheus metrics", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/metrics", nil)
		req.Header.Set("Authorization", "Bearer "+testsupport.AdminKey)

		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), "go_goroutines")
	})
}

func TestExcludedIPsActions(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	app := testsupport.CreateMinimalTestApp(t, db)
	require.NoError(t, settings.SetupDefaultSettings(db, logger))
	t.Cleanup(func() {
		_ = settings.CreateOrUpdateSetting(db, logger, settings.KeyExcludedIPs, "")
	})

	const path = "/api/analytics/settings/excluded-ips"

	send := func(method string, payload string) *http.Response {
		var body io.Reader
		if payload != "" {
			body = bytes.NewReader([]byte(payload))
		}
		req := httptest.NewRequest(method, path, body)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+testsupport.AdminKey)
		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		return resp
	}

	t.Run("starts empty", func(t *testing.T) {
		resp := send("GET", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			ExcludedIPs []string `json:"excludedIps"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Empty(t, body.ExcludedIPs)
	})

	t.Run("rejects invalid addresses", func(t *testing.T) {
		resp := send("POST", `{"excludedIps":["10.0.0.1","not-an-ip"]}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("saves and applies the list", func(t *testing.T) {
		resp := send("POST", `{"excludedIps":[" 203.0.113.5 ","203.0.113.5","2001:db8::1"]}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			ExcludedIPs []string `json:"excludedIps"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, []string{"203.0.113.5", "2001:db8::1"}, body.ExcludedIPs)

		excluded, err := settings.IsIPExcluded("203.0.113.5")
		require.NoError(t, err)
		assert.True(t, excluded)

		excluded, err = settings.IsIPExcluded("203.0.113.6")
		require.NoError(t, err)
		assert.False(t, excluded)
	})
}
