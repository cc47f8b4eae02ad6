package v1_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hayzedd/internal/testsupport"
)

func TestReadAPIAuthentication(t *testing.T) {
	app, _ := setupApp(t)

	paths := []string{"/stats", "/visitors", "/visitors/abc"}
	for _, path := range paths {
		t.Run("missing key "+path, func(t *testing.T) {
			resp := get(t, app, path, "")
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Equal(t, "UNAUTHORIZED", decode[errorBody](t, resp).Code)
		})

		t.Run("wrong key "+path, func(t *testing.T) {
			resp := get(t, app, path, "not-the-key")
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}

	t.Run("key header", func(t *testing.T) {
		req := httptest.NewRequest("GET", apiPrefix+"/stats", nil)
		req.Header.Set("X-Analytics-Key", testsupport.AdminKey)

		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestStatsAction(t *testing.T) {
	app, db := setupApp(t)
	now := time.Now().UTC()

	s := testsupport.CreateTestSession(t, db, testsupport.SessionFixture{
		FirstVisit: now.Add(-2 * time.Hour),
		PageViews:  2,
	})
	testsupport.CreateTestPageView(t, db, s, "/", now.Add(-2*time.Hour), 1000)
	testsupport.CreateTestPageView(t, db, s, "/docs", now.Add(-time.Hour), 5000)

	type statsBody struct {
		Period   string `json:"period"`
		Overview struct {
			TotalPageViews int64   `json:"totalPageViews"`
			BounceRate     float64 `json:"bounceRate"`
		} `json:"overview"`
		TopPages []struct {
			Page  string `json:"page"`
			Views int64  `json:"views"`
		} `json:"topPages"`
	}

	t.Run("unknown period falls back to 7d", func(t *testing.T) {
		resp := get(t, app, "/stats?period=fortnight", testsupport.AdminKey)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decode[statsBody](t, resp)
		assert.Equal(t, "7d", body.Period)
		assert.Equal(t, int64(2), body.Overview.TotalPageViews)
		assert.Zero(t, body.Overview.BounceRate)
	})

	t.Run("page filter", func(t *testing.T) {
		resp := get(t, app, "/stats?period=30d&page=/docs", testsupport.AdminKey)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decode[statsBody](t, resp)
		assert.Equal(t, int64(1), body.Overview.TotalPageViews)
		require.Len(t, body.TopPages, 1)
		assert.Equal(t, "/docs", body.TopPages[0].Page)
	})

	t.Run("document is returned unwrapped", func(t *testing.T) {
		resp := get(t, app, "/stats", testsupport.AdminKey)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decode[map[string]any](t, resp)
		assert.Contains(t, body, "overview")
		assert.NotContains(t, body, "data")
		assert.NotContains(t, body, "success")
	})
}

func TestVisitorsAction(t *testing.T) {
	app, db := setupApp(t)
	now := time.Now().UTC()

	testsupport.CreateTestSession(t, db, testsupport.SessionFixture{
		Country: "Spain", FirstVisit: now.Add(-3 * time.Hour), PageViews: 1,
	})
	testsupport.CreateTestSession(t, db, testsupport.SessionFixture{
		Country: "France", FirstVisit: now.Add(-2 * time.Hour), PageViews: 4, IsReturning: true,
	})
	testsupport.CreateTestSession(t, db, testsupport.SessionFixture{
		Country: "France", DeviceType: "mobile", FirstVisit: now.Add(-time.Hour), PageViews: 2,
	})

	type listBody struct {
		Data struct {
			Visitors []struct {
				PageViews int `json:"pageViews"`
				Location  struct {
					Country string `json:"country"`
				} `json:"location"`
			} `json:"visitors"`
			Pagination struct {
				TotalCount int64 `json:"totalCount"`
				TotalPages int   `json:"totalPages"`
				HasNext    bool  `json:"hasNext"`
			} `json:"pagination"`
		} `json:"data"`
	}

	t.Run("filters and sorts", func(t *testing.T) {
		resp := get(t, app, "/visitors?country=fra&sortBy=pageViews&sortOrder=asc", testsupport.AdminKey)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decode[listBody](t, resp)
		require.Len(t, body.Data.Visitors, 2)
		assert.Equal(t, 2, body.Data.Visitors[0].PageViews)
		assert.Equal(t, 4, body.Data.Visitors[1].PageViews)
		assert.Equal(t, "France", body.Data.Visitors[0].Location.Country)
	})

	t.Run("returning flag", func(t *testing.T) {
		resp := get(t, app, "/visitors?isReturning=true", testsupport.AdminKey)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, int64(1), decode[listBody](t, resp).Data.Pagination.TotalCount)
	})

	t.Run("pagination", func(t *testing.T) {
		resp := get(t, app, "/visitors?limit=2&page=1", testsupport.AdminKey)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decode[listBody](t, resp)
		assert.Len(t, body.Data.Visitors, 2)
		assert.Equal(t, int64(3), body.Data.Pagination.TotalCount)
		assert.Equal(t, 2, body.Data.Pagination.TotalPages)
		assert.True(t, body.Data.Pagination.HasNext)
	})

	t.Run("bad parameters", func(t *testing.T) {
		for _, query := range []string{
			"?dateFrom=yesterday",
			"?dateFrom=2024-05-10&dateTo=2024-05-01",
			"?isReturning=maybe",
		} {
			resp := get(t, app, "/visitors"+query, testsupport.AdminKey)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode, query)
			assert.Equal(t, "VALIDATION_ERROR", decode[errorBody](t, resp).Code, query)
		}
	})
}

func TestVisitorDetailAction(t *testing.T) {
	app, db := setupApp(t)
	now := time.Now().UTC()

	s := testsupport.CreateTestSession(t, db, testsupport.SessionFixture{
		FirstVisit: now.Add(-time.Hour), PageViews: 2, TotalDuration: 65000,
	})
	testsupport.CreateTestPageView(t, db, s, "/about", now.Add(-time.Hour), 45000)
	testsupport.CreateTestPageView(t, db, s, "/about", now.Add(-30*time.Minute), 20000)
	testsupport.CreateTestEvent(t, db, s, "cta", "click", now.Add(-20*time.Minute))

	t.Run("returns the bundle", func(t *testing.T) {
		resp := get(t, app, "/visitors/"+s.VisitorID, testsupport.AdminKey)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decode[struct {
			VisitorID string `json:"visitorId"`
			Alias     string `json:"alias"`
			Stats     struct {
				TotalSessions  int   `json:"totalSessions"`
				TotalPageViews int   `json:"totalPageViews"`
				TotalEvents    int   `json:"totalEvents"`
				TotalDuration  int64 `json:"totalDuration"`
			} `json:"stats"`
			Analytics struct {
				PageStats []struct {
					Page           string  `json:"page"`
					Views          int     `json:"views"`
					PageBounceRate float64 `json:"pageBounceRate"`
				} `json:"pageStats"`
			} `json:"analytics"`
		}](t, resp)

		assert.Equal(t, s.VisitorID, body.VisitorID)
		assert.NotEmpty(t, body.Alias)
		assert.Equal(t, 1, body.Stats.TotalSessions)
		assert.Equal(t, 2, body.Stats.TotalPageViews)
		assert.Equal(t, 1, body.Stats.TotalEvents)
		assert.Equal(t, int64(65000), body.Stats.TotalDuration)
		require.Len(t, body.Analytics.PageStats, 1)
		assert.Equal(t, 2, body.Analytics.PageStats[0].Views)
		assert.Equal(t, float64(50), body.Analytics.PageStats[0].PageBounceRate)
	})

	t.Run("unknown visitor", func(t *testing.T) {
		resp := get(t, app, "/visitors/does-not-exist", testsupport.AdminKey)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "NOT_FOUND", decode[errorBody](t, resp).Code)
	})

	t.Run("invalid range", func(t *testing.T) {
		resp := get(t, app, "/visitors/"+s.VisitorID+"?startDate=nope", testsupport.AdminKey)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}
