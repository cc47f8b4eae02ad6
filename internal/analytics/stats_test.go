package analytics_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hayzedd/internal/analytics"
	"hayzedd/internal/pkg/referrers"
	"hayzedd/internal/testsupport"
	"hayzedd/internal/timeframe"
)

func TestComputeStats(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	now := time.Now().UTC()
	day := timeframe.PeriodDay.Range(now)

	first := testsupport.CreateTestSession(t, db, testsupport.SessionFixture{
		VisitorID:     "visitor-a",
		FirstVisit:    now.Add(-2 * time.Hour),
		PageViews:     1,
		TotalDuration: 45000,
	})
	second := testsupport.CreateTestSession(t, db, testsupport.SessionFixture{
		VisitorID:   "visitor-a",
		FirstVisit:  now.Add(-time.Hour),
		PageViews:   3,
		IsReturning: true,
		DeviceType:  "mobile",
		Browser:     "Firefox",
		OS:          "Android",
		Country:     "France",
	})
	// Opened three days ago but still active: counts as a session only.
	older := testsupport.CreateTestSession(t, db, testsupport.SessionFixture{
		VisitorID:    "visitor-b",
		FirstVisit:   now.Add(-72 * time.Hour),
		LastActivity: now.Add(-30 * time.Minute),
		PageViews:    2,
	})

	testsupport.CreateTestPageView(t, db, first, "/about", now.Add(-2*time.Hour), 45000)
	testsupport.CreateTestPageView(t, db, second, "/", now.Add(-time.Hour), 5000)
	testsupport.CreateTestPageView(t, db, second, "/about", now.Add(-50*time.Minute), -1)
	testsupport.CreateTestPageView(t, db, older, "/pricing", now.Add(-40*time.Minute), 1000)
	testsupport.CreateTestPageView(t, db, older, "/old", now.Add(-72*time.Hour), 1000)

	testsupport.CreateTestEvent(t, db, first, "cta", "click", now.Add(-time.Hour))
	testsupport.CreateTestEvent(t, db, second, "cta", "click", now.Add(-time.Hour))
	testsupport.CreateTestEvent(t, db, second, "scroll", "milestone", now.Add(-time.Hour))
	testsupport.CreateTestEvent(t, db, older, "cta", "click", now.Add(-72*time.Hour))

	t.Run("overview", func(t *testing.T) {
		stats, err := analytics.ComputeStats(context.Background(), db, analytics.StatsQuery{Period: timeframe.PeriodDay, Range: day})
		require.NoError(t, err)

		o := stats.Overview
		assert.Equal(t, int64(2), o.TotalVisitors)
		assert.Equal(t, int64(3), o.TotalSessions)
		assert.Equal(t, int64(4), o.TotalPageViews)
		assert.Equal(t, int64(1), o.UniqueVisitors)
		assert.Equal(t, int64(1), o.ReturningVisitors)
		assert.Equal(t, int64(1), o.NewVisitors)
		assert.InDelta(t, 45000, o.AvgSessionDuration, 0.001)
		assert.InDelta(t, 50, o.BounceRate, 0.001)

		assert.Equal(t, timeframe.PeriodDay, stats.Period)
		assert.Equal(t, day, stats.DateRange)
	})

	t.Run("breakdowns", func(t *testing.T) {
		stats, err := analytics.ComputeStats(context.Background(), db, analytics.StatsQuery{Period: timeframe.PeriodDay, Range: day})
		require.NoError(t, err)

		require.Len(t, stats.TopPages, 3)
		assert.Equal(t, analytics.PageStat{Page: "/about", Views: 2, UniqueVisitors: 1}, stats.TopPages[0])

		assert.ElementsMatch(t, []analytics.MetricCountResult{
			{Name: "desktop", Count: 1},
			{Name: "mobile", Count: 1},
		}, stats.DeviceTypes)
		assert.ElementsMatch(t, []analytics.MetricCountResult{
			{Name: "Chrome", Count: 1},
			{Name: "Firefox", Count: 1},
		}, stats.Browsers)
		assert.Len(t, stats.OperatingSystems, 2)
		assert.Len(t, stats.Countries, 2)

		var dailyTotal int64
		for _, d := range stats.DailyVisitors {
			assert.Len(t, d.Date, len(timeframe.DateLayout))
			dailyTotal += d.Visitors
		}
		assert.Equal(t, int64(2), dailyTotal)

		require.Len(t, stats.TopEvents, 2)
		assert.Equal(t, analytics.EventCount{Category: "cta", Action: "click", Count: 2}, stats.TopEvents[0])
	})

	t.Run("page filter narrows page view figures", func(t *testing.T) {
		stats, err := analytics.ComputeStats(context.Background(), db, analytics.StatsQuery{
			Period: timeframe.PeriodDay,
			Range:  day,
			Page:   "/about",
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), stats.Overview.TotalPageViews)
		require.Len(t, stats.TopPages, 1)
		assert.Equal(t, "/about", stats.TopPages[0].Page)
		assert.Equal(t, int64(2), stats.Overview.TotalVisitors)
	})

	t.Run("longer period includes older sessions", func(t *testing.T) {
		stats, err := analytics.ComputeStats(context.Background(), db, analytics.StatsQuery{
			Period: timeframe.PeriodWeek,
			Range:  timeframe.PeriodWeek.Range(now),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(3), stats.Overview.TotalVisitors)
		assert.Equal(t, int64(2), stats.Overview.UniqueVisitors)
		assert.Equal(t, int64(5), stats.Overview.TotalPageViews)
	})
}

func TestComputeStatsEmpty(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	stats, err := analytics.ComputeStats(context.Background(), db, analytics.StatsQuery{
		Range: timeframe.PeriodMonth.Range(time.Now()),
	})
	require.NoError(t, err)

	assert.Equal(t, timeframe.DefaultPeriod, stats.Period)
	assert.Zero(t, stats.Overview.TotalVisitors)
	assert.Zero(t, stats.Overview.BounceRate)
	assert.Zero(t, stats.Overview.AvgSessionDuration)
	assert.NotNil(t, stats.TopPages)
	assert.Empty(t, stats.TopPages)
	assert.NotNil(t, stats.DailyVisitors)
	assert.NotNil(t, stats.TopEvents)
	assert.NotNil(t, stats.TopReferrers)
}

func TestComputeStatsReferrers(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	now := time.Now().UTC()
	for _, ref := range []string{
		"https://www.google.com/search?q=analytics",
		"https://google.com/",
		"https://news.ycombinator.com/item?id=1",
		"",
		"",
		"",
	} {
		campaign := ""
		if strings.Contains(ref, "google") {
			campaign = "spring_sale"
		}
		testsupport.CreateTestSession(t, db, testsupport.SessionFixture{
			FirstVisit: now.Add(-time.Hour),
			Referrer:   ref,
			Campaign:   campaign,
		})
	}

	stats, err := analytics.ComputeStats(context.Background(), db, analytics.StatsQuery{
		Period: timeframe.PeriodDay,
		Range:  timeframe.PeriodDay.Range(now),
	})
	require.NoError(t, err)

	assert.Equal(t, []analytics.ReferrerStat{
		{Name: "Direct", Channel: referrers.ChannelDirect, Count: 3},
		{Name: "Google", Channel: referrers.ChannelSearch, Count: 2},
		{Name: "Hacker News", Channel: referrers.ChannelCommunity, Count: 1},
	}, stats.TopReferrers)
	assert.Equal(t, []analytics.MetricCountResult{{Name: "spring_sale", Count: 2}}, stats.Campaigns)
	assert.Empty(t, stats.ExitPages, "exit pages appear once sessions are finalized")
}
