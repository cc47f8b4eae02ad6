package analytics

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"gorm.io/gorm"

	"hayzedd/internal/pkg/async"
	"hayzedd/internal/pkg/referrers"
	"hayzedd/internal/timeframe"
)

// StatsQuery selects the window and optional page of an overview.
type StatsQuery struct {
	Period timeframe.Period
	Range  timeframe.DateRange
	// Page restricts the page view figures to one path.
	Page string
}

type Overview struct {
	TotalVisitors      int64   `json:"totalVisitors"`
	TotalSessions      int64   `json:"totalSessions"`
	TotalPageViews     int64   `json:"totalPageViews"`
	UniqueVisitors     int64   `json:"uniqueVisitors"`
	ReturningVisitors  int64   `json:"returningVisitors"`
	NewVisitors        int64   `json:"newVisitors"`
	AvgSessionDuration float64 `json:"avgSessionDuration"`
	BounceRate         float64 `json:"bounceRate"`
}

type PageStat struct {
	Page           string `json:"page"`
	Views          int64  `json:"views"`
	UniqueVisitors int64  `json:"uniqueVisitors"`
}

type DailyStat struct {
	Date           string `json:"date"`
	Visitors       int64  `json:"visitors"`
	UniqueVisitors int64  `json:"uniqueVisitors"`
}

// ReferrerStat counts sessions per classified referrer.
type ReferrerStat struct {
	Name    string            `json:"name"`
	Channel referrers.Channel `json:"channel"`
	Count   int64             `json:"count"`
}

type EventCount struct {
	Category string `json:"category"`
	Action   string `json:"action"`
	Count    int64  `json:"count"`
}

// Stats is the overview document served by GET /stats.
type Stats struct {
	Overview         Overview            `json:"overview"`
	TopPages         []PageStat          `json:"topPages"`
	DeviceTypes      []MetricCountResult `json:"deviceTypes"`
	Browsers         []MetricCountResult `json:"browsers"`
	OperatingSystems []MetricCountResult `json:"operatingSystems"`
	Countries        []MetricCountResult `json:"countries"`
	DailyVisitors    []DailyStat         `json:"dailyVisitors"`
	TopEvents        []EventCount        `json:"topEvents"`
	TopReferrers     []ReferrerStat      `json:"topReferrers"`
	EntryPages       []MetricCountResult `json:"entryPages"`
	ExitPages        []MetricCountResult `json:"exitPages"`
	Campaigns        []MetricCountResult `json:"campaigns"`
	Period           timeframe.Period    `json:"period"`
	DateRange        timeframe.DateRange `json:"dateRange"`
}

// sessionTotals is the single-pass summary over sessions opened in the window.
type sessionTotals struct {
	TotalVisitors      int64
	UniqueVisitors     int64
	ReturningVisitors  int64
	AvgSessionDuration float64
	BouncedSessions    int64
}

// ComputeStats runs the overview queries concurrently and assembles them.
func ComputeStats(ctx context.Context, db *gorm.DB, q StatsQuery) (*Stats, error) {
	if q.Period == "" {
		q.Period = timeframe.DefaultPeriod
	}
	r := q.Range

	tasks := []async.Task{
		timedTask("session_totals", func(ctx context.Context) (sessionTotals, error) {
			return getSessionTotals(db.WithContext(ctx), r)
		}),
		timedTask("active_sessions", func(ctx context.Context) (int64, error) {
			return getActiveSessions(db.WithContext(ctx), r)
		}),
		timedTask("page_views", func(ctx context.Context) (int64, error) {
			return getTotalPageViews(db.WithContext(ctx), r, q.Page)
		}),
		timedTask("top_pages", func(ctx context.Context) ([]PageStat, error) {
			return getTopPages(db.WithContext(ctx), r, q.Page)
		}),
		timedTask("device_types", func(ctx context.Context) ([]MetricCountResult, error) {
			return getSessionBreakdown(db.WithContext(ctx), r, "device_type", 0)
		}),
		timedTask("browsers", func(ctx context.Context) ([]MetricCountResult, error) {
			return getSessionBreakdown(db.WithContext(ctx), r, "device_browser", TopLimit)
		}),
		timedTask("operating_systems", func(ctx context.Context) ([]MetricCountResult, error) {
			return getSessionBreakdown(db.WithContext(ctx), r, "device_os", TopLimit)
		}),
		timedTask("countries", func(ctx context.Context) ([]MetricCountResult, error) {
			return getSessionBreakdown(db.WithContext(ctx), r, "location_country", TopLimit)
		}),
		timedTask("daily_visitors", func(ctx context.Context) ([]DailyStat, error) {
			return getDailyVisitors(db.WithContext(ctx), r)
		}),
		timedTask("top_events", func(ctx context.Context) ([]EventCount, error) {
			return getTopEvents(db.WithContext(ctx), r)
		}),
		timedTask("entry_pages", func(ctx context.Context) ([]MetricCountResult, error) {
			return getSessionBreakdown(db.WithContext(ctx), r, "landing_page", TopLimit)
		}),
		timedTask("exit_pages", func(ctx context.Context) ([]MetricCountResult, error) {
			return getSessionBreakdown(db.WithContext(ctx), r, "exit_page", TopLimit)
		}),
		timedTask("campaigns", func(ctx context.Context) ([]MetricCountResult, error) {
			return getSessionBreakdown(db.WithContext(ctx), r, "campaign", TopLimit)
		}),
		timedTask("top_referrers", func(ctx context.Context) ([]ReferrerStat, error) {
			return getTopReferrers(db.WithContext(ctx), r)
		}),
	}

	results := queryPool.Execute(ctx, tasks)

	totals, err := collect[sessionTotals](results, "session_totals")
	if err != nil {
		return nil, err
	}
	stats := &Stats{Period: q.Period, DateRange: r}
	stats.Overview = Overview{
		TotalVisitors:      totals.TotalVisitors,
		UniqueVisitors:     totals.UniqueVisitors,
		ReturningVisitors:  totals.ReturningVisitors,
		NewVisitors:        totals.TotalVisitors - totals.ReturningVisitors,
		AvgSessionDuration: totals.AvgSessionDuration,
		BounceRate:         percent(totals.BouncedSessions, totals.TotalVisitors),
	}
	if stats.Overview.TotalSessions, err = collect[int64](results, "active_sessions"); err != nil {
		return nil, err
	}
	if stats.Overview.TotalPageViews, err = collect[int64](results, "page_views"); err != nil {
		return nil, err
	}
	if stats.TopPages, err = collect[[]PageStat](results, "top_pages"); err != nil {
		return nil, err
	}
	if stats.DeviceTypes, err = collect[[]MetricCountResult](results, "device_types"); err != nil {
		return nil, err
	}
	if stats.Browsers, err = collect[[]MetricCountResult](results, "browsers"); err != nil {
		return nil, err
	}
	if stats.OperatingSystems, err = collect[[]MetricCountResult](results, "operating_systems"); err != nil {
		return nil, err
	}
	if stats.Countries, err = collect[[]MetricCountResult](results, "countries"); err != nil {
		return nil, err
	}
	if stats.DailyVisitors, err = collect[[]DailyStat](results, "daily_visitors"); err != nil {
		return nil, err
	}
	if stats.TopEvents, err = collect[[]EventCount](results, "top_events"); err != nil {
		return nil, err
	}
	if stats.EntryPages, err = collect[[]MetricCountResult](results, "entry_pages"); err != nil {
		return nil, err
	}
	if stats.ExitPages, err = collect[[]MetricCountResult](results, "exit_pages"); err != nil {
		return nil, err
	}
	if stats.Campaigns, err = collect[[]MetricCountResult](results, "campaigns"); err != nil {
		return nil, err
	}
	if stats.TopReferrers, err = collect[[]ReferrerStat](results, "top_referrers"); err != nil {
		return nil, err
	}
	return stats, nil
}

func getSessionTotals(db *gorm.DB, r timeframe.DateRange) (sessionTotals, error) {
	var totals sessionTotals
	err := db.Raw(`
        SELECT
            COUNT(*) AS total_visitors,
            COUNT(DISTINCT visitor_id) AS unique_visitors,
            COALESCE(SUM(CASE WHEN is_returning_visitor THEN 1 ELSE 0 END), 0) AS returning_visitors,
            COALESCE(AVG(CASE WHEN total_duration > 0 THEN total_duration END), 0) AS avg_session_duration,
            COALESCE(SUM(CASE WHEN page_views = 1 THEN 1 ELSE 0 END), 0) AS bounced_sessions
        FROM visitor_sessions
        WHERE first_visit BETWEEN ? AND ?
    `, r.Start, r.End).Scan(&totals).Error
	if err != nil {
		return totals, fmt.Errorf("error calculating session totals: %w", err)
	}
	return totals, nil
}

// getActiveSessions counts sessions with any activity in the window,
// including ones opened before it.
func getActiveSessions(db *gorm.DB, r timeframe.DateRange) (int64, error) {
	var count int64
	err := db.Raw(`SELECT COUNT(*) FROM visitor_sessions WHERE last_activity BETWEEN ? AND ?`, r.Start, r.End).
		Scan(&count).Error
	if err != nil {
		return 0, fmt.Errorf("error counting active sessions: %w", err)
	}
	return count, nil
}

func getTotalPageViews(db *gorm.DB, r timeframe.DateRange, page string) (int64, error) {
	query := db.Table("page_views").Where("timestamp BETWEEN ? AND ?", r.Start, r.End)
	if page != "" {
		query = query.Where("page = ?", page)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("error counting page views: %w", err)
	}
	return count, nil
}

func getTopPages(db *gorm.DB, r timeframe.DateRange, page string) ([]PageStat, error) {
	query := db.Table("page_views").
		Select("page, COUNT(*) AS views, COUNT(DISTINCT visitor_id) AS unique_visitors").
		Where("timestamp BETWEEN ? AND ?", r.Start, r.End)
	if page != "" {
		query = query.Where("page = ?", page)
	}

	results := []PageStat{}
	err := query.Group("page").Order("views DESC, page ASC").Limit(TopLimit).Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching top pages: %w", err)
	}
	return results, nil
}

// sessionBreakdownColumns whitelists the columns getSessionBreakdown groups by.
var sessionBreakdownColumns = map[string]bool{
	"device_type":      true,
	"device_browser":   true,
	"device_os":        true,
	"location_country": true,
	"landing_page":     true,
	"exit_page":        true,
	"campaign":         true,
}

// getSessionBreakdown groups sessions opened in the window by column,
// skipping empty values. A limit of 0 returns every group.
func getSessionBreakdown(db *gorm.DB, r timeframe.DateRange, column string, limit int) ([]MetricCountResult, error) {
	if !sessionBreakdownColumns[column] {
		return nil, fmt.Errorf("unsupported breakdown column %q", column)
	}

	query := db.Table("visitor_sessions").
		Select(column+" AS name, COUNT(*) AS count").
		Where("first_visit BETWEEN ? AND ?", r.Start, r.End).
		Where(column + " != ''").
		Group(column).
		Order("count DESC, name ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	results := []MetricCountResult{}
	if err := query.Scan(&results).Error; err != nil {
		return nil, fmt.Errorf("error fetching %s breakdown: %w", column, err)
	}
	return results, nil
}

// getDailyVisitors buckets sessions by the UTC day of their first visit.
func getDailyVisitors(db *gorm.DB, r timeframe.DateRange) ([]DailyStat, error) {
	results := []DailyStat{}
	err := db.Raw(`
        SELECT
            strftime('%Y-%m-%d', first_visit) AS date,
            COUNT(*) AS visitors,
            COUNT(DISTINCT visitor_id) AS unique_visitors
        FROM visitor_sessions
        WHERE first_visit BETWEEN ? AND ?
        GROUP BY date
        ORDER BY date ASC
    `, r.Start, r.End).Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching daily visitors: %w", err)
	}
	return results, nil
}

func getTopEvents(db *gorm.DB, r timeframe.DateRange) ([]EventCount, error) {
	results := []EventCount{}
	err := db.Raw(`
        SELECT event_category AS category, event_action AS action, COUNT(*) AS count
        FROM events
        WHERE timestamp BETWEEN ? AND ?
        GROUP BY event_category, event_action
        ORDER BY count DESC, category ASC, action ASC
        LIMIT ?
    `, r.Start, r.End, TopLimit).Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching top events: %w", err)
	}
	return results, nil
}

// getTopReferrers groups sessions opened in the window by referrer source.
// Raw referrers are URLs, so grouping by source happens after the query.
func getTopReferrers(db *gorm.DB, r timeframe.DateRange) ([]ReferrerStat, error) {
	var rows []struct {
		Referrer string
		Count    int64
	}
	err := db.Raw(`
        SELECT COALESCE(referrer, '') AS referrer, COUNT(*) AS count
        FROM visitor_sessions
        WHERE first_visit BETWEEN ? AND ?
        GROUP BY referrer
    `, r.Start, r.End).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching referrers: %w", err)
	}

	bySource := make(map[string]*ReferrerStat)
	for _, row := range rows {
		src := referrers.Parse(row.Referrer)
		stat, ok := bySource[src.Name]
		if !ok {
			stat = &ReferrerStat{Name: src.Name, Channel: src.Channel}
			bySource[src.Name] = stat
		}
		stat.Count += row.Count
	}

	results := make([]ReferrerStat, 0, len(bySource))
	for _, stat := range bySource {
		results = append(results, *stat)
	}
	slices.SortFunc(results, func(a, b ReferrerStat) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	if len(results) > TopLimit {
		results = results[:TopLimit]
	}
	return results, nil
}
