package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"hayzedd/internal/events"
	"hayzedd/internal/pkg/async"
	"hayzedd/internal/sessions"
	"hayzedd/internal/visitors"
)

// DetailQuery bounds the timestamped records of a visitor. Sessions are
// always returned in full.
type DetailQuery struct {
	From *time.Time
	To   *time.Time
}

type VisitorStats struct {
	TotalSessions          int        `json:"totalSessions"`
	TotalPageViews         int        `json:"totalPageViews"`
	TotalEvents            int        `json:"totalEvents"`
	TotalFormSubmissions   int        `json:"totalFormSubmissions"`
	TotalErrors            int        `json:"totalErrors"`
	TotalDuration          int64      `json:"totalDuration"`
	AverageSessionDuration float64    `json:"averageSessionDuration"`
	BounceRate             float64    `json:"bounceRate"`
	FirstVisit             *time.Time `json:"firstVisit"`
	LastVisit              *time.Time `json:"lastVisit"`
	IsReturningVisitor     bool       `json:"isReturningVisitor"`
	Countries              []string   `json:"countries"`
	Devices                []string   `json:"devices"`
	Browsers               []string   `json:"browsers"`
	OperatingSystems       []string   `json:"operatingSystems"`
	Sources                []string   `json:"sources"`
	Campaigns              []string   `json:"campaigns"`
}

// PageEngagement summarizes the views of one page. A view shorter than
// PageBounceCutoffMs counts as a page bounce, which is unrelated to the
// session bounce in VisitorStats.
type PageEngagement struct {
	Page            string  `json:"page"`
	Views           int     `json:"views"`
	TotalDuration   int64   `json:"totalDuration"`
	AverageDuration float64 `json:"averageDuration"`
	MaxScrollDepth  int     `json:"maxScrollDepth"`
	Bounces         int     `json:"bounces"`
	PageBounceRate  float64 `json:"pageBounceRate"`
}

type EventSummary struct {
	Category   string   `json:"category"`
	Action     string   `json:"action"`
	Count      int      `json:"count"`
	Labels     []string `json:"labels"`
	TotalValue float64  `json:"totalValue"`
}

type MetricSample struct {
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
	Page      string    `json:"page"`
}

type PerformanceSummary struct {
	MetricName   string         `json:"metricName"`
	MetricType   string         `json:"metricType"`
	Count        int            `json:"count"`
	TotalValue   float64        `json:"totalValue"`
	AverageValue float64        `json:"averageValue"`
	MinValue     float64        `json:"minValue"`
	MaxValue     float64        `json:"maxValue"`
	Values       []MetricSample `json:"values"`
}

type DetailAnalytics struct {
	PageStats        []PageEngagement     `json:"pageStats"`
	EventStats       []EventSummary       `json:"eventStats"`
	PerformanceStats []PerformanceSummary `json:"performanceStats"`
}

// VisitorDetail is everything recorded for one visitor.
type VisitorDetail struct {
	VisitorID          string                     `json:"visitorId"`
	Alias              string                     `json:"alias"`
	Stats              VisitorStats               `json:"stats"`
	Sessions           []sessions.Session         `json:"sessions"`
	PageViews          []events.PageView          `json:"pageViews"`
	Events             []events.Event             `json:"events"`
	FormSubmissions    []events.FormSubmission    `json:"formSubmissions"`
	Errors             []events.ErrorEvent        `json:"errors"`
	PerformanceMetrics []events.PerformanceMetric `json:"performanceMetrics"`
	Analytics          DetailAnalytics            `json:"analytics"`
}

// GetVisitorDetail loads the visitor's records concurrently and derives the
// per-page, per-event and per-metric summaries. A visitor without sessions
// yields ErrVisitorNotFound.
func GetVisitorDetail(ctx context.Context, db *gorm.DB, visitorID string, q DetailQuery) (*VisitorDetail, error) {
	tasks := []async.Task{
		timedTask("visitor_sessions", func(ctx context.Context) ([]sessions.Session, error) {
			out := []sessions.Session{}
			err := db.WithContext(ctx).Where("visitor_id = ?", visitorID).Order("first_visit DESC").Find(&out).Error
			return out, err
		}),
		timedTask("visitor_page_views", func(ctx context.Context) ([]events.PageView, error) {
			return findTimestamped[events.PageView](ctx, db, visitorID, q)
		}),
		timedTask("visitor_events", func(ctx context.Context) ([]events.Event, error) {
			return findTimestamped[events.Event](ctx, db, visitorID, q)
		}),
		timedTask("visitor_forms", func(ctx context.Context) ([]events.FormSubmission, error) {
			return findTimestamped[events.FormSubmission](ctx, db, visitorID, q)
		}),
		timedTask("visitor_errors", func(ctx context.Context) ([]events.ErrorEvent, error) {
			return findTimestamped[events.ErrorEvent](ctx, db, visitorID, q)
		}),
		timedTask("visitor_performance", func(ctx context.Context) ([]events.PerformanceMetric, error) {
			return findTimestamped[events.PerformanceMetric](ctx, db, visitorID, q)
		}),
	}
	results := queryPool.Execute(ctx, tasks)

	detail := &VisitorDetail{VisitorID: visitorID, Alias: visitors.Alias(visitorID)}
	var err error
	if detail.Sessions, err = collect[[]sessions.Session](results, "visitor_sessions"); err != nil {
		return nil, err
	}
	if len(detail.Sessions) == 0 {
		return nil, ErrVisitorNotFound
	}
	if detail.PageViews, err = collect[[]events.PageView](results, "visitor_page_views"); err != nil {
		return nil, err
	}
	if detail.Events, err = collect[[]events.Event](results, "visitor_events"); err != nil {
		return nil, err
	}
	if detail.FormSubmissions, err = collect[[]events.FormSubmission](results, "visitor_forms"); err != nil {
		return nil, err
	}
	if detail.Errors, err = collect[[]events.ErrorEvent](results, "visitor_errors"); err != nil {
		return nil, err
	}
	if detail.PerformanceMetrics, err = collect[[]events.PerformanceMetric](results, "visitor_performance"); err != nil {
		return nil, err
	}

	detail.Stats = buildVisitorStats(detail)
	detail.Analytics = DetailAnalytics{
		PageStats:        buildPageStats(detail.PageViews),
		EventStats:       buildEventStats(detail.Events),
		PerformanceStats: buildPerformanceStats(detail.PerformanceMetrics),
	}
	return detail, nil
}

// findTimestamped returns the visitor's rows of T, newest first, limited to
// the query's timestamp bounds.
func findTimestamped[T any](ctx context.Context, db *gorm.DB, visitorID string, q DetailQuery) ([]T, error) {
	query := db.WithContext(ctx).Where("visitor_id = ?", visitorID)
	if q.From != nil {
		query = query.Where("timestamp >= ?", q.From.UTC())
	}
	if q.To != nil {
		query = query.Where("timestamp <= ?", q.To.UTC())
	}
	out := []T{}
	if err := query.Order("timestamp DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("error fetching %T rows: %w", *new(T), err)
	}
	return out, nil
}

// buildVisitorStats expects sessions ordered newest first.
func buildVisitorStats(d *VisitorDetail) VisitorStats {
	stats := VisitorStats{
		TotalSessions:        len(d.Sessions),
		TotalPageViews:       len(d.PageViews),
		TotalEvents:          len(d.Events),
		TotalFormSubmissions: len(d.FormSubmissions),
		TotalErrors:          len(d.Errors),
	}

	var bounced int64
	var countries, devices, browsers, systems, sources, campaigns distinct
	for i := range d.Sessions {
		s := &d.Sessions[i]
		stats.TotalDuration += s.TotalDuration
		if s.Bounced || s.IsBounce() {
			bounced++
		}
		if s.IsReturningVisitor {
			stats.IsReturningVisitor = true
		}
		if stats.LastVisit == nil || s.LastActivity.After(*stats.LastVisit) {
			last := s.LastActivity
			stats.LastVisit = &last
		}
		countries.add(s.Location.Country)
		devices.add(s.Device.Type)
		browsers.add(s.Device.Browser)
		systems.add(s.Device.OS)
		sources.add(s.Source)
		campaigns.add(s.Campaign)
	}

	if n := len(d.Sessions); n > 0 {
		first := d.Sessions[n-1].FirstVisit
		stats.FirstVisit = &first
		stats.AverageSessionDuration = float64(stats.TotalDuration) / float64(n)
	}
	stats.BounceRate = percent(bounced, int64(len(d.Sessions)))
	stats.Countries = countries.values()
	stats.Devices = devices.values()
	stats.Browsers = browsers.values()
	stats.OperatingSystems = systems.values()
	stats.Sources = sources.values()
	stats.Campaigns = campaigns.values()
	return stats
}

func buildPageStats(pageViews []events.PageView) []PageEngagement {
	byPage := make(map[string]*PageEngagement)
	for _, pv := range pageViews {
		stat, ok := byPage[pv.Page]
		if !ok {
			stat = &PageEngagement{Page: pv.Page}
			byPage[pv.Page] = stat
		}
		var duration int64
		if pv.Duration != nil {
			duration = *pv.Duration
		}
		stat.Views++
		stat.TotalDuration += duration
		if pv.ScrollDepth != nil && *pv.ScrollDepth > stat.MaxScrollDepth {
			stat.MaxScrollDepth = *pv.ScrollDepth
		}
		if duration < PageBounceCutoffMs {
			stat.Bounces++
		}
	}

	out := make([]PageEngagement, 0, len(byPage))
	for _, stat := range byPage {
		if stat.Views > 0 {
			stat.AverageDuration = float64(stat.TotalDuration) / float64(stat.Views)
		}
		stat.PageBounceRate = percent(int64(stat.Bounces), int64(stat.Views))
		out = append(out, *stat)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Views != out[j].Views {
			return out[i].Views > out[j].Views
		}
		return out[i].Page < out[j].Page
	})
	return out
}

func buildEventStats(evs []events.Event) []EventSummary {
	type accumulator struct {
		summary *EventSummary
		labels  distinct
	}
	byKey := make(map[string]*accumulator)
	for _, ev := range evs {
		key := ev.EventCategory + "_" + ev.EventAction
		acc, ok := byKey[key]
		if !ok {
			acc = &accumulator{summary: &EventSummary{Category: ev.EventCategory, Action: ev.EventAction}}
			byKey[key] = acc
		}
		acc.summary.Count++
		if ev.EventLabel != nil {
			acc.labels.add(*ev.EventLabel)
		}
		if ev.EventValue != nil {
			acc.summary.TotalValue += *ev.EventValue
		}
	}

	out := make([]EventSummary, 0, len(byKey))
	for _, acc := range byKey {
		acc.summary.Labels = acc.labels.values()
		out = append(out, *acc.summary)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Action < out[j].Action
	})
	return out
}

func buildPerformanceStats(metrics []events.PerformanceMetric) []PerformanceSummary {
	byName := make(map[string]*PerformanceSummary)
	for _, m := range metrics {
		stat, ok := byName[m.MetricName]
		if !ok {
			stat = &PerformanceSummary{MetricName: m.MetricName, MetricType: m.MetricType, MinValue: m.Value, MaxValue: m.Value}
			byName[m.MetricName] = stat
		}
		stat.Count++
		stat.TotalValue += m.Value
		stat.MinValue = min(stat.MinValue, m.Value)
		stat.MaxValue = max(stat.MaxValue, m.Value)
		stat.Values = append(stat.Values, MetricSample{Value: m.Value, Timestamp: m.Timestamp, Page: m.Page})
	}

	out := make([]PerformanceSummary, 0, len(byName))
	for _, stat := range byName {
		stat.AverageValue = stat.TotalValue / float64(stat.Count)
		sort.SliceStable(stat.Values, func(i, j int) bool {
			return stat.Values[i].Timestamp.After(stat.Values[j].Timestamp)
		})
		out = append(out, *stat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MetricName < out[j].MetricName })
	return out
}

// distinct collects non-empty strings in first-seen order.
type distinct struct {
	seen  map[string]bool
	order []string
}

func (d *distinct) add(value string) {
	if value == "" || d.seen[value] {
		return
	}
	if d.seen == nil {
		d.seen = make(map[string]bool)
	}
	d.seen[value] = true
	d.order = append(d.order, value)
}

func (d *distinct) values() []string {
	if d.order == nil {
		return []string{}
	}
	return d.order
}
