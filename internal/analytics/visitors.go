package analytics

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"gorm.io/gorm"

	"hayzedd/internal/sessions"
	"hayzedd/internal/visitors"
)

// Sort keys accepted by ListVisitors.
const (
	SortLastActivity  = "lastActivity"
	SortFirstVisit    = "firstVisit"
	SortPageViews     = "pageViews"
	SortTotalDuration = "totalDuration"
	SortInteractions  = "interactions"
)

var sortColumns = map[string]string{
	SortLastActivity:  "s.last_activity",
	SortFirstVisit:    "s.first_visit",
	SortPageViews:     "s.page_views",
	SortTotalDuration: "s.total_duration",
	SortInteractions:  "total_interactions",
}

// VisitorListQuery filters and pages the visitor list. Zero values mean
// "no filter"; Normalize fills paging and sort defaults.
type VisitorListQuery struct {
	Page        int
	Limit       int
	SortBy      string
	SortOrder   string
	DateFrom    *time.Time
	DateTo      *time.Time
	Country     string
	Device      string
	IsReturning *bool
}

// Normalize clamps paging and replaces unknown sort keys with the defaults.
func (q *VisitorListQuery) Normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = DefaultPageSize
	}
	if q.Limit > MaxPageSize {
		q.Limit = MaxPageSize
	}
	if _, ok := sortColumns[q.SortBy]; !ok {
		q.SortBy = SortLastActivity
	}
	if q.SortOrder != "asc" {
		q.SortOrder = "desc"
	}
}

type VisitorLocation struct {
	Country string `json:"country"`
	City    string `json:"city"`
}

type VisitorDevice struct {
	Type     string `json:"type"`
	Browser  string `json:"browser"`
	OS       string `json:"os"`
	IsMobile bool   `json:"isMobile"`
}

// VisitorSummary is one row of the visitor list; each row is a session.
type VisitorSummary struct {
	ID                 uint            `json:"id"`
	VisitorID          string          `json:"visitorId"`
	Alias              string          `json:"alias"`
	SessionID          string          `json:"sessionId"`
	Location           VisitorLocation `json:"location"`
	Device             VisitorDevice   `json:"device"`
	FirstVisit         time.Time       `json:"firstVisit"`
	LastActivity       time.Time       `json:"lastActivity"`
	PageViews          int             `json:"pageViews"`
	TotalDuration      int64           `json:"totalDuration"`
	IsReturningVisitor bool            `json:"isReturningVisitor"`
	Source             string          `json:"source"`
	Medium             string          `json:"medium"`
	Bounced            bool            `json:"bounced"`
	// SessionDuration is TotalDuration in whole minutes, rounded.
	SessionDuration   int64      `json:"sessionDuration"`
	TotalInteractions int64      `json:"totalInteractions"`
	LastInteraction   *time.Time `json:"lastInteraction"`
}

type Pagination struct {
	CurrentPage int   `json:"currentPage"`
	TotalPages  int   `json:"totalPages"`
	TotalCount  int64 `json:"totalCount"`
	HasNext     bool  `json:"hasNext"`
	HasPrev     bool  `json:"hasPrev"`
}

// VisitorFilters echoes the effective filters back to the caller.
type VisitorFilters struct {
	SortBy      string     `json:"sortBy"`
	SortOrder   string     `json:"sortOrder"`
	DateFrom    *time.Time `json:"dateFrom"`
	DateTo      *time.Time `json:"dateTo"`
	Country     string     `json:"country,omitempty"`
	Device      string     `json:"device,omitempty"`
	IsReturning *bool      `json:"isReturning"`
}

type VisitorList struct {
	Visitors   []VisitorSummary `json:"visitors"`
	Pagination Pagination       `json:"pagination"`
	Filters    VisitorFilters   `json:"filters"`
}

type visitorRow struct {
	sessions.Session
	TotalInteractions int64
}

// ListVisitors pages through sessions with the list filters applied. Sorting
// by interactions orders the whole result set, not just the current page.
func ListVisitors(ctx context.Context, db *gorm.DB, q VisitorListQuery) (*VisitorList, error) {
	q.Normalize()
	db = db.WithContext(ctx)

	where, args := visitorFilters(q)

	var totalCount int64
	err := db.Raw("SELECT COUNT(*) FROM visitor_sessions s"+where, args...).Scan(&totalCount).Error
	if err != nil {
		return nil, fmt.Errorf("error counting visitors: %w", err)
	}

	order := sortColumns[q.SortBy] + " " + strings.ToUpper(q.SortOrder) + ", s.id DESC"
	query := `
        SELECT s.*, COALESCE(e.total_interactions, 0) AS total_interactions
        FROM visitor_sessions s
        LEFT JOIN (
            SELECT visitor_id, COUNT(*) AS total_interactions
            FROM events
            GROUP BY visitor_id
        ) e ON e.visitor_id = s.visitor_id` + where + `
        ORDER BY ` + order + `
        LIMIT ? OFFSET ?`

	var rows []visitorRow
	pageArgs := append(append([]any{}, args...), q.Limit, (q.Page-1)*q.Limit)
	if err := db.Raw(query, pageArgs...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("error fetching visitors: %w", err)
	}

	lastInteractions, err := getLastInteractions(db, rows)
	if err != nil {
		return nil, err
	}

	list := &VisitorList{
		Visitors: make([]VisitorSummary, 0, len(rows)),
		Pagination: Pagination{
			CurrentPage: q.Page,
			TotalPages:  int(math.Ceil(float64(totalCount) / float64(q.Limit))),
			TotalCount:  totalCount,
			HasNext:     int64(q.Page*q.Limit) < totalCount,
			HasPrev:     q.Page > 1,
		},
		Filters: VisitorFilters{
			SortBy:      q.SortBy,
			SortOrder:   q.SortOrder,
			DateFrom:    q.DateFrom,
			DateTo:      q.DateTo,
			Country:     q.Country,
			Device:      q.Device,
			IsReturning: q.IsReturning,
		},
	}
	for _, row := range rows {
		summary := summarize(row.Session)
		summary.TotalInteractions = row.TotalInteractions
		if t, ok := lastInteractions[row.VisitorID]; ok {
			summary.LastInteraction = &t
		}
		list.Visitors = append(list.Visitors, summary)
	}
	return list, nil
}

func visitorFilters(q VisitorListQuery) (string, []any) {
	var clauses []string
	var args []any

	if q.DateFrom != nil {
		clauses = append(clauses, "s.first_visit >= ?")
		args = append(args, q.DateFrom.UTC())
	}
	if q.DateTo != nil {
		clauses = append(clauses, "s.first_visit <= ?")
		args = append(args, q.DateTo.UTC())
	}
	if q.Country != "" {
		clauses = append(clauses, `LOWER(s.location_country) LIKE ? ESCAPE '\'`)
		args = append(args, containsPattern(q.Country))
	}
	if q.Device != "" {
		clauses = append(clauses, `LOWER(s.device_type) LIKE ? ESCAPE '\'`)
		args = append(args, containsPattern(q.Device))
	}
	if q.IsReturning != nil {
		clauses = append(clauses, "s.is_returning_visitor = ?")
		args = append(args, *q.IsReturning)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return "\n        WHERE " + strings.Join(clauses, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds a case-insensitive substring LIKE pattern.
func containsPattern(value string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(value)) + "%"
}

// getLastInteractions returns the newest event timestamp per visitor on
// the page.
func getLastInteractions(db *gorm.DB, rows []visitorRow) (map[string]time.Time, error) {
	out := make(map[string]time.Time)
	if len(rows) == 0 {
		return out, nil
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.VisitorID)
	}

	var latest []struct {
		VisitorID string
		Timestamp time.Time
	}
	err := db.Raw(`
        SELECT e.visitor_id, e.timestamp
        FROM events e
        WHERE e.visitor_id IN ?
        AND NOT EXISTS (
            SELECT 1 FROM events newer
            WHERE newer.visitor_id = e.visitor_id AND newer.timestamp > e.timestamp
        )
    `, ids).Scan(&latest).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching last interactions: %w", err)
	}
	for _, l := range latest {
		out[l.VisitorID] = l.Timestamp
	}
	return out, nil
}

func summarize(s sessions.Session) VisitorSummary {
	return VisitorSummary{
		ID:        s.ID,
		VisitorID: s.VisitorID,
		Alias:     visitors.Alias(s.VisitorID),
		SessionID: s.SessionID,
		Location: VisitorLocation{
			Country: orDefault(s.Location.Country, "Unknown"),
			City:    orDefault(s.Location.City, "Unknown"),
		},
		Device: VisitorDevice{
			Type:     orDefault(s.Device.Type, "Unknown"),
			Browser:  orDefault(s.Device.Browser, "Unknown"),
			OS:       orDefault(s.Device.OS, "Unknown"),
			IsMobile: s.Device.IsMobile,
		},
		FirstVisit:         s.FirstVisit,
		LastActivity:       s.LastActivity,
		PageViews:          s.PageViews,
		TotalDuration:      s.TotalDuration,
		IsReturningVisitor: s.IsReturningVisitor,
		Source:             orDefault(s.Source, "Direct"),
		Medium:             orDefault(s.Medium, "None"),
		Bounced:            s.Bounced || s.IsBounce(),
		SessionDuration:    int64(math.Round(float64(s.TotalDuration) / 60000)),
	}
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
