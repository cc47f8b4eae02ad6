package events

import "time"

// Coarse event types sent by the tracker.
const (
	EventTypeInteraction = "interaction"
	EventTypeEngagement  = "engagement"
	EventTypeError       = "error"
	EventTypeTiming      = "timing"
	EventTypeMedia       = "media"
	EventTypeConversion  = "conversion"
)

// Error severities.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Performance metric families.
const (
	MetricWebVitals  = "web-vitals"
	MetricNavigation = "navigation"
	MetricResource   = "resource"
	MetricCustom     = "custom"
)

// PageView is one page visited within a session. Device and country are
// copied from the session so page level queries do not need a join.
type PageView struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID   string    `gorm:"index;size:40;not null" json:"sessionId"`
	VisitorID   string    `gorm:"index:idx_page_views_visitor_timestamp,priority:1;size:32;not null" json:"visitorId"`
	Page        string    `gorm:"index;not null" json:"page"`
	Title       string    `json:"title"`
	Referrer    string    `json:"referrer,omitempty"`
	Timestamp   time.Time `gorm:"index:idx_page_views_visitor_timestamp,priority:2;index;not null" json:"timestamp"`
	Duration    *int64    `json:"duration,omitempty"`
	ScrollDepth *int      `json:"scrollDepth,omitempty"`
	DeviceType  string    `json:"deviceType,omitempty"`
	Browser     string    `json:"browser,omitempty"`
	OS          string    `json:"os,omitempty"`
	Country     string    `json:"country,omitempty"`
	CreatedAt   time.Time `json:"-"`
}

// Event is a discrete interaction. Rows are never updated.
type Event struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID     string    `gorm:"index;size:40;not null" json:"sessionId"`
	VisitorID     string    `gorm:"index:idx_events_visitor_timestamp,priority:1;size:32;not null" json:"visitorId"`
	EventType     string    `gorm:"index;not null" json:"eventType"`
	EventCategory string    `gorm:"index:idx_events_category_action,priority:1;not null" json:"eventCategory"`
	EventAction   string    `gorm:"index:idx_events_category_action,priority:2;not null" json:"eventAction"`
	EventLabel    *string   `json:"eventLabel,omitempty"`
	EventValue    *float64  `json:"eventValue,omitempty"`
	Page          string    `json:"page"`
	Timestamp     time.Time `gorm:"index:idx_events_visitor_timestamp,priority:2;index;not null" json:"timestamp"`
	Metadata      string    `gorm:"type:text" json:"metadata,omitempty"`
	CreatedAt     time.Time `json:"-"`
}

type FormSubmission struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID      string    `gorm:"index;size:40;not null" json:"sessionId"`
	VisitorID      string    `gorm:"index;size:32;not null" json:"visitorId"`
	FormID         string    `json:"formId"`
	FormName       string    `json:"formName"`
	Success        bool      `json:"success"`
	Fields         string    `gorm:"type:text" json:"fields,omitempty"`
	CompletionTime *int64    `json:"completionTime,omitempty"`
	Page           string    `json:"page"`
	Timestamp      time.Time `gorm:"index;not null" json:"timestamp"`
	CreatedAt      time.Time `json:"-"`
}

type ErrorEvent struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID    string    `gorm:"index;size:40;not null" json:"sessionId"`
	VisitorID    string    `gorm:"index;size:32;not null" json:"visitorId"`
	ErrorType    string    `gorm:"index;not null" json:"errorType"`
	ErrorMessage string    `gorm:"type:text;not null" json:"errorMessage"`
	ErrorStack   string    `gorm:"type:text" json:"errorStack,omitempty"`
	Page         string    `json:"page,omitempty"`
	UserAction   string    `json:"userAction,omitempty"`
	Severity     string    `gorm:"not null;default:medium" json:"severity"`
	Timestamp    time.Time `gorm:"index;not null" json:"timestamp"`
	CreatedAt    time.Time `json:"-"`
}

type PerformanceMetric struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID      string    `gorm:"index;size:40;not null" json:"sessionId"`
	VisitorID      string    `gorm:"index;size:32;not null" json:"visitorId"`
	MetricType     string    `gorm:"index;not null" json:"metricType"`
	MetricName     string    `gorm:"index;not null" json:"metricName"`
	Value          float64   `json:"value"`
	Page           string    `json:"page,omitempty"`
	AdditionalData string    `gorm:"type:text" json:"additionalData,omitempty"`
	Timestamp      time.Time `gorm:"index;not null" json:"timestamp"`
	CreatedAt      time.Time `json:"-"`
}

// Models lists every ingestion table, for migrations.
func Models() []any {
	return []any{
		&PageView{},
		&Event{},
		&FormSubmission{},
		&ErrorEvent{},
		&PerformanceMetric{},
	}
}
