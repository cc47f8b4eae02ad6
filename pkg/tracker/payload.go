package tracker

// Wire records, matching the collector's JSON bodies.

type sessionRequest struct {
	Screen     Screen `json:"screen"`
	Language   string `json:"language,omitempty"`
	Timezone   string `json:"timezone,omitempty"`
	Referrer   string `json:"referrer,omitempty"`
	CurrentURL string `json:"currentUrl,omitempty"`
}

type sessionResponse struct {
	Success            bool   `json:"success"`
	SessionID          string `json:"sessionId"`
	VisitorID          string `json:"visitorId"`
	IsReturningVisitor bool   `json:"isReturningVisitor"`
	IsNewSession       bool   `json:"isNewSession"`
}

// record is a payload that gets its session ids once they are known.
type record interface {
	stamp(s SessionData)
}

type ids struct {
	SessionID string `json:"sessionId"`
	VisitorID string `json:"visitorId"`
}

func (i *ids) stamp(s SessionData) {
	i.SessionID = s.SessionID
	i.VisitorID = s.VisitorID
}

type pageViewRecord struct {
	ids
	Page        string `json:"page"`
	Title       string `json:"title,omitempty"`
	Referrer    string `json:"referrer,omitempty"`
	Duration    *int64 `json:"duration,omitempty"`
	ScrollDepth *int   `json:"scrollDepth,omitempty"`
}

type eventRecord struct {
	ids
	EventType     string         `json:"eventType"`
	EventCategory string         `json:"eventCategory"`
	EventAction   string         `json:"eventAction"`
	EventLabel    string         `json:"eventLabel,omitempty"`
	EventValue    *float64       `json:"eventValue,omitempty"`
	Page          string         `json:"page,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

type formRecord struct {
	ids
	FormID         string   `json:"formId,omitempty"`
	FormName       string   `json:"formName,omitempty"`
	Success        bool     `json:"success"`
	Fields         []string `json:"fields,omitempty"`
	CompletionTime *int64   `json:"completionTime,omitempty"`
	Page           string   `json:"page,omitempty"`
}

type errorRecord struct {
	ids
	ErrorType    string `json:"errorType"`
	ErrorMessage string `json:"errorMessage"`
	ErrorStack   string `json:"errorStack,omitempty"`
	Page         string `json:"page,omitempty"`
	UserAction   string `json:"userAction,omitempty"`
	Severity     string `json:"severity,omitempty"`
}

type performanceRecord struct {
	ids
	MetricType     string         `json:"metricType"`
	MetricName     string         `json:"metricName"`
	Value          float64        `json:"value"`
	Page           string         `json:"page,omitempty"`
	AdditionalData map[string]any `json:"additionalData,omitempty"`
}
