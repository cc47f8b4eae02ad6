package tracker

import (
	"net/url"
	"time"
)

func floatPtr(v float64) *float64 {
	return &v
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func (c *Client) TrackDownload(filename, fileURL string) {
	c.TrackEvent("interaction", "download", "click", filename, nil, map[string]any{"url": fileURL})
}

func (c *Client) TrackOutboundLink(linkURL, label string) {
	if label == "" {
		label = linkURL
	}
	c.TrackEvent("interaction", "outbound-link", "click", label, nil, map[string]any{"url": linkURL})
}

// TrackSearch records a search; results < 0 means unknown.
func (c *Client) TrackSearch(query string, results int) {
	var value *float64
	if results >= 0 {
		value = floatPtr(float64(results))
	}
	c.TrackEvent("interaction", "search", "query", query, value, nil)
}

func (c *Client) TrackVideoPlay(title string, duration time.Duration) {
	c.TrackEvent("media", "video", "play", title, floatPtr(duration.Seconds()), nil)
}

func (c *Client) TrackVideoComplete(title string, duration time.Duration) {
	c.TrackEvent("media", "video", "complete", title, floatPtr(duration.Seconds()), nil)
}

// TrackError records an error as an event; errorType defaults to "javascript".
func (c *Client) TrackError(message, errorType string) {
	if errorType == "" {
		errorType = "javascript"
	}
	c.TrackEvent("error", errorType, "error", message, nil, nil)
}

func (c *Client) TrackTiming(category, variable string, elapsed time.Duration, label string) {
	c.TrackEvent("timing", category, variable, label, floatPtr(float64(elapsed.Milliseconds())), nil)
}

// TrackClick records a click that did not come from HandleClick.
func (c *Client) TrackClick(category, label string, metadata map[string]any) {
	if category == "" {
		category = string(CategoryGeneric)
	}
	c.TrackEvent("interaction", category, "click", label, nil, metadata)
}

// FormSubmission is a completed or failed form, sent to the form endpoint.
type FormSubmission struct {
	FormID         string
	FormName       string
	Fields         []string
	CompletionTime time.Duration
}

// TrackFormSubmit stores a form submission record.
func (c *Client) TrackFormSubmit(f FormSubmission, success bool) {
	if !c.opts.TrackFormSubmissions {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	rec := &formRecord{
		FormID:   f.FormID,
		FormName: f.FormName,
		Success:  success,
		Fields:   f.Fields,
		Page:     c.currentPageLocked(),
	}
	if f.CompletionTime > 0 {
		ms := f.CompletionTime.Milliseconds()
		rec.CompletionTime = &ms
	}
	c.enqueue("/form", rec)
}

// ErrorReport is a structured error sent to the error endpoint.
type ErrorReport struct {
	Type       string
	Message    string
	Stack      string
	UserAction string
	// Severity is low, medium, high or critical. Empty means medium.
	Severity string
}

func (c *Client) ReportError(r ErrorReport) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.enqueue("/error", &errorRecord{
		ErrorType:    r.Type,
		ErrorMessage: r.Message,
		ErrorStack:   r.Stack,
		Page:         c.currentPageLocked(),
		UserAction:   r.UserAction,
		Severity:     r.Severity,
	})
}

// TrackPerformance records one measurement, e.g. ("web-vitals", "LCP", 1830).
func (c *Client) TrackPerformance(metricType, name string, value float64, data map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.enqueue("/performance", &performanceRecord{
		MetricType:     metricType,
		MetricName:     name,
		Value:          value,
		Page:           c.currentPageLocked(),
		AdditionalData: data,
	})
}

func (c *Client) currentPageLocked() string {
	if c.page != "" {
		return c.page
	}
	return c.opts.Environment.PageContext().Path()
}
