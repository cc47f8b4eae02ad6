package tracker

import (
	"fmt"
	"strings"
	"time"
)

// Scroll milestones, in percent of the page.
var scrollMilestones = []int{25, 50, 75, 90, 100}

// TrackPageView closes the current page, sending its duration, and starts
// timing page. An empty page means the environment's current path.
func (c *Client) TrackPageView(page, title string) {
	if page == "" || title == "" {
		ctx := c.opts.Environment.PageContext()
		if page == "" {
			page = ctx.Path()
		}
		if title == "" {
			title = ctx.Title
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.flushPageLocked()

	c.page = page
	c.title = title
	c.pageStart = c.opts.Now()
	c.maxScroll = 0
	c.milestones = make(map[int]bool)

	c.enqueue("/pageview", &pageViewRecord{
		Page:     page,
		Title:    title,
		Referrer: c.opts.Environment.PageContext().Referrer,
	})
}

// flushPageLocked sends the running page's duration. c.mu must be held.
func (c *Client) flushPageLocked() {
	if c.page == "" || c.pageStart.IsZero() {
		return
	}
	c.enqueue("/pageview", c.closingPageViewLocked())
}

func (c *Client) closingPageViewLocked() *pageViewRecord {
	duration := c.opts.Now().Sub(c.pageStart).Milliseconds()
	if duration < 0 {
		duration = 0
	}
	rec := &pageViewRecord{
		Page:     c.page,
		Title:    c.title,
		Duration: &duration,
	}
	if c.maxScroll > 0 {
		depth := c.maxScroll
		rec.ScrollDepth = &depth
	}
	return rec
}

// TrackEvent records a custom event on the current page.
func (c *Client) TrackEvent(eventType, category, action, label string, value *float64, metadata map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trackEventLocked(eventType, category, action, label, value, metadata)
}

func (c *Client) trackEventLocked(eventType, category, action, label string, value *float64, metadata map[string]any) {
	if !c.opts.TrackEvents {
		return
	}
	page := c.page
	if page == "" {
		page = c.opts.Environment.PageContext().Path()
	}
	c.enqueue("/event", &eventRecord{
		EventType:     eventType,
		EventCategory: category,
		EventAction:   action,
		EventLabel:    label,
		EventValue:    value,
		Page:          page,
		Metadata:      metadata,
	})
}

// HandleClick reports a click on el as interaction/<category>/click.
func (c *Client) HandleClick(el Element) {
	if !c.opts.TrackClicks {
		return
	}

	category := Classify(el.Tag, el.InForm)
	label := strings.TrimSpace(el.Text)
	if label == "" {
		label = el.attr("aria-label")
	}
	metadata := map[string]any{
		"tagName":   strings.ToLower(el.Tag),
		"className": el.ClassName,
		"id":        el.ID,
	}

	switch category {
	case CategoryLink:
		href := el.attr("href")
		if href != "" {
			label = href
		}
		metadata["href"] = href
		metadata["external"] = c.isExternal(href)
	case CategoryButton:
		metadata["type"] = el.attr("type")
	case CategoryFormElement:
		metadata["formId"] = el.FormID
	}

	c.TrackEvent("interaction", string(category), "click", label, nil, metadata)
}

func (c *Client) isExternal(href string) bool {
	if !strings.HasPrefix(href, "http") {
		return false
	}
	host := hostOf(c.opts.Environment.PageContext().URL)
	return host == "" || !strings.Contains(href, host)
}

// HandleScroll takes the current scroll position in percent and reports
// each milestone the first time it is reached.
func (c *Client) HandleScroll(percent int) {
	if !c.opts.TrackScrolling {
		return
	}
	percent = min(max(percent, 0), 100)

	c.mu.Lock()
	defer c.mu.Unlock()

	if percent <= c.maxScroll {
		return
	}
	c.maxScroll = percent

	for _, m := range scrollMilestones {
		if percent < m || c.milestones[m] {
			continue
		}
		c.milestones[m] = true
		value := float64(m)
		c.trackEventLocked("engagement", "scroll", "milestone", fmt.Sprintf("%d%%", m), &value, nil)
	}
}

// Form is the target of a submit event.
type Form struct {
	ID        string
	ClassName string
	Method    string
	Action    string
}

// HandleFormSubmit reports a form submission as interaction/form/submit.
func (c *Client) HandleFormSubmit(f Form) {
	if !c.opts.TrackFormSubmissions {
		return
	}

	label := f.ID
	if label == "" {
		label = f.ClassName
	}
	if label == "" {
		label = "unnamed-form"
	}
	c.TrackEvent("interaction", "form", "submit", label, nil, map[string]any{
		"formId":     f.ID,
		"formClass":  f.ClassName,
		"formMethod": f.Method,
		"formAction": f.Action,
	})
}

// HandleFocus reports focus on input, textarea and select elements.
func (c *Client) HandleFocus(el Element) {
	if !c.opts.TrackFormSubmissions || !isFormField(el.Tag) {
		return
	}

	name := el.attr("name")
	label := name
	if label == "" {
		label = el.ID
	}
	fieldType := el.attr("type")
	if fieldType == "" {
		fieldType = strings.ToLower(el.Tag)
	}
	c.TrackEvent("interaction", "form-field", "focus", label, nil, map[string]any{
		"fieldType": fieldType,
		"formId":    el.FormID,
		"fieldName": name,
	})
}

// HandleVisibilityChange flushes the page duration when the page is hidden
// and restarts the timer when it becomes visible again. While hidden, no
// time accrues to the page. A visible notice for a page that was never
// hidden keeps the running timer.
func (c *Client) HandleVisibilityChange(hidden bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if hidden {
		c.flushPageLocked()
		// The duration is accounted for; nothing more until visible again.
		c.pageStart = time.Time{}
		c.trackEventLocked("engagement", "page", "hidden", "", nil, nil)
		return
	}
	if c.pageStart.IsZero() {
		c.pageStart = c.opts.Now()
	}
	c.trackEventLocked("engagement", "page", "visible", "", nil, nil)
}

// HandleUnload sends the closing page view through the beacon. Nothing is
// sent before the session is known.
func (c *Client) HandleUnload() {
	c.mu.Lock()
	if c.state != stateReady || c.page == "" || c.pageStart.IsZero() {
		c.mu.Unlock()
		return
	}
	rec := c.closingPageViewLocked()
	rec.stamp(c.session)
	path := c.opts.APIEndpoint + "/pageview/beacon"
	c.mu.Unlock()

	c.opts.Beacon.Send(path, rec)
}
