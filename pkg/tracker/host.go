package tracker

import (
	"context"
	"net/url"
)

// Screen is the display the page is rendered on.
type Screen struct {
	Width      int `json:"width"`
	Height     int `json:"height"`
	ColorDepth int `json:"colorDepth"`
}

// PageContext is what the host page knows about itself.
type PageContext struct {
	Screen   Screen
	Language string
	Timezone string
	Referrer string
	URL      string
	Title    string
}

// Path is the path component of URL, or "/" when it cannot be parsed.
func (p PageContext) Path() string {
	u, err := url.Parse(p.URL)
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}

// Environment exposes the host page to the tracker. Browsers back it with
// window, navigator and document; servers and tests use StaticEnvironment.
type Environment interface {
	PageContext() PageContext
}

// StaticEnvironment is an Environment that never changes.
type StaticEnvironment PageContext

func (e StaticEnvironment) PageContext() PageContext {
	return PageContext(e)
}

// Transport delivers one JSON record to the collector. out, when not nil,
// receives the decoded response body.
type Transport interface {
	Send(ctx context.Context, path string, payload, out any) error
}

// Beacon is a fire-and-forget delivery that must survive the caller going
// away, like navigator.sendBeacon during page unload.
type Beacon interface {
	Send(path string, payload any)
}
