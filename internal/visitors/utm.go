package visitors

import (
	"net/url"
	"strings"
)

// UTM holds campaign attribution parsed from a landing URL. Empty fields
// mean the parameter was absent.
type UTM struct {
	Source   string `json:"source,omitempty"`
	Medium   string `json:"medium,omitempty"`
	Campaign string `json:"campaign,omitempty"`
	Term     string `json:"term,omitempty"`
	Content  string `json:"content,omitempty"`
}

// ParseUTM extracts the utm_* query parameters. Malformed URLs yield an
// empty UTM.
func ParseUTM(rawURL string) UTM {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return UTM{}
	}
	q := u.Query()
	return UTM{
		Source:   q.Get("utm_source"),
		Medium:   q.Get("utm_medium"),
		Campaign: q.Get("utm_campaign"),
		Term:     q.Get("utm_term"),
		Content:  q.Get("utm_content"),
	}
}
