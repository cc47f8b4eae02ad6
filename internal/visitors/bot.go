package visitors

import (
	"strings"

	"hayzedd/internal/pkg/user_agent"
)

// Substrings checked after the bot rules; covers link preview fetchers and
// scripted clients.
var botKeywords = []string{
	"bot", "crawler", "spider", "scraper",
	"facebookexternalhit", "twitter", "linkedin", "whatsapp", "telegram",
	"headlesschrome", "python-requests", "curl/", "wget/",
}

// IsBot reports whether the user agent belongs to an automated client.
// Bots still get sessions; the flag only feeds logs and metrics.
func IsBot(userAgent string) bool {
	if user_agent.ParseUserAgent(userAgent).Bot {
		return true
	}
	lower := strings.ToLower(userAgent)
	for _, k := range botKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}
