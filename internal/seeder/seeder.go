package seeder

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"time"

	"github.com/karloscodes/cartridge"

	"hayzedd/internal/events"
	"hayzedd/internal/sessions"
	"hayzedd/internal/visitors"
)

// Seeder replays synthetic visitor journeys through the session store and
// the collector, so seeded data goes through the same code paths as real
// ingestion. Timestamps are spread over the last Days days by driving the
// store clock.
type Seeder struct {
	DBManager cartridge.DBManager
	Logger    *slog.Logger
	// Locator geolocates seeded sessions; nil leaves them Unknown.
	Locator   sessions.Locator
	PageViews int
	Days      int
	Domain    string

	now time.Time
}

// NewSeeder creates a new seeder instance
func NewSeeder(dbManager cartridge.DBManager, logger *slog.Logger, pageViews int) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{
		DBManager: dbManager,
		Logger:    logger,
		PageViews: pageViews,
		Days:      30,
		Domain:    "example.com",
	}
}

// Stats summarizes one seeding run.
type Stats struct {
	Sessions  int
	PageViews int
	Events    int
	Errors    int
}

// journeyTemplates are realistic paths through a marketing site.
var journeyTemplates = [][]string{
	{"/", "/about", "/contact"},
	{"/", "/features", "/pricing", "/signup"},
	{"/", "/blog", "/blog/article-1", "/signup"},
	{"/pricing", "/features", "/signup"},
	{"/", "/products", "/products/widget-a", "/products/gadget-b", "/pricing"},
	{"/", "/docs", "/docs/getting-started", "/docs/api-reference"},
	{"/", "/blog", "/blog/article-1", "/blog/article-2"},
	{"/", "/signup"},
	{"/", "/features", "/pricing", "/docs", "/signup"},
	{"/products", "/products/widget-a", "/pricing", "/signup"},
	{"/", "/about", "/features", "/pricing", "/docs/getting-started", "/signup"},
	{"/login", "/dashboard", "/settings"},
	{"/blog/article-1"},
	{"/"},
}

var goalEvents = []struct {
	action   string
	label    string
	metadata map[string]any
}{
	{action: "newsletter_signup", label: "footer", metadata: map[string]any{"source": "footer"}},
	{action: "purchase", label: "premium_plan", metadata: map[string]any{"price": 2999, "currency": "USD"}},
	{action: "demo_requested", label: "enterprise", metadata: map[string]any{"company": "Example Corp"}},
	{action: "account_created", label: "free", metadata: map[string]any{"source": "homepage"}},
	{action: "free_trial_started", label: "pro", metadata: map[string]any{"duration": "14_days"}},
}

var screens = []sessions.Screen{
	{Width: 1920, Height: 1080, ColorDepth: 24},
	{Width: 1440, Height: 900, ColorDepth: 30},
	{Width: 390, Height: 844, ColorDepth: 32},
	{Width: 820, Height: 1180, ColorDepth: 24},
}

var languages = []string{"en-US", "en-GB", "es-ES", "de-DE", "fr-FR"}

// Run generates sessions until roughly PageViews page views exist.
func (s *Seeder) Run(ctx context.Context) (Stats, error) {
	start := time.Now()
	s.Logger.Info("Seeding analytics data...",
		slog.String("domain", s.Domain),
		slog.Int("pageViews", s.PageViews),
		slog.Int("days", s.Days))

	store := sessions.NewStore(s.DBManager, s.Locator, s.Logger, sessions.WithClock(func() time.Time { return s.now }))
	collector := events.NewCollector(s.DBManager, store, s.Logger)

	ipPool := generateIPPool(100)
	userAgents := getUserAgents()
	referrers := getReferrers()

	// Session starts advance monotonically through the window so the store
	// clock never runs backwards for a fingerprint.
	span := time.Duration(max(s.Days, 1)) * 24 * time.Hour
	step := span / time.Duration(max(s.PageViews/3, 1))
	latest := time.Now().UTC().Add(-10 * time.Minute)
	sessionStart := latest.Add(-span)

	var stats Stats
	for stats.PageViews < s.PageViews {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}

		journey := journeyTemplates[rand.IntN(len(journeyTemplates))]
		ip := ipPool[rand.IntN(len(ipPool))]
		userAgent := userAgents[rand.IntN(len(userAgents))]
		language := languages[rand.IntN(len(languages))]

		sessionStart = sessionStart.Add(time.Duration(rand.Int64N(int64(2*step) + 1)))
		if sessionStart.After(latest) {
			sessionStart = latest
		}
		s.now = sessionStart

		entry := addUTMParams(addQueryParams(journey[0]))
		res, err := store.Resolve(ctx, visitors.Fingerprint(userAgent, ip, language, "gzip, deflate, br"), sessions.RequestContext{
			IPAddress:  ip,
			UserAgent:  userAgent,
			Language:   language,
			Timezone:   "UTC",
			Referrer:   referrers[rand.IntN(len(referrers))],
			CurrentURL: fmt.Sprintf("https://%s%s", s.Domain, entry),
			Screen:     screens[rand.IntN(len(screens))],
		})
		if err != nil {
			return stats, fmt.Errorf("resolve session: %w", err)
		}
		session := res.Session
		if res.IsNewSession {
			stats.Sessions++
		}

		for i, page := range journey {
			in := events.PageViewInput{
				SessionID: session.SessionID,
				VisitorID: session.VisitorID,
				Page:      page,
				Title:     page,
			}
			// The last page of a journey is left open, like a tab that was
			// closed before the duration could be sent.
			if i < len(journey)-1 {
				dwell := int64(rand.IntN(110_000) + 10_000)
				depth := rand.IntN(101)
				in.Duration = &dwell
				in.ScrollDepth = &depth
			}
			if _, err := collector.CollectPageView(ctx, in); err != nil {
				return stats, fmt.Errorf("collect page view: %w", err)
			}
			stats.PageViews++

			if rand.Float64() < 0.3 {
				s.collectEvent(ctx, collector, session, page, events.EventTypeEngagement, "scroll", "milestone", "50%")
				stats.Events++
			}
			if rand.Float64() < 0.05 {
				s.collectError(ctx, collector, session, page)
				stats.Errors++
			}
			if i == 0 {
				lcp := float64(rand.IntN(3000) + 800)
				_, _ = collector.CollectPerformance(ctx, events.PerformanceInput{
					SessionID:  session.SessionID,
					VisitorID:  session.VisitorID,
					MetricType: events.MetricWebVitals,
					MetricName: "LCP",
					Value:      lcp,
					Page:       page,
				})
			}

			if in.Duration != nil {
				s.now = s.now.Add(time.Duration(*in.Duration) * time.Millisecond)
			}
		}

		if rand.Float64() < 0.2 {
			goal := goalEvents[rand.IntN(len(goalEvents))]
			label := goal.label
			_, err := collector.CollectEvent(ctx, events.EventInput{
				SessionID:     session.SessionID,
				VisitorID:     session.VisitorID,
				EventType:     events.EventTypeConversion,
				EventCategory: "goal",
				EventAction:   goal.action,
				EventLabel:    &label,
				Page:          journey[len(journey)-1],
				Metadata:      goal.metadata,
			})
			if err == nil {
				stats.Events++
			}
		}
	}

	s.Logger.Info("Seeding completed",
		slog.Int("sessions", stats.Sessions),
		slog.Int("pageViews", stats.PageViews),
		slog.Int("events", stats.Events),
		slog.Duration("elapsed", time.Since(start)))
	return stats, nil
}

func (s *Seeder) collectEvent(ctx context.Context, c *events.Collector, session *sessions.Session, page, eventType, category, action, label string) {
	_, err := c.CollectEvent(ctx, events.EventInput{
		SessionID:     session.SessionID,
		VisitorID:     session.VisitorID,
		EventType:     eventType,
		EventCategory: category,
		EventAction:   action,
		EventLabel:    &label,
		Page:          page,
	})
	if err != nil {
		s.Logger.Error("Failed to collect event during seeding", slog.Any("error", err))
	}
}

func (s *Seeder) collectError(ctx context.Context, c *events.Collector, session *sessions.Session, page string) {
	severities := []string{events.SeverityLow, events.SeverityMedium, events.SeverityHigh, events.SeverityCritical}
	_, err := c.CollectError(ctx, events.ErrorInput{
		SessionID:    session.SessionID,
		VisitorID:    session.VisitorID,
		ErrorType:    "TypeError",
		ErrorMessage: "Cannot read properties of undefined (reading 'length')",
		Page:         page,
		Severity:     severities[rand.IntN(len(severities))],
	})
	if err != nil {
		s.Logger.Error("Failed to collect error during seeding", slog.Any("error", err))
	}
}

// generateIPPool creates a pool of unique public-looking IPv4 addresses
func generateIPPool(count int) []string {
	seen := make(map[string]bool)
	var ips []string
	for len(ips) < count {
		ip := fmt.Sprintf("%d.%d.%d.%d", rand.IntN(200)+11, rand.IntN(256), rand.IntN(256), rand.IntN(254)+1)
		if !seen[ip] {
			seen[ip] = true
			ips = append(ips, ip)
		}
	}
	return ips
}

// getUserAgents returns a list of common user agent strings
func getUserAgents() []string {
	return []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
		"Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
		"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
		"Mozilla/5.0 (iPad; CPU OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
	}
}

// getReferrers returns a list of common referrers
func getReferrers() []string {
	return []string{
		"", // Direct visit
		"https://google.com/",
		"https://bing.com/",
		"https://duckduckgo.com/",
		"https://news.ycombinator.com/",
		"https://twitter.com/",
		"https://github.com/",
		"https://some-other-website.com/blog/post",
	}
}

// addQueryParams adds random query parameters to a path
func addQueryParams(path string) string {
	if rand.IntN(10) < 7 {
		return path
	}

	params := url.Values{}
	possibleParams := []string{"ref", "source", "id", "query", "page"}
	for i := 0; i < rand.IntN(3)+1; i++ {
		params.Add(possibleParams[rand.IntN(len(possibleParams))], fmt.Sprintf("value%d", rand.IntN(100)))
	}
	return path + "?" + params.Encode()
}

// addUTMParams tags roughly one in five entry pages with a campaign.
func addUTMParams(path string) string {
	if rand.IntN(10) < 8 {
		return path
	}

	u, err := url.Parse(path)
	if err != nil {
		return path
	}
	params := u.Query()

	utms := []struct {
		key    string
		values []string
	}{
		{"utm_source", []string{"google", "facebook", "newsletter", "twitter", "linkedin"}},
		{"utm_medium", []string{"cpc", "social", "email", "organic", "referral"}},
		{"utm_campaign", []string{"spring_sale", "product_launch", "dev_outreach", "q4_promo"}},
		{"utm_term", []string{"analytics_software", "web_tracking", ""}},
		{"utm_content", []string{"sidebar_ad", "header_link", ""}},
	}
	for _, utm := range utms {
		if value := utm.values[rand.IntN(len(utm.values))]; value != "" {
			params.Set(utm.key, value)
		}
	}

	u.RawQuery = params.Encode()
	return u.String()
}
