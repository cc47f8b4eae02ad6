package internal

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"

	v1 "hayzedd/api/v1"
	"hayzedd/internal/config"
	"hayzedd/internal/events"
	"hayzedd/internal/http"
	"hayzedd/internal/http/middleware"
	"hayzedd/internal/pkg/geoip"
	"hayzedd/internal/sessions"
)

// publicCORSConfig is shared by every ingestion endpoint. The tracker runs
// on arbitrary origins, so any origin may post.
var publicCORSConfig = &cors.Config{
	AllowOrigins: "*",
	AllowMethods: "POST,GET,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Authorization, Referrer, User-Agent",
}

// NewLocator builds the geolocation chain: the local GeoLite2 database
// first, then the HTTP lookup service when one is configured.
func NewLocator(cfg *config.Config, logger *slog.Logger) *geoip.Locator {
	return geoip.NewLocator(logger,
		geoip.NewLocalProvider(),
		geoip.NewHTTPProvider(geoip.HTTPProviderOptions{
			BaseURL: cfg.GeoAPIURL,
			Timeout: time.Duration(cfg.GeoAPITimeoutMs) * time.Millisecond,
			Logger:  logger,
		}),
	)
}

// MountAppRoutes mounts all application routes using cartridge's route API
func MountAppRoutes(srv *cartridge.Server) {
	cfg := config.GetConfig()
	logger := srv.GetLogger()
	dbManager := srv.GetDBManager()

	store := sessions.NewStore(dbManager, NewLocator(cfg, logger), logger,
		sessions.WithWindow(time.Duration(cfg.GetSessionTimeout())*time.Second))
	collector := events.NewCollector(dbManager, store, logger)
	handler := v1.NewHandler(store, collector)

	// Rate limiting only applies in production; in development and test it
	// would interfere with load generation and tests.
	conditionalRateLimiter := func(limiter fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() {
				return limiter(c)
			}
			return c.Next()
		}
	}

	// A page load is one session call plus a handful of page view and event
	// posts, so 120/min per IP leaves room for busy single-page apps.
	publicRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(120),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// Stricter limit on the key-protected API to slow down key guessing.
	adminRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(30),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// Ingestion: CORS + rate limiting + the global Sec-Fetch-Site check.
	// CORS runs first so 403 responses still carry CORS headers.
	publicAPIConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		CustomMiddleware: []fiber.Handler{publicRateLimiter},
		CORSConfig:       publicCORSConfig,
	}

	// Read side: dashboards and scripts call it server to server, so no
	// Sec-Fetch-Site; the admin key gates it instead.
	adminAPIConfig := &cartridge.RouteConfig{
		EnableSecFetchSite: cartridge.Bool(false),
		CustomMiddleware: []fiber.Handler{
			adminRateLimiter,
			middleware.AdminKeyAuth(cfg.AdminKey, logger),
		},
	}

	// Health check endpoint
	srv.Get("/_health", http.HealthIndexAction)
	srv.Head("/_health", http.HealthIndexAction)

	srv.Get("/metrics", http.MetricsIndexAction, adminAPIConfig)

	prefix := cfg.APIPrefix

	// === INGESTION ===
	ingest := []struct {
		path   string
		action func(*cartridge.Context) error
	}{
		{"/session", handler.CreateSessionAction},
		{"/pageview", handler.CreatePageViewAction},
		{"/pageview/beacon", handler.PageViewBeaconAction},
		{"/event", handler.CreateEventAction},
		{"/event/beacon", handler.EventBeaconAction},
		{"/form", handler.CreateFormAction},
		{"/error", handler.CreateErrorAction},
		{"/performance", handler.CreatePerformanceAction},
	}
	for _, route := range ingest {
		srv.Post(prefix+route.path, route.action, publicAPIConfig)
		srv.Options(prefix+route.path, v1.PreflightAction, publicAPIConfig)
	}

	// === READ API ===
	srv.Get(prefix+"/stats", handler.StatsAction, adminAPIConfig)
	srv.Get(prefix+"/visitors", handler.VisitorsAction, adminAPIConfig)
	srv.Get(prefix+"/visitors/:visitorId", handler.VisitorDetailAction, adminAPIConfig)

	// === SETTINGS ===
	srv.Get(prefix+"/settings/excluded-ips", http.ExcludedIPsIndexAction, adminAPIConfig)
	srv.Post(prefix+"/settings/excluded-ips", http.ExcludedIPsUpdateAction, adminAPIConfig)
}
