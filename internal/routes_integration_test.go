package internal

import (
	"reflect"
	"runtime"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/require"
)

func TestIngestionRoutesRateLimited(t *testing.T) {
	srv := testsupport.NewTestServer(t, testsupport.TestServerOptions{
		RouteMountFunc: MountAppRoutes,
	})
	routes := srv.App.GetRoutes(true)

	var eventRoute *fiber.Route
	for idx := range routes {
		route := routes[idx]
		if route.Method == fiber.MethodPost && route.Path == "/api/analytics/event" {
			eventRoute = &routes[idx]
			break
		}
	}

	require.NotNil(t, eventRoute, "expected event route to be registered")

	// The limiter is wrapped in a closure that only applies it in production,
	// so look for the wrapper defined in MountAppRoutes.
	hasRateLimiter := false
	var handlerNames []string
	for _, handler := range eventRoute.Handlers {
		name := runtime.FuncForPC(reflect.ValueOf(handler).Pointer()).Name()
		handlerNames = append(handlerNames, name)
		if strings.Contains(name, "middleware/limiter") || strings.Contains(name, "MountAppRoutes.func") {
			hasRateLimiter = true
			break
		}
	}

	require.Truef(t, hasRateLimiter, "expected rate limiter middleware for the event route, handlers: %v", handlerNames)
}

func TestAnalyticsRoutesRegistered(t *testing.T) {
	srv := testsupport.NewTestServer(t, testsupport.TestServerOptions{
		RouteMountFunc: MountAppRoutes,
	})

	registered := make(map[string]bool)
	for _, route := range srv.App.GetRoutes(true) {
		registered[route.Method+" "+route.Path] = true
	}

	expected := []string{
		"GET /_health",
		"HEAD /_health",
		"GET /metrics",
		"POST /api/analytics/session",
		"OPTIONS /api/analytics/session",
		"POST /api/analytics/pageview",
		"POST /api/analytics/pageview/beacon",
		"POST /api/analytics/event",
		"POST /api/analytics/event/beacon",
		"POST /api/analytics/form",
		"POST /api/analytics/error",
		"POST /api/analytics/performance",
		"GET /api/analytics/stats",
		"GET /api/analytics/visitors",
		"GET /api/analytics/visitors/:visitorId",
		"GET /api/analytics/settings/excluded-ips",
		"POST /api/analytics/settings/excluded-ips",
	}
	for _, route := range expected {
		require.Truef(t, registered[route], "expected %s to be registered", route)
	}
}
