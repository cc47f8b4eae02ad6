package middleware_test

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"hayzedd/internal/http/middleware"
	"hayzedd/internal/testsupport"
)

func newGuardedApp(storedKey string) *fiber.App {
	app := fiber.New()
	app.Get("/stats", middleware.AdminKeyAuth(storedKey, testsupport.GetLogger()), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func TestAdminKeyAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	tests := []struct {
		name       string
		storedKey  string
		headers    map[string]string
		wantStatus int
	}{
		{"bearer plain key", "s3cret", map[string]string{"Authorization": "Bearer s3cret"}, fiber.StatusOK},
		{"header plain key", "s3cret", map[string]string{middleware.AdminKeyHeader: "s3cret"}, fiber.StatusOK},
		{"bearer hashed key", string(hash), map[string]string{"Authorization": "Bearer s3cret"}, fiber.StatusOK},
		{"wrong key", "s3cret", map[string]string{"Authorization": "Bearer guess"}, fiber.StatusUnauthorized},
		{"wrong key against hash", string(hash), map[string]string{middleware.AdminKeyHeader: "guess"}, fiber.StatusUnauthorized},
		{"hash itself is not a key", string(hash), map[string]string{middleware.AdminKeyHeader: string(hash)}, fiber.StatusUnauthorized},
		{"missing key", "s3cret", nil, fiber.StatusUnauthorized},
		{"basic auth ignored", "s3cret", map[string]string{"Authorization": "Basic s3cret"}, fiber.StatusUnauthorized},
		{"not configured", "", map[string]string{"Authorization": "Bearer anything"}, fiber.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/stats", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			resp, err := newGuardedApp(tt.storedKey).Test(req, 30000)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}
