package middleware

import (
	"crypto/subtle"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

// AdminKeyHeader is the alternative to an Authorization bearer token.
const AdminKeyHeader = "X-Analytics-Key"

// AdminKeyAuth guards the read-side endpoints with one shared secret.
// Clients send it as "Authorization: Bearer <key>" or in X-Analytics-Key.
// storedKey may be the plain key or a bcrypt hash of it.
func AdminKeyAuth(storedKey string, logger *slog.Logger) fiber.Handler {
	hashed := isBcryptHash(storedKey)

	return func(c *fiber.Ctx) error {
		if storedKey == "" {
			logger.Warn("Admin key not configured, refusing read access", slog.String("path", c.Path()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Admin key not configured. Set HAYZEDD_ADMIN_KEY.",
				"code":  "UNAUTHORIZED",
			})
		}

		providedKey := ProvidedKey(c)
		if providedKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing admin key. Expected: Authorization: Bearer <key> or " + AdminKeyHeader,
				"code":  "UNAUTHORIZED",
			})
		}

		if !matches(providedKey, storedKey, hashed) {
			logger.Warn("Rejected admin key", slog.String("ip", c.IP()), slog.String("path", c.Path()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid admin key",
				"code":  "UNAUTHORIZED",
			})
		}

		return c.Next()
	}
}

// ProvidedKey extracts the key from the request, bearer token first.
func ProvidedKey(c *fiber.Ctx) string {
	if authHeader := c.Get(fiber.HeaderAuthorization); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return strings.TrimSpace(c.Get(AdminKeyHeader))
}

func matches(provided, stored string, hashed bool) bool {
	if hashed {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(provided)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(stored)) == 1
}

func isBcryptHash(s string) bool {
	if len(s) != 60 {
		return false
	}
	_, err := bcrypt.Cost([]byte(s))
	return err == nil
}
