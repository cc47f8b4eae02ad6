package v1

import (
	"bytes"
	"errors"
	"log/slog"
	"net"
	"net/netip"
	"strings"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"

	"hayzedd/internal/pkg/geoip"
	"hayzedd/internal/validation"
)

// Error codes of the JSON error body.
const (
	codeInvalidJSON     = "INVALID_JSON"
	codeValidationError = "VALIDATION_ERROR"
	codeStorageError    = "STORAGE_ERROR"
	codeExcluded        = "EXCLUDED"
	codeNotFound        = "NOT_FOUND"
)

var errEmptyBody = errors.New("empty request body")

// decodeBody unmarshals the raw body whatever the content type, so
// text/plain beacon payloads decode like JSON posts.
func decodeBody(c *fiber.Ctx, dst any) error {
	body := bytes.TrimSpace(c.Body())
	if len(body) == 0 {
		return errEmptyBody
	}
	return json.Unmarshal(body, dst)
}

// bindAndValidate decodes the body into dst and validates it. On failure
// the 400 response has already been written and handled is true.
func bindAndValidate(c *fiber.Ctx, dst any) (handled bool, err error) {
	if err := decodeBody(c, dst); err != nil {
		return true, respondError(c, fiber.StatusBadRequest, codeInvalidJSON, "Invalid JSON body")
	}
	if err := validation.Struct(dst); err != nil {
		return true, respondValidation(c, err)
	}
	return false, nil
}

func respondError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   message,
		"code":    code,
	})
}

func respondValidation(c *fiber.Ctx, err error) error {
	body := fiber.Map{
		"success": false,
		"error":   "Missing or invalid fields",
		"code":    codeValidationError,
	}
	var vErr *validation.Error
	if errors.As(err, &vErr) {
		body["fields"] = vErr.Fields
	} else {
		body["error"] = err.Error()
	}
	return c.Status(fiber.StatusBadRequest).JSON(body)
}

func respondStorage(c *fiber.Ctx, message string) error {
	return respondError(c, fiber.StatusInternalServerError, codeStorageError, message)
}

// userAgent prefers X-Forwarded-User-Agent, set by server-side proxies that
// relay a browser's hit.
func userAgent(c *fiber.Ctx) string {
	if forwardedUA := c.Get("X-Forwarded-User-Agent"); forwardedUA != "" {
		return forwardedUA
	}
	return c.Get(fiber.HeaderUserAgent)
}

// primaryLanguage returns the first tag of an Accept-Language header.
func primaryLanguage(acceptLanguage string) string {
	first := strings.TrimSpace(strings.Split(acceptLanguage, ",")[0])
	if i := strings.Index(first, ";"); i >= 0 {
		first = strings.TrimSpace(first[:i])
	}
	if first == "*" {
		return ""
	}
	return first
}

func getClientIP(c *fiber.Ctx) string {
	// Try standard headers first
	if ip := selectPreferredIP(strings.Split(c.Get("X-Forwarded-For"), ",")); ip != "" {
		return ip
	}

	// Other reverse-proxy headers
	for _, header := range []string{
		"X-Real-IP",
		"CF-Connecting-IP",
		"True-Client-IP",
		"X-Client-IP",
	} {
		if value := c.Get(header); value != "" {
			if ip := selectPreferredIP([]string{value}); ip != "" {
				return ip
			}
		}
	}

	if forwarded := c.Get("Forwarded"); forwarded != "" {
		if ip := selectPreferredIP(parseForwardedHeader(forwarded)); ip != "" {
			return ip
		}
	}

	// Try the remote address from the request directly
	remoteAddr := c.Context().RemoteAddr().String()
	if remoteAddr != "" {
		host, _, err := net.SplitHostPort(remoteAddr)
		if err != nil {
			host = remoteAddr
		}
		if parsedIP := net.ParseIP(host); parsedIP != nil && !geoip.IsPrivateIP(parsedIP) {
			return host
		}
	}

	// Finally, use Fiber's built-in method
	ip := strings.TrimSpace(c.IP())
	if parsedIP := net.ParseIP(ip); parsedIP != nil && !geoip.IsPrivateIP(parsedIP) {
		return ip
	}

	slog.Default().Debug("Fallback to loopback IP for request", slog.String("path", c.Path()))
	return "127.0.0.1"
}

func selectPreferredIP(values []string) string {
	var ipv6Fallback string

	for _, raw := range values {
		clean, parsed := normalizeIP(raw)
		if parsed == nil || geoip.IsPrivateIP(parsed) {
			continue
		}

		if parsed.To4() != nil {
			return clean
		}

		if ipv6Fallback == "" {
			ipv6Fallback = clean
		}
	}

	return ipv6Fallback
}

func normalizeIP(raw string) (string, net.IP) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"")
	if clean == "" {
		return "", nil
	}

	// Remove zone identifier if present (e.g. fe80::1%eth0)
	if percent := strings.Index(clean, "%"); percent != -1 {
		clean = clean[:percent]
	}

	// Try parsing addr:port (handles both IPv4:port and [IPv6]:port)
	if addrPort, err := netip.ParseAddrPort(clean); err == nil {
		addr := addrPort.Addr().Unmap()
		ipStr := addr.String()
		return ipStr, net.ParseIP(ipStr)
	}

	trimmed := strings.TrimSuffix(strings.TrimPrefix(clean, "["), "]")
	if addr, err := netip.ParseAddr(trimmed); err == nil {
		ipStr := addr.Unmap().String()
		return ipStr, net.ParseIP(ipStr)
	}

	if host, _, err := net.SplitHostPort(clean); err == nil {
		return normalizeIP(host)
	}

	return "", nil
}

func parseForwardedHeader(header string) []string {
	var candidates []string

	for _, entry := range strings.Split(header, ",") {
		for _, part := range strings.Split(entry, ";") {
			part = strings.TrimSpace(part)
			if strings.HasPrefix(strings.ToLower(part), "for=") {
				candidates = append(candidates, part[len("for="):])
			}
		}
	}

	return candidates
}
