package http

import (
	"errors"
	"log/slog"
	"net"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"

	"hayzedd/internal/settings"
)

type excludedIPsRequest struct {
	ExcludedIPs []string `json:"excludedIps"`
}

// normalizeIPList trims, validates and de-duplicates addresses.
func normalizeIPList(ips []string) ([]string, string) {
	seen := make(map[string]bool, len(ips))
	out := make([]string, 0, len(ips))
	for _, ip := range ips {
		ip = strings.TrimSpace(ip)
		if ip == "" {
			continue
		}
		parsed := net.ParseIP(ip)
		if parsed == nil {
			return nil, "Invalid IP address format: " + ip
		}
		canonical := parsed.String()
		if !seen[canonical] {
			seen[canonical] = true
			out = append(out, canonical)
		}
	}
	return out, ""
}

func splitIPList(value string) []string {
	out := []string{}
	for _, ip := range strings.Split(value, ",") {
		if ip = strings.TrimSpace(ip); ip != "" {
			out = append(out, ip)
		}
	}
	return out
}

// ExcludedIPsIndexAction lists the addresses refused at session init.
func ExcludedIPsIndexAction(ctx *cartridge.Context) error {
	value, err := settings.GetSetting(ctx.DB(), settings.KeyExcludedIPs)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		value, err = "", nil
	}
	if err != nil {
		ctx.Logger.Error("failed to load excluded_ips setting", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to load settings",
			"code":    "STORAGE_ERROR",
		})
	}
	return ctx.JSON(fiber.Map{"success": true, "excludedIps": splitIPList(value)})
}

// ExcludedIPsUpdateAction replaces the excluded address list.
func ExcludedIPsUpdateAction(ctx *cartridge.Context) error {
	var req excludedIPsRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid JSON body",
			"code":    "INVALID_JSON",
		})
	}

	ips, msg := normalizeIPList(req.ExcludedIPs)
	if msg != "" {
		ctx.Logger.Warn("invalid IP format submitted", slog.String("error", msg))
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   msg,
			"code":    "VALIDATION_ERROR",
		})
	}

	if err := settings.CreateOrUpdateSetting(ctx.DB(), ctx.Logger, settings.KeyExcludedIPs, strings.Join(ips, ",")); err != nil {
		ctx.Logger.Error("failed to update excluded_ips setting", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to update IP filtering settings",
			"code":    "STORAGE_ERROR",
		})
	}

	ctx.Logger.Info("excluded IPs updated", slog.Int("count", len(ips)))
	return ctx.JSON(fiber.Map{"success": true, "excludedIps": ips})
}
