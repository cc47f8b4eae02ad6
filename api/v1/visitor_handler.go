package v1

import (
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"hayzedd/internal/analytics"
	"hayzedd/internal/timeframe"
)

// StatsAction returns the overview document for ?period=1d|7d|30d|90d|1y,
// optionally narrowed to one page with ?page=. Unknown periods fall back to
// 7d. Unlike the visitor list, the document is not wrapped.
func (h *Handler) StatsAction(ctx *cartridge.Context) error {
	rawPeriod := ctx.Query("period")
	period, window := h.timeParser.PeriodRange(rawPeriod)
	if _, ok := timeframe.ParsePeriod(rawPeriod); !ok {
		ctx.Logger.Debug("Unknown stats period, using default",
			slog.String("period", rawPeriod),
			slog.String("default", string(period)))
	}

	stats, err := analytics.ComputeStats(ctx.Ctx.UserContext(), ctx.DBManager.GetConnection(), analytics.StatsQuery{
		Period: period,
		Range:  window,
		Page:   strings.TrimSpace(ctx.Query("page")),
	})
	if err != nil {
		ctx.Logger.Error("Failed to compute stats", slog.Any("error", err))
		return respondStorage(ctx.Ctx, "Failed to compute stats")
	}

	return ctx.JSON(stats)
}

// VisitorsAction lists sessions, newest activity first by default.
func (h *Handler) VisitorsAction(ctx *cartridge.Context) error {
	from, to, err := h.timeParser.ParseOptionalRange(ctx.Query("dateFrom"), ctx.Query("dateTo"))
	if err != nil {
		return respondError(ctx.Ctx, fiber.StatusBadRequest, codeValidationError, err.Error())
	}

	q := analytics.VisitorListQuery{
		Page:      ctx.QueryInt("page", 1),
		Limit:     ctx.QueryInt("limit", analytics.DefaultPageSize),
		SortBy:    ctx.Query("sortBy"),
		SortOrder: strings.ToLower(ctx.Query("sortOrder")),
		DateFrom:  from,
		DateTo:    to,
		Country:   strings.TrimSpace(ctx.Query("country")),
		Device:    strings.TrimSpace(ctx.Query("device")),
	}
	if raw := ctx.Query("isReturning"); raw != "" {
		returning, err := strconv.ParseBool(raw)
		if err != nil {
			return respondError(ctx.Ctx, fiber.StatusBadRequest, codeValidationError, "isReturning must be true or false")
		}
		q.IsReturning = &returning
	}

	list, err := analytics.ListVisitors(ctx.Ctx.UserContext(), ctx.DBManager.GetConnection(), q)
	if err != nil {
		ctx.Logger.Error("Failed to list visitors", slog.Any("error", err))
		return respondStorage(ctx.Ctx, "Failed to list visitors")
	}

	return ctx.JSON(fiber.Map{"success": true, "data": list})
}

// VisitorDetailAction returns every session and record of one visitor,
// with per-page, per-event and per-metric summaries.
func (h *Handler) VisitorDetailAction(ctx *cartridge.Context) error {
	visitorID := strings.TrimSpace(ctx.Params("visitorId"))
	if visitorID == "" {
		return respondError(ctx.Ctx, fiber.StatusBadRequest, codeValidationError, "visitorId is required")
	}

	from, to, err := h.timeParser.ParseOptionalRange(ctx.Query("startDate"), ctx.Query("endDate"))
	if err != nil {
		return respondError(ctx.Ctx, fiber.StatusBadRequest, codeValidationError, err.Error())
	}

	detail, err := analytics.GetVisitorDetail(ctx.Ctx.UserContext(), ctx.DBManager.GetConnection(), visitorID, analytics.DetailQuery{
		From: from,
		To:   to,
	})
	if errors.Is(err, analytics.ErrVisitorNotFound) {
		return respondError(ctx.Ctx, fiber.StatusNotFound, codeNotFound, "Visitor not found")
	}
	if err != nil {
		ctx.Logger.Error("Failed to load visitor detail",
			slog.String("visitor_id", visitorID),
			slog.Any("error", err))
		return respondStorage(ctx.Ctx, "Failed to load visitor")
	}

	return ctx.JSON(detail)
}
