package v1

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"hayzedd/internal/events"
	"hayzedd/internal/sessions"
	"hayzedd/internal/settings"
	"hayzedd/internal/timeframe"
	"hayzedd/internal/validation"
	"hayzedd/internal/visitors"
)

// Handler serves the analytics API. Routes bind its methods.
type Handler struct {
	store      *sessions.Store
	collector  *events.Collector
	timeParser *timeframe.Parser
}

func NewHandler(store *sessions.Store, collector *events.Collector) *Handler {
	return &Handler{
		store:      store,
		collector:  collector,
		timeParser: timeframe.NewParser(),
	}
}

// WithTimeParser replaces the clock used by the read endpoints.
func (h *Handler) WithTimeParser(p *timeframe.Parser) *Handler {
	h.timeParser = p
	return h
}

type sessionRequest struct {
	Screen     *sessions.Screen `json:"screen"`
	Language   string           `json:"language" validate:"omitempty,max=64"`
	Timezone   string           `json:"timezone" validate:"omitempty,max=64"`
	Referrer   string           `json:"referrer" validate:"omitempty,max=2048"`
	CurrentURL string           `json:"currentUrl" validate:"omitempty,max=2048"`
}

type sessionResponse struct {
	Success            bool              `json:"success"`
	SessionID          string            `json:"sessionId"`
	VisitorID          string            `json:"visitorId"`
	IsReturningVisitor bool              `json:"isReturningVisitor"`
	IsNewSession       bool              `json:"isNewSession"`
	Device             sessions.Device   `json:"device"`
	Location           sessions.Location `json:"location"`
}

// CreateSessionAction resolves the caller's device fingerprint to a session,
// continuing the active one or opening a new one.
func (h *Handler) CreateSessionAction(ctx *cartridge.Context) error {
	var req sessionRequest
	if err := decodeBody(ctx.Ctx, &req); err != nil && err != errEmptyBody {
		ctx.Logger.Debug("Invalid session payload", slog.Any("error", err))
		return respondError(ctx.Ctx, fiber.StatusBadRequest, codeInvalidJSON, "Invalid JSON body")
	}
	if err := validation.Struct(&req); err != nil {
		return respondValidation(ctx.Ctx, err)
	}

	ipAddress := getClientIP(ctx.Ctx)
	excluded, err := settings.IsIPExcluded(ipAddress)
	if err != nil {
		ctx.Logger.Warn("Failed to check excluded IPs", slog.Any("error", err))
	}
	if excluded {
		ctx.Logger.Debug("Session refused for excluded IP", slog.String("ip", ipAddress))
		return respondError(ctx.Ctx, fiber.StatusForbidden, codeExcluded, "Tracking disabled for this address")
	}

	ua := userAgent(ctx.Ctx)
	acceptLanguage := ctx.Get(fiber.HeaderAcceptLanguage)
	fingerprint := visitors.Fingerprint(ua, ipAddress, acceptLanguage, ctx.Get(fiber.HeaderAcceptEncoding))

	language := req.Language
	if language == "" {
		language = primaryLanguage(acceptLanguage)
	}

	rc := sessions.RequestContext{
		IPAddress:  ipAddress,
		UserAgent:  ua,
		Language:   language,
		Timezone:   req.Timezone,
		Referrer:   req.Referrer,
		CurrentURL: req.CurrentURL,
	}
	if req.Screen != nil {
		rc.Screen = *req.Screen
	}

	res, err := h.store.Resolve(ctx.Ctx.UserContext(), fingerprint, rc)
	if err != nil {
		ctx.Logger.Error("Failed to create or continue session", slog.Any("error", err))
		return respondStorage(ctx.Ctx, "Failed to create/update session")
	}

	s := res.Session
	return ctx.JSON(sessionResponse{
		Success:            true,
		SessionID:          s.SessionID,
		VisitorID:          s.VisitorID,
		IsReturningVisitor: res.IsReturningVisitor,
		IsNewSession:       res.IsNewSession,
		Device:             s.Device,
		Location:           s.Location,
	})
}

// PreflightAction answers CORS preflight requests.
func PreflightAction(ctx *cartridge.Context) error {
	return ctx.SendStatus(fiber.StatusNoContent)
}
