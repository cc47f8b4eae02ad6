package v1

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"hayzedd/internal/events"
	"hayzedd/internal/validation"
)

type pageViewRequest struct {
	SessionID   string `json:"sessionId" validate:"required,max=64"`
	VisitorID   string `json:"visitorId" validate:"required,max=64"`
	Page        string `json:"page" validate:"required,max=2048"`
	Title       string `json:"title" validate:"omitempty,max=512"`
	Referrer    string `json:"referrer" validate:"omitempty,max=2048"`
	Duration    *int64 `json:"duration" validate:"omitempty,gte=0"`
	ScrollDepth *int   `json:"scrollDepth" validate:"omitempty,gte=0,lte=100"`
}

func (r *pageViewRequest) input() events.PageViewInput {
	return events.PageViewInput{
		SessionID:   r.SessionID,
		VisitorID:   r.VisitorID,
		Page:        r.Page,
		Title:       r.Title,
		Referrer:    r.Referrer,
		Duration:    r.Duration,
		ScrollDepth: r.ScrollDepth,
	}
}

type eventRequest struct {
	SessionID     string         `json:"sessionId" validate:"required,max=64"`
	VisitorID     string         `json:"visitorId" validate:"required,max=64"`
	EventType     string         `json:"eventType" validate:"required,oneof=interaction engagement error timing media conversion"`
	EventCategory string         `json:"eventCategory" validate:"required,max=128"`
	EventAction   string         `json:"eventAction" validate:"required,max=128"`
	EventLabel    *string        `json:"eventLabel" validate:"omitempty,max=512"`
	EventValue    *float64       `json:"eventValue"`
	Page          string         `json:"page" validate:"omitempty,max=2048"`
	Metadata      map[string]any `json:"metadata"`
}

func (r *eventRequest) input() events.EventInput {
	return events.EventInput{
		SessionID:     r.SessionID,
		VisitorID:     r.VisitorID,
		EventType:     r.EventType,
		EventCategory: r.EventCategory,
		EventAction:   r.EventAction,
		EventLabel:    r.EventLabel,
		EventValue:    r.EventValue,
		Page:          r.Page,
		Metadata:      r.Metadata,
	}
}

type formRequest struct {
	SessionID      string   `json:"sessionId" validate:"required,max=64"`
	VisitorID      string   `json:"visitorId" validate:"required,max=64"`
	FormID         string   `json:"formId" validate:"omitempty,max=256"`
	FormName       string   `json:"formName" validate:"omitempty,max=256"`
	Success        bool     `json:"success"`
	Fields         []string `json:"fields" validate:"omitempty,max=200"`
	CompletionTime *int64   `json:"completionTime" validate:"omitempty,gte=0"`
	Page           string   `json:"page" validate:"omitempty,max=2048"`
}

type errorRequest struct {
	SessionID    string `json:"sessionId" validate:"required,max=64"`
	VisitorID    string `json:"visitorId" validate:"required,max=64"`
	ErrorType    string `json:"errorType" validate:"required,max=128"`
	ErrorMessage string `json:"errorMessage" validate:"required,max=4096"`
	ErrorStack   string `json:"errorStack" validate:"omitempty,max=16384"`
	Page         string `json:"page" validate:"omitempty,max=2048"`
	UserAction   string `json:"userAction" validate:"omitempty,max=512"`
	Severity     string `json:"severity" validate:"omitempty,oneof=low medium high critical"`
}

type performanceRequest struct {
	SessionID      string         `json:"sessionId" validate:"required,max=64"`
	VisitorID      string         `json:"visitorId" validate:"required,max=64"`
	MetricType     string         `json:"metricType" validate:"required,oneof=web-vitals navigation resource custom"`
	MetricName     string         `json:"metricName" validate:"required,max=128"`
	Value          *float64       `json:"value" validate:"required"`
	Page           string         `json:"page" validate:"omitempty,max=2048"`
	AdditionalData map[string]any `json:"additionalData"`
}

// ingest validates req and hands it to collect, mapping the outcome to the
// JSON response. Records for unknown sessions are stored and still succeed.
func ingest(ctx *cartridge.Context, req any, failure string, collect func(context.Context) (events.Result, error)) error {
	if handled, err := bindAndValidate(ctx.Ctx, req); handled {
		return err
	}

	if _, err := collect(ctx.Ctx.UserContext()); err != nil {
		ctx.Logger.Error(failure, slog.Any("error", err))
		return respondStorage(ctx.Ctx, failure)
	}
	return ctx.JSON(fiber.Map{"success": true})
}

// beacon is ingest for navigator.sendBeacon style deliveries. The sender
// cannot read the response, so it is always 202.
func beacon(ctx *cartridge.Context, req any, kind string, collect func(context.Context) (events.Result, error)) error {
	if err := decodeBody(ctx.Ctx, req); err != nil {
		ctx.Logger.Debug("Dropping unreadable beacon", slog.String("kind", kind), slog.Any("error", err))
		return ctx.SendStatus(fiber.StatusAccepted)
	}
	if err := validation.Struct(req); err != nil {
		ctx.Logger.Debug("Dropping invalid beacon", slog.String("kind", kind), slog.Any("error", err))
		return ctx.SendStatus(fiber.StatusAccepted)
	}
	if _, err := collect(ctx.Ctx.UserContext()); err != nil {
		ctx.Logger.Error("Failed to store beacon", slog.String("kind", kind), slog.Any("error", err))
	}
	return ctx.SendStatus(fiber.StatusAccepted)
}

// CreatePageViewAction records a page view and adds it to the session totals.
func (h *Handler) CreatePageViewAction(ctx *cartridge.Context) error {
	var req pageViewRequest
	return ingest(ctx, &req, "Failed to record page view", func(c context.Context) (events.Result, error) {
		return h.collector.CollectPageView(c, req.input())
	})
}

func (h *Handler) PageViewBeaconAction(ctx *cartridge.Context) error {
	var req pageViewRequest
	return beacon(ctx, &req, events.KindPageView, func(c context.Context) (events.Result, error) {
		return h.collector.CollectPageView(c, req.input())
	})
}

// CreateEventAction records an interaction event.
func (h *Handler) CreateEventAction(ctx *cartridge.Context) error {
	var req eventRequest
	return ingest(ctx, &req, "Failed to record event", func(c context.Context) (events.Result, error) {
		return h.collector.CollectEvent(c, req.input())
	})
}

func (h *Handler) EventBeaconAction(ctx *cartridge.Context) error {
	var req eventRequest
	return beacon(ctx, &req, events.KindEvent, func(c context.Context) (events.Result, error) {
		return h.collector.CollectEvent(c, req.input())
	})
}

func (h *Handler) CreateFormAction(ctx *cartridge.Context) error {
	var req formRequest
	return ingest(ctx, &req, "Failed to record form submission", func(c context.Context) (events.Result, error) {
		return h.collector.CollectForm(c, events.FormInput{
			SessionID:      req.SessionID,
			VisitorID:      req.VisitorID,
			FormID:         req.FormID,
			FormName:       req.FormName,
			Success:        req.Success,
			Fields:         req.Fields,
			CompletionTime: req.CompletionTime,
			Page:           req.Page,
		})
	})
}

func (h *Handler) CreateErrorAction(ctx *cartridge.Context) error {
	var req errorRequest
	return ingest(ctx, &req, "Failed to record error", func(c context.Context) (events.Result, error) {
		return h.collector.CollectError(c, events.ErrorInput{
			SessionID:    req.SessionID,
			VisitorID:    req.VisitorID,
			ErrorType:    req.ErrorType,
			ErrorMessage: req.ErrorMessage,
			ErrorStack:   req.ErrorStack,
			Page:         req.Page,
			UserAction:   req.UserAction,
			Severity:     req.Severity,
		})
	})
}

func (h *Handler) CreatePerformanceAction(ctx *cartridge.Context) error {
	var req performanceRequest
	return ingest(ctx, &req, "Failed to record performance metric", func(c context.Context) (events.Result, error) {
		return h.collector.CollectPerformance(c, events.PerformanceInput{
			SessionID:      req.SessionID,
			VisitorID:      req.VisitorID,
			MetricType:     req.MetricType,
			MetricName:     req.MetricName,
			Value:          *req.Value,
			Page:           req.Page,
			AdditionalData: req.AdditionalData,
		})
	})
}
