// Package handler provides the HTTP handlers for assistant action dispatch
// and preview.
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Thepalm86/trip-sub001/internal/access"
	"github.com/Thepalm86/trip-sub001/internal/action"
	"github.com/Thepalm86/trip-sub001/internal/dispatch"
	"github.com/Thepalm86/trip-sub001/internal/models"
	"github.com/Thepalm86/trip-sub001/internal/preview"
)

// userIDHeader carries the authenticated user id, set by the gateway after
// upstream session verification. Authentication itself is not this
// service's concern.
const userIDHeader = "X-User-ID"

// ActionDispatcher is the dispatch contract the handler depends on.
type ActionDispatcher interface {
	Dispatch(ctx context.Context, userID string, actions []json.RawMessage, meta *action.Meta) []dispatch.Result
}

// Handler provides HTTP handlers for assistant actions.
type Handler struct {
	dispatcher ActionDispatcher
	resolver   *access.Resolver
	logger     *zap.Logger
}

// NewHandler creates a new action handler.
func NewHandler(dispatcher ActionDispatcher, resolver *access.Resolver, logger *zap.Logger) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		resolver:   resolver,
		logger:     logger,
	}
}

// RegisterRoutes registers the handler routes on the given router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/assistant/actions", h.DispatchActions)
	rg.POST("/assistant/actions/preview", h.PreviewAction)
}

// DispatchRequest is the request body for a dispatch call.
type DispatchRequest struct {
	Actions []json.RawMessage `json:"actions" binding:"required"`
	Meta    *action.Meta      `json:"meta,omitempty"`
}

// DispatchResponse wraps the per-action outcomes.
type DispatchResponse struct {
	Results []dispatch.Result `json:"results"`
}

// DispatchActions validates and applies a batch of assistant actions.
func (h *Handler) DispatchActions(c *gin.Context) {
	userID := c.GetHeader(userIDHeader)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{
			Error:   "unauthorized",
			Message: "missing authenticated user",
		})
		return
	}

	var req DispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid dispatch request", zap.Error(err))
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	results := h.dispatcher.Dispatch(c.Request.Context(), userID, req.Actions, req.Meta)
	c.JSON(http.StatusOK, DispatchResponse{Results: results})
}

// PreviewRequest is the request body for a preview call: one action payload.
type PreviewRequest struct {
	Action json.RawMessage `json:"action" binding:"required"`
}

// PreviewAction validates a single action and returns its confirmation
// prompt without mutating anything.
func (h *Handler) PreviewAction(c *gin.Context) {
	userID := c.GetHeader(userIDHeader)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{
			Error:   "unauthorized",
			Message: "missing authenticated user",
		})
		return
	}

	var req PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid preview request", zap.Error(err))
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	env, err := action.Parse(req.Action)
	if err != nil {
		h.writeDomainError(c, err)
		return
	}

	p := preview.Build(env, h.previewContext(c.Request.Context(), userID, env))

	// Audit is fire-and-forget; it must never block or fail the response.
	go h.logger.Info("Previewed action",
		zap.String("user_id", userID),
		zap.String("action", action.Describe(env.Intent)),
	)

	c.JSON(http.StatusOK, p)
}

// previewContext resolves human-readable labels best-effort. Resolution
// failures simply leave labels empty; the builder falls back to raw ids.
func (h *Handler) previewContext(ctx context.Context, userID string, env action.Envelope) preview.Context {
	pctx := preview.Context{}

	resolveDay := func(dayID string) string {
		if dayID == "" {
			return ""
		}
		acc, err := h.resolver.ResolveDayAccess(ctx, userID, dayID)
		if err != nil {
			return ""
		}
		return acc.Label
	}

	switch a := env.Intent.(type) {
	case action.AddDestination:
		pctx.DayLabel = resolveDay(a.DayID)
	case action.UpdateDestination:
		pctx.DayLabel = resolveDay(a.DayID)
		pctx.ItemLabel = h.resolveItemLabel(ctx, userID, a.DestinationID)
	case action.SetBaseLocation:
		pctx.DayLabel = resolveDay(a.DayID)
	case action.MoveDestination:
		pctx.DayLabel = resolveDay(a.FromDayID)
		pctx.TargetDayLabel = resolveDay(a.ToDayID)
		pctx.ItemLabel = h.resolveItemLabel(ctx, userID, a.DestinationID)
	case action.AddPlaceToItinerary:
		pctx.DayLabel = resolveDay(a.DayID)
	case action.RescheduleItineraryItem:
		pctx.DayLabel = resolveDay(a.DayID)
		pctx.TargetDayLabel = resolveDay(a.NewDayID)
		pctx.ItemLabel = h.resolveItemLabel(ctx, userID, a.ItemID)
	case action.RemoveOrReplaceItem:
		pctx.DayLabel = resolveDay(a.DayID)
		pctx.ItemLabel = h.resolveItemLabel(ctx, userID, a.ItemID)
	}

	return pctx
}

func (h *Handler) resolveItemLabel(ctx context.Context, userID, destinationID string) string {
	acc, err := h.resolver.ResolveDestinationAccess(ctx, userID, destinationID)
	if err != nil {
		return ""
	}
	return "\"" + acc.Destination.Name + "\""
}

// writeDomainError maps the error taxonomy to HTTP statuses. Unclassified
// errors become an opaque 500; internals are logged, never leaked.
func (h *Handler) writeDomainError(c *gin.Context, err error) {
	var ve *models.ValidationError
	switch {
	case models.IsValidation(err):
		ve, _ = err.(*models.ValidationError)
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "validation_failed",
			Message: "action payload is invalid",
			Details: ve.Violations,
		})
	case models.IsForbidden(err):
		c.JSON(http.StatusForbidden, models.ErrorResponse{
			Error:   "forbidden",
			Message: err.Error(),
		})
	case models.IsNotFound(err):
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "not_found",
			Message: err.Error(),
		})
	default:
		h.logger.Error("Unclassified error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: "internal server error",
		})
	}
}
