package transport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"fraudwatch/internal/alerts"
	"fraudwatch/internal/core"
	"fraudwatch/internal/types"
)

// RegisterWebhookRequest is the request body for POST /v1/connections/webhook.
// The consumer supplies the endpoint that should receive push deliveries for
// the card.
type RegisterWebhookRequest struct {
	CardToken string `json:"card_token" validate:"required,max=100"`
	URL       string `json:"url" validate:"required,url"`
}

// RegisterWebhookResponse returns the session handle the consumer uses to
// unregister.
type RegisterWebhookResponse struct {
	SessionID string `json:"session_id"`
	CardToken string `json:"card_token"`
}

// WebhookHandler manages webhook-backed push sessions. WebSocket consumers
// hold their session open; webhook consumers register an endpoint instead
// and tear it down explicitly (or let the stale sweep collect it once
// deliveries stop refreshing activity).
type WebhookHandler struct {
	registry       *alerts.ConnectionRegistry
	deliverTimeout time.Duration
	validator      *core.Validator
}

// NewWebhookHandler creates the handler. deliverTimeout bounds each outbound
// POST on the resulting sinks.
func NewWebhookHandler(registry *alerts.ConnectionRegistry, deliverTimeout time.Duration, v *core.Validator) *WebhookHandler {
	return &WebhookHandler{
		registry:       registry,
		deliverTimeout: deliverTimeout,
		validator:      v,
	}
}

// RegisterRoutes mounts the webhook session routes on the provided
// chi.Router.
func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Route("/connections", func(r chi.Router) {
		r.Post("/webhook", h.Register)
		r.Delete("/{sessionID}", h.Unregister)
	})
}

// Register handles POST /v1/connections/webhook.
func (h *WebhookHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterWebhookRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	sessionID := "sess_" + uuid.NewString()
	sink := NewWebhookSink(req.URL, h.deliverTimeout)

	if !h.registry.Register(sessionID, req.CardToken, sink) {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to register webhook session",
			nil,
		))
		return
	}

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: RegisterWebhookResponse{
		SessionID: sessionID,
		CardToken: req.CardToken,
	}})
}

// Unregister handles DELETE /v1/connections/{sessionID}.
func (h *WebhookHandler) Unregister(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"session ID is required",
			nil,
		))
		return
	}

	if !h.registry.Remove(sessionID) {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeNotFoundSession,
			"session not found",
			nil,
		))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
