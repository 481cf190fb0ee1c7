// Package handlers contains the HTTP handler implementations for the
// FraudWatch API.
//
// This file implements the alert distribution surface:
//   - Route (inbound alert from the fraud-detection collaborator)
//   - Subscription create, poll, and status
//   - Metrics snapshot
//   - Route registration
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"fraudwatch/internal/alerts"
	"fraudwatch/internal/core"
	"fraudwatch/internal/types"
)

// --- Service Interfaces ---
//
// Defined locally following the handler injection pattern: the handler
// depends on abstractions mirroring the concrete engine methods so tests can
// substitute fakes without touching the registries.

// AlertDecoder parses raw inbound JSON into the tagged alert input union.
// Mirrors alerts.Normalizer.Decode.
type AlertDecoder interface {
	Decode(data []byte) (types.RawAlertInput, error)
}

// AlertDispatcher fans a decoded alert out to both delivery paths.
// Mirrors alerts.AlertRouter.Route.
type AlertDispatcher interface {
	Route(ctx context.Context, cardToken string, in types.RawAlertInput) (alerts.BroadcastResult, error)
}

// SubscriptionStore is the pull-path contract used by this handler.
// Mirrors the concrete alerts.SubscriptionRegistry methods.
type SubscriptionStore interface {
	Create(id string, cfg alerts.SubscriptionConfig) (alerts.SubscriptionView, error)
	Poll(id string, maxAlerts int) ([]types.QueuedAlert, error)
	Status(id string) (alerts.SubscriptionStatus, error)
}

// MetricsSource exposes the engine rollup for the metrics endpoint.
type MetricsSource interface {
	Snapshot() alerts.MetricsSnapshot
}

// --- Request/Response Models ---

// RouteAlertRequest is the request body for POST /v1/alerts/route. The alert
// payload is kept raw; the engine's normalizer decides whether it is a
// canonical alert or raw transaction data.
type RouteAlertRequest struct {
	CardToken string          `json:"card_token" validate:"required,max=100"`
	Alert     json.RawMessage `json:"alert" validate:"required"`
}

// RouteAlertResponse reports the push fan-out outcome. Pull-path outcomes
// are observable only through subsequent polls or metrics.
type RouteAlertResponse struct {
	CardToken string                 `json:"card_token"`
	Push      alerts.BroadcastResult `json:"push"`
}

// CreateSubscriptionRequest is the request body for POST /v1/subscriptions.
// Empty card_tokens or alert_types means "match all alerts".
type CreateSubscriptionRequest struct {
	CardTokens    []string `json:"card_tokens,omitempty" validate:"max=50,dive,required,max=100"`
	AlertTypes    []string `json:"alert_types,omitempty" validate:"max=20,dive,required,max=50"`
	RiskThreshold *float64 `json:"risk_threshold,omitempty" validate:"omitempty,gte=0,lte=1"`
	Duration      string   `json:"duration,omitempty" validate:"omitempty,max=10"`
}

// PollRequest is the request body for POST /v1/subscriptions/{id}/poll.
// A zero max_alerts selects the engine default.
type PollRequest struct {
	MaxAlerts int `json:"max_alerts,omitempty" validate:"omitempty,gte=1,lte=100"`
}

// PollResponse wraps the drained alerts with their count.
type PollResponse struct {
	SubscriptionID string              `json:"subscription_id"`
	Alerts         []types.QueuedAlert `json:"alerts"`
	Count          int                 `json:"count"`
}

// --- Handler ---

// AlertHandler exposes the distribution engine over HTTP.
type AlertHandler struct {
	decoder    AlertDecoder
	dispatcher AlertDispatcher
	subs       SubscriptionStore
	metrics    MetricsSource
	validator  *core.Validator
	logger     *slog.Logger
}

// NewAlertHandler creates an AlertHandler with the provided dependencies.
func NewAlertHandler(
	decoder AlertDecoder,
	dispatcher AlertDispatcher,
	subs SubscriptionStore,
	metrics MetricsSource,
	v *core.Validator,
	l *slog.Logger,
) *AlertHandler {
	if l == nil {
		l = slog.Default()
	}
	return &AlertHandler{
		decoder:    decoder,
		dispatcher: dispatcher,
		subs:       subs,
		metrics:    metrics,
		validator:  v,
		logger:     l,
	}
}

// RegisterRoutes mounts the alert distribution routes on the provided
// chi.Router.
func (h *AlertHandler) RegisterRoutes(r chi.Router) {
	r.Post("/alerts/route", h.RouteAlert)

	r.Route("/subscriptions", func(r chi.Router) {
		r.Post("/", h.CreateSubscription)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.SubscriptionStatus)
			r.Post("/poll", h.Poll)
		})
	})

	r.Get("/metrics", h.Metrics)
}

// --- Handler Methods ---

// RouteAlert handles POST /v1/alerts/route.
//
//  1. Decode and validate the envelope.
//  2. Decode the raw alert payload into the tagged input union.
//  3. Dispatch to both delivery paths.
//  4. Return 200 OK with the push result.
//
// A malformed alert payload aborts with format_invalid_alert and performs no
// fan-out.
func (h *AlertHandler) RouteAlert(w http.ResponseWriter, r *http.Request) {
	var req RouteAlertRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	in, err := h.decoder.Decode(req.Alert)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	result, err := h.dispatcher.Route(r.Context(), req.CardToken, in)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: RouteAlertResponse{
		CardToken: req.CardToken,
		Push:      result,
	}})
}

// CreateSubscription handles POST /v1/subscriptions.
//
//  1. Decode and validate request.
//  2. Assign the subscription ID.
//  3. Register with the subscription registry.
//  4. Return 201 Created with the subscription view.
//
// An unparseable duration falls back to the engine default rather than
// failing; the effective expiry is reflected in the response.
func (h *AlertHandler) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	var req CreateSubscriptionRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	alertTypes := make([]types.AlertType, len(req.AlertTypes))
	for i, t := range req.AlertTypes {
		alertTypes[i] = types.AlertType(t)
	}

	id := "sub_" + uuid.New().String()
	view, err := h.subs.Create(id, alerts.SubscriptionConfig{
		CardTokens:    req.CardTokens,
		AlertTypes:    alertTypes,
		RiskThreshold: req.RiskThreshold,
		Duration:      req.Duration,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: view})
}

// Poll handles POST /v1/subscriptions/{id}/poll.
//
// Drains up to max_alerts entries from the head of the subscription's queue.
// Entries returned here are consumed and never returned again. An empty or
// absent body selects the default batch size.
func (h *AlertHandler) Poll(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"subscription ID is required",
			nil,
		))
		return
	}

	var req PollRequest
	if r.ContentLength != 0 {
		if err := core.DecodeJSON(w, r, &req); err != nil {
			core.Error(w, r, err)
			return
		}
		if err := h.validator.ValidateStruct(req); err != nil {
			core.Error(w, r, err)
			return
		}
	}

	drained, err := h.subs.Poll(id, req.MaxAlerts)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if drained == nil {
		drained = []types.QueuedAlert{}
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: PollResponse{
		SubscriptionID: id,
		Alerts:         drained,
		Count:          len(drained),
	}})
}

// SubscriptionStatus handles GET /v1/subscriptions/{id}.
//
// Returns the diagnostic snapshot without consuming queue entries.
func (h *AlertHandler) SubscriptionStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"subscription ID is required",
			nil,
		))
		return
	}

	status, err := h.subs.Status(id)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: status})
}

// Metrics handles GET /v1/metrics.
func (h *AlertHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: h.metrics.Snapshot()})
}
