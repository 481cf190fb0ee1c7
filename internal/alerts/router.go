package alerts

import (
	"context"

	"fraudwatch/internal/types"
)

// AuditRecorder receives a record of every routed alert for after-the-fact
// investigation. Implemented by the Postgres audit repository in
// internal/store; a nil recorder disables auditing. Recording is best-effort:
// the router logs failures and moves on.
type AuditRecorder interface {
	RecordRoutedAlert(ctx context.Context, rec RoutedAlertRecord) error
}

// RoutedAlertRecord is the audit row written after each route call.
type RoutedAlertRecord struct {
	CardToken      string
	AlertType      types.AlertType
	TransactionID  string
	RiskScore      *float64
	PushSuccessful int
	PushFailed     int
	PullMatched    int
}

// AlertRouter is the composition point of the engine. Given a new alert and
// its originating card token it normalizes once, then drives two independent
// fan-outs: best-effort push through the ConnectionRegistry and
// always-succeeds-if-active enqueue through the SubscriptionRegistry.
//
// The router depends on both registries; they do not depend on each other or
// on it.
type AlertRouter struct {
	normalizer *Normalizer
	subs       *SubscriptionRegistry
	conns      *ConnectionRegistry
	audit      AuditRecorder
	logger     types.Logger
}

// NewAlertRouter wires the router. audit may be nil.
func NewAlertRouter(
	normalizer *Normalizer,
	subs *SubscriptionRegistry,
	conns *ConnectionRegistry,
	audit AuditRecorder,
	logger types.Logger,
) *AlertRouter {
	return &AlertRouter{
		normalizer: normalizer,
		subs:       subs,
		conns:      conns,
		audit:      audit,
		logger:     logger,
	}
}

// Route normalizes the input once and fans the resulting alert out to both
// delivery paths. It returns the push result; pull-path outcomes are
// fire-and-forget, observable only through subsequent Poll/Status calls or
// metrics.
//
// A normalization failure aborts the whole call with a format_invalid_alert
// error and performs no fan-out. Per-subscription failures on the pull path
// are contained inside the registry and never abort the remaining
// subscriptions.
func (r *AlertRouter) Route(ctx context.Context, cardToken string, in types.RawAlertInput) (BroadcastResult, error) {
	alert, err := r.normalizer.Normalize(in)
	if err != nil {
		return BroadcastResult{}, err
	}
	if alert.CardToken == "" {
		alert.CardToken = cardToken
	}

	result := r.conns.Broadcast(ctx, cardToken, alert)
	matched := r.subs.EnqueueMatching(alert)

	r.logger.Info("alert routed",
		"card_token", cardToken,
		"alert_type", string(alert.AlertType),
		"push_successful", result.Successful,
		"push_failed", result.Failed,
		"subscriptions_matched", matched,
	)

	if r.audit != nil {
		rec := RoutedAlertRecord{
			CardToken:      cardToken,
			AlertType:      alert.AlertType,
			TransactionID:  alert.TransactionID,
			RiskScore:      alert.RiskScore,
			PushSuccessful: result.Successful,
			PushFailed:     result.Failed,
			PullMatched:    matched,
		}
		if auditErr := r.audit.RecordRoutedAlert(ctx, rec); auditErr != nil {
			r.logger.Warn("alert audit record failed",
				"card_token", cardToken,
				"error", auditErr.Error(),
			)
		}
	}

	return result, nil
}
