package store

import (
	"context"

	"github.com/google/uuid"

	"fraudwatch/internal/alerts"
	"fraudwatch/internal/types"
)

// Compile-time assertion that AlertAuditRepository implements the router's
// AuditRecorder interface.
var _ alerts.AuditRecorder = (*AlertAuditRepository)(nil)

// AlertAuditRepository records one row per routed alert in the routed_alerts
// table. Rows are append-only; retention is an operator concern (a scheduled
// DELETE outside this service).
type AlertAuditRepository struct {
	db DBTX
}

// NewAlertAuditRepository creates a repository over the given connection.
func NewAlertAuditRepository(db DBTX) *AlertAuditRepository {
	return &AlertAuditRepository{db: db}
}

// RecordRoutedAlert inserts the audit row. The ID is generated here so the
// insert never round-trips for a database-generated key.
func (r *AlertAuditRepository) RecordRoutedAlert(ctx context.Context, rec alerts.RoutedAlertRecord) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO routed_alerts
		 (id, card_token, alert_type, transaction_id, risk_score,
		  push_successful, push_failed, pull_matched, routed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())`,
		uuid.NewString(),
		rec.CardToken,
		string(rec.AlertType),
		rec.TransactionID,
		rec.RiskScore,
		rec.PushSuccessful,
		rec.PushFailed,
		rec.PullMatched,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalStore, "failed to record routed alert", err)
	}
	return nil
}
