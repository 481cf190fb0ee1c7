// Package alerts implements the real-time fraud alert distribution engine:
// normalization of raw upstream events into canonical alerts, the
// subscription registry backing the pull/poll path, the connection registry
// backing the push path, the router that fans a new alert out to both, and
// the read-only metrics rollup over them.
//
// The two registries never share mutable state; the router composes them
// through their public operations only.
package alerts

import (
	"encoding/json"
	"fmt"
	"strings"

	"fraudwatch/internal/types"
)

// Documented normalization defaults, applied when a raw transaction is
// missing the corresponding field.
const (
	defaultAmount   = "$0.00"
	defaultMerchant = "Unknown Merchant"
	defaultLocation = "Unknown Location"
	defaultStatus   = "PENDING"
)

// Normalizer converts raw alert input into the canonical types.Alert record.
// It is stateless apart from the injected clock and safe for concurrent use.
type Normalizer struct {
	clock types.Clock
}

// NewNormalizer creates a Normalizer. A nil clock defaults to the real clock.
func NewNormalizer(clock types.Clock) *Normalizer {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Normalizer{clock: clock}
}

// inputProbe is used to decide the input variant exactly once at the
// boundary. An input is canonical iff all four top-level sections are
// present; anything else is treated as raw transaction data.
type inputProbe struct {
	AlertType    json.RawMessage `json:"alert_type"`
	Immediate    json.RawMessage `json:"immediate"`
	Verification json.RawMessage `json:"verification"`
	Intelligence json.RawMessage `json:"intelligence"`
}

// Decode parses raw JSON into the RawAlertInput tagged union. The variant is
// decided here and never re-sniffed downstream. Malformed JSON yields a
// format_invalid_alert AppError.
func (n *Normalizer) Decode(data []byte) (types.RawAlertInput, error) {
	var probe inputProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return types.RawAlertInput{}, types.NewAppError(
			types.ErrCodeFormatInvalidAlert,
			"alert payload is not a JSON object",
			err,
		)
	}

	if len(probe.AlertType) > 0 && len(probe.Immediate) > 0 &&
		len(probe.Verification) > 0 && len(probe.Intelligence) > 0 {
		var alert types.Alert
		if err := json.Unmarshal(data, &alert); err != nil {
			return types.RawAlertInput{}, types.NewAppError(
				types.ErrCodeFormatInvalidAlert,
				"canonical alert payload has malformed sections",
				err,
			)
		}
		return types.RawAlertInput{Canonical: &alert}, nil
	}

	var tx types.RawTransaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return types.RawAlertInput{}, types.NewAppError(
			types.ErrCodeFormatInvalidAlert,
			"raw transaction payload has malformed fields",
			err,
		)
	}
	return types.RawAlertInput{Transaction: &tx}, nil
}

// Normalize produces a canonical Alert from either variant of the tagged
// union. It never fails for missing optional fields; documented defaults are
// substituted instead. It fails only when the union carries no variant at
// all, which indicates a caller bug or an unreadable input.
func (n *Normalizer) Normalize(in types.RawAlertInput) (types.Alert, error) {
	switch {
	case in.Canonical != nil:
		alert := *in.Canonical
		if alert.Timestamp.IsZero() {
			alert.Timestamp = n.clock.Now()
		}
		return alert, nil
	case in.Transaction != nil:
		return n.fromTransaction(in.Transaction), nil
	default:
		return types.Alert{}, types.NewAppError(
			types.ErrCodeFormatInvalidAlert,
			"alert input carries neither a canonical alert nor transaction data",
			nil,
		)
	}
}

// fromTransaction maps raw upstream transaction data onto the canonical
// record, applying the documented defaults for anything absent.
func (n *Normalizer) fromTransaction(tx *types.RawTransaction) types.Alert {
	ts := tx.Created
	if ts.IsZero() {
		ts = n.clock.Now()
	}

	txID := tx.Token
	if txID == "" {
		txID = tx.TransactionID
	}

	alert := types.Alert{
		AlertType:     types.AlertNewTransaction,
		Timestamp:     ts,
		TransactionID: txID,
		CardToken:     tx.CardToken,
		Immediate: types.AlertImmediate{
			Amount:               formatAmount(pickAmount(tx)),
			Merchant:             defaultMerchant,
			Location:             defaultLocation,
			Status:               pickStatus(tx),
			Network:              tx.Network,
			NetworkTransactionID: tx.NetworkRefID,
		},
		RiskScore: tx.RiskScore,
	}

	if tx.Merchant != nil {
		if tx.Merchant.Name != "" {
			alert.Immediate.Merchant = tx.Merchant.Name
		}
		if loc := joinLocation(tx.Merchant.City, tx.Merchant.State, tx.Merchant.Country); loc != "" {
			alert.Immediate.Location = loc
		}
		alert.Verification.MCCCode = tx.Merchant.MCC
	}

	return alert
}

// pickAmount searches the possible raw amount representations in a fixed
// priority order and returns the first numeric hit, or nil when none exists:
//
//  1. parsed cardholder amount
//  2. parsed merchant amount
//  3. flat amount field
//  4. nested network-event cardholder amount
//  5. nested network-event merchant amount
func pickAmount(tx *types.RawTransaction) *float64 {
	if tx.Amounts != nil {
		if tx.Amounts.Cardholder.Value != nil {
			return tx.Amounts.Cardholder.Value
		}
		if tx.Amounts.Merchant.Value != nil {
			return tx.Amounts.Merchant.Value
		}
	}
	if tx.Amount.Value != nil {
		return tx.Amount.Value
	}
	if tx.NetworkEvent != nil {
		if tx.NetworkEvent.CardholderAmount.Value != nil {
			return tx.NetworkEvent.CardholderAmount.Value
		}
		if tx.NetworkEvent.MerchantAmount.Value != nil {
			return tx.NetworkEvent.MerchantAmount.Value
		}
	}
	return nil
}

func formatAmount(v *float64) string {
	if v == nil {
		return defaultAmount
	}
	return fmt.Sprintf("$%.2f", *v)
}

// pickStatus prefers the lifecycle state over the settlement status, falling
// back to the documented default.
func pickStatus(tx *types.RawTransaction) string {
	if tx.State != "" {
		return tx.State
	}
	if tx.Status != "" {
		return tx.Status
	}
	return defaultStatus
}

// joinLocation joins the non-empty location parts with ", ". Returns ""
// when every part is empty so the caller can apply the default.
func joinLocation(parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, ", ")
}
