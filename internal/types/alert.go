// Package types defines the shared domain model for the FraudWatch alert
// distribution engine: the canonical Alert record, the raw input variants it
// is normalized from, the wrapped forms used on the pull and push paths, and
// the cross-cutting interfaces (Logger, Clock, Sink) the rest of the codebase
// depends on.
package types

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// AlertType categorizes a fraud alert. The NEW_TRANSACTION type is emitted
// by the upstream transaction feed in its own casing; the remaining types are
// produced by the fraud-detection collaborator.
type AlertType string

const (
	AlertNewTransaction      AlertType = "NEW_TRANSACTION"
	AlertFraudDetected       AlertType = "fraud_detected"
	AlertHighRiskTransaction AlertType = "high_risk_transaction"
	AlertUnusualPattern      AlertType = "unusual_pattern"
	AlertMerchantAlert       AlertType = "merchant_alert"
	AlertVelocityBreach      AlertType = "velocity_breach"
)

// AlertImmediate carries the fields a consumer needs to act on right away.
type AlertImmediate struct {
	Amount               string `json:"amount"`
	Merchant             string `json:"merchant"`
	Location             string `json:"location"`
	Status               string `json:"status"`
	Network              string `json:"network,omitempty"`
	NetworkTransactionID string `json:"network_transaction_id,omitempty"`
}

// AlertVerification carries the merchant/authorization details used to
// verify a transaction against issuer records.
type AlertVerification struct {
	MCCCode            string `json:"mcc_code,omitempty"`
	MerchantType       string `json:"merchant_type,omitempty"`
	MerchantCategory   string `json:"merchant_category,omitempty"`
	AuthorizationCode  string `json:"authorization_code,omitempty"`
	RetrievalReference string `json:"retrieval_reference,omitempty"`
}

// AlertIntelligence carries derived signals from pattern analysis.
type AlertIntelligence struct {
	IsFirstTransaction bool   `json:"is_first_transaction"`
	MerchantHistory    string `json:"merchant_history,omitempty"`
	GeographicPattern  string `json:"geographic_pattern,omitempty"`
}

// Alert is the canonical fraud alert record used everywhere downstream of
// normalization. It is a value type: once routed it is never mutated. Queue
// and delivery metadata live in QueuedAlert and PushMessage wrappers, never
// on the Alert itself.
type Alert struct {
	AlertType     AlertType         `json:"alert_type"`
	Timestamp     time.Time         `json:"timestamp"`
	TransactionID string            `json:"transaction_id,omitempty"`
	CardToken     string            `json:"card_token,omitempty"`
	Immediate     AlertImmediate    `json:"immediate"`
	Verification  AlertVerification `json:"verification"`
	Intelligence  AlertIntelligence `json:"intelligence"`

	// RiskScore is in [0,1] when present. Alerts without a score bypass
	// subscription risk thresholds entirely.
	RiskScore *float64 `json:"risk_score,omitempty"`
}

// QueuedAlert wraps an Alert with the queue-specific metadata attached when
// it is enqueued for a subscription. Position is the queue position at the
// moment of enqueue and is not renumbered by later evictions.
type QueuedAlert struct {
	Alert          Alert     `json:"alert"`
	QueuedAt       time.Time `json:"queued_at"`
	SubscriptionID string    `json:"subscription_id"`
	Position       int       `json:"position"`
}

// PushMessage wraps an Alert for delivery to a live connection on the push
// path. MessageID is assigned once at broadcast time and survives retries so
// redeliveries are correlatable.
type PushMessage struct {
	MessageID string    `json:"message_id"`
	SessionID string    `json:"session_id"`
	CardToken string    `json:"card_token"`
	Alert     Alert     `json:"alert"`
	SentAt    time.Time `json:"sent_at"`
}

// RawAlertInput is the tagged union decided once at the system boundary:
// an already-canonical Alert, or raw upstream transaction data. Exactly one
// of the two fields is non-nil after a successful decode; downstream code
// never re-sniffs the shape.
type RawAlertInput struct {
	Canonical   *Alert
	Transaction *RawTransaction
}

// RawTransaction models the known shapes of raw upstream transaction data.
// All fields are optional; the normalizer applies documented defaults for
// anything missing.
type RawTransaction struct {
	Token         string           `json:"token,omitempty"`
	TransactionID string           `json:"transaction_id,omitempty"`
	CardToken     string           `json:"card_token,omitempty"`
	Type          string           `json:"type,omitempty"`
	State         string           `json:"state,omitempty"`
	Status        string           `json:"status,omitempty"`
	Network       string           `json:"network,omitempty"`
	NetworkRefID  string           `json:"network_reference_id,omitempty"`
	Amount        FlexAmount       `json:"amount,omitempty"`
	Amounts       *RawAmounts      `json:"amounts,omitempty"`
	NetworkEvent  *RawNetworkEvent `json:"network_event,omitempty"`
	Merchant      *RawMerchant     `json:"merchant,omitempty"`
	RiskScore     *float64         `json:"risk_score,omitempty"`
	Created       time.Time        `json:"created,omitempty"`
}

// RawAmounts holds the pre-parsed amount pair some upstream shapes carry.
type RawAmounts struct {
	Cardholder FlexAmount `json:"cardholder,omitempty"`
	Merchant   FlexAmount `json:"merchant,omitempty"`
}

// RawNetworkEvent holds the nested network-event amounts present on
// card-network originated transactions.
type RawNetworkEvent struct {
	CardholderAmount FlexAmount `json:"cardholder_amount,omitempty"`
	MerchantAmount   FlexAmount `json:"merchant_amount,omitempty"`
}

// RawMerchant holds merchant descriptor fields from the upstream feed.
type RawMerchant struct {
	Name    string `json:"name,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Country string `json:"country,omitempty"`
	MCC     string `json:"mcc,omitempty"`
}

// FlexAmount decodes a monetary amount that upstream feeds send either as a
// JSON number or as a numeric string ("42.50"). A null, missing, or
// non-numeric value decodes to an absent amount rather than an error, since
// the normalizer substitutes a documented default in that case.
type FlexAmount struct {
	Value *float64
}

// UnmarshalJSON implements lenient decoding. It never returns an error for a
// syntactically valid JSON value; shapes it cannot interpret simply leave
// Value nil.
func (f *FlexAmount) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		f.Value = nil
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var text string
		if err := json.Unmarshal(b, &text); err != nil {
			f.Value = nil
			return nil
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			f.Value = nil
			return nil
		}
		f.Value = &v
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		f.Value = nil
		return nil
	}
	f.Value = &v
	return nil
}

// MarshalJSON round-trips the decoded value; absent amounts marshal as null.
func (f FlexAmount) MarshalJSON() ([]byte, error) {
	if f.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*f.Value)
}
