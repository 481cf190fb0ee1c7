package alerts

import (
	"errors"
	"testing"
	"time"

	"fraudwatch/internal/types"
)

func TestNormalizer_Decode_CanonicalAlert(t *testing.T) {
	n := NewNormalizer(nil)

	data := []byte(`{
		"alert_type": "fraud_detected",
		"timestamp": "2026-01-15T12:00:00Z",
		"transaction_id": "txn_1",
		"card_token": "card_A",
		"immediate": {"amount": "$42.50", "merchant": "Acme", "location": "NYC", "status": "PENDING"},
		"verification": {"mcc_code": "5812"},
		"intelligence": {"is_first_transaction": true},
		"risk_score": 0.91
	}`)

	in, err := n.Decode(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if in.Canonical == nil {
		t.Fatal("expected canonical variant")
	}
	if in.Transaction != nil {
		t.Error("expected transaction variant to be nil")
	}
	if in.Canonical.AlertType != types.AlertFraudDetected {
		t.Errorf("expected fraud_detected, got %s", in.Canonical.AlertType)
	}
	if in.Canonical.RiskScore == nil || *in.Canonical.RiskScore != 0.91 {
		t.Errorf("expected risk score 0.91, got %v", in.Canonical.RiskScore)
	}
}

func TestNormalizer_Decode_RawTransaction(t *testing.T) {
	n := NewNormalizer(nil)

	// No immediate/verification/intelligence sections: raw transaction shape.
	data := []byte(`{
		"token": "txn_raw_1",
		"card_token": "card_B",
		"state": "COMPLETION",
		"amount": "13.37",
		"merchant": {"name": "Acme", "city": "Portland", "state": "OR", "mcc": "5812"}
	}`)

	in, err := n.Decode(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if in.Transaction == nil {
		t.Fatal("expected transaction variant")
	}
	if in.Canonical != nil {
		t.Error("expected canonical variant to be nil")
	}
	if in.Transaction.Token != "txn_raw_1" {
		t.Errorf("expected token txn_raw_1, got %s", in.Transaction.Token)
	}
	if in.Transaction.Amount.Value == nil || *in.Transaction.Amount.Value != 13.37 {
		t.Errorf("expected amount 13.37, got %v", in.Transaction.Amount.Value)
	}
}

func TestNormalizer_Decode_PartialCanonicalSectionsFallsBackToTransaction(t *testing.T) {
	n := NewNormalizer(nil)

	// alert_type present but the other sections missing: not canonical.
	data := []byte(`{"alert_type": "fraud_detected", "card_token": "card_C"}`)

	in, err := n.Decode(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if in.Transaction == nil {
		t.Fatal("expected transaction variant for partial canonical shape")
	}
}

func TestNormalizer_Decode_MalformedJSON(t *testing.T) {
	n := NewNormalizer(nil)

	_, err := n.Decode([]byte(`{not json`))
	if err == nil {
		t.Fatal("expected error for malformed JSON")
	}
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeFormatInvalidAlert {
		t.Errorf("expected format_invalid_alert, got %s", appErr.Code)
	}
}

func TestNormalizer_Normalize_CanonicalPassthrough(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC))
	n := NewNormalizer(clock)

	alert := testAlert("card_A", types.AlertFraudDetected)
	out, err := n.Normalize(types.RawAlertInput{Canonical: &alert})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.AlertType != types.AlertFraudDetected {
		t.Errorf("expected fraud_detected, got %s", out.AlertType)
	}
	if !out.Timestamp.Equal(alert.Timestamp) {
		t.Errorf("expected original timestamp preserved, got %v", out.Timestamp)
	}
}

func TestNormalizer_Normalize_CanonicalMissingTimestampStamped(t *testing.T) {
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	n := NewNormalizer(newFakeClock(now))

	alert := testAlert("card_A", types.AlertFraudDetected)
	alert.Timestamp = time.Time{}
	out, err := n.Normalize(types.RawAlertInput{Canonical: &alert})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Timestamp.Equal(now) {
		t.Errorf("expected clock timestamp %v, got %v", now, out.Timestamp)
	}
}

func TestNormalizer_Normalize_EmptyTransactionDefaults(t *testing.T) {
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	n := NewNormalizer(newFakeClock(now))

	out, err := n.Normalize(types.RawAlertInput{Transaction: &types.RawTransaction{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.AlertType != types.AlertNewTransaction {
		t.Errorf("expected NEW_TRANSACTION, got %s", out.AlertType)
	}
	if out.Immediate.Amount != "$0.00" {
		t.Errorf("expected default amount $0.00, got %s", out.Immediate.Amount)
	}
	if out.Immediate.Merchant != "Unknown Merchant" {
		t.Errorf("expected default merchant, got %s", out.Immediate.Merchant)
	}
	if out.Immediate.Location != "Unknown Location" {
		t.Errorf("expected default location, got %s", out.Immediate.Location)
	}
	if out.Immediate.Status != "PENDING" {
		t.Errorf("expected default status PENDING, got %s", out.Immediate.Status)
	}
	if !out.Timestamp.Equal(now) {
		t.Errorf("expected clock timestamp, got %v", out.Timestamp)
	}
}

func TestNormalizer_Normalize_AmountPriority(t *testing.T) {
	n := NewNormalizer(nil)

	cases := []struct {
		name string
		tx   types.RawTransaction
		want string
	}{
		{
			name: "cardholder amount wins over everything",
			tx: types.RawTransaction{
				Amounts: &types.RawAmounts{
					Cardholder: types.FlexAmount{Value: floatPtr(10)},
					Merchant:   types.FlexAmount{Value: floatPtr(20)},
				},
				Amount: types.FlexAmount{Value: floatPtr(30)},
			},
			want: "$10.00",
		},
		{
			name: "merchant amount when cardholder absent",
			tx: types.RawTransaction{
				Amounts: &types.RawAmounts{
					Merchant: types.FlexAmount{Value: floatPtr(20)},
				},
				Amount: types.FlexAmount{Value: floatPtr(30)},
			},
			want: "$20.00",
		},
		{
			name: "flat amount when amounts absent",
			tx: types.RawTransaction{
				Amount: types.FlexAmount{Value: floatPtr(30.5)},
			},
			want: "$30.50",
		},
		{
			name: "network event cardholder amount as fallback",
			tx: types.RawTransaction{
				NetworkEvent: &types.RawNetworkEvent{
					CardholderAmount: types.FlexAmount{Value: floatPtr(40)},
					MerchantAmount:   types.FlexAmount{Value: floatPtr(50)},
				},
			},
			want: "$40.00",
		},
		{
			name: "network event merchant amount as last resort",
			tx: types.RawTransaction{
				NetworkEvent: &types.RawNetworkEvent{
					MerchantAmount: types.FlexAmount{Value: floatPtr(50)},
				},
			},
			want: "$50.00",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := n.Normalize(types.RawAlertInput{Transaction: &tc.tx})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if out.Immediate.Amount != tc.want {
				t.Errorf("expected %s, got %s", tc.want, out.Immediate.Amount)
			}
		})
	}
}

func TestNormalizer_Normalize_MerchantMapping(t *testing.T) {
	n := NewNormalizer(nil)

	out, err := n.Normalize(types.RawAlertInput{Transaction: &types.RawTransaction{
		Merchant: &types.RawMerchant{
			Name:    "Acme Diner",
			City:    "Portland",
			State:   "OR",
			Country: "USA",
			MCC:     "5812",
		},
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Immediate.Merchant != "Acme Diner" {
		t.Errorf("expected merchant name, got %s", out.Immediate.Merchant)
	}
	if out.Immediate.Location != "Portland, OR, USA" {
		t.Errorf("expected joined location, got %s", out.Immediate.Location)
	}
	if out.Verification.MCCCode != "5812" {
		t.Errorf("expected mcc code 5812, got %s", out.Verification.MCCCode)
	}
}

func TestNormalizer_Normalize_StatusPreference(t *testing.T) {
	n := NewNormalizer(nil)

	out, err := n.Normalize(types.RawAlertInput{Transaction: &types.RawTransaction{
		State:  "COMPLETION",
		Status: "SETTLED",
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Immediate.Status != "COMPLETION" {
		t.Errorf("expected state preferred over status, got %s", out.Immediate.Status)
	}
}

func TestNormalizer_Normalize_EmptyInputFails(t *testing.T) {
	n := NewNormalizer(nil)

	_, err := n.Normalize(types.RawAlertInput{})
	if err == nil {
		t.Fatal("expected error for empty input union")
	}
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeFormatInvalidAlert {
		t.Errorf("expected format_invalid_alert, got %s", appErr.Code)
	}
}
