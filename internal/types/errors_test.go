package types

import (
	"errors"
	"net/http"
	"testing"
)

func TestAppError_ErrorFormat(t *testing.T) {
	appErr := &AppError{
		Code:    ErrCodeNotFoundSubscription,
		Message: "subscription not found",
	}

	expected := "not_found_subscription: subscription not found"
	if appErr.Error() != expected {
		t.Errorf("Error() = %q, want %q", appErr.Error(), expected)
	}
}

func TestAppError_Unwrap(t *testing.T) {
	underlying := errors.New("insert failed")
	appErr := NewAppError(ErrCodeInternalStore, "failed to record alert", underlying)

	if !errors.Is(appErr, underlying) {
		t.Errorf("expected errors.Is to see through the chain")
	}
	if appErr.Unwrap() != underlying {
		t.Errorf("Unwrap() = %v, want %v", appErr.Unwrap(), underlying)
	}
}

func TestErrorCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeValidationInvalidJSON, http.StatusBadRequest},
		{ErrCodeValidationMissingField, http.StatusBadRequest},
		{ErrCodeFormatInvalidAlert, http.StatusBadRequest},
		{ErrCodeNotFoundSubscription, http.StatusNotFound},
		{ErrCodeNotFoundSession, http.StatusNotFound},
		{ErrCodeSubscriptionInactive, http.StatusConflict},
		{ErrCodeSubscriptionExpired, http.StatusGone},
		{ErrCodeDeliveryFailed, http.StatusBadGateway},
		{ErrCodeInternalUnexpected, http.StatusInternalServerError},
		{ErrCodeInternalStore, http.StatusInternalServerError},
		{ErrorCode("something_new"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := tt.code.HTTPStatus(); got != tt.want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", tt.code, got, tt.want)
		}
	}
}

func TestAppError_WithDetails(t *testing.T) {
	base := NewAppErrorWithDetails(ErrCodeValidationInvalidField, "invalid", nil,
		map[string]any{"CardToken": "required"})
	merged := base.WithDetails(map[string]any{"Duration": "max"})

	if merged.Details["CardToken"] != "required" || merged.Details["Duration"] != "max" {
		t.Errorf("WithDetails did not merge: %v", merged.Details)
	}
	if _, ok := base.Details["Duration"]; ok {
		t.Error("WithDetails mutated the original error")
	}
}
