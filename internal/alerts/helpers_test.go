package alerts

import (
	"context"
	"errors"
	"sync"
	"time"

	"fraudwatch/internal/types"
)

// mockLogger implements types.Logger and discards everything.
type mockLogger struct{}

func (mockLogger) Info(msg string, args ...any)  {}
func (mockLogger) Error(msg string, args ...any) {}
func (mockLogger) Warn(msg string, args ...any)  {}
func (m mockLogger) With(args ...any) types.Logger {
	return m
}

// fakeClock implements types.Clock with a manually advanced instant.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// mockSink records deliveries and can be scripted to fail or panic.
type mockSink struct {
	mu        sync.Mutex
	delivered [][]byte
	failNext  int
	failAll   bool
	panicAll  bool
}

func (s *mockSink) Deliver(_ context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panicAll {
		panic("sink exploded")
	}
	if s.failAll || s.failNext > 0 {
		if s.failNext > 0 {
			s.failNext--
		}
		return errors.New("write refused")
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	s.delivered = append(s.delivered, cp)
	return nil
}

func (s *mockSink) deliveredCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.delivered)
}

// testAlert builds a minimal canonical alert for registry tests.
func testAlert(cardToken string, alertType types.AlertType) types.Alert {
	return types.Alert{
		AlertType:     alertType,
		Timestamp:     time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC),
		TransactionID: "txn_test",
		CardToken:     cardToken,
		Immediate: types.AlertImmediate{
			Amount:   "$25.00",
			Merchant: "Coffee Shop",
			Location: "Portland, OR, USA",
			Status:   "PENDING",
		},
	}
}

func floatPtr(v float64) *float64 { return &v }
