package types

import (
	"context"
	"time"
)

// Logger defines the structured logging interface used throughout the service.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	With(args ...any) Logger
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// Sink is the write side of a live consumer connection on the push path.
// Any handle that accepts a single payload write qualifies: a WebSocket
// connection, an HTTP POST target, or an in-process channel in tests.
//
// Deliver is a single blocking write-or-send call. Implementations are
// responsible for bounding their own write time (deadlines, timeouts); the
// ConnectionRegistry never imposes one. A non-nil error marks the delivery
// attempt as failed.
type Sink interface {
	Deliver(ctx context.Context, payload []byte) error
}
