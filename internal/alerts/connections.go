package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"fraudwatch/internal/types"
)

// DeadLetterPublisher receives push messages the retry sweep drops after
// exhausting delivery attempts. Implemented by the SQS forwarder in
// internal/queue; a nil publisher disables forwarding.
type DeadLetterPublisher interface {
	PublishFailedDelivery(ctx context.Context, msg types.PushMessage, attempts int, reason string) error
}

// BroadcastResult reports the outcome of one push fan-out.
type BroadcastResult struct {
	Successful int               `json:"successful"`
	Failed     int               `json:"failed"`
	Sessions   map[string]string `json:"sessions,omitempty"`
}

// retryEntry is one buffered message awaiting redelivery.
type retryEntry struct {
	msg      types.PushMessage
	queuedAt time.Time
	attempts int
}

// connection is the registry-private record for one live consumer session.
type connection struct {
	sessionID    string
	cardToken    string
	sink         types.Sink
	connectedAt  time.Time
	lastActivity time.Time
	active       bool
	retry        []retryEntry
}

// ConnectionRegistry owns live consumer connections, the card-token to
// session-set index, and the per-connection retry buffers. The index is
// maintained in the same critical section as connection create/remove so the
// two can never diverge.
//
// Sink writes happen outside the registry lock: delivery is the only point
// where this component blocks, and its duration is bounded by the sink
// itself, never by the registry.
type ConnectionRegistry struct {
	mu     sync.Mutex
	conns  map[string]*connection
	byCard map[string]map[string]struct{}

	clock  types.Clock
	logger types.Logger

	retryCapacity int
	maxAttempts   int
	staleAfter    time.Duration

	deadLetter DeadLetterPublisher

	totalSent   int64
	totalFailed int64
	sweepCycles int64
}

// NewConnectionRegistry creates an empty registry. retryCapacity bounds each
// connection's retry buffer, maxAttempts bounds redelivery attempts per
// message, and staleAfter is the inactivity age at which StaleSweep removes
// a connection.
func NewConnectionRegistry(retryCapacity, maxAttempts int, staleAfter time.Duration, clock types.Clock, logger types.Logger) *ConnectionRegistry {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &ConnectionRegistry{
		conns:         make(map[string]*connection),
		byCard:        make(map[string]map[string]struct{}),
		clock:         clock,
		logger:        logger,
		retryCapacity: retryCapacity,
		maxAttempts:   maxAttempts,
		staleAfter:    staleAfter,
	}
}

// SetDeadLetterPublisher wires the optional dead-letter forwarder. Must be
// called before the sweeps start.
func (r *ConnectionRegistry) SetDeadLetterPublisher(p DeadLetterPublisher) {
	r.deadLetter = p
}

// Register inserts a connection record for the session, updates the
// card-to-sessions index, and initializes an empty retry buffer. The insert
// is all-or-nothing: on a false return no partial state remains. Registering
// an existing session ID replaces the previous connection.
func (r *ConnectionRegistry) Register(sessionID, cardToken string, sink types.Sink) bool {
	if sessionID == "" || cardToken == "" || sink == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[sessionID]; exists {
		r.removeLocked(sessionID)
		r.logger.Warn("replacing existing connection", "session_id", sessionID)
	}

	now := r.clock.Now()
	r.conns[sessionID] = &connection{
		sessionID:    sessionID,
		cardToken:    cardToken,
		sink:         sink,
		connectedAt:  now,
		lastActivity: now,
		active:       true,
	}
	set, ok := r.byCard[cardToken]
	if !ok {
		set = make(map[string]struct{})
		r.byCard[cardToken] = set
	}
	set[sessionID] = struct{}{}

	r.logger.Info("connection registered",
		"session_id", sessionID,
		"card_token", cardToken,
	)

	return true
}

// Remove deletes the connection, prunes the card-to-sessions index (removing
// the card entry entirely once its session set empties), and discards the
// retry buffer. Returns false when the session is unknown.
func (r *ConnectionRegistry) Remove(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(sessionID)
}

// removeLocked requires r.mu to be held.
func (r *ConnectionRegistry) removeLocked(sessionID string) bool {
	conn, ok := r.conns[sessionID]
	if !ok {
		return false
	}
	conn.active = false
	conn.retry = nil
	delete(r.conns, sessionID)

	if set, ok := r.byCard[conn.cardToken]; ok {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(r.byCard, conn.cardToken)
		}
	}

	r.logger.Info("connection removed", "session_id", sessionID)
	return true
}

// Broadcast delivers the alert to every active session monitoring cardToken.
// Lookup is an exact match on the card token; there is no wildcard fan-out on
// the push path. Each session's delivery is attempted independently: a
// failure is captured per session and never aborts delivery to the rest.
//
// On success the session's lastActivity is refreshed and its retry buffer is
// cleared. On failure the message is appended to the retry buffer unless the
// buffer is full, in which case the failure is still reported but nothing is
// buffered.
//
// A card with zero registered sessions yields an empty result with no side
// effects.
func (r *ConnectionRegistry) Broadcast(ctx context.Context, cardToken string, alert types.Alert) BroadcastResult {
	type target struct {
		sessionID string
		sink      types.Sink
		msg       types.PushMessage
		payload   []byte
	}

	now := r.clock.Now()

	r.mu.Lock()
	sessionIDs, ok := r.byCard[cardToken]
	if !ok || len(sessionIDs) == 0 {
		r.mu.Unlock()
		return BroadcastResult{Sessions: map[string]string{}}
	}
	targets := make([]target, 0, len(sessionIDs))
	for id := range sessionIDs {
		conn, ok := r.conns[id]
		if !ok || !conn.active {
			continue
		}
		msg := types.PushMessage{
			MessageID: uuid.NewString(),
			SessionID: id,
			CardToken: cardToken,
			Alert:     alert,
			SentAt:    now,
		}
		payload, err := json.Marshal(msg)
		if err != nil {
			// Alert contains only marshalable fields; treat as an
			// internal bug and skip the session rather than panic.
			r.logger.Error("failed to marshal push message",
				"session_id", id,
				"error", err.Error(),
			)
			continue
		}
		targets = append(targets, target{sessionID: id, sink: conn.sink, msg: msg, payload: payload})
	}
	r.mu.Unlock()

	result := BroadcastResult{Sessions: make(map[string]string, len(targets))}
	for _, t := range targets {
		err := deliver(ctx, t.sink, t.payload)

		r.mu.Lock()
		conn, stillThere := r.conns[t.sessionID]
		if err == nil {
			result.Successful++
			result.Sessions[t.sessionID] = "delivered"
			r.totalSent++
			if stillThere {
				conn.lastActivity = r.clock.Now()
				conn.retry = conn.retry[:0]
			}
		} else {
			result.Failed++
			result.Sessions[t.sessionID] = fmt.Sprintf("failed: %v", err)
			r.totalFailed++
			if stillThere && len(conn.retry) < r.retryCapacity {
				conn.retry = append(conn.retry, retryEntry{
					msg:      t.msg,
					queuedAt: r.clock.Now(),
					attempts: 1,
				})
			}
			r.logger.Warn("push delivery failed",
				"session_id", t.sessionID,
				"message_id", t.msg.MessageID,
				"error", err.Error(),
			)
		}
		r.mu.Unlock()
	}

	return result
}

// deliver invokes the sink, converting a panic from an externally supplied
// sink into an ordinary delivery failure so one bad consumer cannot take
// down the fan-out.
func deliver(ctx context.Context, sink types.Sink, payload []byte) (err error) {
	defer func() {
		if rvr := recover(); rvr != nil {
			err = fmt.Errorf("sink panicked: %v", rvr)
		}
	}()
	return sink.Deliver(ctx, payload)
}

// RetrySweep attempts redelivery of every buffered message on every
// connection. Successful redeliveries leave the buffer; failed ones have
// their attempt counter incremented and are re-buffered unless the counter
// reaches the maximum, in which case the message is dropped, logged as
// permanently failed, and forwarded to the dead-letter publisher when one is
// configured.
func (r *ConnectionRegistry) RetrySweep(ctx context.Context) {
	type pending struct {
		sessionID string
		sink      types.Sink
		entries   []retryEntry
	}

	r.mu.Lock()
	work := make([]pending, 0)
	for id, conn := range r.conns {
		if !conn.active || len(conn.retry) == 0 {
			continue
		}
		entries := make([]retryEntry, len(conn.retry))
		copy(entries, conn.retry)
		// Claim the buffered entries; surviving failures are re-buffered
		// below. This keeps redelivery outside the lock without a window
		// where Broadcast could duplicate them.
		conn.retry = conn.retry[:0]
		work = append(work, pending{sessionID: id, sink: conn.sink, entries: entries})
	}
	r.mu.Unlock()

	for _, p := range work {
		for _, entry := range p.entries {
			payload, err := json.Marshal(entry.msg)
			if err != nil {
				r.logger.Error("failed to marshal buffered message",
					"session_id", p.sessionID,
					"message_id", entry.msg.MessageID,
					"error", err.Error(),
				)
				continue
			}
			deliverErr := deliver(ctx, p.sink, payload)

			r.mu.Lock()
			conn, stillThere := r.conns[p.sessionID]
			if deliverErr == nil {
				r.totalSent++
				if stillThere {
					conn.lastActivity = r.clock.Now()
				}
				r.mu.Unlock()
				continue
			}

			entry.attempts++
			if entry.attempts >= r.maxAttempts {
				r.logger.Error("push delivery permanently failed",
					"session_id", p.sessionID,
					"message_id", entry.msg.MessageID,
					"attempts", entry.attempts,
					"error", deliverErr.Error(),
				)
				r.mu.Unlock()
				if r.deadLetter != nil {
					if dlqErr := r.deadLetter.PublishFailedDelivery(ctx, entry.msg, entry.attempts, deliverErr.Error()); dlqErr != nil {
						r.logger.Error("dead-letter publish failed",
							"message_id", entry.msg.MessageID,
							"error", dlqErr.Error(),
						)
					}
				}
				continue
			}
			if stillThere && len(conn.retry) < r.retryCapacity {
				conn.retry = append(conn.retry, entry)
			}
			r.mu.Unlock()
		}
	}

	r.mu.Lock()
	r.sweepCycles++
	r.mu.Unlock()
}

// StaleSweep removes every connection whose lastActivity is older than the
// staleness threshold, returning the number removed.
func (r *ConnectionRegistry) StaleSweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.clock.Now().Add(-r.staleAfter)
	removed := 0
	for id, conn := range r.conns {
		if conn.lastActivity.Before(cutoff) {
			r.removeLocked(id)
			removed++
		}
	}
	r.sweepCycles++

	if removed > 0 {
		r.logger.Info("stale connections removed",
			"count", removed,
			"remaining", len(r.conns),
		)
	}

	return removed
}

// Shutdown releases every remaining connection. The caller must stop the
// periodic sweeps first so no sweep fires against the registry mid-teardown.
func (r *ConnectionRegistry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.conns {
		r.removeLocked(id)
	}
}

// SessionsForCard returns the session IDs currently monitoring the card.
// Intended for diagnostics and tests.
func (r *ConnectionRegistry) SessionsForCard(cardToken string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.byCard[cardToken]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// RetryBufferLen reports the retry buffer depth for a session. Intended for
// diagnostics and tests.
func (r *ConnectionRegistry) RetryBufferLen(sessionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[sessionID]
	if !ok {
		return 0
	}
	return len(conn.retry)
}

// ConnectionStats is the registry's contribution to the metrics snapshot.
type ConnectionStats struct {
	Active      int
	TotalSent   int64
	TotalFailed int64
	SweepCycles int64
}

// Stats computes the registry rollup in one critical section.
func (r *ConnectionRegistry) Stats() ConnectionStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ConnectionStats{
		Active:      len(r.conns),
		TotalSent:   r.totalSent,
		TotalFailed: r.totalFailed,
		SweepCycles: r.sweepCycles,
	}
}
