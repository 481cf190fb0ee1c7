package alerts

import (
	"regexp"
	"strconv"
	"sync"
	"time"

	"fraudwatch/internal/types"
)

// durationPattern is the fixed grammar for subscription duration strings:
// an integer count followed by a unit of minutes, hours, or days.
var durationPattern = regexp.MustCompile(`^(\d+)([mhd])$`)

// SubscriptionConfig carries the caller-supplied parameters for a new
// subscription. Empty CardTokens or AlertTypes means "match all".
type SubscriptionConfig struct {
	CardTokens    []string
	AlertTypes    []types.AlertType
	RiskThreshold *float64
	Duration      string
}

// SubscriptionView is an immutable copy of a subscription's externally
// visible state, returned by Create.
type SubscriptionView struct {
	ID            string             `json:"subscription_id"`
	CardTokens    []string           `json:"card_tokens"`
	AlertTypes    []types.AlertType  `json:"alert_types"`
	RiskThreshold *float64           `json:"risk_threshold,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	ExpiresAt     time.Time          `json:"expires_at"`
	Active        bool               `json:"active"`
}

// SubscriptionStatus is the diagnostic snapshot returned by Status.
type SubscriptionStatus struct {
	ID            string              `json:"subscription_id"`
	Active        bool                `json:"active"`
	Expired       bool                `json:"expired"`
	QueueDepth    int                 `json:"queue_depth"`
	TimeRemaining time.Duration       `json:"time_remaining_ms"`
	CreatedAt     time.Time           `json:"created_at"`
	ExpiresAt     time.Time           `json:"expires_at"`
	LastPolled    *time.Time          `json:"last_polled,omitempty"`
	PollCount     int64               `json:"poll_count"`
	TotalReceived int64               `json:"total_alerts_received"`
	RecentSample  []types.QueuedAlert `json:"recent_sample,omitempty"`
}

// statusSampleSize bounds the diagnostic sample of queued alerts in Status.
const statusSampleSize = 3

// subscription is the registry-private record. The registry exclusively owns
// every record and its queue; nothing outside this package mutates them.
type subscription struct {
	id            string
	cardTokens    map[string]struct{}
	alertTypes    map[types.AlertType]struct{}
	riskThreshold *float64
	createdAt     time.Time
	expiresAt     time.Time
	active        bool
	lastPolled    *time.Time
	pollCount     int64
	totalReceived int64
	queue         []types.QueuedAlert
}

// matches evaluates the fan-out predicate against an alert:
// empty card token set OR contains the alert's card token, AND empty alert
// type set OR contains the alert's type, AND no risk threshold OR the alert
// carries no risk score OR the score meets the threshold.
func (s *subscription) matches(alert types.Alert) bool {
	if len(s.cardTokens) > 0 {
		if _, ok := s.cardTokens[alert.CardToken]; !ok {
			return false
		}
	}
	if len(s.alertTypes) > 0 {
		if _, ok := s.alertTypes[alert.AlertType]; !ok {
			return false
		}
	}
	if s.riskThreshold != nil && alert.RiskScore != nil && *alert.RiskScore < *s.riskThreshold {
		return false
	}
	return true
}

// SubscriptionRegistry owns all subscription records and their bounded alert
// queues. Every operation is a critical section guarded by a single mutex, so
// Poll's read-and-clear and Enqueue's append-and-evict are atomic relative to
// each other.
type SubscriptionRegistry struct {
	mu   sync.Mutex
	subs map[string]*subscription

	clock  types.Clock
	logger types.Logger

	queueCapacity int
	defaultTTL    time.Duration

	// Monotonic counters surfaced through Stats.
	totalPolled int64
	sweepCycles int64
}

// NewSubscriptionRegistry creates an empty registry. queueCapacity bounds
// each subscription's FIFO queue; defaultTTL is applied when a duration
// string cannot be parsed.
func NewSubscriptionRegistry(queueCapacity int, defaultTTL time.Duration, clock types.Clock, logger types.Logger) *SubscriptionRegistry {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &SubscriptionRegistry{
		subs:          make(map[string]*subscription),
		clock:         clock,
		logger:        logger,
		queueCapacity: queueCapacity,
		defaultTTL:    defaultTTL,
	}
}

// ParseDuration parses a subscription duration string against the fixed
// grammar ^\d+[mhd]$ (minutes, hours, days). Unparseable input falls back to
// the provided default rather than failing, since the value only governs a
// TTL, not correctness-critical state. The second return reports whether the
// input parsed.
func ParseDuration(s string, fallback time.Duration) (time.Duration, bool) {
	m := durationPattern.FindStringSubmatch(s)
	if m == nil {
		return fallback, false
	}
	count, err := strconv.Atoi(m[1])
	if err != nil {
		// Only reachable for counts overflowing int; treat as unparseable.
		return fallback, false
	}
	switch m[2] {
	case "m":
		return time.Duration(count) * time.Minute, true
	case "h":
		return time.Duration(count) * time.Hour, true
	case "d":
		return time.Duration(count) * 24 * time.Hour, true
	default:
		return fallback, false
	}
}

// Create registers a subscription under the externally assigned ID and
// returns its initial view. Re-creating an existing ID replaces the previous
// record and discards its queue (re-subscribe semantics).
func (r *SubscriptionRegistry) Create(id string, cfg SubscriptionConfig) (SubscriptionView, error) {
	if id == "" {
		return SubscriptionView{}, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"subscription_id must not be empty",
			nil,
		)
	}

	ttl, ok := ParseDuration(cfg.Duration, r.defaultTTL)
	if !ok && cfg.Duration != "" {
		r.logger.Warn("unparseable subscription duration, using default",
			"subscription_id", id,
			"duration", cfg.Duration,
			"default", r.defaultTTL.String(),
		)
	}

	now := r.clock.Now()
	sub := &subscription{
		id:            id,
		cardTokens:    make(map[string]struct{}, len(cfg.CardTokens)),
		alertTypes:    make(map[types.AlertType]struct{}, len(cfg.AlertTypes)),
		riskThreshold: cfg.RiskThreshold,
		createdAt:     now,
		expiresAt:     now.Add(ttl),
		active:        true,
	}
	for _, t := range cfg.CardTokens {
		sub.cardTokens[t] = struct{}{}
	}
	for _, t := range cfg.AlertTypes {
		sub.alertTypes[t] = struct{}{}
	}

	r.mu.Lock()
	if _, exists := r.subs[id]; exists {
		r.logger.Warn("replacing existing subscription", "subscription_id", id)
	}
	r.subs[id] = sub
	r.mu.Unlock()

	r.logger.Info("subscription created",
		"subscription_id", id,
		"card_tokens", len(cfg.CardTokens),
		"alert_types", len(cfg.AlertTypes),
		"expires_at", sub.expiresAt.Format(time.RFC3339),
	)

	return r.viewOf(sub), nil
}

// viewOf builds an immutable view. Caller must not hold r.mu when the view
// escapes to external code, but reading the record fields is safe here since
// views are built from freshly constructed or lock-held records.
func (r *SubscriptionRegistry) viewOf(sub *subscription) SubscriptionView {
	tokens := make([]string, 0, len(sub.cardTokens))
	for t := range sub.cardTokens {
		tokens = append(tokens, t)
	}
	alertTypes := make([]types.AlertType, 0, len(sub.alertTypes))
	for t := range sub.alertTypes {
		alertTypes = append(alertTypes, t)
	}
	return SubscriptionView{
		ID:            sub.id,
		CardTokens:    tokens,
		AlertTypes:    alertTypes,
		RiskThreshold: sub.riskThreshold,
		CreatedAt:     sub.createdAt,
		ExpiresAt:     sub.expiresAt,
		Active:        sub.active,
	}
}

// Enqueue appends an alert to the subscription's queue, wrapped with queue
// metadata. Returns false when the subscription is unknown or inactive so
// fan-out can skip silently. When the queue exceeds capacity the oldest entry
// is evicted before returning true.
func (r *SubscriptionRegistry) Enqueue(id string, alert types.Alert) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[id]
	if !ok || !sub.active {
		return false
	}

	sub.queue = append(sub.queue, types.QueuedAlert{
		Alert:          alert,
		QueuedAt:       r.clock.Now(),
		SubscriptionID: id,
		Position:       len(sub.queue),
	})
	if len(sub.queue) > r.queueCapacity {
		// Drop-oldest keeps the queue bounded without failing the producer.
		over := len(sub.queue) - r.queueCapacity
		sub.queue = append(sub.queue[:0:0], sub.queue[over:]...)
	}
	sub.totalReceived++

	return true
}

// EnqueueMatching fans one alert out to every active subscription whose
// predicate matches, in a single critical section. Returns the number of
// subscriptions that received the alert. A failure to enqueue for one
// subscription never affects the rest.
func (r *SubscriptionRegistry) EnqueueMatching(alert types.Alert) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	delivered := 0
	now := r.clock.Now()
	for id, sub := range r.subs {
		if !sub.active || !sub.matches(alert) {
			continue
		}
		sub.queue = append(sub.queue, types.QueuedAlert{
			Alert:          alert,
			QueuedAt:       now,
			SubscriptionID: id,
			Position:       len(sub.queue),
		})
		if len(sub.queue) > r.queueCapacity {
			over := len(sub.queue) - r.queueCapacity
			sub.queue = append(sub.queue[:0:0], sub.queue[over:]...)
		}
		sub.totalReceived++
		delivered++
	}
	return delivered
}

// Poll atomically drains and returns up to maxAlerts entries from the head
// of the subscription's queue in FIFO order. No entry is ever returned by two
// Poll calls. maxAlerts <= 0 selects the default of 50; values above 100 are
// clamped.
//
// Expiry is checked lazily here in addition to the periodic sweep: polling an
// expired subscription flips it inactive and fails with
// subscription_expired.
func (r *SubscriptionRegistry) Poll(id string, maxAlerts int) ([]types.QueuedAlert, error) {
	if maxAlerts <= 0 {
		maxAlerts = 50
	}
	if maxAlerts > 100 {
		maxAlerts = 100
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[id]
	if !ok {
		return nil, types.NewAppError(
			types.ErrCodeNotFoundSubscription,
			"subscription not found",
			nil,
		).WithDetails(map[string]any{"subscription_id": id})
	}
	if !sub.active {
		return nil, types.NewAppError(
			types.ErrCodeSubscriptionInactive,
			"subscription is no longer active",
			nil,
		).WithDetails(map[string]any{"subscription_id": id})
	}
	now := r.clock.Now()
	if now.After(sub.expiresAt) {
		sub.active = false
		return nil, types.NewAppError(
			types.ErrCodeSubscriptionExpired,
			"subscription has expired",
			nil,
		).WithDetails(map[string]any{
			"subscription_id": id,
			"expired_at":      sub.expiresAt.Format(time.RFC3339),
		})
	}

	n := maxAlerts
	if n > len(sub.queue) {
		n = len(sub.queue)
	}
	drained := make([]types.QueuedAlert, n)
	copy(drained, sub.queue[:n])
	sub.queue = append(sub.queue[:0:0], sub.queue[n:]...)

	sub.lastPolled = &now
	sub.pollCount++
	r.totalPolled += int64(n)

	return drained, nil
}

// Status returns a diagnostic snapshot of the subscription, including a
// bounded sample of the most recently queued alerts. Unlike Poll it does not
// consume queue entries and does not flip expiry state.
func (r *SubscriptionRegistry) Status(id string) (SubscriptionStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[id]
	if !ok {
		return SubscriptionStatus{}, types.NewAppError(
			types.ErrCodeNotFoundSubscription,
			"subscription not found",
			nil,
		).WithDetails(map[string]any{"subscription_id": id})
	}

	now := r.clock.Now()
	remaining := sub.expiresAt.Sub(now)
	expired := remaining <= 0
	if expired {
		remaining = 0
	}

	sampleStart := len(sub.queue) - statusSampleSize
	if sampleStart < 0 {
		sampleStart = 0
	}
	sample := make([]types.QueuedAlert, len(sub.queue)-sampleStart)
	copy(sample, sub.queue[sampleStart:])

	return SubscriptionStatus{
		ID:            sub.id,
		Active:        sub.active,
		Expired:       expired,
		QueueDepth:    len(sub.queue),
		TimeRemaining: remaining,
		CreatedAt:     sub.createdAt,
		ExpiresAt:     sub.expiresAt,
		LastPolled:    sub.lastPolled,
		PollCount:     sub.pollCount,
		TotalReceived: sub.totalReceived,
		RecentSample:  sample,
	}, nil
}

// Sweep deactivates and removes every expired subscription along with its
// queue, returning the number removed. This is the only path that frees
// memory for subscriptions nobody ever polls.
func (r *SubscriptionRegistry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	removed := 0
	for id, sub := range r.subs {
		if now.After(sub.expiresAt) {
			sub.active = false
			delete(r.subs, id)
			removed++
		}
	}
	r.sweepCycles++

	if removed > 0 {
		r.logger.Info("expired subscriptions removed",
			"count", removed,
			"remaining", len(r.subs),
		)
	}

	return removed
}

// Close discards all subscriptions. Called once during shutdown, after the
// periodic sweeps have stopped.
func (r *SubscriptionRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = make(map[string]*subscription)
}

// SubscriptionStats is the registry's contribution to the metrics snapshot.
type SubscriptionStats struct {
	Total       int
	Active      int
	QueuedTotal int64
	PolledTotal int64
	AvgQueue    float64
	SweepCycles int64
}

// Stats computes the registry rollup in one critical section.
func (r *SubscriptionRegistry) Stats() SubscriptionStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := SubscriptionStats{
		Total:       len(r.subs),
		PolledTotal: r.totalPolled,
		SweepCycles: r.sweepCycles,
	}
	depthSum := 0
	for _, sub := range r.subs {
		if sub.active {
			stats.Active++
		}
		depthSum += len(sub.queue)
		stats.QueuedTotal += sub.totalReceived
	}
	if len(r.subs) > 0 {
		stats.AvgQueue = float64(depthSum) / float64(len(r.subs))
	}
	return stats
}
