package alerts

// MetricsSnapshot is the read-only rollup over both registries exposed to
// observability collaborators. It is a point-in-time copy, not authoritative
// state.
type MetricsSnapshot struct {
	TotalSubscriptions  int     `json:"total_subscriptions"`
	ActiveSubscriptions int     `json:"active_subscriptions"`
	TotalAlertsQueued   int64   `json:"total_alerts_queued"`
	TotalAlertsPolled   int64   `json:"total_alerts_polled"`
	AverageQueueSize    float64 `json:"average_queue_size"`
	CleanupCycles       int64   `json:"cleanup_cycles"`
	ActiveConnections   int     `json:"active_connections"`
	TotalAlertsSent     int64   `json:"total_alerts_sent"`
	FailedDeliveries    int64   `json:"failed_deliveries"`
}

// MetricsAggregator reads from the two registries through their public Stats
// operations. It holds no state of its own.
type MetricsAggregator struct {
	subs  *SubscriptionRegistry
	conns *ConnectionRegistry
}

// NewMetricsAggregator wires the aggregator over both registries.
func NewMetricsAggregator(subs *SubscriptionRegistry, conns *ConnectionRegistry) *MetricsAggregator {
	return &MetricsAggregator{subs: subs, conns: conns}
}

// Snapshot collects the current rollup. The two registries are sampled
// independently; the snapshot is internally consistent per registry but not
// across them, which is sufficient for observability.
func (m *MetricsAggregator) Snapshot() MetricsSnapshot {
	subStats := m.subs.Stats()
	connStats := m.conns.Stats()

	return MetricsSnapshot{
		TotalSubscriptions:  subStats.Total,
		ActiveSubscriptions: subStats.Active,
		TotalAlertsQueued:   subStats.QueuedTotal,
		TotalAlertsPolled:   subStats.PolledTotal,
		AverageQueueSize:    subStats.AvgQueue,
		CleanupCycles:       subStats.SweepCycles + connStats.SweepCycles,
		ActiveConnections:   connStats.Active,
		TotalAlertsSent:     connStats.TotalSent,
		FailedDeliveries:    connStats.TotalFailed,
	}
}
