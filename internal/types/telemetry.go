package types

// Telemetry metric names for CloudWatch.
// All components MUST use these constants.
const (
	// Metric Names
	MetricTotalSubscriptions  = "TotalSubscriptions"
	MetricActiveSubscriptions = "ActiveSubscriptions"
	MetricAlertsQueued        = "AlertsQueued"
	MetricAlertsPolled        = "AlertsPolled"
	MetricAverageQueueSize    = "AverageQueueSize"
	MetricCleanupCycles       = "CleanupCycles"
	MetricActiveConnections   = "ActiveConnections"
	MetricAlertsSent          = "AlertsSent"
	MetricFailedDeliveries    = "FailedDeliveries"

	// Dimension Keys
	DimTransport = "Transport"
	DimResult    = "Result"
	DimEventType = "EventType"

	// Metric Namespace
	MetricNamespace = "FraudWatch"
)
