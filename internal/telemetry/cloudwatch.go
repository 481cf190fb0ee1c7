// Package telemetry publishes the engine's metrics snapshot to CloudWatch on
// a fixed period. The snapshot itself remains available in-process through
// the metrics endpoint regardless of whether CloudWatch publishing is
// enabled.
package telemetry

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"fraudwatch/internal/alerts"
	"fraudwatch/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// SnapshotSource yields the current engine rollup. Satisfied by
// *alerts.MetricsAggregator.
type SnapshotSource interface {
	Snapshot() alerts.MetricsSnapshot
}

// Publisher emits the metrics snapshot to a CloudWatch namespace.
type Publisher struct {
	client    CloudWatchClient
	source    SnapshotSource
	namespace string
	interval  time.Duration
	logger    types.Logger
}

// NewPublisher creates a Publisher emitting to the standard namespace.
func NewPublisher(client CloudWatchClient, source SnapshotSource, interval time.Duration, logger types.Logger) *Publisher {
	return &Publisher{
		client:    client,
		source:    source,
		namespace: types.MetricNamespace,
		interval:  interval,
		logger:    logger,
	}
}

// Publish emits one snapshot as a single PutMetricData call. Emission
// failures are logged, not returned: telemetry must never disturb the
// engine.
func (p *Publisher) Publish(ctx context.Context) {
	snap := p.source.Snapshot()

	data := []cwtypes.MetricDatum{
		datum(types.MetricTotalSubscriptions, float64(snap.TotalSubscriptions), cwtypes.StandardUnitCount),
		datum(types.MetricActiveSubscriptions, float64(snap.ActiveSubscriptions), cwtypes.StandardUnitCount),
		datum(types.MetricAlertsQueued, float64(snap.TotalAlertsQueued), cwtypes.StandardUnitCount),
		datum(types.MetricAlertsPolled, float64(snap.TotalAlertsPolled), cwtypes.StandardUnitCount),
		datum(types.MetricAverageQueueSize, snap.AverageQueueSize, cwtypes.StandardUnitCount),
		datum(types.MetricCleanupCycles, float64(snap.CleanupCycles), cwtypes.StandardUnitCount),
		datum(types.MetricActiveConnections, float64(snap.ActiveConnections), cwtypes.StandardUnitCount),
		datum(types.MetricAlertsSent, float64(snap.TotalAlertsSent), cwtypes.StandardUnitCount),
		datum(types.MetricFailedDeliveries, float64(snap.FailedDeliveries), cwtypes.StandardUnitCount),
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(p.namespace),
		MetricData: data,
	}
	if _, err := p.client.PutMetricData(ctx, input); err != nil {
		p.logger.Error("failed to publish metrics snapshot",
			"error", err.Error(),
		)
	}
}

// Run blocks, publishing on the configured interval until ctx is cancelled.
// Intended to be run under an errgroup; always returns nil.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("metrics publisher started", "interval", p.interval.String())

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("metrics publisher stopped")
			return nil
		case <-ticker.C:
			p.Publish(ctx)
		}
	}
}

func datum(name string, value float64, unit cwtypes.StandardUnit) cwtypes.MetricDatum {
	return cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(value),
		Unit:       unit,
	}
}
