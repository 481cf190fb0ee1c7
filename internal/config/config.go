// Package config defines the global configuration structure for the FraudWatch
// service. Configuration is loaded once at process initialization and is
// immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> Struct Defaults (Lowest)
//
// Any missing required value or invalid format causes the application to fail
// immediately on startup (fail fast).
package config

import (
	"time"

	"fraudwatch/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the FraudWatch service.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require
// (Least Privilege principle).
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"fraudwatch"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server   ServerConfig
	Alerting AlertingConfig
	AWS      AWSConfig
	Database DatabaseConfig
	Feature  FeatureConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"15s"`
	// WebSocket write deadline applied per delivery on streaming connections.
	StreamWriteTimeout time.Duration `envconfig:"STREAM_WRITE_TIMEOUT" default:"5s"`
}

// AlertingConfig holds the tunable parameters of the alert distribution
// engine. The capacities and attempt limits were fixed constants in earlier
// revisions; they are configuration now, with the historical values as
// defaults.
type AlertingConfig struct {
	// Pull path
	QueueCapacity     int           `envconfig:"ALERT_QUEUE_CAPACITY" default:"1000" validate:"min=1"`
	DefaultTTL        time.Duration `envconfig:"SUBSCRIPTION_DEFAULT_TTL" default:"4h"`
	SubscriptionSweep time.Duration `envconfig:"SUBSCRIPTION_SWEEP_INTERVAL" default:"60s"`
	DefaultPollLimit  int           `envconfig:"POLL_DEFAULT_LIMIT" default:"50" validate:"min=1,max=100"`

	// Push path
	RetryBufferCapacity int           `envconfig:"RETRY_BUFFER_CAPACITY" default:"10" validate:"min=1"`
	MaxDeliveryAttempts int           `envconfig:"MAX_DELIVERY_ATTEMPTS" default:"3" validate:"min=1"`
	ConnectionSweep     time.Duration `envconfig:"CONNECTION_SWEEP_INTERVAL" default:"30s"`
	StaleConnectionAge  time.Duration `envconfig:"STALE_CONNECTION_AGE" default:"5m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
// DLQ and CloudWatch integration are optional; empty identifiers disable them.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// DeadLetterQueueURL receives push messages dropped after exhausting
	// delivery retries. Empty disables dead-letter forwarding.
	DeadLetterQueueURL string `envconfig:"SQS_DELIVERY_DLQ" validate:"omitempty,url"`

	// MetricsInterval controls how often the telemetry publisher emits the
	// engine snapshot to CloudWatch.
	MetricsInterval time.Duration `envconfig:"METRICS_PUBLISH_INTERVAL" default:"60s"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// DatabaseConfig holds the optional audit store connection and pool tuning
// parameters. An empty URL disables alert audit recording.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// FeatureConfig holds emergency kill switches for system capabilities.
type FeatureConfig struct {
	EnableCloudWatch bool `envconfig:"FEATURE_ENABLE_CLOUDWATCH" default:"false"`
	EnableAudit      bool `envconfig:"FEATURE_ENABLE_AUDIT" default:"false"`
	EnableDeadLetter bool `envconfig:"FEATURE_ENABLE_DLQ" default:"false"`
}
