// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC timezone to prevent drift bugs.
//  2. Load .env file via godotenv (non-fatal if absent).
//  3. Use envconfig to process struct tags and populate the Config struct.
//  4. Validate the struct using go-playground/validator.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// LoadConfig loads and validates the FraudWatch configuration.
//
// godotenv.Load silently succeeds when no .env file exists in the working
// directory and never overrides variables already present in the OS
// environment, preserving the priority chain documented on Config.
func LoadConfig() (*Config, error) {
	// Enforce UTC timezone to prevent drift bugs in expiry math.
	time.Local = time.UTC

	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("processing environment config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validateConfig runs struct-tag validation plus the cross-field rules that
// tags cannot express.
func validateConfig(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Feature switches require their backing resource to be configured.
	if cfg.Feature.EnableDeadLetter && cfg.AWS.DeadLetterQueueURL == "" {
		return fmt.Errorf("invalid configuration: FEATURE_ENABLE_DLQ requires SQS_DELIVERY_DLQ")
	}
	if cfg.Feature.EnableAudit && cfg.Database.URL.Unmask() == "" {
		return fmt.Errorf("invalid configuration: FEATURE_ENABLE_AUDIT requires DATABASE_URL")
	}

	return nil
}
