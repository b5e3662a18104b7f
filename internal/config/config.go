// Package config defines the configuration structure for the ingestion Lambda.
// Configuration is loaded once at process initialization (Lambda Cold Start) and
// is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Database settings are deliberately not validated at load time: they are
// checked when a connection is opened, so a missing setting aborts the
// invocation that needed it rather than the whole cold start.
package config

import (
	"time"

	"vaxingest/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the ingestion Lambda.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"prod" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"OTEL_SERVICE_NAME" default:"vaxingest"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Database      DatabaseConfig `validate:"-"`
	AWS           AWSConfig
	Ingest        IngestConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// DatabaseConfig holds the four required connection settings plus tuning.
// The env var names match the existing RDS deployment.
type DatabaseConfig struct {
	Endpoint string       `envconfig:"AWS_RDS_ENDPOINT" validate:"required"`
	Name     string       `envconfig:"AWS_RDS_DBNAME" validate:"required"`
	User     string       `envconfig:"AWS_RDS_USERNAME" validate:"required"`
	Password SecretString `envconfig:"AWS_RDS_PASSWORD" validate:"required"`

	Port           uint16        `envconfig:"AWS_RDS_PORT" default:"5432"`
	ConnectTimeout time.Duration `envconfig:"DB_CONNECT_TIMEOUT" default:"10s"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// IngestConfig holds pipeline-level settings.
type IngestConfig struct {
	// Bucket, when set, is the only bucket whose notifications are processed.
	Bucket string `envconfig:"INGEST_BUCKET"`

	// DeadLetterQueueURL receives a message for every failed ingestion.
	// Empty disables dead-lettering.
	DeadLetterQueueURL string `envconfig:"INGEST_DLQ_URL" validate:"omitempty,url"`

	MaxObjectBytes int64 `envconfig:"MAX_OBJECT_BYTES" default:"16777216" validate:"gt=0"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"VaxIngest"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"true"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
