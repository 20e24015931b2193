package telemetry

import (
	"fmt"
	"time"
)

// Config contains the telemetry configuration for buildwave.
type Config struct {
	// ServiceName is the name of the service for telemetry identification.
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// Logging contains logging configuration.
	Logging LoggingConfig

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level sets the minimum log level (trace, debug, info, warn, error, fatal).
	Level string

	// Format specifies the log format (console, json).
	Format string

	// Output specifies where logs are written (stdout, stderr, file path).
	Output string

	// EnableCaller adds file:line caller information to logs.
	EnableCaller bool
}

// TracingConfig configures distributed tracing.
type TracingConfig struct {
	// Enabled controls whether tracing is active.
	Enabled bool

	// Exporter specifies the trace exporter (otlp, stdout, none).
	Exporter string

	// Endpoint is the exporter endpoint for OTLP (e.g., "localhost:4317").
	Endpoint string

	// Insecure disables TLS for the OTLP connection.
	Insecure bool

	// SamplingRate is the trace sampling rate (0.0 to 1.0).
	SamplingRate float64

	// ExportTimeout is the timeout for trace export.
	ExportTimeout time.Duration
}

// MetricsConfig configures Prometheus metrics collection.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected.
	Enabled bool

	// Namespace is the Prometheus metric namespace.
	Namespace string

	// ListenAddress is the address of the /metrics endpoint. Empty disables
	// the HTTP listener while metrics are still collected.
	ListenAddress string

	// DefaultHistogramBuckets overrides the default duration buckets.
	DefaultHistogramBuckets []float64
}

// DefaultConfig returns a telemetry configuration suitable for CLI use.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "buildwave",
		ServiceVersion: "dev",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		Tracing: TracingConfig{
			Enabled:       false,
			Exporter:      "none",
			SamplingRate:  1.0,
			ExportTimeout: 30 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Namespace: "buildwave",
		},
	}
}

// Validate checks the telemetry configuration for consistency.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service name is required")
	}
	switch c.Tracing.Exporter {
	case "", "otlp", "stdout", "none":
	default:
		return fmt.Errorf("unsupported trace exporter: %s", c.Tracing.Exporter)
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0.0 and 1.0")
	}
	return nil
}
