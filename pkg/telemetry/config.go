package telemetry

import (
	"fmt"
	"time"
)

// Config holds the telemetry configuration.
type Config struct {
	// ServiceName identifies the service in traces and metrics.
	ServiceName string

	// ServiceVersion is the build version.
	ServiceVersion string

	// Logging configures structured logging.
	Logging LoggingConfig

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig

	// Tracing configures trace export.
	Tracing TracingConfig
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level sets the minimum log level (trace, debug, info, warn, error).
	Level string

	// Format selects console or json output.
	Format string

	// Output is stdout, stderr, or a file path.
	Output string
}

// MetricsConfig configures the Prometheus scrape endpoint.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected and served.
	Enabled bool

	// ListenAddress is the host:port for the metrics server.
	ListenAddress string

	// Path is the HTTP path for metrics.
	Path string
}

// TracingConfig configures trace export.
type TracingConfig struct {
	// Enabled controls whether tracing is active.
	Enabled bool

	// Exporter selects otlp, stdout, or none.
	Exporter string

	// Endpoint is the OTLP collector address.
	Endpoint string

	// SampleRate is the trace sampling ratio in [0, 1].
	SampleRate float64

	// ExportTimeout bounds one export batch.
	ExportTimeout time.Duration

	// Insecure disables TLS for the OTLP connection.
	Insecure bool
}

// DefaultConfig returns the telemetry defaults.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "gantry",
		ServiceVersion: "dev",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			ListenAddress: "127.0.0.1:9464",
			Path:          "/metrics",
		},
		Tracing: TracingConfig{
			Exporter:      "none",
			SampleRate:    1,
			ExportTimeout: 30 * time.Second,
			Insecure:      true,
		},
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service name is required")
	}

	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	switch c.Tracing.Exporter {
	case "otlp", "stdout", "none":
	default:
		return fmt.Errorf("invalid trace exporter: %s", c.Tracing.Exporter)
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("trace sample rate must be between 0 and 1, got %f", c.Tracing.SampleRate)
	}

	if c.Metrics.Enabled && c.Metrics.ListenAddress == "" {
		return fmt.Errorf("metrics listen address is required when metrics are enabled")
	}
	return nil
}
