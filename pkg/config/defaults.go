package config

import "time"

// Default values for configuration fields.
const (
	// Handler defaults
	DefaultAppRoot                   = "public"
	DefaultConcurrency               = 1
	DefaultMemoryLimit               = 0
	DefaultSoftTerminationLingerTime = 3 * time.Second
	DefaultUseUnixSockets            = true

	// Pool defaults
	DefaultPoolTimeout = 5 * time.Second

	// Telemetry defaults
	DefaultLoggingLevel         = "info"
	DefaultLoggingFormat        = "json"
	DefaultLoggingRedactSecrets = true
	DefaultMetricsEnabled       = true
	DefaultMetricsPath          = "/metrics"
	DefaultMetricsNamespace     = "mercator"
	DefaultMetricsSubsystem     = "dispatch"
	DefaultTracingSampler       = "ratio"
	DefaultTracingSampleRatio   = 0.1
	DefaultTracingTimeout       = 10 * time.Second
	DefaultTracingServiceName   = "mercator-dispatch"
)

// DefaultRequestDurationBuckets are tuned for application requests
// (5ms - 30s).
var DefaultRequestDurationBuckets = []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Handler defaults
	if cfg.Handler.AppRoot == "" {
		cfg.Handler.AppRoot = DefaultAppRoot
	}
	if cfg.Handler.Concurrency == 0 {
		cfg.Handler.Concurrency = DefaultConcurrency
	}
	if cfg.Handler.SoftTerminationLingerTime == 0 {
		cfg.Handler.SoftTerminationLingerTime = DefaultSoftTerminationLingerTime
	}

	// Pool defaults
	if cfg.Pool.Timeout == 0 {
		cfg.Pool.Timeout = DefaultPoolTimeout
	}

	// Logging defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}

	// Metrics defaults
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Metrics.Subsystem == "" {
		cfg.Telemetry.Metrics.Subsystem = DefaultMetricsSubsystem
	}
	if len(cfg.Telemetry.Metrics.RequestDurationBuckets) == 0 {
		cfg.Telemetry.Metrics.RequestDurationBuckets = append([]float64(nil), DefaultRequestDurationBuckets...)
	}

	// Tracing defaults
	if cfg.Telemetry.Tracing.Sampler == "" {
		cfg.Telemetry.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Telemetry.Tracing.SampleRatio == 0 && cfg.Telemetry.Tracing.Sampler == "ratio" {
		cfg.Telemetry.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if cfg.Telemetry.Tracing.Timeout == 0 {
		cfg.Telemetry.Tracing.Timeout = DefaultTracingTimeout
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingServiceName
	}
}

// NewDefaultConfig returns a configuration with every default applied.
// AppGroupName is left empty and must be set before validation succeeds.
func NewDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
