package config

import "time"

// Config is the root configuration structure for Mercator Dispatch.
// It contains the request handler settings, the upstream pool credentials
// used during soft shutdown, and the telemetry settings.
type Config struct {
	// Handler contains the request handler configuration: application,
	// worker concurrency, socket provisioning and shutdown behaviour.
	Handler HandlerConfig `yaml:"handler"`

	// Pool contains the upstream process pool administration settings.
	// They are only used to detach this process from the pool during a
	// soft shutdown.
	Pool PoolConfig `yaml:"pool"`

	// Telemetry contains configuration for observability including logging,
	// metrics, tracing and the periodic status report.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// HandlerConfig contains configuration for the request handler.
type HandlerConfig struct {
	// AppGroupName identifies the application group this process belongs to.
	// Required.
	AppGroupName string `yaml:"app_group_name"`

	// AppRoot is the directory served by the built-in application.
	// Default: "public"
	AppRoot string `yaml:"app_root"`

	// ConnectPassword is the password clients must present on the session
	// socket. Empty means unauthenticated.
	ConnectPassword string `yaml:"connect_password"`

	// DetachKey is the key under which this process is registered with the
	// upstream pool. Soft shutdown only detaches when it is set.
	DetachKey string `yaml:"detach_key"`

	// MemoryLimit is the maximum allowed memory usage in MB. Workers request
	// a soft shutdown after a request pushes usage above it.
	// 0 disables the limit.
	// Default: 0
	MemoryLimit int `yaml:"memory_limit"`

	// Concurrency is the number of workers bound to the main socket.
	// Default: 1
	Concurrency int `yaml:"concurrency"`

	// SoftTerminationLingerTime is how long the process keeps running after
	// all workers went idle during a soft shutdown.
	// Default: 3s
	SoftTerminationLingerTime time.Duration `yaml:"soft_termination_linger_time"`

	// UseUnixSockets selects a unix domain socket for the main endpoint.
	// When false, a loopback TCP socket is used instead.
	// Default: true
	UseUnixSockets *bool `yaml:"use_unix_sockets"`

	// RuntimeDir is the directory that holds the private "backends" socket
	// directory. Empty creates a fresh temporary directory at startup that
	// is removed on shutdown.
	// Default: ""
	RuntimeDir string `yaml:"runtime_dir"`
}

// PoolConfig contains upstream pool administration settings.
type PoolConfig struct {
	// AdminAddress is the address of the pool's administration endpoint.
	// Supported forms: "http://host:port", "unix:/path/to/socket".
	AdminAddress string `yaml:"admin_address"`

	// AccountUsername is the pool administration account name.
	AccountUsername string `yaml:"account_username"`

	// AccountPasswordBase64 is the base64-encoded pool administration password.
	AccountPasswordBase64 string `yaml:"account_password_base64"`

	// Timeout bounds a single administration request.
	// Default: 5s
	Timeout time.Duration `yaml:"timeout"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains structured logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains Prometheus metrics configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains OpenTelemetry tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`

	// StatusReport contains the periodic status report configuration.
	StatusReport StatusReportConfig `yaml:"status_report"`
}

// LoggingConfig contains structured logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format is the log output format.
	// Options: "json", "text", "console"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes the source file and line in log records.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactSecrets masks passwords and keys in log attributes.
	// Default: true
	RedactSecrets *bool `yaml:"redact_secrets"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected and exposed.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Path is the HTTP path on the HTTP socket that serves metrics.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the Prometheus metric namespace.
	// Default: "mercator"
	Namespace string `yaml:"namespace"`

	// Subsystem is the Prometheus metric subsystem.
	// Default: "dispatch"
	Subsystem string `yaml:"subsystem"`

	// RequestDurationBuckets are the histogram buckets for request durations
	// in seconds.
	RequestDurationBuckets []float64 `yaml:"request_duration_buckets"`
}

// TracingConfig contains OpenTelemetry tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler determines the sampling strategy.
	// Options: "always", "never", "ratio"
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Default: 0.1
	SampleRatio float64 `yaml:"sample_ratio"`

	// Endpoint is the OTLP gRPC collector endpoint, e.g. "localhost:4317".
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS for the collector connection.
	// Default: false
	Insecure bool `yaml:"insecure"`

	// Timeout bounds a single export.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`

	// ServiceName is the service name in traces.
	// Default: "mercator-dispatch"
	ServiceName string `yaml:"service_name"`
}

// StatusReportConfig configures the periodic status report.
type StatusReportConfig struct {
	// Schedule is a standard cron expression. Empty disables the report.
	// Example: "*/5 * * * *"
	Schedule string `yaml:"schedule"`
}

// UnixSockets reports whether the main endpoint should use a unix domain socket.
func (h HandlerConfig) UnixSockets() bool {
	if h.UseUnixSockets == nil {
		return DefaultUseUnixSockets
	}
	return *h.UseUnixSockets
}

// Redact reports whether secret redaction is enabled.
func (l LoggingConfig) Redact() bool {
	if l.RedactSecrets == nil {
		return DefaultLoggingRedactSecrets
	}
	return *l.RedactSecrets
}

// IsEnabled reports whether metrics are enabled.
func (m MetricsConfig) IsEnabled() bool {
	if m.Enabled == nil {
		return DefaultMetricsEnabled
	}
	return *m.Enabled
}
