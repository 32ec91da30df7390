package config

import (
	"testing"
	"time"
)

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Handler.AppRoot != DefaultAppRoot {
		t.Errorf("AppRoot = %q, want %q", cfg.Handler.AppRoot, DefaultAppRoot)
	}
	if cfg.Handler.Concurrency != DefaultConcurrency {
		t.Errorf("Concurrency = %d, want %d", cfg.Handler.Concurrency, DefaultConcurrency)
	}
	if cfg.Handler.SoftTerminationLingerTime != 3*time.Second {
		t.Errorf("SoftTerminationLingerTime = %v, want 3s", cfg.Handler.SoftTerminationLingerTime)
	}
	if cfg.Handler.RuntimeDir != "" {
		t.Errorf("RuntimeDir = %q, want empty for a temporary directory", cfg.Handler.RuntimeDir)
	}
	if !cfg.Handler.UnixSockets() {
		t.Error("UnixSockets() should default to true")
	}
	if cfg.Pool.Timeout != DefaultPoolTimeout {
		t.Errorf("Pool.Timeout = %v, want %v", cfg.Pool.Timeout, DefaultPoolTimeout)
	}
	if cfg.Telemetry.Logging.Level != "info" || cfg.Telemetry.Logging.Format != "json" {
		t.Errorf("logging = %q/%q, want info/json", cfg.Telemetry.Logging.Level, cfg.Telemetry.Logging.Format)
	}
	if !cfg.Telemetry.Logging.Redact() {
		t.Error("Redact() should default to true")
	}
	if !cfg.Telemetry.Metrics.IsEnabled() {
		t.Error("metrics should default to enabled")
	}
	if cfg.Telemetry.Tracing.SampleRatio != DefaultTracingSampleRatio {
		t.Errorf("SampleRatio = %v, want %v", cfg.Telemetry.Tracing.SampleRatio, DefaultTracingSampleRatio)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	off := false
	cfg := &Config{
		Handler: HandlerConfig{
			Concurrency:               8,
			SoftTerminationLingerTime: time.Second,
			UseUnixSockets:            &off,
			RuntimeDir:                "/run/dispatch",
		},
		Telemetry: TelemetryConfig{
			Metrics: MetricsConfig{Enabled: &off},
			Tracing: TracingConfig{Sampler: "always"},
		},
	}
	ApplyDefaults(cfg)

	if cfg.Handler.Concurrency != 8 {
		t.Errorf("Concurrency = %d, want 8", cfg.Handler.Concurrency)
	}
	if cfg.Handler.SoftTerminationLingerTime != time.Second {
		t.Errorf("SoftTerminationLingerTime = %v, want 1s", cfg.Handler.SoftTerminationLingerTime)
	}
	if cfg.Handler.UnixSockets() {
		t.Error("UnixSockets() = true, want false")
	}
	if cfg.Handler.RuntimeDir != "/run/dispatch" {
		t.Errorf("RuntimeDir = %q", cfg.Handler.RuntimeDir)
	}
	if cfg.Telemetry.Metrics.IsEnabled() {
		t.Error("metrics should stay disabled")
	}
	if cfg.Telemetry.Tracing.SampleRatio != 0 {
		t.Errorf("SampleRatio = %v, want 0 for non-ratio sampler", cfg.Telemetry.Tracing.SampleRatio)
	}
}

func TestApplyDefaults_Idempotent(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	first := *cfg
	ApplyDefaults(cfg)
	if cfg.Handler != first.Handler || cfg.Pool != first.Pool {
		t.Errorf("ApplyDefaults changed values on second call: %+v -> %+v", first.Handler, cfg.Handler)
	}
}
