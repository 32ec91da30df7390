package config

import (
	"errors"
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.Handler.AppGroupName = "/srv/app"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:      "missing app group",
			mutate:    func(c *Config) { c.Handler.AppGroupName = "" },
			wantField: "handler.app_group_name",
		},
		{
			name:      "zero concurrency",
			mutate:    func(c *Config) { c.Handler.Concurrency = 0 },
			wantField: "handler.concurrency",
		},
		{
			name:      "negative memory limit",
			mutate:    func(c *Config) { c.Handler.MemoryLimit = -1 },
			wantField: "handler.memory_limit",
		},
		{
			name:      "negative linger",
			mutate:    func(c *Config) { c.Handler.SoftTerminationLingerTime = -1 },
			wantField: "handler.soft_termination_linger_time",
		},
		{
			name:      "relative runtime dir",
			mutate:    func(c *Config) { c.Handler.RuntimeDir = "run/dispatch" },
			wantField: "handler.runtime_dir",
		},
		{
			name:   "temporary runtime dir",
			mutate: func(c *Config) { c.Handler.RuntimeDir = "" },
		},
		{
			name:      "bad admin address",
			mutate:    func(c *Config) { c.Pool.AdminAddress = "ftp://pool" },
			wantField: "pool.admin_address",
		},
		{
			name:   "unix admin address",
			mutate: func(c *Config) { c.Pool.AdminAddress = "unix:/run/pool.sock" },
		},
		{
			name:   "password with trailing newline",
			mutate: func(c *Config) { c.Pool.AccountPasswordBase64 = "c2VjcmV0\n" },
		},
		{
			name:      "bad password encoding",
			mutate:    func(c *Config) { c.Pool.AccountPasswordBase64 = "***" },
			wantField: "pool.account_password_base64",
		},
		{
			name:      "bad log level",
			mutate:    func(c *Config) { c.Telemetry.Logging.Level = "trace" },
			wantField: "telemetry.logging.level",
		},
		{
			name:      "bad log format",
			mutate:    func(c *Config) { c.Telemetry.Logging.Format = "xml" },
			wantField: "telemetry.logging.format",
		},
		{
			name:      "unsorted buckets",
			mutate:    func(c *Config) { c.Telemetry.Metrics.RequestDurationBuckets = []float64{1, 0.5} },
			wantField: "telemetry.metrics.request_duration_buckets",
		},
		{
			name:      "tracing without endpoint",
			mutate:    func(c *Config) { c.Telemetry.Tracing.Enabled = true },
			wantField: "telemetry.tracing.endpoint",
		},
		{
			name:      "bad sampler",
			mutate:    func(c *Config) { c.Telemetry.Tracing.Sampler = "sometimes" },
			wantField: "telemetry.tracing.sampler",
		},
		{
			name:      "bad ratio",
			mutate:    func(c *Config) { c.Telemetry.Tracing.SampleRatio = 1.5 },
			wantField: "telemetry.tracing.sample_ratio",
		},
		{
			name:      "bad schedule",
			mutate:    func(c *Config) { c.Telemetry.StatusReport.Schedule = "every minute" },
			wantField: "telemetry.status_report.schedule",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := Validate(cfg)

			if tt.wantField == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}

			var verr ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error = %v, want ValidationError", err)
			}
			found := false
			for _, fe := range verr.Errors {
				if fe.Field == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("Validate() errors = %v, want field %q", verr.Errors, tt.wantField)
			}
		})
	}
}

func TestValidationError_Error(t *testing.T) {
	single := ValidationError{Errors: []FieldError{{Field: "a", Message: "bad"}}}
	if got := single.Error(); got != "configuration validation failed: a: bad" {
		t.Errorf("Error() = %q", got)
	}

	multi := ValidationError{Errors: []FieldError{{Field: "a", Message: "bad"}, {Field: "b", Message: "worse"}}}
	if got := multi.Error(); !strings.Contains(got, "2 errors") || !strings.Contains(got, "b: worse") {
		t.Errorf("Error() = %q", got)
	}
}
