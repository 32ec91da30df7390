package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/robfig/cron/v3"

	"mercator-hq/dispatch/pkg/upstream"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "handler.concurrency").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateHandler(&cfg.Handler)...)
	errs = append(errs, validatePool(&cfg.Pool)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateHandler validates request handler configuration.
func validateHandler(cfg *HandlerConfig) []FieldError {
	var errs []FieldError

	if cfg.AppGroupName == "" {
		errs = append(errs, FieldError{
			Field:   "handler.app_group_name",
			Message: "app group name is required",
		})
	}
	if cfg.Concurrency < 1 {
		errs = append(errs, FieldError{
			Field:   "handler.concurrency",
			Message: "concurrency must be at least 1",
		})
	}
	if cfg.MemoryLimit < 0 {
		errs = append(errs, FieldError{
			Field:   "handler.memory_limit",
			Message: "memory limit must be non-negative",
		})
	}
	if cfg.SoftTerminationLingerTime < 0 {
		errs = append(errs, FieldError{
			Field:   "handler.soft_termination_linger_time",
			Message: "linger time must be non-negative",
		})
	}
	if cfg.RuntimeDir != "" && !filepath.IsAbs(cfg.RuntimeDir) {
		errs = append(errs, FieldError{
			Field:   "handler.runtime_dir",
			Message: "runtime directory must be an absolute path",
		})
	}

	return errs
}

// validatePool validates upstream pool administration configuration.
// An empty admin address disables detaching, in which case credentials are
// not checked.
func validatePool(cfg *PoolConfig) []FieldError {
	var errs []FieldError

	if cfg.AdminAddress != "" && !strings.HasPrefix(cfg.AdminAddress, "unix:") {
		u, err := url.Parse(cfg.AdminAddress)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, FieldError{
				Field:   "pool.admin_address",
				Message: fmt.Sprintf("invalid admin address %q: must be an http(s) URL or unix:/path", cfg.AdminAddress),
			})
		}
	}
	if cfg.AccountPasswordBase64 != "" {
		if _, err := upstream.DecodePassword(cfg.AccountPasswordBase64); err != nil {
			errs = append(errs, FieldError{
				Field:   "pool.account_password_base64",
				Message: "account password is not valid base64",
			})
		}
	}
	if cfg.Timeout < 0 {
		errs = append(errs, FieldError{
			Field:   "pool.timeout",
			Message: "timeout must be positive",
		})
	}

	return errs
}

// validateTelemetry validates telemetry configuration.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	// Validate logging level
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if cfg.Logging.Level == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: "logging level is required",
		})
	} else if !validLevels[cfg.Logging.Level] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid logging level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Logging.Level),
		})
	}

	// Validate logging format
	validFormats := map[string]bool{"json": true, "text": true, "console": true}
	if cfg.Logging.Format == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: "logging format is required",
		})
	} else if !validFormats[cfg.Logging.Format] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid logging format %q: must be 'json', 'text', or 'console'", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.IsEnabled() {
		if cfg.Metrics.Path == "" || cfg.Metrics.Path[0] != '/' {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.path",
				Message: "metrics path must start with /",
			})
		}
		for i := 1; i < len(cfg.Metrics.RequestDurationBuckets); i++ {
			if cfg.Metrics.RequestDurationBuckets[i] <= cfg.Metrics.RequestDurationBuckets[i-1] {
				errs = append(errs, FieldError{
					Field:   "telemetry.metrics.request_duration_buckets",
					Message: "buckets must be strictly increasing",
				})
				break
			}
		}
	}

	// Validate tracing configuration
	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.endpoint",
			Message: "tracing endpoint is required when tracing is enabled",
		})
	}
	validSamplers := map[string]bool{"always": true, "never": true, "ratio": true}
	if cfg.Tracing.Sampler != "" && !validSamplers[cfg.Tracing.Sampler] {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sampler",
			Message: fmt.Sprintf("invalid sampler %q: must be 'always', 'never', or 'ratio'", cfg.Tracing.Sampler),
		})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1.0 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: "sample ratio must be between 0.0 and 1.0",
		})
	}

	// Validate status report schedule
	if cfg.StatusReport.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.StatusReport.Schedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "telemetry.status_report.schedule",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}

	return errs
}
