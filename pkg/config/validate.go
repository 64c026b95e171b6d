package config

import (
	"fmt"
	"net/url"
	"strings"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
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
func (c *Config) Validate() error {
	var errs []FieldError

	errs = append(errs, validateServer(&c.Server)...)
	errs = append(errs, validateUpstream(&c.Upstream)...)
	errs = append(errs, validatePool(&c.Pool)...)
	errs = append(errs, validateRefresh(&c.Refresh)...)
	errs = append(errs, validateStore(&c.Store)...)
	errs = append(errs, validateRequestLog(&c.RequestLog)...)
	errs = append(errs, validateRateLimit(&c.RateLimit)...)
	errs = append(errs, validateTelemetry(&c.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateServer validates HTTP server configuration.
func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	}
	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.read_timeout",
			Message: "read timeout must be positive",
		})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.write_timeout",
			Message: "write timeout must be positive",
		})
	}
	if cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.idle_timeout",
			Message: "idle timeout must be positive",
		})
	}
	if cfg.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "server.max_header_bytes",
			Message: "max header bytes must be non-negative",
		})
	}

	return errs
}

// validateUpstream validates upstream client configuration.
func validateUpstream(cfg *UpstreamConfig) []FieldError {
	var errs []FieldError

	if cfg.BaseURL == "" {
		errs = append(errs, FieldError{
			Field:   "upstream.base_url",
			Message: "base URL is required",
		})
	} else if u, err := url.Parse(cfg.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, FieldError{
			Field:   "upstream.base_url",
			Message: fmt.Sprintf("invalid URL: %q", cfg.BaseURL),
		})
	}
	if cfg.Timeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "upstream.timeout",
			Message: "timeout must be positive",
		})
	}
	if cfg.MaxRetries < 0 {
		errs = append(errs, FieldError{
			Field:   "upstream.max_retries",
			Message: "max retries must be non-negative",
		})
	}
	if cfg.StreamBuffer < 1 {
		errs = append(errs, FieldError{
			Field:   "upstream.stream_buffer",
			Message: "stream buffer must be at least 1",
		})
	}

	return errs
}

// validatePool validates account pool configuration.
func validatePool(cfg *PoolConfig) []FieldError {
	var errs []FieldError

	if cfg.FailureThreshold < 1 {
		errs = append(errs, FieldError{
			Field:   "pool.failure_threshold",
			Message: "failure threshold must be at least 1",
		})
	}
	if cfg.RetryBudget < 1 {
		errs = append(errs, FieldError{
			Field:   "pool.retry_budget",
			Message: "retry budget must be at least 1",
		})
	}

	return errs
}

// validateRefresh validates token refresh configuration.
func validateRefresh(cfg *RefreshConfig) []FieldError {
	var errs []FieldError

	if cfg.Interval <= 0 {
		errs = append(errs, FieldError{
			Field:   "refresh.interval",
			Message: "interval must be positive",
		})
	}
	if cfg.Margin < 0 {
		errs = append(errs, FieldError{
			Field:   "refresh.margin",
			Message: "margin must be non-negative",
		})
	}
	if cfg.MaxFailures < 1 {
		errs = append(errs, FieldError{
			Field:   "refresh.max_failures",
			Message: "max failures must be at least 1",
		})
	}
	if cfg.Timeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "refresh.timeout",
			Message: "timeout must be positive",
		})
	}

	return errs
}

// validateStore validates credential store configuration.
func validateStore(cfg *StoreConfig) []FieldError {
	var errs []FieldError

	if cfg.Path == "" {
		errs = append(errs, FieldError{
			Field:   "store.path",
			Message: "database path is required",
		})
	}

	return errs
}

// validateRequestLog validates request log configuration.
func validateRequestLog(cfg *RequestLogConfig) []FieldError {
	var errs []FieldError

	if !cfg.Enabled {
		return nil
	}
	if cfg.Path == "" {
		errs = append(errs, FieldError{
			Field:   "request_log.path",
			Message: "database path is required when request logging is enabled",
		})
	}
	if cfg.RetentionDays < 1 {
		errs = append(errs, FieldError{
			Field:   "request_log.retention_days",
			Message: "retention days must be at least 1",
		})
	}

	return errs
}

// validateRateLimit validates rate limiter configuration.
func validateRateLimit(cfg *RateLimitConfig) []FieldError {
	var errs []FieldError

	if !cfg.Enabled {
		return nil
	}
	if cfg.Requests < 1 {
		errs = append(errs, FieldError{
			Field:   "rate_limit.requests",
			Message: "requests must be at least 1",
		})
	}
	if cfg.Window <= 0 {
		errs = append(errs, FieldError{
			Field:   "rate_limit.window",
			Message: "window must be positive",
		})
	}

	return errs
}

// validateTelemetry validates telemetry configuration.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid log level %q (must be debug, info, warn, or error)", cfg.Logging.Level),
		})
	}

	switch cfg.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid log format %q (must be json or text)", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with /",
		})
	}

	return errs
}
