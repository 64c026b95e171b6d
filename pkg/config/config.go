package config

import "time"

// Config is the root configuration for the ZaiGate gateway.
type Config struct {
	// Server configures the inbound HTTP listener.
	Server ServerConfig `yaml:"server"`

	// Auth configures inbound API authentication.
	Auth AuthConfig `yaml:"auth"`

	// Upstream configures the Zai.is client.
	Upstream UpstreamConfig `yaml:"upstream"`

	// Pool configures account selection and failure handling.
	Pool PoolConfig `yaml:"pool"`

	// Refresh configures the token lifecycle manager.
	Refresh RefreshConfig `yaml:"refresh"`

	// Store configures the durable credential store.
	Store StoreConfig `yaml:"store"`

	// RequestLog configures the per-request outcome log.
	RequestLog RequestLogConfig `yaml:"request_log"`

	// RateLimit configures inbound request rate limiting.
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// Telemetry configures logging and metrics.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// ListenAddress is the address:port for the HTTP listener.
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration for writing the response.
	// Streaming completions can run for minutes; keep this generous.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle timeout.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits request header size.
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// CORS configures cross-origin resource sharing.
	CORS CORSConfig `yaml:"cors"`
}

// CORSConfig contains CORS settings for browser clients.
type CORSConfig struct {
	// Enabled turns CORS handling on or off.
	Enabled bool `yaml:"enabled"`

	// AllowedOrigins lists allowed origins ("*" for any).
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowedMethods lists allowed HTTP methods.
	AllowedMethods []string `yaml:"allowed_methods"`

	// AllowedHeaders lists allowed request headers.
	AllowedHeaders []string `yaml:"allowed_headers"`

	// MaxAge is the preflight cache duration in seconds.
	MaxAge int `yaml:"max_age"`
}

// AuthConfig contains inbound authentication settings.
type AuthConfig struct {
	// MasterKey is the bearer API key clients must present.
	// An empty value disables authentication entirely; do not leave it
	// empty on anything reachable from the open internet.
	MasterKey string `yaml:"master_key"`
}

// UpstreamConfig contains settings for the Zai.is client.
type UpstreamConfig struct {
	// BaseURL is the upstream origin (default https://zai.is).
	BaseURL string `yaml:"base_url"`

	// Timeout bounds every upstream call, including token renewal.
	Timeout time.Duration `yaml:"timeout"`

	// MaxRetries is the in-call retry count for transient (5xx/network)
	// failures. Account-level retries are governed by pool.retry_budget.
	MaxRetries int `yaml:"max_retries"`

	// UserAgent is sent on every upstream request. Zai.is serves a
	// browser product, so this should look like a browser.
	UserAgent string `yaml:"user_agent"`

	// StreamBuffer is the chunk channel capacity between the upstream
	// reader and the client writer. Bounds memory when clients are slow.
	StreamBuffer int `yaml:"stream_buffer"`

	// MaxIdleConns is the connection pool size.
	MaxIdleConns int `yaml:"max_idle_conns"`

	// MaxIdleConnsPerHost is the per-host connection pool size.
	MaxIdleConnsPerHost int `yaml:"max_idle_conns_per_host"`

	// IdleConnTimeout is how long idle connections are kept.
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

// PoolConfig contains account pool tuning.
type PoolConfig struct {
	// FailureThreshold is the consecutive request failure count after
	// which an account is marked Degraded.
	FailureThreshold int `yaml:"failure_threshold"`

	// RetryBudget is the maximum number of accounts tried per request.
	RetryBudget int `yaml:"retry_budget"`
}

// RefreshConfig contains token lifecycle manager tuning.
type RefreshConfig struct {
	// Interval is how often the refresh loop scans the pool.
	Interval time.Duration `yaml:"interval"`

	// Margin is the remaining-validity threshold below which a token is
	// refreshed ahead of expiry.
	Margin time.Duration `yaml:"margin"`

	// MaxFailures is the consecutive refresh failure count after which
	// an account is Disabled.
	MaxFailures int `yaml:"max_failures"`

	// Timeout bounds a single refresh attempt.
	Timeout time.Duration `yaml:"timeout"`
}

// StoreConfig contains credential store settings.
type StoreConfig struct {
	// Path is the SQLite database file for account records.
	Path string `yaml:"path"`

	// BusyTimeout is how long to wait on a locked database.
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// RequestLogConfig contains request-outcome log settings.
type RequestLogConfig struct {
	// Enabled turns request logging on or off.
	Enabled bool `yaml:"enabled"`

	// Path is the SQLite database file for request records.
	Path string `yaml:"path"`

	// RetentionDays is how long records are kept before pruning.
	RetentionDays int `yaml:"retention_days"`

	// PruneSchedule is a cron expression for the retention pruner.
	// Empty disables scheduled pruning.
	PruneSchedule string `yaml:"prune_schedule"`
}

// RateLimitConfig contains inbound rate limiter settings.
type RateLimitConfig struct {
	// Enabled turns inbound rate limiting on or off.
	Enabled bool `yaml:"enabled"`

	// Requests is the allowed request count per window per client.
	Requests int `yaml:"requests"`

	// Window is the sliding window duration.
	Window time.Duration `yaml:"window"`
}

// TelemetryConfig contains logging and metrics settings.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig contains structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is the output format: json or text.
	Format string `yaml:"format"`

	// AddSource includes file:line in log records.
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	// Enabled turns the /metrics endpoint on or off.
	Enabled bool `yaml:"enabled"`

	// Namespace is the metric name prefix.
	Namespace string `yaml:"namespace"`

	// Path is the exposition endpoint path.
	Path string `yaml:"path"`

	// RequestDurationBuckets are histogram buckets in seconds.
	RequestDurationBuckets []float64 `yaml:"request_duration_buckets"`
}
