package config

import "time"

// Default values applied by ApplyDefaults when a field is unset.
const (
	DefaultListenAddress   = "0.0.0.0:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 10 * time.Minute
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1 << 20

	DefaultUpstreamBaseURL = "https://zai.is"
	DefaultUpstreamTimeout = 5 * time.Minute
	DefaultMaxRetries      = 2
	DefaultUserAgent       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/139.0.0.0 Safari/537.36"
	DefaultStreamBuffer        = 100
	DefaultMaxIdleConns        = 100
	DefaultMaxIdleConnsPerHost = 10
	DefaultIdleConnTimeout     = 90 * time.Second

	DefaultFailureThreshold = 3
	DefaultRetryBudget      = 3

	DefaultRefreshInterval    = 5 * time.Minute
	DefaultRefreshMargin      = 5 * time.Minute
	DefaultRefreshMaxFailures = 5
	DefaultRefreshTimeout     = 60 * time.Second

	DefaultStorePath        = "zaigate.db"
	DefaultStoreBusyTimeout = 5 * time.Second

	DefaultRequestLogPath      = "requests.db"
	DefaultRetentionDays       = 30
	DefaultPruneSchedule       = "@daily"
	DefaultRateLimitRequests   = 60
	DefaultRateLimitWindow     = time.Minute
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "json"
	DefaultMetricsNamespace    = "zaigate"
	DefaultMetricsPath         = "/metrics"
)

// DefaultDurationBuckets are histogram buckets tuned for LLM latencies,
// which range from sub-second time-to-first-byte to multi-minute streams.
var DefaultDurationBuckets = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}

// ApplyDefaults fills unset fields with their default values.
func (c *Config) ApplyDefaults() {
	if c.Server.ListenAddress == "" {
		c.Server.ListenAddress = DefaultListenAddress
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = DefaultReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = DefaultIdleTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Server.MaxHeaderBytes == 0 {
		c.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if len(c.Server.CORS.AllowedOrigins) == 0 {
		c.Server.CORS.AllowedOrigins = []string{"*"}
	}
	if len(c.Server.CORS.AllowedMethods) == 0 {
		c.Server.CORS.AllowedMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	}
	if len(c.Server.CORS.AllowedHeaders) == 0 {
		c.Server.CORS.AllowedHeaders = []string{"Authorization", "Content-Type", "X-Request-ID"}
	}
	if c.Server.CORS.MaxAge == 0 {
		c.Server.CORS.MaxAge = 86400
	}

	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = DefaultUpstreamBaseURL
	}
	if c.Upstream.Timeout == 0 {
		c.Upstream.Timeout = DefaultUpstreamTimeout
	}
	if c.Upstream.MaxRetries == 0 {
		c.Upstream.MaxRetries = DefaultMaxRetries
	}
	if c.Upstream.UserAgent == "" {
		c.Upstream.UserAgent = DefaultUserAgent
	}
	if c.Upstream.StreamBuffer == 0 {
		c.Upstream.StreamBuffer = DefaultStreamBuffer
	}
	if c.Upstream.MaxIdleConns == 0 {
		c.Upstream.MaxIdleConns = DefaultMaxIdleConns
	}
	if c.Upstream.MaxIdleConnsPerHost == 0 {
		c.Upstream.MaxIdleConnsPerHost = DefaultMaxIdleConnsPerHost
	}
	if c.Upstream.IdleConnTimeout == 0 {
		c.Upstream.IdleConnTimeout = DefaultIdleConnTimeout
	}

	if c.Pool.FailureThreshold == 0 {
		c.Pool.FailureThreshold = DefaultFailureThreshold
	}
	if c.Pool.RetryBudget == 0 {
		c.Pool.RetryBudget = DefaultRetryBudget
	}

	if c.Refresh.Interval == 0 {
		c.Refresh.Interval = DefaultRefreshInterval
	}
	if c.Refresh.Margin == 0 {
		c.Refresh.Margin = DefaultRefreshMargin
	}
	if c.Refresh.MaxFailures == 0 {
		c.Refresh.MaxFailures = DefaultRefreshMaxFailures
	}
	if c.Refresh.Timeout == 0 {
		c.Refresh.Timeout = DefaultRefreshTimeout
	}

	if c.Store.Path == "" {
		c.Store.Path = DefaultStorePath
	}
	if c.Store.BusyTimeout == 0 {
		c.Store.BusyTimeout = DefaultStoreBusyTimeout
	}

	if c.RequestLog.Path == "" {
		c.RequestLog.Path = DefaultRequestLogPath
	}
	if c.RequestLog.RetentionDays == 0 {
		c.RequestLog.RetentionDays = DefaultRetentionDays
	}
	if c.RequestLog.PruneSchedule == "" {
		c.RequestLog.PruneSchedule = DefaultPruneSchedule
	}

	if c.RateLimit.Requests == 0 {
		c.RateLimit.Requests = DefaultRateLimitRequests
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = DefaultRateLimitWindow
	}

	if c.Telemetry.Logging.Level == "" {
		c.Telemetry.Logging.Level = DefaultLogLevel
	}
	if c.Telemetry.Logging.Format == "" {
		c.Telemetry.Logging.Format = DefaultLogFormat
	}
	if c.Telemetry.Metrics.Namespace == "" {
		c.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if c.Telemetry.Metrics.Path == "" {
		c.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if len(c.Telemetry.Metrics.RequestDurationBuckets) == 0 {
		c.Telemetry.Metrics.RequestDurationBuckets = DefaultDurationBuckets
	}
}
