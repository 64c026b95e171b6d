package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any
// errors. Environment variables are not consulted; use
// LoadConfigWithEnvOverrides for that functionality.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention ZAIGATE_SECTION_FIELD (e.g., ZAIGATE_SERVER_LISTEN_ADDRESS).
// Environment variables always take precedence over file-based configuration.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the
// configuration. Environment variables use the format ZAIGATE_SECTION_FIELD.
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	if val := os.Getenv("ZAIGATE_SERVER_LISTEN_ADDRESS"); val != "" {
		cfg.Server.ListenAddress = val
	}
	if val := os.Getenv("ZAIGATE_SERVER_READ_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if val := os.Getenv("ZAIGATE_SERVER_WRITE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}
	if val := os.Getenv("ZAIGATE_SERVER_IDLE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.IdleTimeout = d
		}
	}
	if val := os.Getenv("ZAIGATE_SERVER_SHUTDOWN_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ShutdownTimeout = d
		}
	}
	if val := os.Getenv("ZAIGATE_SERVER_MAX_HEADER_BYTES"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Server.MaxHeaderBytes = i
		}
	}

	// Auth overrides
	if val := os.Getenv("ZAIGATE_AUTH_MASTER_KEY"); val != "" {
		cfg.Auth.MasterKey = val
	}

	// Upstream overrides
	if val := os.Getenv("ZAIGATE_UPSTREAM_BASE_URL"); val != "" {
		cfg.Upstream.BaseURL = val
	}
	if val := os.Getenv("ZAIGATE_UPSTREAM_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Upstream.Timeout = d
		}
	}
	if val := os.Getenv("ZAIGATE_UPSTREAM_MAX_RETRIES"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Upstream.MaxRetries = i
		}
	}
	if val := os.Getenv("ZAIGATE_UPSTREAM_USER_AGENT"); val != "" {
		cfg.Upstream.UserAgent = val
	}
	if val := os.Getenv("ZAIGATE_UPSTREAM_STREAM_BUFFER"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Upstream.StreamBuffer = i
		}
	}

	// Pool overrides
	if val := os.Getenv("ZAIGATE_POOL_FAILURE_THRESHOLD"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Pool.FailureThreshold = i
		}
	}
	if val := os.Getenv("ZAIGATE_POOL_RETRY_BUDGET"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Pool.RetryBudget = i
		}
	}

	// Refresh overrides
	if val := os.Getenv("ZAIGATE_REFRESH_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Refresh.Interval = d
		}
	}
	if val := os.Getenv("ZAIGATE_REFRESH_MARGIN"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Refresh.Margin = d
		}
	}
	if val := os.Getenv("ZAIGATE_REFRESH_MAX_FAILURES"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Refresh.MaxFailures = i
		}
	}
	if val := os.Getenv("ZAIGATE_REFRESH_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Refresh.Timeout = d
		}
	}

	// Store overrides
	if val := os.Getenv("ZAIGATE_STORE_PATH"); val != "" {
		cfg.Store.Path = val
	}

	// Request log overrides
	if val := os.Getenv("ZAIGATE_REQUEST_LOG_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.RequestLog.Enabled = b
		}
	}
	if val := os.Getenv("ZAIGATE_REQUEST_LOG_PATH"); val != "" {
		cfg.RequestLog.Path = val
	}
	if val := os.Getenv("ZAIGATE_REQUEST_LOG_RETENTION_DAYS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.RequestLog.RetentionDays = i
		}
	}

	// Rate limit overrides
	if val := os.Getenv("ZAIGATE_RATE_LIMIT_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.RateLimit.Enabled = b
		}
	}
	if val := os.Getenv("ZAIGATE_RATE_LIMIT_REQUESTS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.RateLimit.Requests = i
		}
	}
	if val := os.Getenv("ZAIGATE_RATE_LIMIT_WINDOW"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.RateLimit.Window = d
		}
	}

	// Telemetry overrides
	if val := os.Getenv("ZAIGATE_TELEMETRY_LOGGING_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("ZAIGATE_TELEMETRY_LOGGING_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	if val := os.Getenv("ZAIGATE_TELEMETRY_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Metrics.Enabled = b
		}
	}
	if val := os.Getenv("ZAIGATE_TELEMETRY_METRICS_PATH"); val != "" {
		cfg.Telemetry.Metrics.Path = val
	}
}
