package metrics

import (
	"time"

	"zaigate/zaigate/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector is the main orchestrator for all Prometheus metrics in ZaiGate.
// It manages metric registration and provides a unified interface for
// recording metrics across all components.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	requestMetrics *RequestMetrics
	accountMetrics *AccountMetrics
	refreshMetrics *RefreshMetrics
}

// NewCollector creates a new metrics collector with the specified
// configuration and Prometheus registry. If registry is nil, a fresh
// registry is created.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = "zaigate"
	}
	if len(cfg.RequestDurationBuckets) == 0 {
		cfg.RequestDurationBuckets = config.DefaultDurationBuckets
	}

	c := &Collector{
		config:   cfg,
		registry: registry,
	}

	c.requestMetrics = NewRequestMetrics(cfg, registry)
	c.accountMetrics = NewAccountMetrics(cfg, registry)
	c.refreshMetrics = NewRefreshMetrics(cfg, registry)

	return c
}

// RecordRequest records metrics for a completed completion request.
//
// Parameters:
//   - model: requested model name
//   - status: request status ("success", "error", "exhausted", "rejected")
//   - duration: total request duration including the full stream
func (c *Collector) RecordRequest(model, status string, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.requestMetrics.RecordRequest(model, status, duration)
}

// RecordStreamChunks records the number of chunks relayed for a stream.
func (c *Collector) RecordStreamChunks(model string, chunks int) {
	if !c.config.Enabled {
		return
	}
	c.requestMetrics.RecordStreamChunks(model, chunks)
}

// RecordRetry records an account-level retry during request dispatch.
func (c *Collector) RecordRetry(reason string) {
	if !c.config.Enabled {
		return
	}
	c.requestMetrics.RecordRetry(reason)
}

// UpdatePoolSize updates the number of accounts in a given health state.
func (c *Collector) UpdatePoolSize(state string, count int) {
	if !c.config.Enabled {
		return
	}
	c.accountMetrics.UpdatePoolSize(state, count)
}

// RecordSelection records an account selection by the pool.
func (c *Collector) RecordSelection(accountID string) {
	if !c.config.Enabled {
		return
	}
	c.accountMetrics.RecordSelection(accountID)
}

// RecordAccountFailure records a classified failure attributed to an account.
func (c *Collector) RecordAccountFailure(accountID, kind string) {
	if !c.config.Enabled {
		return
	}
	c.accountMetrics.RecordFailure(accountID, kind)
}

// RecordRefresh records a token refresh attempt and its outcome.
//
// Parameters:
//   - outcome: "success", "failure", or "coalesced"
//   - duration: refresh attempt duration (zero for coalesced waits)
func (c *Collector) RecordRefresh(outcome string, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.refreshMetrics.RecordRefresh(outcome, duration)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
