package metrics

import (
	"time"

	"zaigate/zaigate/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// RefreshMetrics tracks metrics related to token refresh.
//
// Metrics:
//   - zaigate_refresh_total: refresh attempts by outcome
//   - zaigate_refresh_duration_seconds: refresh attempt duration histogram
type RefreshMetrics struct {
	refreshTotal    *prometheus.CounterVec
	refreshDuration prometheus.Histogram
}

// NewRefreshMetrics creates and registers refresh metrics with the provided registry.
func NewRefreshMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RefreshMetrics {
	rm := &RefreshMetrics{
		refreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "refresh_total",
				Help:      "Total token refresh attempts by outcome",
			},
			[]string{"outcome"},
		),

		refreshDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "refresh_duration_seconds",
				Help:      "Duration of token refresh attempts in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),
	}

	registry.MustRegister(
		rm.refreshTotal,
		rm.refreshDuration,
	)

	return rm
}

// RecordRefresh records a refresh attempt. Coalesced waits carry a zero
// duration and are counted but not observed in the histogram.
func (rm *RefreshMetrics) RecordRefresh(outcome string, duration time.Duration) {
	rm.refreshTotal.WithLabelValues(outcome).Inc()
	if duration > 0 {
		rm.refreshDuration.Observe(duration.Seconds())
	}
}
