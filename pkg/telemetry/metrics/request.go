package metrics

import (
	"time"

	"zaigate/zaigate/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// RequestMetrics tracks metrics related to completion request processing.
//
// Metrics:
//   - zaigate_requests_total: request count by model and status
//   - zaigate_request_duration_seconds: request duration histogram
//   - zaigate_stream_chunks_total: relayed stream chunk count
//   - zaigate_retries_total: account-level retries by reason
type RequestMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	streamChunks    *prometheus.CounterVec
	retriesTotal    *prometheus.CounterVec
}

// NewRequestMetrics creates and registers request metrics with the provided registry.
func NewRequestMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RequestMetrics {
	rm := &RequestMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "requests_total",
				Help:      "Total number of completion requests processed",
			},
			[]string{"model", "status"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "request_duration_seconds",
				Help:      "Duration of completion requests in seconds",
				Buckets:   cfg.RequestDurationBuckets,
			},
			[]string{"model"},
		),

		streamChunks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "stream_chunks_total",
				Help:      "Total number of stream chunks relayed to clients",
			},
			[]string{"model"},
		),

		retriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "retries_total",
				Help:      "Total number of account-level retries by failure reason",
			},
			[]string{"reason"},
		),
	}

	registry.MustRegister(
		rm.requestsTotal,
		rm.requestDuration,
		rm.streamChunks,
		rm.retriesTotal,
	)

	return rm
}

// RecordRequest records metrics for a completed request.
func (rm *RequestMetrics) RecordRequest(model, status string, duration time.Duration) {
	rm.requestsTotal.WithLabelValues(model, status).Inc()
	rm.requestDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// RecordStreamChunks records the chunk count for a completed stream.
func (rm *RequestMetrics) RecordStreamChunks(model string, chunks int) {
	if chunks > 0 {
		rm.streamChunks.WithLabelValues(model).Add(float64(chunks))
	}
}

// RecordRetry records an account-level retry by failure reason.
func (rm *RequestMetrics) RecordRetry(reason string) {
	rm.retriesTotal.WithLabelValues(reason).Inc()
}
