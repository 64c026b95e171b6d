/*
Package metrics provides Prometheus metrics collection for ZaiGate.

The Collector registers all gateway metrics against a dedicated registry and
exposes them through a promhttp handler. Metric subsystems:

  - request: inbound completion requests (count, duration, streamed chunks)
  - account: pool composition by health state, selections, failures
  - refresh: token refresh attempts, outcomes, and durations

Usage:

	collector := metrics.NewCollector(&cfg.Telemetry.Metrics)
	collector.RecordRequest("gpt-5-2025-08-07", "success", duration)
	mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
*/
package metrics
