// Package telemetry provides observability for ZaiGate.
//
// # Components
//
//   - logging: structured logging built on log/slog with credential redaction
//   - metrics: Prometheus metrics collection
//   - health: liveness and readiness check endpoints
//
// # Usage
//
//	logger, err := logging.New(cfg.Telemetry.Logging)
//	if err != nil {
//		return err
//	}
//	slog.SetDefault(logger)
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	collector.RecordRequest("gpt-5-2025-08-07", "success", time.Second)
//
//	checker := health.New(5 * time.Second)
//	checker.RegisterCheck("store", storeCheck)
package telemetry
