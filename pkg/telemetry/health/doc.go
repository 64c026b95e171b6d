/*
Package health provides liveness and readiness checks for ZaiGate.

Components register named check functions with a Checker. The liveness probe
answers immediately; the readiness probe runs all registered checks
concurrently with a per-check timeout and degrades the overall status if any
check fails. Typical checks are credential store reachability and pool
availability.

	checker := health.New(5 * time.Second)
	checker.RegisterCheck("store", func(ctx context.Context) error {
		return store.Ping(ctx)
	})
	mux.HandleFunc("/health/live", checker.LivenessHandler())
	mux.HandleFunc("/health/ready", checker.ReadinessHandler())
*/
package health
