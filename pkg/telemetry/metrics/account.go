package metrics

import (
	"zaigate/zaigate/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// AccountMetrics tracks metrics related to the account pool.
//
// Metrics:
//   - zaigate_pool_accounts: accounts per health state (gauge)
//   - zaigate_account_selections_total: selections per account
//   - zaigate_account_failures_total: classified failures per account
type AccountMetrics struct {
	poolAccounts    *prometheus.GaugeVec
	selectionsTotal *prometheus.CounterVec
	failuresTotal   *prometheus.CounterVec
}

// NewAccountMetrics creates and registers account metrics with the provided registry.
func NewAccountMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *AccountMetrics {
	am := &AccountMetrics{
		poolAccounts: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "pool_accounts",
				Help:      "Number of accounts in the pool by health state",
			},
			[]string{"state"},
		),

		selectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "account_selections_total",
				Help:      "Total number of times each account was selected",
			},
			[]string{"account_id"},
		),

		failuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "account_failures_total",
				Help:      "Total classified failures attributed to each account",
			},
			[]string{"account_id", "kind"},
		),
	}

	registry.MustRegister(
		am.poolAccounts,
		am.selectionsTotal,
		am.failuresTotal,
	)

	return am
}

// UpdatePoolSize sets the gauge for a health state.
func (am *AccountMetrics) UpdatePoolSize(state string, count int) {
	am.poolAccounts.WithLabelValues(state).Set(float64(count))
}

// RecordSelection records a selection of the given account.
func (am *AccountMetrics) RecordSelection(accountID string) {
	am.selectionsTotal.WithLabelValues(accountID).Inc()
}

// RecordFailure records a classified failure for the given account.
func (am *AccountMetrics) RecordFailure(accountID, kind string) {
	am.failuresTotal.WithLabelValues(accountID, kind).Inc()
}
