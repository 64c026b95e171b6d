// Package refresh keeps pool account tokens alive. A cron-driven sweep
// renews tokens before they expire, and on-demand refreshes triggered by
// authentication failures are coalesced so each account has at most one
// renewal in flight.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"zaigate/zaigate/pkg/account"
	"zaigate/zaigate/pkg/account/store"
	"zaigate/zaigate/pkg/config"
	"zaigate/zaigate/pkg/telemetry/metrics"
	"zaigate/zaigate/pkg/upstream"
)

// Renewer renews an account's token using its existing session material.
type Renewer interface {
	Renew(ctx context.Context, acct account.Account) (string, time.Time, error)
}

// LoginLauncher performs a full re-login for an account whose session is
// dead. Implementations drive a browser or similar credential flow; when no
// launcher is configured dead sessions leave the account headed for
// disablement.
type LoginLauncher interface {
	Login(ctx context.Context, acct account.Account) (string, time.Time, error)
}

// inflight tracks one in-progress refresh so concurrent requests for the
// same account wait on it instead of starting their own.
type inflight struct {
	done chan struct{}
	err  error
}

// Manager owns the token refresh lifecycle for all pool accounts.
type Manager struct {
	pool     *account.Pool
	store    store.Store
	renewer  Renewer
	launcher LoginLauncher
	cfg      config.RefreshConfig
	metrics  *metrics.Collector
	logger   *slog.Logger

	cron    *cron.Cron
	mu      sync.Mutex
	pending map[string]*inflight
	running bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewManager creates a refresh manager. The metrics collector may be nil.
func NewManager(pool *account.Pool, st store.Store, renewer Renewer, launcher LoginLauncher, cfg config.RefreshConfig, collector *metrics.Collector, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		pool:     pool,
		store:    st,
		renewer:  renewer,
		launcher: launcher,
		cfg:      cfg,
		metrics:  collector,
		logger:   logger.With("component", "account.refresh"),
		cron:     cron.New(),
		pending:  make(map[string]*inflight),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start schedules the periodic sweep and begins serving on-demand refresh
// requests from the pool.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	schedule := fmt.Sprintf("@every %s", m.cfg.Interval)
	if _, err := m.cron.AddFunc(schedule, func() {
		m.sweep(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule token refresh: %w", err)
	}

	m.cron.Start()
	m.running = true

	go m.serveRequests(ctx)

	m.logger.Info("token refresh scheduler started",
		"interval", m.cfg.Interval,
		"margin", m.cfg.Margin,
	)

	// Sweep immediately so accounts loaded without tokens get one before
	// the first tick.
	go m.sweep(ctx)

	return nil
}

// Stop halts the scheduler and waits for running refreshes to complete.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	close(m.stopCh)
	cronCtx := m.cron.Stop()
	<-cronCtx.Done()
	<-m.doneCh

	m.logger.Info("token refresh scheduler stopped")
}

// serveRequests consumes the pool's refresh signals, raised when a request
// observed an expired token.
func (m *Manager) serveRequests(ctx context.Context) {
	defer close(m.doneCh)
	for {
		select {
		case id := <-m.pool.RefreshRequests():
			go func() {
				if err := m.ForceRefresh(ctx, id); err != nil {
					m.logger.Warn("on-demand token refresh failed",
						"account_id", id,
						"error", err,
					)
				}
			}()
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// sweep refreshes every account whose token is missing or expires within
// the configured margin. Disabled accounts are left alone. Each pass also
// publishes the per-state pool size gauges.
func (m *Manager) sweep(ctx context.Context) {
	now := time.Now()
	counts := map[account.Health]int{
		account.HealthHealthy:  0,
		account.HealthDegraded: 0,
		account.HealthDisabled: 0,
	}
	for _, acct := range m.pool.Accounts() {
		counts[acct.Health]++
		if acct.Health == account.HealthDisabled {
			continue
		}
		if !m.needsRefresh(acct, now) {
			continue
		}
		go func(id string) {
			if err := m.ForceRefresh(ctx, id); err != nil {
				m.logger.Warn("scheduled token refresh failed",
					"account_id", id,
					"error", err,
				)
			}
		}(acct.ID)
	}

	if m.metrics != nil {
		for state, n := range counts {
			m.metrics.UpdatePoolSize(string(state), n)
		}
	}
}

func (m *Manager) needsRefresh(acct account.Account, now time.Time) bool {
	if acct.AccessToken == "" {
		return true
	}
	if acct.TokenExpiry.IsZero() {
		return false
	}
	return now.Add(m.cfg.Margin).After(acct.TokenExpiry)
}

// ForceRefresh renews the account's token now. Concurrent calls for the
// same account coalesce onto a single renewal and share its outcome, so
// the call is safe to issue redundantly.
func (m *Manager) ForceRefresh(ctx context.Context, id string) error {
	m.mu.Lock()
	if existing, ok := m.pending[id]; ok {
		m.mu.Unlock()
		select {
		case <-existing.done:
			return existing.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	flight := &inflight{done: make(chan struct{})}
	m.pending[id] = flight
	m.mu.Unlock()

	flight.err = m.refresh(ctx, id)

	m.mu.Lock()
	delete(m.pending, id)
	m.mu.Unlock()
	close(flight.done)

	return flight.err
}

// refresh performs one renewal attempt and applies the outcome to the pool
// and the store.
func (m *Manager) refresh(ctx context.Context, id string) error {
	acct, err := m.pool.Get(id)
	if err != nil {
		return err
	}
	if acct.Health == account.HealthDisabled {
		return fmt.Errorf("account %q is disabled", id)
	}

	refreshCtx := ctx
	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		refreshCtx, cancel = context.WithTimeout(ctx, m.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	token, expiry, err := m.obtainToken(refreshCtx, acct)
	if err != nil {
		m.recordRefresh("failure", time.Since(start))
		return m.handleFailure(ctx, id, err)
	}

	if err := m.pool.SetToken(id, token, expiry); err != nil {
		return err
	}
	m.recordRefresh("success", time.Since(start))

	m.logger.Info("account token refreshed",
		"account_id", id,
		"expires_at", expiry,
	)

	m.persist(ctx, id)
	return nil
}

// obtainToken tries the lightweight session renewal first and falls back to
// a full login when the session itself is dead.
func (m *Manager) obtainToken(ctx context.Context, acct account.Account) (string, time.Time, error) {
	token, expiry, err := m.renewer.Renew(ctx, acct)
	if err == nil {
		return token, expiry, nil
	}

	var authErr *upstream.AuthError
	if !errors.As(err, &authErr) || m.launcher == nil {
		return "", time.Time{}, err
	}

	m.logger.Info("session renewal rejected, attempting full login",
		"account_id", acct.ID,
	)
	return m.launcher.Login(ctx, acct)
}

// handleFailure counts the refresh failure and disables the account once
// the limit is reached.
func (m *Manager) handleFailure(ctx context.Context, id string, cause error) error {
	failures := m.pool.RecordRefreshFailure(id)

	if m.cfg.MaxFailures > 0 && failures >= m.cfg.MaxFailures {
		if err := m.pool.SetHealth(id, account.HealthDisabled); err == nil {
			m.logger.Error("account disabled after repeated refresh failures",
				"account_id", id,
				"failures", failures,
			)
			m.persist(ctx, id)
		}
	}

	return fmt.Errorf("token refresh for account %q failed: %w", id, cause)
}

// persist writes the account's current state through to the store.
func (m *Manager) persist(ctx context.Context, id string) {
	if m.store == nil {
		return
	}
	acct, err := m.pool.Get(id)
	if err != nil {
		return
	}
	if err := m.store.Save(ctx, &acct); err != nil {
		m.logger.Error("failed to persist account state",
			"account_id", id,
			"error", err,
		)
	}
}

func (m *Manager) recordRefresh(outcome string, d time.Duration) {
	if m.metrics != nil {
		m.metrics.RecordRefresh(outcome, d)
	}
}
