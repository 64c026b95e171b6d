package refresh

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"zaigate/zaigate/pkg/account"
	"zaigate/zaigate/pkg/account/store"
	"zaigate/zaigate/pkg/config"
	"zaigate/zaigate/pkg/telemetry/metrics"
	"zaigate/zaigate/pkg/upstream"
)

type fakeRenewer struct {
	mu     sync.Mutex
	calls  atomic.Int32
	delay  time.Duration
	token  string
	expiry time.Time
	err    error
}

func (f *fakeRenewer) Renew(ctx context.Context, acct account.Account) (string, time.Time, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", time.Time{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", time.Time{}, f.err
	}
	return f.token, f.expiry, nil
}

func (f *fakeRenewer) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type fakeLauncher struct {
	calls  atomic.Int32
	token  string
	expiry time.Time
	err    error
}

func (f *fakeLauncher) Login(ctx context.Context, acct account.Account) (string, time.Time, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", time.Time{}, f.err
	}
	return f.token, f.expiry, nil
}

func testPoolWith(t *testing.T, accts ...*account.Account) *account.Pool {
	t.Helper()
	pool := account.NewPool(3, nil)
	for _, a := range accts {
		pool.Add(a)
	}
	return pool
}

func testConfig() config.RefreshConfig {
	return config.RefreshConfig{
		Interval:    time.Minute,
		Margin:      5 * time.Minute,
		MaxFailures: 3,
		Timeout:     5 * time.Second,
	}
}

func TestForceRefreshSuccess(t *testing.T) {
	pool := testPoolWith(t, &account.Account{ID: "a1", Health: account.HealthHealthy})
	st := store.NewMemoryStore()
	expiry := time.Now().Add(time.Hour)
	renewer := &fakeRenewer{token: "fresh-token", expiry: expiry}

	mgr := NewManager(pool, st, renewer, nil, testConfig(), nil, nil)

	if err := mgr.ForceRefresh(context.Background(), "a1"); err != nil {
		t.Fatalf("ForceRefresh failed: %v", err)
	}

	acct, err := pool.Get("a1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if acct.AccessToken != "fresh-token" {
		t.Errorf("token = %q, want %q", acct.AccessToken, "fresh-token")
	}
	if !acct.TokenExpiry.Equal(expiry) {
		t.Errorf("expiry = %v, want %v", acct.TokenExpiry, expiry)
	}

	stored, err := st.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(stored) != 1 || stored[0].AccessToken != "fresh-token" {
		t.Error("refreshed token was not persisted")
	}
}

func TestForceRefreshCoalesces(t *testing.T) {
	pool := testPoolWith(t, &account.Account{ID: "a1", Health: account.HealthHealthy})
	renewer := &fakeRenewer{token: "tok", delay: 100 * time.Millisecond}
	mgr := NewManager(pool, nil, renewer, nil, testConfig(), nil, nil)

	const concurrency = 8
	var wg sync.WaitGroup
	errs := make([]error, concurrency)
	for i := range concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = mgr.ForceRefresh(context.Background(), "a1")
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("caller %d got error: %v", i, err)
		}
	}
	if got := renewer.calls.Load(); got != 1 {
		t.Errorf("renewer called %d times, want 1 (coalesced)", got)
	}
}

func TestForceRefreshIdempotentAfterCompletion(t *testing.T) {
	pool := testPoolWith(t, &account.Account{ID: "a1", Health: account.HealthHealthy})
	renewer := &fakeRenewer{token: "tok"}
	mgr := NewManager(pool, nil, renewer, nil, testConfig(), nil, nil)

	for range 3 {
		if err := mgr.ForceRefresh(context.Background(), "a1"); err != nil {
			t.Fatalf("ForceRefresh failed: %v", err)
		}
	}

	// Sequential calls are separate refreshes, each safe to issue.
	if got := renewer.calls.Load(); got != 3 {
		t.Errorf("renewer called %d times, want 3", got)
	}
}

func TestRefreshFallsBackToLogin(t *testing.T) {
	pool := testPoolWith(t, &account.Account{ID: "a1", Health: account.HealthHealthy})
	renewer := &fakeRenewer{}
	renewer.setErr(&upstream.AuthError{AccountID: "a1", Message: "session dead"})
	launcher := &fakeLauncher{token: "login-token", expiry: time.Now().Add(time.Hour)}

	mgr := NewManager(pool, nil, renewer, launcher, testConfig(), nil, nil)

	if err := mgr.ForceRefresh(context.Background(), "a1"); err != nil {
		t.Fatalf("ForceRefresh failed: %v", err)
	}
	if launcher.calls.Load() != 1 {
		t.Error("launcher was not invoked for dead session")
	}

	acct, _ := pool.Get("a1")
	if acct.AccessToken != "login-token" {
		t.Errorf("token = %q, want login result", acct.AccessToken)
	}
}

func TestRefreshNoLauncherPropagatesAuthError(t *testing.T) {
	pool := testPoolWith(t, &account.Account{ID: "a1", Health: account.HealthHealthy})
	renewer := &fakeRenewer{}
	renewer.setErr(&upstream.AuthError{AccountID: "a1", Message: "session dead"})

	mgr := NewManager(pool, nil, renewer, nil, testConfig(), nil, nil)

	err := mgr.ForceRefresh(context.Background(), "a1")
	var authErr *upstream.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
}

func TestRefreshTransientErrorDoesNotInvokeLauncher(t *testing.T) {
	pool := testPoolWith(t, &account.Account{ID: "a1", Health: account.HealthHealthy})
	renewer := &fakeRenewer{}
	renewer.setErr(&upstream.UnavailableError{Message: "upstream down"})
	launcher := &fakeLauncher{token: "login-token"}

	mgr := NewManager(pool, nil, renewer, launcher, testConfig(), nil, nil)

	if err := mgr.ForceRefresh(context.Background(), "a1"); err == nil {
		t.Fatal("expected an error")
	}
	if launcher.calls.Load() != 0 {
		t.Error("launcher must not run for transient failures")
	}
}

func TestRefreshDisablesAfterMaxFailures(t *testing.T) {
	pool := testPoolWith(t, &account.Account{ID: "a1", Health: account.HealthHealthy})
	st := store.NewMemoryStore()
	renewer := &fakeRenewer{}
	renewer.setErr(&upstream.UnavailableError{Message: "upstream down"})

	cfg := testConfig()
	cfg.MaxFailures = 3
	mgr := NewManager(pool, st, renewer, nil, cfg, nil, nil)

	for i := range 3 {
		if err := mgr.ForceRefresh(context.Background(), "a1"); err == nil {
			t.Fatalf("attempt %d: expected an error", i)
		}
	}

	acct, _ := pool.Get("a1")
	if acct.Health != account.HealthDisabled {
		t.Errorf("health = %v, want Disabled after %d failures", acct.Health, cfg.MaxFailures)
	}

	stored, err := st.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(stored) != 1 || stored[0].Health != account.HealthDisabled {
		t.Error("disabled state was not persisted")
	}
}

func TestRefreshSkipsDisabledAccount(t *testing.T) {
	pool := testPoolWith(t, &account.Account{ID: "a1", Health: account.HealthDisabled})
	renewer := &fakeRenewer{token: "tok"}
	mgr := NewManager(pool, nil, renewer, nil, testConfig(), nil, nil)

	if err := mgr.ForceRefresh(context.Background(), "a1"); err == nil {
		t.Fatal("expected an error for disabled account")
	}
	if renewer.calls.Load() != 0 {
		t.Error("renewer must not run for disabled accounts")
	}
}

func TestRefreshRecoversDegradedAccount(t *testing.T) {
	pool := testPoolWith(t, &account.Account{ID: "a1", Health: account.HealthDegraded})
	renewer := &fakeRenewer{token: "tok", expiry: time.Now().Add(time.Hour)}
	mgr := NewManager(pool, nil, renewer, nil, testConfig(), nil, nil)

	if err := mgr.ForceRefresh(context.Background(), "a1"); err != nil {
		t.Fatalf("ForceRefresh failed: %v", err)
	}

	acct, _ := pool.Get("a1")
	if acct.Health != account.HealthHealthy {
		t.Errorf("health = %v, want Healthy after successful refresh", acct.Health)
	}
}

func TestNeedsRefresh(t *testing.T) {
	now := time.Now()
	mgr := NewManager(account.NewPool(3, nil), nil, &fakeRenewer{}, nil, testConfig(), nil, nil)

	tests := []struct {
		name string
		acct account.Account
		want bool
	}{
		{"missing token", account.Account{}, true},
		{"unknown expiry", account.Account{AccessToken: "t"}, false},
		{"expiring inside margin", account.Account{AccessToken: "t", TokenExpiry: now.Add(time.Minute)}, true},
		{"already expired", account.Account{AccessToken: "t", TokenExpiry: now.Add(-time.Minute)}, true},
		{"plenty of validity left", account.Account{AccessToken: "t", TokenExpiry: now.Add(time.Hour)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mgr.needsRefresh(tt.acct, now); got != tt.want {
				t.Errorf("needsRefresh() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSweepRefreshesExpiringAccounts(t *testing.T) {
	pool := testPoolWith(t,
		&account.Account{ID: "expiring", Health: account.HealthHealthy, AccessToken: "old", TokenExpiry: time.Now().Add(time.Minute)},
		&account.Account{ID: "fresh", Health: account.HealthHealthy, AccessToken: "ok", TokenExpiry: time.Now().Add(time.Hour)},
		&account.Account{ID: "dead", Health: account.HealthDisabled},
	)
	renewer := &fakeRenewer{token: "new-token", expiry: time.Now().Add(time.Hour)}
	mgr := NewManager(pool, nil, renewer, nil, testConfig(), nil, nil)

	mgr.sweep(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		acct, _ := pool.Get("expiring")
		if acct.AccessToken == "new-token" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	expiring, _ := pool.Get("expiring")
	if expiring.AccessToken != "new-token" {
		t.Error("expiring account was not refreshed")
	}
	fresh, _ := pool.Get("fresh")
	if fresh.AccessToken != "ok" {
		t.Error("fresh account should not have been refreshed")
	}
	if got := renewer.calls.Load(); got != 1 {
		t.Errorf("renewer called %d times, want 1", got)
	}
}

func TestSweepPublishesPoolSizeGauges(t *testing.T) {
	pool := testPoolWith(t,
		&account.Account{ID: "h1", Health: account.HealthHealthy, AccessToken: "ok", TokenExpiry: time.Now().Add(time.Hour)},
		&account.Account{ID: "h2", Health: account.HealthHealthy, AccessToken: "ok", TokenExpiry: time.Now().Add(time.Hour)},
		&account.Account{ID: "dead", Health: account.HealthDisabled},
	)
	collector := metrics.NewCollector(
		&config.MetricsConfig{Enabled: true, Namespace: "zaigate"},
		prometheus.NewRegistry(),
	)
	mgr := NewManager(pool, nil, &fakeRenewer{}, nil, testConfig(), collector, nil)

	mgr.sweep(context.Background())

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()

	for _, want := range []string{
		`zaigate_pool_accounts{state="healthy"} 2`,
		`zaigate_pool_accounts{state="degraded"} 0`,
		`zaigate_pool_accounts{state="disabled"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestStartStop(t *testing.T) {
	pool := testPoolWith(t, &account.Account{ID: "a1", Health: account.HealthHealthy})
	renewer := &fakeRenewer{token: "tok", expiry: time.Now().Add(time.Hour)}
	mgr := NewManager(pool, nil, renewer, nil, testConfig(), nil, nil)

	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// The startup sweep refreshes the tokenless account.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if acct, _ := pool.Get("a1"); acct.AccessToken == "tok" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if acct, _ := pool.Get("a1"); acct.AccessToken != "tok" {
		t.Error("startup sweep did not refresh the account")
	}

	mgr.Stop()
	mgr.Stop() // second Stop is a no-op
}

func TestPoolSignalTriggersRefresh(t *testing.T) {
	pool := testPoolWith(t, &account.Account{
		ID:          "a1",
		Health:      account.HealthHealthy,
		AccessToken: "stale",
		TokenExpiry: time.Now().Add(time.Hour),
	})
	renewer := &fakeRenewer{token: "signalled-token", expiry: time.Now().Add(time.Hour)}
	mgr := NewManager(pool, nil, renewer, nil, testConfig(), nil, nil)

	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer mgr.Stop()

	// An auth failure clears the token and signals the manager.
	pool.ReportFailure("a1", account.FailureAuthExpired)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if acct, _ := pool.Get("a1"); acct.AccessToken == "signalled-token" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("refresh signal was not served")
}
