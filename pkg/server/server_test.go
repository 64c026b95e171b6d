package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"zaigate/zaigate/pkg/account"
	"zaigate/zaigate/pkg/account/refresh"
	"zaigate/zaigate/pkg/account/store"
	"zaigate/zaigate/pkg/config"
	"zaigate/zaigate/pkg/proxy"
	"zaigate/zaigate/pkg/telemetry/health"
	"zaigate/zaigate/pkg/upstream"
)

type okCaller struct{}

func (okCaller) Call(ctx context.Context, acct account.Account, req *upstream.Request) (<-chan upstream.Chunk, error) {
	ch := make(chan upstream.Chunk, 1)
	ch <- upstream.Chunk{Content: "pong"}
	close(ch)
	return ch, nil
}

type noopRenewer struct{}

func (noopRenewer) Renew(ctx context.Context, acct account.Account) (string, time.Time, error) {
	return strings.Repeat("r", 64), time.Now().Add(time.Hour), nil
}

func testServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()

	pool := account.NewPool(3, nil)
	pool.Add(&account.Account{
		ID:          "acct-1",
		AccessToken: strings.Repeat("t", 64),
		Health:      account.HealthHealthy,
	})
	st := store.NewMemoryStore()
	engine := proxy.NewEngine(pool, okCaller{}, proxy.NewImageInliner(0), 3, nil, nil)
	mgr := refresh.NewManager(pool, st, noopRenewer{}, nil, cfg.Refresh, nil, nil)

	checker := health.New(time.Second)
	checker.RegisterCheck("pool", pool.CheckReady)

	return New(cfg, Dependencies{
		Pool:    pool,
		Store:   st,
		Engine:  engine,
		Refresh: mgr,
		Health:  checker,
	}, nil)
}

func baseConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.ListenAddress = "127.0.0.1:0"
	cfg.Server.ShutdownTimeout = time.Second
	cfg.Refresh = config.RefreshConfig{
		Interval:    time.Minute,
		Margin:      10 * time.Minute,
		MaxFailures: 3,
		Timeout:     5 * time.Second,
	}
	return cfg
}

func TestHealthEndpoints(t *testing.T) {
	srv := testServer(t, baseConfig())

	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, rec.Code)
		}
	}
}

func TestReadinessDegradedWhenNoAccountSelectable(t *testing.T) {
	cfg := baseConfig()

	pool := account.NewPool(3, nil)
	pool.Add(&account.Account{
		ID:          "acct-1",
		AccessToken: strings.Repeat("t", 64),
		Health:      account.HealthDisabled,
	})
	st := store.NewMemoryStore()
	engine := proxy.NewEngine(pool, okCaller{}, proxy.NewImageInliner(0), 3, nil, nil)
	mgr := refresh.NewManager(pool, st, noopRenewer{}, nil, cfg.Refresh, nil, nil)
	checker := health.New(time.Second)
	checker.RegisterCheck("pool", pool.CheckReady)

	srv := New(cfg, Dependencies{
		Pool:    pool,
		Store:   st,
		Engine:  engine,
		Refresh: mgr,
		Health:  checker,
	}, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readiness status = %d, want 503 while every account is disabled", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "degraded") {
		t.Errorf("readiness body = %q, want degraded status", rec.Body.String())
	}
}

func TestHealthBypassesAuth(t *testing.T) {
	cfg := baseConfig()
	cfg.Auth.MasterKey = "sk-secret"
	srv := testServer(t, cfg)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200 without a key", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("models status = %d, want 401 without a key", rec.Code)
	}
}

func TestAuthorizedRequestFlows(t *testing.T) {
	cfg := baseConfig()
	cfg.Auth.MasterKey = "sk-secret"
	srv := testServer(t, cfg)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions",
		strings.NewReader(`{"messages":[{"role":"user","content":"ping"}]}`))
	req.Header.Set("Authorization", "Bearer sk-secret")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Choices) != 1 || resp.Choices[0].Message.Content != "pong" {
		t.Errorf("response = %s", rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("request ID header missing")
	}
}

func TestApplyConfigSwapsMasterKey(t *testing.T) {
	cfg := baseConfig()
	cfg.Auth.MasterKey = "old-key"
	srv := testServer(t, cfg)

	next := baseConfig()
	next.Auth.MasterKey = "new-key"
	srv.ApplyConfig(next)

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	req.Header.Set("Authorization", "Bearer new-key")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d with swapped key, want 200", rec.Code)
	}

	req.Header.Set("Authorization", "Bearer old-key")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d with stale key, want 401", rec.Code)
	}
}

func TestRateLimitAppliesToAPI(t *testing.T) {
	cfg := baseConfig()
	cfg.RateLimit = config.RateLimitConfig{Enabled: true, Requests: 2, Window: time.Minute}
	srv := testServer(t, cfg)

	var last int
	for range 3 {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/models", nil))
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", last)
	}

	// Health probes stay reachable past the limit.
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d after limit, want 200", rec.Code)
	}
}

func TestAdminRoutesRegistered(t *testing.T) {
	srv := testServer(t, baseConfig())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/accounts", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("accounts status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("stats status = %d", rec.Code)
	}
}

func TestStartAndShutdown(t *testing.T) {
	srv := testServer(t, baseConfig())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Start returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}
