package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"zaigate/zaigate/pkg/account"
	"zaigate/zaigate/pkg/account/refresh"
	"zaigate/zaigate/pkg/account/store"
	"zaigate/zaigate/pkg/config"
	"zaigate/zaigate/pkg/proxy"
	"zaigate/zaigate/pkg/proxy/handlers"
	"zaigate/zaigate/pkg/proxy/middleware"
	"zaigate/zaigate/pkg/requestlog"
	"zaigate/zaigate/pkg/security/auth"
	"zaigate/zaigate/pkg/telemetry/health"
	"zaigate/zaigate/pkg/telemetry/metrics"
)

// Dependencies are the assembled components the server exposes over HTTP.
// Recorder, RequestLog, Launcher, Metrics and Health may be nil.
type Dependencies struct {
	Pool       *account.Pool
	Store      store.Store
	Engine     *proxy.Engine
	Refresh    *refresh.Manager
	Launcher   refresh.LoginLauncher
	Recorder   requestlog.Recorder
	RequestLog *requestlog.SQLiteLog
	Metrics    *metrics.Collector
	Health     *health.Checker
}

// Server is the gateway's HTTP front end.
type Server struct {
	cfg        config.ServerConfig
	httpServer *http.Server
	authMW     *auth.Middleware
	logger     *slog.Logger

	mu      sync.Mutex
	running bool
}

// New assembles the routes and middleware chain and returns a server
// ready to Start.
func New(cfg *config.Config, deps Dependencies, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	authMW := auth.NewMiddleware(cfg.Auth.MasterKey, logger)
	s := &Server{
		cfg:    cfg.Server,
		authMW: authMW,
		logger: logger.With("component", "server"),
	}

	s.httpServer = &http.Server{
		Addr:           cfg.Server.ListenAddress,
		Handler:        s.buildHandler(cfg, deps),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}
	return s
}

// buildHandler wires every route and wraps the API surface in the
// middleware chain. Health probes and metrics stay outside auth and rate
// limiting so orchestrators can always reach them.
func (s *Server) buildHandler(cfg *config.Config, deps Dependencies) http.Handler {
	api := http.NewServeMux()
	api.Handle("/v1/chat/completions",
		handlers.NewChatHandler(deps.Engine, deps.Recorder, deps.Metrics, s.logger))
	api.Handle("/v1/models",
		handlers.NewModelsHandler())
	api.Handle("/v1/messages",
		handlers.NewMessagesHandler(deps.Engine, deps.Recorder, deps.Metrics, s.logger))
	handlers.NewAdminHandler(deps.Pool, deps.Store, deps.Refresh, deps.Launcher, deps.RequestLog, s.logger).
		Register(api)

	var protected http.Handler = s.authMW.Handle(api)
	if cfg.RateLimit.Enabled {
		protected = middleware.NewRateLimiter(cfg.RateLimit).Handle(protected)
	}

	root := http.NewServeMux()
	if deps.Health != nil {
		root.Handle("GET /health", deps.Health.ReadinessHandler())
		root.Handle("GET /health/live", deps.Health.LivenessHandler())
		root.Handle("GET /health/ready", deps.Health.ReadinessHandler())
	}
	if deps.Metrics != nil && cfg.Telemetry.Metrics.Enabled {
		path := cfg.Telemetry.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		root.Handle("GET "+path, deps.Metrics.Handler())
	}
	root.Handle("/", protected)

	chain := middleware.CORS(cfg.Server.CORS)(root)
	chain = middleware.Logging(s.logger)(chain)
	chain = middleware.RequestID(chain)
	chain = middleware.Recovery(chain)
	return chain
}

// Handler exposes the assembled handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ApplyConfig applies the reloadable subset of a new configuration.
// Listener settings need a restart; the master key takes effect
// immediately.
func (s *Server) ApplyConfig(cfg *config.Config) {
	s.authMW.SetMasterKey(cfg.Auth.MasterKey)
	s.logger.Info("configuration applied",
		"auth_enabled", cfg.Auth.MasterKey != "",
	)
}

// Start runs the listener until ctx is cancelled or the listener fails,
// then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "address", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listener failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown() error {
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("shutting down", "timeout", timeout)
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
