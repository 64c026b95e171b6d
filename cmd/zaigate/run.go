package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"zaigate/zaigate/pkg/account"
	"zaigate/zaigate/pkg/account/refresh"
	"zaigate/zaigate/pkg/account/store"
	"zaigate/zaigate/pkg/cli"
	"zaigate/zaigate/pkg/config"
	"zaigate/zaigate/pkg/proxy"
	"zaigate/zaigate/pkg/requestlog"
	"zaigate/zaigate/pkg/server"
	"zaigate/zaigate/pkg/telemetry/health"
	"zaigate/zaigate/pkg/telemetry/logging"
	"zaigate/zaigate/pkg/telemetry/metrics"
	"zaigate/zaigate/pkg/upstream"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the ZaiGate server",
	Long: `Start the gateway with the specified configuration.

Examples:
  # Start with default config
  zaigate run

  # Start with custom config
  zaigate run --config /etc/zaigate/config.yaml

  # Override listen address
  zaigate run --listen 0.0.0.0:8080

  # Validate config without starting the server
  zaigate run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}

	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	logger, err := logging.New(cfg.Telemetry.Logging)
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}
	slog.SetDefault(logger)

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	ctx := cli.SetupSignalHandler()

	// Credential store.
	var st store.Store
	if cfg.Store.Path != "" {
		sqlStore, err := store.NewSQLiteStoreWithConfig(store.SQLiteStoreConfig{
			DBPath:      cfg.Store.Path,
			BusyTimeout: cfg.Store.BusyTimeout,
		})
		if err != nil {
			return cli.NewCommandError("run", fmt.Errorf("open account store: %w", err))
		}
		defer sqlStore.Close()
		st = sqlStore
	} else {
		logger.Warn("no store path configured, accounts will not survive restart")
		st = store.NewMemoryStore()
	}

	// Account pool, seeded from the store.
	pool := account.NewPool(cfg.Pool.FailureThreshold, logger)
	accounts, err := st.Load(ctx)
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("load accounts: %w", err))
	}
	for _, acct := range accounts {
		pool.Add(acct)
	}
	logger.Info("account pool loaded", "accounts", pool.Len())

	var collector *metrics.Collector
	if cfg.Telemetry.Metrics.Enabled {
		collector = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	}

	client := upstream.NewClient(cfg.Upstream, logger)

	// Token lifecycle.
	manager := refresh.NewManager(pool, st, client, nil, cfg.Refresh, collector, logger)
	if err := manager.Start(ctx); err != nil {
		return cli.NewCommandError("run", fmt.Errorf("start refresh manager: %w", err))
	}
	defer manager.Stop()

	// Request outcome log.
	var recorder requestlog.Recorder = requestlog.NopRecorder{}
	var reqLog *requestlog.SQLiteLog
	if cfg.RequestLog.Enabled && cfg.RequestLog.Path != "" {
		reqLog, err = requestlog.OpenSQLiteLog(cfg.RequestLog.Path, cfg.Store.BusyTimeout, logger)
		if err != nil {
			return cli.NewCommandError("run", fmt.Errorf("open request log: %w", err))
		}
		defer reqLog.Close()
		recorder = reqLog

		pruner := requestlog.NewPruner(reqLog, cfg.RequestLog.PruneSchedule, cfg.RequestLog.RetentionDays, logger)
		if err := pruner.Start(ctx); err != nil {
			logger.Warn("request log pruner not started", "error", err)
		} else {
			defer pruner.Stop()
		}
	}

	engine := proxy.NewEngine(
		pool,
		client,
		proxy.NewImageInliner(cfg.Upstream.Timeout),
		cfg.Pool.RetryBudget,
		collector,
		logger,
	)

	checker := health.New(5 * time.Second)
	checker.RegisterCheck("store", st.Ping)
	checker.RegisterCheck("pool", pool.CheckReady)

	srv := server.New(cfg, server.Dependencies{
		Pool:       pool,
		Store:      st,
		Engine:     engine,
		Refresh:    manager,
		Recorder:   recorder,
		RequestLog: reqLog,
		Metrics:    collector,
		Health:     checker,
	}, logger)

	// Hot reload for the reloadable config subset.
	if watcher, err := config.NewWatcher(cfgFile, logger); err != nil {
		logger.Warn("config watcher not started", "error", err)
	} else {
		go func() {
			if err := watcher.Watch(ctx, srv.ApplyConfig); err != nil {
				logger.Warn("config watcher stopped", "error", err)
			}
		}()
		defer watcher.Stop()
	}

	fmt.Printf("✓ ZaiGate listening on %s (%d accounts)\n", cfg.Server.ListenAddress, pool.Len())

	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}
	logger.Info("shutdown complete")
	return nil
}
