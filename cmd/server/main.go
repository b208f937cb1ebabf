/*
main.go - Application entry point

PURPOSE:
  Command line for the payroll ledger. The default command serves the HTTP
  API; the others operate on the same journal offline.

COMMANDS:
  serve         Start the HTTP API (default)
  replay        Rebuild state from the journal and print a summary
  payroll run   Pay every active employee of one employer
  token         Issue a bearer token for a caller

STARTUP SEQUENCE (serve):
  1. Load configuration (config file, .env, PAYROLL_* environment)
  2. Open the journal store (memory, sqlite or postgres + migrations)
  3. Replay the journal into a payroll.Directory
  4. Optionally seed demo employers and start the payroll scheduler
  5. Serve HTTP with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler and wait for its pass
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close the store

EXAMPLES:
  # Local development, no tokens needed
  PAYROLL_AUTH_DISABLED=true PAYROLL_STORE_DRIVER=memory ./server

  # Postgres with the scheduler on
  PAYROLL_STORE_DRIVER=postgres PAYROLL_STORE_POSTGRES_URL=postgres://... \
  PAYROLL_PAYROLL_SCHEDULER_ENABLED=true ./server serve

SEE ALSO:
  - config/config.go: All settings and their defaults
  - api/server.go: Router configuration
  - commands.go: Offline commands
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/payroll-ledger/api"
	"github.com/warp/payroll-ledger/config"
	"github.com/warp/payroll-ledger/generic"
	"github.com/warp/payroll-ledger/generic/store"
	"github.com/warp/payroll-ledger/logging"
	"github.com/warp/payroll-ledger/metrics"
	"github.com/warp/payroll-ledger/payroll"
	"github.com/warp/payroll-ledger/settlement"
	"github.com/warp/payroll-ledger/store/postgres"
	"github.com/warp/payroll-ledger/store/sqlite"
)

var (
	configPath string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "Payroll and attendance ledger",
	Long: `Tracks attendance, leave and salary for employers on an append-only
journal and settles payouts through an external settlement service.

Run without a subcommand to serve the HTTP API.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		logger, err = logging.New(cfg.Log)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./config.yaml or ./config/config.yaml)")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// =============================================================================
// WIRING
// =============================================================================

// backend is an opened journal store with its run log.
type backend struct {
	store generic.Store
	runs  generic.RunLog
	close func() error
}

func openBackend(ctx context.Context) (*backend, error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		m := store.NewMemory()
		return &backend{store: m, runs: m, close: func() error { return nil }}, nil

	case config.DriverSQLite:
		if cfg.Store.SQLitePath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Store.SQLitePath), 0o755); err != nil {
				return nil, fmt.Errorf("create data directory: %w", err)
			}
		}
		s, err := sqlite.New(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &backend{store: s, runs: s, close: s.Close}, nil

	case config.DriverPostgres:
		s, err := postgres.New(ctx, cfg.Store.PostgresURL, logger)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(); err != nil {
			s.Close()
			return nil, err
		}
		return &backend{store: s, runs: s, close: func() error { s.Close(); return nil }}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

func newSettlement() payroll.Settlement {
	if cfg.Settlement.WebhookURL != "" {
		return settlement.NewWebhook(cfg.Settlement.WebhookURL, cfg.Settlement.Timeout, logger)
	}
	logger.Warn("no settlement webhook configured, payouts are only recorded")
	return settlement.NewRecorder(logger)
}

// restore replays the journal into a directory. m may be nil.
func restore(ctx context.Context, b *backend, m *metrics.Metrics) (*payroll.Directory, error) {
	var journal generic.Ledger = generic.NewLedger(b.store)
	opts := payroll.Options{
		Logger:            logger,
		Settlement:        newSettlement(),
		Runs:              b.runs,
		SettlementTimeout: cfg.Payroll.SettlementTimeout,
		Concurrency:       cfg.Payroll.Concurrency,
		OpenDayPolicy:     cfg.OpenDayPolicy(),
	}
	if m != nil {
		journal = m.WrapLedger(journal)
		opts.Observer = m
	}
	return payroll.Restore(ctx, journal, opts)
}

// =============================================================================
// SERVE
// =============================================================================

func serve(ctx context.Context) error {
	b, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.close(); err != nil {
			logger.Error("close store", zap.Error(err))
		}
	}()

	m := metrics.New()
	dir, err := restore(ctx, b, m)
	if err != nil {
		return fmt.Errorf("restore journal: %w", err)
	}

	if cfg.Payroll.SeedDemo {
		n, err := api.SeedDemo(ctx, dir)
		if err != nil {
			return fmt.Errorf("seed demo: %w", err)
		}
		logger.Info("demo employers seeded", zap.Int("loaded", n))
	}

	scheduler := api.NewPayrollScheduler(dir, logger)
	scheduler.CheckInterval = cfg.Payroll.ScheduleInterval
	scheduler.Enabled = cfg.Payroll.SchedulerEnabled
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(dir, b.runs, logger)
	router := api.NewRouter(handler, api.RouterConfig{
		AllowOrigins: cfg.Server.CORS.AllowOrigins,
		RateLimit:    cfg.Server.RateLimit,
		Auth:         api.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Disabled),
		Metrics:      m,
		Logger:       logger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Payroll.SettlementTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("store", cfg.Store.Driver),
			zap.Bool("auth_disabled", cfg.Auth.Disabled))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
