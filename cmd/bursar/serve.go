package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/xraph/bursar"
	"github.com/xraph/bursar/api"
	audithook "github.com/xraph/bursar/audit_hook"
	"github.com/xraph/bursar/cache/rediscache"
	"github.com/xraph/bursar/gateway/stripe"
	"github.com/xraph/bursar/observability"
	"github.com/xraph/bursar/store"
	"github.com/xraph/bursar/store/memory"
	"github.com/xraph/bursar/store/mongo"
	"github.com/xraph/bursar/store/postgres"
	"github.com/xraph/bursar/store/sqlite"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := LoadConfig(configPath)
		if err != nil {
			return err
		}
		return runServer(cmd.Context(), cfg)
	},
}

func runServer(ctx context.Context, cfg *Config) error {
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	logger.Info("store opened", "driver", cfg.Store.Driver)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts, cleanup, err := engineOptions(ctx, cfg, logger, reg)
	if err != nil {
		_ = s.Close()
		return err
	}
	defer cleanup()

	engine := bursar.New(s, opts...)
	if err := engine.Start(ctx); err != nil {
		_ = s.Close()
		return fmt.Errorf("start engine: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := engine.Stop(stopCtx); err != nil {
			logger.Error("engine stop failed", "error", err)
		}
	}()

	go sweepOverdue(ctx, engine, cfg.Billing.OverdueSweep, logger)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      newRouter(engine, cfg, logger, reg),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", srv.Addr, "version", Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case driverPostgres:
		return postgres.Open(ctx, cfg.DSN)
	case driverSQLite:
		return sqlite.Open(ctx, sqlite.DSN(cfg.DSN))
	case driverMongo:
		return mongo.Open(ctx, cfg.DSN, cfg.Database)
	case driverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// engineOptions assembles catalog, cache, gateway and plugin options. The
// returned cleanup releases the Redis client.
func engineOptions(ctx context.Context, cfg *Config, logger *slog.Logger, reg prometheus.Registerer) ([]bursar.Option, func(), error) {
	cleanup := func() {}

	cat, err := cfg.Catalog.BuildCatalog()
	if err != nil {
		return nil, cleanup, fmt.Errorf("catalog: %w", err)
	}

	opts := []bursar.Option{
		bursar.WithLogger(logger),
		bursar.WithCatalog(cat),
		bursar.WithEntitlementCacheTTL(cfg.Billing.EntitlementCacheTTL),
		bursar.WithPlugin(audithook.New(audithook.LogRecorder(logger), audithook.WithLogger(logger))),
	}

	if cfg.Server.MetricsEnabled {
		factory := observability.NewPrometheusFactory(reg, "bursar")
		opts = append(opts, bursar.WithPlugin(observability.NewMetricsExtension(factory)))
	}

	if cfg.Stripe.SecretKey != "" {
		opts = append(opts, bursar.WithGateway(stripe.New(cfg.Stripe)))
		logger.Info("stripe gateway enabled")
	}

	if cfg.Redis.Enabled {
		var client *redis.Client
		client, err = rediscache.Dial(ctx, cfg.Redis.Config)
		if err != nil {
			return nil, cleanup, err
		}
		cleanup = func() { _ = client.Close() }
		opts = append(opts, bursar.WithEntitlementCache(rediscache.New(client, rediscache.WithPrefix(cfg.Redis.Prefix))))
		logger.Info("redis entitlement cache enabled", "addr", cfg.Redis.Addr)
	}

	return opts, cleanup, nil
}

func newRouter(engine *bursar.Bursar, cfg *Config, logger *slog.Logger, reg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := engine.Store().Ping(r.Context()); err != nil {
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if cfg.Server.MetricsEnabled {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	r.Mount("/", api.New(engine, api.WithLogger(logger)).Routes())
	return r
}

// sweepOverdue marks issued invoices past their due date as overdue on a
// fixed interval until ctx is cancelled.
func sweepOverdue(ctx context.Context, engine *bursar.Bursar, every time.Duration, logger *slog.Logger) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := engine.MarkOverdueInvoices(ctx, now.UTC())
			if err != nil {
				logger.Error("overdue sweep failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("overdue sweep", "marked", n)
			}
		}
	}
}
