package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dukerupert/cakery/internal"
	"github.com/dukerupert/cakery/internal/events"
	"github.com/dukerupert/cakery/internal/handler/api"
	"github.com/dukerupert/cakery/internal/idempotency"
	"github.com/dukerupert/cakery/internal/identity"
	"github.com/dukerupert/cakery/internal/middleware"
	"github.com/dukerupert/cakery/internal/postgres"
	"github.com/dukerupert/cakery/internal/router"
	"github.com/dukerupert/cakery/internal/routes"
	"github.com/dukerupert/cakery/internal/service"
	"github.com/dukerupert/cakery/internal/telemetry"
	"github.com/dukerupert/cakery/internal/worker"
	"github.com/jackc/pgx/v5/stdlib"
)

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)
	slog.SetDefault(logger)

	// Error tracking
	flushSentry, err := telemetry.InitSentry(telemetry.SentryConfig{
		DSN:         cfg.Sentry.DSN,
		Environment: cfg.Sentry.Environment,
		Release:     cfg.Sentry.Release,
		SampleRate:  cfg.Sentry.SampleRate,
	}, logger)
	if err != nil {
		return err
	}
	defer flushSentry()

	telemetry.InitBusinessMetrics(cfg.MetricsNamespace)

	// ==========================================================================
	// Database
	// ==========================================================================

	logger.Info("Connecting to database...")
	pool, err := postgres.NewPool(ctx, cfg.DatabaseUrl, postgres.PoolConfig{
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
	}, logger)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer pool.Close()

	// goose runs on database/sql; share the pool's connections.
	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()

	logger.Info("Running database migrations...")
	if err := internal.RunMigrations(ctx, sqlDB, logger); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	// ==========================================================================
	// Services
	// ==========================================================================

	catalogStore := postgres.NewCatalogStore(pool)
	orderStore := postgres.NewOrderStore(pool)

	checkoutConfig := service.DefaultCheckoutConfig()
	checkoutConfig.AtomicWrites = cfg.Checkout.AtomicWrites
	checkoutConfig.WriteAttempts = cfg.Checkout.WriteAttempts

	checkoutService := service.NewCheckoutService(catalogStore, orderStore, checkoutConfig, logger)
	orderService := service.NewOrderService(orderStore, logger)
	logger.Info("Order services initialized",
		"atomic_writes", checkoutConfig.AtomicWrites,
		"write_attempts", checkoutConfig.WriteAttempts,
	)

	verifier, err := identity.NewVerifier(cfg.JWT.Secret, cfg.JWT.Issuer)
	if err != nil {
		return fmt.Errorf("failed to initialize token verifier: %w", err)
	}

	// Idempotency keys (optional)
	var idempotencyStore idempotency.Store
	if cfg.Redis.URL != "" {
		client, err := idempotency.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer client.Close()
		idempotencyStore = idempotency.NewRedisStore(client, cfg.Redis.IdempotencyTTL)
		logger.Info("Idempotency store ready", "ttl", cfg.Redis.IdempotencyTTL)
	} else {
		logger.Warn("REDIS_URL not set, Idempotency-Key headers are ignored")
	}

	// ==========================================================================
	// Outbox relay (optional)
	// ==========================================================================

	var relay sync.WaitGroup
	if cfg.NATS.URL != "" {
		nc, err := events.Connect(cfg.NATS.URL, "cakery-relay", logger)
		if err != nil {
			return err
		}
		defer func() { _ = nc.Drain() }()

		relayWorker := worker.NewWorker(
			postgres.NewOutboxStore(pool),
			events.NewPublisher(nc, cfg.NATS.SubjectPrefix),
			worker.Config{
				PollInterval: cfg.Outbox.PollInterval,
				BatchSize:    cfg.Outbox.BatchSize,
			},
			logger,
		)

		relay.Add(1)
		go func() {
			defer relay.Done()
			if err := relayWorker.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("outbox relay stopped", "error", err)
			}
		}()
	} else {
		logger.Warn("NATS_URL not set, order events stay in the outbox")
	}

	// ==========================================================================
	// HTTP
	// ==========================================================================

	metrics := middleware.NewMetrics(cfg.MetricsNamespace)

	limiterConfig := middleware.CheckoutRateLimiterConfig()
	limiterConfig.RequestsPerSecond = cfg.Checkout.RateLimitPerSec
	limiterConfig.BurstSize = cfg.Checkout.RateLimitBurst
	checkoutLimiter := middleware.NewRateLimiter(limiterConfig)
	defer checkoutLimiter.Stop()

	r := router.New(
		telemetry.SentryMiddleware(),
		router.Recovery(logger),
		middleware.RequestID,
		middleware.SecurityHeaders(middleware.DefaultSecurityHeadersConfig()),
		middleware.Timeout(middleware.DefaultTimeout),
		middleware.WithCaller(verifier),
		middleware.WithRequestLogger(logger),
		middleware.AccessLog,
		metrics.Middleware,
	)

	routes.RegisterOpsRoutes(r, routes.OpsDeps{
		Metrics: metrics,
		Ping:    pool.Ping,
	})
	routes.RegisterAPIRoutes(r, routes.APIDeps{
		OrderHandler:    api.NewOrderHandler(checkoutService, orderService, logger),
		Idempotency:     idempotencyStore,
		CheckoutLimiter: checkoutLimiter,
		MaxBodySize:     middleware.DefaultMaxBodySize,
		Logger:          logger,
	})

	var h http.Handler = r
	if len(cfg.AllowedOrigins) > 0 {
		// Preflight requests carry no route method, so CORS wraps the mux.
		h = router.CORS(cfg.AllowedOrigins)(h)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "address", srv.Addr, "env", cfg.Env)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}

	stop()
	relay.Wait()
	logger.Info("Server stopped")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
