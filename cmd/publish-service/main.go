// publish-service is the HTTP API server for multi-provider social
// publishing: one post in, parallel provider publishes out.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"socialpub/internal/api"
	"socialpub/internal/broadcast"
	"socialpub/internal/config"
	"socialpub/internal/credential"
	"socialpub/internal/dispatcher"
	"socialpub/internal/health"
	"socialpub/internal/job"
	"socialpub/internal/library"
	"socialpub/internal/observability"
	"socialpub/internal/provider"
	"socialpub/internal/publisher"
)

func main() {
	// Optional .env for local development; ignored when absent.
	_ = godotenv.Load()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	svcCfg := config.LoadServiceConfig()
	dispatcherCfg := dispatcher.LoadConfigFromEnv()

	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	// Persistence: Postgres when configured, in-memory otherwise.
	var (
		store    job.Store
		creds    credential.Store
		recorder library.Recorder
	)
	if svcCfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, svcCfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()

		jobStore := job.NewPostgresStore(pool)
		if err := jobStore.EnsureSchema(ctx); err != nil {
			return err
		}
		credStore := credential.NewPostgresStore(pool)
		if err := credStore.EnsureSchema(ctx); err != nil {
			return err
		}
		libRecorder := library.NewPostgresRecorder(pool)
		if err := libRecorder.EnsureSchema(ctx); err != nil {
			return err
		}

		store, creds, recorder = jobStore, credStore, libRecorder
		slog.Info("Connected to Postgres")
	} else {
		store = job.NewMemoryStore()
		creds = credential.NewMemoryStore()
		recorder = library.NewMemoryRecorder()
		slog.Warn("No DATABASE_URL configured, using in-memory stores")
	}

	// Broadcast: Redis pub/sub when configured so any instance can serve a
	// stream for a job running elsewhere; otherwise a local hub.
	var broadcaster broadcast.Broadcaster
	if svcCfg.RedisURL != "" {
		opts, err := redis.ParseURL(svcCfg.RedisURL)
		if err != nil {
			return err
		}
		redisClient := redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return err
		}
		defer redisClient.Close()

		broadcaster = broadcast.NewRedisBroadcaster(redisClient, metrics)
		slog.Info("Connected to Redis")
	} else {
		broadcaster = broadcast.NewHub(metrics)
		slog.Warn("No REDIS_URL configured, streams are instance-local")
	}
	defer broadcaster.Close()

	// Webhook callback delivery.
	eventDispatcher := dispatcher.NewMemory(dispatcherCfg, metrics)
	notifier := dispatcher.NewNotifier(eventDispatcher, svcCfg.PublicOrigin)

	// Provider adapters and the fan-out orchestrator.
	registry := provider.NewDefaultRegistry(creds, recorder)
	orchestrator := publisher.New(store, registry, broadcaster, notifier, metrics, svcCfg.ProviderTimeout)

	healthChecker := health.NewChecker(store)
	jobService := job.NewService(store, orchestrator, registry.Names(), metrics)

	router := api.NewRouter(api.RouterConfig{
		JobService:    jobService,
		Broadcaster:   broadcaster,
		Metrics:       metrics,
		HealthChecker: healthChecker,
		APIKey:        svcCfg.APIKey,
	})

	if svcCfg.APIKey != "" {
		slog.Info("API authentication enabled")
	} else {
		slog.Warn("API authentication disabled - no API key configured")
	}

	apiServer := &http.Server{
		Addr:         ":" + svcCfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // WebSocket streams stay open indefinitely
		IdleTimeout:  60 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)
	metricsServer := &http.Server{
		Addr:         ":" + svcCfg.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		slog.Info("Starting API server", "port", svcCfg.Port)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	go func() {
		slog.Info("Starting metrics server", "port", svcCfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	shutdown := func(timeout time.Duration) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server shutdown error", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server shutdown error", "error", err)
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErr:
		slog.Error("Server failed to start", "error", err)
		shutdown(5 * time.Second)
		return err
	}

	// Phase 1: fail readiness so load balancers stop sending traffic.
	healthChecker.SetShuttingDown()
	if svcCfg.ShutdownDrainWait > 0 {
		slog.Info("Waiting for traffic to drain", "duration", svcCfg.ShutdownDrainWait)
		time.Sleep(svcCfg.ShutdownDrainWait)
	}

	// Phase 2: stop accepting connections, finish in-flight requests.
	slog.Info("Starting graceful shutdown")
	shutdown(25 * time.Second)

	// Phase 3: let in-flight publish jobs reach a terminal status. Every
	// accepted job gets its outcomes and final state persisted before exit.
	slog.Info("Draining in-flight publish jobs")
	jobCtx, jobCancel := context.WithTimeout(context.Background(), svcCfg.ProviderTimeout+10*time.Second)
	defer jobCancel()
	if err := orchestrator.Wait(jobCtx); err != nil {
		slog.Warn("Publish jobs still in flight at exit", "error", err)
	}

	// Phase 4: drain the callback dispatcher.
	slog.Info("Draining callback dispatcher")
	dispatcherCtx, dispatcherCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer dispatcherCancel()
	if err := eventDispatcher.Close(dispatcherCtx); err != nil {
		slog.Warn("Dispatcher shutdown error", "error", err)
	}

	stats := eventDispatcher.Stats()
	slog.Info("Dispatcher stats",
		"delivered", stats.Delivered,
		"failed", stats.Failed,
		"dropped", stats.Dropped,
	)

	slog.Info("Shutdown complete")
	return nil
}
