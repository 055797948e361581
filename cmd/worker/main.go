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

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/daya-auto/carsale/internal/analytics"
	"github.com/daya-auto/carsale/internal/app"
	"github.com/daya-auto/carsale/internal/inventory"
	jobmetrics "github.com/daya-auto/carsale/internal/jobs"
	"github.com/daya-auto/carsale/internal/media"
	"github.com/daya-auto/carsale/internal/observability"
	"github.com/daya-auto/carsale/internal/platform/cache"
	"github.com/daya-auto/carsale/internal/platform/db"
	"github.com/daya-auto/carsale/internal/shared"
	"github.com/daya-auto/carsale/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg).With(slog.String("process", "worker"))

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	cacheOpts := cfg.CacheOptions()
	redisClient, err := cache.New(ctx, cacheOpts)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	images, err := media.New(ctx, cfg.MediaOptions(), logger)
	if err != nil {
		logger.Error("image store", slog.Any("error", err))
		os.Exit(1)
	}

	auditLogger := shared.NewAuditLogger(pool)
	inventoryService := inventory.NewService(inventory.NewRepository(pool), auditLogger, inventory.ServiceConfig{Logger: logger})
	analyticsService := analytics.NewService(inventoryService, analytics.NewCache(redisClient, cfg.AnalyticsCacheTTL), logger)

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())
	if cfg.WorkerMetricsAddr != "" {
		go serveMetrics(ctx, cfg.WorkerMetricsAddr, metrics.Handler(), logger)
	}

	cleanupJob := jobs.NewMediaCleanupJob(images, logger, jobMetrics)
	warmupJob := jobs.NewAnalyticsWarmupJob(analyticsService, logger, jobMetrics)
	purgeJob := jobs.NewIdempotencyCleanupJob(shared.NewIdempotencyStore(pool), logger, jobMetrics)

	purgeTask, err := jobs.NewIdempotencyCleanupTask()
	if err != nil {
		logger.Error("build idempotency task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: cacheOpts.AsynqOpt(),
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskMediaCleanup, Handler: cleanupJob.Handle},
			{Type: jobs.TaskAnalyticsWarmup, Handler: warmupJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: purgeJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: jobs.AnalyticsWarmupCron, Task: jobs.NewAnalyticsWarmupTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: jobs.IdempotencyCleanupCron, Task: purgeTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

func serveMetrics(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) {
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", handler)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logger.Info("worker metrics listening", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("worker metrics server", slog.Any("error", err))
	}
}
