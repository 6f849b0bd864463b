package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odyssey-erp/outletdash/internal/app"
	jobmetrics "github.com/odyssey-erp/outletdash/internal/jobs"
	"github.com/odyssey-erp/outletdash/internal/platform/cache"
	"github.com/odyssey-erp/outletdash/internal/platform/db"
	"github.com/odyssey-erp/outletdash/jobs"
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

	logger := app.NewLogger(cfg)

	var pool *pgxpool.Pool
	if cfg.SourceMode == app.SourceModePostgres {
		pool, err = db.New(ctx, cfg.PGDSN, cfg.PoolOptions("outletdash-worker"))
		if err != nil {
			logger.Error("connect database", slog.Any("error", err))
			os.Exit(1)
		}
		defer pool.Close()
	}

	// The warmup only pays off when snapshots land in the shared tier.
	redisClient, err := cache.New(ctx, cfg.RedisOptions())
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sources, _, err := app.NewSources(cfg, pool)
	if err != nil {
		logger.Error("init sources", slog.Any("error", err))
		os.Exit(1)
	}
	service, err := app.NewOverviewService(cfg, sources, redisClient, logger, nil)
	if err != nil {
		logger.Error("init overview service", slog.Any("error", err))
		os.Exit(1)
	}
	defer service.Wait()

	warmupJob := jobs.NewOverviewWarmupJob(service, app.NewScopeLister(cfg, pool), logger, jobmetrics.NewMetrics(nil))
	warmupTask, err := jobs.NewOverviewWarmupTask(jobs.OverviewWarmupPayload{Ranges: cfg.WarmupRangeList()})
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: cfg.AsynqRedisOpt(),
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskOverviewWarmup, Handler: warmupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.WarmupCron, Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3), asynq.Unique(time.Minute)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("starting worker", slog.String("cron", cfg.WarmupCron))
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
