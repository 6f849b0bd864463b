package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/outletdash/cmd/outletdash/cli"
	"github.com/odyssey-erp/outletdash/internal/app"
	"github.com/odyssey-erp/outletdash/internal/observability"
	overviewhttp "github.com/odyssey-erp/outletdash/internal/overview/http"
	"github.com/odyssey-erp/outletdash/internal/platform/cache"
	"github.com/odyssey-erp/outletdash/internal/platform/db"
	"github.com/odyssey-erp/outletdash/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	if len(os.Args) > 1 && os.Args[1] == "warmup" {
		if err := runWarmupCommand(ctx, cfg, os.Args[2:]); err != nil {
			logger.Error("warmup command", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	var pool *pgxpool.Pool
	if cfg.SourceMode == app.SourceModePostgres {
		pool, err = db.New(ctx, cfg.PGDSN, cfg.PoolOptions("outletdash"))
		if err != nil {
			logger.Error("connect postgres", slog.Any("error", err))
			os.Exit(1)
		}
		defer pool.Close()
	}

	redisClient, err := cache.New(ctx, cfg.RedisOptions())
	if err != nil {
		logger.Warn("redis unavailable, shared snapshot cache disabled", slog.Any("error", err))
	}
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()

	sources, sourceCheck, err := app.NewSources(cfg, pool)
	if err != nil {
		logger.Error("init sources", slog.Any("error", err))
		os.Exit(1)
	}
	service, err := app.NewOverviewService(cfg, sources, redisClient, logger, metrics.Registerer())
	if err != nil {
		logger.Error("init overview service", slog.Any("error", err))
		os.Exit(1)
	}
	overviewHandler := overviewhttp.NewHandler(logger, service, cfg.AppRequestTimeout)

	inspector := asynq.NewInspector(cfg.AsynqRedisOpt())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	checks := map[string]app.CheckFunc{"sources": sourceCheck}
	if redisClient != nil {
		checks["redis"] = app.RedisCheck(redisClient)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		OverviewHandler: overviewHandler,
		JobHandler:      jobHandler,
		Metrics:         metrics,
		Checks:          checks,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("source_mode", cfg.SourceMode))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	service.Wait()
}

// runWarmupCommand enqueues one overview warmup run and prints the queue state.
func runWarmupCommand(ctx context.Context, cfg *app.Config, args []string) error {
	fs := flag.NewFlagSet("warmup", flag.ContinueOnError)
	scopes := fs.String("scopes", cfg.WarmupScopes, `outlet scopes, e.g. "o1,o2;o3"`)
	ranges := fs.String("ranges", cfg.WarmupRanges, "comma separated range selectors")
	unique := fs.Duration("unique", 5*time.Minute, "deduplication window")
	if err := fs.Parse(args); err != nil {
		return err
	}

	c := cli.NewWarmupCLI(cfg.AsynqRedisOpt())
	defer func() { _ = c.Close() }()

	cfg.WarmupRanges = *ranges
	info, err := c.Trigger(ctx, *scopes, cfg.WarmupRangeList(), *unique)
	if err != nil {
		return err
	}
	stats, err := c.InspectQueue()
	if err != nil {
		return err
	}
	fmt.Printf("enqueued %s (%s); queue %s pending=%d active=%d scheduled=%d retry=%d\n",
		info.ID, info.Type, stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
	return nil
}
