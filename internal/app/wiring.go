package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/outletdash/internal/overview"
	"github.com/odyssey-erp/outletdash/internal/sources/pgsrc"
	"github.com/odyssey-erp/outletdash/internal/sources/restsrc"
	"github.com/odyssey-erp/outletdash/jobs"
)

// ErrPoolRequired is returned when postgres mode is selected without a pool.
var ErrPoolRequired = errors.New("app: postgres pool required")

// NewSources builds the dashboard sources for the configured SOURCE_MODE and
// returns a readiness check for the backing system.
func NewSources(cfg *Config, pool *pgxpool.Pool) (overview.Sources, CheckFunc, error) {
	switch cfg.SourceMode {
	case SourceModeREST:
		client, err := restsrc.NewClient(cfg.SourceBaseURL, cfg.SourceToken, cfg.SourceTimeout)
		if err != nil {
			return overview.Sources{}, nil, fmt.Errorf("app: rest sources: %w", err)
		}
		return client.Sources(), client.Ping, nil
	case SourceModePostgres:
		if pool == nil {
			return overview.Sources{}, nil, ErrPoolRequired
		}
		return pgsrc.NewSource(pool).Sources(), pool.Ping, nil
	default:
		return overview.Sources{}, nil, fmt.Errorf("app: unknown source mode %q", cfg.SourceMode)
	}
}

// NewOverviewService wires sources, the snapshot cache and its optional Redis
// tier into an overview.Service.
func NewOverviewService(cfg *Config, sources overview.Sources, redisClient *redis.Client, logger *slog.Logger, reg prometheus.Registerer) (*overview.Service, error) {
	metrics, err := overview.NewMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("app: overview metrics: %w", err)
	}
	var store overview.SnapshotStore
	if cfg.OverviewSharedCache && redisClient != nil {
		store = overview.NewRedisStore(redisClient, cfg.OverviewCacheTTL)
	}
	cache := overview.NewCache(store, logger, metrics)
	return overview.NewService(sources, cache, cfg.OverviewConfig(), logger, metrics), nil
}

// NewScopeLister picks where the warmup job finds outlet scopes. WARMUP_SCOPES
// wins; otherwise postgres mode reads owner scopes from the database.
func NewScopeLister(cfg *Config, pool *pgxpool.Pool) jobs.ScopeLister {
	if strings.TrimSpace(cfg.WarmupScopes) != "" {
		return jobs.StaticScopes(jobs.ParseScopes(cfg.WarmupScopes))
	}
	if cfg.SourceMode == SourceModePostgres && pool != nil {
		return pgsrc.NewSource(pool)
	}
	return jobs.StaticScopes(nil)
}

// RedisCheck adapts a Redis client to a readiness check.
func RedisCheck(client *redis.Client) CheckFunc {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}
