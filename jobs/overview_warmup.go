package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/outletdash/internal/daterange"
	jobmetrics "github.com/odyssey-erp/outletdash/internal/jobs"
	"github.com/odyssey-erp/outletdash/internal/overview"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// SnapshotRefresher rebuilds one overview snapshot.
type SnapshotRefresher interface {
	Refresh(ctx context.Context, outletIDs []string, rng daterange.DateRange) (*overview.Snapshot, error)
}

// ScopeLister enumerates the outlet scopes worth warming.
type ScopeLister interface {
	OutletScopes(ctx context.Context) ([][]string, error)
}

// StaticScopes is a fixed scope list, used when no database is configured.
type StaticScopes [][]string

// OutletScopes implements ScopeLister.
func (s StaticScopes) OutletScopes(context.Context) ([][]string, error) {
	return s, nil
}

// OverviewWarmupJob pre-builds overview snapshots so dashboard requests hit a
// warm cache.
type OverviewWarmupJob struct {
	Overview     SnapshotRefresher
	Scopes       ScopeLister
	Logger       *slog.Logger
	Metrics      *jobmetrics.Metrics
	ScopeTimeout time.Duration
	clock        func() time.Time
}

// NewOverviewWarmupJob wires dependencies for the warmup handler.
func NewOverviewWarmupJob(refresher SnapshotRefresher, scopes ScopeLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *OverviewWarmupJob {
	return &OverviewWarmupJob{
		Overview:     refresher,
		Scopes:       scopes,
		Logger:       logger,
		Metrics:      metrics,
		ScopeTimeout: 30 * time.Second,
		clock:        time.Now,
	}
}

// Handle processes overview warmup tasks. Individual scope failures are
// logged and counted; the run fails only when no scope could be warmed.
func (j *OverviewWarmupJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Overview == nil {
		return errors.New("overview warmup: handler not configured")
	}
	var payload OverviewWarmupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("overview warmup: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	if len(payload.Ranges) == 0 {
		payload.Ranges = DefaultWarmupRanges
	}

	tracker := j.metrics().Track(TaskOverviewWarmup)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	logger.Info("starting overview warmup", slog.Any("ranges", payload.Ranges))

	scopes := payload.Scopes
	if len(scopes) == 0 {
		var err error
		scopes, err = j.listScopes(ctx)
		if err != nil {
			resultErr = err
			logger.Error("load warmup scopes", slog.Any("error", err))
			return resultErr
		}
	}
	if len(scopes) == 0 {
		logger.Info("no scopes discovered for warmup")
		return resultErr
	}

	start := time.Now()
	now := j.now()
	var warmed, partial, failed int
	var lastErr error
	for _, scope := range scopes {
		for _, selector := range payload.Ranges {
			rng := daterange.Resolve(daterange.ParseSelector(selector), "", "", now)
			snap, err := j.warmScope(ctx, scope, rng)
			switch {
			case err != nil:
				failed++
				lastErr = err
				logger.Warn("warm scope", slog.Any("outlets", scope), slog.String("range", rng.String()), slog.Any("error", err))
			case snap != nil && snap.Partial:
				partial++
			default:
				warmed++
			}
			if ctx.Err() != nil {
				resultErr = ctx.Err()
				return resultErr
			}
		}
	}

	j.metrics().AddScopes(TaskOverviewWarmup, "warmed", warmed)
	j.metrics().AddScopes(TaskOverviewWarmup, "partial", partial)
	j.metrics().AddScopes(TaskOverviewWarmup, "failed", failed)
	if warmed+partial == 0 && lastErr != nil {
		resultErr = fmt.Errorf("overview warmup: every scope failed: %w", lastErr)
		return resultErr
	}
	logger.Info("completed overview warmup",
		slog.Int("warmed", warmed), slog.Int("partial", partial), slog.Int("failed", failed),
		slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *OverviewWarmupJob) warmScope(ctx context.Context, scope []string, rng daterange.DateRange) (*overview.Snapshot, error) {
	scopeCtx := ctx
	if j.ScopeTimeout > 0 {
		var cancel context.CancelFunc
		scopeCtx, cancel = context.WithTimeout(ctx, j.ScopeTimeout)
		defer cancel()
	}
	return j.Overview.Refresh(scopeCtx, scope, rng)
}

func (j *OverviewWarmupJob) listScopes(ctx context.Context) ([][]string, error) {
	if j.Scopes == nil {
		return nil, errors.New("overview warmup: scope lister not configured")
	}
	return j.Scopes.OutletScopes(ctx)
}

func (j *OverviewWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskOverviewWarmup))
	}
	return slog.Default().With(slog.String("job", TaskOverviewWarmup))
}

func (j *OverviewWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *OverviewWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now()
}
