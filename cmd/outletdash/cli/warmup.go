package cli

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/outletdash/jobs"
)

// WarmupEnqueuer submits overview warmup runs.
type WarmupEnqueuer interface {
	EnqueueOverviewWarmup(ctx context.Context, payload jobs.OverviewWarmupPayload, unique time.Duration) (*asynq.TaskInfo, error)
}

// WarmupCLI wraps manual management helpers for the overview warmup job.
type WarmupCLI struct {
	client    WarmupEnqueuer
	inspector jobs.QueueInspector
}

// NewWarmupCLI initialises the helpers against the queue's Redis.
func NewWarmupCLI(opts asynq.RedisClientOpt) *WarmupCLI {
	return &WarmupCLI{client: jobs.NewClient(opts), inspector: asynq.NewInspector(opts)}
}

// Close releases underlying resources.
func (c *WarmupCLI) Close() error {
	var errs []error
	if closer, ok := c.inspector.(interface{ Close() error }); ok {
		errs = append(errs, closer.Close())
	}
	if closer, ok := c.client.(interface{ Close() error }); ok {
		errs = append(errs, closer.Close())
	}
	return errors.Join(errs...)
}

// Trigger enqueues a warmup for the given scopes ("o1,o2;o3") and ranges.
// Empty values fall back to the worker's configured scopes and ranges.
func (c *WarmupCLI) Trigger(ctx context.Context, scopes string, ranges []string, unique time.Duration) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("warmup cli: client not configured")
	}
	payload := jobs.OverviewWarmupPayload{Scopes: jobs.ParseScopes(scopes), Ranges: ranges}
	return c.client.EnqueueOverviewWarmup(ctx, payload, unique)
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
}

// InspectQueue reports the default queue counters.
func (c *WarmupCLI) InspectQueue() (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("warmup cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
	}
	return stats, nil
}
