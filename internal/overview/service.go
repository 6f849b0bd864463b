package overview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/outletdash/internal/daterange"
)

// Config tunes snapshot aggregation.
type Config struct {
	PageSize                int
	ActivityLimit           int
	TopProductsLimit        int
	RecentTransactionsLimit int
	AlertItemsLimit         int
	OutletConcurrency       int
	StopOnEmptyPage         bool
	SourceTimeout           time.Duration
	RefreshTimeout          time.Duration
	// MinRefreshInterval skips the background refresh on a cache hit when the
	// cached snapshot is younger than the interval. Zero refreshes on every hit.
	MinRefreshInterval time.Duration
}

// DefaultConfig returns the dashboard defaults.
func DefaultConfig() Config {
	return Config{
		PageSize:                DefaultPageSize,
		ActivityLimit:           10,
		TopProductsLimit:        5,
		RecentTransactionsLimit: 10,
		AlertItemsLimit:         10,
		SourceTimeout:           10 * time.Second,
		RefreshTimeout:          time.Minute,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.PageSize <= 0 {
		c.PageSize = def.PageSize
	}
	if c.ActivityLimit <= 0 {
		c.ActivityLimit = def.ActivityLimit
	}
	if c.TopProductsLimit <= 0 {
		c.TopProductsLimit = def.TopProductsLimit
	}
	if c.RecentTransactionsLimit <= 0 {
		c.RecentTransactionsLimit = def.RecentTransactionsLimit
	}
	if c.AlertItemsLimit <= 0 {
		c.AlertItemsLimit = def.AlertItemsLimit
	}
	if c.RefreshTimeout <= 0 {
		c.RefreshTimeout = def.RefreshTimeout
	}
	return c
}

// Service builds overview snapshots and serves them through the cache.
type Service struct {
	sources Sources
	cache   *Cache
	cfg     Config
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time

	flights singleflight.Group
	pending sync.WaitGroup
}

// NewService wires the data sources with a cache. cache may be nil, in which
// case the service owns a private in-memory cache.
func NewService(sources Sources, cache *Cache, cfg Config, logger *slog.Logger, metrics *Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cache == nil {
		cache = NewCache(nil, logger, metrics)
	}
	return &Service{
		sources: sources,
		cache:   cache,
		cfg:     cfg.withDefaults(),
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

// ResolveRange resolves a selector against the service clock.
func (s *Service) ResolveRange(selector, from, to string) daterange.DateRange {
	return daterange.Resolve(daterange.ParseSelector(selector), from, to, s.now())
}

// Cached returns the cached snapshot for a scope and range without building.
func (s *Service) Cached(ctx context.Context, outletIDs []string, rng daterange.DateRange) (*Snapshot, bool) {
	scope := NormalizeScope(outletIDs)
	if len(scope) == 0 {
		return nil, false
	}
	return s.cache.Get(ctx, CacheKey(scope, rng))
}

// BuildSnapshot returns the snapshot for a scope and range. A cached snapshot
// is returned immediately and refreshed in the background; otherwise the
// snapshot is built before returning. When every source fails the result is
// an empty snapshot together with a *TotalAggregationError.
func (s *Service) BuildSnapshot(ctx context.Context, outletIDs []string, rng daterange.DateRange) (*Snapshot, error) {
	scope := NormalizeScope(outletIDs)
	if len(scope) == 0 {
		return nil, ErrEmptyScope
	}
	key := CacheKey(scope, rng)
	if snap, ok := s.cache.Get(ctx, key); ok {
		s.scheduleRefresh(ctx, key, scope, rng, snap)
		return snap, nil
	}
	return s.shared(ctx, key, scope, rng, "foreground")
}

// Refresh rebuilds the snapshot regardless of the cache content. When every
// source fails and a snapshot is already cached, the cached snapshot is
// returned marked partial with the total failure banner.
func (s *Service) Refresh(ctx context.Context, outletIDs []string, rng daterange.DateRange) (*Snapshot, error) {
	scope := NormalizeScope(outletIDs)
	if len(scope) == 0 {
		return nil, ErrEmptyScope
	}
	key := CacheKey(scope, rng)
	snap, err := s.shared(ctx, key, scope, rng, "refresh")
	var total *TotalAggregationError
	if errors.As(err, &total) {
		if cached, ok := s.cache.Get(ctx, key); ok {
			s.logger.Warn("overview refresh failed, serving cached snapshot", slog.String("key", key), slog.Any("error", err))
			return staleCopy(cached), nil
		}
	}
	return snap, err
}

// staleCopy marks a cached snapshot as outdated without touching the entry
// held by the cache.
func staleCopy(cached *Snapshot) *Snapshot {
	stale := *cached
	stale.Warnings = append(append(make([]string, 0, len(cached.Warnings)+1), cached.Warnings...), TotalAggregationErrorMessage)
	stale.Partial = true
	return &stale
}

// Wait blocks until every scheduled background refresh has finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

func (s *Service) scheduleRefresh(ctx context.Context, key string, scope []string, rng daterange.DateRange, cached *Snapshot) {
	if s.cfg.MinRefreshInterval > 0 && s.now().Sub(cached.GeneratedAt) < s.cfg.MinRefreshInterval {
		s.metrics.refresh("skipped")
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.RefreshTimeout)
		defer cancel()
		if _, err := s.shared(refreshCtx, key, scope, rng, "background"); err != nil {
			s.metrics.refresh("failure")
			s.logger.Warn("overview background refresh", slog.String("key", key), slog.Any("error", err))
			return
		}
		s.metrics.refresh("success")
	}()
}

// shared joins the in-flight build for key or starts one. The build is
// detached from every caller's ctx; each waiter returns when its own ctx ends.
func (s *Service) shared(ctx context.Context, key string, scope []string, rng daterange.DateRange, mode string) (*Snapshot, error) {
	resultChan := s.flights.DoChan(key, func() (interface{}, error) {
		buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.RefreshTimeout)
		defer cancel()
		return s.build(buildCtx, key, scope, rng, mode)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultChan:
		snap, _ := res.Val.(*Snapshot)
		return snap, res.Err
	}
}

type fanOutResult[T any] struct {
	items    []T
	failures []*SourceError
	err      error
}

func (s *Service) build(ctx context.Context, key string, scope []string, rng daterange.DateRange, mode string) (*Snapshot, error) {
	start := time.Now()
	version := s.cache.NextVersion()
	prev := daterange.PreviousRange(rng.From, rng.To)
	logger := s.logger.With(slog.String("key", key), slog.String("mode", mode))

	var (
		revenue     fanOutResult[RevenueSummary]
		inventory   fanOutResult[InventoryAlerts]
		invoices    CollectResult[Invoice]
		invoiceErr  error
		reports     CollectResult[DailyReport]
		reportErr   error
		prevReports CollectResult[DailyReport]
		prevErr     error
		activity    CollectResult[AuditEntry]
		activityErr error
	)

	var g errgroup.Group
	g.Go(func() error {
		revenue = fanOut(ctx, scope, s.cfg, SourceRevenue, func(ctx context.Context, outletID string) (RevenueSummary, error) {
			if s.sources.Revenue == nil {
				return RevenueSummary{}, errSourceMissing
			}
			return s.sources.Revenue.RevenueSummary(ctx, RevenueQuery{OutletIDs: []string{outletID}, Current: rng, Previous: prev})
		})
		return nil
	})
	g.Go(func() error {
		invoices, invoiceErr = Collect(ctx, s.sources.Invoices, scope, s.collectOptions(SourceInvoices, rng, 0))
		return nil
	})
	g.Go(func() error {
		reports, reportErr = Collect(ctx, s.sources.Reports, scope, s.collectOptions(SourceReports, rng, 0))
		return nil
	})
	g.Go(func() error {
		prevReports, prevErr = Collect(ctx, s.sources.Reports, scope, s.collectOptions(SourceReports, prev, 0))
		return nil
	})
	g.Go(func() error {
		opts := s.collectOptions(SourceActivity, rng, 1)
		opts.PageSize = s.cfg.ActivityLimit
		activity, activityErr = Collect(ctx, s.sources.Activity, scope, opts)
		return nil
	})
	g.Go(func() error {
		inventory = fanOut(ctx, scope, s.cfg, SourceInventory, func(ctx context.Context, outletID string) (InventoryAlerts, error) {
			if s.sources.Inventory == nil {
				return InventoryAlerts{}, errSourceMissing
			}
			return s.sources.Inventory.InventoryAlerts(ctx, outletID, rng)
		})
		return nil
	})
	_ = g.Wait()

	snap := &Snapshot{
		ID:            uuid.New(),
		Key:           key,
		Version:       version,
		OutletIDs:     append([]string(nil), scope...),
		Range:         rng,
		PreviousRange: prev,
		GeneratedAt:   s.now(),
	}

	failures := make([]*SourceError, 0)
	failures = append(failures, revenue.failures...)
	failures = append(failures, invoices.Failures...)
	failures = append(failures, reports.Failures...)
	failures = append(failures, activity.Failures...)
	failures = append(failures, inventory.failures...)

	if revenue.err != nil && invoiceErr != nil && reportErr != nil && activityErr != nil && inventory.err != nil {
		total := &TotalAggregationError{Key: key, Errors: []error{revenue.err, invoiceErr, reportErr, activityErr, inventory.err}}
		snap.Partial = true
		snap.Warnings = []string{TotalAggregationErrorMessage}
		s.metrics.observeBuild(mode, "failure", time.Since(start))
		logger.Error("overview build failed", slog.Any("error", total))
		return snap, total
	}

	asm := assembler{cfg: s.cfg, today: s.now()}
	asm.sales(snap, revenue)
	asm.invoices(snap, invoices.Items, invoiceErr)
	asm.expenses(snap, reports.Items, reportErr, prevReports.Items, prevErr)
	asm.coverage(snap, reports.Items, reportErr, len(scope))
	asm.activity(snap, activity.Items)
	asm.inventory(snap, inventory.items)
	snap.Insights = buildInsights(snap)

	if prevErr != nil {
		snap.Warnings = append(snap.Warnings, "daily reports for the previous period unavailable")
	}
	for _, f := range failures {
		s.metrics.sourceFailure(f.Source, 1)
		snap.Warnings = append(snap.Warnings, warningFor(f))
	}
	snap.Partial = len(snap.Warnings) > 0
	if snap.Partial {
		logger.Warn("overview build degraded", slog.Int("failures", len(failures)))
	}

	if !s.cache.Put(ctx, key, snap) {
		logger.Info("overview snapshot superseded by a newer version", slog.Int64("version", version))
		if current, ok := s.cache.peek(key); ok {
			snap = current
		}
	}
	s.metrics.observeBuild(mode, "success", time.Since(start))
	logger.Debug("overview snapshot built", slog.Duration("duration", time.Since(start)), slog.Int64("version", version))
	return snap, nil
}

var errSourceMissing = errors.New("source not configured")

func (s *Service) collectOptions(source string, rng daterange.DateRange, maxPages int) CollectOptions {
	return CollectOptions{
		Source:          source,
		PageSize:        s.cfg.PageSize,
		DateFrom:        rng.From,
		DateTo:          rng.To,
		MaxPages:        maxPages,
		StopOnEmptyPage: s.cfg.StopOnEmptyPage,
		CallTimeout:     s.cfg.SourceTimeout,
		Concurrency:     s.cfg.OutletConcurrency,
	}
}

// fanOut calls fetch once per outlet concurrently, isolating failures the same
// way Collect does.
func fanOut[T any](ctx context.Context, scope []string, cfg Config, source string, fetch func(context.Context, string) (T, error)) fanOutResult[T] {
	values := make([]T, len(scope))
	errs := make([]error, len(scope))
	var g errgroup.Group
	if cfg.OutletConcurrency > 0 {
		g.SetLimit(cfg.OutletConcurrency)
	}
	for i, outletID := range scope {
		g.Go(func() error {
			callCtx := ctx
			if cfg.SourceTimeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, cfg.SourceTimeout)
				defer cancel()
			}
			values[i], errs[i] = fetch(callCtx, outletID)
			return nil
		})
	}
	_ = g.Wait()

	var res fanOutResult[T]
	joined := make([]error, 0)
	for i, outletID := range scope {
		if errs[i] != nil {
			srcErr := &SourceError{Source: source, OutletID: outletID, Err: errs[i]}
			res.failures = append(res.failures, srcErr)
			joined = append(joined, srcErr)
			continue
		}
		res.items = append(res.items, values[i])
	}
	if len(res.failures) == len(scope) {
		res.err = &SourceError{Source: source, OutletID: "*", Err: errors.Join(joined...)}
	}
	return res
}

func warningFor(err *SourceError) string {
	return fmt.Sprintf("%s unavailable for outlet %s", err.Source, err.OutletID)
}
