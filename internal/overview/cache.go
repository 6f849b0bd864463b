package overview

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/odyssey-erp/outletdash/internal/daterange"
)

const keyPrefix = "overview"

// SnapshotStore is an optional shared tier behind the in-memory cache.
type SnapshotStore interface {
	Load(ctx context.Context, key string) (*Snapshot, bool, error)
	Save(ctx context.Context, key string, snap *Snapshot) (bool, error)
}

// Cache keeps computed snapshots for the lifetime of a dashboard session.
// Entries never expire; a write is rejected when the stored snapshot has a
// newer version, so a slow refresh cannot overwrite fresher data.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*Snapshot
	store   SnapshotStore
	logger  *slog.Logger
	metrics *Metrics
	version atomic.Int64
}

// NewCache constructs an empty cache. store may be nil.
func NewCache(store SnapshotStore, logger *slog.Logger, metrics *Metrics) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{entries: make(map[string]*Snapshot), store: store, logger: logger, metrics: metrics}
}

// NextVersion returns a strictly increasing version derived from the clock so
// versions stay comparable across processes sharing the store.
func (c *Cache) NextVersion() int64 {
	for {
		last := c.version.Load()
		next := time.Now().UnixNano()
		if next <= last {
			next = last + 1
		}
		if c.version.CompareAndSwap(last, next) {
			return next
		}
	}
}

// Get returns the snapshot stored under key.
func (c *Cache) Get(ctx context.Context, key string) (*Snapshot, bool) {
	c.mu.RLock()
	snap, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		c.metrics.cacheHit("memory")
		return snap, true
	}
	if c.store == nil {
		c.metrics.cacheMiss()
		return nil, false
	}
	snap, ok, err := c.store.Load(ctx, key)
	if err != nil {
		c.logger.Warn("overview cache load", slog.String("key", key), slog.Any("error", err))
		c.metrics.cacheMiss()
		return nil, false
	}
	if !ok {
		c.metrics.cacheMiss()
		return nil, false
	}
	c.putLocal(key, snap)
	c.metrics.cacheHit("store")
	return c.peek(key)
}

// Put stores snap under key unless a newer version is already present. It
// reports whether the in-memory entry was replaced.
func (c *Cache) Put(ctx context.Context, key string, snap *Snapshot) bool {
	if snap == nil {
		return false
	}
	if !c.putLocal(key, snap) {
		c.metrics.staleWrite()
		return false
	}
	if c.store != nil {
		if _, err := c.store.Save(ctx, key, snap); err != nil {
			c.logger.Warn("overview cache save", slog.String("key", key), slog.Any("error", err))
		}
	}
	return true
}

func (c *Cache) putLocal(key string, snap *Snapshot) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if current, ok := c.entries[key]; ok && current.Version > snap.Version {
		return false
	}
	c.entries[key] = snap
	return true
}

func (c *Cache) peek(key string) (*Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap, ok := c.entries[key]
	return snap, ok
}

// NormalizeScope trims outlet ids, drops blanks and duplicates, and keeps the
// first-seen order.
func NormalizeScope(outletIDs []string) []string {
	seen := make(map[string]struct{}, len(outletIDs))
	scope := make([]string, 0, len(outletIDs))
	for _, id := range outletIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		scope = append(scope, id)
	}
	return scope
}

// CacheKey identifies a snapshot by its outlet set and range boundaries. The
// key does not depend on the order of outletIDs.
func CacheKey(outletIDs []string, rng daterange.DateRange) string {
	scope := NormalizeScope(outletIDs)
	sort.Strings(scope)
	return strings.Join([]string{keyPrefix, strings.Join(scope, ","), rng.From, rng.To}, ":")
}
