package overview

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/outletdash/internal/daterange"
)

func TestCacheKeyIgnoresScopeOrder(t *testing.T) {
	rng := daterange.DateRange{From: "2024-03-08", To: "2024-03-15"}
	require.Equal(t, CacheKey([]string{"o2", "o1"}, rng), CacheKey([]string{"o1", "o2"}, rng))
	require.Equal(t, CacheKey([]string{"o1", " o2", "o1"}, rng), CacheKey([]string{"o2", "o1"}, rng))
	require.Equal(t, "overview:o1,o2:2024-03-08:2024-03-15", CacheKey([]string{"o2", "o1"}, rng))
	require.NotEqual(t, CacheKey([]string{"o1"}, rng), CacheKey([]string{"o1"}, daterange.DateRange{From: "2024-03-08", To: "2024-03-14"}))
}

func TestNormalizeScope(t *testing.T) {
	require.Equal(t, []string{"b", "a"}, NormalizeScope([]string{" b", "", "a", "b"}))
	require.Empty(t, NormalizeScope([]string{" ", ""}))
}

func TestCacheRejectsOlderVersions(t *testing.T) {
	cache := NewCache(nil, nil, nil)
	ctx := context.Background()

	older := &Snapshot{Version: cache.NextVersion()}
	newer := &Snapshot{Version: cache.NextVersion()}
	require.Greater(t, newer.Version, older.Version)

	require.True(t, cache.Put(ctx, "k", newer))
	require.False(t, cache.Put(ctx, "k", older))

	got, ok := cache.Get(ctx, "k")
	require.True(t, ok)
	require.Same(t, newer, got)
	require.Len(t, cache.entries, 1)
}

func TestCacheNextVersionMonotonicUnderConcurrency(t *testing.T) {
	cache := NewCache(nil, nil, nil)
	const n = 200
	versions := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			versions <- cache.NextVersion()
		}()
	}
	wg.Wait()
	close(versions)
	seen := make(map[int64]struct{}, n)
	for v := range versions {
		_, dup := seen[v]
		require.False(t, dup, "duplicate version %d", v)
		seen[v] = struct{}{}
	}
}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, time.Hour), mr
}

func TestRedisStoreVersionedWrites(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	ok, err := store.Save(ctx, "k", &Snapshot{Version: 20, Key: "k", Sales: SalesSummary{Revenue: 200}})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.Save(ctx, "k", &Snapshot{Version: 10, Key: "k", Sales: SalesSummary{Revenue: 100}})
	require.NoError(t, err)
	require.False(t, ok)

	snap, found, err := store.Load(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(20), snap.Version)
	require.Equal(t, 200.0, snap.Sales.Revenue)
	require.True(t, mr.TTL("outletdash:k") > 0)

	_, found, err = store.Load(ctx, "missing")
	require.NoError(t, err)
	require.False(t, found)
}

func TestCacheFallsBackToSharedStore(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()
	metrics, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	writer := NewCache(store, nil, metrics)
	reader := NewCache(store, nil, metrics)

	snap := &Snapshot{Key: "k", Version: writer.NextVersion(), OutletIDs: []string{"o1"}}
	require.True(t, writer.Put(ctx, "k", snap))

	got, ok := reader.Get(ctx, "k")
	require.True(t, ok)
	require.Equal(t, snap.Version, got.Version)
	require.Equal(t, []string{"o1"}, got.OutletIDs)
	require.Len(t, reader.entries, 1)

	again, ok := reader.Get(ctx, "k")
	require.True(t, ok)
	require.Same(t, got, again)
}

func TestCacheSurvivesStoreOutage(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(NewRedisStore(client, time.Minute), nil, nil)

	ctx := context.Background()
	snap := &Snapshot{Version: cache.NextVersion()}
	require.True(t, cache.Put(ctx, "k", snap))
	got, ok := cache.Get(ctx, "k")
	require.True(t, ok)
	require.Same(t, snap, got)

	_, ok = cache.Get(ctx, "other")
	require.False(t, ok)
}
