package overview

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// pagedStub serves a fixed number of items per outlet.
type pagedStub struct {
	mu       sync.Mutex
	totals   map[string]int
	pages    map[string]int
	failing  map[string]error
	requests []PageRequest
}

func (s *pagedStub) ListPage(ctx context.Context, req PageRequest) (Page[string], error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	if err, ok := s.failing[req.OutletID]; ok {
		return Page[string]{}, err
	}
	total := s.totals[req.OutletID]
	pages := (total + req.Size - 1) / req.Size
	if declared, ok := s.pages[req.OutletID]; ok {
		pages = declared
	}
	start := (req.Page - 1) * req.Size
	end := start + req.Size
	if end > total {
		end = total
	}
	items := make([]string, 0)
	for i := start; i < end; i++ {
		items = append(items, fmt.Sprintf("%s-%d", req.OutletID, i))
	}
	return Page[string]{Items: items, Total: total, Page: req.Page, Size: req.Size, Pages: pages}, nil
}

func (s *pagedStub) requestsFor(outletID string) []PageRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []PageRequest
	for _, r := range s.requests {
		if r.OutletID == outletID {
			out = append(out, r)
		}
	}
	return out
}

func TestCollectWalksDeclaredPages(t *testing.T) {
	src := &pagedStub{totals: map[string]int{"o1": 150}}
	res, err := Collect[string](context.Background(), src, []string{"o1"}, CollectOptions{Source: "test", PageSize: 100, DateFrom: "2024-03-01", DateTo: "2024-03-15"})
	require.NoError(t, err)
	require.Len(t, res.Items, 150)
	require.False(t, res.Partial)

	reqs := src.requestsFor("o1")
	require.Len(t, reqs, 2)
	require.Equal(t, 1, reqs[0].Page)
	require.Equal(t, 2, reqs[1].Page)
	require.Equal(t, "2024-03-01", reqs[0].DateFrom)
	require.Equal(t, "2024-03-15", reqs[1].DateTo)
}

func TestCollectMergesInScopeOrder(t *testing.T) {
	src := &pagedStub{totals: map[string]int{"o1": 3, "o2": 2, "o3": 1}}
	res, err := Collect[string](context.Background(), src, []string{"o3", "o1", "o2"}, CollectOptions{PageSize: 2})
	require.NoError(t, err)
	require.Equal(t, []string{"o3-0", "o1-0", "o1-1", "o1-2", "o2-0", "o2-1"}, res.Items)
}

func TestCollectIsolatesOutletFailures(t *testing.T) {
	src := &pagedStub{
		totals:  map[string]int{"o1": 2, "o2": 5, "o3": 1},
		failing: map[string]error{"o2": errors.New("boom")},
	}
	res, err := Collect[string](context.Background(), src, []string{"o1", "o2", "o3"}, CollectOptions{Source: "invoices", PageSize: 10})
	require.NoError(t, err)
	require.True(t, res.Partial)
	require.Equal(t, []string{"o1-0", "o1-1", "o3-0"}, res.Items)
	require.Len(t, res.Failures, 1)
	require.Equal(t, "o2", res.Failures[0].OutletID)
	require.Equal(t, "invoices", res.Failures[0].Source)
}

func TestCollectFailsWhenAllOutletsFail(t *testing.T) {
	boom := errors.New("boom")
	src := &pagedStub{failing: map[string]error{"o1": boom, "o2": boom}}
	res, err := Collect[string](context.Background(), src, []string{"o1", "o2"}, CollectOptions{Source: "invoices"})
	require.Error(t, err)
	var srcErr *SourceError
	require.ErrorAs(t, err, &srcErr)
	require.Equal(t, "*", srcErr.OutletID)
	require.ErrorIs(t, err, boom)
	require.Empty(t, res.Items)
	require.Len(t, res.Failures, 2)
}

func TestCollectZeroPagesStillFetchesFirstPage(t *testing.T) {
	src := &pagedStub{totals: map[string]int{"o1": 4}, pages: map[string]int{"o1": 0}}
	res, err := Collect[string](context.Background(), src, []string{"o1"}, CollectOptions{PageSize: 10})
	require.NoError(t, err)
	require.Len(t, res.Items, 4)
	require.Len(t, src.requestsFor("o1"), 1)
}

func TestCollectTrustsDeclaredPagesOverEmptyPages(t *testing.T) {
	// Source claims four pages but only the first one carries data.
	src := &pagedStub{totals: map[string]int{"o1": 2}, pages: map[string]int{"o1": 4}}
	res, err := Collect[string](context.Background(), src, []string{"o1"}, CollectOptions{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	require.Len(t, src.requestsFor("o1"), 4)

	src = &pagedStub{totals: map[string]int{"o1": 2}, pages: map[string]int{"o1": 4}}
	res, err = Collect[string](context.Background(), src, []string{"o1"}, CollectOptions{PageSize: 2, StopOnEmptyPage: true})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	require.Len(t, src.requestsFor("o1"), 2)
}

func TestCollectMaxPages(t *testing.T) {
	src := &pagedStub{totals: map[string]int{"o1": 50}}
	res, err := Collect[string](context.Background(), src, []string{"o1"}, CollectOptions{PageSize: 10, MaxPages: 1})
	require.NoError(t, err)
	require.Len(t, res.Items, 10)
	require.Len(t, src.requestsFor("o1"), 1)
}

func TestCollectCallTimeoutBecomesSourceError(t *testing.T) {
	hung := PageSourceFunc[string](func(ctx context.Context, req PageRequest) (Page[string], error) {
		if req.OutletID == "slow" {
			<-ctx.Done()
			return Page[string]{}, ctx.Err()
		}
		return Page[string]{Items: []string{req.OutletID}, Pages: 1}, nil
	})
	res, err := Collect[string](context.Background(), hung, []string{"fast", "slow"}, CollectOptions{CallTimeout: 20 * time.Millisecond})
	require.NoError(t, err)
	require.Equal(t, []string{"fast"}, res.Items)
	require.Len(t, res.Failures, 1)
	require.ErrorIs(t, res.Failures[0], context.DeadlineExceeded)
}

func TestCollectEmptyScope(t *testing.T) {
	_, err := Collect[string](context.Background(), &pagedStub{}, nil, CollectOptions{})
	require.ErrorIs(t, err, ErrEmptyScope)
}

func TestCollectNilSource(t *testing.T) {
	_, err := Collect[string](context.Background(), nil, []string{"o1"}, CollectOptions{Source: "activity"})
	require.Error(t, err)
}
