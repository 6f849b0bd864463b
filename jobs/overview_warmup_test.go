package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/outletdash/internal/daterange"
	jobmetrics "github.com/odyssey-erp/outletdash/internal/jobs"
	"github.com/odyssey-erp/outletdash/internal/overview"
)

type refreshCall struct {
	outlets []string
	rng     daterange.DateRange
}

type stubRefresher struct {
	mu      sync.Mutex
	calls   []refreshCall
	failFor map[string]error
	partial bool
}

func (s *stubRefresher) Refresh(ctx context.Context, outletIDs []string, rng daterange.DateRange) (*overview.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, refreshCall{outlets: outletIDs, rng: rng})
	if err, ok := s.failFor[outletIDs[0]]; ok {
		return nil, err
	}
	return &overview.Snapshot{Partial: s.partial}, nil
}

type failingScopes struct{ err error }

func (f failingScopes) OutletScopes(context.Context) ([][]string, error) { return nil, f.err }

func newWarmupJob(refresher SnapshotRefresher, scopes ScopeLister) *OverviewWarmupJob {
	job := NewOverviewWarmupJob(refresher, scopes, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	job.clock = func() time.Time { return time.Date(2024, 3, 15, 6, 0, 0, 0, time.Local) }
	return job
}

func TestOverviewWarmupRefreshesEveryScopeAndRange(t *testing.T) {
	refresher := &stubRefresher{}
	job := newWarmupJob(refresher, StaticScopes{{"o1", "o2"}, {"o3"}})

	task, err := NewOverviewWarmupTask(OverviewWarmupPayload{Ranges: []string{"today", "last_month"}})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	require.Len(t, refresher.calls, 4)
	require.Equal(t, []string{"o1", "o2"}, refresher.calls[0].outlets)
	require.Equal(t, daterange.DateRange{From: "2024-03-15", To: "2024-03-15", Label: "Today"}, refresher.calls[0].rng)
	require.Equal(t, "2024-02-01", refresher.calls[1].rng.From)
	require.Equal(t, []string{"o3"}, refresher.calls[3].outlets)
}

func TestOverviewWarmupDefaultsRanges(t *testing.T) {
	refresher := &stubRefresher{}
	job := newWarmupJob(refresher, StaticScopes{{"o1"}})

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskOverviewWarmup, nil)))
	require.Len(t, refresher.calls, len(DefaultWarmupRanges))
}

func TestOverviewWarmupPayloadScopesOverrideLister(t *testing.T) {
	refresher := &stubRefresher{}
	job := newWarmupJob(refresher, failingScopes{err: errors.New("db down")})

	task, err := NewOverviewWarmupTask(OverviewWarmupPayload{Scopes: [][]string{{"o7"}}, Ranges: []string{"today"}})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, refresher.calls, 1)
	require.Equal(t, []string{"o7"}, refresher.calls[0].outlets)
}

func TestOverviewWarmupToleratesScopeFailures(t *testing.T) {
	refresher := &stubRefresher{failFor: map[string]error{"o1": &overview.TotalAggregationError{Key: "k"}}}
	job := newWarmupJob(refresher, StaticScopes{{"o1"}, {"o2"}})

	task, err := NewOverviewWarmupTask(OverviewWarmupPayload{Ranges: []string{"today"}})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, refresher.calls, 2)
}

func TestOverviewWarmupFailsWhenEveryScopeFails(t *testing.T) {
	boom := errors.New("backend down")
	refresher := &stubRefresher{failFor: map[string]error{"o1": boom, "o2": boom}}
	job := newWarmupJob(refresher, StaticScopes{{"o1"}, {"o2"}})

	task, err := NewOverviewWarmupTask(OverviewWarmupPayload{Ranges: []string{"today"}})
	require.NoError(t, err)
	require.ErrorIs(t, job.Handle(context.Background(), task), boom)
}

func TestOverviewWarmupRecordsRunOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	boom := errors.New("backend down")
	job := NewOverviewWarmupJob(&stubRefresher{failFor: map[string]error{"o1": boom}}, StaticScopes{{"o1"}}, nil, jobmetrics.NewMetrics(reg))
	task, err := NewOverviewWarmupTask(OverviewWarmupPayload{Ranges: []string{"today"}})
	require.NoError(t, err)

	require.Error(t, job.Handle(context.Background(), task))
	require.Equal(t, 1.0, counterValue(t, reg, "outletdash_jobs_total", map[string]string{"job": TaskOverviewWarmup, "status": "failure"}))
	require.Equal(t, 1.0, counterValue(t, reg, "outletdash_jobs_failures_total", map[string]string{"job": TaskOverviewWarmup}))

	job.Overview = &stubRefresher{}
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 1.0, counterValue(t, reg, "outletdash_jobs_total", map[string]string{"job": TaskOverviewWarmup, "status": "success"}))
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	metrics:
		for _, metric := range family.GetMetric() {
			for _, pair := range metric.GetLabel() {
				if want, ok := labels[pair.GetName()]; ok && want != pair.GetValue() {
					continue metrics
				}
			}
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}

func TestOverviewWarmupScopeListerError(t *testing.T) {
	job := newWarmupJob(&stubRefresher{}, failingScopes{err: errors.New("db down")})
	require.Error(t, job.Handle(context.Background(), asynq.NewTask(TaskOverviewWarmup, nil)))
}

func TestOverviewWarmupRejectsMalformedPayload(t *testing.T) {
	job := newWarmupJob(&stubRefresher{}, StaticScopes{{"o1"}})
	err := job.Handle(context.Background(), asynq.NewTask(TaskOverviewWarmup, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestOverviewWarmupNotConfigured(t *testing.T) {
	var job *OverviewWarmupJob
	require.Error(t, job.Handle(context.Background(), asynq.NewTask(TaskOverviewWarmup, nil)))
}

func TestNewOverviewWarmupTaskPayload(t *testing.T) {
	task, err := NewOverviewWarmupTask(OverviewWarmupPayload{Scopes: [][]string{{"o1", "o2"}}})
	require.NoError(t, err)
	require.Equal(t, TaskOverviewWarmup, task.Type())

	var payload OverviewWarmupPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, [][]string{{"o1", "o2"}}, payload.Scopes)
	require.Empty(t, payload.Ranges)
}

func TestParseScopes(t *testing.T) {
	require.Equal(t, [][]string{{"o1", "o2"}, {"o3"}}, ParseScopes(" o1, o2 ; o3 ;; , "))
	require.Empty(t, ParseScopes(""))
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return s.info, s.err }

func TestJobsHealth(t *testing.T) {
	cases := []struct {
		name      string
		inspector QueueInspector
		status    int
		pending   int
	}{
		{"no inspector", nil, http.StatusOK, 0},
		{"queue info", stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 4}}, http.StatusOK, 4},
		{"redis down", stubInspector{err: errors.New("dial tcp")}, http.StatusServiceUnavailable, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := chi.NewRouter()
			r.Route("/jobs", NewHandler(tc.inspector, nil).MountRoutes)

			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
			require.Equal(t, tc.status, rr.Code)
			if tc.status != http.StatusOK {
				return
			}
			var body queueHealth
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
			require.Equal(t, QueueDefault, body.Queue)
			require.Equal(t, tc.pending, body.Pending)
		})
	}
}
