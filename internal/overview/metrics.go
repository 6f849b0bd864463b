package overview

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for snapshot caching and builds. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	hits           *prometheus.CounterVec
	misses         prometheus.Counter
	staleWrites    prometheus.Counter
	buildDuration  *prometheus.HistogramVec
	sourceFailures *prometheus.CounterVec
	refreshes      *prometheus.CounterVec
}

// NewMetrics registers the overview collectors. Collectors that are already
// registered are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outletdash_overview_cache_hits_total",
			Help: "Number of overview snapshot cache hits by tier.",
		}, []string{"tier"}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outletdash_overview_cache_miss_total",
			Help: "Number of overview snapshot cache misses.",
		}),
		staleWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outletdash_overview_cache_stale_writes_total",
			Help: "Snapshot writes rejected because a newer version was cached.",
		}),
		buildDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "outletdash_overview_build_duration_seconds",
			Help:    "Duration required to build overview snapshots.",
			Buckets: prometheus.DefBuckets,
		}, []string{"mode", "outcome"}),
		sourceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outletdash_overview_source_failures_total",
			Help: "Per-outlet source failures absorbed while building snapshots.",
		}, []string{"source"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outletdash_overview_background_refresh_total",
			Help: "Background snapshot refreshes by status.",
		}, []string{"status"}),
	}
	if err := register(reg, &m.hits); err != nil {
		return nil, err
	}
	if err := register(reg, &m.misses); err != nil {
		return nil, err
	}
	if err := register(reg, &m.staleWrites); err != nil {
		return nil, err
	}
	if err := register(reg, &m.buildDuration); err != nil {
		return nil, err
	}
	if err := register(reg, &m.sourceFailures); err != nil {
		return nil, err
	}
	if err := register(reg, &m.refreshes); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, collector *C) error {
	if err := reg.Register(*collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				*collector = existing
				return nil
			}
		}
		return err
	}
	return nil
}

func (m *Metrics) cacheHit(tier string) {
	if m == nil {
		return
	}
	m.hits.WithLabelValues(tier).Inc()
}

func (m *Metrics) cacheMiss() {
	if m == nil {
		return
	}
	m.misses.Inc()
}

func (m *Metrics) staleWrite() {
	if m == nil {
		return
	}
	m.staleWrites.Inc()
}

func (m *Metrics) observeBuild(mode, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.buildDuration.WithLabelValues(mode, outcome).Observe(d.Seconds())
}

func (m *Metrics) sourceFailure(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sourceFailures.WithLabelValues(source).Add(float64(n))
}

func (m *Metrics) refresh(status string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(status).Inc()
}
