package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels used by Recorder implementations.
const (
	OutcomeSuccess    = "success"
	OutcomeError      = "error"
	OutcomeSuperseded = "superseded"
)

// Recorder receives engine measurements. Implementations must be safe for
// concurrent use.
type Recorder interface {
	ObserveFetch(cache, outcome string, d time.Duration)
	ObserveMutation(cache string, kind MutationKind, outcome string, d time.Duration)
	ObserveReconcile(cache string, result ReconcileResult)
	ObserveRealtime(cache, event, outcome string)
	SetCacheSize(cache string, n int)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) ObserveFetch(string, string, time.Duration)                 {}
func (NopRecorder) ObserveMutation(string, MutationKind, string, time.Duration) {}
func (NopRecorder) ObserveReconcile(string, ReconcileResult)                   {}
func (NopRecorder) ObserveRealtime(string, string, string)                     {}
func (NopRecorder) SetCacheSize(string, int)                                   {}

// PromRecorder exports engine measurements as Prometheus metrics.
type PromRecorder struct {
	fetches    *prometheus.HistogramVec
	mutations  *prometheus.HistogramVec
	reconciles *prometheus.CounterVec
	realtime   *prometheus.CounterVec
	size       *prometheus.GaugeVec
}

// NewPromRecorder creates the collectors and registers them with reg.
func NewPromRecorder(reg prometheus.Registerer) (*PromRecorder, error) {
	r := &PromRecorder{
		fetches: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "syncache",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of remote fetches by outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"cache", "outcome"}),
		mutations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "syncache",
			Name:      "mutation_duration_seconds",
			Help:      "Duration of optimistic mutations from speculation to commit or rollback.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"cache", "kind", "outcome"}),
		reconciles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "syncache",
			Name:      "reconcile_total",
			Help:      "Reconciliation passes by result.",
		}, []string{"cache", "result"}),
		realtime: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "syncache",
			Name:      "realtime_events_total",
			Help:      "Realtime messages by event kind and outcome.",
		}, []string{"cache", "event", "outcome"}),
		size: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "syncache",
			Name:      "cache_records",
			Help:      "Number of records held in the cache.",
		}, []string{"cache"}),
	}

	for _, c := range []prometheus.Collector{r.fetches, r.mutations, r.reconciles, r.realtime, r.size} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return r, nil
}

func (r *PromRecorder) ObserveFetch(cache, outcome string, d time.Duration) {
	r.fetches.WithLabelValues(cache, outcome).Observe(d.Seconds())
}

func (r *PromRecorder) ObserveMutation(cache string, kind MutationKind, outcome string, d time.Duration) {
	r.mutations.WithLabelValues(cache, string(kind), outcome).Observe(d.Seconds())
}

func (r *PromRecorder) ObserveReconcile(cache string, result ReconcileResult) {
	r.reconciles.WithLabelValues(cache, string(result)).Inc()
}

func (r *PromRecorder) ObserveRealtime(cache, event, outcome string) {
	r.realtime.WithLabelValues(cache, event, outcome).Inc()
}

func (r *PromRecorder) SetCacheSize(cache string, n int) {
	r.size.WithLabelValues(cache).Set(float64(n))
}

// MemoryRecorder keeps counters in memory. Snapshot returns a copy; tests and
// the CLI's json output use it.
type MemoryRecorder struct {
	mu     sync.Mutex
	counts map[string]int64
	sizes  map[string]int
}

// MemorySnapshot is a read-only copy of a MemoryRecorder.
type MemorySnapshot struct {
	Counts map[string]int64 `json:"counts"`
	Sizes  map[string]int   `json:"sizes"`
}

// NewMemoryRecorder creates an empty recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{counts: make(map[string]int64), sizes: make(map[string]int)}
}

func (r *MemoryRecorder) inc(key string) {
	r.mu.Lock()
	r.counts[key]++
	r.mu.Unlock()
}

func (r *MemoryRecorder) ObserveFetch(cache, outcome string, _ time.Duration) {
	r.inc(cache + ".fetch." + outcome)
}

func (r *MemoryRecorder) ObserveMutation(cache string, kind MutationKind, outcome string, _ time.Duration) {
	r.inc(cache + "." + string(kind) + "." + outcome)
}

func (r *MemoryRecorder) ObserveReconcile(cache string, result ReconcileResult) {
	r.inc(cache + ".reconcile." + string(result))
}

func (r *MemoryRecorder) ObserveRealtime(cache, event, outcome string) {
	r.inc(cache + ".realtime." + event + "." + outcome)
}

func (r *MemoryRecorder) SetCacheSize(cache string, n int) {
	r.mu.Lock()
	r.sizes[cache] = n
	r.mu.Unlock()
}

// Count returns one counter.
func (r *MemoryRecorder) Count(key string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[key]
}

// Snapshot copies the current counters.
func (r *MemoryRecorder) Snapshot() MemorySnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := MemorySnapshot{
		Counts: make(map[string]int64, len(r.counts)),
		Sizes:  make(map[string]int, len(r.sizes)),
	}
	for k, v := range r.counts {
		s.Counts[k] = v
	}
	for k, v := range r.sizes {
		s.Sizes[k] = v
	}
	return s
}
