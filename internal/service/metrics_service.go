package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "tc_schedule"

// MetricsService owns the Prometheus registry for the scheduling API and keeps
// plain counters for the JSON summary endpoint.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	httpDuration *prometheus.HistogramVec
	cacheLookups *prometheus.CounterVec
	cacheLatency *prometheus.HistogramVec
	txDuration   *prometheus.HistogramVec
	lockTimeouts prometheus.Counter
	transitions  *prometheus.CounterVec
	conflicts    *prometheus.CounterVec

	requestCount         uint64
	requestDurationTotal uint64
	cacheHitCount        uint64
	cacheMissCount       uint64
	txCount              uint64
	txDurationTotal      uint64
	lockTimeoutCount     uint64
	transitionCount      uint64
	conflictCount        uint64

	mu                 sync.Mutex
	conflictsDimension map[string]uint64
	transitionsByKind  map[string]map[string]uint64
}

// NewMetricsService registers collectors on a private registry.
func NewMetricsService() *MetricsService {
	m := &MetricsService{
		registry:           prometheus.NewRegistry(),
		conflictsDimension: map[string]uint64{},
		transitionsByKind:  map[string]map[string]uint64{},
	}

	m.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	m.cacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Advisory cache lookups by scope and result.",
	}, []string{"scope", "result"})

	m.cacheLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "cache",
		Name:      "operation_seconds",
		Help:      "Advisory cache latency by scope and operation.",
		Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
	}, []string{"scope", "op"})

	m.txDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "db",
		Name:      "transaction_seconds",
		Help:      "Timetable transaction duration.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	m.lockTimeouts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "db",
		Name:      "lock_timeouts_total",
		Help:      "Timetable transactions aborted on lock timeout or deadlock.",
	})

	m.transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "requests",
		Name:      "transitions_total",
		Help:      "Request status transitions by workflow, type and edge.",
	}, []string{"kind", "type", "from", "to"})

	m.conflicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "timetable",
		Name:      "conflicts_total",
		Help:      "Scheduling conflicts detected by dimension.",
	}, []string{"dimension"})

	m.registry.MustRegister(
		m.httpDuration, m.cacheLookups, m.cacheLatency, m.txDuration, m.lockTimeouts, m.transitions, m.conflicts,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	m.handler = promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return m
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records one served request.
func (m *MetricsService) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(duration.Seconds())
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheLookup records an advisory cache read. Errors count as misses in the summary.
func (m *MetricsService) RecordCacheLookup(scope string, hit bool, failed bool, duration time.Duration) {
	if m == nil {
		return
	}
	result := "miss"
	switch {
	case failed:
		result = "error"
	case hit:
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(scope, result).Inc()
	m.cacheLatency.WithLabelValues(scope, "get").Observe(duration.Seconds())
	if hit {
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
}

// ObserveCacheWrite tracks advisory cache writes.
func (m *MetricsService) ObserveCacheWrite(scope string, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.WithLabelValues(scope, "set").Observe(duration.Seconds())
}

// ObserveTransaction records the duration of one timetable transaction.
func (m *MetricsService) ObserveTransaction(operation string, duration time.Duration) {
	if m == nil {
		return
	}
	m.txDuration.WithLabelValues(operation).Observe(duration.Seconds())
	atomic.AddUint64(&m.txCount, 1)
	atomic.AddUint64(&m.txDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordLockTimeout counts a transaction that gave up waiting for row locks.
func (m *MetricsService) RecordLockTimeout() {
	if m == nil {
		return
	}
	m.lockTimeouts.Inc()
	atomic.AddUint64(&m.lockTimeoutCount, 1)
}

// RecordRequestTransition counts one request status change. from is "NEW" on submission.
func (m *MetricsService) RecordRequestTransition(kind, requestType, from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(kind, requestType, from, to).Inc()
	atomic.AddUint64(&m.transitionCount, 1)
	m.mu.Lock()
	byStatus, ok := m.transitionsByKind[kind]
	if !ok {
		byStatus = map[string]uint64{}
		m.transitionsByKind[kind] = byStatus
	}
	byStatus[to]++
	m.mu.Unlock()
}

// RecordConflict counts a detected scheduling conflict.
func (m *MetricsService) RecordConflict(dimension string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(dimension).Inc()
	atomic.AddUint64(&m.conflictCount, 1)
	m.mu.Lock()
	m.conflictsDimension[dimension]++
	m.mu.Unlock()
}

// MetricsSnapshot is a JSON friendly summary of the process counters.
type MetricsSnapshot struct {
	RequestsTotal            uint64                       `json:"requestsTotal"`
	AverageRequestDurationMs float64                      `json:"averageRequestDurationMs"`
	CacheHitRatio            float64                      `json:"cacheHitRatio"`
	CacheHits                uint64                       `json:"cacheHits"`
	CacheMisses              uint64                       `json:"cacheMisses"`
	Transactions             uint64                       `json:"transactions"`
	AverageTransactionMs     float64                      `json:"averageTransactionMs"`
	LockTimeouts             uint64                       `json:"lockTimeouts"`
	RequestTransitions       uint64                       `json:"requestTransitions"`
	TransitionsByKind        map[string]map[string]uint64 `json:"transitionsByKind"`
	ScheduleConflicts        uint64                       `json:"scheduleConflicts"`
	ConflictsByDimension     map[string]uint64            `json:"conflictsByDimension"`
	Goroutines               int                          `json:"goroutines"`
	GeneratedAt              time.Time                    `json:"generatedAt"`
}

// Snapshot returns aggregated counters for the summary endpoint.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	txs := atomic.LoadUint64(&m.txCount)

	m.mu.Lock()
	byDimension := make(map[string]uint64, len(m.conflictsDimension))
	for k, v := range m.conflictsDimension {
		byDimension[k] = v
	}
	byKind := make(map[string]map[string]uint64, len(m.transitionsByKind))
	for kind, counts := range m.transitionsByKind {
		cp := make(map[string]uint64, len(counts))
		for status, n := range counts {
			cp[status] = n
		}
		byKind[kind] = cp
	}
	m.mu.Unlock()

	return MetricsSnapshot{
		RequestsTotal:            requests,
		AverageRequestDurationMs: averageMs(atomic.LoadUint64(&m.requestDurationTotal), requests),
		CacheHitRatio:            ratio(hits, hits+misses),
		CacheHits:                hits,
		CacheMisses:              misses,
		Transactions:             txs,
		AverageTransactionMs:     averageMs(atomic.LoadUint64(&m.txDurationTotal), txs),
		LockTimeouts:             atomic.LoadUint64(&m.lockTimeoutCount),
		RequestTransitions:       atomic.LoadUint64(&m.transitionCount),
		TransitionsByKind:        byKind,
		ScheduleConflicts:        atomic.LoadUint64(&m.conflictCount),
		ConflictsByDimension:     byDimension,
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}

func averageMs(totalNanos, count uint64) float64 {
	if count == 0 {
		return 0
	}
	return float64(totalNanos) / float64(count) / float64(time.Millisecond)
}

func ratio(part, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total)
}
