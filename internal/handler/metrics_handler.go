package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tc-schedule-api/internal/service"
	"github.com/noah-isme/tc-schedule-api/pkg/response"
)

const readinessTimeout = 2 * time.Second

type pinger interface {
	PingContext(ctx context.Context) error
}

// MetricsHandler serves health checks and the request engine counters.
type MetricsHandler struct {
	metrics *service.MetricsService
	db      pinger
}

// NewMetricsHandler constructs a metrics handler. db may be nil, in which case
// readiness only reports the process as up.
func NewMetricsHandler(metrics *service.MetricsService, db pinger) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, db: db}
}

// Prometheus serves the scrape endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Health reports the process as alive.
func (h *MetricsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready reports 503 while the timetable database is unreachable.
func (h *MetricsHandler) Ready(c *gin.Context) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// EngineSummary is the staff facing view of workflow and timetable activity.
type EngineSummary struct {
	Requests    RequestActivity   `json:"requests"`
	Conflicts   ConflictActivity  `json:"conflicts"`
	Timetable   TimetableActivity `json:"timetable"`
	Cache       CacheActivity     `json:"cache"`
	GeneratedAt time.Time         `json:"generatedAt"`
}

// RequestActivity counts status transitions per workflow and target status.
type RequestActivity struct {
	Transitions uint64                       `json:"transitions"`
	ByKind      map[string]map[string]uint64 `json:"byKind"`
}

// ConflictActivity counts detected conflicts. Dimensions are listed busiest first.
type ConflictActivity struct {
	Total       uint64           `json:"total"`
	ByDimension []DimensionCount `json:"byDimension"`
}

// DimensionCount is one conflict dimension with its count.
type DimensionCount struct {
	Dimension string `json:"dimension"`
	Count     uint64 `json:"count"`
}

// TimetableActivity covers the transactional write path.
type TimetableActivity struct {
	Transactions         uint64  `json:"transactions"`
	AverageTransactionMs float64 `json:"averageTransactionMs"`
	LockTimeouts         uint64  `json:"lockTimeouts"`
}

// CacheActivity covers the advisory read cache.
type CacheActivity struct {
	Hits     uint64  `json:"hits"`
	Misses   uint64  `json:"misses"`
	HitRatio float64 `json:"hitRatio"`
}

// Summary returns the request engine counters.
func (h *MetricsHandler) Summary(c *gin.Context) {
	response.JSON(c, http.StatusOK, summarize(h.metrics.Snapshot()), nil)
}

func summarize(snap service.MetricsSnapshot) EngineSummary {
	byKind := snap.TransitionsByKind
	if byKind == nil {
		byKind = map[string]map[string]uint64{}
	}

	dims := make([]DimensionCount, 0, len(snap.ConflictsByDimension))
	for dim, n := range snap.ConflictsByDimension {
		dims = append(dims, DimensionCount{Dimension: dim, Count: n})
	}
	sort.Slice(dims, func(i, j int) bool {
		if dims[i].Count != dims[j].Count {
			return dims[i].Count > dims[j].Count
		}
		return dims[i].Dimension < dims[j].Dimension
	})

	generated := snap.GeneratedAt
	if generated.IsZero() {
		generated = time.Now().UTC()
	}

	return EngineSummary{
		Requests:  RequestActivity{Transitions: snap.RequestTransitions, ByKind: byKind},
		Conflicts: ConflictActivity{Total: snap.ScheduleConflicts, ByDimension: dims},
		Timetable: TimetableActivity{
			Transactions:         snap.Transactions,
			AverageTransactionMs: snap.AverageTransactionMs,
			LockTimeouts:         snap.LockTimeouts,
		},
		Cache:       CacheActivity{Hits: snap.CacheHits, Misses: snap.CacheMisses, HitRatio: snap.CacheHitRatio},
		GeneratedAt: generated,
	}
}
