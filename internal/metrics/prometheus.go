package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics wraps prometheus collectors for storefront metrics
type PrometheusMetrics struct {
	registry *prometheus.Registry

	// Sessions
	sessionsEvicted prometheus.Counter
	activeSessions  prometheus.Gauge
	viewsRecorded   prometheus.Counter

	// Popularity decay
	decayCycles  prometheus.Counter
	decayTrimmed prometheus.Counter

	// Page cache
	pageRequests *prometheus.CounterVec
	renderTime   prometheus.Histogram

	// Row refresh
	rowRefreshes *prometheus.CounterVec
	rowsPending  prometheus.Gauge

	// Maintenance loops
	loopErrors *prometheus.CounterVec

	uptime prometheus.GaugeFunc
}

// Default histogram buckets for page generation time (in milliseconds)
var defaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500}

var (
	promMetrics atomic.Pointer[PrometheusMetrics]
	startTime   = time.Now()
)

// InitPrometheus initializes the Prometheus metrics subsystem
func InitPrometheus(namespace string) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	pm := &PrometheusMetrics{
		registry: registry,

		sessionsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_evicted_total",
			Help:      "Sessions removed by the reaper, including their dependent records",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Tokens in the recency index at the last reaper pass",
		}),
		viewsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "item_views_total",
			Help:      "Item views recorded into view history and the popularity ranking",
		}),

		decayCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "popularity_decay_cycles_total",
			Help:      "Completed trim-and-halve passes over the popularity ranking",
		}),
		decayTrimmed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "popularity_trimmed_total",
			Help:      "Items dropped from the popularity ranking by decay passes",
		}),

		pageRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "page_cache_requests_total",
			Help:      "Page requests by cache outcome (hit, miss, bypass, error)",
		}, []string{"result"}),
		renderTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "page_render_duration_milliseconds",
			Help:      "Time spent in page generators",
			Buckets:   defaultBuckets,
		}),

		rowRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "row_refreshes_total",
			Help:      "Scheduled row cache iterations by outcome (refreshed, retired, failed)",
		}, []string{"result"}),
		rowsPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rows_scheduled",
			Help:      "Rows currently in the refresh schedule",
		}),

		loopErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "maintenance_errors_total",
			Help:      "Failed maintenance loop iterations by loop",
		}, []string{"loop"}),
	}

	pm.uptime = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Time since the storefront daemon started",
		},
		func() float64 {
			return time.Since(startTime).Seconds()
		},
	)

	registry.MustRegister(
		pm.sessionsEvicted,
		pm.activeSessions,
		pm.viewsRecorded,
		pm.decayCycles,
		pm.decayTrimmed,
		pm.pageRequests,
		pm.renderTime,
		pm.rowRefreshes,
		pm.rowsPending,
		pm.loopErrors,
		pm.uptime,
	)

	promMetrics.Store(pm)
}

// RecordSessionsEvicted counts one reaper batch.
func RecordSessionsEvicted(n int) {
	if pm := promMetrics.Load(); pm != nil {
		pm.sessionsEvicted.Add(float64(n))
	}
}

// SetActiveSessions records the recency index size.
func SetActiveSessions(n int64) {
	if pm := promMetrics.Load(); pm != nil {
		pm.activeSessions.Set(float64(n))
	}
}

// RecordView counts one recorded item view.
func RecordView() {
	if pm := promMetrics.Load(); pm != nil {
		pm.viewsRecorded.Inc()
	}
}

// RecordDecay counts a decay pass and the entries it trimmed.
func RecordDecay(trimmed int64) {
	if pm := promMetrics.Load(); pm != nil {
		pm.decayCycles.Inc()
		pm.decayTrimmed.Add(float64(trimmed))
	}
}

// Page cache outcomes.
const (
	PageHit    = "hit"
	PageMiss   = "miss"
	PageBypass = "bypass"
	PageError  = "error"
)

// RecordPageRequest counts a served page by cache outcome.
func RecordPageRequest(result string) {
	if pm := promMetrics.Load(); pm != nil {
		pm.pageRequests.WithLabelValues(result).Inc()
	}
}

// RecordRender observes time spent generating a page.
func RecordRender(d time.Duration) {
	if pm := promMetrics.Load(); pm != nil {
		pm.renderTime.Observe(float64(d.Microseconds()) / 1000)
	}
}

// Row refresh outcomes.
const (
	RowRefreshed = "refreshed"
	RowRetired   = "retired"
	RowFailed    = "failed"
)

// RecordRowRefresh counts one refresher iteration that processed a row.
func RecordRowRefresh(result string) {
	if pm := promMetrics.Load(); pm != nil {
		pm.rowRefreshes.WithLabelValues(result).Inc()
	}
}

// SetRowsScheduled records the schedule size.
func SetRowsScheduled(n int64) {
	if pm := promMetrics.Load(); pm != nil {
		pm.rowsPending.Set(float64(n))
	}
}

// RecordLoopError counts a failed maintenance iteration.
func RecordLoopError(loop string) {
	if pm := promMetrics.Load(); pm != nil {
		pm.loopErrors.WithLabelValues(loop).Inc()
	}
}

// PrometheusHandler returns an HTTP handler for Prometheus metrics scraping
func PrometheusHandler() http.Handler {
	pm := promMetrics.Load()
	if pm == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "Prometheus metrics not initialized", http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{})
}
