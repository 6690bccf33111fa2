package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService owns the Prometheus registry of the roster API.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheOps        *prometheus.CounterVec
	cacheLatency    *prometheus.HistogramVec
	dbQueryDuration *prometheus.HistogramVec

	generationDuration prometheus.Histogram
	relaxedSlots       prometheus.Counter
	unfilledSlots      prometheus.Counter
	saveConflicts      *prometheus.CounterVec
	batchJobs          *prometheus.CounterVec
}

var engineBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1}

// NewMetricsService registers the HTTP, cache, database and roster collectors
// plus the standard Go and process collectors.
func NewMetricsService() *MetricsService {
	m := &MetricsService{
		registry: prometheus.NewRegistry(),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		cacheOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_operations_total",
			Help: "Plan cache operations by kind and result",
		}, []string{"op", "result"}),
		cacheLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cache_operation_seconds",
			Help:    "Latency of plan cache operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		dbQueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Duration of database queries",
			Buckets: prometheus.DefBuckets,
		}, []string{"query"}),
		generationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "roster_generation_duration_seconds",
			Help:    "Duration of roster engine runs",
			Buckets: engineBuckets,
		}),
		relaxedSlots: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roster_relaxed_slots_total",
			Help: "Slots filled by breaking a rest rule during backfill",
		}),
		unfilledSlots: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roster_unfilled_slots_total",
			Help: "Slots left without a worker after backfill",
		}),
		saveConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roster_save_conflicts_total",
			Help: "Roster saves rejected by the conflict validator",
		}, []string{"reason"}),
		batchJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roster_batch_jobs_total",
			Help: "Finished roster batch jobs by final status",
		}, []string{"status"}),
	}

	m.registry.MustRegister(
		m.requestDuration, m.requestTotal,
		m.cacheOps, m.cacheLatency, m.dbQueryDuration,
		m.generationDuration, m.relaxedSlots, m.unfilledSlots, m.saveConflicts, m.batchJobs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m.handler = promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
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

// RegisterQueueDepth exposes the number of batches waiting in the queue.
func (m *MetricsService) RegisterQueueDepth(depth func() int) {
	m.registerGaugeFunc("roster_batch_queue_depth", "Roster batches waiting for a worker", depth)
}

// RegisterProposalsHeld exposes the number of unsaved proposals kept in memory.
func (m *MetricsService) RegisterProposalsHeld(held func() int) {
	m.registerGaugeFunc("roster_proposals_held", "Generated roster proposals awaiting save or expiry", held)
}

func (m *MetricsService) registerGaugeFunc(name, help string, fn func() int) {
	if m == nil || fn == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: name,
		Help: help,
	}, func() float64 { return float64(fn()) }))
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, code).Inc()
}

// RecordCacheOperation records a cache lookup as a hit or a miss.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheOps.WithLabelValues("get", result).Inc()
	m.cacheLatency.WithLabelValues("get").Observe(duration.Seconds())
}

// ObserveCacheWrite tracks the duration of cache writes.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheOps.WithLabelValues("set", "ok").Inc()
	m.cacheLatency.WithLabelValues("set").Observe(duration.Seconds())
}

// ObserveDBQuery records database query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// ObserveGeneration records one engine run.
func (m *MetricsService) ObserveGeneration(duration time.Duration, relaxed, unfilled int) {
	if m == nil {
		return
	}
	m.generationDuration.Observe(duration.Seconds())
	m.relaxedSlots.Add(float64(relaxed))
	m.unfilledSlots.Add(float64(unfilled))
}

// RecordSaveConflict counts a save rejected for the given violation reason.
func (m *MetricsService) RecordSaveConflict(reason string) {
	if m == nil {
		return
	}
	m.saveConflicts.WithLabelValues(reason).Inc()
}

// RecordBatchJob counts a finished batch job.
func (m *MetricsService) RecordBatchJob(status string) {
	if m == nil {
		return
	}
	m.batchJobs.WithLabelValues(status).Inc()
}
