package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the API and
// the planner.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	schedulesCommitted prometheus.Counter
	slotRejections     prometheus.Counter
	plannerDuration    prometheus.Histogram
	plannerCreated     prometheus.Histogram

	cacheHits    prometheus.Counter
	cacheMisses  prometheus.Counter
	cacheLatency prometheus.Histogram
	cacheWrites  prometheus.Histogram
}

// NewMetricsService registers the service's Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	schedulesCommitted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "schedules_committed_total",
		Help: "Schedule records accepted by the invariant enforcer",
	})

	slotRejections := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "planner_slot_rejections_total",
		Help: "Planner placements rejected at commit time",
	})

	plannerDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "planner_run_duration_seconds",
		Help:    "Wall time of batch planner runs",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	plannerCreated := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "planner_run_schedules_created",
		Help:    "Schedules created per batch planner run",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrites := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	registry.MustRegister(requestDuration, requestTotal, schedulesCommitted, slotRejections, plannerDuration, plannerCreated, cacheHits, cacheMisses, cacheLatency, cacheWrites)

	return &MetricsService{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		schedulesCommitted: schedulesCommitted,
		slotRejections:     slotRejections,
		plannerDuration:    plannerDuration,
		plannerCreated:     plannerCreated,
		cacheHits:          cacheHits,
		cacheMisses:        cacheMisses,
		cacheLatency:       cacheLatency,
		cacheWrites:        cacheWrites,
	}
}

// Handler serves the Prometheus scrape endpoint.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveHTTPRequest records request metrics.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	labels := []string{method, path, strconv.Itoa(status)}
	s.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	s.requestTotal.WithLabelValues(labels...).Inc()
}

// RecordScheduleCommitted counts an enforcer-approved commit.
func (s *MetricsService) RecordScheduleCommitted() {
	s.schedulesCommitted.Inc()
}

// RecordSlotRejection counts a planner placement rejected at commit time.
func (s *MetricsService) RecordSlotRejection() {
	s.slotRejections.Inc()
}

// ObservePlannerRun records a completed batch planner run.
func (s *MetricsService) ObservePlannerRun(duration time.Duration, created int) {
	s.plannerDuration.Observe(duration.Seconds())
	s.plannerCreated.Observe(float64(created))
}

// RecordCacheOperation tracks a cache lookup outcome.
func (s *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if hit {
		s.cacheHits.Inc()
	} else {
		s.cacheMisses.Inc()
	}
	s.cacheLatency.Observe(duration.Seconds())
}

// ObserveCacheWrite tracks a cache set.
func (s *MetricsService) ObserveCacheWrite(duration time.Duration) {
	s.cacheWrites.Observe(duration.Seconds())
}
