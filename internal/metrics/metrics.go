// Package metrics exposes Prometheus collectors for the recipe service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	jobsTotal                  *prometheus.CounterVec
	jobStageDurationSeconds    *prometheus.HistogramVec
	cacheOpsTotal              *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	activeExecutors            prometheus.Gauge
	streamObservers            prometheus.Gauge

	once sync.Once
)

// Collectors must exist before any observe helper runs; the cache, executor,
// and stream packages record metrics without going through the HTTP server.
func init() {
	Init()
}

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recipe_jobs_total",
				Help: "Total number of enrichment jobs finished, labeled by status.",
			},
			[]string{"status"},
		)

		jobStageDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "recipe_job_stage_duration_seconds",
				Help:    "Histogram of pipeline stage latencies, labeled by stage.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"stage"},
		)

		cacheOpsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recipe_cache_ops_total",
				Help: "Total cache operations, labeled by tier, op, and result.",
			},
			[]string{"tier", "op", "result"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		activeExecutors = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "recipe_active_executors",
				Help: "Number of executors currently processing a job.",
			},
		)

		streamObservers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "recipe_stream_observers",
				Help: "Number of status stream observers currently attached.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveJob increments the job counter for the given terminal status.
func ObserveJob(status string) {
	jobsTotal.WithLabelValues(status).Inc()
}

// ObserveStage records the duration of a pipeline stage.
func ObserveStage(stage string, duration time.Duration) {
	jobStageDurationSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}

// ObserveCacheOp increments the cache op counter.
func ObserveCacheOp(tier, op, result string) {
	cacheOpsTotal.WithLabelValues(tier, op, result).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveExecutors increments the active executors gauge.
func IncActiveExecutors() {
	activeExecutors.Inc()
}

// DecActiveExecutors decrements the active executors gauge.
func DecActiveExecutors() {
	activeExecutors.Dec()
}

// IncStreamObservers increments the attached observers gauge.
func IncStreamObservers() {
	streamObservers.Inc()
}

// DecStreamObservers decrements the attached observers gauge.
func DecStreamObservers() {
	streamObservers.Dec()
}
