// Package metrics exposes Prometheus collectors for the render service.
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
	operationsTotal           *prometheus.CounterVec
	operationDurationSeconds  *prometheus.HistogramVec
	activeOperations          prometheus.Gauge
	instanceLaunchesTotal     *prometheus.CounterVec
	instanceRecyclesTotal     *prometheus.CounterVec
	pagesReapedTotal          prometheus.Counter
	httpRequestsTotal         *prometheus.CounterVec
	httpRequestDurationSecond *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		operationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "renderfetch_operations_total",
				Help: "Total render operations, labeled by operation and outcome.",
			},
			[]string{"op", "outcome"},
		)

		operationDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "renderfetch_operation_duration_seconds",
				Help:    "Histogram of end-to-end operation latencies, labeled by operation.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"op"},
		)

		activeOperations = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "renderfetch_active_operations",
				Help: "Number of operations currently holding a concurrency slot.",
			},
		)

		instanceLaunchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "renderfetch_instance_launches_total",
				Help: "Total engine instance launches, labeled by launch mode.",
			},
			[]string{"mode"},
		)

		instanceRecyclesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "renderfetch_instance_recycles_total",
				Help: "Total engine instance recycles, labeled by reason.",
			},
			[]string{"reason"},
		)

		pagesReapedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "renderfetch_pages_reaped_total",
				Help: "Total stray pages closed by the idle reaper.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSecond = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveOperation records one completed render operation.
func ObserveOperation(op, outcome string, duration time.Duration) {
	operationsTotal.WithLabelValues(op, outcome).Inc()
	operationDurationSeconds.WithLabelValues(op).Observe(duration.Seconds())
}

// SetActiveOperations updates the in-flight operations gauge.
func SetActiveOperations(n int) {
	activeOperations.Set(float64(n))
}

// ObserveLaunch counts an instance launch by mode ("primary" or "degraded").
func ObserveLaunch(mode string) {
	instanceLaunchesTotal.WithLabelValues(mode).Inc()
}

// ObserveRecycle counts an instance recycle by reason.
func ObserveRecycle(reason string) {
	instanceRecyclesTotal.WithLabelValues(reason).Inc()
}

// ObservePagesReaped counts pages closed by the idle reaper.
func ObservePagesReaped(n int) {
	pagesReapedTotal.Add(float64(n))
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSecond.WithLabelValues(method, route).Observe(duration.Seconds())
}
