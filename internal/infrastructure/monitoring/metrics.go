package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "argproxy"

// Metrics manages the Prometheus metrics.
type Metrics struct {
	Resolutions       *prometheus.CounterVec
	ResolutionLatency *prometheus.HistogramVec
	ResolveErrors     *prometheus.CounterVec
	RefreshRequests   *prometheus.CounterVec
	RefreshLatency    prometheus.Histogram
	StoreOperations   *prometheus.CounterVec
	StoreLatency      *prometheus.HistogramVec
	CacheAccess       *prometheus.CounterVec

	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPActiveRequests  prometheus.Gauge
}

// NewMetrics creates and registers the Prometheus metrics on reg.
// A nil reg registers on the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		Resolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolutions_total",
				Help:      "Total number of successful link resolutions by outcome.",
			},
			[]string{"outcome"},
		),
		ResolutionLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "resolution_latency_seconds",
				Help:      "Latency of link resolutions.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		ResolveErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolve_errors_total",
				Help:      "Total number of failed link resolutions by error code.",
			},
			[]string{"code"},
		),
		RefreshRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_refresh_requests_total",
				Help:      "Total number of upstream refresh calls.",
			},
			[]string{"result"},
		),
		RefreshLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_refresh_latency_seconds",
				Help:      "Latency of upstream refresh calls.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		StoreOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_operations_total",
				Help:      "Total number of link store operations.",
			},
			[]string{"backend", "operation", "result"},
		),
		StoreLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "store_operation_latency_seconds",
				Help:      "Latency of link store operations.",
				Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"backend", "operation"},
		),
		CacheAccess: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_access_total",
				Help:      "Hits and misses of in-process cache tiers.",
			},
			[]string{"tier", "result"},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests.",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPActiveRequests: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_active_requests",
				Help:      "Number of in-flight HTTP requests.",
			},
		),
	}
}

// RecordResolution records metrics for a successful resolution.
func (m *Metrics) RecordResolution(outcome string, duration time.Duration) {
	m.Resolutions.WithLabelValues(outcome).Inc()
	m.ResolutionLatency.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordResolveError records a failed resolution.
func (m *Metrics) RecordResolveError(code string) {
	m.ResolveErrors.WithLabelValues(code).Inc()
}

// RecordRefresh records an upstream refresh call.
func (m *Metrics) RecordRefresh(success bool, duration time.Duration) {
	m.RefreshRequests.WithLabelValues(result(success)).Inc()
	m.RefreshLatency.Observe(duration.Seconds())
}

// RecordStoreOperation records a link store call.
func (m *Metrics) RecordStoreOperation(backend, operation string, success bool, duration time.Duration) {
	m.StoreOperations.WithLabelValues(backend, operation, result(success)).Inc()
	m.StoreLatency.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

// RecordCacheAccess records a hit or miss of an in-process tier.
func (m *Metrics) RecordCacheAccess(tier string, hit bool) {
	r := "miss"
	if hit {
		r = "hit"
	}
	m.CacheAccess.WithLabelValues(tier, r).Inc()
}

// ActiveRequestsInc marks a request as in flight.
func (m *Metrics) ActiveRequestsInc() { m.HTTPActiveRequests.Inc() }

// ActiveRequestsDec marks a request as finished.
func (m *Metrics) ActiveRequestsDec() { m.HTTPActiveRequests.Dec() }

// ObserveRequest records a finished HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, duration time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
