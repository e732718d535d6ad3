// Package metrics holds the Prometheus collectors for the request pipeline
// and the repository layer.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	requests        *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	retries         *prometheus.CounterVec
	cacheHits       prometheus.Counter
	fallbacks       *prometheus.CounterVec
	pendingSynced   *prometheus.CounterVec
	pendingGauge    prometheus.Gauge
	transportErrors *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg uses a
// fresh private registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bankline",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of completed HTTP exchanges.",
			},
			[]string{"method", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "bankline",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP exchanges.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
			},
			[]string{"method"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bankline",
				Subsystem: "http",
				Name:      "retries_total",
				Help:      "Total number of retries signalled.",
			},
			[]string{"method"},
		),
		cacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "bankline",
				Subsystem: "http",
				Name:      "cache_hits_total",
				Help:      "Responses served from the response cache.",
			},
		),
		transportErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bankline",
				Subsystem: "http",
				Name:      "transport_errors_total",
				Help:      "Transport failures by kind.",
			},
			[]string{"kind"},
		),
		fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bankline",
				Subsystem: "repository",
				Name:      "cache_fallbacks_total",
				Help:      "Fetches answered from the local cache after a connectivity failure.",
			},
			[]string{"entity"},
		),
		pendingSynced: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bankline",
				Subsystem: "repository",
				Name:      "pending_operations_total",
				Help:      "Deferred writes replayed, by outcome.",
			},
			[]string{"outcome"},
		),
		pendingGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "bankline",
				Subsystem: "repository",
				Name:      "pending_operations",
				Help:      "Deferred writes waiting for connectivity.",
			},
		),
	}
	reg.MustRegister(
		m.requests,
		m.duration,
		m.retries,
		m.cacheHits,
		m.transportErrors,
		m.fallbacks,
		m.pendingSynced,
		m.pendingGauge,
	)
	return m
}

// Handler exposes a gatherer over HTTP.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordRequest(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) RecordRetry(method string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(method).Inc()
}

func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

func (m *Metrics) RecordTransportError(kind string) {
	if m == nil {
		return
	}
	m.transportErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordFallback(entity string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(entity).Inc()
}

func (m *Metrics) RecordPendingOutcome(outcome string) {
	if m == nil {
		return
	}
	m.pendingSynced.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pendingGauge.Set(float64(n))
}
