// Package metrics exposes the Prometheus collectors shared by the tracker,
// the sync layer and the HTTP server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels used by the sync counters.
const (
	OutcomeOK               = "ok"
	OutcomeError            = "error"
	OutcomeUnavailable      = "unavailable"
	OutcomePermissionDenied = "permission_denied"
	OutcomeRejected         = "rejected"
	OutcomeApplied          = "applied"
	OutcomeIgnored          = "ignored"
)

// Metrics owns a private registry. Every method is safe on a nil receiver
// so components can run without instrumentation in tests.
type Metrics struct {
	Registry *prometheus.Registry

	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	localSaves     *prometheus.CounterVec
	remoteOps      *prometheus.CounterVec
	remoteEvents   *prometheus.CounterVec
	replayPending  prometheus.Gauge
	replayAttempts *prometheus.CounterVec
	rateLimited    prometheus.Counter
	suspicious     prometheus.Counter
	cacheLookups   *prometheus.CounterVec
	records        *prometheus.GaugeVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gastos_http_requests_total",
				Help: "HTTP requests by route and status code.",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gastos_http_request_duration_seconds",
				Help:    "HTTP request latency by route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		localSaves: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gastos_local_saves_total",
				Help: "Writes to the local store.",
			},
			[]string{"outcome"},
		),
		remoteOps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gastos_remote_operations_total",
				Help: "Remote document operations by kind and outcome.",
			},
			[]string{"operation", "outcome"},
		),
		remoteEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gastos_remote_events_total",
				Help: "Change feed events by outcome.",
			},
			[]string{"outcome"},
		),
		replayPending: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gastos_remote_replay_pending",
				Help: "1 while a local snapshot is waiting to be replayed remotely.",
			},
		),
		replayAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gastos_remote_replay_attempts_total",
				Help: "Remote replay attempts by outcome.",
			},
			[]string{"outcome"},
		),
		rateLimited: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "gastos_http_rate_limited_total",
				Help: "Requests rejected by the rate limiter.",
			},
		),
		suspicious: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "gastos_http_suspicious_requests_total",
				Help: "Requests flagged by the security detector.",
			},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gastos_cache_lookups_total",
				Help: "Cache lookups by cache and result.",
			},
			[]string{"cache", "result"},
		),
		records: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gastos_records",
				Help: "Records held in memory per category.",
			},
			[]string{"category"},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) LocalSave(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.localSaves.WithLabelValues(OutcomeError).Inc()
		return
	}
	m.localSaves.WithLabelValues(OutcomeOK).Inc()
}

func (m *Metrics) RemoteOperation(op, outcome string) {
	if m == nil {
		return
	}
	m.remoteOps.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) RemoteEvent(outcome string) {
	if m == nil {
		return
	}
	m.remoteEvents.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ReplayPending(pending bool) {
	if m == nil {
		return
	}
	if pending {
		m.replayPending.Set(1)
		return
	}
	m.replayPending.Set(0)
}

func (m *Metrics) ReplayAttempt(outcome string) {
	if m == nil {
		return
	}
	m.replayAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

func (m *Metrics) Suspicious() {
	if m == nil {
		return
	}
	m.suspicious.Inc()
}

func (m *Metrics) CacheLookup(cache string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(cache, result).Inc()
}

func (m *Metrics) Records(category string, n int) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(category).Set(float64(n))
}
