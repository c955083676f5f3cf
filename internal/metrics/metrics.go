// Package metrics exports dispatcher and read-accessor counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "taskgate"

// Metrics groups every collector the service exposes. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	DispatchTotal   *prometheus.CounterVec
	HandlerDuration *prometheus.HistogramVec
	ReadTotal       *prometheus.CounterVec
	GuardReloads    *prometheus.CounterVec
	RateLimited     prometheus.Counter
}

// New creates a private registry with process and Go runtime collectors
// plus the service metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		DispatchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_total",
				Help:      "Dispatched instructions by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		HandlerDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "handler_duration_seconds",
				Help:      "Operation handler latency in seconds",
				Buckets:   []float64{0.005, 0.025, 0.1, 0.5, 1, 5, 15, 60, 120},
			},
			[]string{"operation"},
		),
		ReadTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "read_total",
				Help:      "File read requests by outcome",
			},
			[]string{"outcome"},
		),
		GuardReloads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "guard_reloads_total",
				Help:      "Deny-rule reloads by result",
			},
			[]string{"result"},
		),
		RateLimited: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "run_rate_limited_total",
				Help:      "Run requests rejected by the per-client rate limit",
			},
		),
	}
}

// ObserveDispatch records one dispatch. operation is empty when the
// instruction never resolved.
func (m *Metrics) ObserveDispatch(operation, outcome string) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "none"
	}
	m.DispatchTotal.WithLabelValues(operation, outcome).Inc()
}

// ObserveHandler records handler latency.
func (m *Metrics) ObserveHandler(operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.HandlerDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// ObserveRead records one read request.
func (m *Metrics) ObserveRead(outcome string) {
	if m == nil {
		return
	}
	m.ReadTotal.WithLabelValues(outcome).Inc()
}

// ObserveReload records a deny-rule reload attempt.
func (m *Metrics) ObserveReload(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.GuardReloads.WithLabelValues(result).Inc()
}

// ObserveRateLimited records a rejected run request.
func (m *Metrics) ObserveRateLimited() {
	if m == nil {
		return
	}
	m.RateLimited.Inc()
}

// Registry returns the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
