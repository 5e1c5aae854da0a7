// Package metrics exposes Prometheus instruments for the funnel.
// This is part of the platform layer and contains no business logic.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "windowleads"

// Metrics holds the funnel counters on their own registry.
type Metrics struct {
	registry *prometheus.Registry

	Transitions      *prometheus.CounterVec
	Qualified        *prometheus.CounterVec
	SideEffectErrors *prometheus.CounterVec
	FunnelEvents     *prometheus.CounterVec
	ActiveFlows      prometheus.Gauge
	RequestDuration  *prometheus.HistogramVec
}

// New creates and registers every instrument. withRuntime adds the Go and
// process collectors.
func New(withRuntime bool) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "funnel_transitions_total",
			Help:      "Qualification step transitions.",
		}, []string{"from", "to"}),
		Qualified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leads_qualified_total",
			Help:      "Completed qualifications by segment.",
		}, []string{"segment"}),
		SideEffectErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "side_effect_errors_total",
			Help:      "Non-critical failures absorbed by the funnel.",
		}, []string{"operation"}),
		FunnelEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "funnel_events_total",
			Help:      "Marketing and internal funnel events emitted.",
		}, []string{"name"}),
		ActiveFlows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "funnel_active_flows",
			Help:      "Qualification flows held in memory.",
		}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	m.registry.MustRegister(
		m.Transitions,
		m.Qualified,
		m.SideEffectErrors,
		m.FunnelEvents,
		m.ActiveFlows,
		m.RequestDuration,
	)
	if withRuntime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
