// Package metrics exposes the service's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors registered for the negotiation service.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	NegotiationTransitions *prometheus.CounterVec
	GatewayCalls           *prometheus.CounterVec
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "negotiation",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests processed, by route, method and status code.",
		}, []string{"route", "method", "code"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "negotiation",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency, by route and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		HTTPRequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "negotiation",
			Name:      "http_requests_in_flight",
			Help:      "HTTP requests currently being served.",
		}),
		NegotiationTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "negotiation",
			Name:      "state_transitions_total",
			Help:      "Negotiation state transitions, by flow and resulting status.",
		}, []string{"flow", "status"}),
		GatewayCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "negotiation",
			Name:      "gateway_calls_total",
			Help:      "Contract service calls, by operation and outcome.",
		}, []string{"operation", "outcome"}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.NegotiationTransitions,
		m.GatewayCalls,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordTransition counts one state transition.
func (m *Metrics) RecordTransition(flow, status string) {
	m.NegotiationTransitions.WithLabelValues(flow, status).Inc()
}

// RecordGatewayCall counts one contract-service call.
func (m *Metrics) RecordGatewayCall(operation string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.GatewayCalls.WithLabelValues(operation, outcome).Inc()
}
