// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors of one process. Each process owns its
// registry so tests can build as many as they need.
type Metrics struct {
	Registry *prometheus.Registry

	AuthzDecisions  *prometheus.CounterVec   // action, outcome
	TokensIssued    *prometheus.CounterVec   // grant_type
	VerifyFailures  *prometheus.CounterVec   // reason
	RequestDuration *prometheus.HistogramVec // method, route, status
}

// New registers all collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		AuthzDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "learntrack_authz_decisions_total",
			Help: "Authorization decisions by action and outcome.",
		}, []string{"action", "outcome"}),
		TokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "learntrack_token_issued_total",
			Help: "Access tokens issued by grant type.",
		}, []string{"grant_type"}),
		VerifyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "learntrack_token_verify_failures_total",
			Help: "Bearer token verification failures by reason.",
		}, []string{"reason"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "learntrack_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	m.Registry.MustRegister(
		m.AuthzDecisions,
		m.TokensIssued,
		m.VerifyFailures,
		m.RequestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
