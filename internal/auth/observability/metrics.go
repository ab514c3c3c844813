// Package observability owns the service's Prometheus metrics.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op so
// services can be built in tests without a registry.
type Metrics struct {
	registry *prometheus.Registry

	AuthDecisions   *prometheus.CounterVec
	Logins          *prometheus.CounterVec
	Callbacks       *prometheus.CounterVec
	TokensIssued    *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
	HTTPRequestTime *prometheus.HistogramVec
}

// NewMetrics registers everything on a fresh registry, together with the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		AuthDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wol_auth_decisions_total",
				Help: "Authentication decisions on protected requests by outcome.",
			},
			[]string{"state"},
		),
		Logins: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wol_oidc_logins_total",
				Help: "Login redirects started by outcome.",
			},
			[]string{"outcome"},
		),
		Callbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wol_oidc_callbacks_total",
				Help: "Authorization-code callbacks by outcome.",
			},
			[]string{"outcome"},
		),
		TokensIssued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wol_token_pairs_issued_total",
				Help: "Access/refresh token pairs issued by reason.",
			},
			[]string{"reason"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wol_http_requests_total",
				Help: "HTTP requests by method, route and status.",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wol_http_request_duration_seconds",
				Help:    "HTTP request latency by method and route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.AuthDecisions,
		m.Logins,
		m.Callbacks,
		m.TokensIssued,
		m.HTTPRequests,
		m.HTTPRequestTime,
	)
	return m
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveDecision(state string) {
	if m == nil {
		return
	}
	m.AuthDecisions.WithLabelValues(state).Inc()
}

func (m *Metrics) ObserveLogin(outcome string) {
	if m == nil {
		return
	}
	m.Logins.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveCallback(outcome string) {
	if m == nil {
		return
	}
	m.Callbacks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveIssued(reason string) {
	if m == nil {
		return
	}
	m.TokensIssued.WithLabelValues(reason).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request count and latency. The route label is the
// pattern routes would dispatch to, resolved before next runs so requests
// rejected further up the chain are still attributed to their route.
func (m *Metrics) Middleware(routes *http.ServeMux) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			var route string
			if routes != nil {
				_, route = routes.Handler(r)
			}
			rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)

			if route == "" {
				route = r.Pattern
			}
			if route == "" {
				route = "unmatched"
			}
			m.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(rw.status)).Inc()
			m.HTTPRequestTime.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
