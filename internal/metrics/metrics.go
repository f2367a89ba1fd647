// Package metrics owns the service's private Prometheus registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "marketplace"

// Metrics is safe to use through a nil pointer; every recorder is then a no-op.
type Metrics struct {
	registry        *prometheus.Registry
	guardDenials    *prometheus.CounterVec
	signatureChecks *prometheus.CounterVec
	rateLimited     *prometheus.CounterVec
	requests        *prometheus.CounterVec
	durations       *prometheus.HistogramVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		guardDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guard_denials_total",
			Help:      "Requests refused by a role, ownership or seller guard.",
		}, []string{"guard", "reason"}),
		signatureChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signature_checks_total",
			Help:      "Request signature verifications by result.",
		}, []string{"result"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by a rate-limit bucket.",
		}, []string{"bucket"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served.",
		}, []string{"method", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}

	registry.MustRegister(
		m.guardDenials,
		m.signatureChecks,
		m.rateLimited,
		m.requests,
		m.durations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) GuardDenied(guard string, reason string) {
	if m == nil {
		return
	}
	m.guardDenials.WithLabelValues(guard, reason).Inc()
}

// SignatureChecked records "valid" or the rejection reason.
func (m *Metrics) SignatureChecked(result string) {
	if m == nil {
		return
	}
	m.signatureChecks.WithLabelValues(result).Inc()
}

func (m *Metrics) RateLimited(bucket string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(bucket).Inc()
}

func (m *Metrics) ObserveRequest(method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.durations.WithLabelValues(method).Observe(elapsed.Seconds())
}
