// Package metrics exports engine and HTTP counters to Prometheus. Each
// Metrics owns its registry so tests and multiple servers do not collide.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sufield/popc/internal/domain"
	"github.com/sufield/popc/internal/ports"
)

const namespace = "popc"

// Metrics holds the collectors. A nil *Metrics discards observations.
type Metrics struct {
	registry *prometheus.Registry

	verifications  *prometheus.CounterVec
	verifyDuration prometheus.Histogram
	enrollments    *prometheus.CounterVec
	requests       *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	rateLimited    *prometheus.CounterVec
}

// New registers the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Verification calls by verdict.",
		}, []string{"verdict"}),
		verifyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "verification_duration_seconds",
			Help:      "Time to reach a verdict, including persistence.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		enrollments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrollments_total",
			Help:      "Enrollment attempts by platform and outcome.",
		}, []string{"platform", "accepted"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route pattern and status code.",
		}, []string{"route", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-key limiter.",
		}, []string{"key"}),
	}
	m.registry.MustRegister(
		m.verifications,
		m.verifyDuration,
		m.enrollments,
		m.requests,
		m.requestLatency,
		m.rateLimited,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveVerification counts a verdict and its latency.
func (m *Metrics) ObserveVerification(verdict domain.Verdict, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(string(verdict)).Inc()
	m.verifyDuration.Observe(elapsed.Seconds())
}

// ObserveEnrollment counts an enrollment attempt.
func (m *Metrics) ObserveEnrollment(platform domain.Platform, accepted bool) {
	if m == nil {
		return
	}
	m.enrollments.WithLabelValues(string(platform), strconv.FormatBool(accepted)).Inc()
}

// ObserveRequest counts an HTTP request. route is the router pattern, not
// the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveRequest(route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.requestLatency.WithLabelValues(route).Observe(elapsed.Seconds())
}

// RateLimited counts a rejected request for the named key.
func (m *Metrics) RateLimited(keyName string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(keyName).Inc()
}

var _ ports.MetricsRecorder = (*Metrics)(nil)
