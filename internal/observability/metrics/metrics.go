// Package metrics exposes Prometheus collectors for proof issuance, anchoring,
// the job pipeline and the HTTP API. Each Metrics value owns its registry so
// tests and embedded servers do not share global state.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "proofmesh"

// Metrics groups the collectors registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	proofsIssued       prometheus.Counter
	validationFailures prometheus.Counter
	anchorDuration     *prometheus.HistogramVec
	anchorAttempts     *prometheus.CounterVec
	jobs               *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec
	httpErrors         *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// New builds a Metrics with a fresh registry. Go runtime and process
// collectors are included when withRuntime is true.
func New(withRuntime bool) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		proofsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proofs_issued_total",
			Help:      "Total number of provenance receipts issued.",
		}),
		validationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proof_validation_failures_total",
			Help:      "Total number of generate calls rejected for missing required fields.",
		}),
		anchorDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "anchor_duration_seconds",
			Help:      "Time spent submitting a payload hash to the anchor provider.",
			Buckets:   []float64{0.001, 0.005, 0.025, 0.1, 0.5, 1, 2.5, 5, 15, 30},
		}, []string{"result"}),
		anchorAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anchor_attempts_total",
			Help:      "Anchor attempts per provider inside the failover chain.",
		}, []string{"provider", "result"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_processed_total",
			Help:      "Proof jobs handled by the processor, by outcome.",
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests processed.",
		}, []string{"handler", "method", "code"}),
		httpErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_request_errors_total",
			Help:      "Total number of HTTP requests that resulted in a server error.",
		}, []string{"handler", "method"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"handler", "method"}),
	}

	m.registry.MustRegister(
		m.proofsIssued,
		m.validationFailures,
		m.anchorDuration,
		m.anchorAttempts,
		m.jobs,
		m.httpRequests,
		m.httpErrors,
		m.httpDuration,
	)
	if withRuntime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ProofIssued counts an issued receipt. Generator is caller-supplied free
// text and is not used as a label.
func (m *Metrics) ProofIssued(string) { m.proofsIssued.Inc() }

// ValidationFailed counts a rejected input.
func (m *Metrics) ValidationFailed() { m.validationFailures.Inc() }

// AnchorCompleted records the latency of one anchor submission.
func (m *Metrics) AnchorCompleted(d time.Duration, err error) {
	m.anchorDuration.WithLabelValues(result(err)).Observe(d.Seconds())
}

// AnchorAttempt records a single provider attempt; its signature matches
// anchor.AttemptFunc.
func (m *Metrics) AnchorAttempt(provider string, _ time.Duration, err error) {
	m.anchorAttempts.WithLabelValues(provider, result(err)).Inc()
}

// JobFinished counts a processed job by outcome.
func (m *Metrics) JobFinished(outcome string) {
	m.jobs.WithLabelValues(outcome).Inc()
}

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func (m *Metrics) ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	m.httpRequests.WithLabelValues(handler, method, strconv.Itoa(status)).Inc()
	if status >= 500 {
		m.httpErrors.WithLabelValues(handler, method).Inc()
	}
	m.httpDuration.WithLabelValues(handler, method).Observe(duration.Seconds())
}

// Handler exposes the registry in Prometheus text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
