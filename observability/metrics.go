package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	attesterdOnce     sync.Once
	attesterdRegistry *AttesterdMetrics
)

// AttesterdMetrics bundles the collectors exported by the attester daemon.
type AttesterdMetrics struct {
	requests      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	rejections    *prometheus.CounterVec
	signatures    *prometheus.CounterVec
	fetchLatency  *prometheus.HistogramVec
	fetchFailures *prometheus.CounterVec
	throttles     *prometheus.CounterVec
}

// Attesterd returns the lazily-initialised metrics registry for attesterd.
func Attesterd() *AttesterdMetrics {
	attesterdOnce.Do(func() {
		attesterdRegistry = newAttesterdMetrics()
		attesterdRegistry.MustRegister(prometheus.DefaultRegisterer)
	})
	return attesterdRegistry
}

func newAttesterdMetrics() *AttesterdMetrics {
	return &AttesterdMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "symmoracle",
			Subsystem: "attesterd",
			Name:      "requests_total",
			Help:      "Attestation requests segmented by method and outcome.",
		}, []string{"method", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "symmoracle",
			Subsystem: "attesterd",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution of attestation requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "symmoracle",
			Subsystem: "attesterd",
			Name:      "rejections_total",
			Help:      "Rejected requests segmented by error kind.",
		}, []string{"method", "kind"}),
		signatures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "symmoracle",
			Subsystem: "attesterd",
			Name:      "signatures_total",
			Help:      "Signing tuples signed by the node key.",
		}, []string{"method"}),
		fetchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "symmoracle",
			Subsystem: "marketdata",
			Name:      "fetch_duration_seconds",
			Help:      "Latency of a full snapshot fetch from one venue.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"source"}),
		fetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "symmoracle",
			Subsystem: "marketdata",
			Name:      "fetch_failures_total",
			Help:      "Venue snapshot fetches that failed after retries.",
		}, []string{"source"}),
		throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "symmoracle",
			Subsystem: "attesterd",
			Name:      "throttles_total",
			Help:      "Requests rejected by the HTTP surface before evaluation.",
		}, []string{"reason"}),
	}
}

// MustRegister registers every collector with reg.
func (m *AttesterdMetrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		m.requests,
		m.latency,
		m.rejections,
		m.signatures,
		m.fetchLatency,
		m.fetchFailures,
		m.throttles,
	)
}

// ObserveRequest records one evaluated request. kind is empty on success.
func (m *AttesterdMetrics) ObserveRequest(method, kind string, d time.Duration) {
	if m == nil {
		return
	}
	method = label(method)
	outcome := "success"
	if kind != "" {
		outcome = "error"
		m.rejections.WithLabelValues(method, kind).Inc()
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(d.Seconds())
}

// RecordSignature counts a tuple signed for method.
func (m *AttesterdMetrics) RecordSignature(method string) {
	if m == nil {
		return
	}
	m.signatures.WithLabelValues(label(method)).Inc()
}

// ObserveFetch implements marketdata.Observer.
func (m *AttesterdMetrics) ObserveFetch(source string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	source = label(source)
	m.fetchLatency.WithLabelValues(source).Observe(elapsed.Seconds())
	if err != nil {
		m.fetchFailures.WithLabelValues(source).Inc()
	}
}

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "rate_limit" or "unauthorized".
func (m *AttesterdMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason = strings.TrimSpace(reason); reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}

func label(v string) string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
