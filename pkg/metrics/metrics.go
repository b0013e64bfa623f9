// Package metrics exposes handshake counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ZentaChain/graphshake/pkg/session"
)

const namespace = "graphshake"

// Metrics holds the handshake collectors and the registry serving them.
type Metrics struct {
	Registry *prometheus.Registry

	// HandshakesTotal counts finished sessions by role and outcome.
	HandshakesTotal *prometheus.CounterVec
	// HandshakeDuration observes session wall time by role.
	HandshakeDuration *prometheus.HistogramVec
	// BytesTotal counts frame bytes by direction.
	BytesTotal *prometheus.CounterVec
	// LastOutcome is 1 for the outcome of the latest session per role.
	LastOutcome *prometheus.GaugeVec
}

// New creates the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		HandshakesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshakes_total",
			Help:      "Number of finished handshakes",
		}, []string{"role", "outcome"}),
		HandshakeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handshake_duration_seconds",
			Help:      "Wall time of a handshake from Run to close",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"role"}),
		BytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frame_bytes_total",
			Help:      "Frame bytes moved by handshakes",
		}, []string{"direction"}),
		LastOutcome: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_outcome",
			Help:      "Outcome of the most recent handshake per role",
		}, []string{"role", "outcome"}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HandshakesTotal,
		m.HandshakeDuration,
		m.BytesTotal,
		m.LastOutcome,
	)
	return m
}

var outcomes = []session.Outcome{
	session.OutcomeVerified,
	session.OutcomeRejected,
	session.OutcomeCompleted,
	session.OutcomeFailed,
}

// SessionFinished updates every collector from r.
func (m *Metrics) SessionFinished(r *session.Result) {
	role := r.Role.String()

	m.HandshakesTotal.WithLabelValues(role, r.Outcome.String()).Inc()
	m.HandshakeDuration.WithLabelValues(role).Observe(r.Duration.Seconds())
	m.BytesTotal.WithLabelValues("sent").Add(float64(r.BytesSent))
	m.BytesTotal.WithLabelValues("received").Add(float64(r.BytesReceived))

	for _, o := range outcomes {
		v := 0.0
		if o == r.Outcome {
			v = 1
		}
		m.LastOutcome.WithLabelValues(role, o.String()).Set(v)
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
