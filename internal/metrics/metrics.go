// Package metrics provides Prometheus metrics for d4ft transfers.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "d4ft"

// Metrics holds every counter, gauge, and histogram d4ft records.
type Metrics struct {
	SessionsTotal    *prometheus.CounterVec
	HandshakeErrors  *prometheus.CounterVec
	HandshakeLatency prometheus.Histogram

	BytesSent        *prometheus.CounterVec
	BytesReceived    *prometheus.CounterVec
	FramesSent       prometheus.Counter
	FramesReceived   prometheus.Counter

	FilesOffered   prometheus.Counter
	FilesAllowed   prometheus.Counter
	FilesDiscarded prometheus.Counter

	TransfersActive prometheus.Gauge
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Default returns the process-wide Metrics instance, constructing it
// against the default Prometheus registry on first use.
func Default() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = NewMetrics()
	})
	return defaultMetrics
}

// NewMetrics creates a Metrics instance registered against the default
// Prometheus registerer.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates a Metrics instance registered against
// reg, so tests can use a private registry instead of the global one.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SessionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total sessions established, by role",
		}, []string{"role"}),
		HandshakeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshake_errors_total",
			Help:      "Total handshake failures, by error kind",
		}, []string{"kind"}),
		HandshakeLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handshake_latency_seconds",
			Help:      "Histogram of handshake completion latency",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		BytesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Total plaintext bytes sent, by payload type",
		}, []string{"type"}),
		BytesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Total plaintext bytes received, by payload type",
		}, []string{"type"}),
		FramesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Total payloads sent (one per text message or file body, not per encrypted frame)",
		}),
		FramesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Total payloads received (one per text message or file body, not per encrypted frame)",
		}),
		FilesOffered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_offered_total",
			Help:      "Total files listed in a sender's manifest",
		}),
		FilesAllowed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_allowed_total",
			Help:      "Total files accepted by a receiver's allowlist",
		}),
		FilesDiscarded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_discarded_total",
			Help:      "Total file bodies read and discarded as not allowlisted",
		}),
		TransfersActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transfers_active",
			Help:      "Number of transfers currently in flight",
		}),
	}
}

// RecordSession records a completed handshake for role ("sender" or
// "receiver").
func (m *Metrics) RecordSession(role string) {
	m.SessionsTotal.WithLabelValues(role).Inc()
}

// RecordHandshakeError records a handshake failure tagged with kind
// (a d4ferr.Kind's string form).
func (m *Metrics) RecordHandshakeError(kind string) {
	m.HandshakeErrors.WithLabelValues(kind).Inc()
}

// RecordHandshake records a successful handshake's latency.
func (m *Metrics) RecordHandshake(latencySeconds float64) {
	m.HandshakeLatency.Observe(latencySeconds)
}

// RecordBytesSent records bytes sent for payloadType ("text" or
// "file") and counts the call as one payload in FramesSent.
func (m *Metrics) RecordBytesSent(payloadType string, n int) {
	m.BytesSent.WithLabelValues(payloadType).Add(float64(n))
	m.FramesSent.Inc()
}

// RecordBytesReceived records bytes received for payloadType and counts
// the call as one payload in FramesReceived.
func (m *Metrics) RecordBytesReceived(payloadType string, n int) {
	m.BytesReceived.WithLabelValues(payloadType).Add(float64(n))
	m.FramesReceived.Inc()
}

// RecordFilesOffered records the size of a sender's manifest.
func (m *Metrics) RecordFilesOffered(count int) {
	m.FilesOffered.Add(float64(count))
}

// RecordFileAllowed records one file accepted by the receiver's
// allowlist.
func (m *Metrics) RecordFileAllowed() {
	m.FilesAllowed.Inc()
}

// RecordFileDiscarded records one file body read and discarded.
func (m *Metrics) RecordFileDiscarded() {
	m.FilesDiscarded.Inc()
}

// TransferStarted increments the in-flight transfer gauge; callers
// must pair it with TransferFinished.
func (m *Metrics) TransferStarted() {
	m.TransfersActive.Inc()
}

// TransferFinished decrements the in-flight transfer gauge.
func (m *Metrics) TransferFinished() {
	m.TransfersActive.Dec()
}
