// Package metrics exposes Prometheus instrumentation for the translation client.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics for the client.
type Metrics struct {
	registry *prometheus.Registry

	// Envelope pipeline
	ChunksEnqueued   prometheus.Counter
	ChunksEvicted    prometheus.Counter
	ChunksDiscarded  prometheus.Counter
	ChunksSkipped    prometheus.Counter
	QueueSize        prometheus.Gauge
	Subscribers      prometheus.Gauge
	EnvelopesEmitted *prometheus.CounterVec

	// Session
	SessionStarts       *prometheus.CounterVec
	ActiveSessions      prometheus.Gauge
	ICEGatheringSeconds prometheus.Histogram
	DataChannelMessages *prometheus.CounterVec
	MalformedMessages   prometheus.Counter
	Muted               prometheus.Gauge

	// Turn-taking
	TurnTransitions *prometheus.CounterVec
	LanguageUpdates *prometheus.CounterVec

	// Bridge
	BridgeClients       prometheus.Gauge
	BridgeDroppedEvents prometheus.Counter
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates all metrics and registers them on reg.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		ChunksEnqueued: f.NewCounter(prometheus.CounterOpts{
			Name: "rtc_capture_chunks_enqueued_total",
			Help: "Capture chunks accepted by the envelope queue",
		}),
		ChunksEvicted: f.NewCounter(prometheus.CounterOpts{
			Name: "rtc_capture_chunks_evicted_total",
			Help: "Capture chunks dropped because the envelope queue was full",
		}),
		ChunksDiscarded: f.NewCounter(prometheus.CounterOpts{
			Name: "rtc_capture_chunks_discarded_total",
			Help: "Capture chunks discarded because nobody was subscribed",
		}),
		ChunksSkipped: f.NewCounter(prometheus.CounterOpts{
			Name: "rtc_capture_chunks_skipped_total",
			Help: "Capture chunks that could not be normalized or were empty",
		}),
		QueueSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "rtc_envelope_queue_size",
			Help: "Current number of chunks waiting in the envelope queue",
		}),
		Subscribers: f.NewGauge(prometheus.GaugeOpts{
			Name: "rtc_envelope_subscribers",
			Help: "Current number of envelope event subscribers",
		}),
		EnvelopesEmitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rtc_envelopes_emitted_total",
			Help: "Envelope events delivered to sinks",
		}, []string{"event"}),

		SessionStarts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rtc_session_starts_total",
			Help: "Session start attempts by outcome",
		}, []string{"outcome"}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "rtc_sessions_active",
			Help: "Whether a peer session is established",
		}),
		ICEGatheringSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "rtc_ice_gathering_seconds",
			Help:    "Time spent waiting for ICE gathering to complete",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		DataChannelMessages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rtc_datachannel_messages_total",
			Help: "Data channel records by type",
		}, []string{"type"}),
		MalformedMessages: f.NewCounter(prometheus.CounterOpts{
			Name: "rtc_datachannel_malformed_total",
			Help: "Data channel records that failed to parse",
		}),
		Muted: f.NewGauge(prometheus.GaugeOpts{
			Name: "rtc_microphone_muted",
			Help: "1 while the capture track is muted",
		}),

		TurnTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rtc_turn_transitions_total",
			Help: "Conversation state transitions",
		}, []string{"from", "to"}),
		LanguageUpdates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rtc_language_updates_total",
			Help: "set_language requests by outcome",
		}, []string{"outcome"}),

		BridgeClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "rtc_bridge_clients",
			Help: "Connected presentation clients",
		}),
		BridgeDroppedEvents: f.NewCounter(prometheus.CounterOpts{
			Name: "rtc_bridge_dropped_events_total",
			Help: "Events dropped because a client send queue was full",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rtc_bridge_http_requests_total",
			Help: "Bridge HTTP requests",
		}, []string{"method", "endpoint", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rtc_bridge_http_request_duration_seconds",
			Help:    "Bridge HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// NewDefault creates metrics on a fresh registry that also carries the
// process and Go runtime collectors.
func NewDefault() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return New(reg)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordSessionStart counts a start attempt outcome.
func (m *Metrics) RecordSessionStart(outcome string) {
	m.SessionStarts.WithLabelValues(outcome).Inc()
}

// RecordTransition counts a conversation state change.
func (m *Metrics) RecordTransition(from, to string) {
	m.TurnTransitions.WithLabelValues(from, to).Inc()
}

// RecordHTTPRequest records one bridge request.
func (m *Metrics) RecordHTTPRequest(method, endpoint, status string, seconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(seconds)
}

// SetMuted mirrors the microphone mute flag.
func (m *Metrics) SetMuted(muted bool) {
	if muted {
		m.Muted.Set(1)

		return
	}
	m.Muted.Set(0)
}
