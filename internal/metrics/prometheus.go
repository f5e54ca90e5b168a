package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the audio engine
type Metrics struct {
	// Mixer metrics
	ActiveStreams   prometheus.Gauge
	StreamsAdded    prometheus.Counter
	StreamsRejected *prometheus.CounterVec
	StreamsRemoved  *prometheus.CounterVec
	FramesMixed     prometheus.Counter
	FramesDropped   prometheus.Counter
	TickDuration    prometheus.Histogram

	// Player metrics
	PlaybacksStarted  prometheus.Counter
	PlaybacksStopped  prometheus.Counter
	TransportRestarts prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Mixer metrics
		ActiveStreams: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "audio_active_streams",
			Help: "Current number of streams registered on the mixer",
		}),
		StreamsAdded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "audio_streams_added_total",
			Help: "Total number of streams registered on the mixer",
		}),
		StreamsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "audio_streams_rejected_total",
			Help: "Total number of stream registrations rejected by the mixer",
		}, []string{"reason"}),
		StreamsRemoved: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "audio_streams_removed_total",
			Help: "Total number of streams removed from the mixer",
		}, []string{"reason"}),
		FramesMixed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "audio_frames_mixed_total",
			Help: "Total number of output frames emitted by the mixer",
		}),
		FramesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "audio_frames_dropped_total",
			Help: "Total number of output frames dropped because the consumer lagged",
		}),
		TickDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "audio_tick_duration_seconds",
			Help:    "Time spent mixing one output frame",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 12), // 10µs to ~40ms
		}),

		// Player metrics
		PlaybacksStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "audio_playbacks_started_total",
			Help: "Total number of logical playbacks started",
		}),
		PlaybacksStopped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "audio_playbacks_stopped_total",
			Help: "Total number of logical playbacks stopped explicitly",
		}),
		TransportRestarts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "audio_transport_restarts_total",
			Help: "Total number of transport re-attachments after transient idle transitions",
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "audio_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "audio_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "audio_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// SetActiveStreams sets the current number of mixer streams
func (m *Metrics) SetActiveStreams(count int) {
	if m == nil {
		return
	}
	m.ActiveStreams.Set(float64(count))
}

// RecordStreamAdded increments the streams added counter
func (m *Metrics) RecordStreamAdded() {
	if m == nil {
		return
	}
	m.StreamsAdded.Inc()
}

// RecordStreamRejected increments the rejected counter for a reason
// ("capacity" or "duplicate_id")
func (m *Metrics) RecordStreamRejected(reason string) {
	if m == nil {
		return
	}
	m.StreamsRejected.WithLabelValues(reason).Inc()
}

// RecordStreamRemoved increments the removed counter for a reason
// ("completed", "forced" or "source_error")
func (m *Metrics) RecordStreamRemoved(reason string) {
	if m == nil {
		return
	}
	m.StreamsRemoved.WithLabelValues(reason).Inc()
}

// RecordFrameMixed records one emitted frame and its mixing time
func (m *Metrics) RecordFrameMixed(durationSeconds float64) {
	if m == nil {
		return
	}
	m.FramesMixed.Inc()
	m.TickDuration.Observe(durationSeconds)
}

// RecordFrameDropped increments the dropped frames counter
func (m *Metrics) RecordFrameDropped() {
	if m == nil {
		return
	}
	m.FramesDropped.Inc()
}

// RecordPlaybackStarted increments the playbacks started counter
func (m *Metrics) RecordPlaybackStarted() {
	if m == nil {
		return
	}
	m.PlaybacksStarted.Inc()
}

// RecordPlaybackStopped increments the playbacks stopped counter
func (m *Metrics) RecordPlaybackStopped() {
	if m == nil {
		return
	}
	m.PlaybacksStopped.Inc()
}

// RecordTransportRestart increments the transport restart counter
func (m *Metrics) RecordTransportRestart() {
	if m == nil {
		return
	}
	m.TransportRestarts.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
