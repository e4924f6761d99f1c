package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the speech-analysis service
type Metrics struct {
	// WebSocket connection metrics
	ConnectionsActive prometheus.Gauge
	ConnectionsTotal  prometheus.Counter

	// Audio chunk metrics
	ChunksReceived     prometheus.Counter
	ChunksProcessed    *prometheus.CounterVec
	ChunksRejected     prometheus.Counter
	ChunksGated        prometheus.Counter
	ChunkSize          prometheus.Histogram
	ExtractionDuration prometheus.Histogram
	PitchFallbacks     prometheus.Counter

	// Session metrics
	ActiveSessions    prometheus.Gauge
	SessionsFinalized prometheus.Counter
	SessionSamples    prometheus.Histogram

	// Report metrics
	ReportsGenerated prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// WebSocket connection metrics
		ConnectionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "aura_ws_connections_active",
			Help: "Current number of open audio-stream WebSocket connections",
		}),
		ConnectionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "aura_ws_connections_total",
			Help: "Total number of audio-stream WebSocket connections accepted",
		}),

		// Audio chunk metrics
		ChunksReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "aura_chunks_received_total",
			Help: "Total number of binary audio chunks received",
		}),
		ChunksProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "aura_chunks_processed_total",
			Help: "Total number of audio chunks successfully decoded and analyzed",
		}, []string{"encoding"}),
		ChunksRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "aura_chunks_rejected_total",
			Help: "Total number of audio chunks rejected by every decode strategy",
		}),
		ChunksGated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "aura_chunks_gated_total",
			Help: "Total number of audio chunks below the noise gate",
		}),
		ChunkSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "aura_chunk_size_bytes",
			Help:    "Size of received audio chunks in bytes",
			Buckets: prometheus.ExponentialBuckets(256, 2, 12), // 256B to ~512KB
		}),
		ExtractionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "aura_extraction_duration_seconds",
			Help:    "Time spent in feature extraction per chunk",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10), // 1ms to ~1s
		}),
		PitchFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "aura_pitch_fallbacks_total",
			Help: "Total number of chunks where pitch estimation fell back to 0.0",
		}),

		// Session metrics
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "aura_active_sessions",
			Help: "Current number of sessions holding un-finalized audio features",
		}),
		SessionsFinalized: promauto.NewCounter(prometheus.CounterOpts{
			Name: "aura_sessions_finalized_total",
			Help: "Total number of session log requests persisted",
		}),
		SessionSamples: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "aura_session_samples",
			Help:    "Accumulated feature samples per finalized session",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1 to ~2048 samples
		}),

		// Report metrics
		ReportsGenerated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "aura_reports_generated_total",
			Help: "Total number of session reports synthesized",
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "aura_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aura_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "aura_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordConnectionOpened tracks one accepted WebSocket connection
func (m *Metrics) RecordConnectionOpened() {
	m.ConnectionsTotal.Inc()
	m.ConnectionsActive.Inc()
}

// RecordConnectionClosed tracks one closed WebSocket connection
func (m *Metrics) RecordConnectionClosed() {
	m.ConnectionsActive.Dec()
}

// RecordChunkReceived counts one binary chunk and its size
func (m *Metrics) RecordChunkReceived(sizeBytes int) {
	m.ChunksReceived.Inc()
	m.ChunkSize.Observe(float64(sizeBytes))
}

// RecordChunkProcessed counts one analyzed chunk by decode encoding
func (m *Metrics) RecordChunkProcessed(encoding string, extractionSeconds float64) {
	m.ChunksProcessed.WithLabelValues(encoding).Inc()
	m.ExtractionDuration.Observe(extractionSeconds)
}

// RecordChunkRejected counts one undecodable chunk
func (m *Metrics) RecordChunkRejected() {
	m.ChunksRejected.Inc()
}

// RecordChunkGated counts one chunk silenced by the noise gate
func (m *Metrics) RecordChunkGated() {
	m.ChunksGated.Inc()
}

// RecordPitchFallback counts one chunk whose pitch estimate fell back to 0.0
func (m *Metrics) RecordPitchFallback() {
	m.PitchFallbacks.Inc()
}

// SetActiveSessions sets the current number of un-finalized sessions
func (m *Metrics) SetActiveSessions(count int) {
	m.ActiveSessions.Set(float64(count))
}

// RecordSessionFinalized counts one persisted session and its drained samples
func (m *Metrics) RecordSessionFinalized(samples int) {
	m.SessionsFinalized.Inc()
	if samples > 0 {
		m.SessionSamples.Observe(float64(samples))
	}
}

// RecordReportGenerated counts one synthesized report
func (m *Metrics) RecordReportGenerated() {
	m.ReportsGenerated.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
