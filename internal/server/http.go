package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/priyanshup0046/aura-coach/internal/coach"
	"github.com/priyanshup0046/aura-coach/internal/config"
	"github.com/priyanshup0046/aura-coach/internal/metrics"
	"github.com/priyanshup0046/aura-coach/internal/session"
	"github.com/priyanshup0046/aura-coach/internal/store"
)

const serviceVersion = "1.0.0"

// maxLogBodyBytes bounds the JSON body of a session log request
const maxLogBodyBytes = 1 << 20

// HTTPServer exposes the REST API, the audio-stream WebSocket and the
// monitoring endpoints.
type HTTPServer struct {
	server  *http.Server
	logger  *slog.Logger
	config  *config.Config
	coach   *coach.Service
	metrics *metrics.Metrics

	// Server state
	startTime time.Time

	// Stream counters, exposed by /stats alongside Prometheus
	connActive      atomic.Int64
	connTotal       atomic.Uint64
	chunksReceived  atomic.Uint64
	chunksProcessed atomic.Uint64
	chunksRejected  atomic.Uint64
	chunksGated     atomic.Uint64
}

// StreamStats is a snapshot of the audio-stream counters
type StreamStats struct {
	ActiveConnections int64  `json:"active_connections"`
	TotalConnections  uint64 `json:"total_connections"`
	ChunksReceived    uint64 `json:"chunks_received"`
	ChunksProcessed   uint64 `json:"chunks_processed"`
	ChunksRejected    uint64 `json:"chunks_rejected"`
	ChunksGated       uint64 `json:"chunks_gated"`
}

// NewHTTPServer creates the API server
func NewHTTPServer(cfg config.ServerConfig, logger *slog.Logger,
	appConfig *config.Config, svc *coach.Service, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		coach:     svc,
		metrics:   m,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Streaming ingress; registered bare because the upgrade needs the
	// raw ResponseWriter for connection hijacking
	mux.HandleFunc("/api/audio-stream", h.handleAudioStream)

	// Session API
	mux.HandleFunc("/api/session/log", h.withMetrics("/api/session/log", h.withCORS(h.handleLogSession)))
	mux.HandleFunc("/api/report/", h.withMetrics("/api/report/{id}", h.withCORS(h.handleReport)))
	mux.HandleFunc("/api/sessions", h.withMetrics("/api/sessions", h.withCORS(h.handleSessions)))

	// Monitoring endpoints
	mux.HandleFunc("/health", h.withMetrics("/health", h.withCORS(h.handleHealth)))
	mux.HandleFunc("/config", h.withMetrics("/config", h.withCORS(h.handleConfig)))
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.withCORS(h.handleStats)))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("/metrics", promhttp.Handler())

	// Root banner
	mux.HandleFunc("/", h.withMetrics("/", h.withCORS(h.handleRoot)))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// withCORS adds permissive CORS headers so browser front-ends can call the
// API from any origin, and answers preflight requests.
func (h *HTTPServer) withCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next(w, r)
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server. Hijacked WebSocket connections are
// not force-closed; their read loops end when the clients disconnect.
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// GetStreamStats returns a snapshot of the audio-stream counters
func (h *HTTPServer) GetStreamStats() StreamStats {
	return StreamStats{
		ActiveConnections: h.connActive.Load(),
		TotalConnections:  h.connTotal.Load(),
		ChunksReceived:    h.chunksReceived.Load(),
		ChunksProcessed:   h.chunksProcessed.Load(),
		ChunksRejected:    h.chunksRejected.Load(),
		ChunksGated:       h.chunksGated.Load(),
	}
}

func (h *HTTPServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("Failed to encode response", slog.String("error", err.Error()))
	}
}

func (h *HTTPServer) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// handleRoot implements the / banner endpoint
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"message": "Aura Coach backend running with real-time persistent speech analysis",
	})
}

// handleLogSession implements POST /api/session/log
func (h *HTTPServer) handleLogSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var fields map[string]any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLogBodyBytes)).Decode(&fields); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if fields == nil {
		fields = map[string]any{}
	}

	res, err := h.coach.FinalizeSession(r.Context(), fields)
	if err != nil {
		h.logger.Error("Failed to finalize session",
			slog.String("session_id", res.SessionID),
			slog.String("error", err.Error()),
		)
		h.writeError(w, http.StatusInternalServerError, "Failed to persist session")
		return
	}

	h.metrics.RecordSessionFinalized(res.AudioSamples)
	h.metrics.SetActiveSessions(h.coach.ActiveSessionCount())

	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":     "ok",
		"session_id": res.SessionID,
	})
}

// handleReport implements GET /api/report/{session_id}
func (h *HTTPServer) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := strings.TrimPrefix(r.URL.Path, "/api/report/")
	if sessionID == "" {
		h.writeError(w, http.StatusBadRequest, "Session ID required")
		return
	}
	if strings.Contains(sessionID, "/") {
		h.writeError(w, http.StatusBadRequest, "Invalid session ID")
		return
	}

	rep, err := h.coach.Report(r.Context(), sessionID)
	if errors.Is(err, store.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to build report",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		h.writeError(w, http.StatusInternalServerError, "Failed to load session record")
		return
	}

	h.metrics.RecordReportGenerated()

	h.writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"report":     rep,
	})
}

// handleSessions implements GET /api/sessions, listing sessions that hold
// buffered audio features but have not been finalized yet
func (h *HTTPServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	infos := h.coach.ActiveSessions()
	if infos == nil {
		infos = []session.SessionInfo{}
	}
	h.metrics.SetActiveSessions(len(infos))

	h.writeJSON(w, http.StatusOK, map[string]any{
		"total_sessions": len(infos),
		"timestamp":      time.Now().UTC(),
		"sessions":       infos,
	})
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(h.startTime)
	streamStats := h.GetStreamStats()

	health := map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    uptime.String(),
		"service": map[string]any{
			"name":    "aura-coach",
			"version": serviceVersion,
		},
		"components": map[string]any{
			"audio_stream": map[string]any{
				"status":             "running",
				"active_connections": streamStats.ActiveConnections,
				"chunks_received":    streamStats.ChunksReceived,
				"chunks_rejected":    streamStats.ChunksRejected,
			},
			"session_accumulator": map[string]any{
				"status":          "running",
				"active_sessions": h.coach.ActiveSessionCount(),
			},
			"record_store": map[string]any{
				"status": "running",
				"driver": h.config.Storage.Driver,
			},
		},
	}

	h.writeJSON(w, http.StatusOK, health)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sanitizedConfig := map[string]any{
		"server": map[string]any{
			"port":            h.config.Server.Port,
			"address":         h.config.Server.Address,
			"max_chunk_bytes": h.config.Server.MaxChunkBytes,
		},
		"audio": map[string]any{
			"sample_rate":       h.config.Audio.SampleRate,
			"min_frame_samples": h.config.Audio.MinFrameSamples,
		},
		"pitch": map[string]any{
			"min_frequency": h.config.Pitch.MinFrequency,
			"max_frequency": h.config.Pitch.MaxFrequency,
			"frame_length":  h.config.Pitch.FrameLength,
			"hop_length":    h.config.Pitch.HopLength,
			"threshold":     h.config.Pitch.Threshold,
		},
		"storage": map[string]any{
			"driver": h.config.Storage.Driver,
		},
		"logging": map[string]any{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	h.writeJSON(w, http.StatusOK, sanitizedConfig)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(h.startTime)

	stats := map[string]any{
		"uptime":    uptime.String(),
		"timestamp": time.Now().UTC(),
		"stream":    h.GetStreamStats(),
		"sessions": map[string]any{
			"active_count": h.coach.ActiveSessionCount(),
		},
		"storage": map[string]any{
			"driver": h.config.Storage.Driver,
		},
	}

	h.writeJSON(w, http.StatusOK, stats)
}
