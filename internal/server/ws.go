package server

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/priyanshup0046/aura-coach/internal/analysis"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browser front-ends connect from any origin; the API carries no
	// credentials
	CheckOrigin: func(r *http.Request) bool { return true },
}

// featureReply is the wire form of one echoed feature sample. Volume and
// pitch are rounded for display only; the accumulator keeps full precision.
type featureReply struct {
	Volume float64 `json:"volume"`
	Pitch  float64 `json:"pitch"`
	Tone   string  `json:"tone"`
	WPM    int     `json:"wpm"`
}

func newFeatureReply(s analysis.FeatureSample) featureReply {
	return featureReply{
		Volume: math.Round(s.Volume*100) / 100,
		Pitch:  math.Round(s.PitchHz*10) / 10,
		Tone:   string(s.Tone),
		WPM:    s.WPM,
	}
}

// handleAudioStream implements the /api/audio-stream WebSocket.
//
// Text messages of the form {"session_id": "..."} bind (or re-bind) the
// connection to a session; all other text is ignored. Each binary message is
// one audio chunk: accepted chunks are echoed back as a feature sample,
// undecodable chunks are dropped silently. Chunks arriving before a bind are
// analyzed and echoed but never accumulated.
func (h *HTTPServer) handleAudioStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response
		h.logger.Warn("WebSocket upgrade failed",
			slog.String("remote", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
		return
	}
	defer conn.Close()

	h.connActive.Add(1)
	h.connTotal.Add(1)
	h.metrics.RecordConnectionOpened()
	defer func() {
		h.connActive.Add(-1)
		h.metrics.RecordConnectionClosed()
	}()

	if h.config.Server.MaxChunkBytes > 0 {
		conn.SetReadLimit(h.config.Server.MaxChunkBytes)
	}

	h.logger.Info("Audio stream connected",
		slog.String("remote", conn.RemoteAddr().String()),
	)

	sessionID := ""
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived) {
				h.logger.Warn("Audio stream read error",
					slog.String("remote", conn.RemoteAddr().String()),
					slog.String("session_id", sessionID),
					slog.String("error", err.Error()),
				)
			} else {
				h.logger.Info("Audio stream disconnected",
					slog.String("remote", conn.RemoteAddr().String()),
					slog.String("session_id", sessionID),
				)
			}
			return
		}

		switch msgType {
		case websocket.TextMessage:
			if id, ok := parseSessionBind(data); ok {
				sessionID = id
				h.logger.Info("Audio stream bound to session",
					slog.String("remote", conn.RemoteAddr().String()),
					slog.String("session_id", sessionID),
				)
			}

		case websocket.BinaryMessage:
			h.chunksReceived.Add(1)
			h.metrics.RecordChunkReceived(len(data))

			start := time.Now()
			result, ok := h.coach.ProcessChunk(sessionID, data)
			if !ok {
				h.chunksRejected.Add(1)
				h.metrics.RecordChunkRejected()
				continue // rejected chunks echo nothing
			}

			if result.Sample.Gated() {
				h.chunksGated.Add(1)
				h.metrics.RecordChunkGated()
			} else {
				h.chunksProcessed.Add(1)
				h.metrics.RecordChunkProcessed(result.Encoding, time.Since(start).Seconds())
				if result.Sample.PitchHz == 0 {
					h.metrics.RecordPitchFallback()
				}
				if result.Accumulated {
					h.metrics.SetActiveSessions(h.coach.ActiveSessionCount())
				}
			}

			if err := conn.WriteJSON(newFeatureReply(result.Sample)); err != nil {
				h.logger.Warn("Failed to echo feature sample",
					slog.String("remote", conn.RemoteAddr().String()),
					slog.String("session_id", sessionID),
					slog.String("error", err.Error()),
				)
				return
			}
		}
	}
}

// parseSessionBind extracts a non-empty session_id from a text control
// message. Non-JSON text and JSON without a session_id string are ignored.
func parseSessionBind(data []byte) (string, bool) {
	var control struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(data, &control); err != nil {
		return "", false
	}
	if control.SessionID == "" {
		return "", false
	}
	return control.SessionID, true
}
