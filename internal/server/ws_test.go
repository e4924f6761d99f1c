package server

import (
	"encoding/binary"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialAudioStream(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/audio-stream"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })

	return conn
}

func readReply(t *testing.T, conn *websocket.Conn) featureReply {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var reply featureReply
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("failed to read feature reply: %v", err)
	}
	return reply
}

// pcmChunk generates a raw little-endian PCM16 sine chunk at 16 kHz
func pcmChunk(freq, amplitude float64, n int) []byte {
	data := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := amplitude * math.Sin(2*math.Pi*freq*float64(i)/16000.0)
		binary.LittleEndian.PutUint16(data[i*2:], uint16(int16(v*32767)))
	}
	return data
}

func TestAudioStreamEcho(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dialAudioStream(t, ts)

	if err := conn.WriteMessage(websocket.BinaryMessage, pcmChunk(150, 0.05, 1600)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	reply := readReply(t, conn)

	if reply.Tone != "Balanced" {
		t.Errorf("expected Balanced tone, got %q", reply.Tone)
	}
	if reply.WPM != 127 {
		t.Errorf("expected wpm 127, got %d", reply.WPM)
	}
	if reply.Volume < 3.0 || reply.Volume > 4.0 {
		t.Errorf("expected volume near 3.5, got %f", reply.Volume)
	}
	if reply.Pitch < 140 || reply.Pitch > 160 {
		t.Errorf("expected pitch near 150 Hz, got %f", reply.Pitch)
	}
}

func TestAudioStreamGatedHeartbeat(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dialAudioStream(t, ts)

	if err := conn.WriteMessage(websocket.BinaryMessage, pcmChunk(150, 0.0005, 1600)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	reply := readReply(t, conn)

	if reply.Tone != "Noise" {
		t.Errorf("expected Noise tone, got %q", reply.Tone)
	}
	if reply.Pitch != 0 || reply.WPM != 0 {
		t.Errorf("expected zeroed pitch and wpm, got %+v", reply)
	}
}

func TestAudioStreamRejectedChunkEchoesNothing(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dialAudioStream(t, ts)

	// Odd length defeats both decode strategies; no reply may be sent
	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02, 0x03}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	// The next valid chunk's reply must be the first message we receive
	if err := conn.WriteMessage(websocket.BinaryMessage, pcmChunk(150, 0.05, 1600)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	reply := readReply(t, conn)
	if reply.WPM != 127 {
		t.Errorf("expected the valid chunk's reply first, got %+v", reply)
	}
}

func TestAudioStreamIgnoresJunkText(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dialAudioStream(t, ts)

	for _, junk := range []string{"not json", `[1, 2]`, `{"session_id": ""}`, `{"other": "x"}`} {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(junk)); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}

	// Connection survives junk control messages
	if err := conn.WriteMessage(websocket.BinaryMessage, pcmChunk(150, 0.05, 1600)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	reply := readReply(t, conn)
	if reply.Tone != "Balanced" {
		t.Errorf("expected analysis to continue, got %+v", reply)
	}
}

func TestAudioStreamBindAndFinalize(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dialAudioStream(t, ts)

	if err := conn.WriteJSON(map[string]string{"session_id": "session_ws"}); err != nil {
		t.Fatalf("bind failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := conn.WriteMessage(websocket.BinaryMessage, pcmChunk(150, 0.05, 1600)); err != nil {
			t.Fatalf("write failed: %v", err)
		}
		readReply(t, conn)
	}

	// The session shows up as live until finalized
	resp, err := http.Get(ts.URL + "/api/sessions")
	if err != nil {
		t.Fatalf("sessions request failed: %v", err)
	}
	var live struct {
		TotalSessions int `json:"total_sessions"`
		Sessions      []struct {
			SessionID string `json:"session_id"`
			Samples   int    `json:"samples"`
		} `json:"sessions"`
	}
	decodeBody(t, resp, &live)
	if live.TotalSessions != 1 || live.Sessions[0].SessionID != "session_ws" || live.Sessions[0].Samples != 2 {
		t.Fatalf("unexpected live sessions %+v", live)
	}

	resp, err = http.Post(ts.URL+"/api/session/log", "application/json",
		strings.NewReader(`{"session_id": "session_ws", "posture": 85}`))
	if err != nil {
		t.Fatalf("log request failed: %v", err)
	}
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/api/report/session_ws")
	if err != nil {
		t.Fatalf("report request failed: %v", err)
	}
	var reportResp struct {
		Report struct {
			Summary         string   `json:"summary"`
			Recommendations []string `json:"recommendations"`
		} `json:"report"`
	}
	decodeBody(t, resp, &reportResp)

	if !strings.Contains(reportResp.Report.Summary, "127 WPM") {
		t.Errorf("expected aggregated wpm in summary, got %q", reportResp.Report.Summary)
	}
	if len(reportResp.Report.Recommendations) == 0 ||
		reportResp.Report.Recommendations[0] != "Pace was balanced and natural." {
		t.Errorf("unexpected recommendations %v", reportResp.Report.Recommendations)
	}

	// Finalize drained the buffer
	resp, err = http.Get(ts.URL + "/api/sessions")
	if err != nil {
		t.Fatalf("sessions request failed: %v", err)
	}
	decodeBody(t, resp, &live)
	if live.TotalSessions != 0 {
		t.Errorf("expected finalize to drain the session, got %d live", live.TotalSessions)
	}
}

func TestAudioStreamUnboundChunksNotAccumulated(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dialAudioStream(t, ts)

	if err := conn.WriteMessage(websocket.BinaryMessage, pcmChunk(150, 0.05, 1600)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	readReply(t, conn)

	resp, err := http.Get(ts.URL + "/api/sessions")
	if err != nil {
		t.Fatalf("sessions request failed: %v", err)
	}
	var live struct {
		TotalSessions int `json:"total_sessions"`
	}
	decodeBody(t, resp, &live)
	if live.TotalSessions != 0 {
		t.Errorf("unbound chunks must not accumulate, got %d live sessions", live.TotalSessions)
	}
}

func TestAudioStreamRebind(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dialAudioStream(t, ts)

	for _, id := range []string{"session_a", "session_b"} {
		if err := conn.WriteJSON(map[string]string{"session_id": id}); err != nil {
			t.Fatalf("bind failed: %v", err)
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, pcmChunk(150, 0.05, 1600)); err != nil {
			t.Fatalf("write failed: %v", err)
		}
		readReply(t, conn)
	}

	resp, err := http.Get(ts.URL + "/api/sessions")
	if err != nil {
		t.Fatalf("sessions request failed: %v", err)
	}
	var live struct {
		TotalSessions int `json:"total_sessions"`
		Sessions      []struct {
			SessionID string `json:"session_id"`
			Samples   int    `json:"samples"`
		} `json:"sessions"`
	}
	decodeBody(t, resp, &live)

	if live.TotalSessions != 2 {
		t.Fatalf("expected 2 live sessions after re-bind, got %+v", live)
	}
	for _, s := range live.Sessions {
		if s.Samples != 1 {
			t.Errorf("expected 1 sample per session, got %+v", s)
		}
	}
}

func TestAudioStreamConnectionCounters(t *testing.T) {
	h, ts := newTestServer(t)
	conn := dialAudioStream(t, ts)

	if err := conn.WriteMessage(websocket.BinaryMessage, pcmChunk(150, 0.05, 1600)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	readReply(t, conn)

	stats := h.GetStreamStats()
	if stats.ActiveConnections != 1 {
		t.Errorf("expected 1 active connection, got %d", stats.ActiveConnections)
	}
	if stats.ChunksReceived != 1 || stats.ChunksProcessed != 1 {
		t.Errorf("unexpected chunk counters %+v", stats)
	}
}
