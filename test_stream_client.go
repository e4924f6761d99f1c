package main

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

type FeatureEcho struct {
	Volume float64 `json:"volume"`
	Pitch  float64 `json:"pitch"`
	Tone   string  `json:"tone"`
	WPM    int     `json:"wpm"`
}

// sineChunk produces one PCM16 mono chunk of a pure tone
func sineChunk(freq, amplitude float64, samples, sampleRate int) []byte {
	buf := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(v*32767)))
	}
	return buf
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Service base URL")
	sessionID := flag.String("session", fmt.Sprintf("session_test_%d", time.Now().Unix()), "Session ID to bind")
	chunks := flag.Int("chunks", 10, "Number of audio chunks to stream")
	flag.Parse()

	wsURL := "ws" + (*baseURL)[len("http"):] + "/api/audio-stream"

	log.Printf("🚀 Stream Test Client starting")
	log.Printf("📡 WebSocket: %s", wsURL)
	log.Printf("🎯 Session: %s", *sessionID)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		log.Fatal("Failed to connect:", err)
	}
	defer conn.Close()

	// Bind the session before streaming
	bind := map[string]string{"session_id": *sessionID}
	if err := conn.WriteJSON(bind); err != nil {
		log.Fatal("Failed to bind session:", err)
	}

	// Stream tone chunks and print the echoed features
	chunk := sineChunk(220.0, 0.05, 1600, 16000)
	for i := 0; i < *chunks; i++ {
		if err := conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
			log.Fatal("Failed to send chunk:", err)
		}

		var echo FeatureEcho
		if err := conn.ReadJSON(&echo); err != nil {
			log.Fatal("Failed to read echo:", err)
		}
		log.Printf("🎤 chunk %2d: volume=%.2f pitch=%.1f tone=%s wpm=%d",
			i+1, echo.Volume, echo.Pitch, echo.Tone, echo.WPM)

		time.Sleep(100 * time.Millisecond)
	}
	conn.Close()

	// Finalize the session with some client-side metadata
	payload, _ := json.Marshal(map[string]any{
		"session_id": *sessionID,
		"posture":    88.0,
		"fillers":    2,
		"eyeContact": "Good",
		"emotion":    "Happy",
	})
	resp, err := http.Post(*baseURL+"/api/session/log", "application/json", bytes.NewReader(payload))
	if err != nil {
		log.Fatal("Failed to log session:", err)
	}
	resp.Body.Close()
	log.Printf("✅ Session logged: %s", resp.Status)

	// Fetch the coaching report
	resp, err = http.Get(*baseURL + "/api/report/" + *sessionID)
	if err != nil {
		log.Fatal("Failed to fetch report:", err)
	}
	defer resp.Body.Close()

	var report map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		log.Fatal("Failed to decode report:", err)
	}
	pretty, _ := json.MarshalIndent(report, "", "  ")
	log.Printf("📊 Report:\n%s", pretty)
}
