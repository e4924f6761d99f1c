package coach

import (
	"context"
	"encoding/binary"
	"errors"
	"log/slog"
	"math"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/priyanshup0046/aura-coach/internal/analysis"
	"github.com/priyanshup0046/aura-coach/internal/audio"
	"github.com/priyanshup0046/aura-coach/internal/session"
	"github.com/priyanshup0046/aura-coach/internal/store"
)

const testSampleRate = 16000

func newTestService(t *testing.T) (*Service, *session.Accumulator) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))

	extractor, err := analysis.NewExtractor(testSampleRate, analysis.PitchConfig{
		MinFrequency: 50,
		MaxFrequency: 400,
		FrameLength:  2048,
		HopLength:    512,
		Threshold:    0.1,
	})
	if err != nil {
		t.Fatalf("failed to create extractor: %v", err)
	}

	sessions := session.NewAccumulator(logger)

	st, err := store.NewFileStore(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	return NewService(logger, extractor, sessions, st, 100), sessions
}

// sineChunk generates a raw little-endian PCM16 chunk
func sineChunk(freq, amplitude float64, n int) []byte {
	data := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(testSampleRate))
		binary.LittleEndian.PutUint16(data[i*2:], uint16(int16(v*32767)))
	}
	return data
}

func TestProcessChunkRejectsUndecodable(t *testing.T) {
	svc, sessions := newTestService(t)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"single byte", []byte{0x01}},
		{"odd length", []byte{0x01, 0x02, 0x03}},
		{"below frame floor", sineChunk(150, 0.05, 40)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := svc.ProcessChunk("s1", tt.data); ok {
				t.Error("expected chunk to be rejected")
			}
		})
	}

	if count := sessions.SessionCount(); count != 0 {
		t.Errorf("rejected chunks must not create sessions, got %d", count)
	}
}

func TestProcessChunkAnalyzesAndAccumulates(t *testing.T) {
	svc, sessions := newTestService(t)

	result, ok := svc.ProcessChunk("s1", sineChunk(150, 0.05, 1600))
	if !ok {
		t.Fatal("expected chunk to be accepted")
	}

	if result.Encoding != "pcm16" {
		t.Errorf("expected pcm16 encoding, got %q", result.Encoding)
	}
	if !result.Accumulated {
		t.Error("expected bound voiced chunk to be accumulated")
	}
	if result.Sample.Tone != analysis.ToneBalanced {
		t.Errorf("expected Balanced tone, got %q", result.Sample.Tone)
	}
	if result.Sample.WPM != 127 {
		t.Errorf("expected wpm 127, got %d", result.Sample.WPM)
	}
	if count := sessions.SessionCount(); count != 1 {
		t.Errorf("expected 1 live session, got %d", count)
	}
}

func TestProcessChunkWAVContainer(t *testing.T) {
	svc, _ := newTestService(t)

	samples := make([]int16, 1600)
	for i := range samples {
		v := 0.05 * math.Sin(2*math.Pi*150*float64(i)/float64(testSampleRate))
		samples[i] = int16(v * 32767)
	}

	wavData, err := audio.EncodeWAV(samples, testSampleRate)
	if err != nil {
		t.Fatalf("failed to encode WAV fixture: %v", err)
	}

	result, ok := svc.ProcessChunk("s1", wavData)
	if !ok {
		t.Fatal("expected WAV chunk to be accepted")
	}
	if result.Encoding != "wav" {
		t.Errorf("expected wav encoding, got %q", result.Encoding)
	}
}

func TestProcessChunkGatedNotAccumulated(t *testing.T) {
	svc, sessions := newTestService(t)

	result, ok := svc.ProcessChunk("s1", sineChunk(150, 0.0005, 1600))
	if !ok {
		t.Fatal("expected near-silent chunk to be accepted")
	}

	if !result.Sample.Gated() {
		t.Fatalf("expected gated sample, got %+v", result.Sample)
	}
	if result.Sample.Tone != analysis.ToneNoise {
		t.Errorf("expected Noise tone, got %q", result.Sample.Tone)
	}
	if result.Sample.WPM != 0 || result.Sample.PitchHz != 0 {
		t.Errorf("gated sample must zero pitch and wpm, got %+v", result.Sample)
	}
	if result.Accumulated {
		t.Error("gated chunks must not be accumulated")
	}
	if count := sessions.SessionCount(); count != 0 {
		t.Errorf("expected no live sessions, got %d", count)
	}
}

func TestProcessChunkUnboundNotAccumulated(t *testing.T) {
	svc, sessions := newTestService(t)

	result, ok := svc.ProcessChunk("", sineChunk(150, 0.05, 1600))
	if !ok {
		t.Fatal("expected chunk to be accepted")
	}

	if result.Accumulated {
		t.Error("chunks without a bound session must not be accumulated")
	}
	if result.Sample.Tone != analysis.ToneBalanced {
		t.Errorf("unbound chunks are still analyzed, got tone %q", result.Sample.Tone)
	}
	if count := sessions.SessionCount(); count != 0 {
		t.Errorf("expected no live sessions, got %d", count)
	}
}

func TestFinalizeSessionGeneratesID(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.FinalizeSession(ctx, map[string]any{"posture": 80.0})
	if err != nil {
		t.Fatalf("finalize failed: %v", err)
	}

	id := res.SessionID
	if !strings.HasPrefix(id, "session_") || len(id) != len("session_")+32 {
		t.Errorf("unexpected generated id %q", id)
	}
	for _, r := range id[len("session_"):] {
		if !strings.ContainsRune("0123456789abcdef", r) {
			t.Errorf("generated id %q contains non-hex rune %q", id, r)
		}
	}

	ts, ok := res.Record["timestamp"].(string)
	if !ok {
		t.Fatalf("expected timestamp in record, got %v", res.Record["timestamp"])
	}
	if _, err := time.Parse(time.RFC3339, ts); err != nil {
		t.Errorf("timestamp %q is not RFC 3339: %v", ts, err)
	}

	// Second finalize must not invent a new record
	if _, err := svc.Report(ctx, id); err != nil {
		t.Errorf("expected report for persisted session: %v", err)
	}
}

func TestFinalizeSessionKeepsCallerID(t *testing.T) {
	svc, _ := newTestService(t)

	res, err := svc.FinalizeSession(context.Background(), map[string]any{
		"session_id": "session_abc",
		"fillers":    3.0,
	})
	if err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	if res.SessionID != "session_abc" {
		t.Errorf("expected caller id to be kept, got %q", res.SessionID)
	}
	if res.Record["fillers"] != 3.0 {
		t.Errorf("expected caller fields in record, got %v", res.Record)
	}
}

func TestFinalizeSessionDrainsAudio(t *testing.T) {
	svc, sessions := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, ok := svc.ProcessChunk("session_abc", sineChunk(150, 0.05, 1600)); !ok {
			t.Fatal("chunk rejected")
		}
	}

	res, err := svc.FinalizeSession(ctx, map[string]any{"session_id": "session_abc"})
	if err != nil {
		t.Fatalf("finalize failed: %v", err)
	}

	if res.AudioSamples != 3 {
		t.Errorf("expected 3 drained samples, got %d", res.AudioSamples)
	}
	merged := res.Record
	if merged["dominant_tone"] != "Balanced" {
		t.Errorf("expected Balanced dominant tone, got %v", merged["dominant_tone"])
	}
	if merged["avg_wpm"] != 127.0 {
		t.Errorf("expected avg_wpm 127, got %v", merged["avg_wpm"])
	}
	avgVolume, ok := merged["avg_volume"].(float64)
	if !ok || avgVolume < 3.0 || avgVolume > 4.0 {
		t.Errorf("expected avg_volume near 3.5, got %v", merged["avg_volume"])
	}
	if _, ok := merged["avg_pitch"]; !ok {
		t.Error("expected avg_pitch in record")
	}

	if count := sessions.SessionCount(); count != 0 {
		t.Errorf("finalize must drain the session buffer, got %d live", count)
	}
}

func TestFinalizeSessionWithoutAudioSkipsAggregates(t *testing.T) {
	svc, _ := newTestService(t)

	res, err := svc.FinalizeSession(context.Background(), map[string]any{
		"session_id": "session_quiet",
		"wpm":        140.0,
	})
	if err != nil {
		t.Fatalf("finalize failed: %v", err)
	}

	if res.AudioSamples != 0 {
		t.Errorf("expected no drained samples, got %d", res.AudioSamples)
	}
	for _, key := range []string{"avg_volume", "avg_pitch", "avg_wpm", "dominant_tone"} {
		if _, present := res.Record[key]; present {
			t.Errorf("expected no %s for a session that never streamed audio", key)
		}
	}
}

func TestFinalizeSessionDrainIsExactlyOnce(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	svc.ProcessChunk("session_abc", sineChunk(150, 0.05, 1600))

	first, err := svc.FinalizeSession(ctx, map[string]any{"session_id": "session_abc"})
	if err != nil {
		t.Fatalf("first finalize failed: %v", err)
	}

	// Second finalize finds no buffered audio; aggregates survive via the merge
	second, err := svc.FinalizeSession(ctx, map[string]any{"session_id": "session_abc", "posture": 75.0})
	if err != nil {
		t.Fatalf("second finalize failed: %v", err)
	}

	if second.AudioSamples != 0 {
		t.Errorf("expected second drain to find nothing, got %d samples", second.AudioSamples)
	}
	if second.Record["avg_wpm"] != first.Record["avg_wpm"] {
		t.Errorf("expected merged aggregates to survive, got %v then %v", first.Record["avg_wpm"], second.Record["avg_wpm"])
	}
	if second.Record["posture"] != 75.0 {
		t.Errorf("expected new caller field, got %v", second.Record["posture"])
	}
}

func TestReportNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Report(context.Background(), "session_missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestReportAfterFinalize(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.FinalizeSession(ctx, map[string]any{
		"session_id": "session_abc",
		"posture":    85.0,
		"fillers":    2.0,
		"wpm":        140.0,
	})
	if err != nil {
		t.Fatalf("finalize failed: %v", err)
	}

	rep, err := svc.Report(ctx, res.SessionID)
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}

	if !strings.Contains(rep.Summary, "140 WPM") {
		t.Errorf("expected raw wpm fallback in summary, got %q", rep.Summary)
	}
	if len(rep.Recommendations) == 0 || rep.Recommendations[0] != "Pace was balanced and natural." {
		t.Errorf("unexpected recommendations %v", rep.Recommendations)
	}
}
