package audio

import (
	"math"
	"testing"
)

// sineSamples generates an int16 sine tone
func sineSamples(freq float64, amplitude float64, sampleRate, n int) []int16 {
	samples := make([]int16, n)
	for i := range samples {
		t := float64(i) / float64(sampleRate)
		samples[i] = int16(amplitude * 32767.0 * math.Sin(2*math.Pi*freq*t))
	}
	return samples
}

func TestEncodeWAV(t *testing.T) {
	sampleRate := 16000
	samples := sineSamples(440.0, 0.5, sampleRate, 1600)

	wavData, err := EncodeWAV(samples, sampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	expectedSize := wavHeaderSize + len(samples)*2
	if len(wavData) != expectedSize {
		t.Errorf("Expected WAV size %d, got %d", expectedSize, len(wavData))
	}

	if err := ValidateWAV(wavData); err != nil {
		t.Errorf("Generated WAV is invalid: %v", err)
	}
}

func TestDecodeWAVRoundTrip(t *testing.T) {
	originalSamples := []int16{100, -200, 300, -400, 500}
	sampleRate := 16000

	wavData, err := EncodeWAV(originalSamples, sampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	decoded, decodedRate, err := DecodeWAV(wavData)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}

	if decodedRate != sampleRate {
		t.Errorf("Expected sample rate %d, got %d", sampleRate, decodedRate)
	}

	if len(decoded) != len(originalSamples) {
		t.Fatalf("Expected %d samples, got %d", len(originalSamples), len(decoded))
	}

	for i, original := range originalSamples {
		want := float32(original) / 32768.0
		if decoded[i] != want {
			t.Errorf("Sample %d: expected %f, got %f", i, want, decoded[i])
		}
	}
}

func TestDecodeWAVTruncatedData(t *testing.T) {
	samples := sineSamples(200.0, 0.3, 16000, 400)
	wavData, err := EncodeWAV(samples, 16000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	// Cut half the payload; the declared data size now exceeds the bytes present
	cut := wavData[:wavHeaderSize+400]
	decoded, _, err := DecodeWAV(cut)
	if err != nil {
		t.Fatalf("DecodeWAV on truncated data failed: %v", err)
	}
	if len(decoded) != 200 {
		t.Errorf("Expected 200 samples from truncated payload, got %d", len(decoded))
	}
}

func TestDecodeWAVRejectsStereo(t *testing.T) {
	samples := sineSamples(200.0, 0.3, 16000, 200)
	wavData, err := EncodeWAV(samples, 16000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	// Patch NumChannels to 2
	wavData[22] = 2
	if _, _, err := DecodeWAV(wavData); err == nil {
		t.Error("Expected error for stereo WAV")
	}
}

func TestEncodeWAVEmpty(t *testing.T) {
	if _, err := EncodeWAV([]int16{}, 16000); err == nil {
		t.Error("Expected error for empty samples")
	}
}

func TestEncodeWAVInvalidSampleRate(t *testing.T) {
	samples := []int16{100, 200, 300}
	if _, err := EncodeWAV(samples, 0); err == nil {
		t.Error("Expected error for zero sample rate")
	}
	if _, err := EncodeWAV(samples, -1000); err == nil {
		t.Error("Expected error for negative sample rate")
	}
}

func TestValidateWAV(t *testing.T) {
	if err := ValidateWAV([]byte{1, 2, 3}); err == nil {
		t.Error("Expected error for too short WAV data")
	}

	invalidWAV := make([]byte, 50)
	copy(invalidWAV[0:4], []byte("FAKE"))
	if err := ValidateWAV(invalidWAV); err == nil {
		t.Error("Expected error for invalid RIFF header")
	}
}
