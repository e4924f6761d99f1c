package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Frame is one decoded audio chunk: mono float samples in [-1, 1].
// The container's declared sample rate is ignored; the pipeline assumes
// 16 kHz end to end regardless of source encoding.
type Frame struct {
	Samples  []float32
	Encoding string // "wav" or "pcm16"
}

// Duration returns the frame length in seconds at the given sample rate
func (f *Frame) Duration(sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(len(f.Samples)) / float64(sampleRate)
}

// decodeStrategy attempts one interpretation of the raw bytes
type decodeStrategy struct {
	encoding string
	decode   func([]byte) ([]float32, error)
}

// strategies are tried in order; the first success wins
var strategies = []decodeStrategy{
	{encoding: "wav", decode: decodeContainer},
	{encoding: "pcm16", decode: decodeRawPCM16},
}

// Decode turns raw chunk bytes into a Frame. It tries each decode strategy
// in order and rejects frames shorter than minSamples. A false return is a
// drop, not an error: the chunk yields no features and no reply.
func Decode(data []byte, minSamples int) (*Frame, bool) {
	for _, s := range strategies {
		samples, err := s.decode(data)
		if err != nil {
			continue
		}
		if len(samples) < minSamples {
			return nil, false
		}
		return &Frame{Samples: samples, Encoding: s.encoding}, true
	}
	return nil, false
}

func decodeContainer(data []byte) ([]float32, error) {
	samples, _, err := DecodeWAV(data)
	return samples, err
}

// decodeRawPCM16 reinterprets the bytes as signed 16-bit little-endian PCM
// rescaled by 1/32768
func decodeRawPCM16(data []byte) ([]float32, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("pcm16 data too short: %d bytes", len(data))
	}
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("pcm16 data length must be even, got %d", len(data))
	}

	samples := make([]float32, len(data)/2)
	for i := range samples {
		s := int16(binary.LittleEndian.Uint16(data[2*i:]))
		samples[i] = float32(s) / 32768.0
	}
	return samples, nil
}

// RMS computes the root-mean-square amplitude of the samples
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
