package analysis

import (
	"fmt"
	"math"

	"github.com/priyanshup0046/aura-coach/internal/audio"
)

// Tone is the coarse loudness class assigned to one frame
type Tone string

const (
	ToneNoise     Tone = "Noise"
	ToneCalm      Tone = "Calm"
	ToneBalanced  Tone = "Balanced"
	ToneEnergetic Tone = "Energetic"
)

// Loudness bands for the noise gate and tone classification. Tuned
// constants over normalized RMS, not learned values.
const (
	noiseGateRMS   = 0.001
	calmMaxRMS     = 0.02
	balancedMaxRMS = 0.05
)

// FeatureSample is one chunk's computed result. Volume and PitchHz are kept
// at full precision; transports round for display, aggregation does not.
type FeatureSample struct {
	Volume  float64
	PitchHz float64
	Tone    Tone
	WPM     int
}

// Gated reports whether the sample was produced by the noise gate.
// Gated samples are echoed to the sender but never accumulated.
func (s FeatureSample) Gated() bool {
	return s.Tone == ToneNoise
}

// Extractor computes per-frame vocal features. It is stateless; Extract is
// a pure function of the frame.
type Extractor struct {
	sampleRate int
	pitch      *PitchEstimator
}

// NewExtractor creates a feature extractor for the given sample rate
func NewExtractor(sampleRate int, pitchCfg PitchConfig) (*Extractor, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	estimator, err := NewPitchEstimator(sampleRate, pitchCfg)
	if err != nil {
		return nil, fmt.Errorf("pitch estimator: %w", err)
	}

	return &Extractor{
		sampleRate: sampleRate,
		pitch:      estimator,
	}, nil
}

// Extract computes loudness, pitch, tone class and the speaking-rate estimate
// for one decoded frame. Frames under the noise gate short-circuit to a zeroed
// sample so near-silence cannot seed pitch or tone values into a session
// aggregate. Pitch estimator failures fall back to 0.0.
func (e *Extractor) Extract(frame *audio.Frame) FeatureSample {
	rms := audio.RMS(frame.Samples)
	volume := 100 * rms

	if rms < noiseGateRMS {
		return FeatureSample{Volume: volume, PitchHz: 0.0, Tone: ToneNoise, WPM: 0}
	}

	pitch, err := e.pitch.Estimate(frame.Samples)
	if err != nil {
		pitch = 0.0
	}

	return FeatureSample{
		Volume:  volume,
		PitchHz: pitch,
		Tone:    classifyTone(rms),
		WPM:     estimateWPM(rms),
	}
}

// classifyTone maps a non-gated RMS value onto the three loudness bands.
// The bands partition [gate, +inf) with no overlap.
func classifyTone(rms float64) Tone {
	switch {
	case rms < calmMaxRMS:
		return ToneCalm
	case rms < balancedMaxRMS:
		return ToneBalanced
	default:
		return ToneEnergetic
	}
}

// estimateWPM derives a words-per-minute proxy from loudness. Louder speech
// is assumed faster; this stands in for true rate-of-speech measurement.
func estimateWPM(rms float64) int {
	return 120 + int(math.Round(rms*200))
}
