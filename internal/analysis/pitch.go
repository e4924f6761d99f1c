package analysis

import (
	"fmt"
	"math"
)

// PitchConfig contains the fundamental-frequency estimator parameters
type PitchConfig struct {
	MinFrequency float64 // Hz, lower edge of the search band
	MaxFrequency float64 // Hz, upper edge of the search band
	FrameLength  int     // samples per analysis frame
	HopLength    int     // samples between frame starts
	Threshold    float64 // aperiodicity threshold for candidate acceptance
}

// PitchEstimator implements the YIN fundamental-frequency estimator
// restricted to a fixed frequency band. Each analysis frame yields one
// pitch candidate; Estimate averages the per-frame track.
type PitchEstimator struct {
	sampleRate int
	minFreq    float64
	maxFreq    float64
	frameLen   int
	hopLen     int
	threshold  float64

	tauMin int // lag bound from maxFreq
	tauMax int // lag bound from minFreq
}

// NewPitchEstimator creates a YIN estimator for the given sample rate
func NewPitchEstimator(sampleRate int, cfg PitchConfig) (*PitchEstimator, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	if cfg.MinFrequency <= 0 || cfg.MaxFrequency <= cfg.MinFrequency {
		return nil, fmt.Errorf("frequency band [%f, %f] is invalid", cfg.MinFrequency, cfg.MaxFrequency)
	}

	if cfg.MaxFrequency > float64(sampleRate)/2 {
		return nil, fmt.Errorf("max frequency %f exceeds Nyquist for %d Hz", cfg.MaxFrequency, sampleRate)
	}

	if cfg.FrameLength <= 0 || cfg.HopLength <= 0 {
		return nil, fmt.Errorf("frame_length and hop_length must be positive, got %d and %d", cfg.FrameLength, cfg.HopLength)
	}

	if cfg.Threshold <= 0 || cfg.Threshold >= 1 {
		return nil, fmt.Errorf("threshold must be between 0 and 1, got %f", cfg.Threshold)
	}

	return &PitchEstimator{
		sampleRate: sampleRate,
		minFreq:    cfg.MinFrequency,
		maxFreq:    cfg.MaxFrequency,
		frameLen:   cfg.FrameLength,
		hopLen:     cfg.HopLength,
		threshold:  cfg.Threshold,
		tauMin:     int(float64(sampleRate) / cfg.MaxFrequency),
		tauMax:     int(math.Ceil(float64(sampleRate) / cfg.MinFrequency)),
	}, nil
}

// Estimate returns the arithmetic mean of the per-frame pitch track.
// Inputs yielding no usable frame (too short for the lag search, constant
// or zero-energy signal) return an error; the caller decides the fallback.
func (p *PitchEstimator) Estimate(samples []float32) (float64, error) {
	track := p.Track(samples)
	if len(track) == 0 {
		return 0, fmt.Errorf("no pitch candidates in %d samples", len(samples))
	}

	var sum float64
	for _, f0 := range track {
		sum += f0
	}
	return sum / float64(len(track)), nil
}

// Track computes one pitch candidate per analysis frame. Frames where the
// lag search is degenerate are skipped. Inputs shorter than one frame are
// analyzed as a single truncated frame.
func (p *PitchEstimator) Track(samples []float32) []float64 {
	if len(samples) == 0 {
		return nil
	}

	frameLen := p.frameLen
	if len(samples) < frameLen {
		frameLen = len(samples)
	}

	var track []float64
	for start := 0; start+frameLen <= len(samples); start += p.hopLen {
		if f0, ok := p.estimateFrame(samples[start : start+frameLen]); ok {
			track = append(track, f0)
		}
		if frameLen == len(samples) {
			break
		}
	}
	return track
}

// estimateFrame runs YIN on a single frame: difference function over the lag
// band, cumulative mean normalization, absolute-threshold candidate pick with
// a parabolic refinement of the winning lag.
func (p *PitchEstimator) estimateFrame(frame []float32) (float64, bool) {
	w := len(frame) / 2
	tauMax := p.tauMax
	if tauMax > w {
		tauMax = w
	}
	if tauMax <= p.tauMin+1 {
		return 0, false
	}

	d := make([]float64, tauMax+1)
	for tau := 1; tau <= tauMax; tau++ {
		var sum float64
		for i := 0; i < w; i++ {
			diff := float64(frame[i]) - float64(frame[i+tau])
			sum += diff * diff
		}
		d[tau] = sum
	}

	cmnd := make([]float64, tauMax+1)
	cmnd[0] = 1
	var running float64
	for tau := 1; tau <= tauMax; tau++ {
		running += d[tau]
		if running == 0 {
			cmnd[tau] = 1
		} else {
			cmnd[tau] = d[tau] * float64(tau) / running
		}
	}
	if running == 0 {
		// Constant signal, no periodicity evidence at any lag
		return 0, false
	}

	tau := -1
	for t := p.tauMin; t <= tauMax; t++ {
		if cmnd[t] < p.threshold {
			for t+1 <= tauMax && cmnd[t+1] < cmnd[t] {
				t++
			}
			tau = t
			break
		}
	}
	if tau < 0 {
		// No dip under the threshold; take the best candidate in band
		tau = p.tauMin
		for t := p.tauMin + 1; t <= tauMax; t++ {
			if cmnd[t] < cmnd[tau] {
				tau = t
			}
		}
	}

	lag := float64(tau)
	if tau > 1 && tau < tauMax {
		s0, s1, s2 := cmnd[tau-1], cmnd[tau], cmnd[tau+1]
		denom := s0 - 2*s1 + s2
		if denom > 0 {
			shift := (s0 - s2) / (2 * denom)
			if shift > -1 && shift < 1 {
				lag += shift
			}
		}
	}

	f0 := float64(p.sampleRate) / lag
	if f0 < p.minFreq {
		f0 = p.minFreq
	}
	if f0 > p.maxFreq {
		f0 = p.maxFreq
	}
	return f0, true
}
