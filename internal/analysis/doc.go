// Package analysis computes per-chunk vocal features: RMS loudness, a YIN
// fundamental-frequency estimate restricted to the human-voice band, a coarse
// tone class derived from fixed loudness bands, and a loudness-based
// speaking-rate proxy. A noise gate suppresses feature extraction for
// near-silent frames.
package analysis
