// Package audio provides decoding of inbound audio chunks into normalized
// mono float frames. Chunks are interpreted through an ordered chain of
// strategies (WAV container first, then raw little-endian PCM-16); chunks
// that match no strategy or carry too few samples are dropped without error.
package audio
