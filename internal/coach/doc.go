// Package coach is the application service for the speech-analysis pipeline.
//
// It wires the frame decoder, the feature extractor, the session accumulator
// and the record store into three operations: process one streamed chunk,
// finalize one session, and build one report. Transport handlers stay thin by
// delegating here.
package coach
