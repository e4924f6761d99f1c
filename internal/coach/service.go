package coach

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/priyanshup0046/aura-coach/internal/analysis"
	"github.com/priyanshup0046/aura-coach/internal/audio"
	"github.com/priyanshup0046/aura-coach/internal/report"
	"github.com/priyanshup0046/aura-coach/internal/session"
	"github.com/priyanshup0046/aura-coach/internal/store"
)

// Service binds the analysis pipeline together: decode, extract, accumulate,
// finalize, report. Transports call into it; it owns no sockets itself.
type Service struct {
	logger          *slog.Logger
	extractor       *analysis.Extractor
	sessions        *session.Accumulator
	store           store.Store
	minFrameSamples int
}

// ChunkResult carries the outcome of one processed audio chunk
type ChunkResult struct {
	Sample      analysis.FeatureSample
	Encoding    string // decode strategy that accepted the chunk
	Accumulated bool
}

// NewService creates the application service. minFrameSamples is the decode
// acceptance floor from the audio configuration.
func NewService(logger *slog.Logger, extractor *analysis.Extractor, sessions *session.Accumulator, st store.Store, minFrameSamples int) *Service {
	return &Service{
		logger:          logger,
		extractor:       extractor,
		sessions:        sessions,
		store:           st,
		minFrameSamples: minFrameSamples,
	}
}

// ProcessChunk runs one audio chunk through decode and feature extraction.
// The sample is appended to sessionID's buffer unless the chunk was gated as
// noise or the connection has not bound a session yet (sessionID empty).
// ok=false means no decode strategy accepted the chunk; callers echo nothing
// for rejected chunks.
func (s *Service) ProcessChunk(sessionID string, data []byte) (ChunkResult, bool) {
	frame, ok := audio.Decode(data, s.minFrameSamples)
	if !ok {
		s.logger.Debug("Chunk rejected by decoder",
			slog.String("session_id", sessionID),
			slog.Int("bytes", len(data)),
		)
		return ChunkResult{}, false
	}

	sample := s.extractor.Extract(frame)

	result := ChunkResult{
		Sample:   sample,
		Encoding: frame.Encoding,
	}

	if sample.Gated() {
		s.logger.Debug("Chunk gated as noise",
			slog.String("session_id", sessionID),
			slog.Float64("volume", sample.Volume),
		)
		return result, true
	}

	if sessionID != "" {
		s.sessions.Append(sessionID, sample)
		result.Accumulated = true
	}

	s.logger.Debug("Chunk analyzed",
		slog.String("session_id", sessionID),
		slog.String("encoding", frame.Encoding),
		slog.Int("samples", len(frame.Samples)),
		slog.Float64("volume", sample.Volume),
		slog.Float64("pitch", sample.PitchHz),
		slog.String("tone", string(sample.Tone)),
		slog.Int("wpm", sample.WPM),
		slog.Bool("accumulated", result.Accumulated),
	)

	return result, true
}

// FinalizeResult reports one persisted session
type FinalizeResult struct {
	SessionID    string
	Record       store.Record
	AudioSamples int // drained feature samples, 0 when none were buffered
}

// FinalizeSession stamps and persists one session record. The id comes from
// the session_id field when present and non-empty, otherwise a fresh one is
// generated. Buffered audio features for the id are drained exactly once and
// written as avg_volume, avg_pitch, avg_wpm and dominant_tone; sessions that
// never streamed audio keep only their caller-provided fields.
func (s *Service) FinalizeSession(ctx context.Context, fields map[string]any) (FinalizeResult, error) {
	sessionID, _ := fields["session_id"].(string)
	if sessionID == "" {
		id := uuid.New()
		sessionID = fmt.Sprintf("session_%x", id[:])
	}

	rec := make(store.Record, len(fields)+5)
	for k, v := range fields {
		rec[k] = v
	}
	rec["timestamp"] = time.Now().UTC().Format(time.RFC3339)

	agg, drained := s.sessions.DrainAndAggregate(sessionID)
	if drained {
		rec["avg_volume"] = agg.AvgVolume
		rec["avg_pitch"] = agg.AvgPitch
		rec["avg_wpm"] = agg.AvgWPM
		rec["dominant_tone"] = agg.DominantTone
	}

	merged, err := s.store.Upsert(ctx, sessionID, rec)
	if err != nil {
		return FinalizeResult{SessionID: sessionID}, fmt.Errorf("failed to persist session %s: %w", sessionID, err)
	}

	s.logger.Info("Session finalized",
		slog.String("session_id", sessionID),
		slog.Bool("audio_aggregated", drained),
		slog.Int("audio_samples", agg.Samples),
		slog.Int("record_fields", len(merged)),
	)

	return FinalizeResult{
		SessionID:    sessionID,
		Record:       merged,
		AudioSamples: agg.Samples,
	}, nil
}

// Report loads a finalized session record and synthesizes its report.
// The error is store.ErrNotFound (wrapped) when the session was never logged.
func (s *Service) Report(ctx context.Context, sessionID string) (report.Report, error) {
	rec, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return report.Report{}, err
	}

	s.logger.Debug("Report generated", slog.String("session_id", sessionID))
	return report.Build(rec), nil
}

// ActiveSessions returns a snapshot of sessions that streamed audio but have
// not been finalized yet.
func (s *Service) ActiveSessions() []session.SessionInfo {
	return s.sessions.Sessions()
}

// ActiveSessionCount returns the number of un-finalized audio sessions
func (s *Service) ActiveSessionCount() int {
	return s.sessions.SessionCount()
}
