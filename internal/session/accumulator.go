package session

import (
	"hash/fnv"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/priyanshup0046/aura-coach/internal/analysis"
)

// toneNeutral is the dominant tone reported for sessions with no tone history
const toneNeutral = "Neutral"

// shardCount spreads session buffers over independent locks so appends for
// different sessions rarely contend
const shardCount = 32

// Accumulator is the process-wide feature store keyed by session id. Each
// session holds four parallel sequences (volume, pitch, tone, wpm), one entry
// per non-gated sample. Buffers are created implicitly on first append and
// removed exactly once when drained for finalization.
type Accumulator struct {
	logger *slog.Logger
	shards [shardCount]shard
}

type shard struct {
	mu      sync.Mutex
	buffers map[string]*buffer
}

type buffer struct {
	volumes     []float64
	pitches     []float64
	tones       []analysis.Tone
	wpms        []int
	firstAppend time.Time
	lastAppend  time.Time
}

// Aggregate is the reduced statistics of one drained session buffer
type Aggregate struct {
	AvgVolume    float64 `json:"avg_volume"`
	AvgPitch     float64 `json:"avg_pitch"`
	AvgWPM       float64 `json:"avg_wpm"`
	DominantTone string  `json:"dominant_tone"`
	Samples      int     `json:"samples"`
}

// SessionInfo is a monitoring snapshot of one live (un-finalized) session
type SessionInfo struct {
	SessionID   string    `json:"session_id"`
	Samples     int       `json:"samples"`
	FirstAppend time.Time `json:"first_append"`
	LastAppend  time.Time `json:"last_append"`
}

// NewAccumulator creates an empty accumulator
func NewAccumulator(logger *slog.Logger) *Accumulator {
	a := &Accumulator{logger: logger}
	for i := range a.shards {
		a.shards[i].buffers = make(map[string]*buffer)
	}
	return a
}

func (a *Accumulator) shardFor(sessionID string) *shard {
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	return &a.shards[h.Sum32()%shardCount]
}

// Append records one feature sample for the session, creating its buffer if
// absent. Safe under concurrent appends for any mix of session ids; an append
// racing a drain of the same id either lands in the drained aggregate or
// becomes the first entry of a fresh buffer, never lost.
func (a *Accumulator) Append(sessionID string, sample analysis.FeatureSample) {
	s := a.shardFor(sessionID)
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	buf, exists := s.buffers[sessionID]
	if !exists {
		buf = &buffer{firstAppend: now}
		s.buffers[sessionID] = buf
	}

	buf.volumes = append(buf.volumes, sample.Volume)
	buf.pitches = append(buf.pitches, sample.PitchHz)
	buf.tones = append(buf.tones, sample.Tone)
	buf.wpms = append(buf.wpms, sample.WPM)
	buf.lastAppend = now
}

// DrainAndAggregate atomically removes the session's buffer and reduces it to
// means plus the dominant tone. A missing session returns the zero aggregate
// (0.0 means, Neutral tone) and false without mutating anything; finalizing a
// session with no live audio history is not an error.
func (a *Accumulator) DrainAndAggregate(sessionID string) (Aggregate, bool) {
	s := a.shardFor(sessionID)

	s.mu.Lock()
	buf, exists := s.buffers[sessionID]
	if exists {
		delete(s.buffers, sessionID)
	}
	s.mu.Unlock()

	if !exists {
		return Aggregate{DominantTone: toneNeutral}, false
	}

	agg := Aggregate{
		AvgVolume:    meanFloat(buf.volumes),
		AvgPitch:     meanFloat(buf.pitches),
		AvgWPM:       meanInt(buf.wpms),
		DominantTone: dominantTone(buf.tones),
		Samples:      len(buf.volumes),
	}

	a.logger.Debug("Session buffer drained",
		slog.String("session_id", sessionID),
		slog.Int("samples", len(buf.volumes)),
		slog.String("dominant_tone", agg.DominantTone),
	)

	return agg, true
}

// SessionCount returns the number of live session buffers
func (a *Accumulator) SessionCount() int {
	count := 0
	for i := range a.shards {
		s := &a.shards[i]
		s.mu.Lock()
		count += len(s.buffers)
		s.mu.Unlock()
	}
	return count
}

// Sessions returns monitoring snapshots of all live sessions, ordered by id
func (a *Accumulator) Sessions() []SessionInfo {
	var infos []SessionInfo
	for i := range a.shards {
		s := &a.shards[i]
		s.mu.Lock()
		for id, buf := range s.buffers {
			infos = append(infos, SessionInfo{
				SessionID:   id,
				Samples:     len(buf.volumes),
				FirstAppend: buf.firstAppend,
				LastAppend:  buf.lastAppend,
			})
		}
		s.mu.Unlock()
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].SessionID < infos[j].SessionID })
	return infos
}

// dominantTone returns the statistical mode of the tone sequence. Ties break
// to the value encountered first in the sequence's original order.
func dominantTone(tones []analysis.Tone) string {
	if len(tones) == 0 {
		return toneNeutral
	}

	counts := make(map[analysis.Tone]int, 4)
	for _, t := range tones {
		counts[t]++
	}

	max := 0
	for _, c := range counts {
		if c > max {
			max = c
		}
	}

	for _, t := range tones {
		if counts[t] == max {
			return string(t)
		}
	}
	return string(tones[0])
}

func meanFloat(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func meanInt(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += float64(v)
	}
	return sum / float64(len(values))
}
