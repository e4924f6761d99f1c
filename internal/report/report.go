package report

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/priyanshup0046/aura-coach/internal/store"
)

// Report is the synthesized performance feedback for one session
type Report struct {
	Summary         string            `json:"summary"`
	Insights        map[string]string `json:"insights"`
	Recommendations []string          `json:"recommendations"`
}

// Recommendation texts, fixed so identical records always yield identical
// reports.
const (
	recPaceIncrease = "Increase your speaking pace slightly for energy."
	recPaceSlowDown = "Slow down a bit for clarity and emphasis."
	recPaceBalanced = "Pace was balanced and natural."
	recPosture      = "Maintain upright shoulders and balanced head alignment."
	recFillers      = "Reduce filler words such as 'um' and 'like' for smoother delivery."
	recToneEnergy   = "Consider adding energy to sound more engaging."
	recToneControl  = "Good vocal projection, keep it controlled for clarity."
	recWarmth       = "A warmer tone and expression can improve connection."
	recPositive     = "Excellent performance overall! Keep refining consistency."
)

// Build synthesizes a report from a session record snapshot. It is a pure
// function: no stored state, no side effects. Rules apply in a fixed order
// and every applicable recommendation is kept; exactly one pace
// recommendation always fires.
func Build(record store.Record) Report {
	// Pace thresholds compare the raw value; the summary shows it truncated
	wpmValue := numberField(record, 0, "avg_wpm", "wpm")
	wpm := int(wpmValue)
	volume := numberField(record, 0, "avg_volume")
	pitch := numberField(record, 0, "avg_pitch")
	posture := numberField(record, 0, "posture")
	fillers := int(numberField(record, 0, "fillers"))
	tone := stringField(record, "Balanced", "dominant_tone", "tone")
	eye := stringField(record, "Unknown", "eyeContact")
	emotion := stringField(record, "Neutral", "emotion")

	summary := fmt.Sprintf("You spoke at %d WPM with %d filler words. Avg volume: %.1f, pitch: %.1f Hz.",
		wpm, fillers, volume, pitch)

	postureNote := "room for improvement"
	if posture > 80 {
		postureNote = "strong alignment"
	}
	eyeNote := "inconsistent focus"
	if eye == "Good" {
		eyeNote = "engagement"
	}

	insights := map[string]string{
		"posture":     fmt.Sprintf("Your posture score was %g%%, showing %s.", posture, postureNote),
		"eye_contact": fmt.Sprintf("Eye contact was %s, indicating %s.", strings.ToLower(eye), eyeNote),
		"emotion":     fmt.Sprintf("Dominant facial emotion: %s.", emotion),
		"tone":        fmt.Sprintf("Vocal tone was mostly %s.", strings.ToLower(tone)),
	}

	var recs []string

	switch {
	case wpmValue < 120:
		recs = append(recs, recPaceIncrease)
	case wpmValue > 160:
		recs = append(recs, recPaceSlowDown)
	default:
		recs = append(recs, recPaceBalanced)
	}

	if posture < 70 {
		recs = append(recs, recPosture)
	}

	if fillers > 5 {
		recs = append(recs, recFillers)
	}

	switch strings.ToLower(tone) {
	case "calm":
		recs = append(recs, recToneEnergy)
	case "energetic":
		recs = append(recs, recToneControl)
	}

	switch strings.ToLower(emotion) {
	case "sad", "angry", "fearful":
		recs = append(recs, recWarmth)
	}

	// Only the mandatory pace rule fired: close on a positive note
	if len(recs) == 1 {
		recs = append(recs, recPositive)
	}

	return Report{
		Summary:         summary,
		Insights:        insights,
		Recommendations: recs,
	}
}

// numberField returns the first key present with a coercible numeric value.
// Records round-trip through JSON, so numbers arrive as float64; numeric
// strings from callers coerce too.
func numberField(record store.Record, fallback float64, keys ...string) float64 {
	for _, key := range keys {
		v, present := record[key]
		if !present {
			continue
		}
		if f, ok := coerceFloat(v); ok {
			return f
		}
	}
	return fallback
}

// stringField returns the first key present with a non-empty string value
func stringField(record store.Record, fallback string, keys ...string) string {
	for _, key := range keys {
		if v, present := record[key]; present {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return fallback
}

func coerceFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
