// Package domain contains core domain types for the FretCoach coach server.
package domain

import (
	"math"
	"time"
)

// Area is one of the three scored practice dimensions.
type Area string

const (
	AreaPitch  Area = "pitch"
	AreaScale  Area = "scale"
	AreaTiming Area = "timing"
)

// Areas lists the scored dimensions in tie-break order.
var Areas = []Area{AreaPitch, AreaScale, AreaTiming}

// Label returns the human-facing name of the area.
func (a Area) Label() string {
	switch a {
	case AreaPitch:
		return "Pitch Accuracy"
	case AreaScale:
		return "Scale Conformity"
	case AreaTiming:
		return "Timing Stability"
	default:
		return string(a)
	}
}

// PracticeSession is a single recorded practice session.
type PracticeSession struct {
	SessionID          string     `json:"session_id"`
	UserID             string     `json:"user_id"`
	StartTimestamp     time.Time  `json:"start_timestamp"`
	EndTimestamp       *time.Time `json:"end_timestamp,omitempty"`
	PitchAccuracy      float64    `json:"pitch_accuracy"`
	ScaleConformity    float64    `json:"scale_conformity"`
	TimingStability    float64    `json:"timing_stability"`
	ScaleChosen        string     `json:"scale_chosen"`
	ScaleType          string     `json:"scale_type"`
	Sensitivity        float64    `json:"sensitivity"`
	Strictness         float64    `json:"strictness"`
	TotalNotesPlayed   int        `json:"total_notes_played"`
	CorrectNotesPlayed int        `json:"correct_notes_played"`
	BadNotesPlayed     int        `json:"bad_notes_played"`
	TotalInscaleNotes  int        `json:"total_inscale_notes"`
	DurationSeconds    float64    `json:"duration_seconds"`
	AmbientLightOption bool       `json:"ambient_light_option"`
}

// Score returns the session's score for an area.
func (s *PracticeSession) Score(a Area) float64 {
	switch a {
	case AreaScale:
		return s.ScaleConformity
	case AreaTiming:
		return s.TimingStability
	default:
		return s.PitchAccuracy
	}
}

// ScaleStat aggregates a user's sessions for one scale.
type ScaleStat struct {
	ScaleName string  `json:"scale_chosen"`
	ScaleType string  `json:"scale_type"`
	Count     int     `json:"count"`
	AvgPitch  float64 `json:"avg_pitch"`
	AvgScale  float64 `json:"avg_scale"`
	AvgTiming float64 `json:"avg_timing"`
}

// Aggregates holds totals and averages over a set of sessions.
type Aggregates struct {
	TotalSessions      int      `json:"total_sessions"`
	TotalPracticeTime  float64  `json:"total_practice_time"`
	AvgPitchAccuracy   float64  `json:"avg_pitch_accuracy"`
	AvgScaleConformity float64  `json:"avg_scale_conformity"`
	AvgTimingStability float64  `json:"avg_timing_stability"`
	TotalNotes         int      `json:"total_notes"`
	TotalCorrect       int      `json:"total_correct"`
	ScalesPracticed    []string `json:"scales_practiced"`
}

// Percent renders a [0,1] score as a whole percentage.
// Halves round to even, so 0.625 renders as 62 and 0.875 as 88.
func Percent(v float64) int {
	return int(math.RoundToEven(v * 100))
}
