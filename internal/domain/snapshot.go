package domain

// PracticeSnapshot is the read-only view of a user's practice history for one turn.
type PracticeSnapshot struct {
	TotalSessions      int
	AvgPitchAccuracy   float64
	AvgScaleConformity float64
	AvgTimingStability float64
	TotalPracticeTime  float64
	RecentSessions     []PracticeSession
	PracticedScales    []ScaleStat
	WeakestArea        Area
}

// NewSnapshot assembles a snapshot and derives its weakest area.
func NewSnapshot(agg Aggregates, recent []PracticeSession, scales []ScaleStat) PracticeSnapshot {
	s := PracticeSnapshot{
		TotalSessions:      agg.TotalSessions,
		AvgPitchAccuracy:   agg.AvgPitchAccuracy,
		AvgScaleConformity: agg.AvgScaleConformity,
		AvgTimingStability: agg.AvgTimingStability,
		TotalPracticeTime:  agg.TotalPracticeTime,
		RecentSessions:     recent,
		PracticedScales:    scales,
	}
	s.WeakestArea = WeakestArea(s.TotalSessions, s.AvgPitchAccuracy, s.AvgScaleConformity, s.AvgTimingStability)
	return s
}

// Average returns the snapshot's average for an area.
func (s PracticeSnapshot) Average(a Area) float64 {
	switch a {
	case AreaScale:
		return s.AvgScaleConformity
	case AreaTiming:
		return s.AvgTimingStability
	default:
		return s.AvgPitchAccuracy
	}
}

// ScaleNames returns up to limit practiced scale names in breakdown order.
func (s PracticeSnapshot) ScaleNames(limit int) []string {
	names := make([]string, 0, limit)
	for _, sc := range s.PracticedScales {
		if len(names) == limit {
			break
		}
		if sc.ScaleName != "" {
			names = append(names, sc.ScaleName)
		}
	}
	return names
}

// WeakestArea returns the lowest-scoring area. Ties resolve to the first
// area in pitch, scale, timing order; with no sessions it is pitch.
func WeakestArea(totalSessions int, pitch, scale, timing float64) Area {
	if totalSessions <= 0 {
		return AreaPitch
	}
	weakest, low := AreaPitch, pitch
	if scale < low {
		weakest, low = AreaScale, scale
	}
	if timing < low {
		weakest = AreaTiming
	}
	return weakest
}
