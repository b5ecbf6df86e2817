package plan

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/fretcoach/coach-server/internal/domain"
	"github.com/google/uuid"
)

const (
	// WeakScaleThreshold is the average pitch score below which a practiced
	// scale is suggested for more work.
	WeakScaleThreshold = 0.8

	defaultScaleName = "C Major"
	defaultScaleType = "natural"
	sessionTarget    = "20-30 minutes"

	defaultStrictness  = 0.5
	defaultSensitivity = 0.5
)

var exercises = map[domain.Area][]string{
	domain.AreaPitch: {
		"Practice slow scales focusing on hitting each note cleanly",
		"Use a tuner while practicing to get immediate feedback",
		"Work on sustaining notes and listening to their quality",
	},
	domain.AreaScale: {
		"Practice the scale patterns slowly before increasing speed",
		"Focus on one scale at a time until it becomes muscle memory",
		"Try playing the scale in different positions on the neck",
	},
	domain.AreaTiming: {
		"Practice with a metronome starting at a slow tempo",
		"Focus on consistent note duration before speed",
		"Try rhythm exercises with varying note values",
	},
}

// Exercises returns the fixed exercise list for an area.
func Exercises(a domain.Area) []string {
	ex, ok := exercises[a]
	if !ok {
		ex = exercises[domain.AreaPitch]
	}
	out := make([]string, len(ex))
	copy(out, ex)
	return out
}

// Generator builds practice plans and registers them as pending.
type Generator struct {
	registry *Registry
	now      func() time.Time
	newID    func() string
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithGeneratorClock overrides the generation timestamp source.
func WithGeneratorClock(now func() time.Time) GeneratorOption {
	return func(g *Generator) { g.now = now }
}

// WithIDSource overrides plan ID generation.
func WithIDSource(newID func() string) GeneratorOption {
	return func(g *Generator) { g.newID = newID }
}

// NewGenerator creates a generator that registers plans into reg.
func NewGenerator(reg *Registry, opts ...GeneratorOption) *Generator {
	g := &Generator{
		registry: reg,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate builds a plan for the snapshot's weakest area and registers it for
// the thread, replacing any plan already pending there. A detected scale with
// a non-empty name overrides the suggestion from practice history.
func (g *Generator) Generate(snap domain.PracticeSnapshot, detected domain.Scale, threadID, userID string) (*domain.PendingPlan, domain.DisplayPlan) {
	focus := snap.WeakestArea
	if focus == "" {
		focus = domain.AreaPitch
	}
	score := domain.Percent(snap.Average(focus))
	scale := suggestScale(snap.PracticedScales, detected)
	now := g.now()

	display := domain.DisplayPlan{
		FocusArea:          focus.Label(),
		CurrentScore:       score,
		SuggestedScale:     scale.Name,
		SuggestedScaleType: scale.Type,
		Exercises:          Exercises(focus),
		SessionTarget:      sessionTarget,
	}

	pending := &domain.PendingPlan{
		PlanID:   g.newID(),
		ThreadID: threadID,
		UserID:   userID,
		Display:  display,
		Storage: domain.StoredPlan{
			ScaleName:   scale.Name,
			ScaleType:   scale.Type,
			FocusArea:   focus,
			Reasoning:   fmt.Sprintf("Based on your practice data, %s needs the most work at %d%%.", focus.Label(), score),
			Strictness:  defaultStrictness,
			Sensitivity: defaultSensitivity,
			GeneratedAt: now.Format(time.RFC3339),
			Exercises:   Exercises(focus),
		},
		CreatedAt: now,
	}

	if evicted := g.registry.Put(threadID, pending); evicted > 0 {
		slog.Warn("Pending plan capacity reached, evicted oldest plans", "evicted", evicted, "thread_id", threadID)
	}
	return pending, display
}

func suggestScale(practiced []domain.ScaleStat, detected domain.Scale) domain.Scale {
	if detected.Name != "" {
		if detected.Type == "" {
			detected.Type = defaultScaleType
		}
		return detected
	}
	for _, s := range practiced {
		if s.AvgPitch < WeakScaleThreshold {
			t := s.ScaleType
			if t == "" {
				t = defaultScaleType
			}
			return domain.Scale{Name: s.ScaleName, Type: t}
		}
	}
	return domain.Scale{Name: defaultScaleName, Type: defaultScaleType}
}
