package domain

import "time"

// Scale names a scale and its type, e.g. "A Minor" / "pentatonic".
type Scale struct {
	Name string
	Type string
}

// DisplayPlan is the human-facing practice plan.
type DisplayPlan struct {
	FocusArea          string   `json:"focus_area"`
	CurrentScore       int      `json:"current_score"`
	SuggestedScale     string   `json:"suggested_scale"`
	SuggestedScaleType string   `json:"suggested_scale_type"`
	Exercises          []string `json:"exercises"`
	SessionTarget      string   `json:"session_target"`
}

// StoredPlan is the canonical plan record written on confirmation.
type StoredPlan struct {
	ScaleName   string   `json:"scale_name"`
	ScaleType   string   `json:"scale_type"`
	FocusArea   Area     `json:"focus_area"`
	Reasoning   string   `json:"reasoning"`
	Strictness  float64  `json:"strictness"`
	Sensitivity float64  `json:"sensitivity"`
	GeneratedAt string   `json:"generated_at"`
	Exercises   []string `json:"exercises"`
}

// PendingPlan is a generated plan awaiting confirmation in a thread.
type PendingPlan struct {
	PlanID    string
	ThreadID  string
	UserID    string
	Display   DisplayPlan
	Storage   StoredPlan
	CreatedAt time.Time
}
