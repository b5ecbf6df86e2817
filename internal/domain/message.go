package domain

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a role-tagged chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChartType identifies the auxiliary payload attached to a reply.
type ChartType string

const (
	ChartPerformanceTrend ChartType = "performance_trend"
	ChartComparison       ChartType = "comparison"
	ChartPracticePlan     ChartType = "practice_plan"
)

// ChartData is the auxiliary payload returned alongside a reply.
type ChartData struct {
	Type   ChartType `json:"type"`
	Data   any       `json:"data"`
	Metric string    `json:"metric,omitempty"`
	PlanID string    `json:"plan_id,omitempty"`
}

// TrendPoint is one session on the performance trend chart.
type TrendPoint struct {
	Session         int    `json:"session"`
	Date            string `json:"date"`
	PitchAccuracy   int    `json:"pitch_accuracy"`
	ScaleConformity int    `json:"scale_conformity"`
	TimingStability int    `json:"timing_stability"`
	Scale           string `json:"scale"`
}

// ScoreSet holds the three area scores as percentages.
type ScoreSet struct {
	Pitch  int `json:"pitch"`
	Scale  int `json:"scale"`
	Timing int `json:"timing"`
}

// Comparison contrasts the latest session with the user's averages.
type Comparison struct {
	Latest  ScoreSet `json:"latest"`
	Average ScoreSet `json:"average"`
}
