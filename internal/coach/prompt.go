package coach

import (
	"fmt"
	"strings"

	"github.com/fretcoach/coach-server/internal/domain"
)

const promptListLimit = 5

const pendingPlanInstruction = `
7. IMPORTANT: There is a pending practice plan. If the user confirms (says yes, ok, save it, sounds good, etc.), acknowledge that the plan has been saved and encourage them to start practicing.
`

// Reply annotations appended after the completion.
const (
	annotationTrend      = "\n\n*I've displayed your performance trend chart below.*"
	annotationComparison = "\n\n*I've shown a comparison of your latest session vs your average below.*"
	annotationPlan       = "\n\n*I've created a practice plan for you below. Click 'Save Plan' to save it.*"
	annotationSaved      = "\n\n✅ *Your practice plan has been saved! You can access it anytime from your practice history.*"
)

// systemPrompt renders the coach persona with the user's practice context.
func systemPrompt(snap domain.PracticeSnapshot, hasPendingPlan bool) string {
	var recent strings.Builder
	for i, s := range snap.RecentSessions {
		if i == promptListLimit {
			break
		}
		date := "N/A"
		if !s.StartTimestamp.IsZero() {
			date = s.StartTimestamp.Format(trendDateLayout)
		}
		scale := s.ScaleChosen
		if scale == "" {
			scale = "Unknown"
		}
		fmt.Fprintf(&recent, "- %s: %s (Pitch: %d%%, Scale: %d%%, Timing: %d%%)\n",
			date, scale,
			domain.Percent(s.PitchAccuracy),
			domain.Percent(s.ScaleConformity),
			domain.Percent(s.TimingStability),
		)
	}
	recentText := recent.String()
	if recentText == "" {
		recentText = "No sessions recorded yet"
	}

	scalesText := strings.Join(snap.ScaleNames(promptListLimit), ", ")
	if scalesText == "" {
		scalesText = "None yet"
	}

	pending := ""
	if hasPendingPlan {
		pending = pendingPlanInstruction
	}

	return fmt.Sprintf(`You are an AI guitar practice coach for FretCoach. You help users improve their guitar playing by analyzing their practice session data and providing personalized advice.

## User's Practice Data
- **Total sessions**: %d
- **Average pitch accuracy**: %d%%
- **Average scale conformity**: %d%%
- **Average timing stability**: %d%%
- **Weakest area**: %s
- **Scales practiced**: %s

## Recent Sessions
%s

## Instructions
1. Be encouraging and supportive while providing honest feedback
2. When the user asks about progress or trends, tell them you'll show a chart
3. When the user asks for practice recommendations, provide specific advice and ASK if they'd like to save this plan
4. Keep responses concise but helpful
5. Use markdown formatting for better readability
6. If asked to compare performance, analyze their latest session vs average%s

## Response Format
- Use **bold** for emphasis
- Use bullet points for lists
- Use headers (##) for sections when appropriate
- Keep paragraphs short and readable`,
		snap.TotalSessions,
		domain.Percent(snap.AvgPitchAccuracy),
		domain.Percent(snap.AvgScaleConformity),
		domain.Percent(snap.AvgTimingStability),
		snap.WeakestArea,
		scalesText,
		recentText,
		pending,
	)
}

// buildMessages prefixes the history with the system prompt. Any role other
// than user is sent as an assistant turn.
func buildMessages(system string, history []domain.Message) []domain.Message {
	out := make([]domain.Message, 0, len(history)+1)
	out = append(out, domain.Message{Role: domain.RoleSystem, Content: system})
	for _, m := range history {
		role := domain.RoleAssistant
		if m.Role == domain.RoleUser {
			role = domain.RoleUser
		}
		out = append(out, domain.Message{Role: role, Content: m.Content})
	}
	return out
}

func annotate(reply string, chart *domain.ChartData, planSaved bool) string {
	if chart != nil {
		switch chart.Type {
		case domain.ChartPerformanceTrend:
			reply += annotationTrend
		case domain.ChartComparison:
			reply += annotationComparison
		case domain.ChartPracticePlan:
			reply += annotationPlan
		}
	}
	if planSaved {
		reply += annotationSaved
	}
	return reply
}
