// Package intent classifies coach chat messages and extracts scale mentions.
//
// Every function here is pure over the message text; conversation state is
// the caller's concern.
package intent

import "strings"

// Intent is the auxiliary request category of a message.
type Intent string

const (
	None       Intent = "none"
	Progress   Intent = "progress"
	Comparison Intent = "comparison"
	Plan       Intent = "plan"
)

type rule struct {
	intent   Intent
	keywords []string
}

// rules are evaluated in order; the first match wins.
var rules = []rule{
	{Progress, []string{"progress", "trend", "chart", "graph", "show me", "visualize", "how am i doing"}},
	{Comparison, []string{"compare", "versus", "vs", "latest", "average", "comparison"}},
	{Plan, []string{"practice", "recommend", "suggest", "what should", "plan", "advice", "help me"}},
}

var confirmPhrases = []string{
	"yes", "save", "confirm", "ok", "okay", "sure", "sounds good",
	"looks good", "perfect", "great", "let's do it", "go ahead",
	"i like it", "save it", "save the plan", "confirmed", "accept",
}

func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// Classify returns the auxiliary request category of a message.
func Classify(text string) Intent {
	norm := normalize(text)
	for _, r := range rules {
		if containsAny(norm, r.keywords) {
			return r.intent
		}
	}
	return None
}

// IsConfirmation reports whether a message accepts a pending plan.
// Matching is by substring, so short replies such as "ok" always confirm.
func IsConfirmation(text string) bool {
	return containsAny(normalize(text), confirmPhrases)
}
