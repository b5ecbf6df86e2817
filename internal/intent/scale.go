package intent

import (
	"regexp"
	"strings"
)

// DefaultScaleType is reported when no type keyword appears.
const DefaultScaleType = "natural"

var scaleTypes = []struct {
	keyword string
	value   string
}{
	{"pentatonic", "pentatonic"},
	{"penta", "pentatonic"},
	{"blues", "blues"},
	{"natural", "natural"},
	{"harmonic", "harmonic"},
	{"melodic", "melodic"},
	{"major", "natural"},
	{"minor", "natural"},
}

var scalePattern = regexp.MustCompile(`\b([a-g])\s*(#|sharp|flat|b)?\s*(minor|major|min|maj)?\b`)

// ExtractScale finds the first scale mentioned in text. The name is empty
// when the first root note carries no quality and the type is not pentatonic.
func ExtractScale(text string) (name, scaleType string) {
	lower := strings.ToLower(text)

	scaleType = DefaultScaleType
	for _, st := range scaleTypes {
		if strings.Contains(lower, st.keyword) {
			scaleType = st.value
			break
		}
	}

	m := scalePattern.FindStringSubmatch(lower)
	if m == nil {
		return "", scaleType
	}

	root := strings.ToUpper(m[1])
	switch m[2] {
	case "#", "sharp":
		root += "#"
	case "b", "flat":
		root += "b"
	}

	switch m[3] {
	case "minor", "min":
		name = root + " Minor"
	case "major", "maj":
		name = root + " Major"
	default:
		if scaleType == "pentatonic" {
			name = root + " Minor"
		}
	}
	return name, scaleType
}
