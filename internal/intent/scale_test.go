package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractScale(t *testing.T) {
	tests := []struct {
		text     string
		wantName string
		wantType string
	}{
		{"I want to practice G# minor", "G# Minor", "natural"},
		{"let's do some A minor pentatonic", "A Minor", "pentatonic"},
		{"C major please", "C Major", "natural"},
		{"work on e pentatonic", "E Minor", "pentatonic"},
		{"the f sharp maj scale", "F# Major", "natural"},
		{"Bb major", "Bb Major", "natural"},
		{"e flat min", "Eb Minor", "natural"},
		{"harmonic minor in D minor", "D Minor", "harmonic"},
		{"blues in e", "", "blues"},
		{"What should I practice?", "", "natural"},
		{"", "", "natural"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			name, scaleType := ExtractScale(tt.text)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantType, scaleType)
		})
	}
}

func TestExtractScaleUsesFirstMatchOnly(t *testing.T) {
	name, _ := ExtractScale("a scale like C major")
	assert.Empty(t, name)
}
