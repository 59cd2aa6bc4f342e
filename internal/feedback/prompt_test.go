package feedback_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jeenglish/speaking-backend/internal/feedback"
)

func TestBuildPrompt_NumbersExamples(t *testing.T) {
	prompt := feedback.BuildPrompt(
		[]string{"I usually get up at seven.", "I often cook dinner at home."},
		"I get up seven and cook home",
	)

	assert.Contains(t, prompt, "1. I usually get up at seven.")
	assert.Contains(t, prompt, "2. I often cook dinner at home.")
	assert.Contains(t, prompt, "I get up seven and cook home")
}

func TestBuildPrompt_RequestsMarkerSections(t *testing.T) {
	prompt := feedback.BuildPrompt([]string{"Example."}, "transcript")

	// The prompt must ask for exactly the markers Extract splits on.
	assert.Contains(t, prompt, "💬 Fluency")
	assert.Contains(t, prompt, "🧠 Vocabulary")
	assert.Contains(t, prompt, "🛠 Grammar")
}
