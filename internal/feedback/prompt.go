package feedback

import (
	"fmt"
	"strings"
)

// SystemPrompt frames the model as the coach persona.
const SystemPrompt = "You are a kind English teacher."

// BuildPrompt assembles the grading prompt from the lesson's reference
// sentences and the student's transcript. The marker lines it requests are
// the ones Extract looks for.
func BuildPrompt(examples []string, transcript string) string {
	var b strings.Builder

	b.WriteString("You are an English speaking coach for B1–B2 students.\n")
	b.WriteString(fmt.Sprintf("Below are %d example sentences from the lesson.\n", len(examples)))
	b.WriteString("The student just gave a 90-second response based on these examples.\n\n")

	b.WriteString("Examples:\n")
	for i, s := range examples {
		b.WriteString(fmt.Sprintf("%d. %s\n", i+1, s))
	}

	b.WriteString("\nStudent's 90s response:\n")
	b.WriteString(transcript)
	b.WriteString("\n\n")

	b.WriteString("Please:\n")
	b.WriteString("- Give feedback in **simple English (A2–B1 level)**.\n")
	b.WriteString("- Focus on 3 short parts:\n\n")
	b.WriteString("💬 Fluency — comment + 1 suggestion\n")
	b.WriteString("🧠 Vocabulary — comment + 1 simple reword\n")
	b.WriteString("🛠 Grammar — comment + 1 correction (use 👉 and ✅)\n")

	return b.String()
}
