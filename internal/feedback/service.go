package feedback

import (
	"context"
	"fmt"
	"strings"

	"github.com/jeenglish/speaking-backend/internal/llm"
)

// Result carries the raw generated feedback and its extracted sections.
type Result struct {
	Raw    string
	Fields Fields
}

// Service turns a transcript plus reference sentences into structured
// speaking feedback via the LLM gateway.
type Service struct {
	gw          llm.Gateway
	model       string
	temperature float64
}

func NewService(gw llm.Gateway, model string) *Service {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Service{
		gw:          gw,
		model:       model,
		temperature: 0.5,
	}
}

// Grade asks the model for coaching feedback and splits the reply into the
// three sections. Extraction cannot fail; only the upstream call can.
func (s *Service) Grade(ctx context.Context, examples []string, transcript string) (*Result, error) {
	resp, err := s.gw.Chat(ctx, llm.ChatRequest{
		Model: s.model,
		Messages: []llm.Message{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: BuildPrompt(examples, transcript)},
		},
		Temperature: s.temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("generate feedback: %w", err)
	}

	raw := strings.TrimSpace(resp.Content)
	return &Result{
		Raw:    raw,
		Fields: Extract(raw),
	}, nil
}
