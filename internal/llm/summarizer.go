package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pavelanni/casesim/internal/llm/prompts"
	"github.com/pavelanni/casesim/internal/model"
)

// maxKeyPoints caps the key points kept from a summary.
const maxKeyPoints = 8

// Summarizer condenses search snippets. It satisfies search.Summarizer.
type Summarizer struct {
	llm Completer
}

// NewSummarizer creates a summarizer on top of c.
func NewSummarizer(c Completer) *Summarizer {
	return &Summarizer{llm: c}
}

// Summarize returns the model's summary with key points capped.
func (s *Summarizer) Summarize(ctx context.Context, query string, snippets []model.Snippet) (model.Summary, error) {
	p, err := prompts.BuildSummarize(query, snippets)
	if err != nil {
		return model.Summary{}, err
	}
	raw, err := s.llm.CompleteJSON(ctx, Request{System: p.System, User: p.User, Temperature: 0.2, MaxTokens: 450})
	if err != nil {
		return model.Summary{}, err
	}
	var parsed struct {
		Summary   any `json:"summary"`
		KeyPoints any `json:"key_points"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return model.Summary{}, fmt.Errorf("parse summary response: %w", err)
	}
	out := model.Summary{KeyPoints: []string{}}
	if text, ok := parsed.Summary.(string); ok {
		out.Summary = text
	}
	if items, ok := parsed.KeyPoints.([]any); ok {
		for _, it := range items {
			if len(out.KeyPoints) == maxKeyPoints {
				break
			}
			if text, ok := it.(string); ok {
				out.KeyPoints = append(out.KeyPoints, text)
			}
		}
	}
	return out, nil
}
