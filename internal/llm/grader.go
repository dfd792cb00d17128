package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pavelanni/casesim/internal/llm/prompts"
	"github.com/pavelanni/casesim/internal/model"
	"github.com/pavelanni/casesim/internal/review"
)

// Grader asks a model to review a submission. It satisfies review.Reviewer.
type Grader struct {
	llm      Completer
	variant  prompts.PromptVariant
	maxItems int
}

// NewGrader creates a grader using the given prompt variant.
func NewGrader(c Completer, variant prompts.PromptVariant, maxItems int) *Grader {
	if maxItems <= 0 {
		maxItems = review.DefaultMaxItems
	}
	return &Grader{llm: c, variant: variant, maxItems: maxItems}
}

// Review returns the model's JSON object untouched; sanitizing is the
// reconciler's job.
func (g *Grader) Review(ctx context.Context, c model.Case, sub model.Submission) (review.Untrusted, error) {
	p, err := prompts.BuildGrade(g.variant, c, sub, g.maxItems)
	if err != nil {
		return nil, err
	}
	raw, err := g.llm.CompleteJSON(ctx, Request{System: p.System, User: p.User, Temperature: 0.2, MaxTokens: 400})
	if err != nil {
		return nil, err
	}
	var u review.Untrusted
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, fmt.Errorf("parse grading response: %w", err)
	}
	return u, nil
}
