package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pavelanni/casesim/internal/generate"
	"github.com/pavelanni/casesim/internal/llm/prompts"
	"github.com/pavelanni/casesim/internal/model"
	"github.com/pavelanni/casesim/internal/validate"
)

const (
	defaultSpecialty = "cardiology"
	// maxPromptActions is the total action count the prompt asks for.
	maxPromptActions = 10
)

// CaseGenerator asks a model for a new case. It satisfies generate.Source.
type CaseGenerator struct {
	llm Completer
	now func() time.Time
}

// NewCaseGenerator creates a generator on top of c.
func NewCaseGenerator(c Completer) *CaseGenerator {
	return &CaseGenerator{llm: c, now: time.Now}
}

// Generate returns the JSON of a validated case with each action group
// clamped to model.MaxActionsPerGroup.
func (g *CaseGenerator) Generate(ctx context.Context, specialty string, difficulty model.Difficulty) ([]byte, error) {
	c, err := g.GenerateCase(ctx, specialty, difficulty)
	if err != nil {
		return nil, err
	}
	return json.Marshal(c)
}

// GenerateCase is Generate without the final encoding.
func (g *CaseGenerator) GenerateCase(ctx context.Context, specialty string, difficulty model.Difficulty) (model.Case, error) {
	if strings.TrimSpace(specialty) == "" {
		specialty = defaultSpecialty
	}
	specialty = generate.NormalizeSpecialty(specialty)
	if !difficulty.Valid() {
		difficulty = model.DifficultyMedium
	}

	p, err := prompts.BuildCaseGen(prompts.CaseGenData{
		ID:         fmt.Sprintf("ai-%s-%d", strings.ReplaceAll(specialty, " ", "-"), g.now().UnixMilli()),
		Specialty:  specialty,
		Difficulty: difficulty,
		MaxActions: maxPromptActions,
	})
	if err != nil {
		return model.Case{}, err
	}

	raw, err := g.llm.CompleteJSON(ctx, Request{System: p.System, User: p.User, Temperature: 0.2, MaxTokens: 900})
	if err != nil {
		return model.Case{}, err
	}
	c, err := validate.ParseWith([]byte(raw), validate.GeneratorLimits)
	if err != nil {
		return model.Case{}, fmt.Errorf("validate generated case: %w", err)
	}
	return c.Clamped(model.MaxActionsPerGroup), nil
}
