package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini is a Completer backed by the Gemini API.
type Gemini struct {
	apiKey string
	model  string
	opts   []option.ClientOption
}

// NewGemini creates a Gemini completer. Extra options are appended after the
// API key option.
func NewGemini(apiKey, model string, opts ...option.ClientOption) *Gemini {
	return &Gemini{
		apiKey: strings.TrimSpace(apiKey),
		model:  strings.TrimSpace(model),
		opts:   opts,
	}
}

// CompleteJSON asks the model for a JSON response.
func (g *Gemini) CompleteJSON(ctx context.Context, req Request) (string, error) {
	if g.apiKey == "" {
		return "", errors.New("gemini API key is empty")
	}
	cl, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(g.apiKey)}, g.opts...)...)
	if err != nil {
		return "", fmt.Errorf("gemini client: %w", err)
	}
	defer cl.Close()

	m := cl.GenerativeModel(g.model)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      &req.Temperature,
		ResponseMIMEType: "application/json",
	}
	if req.MaxTokens > 0 {
		n := int32(req.MaxTokens)
		m.GenerationConfig.MaxOutputTokens = &n
	}
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}

	resp, err := m.GenerateContent(ctx, genai.Text(req.User))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	raw := firstText(resp)
	if raw == "" {
		return "", errors.New("gemini returned no text")
	}
	slog.Debug("gemini response", "raw", raw)
	return stripFences(raw), nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}
