package review

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/pavelanni/casesim/internal/model"
)

const maxReviewBytes = 256 << 10

// Request is the body sent to a remote grader.
type Request struct {
	Case       model.Case       `json:"caseJson"`
	Submission model.Submission `json:"submission"`
}

// HTTPReviewer posts submissions to a remote grading endpoint.
type HTTPReviewer struct {
	URL    string
	Client *http.Client
}

// NewHTTPReviewer creates a reviewer for the given endpoint URL.
func NewHTTPReviewer(url string, client *http.Client) *HTTPReviewer {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPReviewer{URL: url, Client: client}
}

// Review accepts either {ai_review: {...}} or {total: n, ai_review?: {...}}.
// A bare total is treated as the review score.
func (h *HTTPReviewer) Review(ctx context.Context, c model.Case, sub model.Submission) (Untrusted, error) {
	body, err := json.Marshal(Request{Case: c, Submission: sub})
	if err != nil {
		return nil, fmt.Errorf("marshal review request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build review request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reviewer: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReviewBytes))
	if err != nil {
		return nil, fmt.Errorf("read review response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("reviewer: HTTP %d", resp.StatusCode)
	}
	return ParseEnvelope(data)
}

// ParseEnvelope extracts the untrusted review from a grader response body.
func ParseEnvelope(data []byte) (Untrusted, error) {
	var env map[string]any
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parse review response: %w", err)
	}
	if ai, ok := env["ai_review"].(map[string]any); ok {
		u := Untrusted(ai)
		if _, hasScore := u["score"]; !hasScore {
			if total, ok := env["total"]; ok {
				u["score"] = total
			}
		}
		return u, nil
	}
	if total, ok := env["total"]; ok {
		return Untrusted{"score": total}, nil
	}
	return nil, errors.New("review response has neither ai_review nor total")
}
