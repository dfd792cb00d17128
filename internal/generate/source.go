package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pavelanni/casesim/internal/model"
)

// Source produces the raw JSON of a freshly generated case.
type Source interface {
	Generate(ctx context.Context, specialty string, difficulty model.Difficulty) ([]byte, error)
}

// Request is the body sent to a remote generator.
type Request struct {
	Specialty  string           `json:"specialty"`
	Difficulty model.Difficulty `json:"difficulty"`
}

// maxCaseBytes bounds how much of a generator response is read.
const maxCaseBytes = 1 << 20

// HTTPSource posts to a remote case generator endpoint.
type HTTPSource struct {
	URL    string
	Client *http.Client
}

// NewHTTPSource creates a source for the given endpoint URL.
func NewHTTPSource(url string, client *http.Client) *HTTPSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{URL: url, Client: client}
}

// Generate posts {specialty, difficulty} and returns the body of a 2xx reply.
func (s *HTTPSource) Generate(ctx context.Context, specialty string, difficulty model.Difficulty) ([]byte, error) {
	body, err := json.Marshal(Request{Specialty: specialty, Difficulty: difficulty})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("case generator: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxCaseBytes))
	if err != nil {
		return nil, fmt.Errorf("read generator response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("case generator: HTTP %d", resp.StatusCode)
	}
	return data, nil
}
