// Package search fetches reference snippets and summarizes them. Search is a
// soft dependency: missing credentials or upstream failures yield empty
// results, never errors.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"

	"github.com/pavelanni/casesim/internal/model"
)

const (
	// DefaultResults is the result count when the caller gives none.
	DefaultResults = 6
	// MaxResults caps what is returned to the caller.
	MaxResults = 6
	// maxUpstream is the largest page Google CSE serves.
	maxUpstream = 10
	// fallbackBullets is how many titles the offline summary lists.
	fallbackBullets = 5
)

// Searcher looks up snippets for a query.
type Searcher interface {
	Search(ctx context.Context, q string, n int) ([]model.Snippet, error)
}

// Summarizer condenses snippets for a query.
type Summarizer interface {
	Summarize(ctx context.Context, q string, snippets []model.Snippet) (model.Summary, error)
}

// Google queries a Programmable Search Engine.
type Google struct {
	svc *customsearch.Service
	cx  string
}

// NewGoogle creates a Google CSE searcher. Extra options are appended after
// the API key option.
func NewGoogle(ctx context.Context, apiKey, cx string, opts ...option.ClientOption) (*Google, error) {
	svc, err := customsearch.NewService(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("customsearch service: %w", err)
	}
	return &Google{svc: svc, cx: cx}, nil
}

// Search returns up to n results with duplicate and empty URLs removed.
func (g *Google) Search(ctx context.Context, q string, n int) ([]model.Snippet, error) {
	n = min(maxUpstream, max(1, n))
	res, err := g.svc.Cse.List().Cx(g.cx).Q(q).Num(int64(n)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("google search: %w", err)
	}
	out := make([]model.Snippet, 0, len(res.Items))
	for _, it := range res.Items {
		if it == nil {
			continue
		}
		title := it.Title
		if title == "" {
			title = "Untitled"
		}
		out = append(out, model.Snippet{Title: title, URL: it.Link, Snippet: it.Snippet})
	}
	return Dedup(out), nil
}

// Dedup drops results with an empty or already seen URL, keeping order.
func Dedup(in []model.Snippet) []model.Snippet {
	seen := make(map[string]bool, len(in))
	out := make([]model.Snippet, 0, len(in))
	for _, s := range in {
		if s.URL == "" || seen[s.URL] {
			continue
		}
		seen[s.URL] = true
		out = append(out, s)
	}
	return out
}

// Service wraps an optional Searcher and Summarizer with the soft-failure
// rules.
type Service struct {
	searcher   Searcher
	summarizer Summarizer
	timeout    time.Duration
}

// NewService creates a Service; either dependency may be nil.
func NewService(s Searcher, sum Summarizer, timeout time.Duration) *Service {
	return &Service{searcher: s, summarizer: sum, timeout: timeout}
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return context.WithCancel(ctx)
}

// Search never fails; it returns at most MaxResults snippets.
func (s *Service) Search(ctx context.Context, q string, n int) []model.Snippet {
	q = strings.TrimSpace(q)
	if s.searcher == nil || q == "" {
		return []model.Snippet{}
	}
	if n <= 0 {
		n = DefaultResults
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.searcher.Search(ctx, q, n)
	if err != nil {
		slog.Warn("search failed", "query", q, "error", err)
		return []model.Snippet{}
	}
	if len(res) > MaxResults {
		res = res[:MaxResults]
	}
	return res
}

// Summarize never fails. Without a summarizer it lists the first snippet
// titles as bullets; when the summarizer errors it returns an empty summary.
func (s *Service) Summarize(ctx context.Context, q string, snippets []model.Snippet) model.Summary {
	if s.summarizer == nil {
		return Fallback(snippets)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	sum, err := s.summarizer.Summarize(ctx, q, snippets)
	if err != nil {
		slog.Warn("summarize failed", "query", q, "error", err)
		return model.Summary{KeyPoints: []string{}}
	}
	if sum.KeyPoints == nil {
		sum.KeyPoints = []string{}
	}
	return sum
}

// Fallback is the offline summary: one bullet per title of the first five
// snippets.
func Fallback(snippets []model.Snippet) model.Summary {
	if len(snippets) > fallbackBullets {
		snippets = snippets[:fallbackBullets]
	}
	bullets := make([]string, 0, len(snippets))
	for _, sn := range snippets {
		bullets = append(bullets, "• "+sn.Title)
	}
	return model.Summary{Summary: strings.Join(bullets, "\n"), KeyPoints: bullets}
}
