// Package review merges the local score with an optional external review.
//
// External reviews are untrusted: nothing about their fields or types is
// assumed until Sanitize has produced a model.AIReview.
package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/pavelanni/casesim/internal/model"
	"github.com/pavelanni/casesim/internal/scoring"
)

// DefaultMaxItems caps pros, cons, red_flags and feedback.
const DefaultMaxItems = 4

// Untrusted is a loosely typed review document as received from outside.
type Untrusted map[string]any

// Reviewer obtains an external review of a submission.
type Reviewer interface {
	Review(ctx context.Context, c model.Case, sub model.Submission) (Untrusted, error)
}

// Outcome is the reconciled score. Degraded is set when no external review
// could be used; the breakdown then carries the local score only and omits
// ai_review.
type Outcome struct {
	Score    model.ScoreBreakdown
	Degraded bool
	Reason   string
}

// Reconciler runs a Reviewer and sanitizes its result.
type Reconciler struct {
	reviewer Reviewer
	timeout  time.Duration
	maxItems int
}

// NewReconciler creates a Reconciler. A nil reviewer makes every outcome
// local-only. maxItems <= 0 means DefaultMaxItems.
func NewReconciler(r Reviewer, timeout time.Duration, maxItems int) *Reconciler {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	return &Reconciler{reviewer: r, timeout: timeout, maxItems: maxItems}
}

// LocalScore is the offline score of sub against c.
func LocalScore(c model.Case, sub model.Submission) int {
	return scoring.Local(sub.Picks, c, sub.DX, sub.ClampedMgmt())
}

// LocalOnly is the breakdown used when no review is available.
func LocalOnly(c model.Case, sub model.Submission) model.ScoreBreakdown {
	local := LocalScore(c, sub)
	return model.ScoreBreakdown{Total: float64(local), Local: local}
}

// Reconcile never fails. The local score is computed first; any failure of
// the review path degrades to it.
func (r *Reconciler) Reconcile(ctx context.Context, c model.Case, sub model.Submission) Outcome {
	base := LocalOnly(c, sub)

	raw, err := r.fetch(ctx, c, sub)
	if err != nil {
		slog.Warn("external review unavailable, using local score", "case_id", c.ID, "error", err)
		return Outcome{Score: base, Degraded: true, Reason: err.Error()}
	}

	ai := Sanitize(raw, r.maxItems)
	out := model.ScoreBreakdown{Total: base.Total, Local: base.Local, AIReview: ai}
	if ai.Score != nil {
		out.Total = *ai.Score
	}
	return Outcome{Score: out}
}

// Rescore rebuilds a breakdown a client sent back. Local is recomputed and a
// supplied AI review goes through Sanitize again; without one, Total is Local.
func (r *Reconciler) Rescore(c model.Case, sub model.Submission, prior *model.ScoreBreakdown) model.ScoreBreakdown {
	out := LocalOnly(c, sub)
	if prior == nil || prior.AIReview == nil {
		return out
	}
	data, err := json.Marshal(prior.AIReview)
	if err != nil {
		return out
	}
	var u Untrusted
	if err := json.Unmarshal(data, &u); err != nil {
		return out
	}
	out.AIReview = Sanitize(u, r.maxItems)
	if out.AIReview.Score != nil {
		out.Total = *out.AIReview.Score
	}
	return out
}

var errNoReviewer = errors.New("no reviewer configured")

func (r *Reconciler) fetch(ctx context.Context, c model.Case, sub model.Submission) (u Untrusted, err error) {
	if r.reviewer == nil {
		return nil, errNoReviewer
	}
	defer func() {
		if p := recover(); p != nil {
			u, err = nil, fmt.Errorf("reviewer panicked: %v", p)
		}
	}()
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	u, err = r.reviewer.Review(ctx, c, sub)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, errors.New("reviewer returned no review")
	}
	return u, nil
}

// Sanitize converts an untrusted review into a trusted one. A finite numeric
// score is clamped to [0,100]; anything else leaves Score nil. Feedback lists
// keep only string items, at most maxItems of them; a missing or non-array
// value becomes an empty list.
func Sanitize(u Untrusted, maxItems int) *model.AIReview {
	out := &model.AIReview{
		Pros:     stringList(u["pros"], maxItems),
		Cons:     stringList(u["cons"], maxItems),
		RedFlags: stringList(u["red_flags"], maxItems),
	}
	if fb := stringList(u["feedback"], maxItems); len(fb) > 0 {
		out.Feedback = fb
	}
	if s, ok := finite(u["score"]); ok {
		s = math.Min(100, math.Max(0, s))
		out.Score = &s
	}
	return out
}

func finite(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case int:
		f = float64(n)
	case interface{ Float64() (float64, error) }:
		var err error
		if f, err = n.Float64(); err != nil {
			return 0, false
		}
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func stringList(v any, maxItems int) []string {
	items, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, min(len(items), maxItems))
	for _, item := range items {
		if len(out) == maxItems {
			break
		}
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
