// Package generate obtains a case for a learner: from a remote generator when
// one is reachable and returns a valid case, otherwise from the built-in mock.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/casesim/internal/model"
	"github.com/pavelanni/casesim/internal/validate"
)

// Result is either a generated case or a degraded mock with the reason.
type Result struct {
	Case     model.Case
	Fallback bool
	Reason   string
}

// Service composes a remote Source with the mock fallback.
type Service struct {
	source  Source
	timeout time.Duration
	now     func() time.Time
}

// NewService creates a Service. A nil source means every request falls back.
// A zero timeout leaves the caller's context deadline in charge.
func NewService(source Source, timeout time.Duration) *Service {
	return &Service{source: source, timeout: timeout, now: time.Now}
}

// Obtain returns a case for the specialty and difficulty. It never fails:
// any remote error yields the mock with Fallback set. Every action group of
// the returned case holds at most model.MaxActionsPerGroup entries.
func (s *Service) Obtain(ctx context.Context, specialty string, difficulty model.Difficulty) Result {
	c, err := s.remote(ctx, specialty, difficulty)
	if err == nil {
		return Result{Case: c.Clamped(model.MaxActionsPerGroup)}
	}

	slog.Warn("case generation fell back to mock",
		"specialty", specialty,
		"difficulty", difficulty,
		"error", err,
	)
	mock := Mock(specialty, difficulty, s.now())
	return Result{
		Case:     mock.Clamped(model.MaxActionsPerGroup),
		Fallback: true,
		Reason:   err.Error(),
	}
}

var errNoSource = errors.New("no case generator configured")

func (s *Service) remote(ctx context.Context, specialty string, difficulty model.Difficulty) (c model.Case, err error) {
	if s.source == nil {
		return model.Case{}, errNoSource
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("case generator panicked: %v", r)
		}
	}()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	raw, err := s.source.Generate(ctx, specialty, difficulty)
	if err != nil {
		return model.Case{}, err
	}
	c, err = validate.Parse(raw)
	if err != nil {
		return model.Case{}, fmt.Errorf("validate generated case: %w", err)
	}
	return c, nil
}
