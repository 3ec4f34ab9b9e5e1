// Package textgen provides the collaborators that write goals and news
// snippets: a local template generator, a remote HTTP generator, and a
// fallback chain joining the two.
package textgen

import (
	"context"
	"errors"

	"dreamdecor.ai/internal/sim/goals"
)

var ErrUnavailable = errors.New("text generator unavailable")

type Category string

const (
	CategoryTrend    Category = "trend"
	CategoryCritique Category = "critique"
	CategoryTip      Category = "tip"
)

type Snippet struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Category Category `json:"category"`
}

// Generator may block; callers run it off the simulation goroutine.
// GenerateSnippet returns ok=false when it has nothing to say.
type Generator interface {
	GenerateGoal(ctx context.Context, gc goals.Context) (goals.Goal, error)
	GenerateSnippet(ctx context.Context, gc goals.Context) (s Snippet, ok bool, err error)
}

// Fallback asks Primary first and Secondary when Primary fails.
type Fallback struct {
	Primary   Generator
	Secondary Generator
}

func (f Fallback) GenerateGoal(ctx context.Context, gc goals.Context) (goals.Goal, error) {
	if f.Primary != nil {
		g, err := f.Primary.GenerateGoal(ctx, gc)
		if err == nil {
			return g, nil
		}
		if f.Secondary == nil || ctx.Err() != nil {
			return goals.Goal{}, err
		}
	}
	if f.Secondary == nil {
		return goals.Goal{}, ErrUnavailable
	}
	return f.Secondary.GenerateGoal(ctx, gc)
}

func (f Fallback) GenerateSnippet(ctx context.Context, gc goals.Context) (Snippet, bool, error) {
	if f.Primary != nil {
		s, ok, err := f.Primary.GenerateSnippet(ctx, gc)
		if err == nil {
			return s, ok, nil
		}
		if f.Secondary == nil || ctx.Err() != nil {
			return Snippet{}, false, err
		}
	}
	if f.Secondary == nil {
		return Snippet{}, false, ErrUnavailable
	}
	return f.Secondary.GenerateSnippet(ctx, gc)
}
