package textgen

import (
	"context"
	"math/rand"
	"sync"

	"github.com/google/uuid"

	"dreamdecor.ai/internal/sim/catalogs"
	"dreamdecor.ai/internal/sim/goals"
)

var DefaultSnippets = []Snippet{
	{Text: "Smart TV sets are becoming the focal point of modern living rooms.", Category: CategoryTrend},
	{Text: "Natural light from large windows can boost your style score significantly.", Category: CategoryTip},
	{Text: "A bookshelf isn't just for books; it's a statement piece.", Category: CategoryTrend},
	{Text: "Try grouping your seating around a large dining table for a social vibe.", Category: CategoryTip},
	{Text: "Empty walls feel cold. Use windows or decor to break the monotony.", Category: CategoryCritique},
	{Text: "The industrial look of exposed walls is making a huge comeback.", Category: CategoryTrend},
}

// Local never fails and never blocks.
type Local struct {
	mu        sync.Mutex
	templates *goals.Templates
	snippets  []Snippet
	rng       *rand.Rand
}

// NewLocal builds a local generator. Count targets naming furniture the
// catalog does not know are dropped.
func NewLocal(p goals.Progression, cat *catalogs.Catalog, seed int64) *Local {
	var targets []goals.CountTarget
	for _, t := range goals.DefaultCountTargets {
		if cat == nil {
			targets = append(targets, t)
			continue
		}
		if _, err := cat.Lookup(t.Furniture); err == nil {
			targets = append(targets, t)
		}
	}
	return &Local{
		templates: goals.NewTemplates(p, targets, seed),
		snippets:  DefaultSnippets,
		rng:       rand.New(rand.NewSource(seed + 1)),
	}
}

func (l *Local) GenerateGoal(_ context.Context, gc goals.Context) (goals.Goal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	g := l.templates.Generate(gc)
	g.ID = "quest_" + uuid.NewString()
	return g, nil
}

func (l *Local) GenerateSnippet(_ context.Context, _ goals.Context) (Snippet, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.snippets) == 0 {
		return Snippet{}, false, nil
	}
	s := l.snippets[l.rng.Intn(len(l.snippets))]
	s.ID = uuid.NewString()
	return s, true, nil
}
