package goals

import (
	"fmt"
	"math/rand"
)

// Progression scales goal targets and rewards with the phase counter:
// multiplier = max(MinMultiplier, phase / PhaseDivisor).
type Progression struct {
	PhaseDivisor  int `yaml:"phase_divisor" json:"phase_divisor"`
	MinMultiplier int `yaml:"min_multiplier" json:"min_multiplier"`
	CountReward   int `yaml:"count_reward" json:"count_reward"`
	StyleReward   int `yaml:"style_reward" json:"style_reward"`
	StyleStep     int `yaml:"style_step" json:"style_step"`
}

func DefaultProgression() Progression {
	return Progression{
		PhaseDivisor:  2,
		MinMultiplier: 1,
		CountReward:   250,
		StyleReward:   350,
		StyleStep:     80,
	}
}

func (p Progression) Multiplier(phase int) int {
	div := p.PhaseDivisor
	if div <= 0 {
		div = 1
	}
	m := phase / div
	if m < p.MinMultiplier {
		m = p.MinMultiplier
	}
	if m < 1 {
		m = 1
	}
	return m
}

// CountTarget is one candidate for a furniture_count goal.
type CountTarget struct {
	Furniture string
	Label     string
	Count     int
}

var DefaultCountTargets = []CountTarget{
	{Furniture: "SEATING", Label: "modern sofas", Count: 2},
	{Furniture: "LARGE_TABLE", Label: "dining table", Count: 1},
	{Furniture: "ELECTRONICS", Label: "entertainment unit", Count: 1},
	{Furniture: "BOOKSHELF", Label: "bookshelves", Count: 2},
	{Furniture: "WINDOW", Label: "windows", Count: 3},
	{Furniture: "WALL", Label: "wall segments", Count: 4},
	{Furniture: "DECOR", Label: "decorative plants", Count: 3},
}

// Templates builds goals locally from a fixed candidate set. Every choice
// is uniform over its candidates; the kind is drawn from three slots, one
// count goal and two style goals.
type Templates struct {
	Progression Progression
	Targets     []CountTarget

	rng *rand.Rand
}

func NewTemplates(p Progression, targets []CountTarget, seed int64) *Templates {
	if len(targets) == 0 {
		targets = DefaultCountTargets
	}
	return &Templates{
		Progression: p,
		Targets:     targets,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

func (t *Templates) Generate(ctx Context) Goal {
	m := t.Progression.Multiplier(ctx.Phase)
	if t.rng.Intn(3) == 0 {
		sel := t.Targets[t.rng.Intn(len(t.Targets))]
		return Goal{
			Title:           "Design Specialist",
			Description:     fmt.Sprintf("Add at least %d %s to your layout.", sel.Count, sel.Label),
			Metric:          MetricFurnitureCount,
			TargetValue:     sel.Count,
			TargetFurniture: sel.Furniture,
			Reward:          t.Progression.CountReward * m,
		}
	}
	target := ctx.Style + t.Progression.StyleStep*m
	return Goal{
		Title:       "Style Architect",
		Description: fmt.Sprintf("Raise the room's style score to %d.", target),
		Metric:      MetricStyle,
		TargetValue: target,
		Reward:      t.Progression.StyleReward * m,
	}
}
