package goals

import (
	"errors"
	"fmt"

	"dreamdecor.ai/internal/sim/score"
)

var (
	ErrGoalNotClaimable = errors.New("goal not claimable")
	ErrNotRetryable     = errors.New("goal generation not in a failed state")
	ErrInvalidGoal      = errors.New("invalid goal")
)

type Metric string

const (
	MetricStyle          Metric = "style"
	MetricFurnitureCount Metric = "furniture_count"
)

type Goal struct {
	ID              string `json:"id,omitempty"`
	Title           string `json:"title,omitempty"`
	Description     string `json:"description"`
	Metric          Metric `json:"metric"`
	TargetValue     int    `json:"target_value"`
	TargetFurniture string `json:"target_furniture,omitempty"`
	Reward          int    `json:"reward"`
	Completed       bool   `json:"completed"`
}

func (g Goal) Validate() error {
	switch g.Metric {
	case MetricStyle:
	case MetricFurnitureCount:
		if g.TargetFurniture == "" {
			return fmt.Errorf("%w: furniture_count without target furniture", ErrInvalidGoal)
		}
	default:
		return fmt.Errorf("%w: metric %q", ErrInvalidGoal, g.Metric)
	}
	if g.TargetValue <= 0 {
		return fmt.Errorf("%w: target %d", ErrInvalidGoal, g.TargetValue)
	}
	if g.Reward < 0 {
		return fmt.Errorf("%w: reward %d", ErrInvalidGoal, g.Reward)
	}
	return nil
}

// Met reports whether s satisfies the goal's completion condition.
func (g Goal) Met(s score.Snapshot) bool {
	switch g.Metric {
	case MetricStyle:
		return s.TotalStyle >= g.TargetValue
	case MetricFurnitureCount:
		return s.Count(g.TargetFurniture) >= g.TargetValue
	}
	return false
}

// Progress returns the current value of the tracked metric.
func (g Goal) Progress(s score.Snapshot) int {
	switch g.Metric {
	case MetricStyle:
		return s.TotalStyle
	case MetricFurnitureCount:
		return s.Count(g.TargetFurniture)
	}
	return 0
}

// Context is what a generator sees of the session when asked for a goal.
type Context struct {
	Phase  int            `json:"phase"`
	Budget int            `json:"budget"`
	Style  int            `json:"style"`
	Counts map[string]int `json:"counts"`
}
