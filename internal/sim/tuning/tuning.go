package tuning

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"dreamdecor.ai/internal/sim/goals"
)

type Tuning struct {
	GridSize      int `yaml:"grid_size" json:"grid_size"`
	InitialBudget int `yaml:"initial_budget" json:"initial_budget"`

	TickMs      int `yaml:"tick_ms" json:"tick_ms"`
	AutosaveMs  int `yaml:"autosave_ms" json:"autosave_ms"`
	GoalDelayMs int `yaml:"goal_delay_ms" json:"goal_delay_ms"`

	NewsChancePermille int `yaml:"news_chance_permille" json:"news_chance_permille"`
	NewsFeedCap        int `yaml:"news_feed_cap" json:"news_feed_cap"`

	DefaultTool string `yaml:"default_tool" json:"default_tool"`

	Progression goals.Progression `yaml:"progression" json:"progression"`
}

func Defaults() Tuning {
	return Tuning{
		GridSize:           12,
		InitialBudget:      5000,
		TickMs:             1000,
		AutosaveMs:         5000,
		GoalDelayMs:        1000,
		NewsChancePermille: 50,
		NewsFeedCap:        11,
		DefaultTool:        "SEATING",
		Progression:        goals.DefaultProgression(),
	}
}

// Load reads tuning.yaml on top of Defaults, so a file only needs the keys
// it changes.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	switch {
	case t.GridSize <= 0:
		return fmt.Errorf("grid_size must be positive")
	case t.InitialBudget < 0:
		return fmt.Errorf("initial_budget must not be negative")
	case t.TickMs <= 0:
		return fmt.Errorf("tick_ms must be positive")
	case t.AutosaveMs <= 0:
		return fmt.Errorf("autosave_ms must be positive")
	case t.GoalDelayMs < 0:
		return fmt.Errorf("goal_delay_ms must not be negative")
	case t.NewsChancePermille < 0 || t.NewsChancePermille > 1000:
		return fmt.Errorf("news_chance_permille must be within 0..1000")
	case t.NewsFeedCap <= 0:
		return fmt.Errorf("news_feed_cap must be positive")
	case t.Progression.PhaseDivisor <= 0:
		return fmt.Errorf("progression.phase_divisor must be positive")
	}
	return nil
}

func (t Tuning) TickInterval() time.Duration {
	return time.Duration(t.TickMs) * time.Millisecond
}

func (t Tuning) AutosaveInterval() time.Duration {
	return time.Duration(t.AutosaveMs) * time.Millisecond
}

func (t Tuning) GoalDelay() time.Duration {
	return time.Duration(t.GoalDelayMs) * time.Millisecond
}
