// Package session holds the aggregate state of one player's game: the grid,
// the ledger, the last score, the goal tracker and the selected tool. It is
// the unit that is saved and restored.
package session

import (
	"fmt"
	"time"

	"dreamdecor.ai/internal/persistence/snapshot"
	"dreamdecor.ai/internal/sim/catalogs"
	"dreamdecor.ai/internal/sim/economy"
	"dreamdecor.ai/internal/sim/goals"
	"dreamdecor.ai/internal/sim/grid"
	"dreamdecor.ai/internal/sim/score"
	"dreamdecor.ai/internal/sim/tuning"
)

type State struct {
	Grid   *grid.Grid
	Ledger *economy.Ledger
	Score  score.Snapshot
	Goals  *goals.Tracker
	Tool   string
}

// New starts a fresh game.
func New(t tuning.Tuning, cat *catalogs.Catalog) (*State, error) {
	l, err := economy.NewLedger(t.InitialBudget)
	if err != nil {
		return nil, err
	}
	tool := t.DefaultTool
	if _, err := cat.Lookup(tool); err != nil {
		tool = catalogs.Eraser
	}
	s := &State{
		Grid:   grid.New(t.GridSize),
		Ledger: l,
		Goals:  goals.NewTracker(),
		Tool:   tool,
	}
	s.Score = score.Recompute(s.Grid, cat)
	return s, nil
}

func (s *State) Phase() int { return s.Goals.Phase() }

// GoalContext is what a goal generator is told about the session.
func (s *State) GoalContext() goals.Context {
	counts := make(map[string]int, len(s.Score.Counts))
	for k, v := range s.Score.Counts {
		counts[k] = v
	}
	return goals.Context{
		Phase:  s.Phase(),
		Budget: s.Ledger.Budget(),
		Style:  s.Score.TotalStyle,
		Counts: counts,
	}
}

// Export produces a self-contained copy suitable for durable storage.
func (s *State) Export(identity string, savedAt time.Time, cat *catalogs.Catalog) snapshot.SaveV1 {
	tiles := s.Grid.Tiles()
	out := snapshot.SaveV1{
		Header: snapshot.Header{
			Version:  snapshot.Version,
			Identity: identity,
			SavedAt:  savedAt.UTC(),
		},
		GridSize:     s.Grid.Size(),
		Tiles:        make([]snapshot.TileV1, 0, len(tiles)),
		Budget:       s.Ledger.Budget(),
		Phase:        s.Phase(),
		SelectedTool: s.Tool,
	}
	if cat != nil {
		out.CatalogDigest = cat.Digest
	}
	for _, t := range tiles {
		out.Tiles = append(out.Tiles, snapshot.TileV1{
			X:               t.X,
			Y:               t.Y,
			Occupant:        t.Occupant,
			Rotation:        t.Rotation,
			Stacked:         t.Stacked,
			StackedRotation: t.StackedRotation,
		})
	}
	if g, ok := s.Goals.Active(); ok {
		out.Goal = &snapshot.GoalV1{
			ID:              g.ID,
			Title:           g.Title,
			Description:     g.Description,
			Metric:          string(g.Metric),
			TargetValue:     g.TargetValue,
			TargetFurniture: g.TargetFurniture,
			Reward:          g.Reward,
			Completed:       g.Completed,
		}
	}
	return out
}

// Import rebuilds a session verbatim from a save. The score is derived
// again from the restored grid.
func Import(snap snapshot.SaveV1, cat *catalogs.Catalog) (*State, error) {
	tiles := make([]grid.Tile, 0, len(snap.Tiles))
	for _, t := range snap.Tiles {
		tiles = append(tiles, grid.Tile{
			X:               t.X,
			Y:               t.Y,
			Occupant:        t.Occupant,
			Rotation:        t.Rotation,
			Stacked:         t.Stacked,
			StackedRotation: t.StackedRotation,
		})
	}
	g, err := grid.FromTiles(snap.GridSize, tiles)
	if err != nil {
		return nil, fmt.Errorf("import grid: %w", err)
	}
	l, err := economy.NewLedger(snap.Budget)
	if err != nil {
		return nil, fmt.Errorf("import ledger: %w", err)
	}
	var active *goals.Goal
	if snap.Goal != nil {
		active = &goals.Goal{
			ID:              snap.Goal.ID,
			Title:           snap.Goal.Title,
			Description:     snap.Goal.Description,
			Metric:          goals.Metric(snap.Goal.Metric),
			TargetValue:     snap.Goal.TargetValue,
			TargetFurniture: snap.Goal.TargetFurniture,
			Reward:          snap.Goal.Reward,
			Completed:       snap.Goal.Completed,
		}
	}
	tr, err := goals.Restore(active, snap.Phase)
	if err != nil {
		return nil, fmt.Errorf("import goals: %w", err)
	}
	tool := snap.SelectedTool
	if _, err := cat.Lookup(tool); err != nil {
		tool = catalogs.Eraser
	}
	s := &State{Grid: g, Ledger: l, Goals: tr, Tool: tool}
	s.Score = score.Recompute(s.Grid, cat)
	return s, nil
}
