package score

import (
	"dreamdecor.ai/internal/sim/catalogs"
	"dreamdecor.ai/internal/sim/grid"
)

// Snapshot is derived from grid contents and replaced wholesale each tick.
type Snapshot struct {
	TotalStyle   int            `json:"total_style"`
	TotalComfort int            `json:"total_comfort"`
	Counts       map[string]int `json:"counts"`
}

func (s Snapshot) Count(id string) int { return s.Counts[id] }

// Recompute walks every tile once. Position and rotation do not matter;
// only which items are present. Ids missing from the catalog are counted
// but yield nothing.
func Recompute(g *grid.Grid, cat *catalogs.Catalog) Snapshot {
	s := Snapshot{Counts: map[string]int{}}
	add := func(id string) {
		if id == grid.Empty {
			return
		}
		s.Counts[id]++
		if d, ok := cat.Defs[id]; ok {
			s.TotalStyle += d.StyleYield
			s.TotalComfort += d.ComfortYield
		}
	}
	g.Each(func(t grid.Tile) {
		add(t.Occupant)
		add(t.Stacked)
	})
	return s
}
