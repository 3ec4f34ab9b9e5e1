package room

import (
	"fmt"

	actionlog "dreamdecor.ai/internal/persistence/log"
	"dreamdecor.ai/internal/sim/catalogs"
	"dreamdecor.ai/internal/sim/grid"
)

// Place buys id and puts it on the empty tile (x,y). Funds are reserved
// before the grid is touched; a failed placement leaves budget and grid
// unchanged.
func (r *Room) Place(x, y int, id string) error {
	if r.state == nil {
		return ErrNoSession
	}
	def, err := r.placeable(id)
	if err != nil {
		return err
	}
	t, err := r.state.Grid.Tile(x, y)
	if err != nil {
		return err
	}
	if !t.IsEmpty() {
		return fmt.Errorf("%w: (%d,%d) holds %s", grid.ErrTileOccupied, x, y, t.Occupant)
	}
	if err := r.state.Ledger.TryDebit(def.Cost); err != nil {
		return err
	}
	if err := r.state.Grid.Place(x, y, def.ID); err != nil {
		r.refund(def.Cost)
		return err
	}
	r.record(actionlog.ActionEntry{Op: actionlog.OpPlace, X: x, Y: y, Furniture: def.ID, Delta: -def.Cost})
	r.notify()
	return nil
}

// Stack buys a stackable id and sets it on the surface item at (x,y).
func (r *Room) Stack(x, y int, id string) error {
	if r.state == nil {
		return ErrNoSession
	}
	def, err := r.placeable(id)
	if err != nil {
		return err
	}
	if !def.Stackable() {
		return fmt.Errorf("%w: %s is not a stackable item", ErrNotStackable, def.ID)
	}
	t, err := r.state.Grid.Tile(x, y)
	if err != nil {
		return err
	}
	if t.IsEmpty() {
		return fmt.Errorf("%w: nothing to stack on at (%d,%d)", grid.ErrTileEmpty, x, y)
	}
	if base, err := r.cat.Lookup(t.Occupant); err != nil || !base.Surface() {
		return fmt.Errorf("%w: %s at (%d,%d) is not a surface", ErrNotStackable, t.Occupant, x, y)
	}
	if t.Stacked != grid.Empty {
		return fmt.Errorf("%w: (%d,%d) already stacks %s", grid.ErrTileOccupied, x, y, t.Stacked)
	}
	if err := r.state.Ledger.TryDebit(def.Cost); err != nil {
		return err
	}
	if err := r.state.Grid.Stack(x, y, def.ID); err != nil {
		r.refund(def.Cost)
		return err
	}
	r.record(actionlog.ActionEntry{Op: actionlog.OpStack, X: x, Y: y, Furniture: def.ID, Layer: "stacked", Delta: -def.Cost})
	r.notify()
	return nil
}

// Remove takes the top-most item off (x,y) and refunds its full cost.
func (r *Room) Remove(x, y int) error {
	if r.state == nil {
		return ErrNoSession
	}
	id, err := r.state.Grid.Remove(x, y)
	if err != nil {
		return err
	}
	refund := 0
	if def, err := r.cat.Lookup(id); err == nil {
		refund = def.Cost
	} else {
		r.logger.Printf("session %s: removed %s at (%d,%d) has no catalog entry, no refund", r.sessionID, id, x, y)
	}
	r.refund(refund)
	r.record(actionlog.ActionEntry{Op: actionlog.OpRemove, X: x, Y: y, Furniture: id, Delta: refund})
	r.notify()
	return nil
}

// Rotate turns the addressed item at (x,y) a quarter turn.
func (r *Room) Rotate(x, y int, layer grid.Layer) error {
	if r.state == nil {
		return ErrNoSession
	}
	rot, err := r.state.Grid.Rotate(x, y, layer)
	if err != nil {
		return err
	}
	e := actionlog.ActionEntry{Op: actionlog.OpRotate, X: x, Y: y, Rotation: rot, Layer: "base"}
	if layer == grid.LayerStacked {
		e.Layer = "stacked"
	}
	r.record(e)
	r.notify()
	return nil
}

// Click applies the selected tool to (x,y): the eraser removes, a
// stackable item lands on a free surface when there is one, anything else
// is placed on the floor.
func (r *Room) Click(x, y int) error {
	if r.state == nil {
		return ErrNoSession
	}
	tool := r.state.Tool
	if tool == catalogs.Eraser {
		return r.Remove(x, y)
	}
	def, err := r.cat.Lookup(tool)
	if err != nil {
		return err
	}
	if def.Stackable() {
		if t, err := r.state.Grid.Tile(x, y); err == nil && !t.IsEmpty() && t.Stacked == grid.Empty {
			if base, err := r.cat.Lookup(t.Occupant); err == nil && base.Surface() {
				return r.Stack(x, y, tool)
			}
		}
	}
	return r.Place(x, y, tool)
}

func (r *Room) SelectTool(id string) error {
	if r.state == nil {
		return ErrNoSession
	}
	if _, err := r.cat.Lookup(id); err != nil {
		return err
	}
	r.state.Tool = id
	r.notify()
	return nil
}

func (r *Room) Hover(x, y int) error {
	if r.state == nil {
		return ErrNoSession
	}
	if !r.state.Grid.InBounds(x, y) {
		return fmt.Errorf("%w: hover (%d,%d)", grid.ErrOutOfBounds, x, y)
	}
	r.hover = &[2]int{x, y}
	r.notify()
	return nil
}

func (r *Room) ClearHover() {
	if r.hover == nil {
		return
	}
	r.hover = nil
	r.notify()
}

// RotateHovered rotates the top-most item on the hovered tile.
func (r *Room) RotateHovered() error {
	if r.state == nil {
		return ErrNoSession
	}
	if r.hover == nil {
		return ErrNoHover
	}
	x, y := r.hover[0], r.hover[1]
	t, err := r.state.Grid.Tile(x, y)
	if err != nil {
		return err
	}
	layer := grid.LayerBase
	if t.Stacked != grid.Empty {
		layer = grid.LayerStacked
	}
	return r.Rotate(x, y, layer)
}

// ClaimGoal pays out the completed goal and advances the phase.
func (r *Room) ClaimGoal() error {
	if r.state == nil {
		return ErrNoSession
	}
	g, err := r.state.Goals.Claim(r.state.Ledger)
	if err != nil {
		return err
	}
	r.absentSince = r.clk.Now()
	r.record(actionlog.ActionEntry{Op: actionlog.OpClaim, Furniture: g.TargetFurniture, Delta: g.Reward})
	r.logger.Printf("session %s: claimed %q reward=%d phase=%d", r.sessionID, g.Description, g.Reward, r.state.Phase())
	r.notify()
	return nil
}

// RetryGoal re-attempts a failed goal generation.
func (r *Room) RetryGoal() error {
	if r.state == nil {
		return ErrNoSession
	}
	if err := r.state.Goals.Retry(); err != nil {
		return err
	}
	r.generateGoal()
	r.notify()
	return nil
}

// DismissError clears the visible collaborator errors. A dismissed goal
// failure returns the tracker to absent, so generation is attempted again
// after the goal delay.
func (r *Room) DismissError() {
	if r.state != nil {
		r.state.Goals.Dismiss()
		r.absentSince = r.clk.Now()
	}
	r.saveErr = nil
	r.notify()
}

func (r *Room) placeable(id string) (catalogs.FurnitureDef, error) {
	def, err := r.cat.Lookup(id)
	if err != nil {
		return def, err
	}
	if def.ID == catalogs.Eraser {
		return def, fmt.Errorf("%w: %s is not placeable", catalogs.ErrUnknownFurniture, id)
	}
	return def, nil
}

func (r *Room) refund(amount int) {
	if err := r.state.Ledger.Credit(amount); err != nil {
		r.logger.Printf("session %s: refund %d: %v", r.sessionID, amount, err)
	}
}
