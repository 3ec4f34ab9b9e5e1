package room

import (
	"context"
	"errors"
	"fmt"

	"dreamdecor.ai/internal/protocol"
	"dreamdecor.ai/internal/sim/catalogs"
	"dreamdecor.ai/internal/sim/economy"
	"dreamdecor.ai/internal/sim/goals"
	"dreamdecor.ai/internal/sim/grid"
)

// State is the read-only renderer view of the room.
func (r *Room) State() protocol.StateMsg {
	m := protocol.StateMsg{
		Type:            protocol.TypeState,
		ProtocolVersion: protocol.Version,
		Tick:            r.tick,
		Identity:        r.identity,
	}
	if r.saveErr != nil {
		m.SaveError = r.saveErr.Error()
	}
	if !r.lastSavedAt.IsZero() {
		m.LastSavedAtMs = r.lastSavedAt.UnixMilli()
	}
	if r.state == nil {
		return m
	}
	st := r.state
	m.Active = true
	m.GridSize = st.Grid.Size()
	st.Grid.Each(func(t grid.Tile) {
		if t.IsEmpty() {
			return
		}
		m.Tiles = append(m.Tiles, protocol.TileInfo{
			X:               t.X,
			Y:               t.Y,
			Occupant:        t.Occupant,
			Rotation:        t.Rotation,
			Stacked:         t.Stacked,
			StackedRotation: t.StackedRotation,
		})
	})
	m.Budget = st.Ledger.Budget()
	m.Phase = st.Phase()
	counts := make(map[string]int, len(st.Score.Counts))
	for k, v := range st.Score.Counts {
		counts[k] = v
	}
	m.Score = protocol.ScoreInfo{
		TotalStyle:   st.Score.TotalStyle,
		TotalComfort: st.Score.TotalComfort,
		Counts:       counts,
	}
	m.GoalStatus = string(st.Goals.Status())
	if g, ok := st.Goals.Active(); ok {
		m.Goal = &protocol.GoalInfo{
			ID:              g.ID,
			Title:           g.Title,
			Description:     g.Description,
			Metric:          string(g.Metric),
			TargetValue:     g.TargetValue,
			TargetFurniture: g.TargetFurniture,
			Reward:          g.Reward,
			Completed:       g.Completed,
			Progress:        g.Progress(st.Score),
		}
	}
	if err := st.Goals.Failure(); err != nil {
		m.GoalError = err.Error()
	}
	m.Tool = st.Tool
	if r.hover != nil {
		h := *r.hover
		m.Hover = &h
	}
	for _, s := range r.feed {
		m.Feed = append(m.Feed, protocol.Snippet{ID: s.ID, Text: s.Text, Category: string(s.Category)})
	}
	return m
}

// Welcome describes the room to a newly connected client.
func (r *Room) Welcome(ctx context.Context, connID string) protocol.WelcomeMsg {
	t := r.cfg.Tuning
	m := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		ConnectionID:    connID,
		Identity:        r.identity,
		Params: protocol.RoomParams{
			GridSize:      t.GridSize,
			InitialBudget: t.InitialBudget,
			TickMs:        t.TickMs,
			AutosaveMs:    t.AutosaveMs,
			NewsFeedCap:   t.NewsFeedCap,
		},
		Catalog: protocol.CatalogInfo{Digest: r.cat.Digest},
	}
	for _, id := range r.cat.Palette {
		d := r.cat.Defs[id]
		m.Catalog.Furniture = append(m.Catalog.Furniture, protocol.FurnitureInfo{
			ID:           d.ID,
			Name:         d.Name,
			Cost:         d.Cost,
			StyleYield:   d.StyleYield,
			ComfortYield: d.ComfortYield,
			Class:        string(d.Class),
		})
	}
	has, err := r.HasSave(ctx)
	if err != nil {
		r.logger.Printf("welcome %s: has save: %v", connID, err)
	}
	m.HasSave = has
	return m
}

// Apply dispatches one decoded ACT.
func (r *Room) Apply(ctx context.Context, a protocol.ActMsg) error {
	switch a.Op {
	case protocol.OpSetIdentity:
		r.SetIdentity(a.Identity)
		return nil
	case protocol.OpNewGame:
		return r.NewGame()
	case protocol.OpLoadGame:
		return r.LoadGame(ctx)
	case protocol.OpEndSession:
		r.EndSession()
		r.notify()
		return nil
	case protocol.OpSave:
		return r.Save(ctx)
	case protocol.OpDeleteSave:
		return r.DeleteSave(ctx)
	case protocol.OpPlace:
		return r.Place(a.X, a.Y, a.Furniture)
	case protocol.OpStack:
		return r.Stack(a.X, a.Y, a.Furniture)
	case protocol.OpRemove:
		return r.Remove(a.X, a.Y)
	case protocol.OpRotate:
		layer := grid.LayerBase
		if a.Layer == "stacked" {
			layer = grid.LayerStacked
		}
		return r.Rotate(a.X, a.Y, layer)
	case protocol.OpClick:
		return r.Click(a.X, a.Y)
	case protocol.OpSelectTool:
		return r.SelectTool(a.Furniture)
	case protocol.OpHover:
		if a.Clear {
			r.ClearHover()
			return nil
		}
		return r.Hover(a.X, a.Y)
	case protocol.OpRotateHovered:
		return r.RotateHovered()
	case protocol.OpClaimGoal:
		return r.ClaimGoal()
	case protocol.OpRetryGoal:
		return r.RetryGoal()
	case protocol.OpDismissError:
		r.DismissError()
		return nil
	default:
		return fmt.Errorf("%w: op %q", ErrBadOp, a.Op)
	}
}

var ErrBadOp = errors.New("unsupported op")

// Code maps an action error to its wire code.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoSession):
		return protocol.ErrNoSession
	case errors.Is(err, grid.ErrOutOfBounds):
		return protocol.ErrOutOfBounds
	case errors.Is(err, grid.ErrTileOccupied):
		return protocol.ErrTileOccupied
	case errors.Is(err, grid.ErrTileEmpty):
		return protocol.ErrTileEmpty
	case errors.Is(err, ErrNotStackable):
		return protocol.ErrNotStackable
	case errors.Is(err, economy.ErrInsufficientFunds):
		return protocol.ErrInsufficientFunds
	case errors.Is(err, catalogs.ErrUnknownFurniture):
		return protocol.ErrUnknownFurniture
	case errors.Is(err, goals.ErrGoalNotClaimable):
		return protocol.ErrGoalNotClaimable
	case errors.Is(err, goals.ErrNotRetryable):
		return protocol.ErrNotRetryable
	case errors.Is(err, ErrNoSave):
		return protocol.ErrNoSave
	case errors.Is(err, ErrNoIdentity), errors.Is(err, ErrNoHover), errors.Is(err, ErrBadOp):
		return protocol.ErrBadRequest
	case errors.Is(err, ErrNoStore), errors.Is(err, ErrStorage):
		return protocol.ErrStorage
	}
	return protocol.ErrInternal
}
