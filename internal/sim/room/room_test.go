package room

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	actionlog "dreamdecor.ai/internal/persistence/log"
	"dreamdecor.ai/internal/persistence/savestore"
	"dreamdecor.ai/internal/protocol"
	"dreamdecor.ai/internal/sim/catalogs"
	"dreamdecor.ai/internal/sim/clock"
	"dreamdecor.ai/internal/sim/economy"
	"dreamdecor.ai/internal/sim/goals"
	"dreamdecor.ai/internal/sim/grid"
	"dreamdecor.ai/internal/sim/tuning"
	"dreamdecor.ai/internal/textgen"
)

var t0 = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

const testCatalogJSON = `[
  {"id": "ITEM", "name": "Item", "cost": 200, "style_yield": 30, "class": "floor"},
  {"id": "BIG", "name": "Big", "cost": 500, "style_yield": 50, "class": "floor"},
  {"id": "TABLE", "name": "Table", "cost": 150, "style_yield": 10, "class": "surface"},
  {"id": "LAMP", "name": "Lamp", "cost": 60, "style_yield": 5, "class": "stackable"}
]`

func testCatalog(t *testing.T) *catalogs.Catalog {
	t.Helper()
	c, err := catalogs.Parse([]byte(testCatalogJSON))
	require.NoError(t, err)
	return c
}

func testTuning(size, budget int) tuning.Tuning {
	tu := tuning.Defaults()
	tu.GridSize = size
	tu.InitialBudget = budget
	tu.DefaultTool = "ITEM"
	tu.GoalDelayMs = 0
	tu.NewsChancePermille = 0
	return tu
}

// fakeGen answers from scripted functions. When block is set, each call
// waits for it to close or for ctx to end.
type fakeGen struct {
	mu        sync.Mutex
	goalCalls int
	goalFn    func(n int, gc goals.Context) (goals.Goal, error)
	snipFn    func() (textgen.Snippet, bool, error)
	block     chan struct{}
	cancelled chan struct{}
}

func (f *fakeGen) GenerateGoal(ctx context.Context, gc goals.Context) (goals.Goal, error) {
	f.mu.Lock()
	f.goalCalls++
	n := f.goalCalls
	f.mu.Unlock()
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			if f.cancelled != nil {
				close(f.cancelled)
			}
			return goals.Goal{}, ctx.Err()
		}
	}
	if f.goalFn == nil {
		return goals.Goal{}, errors.New("no goals scripted")
	}
	return f.goalFn(n, gc)
}

func (f *fakeGen) GenerateSnippet(context.Context, goals.Context) (textgen.Snippet, bool, error) {
	if f.snipFn == nil {
		return textgen.Snippet{}, false, nil
	}
	return f.snipFn()
}

func (f *fakeGen) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.goalCalls
}

type recordingLog struct {
	mu      sync.Mutex
	entries []actionlog.ActionEntry
}

func (l *recordingLog) WriteAction(e actionlog.ActionEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	return nil
}

func newTestRoom(t *testing.T, cfg Config) *Room {
	t.Helper()
	if cfg.Catalog == nil {
		cfg.Catalog = testCatalog(t)
	}
	if cfg.Tuning.GridSize == 0 {
		cfg.Tuning = testTuning(2, 1000)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewFakeClock(t0)
	}
	r, err := New(cfg)
	require.NoError(t, err)
	return r
}

// applyNext waits for the next background result and applies it.
func applyNext(t *testing.T, r *Room) result {
	t.Helper()
	select {
	case res := <-r.results:
		r.applyResult(res)
		return res
	case <-time.After(2 * time.Second):
		t.Fatalf("no background result")
		return result{}
	}
}

func TestPlaceDebitsAndScores(t *testing.T) {
	r := newTestRoom(t, Config{})
	require.NoError(t, r.NewGame())
	require.NoError(t, r.Place(0, 0, "ITEM"))
	assert.Equal(t, 800, r.State().Budget)

	r.Tick()
	st := r.State()
	assert.Equal(t, 30, st.Score.TotalStyle)
	assert.Equal(t, 1, st.Score.Counts["ITEM"])
}

func TestPlaceOnOccupiedTileKeepsBudget(t *testing.T) {
	r := newTestRoom(t, Config{})
	require.NoError(t, r.NewGame())
	require.NoError(t, r.Place(0, 0, "ITEM"))

	err := r.Place(0, 0, "ITEM")
	assert.ErrorIs(t, err, grid.ErrTileOccupied)
	assert.Equal(t, protocol.ErrTileOccupied, Code(err))
	assert.Equal(t, 800, r.State().Budget)
}

func TestPlaceWithoutFundsChangesNothing(t *testing.T) {
	r := newTestRoom(t, Config{Tuning: testTuning(2, 100)})
	require.NoError(t, r.NewGame())

	err := r.Place(1, 1, "BIG")
	assert.ErrorIs(t, err, economy.ErrInsufficientFunds)
	assert.Equal(t, protocol.ErrInsufficientFunds, Code(err))
	st := r.State()
	assert.Equal(t, 100, st.Budget)
	assert.Empty(t, st.Tiles)
}

func TestCountGoalCompletesAndClaims(t *testing.T) {
	gen := &fakeGen{goalFn: func(int, goals.Context) (goals.Goal, error) {
		return goals.Goal{Description: "two items", Metric: goals.MetricFurnitureCount, TargetFurniture: "ITEM", TargetValue: 2, Reward: 250}, nil
	}}
	r := newTestRoom(t, Config{Tuning: testTuning(2, 1000), Generator: gen})
	require.NoError(t, r.NewGame())
	require.NoError(t, r.Place(0, 0, "ITEM"))

	r.Tick()
	assert.Equal(t, string(goals.StatusGenerating), r.State().GoalStatus)
	applyNext(t, r)
	assert.Equal(t, string(goals.StatusPending), r.State().GoalStatus)

	r.Tick()
	st := r.State()
	require.NotNil(t, st.Goal)
	assert.False(t, st.Goal.Completed)
	assert.Equal(t, 1, st.Goal.Progress)

	require.NoError(t, r.Place(1, 0, "ITEM"))
	r.Tick()
	st = r.State()
	require.NotNil(t, st.Goal)
	assert.True(t, st.Goal.Completed)
	budget := st.Budget

	require.NoError(t, r.ClaimGoal())
	st = r.State()
	assert.Equal(t, budget+250, st.Budget)
	assert.Equal(t, 2, st.Phase)
	assert.Nil(t, st.Goal)

	err := r.ClaimGoal()
	assert.ErrorIs(t, err, goals.ErrGoalNotClaimable)
	assert.Equal(t, 2, r.State().Phase)
	assert.Equal(t, 1, gen.calls())
}

func TestGoalCompletionIsMonotonic(t *testing.T) {
	gen := &fakeGen{goalFn: func(int, goals.Context) (goals.Goal, error) {
		return goals.Goal{Description: "style", Metric: goals.MetricStyle, TargetValue: 30, Reward: 10}, nil
	}}
	r := newTestRoom(t, Config{Generator: gen})
	require.NoError(t, r.NewGame())
	r.Tick()
	applyNext(t, r)

	require.NoError(t, r.Place(0, 0, "ITEM"))
	r.Tick()
	require.True(t, r.State().Goal.Completed)

	require.NoError(t, r.Remove(0, 0))
	for i := 0; i < 3; i++ {
		r.Tick()
		assert.True(t, r.State().Goal.Completed)
	}
}

func TestSaveThenLoadRestoresSession(t *testing.T) {
	ctx := context.Background()
	cat := testCatalog(t)
	store := savestore.NewMemory()
	gen := &fakeGen{goalFn: func(int, goals.Context) (goals.Goal, error) {
		return goals.Goal{Title: "Stylist", Description: "style 100", Metric: goals.MetricStyle, TargetValue: 100, Reward: 350}, nil
	}}
	tu := testTuning(3, 1000)

	a := newTestRoom(t, Config{Tuning: tu, Catalog: cat, Store: store, Generator: gen})
	a.SetIdentity("u1")
	require.NoError(t, a.NewGame())
	require.NoError(t, a.Place(0, 0, "TABLE"))
	require.NoError(t, a.Stack(0, 0, "LAMP"))
	require.NoError(t, a.Rotate(0, 0, grid.LayerStacked))
	require.NoError(t, a.Place(2, 1, "ITEM"))
	require.NoError(t, a.Rotate(2, 1, grid.LayerBase))
	require.NoError(t, a.SelectTool("LAMP"))
	a.Tick()
	applyNext(t, a)
	require.NoError(t, a.Save(ctx))
	assert.Empty(t, a.State().SaveError)

	b := newTestRoom(t, Config{Tuning: tu, Catalog: cat, Store: store})
	b.SetIdentity("u1")
	has, err := b.HasSave(ctx)
	require.NoError(t, err)
	assert.True(t, has)
	require.NoError(t, b.LoadGame(ctx))

	at := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, a.state.Export("u1", at, cat), b.state.Export("u1", at, cat))
	sa, sb := a.State(), b.State()
	assert.Equal(t, sa.Tiles, sb.Tiles)
	assert.Equal(t, sa.Budget, sb.Budget)
	assert.Equal(t, sa.Phase, sb.Phase)
	assert.Equal(t, sa.Goal, sb.Goal)
	assert.Equal(t, "LAMP", sb.Tool)

	c := newTestRoom(t, Config{Tuning: tu, Catalog: cat, Store: store})
	c.SetIdentity("u2")
	err = c.LoadGame(ctx)
	assert.ErrorIs(t, err, ErrNoSave)
	assert.Equal(t, protocol.ErrNoSave, Code(err))
	assert.False(t, c.Active())
}

func TestPlacementRoundTrip(t *testing.T) {
	r := newTestRoom(t, Config{})
	require.NoError(t, r.NewGame())
	require.NoError(t, r.Place(1, 1, "ITEM"))
	require.NoError(t, r.Rotate(1, 1, grid.LayerBase))
	require.NoError(t, r.Remove(1, 1))

	assert.Equal(t, 1000, r.State().Budget)
	tile, err := r.state.Grid.Tile(1, 1)
	require.NoError(t, err)
	assert.True(t, tile.IsEmpty())
	assert.Equal(t, 0, tile.Rotation)
}

func TestBudgetInvariant_RandomOps(t *testing.T) {
	cat := testCatalog(t)
	r := newTestRoom(t, Config{Tuning: testTuning(3, 700), Catalog: cat})
	require.NoError(t, r.NewGame())
	rng := rand.New(rand.NewSource(42))
	ids := []string{"ITEM", "BIG", "TABLE", "LAMP", "NONE", "GHOST"}

	for i := 0; i < 2000; i++ {
		x, y := rng.Intn(5)-1, rng.Intn(5)-1
		switch rng.Intn(4) {
		case 0, 1:
			_ = r.Place(x, y, ids[rng.Intn(len(ids))])
		case 2:
			_ = r.Stack(x, y, ids[rng.Intn(len(ids))])
		default:
			_ = r.Remove(x, y)
		}
		budget := r.state.Ledger.Budget()
		require.GreaterOrEqual(t, budget, 0)

		held := 0
		r.state.Grid.Each(func(tl grid.Tile) {
			if tl.Occupant != grid.Empty {
				held += cat.Defs[tl.Occupant].Cost
			}
			if tl.Stacked != grid.Empty {
				held += cat.Defs[tl.Stacked].Cost
			}
		})
		require.Equal(t, 700, budget+held, "full refunds conserve value")
	}
}

func TestStackAndClick(t *testing.T) {
	r := newTestRoom(t, Config{Tuning: testTuning(3, 1000)})
	require.NoError(t, r.NewGame())

	require.NoError(t, r.SelectTool("TABLE"))
	require.NoError(t, r.Click(0, 0))
	require.NoError(t, r.SelectTool("LAMP"))
	require.NoError(t, r.Click(0, 0))
	require.NoError(t, r.Click(1, 0))

	t00, _ := r.state.Grid.Tile(0, 0)
	assert.Equal(t, "TABLE", t00.Occupant)
	assert.Equal(t, "LAMP", t00.Stacked)
	t10, _ := r.state.Grid.Tile(1, 0)
	assert.Equal(t, "LAMP", t10.Occupant, "a stackable item may stand on the floor")
	assert.Equal(t, 1000-150-60-60, r.State().Budget)

	assert.ErrorIs(t, r.Stack(1, 0, "LAMP"), ErrNotStackable)
	assert.ErrorIs(t, r.Stack(0, 0, "ITEM"), ErrNotStackable)
	assert.ErrorIs(t, r.Stack(0, 0, "LAMP"), grid.ErrTileOccupied)
	assert.ErrorIs(t, r.Stack(2, 2, "LAMP"), grid.ErrTileEmpty)

	require.NoError(t, r.SelectTool(catalogs.Eraser))
	require.NoError(t, r.Click(0, 0))
	t00, _ = r.state.Grid.Tile(0, 0)
	assert.Equal(t, "TABLE", t00.Occupant)
	assert.Empty(t, t00.Stacked)
	require.NoError(t, r.Click(0, 0))
	assert.ErrorIs(t, r.Click(0, 0), grid.ErrTileEmpty)
	assert.Equal(t, 1000-60, r.State().Budget)

	assert.ErrorIs(t, r.Place(2, 2, catalogs.Eraser), catalogs.ErrUnknownFurniture)
	assert.ErrorIs(t, r.SelectTool("GHOST"), catalogs.ErrUnknownFurniture)
}

func TestHoverAndRotateHovered(t *testing.T) {
	r := newTestRoom(t, Config{})
	require.NoError(t, r.NewGame())
	assert.ErrorIs(t, r.RotateHovered(), ErrNoHover)
	assert.ErrorIs(t, r.Hover(5, 0), grid.ErrOutOfBounds)

	require.NoError(t, r.Place(1, 1, "TABLE"))
	require.NoError(t, r.Stack(1, 1, "LAMP"))
	require.NoError(t, r.Hover(1, 1))
	assert.Equal(t, &[2]int{1, 1}, r.State().Hover)

	require.NoError(t, r.RotateHovered())
	tl, _ := r.state.Grid.Tile(1, 1)
	assert.Equal(t, 1, tl.StackedRotation)
	assert.Equal(t, 0, tl.Rotation)

	require.NoError(t, r.Hover(0, 0))
	assert.ErrorIs(t, r.RotateHovered(), grid.ErrTileEmpty)

	r.ClearHover()
	assert.Nil(t, r.State().Hover)
}

func TestNoSession(t *testing.T) {
	r := newTestRoom(t, Config{})
	for _, err := range []error{
		r.Place(0, 0, "ITEM"),
		r.Remove(0, 0),
		r.Rotate(0, 0, grid.LayerBase),
		r.ClaimGoal(),
		r.Hover(0, 0),
		r.Save(context.Background()),
	} {
		assert.ErrorIs(t, err, ErrNoSession)
	}
	r.Tick()
	assert.False(t, r.State().Active)
}

func TestSetIdentityEndsSession(t *testing.T) {
	fc := clock.NewFakeClock(t0)
	r := newTestRoom(t, Config{Clock: fc, Store: savestore.NewMemory()})
	r.SetIdentity("u1")
	require.NoError(t, r.NewGame())
	assert.Equal(t, 2, fc.Active(), "tick and autosave timers")

	r.SetIdentity("u1")
	assert.True(t, r.Active())

	r.SetIdentity("u2")
	assert.False(t, r.Active())
	assert.Equal(t, 0, fc.Active())
	assert.Equal(t, "u2", r.State().Identity)
}

func TestGuestHasNoAutosaveTimer(t *testing.T) {
	fc := clock.NewFakeClock(t0)
	r := newTestRoom(t, Config{Clock: fc, Store: savestore.NewMemory()})
	require.NoError(t, r.NewGame())
	assert.Equal(t, 1, fc.Active())
	assert.ErrorIs(t, r.Save(context.Background()), ErrNoIdentity)
	r.EndSession()
	assert.Equal(t, 0, fc.Active())
}

func TestActionsAreLogged(t *testing.T) {
	logs := &recordingLog{}
	r := newTestRoom(t, Config{Actions: logs})
	require.NoError(t, r.NewGame())
	require.NoError(t, r.Place(0, 0, "TABLE"))
	require.NoError(t, r.Stack(0, 0, "LAMP"))
	require.NoError(t, r.Rotate(0, 0, grid.LayerStacked))
	require.NoError(t, r.Remove(0, 0))
	_ = r.Place(0, 0, "TABLE")

	var ops []actionlog.Op
	for _, e := range logs.entries {
		ops = append(ops, e.Op)
		assert.Equal(t, r.SessionID(), e.Session)
	}
	assert.Equal(t, []actionlog.Op{actionlog.OpNew, actionlog.OpPlace, actionlog.OpStack, actionlog.OpRotate, actionlog.OpRemove}, ops)
	assert.Equal(t, -60, logs.entries[2].Delta)
	assert.Equal(t, 60, logs.entries[4].Delta)
	assert.Equal(t, "LAMP", logs.entries[4].Furniture)
	assert.Equal(t, 1000-150, logs.entries[4].Budget)
	assert.Equal(t, uint64(5), logs.entries[4].Seq)
}

func TestApplyDispatch(t *testing.T) {
	ctx := context.Background()
	r := newTestRoom(t, Config{Store: savestore.NewMemory()})
	act := func(a protocol.ActMsg) error { return r.Apply(ctx, a) }

	require.NoError(t, act(protocol.ActMsg{Op: protocol.OpSetIdentity, Identity: "u9"}))
	assert.ErrorIs(t, act(protocol.ActMsg{Op: protocol.OpLoadGame}), ErrNoSave)
	require.NoError(t, act(protocol.ActMsg{Op: protocol.OpNewGame}))
	require.NoError(t, act(protocol.ActMsg{Op: protocol.OpPlace, X: 1, Y: 0, Furniture: "TABLE"}))
	require.NoError(t, act(protocol.ActMsg{Op: protocol.OpStack, X: 1, Y: 0, Furniture: "LAMP"}))
	require.NoError(t, act(protocol.ActMsg{Op: protocol.OpRotate, X: 1, Y: 0, Layer: "stacked"}))
	require.NoError(t, act(protocol.ActMsg{Op: protocol.OpHover, X: 1, Y: 0}))
	require.NoError(t, act(protocol.ActMsg{Op: protocol.OpRotateHovered}))
	require.NoError(t, act(protocol.ActMsg{Op: protocol.OpHover, Clear: true}))
	require.NoError(t, act(protocol.ActMsg{Op: protocol.OpSave}))
	require.NoError(t, act(protocol.ActMsg{Op: protocol.OpLoadGame}))

	tl, _ := r.state.Grid.Tile(1, 0)
	assert.Equal(t, 2, tl.StackedRotation)

	err := act(protocol.ActMsg{Op: protocol.OpClaimGoal})
	assert.Equal(t, protocol.ErrGoalNotClaimable, Code(err))
	err = act(protocol.ActMsg{Op: "DANCE"})
	assert.Equal(t, protocol.ErrBadRequest, Code(err))

	require.NoError(t, act(protocol.ActMsg{Op: protocol.OpDeleteSave}))
	require.NoError(t, act(protocol.ActMsg{Op: protocol.OpEndSession}))
	assert.False(t, r.Active())
}

func TestCode(t *testing.T) {
	cases := map[error]string{
		nil:                          "",
		ErrNoSession:                 protocol.ErrNoSession,
		grid.ErrOutOfBounds:          protocol.ErrOutOfBounds,
		grid.ErrTileEmpty:            protocol.ErrTileEmpty,
		catalogs.ErrUnknownFurniture: protocol.ErrUnknownFurniture,
		goals.ErrNotRetryable:        protocol.ErrNotRetryable,
		ErrNoHover:                   protocol.ErrBadRequest,
		ErrStorage:                   protocol.ErrStorage,
		errors.New("something else"): protocol.ErrInternal,
		economy.ErrInsufficientFunds: protocol.ErrInsufficientFunds,
		ErrNotStackable:              protocol.ErrNotStackable,
		goals.ErrGoalNotClaimable:    protocol.ErrGoalNotClaimable,
	}
	for err, want := range cases {
		got := Code(err)
		assert.Equal(t, want, got, "%v", err)
		assert.True(t, protocol.IsKnownCode(got))
	}
}

func TestWelcome(t *testing.T) {
	ctx := context.Background()
	store := savestore.NewMemory()
	r := newTestRoom(t, Config{Store: store})
	r.SetIdentity("u1")
	w := r.Welcome(ctx, "c1")
	assert.False(t, w.HasSave)
	assert.Equal(t, "c1", w.ConnectionID)
	assert.Equal(t, 2, w.Params.GridSize)
	require.Len(t, w.Catalog.Furniture, 5)
	assert.Equal(t, catalogs.Eraser, w.Catalog.Furniture[0].ID)

	require.NoError(t, r.NewGame())
	require.NoError(t, r.Save(ctx))
	assert.True(t, r.Welcome(ctx, "c2").HasSave)
}
