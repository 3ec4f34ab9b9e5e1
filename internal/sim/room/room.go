// Package room runs one player's decorating session. A Room owns the
// session state and is the single scheduling authority for it: every
// mutation, tick and autosave is applied on one goroutine, and work that
// may block (goal and news generation, autosave writes) runs elsewhere and
// reports back through a channel tagged with the session epoch.
package room

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	actionlog "dreamdecor.ai/internal/persistence/log"
	"dreamdecor.ai/internal/persistence/snapshot"
	"dreamdecor.ai/internal/protocol"
	"dreamdecor.ai/internal/sim/catalogs"
	"dreamdecor.ai/internal/sim/clock"
	"dreamdecor.ai/internal/sim/goals"
	"dreamdecor.ai/internal/sim/session"
	"dreamdecor.ai/internal/sim/tuning"
	"dreamdecor.ai/internal/textgen"
)

var (
	ErrNoSession    = errors.New("no active session")
	ErrNoIdentity   = errors.New("no player identity")
	ErrNoStore      = errors.New("no save store configured")
	ErrStorage      = errors.New("save store failure")
	ErrNoSave       = errors.New("no save for identity")
	ErrNotStackable = errors.New("not stackable")
	ErrNoHover      = errors.New("no hovered tile")
	ErrClosed       = errors.New("room closed")
)

// SaveStore is the persistence collaborator, keyed by player identity.
type SaveStore interface {
	Save(ctx context.Context, identity string, snap snapshot.SaveV1) error
	Load(ctx context.Context, identity string) (snapshot.SaveV1, bool, error)
	Exists(ctx context.Context, identity string) (bool, error)
	Delete(ctx context.Context, identity string) error
}

type ActionLogger interface {
	WriteAction(e actionlog.ActionEntry) error
}

type Config struct {
	Tuning  tuning.Tuning
	Catalog *catalogs.Catalog
	Clock   clock.Clock

	// Optional collaborators. Without a generator the room runs with no
	// goals or news; without a store it never saves.
	Generator textgen.Generator
	Store     SaveStore
	Actions   ActionLogger
	Logger    *log.Logger

	Seed int64

	// OnChange is called on the room goroutine after every change visible
	// to a renderer. It must not block.
	OnChange func(protocol.StateMsg)
}

type resultKind int

const (
	resGoal resultKind = iota + 1
	resSnippet
	resSave
)

type result struct {
	kind  resultKind
	epoch uint64
	stale bool

	goal    goals.Goal
	snippet textgen.Snippet
	ok      bool
	at      time.Time
	err     error
}

type request struct {
	fn   func(*Room)
	done chan struct{}
}

type Room struct {
	cfg    Config
	cat    *catalogs.Catalog
	clk    clock.Clock
	gen    textgen.Generator
	store  SaveStore
	acts   ActionLogger
	logger *log.Logger
	rng    *rand.Rand

	identity  string
	state     *session.State
	sessionID string
	// epoch changes whenever the session is replaced or ended; results
	// tagged with an older epoch are dropped.
	epoch     uint64
	genCtx    context.Context
	genCancel context.CancelFunc

	tick        uint64
	seq         uint64
	hover       *[2]int
	feed        []textgen.Snippet
	absentSince time.Time

	snippetPending bool
	savePending    bool
	saveErr        error
	lastSavedAt    time.Time

	// Every store write carries the sequence number of its export and
	// goes through writeSave, which serializes writes and drops any that
	// are older than what the store already holds.
	exportSeq uint64
	saveMu    sync.Mutex
	storedSeq uint64 // guarded by saveMu

	tickT clock.Ticker
	saveT clock.Ticker

	inbox   chan request
	results chan result
	done    chan struct{}
}

func New(cfg Config) (*Room, error) {
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("room: nil catalog")
	}
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, err
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Room{
		cfg:     cfg,
		cat:     cfg.Catalog,
		clk:     cfg.Clock,
		gen:     cfg.Generator,
		store:   cfg.Store,
		acts:    cfg.Actions,
		logger:  logger,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		inbox:   make(chan request, 64),
		results: make(chan result, 16),
		done:    make(chan struct{}),
	}, nil
}

func (r *Room) Identity() string  { return r.identity }
func (r *Room) SessionID() string { return r.sessionID }
func (r *Room) Active() bool      { return r.state != nil }

// SetIdentity binds the player identity. A different identity ends the
// current session; the caller must start or load a game again.
func (r *Room) SetIdentity(identity string) {
	if identity == r.identity {
		return
	}
	r.EndSession()
	r.identity = identity
	r.notify()
}

// HasSave reports whether the bound identity has a stored snapshot.
func (r *Room) HasSave(ctx context.Context) (bool, error) {
	if r.identity == "" || r.store == nil {
		return false, nil
	}
	return r.store.Exists(ctx, r.identity)
}

// NewGame replaces any current session with a fresh one.
func (r *Room) NewGame() error {
	st, err := session.New(r.cfg.Tuning, r.cat)
	if err != nil {
		return err
	}
	r.begin(st)
	r.record(actionlog.ActionEntry{Op: actionlog.OpNew, GridSize: st.Grid.Size()})
	r.logger.Printf("session %s: new game identity=%q", r.sessionID, r.identity)
	r.notify()
	return nil
}

// LoadGame replaces any current session with the bound identity's save.
func (r *Room) LoadGame(ctx context.Context) error {
	if r.identity == "" {
		return ErrNoIdentity
	}
	if r.store == nil {
		return ErrNoStore
	}
	snap, ok, err := r.store.Load(ctx, r.identity)
	if err != nil {
		return fmt.Errorf("%w: load %q: %v", ErrStorage, r.identity, err)
	}
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoSave, r.identity)
	}
	st, err := session.Import(snap, r.cat)
	if err != nil {
		return fmt.Errorf("load %q: %w", r.identity, err)
	}
	if snap.CatalogDigest != "" && snap.CatalogDigest != r.cat.Digest {
		r.logger.Printf("load %q: save made against catalog %s, running %s", r.identity, snap.CatalogDigest, r.cat.Digest)
	}
	r.begin(st)
	r.lastSavedAt = snap.Header.SavedAt
	r.record(actionlog.ActionEntry{Op: actionlog.OpLoad, GridSize: st.Grid.Size()})
	r.logger.Printf("session %s: loaded identity=%q saved_at=%s", r.sessionID, r.identity, snap.Header.SavedAt.Format(time.RFC3339))
	r.notify()
	return nil
}

// DeleteSave removes the bound identity's save. The current session, if
// any, keeps running.
func (r *Room) DeleteSave(ctx context.Context) error {
	if r.identity == "" {
		return ErrNoIdentity
	}
	if r.store == nil {
		return ErrNoStore
	}
	// Autosaves exported before the delete must not bring the save back.
	r.saveMu.Lock()
	err := r.store.Delete(ctx, r.identity)
	if err == nil {
		r.storedSeq = r.exportSeq
	}
	r.saveMu.Unlock()
	if err != nil {
		return fmt.Errorf("%w: delete %q: %v", ErrStorage, r.identity, err)
	}
	r.notify()
	return nil
}

// EndSession stops both periodic actions and discards the session. Any
// generation or save still in flight is cancelled and its result ignored.
func (r *Room) EndSession() {
	r.stopTimers()
	if r.genCancel != nil {
		r.genCancel()
		r.genCancel = nil
	}
	if r.state != nil {
		r.logger.Printf("session %s: ended", r.sessionID)
	}
	r.epoch++
	r.state = nil
	r.sessionID = ""
	r.tick = 0
	r.hover = nil
	r.feed = nil
	r.absentSince = time.Time{}
	r.snippetPending = false
	r.savePending = false
	r.saveErr = nil
	r.lastSavedAt = time.Time{}
}

func (r *Room) begin(st *session.State) {
	r.EndSession()
	r.state = st
	r.sessionID = uuid.NewString()
	r.genCtx, r.genCancel = context.WithCancel(context.Background())
	r.absentSince = r.clk.Now()
	r.startTimers()
}

func (r *Room) startTimers() {
	r.tickT = r.clk.NewTicker(r.cfg.Tuning.TickInterval())
	if r.identity != "" && r.store != nil {
		r.saveT = r.clk.NewTicker(r.cfg.Tuning.AutosaveInterval())
	}
}

func (r *Room) stopTimers() {
	if r.tickT != nil {
		r.tickT.Stop()
		r.tickT = nil
	}
	if r.saveT != nil {
		r.saveT.Stop()
		r.saveT = nil
	}
}

// Save writes the session synchronously. Autosave uses the same export
// but writes off the room goroutine; Save waits for an autosave write that
// is still running so the newer snapshot always lands last.
func (r *Room) Save(ctx context.Context) error {
	snap, seq, err := r.exportNext()
	if err != nil {
		return err
	}
	if _, err := r.writeSave(ctx, r.identity, seq, snap); err != nil {
		err = fmt.Errorf("%w: save %q: %v", ErrStorage, r.identity, err)
		r.recordSave(err, snap.Header.SavedAt)
		return err
	}
	r.recordSave(nil, snap.Header.SavedAt)
	return nil
}

// exportNext exports the session and numbers it. Room goroutine only.
func (r *Room) exportNext() (snapshot.SaveV1, uint64, error) {
	snap, err := r.export()
	if err != nil {
		return snap, 0, err
	}
	r.exportSeq++
	return snap, r.exportSeq, nil
}

// writeSave stores snap unless a later export has already been stored or
// the save was deleted after snap was taken. It reports stale=true when it
// skipped the write. Safe to call from any goroutine.
func (r *Room) writeSave(ctx context.Context, identity string, seq uint64, snap snapshot.SaveV1) (stale bool, err error) {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()
	if seq <= r.storedSeq {
		return true, nil
	}
	if err := r.store.Save(ctx, identity, snap); err != nil {
		return false, err
	}
	r.storedSeq = seq
	return false, nil
}

func (r *Room) export() (snapshot.SaveV1, error) {
	if r.state == nil {
		return snapshot.SaveV1{}, ErrNoSession
	}
	if r.identity == "" {
		return snapshot.SaveV1{}, ErrNoIdentity
	}
	if r.store == nil {
		return snapshot.SaveV1{}, ErrNoStore
	}
	return r.state.Export(r.identity, r.clk.Now(), r.cat), nil
}

func (r *Room) recordSave(err error, at time.Time) {
	if err != nil {
		r.saveErr = err
		r.logger.Printf("session %s: save failed: %v", r.sessionID, err)
	} else {
		r.saveErr = nil
		r.lastSavedAt = at
	}
	r.notify()
}

func (r *Room) record(e actionlog.ActionEntry) {
	if r.acts == nil || r.state == nil {
		return
	}
	r.seq++
	e.TimeUnixMs = r.clk.Now().UnixMilli()
	e.Session = r.sessionID
	e.Identity = r.identity
	e.Seq = r.seq
	e.Budget = r.state.Ledger.Budget()
	e.Phase = r.state.Phase()
	if err := r.acts.WriteAction(e); err != nil {
		r.logger.Printf("session %s: action log: %v", r.sessionID, err)
	}
}

func (r *Room) notify() {
	if r.cfg.OnChange != nil {
		r.cfg.OnChange(r.State())
	}
}
