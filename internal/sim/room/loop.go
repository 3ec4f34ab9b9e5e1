package room

import (
	"context"
	"time"

	"dreamdecor.ai/internal/sim/clock"
	"dreamdecor.ai/internal/sim/goals"
	"dreamdecor.ai/internal/sim/score"
	"dreamdecor.ai/internal/textgen"
)

// Tick is one recompute step: score, then goal completion, then the goal
// and news requests that are due. It does nothing without a session.
func (r *Room) Tick() {
	if r.state == nil {
		return
	}
	r.tick++
	r.state.Score = score.Recompute(r.state.Grid, r.cat)
	if r.state.Goals.Evaluate(r.state.Score) {
		g, _ := r.state.Goals.Active()
		r.logger.Printf("session %s: goal completed %q", r.sessionID, g.Description)
	}
	r.maybeRequestGoal()
	r.maybeRequestSnippet()
	r.notify()
}

func (r *Room) maybeRequestGoal() {
	if r.gen == nil {
		return
	}
	if r.state.Goals.Status() != goals.StatusAbsent {
		r.absentSince = r.clk.Now()
		return
	}
	if r.clk.Now().Sub(r.absentSince) < r.cfg.Tuning.GoalDelay() {
		return
	}
	if !r.state.Goals.Begin() {
		return
	}
	r.generateGoal()
}

// generateGoal runs the generator for a tracker already marked generating.
func (r *Room) generateGoal() {
	if r.gen == nil {
		r.state.Goals.Resolve(goals.Goal{}, textgen.ErrUnavailable)
		return
	}
	gen, ctx, epoch, gc := r.gen, r.genCtx, r.epoch, r.state.GoalContext()
	go func() {
		g, err := gen.GenerateGoal(ctx, gc)
		deliver(ctx, r.results, result{kind: resGoal, epoch: epoch, goal: g, err: err})
	}()
}

func (r *Room) maybeRequestSnippet() {
	if r.gen == nil || r.snippetPending {
		return
	}
	if r.rng.Intn(1000) >= r.cfg.Tuning.NewsChancePermille {
		return
	}
	r.snippetPending = true
	gen, ctx, epoch, gc := r.gen, r.genCtx, r.epoch, r.state.GoalContext()
	go func() {
		s, ok, err := gen.GenerateSnippet(ctx, gc)
		deliver(ctx, r.results, result{kind: resSnippet, epoch: epoch, snippet: s, ok: ok, err: err})
	}()
}

// autosave starts a background write of the current session. At most one
// write is in flight; a tick of the autosave timer that finds one running
// is skipped.
func (r *Room) autosave() {
	if r.savePending {
		return
	}
	snap, seq, err := r.exportNext()
	if err != nil {
		return
	}
	r.savePending = true
	ctx, epoch, id := r.genCtx, r.epoch, r.identity
	go func() {
		stale, err := r.writeSave(ctx, id, seq, snap)
		deliver(ctx, r.results, result{kind: resSave, epoch: epoch, stale: stale, at: snap.Header.SavedAt, err: err})
	}()
}

func deliver(ctx context.Context, ch chan<- result, res result) {
	select {
	case ch <- res:
	case <-ctx.Done():
	}
}

// applyResult folds a finished background call into the session. Results
// from an earlier session are dropped.
func (r *Room) applyResult(res result) {
	if res.epoch != r.epoch || r.state == nil {
		return
	}
	switch res.kind {
	case resGoal:
		r.state.Goals.Resolve(res.goal, res.err)
		if err := r.state.Goals.Failure(); err != nil {
			r.logger.Printf("session %s: goal generation failed: %v", r.sessionID, err)
		}
	case resSnippet:
		r.snippetPending = false
		if res.err != nil {
			r.logger.Printf("session %s: news generation failed: %v", r.sessionID, res.err)
			return
		}
		if !res.ok {
			return
		}
		r.feed = append(r.feed, res.snippet)
		if over := len(r.feed) - r.cfg.Tuning.NewsFeedCap; over > 0 {
			r.feed = append(r.feed[:0:0], r.feed[over:]...)
		}
	case resSave:
		r.savePending = false
		if !res.stale {
			r.recordSave(res.err, res.at)
		}
		return
	}
	r.notify()
}

// Run is the room loop. It serializes requests submitted with Do, tick and
// autosave timer fires, and background results. The session is ended when
// Run returns.
func (r *Room) Run(ctx context.Context) error {
	defer close(r.done)
	defer r.EndSession()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-r.inbox:
			req.fn(r)
			close(req.done)
		case res := <-r.results:
			r.applyResult(res)
		case <-tickerC(r.tickT):
			r.Tick()
		case <-tickerC(r.saveT):
			r.autosave()
		}
	}
}

// Do runs fn on the room goroutine and waits for it to finish.
func (r *Room) Do(ctx context.Context, fn func(*Room)) error {
	req := request{fn: fn, done: make(chan struct{})}
	select {
	case r.inbox <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrClosed
	}
	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrClosed
	}
}

func tickerC(t clock.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C()
}
