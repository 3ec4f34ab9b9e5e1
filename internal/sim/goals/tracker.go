package goals

import (
	"fmt"

	"dreamdecor.ai/internal/sim/economy"
	"dreamdecor.ai/internal/sim/score"
)

type Status string

const (
	StatusAbsent     Status = "absent"
	StatusGenerating Status = "generating"
	StatusPending    Status = "pending"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Tracker holds at most one goal and the phase counter.
//
//	absent -> generating -> pending -> completed -(claim)-> absent
//	               \-> failed -(retry)-> generating
type Tracker struct {
	active     *Goal
	phase      int
	generating bool
	failure    error
}

func NewTracker() *Tracker { return &Tracker{phase: 1} }

// Restore rebuilds a tracker from saved state. Generation state is never
// saved; a restored tracker is either absent or holds the saved goal.
func Restore(active *Goal, phase int) (*Tracker, error) {
	if phase < 1 {
		return nil, fmt.Errorf("goals: bad phase %d", phase)
	}
	t := &Tracker{phase: phase}
	if active != nil {
		if err := active.Validate(); err != nil {
			return nil, err
		}
		g := *active
		t.active = &g
	}
	return t, nil
}

func (t *Tracker) Phase() int { return t.phase }

func (t *Tracker) Status() Status {
	switch {
	case t.generating:
		return StatusGenerating
	case t.failure != nil:
		return StatusFailed
	case t.active == nil:
		return StatusAbsent
	case t.active.Completed:
		return StatusCompleted
	default:
		return StatusPending
	}
}

// Active returns a copy of the current goal.
func (t *Tracker) Active() (Goal, bool) {
	if t.active == nil {
		return Goal{}, false
	}
	return *t.active, true
}

// Failure is the last generation error, or nil.
func (t *Tracker) Failure() error { return t.failure }

// Begin marks a generation request in flight. It returns false when one is
// already running, a goal exists, or the last attempt failed and has not
// been retried.
func (t *Tracker) Begin() bool {
	if t.Status() != StatusAbsent {
		return false
	}
	t.generating = true
	return true
}

// Resolve applies the outcome of the in-flight generation. Results that
// arrive with no request in flight are ignored.
func (t *Tracker) Resolve(g Goal, err error) {
	if !t.generating {
		return
	}
	t.generating = false
	if err == nil {
		err = g.Validate()
	}
	if err != nil {
		t.failure = err
		return
	}
	g.Completed = false
	t.active = &g
	t.failure = nil
}

// Abandon drops an in-flight request without recording a failure.
func (t *Tracker) Abandon() { t.generating = false }

// Retry clears a failure and starts a new request.
func (t *Tracker) Retry() error {
	if t.Status() != StatusFailed {
		return fmt.Errorf("%w: status %s", ErrNotRetryable, t.Status())
	}
	t.failure = nil
	t.generating = true
	return nil
}

// Dismiss clears a failure without starting a new request.
func (t *Tracker) Dismiss() {
	if !t.generating {
		t.failure = nil
	}
}

// Evaluate flips the active goal to completed when s meets it. Completion
// is terminal; it reports whether this call made the transition.
func (t *Tracker) Evaluate(s score.Snapshot) bool {
	if t.active == nil || t.active.Completed {
		return false
	}
	if !t.active.Met(s) {
		return false
	}
	t.active.Completed = true
	return true
}

// Claim pays out a completed goal, advances the phase and deletes the goal.
func (t *Tracker) Claim(l *economy.Ledger) (Goal, error) {
	if t.active == nil {
		return Goal{}, fmt.Errorf("%w: no active goal", ErrGoalNotClaimable)
	}
	if !t.active.Completed {
		return Goal{}, fmt.Errorf("%w: goal not completed", ErrGoalNotClaimable)
	}
	g := *t.active
	if err := l.Credit(g.Reward); err != nil {
		return Goal{}, err
	}
	t.active = nil
	t.phase++
	return g, nil
}
