package clock

import (
	"sort"
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) NewTicker(d time.Duration) Ticker { return realTicker{time.NewTicker(d)} }

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// FakeClock is deterministic and test-friendly. Tickers fire only when the
// clock is advanced past their next deadline; like time.Ticker, a slow
// reader sees dropped ticks rather than a backlog.
type FakeClock struct {
	mu      sync.Mutex
	t       time.Time
	tickers []*fakeTicker
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{t: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *FakeClock) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("clock: non-positive ticker interval")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ft := &fakeTicker{
		clock: c,
		every: d,
		next:  c.t.Add(d),
		ch:    make(chan time.Time, 1),
	}
	c.tickers = append(c.tickers, ft)
	return ft
}

// Advance moves the clock forward by d, firing tickers in deadline order.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	end := c.t.Add(d)
	for {
		var due []*fakeTicker
		for _, ft := range c.tickers {
			if !ft.stopped && !ft.next.After(end) {
				due = append(due, ft)
			}
		}
		if len(due) == 0 {
			break
		}
		sort.SliceStable(due, func(i, j int) bool { return due[i].next.Before(due[j].next) })
		ft := due[0]
		c.t = ft.next
		ft.next = ft.next.Add(ft.every)
		select {
		case ft.ch <- c.t:
		default:
		}
	}
	c.t = end
}

// Active reports how many tickers have not been stopped.
func (c *FakeClock) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, ft := range c.tickers {
		if !ft.stopped {
			n++
		}
	}
	return n
}

type fakeTicker struct {
	clock   *FakeClock
	every   time.Duration
	next    time.Time
	ch      chan time.Time
	stopped bool
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }

// Stop detaches the ticker from its clock, so Advance only ever scans
// live tickers.
func (f *fakeTicker) Stop() {
	c := f.clock
	c.mu.Lock()
	defer c.mu.Unlock()
	if f.stopped {
		return
	}
	f.stopped = true
	for i, ft := range c.tickers {
		if ft == f {
			c.tickers = append(c.tickers[:i], c.tickers[i+1:]...)
			break
		}
	}
}
