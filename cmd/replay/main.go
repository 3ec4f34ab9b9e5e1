package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	persistlog "dreamdecor.ai/internal/persistence/log"
	"dreamdecor.ai/internal/sim/catalogs"
	"dreamdecor.ai/internal/sim/economy"
	"dreamdecor.ai/internal/sim/grid"
	"dreamdecor.ai/internal/sim/score"
	"dreamdecor.ai/internal/sim/session"
	"dreamdecor.ai/internal/sim/tuning"
)

func main() {
	var (
		dataDir     = flag.String("data", "./data", "runtime data directory")
		actionsDir  = flag.String("actions", "", "directory containing actions-*.jsonl.zst (default: <data>/actions)")
		catalogPath = flag.String("catalog", "", "furniture.json the log was written against (default: bundled catalog)")
		sessionID   = flag.String("session", "", "replay only this session id (optional)")
		quiet       = flag.Bool("q", false, "print only the summary")
	)
	flag.Parse()

	dir := strings.TrimSpace(*actionsDir)
	if dir == "" {
		dir = filepath.Join(*dataDir, "actions")
	}
	cat := catalogs.Default()
	if p := strings.TrimSpace(*catalogPath); p != "" {
		c, err := catalogs.Load(p)
		if err != nil {
			fmt.Fprintln(os.Stderr, "load catalog:", err)
			os.Exit(1)
		}
		cat = c
	}

	files, err := persistlog.ActionFiles(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list actions:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no action files found in", dir)
		os.Exit(1)
	}

	var out io.Writer = os.Stdout
	if *quiet {
		out = io.Discard
	}
	r := newReplayer(cat, strings.TrimSpace(*sessionID), out)
	for _, path := range files {
		if err := persistlog.ReadActions(path, r.apply); err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
	}
	s := r.summary
	fmt.Printf("replay: sessions=%d entries=%d applied=%d skipped=%d mismatches=%d\n",
		s.Sessions, s.Entries, s.Applied, s.Skipped, s.Mismatches)
	if s.Mismatches > 0 {
		os.Exit(1)
	}
}

type summary struct {
	Sessions   int
	Entries    int
	Applied    int
	Skipped    int
	Mismatches int
}

// replayer re-applies logged grid and ledger mutations to fresh sessions
// and checks each logged budget against the recomputed one. Sessions that
// started from a save cannot be rebuilt from the log alone and are skipped.
type replayer struct {
	cat     *catalogs.Catalog
	only    string
	out     io.Writer
	live    map[string]*session.State
	summary summary
}

func newReplayer(cat *catalogs.Catalog, only string, out io.Writer) *replayer {
	return &replayer{
		cat:  cat,
		only: only,
		out:  out,
		live: map[string]*session.State{},
	}
}

func (r *replayer) apply(e persistlog.ActionEntry) error {
	if r.only != "" && e.Session != r.only {
		return nil
	}
	r.summary.Entries++

	switch e.Op {
	case persistlog.OpNew:
		t := tuning.Defaults()
		t.GridSize = e.GridSize
		t.InitialBudget = e.Budget
		st, err := session.New(t, r.cat)
		if err != nil {
			return fmt.Errorf("session %s: %w", e.Session, err)
		}
		r.live[e.Session] = st
		r.summary.Sessions++
		r.summary.Applied++
		r.report(e, st)
		return nil
	case persistlog.OpLoad:
		delete(r.live, e.Session)
		r.summary.Skipped++
		return nil
	}

	st := r.live[e.Session]
	if st == nil {
		r.summary.Skipped++
		return nil
	}
	if err := r.step(st, e); err != nil {
		r.mismatch(e, err.Error())
		return nil
	}
	r.summary.Applied++
	if got := st.Ledger.Budget(); got != e.Budget {
		r.mismatch(e, fmt.Sprintf("budget %d, log says %d", got, e.Budget))
		// Resync so one bad entry does not cascade.
		if l, err := economy.NewLedger(e.Budget); err == nil {
			st.Ledger = l
		}
	}
	r.report(e, st)
	return nil
}

func (r *replayer) step(st *session.State, e persistlog.ActionEntry) error {
	switch e.Op {
	case persistlog.OpPlace, persistlog.OpStack:
		def, err := r.cat.Lookup(e.Furniture)
		if err != nil {
			return err
		}
		if err := st.Ledger.TryDebit(def.Cost); err != nil {
			return err
		}
		if e.Op == persistlog.OpPlace {
			return st.Grid.Place(e.X, e.Y, def.ID)
		}
		return st.Grid.Stack(e.X, e.Y, def.ID)
	case persistlog.OpRemove:
		id, err := st.Grid.Remove(e.X, e.Y)
		if err != nil {
			return err
		}
		if id != e.Furniture {
			return fmt.Errorf("removed %s, log says %s", id, e.Furniture)
		}
		if def, err := r.cat.Lookup(id); err == nil {
			return st.Ledger.Credit(def.Cost)
		}
		return nil
	case persistlog.OpRotate:
		layer := grid.LayerBase
		if e.Layer == "stacked" {
			layer = grid.LayerStacked
		}
		rot, err := st.Grid.Rotate(e.X, e.Y, layer)
		if err != nil {
			return err
		}
		if rot != e.Rotation {
			return fmt.Errorf("rotation %d, log says %d", rot, e.Rotation)
		}
		return nil
	case persistlog.OpClaim:
		return st.Ledger.Credit(e.Delta)
	default:
		return fmt.Errorf("unknown op %q", e.Op)
	}
}

func (r *replayer) report(e persistlog.ActionEntry, st *session.State) {
	s := score.Recompute(st.Grid, r.cat)
	fmt.Fprintf(r.out, "%s #%d %-6s budget=%d style=%d comfort=%d\n",
		shortID(e.Session), e.Seq, e.Op, st.Ledger.Budget(), s.TotalStyle, s.TotalComfort)
}

func (r *replayer) mismatch(e persistlog.ActionEntry, msg string) {
	r.summary.Mismatches++
	fmt.Fprintf(r.out, "%s #%d %-6s MISMATCH %s\n", shortID(e.Session), e.Seq, e.Op, msg)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
