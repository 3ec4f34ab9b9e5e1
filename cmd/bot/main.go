package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"dreamdecor.ai/internal/protocol"
)

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name     = flag.String("name", "bot", "client name")
		identity = flag.String("identity", "", "player identity (empty plays as guest)")
		load     = flag.Bool("load", true, "resume the identity's save when one exists")
		maxActs  = flag.Int("acts", 200, "stop after this many actions (0 = run until interrupted)")
		seed     = flag.Int64("seed", 0, "rng seed (0 = time based)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      *name,
		Identity:        *identity,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	b := &bot{conn: conn, logger: logger, rng: rand.New(rand.NewSource(*seed)), maxActs: *maxActs}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			b.welcome(w, *load)

		case protocol.TypeResult:
			var r protocol.ResultMsg
			if err := json.Unmarshal(msg, &r); err != nil {
				continue
			}
			b.result(r)

		case protocol.TypeState:
			var st protocol.StateMsg
			if err := json.Unmarshal(msg, &st); err != nil {
				continue
			}
			if done := b.state(st); done {
				logger.Printf("done after %d actions", b.sent)
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"), time.Now().Add(time.Second))
				return
			}
		}
	}
}

// bot keeps at most one ACT in flight and decides the next one from the
// latest STATE.
type bot struct {
	conn    *websocket.Conn
	logger  *log.Logger
	rng     *rand.Rand
	maxActs int

	furniture []protocol.FurnitureInfo
	sent      int
	pending   string
}

func (b *bot) welcome(w protocol.WelcomeMsg, load bool) {
	b.logger.Printf("WELCOME conn=%s grid=%d budget=%d catalog=%s has_save=%v",
		w.ConnectionID, w.Params.GridSize, w.Params.InitialBudget, w.Catalog.Digest, w.HasSave)
	for _, f := range w.Catalog.Furniture {
		if f.Cost > 0 {
			b.furniture = append(b.furniture, f)
		}
	}
	if load && w.HasSave {
		b.send(protocol.ActMsg{Op: protocol.OpLoadGame})
		return
	}
	b.send(protocol.ActMsg{Op: protocol.OpNewGame})
}

func (b *bot) result(r protocol.ResultMsg) {
	if r.Ref == b.pending {
		b.pending = ""
	}
	if !r.OK {
		b.logger.Printf("RESULT %s %s: %s", r.Ref, r.Code, r.Message)
		if r.Code == protocol.ErrNoSave {
			b.send(protocol.ActMsg{Op: protocol.OpNewGame})
		}
	}
}

func (b *bot) state(st protocol.StateMsg) bool {
	if b.pending != "" || !st.Active {
		return false
	}
	if b.maxActs > 0 && b.sent >= b.maxActs {
		return true
	}
	switch {
	case st.Goal != nil && st.Goal.Completed:
		b.logger.Printf("claiming %q reward=%d", st.Goal.Description, st.Goal.Reward)
		b.send(protocol.ActMsg{Op: protocol.OpClaimGoal})
	case st.GoalStatus == "failed":
		b.send(protocol.ActMsg{Op: protocol.OpRetryGoal})
	default:
		b.placeSomething(st)
	}
	return false
}

func (b *bot) placeSomething(st protocol.StateMsg) {
	occupied := map[[2]int]bool{}
	for _, t := range st.Tiles {
		occupied[[2]int{t.X, t.Y}] = true
	}
	var free [][2]int
	for y := 0; y < st.GridSize; y++ {
		for x := 0; x < st.GridSize; x++ {
			if !occupied[[2]int{x, y}] {
				free = append(free, [2]int{x, y})
			}
		}
	}
	var affordable []protocol.FurnitureInfo
	for _, f := range b.furniture {
		if f.Cost <= st.Budget {
			affordable = append(affordable, f)
		}
	}
	// Sell something back when the room is full or the money is gone.
	if len(free) == 0 || len(affordable) == 0 {
		if len(st.Tiles) == 0 {
			return
		}
		t := st.Tiles[b.rng.Intn(len(st.Tiles))]
		b.send(protocol.ActMsg{Op: protocol.OpRemove, X: t.X, Y: t.Y})
		return
	}
	// Prefer the goal's target when there is one.
	pick := affordable[b.rng.Intn(len(affordable))]
	if st.Goal != nil && st.Goal.TargetFurniture != "" {
		for _, f := range affordable {
			if f.ID == st.Goal.TargetFurniture {
				pick = f
				break
			}
		}
	}
	p := free[b.rng.Intn(len(free))]
	b.send(protocol.ActMsg{Op: protocol.OpPlace, X: p[0], Y: p[1], Furniture: pick.ID})
}

func (b *bot) send(a protocol.ActMsg) {
	b.sent++
	a.Type = protocol.TypeAct
	a.ProtocolVersion = protocol.Version
	a.ID = fmt.Sprintf("B%d", b.sent)
	b.pending = a.ID
	if err := b.conn.WriteJSON(a); err != nil {
		b.logger.Printf("send %s: %v", a.Op, err)
	}
}
