package observer

import (
	"encoding/json"
	"sort"
	"sync"

	"dreamdecor.ai/internal/observerproto"
	"dreamdecor.ai/internal/sim/clock"
)

// Hub mirrors the STATE frames of identified rooms to read-only observers.
// Rooms publish from their own goroutines; a slow observer only ever loses
// older frames.
type Hub struct {
	clk clock.Clock

	mu    sync.Mutex
	rooms map[string]*liveRoom
}

type liveRoom struct {
	latest    []byte // wrapped FRAME, nil once the room has gone away
	updatedAt int64
	subs      map[chan []byte]struct{}
}

func NewHub(clk clock.Clock) *Hub {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Hub{clk: clk, rooms: map[string]*liveRoom{}}
}

// Publish records state as the newest frame for identity and fans it out.
func (h *Hub) Publish(identity string, state []byte) {
	if identity == "" {
		return
	}
	frame, err := json.Marshal(observerproto.FrameMsg{
		Type:            observerproto.TypeFrame,
		ProtocolVersion: observerproto.Version,
		Identity:        identity,
		State:           json.RawMessage(state),
	})
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	lr := h.room(identity)
	lr.latest = frame
	lr.updatedAt = h.clk.Now().UnixMilli()
	for ch := range lr.subs {
		sendLatest(ch, frame)
	}
}

// Drop forgets the last frame for identity. Observers stay subscribed and
// pick up the next session that publishes under it.
func (h *Hub) Drop(identity string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	lr, ok := h.rooms[identity]
	if !ok {
		return
	}
	lr.latest = nil
	if len(lr.subs) == 0 {
		delete(h.rooms, identity)
	}
}

// Subscribe returns a channel of FRAME messages for identity, primed with
// the latest one when the room is live. cancel must be called exactly once.
func (h *Hub) Subscribe(identity string) (<-chan []byte, func()) {
	ch := make(chan []byte, 4)

	h.mu.Lock()
	lr := h.room(identity)
	lr.subs[ch] = struct{}{}
	if lr.latest != nil {
		ch <- lr.latest
	}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		lr, ok := h.rooms[identity]
		if !ok {
			return
		}
		delete(lr.subs, ch)
		if len(lr.subs) == 0 && lr.latest == nil {
			delete(h.rooms, identity)
		}
	}
	return ch, cancel
}

// Live lists rooms with a current frame, ordered by identity.
func (h *Hub) Live() []observerproto.LiveRoom {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]observerproto.LiveRoom, 0, len(h.rooms))
	for id, lr := range h.rooms {
		if lr.latest == nil {
			continue
		}
		out = append(out, observerproto.LiveRoom{
			Identity:    id,
			Observers:   len(lr.subs),
			UpdatedAtMs: lr.updatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

func (h *Hub) room(identity string) *liveRoom {
	lr, ok := h.rooms[identity]
	if !ok {
		lr = &liveRoom{subs: map[chan []byte]struct{}{}}
		h.rooms[identity] = lr
	}
	return lr
}

// sendLatest enqueues b, dropping the oldest queued frame when full.
func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
