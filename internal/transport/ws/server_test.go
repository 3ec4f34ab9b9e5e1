package ws

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dreamdecor.ai/internal/persistence/savestore"
	"dreamdecor.ai/internal/protocol"
	"dreamdecor.ai/internal/sim/catalogs"
	"dreamdecor.ai/internal/sim/clock"
	"dreamdecor.ai/internal/sim/room"
	"dreamdecor.ai/internal/sim/tuning"
)

const testCatalogJSON = `[
  {"id": "ITEM", "name": "Item", "cost": 200, "style_yield": 30, "class": "floor"},
  {"id": "TABLE", "name": "Table", "cost": 150, "style_yield": 10, "class": "surface"}
]`

func newTestServer(t *testing.T, store *savestore.Memory, pub ...Publisher) (*Server, *httptest.Server) {
	t.Helper()
	cat, err := catalogs.Parse([]byte(testCatalogJSON))
	require.NoError(t, err)
	tu := tuning.Defaults()
	tu.GridSize = 3
	tu.InitialBudget = 1000
	tu.DefaultTool = "ITEM"
	tu.NewsChancePermille = 0

	cfg := room.Config{
		Tuning:  tu,
		Catalog: cat,
		Clock:   clock.NewFakeClock(time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)),
	}
	if store != nil {
		cfg.Store = store
	}
	srv := NewServer(cfg, log.New(io.Discard, "", 0))
	if len(pub) > 0 {
		srv.SetObserver(pub[0])
	}
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)
	return srv, hs
}

func dial(t *testing.T, hs *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(hs.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, b))
}

// next reads frames until one of type typ arrives and decodes it into v.
func next(t *testing.T, conn *websocket.Conn, typ string, v any) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		base, err := protocol.DecodeBase(msg)
		require.NoError(t, err)
		if base.Type == typ {
			require.NoError(t, json.Unmarshal(msg, v))
			return
		}
	}
}

func act(id, op string) protocol.ActMsg {
	return protocol.ActMsg{Type: protocol.TypeAct, ProtocolVersion: protocol.Version, ID: id, Op: op}
}

func TestHandshakeRequiresHello(t *testing.T) {
	_, hs := newTestServer(t, nil)
	conn := dial(t, hs)
	send(t, conn, act("a1", protocol.OpNewGame))

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
}

func TestHandshakeRejectsVersion(t *testing.T) {
	_, hs := newTestServer(t, nil)
	conn := dial(t, hs)
	send(t, conn, protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: "0.1"})

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
}

func TestSessionOverWebsocket(t *testing.T) {
	store := savestore.NewMemory()
	srv, hs := newTestServer(t, store)
	conn := dial(t, hs)

	send(t, conn, protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, ClientName: "test", Identity: "u1"})
	var welcome protocol.WelcomeMsg
	next(t, conn, protocol.TypeWelcome, &welcome)
	assert.NotEmpty(t, welcome.ConnectionID)
	assert.Equal(t, "u1", welcome.Identity)
	assert.False(t, welcome.HasSave)
	assert.Equal(t, 3, welcome.Params.GridSize)
	assert.Len(t, welcome.Catalog.Furniture, 3)

	var res protocol.ResultMsg
	send(t, conn, act("a1", protocol.OpNewGame))
	next(t, conn, protocol.TypeResult, &res)
	assert.Equal(t, "a1", res.Ref)
	assert.True(t, res.OK)

	place := act("a2", protocol.OpPlace)
	place.Furniture = "ITEM"
	send(t, conn, place)
	next(t, conn, protocol.TypeResult, &res)
	assert.Equal(t, "a2", res.Ref)
	assert.True(t, res.OK, res.Message)

	place.ID = "a3"
	send(t, conn, place)
	next(t, conn, protocol.TypeResult, &res)
	assert.False(t, res.OK)
	assert.Equal(t, protocol.ErrTileOccupied, res.Code)

	send(t, conn, map[string]any{"type": "ACT", "protocol_version": "1.0", "id": "a4", "op": "PLACE"})
	next(t, conn, protocol.TypeResult, &res)
	assert.Equal(t, protocol.ErrProtoBadRequest, res.Code)

	send(t, conn, act("a5", protocol.OpClaimGoal))
	next(t, conn, protocol.TypeResult, &res)
	assert.Equal(t, protocol.ErrGoalNotClaimable, res.Code)

	send(t, conn, act("a6", protocol.OpEndSession))
	var st protocol.StateMsg
	for {
		next(t, conn, protocol.TypeState, &st)
		if !st.Active {
			break
		}
	}
	send(t, conn, act("a7", protocol.OpNewGame))
	next(t, conn, protocol.TypeResult, &res)
	require.True(t, res.OK)
	place.ID = "a8"
	place.X, place.Y = 2, 1
	send(t, conn, place)
	for {
		next(t, conn, protocol.TypeState, &st)
		if st.Budget == 800 {
			break
		}
	}
	require.Len(t, st.Tiles, 1)
	assert.Equal(t, protocol.TileInfo{X: 2, Y: 1, Occupant: "ITEM"}, st.Tiles[0])

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		ok, _ := store.Exists(context.Background(), "u1")
		return ok && srv.Stats().Connections == 0
	}, 3*time.Second, 10*time.Millisecond, "disconnect saves the bound identity")

	snap, ok, err := store.Load(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 800, snap.Budget)

	s := srv.Stats()
	assert.Equal(t, uint64(1), s.ConnectionsTotal)
	assert.Equal(t, uint64(3), s.ActsFailed)
}

func TestWelcomeReportsSave(t *testing.T) {
	store := savestore.NewMemory()
	_, hs := newTestServer(t, store)

	c1 := dial(t, hs)
	send(t, c1, protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, Identity: "u2"})
	var welcome protocol.WelcomeMsg
	next(t, c1, protocol.TypeWelcome, &welcome)
	var res protocol.ResultMsg
	send(t, c1, act("n", protocol.OpNewGame))
	next(t, c1, protocol.TypeResult, &res)
	send(t, c1, act("s", protocol.OpSave))
	next(t, c1, protocol.TypeResult, &res)
	require.True(t, res.OK, res.Message)

	c2 := dial(t, hs)
	send(t, c2, protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, Identity: "u2"})
	next(t, c2, protocol.TypeWelcome, &welcome)
	assert.True(t, welcome.HasSave)

	send(t, c2, act("l", protocol.OpLoadGame))
	next(t, c2, protocol.TypeResult, &res)
	assert.True(t, res.OK, res.Message)
}

func TestSendLatestDropsOldest(t *testing.T) {
	ch := make(chan []byte, 2)
	sendLatest(ch, []byte("a"))
	sendLatest(ch, []byte("b"))
	sendLatest(ch, []byte("c"))
	assert.Equal(t, "b", string(<-ch))
	assert.Equal(t, "c", string(<-ch))
}

type recordingPublisher struct {
	mu      sync.Mutex
	frames  map[string]int
	dropped []string
}

func (p *recordingPublisher) Publish(identity string, state []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames[identity]++
}

func (p *recordingPublisher) Drop(identity string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dropped = append(p.dropped, identity)
}

func (p *recordingPublisher) snapshot() (map[string]int, []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	frames := map[string]int{}
	for k, v := range p.frames {
		frames[k] = v
	}
	return frames, append([]string(nil), p.dropped...)
}

func TestObserverSeesIdentifiedRooms(t *testing.T) {
	pub := &recordingPublisher{frames: map[string]int{}}
	_, hs := newTestServer(t, nil, pub)

	conn := dial(t, hs)
	send(t, conn, protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, Identity: "u3"})
	var welcome protocol.WelcomeMsg
	next(t, conn, protocol.TypeWelcome, &welcome)
	var res protocol.ResultMsg
	send(t, conn, act("n", protocol.OpNewGame))
	next(t, conn, protocol.TypeResult, &res)
	require.True(t, res.OK)

	rename := act("i", protocol.OpSetIdentity)
	rename.Identity = "u4"
	send(t, conn, rename)
	next(t, conn, protocol.TypeResult, &res)
	require.True(t, res.OK, res.Message)
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		_, dropped := pub.snapshot()
		return len(dropped) == 2
	}, 3*time.Second, 10*time.Millisecond)
	frames, dropped := pub.snapshot()
	assert.Positive(t, frames["u3"])
	assert.Equal(t, []string{"u3", "u4"}, dropped)

	// Guests are never mirrored.
	guest := dial(t, hs)
	send(t, guest, protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version})
	next(t, guest, protocol.TypeWelcome, &welcome)
	send(t, guest, act("g", protocol.OpNewGame))
	next(t, guest, protocol.TypeResult, &res)
	frames, _ = pub.snapshot()
	assert.NotContains(t, frames, "")
}
