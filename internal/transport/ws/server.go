package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"dreamdecor.ai/internal/protocol"
	"dreamdecor.ai/internal/sim/room"
)

// Server runs one Room per websocket connection. RoomConfig is the
// template every room is created from; its OnChange is replaced per
// connection.
type Server struct {
	cfg room.Config
	log *log.Logger

	upgrader websocket.Upgrader
	obs      Publisher

	conns      atomic.Int64
	connsTotal atomic.Uint64
	acts       atomic.Uint64
	actsFailed atomic.Uint64
}

// Publisher receives every STATE frame of a room bound to an identity.
// Drop is called when that room goes away or changes identity.
type Publisher interface {
	Publish(identity string, state []byte)
	Drop(identity string)
}

type Stats struct {
	Connections      int64
	ConnectionsTotal uint64
	Acts             uint64
	ActsFailed       uint64
}

func NewServer(cfg room.Config, logger *log.Logger) *Server {
	return &Server{
		cfg: cfg,
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// SetObserver mirrors room state to p. Call before serving.
func (s *Server) SetObserver(p Publisher) { s.obs = p }

func (s *Server) Stats() Stats {
	return Stats{
		Connections:      s.conns.Load(),
		ConnectionsTotal: s.connsTotal.Load(),
		Acts:             s.acts.Load(),
		ActsFailed:       s.actsFailed.Load(),
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		hello, ok := s.handshake(conn)
		if !ok {
			return
		}
		connID := uuid.NewString()
		s.conns.Add(1)
		s.connsTotal.Add(1)
		defer s.conns.Add(-1)

		// STATE keeps only the newest frame; RESULTs are never dropped.
		stateOut := make(chan []byte, 1)
		resultOut := make(chan []byte, 16)

		cfg := s.cfg
		cfg.Seed = time.Now().UnixNano()
		cfg.Logger = log.New(s.log.Writer(), s.log.Prefix()+"["+connID[:8]+"] ", s.log.Flags())
		// OnChange runs on the room goroutine only.
		var published string
		cfg.OnChange = func(m protocol.StateMsg) {
			b, err := json.Marshal(m)
			if err != nil {
				return
			}
			sendLatest(stateOut, b)
			if s.obs == nil {
				return
			}
			if published != "" && published != m.Identity {
				s.obs.Drop(published)
			}
			published = m.Identity
			if published != "" {
				s.obs.Publish(published, b)
			}
		}
		rm, err := room.New(cfg)
		if err != nil {
			s.log.Printf("conn %s: room: %v", connID, err)
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "room unavailable"), time.Now().Add(time.Second))
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// The room is not running yet, so it can be driven directly.
		rm.SetIdentity(hello.Identity)
		if err := writeJSON(conn, rm.Welcome(ctx, connID)); err != nil {
			return
		}
		s.log.Printf("conn %s: hello client=%q identity=%q", connID, hello.ClientName, hello.Identity)

		runCtx, stopRoom := context.WithCancel(context.Background())
		runDone := make(chan struct{})
		go func() {
			defer close(runDone)
			if err := rm.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				s.log.Printf("conn %s: room stopped: %v", connID, err)
			}
		}()

		// Writer goroutine.
		go func() {
			for {
				var b []byte
				select {
				case <-ctx.Done():
					return
				case b = <-resultOut:
				case b = <-stateOut:
				}
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					cancel()
					return
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			res := s.handleAct(ctx, rm, msg)
			b, err := json.Marshal(res)
			if err != nil {
				continue
			}
			select {
			case resultOut <- b:
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				break
			}
		}

		// Cleanup: a final save for a bound identity, then stop the room.
		saveCtx, saveCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = rm.Do(saveCtx, func(rm *room.Room) {
			if !rm.Active() || rm.Identity() == "" || s.cfg.Store == nil {
				return
			}
			if err := rm.Save(saveCtx); err != nil {
				s.log.Printf("conn %s: final save: %v", connID, err)
			}
		})
		saveCancel()
		stopRoom()
		<-runDone
		if s.obs != nil && published != "" {
			s.obs.Drop(published)
		}
		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		s.log.Printf("conn %s: closed", connID)
	}
}

func (s *Server) handshake(conn *websocket.Conn) (protocol.HelloMsg, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return protocol.HelloMsg{}, false
	}
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return protocol.HelloMsg{}, false
	}
	hello, err := protocol.DecodeHello(msg)
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad HELLO"), time.Now().Add(time.Second))
		return protocol.HelloMsg{}, false
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return protocol.HelloMsg{}, false
	}
	return hello, true
}

// handleAct decodes one client frame, applies it on the room goroutine and
// builds the RESULT.
func (s *Server) handleAct(ctx context.Context, rm *room.Room, msg []byte) protocol.ResultMsg {
	res := protocol.ResultMsg{Type: protocol.TypeResult, ProtocolVersion: protocol.Version}
	act, err := protocol.DecodeAct(msg)
	if err != nil {
		s.actsFailed.Add(1)
		res.Code = protocol.ErrProtoBadRequest
		res.Message = err.Error()
		return res
	}
	res.Ref = act.ID
	if act.ProtocolVersion != protocol.Version {
		s.actsFailed.Add(1)
		res.Code = protocol.ErrProtoBadRequest
		res.Message = "bad protocol_version"
		return res
	}
	s.acts.Add(1)

	var applyErr error
	if err := rm.Do(ctx, func(rm *room.Room) { applyErr = rm.Apply(ctx, act) }); err != nil {
		applyErr = err
	}
	if applyErr != nil {
		s.actsFailed.Add(1)
		res.Code = room.Code(applyErr)
		res.Message = applyErr.Error()
		return res
	}
	res.OK = true
	return res
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

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
