// Package ws is the player-facing websocket transport: one match hub, any
// number of connections. Frames are JSON text messages; the engine never
// sees a connection, only submitted decisions.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"gridfall.gg/internal/protocol"
	"gridfall.gg/internal/sim/tuning"
)

type Server struct {
	hub *Hub
	log *log.Logger
	tun tuning.Tuning

	upgrader websocket.Upgrader
}

func NewServer(h *Hub, tun tuning.Tuning, logger *log.Logger) *Server {
	return &Server{
		hub: h,
		log: logger,
		tun: tun,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		c := s.handshake(conn)
		if c == nil {
			return
		}
		defer s.hub.leave(c)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine: outbound frames plus keepalives. Players idle for
		// as long as the opponent thinks, so pings are what keep the pipe
		// alive between turns.
		go func() {
			ping := time.NewTicker(s.tun.PingPeriod())
			defer ping.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-c.out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(s.tun.WriteTimeout()))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				case <-ping.C:
					_ = conn.SetWriteDeadline(time.Now().Add(s.tun.WriteTimeout()))
					if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		readWait := 2 * s.tun.PingPeriod()
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(readWait))
		})

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readWait))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			s.dispatch(c, msg)
		}
	}
}

func (s *Server) dispatch(c *session, msg []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		s.sendError(c, &refusal{protocol.ErrProtoBadRequest, "malformed json"})
		return
	}
	switch base.Type {
	case protocol.TypeSubmit:
		var sub protocol.SubmitMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			s.sendError(c, &refusal{protocol.ErrProtoBadRequest, "malformed SUBMIT"})
			return
		}
		if sub.ProtocolVersion != protocol.Version {
			s.sendError(c, &refusal{protocol.ErrVersionSkew, "server speaks " + protocol.Version})
			return
		}
		if err := s.hub.submit(c, sub); err != nil {
			s.sendError(c, err)
		}
	default:
		s.sendError(c, &refusal{protocol.ErrProtoBadRequest, fmt.Sprintf("unexpected %q", base.Type)})
	}
}

// handshake expects HELLO as the first frame and answers WELCOME, or an
// ERROR frame plus a close for refusals the client should act on.
func (s *Server) handshake(conn *websocket.Conn) *session {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		s.refuse(conn, &refusal{protocol.ErrProtoBadRequest, "malformed HELLO"})
		return nil
	}
	if hello.ProtocolVersion != protocol.Version {
		s.refuse(conn, &refusal{protocol.ErrVersionSkew, "server speaks " + protocol.Version})
		return nil
	}
	name := strings.TrimSpace(hello.PlayerName)
	if name == "" {
		name = "player"
	}

	c, welcome, err := s.hub.join(name, hello.Seat, hello.Spectator)
	if err != nil {
		s.refuse(conn, err)
		return nil
	}

	if err := s.writeJSON(conn, welcome); err != nil {
		s.hub.leave(c)
		return nil
	}
	return c
}

// refuse reports a handshake failure on the raw connection and closes it.
func (s *Server) refuse(conn *websocket.Conn, err error) {
	var ref *refusal
	if !errors.As(err, &ref) {
		ref = &refusal{protocol.ErrInternal, err.Error()}
	}
	_ = s.writeJSON(conn, protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            ref.code,
		Message:         ref.message,
	})
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, ref.code), time.Now().Add(time.Second))
}

// sendError queues an ERROR frame for an established session.
func (s *Server) sendError(c *session, err error) {
	var ref *refusal
	if !errors.As(err, &ref) {
		ref = &refusal{protocol.ErrInternal, err.Error()}
	}
	b, merr := json.Marshal(protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            ref.code,
		Message:         ref.message,
	})
	if merr != nil {
		return
	}
	if !c.trySend(b) {
		s.log.Printf("seat %d: outbox full, error %s dropped", c.seat, ref.code)
	}
}

func (s *Server) writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(s.tun.WriteTimeout()))
	return conn.WriteMessage(websocket.TextMessage, b)
}
