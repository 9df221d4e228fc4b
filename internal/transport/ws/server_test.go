package ws

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"gridfall.gg/internal/protocol"
	"gridfall.gg/internal/sim/game"
	"gridfall.gg/internal/sim/tuning"
)

func startServer(t *testing.T, h *Hub) string {
	t.Helper()
	srv := NewServer(h, tuning.Tuning{}, log.New(io.Discard, "", 0))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readWire(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return b
}

func sayHello(t *testing.T, conn *websocket.Conn, name string, seat int, spectator bool) protocol.WelcomeMsg {
	t.Helper()
	if err := conn.WriteJSON(protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		PlayerName:      name,
		Seat:            seat,
		Spectator:       spectator,
	}); err != nil {
		t.Fatalf("write hello: %v", err)
	}
	b := readWire(t, conn)
	wantType(t, b, protocol.TypeWelcome)
	var w protocol.WelcomeMsg
	if err := json.Unmarshal(b, &w); err != nil {
		t.Fatalf("unmarshal welcome: %v", err)
	}
	return w
}

func TestServer_PlaysAMatchOverTheWire(t *testing.T) {
	h := testHub(t, 1)
	url := startServer(t, h)

	done := make(chan *game.Result, 1)
	go func() {
		res, _ := h.Run(context.Background())
		done <- res
	}()

	c1 := dialWS(t, url)
	if w := sayHello(t, c1, "alice", 0, false); w.PlayerID != 1 {
		t.Fatalf("alice seat = %d, want 1", w.PlayerID)
	}
	c2 := dialWS(t, url)
	if w := sayHello(t, c2, "bob", 0, false); w.PlayerID != 2 {
		t.Fatalf("bob seat = %d, want 2", w.PlayerID)
	}

	wantType(t, readWire(t, c1), protocol.TypeState)
	b := readWire(t, c1)
	wantType(t, b, protocol.TypeRequest)
	var rm protocol.RequestMsg
	if err := json.Unmarshal(b, &rm); err != nil {
		t.Fatalf("unmarshal request: %v", err)
	}
	if rm.Request.PlayerID != 1 {
		t.Fatalf("request player = %d, want 1", rm.Request.PlayerID)
	}

	if err := c1.WriteJSON(protocol.SubmitMsg{
		Type:            protocol.TypeSubmit,
		ProtocolVersion: protocol.Version,
		RequestID:       rm.Request.RequestID,
		Decision:        protocol.Decision{Action: protocol.ActionEndTurn},
	}); err != nil {
		t.Fatalf("write submit: %v", err)
	}

	wantType(t, readWire(t, c1), protocol.TypeState)
	b = readWire(t, c1)
	wantType(t, b, protocol.TypeResult)
	var res protocol.ResultMsg
	if err := json.Unmarshal(b, &res); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if res.Winner != 0 || res.Reason != "turn limit" {
		t.Fatalf("result = %+v", res)
	}

	select {
	case r := <-done:
		if r == nil || r.Reason != "turn limit" {
			t.Fatalf("run result = %+v", r)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("match did not finish")
	}
}

func TestServer_VersionSkewRefused(t *testing.T) {
	url := startServer(t, testHub(t, 0))

	conn := dialWS(t, url)
	if err := conn.WriteJSON(protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: "0.9",
		PlayerName:      "old",
	}); err != nil {
		t.Fatalf("write hello: %v", err)
	}
	b := readWire(t, conn)
	wantType(t, b, protocol.TypeError)
	var em protocol.ErrorMsg
	if err := json.Unmarshal(b, &em); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if em.Code != protocol.ErrVersionSkew {
		t.Fatalf("code = %s, want %s", em.Code, protocol.ErrVersionSkew)
	}
}

func TestServer_FirstFrameMustBeHello(t *testing.T) {
	url := startServer(t, testHub(t, 0))

	conn := dialWS(t, url)
	if err := conn.WriteJSON(protocol.SubmitMsg{
		Type:            protocol.TypeSubmit,
		ProtocolVersion: protocol.Version,
		RequestID:       "r1",
	}); err != nil {
		t.Fatalf("write submit: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("connection survived a non-HELLO first frame")
	}
}

func TestServer_SpectatorSubmitGetsError(t *testing.T) {
	url := startServer(t, testHub(t, 0))

	conn := dialWS(t, url)
	if w := sayHello(t, conn, "watcher", 0, true); w.PlayerID != 0 {
		t.Fatalf("spectator welcome = %+v", w)
	}
	if err := conn.WriteJSON(protocol.SubmitMsg{
		Type:            protocol.TypeSubmit,
		ProtocolVersion: protocol.Version,
		RequestID:       "r1",
		Decision:        protocol.Decision{Action: protocol.ActionEndTurn},
	}); err != nil {
		t.Fatalf("write submit: %v", err)
	}
	b := readWire(t, conn)
	wantType(t, b, protocol.TypeError)
	var em protocol.ErrorMsg
	if err := json.Unmarshal(b, &em); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if em.Code != protocol.ErrNotYourRequest {
		t.Fatalf("code = %s, want %s", em.Code, protocol.ErrNotYourRequest)
	}
}
