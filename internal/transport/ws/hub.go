package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"gridfall.gg/internal/protocol"
	"gridfall.gg/internal/sim/game"
)

// session is one connected websocket client. Seat 0 is a spectator; seats
// 1..N are players. The out channel is drained by the connection's writer
// goroutine.
type session struct {
	seat int
	name string
	out  chan []byte
}

// trySend enqueues without blocking. The hub never stalls on a slow client;
// a dropped frame heals on the next push or on reconnect.
func (c *session) trySend(b []byte) bool {
	select {
	case c.out <- b:
		return true
	default:
		return false
	}
}

// refusal is a per-client protocol error, reported to that client as an
// ERROR message. The match itself is never affected.
type refusal struct {
	code    string
	message string
}

func (r *refusal) Error() string { return r.code + ": " + r.message }

// Hub fans one match engine out to its websocket sessions. The engine calls
// in on its own goroutine through the request broadcast; connections join,
// leave and submit from theirs. The hub caches the last pushed frames so a
// reconnecting client resyncs without touching engine state.
type Hub struct {
	game    *game.Game
	log     *log.Logger
	matchID string
	mode    string
	mapName string
	digests protocol.CatalogDigests
	sendBuf int
	seatCnt int

	mu        sync.Mutex
	sessions  map[*session]struct{}
	seats     map[int]*session
	started   bool
	allSeated chan struct{}
	result    *game.Result
	turn      int
	curPlayer int
	lastState []byte
	lastReq   []byte
	lastRes   []byte
}

// NewHub wires itself into the engine's request broadcast, so it must be
// built before Run starts.
func NewHub(g *game.Game, matchID string, digests protocol.CatalogDigests, sendBuf int, logger *log.Logger) *Hub {
	if sendBuf <= 0 {
		sendBuf = 32
	}
	h := &Hub{
		game:      g,
		log:       logger,
		matchID:   matchID,
		mode:      g.ModeDef().Name,
		mapName:   g.ModeDef().Map,
		digests:   digests,
		sendBuf:   sendBuf,
		seatCnt:   len(g.Players()),
		sessions:  map[*session]struct{}{},
		seats:     map[int]*session{},
		allSeated: make(chan struct{}),
	}
	g.OnRequest(h.pushRequest)
	return h
}

// Run blocks until every seat is taken, then drives the match to completion
// and broadcasts the result. The context aborts both waits.
func (h *Hub) Run(ctx context.Context) (*game.Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.allSeated:
	}
	h.log.Printf("match %s: seats filled, starting", h.matchID)
	res, err := h.game.Run(ctx)
	if err != nil {
		return nil, err
	}
	h.finish(res)
	return res, nil
}

// join admits a client and hands back its welcome. Player seats are
// exclusive while connected; a dropped seat can be retaken, and the engine
// just stays parked on its pending request until the player is back.
// Spectators are always admitted, even after the match ends.
func (h *Hub) join(name string, seat int, spectator bool) (*session, protocol.WelcomeMsg, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if spectator {
		seat = 0
	} else {
		switch {
		case h.result != nil:
			return nil, protocol.WelcomeMsg{}, &refusal{protocol.ErrMatchOver, "match already decided"}
		case seat < 0 || seat > h.seatCnt:
			return nil, protocol.WelcomeMsg{}, &refusal{protocol.ErrSeatUnknown, "no such seat"}
		case seat == 0:
			for id := 1; id <= h.seatCnt; id++ {
				if h.seats[id] == nil {
					seat = id
					break
				}
			}
			if seat == 0 {
				return nil, protocol.WelcomeMsg{}, &refusal{protocol.ErrMatchBusy, "all seats taken"}
			}
		case h.seats[seat] != nil:
			return nil, protocol.WelcomeMsg{}, &refusal{protocol.ErrSeatTaken, "seat already taken"}
		}
	}

	c := &session{seat: seat, name: name, out: make(chan []byte, h.sendBuf)}
	h.sessions[c] = struct{}{}
	if seat > 0 {
		h.seats[seat] = c
		if !h.started && len(h.seats) == h.seatCnt {
			h.started = true
			close(h.allSeated)
		}
	}

	// Resync from the cached frames. The buffer is fresh, so these never drop.
	if h.lastState != nil {
		c.trySend(h.lastState)
	}
	if h.lastReq != nil {
		c.trySend(h.lastReq)
	}
	if h.lastRes != nil {
		c.trySend(h.lastRes)
	}

	h.log.Printf("match %s: %q joined seat %d (%d/%d seats)", h.matchID, name, seat, len(h.seats), h.seatCnt)
	return c, protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		PlayerID:        seat,
		Mode:            h.mode,
		Map:             h.mapName,
		MatchID:         h.matchID,
		Catalogs:        h.digests,
	}, nil
}

func (h *Hub) leave(c *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[c]; !ok {
		return
	}
	delete(h.sessions, c)
	if c.seat > 0 && h.seats[c.seat] == c {
		delete(h.seats, c.seat)
	}
	h.log.Printf("match %s: %q left seat %d", h.matchID, c.name, c.seat)
}

// submit forwards a decision to the engine. Everything here is advisory
// screening for a friendlier error; the engine re-validates and drops
// whatever does not match its pending request.
func (h *Hub) submit(c *session, msg protocol.SubmitMsg) error {
	if c.seat == 0 {
		return &refusal{protocol.ErrNotYourRequest, "spectators cannot act"}
	}
	h.mu.Lock()
	done := h.result != nil
	h.mu.Unlock()
	if done {
		return &refusal{protocol.ErrMatchOver, "match already decided"}
	}
	req := h.game.CurrentRequest()
	if req == nil || req.RequestID != msg.RequestID {
		return &refusal{protocol.ErrStaleRequest, "request " + msg.RequestID + " is not pending"}
	}
	if req.PlayerID != c.seat {
		return &refusal{protocol.ErrNotYourRequest, "request addresses another seat"}
	}
	h.game.Submit(c.seat, msg.RequestID, msg.Decision)
	return nil
}

// pushRequest runs on the engine goroutine while it is parked on the new
// request, which makes reading engine state here safe.
func (h *Hub) pushRequest(req protocol.DecisionRequest) {
	state, snap := h.encodeState()
	reqMsg, err := json.Marshal(protocol.RequestMsg{
		Type:            protocol.TypeRequest,
		ProtocolVersion: protocol.Version,
		Request:         req,
	})
	if err != nil {
		h.log.Printf("match %s: marshal request %s: %v", h.matchID, req.RequestID, err)
		return
	}

	h.mu.Lock()
	h.lastState = state
	h.lastReq = reqMsg
	h.turn = snap.Turn
	h.curPlayer = snap.CurrentPlayer
	targets := h.snapshotSessions()
	h.mu.Unlock()

	for _, c := range targets {
		if state != nil {
			c.trySend(state)
		}
		if !c.trySend(reqMsg) {
			h.log.Printf("match %s: seat %d outbox full, request %s dropped", h.matchID, c.seat, req.RequestID)
		}
	}
}

// finish runs after the engine goroutine has returned, so the final state
// read is safe.
func (h *Hub) finish(res *game.Result) {
	state, snap := h.encodeState()
	resMsg, err := json.Marshal(protocol.ResultMsg{
		Type:            protocol.TypeResult,
		ProtocolVersion: protocol.Version,
		Winner:          res.Winner,
		Reason:          res.Reason,
		Turns:           res.Turns,
		Digest:          res.Digest,
	})
	if err != nil {
		h.log.Printf("match %s: marshal result: %v", h.matchID, err)
		return
	}

	h.mu.Lock()
	h.result = res
	h.lastState = state
	h.lastReq = nil
	h.lastRes = resMsg
	h.turn = snap.Turn
	h.curPlayer = snap.CurrentPlayer
	targets := h.snapshotSessions()
	h.mu.Unlock()

	for _, c := range targets {
		if state != nil {
			c.trySend(state)
		}
		c.trySend(resMsg)
	}
}

func (h *Hub) encodeState() ([]byte, game.SnapshotV1) {
	snap := h.game.ExportSnapshot()
	raw, err := json.Marshal(snap)
	if err != nil {
		h.log.Printf("match %s: marshal snapshot: %v", h.matchID, err)
		return nil, snap
	}
	b, err := json.Marshal(protocol.StateMsg{
		Type:            protocol.TypeState,
		ProtocolVersion: protocol.Version,
		Turn:            snap.Turn,
		CurrentPlayer:   snap.CurrentPlayer,
		Digest:          snap.Digest,
		Snapshot:        raw,
	})
	if err != nil {
		h.log.Printf("match %s: marshal state: %v", h.matchID, err)
		return nil, snap
	}
	return b, snap
}

// Status reports hub-cached progress counters. It never touches the engine,
// so the metrics endpoint can call it from any goroutine.
type Status struct {
	Turn          int
	CurrentPlayer int
	Sessions      int
	SeatsTaken    int
	Done          bool
}

func (h *Hub) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Status{
		Turn:          h.turn,
		CurrentPlayer: h.curPlayer,
		Sessions:      len(h.sessions),
		SeatsTaken:    len(h.seats),
		Done:          h.result != nil,
	}
}

// snapshotSessions copies the session set so sends happen outside the lock.
func (h *Hub) snapshotSessions() []*session {
	out := make([]*session, 0, len(h.sessions))
	for c := range h.sessions {
		out = append(out, c)
	}
	return out
}
