package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"gridfall.gg/internal/protocol"
	"gridfall.gg/internal/sim/board"
	"gridfall.gg/internal/sim/catalogs"
	"gridfall.gg/internal/sim/game"
)

// testGame builds a two-seat duel small enough that end_turn is the only
// decision the tests ever need to make.
func testGame(t *testing.T, maxTurns int) *game.Game {
	t.Helper()
	melee := board.Shape{Kind: board.Chebyshev, Min: 1, Max: 1}
	cats := &catalogs.Catalogs{
		Units: catalogs.UnitCatalog{ByName: map[string]catalogs.UnitDef{
			"pawn": {
				Name:     "pawn",
				MoveKind: board.Chebyshev,
				Normal:   catalogs.TierStats{MaxHP: 5, Attack: 1, AttackShape: melee, MoveRange: 1, Cost: catalogs.Cost{Gold: 1}},
			},
		}, Digest: "test"},
		Buildings: catalogs.BuildingCatalog{ByName: map[string]catalogs.BuildingDef{
			"keep": {Name: "keep", MaxHP: 10, Width: 2, Height: 2, Cost: catalogs.Cost{Gold: 8}},
		}, Digest: "test"},
		Maps: catalogs.MapCatalog{ByName: map[string]catalogs.MapDef{
			"arena": {Name: "arena", Width: 8, Height: 8, Spawns: []catalogs.SpawnDef{
				{Kind: "building", Name: "keep", Owner: 1, X: 1, Y: 1},
				{Kind: "building", Name: "keep", Owner: 2, X: 6, Y: 6},
				{Kind: "unit", Name: "pawn", Owner: 1, X: 3, Y: 3},
				{Kind: "unit", Name: "pawn", Owner: 2, X: 4, Y: 4},
			}},
		}, Digest: "test"},
		Modes: catalogs.ModeCatalog{ByName: map[string]catalogs.ModeDef{
			"duel": {Name: "duel", Players: 2, Map: "arena", Base: "keep", StartGold: 5, StartWood: 3, Roster: []string{"pawn"}},
		}, Digest: "test"},
	}
	g, err := game.New(game.Config{Mode: "duel", MaxTurns: maxTurns}, cats, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("new game: %v", err)
	}
	return g
}

func testHub(t *testing.T, maxTurns int) *Hub {
	t.Helper()
	return NewHub(testGame(t, maxTurns), "m-test", protocol.CatalogDigests{UnitsDigest: "test"}, 16, log.New(io.Discard, "", 0))
}

func nextFrame(t *testing.T, c *session) []byte {
	t.Helper()
	select {
	case b := <-c.out:
		return b
	case <-time.After(5 * time.Second):
		t.Fatalf("seat %d: no frame within 5s", c.seat)
		return nil
	}
}

func wantType(t *testing.T, b []byte, typ string) {
	t.Helper()
	base, err := protocol.DecodeBase(b)
	if err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if base.Type != typ {
		t.Fatalf("frame type = %s, want %s (%s)", base.Type, typ, b)
	}
}

func wantRefusal(t *testing.T, err error, code string) {
	t.Helper()
	var ref *refusal
	if !errors.As(err, &ref) {
		t.Fatalf("err = %v, want refusal %s", err, code)
	}
	if ref.code != code {
		t.Fatalf("refusal code = %s, want %s", ref.code, code)
	}
}

func TestHub_SeatAssignment(t *testing.T) {
	h := testHub(t, 0)

	c1, w1, err := h.join("alice", 0, false)
	if err != nil {
		t.Fatalf("join alice: %v", err)
	}
	if c1.seat != 1 || w1.PlayerID != 1 {
		t.Fatalf("alice seat = %d, welcome %d, want 1", c1.seat, w1.PlayerID)
	}
	if w1.MatchID != "m-test" || w1.Mode != "duel" || w1.Map != "arena" || w1.Catalogs.UnitsDigest != "test" {
		t.Fatalf("welcome = %+v", w1)
	}

	c2, w2, err := h.join("bob", 2, false)
	if err != nil {
		t.Fatalf("join bob: %v", err)
	}
	if c2.seat != 2 || w2.PlayerID != 2 {
		t.Fatalf("bob seat = %d", c2.seat)
	}

	_, _, err = h.join("carol", 0, false)
	wantRefusal(t, err, protocol.ErrMatchBusy)
	_, _, err = h.join("dave", 1, false)
	wantRefusal(t, err, protocol.ErrSeatTaken)
	_, _, err = h.join("erin", 3, false)
	wantRefusal(t, err, protocol.ErrSeatUnknown)

	sp, wsp, err := h.join("watcher", 0, true)
	if err != nil {
		t.Fatalf("join spectator: %v", err)
	}
	if sp.seat != 0 || wsp.PlayerID != 0 {
		t.Fatalf("spectator seat = %d", sp.seat)
	}

	// A dropped seat can be retaken.
	h.leave(c2)
	c2b, _, err := h.join("bob", 2, false)
	if err != nil {
		t.Fatalf("rejoin seat 2: %v", err)
	}
	if c2b.seat != 2 {
		t.Fatalf("rejoin seat = %d, want 2", c2b.seat)
	}
}

func TestHub_BroadcastsStateRequestResult(t *testing.T) {
	h := testHub(t, 2)

	type outcome struct {
		res *game.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := h.Run(context.Background())
		done <- outcome{res, err}
	}()

	c1, _, _ := h.join("p1", 0, false)
	sp, _, _ := h.join("watch", 0, true)
	c2, _, _ := h.join("p2", 0, false) // fills the seats, match starts

	b := nextFrame(t, c1)
	wantType(t, b, protocol.TypeState)
	var st protocol.StateMsg
	if err := json.Unmarshal(b, &st); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if st.Turn != 1 || st.CurrentPlayer != 1 || st.Digest == "" || len(st.Snapshot) == 0 {
		t.Fatalf("state = turn %d current %d digest %q", st.Turn, st.CurrentPlayer, st.Digest)
	}

	b = nextFrame(t, c1)
	wantType(t, b, protocol.TypeRequest)
	var rm protocol.RequestMsg
	if err := json.Unmarshal(b, &rm); err != nil {
		t.Fatalf("unmarshal request: %v", err)
	}
	if rm.Request.PlayerID != 1 || rm.Request.Type != protocol.RequestMainTurn {
		t.Fatalf("request = %+v", rm.Request)
	}

	// Spectator and the waiting player see the same pair.
	wantType(t, nextFrame(t, sp), protocol.TypeState)
	wantType(t, nextFrame(t, sp), protocol.TypeRequest)
	wantType(t, nextFrame(t, c2), protocol.TypeState)
	wantType(t, nextFrame(t, c2), protocol.TypeRequest)

	if err := h.submit(c1, protocol.SubmitMsg{
		RequestID: rm.Request.RequestID,
		Decision:  protocol.Decision{Action: protocol.ActionEndTurn},
	}); err != nil {
		t.Fatalf("submit end_turn: %v", err)
	}

	wantType(t, nextFrame(t, c1), protocol.TypeState)
	b = nextFrame(t, c1)
	wantType(t, b, protocol.TypeRequest)
	var rm2 protocol.RequestMsg
	if err := json.Unmarshal(b, &rm2); err != nil {
		t.Fatalf("unmarshal request: %v", err)
	}
	if rm2.Request.PlayerID != 2 {
		t.Fatalf("second request player = %d, want 2", rm2.Request.PlayerID)
	}

	if err := h.submit(c2, protocol.SubmitMsg{
		RequestID: rm2.Request.RequestID,
		Decision:  protocol.Decision{Action: protocol.ActionEndTurn},
	}); err != nil {
		t.Fatalf("submit end_turn p2: %v", err)
	}

	// Turn cap reached: final state plus the result.
	wantType(t, nextFrame(t, c1), protocol.TypeState)
	b = nextFrame(t, c1)
	wantType(t, b, protocol.TypeResult)
	var res protocol.ResultMsg
	if err := json.Unmarshal(b, &res); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if res.Winner != 0 || res.Reason != "turn limit" || res.Digest == "" {
		t.Fatalf("result = %+v", res)
	}

	select {
	case out := <-done:
		if out.err != nil {
			t.Fatalf("run: %v", out.err)
		}
		if out.res.Winner != 0 || out.res.Reason != "turn limit" {
			t.Fatalf("run result = %+v", out.res)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("hub did not finish")
	}
}

func TestHub_SubmitScreening(t *testing.T) {
	h := testHub(t, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_, _ = h.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Errorf("hub did not stop")
		}
	})

	c1, _, _ := h.join("p1", 0, false)
	sp, _, _ := h.join("watch", 0, true)
	c2, _, _ := h.join("p2", 0, false)

	wantType(t, nextFrame(t, c1), protocol.TypeState)
	b := nextFrame(t, c1)
	wantType(t, b, protocol.TypeRequest)
	var rm protocol.RequestMsg
	if err := json.Unmarshal(b, &rm); err != nil {
		t.Fatalf("unmarshal request: %v", err)
	}

	end := protocol.Decision{Action: protocol.ActionEndTurn}
	wantRefusal(t, h.submit(sp, protocol.SubmitMsg{RequestID: rm.Request.RequestID, Decision: end}), protocol.ErrNotYourRequest)
	wantRefusal(t, h.submit(c1, protocol.SubmitMsg{RequestID: "r999", Decision: end}), protocol.ErrStaleRequest)
	wantRefusal(t, h.submit(c2, protocol.SubmitMsg{RequestID: rm.Request.RequestID, Decision: end}), protocol.ErrNotYourRequest)
}

func TestHub_LateJoinersAfterResult(t *testing.T) {
	h := testHub(t, 1)

	done := make(chan *game.Result, 1)
	go func() {
		res, _ := h.Run(context.Background())
		done <- res
	}()

	c1, _, _ := h.join("p1", 0, false)
	c2, _, _ := h.join("p2", 0, false)
	_ = c2

	wantType(t, nextFrame(t, c1), protocol.TypeState)
	b := nextFrame(t, c1)
	wantType(t, b, protocol.TypeRequest)
	var rm protocol.RequestMsg
	if err := json.Unmarshal(b, &rm); err != nil {
		t.Fatalf("unmarshal request: %v", err)
	}
	if err := h.submit(c1, protocol.SubmitMsg{
		RequestID: rm.Request.RequestID,
		Decision:  protocol.Decision{Action: protocol.ActionEndTurn},
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	var res *game.Result
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("match did not finish")
	}
	if res == nil || res.Reason != "turn limit" {
		t.Fatalf("result = %+v", res)
	}

	// Late spectators resync from the cached frames; there is no pending
	// request anymore, so they get exactly state and result.
	sp, _, err := h.join("late", 0, true)
	if err != nil {
		t.Fatalf("late spectator: %v", err)
	}
	wantType(t, nextFrame(t, sp), protocol.TypeState)
	wantType(t, nextFrame(t, sp), protocol.TypeResult)
	if len(sp.out) != 0 {
		t.Fatalf("spectator got %d extra frames", len(sp.out))
	}

	h.leave(c1)
	_, _, err = h.join("late-player", 0, false)
	wantRefusal(t, err, protocol.ErrMatchOver)

	wantRefusal(t, h.submit(c2, protocol.SubmitMsg{RequestID: rm.Request.RequestID}), protocol.ErrMatchOver)
}
