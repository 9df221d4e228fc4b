// Package gametest is a black-box harness for driving whole matches through
// the engine's exported surface: construct a game from in-memory catalogs,
// receive decision requests, submit answers, read the result. Nothing in
// here touches game internals, so these tests stay valid across refactors
// that keep the public contract.
package gametest

import (
	"context"
	"testing"
	"time"

	"gridfall.gg/internal/protocol"
	"gridfall.gg/internal/sim/board"
	"gridfall.gg/internal/sim/catalogs"
	"gridfall.gg/internal/sim/game"
)

// Fixture blueprints. Numbers are chosen so one attack either cleanly kills
// or cleanly does not; scenarios never depend on randomness.
func fixtureUnits() map[string]catalogs.UnitDef {
	melee := board.Shape{Kind: board.Chebyshev, Min: 1, Max: 1}
	return map[string]catalogs.UnitDef{
		"soldier": {
			Name:     "soldier",
			MoveKind: board.Chebyshev,
			Normal:   catalogs.TierStats{MaxHP: 7, Attack: 4, AttackShape: melee, MoveRange: 2, Cost: catalogs.Cost{Gold: 3}},
		},
		"scout": {
			Name:     "scout",
			MoveKind: board.Chebyshev,
			Normal:   catalogs.TierStats{MaxHP: 3, Attack: 1, AttackShape: melee, MoveRange: 3, Cost: catalogs.Cost{Gold: 1}},
		},
		"ram": {
			Name:     "ram",
			MoveKind: board.Chebyshev,
			Normal:   catalogs.TierStats{MaxHP: 8, Attack: 10, AttackShape: melee, MoveRange: 1, Cost: catalogs.Cost{Gold: 5}},
		},
	}
}

func fixtureBuildings() map[string]catalogs.BuildingDef {
	return map[string]catalogs.BuildingDef{
		"fort": {
			Name: "fort", MaxHP: 10, Width: 2, Height: 2,
			Cost: catalogs.Cost{Gold: 8, Wood: 4},
		},
		"shed": {
			Name: "shed", MaxHP: 2, Width: 1, Height: 1,
			Cost: catalogs.Cost{Gold: 1},
		},
	}
}

// DuelCatalogs builds a two-player catalog set on a 10x10 map with the
// given initial spawns.
func DuelCatalogs(spawns []catalogs.SpawnDef) *catalogs.Catalogs {
	mapDef := catalogs.MapDef{Name: "arena", Width: 10, Height: 10, Spawns: spawns}
	modeDef := catalogs.ModeDef{
		Name:      "duel",
		Players:   2,
		Map:       "arena",
		Base:      "fort",
		StartGold: 12,
		StartWood: 6,
		Spells:    []catalogs.SpellSlot{{Effect: "recruit", Casts: 2}, {Effect: "snipe", Casts: 1}},
		Roster:    []string{"scout", "soldier"},
	}
	return &catalogs.Catalogs{
		Units:     catalogs.UnitCatalog{ByName: fixtureUnits(), Digest: "fixture"},
		Buildings: catalogs.BuildingCatalog{ByName: fixtureBuildings(), Digest: "fixture"},
		Maps:      catalogs.MapCatalog{ByName: map[string]catalogs.MapDef{mapDef.Name: mapDef}, Digest: "fixture"},
		Modes:     catalogs.ModeCatalog{ByName: map[string]catalogs.ModeDef{modeDef.Name: modeDef}, Digest: "fixture"},
	}
}

type outcome struct {
	Res *game.Result
	Err error
}

// Harness runs one match on a background goroutine and hands its decision
// requests to the test. Engine state reads are safe whenever the engine is
// parked on a request the harness has already delivered.
type Harness struct {
	T *testing.T
	G *game.Game

	reqs   chan protocol.DecisionRequest
	done   chan outcome
	out    *outcome
	cancel context.CancelFunc
}

// Start wires the harness to a game built by the test (so the test may set
// a match logger first) and launches the run loop.
func Start(t *testing.T, g *game.Game) *Harness {
	t.Helper()
	h := &Harness{
		T:    t,
		G:    g,
		reqs: make(chan protocol.DecisionRequest, 8),
		done: make(chan outcome, 1),
	}
	g.OnRequest(func(req protocol.DecisionRequest) { h.reqs <- req })

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		res, err := g.Run(ctx)
		h.done <- outcome{Res: res, Err: err}
	}()
	t.Cleanup(func() {
		cancel()
		if h.out != nil {
			return
		}
		select {
		case <-h.done:
		case <-time.After(5 * time.Second):
			t.Errorf("engine did not stop on context cancel")
		}
	})
	return h
}

// StartDuel is the common case: fixture catalogs, no logger.
func StartDuel(t *testing.T, spawns []catalogs.SpawnDef) *Harness {
	t.Helper()
	g, err := game.New(game.Config{Mode: "duel"}, DuelCatalogs(spawns), nil)
	if err != nil {
		t.Fatalf("game.New: %v", err)
	}
	return Start(t, g)
}

// NextRequest blocks for the engine's next decision request.
func (h *Harness) NextRequest() protocol.DecisionRequest {
	h.T.Helper()
	select {
	case req := <-h.reqs:
		return req
	case out := <-h.done:
		h.out = &out
		h.T.Fatalf("match ended while awaiting a request: res=%+v err=%v", out.Res, out.Err)
	case <-time.After(5 * time.Second):
		h.T.Fatalf("timed out awaiting a request")
	}
	return protocol.DecisionRequest{}
}

// Expect asserts the next request's type and addressee.
func (h *Harness) Expect(reqType string, player int) protocol.DecisionRequest {
	h.T.Helper()
	req := h.NextRequest()
	if req.Type != reqType || req.PlayerID != player {
		h.T.Fatalf("request = %s for player %d, want %s for player %d", req.Type, req.PlayerID, reqType, player)
	}
	return req
}

// Submit answers a request as its addressed player.
func (h *Harness) Submit(req protocol.DecisionRequest, dec protocol.Decision) {
	h.G.Submit(req.PlayerID, req.RequestID, dec)
}

// Result waits for the match to finish.
func (h *Harness) Result() (*game.Result, error) {
	h.T.Helper()
	if h.out != nil {
		return h.out.Res, h.out.Err
	}
	select {
	case out := <-h.done:
		h.out = &out
		return out.Res, out.Err
	case <-time.After(5 * time.Second):
		h.T.Fatalf("timed out awaiting the match result")
	}
	return nil, nil
}

// EndTurn answers the next main menu for the given player with end_turn.
func (h *Harness) EndTurn(player int) {
	h.T.Helper()
	req := h.Expect(protocol.RequestMainTurn, player)
	h.Submit(req, protocol.Decision{Action: protocol.ActionEndTurn})
}

// Move answers the next main menu with a move order.
func (h *Harness) Move(player int, uid int64, x, y int) {
	h.T.Helper()
	req := h.Expect(protocol.RequestMainTurn, player)
	h.Submit(req, protocol.Decision{
		Action:         protocol.ActionMove,
		EntityUID:      uid,
		TargetPosition: &[2]int{x, y},
	})
}

// Attack answers the next main menu with an attack order.
func (h *Harness) Attack(player int, uid, targetUID int64, x, y int) {
	h.T.Helper()
	req := h.Expect(protocol.RequestMainTurn, player)
	h.Submit(req, protocol.Decision{
		Action:          protocol.ActionAttack,
		EntityUID:       uid,
		TargetEntityUID: targetUID,
		TargetPosition:  &[2]int{x, y},
	})
}

// UnitAt asserts a cell holds an entity with the given name and owner and
// returns it.
func (h *Harness) UnitAt(x, y int, name string, owner int) game.Entity {
	h.T.Helper()
	e, ok := h.G.EntityAt(x, y)
	if !ok {
		h.T.Fatalf("no entity at (%d,%d)", x, y)
	}
	if e.Name() != name || e.Owner() != owner {
		h.T.Fatalf("entity at (%d,%d) = %s owned by %d, want %s owned by %d",
			x, y, e.Name(), e.Owner(), name, owner)
	}
	return e
}
