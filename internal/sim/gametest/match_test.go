package gametest

import (
	"regexp"
	"testing"
	"time"

	"gridfall.gg/internal/protocol"
	"gridfall.gg/internal/sim/catalogs"
	"gridfall.gg/internal/sim/game"
)

var digestRE = regexp.MustCompile(`^[0-9a-f]{64}$`)

func TestAnnihilationVictory(t *testing.T) {
	h := StartDuel(t, []catalogs.SpawnDef{
		{Kind: "unit", Name: "soldier", Owner: 1, X: 4, Y: 4},
		{Kind: "unit", Name: "scout", Owner: 2, X: 6, Y: 6},
	})

	req := h.Expect(protocol.RequestMainTurn, 1)
	uids, _ := req.Validation["operable_uids"].([]int64)
	if len(uids) != 1 || uids[0] != 1000 {
		t.Fatalf("operable_uids = %v, want [1000]", uids)
	}
	h.Submit(req, protocol.Decision{
		Action:         protocol.ActionMove,
		EntityUID:      1000,
		TargetPosition: &[2]int{5, 5},
	})

	req = h.Expect(protocol.RequestMainTurn, 1)
	h.UnitAt(5, 5, "soldier", 1)
	h.Submit(req, protocol.Decision{
		Action:          protocol.ActionAttack,
		EntityUID:       1000,
		TargetEntityUID: 1001,
		TargetPosition:  &[2]int{6, 6},
	})

	res, err := h.Result()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Winner != 1 || res.Reason != "forces annihilated" {
		t.Fatalf("result = winner %d %q, want winner 1 \"forces annihilated\"", res.Winner, res.Reason)
	}
	if res.Turns != 1 {
		t.Fatalf("result turns = %d, want 1", res.Turns)
	}
	if !digestRE.MatchString(res.Digest) {
		t.Fatalf("result digest %q is not a sha-256 hex string", res.Digest)
	}
	if res.Digest != h.G.StateDigest() {
		t.Fatalf("result digest does not match the final state digest")
	}
	if _, ok := h.G.Entity(1001); ok {
		t.Fatalf("dead scout still registered")
	}
}

func TestBaseDestructionVictory(t *testing.T) {
	h := StartDuel(t, []catalogs.SpawnDef{
		{Kind: "unit", Name: "ram", Owner: 1, X: 4, Y: 4},
		{Kind: "building", Name: "fort", Owner: 2, X: 5, Y: 5},
		{Kind: "unit", Name: "scout", Owner: 2, X: 9, Y: 9},
	})

	// The fort's footprint spans (5,5)-(6,6); its nearest edge is one cell
	// from the ram, inside melee reach.
	h.Attack(1, 1000, 1001, 5, 5)

	res, err := h.Result()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Winner != 1 || res.Reason != "base destroyed" {
		t.Fatalf("result = winner %d %q, want winner 1 \"base destroyed\"", res.Winner, res.Reason)
	}
	// The surviving scout does not keep the match going once the base falls.
	if _, ok := h.G.Entity(1002); !ok {
		t.Fatalf("survivor scout should still be registered at game end")
	}
}

func TestTurnLimitDraw(t *testing.T) {
	spawns := []catalogs.SpawnDef{
		{Kind: "unit", Name: "soldier", Owner: 1, X: 2, Y: 2},
		{Kind: "unit", Name: "soldier", Owner: 2, X: 8, Y: 8},
	}
	g, err := game.New(game.Config{Mode: "duel", MaxTurns: 2}, DuelCatalogs(spawns), nil)
	if err != nil {
		t.Fatalf("game.New: %v", err)
	}
	h := Start(t, g)

	h.EndTurn(1)
	h.EndTurn(2)

	res, err := h.Result()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Winner != 0 || res.Reason != "turn limit" {
		t.Fatalf("result = winner %d %q, want winner 0 \"turn limit\"", res.Winner, res.Reason)
	}
}

func TestStaleSubmissionIsDropped(t *testing.T) {
	h := StartDuel(t, []catalogs.SpawnDef{
		{Kind: "unit", Name: "soldier", Owner: 1, X: 4, Y: 4},
		{Kind: "unit", Name: "soldier", Owner: 2, X: 8, Y: 8},
	})

	req := h.Expect(protocol.RequestMainTurn, 1)
	before := h.G.StateDigest()

	// Wrong request id: rejected before it ever reaches the engine loop.
	h.G.Submit(1, "r999", protocol.Decision{Action: protocol.ActionEndTurn})
	pending := h.G.CurrentRequest()
	if pending == nil || pending.RequestID != req.RequestID {
		t.Fatalf("pending request changed after a stale submission")
	}
	if got := h.G.StateDigest(); got != before {
		t.Fatalf("state digest changed after a stale submission")
	}
	if n := len(h.G.History()); n != 0 {
		t.Fatalf("history has %d records after a stale submission, want 0", n)
	}

	// Wrong seat: consumed and dropped by the engine, which keeps waiting.
	// The drop leaves no signal, so keep offering the real answer until the
	// request is retired.
	h.G.Submit(2, req.RequestID, protocol.Decision{Action: protocol.ActionEndTurn})
	deadline := time.Now().Add(5 * time.Second)
	for {
		cur := h.G.CurrentRequest()
		if cur == nil || cur.RequestID != req.RequestID {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("request %s never retired", req.RequestID)
		}
		h.Submit(req, protocol.Decision{Action: protocol.ActionEndTurn})
		time.Sleep(time.Millisecond)
	}
	h.Expect(protocol.RequestMainTurn, 2)

	if n := len(h.G.History()); n != 1 {
		t.Fatalf("history has %d records, want exactly the accepted end_turn", n)
	}
}

func TestIllegalActionRepromptsAndIsRecorded(t *testing.T) {
	h := StartDuel(t, []catalogs.SpawnDef{
		{Kind: "unit", Name: "soldier", Owner: 1, X: 4, Y: 4},
		{Kind: "unit", Name: "scout", Owner: 2, X: 9, Y: 9},
	})

	req := h.Expect(protocol.RequestMainTurn, 1)
	h.Submit(req, protocol.Decision{
		Action:          protocol.ActionAttack,
		EntityUID:       1000,
		TargetEntityUID: 1001,
		TargetPosition:  &[2]int{9, 9},
	})

	again := h.Expect(protocol.RequestMainTurn, 1)
	if again.RequestID == req.RequestID {
		t.Fatalf("re-prompt reused request id %s", req.RequestID)
	}

	scout, ok := h.G.Entity(1001)
	if !ok || scout.HP() != 3 {
		t.Fatalf("out-of-range target was damaged")
	}
	soldier, _ := h.G.Entity(1000)
	if !soldier.State().Attackable {
		t.Fatalf("rejected attack spent the attack budget")
	}

	// The bad answer is still part of the record.
	hist := h.G.History()
	if len(hist) != 1 || hist[0].Decision.Action != protocol.ActionAttack || hist[0].RequestID != req.RequestID {
		t.Fatalf("history = %+v, want the rejected attack against %s", hist, req.RequestID)
	}
}

func TestDemolishConfirmFlow(t *testing.T) {
	h := StartDuel(t, []catalogs.SpawnDef{
		{Kind: "building", Name: "shed", Owner: 1, X: 2, Y: 2},
		{Kind: "unit", Name: "soldier", Owner: 1, X: 4, Y: 4},
		{Kind: "unit", Name: "scout", Owner: 2, X: 8, Y: 8},
	})
	tearDown := protocol.Decision{Action: protocol.ActionDemolish, EntityUID: 1000}
	confirm := func(v bool) protocol.Decision { return protocol.Decision{Confirm: &v} }

	// Cancelled confirmation unwinds the action.
	h.Submit(h.Expect(protocol.RequestMainTurn, 1), tearDown)
	ask := h.Expect(protocol.RequestConfirm, 1)
	if !ask.AllowCancel {
		t.Fatalf("tear_down confirmation must be cancellable")
	}
	h.Submit(ask, protocol.Decision{Cancel: true})
	h.UnitAt(2, 2, "shed", 1)

	// Answering no also keeps the building.
	h.Submit(h.Expect(protocol.RequestMainTurn, 1), tearDown)
	h.Submit(h.Expect(protocol.RequestConfirm, 1), confirm(false))
	h.UnitAt(2, 2, "shed", 1)

	// Answering yes removes it, with no victory side effects.
	h.Submit(h.Expect(protocol.RequestMainTurn, 1), tearDown)
	h.Submit(h.Expect(protocol.RequestConfirm, 1), confirm(true))
	h.Expect(protocol.RequestMainTurn, 1)
	if _, ok := h.G.EntityAt(2, 2); ok {
		t.Fatalf("shed still on the board after tear_down")
	}
	if _, ok := h.G.Entity(1000); ok {
		t.Fatalf("shed still registered after tear_down")
	}
}

func TestRecruitSpellDeploysNearBase(t *testing.T) {
	h := StartDuel(t, []catalogs.SpawnDef{
		{Kind: "building", Name: "fort", Owner: 1, X: 2, Y: 2},
		{Kind: "unit", Name: "scout", Owner: 2, X: 8, Y: 8},
	})

	req := h.Expect(protocol.RequestMainTurn, 1)
	castable, _ := req.Validation["castable_spells"].([]int)
	if len(castable) != 2 {
		t.Fatalf("castable_spells = %v, want both slots", castable)
	}
	h.Submit(req, protocol.Decision{Action: protocol.ActionCastSpell, SpellIndex: 0})

	pick := h.Expect(protocol.RequestSelectUnitType, 1)
	roster, _ := pick.Validation["options"].([]string)
	if len(roster) != 2 || roster[0] != "scout" || roster[1] != "soldier" {
		t.Fatalf("roster options = %v, want [scout soldier]", roster)
	}
	h.Submit(pick, protocol.Decision{Selection: "soldier"})

	where := h.Expect(protocol.RequestSelectLocation, 1)
	cells, _ := where.Validation["options"].([][2]int)
	if len(cells) == 0 {
		t.Fatalf("no deployment cells offered next to the fort")
	}
	h.Submit(where, protocol.Decision{Position: &cells[0]})
	h.Expect(protocol.RequestMainTurn, 1)

	h.UnitAt(cells[0][0], cells[0][1], "soldier", 1)
	p := h.G.Player(1)
	if p.Gold != 9 {
		t.Fatalf("gold after recruiting a soldier = %d, want 9", p.Gold)
	}
	if p.SpellCasts[0] != 1 {
		t.Fatalf("recruit casts left = %d, want 1", p.SpellCasts[0])
	}
}

func TestSnipeSpellCancelRefundsCast(t *testing.T) {
	h := StartDuel(t, []catalogs.SpawnDef{
		{Kind: "unit", Name: "soldier", Owner: 1, X: 4, Y: 4},
		{Kind: "unit", Name: "scout", Owner: 2, X: 6, Y: 6},
	})
	cast := protocol.Decision{Action: protocol.ActionCastSpell, SpellIndex: 1}

	// Backing out of the target pick restores the cast.
	h.Submit(h.Expect(protocol.RequestMainTurn, 1), cast)
	h.Submit(h.Expect(protocol.RequestSelectLocation, 1), protocol.Decision{Cancel: true})
	menu := h.Expect(protocol.RequestMainTurn, 1)
	if got := h.G.Player(1).SpellCasts[1]; got != 1 {
		t.Fatalf("snipe casts after cancel = %d, want 1", got)
	}

	h.Submit(menu, cast)
	aim := h.Expect(protocol.RequestSelectLocation, 1)
	cells, _ := aim.Validation["options"].([][2]int)
	if len(cells) != 1 || cells[0] != [2]int{6, 6} {
		t.Fatalf("snipe options = %v, want only the enemy scout", cells)
	}
	h.Submit(aim, protocol.Decision{Position: &cells[0]})

	req := h.Expect(protocol.RequestMainTurn, 1)
	scout, _ := h.G.Entity(1001)
	if scout.HP() != 1 {
		t.Fatalf("scout hp after snipe = %d, want 1", scout.HP())
	}
	if got := h.G.Player(1).SpellCasts[1]; got != 0 {
		t.Fatalf("snipe casts after resolving = %d, want 0", got)
	}
	castable, _ := req.Validation["castable_spells"].([]int)
	if len(castable) != 1 || castable[0] != 0 {
		t.Fatalf("castable_spells = %v, want only recruit left", castable)
	}
}
