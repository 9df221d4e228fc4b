package game

import (
	"context"
	"errors"
	"testing"
	"time"

	"gridfall.gg/internal/protocol"
	"gridfall.gg/internal/sim/board"
	"gridfall.gg/internal/sim/catalogs"
)

// Hand-built blueprints keep combat numbers exact without touching the data
// files. MoveKind must be set explicitly because catalogs.Load is not
// involved to default it.
func testUnits() map[string]catalogs.UnitDef {
	melee := board.Shape{Kind: board.Chebyshev, Min: 1, Max: 1}
	return map[string]catalogs.UnitDef{
		"grunt": {
			Name:     "grunt",
			MoveKind: board.Chebyshev,
			Normal:   catalogs.TierStats{MaxHP: 7, Attack: 4, AttackShape: melee, MoveRange: 2, Cost: catalogs.Cost{Gold: 2}},
		},
		"peon": {
			Name:     "peon",
			MoveKind: board.Chebyshev,
			Normal:   catalogs.TierStats{MaxHP: 3, Attack: 1, AttackShape: melee, MoveRange: 1, Cost: catalogs.Cost{Gold: 1}},
		},
		"wisp": {
			Name:     "wisp",
			MoveKind: board.Chebyshev,
			Normal:   catalogs.TierStats{MaxHP: 3, Attack: 1, AttackShape: melee, MoveRange: 1, Cost: catalogs.Cost{Gold: 1}},
			Skills: map[string]catalogs.SkillDef{
				"brittle": {Kind: catalogs.SkillPassive, Trigger: "CALC_DAMAGE", Role: catalogs.RoleTarget, Effect: "brittle"},
			},
		},
		"spiky": {
			Name:     "spiky",
			MoveKind: board.Chebyshev,
			Normal:   catalogs.TierStats{MaxHP: 8, Attack: 2, AttackShape: melee, MoveRange: 1, Cost: catalogs.Cost{Gold: 3}},
			Skills: map[string]catalogs.SkillDef{
				"thorns": {Kind: catalogs.SkillPassive, Trigger: "ON_ATTACK", Role: catalogs.RoleTarget, Effect: "thorns"},
			},
		},
		"diehard": {
			Name:     "diehard",
			MoveKind: board.Chebyshev,
			Normal:   catalogs.TierStats{MaxHP: 3, Attack: 1, AttackShape: melee, MoveRange: 1, Cost: catalogs.Cost{Gold: 2}},
			Skills: map[string]catalogs.SkillDef{
				"last_stand": {Kind: catalogs.SkillPassive, Trigger: "ON_DEATH", Role: catalogs.RoleSource, Effect: "last_stand", Priority: 10},
			},
		},
		"blade": {
			Name:     "blade",
			MoveKind: board.Chebyshev,
			Normal:   catalogs.TierStats{MaxHP: 7, Attack: 4, AttackShape: melee, MoveRange: 2, Cost: catalogs.Cost{Gold: 4}},
			Promoted: &catalogs.TierStats{MaxHP: 9, Attack: 5, AttackShape: melee, MoveRange: 2, Cost: catalogs.Cost{Gold: 4}},
			Skills: map[string]catalogs.SkillDef{
				"veteran": {Kind: catalogs.SkillPassive, Trigger: "ON_KILL", Role: catalogs.RoleSource, Effect: "veteran"},
			},
		},
		"raider": {
			Name:     "raider",
			MoveKind: board.Chebyshev,
			Normal:   catalogs.TierStats{MaxHP: 5, Attack: 2, AttackShape: melee, MoveRange: 2, Cost: catalogs.Cost{Gold: 3}},
			Skills: map[string]catalogs.SkillDef{
				"hit_and_run": {Kind: catalogs.SkillPassive, Trigger: "ON_ATTACK", Role: catalogs.RoleSource, Effect: "hit_and_run"},
			},
		},
		"bonesetter": {
			Name:     "bonesetter",
			MoveKind: board.Chebyshev,
			Normal:   catalogs.TierStats{MaxHP: 4, Attack: 0, AttackShape: melee, MoveRange: 2, Cost: catalogs.Cost{Gold: 3}},
			Skills: map[string]catalogs.SkillDef{
				"field_medic": {Kind: catalogs.SkillActive, Effect: "field_medic", MoveConflict: true},
			},
			Variables: map[string]int{"heal_amount": 2},
		},
		"trickster": {
			Name:     "trickster",
			MoveKind: board.Chebyshev,
			Normal:   catalogs.TierStats{MaxHP: 3, Attack: 0, AttackShape: melee, MoveRange: 2, Cost: catalogs.Cost{Gold: 4}},
			Skills: map[string]catalogs.SkillDef{
				"charm": {Kind: catalogs.SkillActive, Effect: "charm", MoveConflict: true},
			},
		},
		"saboteur": {
			Name:     "saboteur",
			MoveKind: board.Chebyshev,
			Normal:   catalogs.TierStats{MaxHP: 3, Attack: 1, AttackShape: melee, MoveRange: 3, Cost: catalogs.Cost{Gold: 5}},
			Skills: map[string]catalogs.SkillDef{
				"missile_strike": {Kind: catalogs.SkillActive, Effect: "missile_strike", AttackConflict: true},
			},
		},
		"knightrider": {
			Name:     "knightrider",
			MoveKind: board.Knight,
			Normal:   catalogs.TierStats{MaxHP: 5, Attack: 2, AttackShape: melee, MoveRange: 1, Cost: catalogs.Cost{Gold: 4}},
		},
		"siege": {
			Name:     "siege",
			MoveKind: board.Chebyshev,
			Normal:   catalogs.TierStats{MaxHP: 4, Attack: 3, AttackShape: board.Shape{Kind: board.Line, Min: 2, Max: 3}, MoveRange: 1, Cost: catalogs.Cost{Gold: 5}},
			Skills: map[string]catalogs.SkillDef{
				"heavy_weapon": {Kind: catalogs.SkillPassive, Trigger: "ON_MOVE", Role: catalogs.RoleSource, Effect: "heavy_weapon"},
			},
		},
	}
}

func testBuildings() map[string]catalogs.BuildingDef {
	tower := board.Shape{Kind: board.Chebyshev, Min: 1, Max: 2}
	return map[string]catalogs.BuildingDef{
		"keep": {
			Name: "keep", MaxHP: 10, Width: 2, Height: 2,
			Cost: catalogs.Cost{Gold: 8, Wood: 4},
		},
		"hut": {
			Name: "hut", MaxHP: 3, Width: 1, Height: 1,
			Cost: catalogs.Cost{Gold: 2},
		},
		"watchtower": {
			Name: "watchtower", MaxHP: 5, Width: 1, Height: 1,
			Attack: 2, AttackShape: &tower,
			Cost: catalogs.Cost{Gold: 3, Wood: 2},
		},
		"workshop": {
			Name: "workshop", MaxHP: 6, Width: 2, Height: 1,
			Cost: catalogs.Cost{Gold: 5, Wood: 2},
			Skills: map[string]catalogs.SkillDef{
				"salvage": {Kind: catalogs.SkillActive, Effect: "salvage"},
			},
		},
		"mine": {
			Name: "mine", MaxHP: 4, Width: 1, Height: 1,
			Cost: catalogs.Cost{Gold: 4},
			Skills: map[string]catalogs.SkillDef{
				"mine_income": {Kind: catalogs.SkillPassive, Trigger: "ON_TURN_START", Role: catalogs.RoleGlobal, Effect: "mine_income"},
			},
			Variables: map[string]int{"gold_income": 2},
		},
	}
}

// buildCats assembles an in-memory catalog set around one map and one mode.
func buildCats(mapDef catalogs.MapDef, modeDef catalogs.ModeDef) *catalogs.Catalogs {
	return &catalogs.Catalogs{
		Units:     catalogs.UnitCatalog{ByName: testUnits(), Digest: "test"},
		Buildings: catalogs.BuildingCatalog{ByName: testBuildings(), Digest: "test"},
		Maps:      catalogs.MapCatalog{ByName: map[string]catalogs.MapDef{mapDef.Name: mapDef}, Digest: "test"},
		Modes:     catalogs.ModeCatalog{ByName: map[string]catalogs.ModeDef{modeDef.Name: modeDef}, Digest: "test"},
	}
}

func duelMode(spells ...catalogs.SpellSlot) catalogs.ModeDef {
	return catalogs.ModeDef{
		Name:      "duel",
		Players:   2,
		Map:       "proving",
		Base:      "keep",
		StartGold: 10,
		StartWood: 5,
		Spells:    spells,
		Roster:    []string{"peon", "grunt"},
	}
}

func newTestGame(t *testing.T, spawns []catalogs.SpawnDef, modeDef catalogs.ModeDef, cfg Config) *Game {
	t.Helper()
	mapDef := catalogs.MapDef{Name: "proving", Width: 9, Height: 9, Spawns: spawns}
	if cfg.Mode == "" {
		cfg.Mode = modeDef.Name
	}
	g, err := New(cfg, buildCats(mapDef, modeDef), nil)
	if err != nil {
		t.Fatalf("new game: %v", err)
	}
	return g
}

type runOutcome struct {
	res *Result
	err error
}

// driver runs the engine on its own goroutine and hands requests to the
// test. Reads of game state are safe whenever the engine is parked on a
// request the driver has already delivered.
type driver struct {
	t      *testing.T
	g      *Game
	reqs   chan protocol.DecisionRequest
	done   chan runOutcome
	out    *runOutcome
	cancel context.CancelFunc
}

func startGame(t *testing.T, g *Game) *driver {
	t.Helper()
	d := &driver{
		t:    t,
		g:    g,
		reqs: make(chan protocol.DecisionRequest, 8),
		done: make(chan runOutcome, 1),
	}
	g.OnRequest(func(req protocol.DecisionRequest) { d.reqs <- req })
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	go func() {
		res, err := g.Run(ctx)
		d.done <- runOutcome{res: res, err: err}
	}()
	t.Cleanup(func() {
		cancel()
		if d.out != nil {
			return
		}
		select {
		case <-d.done:
		case <-time.After(5 * time.Second):
			t.Errorf("engine did not stop on context cancel")
		}
	})
	return d
}

func (d *driver) nextRequest() protocol.DecisionRequest {
	d.t.Helper()
	select {
	case req := <-d.reqs:
		return req
	case out := <-d.done:
		d.out = &out
		d.t.Fatalf("match ended while awaiting a request: res=%+v err=%v", out.res, out.err)
	case <-time.After(5 * time.Second):
		d.t.Fatalf("timed out awaiting a request")
	}
	return protocol.DecisionRequest{}
}

func (d *driver) expectRequest(reqType string, player int) protocol.DecisionRequest {
	d.t.Helper()
	req := d.nextRequest()
	if req.Type != reqType || req.PlayerID != player {
		d.t.Fatalf("request = %s for player %d, want %s for player %d", req.Type, req.PlayerID, reqType, player)
	}
	return req
}

func (d *driver) submit(req protocol.DecisionRequest, dec protocol.Decision) {
	d.g.Submit(req.PlayerID, req.RequestID, dec)
}

func (d *driver) result() runOutcome {
	d.t.Helper()
	if d.out != nil {
		return *d.out
	}
	select {
	case out := <-d.done:
		d.out = &out
		return out
	case <-time.After(5 * time.Second):
		d.t.Fatalf("timed out awaiting the match result")
	}
	return runOutcome{}
}

func pos(x, y int) *[2]int { return &[2]int{x, y} }

func mustEntity(t *testing.T, g *Game, uid int64) Entity {
	t.Helper()
	e, ok := g.Entity(uid)
	if !ok {
		t.Fatalf("entity %d not found", uid)
	}
	return e
}

func TestTurnLoop_EndTurnAdvances(t *testing.T) {
	g := newTestGame(t, []catalogs.SpawnDef{
		{Kind: "unit", Name: "grunt", Owner: 1, X: 3, Y: 3},
		{Kind: "unit", Name: "grunt", Owner: 2, X: 7, Y: 7},
	}, duelMode(), Config{})
	d := startGame(t, g)

	req := d.expectRequest(protocol.RequestMainTurn, 1)
	if g.Turn() != 1 || g.CurrentPlayer() != 1 {
		t.Fatalf("turn=%d current=%d, want 1/1", g.Turn(), g.CurrentPlayer())
	}
	d.submit(req, protocol.Decision{Action: protocol.ActionEndTurn})

	req = d.expectRequest(protocol.RequestMainTurn, 2)
	if g.Turn() != 2 || g.CurrentPlayer() != 2 {
		t.Fatalf("turn=%d current=%d, want 2/2", g.Turn(), g.CurrentPlayer())
	}
	d.submit(req, protocol.Decision{Action: protocol.ActionEndTurn})

	req = d.expectRequest(protocol.RequestMainTurn, 1)
	if g.Turn() != 3 || g.CurrentPlayer() != 1 {
		t.Fatalf("turn=%d current=%d, want 3/1", g.Turn(), g.CurrentPlayer())
	}
	_ = req
}

func TestTurnLoop_CancelEndsTurn(t *testing.T) {
	g := newTestGame(t, []catalogs.SpawnDef{
		{Kind: "unit", Name: "grunt", Owner: 1, X: 3, Y: 3},
		{Kind: "unit", Name: "grunt", Owner: 2, X: 7, Y: 7},
	}, duelMode(), Config{})
	d := startGame(t, g)

	req := d.expectRequest(protocol.RequestMainTurn, 1)
	d.submit(req, protocol.Decision{Cancel: true})

	d.expectRequest(protocol.RequestMainTurn, 2)
}

func TestTurnLoop_MoveConsumesBudgetAndResets(t *testing.T) {
	g := newTestGame(t, []catalogs.SpawnDef{
		{Kind: "unit", Name: "grunt", Owner: 1, X: 3, Y: 3},
		{Kind: "unit", Name: "grunt", Owner: 2, X: 7, Y: 7},
	}, duelMode(), Config{})
	d := startGame(t, g)
	grunt := mustEntity(t, g, 1000)

	req := d.expectRequest(protocol.RequestMainTurn, 1)
	d.submit(req, protocol.Decision{Action: protocol.ActionMove, EntityUID: 1000, TargetPosition: pos(4, 4)})

	req = d.expectRequest(protocol.RequestMainTurn, 1)
	if got := grunt.Pos(); got != (board.Cell{X: 4, Y: 4}) {
		t.Fatalf("pos = %+v, want (4,4)", got)
	}
	if grunt.State().Movable {
		t.Fatalf("Movable still set after moving")
	}
	if !grunt.State().Attackable {
		t.Fatalf("Attackable should survive a move")
	}

	d.submit(req, protocol.Decision{Action: protocol.ActionEndTurn})
	req = d.expectRequest(protocol.RequestMainTurn, 2)
	d.submit(req, protocol.Decision{Action: protocol.ActionEndTurn})

	d.expectRequest(protocol.RequestMainTurn, 1)
	if !grunt.State().Movable {
		t.Fatalf("Movable not reset at the owner's next turn")
	}
}

func TestTurnLoop_IllegalActionReprompts(t *testing.T) {
	g := newTestGame(t, []catalogs.SpawnDef{
		{Kind: "unit", Name: "grunt", Owner: 1, X: 3, Y: 3},
		{Kind: "unit", Name: "grunt", Owner: 2, X: 7, Y: 7},
	}, duelMode(), Config{})
	d := startGame(t, g)

	req := d.expectRequest(protocol.RequestMainTurn, 1)
	before := g.StateDigest()

	// moving the opponent's unit is rejected without touching state
	d.submit(req, protocol.Decision{Action: protocol.ActionMove, EntityUID: 1001, TargetPosition: pos(6, 6)})

	again := d.expectRequest(protocol.RequestMainTurn, 1)
	if again.RequestID == req.RequestID {
		t.Fatalf("re-prompt reused request id %s", req.RequestID)
	}
	if got := g.StateDigest(); got != before {
		t.Fatalf("state changed on a rejected action")
	}
}

func TestSubmit_StaleAndMismatchedDropped(t *testing.T) {
	g := newTestGame(t, []catalogs.SpawnDef{
		{Kind: "unit", Name: "grunt", Owner: 1, X: 3, Y: 3},
		{Kind: "unit", Name: "grunt", Owner: 2, X: 7, Y: 7},
	}, duelMode(), Config{})
	d := startGame(t, g)

	req := d.expectRequest(protocol.RequestMainTurn, 1)
	before := g.StateDigest()

	// wrong request id: dropped before it reaches the engine
	g.Submit(1, "r9999", protocol.Decision{Action: protocol.ActionEndTurn})
	// right id, wrong seat: the engine reads it, logs, keeps waiting
	g.Submit(2, req.RequestID, protocol.Decision{Action: protocol.ActionEndTurn})

	time.Sleep(50 * time.Millisecond)
	if cur := g.CurrentRequest(); cur == nil || cur.RequestID != req.RequestID {
		t.Fatalf("pending request changed after bogus submissions")
	}
	if got := g.StateDigest(); got != before {
		t.Fatalf("state changed on dropped submissions")
	}

	d.submit(req, protocol.Decision{Action: protocol.ActionEndTurn})
	d.expectRequest(protocol.RequestMainTurn, 2)
}

func TestRun_TurnLimitDraw(t *testing.T) {
	g := newTestGame(t, []catalogs.SpawnDef{
		{Kind: "unit", Name: "grunt", Owner: 1, X: 3, Y: 3},
		{Kind: "unit", Name: "grunt", Owner: 2, X: 7, Y: 7},
	}, duelMode(), Config{MaxTurns: 2})
	d := startGame(t, g)

	req := d.expectRequest(protocol.RequestMainTurn, 1)
	d.submit(req, protocol.Decision{Action: protocol.ActionEndTurn})
	req = d.expectRequest(protocol.RequestMainTurn, 2)
	d.submit(req, protocol.Decision{Action: protocol.ActionEndTurn})

	out := d.result()
	if out.err != nil {
		t.Fatalf("run error: %v", out.err)
	}
	if out.res.Winner != 0 || out.res.Reason != "turn limit" {
		t.Fatalf("result = %+v, want draw on turn limit", out.res)
	}
	if out.res.Digest == "" {
		t.Fatalf("result digest empty")
	}
}

func TestRun_ContextCancelMidRequest(t *testing.T) {
	g := newTestGame(t, []catalogs.SpawnDef{
		{Kind: "unit", Name: "grunt", Owner: 1, X: 3, Y: 3},
		{Kind: "unit", Name: "grunt", Owner: 2, X: 7, Y: 7},
	}, duelMode(), Config{})
	d := startGame(t, g)

	d.expectRequest(protocol.RequestMainTurn, 1)
	d.cancel()

	out := d.result()
	if out.res != nil {
		t.Fatalf("result = %+v, want nil on cancellation", out.res)
	}
	if !errors.Is(out.err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", out.err)
	}
}

func TestMenuValidation_OperablesShrinkAsBudgetsSpend(t *testing.T) {
	g := newTestGame(t, []catalogs.SpawnDef{
		{Kind: "unit", Name: "grunt", Owner: 1, X: 3, Y: 3},
		{Kind: "unit", Name: "grunt", Owner: 2, X: 4, Y: 4},
		{Kind: "unit", Name: "grunt", Owner: 2, X: 7, Y: 7},
	}, duelMode(), Config{})
	d := startGame(t, g)

	req := d.expectRequest(protocol.RequestMainTurn, 1)
	if got := req.Validation["operable_uids"].([]int64); len(got) != 1 || got[0] != 1000 {
		t.Fatalf("operable = %v, want [1000]", got)
	}

	d.submit(req, protocol.Decision{Action: protocol.ActionAttack, EntityUID: 1000, TargetEntityUID: 1001, TargetPosition: pos(4, 4)})

	req = d.expectRequest(protocol.RequestMainTurn, 1)
	if got := req.Validation["operable_uids"].([]int64); len(got) != 0 {
		t.Fatalf("operable after attack = %v, want none", got)
	}
	_ = req
}

func TestHistory_RecordsAcceptedDecisions(t *testing.T) {
	g := newTestGame(t, []catalogs.SpawnDef{
		{Kind: "unit", Name: "grunt", Owner: 1, X: 3, Y: 3},
		{Kind: "unit", Name: "grunt", Owner: 2, X: 7, Y: 7},
	}, duelMode(), Config{})
	d := startGame(t, g)

	req := d.expectRequest(protocol.RequestMainTurn, 1)
	preDigest := g.StateDigest()
	d.submit(req, protocol.Decision{Action: protocol.ActionMove, EntityUID: 1000, TargetPosition: pos(4, 4)})
	d.expectRequest(protocol.RequestMainTurn, 1)

	hist := g.History()
	if len(hist) != 1 {
		t.Fatalf("history length = %d, want 1", len(hist))
	}
	rec := hist[0]
	if rec.Seq != 1 || rec.Player != 1 || rec.RequestID != req.RequestID || rec.RequestType != protocol.RequestMainTurn {
		t.Fatalf("record = %+v", rec)
	}
	if rec.Digest != preDigest {
		t.Fatalf("record digest is not the accept-time digest")
	}
}
