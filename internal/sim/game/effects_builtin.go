package game

import (
	"encoding/json"
	"fmt"

	"gridfall.gg/internal/sim/board"
	"gridfall.gg/internal/sim/trigger"
)

// varOr reads a blueprint variable with a fallback, so data can retune an
// effect without code changes.
func varOr(e Entity, key string, def int) int {
	if v, ok := e.Vars()[key]; ok {
		return v
	}
	return def
}

// effectBrittle makes its owner take one extra point of damage.
// CALC_DAMAGE, TARGET.
func effectBrittle(g *Game, ctx *trigger.Context, owner int64) error {
	ctx.Value++
	return nil
}

// effectBayonet adds damage when the owner strikes a unit rather than a
// building. CALC_DAMAGE, SOURCE.
func effectBayonet(g *Game, ctx *trigger.Context, owner int64) error {
	t, ok := g.Entity(ctx.Target)
	if !ok || t.Kind() != KindUnit {
		return nil
	}
	e, _ := g.Entity(owner)
	ctx.Value += varOr(e, "bayonet_bonus", 1)
	return nil
}

// effectMineIncome pays the owner's player at the start of their turn.
// ON_TURN_START, GLOBAL.
func effectMineIncome(g *Game, ctx *trigger.Context, owner int64) error {
	e, ok := g.Entity(owner)
	if !ok || e.Owner() != ctx.SourcePlayer {
		return nil
	}
	if p := g.Player(e.Owner()); p != nil {
		p.Gold += varOr(e, "gold_income", 2)
	}
	return nil
}

// effectCampIncome is mine income for wood. ON_TURN_START, GLOBAL.
func effectCampIncome(g *Game, ctx *trigger.Context, owner int64) error {
	e, ok := g.Entity(owner)
	if !ok || e.Owner() != ctx.SourcePlayer {
		return nil
	}
	if p := g.Player(e.Owner()); p != nil {
		p.Wood += varOr(e, "wood_income", 1)
	}
	return nil
}

// effectThorns reflects true damage at whoever just struck the owner.
// ON_ATTACK, TARGET.
func effectThorns(g *Game, ctx *trigger.Context, owner int64) error {
	att, ok := g.Entity(ctx.Source)
	if !ok {
		return nil
	}
	e, _ := g.Entity(owner)
	return g.DealTrueDamage(owner, att, varOr(e, "thorns_damage", 1))
}

// effectLastStand lets the owner survive lethal damage once per match,
// standing back up at one hit point. ON_DEATH, SOURCE.
func effectLastStand(g *Game, ctx *trigger.Context, owner int64) error {
	e, ok := g.Entity(owner)
	if !ok || e.HP() > 0 {
		return nil
	}
	if e.Vars()["last_stand_spent"] > 0 {
		return nil
	}
	e.Vars()["last_stand_spent"] = 1
	e.SetHP(1)
	g.log.Printf("last stand: %s %d survives at 1 hp", e.Name(), owner)
	return nil
}

// effectVeteran promotes the owner when it lands a kill. ON_KILL, SOURCE.
func effectVeteran(g *Game, ctx *trigger.Context, owner int64) error {
	return g.Promote(owner)
}

// effectHitAndRun keeps the owner's move budget after it attacks.
// ON_ATTACK, SOURCE.
func effectHitAndRun(g *Game, ctx *trigger.Context, owner int64) error {
	if ctx.Meta != nil {
		ctx.Meta[metaKeepMovable] = true
	}
	return nil
}

// effectHeavyWeapon forfeits the owner's attack once it has moved.
// ON_MOVE, SOURCE.
func effectHeavyWeapon(g *Game, ctx *trigger.Context, owner int64) error {
	if e, ok := g.Entity(owner); ok {
		e.State().Attackable = false
	}
	return nil
}

// activeCharm swaps the actor with an enemy unit within two cells.
func activeCharm(g *Game, actor Entity, skill string, target json.RawMessage) error {
	var t struct {
		TargetUID int64 `json:"target_uid"`
	}
	if err := json.Unmarshal(target, &t); err != nil {
		return illegalf("charm: bad skill_target: %v", err)
	}
	victim, ok := g.Entity(t.TargetUID)
	if !ok {
		return illegalf("charm: no entity %d", t.TargetUID)
	}
	if victim.Owner() == actor.Owner() {
		return illegalf("charm: entity %d is friendly", victim.UID())
	}
	if victim.Kind() != KindUnit {
		return illegalf("charm: entity %d is not a unit", victim.UID())
	}
	band := board.Shape{Kind: board.Chebyshev, Min: 1, Max: varOr(actor, "charm_range", 2)}
	cells, err := g.brd.RangeOccupiedCells(actor, band)
	if err != nil {
		return illegalf("charm: %v", err)
	}
	if !containsCell(cells, victim.Pos()) {
		return illegalf("charm: entity %d out of reach", victim.UID())
	}
	if !g.brd.Swap(actor, victim) {
		return illegalf("charm: footprints do not match")
	}
	return nil
}

// activeMissileStrike asks for a target cell within three, lands two true
// damage on its occupant, and splashes one to each neighboring occupant.
func activeMissileStrike(g *Game, actor Entity, skill string, target json.RawMessage) error {
	opts, err := g.brd.RangeCells(actor, board.Shape{Kind: board.Chebyshev, Min: 1, Max: varOr(actor, "strike_range", 3)})
	if err != nil {
		return illegalf("missile_strike: %v", err)
	}
	cell, err := g.SelectLocation(actor.Owner(), "missile strike where?", opts, true)
	if err != nil {
		return err
	}

	hit := map[int64]struct{}{}
	if e, ok := g.EntityAt(cell.X, cell.Y); ok {
		hit[e.UID()] = struct{}{}
		if err := g.DealTrueDamage(actor.UID(), e, 2); err != nil {
			return err
		}
	}
	for _, off := range [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}, {1, 1}, {1, -1}, {-1, 1}, {-1, -1}} {
		e, ok := g.EntityAt(cell.X+off[0], cell.Y+off[1])
		if !ok {
			continue
		}
		if _, done := hit[e.UID()]; done {
			continue
		}
		hit[e.UID()] = struct{}{}
		if err := g.DealTrueDamage(actor.UID(), e, 1); err != nil {
			return err
		}
	}
	return nil
}

// activeFieldMedic heals an adjacent wounded ally.
func activeFieldMedic(g *Game, actor Entity, skill string, target json.RawMessage) error {
	cells, err := g.brd.RangeOccupiedCells(actor, board.Shape{Kind: board.Chebyshev, Min: 1, Max: 1})
	if err != nil {
		return illegalf("field_medic: %v", err)
	}
	var opts []board.Cell
	for _, c := range cells {
		e, ok := g.EntityAt(c.X, c.Y)
		if ok && e.Owner() == actor.Owner() && e.HP() < e.MaxHP() {
			opts = append(opts, c)
		}
	}
	if len(opts) == 0 {
		return illegalf("field_medic: no wounded ally in reach")
	}
	cell, err := g.SelectLocation(actor.Owner(), "heal whom?", opts, true)
	if err != nil {
		return err
	}
	e, ok := g.EntityAt(cell.X, cell.Y)
	if !ok {
		return illegalf("field_medic: nothing at (%d,%d)", cell.X, cell.Y)
	}
	return g.Heal(actor.UID(), e, varOr(actor, "heal_amount", 2))
}

// activeSalvage converts the actor back into resources after confirmation.
func activeSalvage(g *Game, actor Entity, skill string, target json.RawMessage) error {
	ok, err := g.AskConfirm(actor.Owner(), fmt.Sprintf("salvage %s for 2 gold, 1 wood?", actor.Name()), true)
	if err != nil {
		return err
	}
	if !ok {
		return ErrDecisionCancelled
	}
	if p := g.Player(actor.Owner()); p != nil {
		p.Gold += 2
		p.Wood++
	}
	g.removeEntity(actor.UID())
	return nil
}

// spellRecruit buys a roster unit and deploys it next to the player's base.
// The gold price runs through CALC_COST so discounts can adjust it.
func spellRecruit(g *Game, p *PlayerState, target json.RawMessage) error {
	roster := g.mode.Def().Roster
	if len(roster) == 0 {
		return illegalf("recruit: mode has no roster")
	}
	name, err := g.SelectUnitType(p.ID, "recruit which unit?", roster, true)
	if err != nil {
		return err
	}
	def, ok := g.cats.Units.ByName[name]
	if !ok {
		return illegalf("recruit: unknown unit %q", name)
	}

	cctx := &trigger.Context{
		SourcePlayer: p.ID,
		Value:        def.Normal.Cost.Gold,
		Meta:         map[string]any{"unit": name},
	}
	if err := g.bus.DispatchSync(trigger.CalcCost, cctx); err != nil {
		return err
	}
	goldCost, woodCost := cctx.Value, def.Normal.Cost.Wood
	if p.Gold < goldCost || p.Wood < woodCost {
		return illegalf("recruit: %q costs %dg %dw, have %dg %dw", name, goldCost, woodCost, p.Gold, p.Wood)
	}

	base := g.findBase(p.ID)
	if base == nil {
		return illegalf("recruit: no base standing")
	}
	opts, err := g.brd.RangeEmptyCells(base, board.Shape{Kind: board.Chebyshev, Min: 1, Max: 2}, true)
	if err != nil {
		return illegalf("recruit: %v", err)
	}
	if len(opts) == 0 {
		return illegalf("recruit: no room near the base")
	}
	cell, err := g.SelectLocation(p.ID, fmt.Sprintf("deploy %s where?", name), opts, true)
	if err != nil {
		return err
	}

	p.Gold -= goldCost
	p.Wood -= woodCost
	_, err = g.SpawnUnit(name, p.ID, cell.X, cell.Y, false)
	return err
}

// spellSnipe lands two true damage on any enemy unit on the board.
func spellSnipe(g *Game, p *PlayerState, target json.RawMessage) error {
	var opts []board.Cell
	for _, e := range g.entitiesSorted() {
		if e.Owner() != p.ID && e.Kind() == KindUnit {
			opts = append(opts, e.Pos())
		}
	}
	if len(opts) == 0 {
		return illegalf("snipe: no enemy units")
	}
	cell, err := g.SelectLocation(p.ID, "snipe whom?", opts, true)
	if err != nil {
		return err
	}
	e, ok := g.EntityAt(cell.X, cell.Y)
	if !ok {
		return illegalf("snipe: nothing at (%d,%d)", cell.X, cell.Y)
	}
	return g.DealTrueDamage(0, e, 2)
}

var directionSteps = map[string][2]int{
	"N": {0, -1},
	"E": {1, 0},
	"S": {0, 1},
	"W": {-1, 0},
}

// spellBarrage fires a ray from the player's base in a chosen direction. The
// first occupant stops it: an enemy takes two true damage, anything else
// just blocks the shot. A blocked or empty lane still consumes the cast.
func spellBarrage(g *Game, p *PlayerState, target json.RawMessage) error {
	base := g.findBase(p.ID)
	if base == nil {
		return illegalf("barrage: no base standing")
	}
	dir, err := g.SelectDirection(p.ID, "barrage which way?")
	if err != nil {
		return err
	}
	step := directionSteps[dir]
	x, y := rayStart(base, step)
	for g.brd.InBounds(x, y) {
		if e, ok := g.EntityAt(x, y); ok {
			if e.Owner() == p.ID {
				g.log.Printf("barrage: blocked by friendly %s %d", e.Name(), e.UID())
				return nil
			}
			return g.DealTrueDamage(0, e, 2)
		}
		x += step[0]
		y += step[1]
	}
	g.log.Printf("barrage: nothing in the %s lane", dir)
	return nil
}

// rayStart is the first cell outside a piece's footprint along a direction,
// centered on the footprint's midline.
func rayStart(e Entity, step [2]int) (int, int) {
	pos := e.Pos()
	w, h := e.Footprint()
	switch {
	case step[0] > 0:
		return pos.X + w, pos.Y + (h-1)/2
	case step[0] < 0:
		return pos.X - 1, pos.Y + (h-1)/2
	case step[1] > 0:
		return pos.X + (w-1)/2, pos.Y + h
	default:
		return pos.X + (w-1)/2, pos.Y - 1
	}
}

// findBase returns the player's mode-designated base building, or nil.
func (g *Game) findBase(player int) Entity {
	baseName := g.mode.Def().Base
	if baseName == "" {
		return nil
	}
	for _, e := range g.entitiesSorted() {
		if e.Owner() == player && e.Kind() == KindBuilding && e.Name() == baseName {
			return e
		}
	}
	return nil
}
