package game

import (
	"errors"
	"fmt"

	"gridfall.gg/internal/protocol"
	"gridfall.gg/internal/sim/board"
	"gridfall.gg/internal/sim/catalogs"
	"gridfall.gg/internal/sim/trigger"
)

type actionHandler func(*Game, *PlayerState, protocol.Decision) error

var actionDispatch = map[string]actionHandler{
	protocol.ActionMove:      handleMove,
	protocol.ActionAttack:    handleAttack,
	protocol.ActionUseSkill:  handleUseSkill,
	protocol.ActionCastSpell: handleCastSpell,
	protocol.ActionDemolish:  handleDemolish,
}

func supportedActions() []string {
	return []string{
		protocol.ActionMove,
		protocol.ActionAttack,
		protocol.ActionUseSkill,
		protocol.ActionCastSpell,
		protocol.ActionDemolish,
		protocol.ActionEndTurn,
	}
}

func validateActionDispatch() error {
	allowed := map[string]struct{}{}
	for _, k := range supportedActions() {
		if k == "" {
			return fmt.Errorf("actionDispatch: empty supported key")
		}
		if _, dup := allowed[k]; dup {
			return fmt.Errorf("actionDispatch: duplicate supported key %q", k)
		}
		allowed[k] = struct{}{}
	}
	// end_turn is resolved by the turn loop, not a handler.
	if len(actionDispatch) != len(allowed)-1 {
		return fmt.Errorf("actionDispatch size mismatch: got=%d want=%d", len(actionDispatch), len(allowed)-1)
	}
	for k := range actionDispatch {
		if _, ok := allowed[k]; !ok {
			return fmt.Errorf("actionDispatch has unsupported key %q", k)
		}
	}
	return nil
}

func (g *Game) applyAction(p *PlayerState, dec protocol.Decision) error {
	h, ok := actionDispatch[dec.Action]
	if !ok {
		return illegalf("unknown action %q", dec.Action)
	}
	return h(g, p, dec)
}

// ownEntity resolves a uid and checks the acting player owns it.
func (g *Game) ownEntity(p *PlayerState, uid int64) (Entity, error) {
	e, ok := g.entities[uid]
	if !ok {
		return nil, illegalf("no entity %d", uid)
	}
	if e.Owner() != p.ID {
		return nil, illegalf("entity %d belongs to player %d", uid, e.Owner())
	}
	return e, nil
}

// handleMove relocates a unit to an empty reachable cell. Reachability is
// obstacle-aware: the path must thread empty cells using the unit's own
// movement shape. BEFORE_MOVE may veto the move; ON_MOVE reacts after it.
func handleMove(g *Game, p *PlayerState, dec protocol.Decision) error {
	e, err := g.ownEntity(p, dec.EntityUID)
	if err != nil {
		return err
	}
	if !e.CanMove() {
		return illegalf("entity %d cannot move", e.UID())
	}
	if !e.State().Movable {
		return illegalf("entity %d already moved this turn", e.UID())
	}
	if dec.TargetPosition == nil {
		return illegalf("move: missing target_position")
	}
	target := board.Cell{X: dec.TargetPosition[0], Y: dec.TargetPosition[1]}

	shape, err := g.moveShape(e)
	if err != nil {
		return err
	}
	if shape.Max < 1 {
		return illegalf("move: entity %d has no range left", e.UID())
	}
	dests, err := g.brd.RangeEmptyCells(e, shape, false)
	if err != nil {
		return illegalf("move: %v", err)
	}
	if !containsCell(dests, target) {
		return illegalf("move: (%d,%d) unreachable for entity %d", target.X, target.Y, e.UID())
	}

	meta := map[string]any{}
	bctx := &trigger.Context{Source: e.UID(), SourcePlayer: p.ID, TargetCell: target, Meta: meta}
	if err := g.bus.DispatchFlow(trigger.BeforeMove, bctx); err != nil {
		return err
	}
	if bctx.Stopped() {
		// vetoed; the budget is untouched
		return nil
	}
	if !g.brd.Move(e, target.X, target.Y) {
		return illegalf("move: cell (%d,%d) no longer free", target.X, target.Y)
	}
	e.State().Movable = false

	octx := &trigger.Context{Source: e.UID(), SourcePlayer: p.ID, TargetCell: target, Meta: meta}
	return g.bus.DispatchFlow(trigger.OnMove, octx)
}

// moveShape runs the blueprint range through CALC_MOVE_RANGE.
func (g *Game) moveShape(e Entity) (board.Shape, error) {
	ctx := &trigger.Context{Source: e.UID(), SourcePlayer: e.Owner(), Value: e.MoveRange(), Meta: map[string]any{}}
	if err := g.bus.DispatchSync(trigger.CalcMoveRange, ctx); err != nil {
		return board.Shape{}, err
	}
	return board.Shape{Kind: e.MoveKind(), Min: 1, Max: ctx.Value}, nil
}

// attackShape runs the blueprint attack band through CALC_ATTACK_RANGE. Only
// the outer radius is adjustable; the inner bound and geometry are fixed by
// the blueprint.
func (g *Game) attackShape(e Entity) (board.Shape, error) {
	shape := e.AttackShape()
	ctx := &trigger.Context{Source: e.UID(), SourcePlayer: e.Owner(), Value: shape.Max, Meta: map[string]any{}}
	if err := g.bus.DispatchSync(trigger.CalcAttackRange, ctx); err != nil {
		return board.Shape{}, err
	}
	shape.Max = ctx.Value
	return shape, nil
}

// handleAttack resolves a declared attack against an enemy occupant of the
// attacker's range. The attack budget is spent even when BEFORE_ATTACK vetoes
// the strike; the move budget goes with it unless a skill kept it alive.
func handleAttack(g *Game, p *PlayerState, dec protocol.Decision) error {
	att, err := g.ownEntity(p, dec.EntityUID)
	if err != nil {
		return err
	}
	if !att.CanAttack() {
		return illegalf("entity %d cannot attack", att.UID())
	}
	if !att.State().Attackable {
		return illegalf("entity %d already attacked this turn", att.UID())
	}
	if dec.TargetPosition == nil {
		return illegalf("attack: missing target_position")
	}
	cell := board.Cell{X: dec.TargetPosition[0], Y: dec.TargetPosition[1]}

	shape, err := g.attackShape(att)
	if err != nil {
		return err
	}
	if shape.Max < shape.Min {
		return illegalf("attack: entity %d has no range left", att.UID())
	}
	cells, err := g.brd.RangeOccupiedCells(att, shape)
	if err != nil {
		return illegalf("attack: %v", err)
	}
	if !containsCell(cells, cell) {
		return illegalf("attack: (%d,%d) out of range for entity %d", cell.X, cell.Y, att.UID())
	}
	target, ok := g.EntityAt(cell.X, cell.Y)
	if !ok {
		return illegalf("attack: nothing at (%d,%d)", cell.X, cell.Y)
	}
	if target.Owner() == p.ID {
		return illegalf("attack: entity %d is friendly", target.UID())
	}
	if dec.TargetEntityUID != 0 && dec.TargetEntityUID != target.UID() {
		return illegalf("attack: declared target %d but cell holds %d", dec.TargetEntityUID, target.UID())
	}

	meta := map[string]any{}
	provisional, err := g.provisionalAttack(att, target, cell, meta)
	if err != nil {
		return err
	}
	if err := g.resolveAttack(att, target, provisional, cell, meta); err != nil {
		return err
	}

	att.State().Attackable = false
	if keep, _ := meta[metaKeepMovable].(bool); !keep {
		att.State().Movable = false
	}
	return nil
}

// handleUseSkill spends one charge of an active skill and runs its effect.
// A cancelled or rejected effect refunds the charge; conflict flags then
// consume the matching budgets on success.
func handleUseSkill(g *Game, p *PlayerState, dec protocol.Decision) error {
	e, err := g.ownEntity(p, dec.EntityUID)
	if err != nil {
		return err
	}
	def, ok := e.Skills()[dec.SkillName]
	if !ok {
		return illegalf("use_skill: entity %d has no skill %q", e.UID(), dec.SkillName)
	}
	if def.Kind != catalogs.SkillActive {
		return illegalf("use_skill: %q is not an active skill", dec.SkillName)
	}
	if e.Vars()[dec.SkillName] <= 0 {
		return illegalf("use_skill: %q has no charges left", dec.SkillName)
	}
	st := e.State()
	if def.AttackConflict && e.CanAttack() && !st.Attackable {
		return illegalf("use_skill: %q conflicts with the spent attack", dec.SkillName)
	}
	if def.MoveConflict && e.CanMove() && !st.Movable {
		return illegalf("use_skill: %q conflicts with the spent move", dec.SkillName)
	}

	fn, ok := activeRegistry[def.Effect]
	if !ok {
		g.log.Printf("use_skill: effect %q not registered, skipping", def.Effect)
		return illegalf("use_skill: effect %q unavailable", def.Effect)
	}
	e.Vars()[dec.SkillName]--
	if err := fn(g, e, dec.SkillName, dec.SkillTarget); err != nil {
		if errors.Is(err, ErrDecisionCancelled) || errors.Is(err, errIllegal) {
			e.Vars()[dec.SkillName]++
		}
		return err
	}
	if def.AttackConflict {
		st.Attackable = false
	}
	if def.MoveConflict {
		st.Movable = false
	}
	return nil
}

// handleCastSpell spends one cast of a mode spell. Refund rules match
// handleUseSkill.
func handleCastSpell(g *Game, p *PlayerState, dec protocol.Decision) error {
	idx := dec.SpellIndex
	if idx < 0 || idx >= len(p.SpellCasts) {
		return illegalf("spell_cast: index %d out of range", idx)
	}
	if p.SpellCasts[idx] <= 0 {
		return illegalf("spell_cast: spell %d has no casts left", idx)
	}
	fn, ok := g.mode.Spell(idx)
	if !ok {
		return illegalf("spell_cast: no effect bound to spell %d", idx)
	}
	p.SpellCasts[idx]--
	if err := fn(g, p, dec.SpellTarget); err != nil {
		if errors.Is(err, ErrDecisionCancelled) || errors.Is(err, errIllegal) {
			p.SpellCasts[idx]++
		}
		return err
	}
	return nil
}

// handleDemolish removes an owned building after confirmation. No combat
// resolution: no death triggers fire and no victory check runs.
func handleDemolish(g *Game, p *PlayerState, dec protocol.Decision) error {
	e, err := g.ownEntity(p, dec.EntityUID)
	if err != nil {
		return err
	}
	if e.Kind() != KindBuilding {
		return illegalf("tear_down: entity %d is not a building", e.UID())
	}
	ok, err := g.AskConfirm(p.ID, fmt.Sprintf("tear down %s at (%d,%d)?", e.Name(), e.Pos().X, e.Pos().Y), true)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	g.removeEntity(e.UID())
	return nil
}

func containsCell(cells []board.Cell, c board.Cell) bool {
	for _, x := range cells {
		if x == c {
			return true
		}
	}
	return false
}
