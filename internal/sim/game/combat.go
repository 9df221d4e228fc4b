package game

import (
	"gridfall.gg/internal/sim/board"
	"gridfall.gg/internal/sim/trigger"
)

// provisionalAttack runs the attacker's base power through CALC_ATTACK.
// The result seeds CALC_DAMAGE inside resolveAttack.
func (g *Game) provisionalAttack(att, target Entity, cell board.Cell, meta map[string]any) (int, error) {
	ctx := &trigger.Context{
		Source:       att.UID(),
		SourcePlayer: att.Owner(),
		Target:       target.UID(),
		TargetCell:   cell,
		Value:        att.AttackPower(),
		Meta:         meta,
	}
	if err := g.bus.DispatchSync(trigger.CalcAttack, ctx); err != nil {
		return 0, err
	}
	return ctx.Value, nil
}

// resolveAttack is the one combat pipeline. BEFORE_ATTACK may veto the
// strike; CALC_DAMAGE turns the provisional attack into final damage; hit
// points drop; ON_ATTACK reacts (reflect and splash effects live there);
// then the death check runs. The meta bag is shared across all phases so an
// early phase can leave notes for a later one.
func (g *Game) resolveAttack(att, target Entity, provisional int, cell board.Cell, meta map[string]any) error {
	if meta == nil {
		meta = map[string]any{}
	}

	bctx := &trigger.Context{
		Source:       att.UID(),
		SourcePlayer: att.Owner(),
		Target:       target.UID(),
		TargetCell:   cell,
		Value:        provisional,
		Meta:         meta,
	}
	if err := g.bus.DispatchFlow(trigger.BeforeAttack, bctx); err != nil {
		return err
	}
	if bctx.Stopped() {
		return nil
	}

	dctx := &trigger.Context{
		Source:       att.UID(),
		SourcePlayer: att.Owner(),
		Target:       target.UID(),
		TargetCell:   cell,
		Value:        provisional,
		Meta:         meta,
	}
	if err := g.bus.DispatchSync(trigger.CalcDamage, dctx); err != nil {
		return err
	}
	damage := dctx.Value

	target.SetHP(target.HP() - damage)

	actx := &trigger.Context{
		Source:       att.UID(),
		SourcePlayer: att.Owner(),
		Target:       target.UID(),
		TargetCell:   cell,
		Value:        damage,
		Meta:         meta,
	}
	if err := g.bus.DispatchFlow(trigger.OnAttack, actx); err != nil {
		return err
	}

	return g.checkDeath(target, att.UID())
}

// DealTrueDamage subtracts hit points with no CALC_DAMAGE and no ON_ATTACK,
// so mitigation and reaction skills cannot intercept it. Death handling
// still applies.
func (g *Game) DealTrueDamage(source int64, target Entity, amount int) error {
	target.SetHP(target.HP() - amount)
	return g.checkDeath(target, source)
}

// checkDeath runs the death pair when hit points are gone: ON_DEATH from the
// dying entity's point of view, then ON_KILL from the killer's, always both.
// A death handler may restore hit points; the entity is removed only if it
// is still at zero after the pair.
func (g *Game) checkDeath(target Entity, killer int64) error {
	if target.HP() > 0 {
		return nil
	}

	dctx := &trigger.Context{
		Source:       target.UID(),
		SourcePlayer: target.Owner(),
		Target:       killer,
		Meta:         map[string]any{},
	}
	if err := g.bus.DispatchFlow(trigger.OnDeath, dctx); err != nil {
		return err
	}

	kctx := &trigger.Context{
		Source:     killer,
		Target:     target.UID(),
		TargetCell: target.Pos(),
		Meta:       map[string]any{},
	}
	if k, ok := g.entities[killer]; ok {
		kctx.SourcePlayer = k.Owner()
	}
	if err := g.bus.DispatchFlow(trigger.OnKill, kctx); err != nil {
		return err
	}

	if target.HP() > 0 {
		return nil
	}
	g.removeEntity(target.UID())
	return nil
}

// Heal restores hit points through CALC_HEAL, clamps to max, then fires
// ON_HEAL with the amount actually applied.
func (g *Game) Heal(source int64, target Entity, amount int) error {
	ctx := &trigger.Context{
		Source:       source,
		Target:       target.UID(),
		TargetCell:   target.Pos(),
		Value:        amount,
		Meta:         map[string]any{},
	}
	if e, ok := g.entities[source]; ok {
		ctx.SourcePlayer = e.Owner()
	}
	if err := g.bus.DispatchSync(trigger.CalcHeal, ctx); err != nil {
		return err
	}
	healed := ctx.Value
	if healed < 0 {
		healed = 0
	}
	hp := target.HP() + healed
	if hp > target.MaxHP() {
		hp = target.MaxHP()
	}
	applied := hp - target.HP()
	target.SetHP(hp)

	hctx := &trigger.Context{
		Source:       source,
		SourcePlayer: ctx.SourcePlayer,
		Target:       target.UID(),
		TargetCell:   target.Pos(),
		Value:        applied,
		Meta:         map[string]any{},
	}
	return g.bus.DispatchFlow(trigger.OnHeal, hctx)
}

// Promote flips a unit to its promoted tier and fires ON_PROMOTE. Buildings
// and already-promoted units are left alone.
func (g *Game) Promote(uid int64) error {
	u, ok := g.entities[uid].(*Unit)
	if !ok {
		return nil
	}
	if !u.promote() {
		return nil
	}
	ctx := &trigger.Context{
		Source:       uid,
		SourcePlayer: u.Owner(),
		TargetCell:   u.Pos(),
		Meta:         map[string]any{},
	}
	return g.bus.DispatchFlow(trigger.OnPromote, ctx)
}

// removeEntity clears an entity from the board and the table. Death
// dispatches, if any, have already run.
func (g *Game) removeEntity(uid int64) {
	e, ok := g.entities[uid]
	if !ok {
		return
	}
	g.brd.Remove(e)
	delete(g.entities, uid)
}
