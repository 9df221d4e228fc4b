// Package trigger is the dispatch backbone of the rules engine: a closed set
// of lifecycle points, a per-dispatch context, and a bus that runs handlers
// in a fixed priority order. Combat math and skill effects both go through
// it, so the ordering contract here is what makes replays deterministic.
package trigger

// Trigger names a lifecycle point. Value triggers compute a number and must
// never suspend; flow triggers may suspend awaiting a player decision.
type Trigger string

const (
	CalcAttack      Trigger = "CALC_ATTACK"
	CalcAttackRange Trigger = "CALC_ATTACK_RANGE"
	CalcMoveRange   Trigger = "CALC_MOVE_RANGE"
	CalcDamage      Trigger = "CALC_DAMAGE"
	CalcCost        Trigger = "CALC_COST"
	CalcHeal        Trigger = "CALC_HEAL"
)

const (
	OnGameStart    Trigger = "ON_GAME_START"
	OnTurnStart    Trigger = "ON_TURN_START"
	OnTurnEnd      Trigger = "ON_TURN_END"
	OnInputRequest Trigger = "ON_INPUT_REQUEST"
	OnSpawn        Trigger = "ON_SPAWN"
	BeforeMove     Trigger = "BEFORE_MOVE"
	OnMove         Trigger = "ON_MOVE"
	BeforeAttack   Trigger = "BEFORE_ATTACK"
	OnAttack       Trigger = "ON_ATTACK"
	OnKill         Trigger = "ON_KILL"
	OnDeath        Trigger = "ON_DEATH"
	OnHeal         Trigger = "ON_HEAL"
	OnPromote      Trigger = "ON_PROMOTE"
)

var valueTriggers = map[Trigger]struct{}{
	CalcAttack:      {},
	CalcAttackRange: {},
	CalcMoveRange:   {},
	CalcDamage:      {},
	CalcCost:        {},
	CalcHeal:        {},
}

var flowTriggers = map[Trigger]struct{}{
	OnGameStart:    {},
	OnTurnStart:    {},
	OnTurnEnd:      {},
	OnInputRequest: {},
	OnSpawn:        {},
	BeforeMove:     {},
	OnMove:         {},
	BeforeAttack:   {},
	OnAttack:       {},
	OnKill:         {},
	OnDeath:        {},
	OnHeal:         {},
	OnPromote:      {},
}

// IsValue reports whether t belongs to the synchronous value-calculation
// family.
func (t Trigger) IsValue() bool {
	_, ok := valueTriggers[t]
	return ok
}

// Known reports whether t is part of the closed trigger set. Blueprint
// loading rejects unknown trigger names against this.
func Known(t Trigger) bool {
	if _, ok := valueTriggers[t]; ok {
		return true
	}
	_, ok := flowTriggers[t]
	return ok
}

// All enumerates the closed trigger set in a stable order, value triggers
// first. Registry validation iterates this.
func All() []Trigger {
	return []Trigger{
		CalcAttack, CalcAttackRange, CalcMoveRange, CalcDamage, CalcCost, CalcHeal,
		OnGameStart, OnTurnStart, OnTurnEnd, OnInputRequest, OnSpawn,
		BeforeMove, OnMove, BeforeAttack, OnAttack, OnKill, OnDeath,
		OnHeal, OnPromote,
	}
}
