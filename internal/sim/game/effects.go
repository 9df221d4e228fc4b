package game

import (
	"encoding/json"
	"fmt"

	"gridfall.gg/internal/sim/catalogs"
	"gridfall.gg/internal/sim/trigger"
)

// EffectFunc is a passive/buff implementation. The resolver invokes it with
// the dispatch context and the uid of the entity carrying the skill.
type EffectFunc func(g *Game, ctx *trigger.Context, owner int64) error

// ActiveFunc is an active-skill implementation, invoked by the use-skill
// handler after the charge is spent. Returning ErrDecisionCancelled or an
// illegal-action error refunds the charge.
type ActiveFunc func(g *Game, actor Entity, skill string, target json.RawMessage) error

// SpellFunc is a player-level ability from a mode's spell roster. Refund
// rules match ActiveFunc.
type SpellFunc func(g *Game, p *PlayerState, target json.RawMessage) error

var effectRegistry = map[string]EffectFunc{
	"brittle":      effectBrittle,
	"bayonet":      effectBayonet,
	"mine_income":  effectMineIncome,
	"camp_income":  effectCampIncome,
	"thorns":       effectThorns,
	"last_stand":   effectLastStand,
	"veteran":      effectVeteran,
	"hit_and_run":  effectHitAndRun,
	"heavy_weapon": effectHeavyWeapon,
}

var activeRegistry = map[string]ActiveFunc{
	"charm":          activeCharm,
	"missile_strike": activeMissileStrike,
	"field_medic":    activeFieldMedic,
	"salvage":        activeSalvage,
}

var spellRegistry = map[string]SpellFunc{
	"recruit": spellRecruit,
	"snipe":   spellSnipe,
	"barrage": spellBarrage,
}

// validateCatalogEffects resolves every effect id the catalogs name against
// the registries, so a typo in blueprint data fails match construction
// instead of surfacing mid-game. Buffs attached at runtime still degrade to
// warn-and-skip in the resolver.
func validateCatalogEffects(cats *catalogs.Catalogs) error {
	check := func(owner, name string, def catalogs.SkillDef) error {
		if def.Kind == catalogs.SkillActive {
			if _, ok := activeRegistry[def.Effect]; !ok {
				return fmt.Errorf("game: %s: skill %q: unregistered active effect %q", owner, name, def.Effect)
			}
			return nil
		}
		if _, ok := effectRegistry[def.Effect]; !ok {
			return fmt.Errorf("game: %s: skill %q: unregistered effect %q", owner, name, def.Effect)
		}
		return nil
	}
	for _, u := range cats.Units.ByName {
		for name, def := range u.Skills {
			if err := check("unit "+u.Name, name, def); err != nil {
				return err
			}
		}
	}
	for _, b := range cats.Buildings.ByName {
		for name, def := range b.Skills {
			if err := check("building "+b.Name, name, def); err != nil {
				return err
			}
		}
	}
	for _, m := range cats.Modes.ByName {
		for i, sp := range m.Spells {
			if _, ok := spellRegistry[sp.Effect]; !ok {
				return fmt.Errorf("game: mode %q: spell %d: unregistered spell effect %q", m.Name, i, sp.Effect)
			}
		}
	}
	return nil
}
