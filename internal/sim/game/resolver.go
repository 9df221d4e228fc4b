package game

import (
	"sort"

	"gridfall.gg/internal/sim/catalogs"
	"gridfall.gg/internal/sim/trigger"
)

// registerResolver subscribes the skill resolver to every trigger at the
// default priority. One subscription per trigger keeps skills ordered
// against the engine's own handlers by the bus rules; inside one resolution
// the skills order themselves by declared priority, owner uid, then name.
func (g *Game) registerResolver() {
	for _, t := range trigger.All() {
		t := t
		if t.IsValue() {
			g.bus.Subscribe(t, func(ctx *trigger.Context) error {
				return g.resolveSkills(t, ctx)
			}, 0)
		} else {
			g.bus.SubscribeFlow(t, func(ctx *trigger.Context) error {
				return g.resolveSkills(t, ctx)
			}, 0)
		}
	}
}

type boundSkill struct {
	owner Entity
	name  string
	def   catalogs.SkillDef
}

func (g *Game) resolveSkills(t trigger.Trigger, ctx *trigger.Context) error {
	for _, m := range g.matchingSkills(t, ctx) {
		if ctx.Stopped() {
			return nil
		}
		if _, live := g.entities[m.owner.UID()]; !live {
			// removed by an earlier skill in this same resolution
			continue
		}
		fn, ok := effectRegistry[m.def.Effect]
		if !ok {
			g.log.Printf("skill %s/%s: effect %q not registered, skipping", m.owner.Name(), m.name, m.def.Effect)
			continue
		}
		if err := fn(g, ctx, m.owner.UID()); err != nil {
			return err
		}
	}
	return nil
}

// matchingSkills collects the passives and buffs that respond to a trigger:
// GLOBAL listeners from every live entity, SOURCE listeners from the causal
// source, TARGET listeners from the causal target. The (priority desc, owner
// uid asc, name asc) sort is total, so map iteration order never shows.
func (g *Game) matchingSkills(t trigger.Trigger, ctx *trigger.Context) []boundSkill {
	var out []boundSkill
	add := func(e Entity, role string) {
		for name, def := range e.Skills() {
			if skillMatches(def, t, role) {
				out = append(out, boundSkill{owner: e, name: name, def: def})
			}
		}
		for name, def := range e.Buffs() {
			if skillMatches(def, t, role) {
				out = append(out, boundSkill{owner: e, name: name, def: def})
			}
		}
	}
	for _, e := range g.entitiesSorted() {
		add(e, catalogs.RoleGlobal)
	}
	if src, ok := g.entities[ctx.Source]; ok {
		add(src, catalogs.RoleSource)
	}
	if tgt, ok := g.entities[ctx.Target]; ok {
		add(tgt, catalogs.RoleTarget)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.def.Priority != b.def.Priority {
			return a.def.Priority > b.def.Priority
		}
		if a.owner.UID() != b.owner.UID() {
			return a.owner.UID() < b.owner.UID()
		}
		return a.name < b.name
	})
	return out
}

func skillMatches(def catalogs.SkillDef, t trigger.Trigger, role string) bool {
	if def.Kind != catalogs.SkillPassive && def.Kind != catalogs.SkillBuff {
		return false
	}
	return def.Trigger == string(t) && def.Role == role
}
