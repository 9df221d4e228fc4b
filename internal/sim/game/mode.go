package game

import (
	"gridfall.gg/internal/sim/catalogs"
	"gridfall.gg/internal/sim/trigger"
)

// Mode supplies the per-match rule variant: the definition the match was
// built from, victory detection, and the spell roster. Register hooks the
// mode's handlers onto the bus; a victory handler ends the match by
// returning EndGame from a dispatch.
type Mode interface {
	Def() catalogs.ModeDef
	Register(g *Game)
	Spell(index int) (SpellFunc, bool)
}

// standardMode is the stock rule set: lose your base or your last piece and
// the opponent wins.
type standardMode struct {
	def    catalogs.ModeDef
	spells []SpellFunc
}

func newStandardMode(def catalogs.ModeDef) *standardMode {
	m := &standardMode{def: def}
	for _, s := range def.Spells {
		m.spells = append(m.spells, spellRegistry[s.Effect])
	}
	return m
}

func (m *standardMode) Def() catalogs.ModeDef { return m.def }

func (m *standardMode) Spell(index int) (SpellFunc, bool) {
	if index < 0 || index >= len(m.spells) || m.spells[index] == nil {
		return nil, false
	}
	return m.spells[index], true
}

// Register subscribes the victory check behind every skill on ON_DEATH, so
// a revive that lands first keeps the match going.
func (m *standardMode) Register(g *Game) {
	g.bus.SubscribeFlow(trigger.OnDeath, func(ctx *trigger.Context) error {
		dying, ok := g.Entity(ctx.Source)
		if !ok || dying.HP() > 0 {
			return nil
		}
		owner := dying.Owner()
		if owner == 0 {
			return nil
		}
		if dying.Kind() == KindBuilding && dying.Name() == m.def.Base {
			return EndGame(g.lastRivalOf(owner), "base destroyed")
		}
		if !g.hasRemainingForces(owner, dying.UID()) {
			return EndGame(g.lastRivalOf(owner), "forces annihilated")
		}
		return nil
	}, victoryCheckPriority)
}

// hasRemainingForces reports whether a player still owns anything besides
// the entity that is about to be removed.
func (g *Game) hasRemainingForces(player int, dyingUID int64) bool {
	for uid, e := range g.entities {
		if uid == dyingUID {
			continue
		}
		if e.Owner() == player {
			return true
		}
	}
	return false
}

// lastRivalOf names the winner when a player is eliminated. With two seats
// that is simply the other one.
func (g *Game) lastRivalOf(loser int) int {
	for _, id := range g.order {
		if id != loser {
			return id
		}
	}
	return 0
}

// Runs after skills (priority 0) so revives get their say first.
const victoryCheckPriority = -100
