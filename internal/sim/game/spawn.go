package game

import (
	"fmt"

	"gridfall.gg/internal/sim/trigger"
)

func (g *Game) allocUID() int64 {
	uid := g.nextUID
	g.nextUID++
	return uid
}

// SpawnUnit builds a unit from its blueprint, places it, registers it, and
// fires ON_SPAWN. A failed placement leaves no residue.
func (g *Game) SpawnUnit(name string, owner, x, y int, promoted bool) (*Unit, error) {
	def, ok := g.cats.Units.ByName[name]
	if !ok {
		return nil, fmt.Errorf("spawn: unknown unit %q", name)
	}
	u := newUnit(def, g.allocUID(), owner, promoted)
	if !g.brd.Place(u, x, y) {
		g.nextUID--
		return nil, fmt.Errorf("spawn: cannot place unit %q at (%d,%d)", name, x, y)
	}
	g.entities[u.UID()] = u
	if err := g.fireSpawn(u); err != nil {
		return nil, err
	}
	return u, nil
}

// SpawnBuilding is SpawnUnit for buildings. Vertical placements occupy the
// blueprint footprint transposed.
func (g *Game) SpawnBuilding(name string, owner, x, y int, vertical bool) (*Building, error) {
	def, ok := g.cats.Buildings.ByName[name]
	if !ok {
		return nil, fmt.Errorf("spawn: unknown building %q", name)
	}
	b := newBuilding(def, g.allocUID(), owner, vertical)
	if !g.brd.Place(b, x, y) {
		g.nextUID--
		return nil, fmt.Errorf("spawn: cannot place building %q at (%d,%d)", name, x, y)
	}
	g.entities[b.UID()] = b
	if err := g.fireSpawn(b); err != nil {
		return nil, err
	}
	return b, nil
}

func (g *Game) fireSpawn(e Entity) error {
	ctx := &trigger.Context{
		Source:       e.UID(),
		SourcePlayer: e.Owner(),
		TargetCell:   e.Pos(),
		Meta:         map[string]any{},
	}
	return g.bus.DispatchFlow(trigger.OnSpawn, ctx)
}
