package game

import "sort"

// SnapshotV1 is the full observable match state, pushed to clients after
// every accepted decision and written alongside replays. It is a view, not
// a save format: matches are reconstructed by replaying decisions.
type SnapshotV1 struct {
	Version       int              `json:"version"`
	Mode          string           `json:"mode"`
	Map           string           `json:"map"`
	Turn          int              `json:"turn"`
	CurrentPlayer int              `json:"current_player"`
	Width         int              `json:"width"`
	Height        int              `json:"height"`
	Players       []PlayerSnapshot `json:"players"`
	Entities      []EntitySnapshot `json:"entities"`
	Digest        string           `json:"digest"`
}

type PlayerSnapshot struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Gold       int    `json:"gold"`
	Wood       int    `json:"wood"`
	SpellCasts []int  `json:"spell_casts"`
}

type EntitySnapshot struct {
	UID        int64          `json:"uid"`
	Kind       Kind           `json:"kind"`
	Name       string         `json:"name"`
	Owner      int            `json:"owner"`
	X          int            `json:"x"`
	Y          int            `json:"y"`
	HP         int            `json:"hp"`
	MaxHP      int            `json:"max_hp"`
	Movable    bool           `json:"movable"`
	Attackable bool           `json:"attackable"`
	Promoted   bool           `json:"promoted,omitempty"`
	Vertical   bool           `json:"vertical,omitempty"`
	Vars       map[string]int `json:"vars,omitempty"`
	Buffs      []string       `json:"buffs,omitempty"`
}

// ExportSnapshot must run on the engine goroutine, or while the engine is
// parked on a pending request.
func (g *Game) ExportSnapshot() SnapshotV1 {
	mapDef := g.cats.Maps.ByName[g.mode.Def().Map]
	snap := SnapshotV1{
		Version:       1,
		Mode:          g.cfg.Mode,
		Map:           mapDef.Name,
		Turn:          g.turn,
		CurrentPlayer: g.CurrentPlayer(),
		Width:         g.brd.Width(),
		Height:        g.brd.Height(),
		Digest:        g.StateDigest(),
	}
	for _, id := range g.order {
		p := g.players[id]
		casts := make([]int, len(p.SpellCasts))
		copy(casts, p.SpellCasts)
		snap.Players = append(snap.Players, PlayerSnapshot{
			ID:         p.ID,
			Name:       p.Name,
			Gold:       p.Gold,
			Wood:       p.Wood,
			SpellCasts: casts,
		})
	}
	for _, e := range g.entitiesSorted() {
		es := EntitySnapshot{
			UID:        e.UID(),
			Kind:       e.Kind(),
			Name:       e.Name(),
			Owner:      e.Owner(),
			X:          e.Pos().X,
			Y:          e.Pos().Y,
			HP:         e.HP(),
			MaxHP:      e.MaxHP(),
			Movable:    e.State().Movable,
			Attackable: e.State().Attackable,
		}
		switch v := e.(type) {
		case *Unit:
			es.Promoted = v.promoted
		case *Building:
			es.Vertical = v.vertical
		}
		if len(e.Vars()) > 0 {
			vars := make(map[string]int, len(e.Vars()))
			for k, v := range e.Vars() {
				vars[k] = v
			}
			es.Vars = vars
		}
		for name := range e.Buffs() {
			es.Buffs = append(es.Buffs, name)
		}
		sort.Strings(es.Buffs)
		snap.Entities = append(snap.Entities, es)
	}
	return snap
}
