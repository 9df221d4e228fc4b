package game

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"
)

// StateDigest hashes every piece of state that decisions can depend on:
// the turn header, player resources, each entity's full record, and the
// board occupancy grid. Two matches fed identical decisions must produce
// identical digests at every step.
func (g *Game) StateDigest() string {
	h := sha256.New()
	var tmp [8]byte

	g.digestHeader(h, &tmp)
	g.digestPlayers(h, &tmp)
	g.digestEntities(h, &tmp)
	g.digestBoard(h, &tmp)

	return hex.EncodeToString(h.Sum(nil))
}

type hashWriter interface {
	Write(p []byte) (n int, err error)
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hashWriter, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}

func digestWriteString(h hashWriter, tmp *[8]byte, s string) {
	digestWriteU64(h, tmp, uint64(len(s)))
	h.Write([]byte(s))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func (g *Game) digestHeader(h hashWriter, tmp *[8]byte) {
	digestWriteString(h, tmp, g.cfg.Mode)
	digestWriteU64(h, tmp, uint64(g.turn))
	digestWriteU64(h, tmp, uint64(g.cur))
	digestWriteI64(h, tmp, g.nextUID)
	digestWriteI64(h, tmp, g.reqSeq)
}

func (g *Game) digestPlayers(h hashWriter, tmp *[8]byte) {
	for _, id := range g.order {
		p := g.players[id]
		digestWriteI64(h, tmp, int64(p.ID))
		digestWriteString(h, tmp, p.Name)
		digestWriteI64(h, tmp, int64(p.Gold))
		digestWriteI64(h, tmp, int64(p.Wood))
		digestWriteU64(h, tmp, uint64(len(p.SpellCasts)))
		for _, c := range p.SpellCasts {
			digestWriteI64(h, tmp, int64(c))
		}
	}
}

func (g *Game) digestEntities(h hashWriter, tmp *[8]byte) {
	ents := g.entitiesSorted()
	digestWriteU64(h, tmp, uint64(len(ents)))
	for _, e := range ents {
		digestWriteI64(h, tmp, e.UID())
		digestWriteString(h, tmp, string(e.Kind()))
		digestWriteString(h, tmp, e.Name())
		digestWriteI64(h, tmp, int64(e.Owner()))
		pos := e.Pos()
		digestWriteI64(h, tmp, int64(pos.X))
		digestWriteI64(h, tmp, int64(pos.Y))
		digestWriteI64(h, tmp, int64(e.HP()))
		st := e.State()
		h.Write([]byte{boolByte(st.Movable), boolByte(st.Attackable)})
		switch v := e.(type) {
		case *Unit:
			h.Write([]byte{boolByte(v.promoted)})
		case *Building:
			h.Write([]byte{boolByte(v.vertical)})
		}
		writeSortedIntMap(h, tmp, e.Vars())
		writeSortedSkillNames(h, tmp, e.Buffs())
	}
}

func (g *Game) digestBoard(h hashWriter, tmp *[8]byte) {
	for _, uid := range g.brd.Snapshot() {
		digestWriteI64(h, tmp, uid)
	}
}

func writeSortedIntMap(h hashWriter, tmp *[8]byte, m map[string]int) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	digestWriteU64(h, tmp, uint64(len(keys)))
	for _, k := range keys {
		digestWriteString(h, tmp, k)
		digestWriteI64(h, tmp, int64(m[k]))
	}
}

func writeSortedSkillNames[T any](h hashWriter, tmp *[8]byte, m map[string]T) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	digestWriteU64(h, tmp, uint64(len(keys)))
	for _, k := range keys {
		digestWriteString(h, tmp, k)
	}
}
