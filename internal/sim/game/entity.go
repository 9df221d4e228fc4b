package game

import (
	"gridfall.gg/internal/sim/board"
	"gridfall.gg/internal/sim/catalogs"
)

type Kind string

const (
	KindUnit     Kind = "unit"
	KindBuilding Kind = "building"
)

// ActionState is the per-turn action budget. Both flags reset at the start
// of the owner's turn; actions and skills clear them as they are spent.
type ActionState struct {
	Movable    bool
	Attackable bool
}

// Entity is the capability surface shared by units and buildings. The game
// owns every instance in its entity table; everything else refers by uid.
type Entity interface {
	board.Piece

	Kind() Kind
	Name() string
	Owner() int

	HP() int
	SetHP(int)
	MaxHP() int

	// CanAttack reports whether the blueprint grants an attack at all; the
	// per-turn budget lives in State.
	CanAttack() bool
	AttackPower() int
	AttackShape() board.Shape

	CanMove() bool
	MoveRange() int
	MoveKind() board.ShapeKind

	State() *ActionState
	Skills() map[string]catalogs.SkillDef
	Buffs() map[string]catalogs.SkillDef
	AddBuff(name string, def catalogs.SkillDef)
	RemoveBuff(name string)
	Vars() map[string]int
}

type Unit struct {
	uid      int64
	def      catalogs.UnitDef
	owner    int
	promoted bool
	pos      board.Cell
	hp       int
	state    ActionState
	buffs    map[string]catalogs.SkillDef
	vars     map[string]int
}

func newUnit(def catalogs.UnitDef, uid int64, owner int, promoted bool) *Unit {
	u := &Unit{
		uid:      uid,
		def:      def,
		owner:    owner,
		promoted: promoted,
		buffs:    map[string]catalogs.SkillDef{},
		vars:     map[string]int{},
	}
	for k, v := range def.Variables {
		u.vars[k] = v
	}
	seedCharges(u.vars, def.Skills)
	u.hp = u.tier().MaxHP
	return u
}

// tier resolves the stat block for the unit's current rank. A unit without a
// promoted block keeps its normal stats after promotion.
func (u *Unit) tier() catalogs.TierStats {
	if u.promoted && u.def.Promoted != nil {
		return *u.def.Promoted
	}
	return u.def.Normal
}

// promote flips the unit to its promoted tier. Hit points shift by the
// max-hp delta, clamped to [1, new max]. Reports whether anything changed.
func (u *Unit) promote() bool {
	if u.promoted || u.def.Promoted == nil {
		return false
	}
	oldMax := u.tier().MaxHP
	u.promoted = true
	u.hp += u.tier().MaxHP - oldMax
	if u.hp < 1 {
		u.hp = 1
	}
	if u.hp > u.tier().MaxHP {
		u.hp = u.tier().MaxHP
	}
	return true
}

func (u *Unit) UID() int64           { return u.uid }
func (u *Unit) Pos() board.Cell      { return u.pos }
func (u *Unit) SetPos(c board.Cell)  { u.pos = c }
func (u *Unit) Footprint() (int, int) { return 1, 1 }

func (u *Unit) Kind() Kind   { return KindUnit }
func (u *Unit) Name() string { return u.def.Name }
func (u *Unit) Owner() int   { return u.owner }
func (u *Unit) Promoted() bool { return u.promoted }

func (u *Unit) HP() int       { return u.hp }
func (u *Unit) SetHP(hp int)  { u.hp = hp }
func (u *Unit) MaxHP() int    { return u.tier().MaxHP }

func (u *Unit) CanAttack() bool           { return u.tier().Attack > 0 }
func (u *Unit) AttackPower() int          { return u.tier().Attack }
func (u *Unit) AttackShape() board.Shape  { return u.tier().AttackShape }

func (u *Unit) CanMove() bool             { return u.tier().MoveRange > 0 }
func (u *Unit) MoveRange() int            { return u.tier().MoveRange }
func (u *Unit) MoveKind() board.ShapeKind { return u.def.MoveKind }

func (u *Unit) State() *ActionState                  { return &u.state }
func (u *Unit) Skills() map[string]catalogs.SkillDef { return u.def.Skills }
func (u *Unit) Buffs() map[string]catalogs.SkillDef  { return u.buffs }
func (u *Unit) Vars() map[string]int                 { return u.vars }

func (u *Unit) AddBuff(name string, def catalogs.SkillDef) { u.buffs[name] = def }
func (u *Unit) RemoveBuff(name string)                     { delete(u.buffs, name) }

type Building struct {
	uid      int64
	def      catalogs.BuildingDef
	owner    int
	vertical bool
	pos      board.Cell
	hp       int
	state    ActionState
	buffs    map[string]catalogs.SkillDef
	vars     map[string]int
}

func newBuilding(def catalogs.BuildingDef, uid int64, owner int, vertical bool) *Building {
	b := &Building{
		uid:      uid,
		def:      def,
		owner:    owner,
		vertical: vertical,
		buffs:    map[string]catalogs.SkillDef{},
		vars:     map[string]int{},
	}
	for k, v := range def.Variables {
		b.vars[k] = v
	}
	seedCharges(b.vars, def.Skills)
	b.hp = def.MaxHP
	return b
}

func (b *Building) UID() int64          { return b.uid }
func (b *Building) Pos() board.Cell     { return b.pos }
func (b *Building) SetPos(c board.Cell) { b.pos = c }

// Footprint applies the placement orientation: a vertical building swaps its
// blueprint width and height.
func (b *Building) Footprint() (int, int) {
	if b.vertical {
		return b.def.Height, b.def.Width
	}
	return b.def.Width, b.def.Height
}

func (b *Building) Kind() Kind     { return KindBuilding }
func (b *Building) Name() string   { return b.def.Name }
func (b *Building) Owner() int     { return b.owner }
func (b *Building) Vertical() bool { return b.vertical }

func (b *Building) HP() int      { return b.hp }
func (b *Building) SetHP(hp int) { b.hp = hp }
func (b *Building) MaxHP() int   { return b.def.MaxHP }

func (b *Building) CanAttack() bool  { return b.def.AttackShape != nil && b.def.Attack > 0 }
func (b *Building) AttackPower() int { return b.def.Attack }

func (b *Building) AttackShape() board.Shape {
	if b.def.AttackShape == nil {
		return board.Shape{}
	}
	return *b.def.AttackShape
}

func (b *Building) CanMove() bool             { return false }
func (b *Building) MoveRange() int            { return 0 }
func (b *Building) MoveKind() board.ShapeKind { return board.Chebyshev }

func (b *Building) State() *ActionState                  { return &b.state }
func (b *Building) Skills() map[string]catalogs.SkillDef { return b.def.Skills }
func (b *Building) Buffs() map[string]catalogs.SkillDef  { return b.buffs }
func (b *Building) Vars() map[string]int                 { return b.vars }

func (b *Building) AddBuff(name string, def catalogs.SkillDef) { b.buffs[name] = def }
func (b *Building) RemoveBuff(name string)                     { delete(b.buffs, name) }

// seedCharges gives every active skill its charge counter so the first turn
// works like any other.
func seedCharges(vars map[string]int, skills map[string]catalogs.SkillDef) {
	for name, s := range skills {
		if s.Kind != catalogs.SkillActive {
			continue
		}
		if _, ok := vars[name]; !ok {
			vars[name] = chargesPerTurn(s)
		}
	}
}

func chargesPerTurn(s catalogs.SkillDef) int {
	if s.ChargesPerTurn > 0 {
		return s.ChargesPerTurn
	}
	return 1
}
