// Package catalogs loads the immutable blueprint data a match is built from:
// unit and building definitions, map layouts, and game modes. Each file gets
// a sha256 digest so clients and the match index can verify they are playing
// against the same data.
package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gridfall.gg/internal/sim/board"
	"gridfall.gg/internal/sim/trigger"
)

type Catalogs struct {
	Units     UnitCatalog
	Buildings BuildingCatalog
	Maps      MapCatalog
	Modes     ModeCatalog
}

type UnitCatalog struct {
	ByName map[string]UnitDef
	Digest string
}

type BuildingCatalog struct {
	ByName map[string]BuildingDef
	Digest string
}

type MapCatalog struct {
	ByName map[string]MapDef
	Digest string
}

type ModeCatalog struct {
	ByName map[string]ModeDef
	Digest string
}

// UnitDef is a mobile entity blueprint. Stats are tiered: the promoted block
// is optional and falls back to the normal tier when absent.
type UnitDef struct {
	Name      string              `json:"name"`
	Normal    TierStats           `json:"normal"`
	Promoted  *TierStats          `json:"promoted,omitempty"`
	MoveKind  board.ShapeKind     `json:"move_kind,omitempty"` // default "*"
	Skills    map[string]SkillDef `json:"skills,omitempty"`
	Variables map[string]int      `json:"variables,omitempty"`
}

type TierStats struct {
	MaxHP       int         `json:"max_hp"`
	Attack      int         `json:"attack"`
	AttackShape board.Shape `json:"attack_shape"`
	MoveRange   int         `json:"move_range"`
	Cost        Cost        `json:"cost"`
}

// BuildingDef is an immobile entity blueprint. A building can attack only
// when it declares an attack shape.
type BuildingDef struct {
	Name        string              `json:"name"`
	MaxHP       int                 `json:"max_hp"`
	Width       int                 `json:"width"`
	Height      int                 `json:"height"`
	Attack      int                 `json:"attack,omitempty"`
	AttackShape *board.Shape        `json:"attack_shape,omitempty"`
	Cost        Cost                `json:"cost"`
	Skills      map[string]SkillDef `json:"skills,omitempty"`
	Variables   map[string]int      `json:"variables,omitempty"`
}

type Cost struct {
	Gold int `json:"gold,omitempty"`
	Wood int `json:"wood,omitempty"`
}

// SkillDef covers actives, passives, and buffs with one schema. Passives and
// buffs bind a trigger, causal role, and effect id; actives name the effect
// the action handler invokes directly plus conflict flags against the
// per-turn move/attack budget.
type SkillDef struct {
	Kind           string `json:"kind"` // "active", "passive", "buff"
	Trigger        string `json:"trigger,omitempty"`
	Role           string `json:"role,omitempty"` // "SOURCE", "TARGET", "GLOBAL"
	Effect         string `json:"effect"`
	Priority       int    `json:"priority,omitempty"`
	AttackConflict bool   `json:"attack_conflict,omitempty"`
	MoveConflict   bool   `json:"move_conflict,omitempty"`
	ChargesPerTurn int    `json:"charges_per_turn,omitempty"` // actives; 0 means 1
}

const (
	SkillActive  = "active"
	SkillPassive = "passive"
	SkillBuff    = "buff"

	RoleSource = "SOURCE"
	RoleTarget = "TARGET"
	RoleGlobal = "GLOBAL"
)

type MapDef struct {
	Name   string     `json:"name"`
	Width  int        `json:"width"`
	Height int        `json:"height"`
	Spawns []SpawnDef `json:"spawns"`
}

// SpawnDef is one initial entity. Uids are allocated in file order at match
// setup, so the layout alone determines them.
type SpawnDef struct {
	Kind     string `json:"kind"` // "unit" or "building"
	Name     string `json:"name"`
	Owner    int    `json:"owner"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Promoted bool   `json:"promoted,omitempty"`
	Vertical bool   `json:"vertical,omitempty"`
}

type ModeDef struct {
	Name      string      `json:"name"`
	Players   int         `json:"players"`
	Map       string      `json:"map"`
	Base      string      `json:"base"` // building name whose loss ends the match
	StartGold int         `json:"start_gold"`
	StartWood int         `json:"start_wood"`
	Spells    []SpellSlot `json:"spells"`
	Roster    []string    `json:"roster,omitempty"` // recruitable unit names
}

type SpellSlot struct {
	Effect string `json:"effect"`
	Casts  int    `json:"casts"`
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	if err := loadUnits(filepath.Join(configDir, "units.json"), &c.Units); err != nil {
		return nil, err
	}
	if err := loadBuildings(filepath.Join(configDir, "buildings.json"), &c.Buildings); err != nil {
		return nil, err
	}
	if err := loadMaps(filepath.Join(configDir, "maps.json"), &c.Maps); err != nil {
		return nil, err
	}
	if err := loadModes(filepath.Join(configDir, "modes.json"), &c.Modes); err != nil {
		return nil, err
	}

	if err := c.crossValidate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadUnits(path string, out *UnitCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []UnitDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("units.json: %w", err)
	}
	out.ByName = map[string]UnitDef{}
	for _, d := range defs {
		if d.Name == "" {
			return fmt.Errorf("units.json: empty name")
		}
		if _, dup := out.ByName[d.Name]; dup {
			return fmt.Errorf("units.json: duplicate unit %q", d.Name)
		}
		if err := validateTier(d.Name, "normal", d.Normal); err != nil {
			return err
		}
		if d.Promoted != nil {
			if err := validateTier(d.Name, "promoted", *d.Promoted); err != nil {
				return err
			}
		}
		if d.MoveKind == "" {
			d.MoveKind = board.Chebyshev
		}
		if err := (board.Shape{Kind: d.MoveKind, Min: 1, Max: 1}).Validate(); err != nil {
			return fmt.Errorf("unit %q: move_kind: %w", d.Name, err)
		}
		if err := validateSkills("unit "+d.Name, d.Skills); err != nil {
			return err
		}
		out.ByName[d.Name] = d
	}
	return nil
}

func validateTier(unit, tier string, t TierStats) error {
	if t.MaxHP <= 0 {
		return fmt.Errorf("unit %q: %s tier: max_hp must be positive", unit, tier)
	}
	if t.MoveRange < 0 {
		return fmt.Errorf("unit %q: %s tier: negative move_range", unit, tier)
	}
	if err := t.AttackShape.Validate(); err != nil {
		return fmt.Errorf("unit %q: %s tier: attack_shape: %w", unit, tier, err)
	}
	return nil
}

func loadBuildings(path string, out *BuildingCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []BuildingDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("buildings.json: %w", err)
	}
	out.ByName = map[string]BuildingDef{}
	for _, d := range defs {
		if d.Name == "" {
			return fmt.Errorf("buildings.json: empty name")
		}
		if _, dup := out.ByName[d.Name]; dup {
			return fmt.Errorf("buildings.json: duplicate building %q", d.Name)
		}
		if d.MaxHP <= 0 {
			return fmt.Errorf("building %q: max_hp must be positive", d.Name)
		}
		if d.Width < 1 || d.Height < 1 {
			return fmt.Errorf("building %q: footprint %dx%d", d.Name, d.Width, d.Height)
		}
		if d.AttackShape != nil {
			if err := d.AttackShape.Validate(); err != nil {
				return fmt.Errorf("building %q: attack_shape: %w", d.Name, err)
			}
		}
		if err := validateSkills("building "+d.Name, d.Skills); err != nil {
			return err
		}
		out.ByName[d.Name] = d
	}
	return nil
}

func validateSkills(owner string, skills map[string]SkillDef) error {
	for name, s := range skills {
		if name == "" {
			return fmt.Errorf("%s: empty skill name", owner)
		}
		if s.Effect == "" {
			return fmt.Errorf("%s: skill %q: empty effect", owner, name)
		}
		switch s.Kind {
		case SkillActive:
			if s.ChargesPerTurn < 0 {
				return fmt.Errorf("%s: skill %q: negative charges_per_turn", owner, name)
			}
		case SkillPassive, SkillBuff:
			if !trigger.Known(trigger.Trigger(s.Trigger)) {
				return fmt.Errorf("%s: skill %q: unknown trigger %q", owner, name, s.Trigger)
			}
			switch s.Role {
			case RoleSource, RoleTarget, RoleGlobal:
			default:
				return fmt.Errorf("%s: skill %q: unknown role %q", owner, name, s.Role)
			}
		default:
			return fmt.Errorf("%s: skill %q: unknown kind %q", owner, name, s.Kind)
		}
	}
	return nil
}

func loadMaps(path string, out *MapCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []MapDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("maps.json: %w", err)
	}
	out.ByName = map[string]MapDef{}
	for _, d := range defs {
		if d.Name == "" {
			return fmt.Errorf("maps.json: empty name")
		}
		if _, dup := out.ByName[d.Name]; dup {
			return fmt.Errorf("maps.json: duplicate map %q", d.Name)
		}
		if d.Width < 1 || d.Height < 1 {
			return fmt.Errorf("map %q: size %dx%d", d.Name, d.Width, d.Height)
		}
		for i, sp := range d.Spawns {
			if sp.Kind != "unit" && sp.Kind != "building" {
				return fmt.Errorf("map %q: spawn %d: unknown kind %q", d.Name, i, sp.Kind)
			}
			if sp.Name == "" {
				return fmt.Errorf("map %q: spawn %d: empty name", d.Name, i)
			}
			if sp.X < 1 || sp.X > d.Width || sp.Y < 1 || sp.Y > d.Height {
				return fmt.Errorf("map %q: spawn %d: anchor (%d,%d) out of bounds", d.Name, i, sp.X, sp.Y)
			}
		}
		out.ByName[d.Name] = d
	}
	return nil
}

func loadModes(path string, out *ModeCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []ModeDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("modes.json: %w", err)
	}
	out.ByName = map[string]ModeDef{}
	for _, d := range defs {
		if d.Name == "" {
			return fmt.Errorf("modes.json: empty name")
		}
		if _, dup := out.ByName[d.Name]; dup {
			return fmt.Errorf("modes.json: duplicate mode %q", d.Name)
		}
		if d.Players < 2 {
			return fmt.Errorf("mode %q: players must be at least 2", d.Name)
		}
		if d.Map == "" {
			return fmt.Errorf("mode %q: missing map", d.Name)
		}
		for i, sp := range d.Spells {
			if sp.Effect == "" {
				return fmt.Errorf("mode %q: spell %d: empty effect", d.Name, i)
			}
			if sp.Casts < 0 {
				return fmt.Errorf("mode %q: spell %d: negative casts", d.Name, i)
			}
		}
		out.ByName[d.Name] = d
	}
	return nil
}

// crossValidate checks references between files: modes point at real maps,
// rosters and bases at real blueprints, map spawns at real blueprint names.
func (c *Catalogs) crossValidate() error {
	for name, m := range c.Modes.ByName {
		if _, ok := c.Maps.ByName[m.Map]; !ok {
			return fmt.Errorf("mode %q: unknown map %q", name, m.Map)
		}
		if m.Base != "" {
			if _, ok := c.Buildings.ByName[m.Base]; !ok {
				return fmt.Errorf("mode %q: unknown base building %q", name, m.Base)
			}
		}
		for _, unit := range m.Roster {
			if _, ok := c.Units.ByName[unit]; !ok {
				return fmt.Errorf("mode %q: roster names unknown unit %q", name, unit)
			}
		}
	}
	for name, m := range c.Maps.ByName {
		for i, sp := range m.Spawns {
			switch sp.Kind {
			case "unit":
				if _, ok := c.Units.ByName[sp.Name]; !ok {
					return fmt.Errorf("map %q: spawn %d: unknown unit %q", name, i, sp.Name)
				}
			case "building":
				if _, ok := c.Buildings.ByName[sp.Name]; !ok {
					return fmt.Errorf("map %q: spawn %d: unknown building %q", name, i, sp.Name)
				}
			}
		}
	}
	return nil
}
