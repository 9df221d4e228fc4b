package protocol

import "encoding/json"

// Decision request types.
const (
	RequestMainTurn       = "MAIN_TURN_MENU"
	RequestSelectLocation = "SELECT_LOCATION"
	RequestSelectUnitType = "SELECT_UNIT_TYPE"
	RequestSelectDir      = "SELECT_DIRECTION"
	RequestConfirm        = "CONFIRMATION"
)

// Action kinds accepted on the main turn menu.
const (
	ActionMove      = "entity_move"
	ActionAttack    = "entity_attack"
	ActionUseSkill  = "entity_use_skill"
	ActionCastSpell = "spell_cast"
	ActionDemolish  = "tear_down"
	ActionEndTurn   = "end_turn"
)

// DecisionRequest describes the single outstanding decision the engine is
// suspended on. Validation carries request-type specific hints (legal
// options, operable uids) so clients never have to re-derive the rules.
type DecisionRequest struct {
	RequestID   string         `json:"request_id"`
	PlayerID    int            `json:"player_id"`
	Type        string         `json:"type"`
	Message     string         `json:"message,omitempty"`
	Validation  map[string]any `json:"validation,omitempty"`
	AllowCancel bool           `json:"allow_cancel"`
}

// Decision is the flat union of every answer shape. Which fields matter
// depends on the request type; unknown extras are ignored.
type Decision struct {
	// Cancel aborts the request when the request allows it. Cancelling the
	// main turn menu ends the turn.
	Cancel bool `json:"cancel,omitempty"`

	// MAIN_TURN_MENU
	Action          string          `json:"action,omitempty"`
	EntityUID       int64           `json:"entity_uid,omitempty"`
	TargetEntityUID int64           `json:"target_entity_uid,omitempty"`
	TargetPosition  *[2]int         `json:"target_position,omitempty"`
	SkillName       string          `json:"skill_name,omitempty"`
	SkillTarget     json.RawMessage `json:"skill_target,omitempty"`
	SpellIndex      int             `json:"spell_index,omitempty"`
	SpellTarget     json.RawMessage `json:"spell_target,omitempty"`

	// SELECT_LOCATION
	Position *[2]int `json:"position,omitempty"`

	// SELECT_UNIT_TYPE
	Selection string `json:"selection,omitempty"`

	// SELECT_DIRECTION
	Direction string `json:"direction,omitempty"`

	// CONFIRMATION
	Confirm *bool `json:"confirm,omitempty"`
}
