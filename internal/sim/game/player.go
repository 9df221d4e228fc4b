package game

// PlayerState is one seat's mutable match state. Spell casts are indexed by
// the mode's spell roster.
type PlayerState struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Gold       int    `json:"gold"`
	Wood       int    `json:"wood"`
	SpellCasts []int  `json:"spell_casts"`
}
