package game

import (
	"gridfall.gg/internal/protocol"
	"gridfall.gg/internal/sim/board"
)

// Interaction helpers. Each wraps one decision request, validates the answer
// against the offered options, and re-issues the request on a bad answer, so
// effect code always sees a legal value or a cancellation.

// AskConfirm poses a yes/no question.
func (g *Game) AskConfirm(player int, message string, allowCancel bool) (bool, error) {
	for {
		dec, err := g.awaitDecision(&protocol.DecisionRequest{
			PlayerID:    player,
			Type:        protocol.RequestConfirm,
			Message:     message,
			AllowCancel: allowCancel,
		})
		if err != nil {
			return false, err
		}
		if dec.Confirm == nil {
			g.log.Printf("confirm: missing confirm field, re-asking")
			continue
		}
		return *dec.Confirm, nil
	}
}

// SelectLocation asks the player to pick one of the offered cells.
func (g *Game) SelectLocation(player int, message string, options []board.Cell, allowCancel bool) (board.Cell, error) {
	if len(options) == 0 {
		return board.Cell{}, illegalf("select location: no options to offer")
	}
	opts := make([][2]int, len(options))
	for i, c := range options {
		opts[i] = [2]int{c.X, c.Y}
	}
	for {
		dec, err := g.awaitDecision(&protocol.DecisionRequest{
			PlayerID:    player,
			Type:        protocol.RequestSelectLocation,
			Message:     message,
			Validation:  map[string]any{"options": opts},
			AllowCancel: allowCancel,
		})
		if err != nil {
			return board.Cell{}, err
		}
		if dec.Position == nil {
			g.log.Printf("select location: missing position, re-asking")
			continue
		}
		c := board.Cell{X: dec.Position[0], Y: dec.Position[1]}
		if !containsCell(options, c) {
			g.log.Printf("select location: (%d,%d) not offered, re-asking", c.X, c.Y)
			continue
		}
		return c, nil
	}
}

// SelectUnitType asks the player to pick a unit name from a list.
func (g *Game) SelectUnitType(player int, message string, options []string, allowCancel bool) (string, error) {
	for {
		dec, err := g.awaitDecision(&protocol.DecisionRequest{
			PlayerID:    player,
			Type:        protocol.RequestSelectUnitType,
			Message:     message,
			Validation:  map[string]any{"options": options},
			AllowCancel: allowCancel,
		})
		if err != nil {
			return "", err
		}
		valid := false
		for _, o := range options {
			if o == dec.Selection {
				valid = true
				break
			}
		}
		if !valid {
			g.log.Printf("select unit type: %q not offered, re-asking", dec.Selection)
			continue
		}
		return dec.Selection, nil
	}
}

// SelectDirection asks the player for one of the four cardinal directions.
func (g *Game) SelectDirection(player int, message string) (string, error) {
	options := []string{"N", "E", "S", "W"}
	for {
		dec, err := g.awaitDecision(&protocol.DecisionRequest{
			PlayerID:    player,
			Type:        protocol.RequestSelectDir,
			Message:     message,
			Validation:  map[string]any{"options": options},
			AllowCancel: true,
		})
		if err != nil {
			return "", err
		}
		if _, ok := directionSteps[dec.Direction]; !ok {
			g.log.Printf("select direction: %q not offered, re-asking", dec.Direction)
			continue
		}
		return dec.Direction, nil
	}
}
