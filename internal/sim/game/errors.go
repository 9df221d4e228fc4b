package game

import (
	"errors"
	"fmt"
)

// ErrDecisionCancelled reports that the player cancelled a pending decision.
// Cancelling the main turn menu ends the turn; cancelling a nested decision
// aborts the enclosing action and refunds whatever it had reserved.
var ErrDecisionCancelled = errors.New("decision cancelled")

// errIllegal marks action validation failures. The turn loop logs them and
// re-prompts; nothing was mutated.
var errIllegal = errors.New("illegal action")

func illegalf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), errIllegal)
}

// gameOverError carries the match result up through whatever dispatch stack
// produced it. Run unwraps it into a normal return.
type gameOverError struct {
	result Result
}

func (e *gameOverError) Error() string {
	return fmt.Sprintf("game over: winner=%d reason=%q", e.result.Winner, e.result.Reason)
}

// EndGame builds the error a victory handler returns to finish the match
// immediately. Winner 0 means a draw.
func EndGame(winner int, reason string) error {
	return &gameOverError{result: Result{Winner: winner, Reason: reason}}
}

func asGameOver(err error) (*Result, bool) {
	var g *gameOverError
	if errors.As(err, &g) {
		res := g.result
		return &res, true
	}
	return nil, false
}
