package trigger

import "gridfall.gg/internal/sim/board"

// Context is the mutable payload of one dispatch. Entities are referenced by
// uid only; the entity table stays the single owner. A zero uid means the
// slot is unset.
type Context struct {
	Source       int64
	SourcePlayer int
	Target       int64
	TargetCell   board.Cell

	// Value carries the number being computed on value triggers (attack,
	// damage, heal, cost, range). Handlers mutate it in dispatch order.
	Value int

	// Meta is a free-form bag for effect-specific payloads.
	Meta map[string]any

	stopped bool
}

// Stop short-circuits the remaining handlers of the current dispatch.
func (c *Context) Stop() { c.stopped = true }

func (c *Context) Stopped() bool { return c.stopped }
