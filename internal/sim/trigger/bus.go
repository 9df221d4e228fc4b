package trigger

import "fmt"

// Handler runs at one lifecycle point. A returned error aborts the dispatch
// and propagates to the caller; the engine uses distinguished errors for
// cancellation and game end.
type Handler func(*Context) error

type subscription struct {
	handler  Handler
	priority int
	flow     bool
}

// Bus keeps per-trigger handler lists sorted by priority descending, ties in
// registration order. The order is fixed at registration time so dispatch is
// a plain walk.
type Bus struct {
	subs map[Trigger][]subscription
}

func NewBus() *Bus {
	return &Bus{subs: map[Trigger][]subscription{}}
}

// Subscribe registers a handler that must complete without suspending.
func (b *Bus) Subscribe(t Trigger, h Handler, priority int) {
	b.add(t, h, priority, false)
}

// SubscribeFlow registers a handler that may suspend awaiting a decision.
// Flow handlers are only reachable through DispatchFlow.
func (b *Bus) SubscribeFlow(t Trigger, h Handler, priority int) {
	b.add(t, h, priority, true)
}

func (b *Bus) add(t Trigger, h Handler, priority int, flow bool) {
	subs := b.subs[t]
	i := len(subs)
	for i > 0 && subs[i-1].priority < priority {
		i--
	}
	subs = append(subs, subscription{})
	copy(subs[i+1:], subs[i:])
	subs[i] = subscription{handler: h, priority: priority, flow: flow}
	b.subs[t] = subs
}

// DispatchSync runs t's handlers in order without suspension. Meeting a
// flow-tagged handler here means a trigger was misclassified; that is a
// programming error and panics rather than running a handler that may block.
func (b *Bus) DispatchSync(t Trigger, ctx *Context) error {
	for _, s := range b.subs[t] {
		if ctx.Stopped() {
			break
		}
		if s.flow {
			panic(fmt.Sprintf("trigger: flow handler reached via DispatchSync on %s", t))
		}
		if err := s.handler(ctx); err != nil {
			return err
		}
	}
	return nil
}

// DispatchFlow runs t's handlers in order. A handler that suspends blocks
// the engine goroutine until its decision resolves, so later handlers never
// start before an earlier one finishes.
func (b *Bus) DispatchFlow(t Trigger, ctx *Context) error {
	for _, s := range b.subs[t] {
		if ctx.Stopped() {
			break
		}
		if err := s.handler(ctx); err != nil {
			return err
		}
	}
	return nil
}
