package game

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"strconv"
	"sync/atomic"

	"gridfall.gg/internal/protocol"
	"gridfall.gg/internal/sim/board"
	"gridfall.gg/internal/sim/catalogs"
	"gridfall.gg/internal/sim/trigger"
)

type Config struct {
	Mode     string
	MaxTurns int // player turns before a forced draw; 0 = uncapped
}

// Result is the final outcome of a match.
type Result struct {
	Winner int    `json:"winner"` // 0 = draw
	Reason string `json:"reason"`
	Turns  int    `json:"turns"`
	Digest string `json:"digest"`
}

// MatchLogger receives every accepted decision and the final result. Calls
// happen on the engine goroutine; implementations must not call back in.
type MatchLogger interface {
	WriteAction(ActionRecord) error
	WriteResult(Result) error
}

// ActionRecord is one accepted decision. Digest is the state digest at the
// moment the submission was accepted, before it resolved, so a replay can
// verify it diverged nowhere.
type ActionRecord struct {
	Seq         int               `json:"seq"`
	Turn        int               `json:"turn"`
	Player      int               `json:"player"`
	RequestID   string            `json:"request_id"`
	RequestType string            `json:"request_type"`
	Decision    protocol.Decision `json:"decision"`
	Digest      string            `json:"digest"`
}

type submission struct {
	requestID string
	player    int
	decision  protocol.Decision
}

// Game is a single-threaded authoritative match simulation. All state must
// be accessed only from the goroutine that called Run; the one concession is
// Submit, which hands decisions over through a channel.
type Game struct {
	cfg  Config
	log  *log.Logger
	bus  *trigger.Bus
	brd  *board.Board
	cats *catalogs.Catalogs
	mode Mode

	players map[int]*PlayerState
	order   []int
	cur     int // index into order
	turn    int // 1-based, one per player turn

	entities map[int64]Entity
	nextUID  int64

	reqSeq   int64
	pending  atomic.Pointer[protocol.DecisionRequest]
	submitCh chan submission

	history []ActionRecord

	matchLog MatchLogger

	runCtx context.Context
}

// New builds a match from the mode's map and spawns its initial entities.
// ON_SPAWN fires for each of them, so passives that react to deployment see
// the setup phase too.
func New(cfg Config, cats *catalogs.Catalogs, logger *log.Logger) (*Game, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	modeDef, ok := cats.Modes.ByName[cfg.Mode]
	if !ok {
		return nil, fmt.Errorf("game: unknown mode %q", cfg.Mode)
	}
	mapDef, ok := cats.Maps.ByName[modeDef.Map]
	if !ok {
		return nil, fmt.Errorf("game: mode %q: unknown map %q", cfg.Mode, modeDef.Map)
	}
	if err := validateCatalogEffects(cats); err != nil {
		return nil, err
	}
	if err := validateActionDispatch(); err != nil {
		return nil, err
	}

	brd, err := board.New(mapDef.Width, mapDef.Height)
	if err != nil {
		return nil, err
	}

	g := &Game{
		cfg:      cfg,
		log:      logger,
		bus:      trigger.NewBus(),
		brd:      brd,
		cats:     cats,
		players:  map[int]*PlayerState{},
		entities: map[int64]Entity{},
		nextUID:  firstUID,
		submitCh: make(chan submission, 1),
		turn:     1,
	}
	for id := 1; id <= modeDef.Players; id++ {
		casts := make([]int, len(modeDef.Spells))
		for i, s := range modeDef.Spells {
			casts[i] = s.Casts
		}
		g.players[id] = &PlayerState{
			ID:         id,
			Name:       fmt.Sprintf("player%d", id),
			Gold:       modeDef.StartGold,
			Wood:       modeDef.StartWood,
			SpellCasts: casts,
		}
		g.order = append(g.order, id)
	}

	g.registerResolver()
	g.mode = newStandardMode(modeDef)
	g.mode.Register(g)

	for i, sp := range mapDef.Spawns {
		if err := g.spawnFromDef(sp); err != nil {
			return nil, fmt.Errorf("game: map %q: spawn %d: %w", mapDef.Name, i, err)
		}
	}
	return g, nil
}

// SetMatchLogger must be called before Run.
func (g *Game) SetMatchLogger(l MatchLogger) { g.matchLog = l }

// OnRequest subscribes fn to the input-request broadcast. fn runs on the
// engine goroutine while the request is already pending, so it may read
// state and push the request out, but it must not call back into the engine.
// Must be called before Run.
func (g *Game) OnRequest(fn func(protocol.DecisionRequest)) {
	g.bus.SubscribeFlow(trigger.OnInputRequest, func(ctx *trigger.Context) error {
		if req, ok := ctx.Meta[metaRequest].(*protocol.DecisionRequest); ok {
			fn(*req)
		}
		return nil
	}, requestBroadcastPriority)
}

// Run drives the match to completion on the calling goroutine. It returns
// the result, or the context error if the match was shut down mid-turn.
func (g *Game) Run(ctx context.Context) (*Result, error) {
	g.runCtx = ctx
	defer func() { g.runCtx = nil }()

	sctx := &trigger.Context{Meta: map[string]any{}}
	if err := g.bus.DispatchFlow(trigger.OnGameStart, sctx); err != nil {
		return g.unwind(err)
	}
	for {
		if g.cfg.MaxTurns > 0 && g.turn > g.cfg.MaxTurns {
			return g.finish(&Result{Winner: 0, Reason: "turn limit"}), nil
		}
		if err := g.runTurn(); err != nil {
			return g.unwind(err)
		}
		g.cur = (g.cur + 1) % len(g.order)
		g.turn++
	}
}

func (g *Game) unwind(err error) (*Result, error) {
	if res, ok := asGameOver(err); ok {
		return g.finish(res), nil
	}
	return nil, err
}

func (g *Game) finish(res *Result) *Result {
	res.Turns = g.turn
	res.Digest = g.StateDigest()
	if g.matchLog != nil {
		if err := g.matchLog.WriteResult(*res); err != nil {
			g.log.Printf("match log: write result: %v", err)
		}
	}
	g.log.Printf("match over: winner=%d reason=%q turns=%d", res.Winner, res.Reason, res.Turns)
	return res
}

// runTurn is one player's whole turn: start triggers, a prompt loop off the
// main menu, end triggers. Cancelling the menu and choosing end_turn both
// leave the loop; illegal and cancelled actions just re-prompt.
func (g *Game) runTurn() error {
	p := g.players[g.order[g.cur]]
	g.resetTurnState(p.ID)

	tctx := &trigger.Context{SourcePlayer: p.ID, Meta: map[string]any{}}
	if err := g.bus.DispatchFlow(trigger.OnTurnStart, tctx); err != nil {
		return err
	}

	for {
		dec, err := g.awaitDecision(g.turnMenuRequest(p))
		if errors.Is(err, ErrDecisionCancelled) {
			break
		}
		if err != nil {
			return err
		}
		if dec.Action == protocol.ActionEndTurn {
			break
		}
		if err := g.applyAction(p, dec); err != nil {
			switch {
			case errors.Is(err, errIllegal):
				g.log.Printf("turn %d player %d: rejected %s: %v", g.turn, p.ID, dec.Action, err)
			case errors.Is(err, ErrDecisionCancelled):
				// nested decision cancelled; the action already unwound
			default:
				return err
			}
		}
	}

	ectx := &trigger.Context{SourcePlayer: p.ID, Meta: map[string]any{}}
	return g.bus.DispatchFlow(trigger.OnTurnEnd, ectx)
}

// resetTurnState restores the acting player's budgets: move/attack flags back
// to blueprint capability, active-skill charges back to their per-turn count.
func (g *Game) resetTurnState(player int) {
	for _, e := range g.entitiesSorted() {
		if e.Owner() != player {
			continue
		}
		st := e.State()
		st.Movable = e.CanMove()
		st.Attackable = e.CanAttack()
		for name, s := range e.Skills() {
			if s.Kind == catalogs.SkillActive {
				e.Vars()[name] = chargesPerTurn(s)
			}
		}
	}
}

func (g *Game) turnMenuRequest(p *PlayerState) *protocol.DecisionRequest {
	var castable []int
	for i, left := range p.SpellCasts {
		if left > 0 {
			castable = append(castable, i)
		}
	}
	return &protocol.DecisionRequest{
		PlayerID: p.ID,
		Type:     protocol.RequestMainTurn,
		Message:  fmt.Sprintf("turn %d: %s to act", g.turn, p.Name),
		Validation: map[string]any{
			"operable_uids":   g.operableUIDs(p.ID),
			"castable_spells": castable,
			"actions":         supportedActions(),
		},
		AllowCancel: true,
	}
}

// operableUIDs lists the player's entities that still have something to do.
// Buildings are always listed because tear_down needs no budget.
func (g *Game) operableUIDs(player int) []int64 {
	var out []int64
	for _, e := range g.entitiesSorted() {
		if e.Owner() != player {
			continue
		}
		if g.isOperable(e) {
			out = append(out, e.UID())
		}
	}
	return out
}

func (g *Game) isOperable(e Entity) bool {
	if e.Kind() == KindBuilding {
		return true
	}
	st := e.State()
	if e.CanMove() && st.Movable {
		return true
	}
	if e.CanAttack() && st.Attackable {
		return true
	}
	for name, s := range e.Skills() {
		if s.Kind == catalogs.SkillActive && e.Vars()[name] > 0 {
			return true
		}
	}
	return false
}

// awaitDecision suspends the turn on one request and blocks until a matching
// submission arrives or the run context ends. There is never more than one
// outstanding request; nesting a second await inside an unanswered one is a
// bug in the caller.
func (g *Game) awaitDecision(req *protocol.DecisionRequest) (protocol.Decision, error) {
	if g.pending.Load() != nil {
		panic("game: awaitDecision while another request is pending")
	}
	g.reqSeq++
	req.RequestID = "r" + strconv.FormatInt(g.reqSeq, 10)
	g.pending.Store(req)
	defer g.pending.Store(nil)

	bctx := &trigger.Context{
		SourcePlayer: req.PlayerID,
		Meta:         map[string]any{metaRequest: req},
	}
	if err := g.bus.DispatchFlow(trigger.OnInputRequest, bctx); err != nil {
		return protocol.Decision{}, err
	}

	for {
		select {
		case <-g.runCtx.Done():
			return protocol.Decision{}, g.runCtx.Err()
		case sub := <-g.submitCh:
			if sub.requestID != req.RequestID {
				g.log.Printf("request %s: stale submission for %s, dropped", req.RequestID, sub.requestID)
				continue
			}
			if sub.player != req.PlayerID {
				g.log.Printf("request %s: submission from player %d, want %d, dropped", req.RequestID, sub.player, req.PlayerID)
				continue
			}
			if sub.decision.Cancel {
				if !req.AllowCancel {
					g.log.Printf("request %s: cancel not allowed, re-waiting", req.RequestID)
					continue
				}
				g.recordAccepted(req, sub.decision)
				return protocol.Decision{}, ErrDecisionCancelled
			}
			g.recordAccepted(req, sub.decision)
			return sub.decision, nil
		}
	}
}

func (g *Game) recordAccepted(req *protocol.DecisionRequest, dec protocol.Decision) {
	rec := ActionRecord{
		Seq:         len(g.history) + 1,
		Turn:        g.turn,
		Player:      req.PlayerID,
		RequestID:   req.RequestID,
		RequestType: req.Type,
		Decision:    dec,
		Digest:      g.StateDigest(),
	}
	g.history = append(g.history, rec)
	if g.matchLog != nil {
		if err := g.matchLog.WriteAction(rec); err != nil {
			g.log.Printf("match log: write action: %v", err)
		}
	}
}

// Submit hands a decision to the engine. Safe from any goroutine. Decisions
// that do not match the outstanding request are logged and dropped; the
// engine state never changes for them.
func (g *Game) Submit(player int, requestID string, dec protocol.Decision) {
	req := g.pending.Load()
	if req == nil || req.RequestID != requestID {
		g.log.Printf("submit: no pending request %s, dropped", requestID)
		return
	}
	select {
	case g.submitCh <- submission{requestID: requestID, player: player, decision: dec}:
	default:
		// a submission is already queued; the extra one is stale by definition
	}
}

// CurrentRequest returns the outstanding decision request, if any. Safe from
// any goroutine.
func (g *Game) CurrentRequest() *protocol.DecisionRequest {
	return g.pending.Load()
}

func (g *Game) spawnFromDef(sp catalogs.SpawnDef) error {
	switch sp.Kind {
	case "unit":
		_, err := g.SpawnUnit(sp.Name, sp.Owner, sp.X, sp.Y, sp.Promoted)
		return err
	case "building":
		_, err := g.SpawnBuilding(sp.Name, sp.Owner, sp.X, sp.Y, sp.Vertical)
		return err
	default:
		return fmt.Errorf("unknown spawn kind %q", sp.Kind)
	}
}

// entitiesSorted returns the live entities in uid order. Stable iteration
// keeps resolver candidate order and state digests deterministic.
func (g *Game) entitiesSorted() []Entity {
	out := make([]Entity, 0, len(g.entities))
	for _, e := range g.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID() < out[j].UID() })
	return out
}

// Entity looks up a live entity by uid.
func (g *Game) Entity(uid int64) (Entity, bool) {
	e, ok := g.entities[uid]
	return e, ok
}

// EntityAt returns the entity occupying a cell, if any.
func (g *Game) EntityAt(x, y int) (Entity, bool) {
	uid := g.brd.UIDAt(x, y)
	if uid == 0 {
		return nil, false
	}
	return g.Entity(uid)
}

// Entities returns the live entities in uid order.
func (g *Game) Entities() []Entity { return g.entitiesSorted() }

// Player returns one seat's state, or nil.
func (g *Game) Player(id int) *PlayerState { return g.players[id] }

// Players returns seat ids in turn order.
func (g *Game) Players() []int {
	out := make([]int, len(g.order))
	copy(out, g.order)
	return out
}

// Turn returns the 1-based player-turn counter.
func (g *Game) Turn() int { return g.turn }

// CurrentPlayer returns the seat whose turn it is.
func (g *Game) CurrentPlayer() int { return g.order[g.cur] }

// Mode returns the active mode definition.
func (g *Game) ModeDef() catalogs.ModeDef { return g.mode.Def() }

// History returns the accepted decisions so far.
func (g *Game) History() []ActionRecord {
	out := make([]ActionRecord, len(g.history))
	copy(out, g.history)
	return out
}

const (
	firstUID = 1000

	metaRequest     = "request"
	metaKeepMovable = "keep_movable"

	// The transport broadcast runs after any skill that reacts to the
	// request, so clients see post-reaction state.
	requestBroadcastPriority = -1000
)
