// Command bot is a scripted websocket player for smoke tests: it takes a
// seat, attacks an adjacent enemy when it sees one, and otherwise ends its
// turn. The engine re-validates everything, so the bot only needs to be
// plausible, not correct.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"

	"github.com/gorilla/websocket"

	"gridfall.gg/internal/protocol"
	"gridfall.gg/internal/sim/game"
)

type bot struct {
	log  *log.Logger
	conn *websocket.Conn

	seat int
	snap game.SnapshotV1

	// Attacks the server already rejected this turn, so a re-prompt does not
	// loop on the same illegal pair.
	tried     map[[2]int64]bool
	triedTurn int
}

func main() {
	var (
		url  = flag.String("url", "ws://localhost:8777/v1/ws", "ws url")
		name = flag.String("name", "bot", "player name")
		seat = flag.Int("seat", 0, "requested seat (0 = first free)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		PlayerName:      *name,
		Seat:            *seat,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.Close()
	}()

	b := &bot{log: logger, conn: conn, tried: map[[2]int64]bool{}}
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				logger.Fatalf("bad WELCOME: %v", err)
			}
			b.seat = w.PlayerID
			logger.Printf("joined match %s (%s/%s) as player %d", w.MatchID, w.Mode, w.Map, w.PlayerID)

		case protocol.TypeState:
			var st protocol.StateMsg
			if err := json.Unmarshal(msg, &st); err != nil {
				continue
			}
			_ = json.Unmarshal(st.Snapshot, &b.snap)

		case protocol.TypeRequest:
			var rm protocol.RequestMsg
			if err := json.Unmarshal(msg, &rm); err != nil {
				continue
			}
			if rm.Request.PlayerID != b.seat {
				continue
			}
			b.answer(rm.Request)

		case protocol.TypeResult:
			var res protocol.ResultMsg
			if err := json.Unmarshal(msg, &res); err == nil {
				logger.Printf("match over: winner=%d reason=%q turns=%d", res.Winner, res.Reason, res.Turns)
			}
			return

		case protocol.TypeError:
			var em protocol.ErrorMsg
			if err := json.Unmarshal(msg, &em); err == nil {
				logger.Printf("server error: %s %s", em.Code, em.Message)
			}
		}
	}
}

func (b *bot) answer(req protocol.DecisionRequest) {
	var dec protocol.Decision
	switch req.Type {
	case protocol.RequestMainTurn:
		dec = b.turnDecision()
	case protocol.RequestConfirm:
		no := false
		dec = protocol.Decision{Confirm: &no}
	default:
		// Nested selections only follow from skills the bot never uses;
		// back out if the request lets us.
		if req.AllowCancel {
			dec = protocol.Decision{Cancel: true}
		} else {
			dec = b.firstOption(req)
		}
	}
	b.submit(req.RequestID, dec)
}

// turnDecision picks one attack by an idle unit against a touching enemy,
// or ends the turn.
func (b *bot) turnDecision() protocol.Decision {
	if b.snap.Turn != b.triedTurn {
		b.tried = map[[2]int64]bool{}
		b.triedTurn = b.snap.Turn
	}
	for _, e := range b.snap.Entities {
		if e.Owner != b.seat || !e.Attackable || e.Kind != game.KindUnit {
			continue
		}
		for _, foe := range b.snap.Entities {
			if foe.Owner == b.seat || foe.Owner == 0 {
				continue
			}
			if !adjacent(e, foe) || b.tried[[2]int64{e.UID, foe.UID}] {
				continue
			}
			b.tried[[2]int64{e.UID, foe.UID}] = true
			b.log.Printf("attacking %s#%d with %s#%d", foe.Name, foe.UID, e.Name, e.UID)
			return protocol.Decision{
				Action:          protocol.ActionAttack,
				EntityUID:       e.UID,
				TargetEntityUID: foe.UID,
				TargetPosition:  &[2]int{foe.X, foe.Y},
			}
		}
	}
	return protocol.Decision{Action: protocol.ActionEndTurn}
}

// adjacent reports whether two footprint rectangles touch, diagonals
// included. Footprint sizes are not in the snapshot, so 1x1 is assumed;
// the engine rejects the attack if that guess made it illegal.
func adjacent(a, t game.EntitySnapshot) bool {
	dx := a.X - t.X
	if dx < 0 {
		dx = -dx
	}
	dy := a.Y - t.Y
	if dy < 0 {
		dy = -dy
	}
	return dx <= 1 && dy <= 1 && (dx != 0 || dy != 0)
}

// firstOption answers an uncancellable selection with the first offered
// value, which is always legal by construction.
func (b *bot) firstOption(req protocol.DecisionRequest) protocol.Decision {
	opts, _ := req.Validation["options"].([]any)
	if len(opts) == 0 {
		return protocol.Decision{}
	}
	switch v := opts[0].(type) {
	case string:
		if req.Type == protocol.RequestSelectDir {
			return protocol.Decision{Direction: v}
		}
		return protocol.Decision{Selection: v}
	case []any:
		if len(v) == 2 {
			x, _ := v[0].(float64)
			y, _ := v[1].(float64)
			return protocol.Decision{Position: &[2]int{int(x), int(y)}}
		}
	}
	return protocol.Decision{}
}

func (b *bot) submit(requestID string, dec protocol.Decision) {
	msg := protocol.SubmitMsg{
		Type:            protocol.TypeSubmit,
		ProtocolVersion: protocol.Version,
		RequestID:       requestID,
		Decision:        dec,
	}
	if err := b.conn.WriteJSON(msg); err != nil {
		b.log.Printf("send SUBMIT: %v", err)
	}
}
