// Command replay re-runs a recorded match against the current catalogs and
// verifies it reproduces the same state digests decision by decision. A
// divergence means either the data files drifted from what the match was
// played on, or the engine stopped being deterministic. Both are worth
// failing loudly over.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	persistlog "gridfall.gg/internal/persistence/log"
	"gridfall.gg/internal/protocol"
	"gridfall.gg/internal/sim/catalogs"
	"gridfall.gg/internal/sim/game"
	"gridfall.gg/internal/sim/tuning"
)

func main() {
	var (
		logPath    = flag.String("log", "", "path to a match log (.jsonl.zst)")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		verbose    = flag.Bool("v", false, "print every verified decision")
	)
	flag.Parse()

	if *logPath == "" {
		fmt.Fprintln(os.Stderr, "missing -log")
		os.Exit(2)
	}

	rec, err := persistlog.ReadMatch(*logPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read match log:", err)
		os.Exit(1)
	}
	fmt.Printf("match %s mode=%s map=%s actions=%d\n",
		rec.Header.MatchID, rec.Header.Mode, rec.Header.Map, len(rec.Actions))

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}
	if err := checkDigests(rec.Header.Catalogs, cats); err != nil {
		fmt.Fprintln(os.Stderr, "catalog mismatch:", err)
		os.Exit(1)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
		tune = tuning.Defaults()
	}
	if want := rec.Header.Catalogs.TuningDigest; want != "" && want != tune.Digest() {
		fmt.Fprintf(os.Stderr, "tuning mismatch: log pinned %s, loaded %s\n", want, tune.Digest())
		os.Exit(1)
	}

	logger := log.New(io.Discard, "", 0)
	if *verbose {
		logger = log.New(os.Stdout, "[replay] ", 0)
	}
	g, err := game.New(game.Config{Mode: rec.Header.Mode, MaxTurns: tune.MaxTurns}, cats, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "game:", err)
		os.Exit(1)
	}

	reqs := make(chan protocol.DecisionRequest, 1)
	g.OnRequest(func(req protocol.DecisionRequest) { reqs <- req })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type outcome struct {
		res *game.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := g.Run(ctx)
		done <- outcome{res: res, err: err}
	}()

	for _, a := range rec.Actions {
		var req protocol.DecisionRequest
		select {
		case req = <-reqs:
		case out := <-done:
			fmt.Fprintf(os.Stderr, "match ended early at seq %d: res=%+v err=%v\n", a.Seq, out.res, out.err)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			fmt.Fprintf(os.Stderr, "seq %d: engine issued no request\n", a.Seq)
			os.Exit(1)
		}

		// The engine is parked on the request we just received, so reading
		// its state from here is safe.
		if req.RequestID != a.RequestID {
			fmt.Fprintf(os.Stderr, "seq %d: request diverged: engine %s (%s), log %s (%s)\n",
				a.Seq, req.RequestID, req.Type, a.RequestID, a.RequestType)
			os.Exit(1)
		}
		if got := g.StateDigest(); got != a.Digest {
			fmt.Fprintf(os.Stderr, "seq %d: digest diverged at %s:\n  got  %s\n  want %s\n",
				a.Seq, a.RequestID, got, a.Digest)
			os.Exit(1)
		}
		if *verbose {
			logger.Printf("seq %d ok: turn=%d player=%d %s", a.Seq, a.Turn, a.Player, a.RequestType)
		}
		g.Submit(a.Player, a.RequestID, a.Decision)
	}

	if rec.Result == nil {
		// A match cut off mid-game: everything recorded replayed cleanly.
		cancel()
		<-done
		fmt.Printf("replay ok: %d decisions verified (no result entry)\n", len(rec.Actions))
		return
	}

	var out outcome
	select {
	case out = <-done:
	case <-time.After(30 * time.Second):
		fmt.Fprintln(os.Stderr, "engine did not finish after the last recorded decision")
		os.Exit(1)
	}
	if out.err != nil {
		fmt.Fprintln(os.Stderr, "run:", out.err)
		os.Exit(1)
	}
	if out.res.Winner != rec.Result.Winner || out.res.Reason != rec.Result.Reason ||
		out.res.Turns != rec.Result.Turns || out.res.Digest != rec.Result.Digest {
		fmt.Fprintf(os.Stderr, "result diverged:\n  got  %+v\n  want %+v\n", *out.res, *rec.Result)
		os.Exit(1)
	}

	fmt.Printf("replay ok: %d decisions verified, winner=%d reason=%q final=%s\n",
		len(rec.Actions), out.res.Winner, out.res.Reason, out.res.Digest)
}

func checkDigests(want protocol.CatalogDigests, cats *catalogs.Catalogs) error {
	checks := []struct {
		name string
		want string
		got  string
	}{
		{"units", want.UnitsDigest, cats.Units.Digest},
		{"buildings", want.BuildingsDigest, cats.Buildings.Digest},
		{"maps", want.MapsDigest, cats.Maps.Digest},
		{"modes", want.ModesDigest, cats.Modes.Digest},
	}
	for _, c := range checks {
		if c.want != "" && c.want != c.got {
			return fmt.Errorf("%s: log pinned %s, loaded %s", c.name, c.want, c.got)
		}
	}
	return nil
}
