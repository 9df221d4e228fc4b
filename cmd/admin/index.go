package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"gridfall.gg/internal/persistence/indexdb"
	persistlog "gridfall.gg/internal/persistence/log"
)

func openIndex(dataDir string) *indexdb.SQLiteIndex {
	path := filepath.Join(dataDir, "index", "matches.sqlite")
	if _, err := os.Stat(path); err != nil {
		fail("index", fmt.Errorf("no index at %s", path))
	}
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		fail("open index", err)
	}
	return idx
}

func matchesCmd(args []string) {
	fs := flag.NewFlagSet("matches", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	idx := openIndex(*dataDir)
	defer idx.Close()

	rows, err := idx.RecentMatches(*limit)
	if err != nil {
		fail("query", err)
	}
	for _, m := range rows {
		printJSON(m)
	}
}

func matchCmd(args []string) {
	fs := flag.NewFlagSet("match", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fail("match", fmt.Errorf("usage: admin match [-data DIR] <match_id>"))
	}
	matchID := fs.Arg(0)

	idx := openIndex(*dataDir)
	defer idx.Close()

	m, err := idx.Match(matchID)
	if err != nil {
		fail("query", err)
	}
	if m == nil {
		fail("match", fmt.Errorf("unknown match %s", matchID))
	}
	printJSON(m)

	actions, err := idx.MatchActions(matchID)
	if err != nil {
		fail("actions", err)
	}
	for _, a := range actions {
		printJSON(a)
	}
}

// verifyCmd cross-checks the derived index against the match log it was
// built from. Any difference means the index writer dropped or mangled a
// row; the fix is always to rebuild from the log.
func verifyCmd(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fail("verify", fmt.Errorf("usage: admin verify [-data DIR] <match_id>"))
	}
	matchID := fs.Arg(0)

	idx := openIndex(*dataDir)
	defer idx.Close()

	m, err := idx.Match(matchID)
	if err != nil {
		fail("query", err)
	}
	if m == nil {
		fail("verify", fmt.Errorf("unknown match %s", matchID))
	}

	logPath := m.LogPath
	if logPath == "" {
		logPath = persistlog.MatchPath(*dataDir, matchID)
	}
	rec, err := persistlog.ReadMatch(logPath)
	if err != nil {
		fail("read match log", err)
	}

	indexed, err := idx.MatchActions(matchID)
	if err != nil {
		fail("actions", err)
	}

	problems := 0
	if len(indexed) != len(rec.Actions) {
		fmt.Fprintf(os.Stderr, "action count: index %d, log %d\n", len(indexed), len(rec.Actions))
		problems++
	}
	n := min(len(indexed), len(rec.Actions))
	for i := 0; i < n; i++ {
		a, b := indexed[i], rec.Actions[i]
		if a.Seq != b.Seq || a.Turn != b.Turn || a.Player != b.Player ||
			a.RequestID != b.RequestID || a.RequestType != b.RequestType || a.Digest != b.Digest {
			fmt.Fprintf(os.Stderr, "seq %d: row mismatch:\n  index %+v\n  log   %+v\n", b.Seq, a, b)
			problems++
			continue
		}
		aj, _ := json.Marshal(a.Decision)
		bj, _ := json.Marshal(b.Decision)
		if string(aj) != string(bj) {
			fmt.Fprintf(os.Stderr, "seq %d: decision mismatch:\n  index %s\n  log   %s\n", b.Seq, aj, bj)
			problems++
		}
	}
	if rec.Result != nil && m.FinalDigest != "" && m.FinalDigest != rec.Result.Digest {
		fmt.Fprintf(os.Stderr, "final digest: index %s, log %s\n", m.FinalDigest, rec.Result.Digest)
		problems++
	}

	if problems > 0 {
		fail("verify", fmt.Errorf("%d mismatches", problems))
	}
	fmt.Printf("verify ok: %d actions, index matches %s\n", len(rec.Actions), filepath.Base(logPath))
}
