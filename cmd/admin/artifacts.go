package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"gridfall.gg/internal/persistence/archive"
	persistlog "gridfall.gg/internal/persistence/log"
	"gridfall.gg/internal/persistence/snapshot"
	"gridfall.gg/internal/sim/game"
)

func logCmd(args []string) {
	fs := flag.NewFlagSet("log", flag.ExitOnError)
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fail("log", fmt.Errorf("usage: admin log <path>"))
	}

	rec, err := persistlog.ReadMatch(fs.Arg(0))
	if err != nil {
		fail("read match log", err)
	}
	printJSON(rec.Header)
	for _, a := range rec.Actions {
		printJSON(a)
	}
	if rec.Result != nil {
		printJSON(rec.Result)
	}
}

func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	headerOnly := fs.Bool("header", false, "print the header line only")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fail("snapshot", fmt.Errorf("usage: admin snapshot [-header] <path>"))
	}

	hdr, snap, err := snapshot.Read(fs.Arg(0))
	if err != nil {
		fail("read state artifact", err)
	}
	printJSON(hdr)
	if !*headerOnly {
		printJSON(snap)
	}
}

// archiveCmd gathers a finished match's artifacts into the dated archive
// tree. Re-running it for an already archived match just rewrites the same
// files.
func archiveCmd(args []string) {
	fs := flag.NewFlagSet("archive", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fail("archive", fmt.Errorf("usage: admin archive [-data DIR] <match_id>"))
	}
	matchID := fs.Arg(0)

	logPath := persistlog.MatchPath(*dataDir, matchID)
	rec, err := persistlog.ReadMatch(logPath)
	if err != nil {
		fail("read match log", err)
	}
	if rec.Result == nil {
		fail("archive", fmt.Errorf("match %s has no result entry; refusing to archive a running match", matchID))
	}

	artifacts := []string{logPath}
	statePath := filepath.Join(*dataDir, "matches", matchID+".state.zst")
	if _, err := os.Stat(statePath); err == nil {
		artifacts = append(artifacts, statePath)
	}

	dir, err := archive.ArchiveMatch(*dataDir, matchID, *rec.Result, artifacts...)
	if err != nil {
		fail("archive", err)
	}
	printJSON(struct {
		MatchID   string      `json:"match_id"`
		Dir       string      `json:"dir"`
		Artifacts []string    `json:"artifacts"`
		Result    game.Result `json:"result"`
	}{matchID, dir, artifacts, *rec.Result})
}
