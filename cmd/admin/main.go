// Command admin is the operator CLI for match data on disk: the sqlite
// index, the compressed match logs, and the per-match artifacts. Output is
// JSON lines, one object per row, so it pipes into jq.
package main

import (
	"encoding/json"
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "matches":
		matchesCmd(args)
	case "match":
		matchCmd(args)
	case "verify":
		verifyCmd(args)
	case "log":
		logCmd(args)
	case "snapshot":
		snapshotCmd(args)
	case "archive":
		archiveCmd(args)
	default:
		fmt.Fprintln(os.Stderr, "unknown command:", cmd)
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: admin <command> [flags]

commands:
  matches   [-data DIR] [-limit N]      list recent matches from the index
  match     [-data DIR] <match_id>      one match row plus its decisions
  verify    [-data DIR] <match_id>      compare index rows against the match log
  log       <path>                      decode a match log (.jsonl.zst)
  snapshot  <path>                      dump a state artifact (.state.zst)
  archive   [-data DIR] <match_id>      archive a finished match's artifacts`)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func fail(prefix string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", prefix, err)
	os.Exit(1)
}
