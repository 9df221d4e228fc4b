// Package archive moves finished-match artifacts into a dated retention
// tree so the live matches directory stays small.
package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gridfall.gg/internal/sim/game"
)

type MatchArchiveMeta struct {
	MatchID     string   `json:"match_id"`
	Winner      int      `json:"winner"`
	Reason      string   `json:"reason"`
	Turns       int      `json:"turns"`
	FinalDigest string   `json:"final_digest"`
	Artifacts   []string `json:"artifacts"`
	CreatedAt   string   `json:"created_at"`
}

// ArchiveMatch copies a finished match's artifacts into
// `dataDir/archives/<yyyy-mm>/<matchID>/` and writes a meta.json beside
// them. Artifacts that do not exist are skipped, not errors: a match with
// indexing disabled still archives its log.
func ArchiveMatch(dataDir, matchID string, res game.Result, artifacts ...string) (string, error) {
	if matchID == "" {
		return "", fmt.Errorf("empty match id")
	}

	now := time.Now().UTC()
	archiveDir := filepath.Join(dataDir, "archives", now.Format("2006-01"), matchID)
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", err
	}

	meta := MatchArchiveMeta{
		MatchID:     matchID,
		Winner:      res.Winner,
		Reason:      res.Reason,
		Turns:       res.Turns,
		FinalDigest: res.Digest,
		CreatedAt:   now.Format(time.RFC3339Nano),
	}
	for _, src := range artifacts {
		if src == "" {
			continue
		}
		if _, err := os.Stat(src); err != nil {
			continue
		}
		dst := filepath.Join(archiveDir, filepath.Base(src))
		if err := copyFile(src, dst); err != nil {
			return "", err
		}
		meta.Artifacts = append(meta.Artifacts, filepath.Base(dst))
	}

	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644); err != nil {
		return "", err
	}
	return archiveDir, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
