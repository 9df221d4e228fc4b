// Package snapshot reads and writes the final-state artifact dropped next
// to each match log. It is a convenience view for operators and tooling;
// the action log stays the source of truth for reconstruction.
package snapshot

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"gridfall.gg/internal/sim/game"
)

// Header is the first line inside the stream, so tooling can identify an
// artifact without decoding the full state.
type Header struct {
	Version int    `json:"version"`
	MatchID string `json:"match_id"`
	Turn    int    `json:"turn"`
	Digest  string `json:"digest"`
}

func Write(path, matchID string, snap game.SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 64*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(Header{Version: 1, MatchID: matchID, Turn: snap.Turn, Digest: snap.Digest})
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := json.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("state encode: %w", err)
	}
	return nil
}

// Read restores an artifact and checks that the state still carries the
// digest the header promises.
func Read(path string) (Header, game.SnapshotV1, error) {
	var hdr Header
	var snap game.SnapshotV1

	f, err := os.Open(path)
	if err != nil {
		return hdr, snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return hdr, snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return hdr, snap, fmt.Errorf("state header: %w", err)
	}
	if err := json.Unmarshal(line, &hdr); err != nil {
		return hdr, snap, fmt.Errorf("state header: %w", err)
	}
	if err := json.NewDecoder(br).Decode(&snap); err != nil {
		return hdr, snap, fmt.Errorf("state decode: %w", err)
	}
	if hdr.Digest != snap.Digest {
		return hdr, snap, fmt.Errorf("digest mismatch: header %s, state %s", hdr.Digest, snap.Digest)
	}
	return hdr, snap, nil
}
