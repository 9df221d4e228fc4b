// Package log persists match records: one compressed JSONL file per match,
// opened by a header entry, one entry per accepted decision, closed by a
// result entry. These files are the replay source of truth; the sqlite index
// is derived from them and can always be rebuilt.
package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"gridfall.gg/internal/protocol"
	"gridfall.gg/internal/sim/game"
)

// Header identifies the match and pins the data it was played against. A
// replay refuses to run against catalogs with different digests.
type Header struct {
	MatchID         string                  `json:"match_id"`
	Mode            string                  `json:"mode"`
	Map             string                  `json:"map"`
	ProtocolVersion string                  `json:"protocol_version"`
	Catalogs        protocol.CatalogDigests `json:"catalogs"`
	StartedAt       time.Time               `json:"started_at"`
}

// Entry is one line of a match file.
type Entry struct {
	Type   string             `json:"type"`
	Header *Header            `json:"header,omitempty"`
	Action *game.ActionRecord `json:"action,omitempty"`
	Result *game.Result       `json:"result,omitempty"`
}

const (
	EntryHeader = "header"
	EntryAction = "action"
	EntryResult = "result"
)

// MatchPath is where a match's log lives under the data directory.
func MatchPath(baseDir, matchID string) string {
	return filepath.Join(baseDir, "matches", matchID+".jsonl.zst")
}

// JSONLZstdWriter appends JSON lines to one zstd-compressed file, flushing
// after every entry so a crash loses at most the unwritten line.
type JSONLZstdWriter struct {
	mu  sync.Mutex
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
}

func NewJSONLZstdWriter(path string) (*JSONLZstdWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &JSONLZstdWriter{
		f:   f,
		enc: enc,
		w:   bufio.NewWriterSize(enc, 128*1024),
	}, nil
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return fmt.Errorf("matchlog: write after close")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	return err1
}

// MatchWriter records one match. It satisfies the engine's match logger
// interface; calls arrive on the engine goroutine.
type MatchWriter struct {
	w    *JSONLZstdWriter
	path string
}

func NewMatchWriter(baseDir string, hdr Header) (*MatchWriter, error) {
	path := MatchPath(baseDir, hdr.MatchID)
	w, err := NewJSONLZstdWriter(path)
	if err != nil {
		return nil, err
	}
	if err := w.Write(Entry{Type: EntryHeader, Header: &hdr}); err != nil {
		_ = w.Close()
		return nil, err
	}
	return &MatchWriter{w: w, path: path}, nil
}

func (l *MatchWriter) Path() string { return l.path }

func (l *MatchWriter) WriteAction(rec game.ActionRecord) error {
	return l.w.Write(Entry{Type: EntryAction, Action: &rec})
}

func (l *MatchWriter) WriteResult(res game.Result) error {
	return l.w.Write(Entry{Type: EntryResult, Result: &res})
}

func (l *MatchWriter) Close() error { return l.w.Close() }

// MatchRecord is a fully loaded match file.
type MatchRecord struct {
	Header  Header
	Actions []game.ActionRecord
	Result  *game.Result
}

// ReadMatch loads a match file back. The result entry is optional: a match
// cut off mid-game has a header and actions only.
func ReadMatch(path string) (*MatchRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var rec MatchRecord
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("matchlog: %s line %d: %w", filepath.Base(path), line, err)
		}
		switch e.Type {
		case EntryHeader:
			if e.Header == nil {
				return nil, fmt.Errorf("matchlog: %s line %d: header entry without header", filepath.Base(path), line)
			}
			rec.Header = *e.Header
		case EntryAction:
			if e.Action == nil {
				return nil, fmt.Errorf("matchlog: %s line %d: action entry without action", filepath.Base(path), line)
			}
			rec.Actions = append(rec.Actions, *e.Action)
		case EntryResult:
			rec.Result = e.Result
		default:
			return nil, fmt.Errorf("matchlog: %s line %d: unknown entry type %q", filepath.Base(path), line, e.Type)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if rec.Header.MatchID == "" {
		return nil, fmt.Errorf("matchlog: %s: missing header entry", filepath.Base(path))
	}
	return &rec, nil
}
