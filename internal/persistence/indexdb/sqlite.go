// Package indexdb keeps a queryable sqlite index of matches: who played,
// how each one ended, and every accepted decision. It is a read model
// derived from the match logs; losing it loses nothing a replay cannot
// rebuild.
package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	persistlog "gridfall.gg/internal/persistence/log"
	"gridfall.gg/internal/sim/catalogs"
	"gridfall.gg/internal/sim/game"
	"gridfall.gg/internal/sim/tuning"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type reqKind int

const (
	reqMatch reqKind = iota + 1
	reqAction
	reqResult
)

type req struct {
	kind   reqKind
	match  matchRow
	action actionRow
	result resultRow
}

type matchRow struct {
	MatchID   string
	Mode      string
	Map       string
	Protocol  string
	LogPath   string
	StartedAt string
}

type actionRow struct {
	MatchID string
	Rec     game.ActionRecord
}

type resultRow struct {
	MatchID string
	Res     game.Result
	EndedAt string
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection belongs to the batch writer; the second serves read
	// queries (admin API, CLI) under WAL without waiting on the writer.
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// Generous buffer: a burst of short matches must not stall the engines.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads. NORMAL is a decent
	// durability/perf tradeoff for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS matches (
			match_id TEXT PRIMARY KEY,
			mode TEXT NOT NULL,
			map TEXT NOT NULL,
			protocol_version TEXT NOT NULL,
			log_path TEXT NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			winner INTEGER,
			reason TEXT,
			turns INTEGER,
			final_digest TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_matches_started ON matches(started_at);`,
		`CREATE TABLE IF NOT EXISTS actions (
			match_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			turn INTEGER NOT NULL,
			player INTEGER NOT NULL,
			request_id TEXT NOT NULL,
			request_type TEXT NOT NULL,
			decision_json TEXT NOT NULL,
			digest TEXT NOT NULL,
			PRIMARY KEY (match_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_actions_match_turn ON actions(match_id, turn);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// RecordMatchStart registers a match the moment its log is opened.
func (s *SQLiteIndex) RecordMatchStart(hdr persistlog.Header, logPath string) {
	if s == nil || s.closed.Load() {
		return
	}
	r := matchRow{
		MatchID:   hdr.MatchID,
		Mode:      hdr.Mode,
		Map:       hdr.Map,
		Protocol:  hdr.ProtocolVersion,
		LogPath:   logPath,
		StartedAt: hdr.StartedAt.UTC().Format(time.RFC3339Nano),
	}
	select {
	case s.ch <- req{kind: reqMatch, match: r}:
	default:
		// Drop if the indexer falls behind; match logs remain the source of truth.
	}
}

func (s *SQLiteIndex) writeAction(matchID string, rec game.ActionRecord) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqAction, action: actionRow{MatchID: matchID, Rec: rec}}:
	default:
	}
}

func (s *SQLiteIndex) writeResult(matchID string, res game.Result) {
	if s == nil || s.closed.Load() {
		return
	}
	r := resultRow{
		MatchID: matchID,
		Res:     res,
		EndedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	select {
	case s.ch <- req{kind: reqResult, result: r}:
	default:
	}
}

// MatchLogger adapts the index to the engine's match logger interface for
// one match. Writes are queued; a full queue drops rather than stalls.
func (s *SQLiteIndex) MatchLogger(matchID string) game.MatchLogger {
	return matchSink{s: s, matchID: matchID}
}

type matchSink struct {
	s       *SQLiteIndex
	matchID string
}

func (m matchSink) WriteAction(rec game.ActionRecord) error {
	m.s.writeAction(m.matchID, rec)
	return nil
}

func (m matchSink) WriteResult(res game.Result) error {
	m.s.writeResult(m.matchID, res)
	return nil
}

// UpsertCatalogs stores the raw blueprint files, their digests, and the
// effective tuning, so any row in this database can be traced back to the
// exact data the matches ran on.
func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	raw := map[string][]byte{}
	read := func(name, path string) {
		b, err := os.ReadFile(path)
		if err != nil {
			return
		}
		raw[name] = b
	}
	if configDir != "" {
		read("units", filepath.Join(configDir, "units.json"))
		read("buildings", filepath.Join(configDir, "buildings.json"))
		read("maps", filepath.Join(configDir, "maps.json"))
		read("modes", filepath.Join(configDir, "modes.json"))
	}

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if b := raw["units"]; len(b) > 0 {
		rows = append(rows, kv{name: "units", digest: cats.Units.Digest, json: b})
	}
	if b := raw["buildings"]; len(b) > 0 {
		rows = append(rows, kv{name: "buildings", digest: cats.Buildings.Digest, json: b})
	}
	if b := raw["maps"]; len(b) > 0 {
		rows = append(rows, kv{name: "maps", digest: cats.Maps.Digest, json: b})
	}
	if b := raw["modes"]; len(b) > 0 {
		rows = append(rows, kv{name: "modes", digest: cats.Modes.Digest, json: b})
	}
	{
		// Tuning: store the values actually applied, canonical JSON.
		b, _ := json.Marshal(tune)
		rows = append(rows, kv{name: "tuning", digest: tune.Digest(), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertMatch, _ := s.db.Prepare(`INSERT OR REPLACE INTO matches(match_id,mode,map,protocol_version,log_path,started_at) VALUES(?,?,?,?,?,?)`)
	insertAction, _ := s.db.Prepare(`INSERT OR REPLACE INTO actions(match_id,seq,turn,player,request_id,request_type,decision_json,digest) VALUES(?,?,?,?,?,?,?,?)`)
	updateResult, _ := s.db.Prepare(`UPDATE matches SET ended_at=?, winner=?, reason=?, turns=?, final_digest=? WHERE match_id=?`)
	defer func() {
		if insertMatch != nil {
			_ = insertMatch.Close()
		}
		if insertAction != nil {
			_ = insertAction.Close()
		}
		if updateResult != nil {
			_ = updateResult.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	// Players can sit on a decision for minutes. The idle timer commits a
	// half-full batch so readers see the last accepted actions promptly.
	idle := time.NewTicker(commitMaxWait)
	defer idle.Stop()

	for {
		var r req
		var ok bool
		select {
		case r, ok = <-s.ch:
			if !ok {
				commit()
				return
			}
		case <-idle.C:
			flushIfNeeded()
			continue
		}

		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqMatch:
			m := r.match
			if insertMatch != nil {
				if _, err := tx.Stmt(insertMatch).Exec(
					m.MatchID, m.Mode, m.Map, m.Protocol, m.LogPath, m.StartedAt,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqAction:
			a := r.action
			decJSON, _ := json.Marshal(a.Rec.Decision)
			if insertAction != nil {
				if _, err := tx.Stmt(insertAction).Exec(
					a.MatchID,
					a.Rec.Seq,
					a.Rec.Turn,
					a.Rec.Player,
					a.Rec.RequestID,
					a.Rec.RequestType,
					string(decJSON),
					a.Rec.Digest,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqResult:
			res := r.result
			if updateResult != nil {
				if _, err := tx.Stmt(updateResult).Exec(
					res.EndedAt,
					res.Res.Winner,
					res.Res.Reason,
					res.Res.Turns,
					res.Res.Digest,
					res.MatchID,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		flushIfNeeded()
	}
}
