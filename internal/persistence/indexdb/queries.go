package indexdb

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"gridfall.gg/internal/sim/game"
)

// MatchSummary is one row of the matches table. Result fields are zero for
// a match still running.
type MatchSummary struct {
	MatchID     string `json:"match_id"`
	Mode        string `json:"mode"`
	Map         string `json:"map"`
	Protocol    string `json:"protocol_version"`
	LogPath     string `json:"log_path"`
	StartedAt   string `json:"started_at"`
	EndedAt     string `json:"ended_at,omitempty"`
	Winner      int    `json:"winner,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Turns       int    `json:"turns,omitempty"`
	FinalDigest string `json:"final_digest,omitempty"`
}

// Match returns one match row, or nil when unknown.
func (s *SQLiteIndex) Match(matchID string) (*MatchSummary, error) {
	row := s.db.QueryRow(`SELECT match_id,mode,map,protocol_version,log_path,started_at,ended_at,winner,reason,turns,final_digest
		FROM matches WHERE match_id=?`, matchID)
	m, err := scanMatch(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

// RecentMatches lists matches newest first.
func (s *SQLiteIndex) RecentMatches(limit int) ([]MatchSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`SELECT match_id,mode,map,protocol_version,log_path,started_at,ended_at,winner,reason,turns,final_digest
		FROM matches ORDER BY started_at DESC, match_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MatchSummary
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMatch(r rowScanner) (*MatchSummary, error) {
	var m MatchSummary
	var endedAt, reason, digest sql.NullString
	var winner, turns sql.NullInt64
	if err := r.Scan(&m.MatchID, &m.Mode, &m.Map, &m.Protocol, &m.LogPath, &m.StartedAt,
		&endedAt, &winner, &reason, &turns, &digest); err != nil {
		return nil, err
	}
	m.EndedAt = endedAt.String
	m.Winner = int(winner.Int64)
	m.Reason = reason.String
	m.Turns = int(turns.Int64)
	m.FinalDigest = digest.String
	return &m, nil
}

// MatchActions rebuilds a match's accepted decisions in sequence order.
func (s *SQLiteIndex) MatchActions(matchID string) ([]game.ActionRecord, error) {
	rows, err := s.db.Query(`SELECT seq,turn,player,request_id,request_type,decision_json,digest
		FROM actions WHERE match_id=? ORDER BY seq`, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []game.ActionRecord
	for rows.Next() {
		var rec game.ActionRecord
		var decJSON string
		if err := rows.Scan(&rec.Seq, &rec.Turn, &rec.Player, &rec.RequestID, &rec.RequestType, &decJSON, &rec.Digest); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(decJSON), &rec.Decision); err != nil {
			return nil, fmt.Errorf("indexdb: match %s seq %d: %w", matchID, rec.Seq, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
