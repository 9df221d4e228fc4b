// Package httpapi serves the loopback-only read API over the match index.
// It never touches a running engine; every response comes from the sqlite
// read model, so querying mid-match is safe.
package httpapi

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"

	"gridfall.gg/internal/persistence/indexdb"
	"gridfall.gg/internal/sim/game"
)

type Server struct {
	idx *indexdb.SQLiteIndex
	log *log.Logger
}

func NewServer(idx *indexdb.SQLiteIndex, logger *log.Logger) *Server {
	return &Server{idx: idx, log: logger}
}

// MatchesHandler serves /v1/matches, /v1/matches/<id> and
// /v1/matches/<id>/actions. Mount it on both the bare path and the
// trailing-slash pattern.
func (s *Server) MatchesHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/matches"), "/")
		switch {
		case rest == "":
			s.listMatches(rw, r)
		case strings.HasSuffix(rest, "/actions"):
			s.matchActions(rw, strings.TrimSuffix(rest, "/actions"))
		case !strings.Contains(rest, "/"):
			s.match(rw, rest)
		default:
			http.NotFound(rw, r)
		}
	}
}

func (s *Server) listMatches(rw http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			http.Error(rw, "bad limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	ms, err := s.idx.RecentMatches(limit)
	if err != nil {
		s.internalError(rw, err)
		return
	}
	if ms == nil {
		ms = []indexdb.MatchSummary{}
	}
	writeJSON(rw, struct {
		Matches []indexdb.MatchSummary `json:"matches"`
	}{Matches: ms})
}

func (s *Server) match(rw http.ResponseWriter, matchID string) {
	m, err := s.idx.Match(matchID)
	if err != nil {
		s.internalError(rw, err)
		return
	}
	if m == nil {
		http.Error(rw, "unknown match", http.StatusNotFound)
		return
	}
	writeJSON(rw, m)
}

func (s *Server) matchActions(rw http.ResponseWriter, matchID string) {
	m, err := s.idx.Match(matchID)
	if err != nil {
		s.internalError(rw, err)
		return
	}
	if m == nil {
		http.Error(rw, "unknown match", http.StatusNotFound)
		return
	}

	acts, err := s.idx.MatchActions(matchID)
	if err != nil {
		s.internalError(rw, err)
		return
	}
	if acts == nil {
		acts = []game.ActionRecord{}
	}
	writeJSON(rw, struct {
		MatchID string              `json:"match_id"`
		Actions []game.ActionRecord `json:"actions"`
	}{MatchID: matchID, Actions: acts})
}

func (s *Server) internalError(rw http.ResponseWriter, err error) {
	s.log.Printf("httpapi: %v", err)
	http.Error(rw, "internal error", http.StatusInternalServerError)
}

func writeJSON(rw http.ResponseWriter, v any) {
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(v)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
