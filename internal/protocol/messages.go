package protocol

import "encoding/json"

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	PlayerName      string `json:"player_name"`
	Seat            int    `json:"seat,omitempty"` // requested player id; 0 = first free
	Spectator       bool   `json:"spectator,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	PlayerID        int            `json:"player_id"` // 0 for spectators
	Mode            string         `json:"mode"`
	Map             string         `json:"map"`
	MatchID         string         `json:"match_id"`
	Catalogs        CatalogDigests `json:"catalogs"`
}

type CatalogDigests struct {
	UnitsDigest     string `json:"units_digest"`
	BuildingsDigest string `json:"buildings_digest"`
	MapsDigest      string `json:"maps_digest"`
	ModesDigest     string `json:"modes_digest"`
	TuningDigest    string `json:"tuning_digest,omitempty"`
}

// REQUEST (server -> client): the engine is suspended on a decision.
type RequestMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	Request         DecisionRequest `json:"request"`
}

// SUBMIT (client -> server): answer to an outstanding request.
type SubmitMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	RequestID       string   `json:"request_id"`
	Decision        Decision `json:"decision"`
}

// STATE (server -> client): full snapshot push, sent after each accepted
// decision and on join.
type StateMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	Turn            int             `json:"turn"`
	CurrentPlayer   int             `json:"current_player"`
	Digest          string          `json:"digest"`
	Snapshot        json.RawMessage `json:"snapshot"`
}

// RESULT (server -> client): the match is over.
type ResultMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Winner          int    `json:"winner"` // 0 = draw
	Reason          string `json:"reason"`
	Turns           int    `json:"turns"`
	Digest          string `json:"digest"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
}
