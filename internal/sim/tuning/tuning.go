package tuning

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	MaxTurns int `yaml:"max_turns"`

	Server Server `yaml:"server"`
	Log    Log    `yaml:"log"`
}

type Server struct {
	ListenAddr     string `yaml:"listen_addr"`
	WriteTimeoutMs int    `yaml:"write_timeout_ms"`
	PingPeriodS    int    `yaml:"ping_period_s"`
	SendBuffer     int    `yaml:"send_buffer"`
}

type Log struct {
	Dir         string `yaml:"dir"`
	MatchLog    bool   `yaml:"match_log"`
	IndexDB     bool   `yaml:"index_db"`
	IndexDBPath string `yaml:"index_db_path"`
}

// Defaults mirror the values shipped in configs/tuning.yaml, for running
// without a tuning file at all.
func Defaults() Tuning {
	return Tuning{
		ProtocolVersion: "1.0",
		MaxTurns:        200,
		Server: Server{
			ListenAddr:     ":8777",
			WriteTimeoutMs: 10000,
			PingPeriodS:    30,
			SendBuffer:     64,
		},
		Log: Log{
			Dir:      "./data",
			MatchLog: true,
			IndexDB:  true,
		},
	}
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// Digest identifies the effective tuning values: sha256 over canonical JSON.
// The same value lands in WELCOME messages, match log headers, and the index,
// so a replay can refuse to run against drifted knobs.
func (t Tuning) Digest() string {
	b, _ := json.Marshal(t)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// WriteTimeout converts the millisecond knob, with a floor for zero values.
func (t Tuning) WriteTimeout() time.Duration {
	if t.Server.WriteTimeoutMs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(t.Server.WriteTimeoutMs) * time.Millisecond
}

// PingPeriod converts the seconds knob, with a floor for zero values.
func (t Tuning) PingPeriod() time.Duration {
	if t.Server.PingPeriodS <= 0 {
		return 30 * time.Second
	}
	return time.Duration(t.Server.PingPeriodS) * time.Second
}
