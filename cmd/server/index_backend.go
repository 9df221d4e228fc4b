package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gridfall.gg/internal/persistence/indexdb"
	"gridfall.gg/internal/sim/tuning"
)

// openMatchIndex picks the index backend. The tuning file can turn indexing
// off entirely; GF_INDEX_BACKEND overrides the choice for one run.
func openMatchIndex(dataDir string, tune tuning.Tuning, disableDB bool) (*indexdb.SQLiteIndex, error) {
	if disableDB || !tune.Log.IndexDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("GF_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		path := strings.TrimSpace(tune.Log.IndexDBPath)
		if path == "" {
			path = filepath.Join(dataDir, "index", "matches.sqlite")
		}
		return indexdb.OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unsupported GF_INDEX_BACKEND: %s", backend)
	}
}
