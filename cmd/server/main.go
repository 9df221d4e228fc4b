package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"gridfall.gg/internal/persistence/archive"
	persistlog "gridfall.gg/internal/persistence/log"
	"gridfall.gg/internal/persistence/snapshot"
	"gridfall.gg/internal/protocol"
	"gridfall.gg/internal/sim/catalogs"
	"gridfall.gg/internal/sim/game"
	"gridfall.gg/internal/sim/tuning"
	"gridfall.gg/internal/transport/httpapi"
	"gridfall.gg/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", "", "http listen address (default: tuning server.listen_addr)")
		mode       = flag.String("mode", "standard", "game mode to host")
		matchFlag  = flag.String("match", "", "match id (default: generated)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataFlag   = flag.String("data", "", "runtime data directory (default: tuning log.dir)")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite match index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", tp)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}

	dataDir := strings.TrimSpace(*dataFlag)
	if dataDir == "" {
		dataDir = strings.TrimSpace(tune.Log.Dir)
	}
	if dataDir == "" {
		dataDir = "./data"
	}
	_ = os.MkdirAll(dataDir, 0o755)

	listen := strings.TrimSpace(*addr)
	if listen == "" {
		listen = strings.TrimSpace(tune.Server.ListenAddr)
	}
	if listen == "" {
		listen = ":8777"
	}

	matchID := strings.TrimSpace(*matchFlag)
	if matchID == "" {
		matchID = newMatchID()
	}

	// Read-model index (never feeds back into the match).
	idx, err := openMatchIndex(dataDir, tune, *disableDB)
	if err != nil {
		logger.Fatalf("open match index: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalogs(*configDir, cats, tune); err != nil {
			logger.Printf("match index: upsert catalogs: %v", err)
		}
	}

	mirror, err := buildMirrorRuntime(dataDir, logger)
	if err != nil {
		logger.Fatalf("init mirror: %v", err)
	}
	defer mirror.Close()

	g, err := game.New(game.Config{Mode: *mode, MaxTurns: tune.MaxTurns}, cats, logger)
	if err != nil {
		logger.Fatalf("game: %v", err)
	}

	digests := protocol.CatalogDigests{
		UnitsDigest:     cats.Units.Digest,
		BuildingsDigest: cats.Buildings.Digest,
		MapsDigest:      cats.Maps.Digest,
		ModesDigest:     cats.Modes.Digest,
		TuningDigest:    tune.Digest(),
	}
	hdr := persistlog.Header{
		MatchID:         matchID,
		Mode:            *mode,
		Map:             g.ModeDef().Map,
		ProtocolVersion: protocol.Version,
		Catalogs:        digests,
		StartedAt:       time.Now().UTC(),
	}

	var matchLog *persistlog.MatchWriter
	var sinkA, sinkB game.MatchLogger
	if tune.Log.MatchLog {
		matchLog, err = persistlog.NewMatchWriter(dataDir, hdr)
		if err != nil {
			logger.Fatalf("match log: %v", err)
		}
		defer matchLog.Close()
		sinkA = matchLog
	}
	if idx != nil {
		logPath := ""
		if matchLog != nil {
			logPath = matchLog.Path()
		}
		idx.RecordMatchStart(hdr, logPath)
		sinkB = idx.MatchLogger(matchID)
	}
	g.SetMatchLogger(multiMatchLogger{a: sinkA, b: sinkB})

	hub := ws.NewHub(g, matchID, digests, tune.Server.SendBuffer, logger)

	ctx, cancel := signalContext()
	defer cancel()

	go func() {
		res, err := hub.Run(ctx)
		if err != nil {
			if err != context.Canceled {
				logger.Printf("match stopped: %v", err)
			}
			return
		}

		// Post-match artifacts. The engine goroutine is done, so reading
		// final state here is safe.
		statePath := filepath.Join(dataDir, "matches", matchID+".state.zst")
		if err := snapshot.Write(statePath, matchID, g.ExportSnapshot()); err != nil {
			logger.Printf("state artifact: %v", err)
			statePath = ""
		}

		logPath := ""
		if matchLog != nil {
			_ = matchLog.Close()
			logPath = matchLog.Path()
		}

		archiveDir, err := archive.ArchiveMatch(dataDir, matchID, *res, logPath, statePath)
		if err != nil {
			logger.Printf("archive match: %v", err)
		}

		enqueueIfExists(mirror, logPath)
		enqueueIfExists(mirror, statePath)
		if archiveDir != "" {
			enqueueIfExists(mirror, filepath.Join(archiveDir, "meta.json"))
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		st := hub.Status()
		done := 0
		if st.Done {
			done = 1
		}

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP gridfall_match_turn Current turn number.\n")
		fmt.Fprintf(rw, "# TYPE gridfall_match_turn gauge\n")
		fmt.Fprintf(rw, "gridfall_match_turn{match=%q} %d\n", matchID, st.Turn)

		fmt.Fprintf(rw, "# HELP gridfall_match_current_player Seat whose turn it is.\n")
		fmt.Fprintf(rw, "# TYPE gridfall_match_current_player gauge\n")
		fmt.Fprintf(rw, "gridfall_match_current_player{match=%q} %d\n", matchID, st.CurrentPlayer)

		fmt.Fprintf(rw, "# HELP gridfall_match_done Whether the match has a result.\n")
		fmt.Fprintf(rw, "# TYPE gridfall_match_done gauge\n")
		fmt.Fprintf(rw, "gridfall_match_done{match=%q} %d\n", matchID, done)

		fmt.Fprintf(rw, "# HELP gridfall_sessions Connected websocket sessions.\n")
		fmt.Fprintf(rw, "# TYPE gridfall_sessions gauge\n")
		fmt.Fprintf(rw, "gridfall_sessions{match=%q} %d\n", matchID, st.Sessions)

		fmt.Fprintf(rw, "# HELP gridfall_seats_taken Player seats currently held.\n")
		fmt.Fprintf(rw, "# TYPE gridfall_seats_taken gauge\n")
		fmt.Fprintf(rw, "gridfall_seats_taken{match=%q} %d\n", matchID, st.SeatsTaken)

		writeMirrorMetrics(rw, mirror)
	})

	enableAdminHTTP := envBool("GF_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("GF_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP && idx != nil {
		// Local-only read API over the match index.
		api := httpapi.NewServer(idx, logger)
		mux.HandleFunc("/v1/matches", api.MatchesHandler())
		mux.HandleFunc("/v1/matches/", api.MatchesHandler())
	} else {
		logger.Printf("admin endpoints disabled")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (GF_ENABLE_PPROF_HTTP=false)")
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(hub, tune, logger).Handler())

	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("match %s (%s) listening on %s", matchID, *mode, listen)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func newMatchID() string {
	var b [3]byte
	_, _ = rand.Read(b[:])
	return "m-" + time.Now().UTC().Format("20060102-150405") + "-" + hex.EncodeToString(b[:])
}

func enqueueIfExists(m *mirrorRuntime, path string) {
	if m == nil || !m.enabled || path == "" {
		return
	}
	if _, err := os.Stat(path); err == nil {
		m.Enqueue(path)
	}
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func writeMirrorMetrics(rw http.ResponseWriter, mirror *mirrorRuntime) {
	if mirror == nil || !mirror.enabled {
		return
	}
	s := mirror.Stats()

	fmt.Fprintf(rw, "# HELP gridfall_mirror_queue_depth Current mirror queue depth.\n")
	fmt.Fprintf(rw, "# TYPE gridfall_mirror_queue_depth gauge\n")
	fmt.Fprintf(rw, "gridfall_mirror_queue_depth %d\n", s.QueueDepth)

	fmt.Fprintf(rw, "# HELP gridfall_mirror_queue_capacity Mirror queue capacity.\n")
	fmt.Fprintf(rw, "# TYPE gridfall_mirror_queue_capacity gauge\n")
	fmt.Fprintf(rw, "gridfall_mirror_queue_capacity %d\n", s.QueueCapacity)

	fmt.Fprintf(rw, "# HELP gridfall_mirror_enqueued_total Total mirror enqueue attempts.\n")
	fmt.Fprintf(rw, "# TYPE gridfall_mirror_enqueued_total counter\n")
	fmt.Fprintf(rw, "gridfall_mirror_enqueued_total %d\n", s.EnqueuedTotal)

	fmt.Fprintf(rw, "# HELP gridfall_mirror_dropped_total Total files dropped because the queue stayed saturated.\n")
	fmt.Fprintf(rw, "# TYPE gridfall_mirror_dropped_total counter\n")
	fmt.Fprintf(rw, "gridfall_mirror_dropped_total %d\n", s.DroppedTotal)

	fmt.Fprintf(rw, "# HELP gridfall_mirror_upload_success_total Total successful uploads.\n")
	fmt.Fprintf(rw, "# TYPE gridfall_mirror_upload_success_total counter\n")
	fmt.Fprintf(rw, "gridfall_mirror_upload_success_total %d\n", s.UploadSuccessTotal)

	fmt.Fprintf(rw, "# HELP gridfall_mirror_upload_fail_total Total uploads failed after retries.\n")
	fmt.Fprintf(rw, "# TYPE gridfall_mirror_upload_fail_total counter\n")
	fmt.Fprintf(rw, "gridfall_mirror_upload_fail_total %d\n", s.UploadFailTotal)

	fmt.Fprintf(rw, "# HELP gridfall_mirror_last_success_unix Unix timestamp of the last successful upload.\n")
	fmt.Fprintf(rw, "# TYPE gridfall_mirror_last_success_unix gauge\n")
	fmt.Fprintf(rw, "gridfall_mirror_last_success_unix %d\n", s.LastSuccessUnix)

	fmt.Fprintf(rw, "# HELP gridfall_mirror_last_error_unix Unix timestamp of the last failed upload.\n")
	fmt.Fprintf(rw, "# TYPE gridfall_mirror_last_error_unix gauge\n")
	fmt.Fprintf(rw, "gridfall_mirror_last_error_unix %d\n", s.LastErrorUnix)
}

// multiMatchLogger fans engine records out to the durable log and the index.
// Either side may be nil.
type multiMatchLogger struct {
	a game.MatchLogger
	b game.MatchLogger
}

func (m multiMatchLogger) WriteAction(rec game.ActionRecord) error {
	if m.a != nil {
		_ = m.a.WriteAction(rec)
	}
	if m.b != nil {
		_ = m.b.WriteAction(rec)
	}
	return nil
}

func (m multiMatchLogger) WriteResult(res game.Result) error {
	if m.a != nil {
		_ = m.a.WriteResult(res)
	}
	if m.b != nil {
		_ = m.b.WriteResult(res)
	}
	return nil
}
