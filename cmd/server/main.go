package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"turbinecraft.ai/internal/observability"
	persistlog "turbinecraft.ai/internal/persistence/log"
	"turbinecraft.ai/internal/persistence/snapshot"
	"turbinecraft.ai/internal/sim/catalogs"
	"turbinecraft.ai/internal/sim/tuning"
	"turbinecraft.ai/internal/sim/world"
	"turbinecraft.ai/internal/transport/observer"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "world_1", "world id")
		configDir  = flag.String("configs", "./configs", "config directory")
		schemaDir  = flag.String("schemas", "./schemas", "schema directory (empty to skip catalog validation)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable indexing (ticks + events + catalogs + snapshot metadata)")
		remote     = flag.Bool("allow_remote", false, "serve observer websocket and commands to non-loopback clients")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir, *schemaDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	_ = os.MkdirAll(worldDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(worldDir)
	}

	tune, tuneErr := tuning.Load(tp)
	if tuneErr != nil {
		if snapshotToLoad == "" || !os.IsNotExist(tuneErr) {
			logger.Fatalf("load tuning: %v", tuneErr)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	// Optional: read-model index backend (does not affect sim determinism).
	idx, err := openRuntimeIndex(worldDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalogs(*configDir, cats, tune); err != nil {
			logger.Printf("index backend: upsert catalogs: %v", err)
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	tracingCfg := observability.TracingConfigFromEnv()
	shutdownTracing, err := observability.InitTracing(ctx, tracingCfg, logger)
	if err != nil {
		logger.Fatalf("init tracing: %v", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, logger)

	w, err := world.New(world.WorldConfig{
		ID:                 *worldID,
		TickRateHz:         tune.TickRateHz,
		SnapshotEveryTicks: tune.SnapshotEveryTicks,
		Tuning:             tune,
	}, cats)
	if err != nil {
		logger.Fatalf("world: %v", err)
	}
	w.SetLogger(log.New(os.Stdout, "[world] ", log.LstdFlags|log.Lmicroseconds))

	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if snap.Header.WorldID != "" && snap.Header.WorldID != *worldID {
			logger.Fatalf("snapshot world id mismatch: flag=%s snap=%s", *worldID, snap.Header.WorldID)
		}
		if err := w.ImportSnapshot(snap); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s tick=%d", filepath.Base(snapshotToLoad), w.CurrentTick())
	}

	reg := prometheus.NewRegistry()
	collector, err := observability.NewWorldCollector(reg)
	if err != nil {
		logger.Fatalf("metrics: %v", err)
	}
	w.SetValidationHook(collector.ObserveValidation)

	tickLog := persistlog.NewTickLogger(worldDir)
	eventLog := persistlog.NewEventLogger(worldDir)
	defer tickLog.Close()
	defer eventLog.Close()
	var tickIdx world.TickLogger
	var eventIdx world.EventLogger
	if idx != nil {
		tickIdx, eventIdx = idx, idx
	}
	w.SetTickLogger(multiTickLogger{a: tickLog, b: tickIdx})
	w.SetEventLogger(multiEventLogger{a: eventLog, b: eventIdx})

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-snapCh:
				path := filepath.Join(worldDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Tick))
				if err := snapshot.WriteSnapshot(path, snap); err != nil {
					logger.Printf("snapshot write: %v", err)
					continue
				}
				if idx != nil {
					idx.RecordSnapshot(path, snap)
				}
			}
		}
	}()

	go func() {
		t := time.NewTicker(time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				collector.Update(w.Metrics())
			}
		}
	}()

	go func() {
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", collector.Handler())

	obsSrv := observer.NewServer(w, logger)
	obsSrv.AllowRemote = *remote
	obsSrv.Register(mux)

	enableAdminHTTP := envBool("TURBINE_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("TURBINE_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		registerAdmin(mux, w, idx)
	} else {
		logger.Printf("admin endpoints disabled (TURBINE_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s world=%s tick=%d", *addr, w.ID(), w.CurrentTick())
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

// registerAdmin mounts local-only endpoints. None of them affect simulation
// determinism.
func registerAdmin(mux *http.ServeMux, w *world.World, idx runtimeIndex) {
	mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(struct {
			WorldID string             `json:"world_id"`
			Tick    uint64             `json:"tick"`
			Metrics world.WorldMetrics `json:"metrics"`
		}{
			WorldID: w.ID(),
			Tick:    w.CurrentTick(),
			Metrics: w.Metrics(),
		})
	})
	mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		receipt, err := w.RequestSnapshot(ctx)
		rw.Header().Set("Content-Type", "application/json")
		if err != nil {
			rw.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
			return
		}
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "snapshot": receipt})
	})
	if idx == nil {
		return
	}
	mux.HandleFunc("/admin/v1/events", func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		id := strings.TrimSpace(r.URL.Query().Get("controller"))
		if id == "" {
			http.Error(rw, "controller required", http.StatusBadRequest)
			return
		}
		events, err := idx.ControllerEvents(r.Context(), id)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		if events == nil {
			events = []world.AssemblyEvent{}
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(events)
	})
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

func latestSnapshot(worldDir string) string {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		base := strings.TrimSuffix(name, ".snap.zst")
		tick, err := strconv.ParseUint(base, 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
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

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

type multiTickLogger struct {
	a world.TickLogger
	b world.TickLogger
}

func (m multiTickLogger) WriteTick(entry world.TickLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteTick(entry)
	}
	if m.b != nil {
		_ = m.b.WriteTick(entry)
	}
	return nil
}

type multiEventLogger struct {
	a world.EventLogger
	b world.EventLogger
}

func (m multiEventLogger) WriteEvent(e world.AssemblyEvent) error {
	if m.a != nil {
		_ = m.a.WriteEvent(e)
	}
	if m.b != nil {
		_ = m.b.WriteEvent(e)
	}
	return nil
}
