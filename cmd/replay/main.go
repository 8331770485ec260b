package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	persistlog "turbinecraft.ai/internal/persistence/log"
	"turbinecraft.ai/internal/persistence/snapshot"
	"turbinecraft.ai/internal/sim/catalogs"
	"turbinecraft.ai/internal/sim/tuning"
	"turbinecraft.ai/internal/sim/world"
)

var errStop = errors.New("stop")

func main() {
	var (
		snapPath   = flag.String("snapshot", "", "path to .snap.zst")
		ticksDir   = flag.String("ticks", "", "dir containing ticks-*.jsonl.zst (default: <snapshot dir>/../ticks)")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		fromTick   = flag.Uint64("from_tick", 0, "start verifying from tick (inclusive, optional)")
		toTick     = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
		headerOnly = flag.Bool("header", false, "print the snapshot summary and exit")
	)
	flag.Parse()

	if *snapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(*snapPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	fmt.Printf("snapshot v%d world=%s tick=%d parts=%d controllers=%d blocks=%d unloaded=%d\n",
		snap.Header.Version, snap.Header.WorldID, snap.Header.Tick,
		len(snap.Parts), len(snap.Controllers), len(snap.Blocks), len(snap.Unloaded))
	if *headerOnly {
		return
	}

	dir := *ticksDir
	if dir == "" {
		dir = filepath.Join(filepath.Dir(filepath.Dir(*snapPath)), "ticks")
	}

	cats, err := catalogs.Load(*configDir, "")
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}
	tp := *tuningPath
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load tuning:", err)
		os.Exit(1)
	}

	w, err := world.New(world.WorldConfig{ID: snap.Header.WorldID, Tuning: tune}, cats)
	if err != nil {
		fmt.Fprintln(os.Stderr, "world:", err)
		os.Exit(1)
	}
	if err := w.ImportSnapshot(snap); err != nil {
		fmt.Fprintln(os.Stderr, "import snapshot:", err)
		os.Exit(1)
	}

	files, err := persistlog.Files(dir, "ticks")
	if err != nil {
		fmt.Fprintln(os.Stderr, "list ticks:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no tick files found in", dir)
		os.Exit(1)
	}

	checked, err := replay(context.Background(), w, files, *fromTick, *toTick)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: checked=%d ticks (from snapshot tick=%d)\n", checked, snap.Header.Tick)
}

// replay steps w through the logged ticks after its current tick and compares
// each state digest with the logged one.
func replay(ctx context.Context, w *world.World, files []string, verifyFrom, toTick uint64) (uint64, error) {
	startTick := w.CurrentTick()
	if verifyFrom == 0 {
		verifyFrom = startTick
	}
	var checked uint64
	for _, path := range files {
		err := persistlog.ReadJSONL(path, func(entry world.TickLogEntry) error {
			if entry.Tick < startTick {
				return nil
			}
			if toTick != 0 && entry.Tick > toTick {
				return errStop
			}
			if entry.Tick != w.CurrentTick() {
				return fmt.Errorf("tick mismatch: want=%d got=%d (file=%s)", w.CurrentTick(), entry.Tick, filepath.Base(path))
			}
			tick, digest := w.StepOnce(ctx, entry.Commands)
			if tick != entry.Tick {
				return fmt.Errorf("internal tick mismatch: stepped=%d entry=%d (file=%s)", tick, entry.Tick, filepath.Base(path))
			}
			if tick >= verifyFrom {
				checked++
				if digest != entry.Digest {
					return fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", tick, digest, entry.Digest)
				}
			}
			return nil
		})
		if errors.Is(err, errStop) {
			break
		}
		if err != nil {
			return checked, err
		}
	}
	return checked, nil
}
