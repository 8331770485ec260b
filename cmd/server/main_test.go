package main

import (
	"os"
	"path/filepath"
	"testing"

	"turbinecraft.ai/internal/sim/world"
)

func TestLatestSnapshotPicksHighestTick(t *testing.T) {
	dir := t.TempDir()
	snaps := filepath.Join(dir, "snapshots")
	if err := os.MkdirAll(snaps, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, name := range []string{"9.snap.zst", "120.snap.zst", "30.snap.zst", "bogus.snap.zst", "200.json"} {
		if err := os.WriteFile(filepath.Join(snaps, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if got, want := latestSnapshot(dir), filepath.Join(snaps, "120.snap.zst"); got != want {
		t.Fatalf("latest: got %q want %q", got, want)
	}
	if got := latestSnapshot(t.TempDir()); got != "" {
		t.Fatalf("empty dir: got %q want \"\"", got)
	}
}

type countingLogger struct{ ticks, events int }

func (c *countingLogger) WriteTick(world.TickLogEntry) error {
	c.ticks++
	return nil
}

func (c *countingLogger) WriteEvent(world.AssemblyEvent) error {
	c.events++
	return nil
}

func TestMultiLoggersFanOut(t *testing.T) {
	a, b := &countingLogger{}, &countingLogger{}
	tl := multiTickLogger{a: a, b: b}
	el := multiEventLogger{a: a}
	_ = tl.WriteTick(world.TickLogEntry{Tick: 1})
	_ = el.WriteEvent(world.AssemblyEvent{Tick: 1})
	if a.ticks != 1 || b.ticks != 1 || a.events != 1 || b.events != 0 {
		t.Fatalf("fan out: got a=%+v b=%+v", *a, *b)
	}
}

func TestOpenRuntimeIndexDisabled(t *testing.T) {
	idx, err := openRuntimeIndex(t.TempDir(), true)
	if err != nil || idx != nil {
		t.Fatalf("disabled: got %v, %v", idx, err)
	}
	t.Setenv("TURBINE_INDEX_BACKEND", "mongo")
	if _, err := openRuntimeIndex(t.TempDir(), false); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}
