package log

import (
	"path/filepath"
	"testing"
	"time"

	"turbinecraft.ai/internal/sim/world"
)

func TestJSONLZstdWriter_RotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "ticks")
	now := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	for tick := uint64(0); tick < 3; tick++ {
		if err := w.Write(world.TickLogEntry{Tick: tick, Digest: "d"}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	now = now.Add(2 * time.Minute)
	if err := w.Write(world.TickLogEntry{Tick: 3, Digest: "d"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := Files(dir, "ticks")
	if err != nil {
		t.Fatalf("files: %v", err)
	}
	if len(files) != 2 || filepath.Base(files[0]) != "ticks-2026-03-01-10.jsonl.zst" {
		t.Fatalf("files: got %v", files)
	}
	var ticks []uint64
	for _, f := range files {
		err := ReadJSONL(f, func(e world.TickLogEntry) error {
			ticks = append(ticks, e.Tick)
			return nil
		})
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
	}
	if len(ticks) != 4 || ticks[3] != 3 {
		t.Fatalf("ticks: got %v", ticks)
	}
}

func TestEventLogger_AppendsAcrossSessions(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 2; i++ {
		l := NewEventLogger(dir)
		pos := [3]int{1, 2, 3}
		if err := l.WriteEvent(world.AssemblyEvent{Tick: uint64(i), Type: "transition", To: "assembled", Pos: &pos}); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := l.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}
	files, err := Files(filepath.Join(dir, "events"), "events")
	if err != nil || len(files) == 0 {
		t.Fatalf("files: got %v err=%v", files, err)
	}
	var got []world.AssemblyEvent
	for _, f := range files {
		if err := ReadJSONL(f, func(e world.AssemblyEvent) error { got = append(got, e); return nil }); err != nil {
			t.Fatalf("read: %v", err)
		}
	}
	if len(got) != 2 || got[1].Pos == nil || *got[1].Pos != [3]int{1, 2, 3} {
		t.Fatalf("events: got %+v", got)
	}
}
