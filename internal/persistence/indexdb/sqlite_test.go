package indexdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"turbinecraft.ai/internal/persistence/snapshot"
	"turbinecraft.ai/internal/sim/catalogs"
	"turbinecraft.ai/internal/sim/tuning"
	"turbinecraft.ai/internal/sim/world"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqTick, tick: world.TickLogEntry{Tick: 1}}

	_ = s.WriteTick(world.TickLogEntry{Tick: 2})
	_ = s.WriteEvent(world.AssemblyEvent{Tick: 2})
	s.RecordSnapshot("/tmp/2.snap.zst", snapshot.SnapshotV1{})

	st := s.Stats()
	if st.DropTickTotal != 1 || st.DropEventTotal != 1 || st.DropSnapshotTotal != 1 {
		t.Fatalf("drops: got %+v", st)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_WritesAndQueries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}

	cats, err := catalogs.Load("../../../configs", "")
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	if err := idx.UpsertCatalogs("../../../configs", cats, tuning.Defaults()); err != nil {
		t.Fatalf("UpsertCatalogs: %v", err)
	}

	_ = idx.WriteTick(world.TickLogEntry{
		Tick:   7,
		Digest: "abc",
		Commands: []world.Command{
			{Op: world.OpPlace, Pos: [3]int{1, 2, 3}, Kind: "turbine", Part: "casing"},
			{Op: world.OpFill, Controller: "c1", Fluid: "steam", Amount: 10},
		},
	})
	_ = idx.WriteEvent(world.AssemblyEvent{Tick: 7, Type: "created", Controller: "c1", Kind: "turbine"})
	_ = idx.WriteEvent(world.AssemblyEvent{Tick: 8, Type: "transition", Controller: "c1", Kind: "turbine", From: "disassembled", To: "assembled"})
	_ = idx.WriteEvent(world.AssemblyEvent{Tick: 9, Type: "merged", Controller: "c2", Kind: "turbine", Other: "c1"})
	idx.RecordSnapshot("/data/9.snap.zst", snapshot.SnapshotV1{
		Header: snapshot.Header{Version: snapshot.Version, WorldID: "w1", Tick: 9},
		Parts:  []snapshot.PartV1{{Kind: "turbine", Type: "casing", Controller: "c2"}},
		Controllers: []snapshot.ControllerV1{
			{ID: "c2", Kind: "turbine", State: "assembled", Machine: []byte(`{"v":1,"energy":5}`)},
		},
	})
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM commands WHERE tick=7`).Scan(&n); err != nil || n != 2 {
		t.Fatalf("commands: got %d err=%v", n, err)
	}
	var op string
	var x, y, z int
	if err := db.QueryRow(`SELECT op,x,y,z FROM commands WHERE tick=7 AND seq=0`).Scan(&op, &x, &y, &z); err != nil {
		t.Fatalf("command row: %v", err)
	}
	if op != "PLACE" || x != 1 || y != 2 || z != 3 {
		t.Fatalf("command row: got %s %d,%d,%d", op, x, y, z)
	}
	var machine string
	if err := db.QueryRow(`SELECT machine_json FROM controller_states WHERE tick=9 AND controller='c2'`).Scan(&machine); err != nil {
		t.Fatalf("controller state: %v", err)
	}
	if machine != `{"v":1,"energy":5}` {
		t.Fatalf("machine json: got %s", machine)
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM catalogs`).Scan(&n); err != nil || n != 4 {
		t.Fatalf("catalog rows: got %d err=%v", n, err)
	}

	idx, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer idx.Close()
	events, err := idx.ControllerEvents(context.Background(), "c1")
	if err != nil {
		t.Fatalf("ControllerEvents: %v", err)
	}
	if len(events) != 3 || events[1].To != "assembled" || events[2].Type != "merged" {
		t.Fatalf("events: got %+v", events)
	}
	tick, p, err := idx.LatestSnapshot(context.Background())
	if err != nil || tick != 9 || p != "/data/9.snap.zst" {
		t.Fatalf("latest snapshot: got %d %q err=%v", tick, p, err)
	}
}
