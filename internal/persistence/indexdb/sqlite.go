package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"turbinecraft.ai/internal/persistence/snapshot"
	"turbinecraft.ai/internal/sim/catalogs"
	"turbinecraft.ai/internal/sim/tuning"
	"turbinecraft.ai/internal/sim/world"
)

// SQLiteIndex is a queryable secondary index of ticks, assembly events and
// snapshots. Writes are queued and applied by one goroutine; the JSONL logs
// and snapshot files remain the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick     atomic.Uint64
	dropEvent    atomic.Uint64
	dropSnapshot atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqEvent
	reqSnapshot
)

type req struct {
	kind reqKind

	tick     world.TickLogEntry
	event    world.AssemblyEvent
	snapshot snapshotRow
}

type snapshotRow struct {
	Tick        uint64
	Path        string
	WorldID     string
	Parts       int
	Controllers []snapshot.ControllerV1
}

type Stats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	DropTickTotal     uint64 `json:"drop_tick_total"`
	DropEventTotal    uint64 `json:"drop_event_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			digest TEXT NOT NULL,
			commands INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS commands (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			op TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			controller TEXT,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_commands_pos_tick ON commands(x, z, y, tick);`,
		`CREATE TABLE IF NOT EXISTS assembly_events (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			type TEXT NOT NULL,
			controller TEXT NOT NULL,
			kind TEXT NOT NULL,
			from_state TEXT,
			to_state TEXT,
			code TEXT,
			other TEXT,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_assembly_events_controller_tick ON assembly_events(controller, tick);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			world_id TEXT NOT NULL,
			parts INTEGER NOT NULL,
			controllers INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS controller_states (
			tick INTEGER NOT NULL,
			controller TEXT NOT NULL,
			kind TEXT NOT NULL,
			state TEXT NOT NULL,
			machine_json TEXT,
			PRIMARY KEY (tick, controller)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropTickTotal:     s.dropTick.Load(),
		DropEventTotal:    s.dropEvent.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
	}
}

func (s *SQLiteIndex) WriteTick(entry world.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: entry}:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
		s.dropTick.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) WriteEvent(e world.AssemblyEvent) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqEvent, event: e}:
	default:
		s.dropEvent.Add(1)
	}
	return nil
}

// RecordSnapshot indexes a written snapshot file together with every
// controller's persisted machine record.
func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		Tick:        snap.Header.Tick,
		Path:        path,
		WorldID:     snap.Header.WorldID,
		Parts:       len(snap.Parts),
		Controllers: snap.Controllers,
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	raw := map[string][]byte{}
	read := func(name, path string) {
		b, err := os.ReadFile(path)
		if err != nil {
			return
		}
		raw[name] = b
	}
	if configDir != "" {
		read("blocks_defs", filepath.Join(configDir, "blocks.json"))
		read("recipes", filepath.Join(configDir, "recipes.json"))
	}

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if b := raw["blocks_defs"]; len(b) > 0 {
		rows = append(rows, kv{name: "blocks_defs", digest: cats.Blocks.DefsDigest, json: b})
	}
	if b, _ := json.Marshal(cats.Blocks.Palette); len(b) > 0 {
		rows = append(rows, kv{name: "blocks_palette", digest: cats.Blocks.PaletteDigest, json: b})
	}
	if b := raw["recipes"]; len(b) > 0 {
		rows = append(rows, kv{name: "recipes", digest: cats.Recipes.Digest, json: b})
	}

	// Tuning: store the values we actually apply (canonical JSON).
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ControllerEvents returns the indexed assembly events of one controller in
// tick order, including merges and splits that name it as the other side.
func (s *SQLiteIndex) ControllerEvents(ctx context.Context, id string) ([]world.AssemblyEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT raw_json FROM assembly_events WHERE controller=? OR other=? ORDER BY tick, seq`, id, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []world.AssemblyEvent
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var e world.AssemblyEvent
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("assembly event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// LatestSnapshot returns the newest indexed snapshot path.
func (s *SQLiteIndex) LatestSnapshot(ctx context.Context) (tick uint64, path string, err error) {
	var t int64
	err = s.db.QueryRowContext(ctx, `SELECT tick, path FROM snapshots ORDER BY tick DESC LIMIT 1`).Scan(&t, &path)
	if err != nil {
		return 0, "", err
	}
	return uint64(t), path, nil
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	// Prepared statements (on db; executed within tx).
	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,digest,commands,raw_json) VALUES(?,?,?,?)`)
	insertCommand, _ := s.db.Prepare(`INSERT OR REPLACE INTO commands(tick,seq,op,x,y,z,controller,raw_json) VALUES(?,?,?,?,?,?,?,?)`)
	insertEvent, _ := s.db.Prepare(`INSERT OR REPLACE INTO assembly_events(tick,seq,type,controller,kind,from_state,to_state,code,other,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,world_id,parts,controllers) VALUES(?,?,?,?,?)`)
	insertState, _ := s.db.Prepare(`INSERT OR REPLACE INTO controller_states(tick,controller,kind,state,machine_json) VALUES(?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertCommand, insertEvent, insertSnapshot, insertState} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second

		lastEventTick uint64
		eventSeq      int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			// If we can't start a tx, we can't do much; sleep a bit.
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil || tx == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			b, _ := json.Marshal(r.tick)
			if !exec(insertTick, int64(r.tick.Tick), r.tick.Digest, len(r.tick.Commands), string(b)) {
				continue
			}
			for i, c := range r.tick.Commands {
				raw, _ := json.Marshal(c)
				var ctl any
				if c.Controller != "" {
					ctl = c.Controller
				}
				if !exec(insertCommand, int64(r.tick.Tick), i, string(c.Op), c.Pos[0], c.Pos[1], c.Pos[2], ctl, string(raw)) {
					break
				}
			}

		case reqEvent:
			e := r.event
			if e.Tick != lastEventTick {
				lastEventTick = e.Tick
				eventSeq = 0
			}
			seq := eventSeq
			eventSeq++
			raw, _ := json.Marshal(e)
			exec(insertEvent, int64(e.Tick), seq, e.Type, e.Controller, e.Kind, e.From, e.To, e.Code, e.Other, string(raw))

		case reqSnapshot:
			sn := r.snapshot
			if !exec(insertSnapshot, int64(sn.Tick), sn.Path, sn.WorldID, sn.Parts, len(sn.Controllers)) {
				continue
			}
			for _, c := range sn.Controllers {
				var machine any
				if len(c.Machine) > 0 {
					machine = string(c.Machine)
				}
				if !exec(insertState, int64(sn.Tick), c.ID, c.Kind, c.State, machine) {
					break
				}
			}
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
