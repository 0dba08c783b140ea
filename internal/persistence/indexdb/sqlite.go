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

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"dyewash.ai/internal/sim/bleach"
	"dyewash.ai/internal/sim/catalogs"
	"dyewash.ai/internal/sim/tuning"
	"dyewash.ai/internal/sim/world"
)

// SQLiteIndex is a queryable secondary index of tick, audit and transform logs.
// Writes are queued and applied by a single writer goroutine; the JSONL logs
// remain the source of truth, so a full queue drops rows rather than stalling the
// world loop.
type SQLiteIndex struct {
	db  *sql.DB
	log zerolog.Logger

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick      atomic.Uint64
	dropAudit     atomic.Uint64
	dropTransform atomic.Uint64
	writeErrors   atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqAudit
	reqTransform
)

type req struct {
	kind reqKind

	tick      world.TickLogEntry
	audit     world.AuditEntry
	transform bleach.Transform
}

type Stats struct {
	QueueDepth         int    `json:"queue_depth"`
	QueueCapacity      int    `json:"queue_capacity"`
	DropTickTotal      uint64 `json:"drop_tick_total"`
	DropAuditTotal     uint64 `json:"drop_audit_total"`
	DropTransformTotal uint64 `json:"drop_transform_total"`
	WriteErrorTotal    uint64 `json:"write_error_total"`
}

const (
	queueSize     = 65536
	commitEvery   = 2000
	commitMaxWait = 2 * time.Second
)

func OpenSQLite(path string, logger zerolog.Logger) (*SQLiteIndex, error) {
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
		db:  db,
		log: logger,
		ch:  make(chan req, queueSize),
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
			session_id TEXT NOT NULL,
			op TEXT NOT NULL,
			item_id TEXT,
			cmd_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_commands_item_tick ON commands(item_id, tick);`,
		`CREATE TABLE IF NOT EXISTS audits (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			reason TEXT,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_action_tick ON audits(action, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_pos_tick ON audits(x, z, y, tick);`,
		`CREATE TABLE IF NOT EXISTS transforms (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			item_id TEXT NOT NULL,
			outcome TEXT NOT NULL,
			from_material TEXT,
			to_material TEXT NOT NULL,
			converted INTEGER NOT NULL,
			remaining INTEGER NOT NULL,
			level_before INTEGER NOT NULL,
			level_after INTEGER NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_transforms_outcome ON transforms(outcome, tick);`,
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

func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		drops.Add(1)
	}
}

func (s *SQLiteIndex) WriteTick(entry world.TickLogEntry) error {
	if s != nil {
		s.enqueue(req{kind: reqTick, tick: entry}, &s.dropTick)
	}
	return nil
}

func (s *SQLiteIndex) WriteAudit(entry world.AuditEntry) error {
	if s != nil {
		s.enqueue(req{kind: reqAudit, audit: entry}, &s.dropAudit)
	}
	return nil
}

// RecordTransform queues one fired transformation; it never blocks.
func (s *SQLiteIndex) RecordTransform(t bleach.Transform) {
	if s != nil {
		s.enqueue(req{kind: reqTransform, transform: t}, &s.dropTransform)
	}
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:         len(s.ch),
		QueueCapacity:      cap(s.ch),
		DropTickTotal:      s.dropTick.Load(),
		DropAuditTotal:     s.dropAudit.Load(),
		DropTransformTotal: s.dropTransform.Load(),
		WriteErrorTotal:    s.writeErrors.Load(),
	}
}

// UpsertCatalog stores the material catalog and the applied tuning, keyed by digest.
func (s *SQLiteIndex) UpsertCatalog(ctx context.Context, profile catalogs.Profile, cat *catalogs.MaterialCatalog, tune tuning.Tuning) error {
	if s == nil || cat == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if b, _ := json.Marshal(cat.Entries()); len(b) > 0 {
		rows = append(rows, kv{name: "materials", digest: cat.Digest(), json: b})
	}
	if b, _ := json.Marshal(cat.Palette()); len(b) > 0 {
		rows = append(rows, kv{name: "palette", digest: digestOf(b), json: b})
	}
	if b, _ := json.Marshal(tune); len(b) > 0 {
		rows = append(rows, kv{name: "tuning", digest: digestOf(b), json: b})
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO meta(key,value) VALUES('profile',?)`, profile.Tag); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// OutcomeCounts returns the number of indexed transforms per outcome. Rows still
// queued or in the writer's open transaction are not visible yet.
func (s *SQLiteIndex) OutcomeCounts(ctx context.Context) (map[string]int64, error) {
	return outcomeCounts(ctx, s.db)
}

func digestOf(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,digest,commands,raw_json) VALUES(?,?,?,?)`)
	insertCommand, _ := s.db.Prepare(`INSERT OR REPLACE INTO commands(tick,seq,session_id,op,item_id,cmd_json) VALUES(?,?,?,?,?,?)`)
	insertAudit, _ := s.db.Prepare(`INSERT OR REPLACE INTO audits(tick,seq,actor,action,x,y,z,reason,raw_json) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertTransform, _ := s.db.Prepare(`INSERT OR REPLACE INTO transforms(tick,seq,item_id,outcome,from_material,to_material,converted,remaining,level_before,level_after,x,y,z,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertCommand, insertAudit, insertTransform} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx         *sql.Tx
		opCount    int
		lastCommit = time.Now()

		lastAuditTick uint64
		auditSeq      int
		lastXfTick    uint64
		xfSeq         int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			s.log.Warn().Err(err).Msg("index begin failed")
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
		if err := tx.Commit(); err != nil {
			s.writeErrors.Add(1)
			s.log.Warn().Err(err).Msg("index commit failed")
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	fail := func(err error) {
		s.writeErrors.Add(1)
		s.log.Warn().Err(err).Msg("index write failed")
		if tx != nil {
			_ = tx.Rollback()
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil || tx == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			fail(err)
			return false
		}
		opCount++
		return true
	}

	idle := time.NewTicker(commitMaxWait)
	defer idle.Stop()

	for {
		select {
		case r, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
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
					cmdJSON, _ := json.Marshal(c.Cmd)
					if !exec(insertCommand, int64(r.tick.Tick), i, c.SessionID, c.Cmd.Op, c.Cmd.ItemID, string(cmdJSON)) {
						break
					}
				}

			case reqAudit:
				a := r.audit
				if a.Tick != lastAuditTick {
					lastAuditTick = a.Tick
					auditSeq = 0
				}
				seq := auditSeq
				auditSeq++
				raw, _ := json.Marshal(a)
				exec(insertAudit, int64(a.Tick), seq, a.Actor, a.Action, a.Pos[0], a.Pos[1], a.Pos[2], a.Reason, string(raw))

			case reqTransform:
				t := r.transform
				if t.Tick != lastXfTick {
					lastXfTick = t.Tick
					xfSeq = 0
				}
				seq := xfSeq
				xfSeq++
				raw, _ := json.Marshal(t)
				exec(insertTransform, int64(t.Tick), seq, t.ItemID, t.Outcome, t.From, t.To,
					t.Converted, t.Remaining, t.LevelBefore, t.LevelAfter,
					t.Pos[0], t.Pos[1], t.Pos[2], string(raw))
			}
			if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
				commit()
			}

		case <-idle.C:
			if tx != nil && time.Since(lastCommit) >= commitMaxWait {
				commit()
			}
		}
	}
}
