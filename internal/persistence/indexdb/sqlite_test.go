package indexdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"dyewash.ai/internal/protocol"
	"dyewash.ai/internal/sim/bleach"
	"dyewash.ai/internal/sim/catalogs"
	"dyewash.ai/internal/sim/tuning"
	"dyewash.ai/internal/sim/world"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqTick, tick: world.TickLogEntry{Tick: 1}}

	_ = s.WriteTick(world.TickLogEntry{Tick: 2})
	_ = s.WriteAudit(world.AuditEntry{Tick: 2})
	s.RecordTransform(bleach.Transform{Tick: 2})

	st := s.Stats()
	if st.DropTickTotal != 1 || st.DropAuditTotal != 1 || st.DropTransformTotal != 1 {
		t.Fatalf("drop stats: %+v", st)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_WritesRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.sqlite")
	s, err := OpenSQLite(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}

	profile, err := catalogs.LookupProfile(catalogs.DefaultProfileTag)
	if err != nil {
		t.Fatalf("LookupProfile: %v", err)
	}
	cat, err := profile.Catalog()
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	if err := s.UpsertCatalog(context.Background(), profile, cat, tuning.Defaults()); err != nil {
		t.Fatalf("UpsertCatalog: %v", err)
	}

	_ = s.WriteTick(world.TickLogEntry{
		Tick:   5,
		Digest: "abc",
		Commands: []world.RecordedCommand{
			{SessionID: "S1", Cmd: protocol.CmdMsg{Op: protocol.OpDropItem, ItemID: "IT000001", Material: "RED_WOOL", Count: 3}},
		},
	})
	_ = s.WriteAudit(world.AuditEntry{Tick: 5, Actor: "S1", Action: "ITEM_SPAWN", Pos: [3]int{1, 2, 3}})
	s.RecordTransform(bleach.Transform{Tick: 25, ItemID: "IT000001", Outcome: bleach.OutcomeTransformed, From: "RED_WOOL", To: "WHITE_WOOL", Converted: 3})
	s.RecordTransform(bleach.Transform{Tick: 25, ItemID: "IT000002", Outcome: bleach.OutcomeNoCharge, To: "WHITE_WOOL"})

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	count := func(q string) int {
		var n int
		if err := db.QueryRow(q).Scan(&n); err != nil {
			t.Fatalf("%s: %v", q, err)
		}
		return n
	}
	if n := count(`SELECT COUNT(*) FROM ticks`); n != 1 {
		t.Fatalf("ticks=%d", n)
	}
	if n := count(`SELECT COUNT(*) FROM commands WHERE item_id='IT000001'`); n != 1 {
		t.Fatalf("commands=%d", n)
	}
	if n := count(`SELECT COUNT(*) FROM audits`); n != 1 {
		t.Fatalf("audits=%d", n)
	}
	if n := count(`SELECT COUNT(*) FROM transforms`); n != 2 {
		t.Fatalf("transforms=%d", n)
	}
	if n := count(`SELECT COUNT(*) FROM catalogs`); n != 3 {
		t.Fatalf("catalogs=%d", n)
	}

	r, err := OpenReader(path)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Close()
	ctx := context.Background()

	counts, err := r.OutcomeCounts(ctx)
	if err != nil {
		t.Fatalf("OutcomeCounts: %v", err)
	}
	if counts[bleach.OutcomeTransformed] != 1 || counts[bleach.OutcomeNoCharge] != 1 {
		t.Fatalf("outcome counts: %v", counts)
	}

	rows, err := r.Transforms(ctx, TransformQuery{Outcome: "transformed"})
	if err != nil {
		t.Fatalf("Transforms: %v", err)
	}
	if len(rows) != 1 || rows[0].ItemID != "IT000001" || rows[0].Converted != 3 || rows[0].From != "RED_WOOL" {
		t.Fatalf("transform rows: %+v", rows)
	}
	if rows, _ := r.Transforms(ctx, TransformQuery{ItemID: "IT000002"}); len(rows) != 1 || rows[0].From != "" {
		t.Fatalf("rows by item: %+v", rows)
	}

	span, err := r.Ticks(ctx)
	if err != nil {
		t.Fatalf("Ticks: %v", err)
	}
	if span.First != 5 || span.Last != 5 || span.Count != 1 || span.Commands != 1 {
		t.Fatalf("tick span: %+v", span)
	}
}

func TestOpenReader_MissingFile(t *testing.T) {
	if _, err := OpenReader(filepath.Join(t.TempDir(), "nope.sqlite")); err == nil {
		t.Fatalf("expected error for missing index")
	}
}
