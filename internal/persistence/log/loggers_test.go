package log

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"dyewash.ai/internal/sim/bleach"
	"dyewash.ai/internal/sim/world"
)

func TestTickLogger_RoundTripAcrossRotation(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLogger(dir)
	clock := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	l.w.now = func() time.Time { return clock }

	for tick := uint64(0); tick < 3; tick++ {
		if err := l.WriteTick(world.TickLogEntry{Tick: tick, Digest: "d"}); err != nil {
			t.Fatalf("WriteTick: %v", err)
		}
	}
	clock = clock.Add(2 * time.Minute)
	if err := l.WriteTick(world.TickLogEntry{Tick: 3, Digest: "d"}); err != nil {
		t.Fatalf("WriteTick: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	files, err := TickStream.Files(dir)
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected hourly rotation into 2 files, got %v", files)
	}
	if l.w.Lines() != 4 {
		t.Fatalf("lines: %d", l.w.Lines())
	}

	var ticks []uint64
	for _, f := range files {
		err := ReadJSONL(f, func(line []byte) error {
			var e world.TickLogEntry
			if err := json.Unmarshal(line, &e); err != nil {
				return err
			}
			ticks = append(ticks, e.Tick)
			return nil
		})
		if err != nil {
			t.Fatalf("ReadJSONL: %v", err)
		}
	}
	if len(ticks) != 4 || ticks[0] != 0 || ticks[3] != 3 {
		t.Fatalf("ticks: %v", ticks)
	}
}

func TestTransformLogger(t *testing.T) {
	dir := t.TempDir()
	l := NewTransformLogger(dir, zerolog.Nop())
	l.RecordTransform(bleach.Transform{Tick: 20, ItemID: "IT000001", Outcome: bleach.OutcomeTransformed, Converted: 8})
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if l.w.Lines() != 1 {
		t.Fatalf("lines: %d", l.w.Lines())
	}
	files, _ := TransformStream.Files(dir)
	if len(files) != 1 {
		t.Fatalf("files: %v", files)
	}
	var got bleach.Transform
	if err := ReadJSONL(files[0], func(line []byte) error { return json.Unmarshal(line, &got) }); err != nil {
		t.Fatalf("ReadJSONL: %v", err)
	}
	if got.ItemID != "IT000001" || got.Converted != 8 {
		t.Fatalf("got %+v", got)
	}
}

func TestManifest_RoundTrip(t *testing.T) {
	dir := t.TempDir() + "/runs/r1"
	want := RunManifest{
		RunID:         "r1",
		WorldID:       "overworld",
		Profile:       "v1_17",
		CatalogDigest: "abc",
		StartedAt:     time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	if err := WriteManifest(dir, want); err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}
	got, err := ReadManifest(dir)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if got.RunID != want.RunID || got.CatalogDigest != want.CatalogDigest || !got.StartedAt.Equal(want.StartedAt) {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestJSONLZstdWriter_ReopensSameHour(t *testing.T) {
	dir := t.TempDir()
	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		w := NewJSONLZstdWriter(dir, AuditStream)
		w.now = func() time.Time { return clock }
		if err := w.Write(world.AuditEntry{Tick: uint64(i), Action: "ITEM_SPAWN"}); err != nil {
			t.Fatalf("Write: %v", err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}
	files, err := AuditStream.Files(dir)
	if err != nil || len(files) != 1 {
		t.Fatalf("files: %v err=%v", files, err)
	}
	n := 0
	if err := ReadJSONL(files[0], func([]byte) error { n++; return nil }); err != nil {
		t.Fatalf("ReadJSONL: %v", err)
	}
	if n != 2 {
		t.Fatalf("appended frames should both decode, got %d lines", n)
	}
}
