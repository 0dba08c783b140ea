package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
)

// Reader queries an index file written by SQLiteIndex. It never writes.
type Reader struct {
	db *sql.DB
}

func OpenReader(path string) (*Reader, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Reader{db: db}, nil
}

func (r *Reader) Close() error { return r.db.Close() }

func (r *Reader) OutcomeCounts(ctx context.Context) (map[string]int64, error) {
	return outcomeCounts(ctx, r.db)
}

type TransformRow struct {
	Tick        uint64 `json:"tick"`
	ItemID      string `json:"item_id"`
	Outcome     string `json:"outcome"`
	From        string `json:"from,omitempty"`
	To          string `json:"to"`
	Converted   int    `json:"converted"`
	Remaining   int    `json:"remaining"`
	LevelBefore int    `json:"level_before"`
	LevelAfter  int    `json:"level_after"`
	Pos         [3]int `json:"pos"`
}

type TransformQuery struct {
	ItemID  string
	Outcome string
	Limit   int
}

// Transforms lists indexed transforms, newest first.
func (r *Reader) Transforms(ctx context.Context, q TransformQuery) ([]TransformRow, error) {
	var (
		where []string
		args  []any
	)
	if q.ItemID != "" {
		where = append(where, "item_id = ?")
		args = append(args, q.ItemID)
	}
	if q.Outcome != "" {
		where = append(where, "outcome = ?")
		args = append(args, strings.ToUpper(q.Outcome))
	}
	limit := q.Limit
	if limit <= 0 || limit > 1000 {
		limit = 20
	}
	stmt := `SELECT tick, item_id, outcome, COALESCE(from_material,''), to_material, converted, remaining, level_before, level_after, x, y, z FROM transforms`
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}
	stmt += fmt.Sprintf(" ORDER BY tick DESC, seq DESC LIMIT %d", limit)

	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TransformRow
	for rows.Next() {
		var t TransformRow
		if err := rows.Scan(&t.Tick, &t.ItemID, &t.Outcome, &t.From, &t.To, &t.Converted, &t.Remaining,
			&t.LevelBefore, &t.LevelAfter, &t.Pos[0], &t.Pos[1], &t.Pos[2]); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// TickSpan summarizes the indexed tick range.
type TickSpan struct {
	First    uint64 `json:"first"`
	Last     uint64 `json:"last"`
	Count    int64  `json:"count"`
	Commands int64  `json:"commands"`
}

func (r *Reader) Ticks(ctx context.Context) (TickSpan, error) {
	var (
		span        TickSpan
		first, last sql.NullInt64
		cmds        sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, `SELECT MIN(tick), MAX(tick), COUNT(*), SUM(commands) FROM ticks`).
		Scan(&first, &last, &span.Count, &cmds)
	if err != nil {
		return TickSpan{}, err
	}
	span.First = uint64(first.Int64)
	span.Last = uint64(last.Int64)
	span.Commands = cmds.Int64
	return span, nil
}

func outcomeCounts(ctx context.Context, db *sql.DB) (map[string]int64, error) {
	rows, err := db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM transforms GROUP BY outcome`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int64{}
	for rows.Next() {
		var (
			outcome string
			n       int64
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		out[outcome] = n
	}
	return out, rows.Err()
}
