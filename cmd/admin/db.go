package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"dyewash.ai/internal/persistence/indexdb"
)

func newDBCommand() *cobra.Command {
	var (
		run     string
		dbPath  string
		itemID  string
		outcome string
		limit   int
	)
	cmd := &cobra.Command{
		Use:       "db [outcomes|transforms|ticks]",
		Short:     "Query a run's sqlite index",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"outcomes", "transforms", "ticks"},
		RunE: func(cmd *cobra.Command, args []string) error {
			q := "outcomes"
			if len(args) > 0 {
				q = strings.TrimSpace(args[0])
			}
			path := strings.TrimSpace(dbPath)
			if path == "" {
				p, err := resolveIndexPath(filepath.Join(worldDir(cmd), "runs"), run)
				if err != nil {
					return err
				}
				path = p
			}
			r, err := indexdb.OpenReader(path)
			if err != nil {
				return fmt.Errorf("open index: %w", err)
			}
			defer r.Close()
			return runQuery(cmd.Context(), cmd.OutOrStdout(), r, q, indexdb.TransformQuery{
				ItemID:  itemID,
				Outcome: outcome,
				Limit:   limit,
			})
		},
	}
	cmd.Flags().StringVar(&run, "run", "", "run id (default: latest run)")
	cmd.Flags().StringVar(&dbPath, "db", "", "sqlite index path (overrides --run)")
	cmd.Flags().StringVar(&itemID, "item", "", "item id filter (transforms)")
	cmd.Flags().StringVar(&outcome, "outcome", "", "outcome filter (transforms)")
	cmd.Flags().IntVar(&limit, "limit", 20, "result limit (transforms)")
	return cmd
}

const indexFile = "index.sqlite"

func resolveIndexPath(runsDir, runID string) (string, error) {
	if runID != "" {
		return filepath.Join(runsDir, runID, indexFile), nil
	}
	runs, err := listRuns(runsDir)
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", fmt.Errorf("no runs under %s", runsDir)
	}
	return filepath.Join(runs[len(runs)-1].Dir, indexFile), nil
}

func runQuery(ctx context.Context, out io.Writer, r *indexdb.Reader, q string, tq indexdb.TransformQuery) error {
	switch q {
	case "outcomes":
		counts, err := r.OutcomeCounts(ctx)
		if err != nil {
			return err
		}
		keys := make([]string, 0, len(counts))
		var total int64
		for k, n := range counts {
			keys = append(keys, k)
			total += n
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(out, "%-12s %s\n", k, humanize.Comma(counts[k]))
		}
		fmt.Fprintf(out, "%-12s %s\n", "TOTAL", humanize.Comma(total))
		return nil

	case "transforms":
		rows, err := r.Transforms(ctx, tq)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(out)
		for _, row := range rows {
			if err := enc.Encode(row); err != nil {
				return err
			}
		}
		return nil

	case "ticks":
		span, err := r.Ticks(ctx)
		if err != nil {
			return err
		}
		if span.Count == 0 {
			fmt.Fprintln(out, "no ticks indexed")
			return nil
		}
		fmt.Fprintf(out, "ticks %d..%d (%s rows, %s commands)\n",
			span.First, span.Last, humanize.Comma(span.Count), humanize.Comma(span.Commands))
		return nil

	default:
		return fmt.Errorf("unknown query %q", q)
	}
}
