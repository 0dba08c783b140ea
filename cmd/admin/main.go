package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	persistlog "dyewash.ai/internal/persistence/log"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "dyewash-admin",
		Short:         "Inspect dyewash runs, indexes and live servers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("data", "./data", "runtime data directory")
	root.PersistentFlags().String("world", "overworld", "world id")

	root.AddCommand(newRunsCommand())
	root.AddCommand(newDBCommand())
	root.AddCommand(newStateCommand())
	return root
}

func worldDir(cmd *cobra.Command) string {
	data, _ := cmd.Flags().GetString("data")
	world, _ := cmd.Flags().GetString("world")
	return filepath.Join(data, "worlds", world)
}

func newRunsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs of a world, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			runs, err := listRuns(filepath.Join(worldDir(cmd), "runs"))
			if err != nil {
				return err
			}
			printRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}
}

type runInfo struct {
	Dir      string
	Manifest persistlog.RunManifest
	Bytes    int64
}

// listRuns reads every run manifest under runsDir. Directories without a manifest
// are skipped.
func listRuns(runsDir string) ([]runInfo, error) {
	entries, err := os.ReadDir(runsDir)
	if err != nil {
		return nil, err
	}
	var out []runInfo
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(runsDir, e.Name())
		m, err := persistlog.ReadManifest(dir)
		if err != nil {
			continue
		}
		out = append(out, runInfo{Dir: dir, Manifest: m, Bytes: dirSize(dir)})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Manifest.StartedAt.Before(out[j].Manifest.StartedAt)
	})
	return out, nil
}

func dirSize(dir string) int64 {
	var n int64
	_ = filepath.Walk(dir, func(_ string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			n += info.Size()
		}
		return nil
	})
	return n
}

func printRuns(out io.Writer, runs []runInfo) {
	if len(runs) == 0 {
		fmt.Fprintln(out, "no runs")
		return
	}
	for _, r := range runs {
		m := r.Manifest
		fmt.Fprintf(out, "%s  %-6s  started %s  %s  catalog %s\n",
			m.RunID, m.Profile, humanize.Time(m.StartedAt), humanize.Bytes(uint64(r.Bytes)), shortDigest(m.CatalogDigest))
	}
}

func shortDigest(d string) string {
	d = strings.TrimSpace(d)
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
