package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	persistlog "dyewash.ai/internal/persistence/log"
	"dyewash.ai/internal/sim/catalogs"
	"dyewash.ai/internal/sim/tuning"
	"dyewash.ai/internal/sim/world"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
}

type replayOptions struct {
	runDir     string
	tuningPath string
	toTick     uint64
}

func newRootCommand() *cobra.Command {
	var o replayOptions
	cmd := &cobra.Command{
		Use:   "dyewash-replay --run <dir>",
		Short: "Re-step a recorded run from its tick log and verify every state digest",
		Example: `  dyewash-replay --run data/worlds/overworld/runs/6f1c...`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := replay(o)
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), res)
			return nil
		},
	}
	cmd.Flags().StringVar(&o.runDir, "run", "", "run directory holding run.json and events/")
	cmd.Flags().StringVar(&o.tuningPath, "tuning", "", "tuning.yaml (default: the path recorded in run.json)")
	cmd.Flags().Uint64Var(&o.toTick, "to-tick", 0, "stop after this tick (inclusive, optional)")
	_ = cmd.MarkFlagRequired("run")
	return cmd
}

type replayResult struct {
	Manifest persistlog.RunManifest
	Files    int
	Ticks    uint64
	Commands uint64
	Metrics  world.WorldMetrics
}

func replay(o replayOptions) (replayResult, error) {
	var res replayResult
	m, err := persistlog.ReadManifest(o.runDir)
	if err != nil {
		return res, fmt.Errorf("read manifest: %w", err)
	}
	res.Manifest = m

	tp := o.tuningPath
	if tp == "" {
		tp = m.TuningPath
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		return res, fmt.Errorf("load tuning: %w", err)
	}
	profile, err := catalogs.LookupProfile(m.Profile)
	if err != nil {
		return res, err
	}
	cat, err := tune.Catalog(profile)
	if err != nil {
		return res, fmt.Errorf("material catalog: %w", err)
	}
	if m.CatalogDigest != "" && cat.Digest() != m.CatalogDigest {
		return res, fmt.Errorf("catalog digest mismatch: run=%s tuning=%s", m.CatalogDigest, cat.Digest())
	}

	w, err := world.New(world.ConfigFromTuning(m.WorldID, tune, profile), cat, zerolog.Nop())
	if err != nil {
		return res, fmt.Errorf("world: %w", err)
	}

	files, err := persistlog.TickStream.Files(o.runDir)
	if err != nil {
		return res, err
	}
	if len(files) == 0 {
		return res, fmt.Errorf("no tick log files in %s", persistlog.TickStream.Path(o.runDir))
	}
	res.Files = len(files)

	errStop := errors.New("stop")
	for _, path := range files {
		err := persistlog.ReadJSONL(path, func(line []byte) error {
			var entry world.TickLogEntry
			if err := json.Unmarshal(line, &entry); err != nil {
				return fmt.Errorf("unmarshal: %w", err)
			}
			if o.toTick != 0 && entry.Tick > o.toTick {
				return errStop
			}
			if entry.Tick != w.CurrentTick() {
				return fmt.Errorf("tick mismatch: want=%d got=%d", w.CurrentTick(), entry.Tick)
			}
			cmds := make([]world.CommandEnvelope, 0, len(entry.Commands))
			for _, c := range entry.Commands {
				cmds = append(cmds, world.CommandEnvelope{SessionID: c.SessionID, Cmd: c.Cmd})
			}
			tick, digest := w.StepOnce(cmds)
			if digest != entry.Digest {
				return fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", tick, digest, entry.Digest)
			}
			res.Ticks++
			res.Commands += uint64(len(cmds))
			return nil
		})
		if err != nil {
			if errors.Is(err, errStop) {
				break
			}
			return res, err
		}
	}
	res.Metrics = w.Metrics()
	return res, nil
}

func printSummary(out io.Writer, r replayResult) {
	b := r.Metrics.Bleach
	fmt.Fprintf(out, "replay ok: run=%s world=%s profile=%s\n", r.Manifest.RunID, r.Manifest.WorldID, r.Manifest.Profile)
	fmt.Fprintf(out, "  %s ticks from %d files, %s commands\n",
		humanize.Comma(int64(r.Ticks)), r.Files, humanize.Comma(int64(r.Commands)))
	fmt.Fprintf(out, "  transformations: %s fired, %s converted %s items, %s pending at end\n",
		humanize.Comma(int64(b.Fired)), humanize.Comma(int64(b.Transformed)),
		humanize.Comma(int64(b.ItemsConverted)), humanize.Comma(int64(b.Pending)))
}
