package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"dyewash.ai/internal/protocol"
	"dyewash.ai/internal/sim/tuning"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check tuning.yaml, the material catalog and the protocol schemas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tp := tuningPath(cmd)
			tune, err := tuning.Load(tp)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			profile, err := tune.ResolveProfile()
			if err != nil {
				fmt.Fprintf(out, "warning: %v; server would use %s\n", err, profile.Tag)
			}
			cat, err := tune.Catalog(profile)
			if err != nil {
				return fmt.Errorf("material catalog: %w", err)
			}
			if _, err := protocol.NewValidator(); err != nil {
				return fmt.Errorf("protocol schemas: %w", err)
			}

			size := "?"
			if st, err := os.Stat(tp); err == nil {
				size = humanize.Bytes(uint64(st.Size()))
			}
			fmt.Fprintf(out, "tuning %s (%s) ok\n", tp, size)
			fmt.Fprintf(out, "profile %s: water=%s empty=%s\n", profile.Tag, profile.WaterCauldron, profile.EmptyCauldron)
			fmt.Fprintf(out, "materials: %s enabled, %s known names, digest %.12s\n",
				humanize.Comma(int64(cat.Len())), humanize.Comma(int64(len(cat.Palette()))), cat.Digest())
			for _, e := range cat.Entries() {
				to, ok := cat.ResolveUndyed(e)
				if !ok {
					to = "(none)"
				}
				fmt.Fprintf(out, "  %-18s *%-18s -> %-22s batch %2d group %s\n", e.ConfigKey, e.Colored, to, e.BatchSize, e.Group)
			}
			fmt.Fprintf(out, "charge: check_empty=%d change_waterlevel=%d delay=%d ticks\n",
				tune.Cauldron.CheckEmpty, tune.Cauldron.ChangeWaterLevel, tune.DelayTicks)
			return nil
		},
	}
}
