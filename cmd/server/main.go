package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	ctx, cancel := signalContext()
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "dyewash-server",
		Short:         "Cauldron bleaching simulation server",
		Version:       fmt.Sprintf("%s (commit: %s)", Version, Commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("configs", "./configs", "config directory")
	root.PersistentFlags().String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")

	root.AddCommand(newServeCommand())
	root.AddCommand(newValidateCommand())
	return root
}

func tuningPath(cmd *cobra.Command) string {
	p, _ := cmd.Flags().GetString("tuning")
	if p != "" {
		return p
	}
	dir, _ := cmd.Flags().GetString("configs")
	return dir + "/tuning.yaml"
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
