package cmd

import (
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/downpour-dl/downpour/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Execute one framed download payload from stdin",
	Long: `worker reads a single length-prefixed MessagePack payload frame from
stdin, runs the download, and writes progress frames followed by the
outcome frame to stdout. Schedulers spawn one worker process per download.`,
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE:   runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	mgr, cleanup, err := newManager(settings.General.StorageRoot)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	return worker.NewRunner(mgr, logger).Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
}
