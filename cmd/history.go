package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/downpour-dl/downpour/internal/history"
	"github.com/downpour-dl/downpour/internal/utils"
)

var (
	historyLimit int
	historyKey   string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "history lists recorded download outcomes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := history.Open(settings.HistoryPath(), logger)
		if err != nil {
			return err
		}
		defer store.Close()

		var entries []history.Entry
		if historyKey != "" {
			entries, err = store.ByKey(cmd.Context(), historyKey)
		} else {
			entries, err = store.Recent(cmd.Context(), historyLimit)
		}
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(entries) == 0 {
			fmt.Fprintln(out, "no recorded downloads")
			return nil
		}

		for _, e := range entries {
			line := fmt.Sprintf("%s  %-9s  %-24s  %8s",
				e.FinishedAt.Local().Format("2006-01-02 15:04"),
				e.State,
				e.Key,
				utils.FormatBytes(e.Received))
			switch {
			case e.State == "succeeded":
				line += "  " + e.Path
			case e.Message != "":
				line += "  " + e.Message
			}
			fmt.Fprintln(out, line)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "maximum entries to list")
	historyCmd.Flags().StringVarP(&historyKey, "key", "k", "", "list every attempt for one name.extension key")
	rootCmd.AddCommand(historyCmd)
}
