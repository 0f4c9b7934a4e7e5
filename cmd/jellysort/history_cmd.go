package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Nomadcxx/jellysort/internal/activity"
	"github.com/Nomadcxx/jellysort/internal/database"
	"github.com/Nomadcxx/jellysort/internal/ui"
)

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the most recent file operations from the activity log",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(database.ExecCLI)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.activity == nil {
				return fmt.Errorf("activity log is not available")
			}
			entries, err := a.activity.GetRecentEntries(limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				ui.InfoMsg("No file operations recorded yet")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), historyTable(entries))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")
	return cmd
}

func historyTable(entries []activity.Entry) string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		result := "ok"
		if !e.Success {
			result = "failed"
		}
		ts := e.Timestamp
		rows = append(rows, []string{
			ui.FormatTime(&ts),
			e.Action,
			filepath.Base(e.Source),
			e.Target,
			ui.FormatBytes(e.Bytes),
			ui.FormatDuration(time.Duration(e.DurationMs) * time.Millisecond),
			result,
		})
	}
	return ui.RenderTable(
		[]string{"When", "Action", "Source", "Target", "Size", "Took", "Result"}, rows,
		[]ui.Align{ui.AlignLeft, ui.AlignLeft, ui.AlignLeft, ui.AlignLeft, ui.AlignRight, ui.AlignRight, ui.AlignLeft})
}
