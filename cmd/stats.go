package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/makibytes/seltest/broker/backends"
	"github.com/spf13/cobra"
)

// NewStatsCommand creates a command that shows queue statistics
func NewStatsCommand(admin backends.Admin) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <queue>...",
		Short: "Show message and consumer counts of queues",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reader, ok := admin.(backends.StatsReader)
			if !ok {
				return fmt.Errorf("stats: %w", backends.ErrNotSupported)
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleRounded)
			t.AppendHeader(table.Row{
				text.FgHiCyan.Sprint("QUEUE"),
				text.FgHiCyan.Sprint("MESSAGES"),
				text.FgHiCyan.Sprint("CONSUMERS"),
				text.FgHiCyan.Sprint("ENQUEUED"),
				text.FgHiCyan.Sprint("DEQUEUED"),
			})
			for _, name := range args {
				stats, err := reader.QueueStats(cmd.Context(), name)
				if err != nil {
					return fmt.Errorf("stats of %s: %w", name, err)
				}
				t.AppendRow(table.Row{stats.Name, stats.MessageCount, stats.ConsumerCount, stats.EnqueueCount, stats.DequeueCount})
			}
			t.Render()
			return nil
		},
	}
}
