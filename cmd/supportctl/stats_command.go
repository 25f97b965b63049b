package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/supportdesk/supportdesk/internal/export"
)

func newStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize the support queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.ensure(cmd)
			if err != nil {
				return err
			}
			stats, err := c.Exports.GenerateExportStats(cmd.Context())
			if err != nil {
				return fmt.Errorf("generate stats: %w", err)
			}
			if ctx.flags.json {
				return writeJSON(cmd, stats)
			}
			printStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}
}

func printStats(out io.Writer, stats *export.Stats) {
	if stats.TotalRequests == 0 {
		fmt.Fprintln(out, "Queue is empty")
		return
	}

	fmt.Fprintf(out, "Requests: %d (%d urgent, %d normal)\n",
		stats.TotalRequests, stats.UrgentRequests, stats.NormalRequests)
	if stats.DateRange.Earliest != nil && stats.DateRange.Latest != nil {
		fmt.Fprintf(out, "Range:    %s to %s\n",
			formatStamp(*stats.DateRange.Earliest), formatStamp(*stats.DateRange.Latest))
	}

	if len(stats.TopTopics) > 0 {
		rows := make([][]string, 0, len(stats.TopTopics))
		for _, tc := range stats.TopTopics {
			rows = append(rows, []string{tc.Topic, strconv.Itoa(tc.Count)})
		}
		fmt.Fprintln(out, "Top topics:")
		fmt.Fprintln(out, renderTable([]string{"Topic", "Requests"}, rows, []columnAlignment{alignLeft, alignRight}))
	}

	if len(stats.RequestsByMonth) > 0 {
		rows := make([][]string, 0, len(stats.RequestsByMonth))
		for _, mc := range stats.RequestsByMonth {
			rows = append(rows, []string{mc.Month, strconv.Itoa(mc.Count)})
		}
		fmt.Fprintln(out, "By month:")
		fmt.Fprintln(out, renderTable([]string{"Month", "Requests"}, rows, []columnAlignment{alignLeft, alignRight}))
	}
}
