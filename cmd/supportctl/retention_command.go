package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/supportdesk/supportdesk/internal/backup"
)

const defaultRetentionDays = 365

func newRetentionCommand(ctx *commandContext) *cobra.Command {
	retentionCmd := &cobra.Command{
		Use:   "retention",
		Short: "Apply the data retention policy",
	}
	retentionCmd.AddCommand(newRetentionApplyCommand(ctx))
	return retentionCmd
}

func newRetentionApplyCommand(ctx *commandContext) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Remove requests older than the retention period",
		Long: "Remove requests created more than --days days ago. The full queue is " +
			"backed up before anything is removed.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if days < 1 {
				return fmt.Errorf("--days must be at least 1, got %d", days)
			}
			period, err := backup.RetentionPeriod(days)
			if err != nil {
				return fmt.Errorf("--days: %w", err)
			}
			c, err := ctx.ensure(cmd)
			if err != nil {
				return err
			}
			result, err := c.Backups.ApplyDataRetention(cmd.Context(), period)
			if err != nil {
				return fmt.Errorf("apply data retention: %w", err)
			}
			if ctx.flags.json {
				return writeJSON(cmd, result)
			}
			out := cmd.OutOrStdout()
			if result.Removed == 0 {
				fmt.Fprintf(out, "No requests older than %s (%d kept)\n", formatStamp(result.Cutoff), result.Kept)
				return nil
			}
			fmt.Fprintf(out, "Removed %d requests created before %s, kept %d\n",
				result.Removed, formatStamp(result.Cutoff), result.Kept)
			fmt.Fprintf(out, "Pre-retention backup: %s\n", result.Backup.Filename)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", defaultRetentionDays, "Retention period in days")
	return cmd
}
