package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/supportdesk/supportdesk/internal/backup"
)

func newBackupCommand(ctx *commandContext) *cobra.Command {
	backupCmd := &cobra.Command{
		Use:   "backup",
		Short: "Create, list, restore and prune queue backups",
	}

	backupCmd.AddCommand(newBackupCreateCommand(ctx))
	backupCmd.AddCommand(newBackupListCommand(ctx))
	backupCmd.AddCommand(newBackupRestoreCommand(ctx))
	backupCmd.AddCommand(newBackupCleanupCommand(ctx))

	return backupCmd
}

func newBackupCreateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Back up the support queue now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.ensure(cmd)
			if err != nil {
				return err
			}
			info, err := c.Backups.CreateBackup(cmd.Context())
			if err != nil {
				return fmt.Errorf("create backup: %w", err)
			}
			if ctx.flags.json {
				return writeJSON(cmd, info)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%d requests, %s)\n",
				info.Filename, info.TotalRequests, humanBytes(info.Size))
			return nil
		},
	}
}

func newBackupListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List backups, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.ensure(cmd)
			if err != nil {
				return err
			}
			infos, err := c.Backups.ListBackups()
			if err != nil {
				return fmt.Errorf("list backups: %w", err)
			}
			if ctx.flags.json {
				return writeJSON(cmd, infos)
			}
			if len(infos) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No backups in %s\n", c.Backups.Dir())
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderBackups(infos))
			return nil
		},
	}
}

func renderBackups(infos []backup.Info) string {
	rows := make([][]string, 0, len(infos))
	for _, info := range infos {
		rows = append(rows, []string{
			info.Filename,
			formatStamp(info.Timestamp),
			strconv.Itoa(info.TotalRequests),
			humanBytes(info.Size),
		})
	}
	return renderTable(
		[]string{"File", "Taken", "Requests", "Size"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight},
	)
}

func newBackupRestoreCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <backup-file>",
		Short: "Replace the support queue with a backup",
		Long: "Replace the support queue with the contents of a backup. The current " +
			"queue is backed up first, so a restore can itself be undone.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.ensure(cmd)
			if err != nil {
				return err
			}
			result, err := c.Backups.RestoreFromBackup(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("restore backup: %w", err)
			}
			if ctx.flags.json {
				return writeJSON(cmd, result)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Restored %d requests from %s\n", result.RestoredRecords, result.Filename)
			if result.SafetyBackup != nil {
				fmt.Fprintf(out, "Previous queue saved as %s\n", result.SafetyBackup.Filename)
			}
			return nil
		},
	}
}

func newBackupCleanupCommand(ctx *commandContext) *cobra.Command {
	var keep int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete all but the newest backups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if keep < 1 {
				return fmt.Errorf("--keep must be at least 1, got %d", keep)
			}
			c, err := ctx.ensure(cmd)
			if err != nil {
				return err
			}
			result, err := c.Backups.CleanupOldBackups(keep)
			if err != nil {
				return fmt.Errorf("clean up backups: %w", err)
			}
			if ctx.flags.json {
				return writeJSON(cmd, result)
			}
			printCleanup(cmd, "backups", result.Kept, result.Deleted, result.Failed)
			return nil
		},
	}
	cmd.Flags().IntVar(&keep, "keep", backup.DefaultKeep, "Number of backups to keep")
	return cmd
}

func printCleanup(cmd *cobra.Command, what string, kept int, deleted, failed []string) {
	out := cmd.OutOrStdout()
	if len(deleted) == 0 && len(failed) == 0 {
		fmt.Fprintf(out, "Nothing to clean up (%d %s kept)\n", kept, what)
		return
	}
	fmt.Fprintf(out, "Deleted %d %s, kept %d\n", len(deleted), what, kept)
	for _, name := range failed {
		fmt.Fprintf(out, "  failed to delete %s\n", name)
	}
}
