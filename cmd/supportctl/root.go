package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	ctx := newCommandContext(flags)

	rootCmd := &cobra.Command{
		Use:           "supportctl",
		Short:         "Manage the support request queue",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.envFile, "env-file", "", "Load environment variables from this file (default ./.env)")
	pf.StringVar(&flags.queueFile, "queue-file", "", "Support queue file (overrides QUEUE_FILE)")
	pf.StringVar(&flags.backupDir, "backup-dir", "", "Backup directory (overrides BACKUP_DIR)")
	pf.StringVar(&flags.exportDir, "export-dir", "", "Export directory (overrides EXPORT_DIR)")
	pf.BoolVar(&flags.json, "json", false, "Print results as JSON")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "Log progress to stderr")

	rootCmd.AddCommand(newBackupCommand(ctx))
	rootCmd.AddCommand(newRetentionCommand(ctx))
	rootCmd.AddCommand(newExportCommand(ctx))
	rootCmd.AddCommand(newStatsCommand(ctx))

	return rootCmd
}
