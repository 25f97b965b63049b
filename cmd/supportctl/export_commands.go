package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/supportdesk/supportdesk/internal/export"
	"github.com/supportdesk/supportdesk/internal/support"
)

type exportFlags struct {
	format   string
	urgency  string
	from     string
	to       string
	metadata bool
}

func newExportCommand(ctx *commandContext) *cobra.Command {
	flags := &exportFlags{}
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export support requests to JSON or CSV",
		Long: "Write a filtered copy of the support queue to the export directory. " +
			"--from and --to accept YYYY-MM-DD or RFC 3339 and are inclusive.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}
			c, err := ctx.ensure(cmd)
			if err != nil {
				return err
			}
			result, err := c.Exports.ExportRequests(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("export requests: %w", err)
			}
			if ctx.flags.json {
				return writeJSON(cmd, result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d requests to %s (%s)\n",
				result.RecordCount, result.Path, humanBytes(result.Size))
			return nil
		},
	}

	f := exportCmd.Flags()
	f.StringVar(&flags.format, "format", string(export.FormatJSON), "Export format: json or csv")
	f.StringVar(&flags.urgency, "urgency", "", "Only export requests with this urgency: normal or urgent")
	f.StringVar(&flags.from, "from", "", "Only export requests created on or after this date")
	f.StringVar(&flags.to, "to", "", "Only export requests created on or before this date")
	f.BoolVar(&flags.metadata, "metadata", false, "Include a metadata block in JSON exports")

	exportCmd.AddCommand(newExportListCommand(ctx))
	exportCmd.AddCommand(newExportCleanupCommand(ctx))

	return exportCmd
}

func (f *exportFlags) options() (export.Options, error) {
	opts := export.Options{
		Format:          export.Format(f.format),
		Urgency:         support.Urgency(f.urgency),
		IncludeMetadata: f.metadata,
	}
	if !opts.Format.Valid() {
		return opts, fmt.Errorf("--format must be json or csv, got %q", f.format)
	}
	if opts.Urgency != "" && !opts.Urgency.Valid() {
		return opts, fmt.Errorf("--urgency must be normal or urgent, got %q", f.urgency)
	}
	if f.from != "" {
		t, err := export.ParseDateBound(f.from, false)
		if err != nil {
			return opts, fmt.Errorf("--from: %w", err)
		}
		opts.StartDate = &t
	}
	if f.to != "" {
		t, err := export.ParseDateBound(f.to, true)
		if err != nil {
			return opts, fmt.Errorf("--to: %w", err)
		}
		opts.EndDate = &t
	}
	if opts.StartDate != nil && opts.EndDate != nil && opts.StartDate.After(*opts.EndDate) {
		return opts, fmt.Errorf("--from %s is after --to %s", f.from, f.to)
	}
	return opts, nil
}

func newExportListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List export files, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.ensure(cmd)
			if err != nil {
				return err
			}
			infos, err := c.Exports.ListExports()
			if err != nil {
				return fmt.Errorf("list exports: %w", err)
			}
			if ctx.flags.json {
				return writeJSON(cmd, infos)
			}
			if len(infos) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No exports in %s\n", c.Exports.Dir())
				return nil
			}
			rows := make([][]string, 0, len(infos))
			for _, info := range infos {
				rows = append(rows, []string{
					info.Filename,
					string(info.Format),
					formatStamp(info.CreatedAt),
					humanBytes(info.Size),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"File", "Format", "Created", "Size"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}
}

func newExportCleanupCommand(ctx *commandContext) *cobra.Command {
	var keep int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete all but the newest exports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if keep < 1 {
				return fmt.Errorf("--keep must be at least 1, got %d", keep)
			}
			c, err := ctx.ensure(cmd)
			if err != nil {
				return err
			}
			result, err := c.Exports.CleanupOldExports(keep)
			if err != nil {
				return fmt.Errorf("clean up exports: %w", err)
			}
			if ctx.flags.json {
				return writeJSON(cmd, result)
			}
			printCleanup(cmd, "exports", result.Kept, result.Deleted, result.Failed)
			return nil
		},
	}
	cmd.Flags().IntVar(&keep, "keep", export.DefaultKeep, "Number of exports to keep")
	return cmd
}
