package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forest6511/lockbox/pkg/importer"
)

// Import command flags
var (
	importDryRun bool
	importJSON   bool
)

// importCmd merges an unencrypted JSON export into the vault.
var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import an unencrypted JSON export",
	Long: `Import folders and items from an unencrypted Bitwarden-style JSON export.

Folders and items are merged by id: existing rows are replaced, URIs are
replaced and custom fields are appended. The whole file is imported in one
transaction; on any error nothing is written.

Examples:
  lockbox import export.json
  lockbox import export.json --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := importer.ParseFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read export: %w", err)
		}

		summary, err := svc.Import(cmd.Context(), doc, importer.Options{DryRun: importDryRun})
		if err != nil {
			return describeImportError(err)
		}

		out := cmd.OutOrStdout()
		if importJSON {
			return printJSON(out, summary)
		}

		if summary.DryRun {
			fmt.Fprintln(out, "Dry run: no changes were written")
		}
		fmt.Fprintf(out, "Folders: %d\n", summary.FoldersImported)
		fmt.Fprintf(out, "Items:   %d\n", summary.ItemsImported)
		fmt.Fprintf(out, "URIs:    %d\n", summary.URIsImported)
		fmt.Fprintf(out, "Fields:  %d\n", summary.FieldsImported)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Run the import and roll it back")
	importCmd.Flags().BoolVar(&importJSON, "json", false, "Output the summary in JSON format")
}
