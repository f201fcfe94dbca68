package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forest6511/lockbox/pkg/vault"
)

var checkJSON bool

type checkOutput struct {
	Integrity *vault.IntegrityReport `json:"integrity"`
	Stats     *vault.Stats           `json:"stats"`
}

// checkCmd runs the database consistency checks.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check vault integrity and show statistics",
	Long: `Run SQLite's integrity and foreign key checks, verify the required
tables and the schema version, and print row counts.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := svc.CheckIntegrity(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to check integrity: %w", err)
		}
		stats, err := svc.Stats(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to collect statistics: %w", err)
		}

		out := cmd.OutOrStdout()
		if checkJSON {
			if err := printJSON(out, checkOutput{Integrity: report, Stats: stats}); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(out, "Schema version: %d\n", report.SchemaVersion)
			fmt.Fprintf(out, "Folders:   %d\n", stats.Folders)
			fmt.Fprintf(out, "Items:     %d (%d unfiled, %d favorites)\n", stats.Items, stats.Unfiled, stats.Favorites)
			fmt.Fprintf(out, "URIs:      %d\n", stats.URIs)
			fmt.Fprintf(out, "Fields:    %d\n", stats.Fields)
			if report.OK() {
				fmt.Fprintln(out, "✓ Integrity check passed")
			} else {
				fmt.Fprintf(out, "✗ Integrity check found %d problems:\n", len(report.Problems))
				for _, p := range report.Problems {
					fmt.Fprintf(out, "  - %s\n", p)
				}
			}
		}

		if !report.OK() {
			return errors.New("vault integrity check failed")
		}
		return nil
	},
}

// inspectCmd prints the schema.
var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show vault tables and columns",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tables, err := svc.Tables(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to inspect schema: %w", err)
		}

		out := cmd.OutOrStdout()
		if checkJSON {
			return printJSON(out, tables)
		}
		for _, t := range tables {
			fmt.Fprintf(out, "%s\n", t.Name)
			for _, c := range t.Columns {
				var attrs []string
				if c.Primary {
					attrs = append(attrs, "PRIMARY KEY")
				}
				if c.NotNull {
					attrs = append(attrs, "NOT NULL")
				}
				fmt.Fprintf(out, "  %-14s %-8s %s\n", c.Name, c.Type, strings.Join(attrs, " "))
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd, inspectCmd)

	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "Output in JSON format")
	inspectCmd.Flags().BoolVar(&checkJSON, "json", false, "Output in JSON format")
}
