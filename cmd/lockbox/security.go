package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forest6511/lockbox/pkg/security"
)

// Security command flags
var (
	securityJSON    bool
	securityShowIDs bool
)

// securityCmd reports on password health.
var securityCmd = &cobra.Command{
	Use:   "security",
	Short: "Analyze vault security health",
	Long: `Analyze the security health of your vault and get recommendations.

The security score is calculated from:
  - Password Strength (0-40): Average strength of item passwords
  - Uniqueness (0-30): Share of passwords that are not reused
  - Freshness (0-30): Share of items revised within 180 days

Items older than 180 days are flagged for rotation, items older than
365 days are critical.

Example:
  lockbox security              # Show security score and issues
  lockbox security --show-ids   # Name the affected items
  lockbox security --json       # Output in JSON format`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		score, err := svc.SecurityReport(cmd.Context(), securityShowIDs)
		if err != nil {
			return fmt.Errorf("failed to calculate security score: %w", err)
		}

		if securityJSON {
			return printJSON(cmd.OutOrStdout(), score)
		}
		outputSecurityText(cmd.OutOrStdout(), score)
		return nil
	},
}

// outputSecurityText outputs the security score as formatted text.
func outputSecurityText(out io.Writer, score *security.SecurityScore) {
	emoji := "🔒"
	var rating string
	switch {
	case score.Overall >= 90:
		rating = "Excellent"
	case score.Overall >= 70:
		rating = "Good"
	case score.Overall >= 50:
		emoji = "⚠️"
		rating = "Fair"
	default:
		emoji = "🚨"
		rating = "Needs Attention"
	}

	fmt.Fprintf(out, "%s Security Score: %d/100 (%s)\n", emoji, score.Overall, rating)
	fmt.Fprintf(out, "Scanned %d items\n\n", score.Scanned)

	fmt.Fprintln(out, "Components:")
	fmt.Fprintf(out, "  Password Strength: %2d/40 %s\n", score.Components.StrengthScore, progressBar(score.Components.StrengthScore, 40))
	fmt.Fprintf(out, "  Uniqueness:        %2d/30 %s\n", score.Components.UniquenessScore, progressBar(score.Components.UniquenessScore, 30))
	fmt.Fprintf(out, "  Freshness:         %2d/30 %s\n", score.Components.FreshnessScore, progressBar(score.Components.FreshnessScore, 30))
	fmt.Fprintln(out)

	if len(score.Issues) > 0 {
		fmt.Fprintf(out, "⚠️  Issues (%d):\n", len(score.Issues))
		for i, issue := range score.Issues {
			typeLabel := strings.ToUpper(string(issue.Type))
			idInfo := ""
			if issue.ItemID != "" {
				idInfo = fmt.Sprintf(" %q", issue.ItemID)
			} else if len(issue.ItemIDs) > 0 {
				idInfo = " " + strings.Join(issue.ItemIDs, ", ")
			}
			fmt.Fprintf(out, "  %d. [%s/%s]%s: %s\n", i+1, typeLabel, issue.Severity, idInfo, issue.Description)
		}
		fmt.Fprintln(out)
	}

	if len(score.Suggestions) > 0 {
		fmt.Fprintln(out, "💡 Suggestions:")
		for _, suggestion := range score.Suggestions {
			fmt.Fprintf(out, "  - %s\n", suggestion)
		}
	}
}

// progressBar creates a simple ASCII progress bar.
func progressBar(value, maxVal int) string {
	width := 20
	filled := value * width / maxVal
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}

func init() {
	rootCmd.AddCommand(securityCmd)

	securityCmd.Flags().BoolVar(&securityJSON, "json", false, "Output in JSON format")
	securityCmd.Flags().BoolVar(&securityShowIDs, "show-ids", false, "Include item ids in issues")
}
