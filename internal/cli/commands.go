package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"lerian-mcp-conflicts/internal/analytics"
	"lerian-mcp-conflicts/pkg/types"
)

func addQueryFlags(cmd *cobra.Command, q *analytics.Query) {
	cmd.Flags().StringVarP((*string)(&q.TimeRange), "range", "r", string(types.TimeRangeWeek), "Time range: week, month or year")
	cmd.Flags().StringVarP(&q.UserID, "user", "u", "", "Only conflicts this user took part in or resolved")
	cmd.Flags().StringVarP(&q.DocumentID, "document", "d", "", "Only conflicts in this document")
}

// createAnalyzeCommand creates the 'analyze' command
func (c *CLI) createAnalyzeCommand() *cobra.Command {
	var q analytics.Query

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Aggregate conflicts over a time range",
		Example: `  conflictctl analyze --range month
  conflictctl analyze -r week -d design-doc -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := c.aggregator.Analyze(cmd.Context(), q)
			if err != nil {
				return err
			}
			return c.getOutputFormatter(cmd).FormatAnalytics(result)
		},
	}
	addQueryFlags(cmd, &q)
	return cmd
}

// createUserStatsCommand creates the 'user-stats' command
func (c *CLI) createUserStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "user-stats <user-id>",
		Short: "Show a user's editing pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.getOutputFormatter(cmd).FormatUserStats(c.service.GetUserStats(cmd.Context(), args[0]))
		},
	}
}

// createDocumentStatsCommand creates the 'document-stats' command
func (c *CLI) createDocumentStatsCommand() *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "document-stats <document-id>",
		Short: "Show conflict totals and hotspots for a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := c.getOutputFormatter(cmd)
			if err := f.FormatDocumentStats(c.service.GetDocumentStats(cmd.Context(), args[0])); err != nil {
				return err
			}
			if !list {
				return nil
			}
			return f.FormatConflictList(c.service.GetDocumentConflicts(cmd.Context(), args[0]))
		},
	}
	cmd.Flags().BoolVarP(&list, "list", "l", false, "Also list every conflict")
	return cmd
}

// createSuggestCommand creates the 'suggest' command
func (c *CLI) createSuggestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "suggest <conflict-id> <user-id>",
		Short: "Suggest how a user should resolve a conflict",
		Long: `Suggest how a user should resolve a conflict, based on the user's resolution
history and collaborators.

Not read-only: the user's stored editing pattern is updated with the collaborator
profile rebuilt from their conflict history.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.getOutputFormatter(cmd).FormatSuggestion(c.service.Suggest(cmd.Context(), args[0], args[1]))
		},
	}
}

// createReportCommand creates the 'report' command
func (c *CLI) createReportCommand() *cobra.Command {
	var (
		q      analytics.Query
		format string
		file   string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render an analytics report as markdown or HTML",
		Example: `  conflictctl report --range month > report.md
  conflictctl report --format html --file report.html`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := c.aggregator.Analyze(cmd.Context(), q)
			if err != nil {
				return err
			}
			body, err := c.renderer.Render(result, format)
			if err != nil {
				return err
			}
			if file == "" {
				_, err = fmt.Fprint(cmd.OutOrStdout(), body)
				return err
			}
			if err := os.WriteFile(file, []byte(body), 0o600); err != nil {
				return fmt.Errorf("failed to write report: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s report written to %s\n", format, file)
			return nil
		},
	}
	addQueryFlags(cmd, &q)
	cmd.Flags().StringVarP(&format, "format", "f", analytics.FormatMarkdown, "Report format: markdown or html")
	cmd.Flags().StringVar(&file, "file", "", "Write the report to a file instead of stdout")
	return cmd
}
