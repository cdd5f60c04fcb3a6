// Package cli implements conflictctl, the command-line view over the conflict service.
package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"lerian-mcp-conflicts/internal/analytics"
	"lerian-mcp-conflicts/internal/conflict"
)

// Output formats
const (
	OutputTable = "table"
	OutputJSON  = "json"
)

// CLI represents the command-line interface
type CLI struct {
	RootCmd      *cobra.Command // Exported for version setting
	service      *conflict.Service
	aggregator   *analytics.Aggregator
	renderer     *analytics.Renderer
	outputFormat string
	noColor      bool
}

// NewCLI creates a new CLI instance
func NewCLI(service *conflict.Service, aggregator *analytics.Aggregator) *CLI {
	c := &CLI{
		service:    service,
		aggregator: aggregator,
		renderer:   analytics.NewRenderer(),
	}
	c.setupRootCommand()
	c.setupCommands()
	return c
}

// Execute runs the root command
func (c *CLI) Execute(ctx context.Context) error {
	return c.RootCmd.ExecuteContext(ctx)
}

// setupRootCommand configures the root command
func (c *CLI) setupRootCommand() {
	c.RootCmd = &cobra.Command{
		Use:   "conflictctl",
		Short: "Inspect editing conflicts, suggestions and analytics",
		Long: `conflictctl reads the conflict store of the MCP conflict service.

It reports per-user and per-document statistics, suggests resolutions
and renders analytics reports as markdown or HTML.`,
		Version: "0.1.0",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch c.outputFormat {
			case OutputTable, OutputJSON:
			default:
				return fmt.Errorf("unsupported output format %q (use table or json)", c.outputFormat)
			}
			if c.noColor {
				color.NoColor = true
			}
			return nil
		},
		SilenceUsage: true,
	}

	c.RootCmd.PersistentFlags().StringVarP(&c.outputFormat, "output", "o", OutputTable,
		"Output format (table, json)")
	c.RootCmd.PersistentFlags().BoolVar(&c.noColor, "no-color", false,
		"Disable colored output")
}

// setupCommands adds all subcommands to root
func (c *CLI) setupCommands() {
	c.RootCmd.AddCommand(
		c.createAnalyzeCommand(),
		c.createUserStatsCommand(),
		c.createDocumentStatsCommand(),
		c.createSuggestCommand(),
		c.createReportCommand(),
	)
}
