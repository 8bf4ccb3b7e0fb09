// Package cmd provides the CLI commands for ragmcp.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/aman-cerp/ragmcp/pkg/version"
)

// NewRootCmd creates the root command for the ragmcp CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "ragmcp",
		Short:   "Multi-strategy retrieval service exposed over MCP",
		Version: version.Version,
		Long: `ragmcp answers natural-language questions by retrieving relevant
passages from a document collection, using one of six interchangeable
retrieval strategies, and exposes them as MCP tools and resources for
consumption by AI agents.

Run 'ragmcp serve' to start the server.`,
	}

	cmd.SetVersionTemplate("ragmcp version {{.Version}}\n")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newStrategiesCmd())
	cmd.AddCommand(newEvalCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
