package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aman-cerp/ragmcp/internal/mcpserver"
)

func newServeCmd() *cobra.Command {
	var transport string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Builds every retrieval strategy and its dependencies, then serves
the research_deep, evaluate_rag, and strategy_compare tools plus the
retriever://, strategies://, collection://, cache://, and metrics://
resources until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := buildDependencies()
			if err != nil {
				return err
			}
			if transport != "" {
				deps.Config.Server.Transport = transport
			}
			if port != 0 {
				deps.Config.Server.Port = port
			}

			server, err := mcpserver.NewServer(deps)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return server.Serve(ctx)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "", "transport to serve on: stdio or http (overrides config)")
	cmd.Flags().IntVar(&port, "port", 0, "port to listen on for http transport (overrides config)")

	return cmd
}
