package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aman-cerp/ragmcp/internal/mcpserver"
)

func newStrategiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "strategies",
		Short: "List the available retrieval strategies",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, entry := range mcpserver.StrategyCatalog() {
				fmt.Printf("%-12s %s\n", entry.Name, entry.Traits)
			}
			return nil
		},
	}
}
