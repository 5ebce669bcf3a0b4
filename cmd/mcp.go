package cmd

import (
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/joescharf/issuetracker/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets MCP clients list, create, update and delete issues. Configure a
client with:

  {
    "mcpServers": {
      "issuetracker": { "command": "issuetracker", "args": ["mcp"] }
    }
  }

Available tools: issues_list, issues_create, issues_update, issues_delete`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), shutdownSignals()...)
		defer stop()

		svc, err := getService(ctx)
		if err != nil {
			return err
		}
		return mcp.NewServer(svc, buildVersion).ServeStdio(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
