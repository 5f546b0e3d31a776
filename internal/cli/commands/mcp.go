package commands

import (
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/dbtlineage/internal/mcpserver"
)

// NewMCPCommand creates the mcp command.
func NewMCPCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve lineage tools to MCP clients over stdio",
		Long: `Start a Model Context Protocol server on stdin/stdout exposing the
upstream, downstream, impact, model info, resolve and list tools.

Logs go to stderr so they never mix with protocol messages.`,
		Example: `  # Register with an MCP client
  dbtlineage mcp --catalog target/catalog.json --manifest target/manifest.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			cmdCtx.Logger.Debug("starting MCP server", "project", cmdCtx.Registry.Project())
			return mcpserver.New(cmdCtx.Service, version).ServeStdio()
		},
	}
}
