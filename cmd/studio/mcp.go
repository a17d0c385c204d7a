package main

import (
	"context"

	"github.com/spf13/cobra"

	"gwi.com/mermaid-studio/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the studio to AI agents over MCP (stdio)",
	Long: `Starts an MCP server on stdin/stdout. Agents can read and replace the
current diagram, render and validate Mermaid, browse examples, generate
with the configured model and manage snapshots. Logs go to stderr.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		go a.Follow(ctx)

		mcp.Version = Version
		return mcp.NewServer(a.Studio).Serve()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
