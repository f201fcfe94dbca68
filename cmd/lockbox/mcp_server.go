package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/forest6511/lockbox/internal/mcp"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func init() {
	rootCmd.AddCommand(mcpServerCmd)
}

// mcpServerCmd starts the MCP server for AI coding assistant integration
var mcpServerCmd = &cobra.Command{
	Use:   "mcp-server",
	Short: "Start the MCP server for AI coding assistant integration",
	Long: `Start the MCP server that provides read-only vault access to AI coding assistants.

The server implements the Model Context Protocol (MCP) over stdio transport.
Passwords are never returned in clear.

Available tools:
  - item_list:        List items with folder, username, first URI and age
  - item_get_masked:  Get an item with a masked password (e.g., "****WXYZ")
  - folder_list:      List folders with item counts
  - security_report:  Password strength, reuse and age report

Example MCP configuration (~/.claude.json):
  {
    "mcpServers": {
      "lockbox": {
        "type": "stdio",
        "command": "/path/to/lockbox",
        "args": ["mcp-server"]
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCPServer(cmd.Context())
	},
}

func runMCPServer(parent context.Context) error {
	server := mcp.NewServer(svc, mcp.ServerOptions{Version: version, Logger: logger})

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx); err != nil {
		// Don't report context canceled as an error
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}
