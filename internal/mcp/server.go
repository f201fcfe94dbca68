// Package mcp implements the MCP (Model Context Protocol) server for lockbox.
// Agents get read-only views of the vault; passwords are only ever returned
// masked.
package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/forest6511/lockbox/pkg/service"
)

// Server represents the MCP server for lockbox.
type Server struct {
	server *mcp.Server
	svc    *service.Service
	log    zerolog.Logger
}

// ServerOptions contains configuration options for the MCP server.
type ServerOptions struct {
	// Version is reported to clients in the implementation info.
	Version string
	Logger  zerolog.Logger
}

// NewServer creates a new MCP server over svc.
func NewServer(svc *service.Service, opts ServerOptions) *Server {
	if opts.Version == "" {
		opts.Version = "dev"
	}

	s := &Server{
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "lockbox",
			Version: opts.Version,
		}, nil),
		svc: svc,
		log: opts.Logger,
	}
	s.registerTools()
	return s
}

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "item_list",
		Description: "List vault items with folder, username, first URI and credential age. Optional folder_id, unfiled and query filters. Does NOT return passwords.",
	}, s.handleItemList)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "item_get_masked",
		Description: "Get one item with its URIs, custom fields and a masked password (e.g. '****WXYZ') plus the password length. Hidden field values are masked too.",
	}, s.handleItemGetMasked)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "folder_list",
		Description: "List folders with the number of items in each.",
	}, s.handleFolderList)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "security_report",
		Description: "Score password strength, reuse and age across the vault. Item ids are included only when include_ids is true.",
	}, s.handleSecurityReport)
}

// Run starts the MCP server using stdio transport.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info().Msg("mcp server listening on stdio")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}
