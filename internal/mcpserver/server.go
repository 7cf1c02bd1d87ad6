package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all coordinator tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("hmsc", "1.0.0")
	client := NewCoordinatorClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolCreateSession, h.HandleCreateSession)
	s.AddTool(ToolGetSession, h.HandleGetSession)
	s.AddTool(ToolListSessions, h.HandleListSessions)
	s.AddTool(ToolInjectTransaction, h.HandleInjectTransaction)
	s.AddTool(ToolCancelSession, h.HandleCancelSession)
	s.AddTool(ToolGetTransactionSummary, h.HandleGetTransactionSummary)
	s.AddTool(ToolGetJournal, h.HandleGetJournal)

	return s
}
