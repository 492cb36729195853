package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/bobmcallan/toolhost/internal/dispatch"
)

// RegisterTools registers every table entry as an MCP tool.
func RegisterTools(s *server.MCPServer, table *dispatch.Table) int {
	for _, spec := range table.Specs() {
		s.AddTool(BuildMCPTool(spec), ToolHandler(table, spec.ResolvedName()))
	}
	return table.Len()
}
