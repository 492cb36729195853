package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bobmcallan/toolhost/internal/handlers"
)

// setupRoutes configures all HTTP routes. Informational endpoints live
// under /api/ and every other single-segment POST is a tool call.
func (s *Server) setupRoutes() chi.Router {
	r := chi.NewRouter()
	r.NotFound(s.handleNotFound)
	r.MethodNotAllowed(s.handleMethodNotAllowed)

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodGet, "/health", s.app.HealthHandler)
		r.Method(http.MethodGet, "/version", s.app.VersionHandler)
		r.Method(http.MethodGet, "/schema", s.app.SchemaHandler)
		r.Method(http.MethodGet, "/tools", s.app.ToolsHandler)
		r.NotFound(s.handleNotFound)
	})

	// MCP endpoint (JSON-RPC over streamable HTTP)
	if s.app.MCPHandler != nil {
		r.Handle("/mcp", s.app.MCPHandler)
	}

	s.app.ToolHandler.Register(r)

	return r
}

// handleNotFound returns a JSON 404 for unmatched routes.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	handlers.WriteError(w, http.StatusNotFound, "the requested endpoint does not exist")
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	handlers.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
}
