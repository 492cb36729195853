package handlers

import (
	"net/http"

	"github.com/bobmcallan/toolhost/internal/common"
)

// HealthHandler handles health check requests.
type HealthHandler struct {
	logger *common.Logger
	app    string
	tools  int
}

// NewHealthHandler creates a new health handler for the served app.
func NewHealthHandler(logger *common.Logger, app string, tools int) *HealthHandler {
	return &HealthHandler{logger: logger, app: app, tools: tools}
}

// ServeHTTP handles GET /api/health.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"app":    h.app,
		"tools":  h.tools,
	})
}
