package handlers

import (
	"net/http"
	"strconv"
)

// SchemaHandler serves the generated interface definition document.
type SchemaHandler struct {
	document []byte
}

// NewSchemaHandler serves document as-is. The slice must not be modified
// afterwards.
func NewSchemaHandler(document []byte) *SchemaHandler {
	return &SchemaHandler{document: document}
}

// ServeHTTP handles GET /api/schema.
func (h *SchemaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(h.document)))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		w.Write(h.document)
	}
}
