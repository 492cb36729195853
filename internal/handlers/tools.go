package handlers

import (
	"net/http"

	"github.com/bobmcallan/toolhost/internal/schema"
	"github.com/bobmcallan/toolhost/internal/tool"
)

// CatalogTool is one entry of GET /api/tools.
type CatalogTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Params      []CatalogParam `json:"params"`
	// Returns is the schema token of the result, "" for void tools.
	Returns  string `json:"returns"`
	ReadOnly bool   `json:"read_only"`
}

// CatalogParam describes one parameter by its schema token.
type CatalogParam struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Optional bool   `json:"optional"`
}

// BuildCatalog describes specs in registration order.
func BuildCatalog(specs []tool.Spec) []CatalogTool {
	catalog := make([]CatalogTool, 0, len(specs))
	for _, spec := range specs {
		ct := CatalogTool{
			Name:        spec.ResolvedName(),
			Description: spec.Description,
			Params:      make([]CatalogParam, 0, len(spec.Params)),
			ReadOnly:    spec.ReadOnly,
		}
		for _, p := range spec.Params {
			ct.Params = append(ct.Params, CatalogParam{
				Name:     p.Name,
				Type:     schema.TokenOf(p.Type),
				Optional: p.Type != nil && p.Type.Kind == tool.KindOptional,
			})
		}
		if spec.Returns != nil {
			ct.Returns = schema.TokenOf(spec.Returns)
		}
		catalog = append(catalog, ct)
	}
	return catalog
}

// ToolsHandler serves the tool catalog.
type ToolsHandler struct {
	catalog []CatalogTool
}

// NewToolsHandler builds the catalog once from specs.
func NewToolsHandler(specs []tool.Spec) *ToolsHandler {
	return &ToolsHandler{catalog: BuildCatalog(specs)}
}

// ServeHTTP handles GET /api/tools.
func (h *ToolsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"tools": h.catalog})
}
