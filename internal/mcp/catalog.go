package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/bobmcallan/toolhost/internal/tool"
)

// BuildMCPTool converts a tool spec into an mcp.Tool whose input schema
// follows the declared parameter types.
func BuildMCPTool(spec tool.Spec) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(spec.Description)}
	for _, p := range spec.Params {
		opts = append(opts, buildParamOption(p))
	}
	if spec.ReadOnly {
		opts = append(opts, mcp.WithReadOnlyHintAnnotation(true))
	}
	return mcp.NewTool(spec.ResolvedName(), opts...)
}

// buildParamOption places the parameter's schema on the tool. Optional
// parameters are described by their present alternative and are not
// required.
func buildParamOption(p tool.Param) mcp.ToolOption {
	t := p.Type
	required := t == nil || t.Kind != tool.KindOptional
	return func(mt *mcp.Tool) {
		if mt.InputSchema.Properties == nil {
			mt.InputSchema.Properties = make(map[string]any)
		}
		mt.InputSchema.Properties[p.Name] = JSONSchema(t)
		if required {
			mt.InputSchema.Required = append(mt.InputSchema.Required, p.Name)
		}
	}
}

// JSONSchema describes t as a JSON schema fragment. Composite types
// seen again on the current path collapse to a plain object.
func JSONSchema(t *tool.Type) map[string]any {
	return jsonSchema(t, map[string]bool{})
}

func jsonSchema(t *tool.Type, visiting map[string]bool) map[string]any {
	if t == nil {
		return map[string]any{"type": "string"}
	}
	switch t.Kind {
	case tool.KindInt:
		return map[string]any{"type": "integer"}
	case tool.KindFloat:
		return map[string]any{"type": "number"}
	case tool.KindBool:
		return map[string]any{"type": "boolean"}
	case tool.KindBytes:
		return map[string]any{"type": "string", "contentEncoding": "base64"}
	case tool.KindNull:
		return map[string]any{"type": "null"}
	case tool.KindSequence:
		return map[string]any{"type": "array", "items": jsonSchema(t.Elem, visiting)}
	case tool.KindMapping:
		return map[string]any{"type": "object", "additionalProperties": jsonSchema(t.Elem, visiting)}
	case tool.KindOptional:
		return jsonSchema(t.Present(), visiting)
	case tool.KindComposite:
		if visiting[t.Name] {
			return map[string]any{"type": "object", "title": t.Name}
		}
		visiting[t.Name] = true
		defer delete(visiting, t.Name)

		props := make(map[string]any, len(t.Fields))
		var required []string
		for _, f := range t.Fields {
			props[f.Name] = jsonSchema(f.Type, visiting)
			if f.Type == nil || f.Type.Kind != tool.KindOptional {
				required = append(required, f.Name)
			}
		}
		schema := map[string]any{"type": "object", "title": t.Name, "properties": props}
		if len(required) > 0 {
			schema["required"] = required
		}
		return schema
	default:
		return map[string]any{"type": "string"}
	}
}
