// Package tool defines tool descriptors and the explicit registration step
// that turns an application's exposed operations into an ordered list of
// Specs.
package tool

import (
	"context"
)

// Handler runs one tool invocation. The owning application instance is
// bound by closure; args holds the decoded parameters keyed by name.
type Handler func(ctx context.Context, args Args) (any, error)

// Param is one declared tool parameter.
type Param struct {
	Name string
	Type *Type
}

// Spec describes one tool: its resolved name, ordered parameters, return
// type and handler.
type Spec struct {
	// Name overrides the tool name. When empty the Member identifier is used.
	Name string
	// Member is the identifier of the operation on the application.
	Member      string
	Description string
	Params      []Param
	// Returns is nil for tools that return nothing.
	Returns *Type
	// ReadOnly tools may run concurrently with each other; all other tools
	// are serialized against the application instance.
	ReadOnly bool
	Handler  Handler
}

// ResolvedName returns the name the tool is exposed under.
func (s Spec) ResolvedName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Member
}

// ParamNames returns parameter names in declaration order.
func (s Spec) ParamNames() []string {
	names := make([]string, len(s.Params))
	for i, p := range s.Params {
		names[i] = p.Name
	}
	return names
}

// Args holds decoded tool arguments. Values are canonical: int64, float64,
// string, bool, []byte, []any, map[string]any or nil.
type Args map[string]any

// Has reports whether name was supplied with a non-null value.
func (a Args) Has(name string) bool {
	v, ok := a[name]
	return ok && v != nil
}

func (a Args) Value(name string) any { return a[name] }

func (a Args) Int(name string) int64 {
	v, _ := a[name].(int64)
	return v
}

func (a Args) Float(name string) float64 {
	v, _ := a[name].(float64)
	return v
}

func (a Args) String(name string) string {
	v, _ := a[name].(string)
	return v
}

func (a Args) Bool(name string) bool {
	v, _ := a[name].(bool)
	return v
}

func (a Args) Bytes(name string) []byte {
	v, _ := a[name].([]byte)
	return v
}

// Strings returns a sequence argument of strings. Non-string elements are
// skipped.
func (a Args) Strings(name string) []string {
	items, _ := a[name].([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
