package tool

import (
	"errors"
	"fmt"
)

// RegistrationError reports a tool that cannot be registered. It is fatal
// at startup.
type RegistrationError struct {
	Tool   string
	Member string
	Reason string
}

func (e *RegistrationError) Error() string {
	if e.Member != "" && e.Member != e.Tool {
		return fmt.Sprintf("register tool %q (member %s): %s", e.Tool, e.Member, e.Reason)
	}
	return fmt.Sprintf("register tool %q: %s", e.Tool, e.Reason)
}

// Provider is implemented by applications (and built-in tool sets) that
// expose tools. RegisterTools is called once, at construction time.
type Provider interface {
	RegisterTools(r *Registrar)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(r *Registrar)

func (f ProviderFunc) RegisterTools(r *Registrar) { f(r) }

// Registrar collects tool specs in registration order. Problems are
// recorded and reported by Extract rather than panicking mid-registration.
type Registrar struct {
	specs []Spec
	owner map[string]string
	errs  []error
}

// NewRegistrar creates an empty Registrar.
func NewRegistrar() *Registrar {
	return &Registrar{owner: make(map[string]string)}
}

// Add registers spec. A name already taken by an earlier tool is an error;
// the earlier tool is kept.
func (r *Registrar) Add(spec Spec) {
	name := spec.ResolvedName()
	if err := validate(&spec); err != nil {
		r.errs = append(r.errs, err)
		return
	}
	if prev, exists := r.owner[name]; exists {
		r.errs = append(r.errs, &RegistrationError{
			Tool:   name,
			Member: spec.Member,
			Reason: fmt.Sprintf("name already registered by %s", prev),
		})
		return
	}
	r.owner[name] = memberOrName(spec)
	r.specs = append(r.specs, spec)
}

// Tool starts a fluent registration for the operation identified by member.
// The registration completes when Handle is called.
func (r *Registrar) Tool(member string) *Builder {
	return &Builder{registrar: r, spec: Spec{Member: member}}
}

// Specs returns the registered specs in registration order.
func (r *Registrar) Specs() []Spec {
	out := make([]Spec, len(r.specs))
	copy(out, r.specs)
	return out
}

// Err returns all recorded registration problems joined, or nil.
func (r *Registrar) Err() error {
	return errors.Join(r.errs...)
}

// Extract runs every provider against one Registrar and returns the
// resulting specs in discovery order.
func Extract(providers ...Provider) ([]Spec, error) {
	r := NewRegistrar()
	for _, p := range providers {
		if p == nil {
			continue
		}
		p.RegisterTools(r)
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return r.Specs(), nil
}

// Builder assembles a Spec fluently.
type Builder struct {
	registrar *Registrar
	spec      Spec
}

// Named overrides the exposed tool name.
func (b *Builder) Named(name string) *Builder {
	b.spec.Name = name
	return b
}

func (b *Builder) Describe(description string) *Builder {
	b.spec.Description = description
	return b
}

// Param appends a parameter. Declaration order is preserved.
func (b *Builder) Param(name string, t *Type) *Builder {
	b.spec.Params = append(b.spec.Params, Param{Name: name, Type: t})
	return b
}

func (b *Builder) Returns(t *Type) *Builder {
	b.spec.Returns = t
	return b
}

// ReadOnly marks the tool as not mutating application state.
func (b *Builder) ReadOnly() *Builder {
	b.spec.ReadOnly = true
	return b
}

// Handle sets the handler and registers the spec.
func (b *Builder) Handle(h Handler) {
	b.spec.Handler = h
	b.registrar.Add(b.spec)
}

func memberOrName(spec Spec) string {
	if spec.Member != "" {
		return spec.Member
	}
	return spec.ResolvedName()
}

func validate(spec *Spec) error {
	name := spec.ResolvedName()
	if name == "" {
		return &RegistrationError{Reason: "tool has neither a name nor a member identifier"}
	}
	if !IsIdentifier(name) {
		return &RegistrationError{Tool: name, Member: spec.Member, Reason: "name must match [A-Za-z_][A-Za-z0-9_]*"}
	}
	if spec.Handler == nil {
		return &RegistrationError{Tool: name, Member: spec.Member, Reason: "handler is nil"}
	}
	seen := make(map[string]bool, len(spec.Params))
	for i, p := range spec.Params {
		if !IsIdentifier(p.Name) {
			return &RegistrationError{Tool: name, Member: spec.Member, Reason: fmt.Sprintf("parameter %d has invalid name %q", i, p.Name)}
		}
		if seen[p.Name] {
			return &RegistrationError{Tool: name, Member: spec.Member, Reason: fmt.Sprintf("duplicate parameter %q", p.Name)}
		}
		seen[p.Name] = true
		// Unannotated parameters are treated as strings.
		if p.Type == nil {
			spec.Params[i].Type = String()
		}
	}
	return nil
}

// IsIdentifier reports whether s is usable as a tool, parameter or message
// name in every surface (URL segment, RPC method, proto identifier).
func IsIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
