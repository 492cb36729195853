// Package schema maps tool type descriptors to proto3 wire tokens and
// renders the interface definition document served alongside the tools.
package schema

import (
	"fmt"

	"github.com/bobmcallan/toolhost/internal/tool"
)

// Fallback is the token used for nil descriptors, unknown kinds and
// all-null optionals.
const Fallback = "string"

var scalarTokens = map[tool.Kind]string{
	tool.KindInt:    "int64",
	tool.KindFloat:  "double",
	tool.KindString: "string",
	tool.KindBool:   "bool",
	tool.KindBytes:  "bytes",
}

// MessageField is one numbered field of a generated message.
type MessageField struct {
	Token  string
	Name   string
	Number int
}

// Message is a generated message definition.
type Message struct {
	Name   string
	Fields []MessageField
}

// Definitions holds composite messages registered during one generation
// pass, in first-seen order.
type Definitions struct {
	order    []string
	messages map[string]*Message
}

// NewDefinitions returns an empty table.
func NewDefinitions() *Definitions {
	return &Definitions{messages: make(map[string]*Message)}
}

// Has reports whether name is registered, including names reserved while
// their fields are still being mapped.
func (d *Definitions) Has(name string) bool {
	_, ok := d.messages[name]
	return ok
}

// Get returns the registered message for name.
func (d *Definitions) Get(name string) (*Message, bool) {
	m, ok := d.messages[name]
	return m, ok
}

// Messages returns the registered messages in first-seen order.
func (d *Definitions) Messages() []*Message {
	out := make([]*Message, 0, len(d.order))
	for _, name := range d.order {
		out = append(out, d.messages[name])
	}
	return out
}

func (d *Definitions) Len() int { return len(d.order) }

// reserve registers an empty message under name so that recursive
// references resolve to it before its fields are known.
func (d *Definitions) reserve(name string) *Message {
	m := &Message{Name: name}
	d.messages[name] = m
	d.order = append(d.order, name)
	return m
}

// Mapper converts type descriptors to wire tokens, registering composite
// types in its Definitions table. A Mapper belongs to a single generation
// pass and is not safe for concurrent use.
type Mapper struct {
	defs *Definitions
	// synthesized message names (<tool>Request, <tool>Response) that
	// composite types may not reuse, mapped to the owning tool.
	synthesized map[string]string
}

// NewMapper creates a Mapper writing into defs. A nil defs gets a fresh
// table.
func NewMapper(defs *Definitions) *Mapper {
	if defs == nil {
		defs = NewDefinitions()
	}
	return &Mapper{defs: defs, synthesized: make(map[string]string)}
}

// Definitions returns the table the mapper writes into.
func (m *Mapper) Definitions() *Definitions { return m.defs }

// Synthesize marks name as a generated request or response message of
// the given tool.
func (m *Mapper) Synthesize(name, toolName string) {
	m.synthesized[name] = toolName
}

// Token returns the wire token for t. Scalars map through a fixed table,
// sequences become "repeated <T>", mappings "map<K, V>", optionals their
// first non-null alternative. Composite types are registered on first
// encounter and referenced by name.
//
// Nested sequences render as "repeated repeated T" and non-scalar mapping
// keys pass through unchanged. Neither is valid proto3; both are kept so
// the document describes what dispatch actually accepts.
func (m *Mapper) Token(t *tool.Type) (string, error) {
	if t == nil {
		return Fallback, nil
	}
	switch t.Kind {
	case tool.KindSequence:
		elem, err := m.Token(t.Elem)
		if err != nil {
			return "", err
		}
		return "repeated " + elem, nil
	case tool.KindMapping:
		key, err := m.Token(t.Key)
		if err != nil {
			return "", err
		}
		value, err := m.Token(t.Elem)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("map<%s, %s>", key, value), nil
	case tool.KindOptional:
		return m.Token(t.Present())
	case tool.KindComposite:
		return m.composite(t)
	}
	if token, ok := scalarTokens[t.Kind]; ok {
		return token, nil
	}
	return Fallback, nil
}

func (m *Mapper) composite(t *tool.Type) (string, error) {
	if !tool.IsIdentifier(t.Name) {
		return "", &tool.RegistrationError{Reason: fmt.Sprintf("composite type name %q is not an identifier", t.Name)}
	}
	if owner, ok := m.synthesized[t.Name]; ok {
		return "", &tool.RegistrationError{
			Tool:   owner,
			Reason: fmt.Sprintf("composite type %s collides with a generated message name", t.Name),
		}
	}
	if m.defs.Has(t.Name) {
		return t.Name, nil
	}

	msg := m.defs.reserve(t.Name)
	seen := make(map[string]bool, len(t.Fields))
	for i, f := range t.Fields {
		if !tool.IsIdentifier(f.Name) {
			return "", &tool.RegistrationError{Reason: fmt.Sprintf("composite type %s field %d has invalid name %q", t.Name, i, f.Name)}
		}
		if seen[f.Name] {
			return "", &tool.RegistrationError{Reason: fmt.Sprintf("composite type %s has duplicate field %q", t.Name, f.Name)}
		}
		seen[f.Name] = true

		token, err := m.Token(f.Type)
		if err != nil {
			return "", err
		}
		msg.Fields = append(msg.Fields, MessageField{Token: token, Name: f.Name, Number: i + 1})
	}
	return t.Name, nil
}

// TokenOf renders the token for t without keeping any definitions. Invalid
// composite names fall back to the descriptor's canonical string.
func TokenOf(t *tool.Type) string {
	token, err := NewMapper(nil).Token(t)
	if err != nil {
		return t.String()
	}
	return token
}
