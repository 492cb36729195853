package tool

import (
	"strings"
)

// Kind identifies the variant held by a Type.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindInt
	KindFloat
	KindString
	KindBool
	KindBytes
	KindNull
	KindSequence
	KindMapping
	KindOptional
	KindComposite
)

var kindNames = map[Kind]string{
	KindInvalid:   "invalid",
	KindInt:       "int",
	KindFloat:     "float",
	KindString:    "string",
	KindBool:      "bool",
	KindBytes:     "bytes",
	KindNull:      "null",
	KindSequence:  "sequence",
	KindMapping:   "mapping",
	KindOptional:  "optional",
	KindComposite: "composite",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// IsScalar reports whether k is one of the scalar kinds.
func (k Kind) IsScalar() bool {
	switch k {
	case KindInt, KindFloat, KindString, KindBool, KindBytes:
		return true
	}
	return false
}

// Type describes the shape of a tool parameter or return value.
//
// Only the fields relevant to Kind are set: Elem for sequences, Key and
// Elem for mappings, Alternatives for optionals, Name and Fields for
// composites. Composite types may reference themselves through their
// fields; consumers must memoize by Name.
type Type struct {
	Kind         Kind
	Elem         *Type
	Key          *Type
	Alternatives []*Type
	Name         string
	Fields       []Field
}

// Field is one named member of a composite type.
type Field struct {
	Name string
	Type *Type
}

func Int() *Type    { return &Type{Kind: KindInt} }
func Float() *Type  { return &Type{Kind: KindFloat} }
func String() *Type { return &Type{Kind: KindString} }
func Bool() *Type   { return &Type{Kind: KindBool} }
func Bytes() *Type  { return &Type{Kind: KindBytes} }
func Null() *Type   { return &Type{Kind: KindNull} }

// Sequence returns an ordered list of elem.
func Sequence(elem *Type) *Type {
	return &Type{Kind: KindSequence, Elem: elem}
}

// Mapping returns a key/value mapping. Keys are expected to be scalar but
// this is not enforced.
func Mapping(key, value *Type) *Type {
	return &Type{Kind: KindMapping, Key: key, Elem: value}
}

// Optional returns a union of the given alternatives where Null marks the
// absent case. Optional(Int()) is the common "int or nothing" form.
func Optional(alternatives ...*Type) *Type {
	return &Type{Kind: KindOptional, Alternatives: alternatives}
}

// Composite returns a named record type with ordered fields.
func Composite(name string, fields ...Field) *Type {
	return &Type{Kind: KindComposite, Name: name, Fields: fields}
}

// F is shorthand for constructing a composite Field.
func F(name string, t *Type) Field {
	return Field{Name: name, Type: t}
}

// Present returns the first non-null alternative of an optional type, or
// nil when every alternative is null.
func (t *Type) Present() *Type {
	if t == nil {
		return nil
	}
	for _, alt := range t.Alternatives {
		if alt != nil && alt.Kind != KindNull {
			return alt
		}
	}
	return nil
}

// String renders a canonical description of t. Composite types render by
// name only, which keeps the output finite for cyclic graphs.
func (t *Type) String() string {
	var b strings.Builder
	t.write(&b)
	return b.String()
}

func (t *Type) write(b *strings.Builder) {
	if t == nil {
		b.WriteString("none")
		return
	}
	switch t.Kind {
	case KindSequence:
		b.WriteString("[]")
		t.Elem.write(b)
	case KindMapping:
		b.WriteString("map[")
		t.Key.write(b)
		b.WriteString("]")
		t.Elem.write(b)
	case KindOptional:
		b.WriteString("optional(")
		for i, alt := range t.Alternatives {
			if i > 0 {
				b.WriteString("|")
			}
			alt.write(b)
		}
		b.WriteString(")")
	case KindComposite:
		b.WriteString(t.Name)
	default:
		b.WriteString(t.Kind.String())
	}
}
