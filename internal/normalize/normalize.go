// Package normalize reduces arbitrary handler results to values built only
// from nil, scalars, []any and map[string]any.
package normalize

import (
	"encoding"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Cycle replaces a value that refers back to one of its ancestors.
const Cycle = "<cycle>"

// TooDeep replaces values nested deeper than MaxDepth. Exporters that
// build a fresh value on every call have no identity to detect, so depth
// is the final bound.
const TooDeep = "<too deep>"

// MaxDepth bounds the nesting of the normalized output.
const MaxDepth = 512

// Exporter is implemented by values that provide their own canonical
// mapping form. The export is itself normalized.
type Exporter interface {
	Export() map[string]any
}

var (
	exporterType      = reflect.TypeOf((*Exporter)(nil)).Elem()
	textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
	stringerType      = reflect.TypeOf((*fmt.Stringer)(nil)).Elem()
	errorType         = reflect.TypeOf((*error)(nil)).Elem()
)

// Value normalizes v. It never fails: values with no canonical form are
// rendered with fmt.Sprint.
func Value(v any) any {
	n := &normalizer{visiting: make(map[visit]bool)}
	return n.value(reflect.ValueOf(v))
}

// visit identifies a reference-like value on the current path.
type visit struct {
	ptr uintptr
	typ reflect.Type
	len int
}

type normalizer struct {
	visiting map[visit]bool
	depth    int
}

func (n *normalizer) value(rv reflect.Value) any {
	// Interfaces are unwrapped first so capabilities and the cycle guard
	// see the dynamic value and its identity.
	for rv.IsValid() && rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil
	}

	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice:
		if rv.IsNil() {
			return nil
		}
	}

	if n.depth >= MaxDepth {
		return TooDeep
	}
	n.depth++
	defer func() { n.depth-- }()

	if out, ok := n.scalar(rv); ok {
		return out
	}

	if out, ok := n.capability(rv); ok {
		return out
	}

	switch rv.Kind() {
	case reflect.Pointer:
		return n.guard(rv, func() any { return n.value(rv.Elem()) })
	case reflect.Slice:
		return n.guard(rv, func() any { return n.sequence(rv) })
	case reflect.Array:
		return n.sequence(rv)
	case reflect.Map:
		return n.guard(rv, func() any { return n.mapping(rv) })
	case reflect.Struct:
		return n.record(rv)
	}
	return fmt.Sprint(rv.Interface())
}

// scalar passes booleans, numbers, strings and byte slices through with
// their underlying Go type.
func (n *normalizer) scalar(rv reflect.Value) (any, bool) {
	// Named scalar types with their own text form are handled as capabilities.
	if rv.Type().PkgPath() != "" && hasCapability(rv) {
		return nil, false
	}
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint(), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	case reflect.String:
		return rv.String(), true
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return append([]byte(nil), rv.Bytes()...), true
		}
	}
	return nil, false
}

func hasCapability(rv reflect.Value) bool {
	t := rv.Type()
	return t.Implements(exporterType) || t.Implements(textMarshalerType) ||
		t.Implements(stringerType) || t.Implements(errorType)
}

// capability handles values that describe themselves: exporters first,
// then text marshalers, errors and stringers. Structs with exported fields
// are enumerated field by field rather than rendered as text.
func (n *normalizer) capability(rv reflect.Value) (any, bool) {
	if !rv.CanInterface() {
		return nil, false
	}
	iface := rv.Interface()
	textual := !hasExportedFields(rv.Type())

	if exp, ok := iface.(Exporter); ok {
		return n.guard(rv, func() any {
			m := exp.Export()
			if m == nil {
				return nil
			}
			return n.value(reflect.ValueOf(m))
		}), true
	}
	if !textual {
		return nil, false
	}
	if tm, ok := iface.(encoding.TextMarshaler); ok {
		text, err := tm.MarshalText()
		if err != nil {
			return fmt.Sprint(iface), true
		}
		return string(text), true
	}
	if err, ok := iface.(error); ok {
		return err.Error(), true
	}
	if s, ok := iface.(fmt.Stringer); ok {
		return s.String(), true
	}
	return nil, false
}

func hasExportedFields(t reflect.Type) bool {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return false
	}
	for i := 0; i < t.NumField(); i++ {
		if t.Field(i).IsExported() {
			return true
		}
	}
	return false
}

// guard runs fn unless rv is already on the current path, in which case
// the cycle marker is returned instead.
func (n *normalizer) guard(rv reflect.Value, fn func() any) any {
	key, ok := identity(rv)
	if !ok {
		return fn()
	}
	if n.visiting[key] {
		return Cycle
	}
	n.visiting[key] = true
	defer delete(n.visiting, key)
	return fn()
}

func identity(rv reflect.Value) (visit, bool) {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map:
		return visit{ptr: rv.Pointer(), typ: rv.Type()}, true
	case reflect.Slice:
		// Sub-slices share a data pointer; length tells them apart.
		return visit{ptr: rv.Pointer(), typ: rv.Type(), len: rv.Len()}, true
	}
	return visit{}, false
}

func (n *normalizer) sequence(rv reflect.Value) []any {
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = n.value(rv.Index(i))
	}
	return out
}

func (n *normalizer) mapping(rv reflect.Value) map[string]any {
	out := make(map[string]any, rv.Len())
	keys := rv.MapKeys()
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = keyString(k)
	}
	idx := make([]int, len(keys))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return names[idx[a]] < names[idx[b]] })
	for _, i := range idx {
		out[names[i]] = n.value(rv.MapIndex(keys[i]))
	}
	return out
}

func keyString(k reflect.Value) string {
	for k.Kind() == reflect.Interface && !k.IsNil() {
		k = k.Elem()
	}
	if k.Kind() == reflect.String {
		return k.String()
	}
	if k.CanInterface() {
		if tm, ok := k.Interface().(encoding.TextMarshaler); ok {
			if text, err := tm.MarshalText(); err == nil {
				return string(text)
			}
		}
		return fmt.Sprint(k.Interface())
	}
	return fmt.Sprint(k)
}

// record normalizes a struct field by field. Unexported fields are
// skipped; json tags rename fields and "-" drops them.
func (n *normalizer) record(rv reflect.Value) map[string]any {
	t := rv.Type()
	out := make(map[string]any, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, omitEmpty, skip := fieldName(f)
		if skip {
			continue
		}
		fv := rv.Field(i)
		if omitEmpty && fv.IsZero() {
			continue
		}
		if f.Anonymous && name == f.Name {
			if inner, ok := n.value(fv).(map[string]any); ok {
				for k, v := range inner {
					if _, exists := out[k]; !exists {
						out[k] = v
					}
				}
				continue
			}
		}
		out[name] = n.value(fv)
	}
	return out
}

func fieldName(f reflect.StructField) (name string, omitEmpty, skip bool) {
	tag, ok := f.Tag.Lookup("json")
	if !ok {
		return f.Name, false, false
	}
	if tag == "-" {
		return "", false, true
	}
	parts := strings.Split(tag, ",")
	name = parts[0]
	if name == "" {
		name = f.Name
	}
	for _, opt := range parts[1:] {
		if opt == "omitempty" {
			omitEmpty = true
		}
	}
	return name, omitEmpty, false
}
