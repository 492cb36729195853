package dispatch

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"reflect"

	"github.com/bobmcallan/toolhost/internal/normalize"
	"github.com/bobmcallan/toolhost/internal/tool"
)

// decoder converts a request value to the canonical Go form of its
// declared type. path locates the value for error messages.
type decoder func(v any, path string) (any, error)

// compile builds the decoder for t once, so a call only walks the value.
// Composite decoders are memoized by name so cyclic graphs terminate.
func compile(t *tool.Type, composites map[string]*decoder) decoder {
	if t == nil {
		return func(v any, _ string) (any, error) { return normalize.Value(v), nil }
	}
	switch t.Kind {
	case tool.KindInt:
		return decodeInt
	case tool.KindFloat:
		return decodeFloat
	case tool.KindString:
		return decodeString
	case tool.KindBool:
		return decodeBool
	case tool.KindBytes:
		return decodeBytes
	case tool.KindNull:
		return func(v any, path string) (any, error) {
			if v != nil {
				return nil, mismatch(path, "null", v)
			}
			return nil, nil
		}
	case tool.KindSequence:
		return decodeSequence(compile(t.Elem, composites))
	case tool.KindMapping:
		return decodeMapping(compile(t.Elem, composites))
	case tool.KindOptional:
		return decodeOptional(t, composites)
	case tool.KindComposite:
		return decodeComposite(t, composites)
	}
	return func(v any, _ string) (any, error) { return normalize.Value(v), nil }
}

// nullable reports whether an absent or null value satisfies t.
func nullable(t *tool.Type) bool {
	if t == nil {
		return false
	}
	return t.Kind == tool.KindNull || t.Kind == tool.KindOptional
}

func mismatch(path, want string, v any) error {
	return fmt.Errorf("%s: expected %s, got %s", path, want, describe(v))
}

func describe(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "bool"
	case json.Number, float32, float64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	case []byte:
		return "bytes"
	}
	return fmt.Sprintf("%T", v)
}

func decodeInt(v any, path string) (any, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint:
		return uintToInt(uint64(x), v, path)
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		return uintToInt(x, v, path)
	case float32:
		return floatToInt(float64(x), v, path)
	case float64:
		return floatToInt(x, v, path)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, mismatch(path, "integer", v)
		}
		return floatToInt(f, v, path)
	}
	return nil, mismatch(path, "integer", v)
}

func uintToInt(u uint64, v any, path string) (any, error) {
	if u > math.MaxInt64 {
		return nil, fmt.Errorf("%s: integer %d out of range", path, u)
	}
	return int64(u), nil
}

// floatToInt accepts integral floats, which is how JSON decoders without
// UseNumber deliver every number.
func floatToInt(f float64, v any, path string) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil, mismatch(path, "integer", v)
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return nil, fmt.Errorf("%s: integer %v out of range", path, f)
	}
	return int64(f), nil
}

func decodeFloat(v any, path string) (any, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return nil, mismatch(path, "number", v)
		}
		return f, nil
	case bool, string:
		return nil, mismatch(path, "number", v)
	}
	i, err := decodeInt(v, path)
	if err != nil {
		return nil, mismatch(path, "number", v)
	}
	return float64(i.(int64)), nil
}

func decodeString(v any, path string) (any, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	return nil, mismatch(path, "string", v)
}

func decodeBool(v any, path string) (any, error) {
	if b, ok := v.(bool); ok {
		return b, nil
	}
	return nil, mismatch(path, "bool", v)
}

// decodeBytes accepts raw bytes (CBOR) or base64 text (JSON).
func decodeBytes(v any, path string) (any, error) {
	switch x := v.(type) {
	case []byte:
		return x, nil
	case string:
		for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
			if b, err := enc.DecodeString(x); err == nil {
				return b, nil
			}
		}
		return nil, fmt.Errorf("%s: invalid base64 data", path)
	}
	return nil, mismatch(path, "bytes", v)
}

func decodeSequence(elem decoder) decoder {
	return func(v any, path string) (any, error) {
		items, ok := v.([]any)
		if !ok {
			rv := reflect.ValueOf(v)
			if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
				return nil, mismatch(path, "array", v)
			}
			items = make([]any, rv.Len())
			for i := range items {
				items[i] = rv.Index(i).Interface()
			}
		}
		out := make([]any, len(items))
		for i, item := range items {
			d, err := elem(item, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = d
		}
		return out, nil
	}
}

// decodeMapping validates values against the declared value type. Keys
// stay strings: both wire formats deliver string-keyed objects.
func decodeMapping(value decoder) decoder {
	return func(v any, path string) (any, error) {
		entries, err := asObject(v)
		if err != nil {
			return nil, mismatch(path, "object", v)
		}
		out := make(map[string]any, len(entries))
		for k, item := range entries {
			d, err := value(item, fmt.Sprintf("%s[%q]", path, k))
			if err != nil {
				return nil, err
			}
			out[k] = d
		}
		return out, nil
	}
}

func asObject(v any) (map[string]any, error) {
	if m, ok := v.(map[string]any); ok {
		return m, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map {
		return nil, fmt.Errorf("not an object")
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[fmt.Sprint(iter.Key().Interface())] = iter.Value().Interface()
	}
	return out, nil
}

// decodeOptional tries each non-null alternative in order.
func decodeOptional(t *tool.Type, composites map[string]*decoder) decoder {
	var alts []decoder
	for _, alt := range t.Alternatives {
		if alt == nil || alt.Kind == tool.KindNull {
			continue
		}
		alts = append(alts, compile(alt, composites))
	}
	return func(v any, path string) (any, error) {
		if v == nil {
			return nil, nil
		}
		if len(alts) == 0 {
			return normalize.Value(v), nil
		}
		var first error
		for _, alt := range alts {
			d, err := alt(v, path)
			if err == nil {
				return d, nil
			}
			if first == nil {
				first = err
			}
		}
		return nil, first
	}
}

func decodeComposite(t *tool.Type, composites map[string]*decoder) decoder {
	if d, ok := composites[t.Name]; ok {
		return func(v any, path string) (any, error) { return (*d)(v, path) }
	}
	slot := new(decoder)
	composites[t.Name] = slot

	type field struct {
		name     string
		optional bool
		decode   decoder
	}
	fields := make([]field, len(t.Fields))
	for i, f := range t.Fields {
		fields[i] = field{name: f.Name, optional: nullable(f.Type), decode: compile(f.Type, composites)}
	}

	*slot = func(v any, path string) (any, error) {
		obj, err := asObject(v)
		if err != nil {
			return nil, mismatch(path, t.Name, v)
		}
		out := make(map[string]any, len(fields))
		for _, f := range fields {
			fieldPath := path + "." + f.name
			raw, ok := obj[f.name]
			if !ok || raw == nil {
				if f.optional {
					out[f.name] = nil
					continue
				}
				return nil, fmt.Errorf("%s: missing required field", fieldPath)
			}
			d, err := f.decode(raw, fieldPath)
			if err != nil {
				return nil, err
			}
			out[f.name] = d
		}
		return out, nil
	}
	return *slot
}
