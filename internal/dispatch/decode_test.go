package dispatch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/bobmcallan/toolhost/internal/schema"
	"github.com/bobmcallan/toolhost/internal/tool"
)

func echoSpec(name string, t *tool.Type) tool.Spec {
	return tool.Spec{
		Member:  name,
		Params:  []tool.Param{{Name: "value", Type: t}},
		Returns: t,
		Handler: func(_ context.Context, args tool.Args) (any, error) { return args.Value("value"), nil },
	}
}

// Each scalar maps to its token and comes back unchanged through decode,
// handler and encode.
func TestScalarRoundTrip(t *testing.T) {
	tests := []struct {
		typ   *tool.Type
		token string
		in    any
		want  any
	}{
		{tool.Int(), "int64", 5, int64(5)},
		{tool.Float(), "double", 2.25, 2.25},
		{tool.String(), "string", "hello", "hello"},
		{tool.Bool(), "bool", true, true},
		{tool.Bytes(), "bytes", []byte{0, 1, 2}, []byte{0, 1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			spec := echoSpec("roundtrip", tt.typ)
			doc, err := schema.Build([]tool.Spec{spec}, schema.Options{})
			if err != nil {
				t.Fatalf("schema.Build: %v", err)
			}
			if got := doc.Messages[0].Fields[0].Token; got != tt.token {
				t.Errorf("token = %q, want %q", got, tt.token)
			}

			table, err := Build([]tool.Spec{spec}, Options{})
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			resp, err := table.Call(t.Context(), "roundtrip", map[string]any{"value": tt.in})
			if err != nil {
				t.Fatalf("Call: %v", err)
			}
			if !reflect.DeepEqual(resp["result"], tt.want) {
				t.Errorf("result = %#v, want %#v", resp["result"], tt.want)
			}
		})
	}
}

func TestDecode_BytesFromBase64(t *testing.T) {
	entry := buildEntry(t, tool.Bytes())
	encoded := base64.StdEncoding.EncodeToString([]byte("snapshot"))

	args, err := entry.Decode(map[string]any{"value": encoded})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if string(args.Bytes("value")) != "snapshot" {
		t.Errorf("bytes = %q", args.Bytes("value"))
	}

	if _, err := entry.Decode(map[string]any{"value": "!!not base64!!"}); err == nil {
		t.Error("expected invalid base64 to fail")
	}
}

func TestDecode_FloatAcceptsIntegers(t *testing.T) {
	entry := buildEntry(t, tool.Float())
	for _, in := range []any{3, int64(3), uint64(3), json.Number("3"), 3.0} {
		args, err := entry.Decode(map[string]any{"value": in})
		if err != nil {
			t.Fatalf("Decode(%#v): %v", in, err)
		}
		if args.Float("value") != 3 {
			t.Errorf("Decode(%#v) = %#v", in, args["value"])
		}
	}
	if _, err := entry.Decode(map[string]any{"value": "3"}); err == nil {
		t.Error("string should not decode as float")
	}
}

func TestDecode_IntRange(t *testing.T) {
	entry := buildEntry(t, tool.Int())
	for _, in := range []any{uint64(1 << 63), 1e19, json.Number("1e30")} {
		if _, err := entry.Decode(map[string]any{"value": in}); err == nil {
			t.Errorf("Decode(%#v) should fail", in)
		}
	}
}

func TestDecode_Containers(t *testing.T) {
	point := tool.Composite("Point", tool.F("x", tool.Int()), tool.F("label", tool.Optional(tool.String(), tool.Null())))
	typ := tool.Mapping(tool.String(), tool.Sequence(point))
	entry := buildEntry(t, typ)

	req := map[string]any{"value": map[string]any{
		"line": []any{
			map[string]any{"x": float64(1), "label": "start"},
			map[string]any{"x": json.Number("2"), "ignored": true},
		},
	}}
	args, err := entry.Decode(req)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := map[string]any{"line": []any{
		map[string]any{"x": int64(1), "label": "start"},
		map[string]any{"x": int64(2), "label": nil},
	}}
	if !reflect.DeepEqual(args["value"], want) {
		t.Errorf("value = %#v\nwant %#v", args["value"], want)
	}
}

func TestDecode_NestedErrorNamesPath(t *testing.T) {
	point := tool.Composite("Point", tool.F("x", tool.Int()))
	entry := buildEntry(t, tool.Sequence(point))

	_, err := entry.Decode(map[string]any{"value": []any{map[string]any{"x": 1}, map[string]any{"x": "bad"}}})
	if err == nil {
		t.Fatal("expected error")
	}
	argErr, ok := err.(*ArgumentError)
	if !ok || argErr.Field != "value" {
		t.Fatalf("err = %#v", err)
	}
	if !strings.Contains(argErr.Reason, "value[1].x") {
		t.Errorf("reason %q should locate the bad element", argErr.Reason)
	}

	_, err = entry.Decode(map[string]any{"value": []any{map[string]any{}}})
	if err == nil || !strings.Contains(err.Error(), "missing required field") {
		t.Errorf("missing composite field: %v", err)
	}
}

func TestDecode_TypedGoSlices(t *testing.T) {
	entry := buildEntry(t, tool.Sequence(tool.String()))
	args, err := entry.Decode(map[string]any{"value": []string{"a", "b"}})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got := args.Strings("value"); len(got) != 2 || got[1] != "b" {
		t.Errorf("value = %#v", args["value"])
	}
}

func TestDecode_CyclicComposite(t *testing.T) {
	node := tool.Composite("Node", tool.F("value", tool.Int()))
	node.Fields = append(node.Fields, tool.F("next", tool.Optional(node, tool.Null())))
	entry := buildEntry(t, node)

	args, err := entry.Decode(map[string]any{"value": map[string]any{
		"value": 1,
		"next":  map[string]any{"value": 2},
	}})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	next := args["value"].(map[string]any)["next"].(map[string]any)
	if next["value"] != int64(2) || next["next"] != nil {
		t.Errorf("next = %#v", next)
	}
}

func buildEntry(t *testing.T, typ *tool.Type) *Entry {
	t.Helper()
	table, err := Build([]tool.Spec{echoSpec("decode_target", typ)}, Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	entry, _ := table.Lookup("decode_target")
	return entry
}
