package normalize

import (
	"errors"
	"io"
	"math"
	"strings"
	"sync"
	"testing"
)

// --- Value Stress Tests ---

type selfMapper struct {
	Label string
	Self  map[string]any
}

func (s *selfMapper) Export() map[string]any {
	return map[string]any{"label": s.Label, "self": s.Self, "again": s}
}

type wrapsAny struct {
	Inner any
}

type failingText struct{}

func (failingText) MarshalText() ([]byte, error) { return nil, errors.New("no text") }

func TestValue_StressHostileShapes(t *testing.T) {
	var deepSlice any = []any{}
	var deepMap any = map[string]any{}
	for i := 0; i < 5*MaxDepth; i++ {
		deepSlice = []any{deepSlice}
		deepMap = map[string]any{"k": deepMap}
	}

	sm := &selfMapper{Label: "x", Self: map[string]any{}}
	sm.Self["owner"] = sm

	w := &wrapsAny{}
	w.Inner = []any{map[string]any{"back": w}}

	var nilErr error
	var nilExporter *linked
	var nilIface any = (*linked)(nil)

	hostile := []struct {
		name string
		in   any
	}{
		{"nan", math.NaN()},
		{"inf", math.Inf(-1)},
		{"max uint", uint64(math.MaxUint64)},
		{"huge string", strings.Repeat("A", 1<<20)},
		{"null bytes", "abc\x00def"},
		{"invalid utf8", string([]byte{0xff, 0xfe})},
		{"deep slice", deepSlice},
		{"deep map", deepMap},
		{"exporter map cycle", sm},
		{"struct any cycle", w},
		{"nil error", nilErr},
		{"nil exporter", nilExporter},
		{"typed nil in any", []any{nilIface}},
		{"func", func() {}},
		{"channel", make(chan struct{})},
		{"complex", complex(1, 2)},
		{"failing text marshaler", failingText{}},
		{"interface writer", []io.Writer{nil, &strings.Builder{}}},
		{"array of maps", [3]map[int]string{{1: "a"}, nil, {}}},
		{"map of pointers", map[string]*linked{"a": nil, "b": {Name: "b"}}},
	}

	for _, tc := range hostile {
		t.Run(tc.name, func(t *testing.T) {
			// Must not panic or recurse without bound
			got := Value(tc.in)
			assertCanonical(t, got)
		})
	}
}

func TestValue_StressDepthIsBounded(t *testing.T) {
	var deep any = []any{}
	for i := 0; i < 3*MaxDepth; i++ {
		deep = []any{deep}
	}

	levels := 0
	v := Value(deep)
	for {
		seq, ok := v.([]any)
		if !ok || len(seq) == 0 {
			break
		}
		levels++
		v = seq[0]
	}
	if v != TooDeep {
		t.Errorf("innermost value = %#v, want %q", v, TooDeep)
	}
	if levels > MaxDepth {
		t.Errorf("output nests %d levels, limit is %d", levels, MaxDepth)
	}
}

func TestValue_StressConcurrentSharedInput(t *testing.T) {
	n := &linked{Name: "shared"}
	n.Next = n
	shared := map[string]any{"list": []any{n, n}, "node": n}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got := Value(shared).(map[string]any)
			if got["node"].(map[string]any)["next"] != Cycle {
				t.Errorf("node = %#v", got["node"])
			}
		}()
	}
	wg.Wait()
}
