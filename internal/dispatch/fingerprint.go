package dispatch

import (
	"encoding/hex"
	"fmt"
	"io"
	"reflect"

	"github.com/zeebo/blake3"
)

// Fingerprint hashes the table's observable contents: names, entry
// identities, parameter lists, types, flags and handler code pointers.
// Two fingerprints of the same table differ only if the table changed.
func (t *Table) Fingerprint() string {
	h := blake3.New()
	fmt.Fprintf(h, "tools:%d\n", len(t.order))
	for _, name := range t.order {
		e := t.entries[name]
		fmt.Fprintf(h, "%s %p ro=%t handler=%x returns=%s\n",
			e.name, e, e.readOnly, reflect.ValueOf(e.handler).Pointer(), e.spec.Returns)
		for i, p := range e.spec.Params {
			fmt.Fprintf(h, "  %d %s %s %s\n", i, p.Name, e.paramNames[i], p.Type)
		}
		writeParams(h, e.params)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeParams(w io.Writer, params []param) {
	for _, p := range params {
		fmt.Fprintf(w, "  decode %s optional=%t %x\n", p.name, p.optional, reflect.ValueOf(p.decode).Pointer())
	}
}
