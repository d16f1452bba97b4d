// Package vmsnapshot dumps a VM's live allocation list as a structural,
// pointer-free CBOR document — a way for tests and GC diagnostics to
// assert "what's alive and how it's shaped" without comparing Go
// pointers or walking internal fields directly. Grounded on the
// teacher pack's use of fxamacker/cbor/v2 as its binary structured-data
// codec.
package vmsnapshot

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/derp-lang/derp/internal/value"
)

// Entry is one live Value's structural snapshot, indexed by its
// position in the VM's allocation list at the time of the snapshot.
type Entry struct {
	Index        int    `cbor:"index"`
	Kind         string `cbor:"kind"`
	ExternalRefs int    `cbor:"externalRefs"`
	Const        bool   `cbor:"const"`

	// Payload is populated only for kinds whose value is itself
	// structural/comparable; tables and functions record size/arity
	// rather than contents, since contents are other Values (indices
	// into the same snapshot, not inline).
	Int       *int64   `cbor:"int,omitempty"`
	Float     *float64 `cbor:"float,omitempty"`
	Str       *string  `cbor:"str,omitempty"`
	TableSize *int     `cbor:"tableSize,omitempty"`
	FuncArity *int     `cbor:"funcArity,omitempty"`
}

// Snapshotter is the narrow view internal/vm.VM exposes for taking a
// snapshot, avoiding an import cycle back into vm from this package.
type Snapshotter interface {
	GetNumObjects() int
	ObjectAt(i int) *value.Value
}

// Capture walks every live object in m and returns one Entry per slot.
func Capture(m Snapshotter) []Entry {
	n := m.GetNumObjects()
	entries := make([]Entry, n)
	for i := 0; i < n; i++ {
		v := m.ObjectAt(i)
		e := Entry{
			Index:        i,
			Kind:         v.Kind().String(),
			ExternalRefs: v.ExternalRefs(),
			Const:        v.IsConst(),
		}
		switch v.Kind() {
		case value.KindInt:
			x := v.Int()
			e.Int = &x
		case value.KindFloat:
			x := v.Float()
			e.Float = &x
		case value.KindString:
			x := v.Str()
			e.Str = &x
		case value.KindTable:
			x := v.Table().Size()
			e.TableSize = &x
		case value.KindFunction:
			if body := v.FunctionBody(); body != nil {
				x := len(body.Params())
				e.FuncArity = &x
			}
		}
		entries[i] = e
	}
	return entries
}

// Marshal captures m's live population and encodes it as CBOR.
func Marshal(m Snapshotter) ([]byte, error) {
	entries := Capture(m)
	data, err := cbor.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("vmsnapshot: marshal: %w", err)
	}
	return data, nil
}
