package value

// tableKey is a comparable projection of a Value usable as a Go map
// key. Primitives compare by content; custom values compare by the
// identity of the host object they wrap, which every copy of the Value
// shares (spec.md §4.2: "Key equality is by content for primitives and
// by identity for custom").
type tableKey struct {
	kind   Kind
	i      int64
	f      float64
	s      string
	obj    *customState
	custom *Value
}

func makeTableKey(v *Value) tableKey {
	switch v.kind {
	case KindInt:
		return tableKey{kind: KindInt, i: v.intVal}
	case KindFloat:
		return tableKey{kind: KindFloat, f: v.floatVal}
	case KindString:
		return tableKey{kind: KindString, s: v.strVal}
	case KindCustom:
		return tableKey{kind: KindCustom, obj: v.custom}
	default:
		return tableKey{kind: v.kind, custom: v}
	}
}

type tableSlot struct {
	key *Handle
	val *Handle
}

// Table is the payload of a KindTable Value: an ordered-less mapping
// whose keys are Handles of kind int/float/string/custom (never
// table/function). Iteration order is unspecified by the language but
// deterministic within one VM — we use insertion order.
type Table struct {
	slots map[tableKey]*tableSlot
	order []tableKey
}

func newTable() *Table {
	return &Table{slots: make(map[tableKey]*tableSlot)}
}

// Get looks up keyVal, returning the stored value Handle (not a copy)
// and whether the key was present.
func (t *Table) Get(keyVal *Value) (*Handle, bool) {
	slot, ok := t.slots[makeTableKey(keyVal)]
	if !ok {
		return nil, false
	}
	return slot.val, true
}

// Set inserts or overwrites the entry for keyVal. keyHandle is stored
// verbatim (callers are expected to have already copied the key per
// spec.md §4.8's index semantics: "the key is first copy()ed into the
// table").
func (t *Table) Set(keyHandle, valHandle *Handle) {
	k := makeTableKey(keyHandle.Value())
	if existing, ok := t.slots[k]; ok {
		existing.key.Destroy()
		existing.val.Destroy()
		existing.key = keyHandle
		existing.val = valHandle
		return
	}
	t.slots[k] = &tableSlot{key: keyHandle, val: valHandle}
	t.order = append(t.order, k)
}

// Unset removes the entry for keyVal, if present, releasing its
// handles. Returns whether anything was removed.
func (t *Table) Unset(keyVal *Value) bool {
	k := makeTableKey(keyVal)
	slot, ok := t.slots[k]
	if !ok {
		return false
	}
	slot.key.Destroy()
	slot.val.Destroy()
	delete(t.slots, k)
	for i, ok2 := range t.order {
		if ok2 == k {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return true
}

// Size returns the number of entries.
func (t *Table) Size() int { return len(t.slots) }

// Keys returns the stored key Handles in deterministic order (not
// copies — callers that hand these to script code must copy first).
func (t *Table) Keys() []*Handle {
	out := make([]*Handle, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, t.slots[k].key)
	}
	return out
}

// Values returns the stored value Handles in the same order as Keys.
func (t *Table) Values() []*Handle {
	out := make([]*Handle, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, t.slots[k].val)
	}
	return out
}

// shallowCopy implements the table-copy half of Value.Set: a new Table
// whose entries are fresh Handles bound to the *same* underlying key
// and value Values as the source (spec.md §4.2: "keys and values share
// handles with the source — it is a shallow copy of entries, not of
// pointed-to Values").
func (t *Table) shallowCopy() *Table {
	out := newTable()
	for _, k := range t.order {
		slot := t.slots[k]
		out.order = append(out.order, k)
		out.slots[k] = &tableSlot{
			key: Bind(slot.key.Value()),
			val: Bind(slot.val.Value()),
		}
	}
	return out
}

// releaseAll destroys every stored handle, breaking this table's
// outgoing references. Used when the owning Value's payload is
// cleared (destroy path or GC sweep tear-down).
func (t *Table) releaseAll() {
	for _, k := range t.order {
		slot := t.slots[k]
		slot.key.Destroy()
		slot.val.Destroy()
	}
	t.slots = nil
	t.order = nil
}
