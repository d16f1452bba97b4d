package vm

import (
	"strconv"
	"strings"

	"github.com/derp-lang/derp/internal/value"
)

// installBuiltins registers the natives of spec.md §6 on the VM's
// internal context — the root context's parent, so they're visible
// from script code but, being `protected`, can't be rebound.
func installBuiltins(m *VM) {
	install := func(name string, fn value.NativeFunc) {
		h := m.MakeObject()
		h.Value().SetNativeFunction(fn)
		h.Value().SetConst(true)
		m.internalCtx.DeclareLocal(name, h)
		m.internalCtx.SetVariableProtected(name, true)
	}

	install("int", nativeInt)
	install("float", nativeFloat)
	install("string", nativeString)
	install("table", nativeTable)
	install("table_isSet", nativeTableIsSet)
	install("table_unSet", nativeTableUnSet)
	install("table_size", nativeTableSize)
	install("table_keys", nativeTableKeys)
	// SPEC_FULL.md additions, grounded on the same pattern: a table
	// dual to table_keys, and a cheap runtime-introspection helper.
	install("table_values", nativeTableValues)
	install("typeof", nativeTypeof)
}

func argCountError(call *value.Call, name string, want, got int) *value.Handle {
	call.Errors.AddError("%s() expects %d argument(s), got %d", name, want, got)
	return nil
}

func nativeInt(call *value.Call) *value.Handle {
	if len(call.Params) != 1 {
		return argCountError(call, "int", 1, len(call.Params))
	}
	v := call.Params[0].Value()
	h := call.VM.MakeObject()
	switch v.Kind() {
	case value.KindInt:
		h.Value().SetInt(v.Int())
	case value.KindFloat:
		h.Value().SetInt(int64(v.Float()))
	case value.KindString:
		i, err := strconv.ParseInt(strings.TrimSpace(v.Str()), 10, 64)
		if err != nil {
			call.Errors.AddError("int(): cannot parse %q as an integer", v.Str())
			h.Destroy()
			return nil
		}
		h.Value().SetInt(i)
	default:
		call.Errors.AddError("int(): cannot convert a value of kind %s", v.Kind())
		h.Destroy()
		return nil
	}
	return h
}

func nativeFloat(call *value.Call) *value.Handle {
	if len(call.Params) != 1 {
		return argCountError(call, "float", 1, len(call.Params))
	}
	v := call.Params[0].Value()
	h := call.VM.MakeObject()
	switch v.Kind() {
	case value.KindInt:
		h.Value().SetFloat(float64(v.Int()))
	case value.KindFloat:
		h.Value().SetFloat(v.Float())
	case value.KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str()), 64)
		if err != nil {
			call.Errors.AddError("float(): cannot parse %q as a float", v.Str())
			h.Destroy()
			return nil
		}
		h.Value().SetFloat(f)
	default:
		call.Errors.AddError("float(): cannot convert a value of kind %s", v.Kind())
		h.Destroy()
		return nil
	}
	return h
}

func nativeString(call *value.Call) *value.Handle {
	if len(call.Params) != 1 {
		return argCountError(call, "string", 1, len(call.Params))
	}
	v := call.Params[0].Value()
	h := call.VM.MakeObject()
	switch v.Kind() {
	case value.KindInt:
		h.Value().SetString(strconv.FormatInt(v.Int(), 10))
	case value.KindFloat:
		h.Value().SetString(strconv.FormatFloat(v.Float(), 'g', -1, 64))
	case value.KindString:
		h.Value().SetString(v.Str())
	default:
		call.Errors.AddError("string(): cannot convert a value of kind %s", v.Kind())
		h.Destroy()
		return nil
	}
	return h
}

// nativeTable constructs a table whose keys are successive integer
// indices 0..n-1, one per argument (spec.md §6).
func nativeTable(call *value.Call) *value.Handle {
	h := call.VM.MakeObject()
	t := h.Value().SetTable()
	for i, p := range call.Params {
		keyH := call.VM.MakeObject()
		keyH.Value().SetInt(int64(i))
		valH := call.VM.MakeObject()
		if err := valH.Value().Set(p.Value()); err != nil {
			keyH.Destroy()
			valH.Destroy()
			h.Destroy()
			call.Errors.AddError("table(): %s", err)
			return nil
		}
		t.Set(keyH, valH)
	}
	return h
}

func requireTable(call *value.Call, name string, idx int) (*value.Value, bool) {
	v := call.Params[idx].Value()
	if v.Kind() != value.KindTable {
		call.Errors.AddError("%s(): argument %d must be a table, got %s", name, idx+1, v.Kind())
		return nil, false
	}
	return v, true
}

func nativeTableIsSet(call *value.Call) *value.Handle {
	if len(call.Params) != 2 {
		return argCountError(call, "table_isSet", 2, len(call.Params))
	}
	t, ok := requireTable(call, "table_isSet", 0)
	if !ok {
		return nil
	}
	_, found := t.Table().Get(call.Params[1].Value())
	h := call.VM.MakeObject()
	h.Value().SetInt(boolToInt(found))
	return h
}

func nativeTableUnSet(call *value.Call) *value.Handle {
	if len(call.Params) != 2 {
		return argCountError(call, "table_unSet", 2, len(call.Params))
	}
	t, ok := requireTable(call, "table_unSet", 0)
	if !ok {
		return nil
	}
	if t.IsConst() {
		call.Errors.AddError("table_unSet(): table is const")
		return nil
	}
	removed := t.Table().Unset(call.Params[1].Value())
	h := call.VM.MakeObject()
	h.Value().SetInt(boolToInt(removed))
	return h
}

func nativeTableSize(call *value.Call) *value.Handle {
	if len(call.Params) != 1 {
		return argCountError(call, "table_size", 1, len(call.Params))
	}
	t, ok := requireTable(call, "table_size", 0)
	if !ok {
		return nil
	}
	h := call.VM.MakeObject()
	h.Value().SetInt(int64(t.Table().Size()))
	return h
}

func nativeTableKeys(call *value.Call) *value.Handle {
	if len(call.Params) != 1 {
		return argCountError(call, "table_keys", 1, len(call.Params))
	}
	t, ok := requireTable(call, "table_keys", 0)
	if !ok {
		return nil
	}
	h := call.VM.MakeObject()
	out := h.Value().SetTable()
	for i, kh := range t.Table().Keys() {
		idxH := call.VM.MakeObject()
		idxH.Value().SetInt(int64(i))
		copyH := call.VM.MakeObject()
		copyH.Value().Set(kh.Value()) //nolint:errcheck // table keys are always copyable
		out.Set(idxH, copyH)
	}
	return h
}

// nativeTableValues is a SPEC_FULL.md addition: table_keys's dual,
// returning an integer-indexed table of the source table's values.
func nativeTableValues(call *value.Call) *value.Handle {
	if len(call.Params) != 1 {
		return argCountError(call, "table_values", 1, len(call.Params))
	}
	t, ok := requireTable(call, "table_values", 0)
	if !ok {
		return nil
	}
	h := call.VM.MakeObject()
	out := h.Value().SetTable()
	for i, vh := range t.Table().Values() {
		idxH := call.VM.MakeObject()
		idxH.Value().SetInt(int64(i))
		copyH := call.VM.MakeObject()
		// `:=` can store a non-copyable value in an entry; Set rejects it.
		if err := copyH.Value().Set(vh.Value()); err != nil {
			idxH.Destroy()
			copyH.Destroy()
			h.Destroy()
			call.Errors.AddError("table_values(): %s", err)
			return nil
		}
		out.Set(idxH, copyH)
	}
	return h
}

// nativeTypeof is a SPEC_FULL.md addition surfacing Value.Kind as a
// script-visible string, useful for the diagnostics tooling described
// in SPEC_FULL.md's domain stack.
func nativeTypeof(call *value.Call) *value.Handle {
	if len(call.Params) != 1 {
		return argCountError(call, "typeof", 1, len(call.Params))
	}
	h := call.VM.MakeObject()
	h.Value().SetString(call.Params[0].Value().Kind().String())
	return h
}
