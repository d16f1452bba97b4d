// Package value implements the Derp runtime's data model: the tagged
// Value union (spec component 2), its refcounted Handle (component 3),
// and the lexically-scoped Context that binds names to Handles
// (component 4). Spec.md groups these three as inseparable — Context
// holds Handles to Values, and a Handle's lifecycle is Value's —  so
// they live in one package rather than three that would otherwise
// import each other in a circle.
package value

import (
	"fmt"

	"github.com/derp-lang/derp/internal/ast"
	"github.com/derp-lang/derp/internal/invariant"
)

// Kind tags a Value's payload.
type Kind int

const (
	KindNone Kind = iota
	KindInt
	KindFloat
	KindString
	KindTable
	KindFunction
	KindNativeFunction
	KindCustom
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindTable:
		return "table"
	case KindFunction:
		return "function"
	case KindNativeFunction:
		return "native-function"
	case KindCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// IsValidKeyType reports whether kind may be used as a table key
// (§4.2): int, float, string, custom — never table, function, none.
func IsValidKeyType(kind Kind) bool {
	switch kind {
	case KindInt, KindFloat, KindString, KindCustom:
		return true
	default:
		return false
	}
}

// CustomObject is a host-owned opaque object installed as a Custom
// Value. The VM notifies it when the last Value referencing it goes
// away; the default behavior (no-op) means the host object is presumed
// to be independently owned, but most hosts will self-delete here.
type CustomObject interface {
	OnLastRefGone()
}

// customState is the shared, refcounted wrapper around a host object.
// Multiple Values can alias the same CustomObject (via Value.Set
// sharing), each holding a pointer to the same customState so the
// tally is accurate regardless of how many Value wrappers exist.
type customState struct {
	obj   CustomObject
	tally int
}

// function is the payload for KindFunction: an owned ExecNode tree
// (shared via *ast.Body, see Open Question #3 in SPEC_FULL.md) plus a
// counter of how many call frames currently have it on the stack.
type function struct {
	body      *ast.Body
	executing int
}

// Value is the runtime's universal datum (spec component 2).
type Value struct {
	kind Kind

	intVal   int64
	floatVal float64
	strVal   string
	table    *Table
	fn       *function
	native   NativeFunc
	custom   *customState

	constFlag    bool
	copyableFlag bool

	externalRefs int
	registered   bool
	gcEpoch      uint64
	allocIndex   int
}

// New returns a fresh kind=none Value, copyable by default (only a few
// host-installed singletons mark themselves non-copyable).
func New() *Value {
	return &Value{kind: KindNone, copyableFlag: true}
}

func (v *Value) Kind() Kind { return v.kind }

func (v *Value) IsConst() bool     { return v.constFlag }
func (v *Value) SetConst(c bool)   { v.constFlag = c }
func (v *Value) IsCopyable() bool  { return v.copyableFlag }
func (v *Value) SetCopyable(c bool) { v.copyableFlag = c }

func (v *Value) ExternalRefs() int   { return v.externalRefs }
func (v *Value) Registered() bool    { return v.registered }
func (v *Value) GCEpoch() uint64     { return v.gcEpoch }
func (v *Value) SetGCEpoch(e uint64) { v.gcEpoch = e }
func (v *Value) AllocIndex() int     { return v.allocIndex }
func (v *Value) SetAllocIndex(i int) { v.allocIndex = i }

// MarkRegistered records this Value's membership in a VM's allocation
// list, which counts as one external reference (spec.md §3's
// invariant: "external-ref count equals the number of Handles and
// Context slots pointing to it plus one for its membership in the
// VM's allocation list").
func (v *Value) MarkRegistered() {
	v.registered = true
	v.externalRefs++
}

// MarkUnregistered removes the allocation-list membership reference.
// If exactly one other reference still holds the Value afterward, its
// payload is torn down immediately (the same count-of-1 rule as
// Handle.Destroy) — this is what lets the VM unregister Values during
// shutdown and have stragglers clean themselves up when their last
// external Handle goes (spec.md §4.3).
func (v *Value) MarkUnregistered() {
	v.registered = false
	releaseValue(v)
}

// AdjustExternalRefsForGC temporarily adds delta to the external-ref
// count. The GC's mark phase uses this to make table-internal
// cross-references invisible before computing roots (spec.md §4.9
// step 1), then restores it (step 4) — see vm.VM.GarbageCollect.
func (v *Value) AdjustExternalRefsForGC(delta int) {
	v.externalRefs += delta
}

// clearPayload releases whatever the current kind owns and resets to
// none. Used by setters before installing a new kind, and by the
// destroy/GC paths that need to break a Value's outgoing references.
func (v *Value) clearPayload() {
	switch v.kind {
	case KindTable:
		if v.table != nil {
			v.table.releaseAll()
		}
		v.table = nil
	case KindFunction:
		if v.fn != nil && v.fn.body != nil {
			v.fn.body.Release()
		}
		v.fn = nil
	case KindCustom:
		if v.custom != nil {
			v.custom.tally--
			if v.custom.tally <= 0 {
				v.custom.obj.OnLastRefGone()
			}
		}
		v.custom = nil
	case KindNativeFunction:
		v.native = nil
	}
	v.strVal = ""
	v.intVal = 0
	v.floatVal = 0
	v.kind = KindNone
}

func (v *Value) SetInt(i int64) {
	v.clearPayload()
	v.kind = KindInt
	v.intVal = i
}

func (v *Value) SetFloat(f float64) {
	v.clearPayload()
	v.kind = KindFloat
	v.floatVal = f
}

func (v *Value) SetString(s string) {
	v.clearPayload()
	v.kind = KindString
	v.strVal = s
}

// SetTable installs a fresh, empty table.
func (v *Value) SetTable() *Table {
	v.clearPayload()
	v.kind = KindTable
	v.table = newTable()
	return v.table
}

// SetFunction installs a function sharing the given body (see
// ast.Body — bodies are refcounted, not cloned, per Open Question #3).
func (v *Value) SetFunction(body *ast.Body) {
	v.clearPayload()
	v.kind = KindFunction
	v.fn = &function{body: body}
}

func (v *Value) SetNativeFunction(fn NativeFunc) {
	v.clearPayload()
	v.kind = KindNativeFunction
	v.native = fn
}

func (v *Value) SetCustom(obj CustomObject) {
	v.clearPayload()
	v.kind = KindCustom
	v.custom = &customState{obj: obj, tally: 1}
}

func (v *Value) Int() int64      { return v.intVal }
func (v *Value) Float() float64  { return v.floatVal }
func (v *Value) Str() string     { return v.strVal }
func (v *Value) Table() *Table   { return v.table }
func (v *Value) Native() NativeFunc { return v.native }

func (v *Value) Custom() CustomObject {
	if v.custom == nil {
		return nil
	}
	return v.custom.obj
}

// CustomRefTally reports how many Values currently alias this custom
// object (tests and host diagnostics; spec's getNumCustomDataRefs).
func (v *Value) CustomRefTally() int {
	if v.custom == nil {
		return 0
	}
	return v.custom.tally
}

// FunctionBody exposes the owned ExecNode tree + parameter names for
// the evaluator. Returns nil if this Value isn't a function.
func (v *Value) FunctionBody() *ast.Body {
	if v.fn == nil {
		return nil
	}
	return v.fn.body
}

// FunctionExecuting reports whether this function is currently on the
// call stack (§4.8's "currently executing" counter, checked by assign
// to forbid mutating an in-flight function).
func (v *Value) FunctionExecuting() bool {
	return v.fn != nil && v.fn.executing > 0
}

// EnterCall/ExitCall bracket one invocation of a script function.
func (v *Value) EnterCall() {
	invariant.NotNil(v.fn, "function payload")
	v.fn.executing++
}

func (v *Value) ExitCall() {
	invariant.NotNil(v.fn, "function payload")
	invariant.Invariant(v.fn.executing > 0, "ExitCall without matching EnterCall")
	v.fn.executing--
}

// Equal reports value equality for `==`/`!=`: values of differing
// kind are never equal; same-kind primitives compare by payload,
// custom/table/function by identity (spec.md §4.2).
func Equal(a, b *Value) bool {
	if a.kind != b.kind {
		return false
	}
	return sameKindPrimitiveEqual(a, b)
}

// ClearPayloadForGC lets the collector tear down a doomed Value's
// payload directly, breaking its outgoing references before the
// private sweep handles are released (spec.md §4.9 step 5). Only
// vm.VM.GarbageCollect should call this.
func (v *Value) ClearPayloadForGC() {
	v.clearPayload()
}

// sameKindPrimitiveEqual compares two Values of identical primitive
// kind by payload, used for both table key equality and the `==`/`!=`
// operators.
func sameKindPrimitiveEqual(a, b *Value) bool {
	switch a.kind {
	case KindInt:
		return a.intVal == b.intVal
	case KindFloat:
		return a.floatVal == b.floatVal
	case KindString:
		return a.strVal == b.strVal
	case KindCustom:
		return a == b
	default:
		return a == b
	}
}

// Set performs value-copy assignment (`=` semantics): this.set(other).
// Fails when this is const or other is not copyable.
func (v *Value) Set(other *Value) error {
	invariant.NotNil(other, "other")
	if v.constFlag {
		return fmt.Errorf("cannot assign to a const value")
	}
	if !other.copyableFlag {
		return fmt.Errorf("value of kind %s is not copyable", other.kind)
	}

	switch other.kind {
	case KindNone:
		v.clearPayload()
	case KindInt:
		v.SetInt(other.intVal)
	case KindFloat:
		v.SetFloat(other.floatVal)
	case KindString:
		v.SetString(other.strVal)
	case KindTable:
		v.clearPayload()
		v.kind = KindTable
		v.table = other.table.shallowCopy()
	case KindFunction:
		v.clearPayload()
		v.kind = KindFunction
		v.fn = &function{body: other.fn.body.Ref()}
	case KindNativeFunction:
		v.SetNativeFunction(other.native)
	case KindCustom:
		v.clearPayload()
		v.kind = KindCustom
		other.custom.tally++
		v.custom = other.custom
	}
	return nil
}

// Copy returns a new Value equivalent to a fresh Value's Set(v).
func (v *Value) Copy() (*Value, error) {
	fresh := New()
	if err := fresh.Set(v); err != nil {
		return nil, err
	}
	return fresh, nil
}
