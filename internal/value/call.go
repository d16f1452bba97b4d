package value

import "github.com/derp-lang/derp/internal/diag"

// VMHost is the narrow slice of *vm.VM a native function needs: a
// factory for fresh Values. Defined here (rather than imported from
// package vm) so value has no dependency on vm — vm implements this
// interface implicitly, avoiding an import cycle.
type VMHost interface {
	MakeObject() *Handle
}

// Call is the record passed to a native function (spec.md §6's "native
// callback contract"): the VM, the caller's context, the evaluated
// argument Handles, an opaque host user-data pointer, the shared error
// state, and the current stack depth.
type Call struct {
	VM         VMHost
	Context    *Context
	Params     []*Handle
	UserData   interface{}
	Errors     *diag.State
	StackDepth int
}

// NativeFunc is a host-supplied callable installed as a
// KindNativeFunction Value's payload. A nil return paired with an
// Errors.AddError call signals failure; a non-nil return is the call's
// value (spec.md §6).
type NativeFunc func(*Call) *Handle
