// Package vm hosts the Derp VM (spec component 9): the Value
// allocation list, the root/internal contexts, the string pool, the
// GC, and the ExecNode evaluator (spec component 8). The evaluator is
// folded into this package rather than split into its own — it needs
// tight, mutual access to the allocation list (makeObject, the GC
// threshold check) on every single step, and giving it a separate
// package only recreates the import back-and-forth internal/value
// already avoids by merging Value+Handle+Context.
package vm

import (
	"fmt"
	"io"
	"math"
	"os"

	"golang.org/x/crypto/blake2b"

	"github.com/derp-lang/derp/internal/ast"
	"github.com/derp-lang/derp/internal/diag"
	"github.com/derp-lang/derp/internal/invariant"
	"github.com/derp-lang/derp/internal/parser"
	"github.com/derp-lang/derp/internal/strpool"
	"github.com/derp-lang/derp/internal/value"
)

// Limits bounds one VM instance (spec.md §6's compile-time constants,
// minus the lexer's own — those live in lexer.Limits).
type Limits struct {
	// MaxCallDepth is the per-function stack frame ceiling (§6: 65536).
	MaxCallDepth int
	// MaxLiveObjects is the live-object ceiling checked on every eval
	// step (§6: "near u32::MAX"); reaching it aborts with an error.
	// MakeObject itself treats allocating past it as an invariant
	// violation.
	MaxLiveObjects int
	// GCThresholdFloor is the minimum auto-GC threshold (§4.9's
	// "floored at the minimum").
	GCThresholdFloor int
	// MaxExecSteps is the soft cancellation budget (§5): decremented
	// once per eval step, aborting at zero. Zero disables the check.
	MaxExecSteps int64
}

// DefaultLimits returns spec.md §6's constants, with MaxLiveObjects
// capped well under the literal "near u32::MAX" so a misbehaving
// script fails fast instead of exhausting host memory first, and
// MaxExecSteps disabled by default (hosts needing a step budget for
// cooperative cancellation opt in via WithLimits).
func DefaultLimits() Limits {
	return Limits{
		MaxCallDepth:     65536,
		MaxLiveObjects:   math.MaxInt32,
		GCThresholdFloor: 256,
		MaxExecSteps:     0,
	}
}

// Option configures a VM at construction.
type Option func(*VM)

// WithLimits overrides the default Limits.
func WithLimits(lim Limits) Option {
	return func(m *VM) { m.limits = lim }
}

// WithDebugOutput sets the writer `dbgout` prints to (default os.Stdout).
func WithDebugOutput(w io.Writer) Option {
	return func(m *VM) { m.debugOut = w }
}

// VM owns one independent interpreter instance (spec.md §9 / §5: "no
// process-global state; multi-VM hosts instantiate independent VMs
// freely").
type VM struct {
	objects []*value.Value
	pool    *strpool.Pool

	internalCtx *value.Context
	rootCtx     *value.Context

	gcEpoch     uint64
	gcThreshold int

	limits    Limits
	stepsLeft int64
	callDepth int
	debugOut  io.Writer

	compileCache map[[32]byte]*value.Handle
}

// New constructs a VM with its internal context (built-in natives,
// all protected) and a root context that is its child.
func New(opts ...Option) *VM {
	m := &VM{
		pool:        strpool.New(),
		limits:      DefaultLimits(),
		debugOut:    os.Stdout,
		gcThreshold: 256,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.gcThreshold < m.limits.GCThresholdFloor {
		m.gcThreshold = m.limits.GCThresholdFloor
	}
	m.internalCtx = value.NewContext(nil)
	m.rootCtx = value.NewContext(m.internalCtx)
	m.compileCache = make(map[[32]byte]*value.Handle)
	installBuiltins(m)
	return m
}

// CompileStringCached is CompileString memoized on a BLAKE2b-256 digest
// of src (SPEC_FULL.md §6.3) — repeated compiles of the same script
// text through this method, e.g. a REPL re-sourcing a library file,
// skip lexing and parsing entirely on a cache hit (EvalString compiles
// through the uncached CompileString). The returned Handle is
// always a fresh reference (Clone of the cached canonical Handle), so
// every caller owns and destroys its own; a parse failure is never
// cached.
func (m *VM) CompileStringCached(src, fileName string, errs *diag.State) *value.Handle {
	key := blake2b.Sum256([]byte(src))
	if cached, ok := m.compileCache[key]; ok {
		return cached.Clone()
	}
	h := m.CompileString(src, fileName, errs)
	if h.IsNull() {
		return h
	}
	m.compileCache[key] = h.Clone()
	return h
}

// SetDebugWriter retargets where `dbgout` prints (SPEC_FULL.md §4's
// addition over the spec's hard-wired host stdout print).
func (m *VM) SetDebugWriter(w io.Writer) { m.debugOut = w }

// RegisterNative installs fn under name on the VM's internal context,
// optionally protected against rebinding — the programmatic
// counterpart to the declarative manifests internal/nativeschema
// validates (SPEC_FULL.md §6.2).
func (m *VM) RegisterNative(name string, fn value.NativeFunc, protected bool) {
	h := m.MakeObject()
	h.Value().SetNativeFunction(fn)
	h.Value().SetConst(true)
	m.internalCtx.DeclareLocal(name, h)
	if protected {
		m.internalCtx.SetVariableProtected(name, true)
	}
}

// RootContext returns the VM's root lexical scope (§6: host installs
// variables here via SetVariable/SetVariableProtected).
func (m *VM) RootContext() *value.Context { return m.rootCtx }

// InternalContext returns the context holding built-in natives, whose
// child is the root context (spec.md §3's invariant list).
func (m *VM) InternalContext() *value.Context { return m.internalCtx }

// GetFilenameRef interns name through the VM's string pool.
func (m *VM) GetFilenameRef(name string) strpool.Handle {
	return m.pool.GetOrAdd(name)
}

// GetNumObjects reports the live population of the allocation list.
func (m *VM) GetNumObjects() int { return len(m.objects) }

// ObjectAt exposes the allocation list by index for internal/vmsnapshot
// (GC diagnostics/tests); index must be in [0, GetNumObjects()).
func (m *VM) ObjectAt(i int) *value.Value { return m.objects[i] }

// GetNumCustomDataRefs reports how many Values currently alias the
// custom object h points to (0 if h isn't a custom-kind handle).
func (m *VM) GetNumCustomDataRefs(h *value.Handle) int {
	if h.IsNull() {
		return 0
	}
	return h.Value().CustomRefTally()
}

// MakeObject constructs a fresh none-kind Value, registers it with the
// VM's allocation list (counting as one external reference, per
// spec.md §4.9), and returns an owned Handle to it. Satisfies
// value.VMHost so native functions can allocate without importing vm.
func (m *VM) MakeObject() *value.Handle {
	invariant.Invariant(len(m.objects) < m.limits.MaxLiveObjects, "live object count at ceiling %d", m.limits.MaxLiveObjects)
	v := value.New()
	v.MarkRegistered()
	v.SetAllocIndex(len(m.objects))
	m.objects = append(m.objects, v)
	return value.Bind(v)
}

// maybeGC runs the threshold auto-GC policy from the evaluator's
// prelude (spec.md §4.9's "threshold policy"; §5 restricts this to
// "between host calls" — our recursive-call eval never calls maybeGC
// mid-native-call since natives don't recurse into eval, so every
// invocation here is safely outside any in-flight table/context
// mutation).
func (m *VM) maybeGC() {
	if len(m.objects) > m.gcThreshold {
		m.GarbageCollect()
	}
}

// CompileString lexes and parses src, wrapping the resulting program
// in a fresh zero-parameter function Value (spec.md §4.9). Returns a
// null handle if parsing failed (errs carries the diagnostics).
func (m *VM) CompileString(src, fileName string, errs *diag.State) *value.Handle {
	root := parser.Parse(src, fileName, m.pool, errs)
	if root == nil {
		return value.NullHandle()
	}
	body := ast.NewBody(root, nil)
	h := m.MakeObject()
	h.Value().SetFunction(body)
	h.Value().SetConst(true)
	return h
}

// EvalString is CompileString followed by evalFunction against the
// root context with dontPushContext=true, so a top-level `var`
// persists across repeated evalString calls (spec.md §4.9).
func (m *VM) EvalString(src, fileName string, errs *diag.State) *value.Handle {
	fn := m.CompileString(src, fileName, errs)
	if fn.IsNull() {
		return value.NullHandle()
	}
	defer fn.Destroy()
	result := m.EvalFunction(fn.Value(), m.rootCtx, nil, nil, errs, true)
	if result == nil {
		return value.NullHandle()
	}
	return result
}

// EvalFunction invokes fn — native or script — per spec.md §4.2's
// evalFunction contract. ctx nil means "use the VM's root context".
// dontPushContext mutates ctx directly instead of a fresh child of the
// VM's root (used by EvalString for top-level `var` persistence, and
// available to hosts wanting include-like semantics).
func (m *VM) EvalFunction(fn *value.Value, ctx *value.Context, params []*value.Handle, userData interface{}, errs *diag.State, dontPushContext bool) *value.Handle {
	invariant.NotNil(fn, "fn")
	if fn.Kind() != value.KindFunction && fn.Kind() != value.KindNativeFunction {
		errs.AddError("call target of kind %s is not callable", fn.Kind())
		return nil
	}
	if ctx == nil {
		ctx = m.rootCtx
	}
	if m.callDepth == 0 && m.limits.MaxExecSteps > 0 {
		m.stepsLeft = m.limits.MaxExecSteps
	}

	if fn.Kind() == value.KindNativeFunction {
		call := &value.Call{VM: m, Context: ctx, Params: params, UserData: userData, Errors: errs, StackDepth: m.callDepth}
		return fn.Native()(call)
	}

	if m.callDepth+1 > m.limits.MaxCallDepth {
		errs.AddError("call stack depth exceeds limit of %d", m.limits.MaxCallDepth)
		return nil
	}

	body := fn.FunctionBody()
	invariant.NotNil(body, "script function body")
	paramNames := body.Params()
	if len(params) != len(paramNames) {
		errs.AddError("function expects %d argument(s), got %d", len(paramNames), len(params))
		return nil
	}

	// §9's documented quirk: parameters bind in a fresh child of the
	// VM's ROOT context, never the caller's lexical scope — the
	// language has no closures, only global-scope + call-local names.
	callCtx := ctx
	if !dontPushContext {
		callCtx = value.NewContext(m.rootCtx)
		defer callCtx.ClearAllVariables()
	}
	for i, name := range paramNames {
		callCtx.DeclareLocal(name, params[i].Clone())
	}

	m.callDepth++
	fn.EnterCall()
	result, sig := m.eval(body.Root(), callCtx, userData, errs)
	fn.ExitCall()
	m.callDepth--

	switch sig {
	case SigReturn, SigNormal:
		return result
	default:
		if result != nil {
			result.Destroy()
		}
		return nil
	}
}

// DebugString renders v the same way the `dbgout` opcode does — used
// by host front-ends (cmd/derp) to print evaluation results.
func DebugString(v *value.Value) string { return debugRepr(v) }

func debugRepr(v *value.Value) string {
	switch v.Kind() {
	case value.KindNone:
		return "none"
	case value.KindInt:
		return fmt.Sprintf("%d", v.Int())
	case value.KindFloat:
		return fmt.Sprintf("%g", v.Float())
	case value.KindString:
		return fmt.Sprintf("%q", v.Str())
	case value.KindTable:
		return fmt.Sprintf("table(%d entries)", v.Table().Size())
	case value.KindFunction:
		return "function"
	case value.KindNativeFunction:
		return "native-function"
	case value.KindCustom:
		return "custom"
	default:
		return "?"
	}
}
