package vm

import (
	"fmt"

	"github.com/derp-lang/derp/internal/ast"
	"github.com/derp-lang/derp/internal/diag"
	"github.com/derp-lang/derp/internal/value"
)

// Signal is the evaluator's control-flow out-parameter (spec.md §4.8):
// every eval step reports whether execution should continue normally
// or unwind for a return, break, continue, or error.
type Signal int

const (
	SigNormal Signal = iota
	SigReturn
	SigBreak
	SigContinue
	SigError
)

// lvalue is what evalPtr resolves a node to: a pointer to the actual
// Handle stored in a Context slot or a Table entry. Because both
// Context.Slot and Table.Get/Set hand back the live *Handle (not a
// copy), mutating through h.Reassign affects the slot or table entry
// in place — this is spec.md §4.4's "get-variable-slot" generalized to
// cover index l-values too.
type lvalue struct {
	handle    *value.Handle
	protected bool
}

// eval walks one ExecNode, returning an owned Handle (the caller must
// Destroy it) and a control-flow Signal.
func (m *VM) eval(node *ast.Node, ctx *value.Context, ud interface{}, errs *diag.State) (*value.Handle, Signal) {
	errs.SetPosition(node.File.String(), node.Line)
	m.maybeGC()
	if len(m.objects) >= m.limits.MaxLiveObjects {
		errs.AddError("live object count at limit of %d", m.limits.MaxLiveObjects)
		return nil, SigError
	}
	if m.limits.MaxExecSteps > 0 {
		m.stepsLeft--
		if m.stepsLeft <= 0 {
			errs.AddError("execution step budget exhausted")
			return nil, SigError
		}
	}

	switch node.Op {
	case ast.OpLiteral:
		return m.evalLiteral(node), SigNormal

	case ast.OpVarLookup:
		h := ctx.GetVariable(node.Ident)
		if h.IsNull() {
			errs.AddErrorWithSuggestion(node.Ident, ctx.AllVisibleNames(), "unknown variable %q", node.Ident)
			return nil, SigError
		}
		return value.Bind(h.Value()), SigNormal

	case ast.OpVariableDec:
		if ctx.HasLocal(node.Ident) {
			errs.AddError("%q is already declared in this scope", node.Ident)
			return nil, SigError
		}
		h := m.MakeObject()
		ctx.DeclareLocal(node.Ident, h)
		return value.Bind(h.Value()), SigNormal

	case ast.OpFunctionLiteral:
		body := ast.NewBody(node.Children[0], node.Params)
		h := m.MakeObject()
		h.Value().SetFunction(body)
		h.Value().SetConst(true)
		return h, SigNormal

	case ast.OpAssign:
		return m.evalAssign(node, ctx, ud, errs)
	case ast.OpRefAssign:
		return m.evalRefAssign(node, ctx, ud, errs)

	case ast.OpAdd, ast.OpSub, ast.OpMul, ast.OpDiv:
		return m.evalArith(node, ctx, ud, errs)
	case ast.OpGt, ast.OpLt, ast.OpGe, ast.OpLe:
		return m.evalOrderComparison(node, ctx, ud, errs)
	case ast.OpEq, ast.OpNeq:
		return m.evalEquality(node, ctx, ud, errs)
	case ast.OpAnd, ast.OpOr:
		return m.evalLogical(node, ctx, ud, errs)
	case ast.OpNot:
		return m.evalNot(node, ctx, ud, errs)
	case ast.OpIncrement:
		return m.evalIncDec(node, ctx, ud, errs, 1)
	case ast.OpDecrement:
		return m.evalIncDec(node, ctx, ud, errs, -1)

	case ast.OpBlock:
		return m.evalBlock(node, ctx, true, ud, errs)
	case ast.OpFreeBlock:
		return m.evalBlock(node, ctx, false, ud, errs)

	case ast.OpIfElse:
		return m.evalIfElse(node, ctx, ud, errs)
	case ast.OpLoop:
		return m.evalLoop(node, ctx, ud, errs)

	case ast.OpFunctionCall:
		return m.evalCall(node, ctx, ud, errs)
	case ast.OpReturn:
		h, sig := m.eval(node.Children[0], ctx, ud, errs)
		if sig != SigNormal {
			return h, sig
		}
		return h, SigReturn
	case ast.OpBreak:
		return m.zeroInt(), SigBreak
	case ast.OpContinue:
		return m.zeroInt(), SigContinue

	case ast.OpIndex:
		lv, sig := m.indexSlot(node, ctx, ud, errs, false)
		if sig != SigNormal {
			return nil, sig
		}
		return value.Bind(lv.handle.Value()), SigNormal

	case ast.OpDebugPrint:
		h, sig := m.eval(node.Children[0], ctx, ud, errs)
		if sig != SigNormal {
			return h, sig
		}
		fmt.Fprintln(m.debugOut, debugRepr(h.Value()))
		h.Destroy()
		return m.MakeObject(), SigNormal

	default:
		errs.AddError("unimplemented opcode %s", node.Op)
		return nil, SigError
	}
}

// evalPtr resolves node to an l-value slot, for assign/ref-assign/
// increment/decrement operands (spec.md §4.8's parallel `evalPtr`).
func (m *VM) evalPtr(node *ast.Node, ctx *value.Context, ud interface{}, errs *diag.State) (*lvalue, Signal) {
	errs.SetPosition(node.File.String(), node.Line)

	switch node.Op {
	case ast.OpVarLookup:
		slot, protected, ok := ctx.Slot(node.Ident, false)
		if !ok {
			errs.AddErrorWithSuggestion(node.Ident, ctx.AllVisibleNames(), "unknown variable %q", node.Ident)
			return nil, SigError
		}
		return &lvalue{handle: *slot, protected: protected}, SigNormal

	case ast.OpVariableDec:
		if ctx.HasLocal(node.Ident) {
			errs.AddError("%q is already declared in this scope", node.Ident)
			return nil, SigError
		}
		h := m.MakeObject()
		ctx.DeclareLocal(node.Ident, h)
		return &lvalue{handle: h}, SigNormal

	case ast.OpIndex:
		return m.indexSlot(node, ctx, ud, errs, true)

	default:
		errs.AddError("%s is not a valid l-value", node.Op)
		return nil, SigError
	}
}

func (m *VM) evalLiteral(node *ast.Node) *value.Handle {
	h := m.MakeObject()
	switch node.LitKind {
	case ast.LitInt:
		h.Value().SetInt(node.IntVal)
	case ast.LitFloat:
		h.Value().SetFloat(node.FloatVal)
	case ast.LitString:
		h.Value().SetString(node.StrVal)
	}
	return h
}

func (m *VM) zeroInt() *value.Handle {
	h := m.MakeObject()
	h.Value().SetInt(0)
	return h
}

// evalAssign implements `=` (spec.md §4.8): L.set(R).
func (m *VM) evalAssign(node *ast.Node, ctx *value.Context, ud interface{}, errs *diag.State) (*value.Handle, Signal) {
	lv, sig := m.evalPtr(node.Children[0], ctx, ud, errs)
	if sig != SigNormal {
		return nil, sig
	}
	rh, sig := m.eval(node.Children[1], ctx, ud, errs)
	if sig != SigNormal {
		return rh, sig
	}
	defer rh.Destroy()

	target := lv.handle.Value()
	if target.FunctionExecuting() {
		errs.AddError("cannot assign to a function that is currently executing")
		return nil, SigError
	}
	if err := target.Set(rh.Value()); err != nil {
		errs.AddError("%s", err)
		return nil, SigError
	}
	return value.Bind(target), SigNormal
}

// evalRefAssign implements `:=` (spec.md §4.8): evaluates R before
// L-as-slot, rebinding the slot — an explicit exception to the
// language's usual left-to-right evaluation order.
func (m *VM) evalRefAssign(node *ast.Node, ctx *value.Context, ud interface{}, errs *diag.State) (*value.Handle, Signal) {
	rh, sig := m.eval(node.Children[1], ctx, ud, errs)
	if sig != SigNormal {
		return rh, sig
	}
	defer rh.Destroy()

	lv, sig := m.evalPtr(node.Children[0], ctx, ud, errs)
	if sig != SigNormal {
		return nil, sig
	}
	if lv.protected {
		errs.AddError("cannot rebind a protected slot")
		return nil, SigError
	}
	lv.handle.Reassign(rh.Value())
	return value.Bind(lv.handle.Value()), SigNormal
}

func (m *VM) evalArith(node *ast.Node, ctx *value.Context, ud interface{}, errs *diag.State) (*value.Handle, Signal) {
	lh, sig := m.eval(node.Children[0], ctx, ud, errs)
	if sig != SigNormal {
		return lh, sig
	}
	rh, sig := m.eval(node.Children[1], ctx, ud, errs)
	if sig != SigNormal {
		lh.Destroy()
		return rh, sig
	}
	defer lh.Destroy()
	defer rh.Destroy()

	l, r := lh.Value(), rh.Value()
	if l.Kind() != r.Kind() {
		errs.AddError("type mismatch: %s %s %s", l.Kind(), node.Op, r.Kind())
		return nil, SigError
	}

	out := m.MakeObject()
	switch l.Kind() {
	case value.KindInt:
		a, b := l.Int(), r.Int()
		switch node.Op {
		case ast.OpAdd:
			out.Value().SetInt(a + b)
		case ast.OpSub:
			out.Value().SetInt(a - b)
		case ast.OpMul:
			out.Value().SetInt(a * b)
		case ast.OpDiv:
			if b == 0 {
				out.Destroy()
				errs.AddError("division by zero")
				return nil, SigError
			}
			out.Value().SetInt(a / b)
		}
	case value.KindFloat:
		a, b := l.Float(), r.Float()
		switch node.Op {
		case ast.OpAdd:
			out.Value().SetFloat(a + b)
		case ast.OpSub:
			out.Value().SetFloat(a - b)
		case ast.OpMul:
			out.Value().SetFloat(a * b)
		case ast.OpDiv:
			out.Value().SetFloat(a / b)
		}
	case value.KindString:
		if node.Op != ast.OpAdd {
			out.Destroy()
			errs.AddError("operator %s is not defined for strings", node.Op)
			return nil, SigError
		}
		out.Value().SetString(l.Str() + r.Str())
	default:
		out.Destroy()
		errs.AddError("operator %s is not defined for kind %s", node.Op, l.Kind())
		return nil, SigError
	}
	return out, SigNormal
}

func (m *VM) evalOrderComparison(node *ast.Node, ctx *value.Context, ud interface{}, errs *diag.State) (*value.Handle, Signal) {
	lh, sig := m.eval(node.Children[0], ctx, ud, errs)
	if sig != SigNormal {
		return lh, sig
	}
	rh, sig := m.eval(node.Children[1], ctx, ud, errs)
	if sig != SigNormal {
		lh.Destroy()
		return rh, sig
	}
	defer lh.Destroy()
	defer rh.Destroy()

	l, r := lh.Value(), rh.Value()
	if l.Kind() != r.Kind() || (l.Kind() != value.KindInt && l.Kind() != value.KindFloat) {
		errs.AddError("comparison operator %s requires matching int or float operands, got %s and %s", node.Op, l.Kind(), r.Kind())
		return nil, SigError
	}

	var result bool
	if l.Kind() == value.KindInt {
		a, b := l.Int(), r.Int()
		result = compareInts(node.Op, a, b)
	} else {
		a, b := l.Float(), r.Float()
		result = compareFloats(node.Op, a, b)
	}
	out := m.MakeObject()
	out.Value().SetInt(boolToInt(result))
	return out, SigNormal
}

func compareInts(op ast.OpCode, a, b int64) bool {
	switch op {
	case ast.OpGt:
		return a > b
	case ast.OpLt:
		return a < b
	case ast.OpGe:
		return a >= b
	case ast.OpLe:
		return a <= b
	default:
		return false
	}
}

func compareFloats(op ast.OpCode, a, b float64) bool {
	switch op {
	case ast.OpGt:
		return a > b
	case ast.OpLt:
		return a < b
	case ast.OpGe:
		return a >= b
	case ast.OpLe:
		return a <= b
	default:
		return false
	}
}

// evalEquality implements `==`/`!=`. Spec.md §4.8 groups these with
// the numeric comparisons but doesn't restrict them to int/float —
// unlike ordering, equality is well-defined for every kind (content
// for primitives, identity otherwise), so we allow any matching kind.
func (m *VM) evalEquality(node *ast.Node, ctx *value.Context, ud interface{}, errs *diag.State) (*value.Handle, Signal) {
	lh, sig := m.eval(node.Children[0], ctx, ud, errs)
	if sig != SigNormal {
		return lh, sig
	}
	rh, sig := m.eval(node.Children[1], ctx, ud, errs)
	if sig != SigNormal {
		lh.Destroy()
		return rh, sig
	}
	defer lh.Destroy()
	defer rh.Destroy()

	eq := value.Equal(lh.Value(), rh.Value())
	if node.Op == ast.OpNeq {
		eq = !eq
	}
	out := m.MakeObject()
	out.Value().SetInt(boolToInt(eq))
	return out, SigNormal
}

// evalLogical implements `&&`/`||` with short-circuit evaluation over
// int truthiness. Spec.md §4.8 doesn't spell out `and`/`or` semantics
// (an omission in its per-opcode list); this is the conventional
// reading consistent with `if`/`loop` conditions already being
// "must be int, 0 is false".
func (m *VM) evalLogical(node *ast.Node, ctx *value.Context, ud interface{}, errs *diag.State) (*value.Handle, Signal) {
	lh, sig := m.eval(node.Children[0], ctx, ud, errs)
	if sig != SigNormal {
		return lh, sig
	}
	lv, ok := requireInt(lh, errs, "logical operand")
	lh.Destroy()
	if !ok {
		return nil, SigError
	}

	if node.Op == ast.OpAnd && lv == 0 {
		out := m.MakeObject()
		out.Value().SetInt(0)
		return out, SigNormal
	}
	if node.Op == ast.OpOr && lv != 0 {
		out := m.MakeObject()
		out.Value().SetInt(1)
		return out, SigNormal
	}

	rh, sig := m.eval(node.Children[1], ctx, ud, errs)
	if sig != SigNormal {
		return rh, sig
	}
	rv, ok := requireInt(rh, errs, "logical operand")
	rh.Destroy()
	if !ok {
		return nil, SigError
	}
	out := m.MakeObject()
	out.Value().SetInt(boolToInt(rv != 0))
	return out, SigNormal
}

func (m *VM) evalNot(node *ast.Node, ctx *value.Context, ud interface{}, errs *diag.State) (*value.Handle, Signal) {
	h, sig := m.eval(node.Children[0], ctx, ud, errs)
	if sig != SigNormal {
		return h, sig
	}
	defer h.Destroy()

	v := h.Value()
	var truthy bool
	switch v.Kind() {
	case value.KindInt:
		truthy = v.Int() != 0
	case value.KindFloat:
		truthy = v.Float() != 0
	default:
		errs.AddError("operator not requires an int or float operand, got %s", v.Kind())
		return nil, SigError
	}
	out := m.MakeObject()
	out.Value().SetInt(boolToInt(!truthy))
	return out, SigNormal
}

func (m *VM) evalIncDec(node *ast.Node, ctx *value.Context, ud interface{}, errs *diag.State, delta int64) (*value.Handle, Signal) {
	lv, sig := m.evalPtr(node.Children[0], ctx, ud, errs)
	if sig != SigNormal {
		return nil, sig
	}
	v := lv.handle.Value()
	if v.IsConst() {
		errs.AddError("cannot increment/decrement a const value")
		return nil, SigError
	}
	switch v.Kind() {
	case value.KindInt:
		v.SetInt(v.Int() + delta)
	case value.KindFloat:
		v.SetFloat(v.Float() + float64(delta))
	default:
		errs.AddError("increment/decrement requires an int or float operand, got %s", v.Kind())
		return nil, SigError
	}
	return value.Bind(v), SigNormal
}

// evalBlock evaluates node's children in order in ctx (or a fresh
// child of ctx when pushScope is true), returning the last child's
// value and propagating the first non-normal signal (spec.md §4.8).
func (m *VM) evalBlock(node *ast.Node, ctx *value.Context, pushScope bool, ud interface{}, errs *diag.State) (*value.Handle, Signal) {
	useCtx := ctx
	if pushScope {
		useCtx = value.NewContext(ctx)
		defer useCtx.ClearAllVariables()
	}

	var last *value.Handle
	for _, child := range node.Children {
		h, sig := m.eval(child, useCtx, ud, errs)
		if last != nil {
			last.Destroy()
		}
		last = h
		if sig != SigNormal {
			return last, sig
		}
	}
	if last == nil {
		last = m.MakeObject()
	}
	return last, SigNormal
}

func (m *VM) evalIfElse(node *ast.Node, ctx *value.Context, ud interface{}, errs *diag.State) (*value.Handle, Signal) {
	ch, sig := m.eval(node.Children[0], ctx, ud, errs)
	if sig != SigNormal {
		return ch, sig
	}
	cond, ok := requireInt(ch, errs, "if condition")
	ch.Destroy()
	if !ok {
		return nil, SigError
	}

	if cond != 0 {
		return m.eval(node.Children[1], ctx, ud, errs)
	}
	if len(node.Children) > 2 {
		return m.eval(node.Children[2], ctx, ud, errs)
	}
	return m.MakeObject(), SigNormal
}

// evalLoop implements the uniform 5-slot loop encoding (spec.md §4.7/
// §4.8): init once, then repeat pre-condition / action / iterate /
// post-condition, any slot possibly absent.
func (m *VM) evalLoop(node *ast.Node, ctx *value.Context, ud interface{}, errs *diag.State) (*value.Handle, Signal) {
	slots := node.Loop
	if slots.Init != nil {
		h, sig := m.eval(slots.Init, ctx, ud, errs)
		if sig != SigNormal {
			return h, sig
		}
		h.Destroy()
	}

	last := m.zeroInt()
	for {
		if slots.Pre != nil {
			ph, sig := m.eval(slots.Pre, ctx, ud, errs)
			if sig != SigNormal {
				last.Destroy()
				return ph, sig
			}
			cond, ok := requireInt(ph, errs, "loop condition")
			ph.Destroy()
			if !ok {
				last.Destroy()
				return nil, SigError
			}
			if cond == 0 {
				break
			}
		}

		ah, sig := m.eval(slots.Action, ctx, ud, errs)
		switch sig {
		case SigNormal, SigContinue:
			last.Destroy()
			last = ah
		case SigBreak:
			last.Destroy()
			last = ah
			return last, SigNormal
		default: // SigReturn, SigError
			last.Destroy()
			return ah, sig
		}

		if slots.Iterate != nil {
			ih, sig := m.eval(slots.Iterate, ctx, ud, errs)
			if sig != SigNormal {
				last.Destroy()
				return ih, sig
			}
			ih.Destroy()
		}

		if slots.Post != nil {
			ph, sig := m.eval(slots.Post, ctx, ud, errs)
			if sig != SigNormal {
				last.Destroy()
				return ph, sig
			}
			cond, ok := requireInt(ph, errs, "loop condition")
			ph.Destroy()
			if !ok {
				last.Destroy()
				return nil, SigError
			}
			if cond == 0 {
				break
			}
		}
	}
	return last, SigNormal
}

// evalCall implements `function-call` (spec.md §4.8): child 0 is the
// callee, the rest are argument expressions evaluated left-to-right.
func (m *VM) evalCall(node *ast.Node, ctx *value.Context, ud interface{}, errs *diag.State) (*value.Handle, Signal) {
	calleeH, sig := m.eval(node.Children[0], ctx, ud, errs)
	if sig != SigNormal {
		return calleeH, sig
	}
	defer calleeH.Destroy()

	callee := calleeH.Value()
	if callee.Kind() != value.KindFunction && callee.Kind() != value.KindNativeFunction {
		errs.AddError("call target is not a function (kind %s)", callee.Kind())
		return nil, SigError
	}

	args := make([]*value.Handle, 0, len(node.Children)-1)
	defer func() {
		for _, a := range args {
			a.Destroy()
		}
	}()
	for _, child := range node.Children[1:] {
		ah, sig := m.eval(child, ctx, ud, errs)
		if sig != SigNormal {
			return ah, sig
		}
		args = append(args, ah)
	}

	result := m.EvalFunction(callee, nil, args, ud, errs, false)
	if result == nil {
		return nil, SigError
	}
	return result, SigNormal
}

// indexSlot resolves `table[key]` to the table's slot for that key,
// auto-vivifying an int-0 entry when key is absent and the table is
// not const (spec.md §4.8, §8). forLValue distinguishes the two
// callers' const rules (spec.md §4.8's r-value/l-value split,
// confirmed against derpexecnode.cpp's DERPEXEC_INDEX handling): an
// r-value read only cares about const on the auto-vivify path — it's
// free to read an existing entry out of a const table — but an
// l-value resolution (assignment, `:=`, `++`/`--`) must reject a const
// table outright, before ever looking at whether the key exists,
// since every existing entry of a const table is also immutable.
func (m *VM) indexSlot(node *ast.Node, ctx *value.Context, ud interface{}, errs *diag.State, forLValue bool) (*lvalue, Signal) {
	th, sig := m.eval(node.Children[0], ctx, ud, errs)
	if sig != SigNormal {
		return nil, sig
	}
	defer th.Destroy()
	tableVal := th.Value()
	if tableVal.Kind() != value.KindTable {
		errs.AddError("index target is not a table (kind %s)", tableVal.Kind())
		return nil, SigError
	}
	if forLValue && tableVal.IsConst() {
		errs.AddError("cannot use a const table as an l-value")
		return nil, SigError
	}

	kh, sig := m.eval(node.Children[1], ctx, ud, errs)
	if sig != SigNormal {
		return nil, sig
	}
	defer kh.Destroy()
	keyVal := kh.Value()
	if !value.IsValidKeyType(keyVal.Kind()) {
		errs.AddError("kind %s is not a valid table key", keyVal.Kind())
		return nil, SigError
	}
	if !keyVal.IsCopyable() {
		errs.AddError("table key is not copyable")
		return nil, SigError
	}

	if existing, ok := tableVal.Table().Get(keyVal); ok {
		return &lvalue{handle: existing}, SigNormal
	}
	if tableVal.IsConst() {
		errs.AddError("key not present in const table")
		return nil, SigError
	}

	keyHandle := m.MakeObject()
	if err := keyHandle.Value().Set(keyVal); err != nil {
		keyHandle.Destroy()
		errs.AddError("%s", err)
		return nil, SigError
	}
	valHandle := m.MakeObject()
	valHandle.Value().SetInt(0) // spec.md §8: auto-vivified slots start at int 0
	tableVal.Table().Set(keyHandle, valHandle)
	return &lvalue{handle: valHandle}, SigNormal
}

func requireInt(h *value.Handle, errs *diag.State, what string) (int64, bool) {
	v := h.Value()
	if v.Kind() != value.KindInt {
		errs.AddError("%s must be an int, got %s", what, v.Kind())
		return 0, false
	}
	return v.Int(), true
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
