package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/derp-lang/derp/internal/ast"
)

func sharedBody() *ast.Body {
	root := &ast.Node{Op: ast.OpBlock}
	return ast.NewBody(root, []string{"a"})
}

// registered mimics what vm.VM.MakeObject does, without importing the
// vm package (which would create an import cycle): allocate a Value
// and mark it as if it were registered in a VM's allocation list.
func registered() *Value {
	v := New()
	v.MarkRegistered()
	return v
}

func TestExternalRefsAccounting(t *testing.T) {
	t.Parallel()
	v := registered()
	assert.Equal(t, 1, v.ExternalRefs(), "registration alone contributes one ref")

	h1 := Bind(v)
	assert.Equal(t, 2, v.ExternalRefs())
	h2 := Bind(v)
	assert.Equal(t, 3, v.ExternalRefs())

	h1.Destroy()
	assert.Equal(t, 2, v.ExternalRefs())
	h2.Destroy()
	assert.Equal(t, 1, v.ExternalRefs())
}

func TestHandleCloneIncrementsRefs(t *testing.T) {
	t.Parallel()
	v := registered()
	h := Bind(v)
	clone := h.Clone()
	defer clone.Destroy()
	defer h.Destroy()
	assert.Equal(t, 3, v.ExternalRefs())
}

func TestHandleReassignRebindsInPlace(t *testing.T) {
	t.Parallel()
	a := registered()
	b := registered()
	h := Bind(a)
	assert.Equal(t, 2, a.ExternalRefs())

	h.Reassign(b)
	assert.Same(t, b, h.Value())
	assert.Equal(t, 1, a.ExternalRefs(), "old value loses the handle's ref")
	assert.Equal(t, 2, b.ExternalRefs(), "new value gains it")
	h.Destroy()
}

// TestMarkUnregisteredClearsPayloadEvenWithAStragglerOutstanding pins
// down spec.md §4.3's deliberately odd destroy rule: the payload is
// torn down once the post-decrement ref count reaches exactly 1, even
// though a straggler Handle is still outstanding at that point. The
// straggler's own later Destroy then just decrements an already-none
// Value.
func TestMarkUnregisteredClearsPayloadEvenWithAStragglerOutstanding(t *testing.T) {
	t.Parallel()
	v := registered()
	v.SetInt(7)
	straggler := Bind(v)

	v.MarkUnregistered()
	assert.False(t, v.Registered())
	assert.Equal(t, KindNone, v.Kind(), "the odd post-decrement==1 rule clears the payload immediately")
	straggler.Destroy()
}

func TestSetRejectsConstTarget(t *testing.T) {
	t.Parallel()
	dst := New()
	dst.SetConst(true)
	src := New()
	src.SetInt(5)
	err := dst.Set(src)
	assert.Error(t, err)
}

func TestSetRejectsNonCopyableSource(t *testing.T) {
	t.Parallel()
	dst := New()
	src := New()
	src.SetInt(5)
	src.SetCopyable(false)
	err := dst.Set(src)
	assert.Error(t, err)
}

func TestSetCopiesPrimitivePayload(t *testing.T) {
	t.Parallel()
	dst := New()
	src := New()
	src.SetString("hello")
	require.NoError(t, dst.Set(src))
	assert.Equal(t, "hello", dst.Str())
}

func TestEqualComparesByKindThenPayload(t *testing.T) {
	t.Parallel()
	a := New()
	a.SetInt(3)
	b := New()
	b.SetInt(3)
	c := New()
	c.SetFloat(3)
	assert.True(t, Equal(a, b))
	assert.False(t, Equal(a, c), "differing kind is never equal even with the same numeric payload")
}

func TestEqualCustomIsByIdentity(t *testing.T) {
	t.Parallel()
	a := New()
	a.SetCustom(noopCustom{})
	b := New()
	b.SetCustom(noopCustom{})
	assert.False(t, Equal(a, b), "distinct custom Values are never equal even with equivalent payloads")
	assert.True(t, Equal(a, a))
}

type noopCustom struct{}

func (noopCustom) OnLastRefGone() {}

func TestTableShallowCopySharesEntryValues(t *testing.T) {
	t.Parallel()
	tv := New()
	table := tv.SetTable()

	key := registered()
	key.SetInt(1)
	val := registered()
	val.SetString("x")
	table.Set(Bind(key), Bind(val))

	copyV := New()
	require.NoError(t, copyV.Set(tv))
	copyTable := copyV.Table()

	require.Equal(t, 1, copyTable.Size())
	storedVal, ok := copyTable.Get(key)
	require.True(t, ok)
	assert.Same(t, val, storedVal.Value(), "shallow copy shares the same underlying Value, not a clone")
}

func TestTableUnsetReleasesHandles(t *testing.T) {
	t.Parallel()
	tv := New()
	table := tv.SetTable()
	key := registered()
	key.SetInt(1)
	val := registered()
	val.SetInt(42)
	table.Set(Bind(key), Bind(val))

	removed := table.Unset(key)
	assert.True(t, removed)
	assert.Equal(t, 0, table.Size())
	// The table's own handle contribution is gone; only registration
	// (+1) remains on each.
	assert.Equal(t, 1, key.ExternalRefs())
	assert.Equal(t, 1, val.ExternalRefs())
}

func TestContextSlotAllowsInPlaceRebind(t *testing.T) {
	t.Parallel()
	ctx := NewContext(nil)
	a := registered()
	ctx.DeclareLocal("x", Bind(a))

	handlePtr, protected, ok := ctx.Slot("x", false)
	require.True(t, ok)
	assert.False(t, protected)

	b := registered()
	(*handlePtr).Reassign(b)
	assert.Same(t, b, ctx.GetVariable("x").Value())
}

func TestContextParentFallback(t *testing.T) {
	t.Parallel()
	parent := NewContext(nil)
	v := registered()
	parent.DeclareLocal("x", Bind(v))

	child := NewContext(parent)
	assert.Same(t, v, child.GetVariable("x").Value())
	assert.False(t, child.HasLocal("x"))
	assert.True(t, parent.HasLocal("x"))
}

func TestContextProtectedIsPerContextNotValue(t *testing.T) {
	t.Parallel()
	ctx := NewContext(nil)
	v := registered()
	ctx.DeclareLocal("x", Bind(v))
	ctx.SetVariableProtected("x", true)

	assert.True(t, ctx.GetVariableProtected("x"))
	assert.False(t, v.IsConst(), "protection lives on the slot, independent of the Value's own const flag")
}

func TestContextClearAllVariablesDestroysHandles(t *testing.T) {
	t.Parallel()
	ctx := NewContext(nil)
	v := registered()
	ctx.DeclareLocal("x", Bind(v))
	assert.Equal(t, 2, v.ExternalRefs())

	ctx.ClearAllVariables()
	assert.Equal(t, 1, v.ExternalRefs())
	assert.Empty(t, ctx.Names())
}

func TestFunctionBodySharedNotClonedOnCopy(t *testing.T) {
	t.Parallel()
	src := New()
	src.SetFunction(sharedBody())
	dst := New()
	require.NoError(t, dst.Set(src))
	assert.Same(t, src.FunctionBody(), dst.FunctionBody(), "Open Question #3: function copy shares the Body, it does not clone the tree")
}

func TestFunctionExecutingGuardsEnterExit(t *testing.T) {
	t.Parallel()
	v := New()
	v.SetFunction(sharedBody())
	assert.False(t, v.FunctionExecuting())
	v.EnterCall()
	assert.True(t, v.FunctionExecuting())
	v.ExitCall()
	assert.False(t, v.FunctionExecuting())
}
