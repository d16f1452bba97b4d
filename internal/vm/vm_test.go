package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/derp-lang/derp/internal/diag"
	"github.com/derp-lang/derp/internal/value"
)

func evalOK(t *testing.T, m *VM, src string) *value.Handle {
	t.Helper()
	errs := diag.NewState()
	h := m.EvalString(src, "test.derp", errs)
	require.False(t, errs.HasErrors(), "%s: %s", src, errs.GetAllErrorText())
	return h
}

// Scenario 1 (spec.md §8): two var decls and an addition.
func TestEndToEndArithmetic(t *testing.T) {
	t.Parallel()
	m := New()
	h := evalOK(t, m, `var a = 3; var b = 4; a + b;`)
	require.Equal(t, value.KindInt, h.Value().Kind())
	assert.Equal(t, int64(7), h.Value().Int())
	h.Destroy()
}

// Scenario 2: adjacent string literal concatenation plus runtime `+`.
func TestEndToEndStringConcat(t *testing.T) {
	t.Parallel()
	m := New()
	h := evalOK(t, m, `var s = "foo" "bar"; s + "baz";`)
	require.Equal(t, value.KindString, h.Value().Kind())
	assert.Equal(t, "foobarbaz", h.Value().Str())
	h.Destroy()
}

// Scenario 3: recursive factorial, relying on the global-only function
// scope rule (spec.md §9) so that `f` calling itself can see `f`.
func TestEndToEndRecursiveFactorial(t *testing.T) {
	t.Parallel()
	m := New()
	h := evalOK(t, m, `var f = function(n) { if (n == 0) { return 1; } return n * f(n-1); }; f(5);`)
	require.Equal(t, value.KindInt, h.Value().Kind())
	assert.Equal(t, int64(120), h.Value().Int())
	h.Destroy()
}

// Scenario 4: a host-installed native composed with itself.
func TestEndToEndHostNative(t *testing.T) {
	t.Parallel()
	m := New()
	m.RegisterNative("addone", func(call *value.Call) *value.Handle {
		h := call.VM.MakeObject()
		h.Value().SetInt(call.Params[0].Value().Int() + 1)
		return h
	}, false)

	h := evalOK(t, m, `addone(addone(5));`)
	assert.Equal(t, int64(7), h.Value().Int())
	h.Destroy()
}

// Scenario 5: table indexing and auto-vivification.
func TestEndToEndTableAutoVivify(t *testing.T) {
	t.Parallel()
	m := New()
	h1 := evalOK(t, m, `var t = table(); t["k"] = 9; t["k"];`)
	assert.Equal(t, int64(9), h1.Value().Int())
	h1.Destroy()

	h2 := evalOK(t, m, `t["missing"];`)
	require.Equal(t, value.KindInt, h2.Value().Kind())
	assert.Equal(t, int64(0), h2.Value().Int(), "auto-vivified slot starts at int 0 (spec.md §8)")
	h2.Destroy()
}

// Scenario 6: a for-loop counting to 10 via prefix increment.
func TestEndToEndForLoop(t *testing.T) {
	t.Parallel()
	m := New()
	h := evalOK(t, m, `var i = 0; for (i = 0; i < 10; ++i) {} i;`)
	assert.Equal(t, int64(10), h.Value().Int())
	h.Destroy()
}

func TestIntDivisionByZeroErrors(t *testing.T) {
	t.Parallel()
	m := New()
	errs := diag.NewState()
	h := m.EvalString(`1 / 0;`, "test.derp", errs)
	assert.True(t, errs.HasErrors())
	assert.True(t, h.IsNull())
}

func TestFloatDivisionByZeroFollowsNativeSemantics(t *testing.T) {
	t.Parallel()
	m := New()
	h := evalOK(t, m, `1.0 / 0.0;`)
	assert.Equal(t, value.KindFloat, h.Value().Kind())
	assert.True(t, h.Value().Float() > 0, "expected +Inf")
	h.Destroy()
}

func TestRecursionLimitErrors(t *testing.T) {
	t.Parallel()
	m := New(WithLimits(Limits{MaxCallDepth: 16, MaxLiveObjects: DefaultLimits().MaxLiveObjects, GCThresholdFloor: 256}))
	errs := diag.NewState()
	h := m.EvalString(`var f = function() { return f(); }; f();`, "test.derp", errs)
	assert.True(t, errs.HasErrors())
	assert.True(t, h.IsNull())
}

func TestMutableTableEntryAssignmentSucceeds(t *testing.T) {
	t.Parallel()
	m := New()
	errs := diag.NewState()
	h := m.EvalString(`var x = table(); x["a"] = 1; x;`, "test.derp", errs)
	require.False(t, errs.HasErrors())
	h.Destroy()
}

// installConstTable declares name in m's internal context (visible from
// any script, the same place built-in natives live) bound to a const
// table holding one entry, key -> 1.
func installConstTable(m *VM, name, key string) {
	keyH := m.MakeObject()
	keyH.Value().SetString(key)
	valH := m.MakeObject()
	valH.Value().SetInt(1)

	tableH := m.MakeObject()
	tableH.Value().SetTable().Set(keyH, valH)
	tableH.Value().SetConst(true)
	m.InternalContext().DeclareLocal(name, tableH)
}

// TestConstTableExistingEntryAssignmentFails pins spec.md:280/186: a
// const table's entries cannot be modified even when the key already
// exists, not just on auto-vivification — `=` against an existing key.
func TestConstTableExistingEntryAssignmentFails(t *testing.T) {
	t.Parallel()
	m := New()
	installConstTable(m, "frozen", "a")
	errs := diag.NewState()
	h := m.EvalString(`frozen["a"] = 2;`, "test.derp", errs)
	assert.True(t, errs.HasErrors())
	assert.True(t, h.IsNull())
}

func TestConstTableExistingEntryRefAssignmentFails(t *testing.T) {
	t.Parallel()
	m := New()
	installConstTable(m, "frozen", "a")
	errs := diag.NewState()
	h := m.EvalString(`frozen["a"] := 2;`, "test.derp", errs)
	assert.True(t, errs.HasErrors())
	assert.True(t, h.IsNull())
}

func TestConstTableExistingEntryIncrementFails(t *testing.T) {
	t.Parallel()
	m := New()
	installConstTable(m, "frozen", "a")
	errs := diag.NewState()
	h := m.EvalString(`++frozen["a"];`, "test.derp", errs)
	assert.True(t, errs.HasErrors())
	assert.True(t, h.IsNull())
}

func TestConstTableAutoVivifyStillFails(t *testing.T) {
	t.Parallel()
	m := New()
	installConstTable(m, "frozen", "a")
	errs := diag.NewState()
	h := m.EvalString(`frozen["missing"];`, "test.derp", errs)
	assert.True(t, errs.HasErrors())
	assert.True(t, h.IsNull())
}

func TestProtectedNativeRebindFails(t *testing.T) {
	t.Parallel()
	m := New()
	errs := diag.NewState()
	h := m.EvalString(`int := 5;`, "test.derp", errs)
	assert.True(t, errs.HasErrors())
	assert.True(t, h.IsNull())
}

// Round-trip property (spec.md §8): compileString().evalFunction(fresh
// root) agrees with evalString on a fresh root.
func TestCompileThenEvalFunctionMatchesEvalString(t *testing.T) {
	t.Parallel()
	m1 := New()
	direct := evalOK(t, m1, `var a = 2; var b = 5; a * b;`)
	defer direct.Destroy()

	m2 := New()
	errs := diag.NewState()
	fn := m2.CompileString(`var a = 2; var b = 5; a * b;`, "test.derp", errs)
	require.False(t, errs.HasErrors())
	defer fn.Destroy()

	freshRoot := value.NewContext(m2.InternalContext())
	result := m2.EvalFunction(fn.Value(), freshRoot, nil, nil, errs, true)
	require.False(t, errs.HasErrors())
	defer result.Destroy()

	assert.Equal(t, direct.Value().Int(), result.Value().Int())
}

func TestCompileStringCachedHitsOnIdenticalSource(t *testing.T) {
	t.Parallel()
	m := New()
	errs := diag.NewState()
	src := `var a = 1; a;`

	first := m.CompileStringCached(src, "test.derp", errs)
	require.False(t, errs.HasErrors())
	defer first.Destroy()

	second := m.CompileStringCached(src, "test.derp", errs)
	require.False(t, errs.HasErrors())
	defer second.Destroy()

	assert.Same(t, first.Value(), second.Value(), "identical source should hit the content-addressed cache")
}

func TestUnknownVariableSuggestsClosestName(t *testing.T) {
	t.Parallel()
	m := New()
	errs := diag.NewState()
	h := m.EvalString(`var count = 1; cnt;`, "test.derp", errs)
	require.True(t, errs.HasErrors())
	assert.Contains(t, errs.GetAllErrorText(), `did you mean "count"`)
	assert.True(t, h.IsNull())
}
