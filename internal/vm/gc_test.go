package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/derp-lang/derp/internal/diag"
)

// TestGCCollectsTableCycle is spec.md §8's exact boundary scenario: two
// tables referencing each other can never be freed by refcounting
// alone, but the mark-and-sweep pass must reclaim them once no root
// reaches either.
func TestGCCollectsTableCycle(t *testing.T) {
	t.Parallel()
	m := New()
	declErrs := diag.NewState()
	decl := m.EvalString(`var a = 0; var b = 0;`, "test.derp", declErrs)
	require.False(t, declErrs.HasErrors(), declErrs.GetAllErrorText())
	decl.Destroy()
	m.GarbageCollect()
	before := m.GetNumObjects()

	errs := diag.NewState()
	h := m.EvalString(`a := table(); b := table(); a[0] = b; b[0] = a; a := 0; b := 0;`, "test.derp", errs)
	require.False(t, errs.HasErrors(), errs.GetAllErrorText())
	h.Destroy()

	m.GarbageCollect()
	assert.Equal(t, before, m.GetNumObjects(), "the cycle's two tables must be reclaimed once unreachable")
}

// TestGCKeepsTableReachableFromRoot ensures the collector doesn't
// over-collect: a table still bound to a root-context variable must
// survive.
func TestGCKeepsTableReachableFromRoot(t *testing.T) {
	t.Parallel()
	m := New()
	before := m.GetNumObjects()
	errs := diag.NewState()
	h := m.EvalString(`var t = table(); t[0] = 1;`, "test.derp", errs)
	require.False(t, errs.HasErrors())
	h.Destroy()

	m.GarbageCollect()
	// Survivors beyond the built-ins: t's table, its one key, its one value.
	assert.Equal(t, before+3, m.GetNumObjects(), "t is still bound in the root context and must survive")
}

// TestGCReclaimsAcyclicUnreachableValue confirms ordinary (non-cyclic)
// garbage is also collected, not just cycles.
func TestGCReclaimsAcyclicUnreachableValue(t *testing.T) {
	t.Parallel()
	m := New()
	before := m.GetNumObjects()

	errs := diag.NewState()
	h := m.EvalString(`5 + 5;`, "test.derp", errs)
	require.False(t, errs.HasErrors())
	h.Destroy()

	m.GarbageCollect()
	assert.Equal(t, before, m.GetNumObjects())
}
