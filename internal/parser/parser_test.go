package parser

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/derp-lang/derp/internal/ast"
	"github.com/derp-lang/derp/internal/diag"
	"github.com/derp-lang/derp/internal/strpool"
)

// ignoreProvenance drops File/Line from structural comparisons — tests
// below care about the shape of the tree, not source positions.
var ignoreProvenance = cmpopts.IgnoreFields(ast.Node{}, "File", "Line")

func parse(t *testing.T, src string) (*ast.Node, *diag.State) {
	t.Helper()
	pool := strpool.New()
	errs := diag.NewState()
	root := Parse(src, "test.derp", pool, errs)
	return root, errs
}

func TestParseArithmeticPrecedence(t *testing.T) {
	t.Parallel()
	// 1 + 2 * 3 must bind as 1 + (2 * 3), not (1 + 2) * 3.
	root, errs := parse(t, "var x = 1 + 2 * 3;")
	require.False(t, errs.HasErrors(), errs.GetAllErrorText())
	require.Len(t, root.Children, 1)
	assign := root.Children[0]
	require.Equal(t, ast.OpAssign, assign.Op)
	require.Len(t, assign.Children, 2)
	require.Equal(t, ast.OpVariableDec, assign.Children[0].Op)
	add := assign.Children[1]
	require.Equal(t, ast.OpAdd, add.Op)
	require.Equal(t, ast.OpLiteral, add.Children[0].Op)
	mul := add.Children[1]
	require.Equal(t, ast.OpMul, mul.Op)
}

func TestParseLeftAssociativity(t *testing.T) {
	t.Parallel()
	// 10 - 3 - 2 must bind as (10 - 3) - 2.
	root, errs := parse(t, "var x = 10 - 3 - 2;")
	require.False(t, errs.HasErrors())
	assign := root.Children[0]
	outer := assign.Children[1]
	require.Equal(t, ast.OpSub, outer.Op)
	inner := outer.Children[0]
	require.Equal(t, ast.OpSub, inner.Op)
	require.Equal(t, int64(10), inner.Children[0].IntVal)
	require.Equal(t, int64(3), inner.Children[1].IntVal)
	require.Equal(t, int64(2), outer.Children[1].IntVal)
}

func TestParsePostfixCallIndexChain(t *testing.T) {
	t.Parallel()
	// f()[0] parses as an immediate-reduce postfix chain: index(call(f), 0).
	root, errs := parse(t, "var x = f()[0];")
	require.False(t, errs.HasErrors())
	assign := root.Children[0]
	idx := assign.Children[1]
	require.Equal(t, ast.OpIndex, idx.Op)
	require.Equal(t, ast.OpFunctionCall, idx.Children[0].Op)
	require.Equal(t, ast.OpVarLookup, idx.Children[0].Children[0].Op)
}

func TestParseIncrementDecrementPostfix(t *testing.T) {
	t.Parallel()
	root, errs := parse(t, "x++; y--;")
	require.False(t, errs.HasErrors())
	require.Len(t, root.Children, 2)
	assert.Equal(t, ast.OpIncrement, root.Children[0].Op)
	assert.Equal(t, ast.OpDecrement, root.Children[1].Op)
}

func TestParseIfElse(t *testing.T) {
	t.Parallel()
	root, errs := parse(t, "if (x) { y := 1; } else { y := 2; }")
	require.False(t, errs.HasErrors())
	require.Len(t, root.Children, 1)
	assert.Equal(t, ast.OpIfElse, root.Children[0].Op)
}

func TestParseWhileLoopSlots(t *testing.T) {
	t.Parallel()
	root, errs := parse(t, "while (x) { y := 1; }")
	require.False(t, errs.HasErrors())
	loop := root.Children[0]
	require.Equal(t, ast.OpLoop, loop.Op)
	require.NotNil(t, loop.Loop)
	assert.NotNil(t, loop.Loop.Pre)
	assert.NotNil(t, loop.Loop.Action)
	assert.Nil(t, loop.Loop.Init)
	assert.Nil(t, loop.Loop.Iterate)
	assert.Nil(t, loop.Loop.Post)
}

func TestParseForLoopSlots(t *testing.T) {
	t.Parallel()
	root, errs := parse(t, "for (i := 0; i < 10; i++) { x := i; }")
	require.False(t, errs.HasErrors())
	loop := root.Children[0]
	require.Equal(t, ast.OpLoop, loop.Op)
	assert.NotNil(t, loop.Loop.Init)
	assert.NotNil(t, loop.Loop.Pre)
	assert.NotNil(t, loop.Loop.Iterate)
	assert.NotNil(t, loop.Loop.Action)
}

func TestParseDoWhileLoopSlots(t *testing.T) {
	t.Parallel()
	root, errs := parse(t, "do { x := 1; } while (x);")
	require.False(t, errs.HasErrors())
	loop := root.Children[0]
	require.Equal(t, ast.OpLoop, loop.Op)
	assert.NotNil(t, loop.Loop.Post)
	assert.Nil(t, loop.Loop.Pre)
}

func TestParseFunctionLiteral(t *testing.T) {
	t.Parallel()
	root, errs := parse(t, "var f = function(a, b) { return a + b; };")
	require.False(t, errs.HasErrors())
	assign := root.Children[0]
	fn := assign.Children[1]
	require.Equal(t, ast.OpFunctionLiteral, fn.Op)
	assert.Equal(t, []string{"a", "b"}, fn.Params)
}

func TestParseMultipleErrorsResync(t *testing.T) {
	t.Parallel()
	// Two separate malformed statements should both surface as errors
	// rather than the parser bailing out after the first.
	_, errs := parse(t, "var = ; var = ;")
	assert.True(t, errs.HasErrors())
	assert.GreaterOrEqual(t, len(errs.Entries()), 2)
}

func TestParseStructuralDiff(t *testing.T) {
	t.Parallel()
	a, errsA := parse(t, "var x = 1 + 2;")
	b, errsB := parse(t, "var x = 1 + 2;")
	require.False(t, errsA.HasErrors())
	require.False(t, errsB.HasErrors())
	if diff := cmp.Diff(a, b, ignoreProvenance); diff != "" {
		t.Errorf("identical sources produced different trees (-a +b):\n%s", diff)
	}
}
