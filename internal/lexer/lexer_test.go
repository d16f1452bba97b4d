package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kinds(tokens []Token) []TokenKind {
	out := make([]TokenKind, len(tokens))
	for i, t := range tokens {
		out[i] = t.Kind
	}
	return out
}

func TestLexBasicExpression(t *testing.T) {
	t.Parallel()
	tokens, err := New("x := 1 + 2.5").Lex()
	require.NoError(t, err)
	assert.Equal(t, []TokenKind{IDENTIFIER, COLONEQ, INT, PLUS, FLOAT, EOF}, kinds(tokens))
	assert.Equal(t, int64(1), tokens[2].IntVal)
	assert.InDelta(t, 2.5, tokens[4].FloatVal, 0)
}

func TestLexKeywords(t *testing.T) {
	t.Parallel()
	tokens, err := New("function if else while do for return break continue dbgout var").Lex()
	require.NoError(t, err)
	want := []TokenKind{FUNCTION, IF, ELSE, WHILE, DO, FOR, RETURN, BREAK, CONTINUE, DBGOUT, VAR, EOF}
	assert.Equal(t, want, kinds(tokens))
}

func TestLexTwoCharOperators(t *testing.T) {
	t.Parallel()
	tokens, err := New(":= == != ++ -- >= <= && ||").Lex()
	require.NoError(t, err)
	want := []TokenKind{COLONEQ, EQEQ, NOTEQ, PLUSPLUS, MINUSMINUS, GE, LE, ANDAND, OROR, EOF}
	assert.Equal(t, want, kinds(tokens))
}

// TestLexParenDistinctFromBrace guards the fix to spec.md §9's flagged
// source bug: "(" and ")" must not share a token kind with each other
// or with the brace family.
func TestLexParenDistinctFromBrace(t *testing.T) {
	t.Parallel()
	tokens, err := New("(){}[]").Lex()
	require.NoError(t, err)
	assert.Equal(t, []TokenKind{LPAREN, RPAREN, LBRACE, RBRACE, LBRACKET, RBRACKET, EOF}, kinds(tokens))
}

func TestLexAdjacentStringConcatenation(t *testing.T) {
	t.Parallel()
	tokens, err := New(`"foo" "bar"`).Lex()
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, STRING, tokens[0].Kind)
	assert.Equal(t, "foobar", tokens[0].Text)
}

func TestLexStringEscapes(t *testing.T) {
	t.Parallel()
	tokens, err := New(`"a\nb\"c\\d"`).Lex()
	require.NoError(t, err)
	assert.Equal(t, "a\nb\"c\\d", tokens[0].Text)
}

func TestLexCommentsAreSkipped(t *testing.T) {
	t.Parallel()
	tokens, err := New("1 // a comment\n+ 2").Lex()
	require.NoError(t, err)
	assert.Equal(t, []TokenKind{INT, PLUS, INT, EOF}, kinds(tokens))
}

func TestLexUnterminatedStringErrors(t *testing.T) {
	t.Parallel()
	_, err := New(`"no closing quote`).Lex()
	assert.Error(t, err)
}

func TestLexUnknownCharacterErrors(t *testing.T) {
	t.Parallel()
	_, err := New("@").Lex()
	assert.Error(t, err)
}

func TestLexTokenCountLimit(t *testing.T) {
	t.Parallel()
	l := New("1 1 1 1 1", WithLimits(Limits{MaxTokenLength: 1024, MaxStringLength: 1024, MaxTokenCount: 3}))
	_, err := l.Lex()
	assert.Error(t, err)
}

func TestLexIdentifierLengthLimit(t *testing.T) {
	t.Parallel()
	l := New("abcdefghij", WithLimits(Limits{MaxTokenLength: 5, MaxStringLength: 1024, MaxTokenCount: 65536}))
	_, err := l.Lex()
	assert.Error(t, err)
}

func TestLexDebugTrace(t *testing.T) {
	t.Parallel()
	l := New("1", WithDebugTrace())
	_, err := l.Lex()
	require.NoError(t, err)
	assert.NotEmpty(t, l.DebugEvents())
}
