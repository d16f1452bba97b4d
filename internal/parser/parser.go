// Package parser builds an ExecNode tree (package ast) from a Derp
// token stream (spec component 7).
//
// Statements are recursive descent (parseBlock reads statements until
// a closing brace or end of input); expressions are precedence
// climbing over the table in spec.md §4.7 — a textbook-equivalent
// restatement of the spec's "shift/reduce loop with two states" that
// reads more idiomatically in Go (the resulting grammar, precedence,
// and left-associativity are the same).
package parser

import (
	"fmt"

	"github.com/derp-lang/derp/internal/ast"
	"github.com/derp-lang/derp/internal/diag"
	"github.com/derp-lang/derp/internal/lexer"
	"github.com/derp-lang/derp/internal/strpool"
)

// precedence maps a binary-operator token to its binding power
// (spec.md §4.7's table; higher binds tighter). Tokens absent from
// this map are not binary operators.
var precedence = map[lexer.TokenKind]int{
	lexer.ASSIGN:  2,
	lexer.COLONEQ: 2,
	lexer.ANDAND:  3,
	lexer.OROR:    3,
	lexer.EQEQ:    4,
	lexer.NOTEQ:   4,
	lexer.PLUS:    5,
	lexer.MINUS:   5,
	lexer.STAR:    6,
	lexer.SLASH:   6,
	lexer.GT:      10,
	lexer.LT:      10,
	lexer.GE:      10,
	lexer.LE:      10,
}

func binOpCode(k lexer.TokenKind) ast.OpCode {
	switch k {
	case lexer.ASSIGN:
		return ast.OpAssign
	case lexer.COLONEQ:
		return ast.OpRefAssign
	case lexer.ANDAND:
		return ast.OpAnd
	case lexer.OROR:
		return ast.OpOr
	case lexer.EQEQ:
		return ast.OpEq
	case lexer.NOTEQ:
		return ast.OpNeq
	case lexer.PLUS:
		return ast.OpAdd
	case lexer.MINUS:
		return ast.OpSub
	case lexer.STAR:
		return ast.OpMul
	case lexer.SLASH:
		return ast.OpDiv
	case lexer.GT:
		return ast.OpGt
	case lexer.LT:
		return ast.OpLt
	case lexer.GE:
		return ast.OpGe
	case lexer.LE:
		return ast.OpLe
	default:
		return ast.OpError
	}
}

// Parser consumes a token stream and produces an ExecNode tree.
type Parser struct {
	toks     []lexer.Token
	pos      int
	file     strpool.Handle
	fileName string
	errs     *diag.State
}

// Parse lexes and parses src, returning the program's root node (an
// OpFreeBlock, which pushes no scope of its own, so top-level `var`s
// land in the context the program is evaluated in) or nil if any error
// was recorded on errs.
func Parse(src, fileName string, pool *strpool.Pool, errs *diag.State) *ast.Node {
	file := pool.GetOrAdd(fileName)
	errs.SetPosition(fileName, 0)

	lx := lexer.New(src)
	toks, err := lx.Lex()
	if err != nil {
		errs.AddError("%s", err)
		return nil
	}

	p := &Parser{toks: toks, file: file, fileName: fileName, errs: errs}
	return p.parseProgram()
}

func (p *Parser) cur() lexer.Token  { return p.toks[p.pos] }
func (p *Parser) line() int         { return p.cur().Position.Line }
func (p *Parser) atEOF() bool       { return p.cur().Kind == lexer.EOF }
func (p *Parser) advance() lexer.Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) check(k lexer.TokenKind) bool { return p.cur().Kind == k }

func (p *Parser) expect(k lexer.TokenKind) (lexer.Token, bool) {
	if p.cur().Kind != k {
		p.errorf("expected %s, got %s", k, p.cur().Kind)
		return lexer.Token{}, false
	}
	return p.advance(), true
}

func (p *Parser) errorf(format string, args ...interface{}) {
	p.errs.SetPosition(p.fileName, p.line())
	p.errs.AddError(format, args...)
}

// parseProgram reads statements until EOF. Errors resynchronize at the
// next statement boundary so the parser can report more than one
// error per pass, matching spec.md §7's "may emit multiple errors
// before returning null".
func (p *Parser) parseProgram() *ast.Node {
	root := &ast.Node{Op: ast.OpFreeBlock, File: p.file, Line: 1}
	for !p.atEOF() {
		start, before := p.pos, len(p.errs.Entries())
		stmt := p.parseStatement()
		if stmt != nil {
			root.Children = append(root.Children, stmt)
		}
		if len(p.errs.Entries()) > before {
			// Only a statement that failed before reaching its `;` needs
			// resync; one that already consumed it is at the boundary.
			if p.pos == 0 || p.toks[p.pos-1].Kind != lexer.SEMICOLON {
				p.resync()
			}
			if p.pos == start {
				p.advance() // a token no statement can start with
			}
		}
	}
	if p.errs.HasErrors() {
		return nil
	}
	return root
}

// resync skips tokens until the next statement boundary (`;` or `}`)
// so parsing can continue and surface further errors.
func (p *Parser) resync() {
	for !p.atEOF() {
		k := p.cur().Kind
		if k == lexer.SEMICOLON {
			p.advance()
			return
		}
		if k == lexer.RBRACE {
			return
		}
		p.advance()
	}
}
