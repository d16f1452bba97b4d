package parser

import (
	"github.com/derp-lang/derp/internal/ast"
	"github.com/derp-lang/derp/internal/lexer"
)

// parseExpr parses a full expression via precedence climbing over the
// table in spec.md §4.7.
func (p *Parser) parseExpr() *ast.Node {
	return p.parseBinaryExpr(0)
}

func (p *Parser) parseBinaryExpr(minPrec int) *ast.Node {
	lhs := p.parseUnary()
	for {
		prec, ok := precedence[p.cur().Kind]
		if !ok || prec < minPrec {
			break
		}
		opTok := p.advance()
		rhs := p.parseBinaryExpr(prec + 1) // +1: left-associative
		lhs = &ast.Node{
			Op:       binOpCode(opTok.Kind),
			File:     p.file,
			Line:     opTok.Position.Line,
			Children: []*ast.Node{lhs, rhs},
		}
	}
	return lhs
}

// parseUnary handles the prefix forms. Prefix `!` sits at level 9, so
// only the level-10 comparisons bind inside it: `!a < b` is `!(a < b)`.
// Prefix `++`/`--` produce the same increment/decrement nodes as their
// postfix forms. Prefix `-` has no dedicated opcode (the evaluator only
// defines binary subtraction) so the parser desugars it to `0 - expr`,
// binding tighter than any binary operator, exactly
// as spec.md §4.6 implies ("a leading '-' is ... handled by parser as
// a prefix op"). Prefix `~` is named in the precedence table but never
// produced by the lexer (§4.6's single-character operator list omits
// it), so no case needs to exist for it here — an input using it
// surfaces as the lexer's "unknown character" error instead.
func (p *Parser) parseUnary() *ast.Node {
	switch p.cur().Kind {
	case lexer.BANG:
		line := p.line()
		p.advance()
		operand := p.parseBinaryExpr(precedence[lexer.LT])
		return &ast.Node{Op: ast.OpNot, File: p.file, Line: line, Children: []*ast.Node{operand}}
	case lexer.PLUSPLUS, lexer.MINUSMINUS:
		tok := p.advance()
		operand := p.parseUnary()
		op := ast.OpIncrement
		if tok.Kind == lexer.MINUSMINUS {
			op = ast.OpDecrement
		}
		return &ast.Node{Op: op, File: p.file, Line: tok.Position.Line, Children: []*ast.Node{operand}}
	case lexer.MINUS:
		line := p.line()
		p.advance()
		operand := p.parseUnary()
		zero := ast.NewLiteralInt(p.file, line, 0)
		return &ast.Node{Op: ast.OpSub, File: p.file, Line: line, Children: []*ast.Node{zero, operand}}
	default:
		return p.parsePostfix()
	}
}

// parsePostfix reduces call/index/increment/decrement against the
// primary it finds, immediately and left-to-right, so `f(a)[0]++`
// chains correctly.
func (p *Parser) parsePostfix() *ast.Node {
	node := p.parsePrimary()
	for {
		switch p.cur().Kind {
		case lexer.LPAREN:
			line := p.line()
			p.advance()
			var args []*ast.Node
			if !p.check(lexer.RPAREN) {
				args = append(args, p.parseExpr())
				for p.check(lexer.COMMA) {
					p.advance()
					args = append(args, p.parseExpr())
				}
			}
			p.expect(lexer.RPAREN)
			children := append([]*ast.Node{node}, args...)
			node = &ast.Node{Op: ast.OpFunctionCall, File: p.file, Line: line, Children: children}
		case lexer.LBRACKET:
			line := p.line()
			p.advance()
			key := p.parseExpr()
			p.expect(lexer.RBRACKET)
			node = &ast.Node{Op: ast.OpIndex, File: p.file, Line: line, Children: []*ast.Node{node, key}}
		case lexer.PLUSPLUS:
			line := p.line()
			p.advance()
			node = &ast.Node{Op: ast.OpIncrement, File: p.file, Line: line, Children: []*ast.Node{node}}
		case lexer.MINUSMINUS:
			line := p.line()
			p.advance()
			node = &ast.Node{Op: ast.OpDecrement, File: p.file, Line: line, Children: []*ast.Node{node}}
		default:
			return node
		}
	}
}

func (p *Parser) parsePrimary() *ast.Node {
	tok := p.cur()
	switch tok.Kind {
	case lexer.INT:
		p.advance()
		return ast.NewLiteralInt(p.file, tok.Position.Line, tok.IntVal)
	case lexer.FLOAT:
		p.advance()
		return ast.NewLiteralFloat(p.file, tok.Position.Line, tok.FloatVal)
	case lexer.STRING:
		p.advance()
		return ast.NewLiteralString(p.file, tok.Position.Line, tok.Text)
	case lexer.IDENTIFIER:
		p.advance()
		return &ast.Node{Op: ast.OpVarLookup, File: p.file, Line: tok.Position.Line, Ident: tok.Text}
	case lexer.VAR:
		p.advance()
		nameTok, ok := p.expect(lexer.IDENTIFIER)
		if !ok {
			return &ast.Node{Op: ast.OpError, File: p.file, Line: tok.Position.Line}
		}
		return &ast.Node{Op: ast.OpVariableDec, File: p.file, Line: tok.Position.Line, Ident: nameTok.Text}
	case lexer.FUNCTION:
		return p.parseFunctionLiteral()
	case lexer.LPAREN:
		p.advance()
		inner := p.parseExpr()
		p.expect(lexer.RPAREN)
		return inner
	default:
		p.errorf("unexpected token %s in expression", tok.Kind)
		return &ast.Node{Op: ast.OpError, File: p.file, Line: tok.Position.Line}
	}
}

func (p *Parser) parseFunctionLiteral() *ast.Node {
	line := p.line()
	p.advance() // function
	p.expect(lexer.LPAREN)

	var params []string
	if !p.check(lexer.RPAREN) {
		nameTok, ok := p.expect(lexer.IDENTIFIER)
		if ok {
			params = append(params, nameTok.Text)
		}
		for p.check(lexer.COMMA) {
			p.advance()
			nameTok, ok := p.expect(lexer.IDENTIFIER)
			if ok {
				params = append(params, nameTok.Text)
			}
		}
	}
	p.expect(lexer.RPAREN)
	body := p.parseStatement()
	return &ast.Node{Op: ast.OpFunctionLiteral, File: p.file, Line: line, Params: params, Children: []*ast.Node{body}}
}
