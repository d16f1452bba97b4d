package parser

import (
	"github.com/derp-lang/derp/internal/ast"
	"github.com/derp-lang/derp/internal/lexer"
)

// parseStatement dispatches on the leading token per spec.md §4.7's
// table.
func (p *Parser) parseStatement() *ast.Node {
	switch p.cur().Kind {
	case lexer.LBRACE:
		return p.parseBlock()
	case lexer.IF:
		return p.parseIf()
	case lexer.WHILE:
		return p.parseWhile()
	case lexer.DO:
		return p.parseDoWhile()
	case lexer.FOR:
		return p.parseFor()
	case lexer.RETURN:
		return p.parseReturn()
	case lexer.BREAK:
		line := p.line()
		p.advance()
		p.expect(lexer.SEMICOLON)
		return &ast.Node{Op: ast.OpBreak, File: p.file, Line: line}
	case lexer.CONTINUE:
		line := p.line()
		p.advance()
		p.expect(lexer.SEMICOLON)
		return &ast.Node{Op: ast.OpContinue, File: p.file, Line: line}
	case lexer.DBGOUT:
		return p.parseDbgout()
	default:
		return p.parseExprStatement()
	}
}

func (p *Parser) parseBlock() *ast.Node {
	line := p.line()
	p.expect(lexer.LBRACE)
	node := &ast.Node{Op: ast.OpBlock, File: p.file, Line: line}
	for !p.check(lexer.RBRACE) && !p.atEOF() {
		stmt := p.parseStatement()
		if stmt != nil {
			node.Children = append(node.Children, stmt)
		}
		if p.errs.HasErrors() {
			return node
		}
	}
	p.expect(lexer.RBRACE)
	return node
}

func (p *Parser) parseIf() *ast.Node {
	line := p.line()
	p.advance() // if
	p.expect(lexer.LPAREN)
	cond := p.parseExpr()
	p.expect(lexer.RPAREN)
	thenStmt := p.parseStatement()
	node := &ast.Node{Op: ast.OpIfElse, File: p.file, Line: line, Children: []*ast.Node{cond, thenStmt}}
	if p.check(lexer.ELSE) {
		p.advance()
		node.Children = append(node.Children, p.parseStatement())
	}
	return node
}

func (p *Parser) parseWhile() *ast.Node {
	line := p.line()
	p.advance() // while
	p.expect(lexer.LPAREN)
	cond := p.parseExpr()
	p.expect(lexer.RPAREN)
	action := p.parseStatement()
	return &ast.Node{Op: ast.OpLoop, File: p.file, Line: line, Loop: &ast.LoopSlots{Pre: cond, Action: action}}
}

func (p *Parser) parseDoWhile() *ast.Node {
	line := p.line()
	p.advance() // do
	action := p.parseStatement()
	p.expect(lexer.WHILE)
	p.expect(lexer.LPAREN)
	cond := p.parseExpr()
	p.expect(lexer.RPAREN)
	p.expect(lexer.SEMICOLON)
	return &ast.Node{Op: ast.OpLoop, File: p.file, Line: line, Loop: &ast.LoopSlots{Action: action, Post: cond}}
}

func (p *Parser) parseFor() *ast.Node {
	line := p.line()
	p.advance() // for
	p.expect(lexer.LPAREN)

	var initExpr, condExpr, stepExpr *ast.Node
	if !p.check(lexer.SEMICOLON) {
		initExpr = p.parseExpr()
	}
	p.expect(lexer.SEMICOLON)
	if !p.check(lexer.SEMICOLON) {
		condExpr = p.parseExpr()
	}
	p.expect(lexer.SEMICOLON)
	if !p.check(lexer.RPAREN) {
		stepExpr = p.parseExpr()
	}
	p.expect(lexer.RPAREN)
	action := p.parseStatement()

	return &ast.Node{Op: ast.OpLoop, File: p.file, Line: line, Loop: &ast.LoopSlots{
		Init: initExpr, Pre: condExpr, Action: action, Iterate: stepExpr,
	}}
}

func (p *Parser) parseReturn() *ast.Node {
	line := p.line()
	p.advance() // return
	expr := p.parseExpr()
	p.expect(lexer.SEMICOLON)
	return &ast.Node{Op: ast.OpReturn, File: p.file, Line: line, Children: []*ast.Node{expr}}
}

func (p *Parser) parseDbgout() *ast.Node {
	line := p.line()
	p.advance() // dbgout
	expr := p.parseExpr()
	p.expect(lexer.SEMICOLON)
	return &ast.Node{Op: ast.OpDebugPrint, File: p.file, Line: line, Children: []*ast.Node{expr}}
}

func (p *Parser) parseExprStatement() *ast.Node {
	expr := p.parseExpr()
	p.expect(lexer.SEMICOLON)
	return expr
}
