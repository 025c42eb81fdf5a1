// Package parser implements the recursive-descent parser that transforms a
// token stream into a forest of lang/ast.Node.
package parser

import (
	"fmt"

	"github.com/mna/lisby/lang/ast"
	"github.com/mna/lisby/lang/scanner"
	"github.com/mna/lisby/lang/token"
)

// Error is a single parse error, with the position at which it was detected.
type Error struct {
	Pos token.Pos
	Msg string
}

func (e *Error) Error() string {
	line, col := e.Pos.LineCol()
	return fmt.Sprintf("%d:%d: %s", line, col, e.Msg)
}

// ErrorList collects the errors reported while parsing a source buffer.
type ErrorList []*Error

func (el ErrorList) Error() string {
	switch len(el) {
	case 0:
		return "no errors"
	case 1:
		return el[0].Error()
	default:
		return fmt.Sprintf("%s (and %d more errors)", el[0], len(el)-1)
	}
}

// parser parses a single source buffer into a forest of top-level nodes.
type parser struct {
	scanner scanner.Scanner
	errors  ErrorList

	tok scanner.TokenAndValue
}

// ParseAll parses every top-level form in src and returns the resulting
// forest. The error, if non-nil, is an ErrorList.
func ParseAll(src []byte) ([]ast.Node, error) {
	var p parser
	p.scanner.Init(src, func(e *scanner.Error) {
		p.errors = append(p.errors, &Error{Pos: e.Pos, Msg: e.Msg})
	})
	p.advance()

	var forest []ast.Node
	for p.tok.Token != token.EOF {
		n := p.parseNode()
		if n != nil {
			forest = append(forest, n)
		}
	}
	if len(p.errors) > 0 {
		return forest, p.errors
	}
	return forest, nil
}

// Unbalanced reports how many characters of open-but-unclosed parentheses
// would remain after parsing src, used by a REPL to decide whether to
// prompt for a continuation line instead of reporting incomplete input as
// an error.
func Unbalanced(src []byte) int {
	var s scanner.Scanner
	s.Init(src, nil)
	for {
		tv := s.Scan()
		if tv.Token == token.EOF {
			break
		}
	}
	return s.Unbalanced()
}

func (p *parser) advance() {
	p.tok = p.scanner.Scan()
}

func (p *parser) errorf(pos token.Pos, format string, args ...any) {
	p.errors = append(p.errors, &Error{Pos: pos, Msg: fmt.Sprintf(format, args...)})
}

// parseNode parses a single top-level or nested form.
func (p *parser) parseNode() ast.Node {
	tv := p.tok
	switch tv.Token {
	case token.LPAREN:
		return p.parseApplication()
	case token.RPAREN:
		p.errorf(tv.Pos, "unexpected )")
		p.advance()
		return nil
	case token.QUOTE:
		p.advance()
		inner := p.parseNode()
		if inner == nil {
			return nil
		}
		return &ast.Quoted{TokPos: tv.Pos, Left: inner}
	case token.QUASIQUOTE:
		p.advance()
		inner := p.parseNode()
		if inner == nil {
			return nil
		}
		return &ast.Quasiquoted{TokPos: tv.Pos, Left: inner}
	case token.UNQUOTE:
		p.advance()
		inner := p.parseNode()
		if inner == nil {
			return nil
		}
		return &ast.Unquoted{TokPos: tv.Pos, Left: inner}
	case token.INT:
		p.advance()
		return &ast.Int{TokPos: tv.Pos, Value: tv.Int}
	case token.FLOAT:
		p.advance()
		return &ast.Float{TokPos: tv.Pos, Value: tv.Float}
	case token.STRING:
		p.advance()
		return &ast.String{TokPos: tv.Pos, Value: tv.Raw}
	case token.SYMBOL:
		p.advance()
		return &ast.Symbol{TokPos: tv.Pos, Name: tv.Raw}
	case token.TRUE:
		p.advance()
		return &ast.True{TokPos: tv.Pos}
	case token.FALSE:
		p.advance()
		return &ast.False{TokPos: tv.Pos}
	case token.EOF:
		p.errorf(tv.Pos, "unexpected end of input")
		return nil
	default:
		p.errorf(tv.Pos, "unexpected %s", tv.Token)
		p.advance()
		return nil
	}
}

// parseApplication parses "(" [node]* ")", treating an empty "()" as Unit.
func (p *parser) parseApplication() ast.Node {
	start := p.tok.Pos
	p.advance() // consume '('

	if p.tok.Token == token.RPAREN {
		p.advance()
		return &ast.Unit{TokPos: start}
	}

	applier := p.parseNode()
	if applier == nil {
		p.recoverToMatchingParen()
		return nil
	}

	var args []ast.Node
	for p.tok.Token != token.RPAREN {
		if p.tok.Token == token.EOF {
			p.errorf(p.tok.Pos, "unbalanced parentheses: missing )")
			return &ast.Application{TokPos: start, Applier: applier, Args: args}
		}
		a := p.parseNode()
		if a == nil {
			p.recoverToMatchingParen()
			return &ast.Application{TokPos: start, Applier: applier, Args: args}
		}
		args = append(args, a)
	}
	p.advance() // consume ')'
	return &ast.Application{TokPos: start, Applier: applier, Args: args}
}

// recoverToMatchingParen skips tokens until the closing paren that matches
// the most recently opened one, so that one malformed form doesn't cascade
// into spurious errors for the rest of the file.
func (p *parser) recoverToMatchingParen() {
	depth := 1
	for depth > 0 && p.tok.Token != token.EOF {
		switch p.tok.Token {
		case token.LPAREN:
			depth++
		case token.RPAREN:
			depth--
		}
		p.advance()
	}
}
