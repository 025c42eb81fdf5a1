// Package ast defines the types that represent the abstract syntax tree of
// a parsed s-expression forest: atoms, applications, and the three
// quotation wrappers (quote, quasiquote, unquote).
package ast

import (
	"fmt"

	"github.com/mna/lisby/lang/token"
)

// Node represents any node in the AST. Every concrete node type is a
// pointer type implementing this interface.
type Node interface {
	// Every Node implements fmt.Stringer for debugging and disassembly
	// listings.
	fmt.Stringer

	// Pos reports the position of the node in the source, for use in
	// diagnostics. It may be the zero token.Pos for synthesized nodes (e.g.
	// nodes produced by macro expansion).
	Pos() token.Pos

	// Walk enters each child node to implement the Visitor pattern.
	Walk(v Visitor)
}

type (
	// Int is an integer literal node.
	Int struct {
		TokPos token.Pos
		Value  int64
	}

	// Float is a floating-point literal node.
	Float struct {
		TokPos token.Pos
		Value  float64
	}

	// String is a string literal node.
	String struct {
		TokPos token.Pos
		Value  string
	}

	// Symbol is an identifier node, naming either a binding, a special
	// form, or a builtin operator.
	Symbol struct {
		TokPos token.Pos
		Name   string
	}

	// True is the #t literal node.
	True struct {
		TokPos token.Pos
	}

	// False is the #f literal node.
	False struct {
		TokPos token.Pos
	}

	// Unit is the empty-list literal node, written "()".
	Unit struct {
		TokPos token.Pos
	}

	// Application is a function or special-form application: (Applier Args...).
	Application struct {
		TokPos  token.Pos
		Applier Node
		Args    []Node
	}

	// Quoted is a 'expr quotation node.
	Quoted struct {
		TokPos token.Pos
		Left   Node
	}

	// Quasiquoted is a `expr quasi-quotation node.
	Quasiquoted struct {
		TokPos token.Pos
		Left   Node
	}

	// Unquoted is a ,expr unquotation node, only meaningful nested inside a
	// Quasiquoted node.
	Unquoted struct {
		TokPos token.Pos
		Left   Node
	}
)

func (n *Int) Pos() token.Pos         { return n.TokPos }
func (n *Float) Pos() token.Pos       { return n.TokPos }
func (n *String) Pos() token.Pos      { return n.TokPos }
func (n *Symbol) Pos() token.Pos      { return n.TokPos }
func (n *True) Pos() token.Pos        { return n.TokPos }
func (n *False) Pos() token.Pos       { return n.TokPos }
func (n *Unit) Pos() token.Pos        { return n.TokPos }
func (n *Application) Pos() token.Pos { return n.TokPos }
func (n *Quoted) Pos() token.Pos      { return n.TokPos }
func (n *Quasiquoted) Pos() token.Pos { return n.TokPos }
func (n *Unquoted) Pos() token.Pos    { return n.TokPos }

func (n *Int) String() string    { return fmt.Sprintf("%d", n.Value) }
func (n *Float) String() string  { return fmt.Sprintf("%g", n.Value) }
func (n *String) String() string { return fmt.Sprintf("%q", n.Value) }
func (n *Symbol) String() string { return n.Name }
func (n *True) String() string   { return "#t" }
func (n *False) String() string  { return "#f" }
func (n *Unit) String() string   { return "()" }
func (n *Application) String() string {
	return fmt.Sprintf("(%s ...)", n.Applier)
}
func (n *Quoted) String() string      { return "'" + n.Left.String() }
func (n *Quasiquoted) String() string { return "`" + n.Left.String() }
func (n *Unquoted) String() string    { return "," + n.Left.String() }

func (n *Int) Walk(_ Visitor)    {}
func (n *Float) Walk(_ Visitor)  {}
func (n *String) Walk(_ Visitor) {}
func (n *Symbol) Walk(_ Visitor) {}
func (n *True) Walk(_ Visitor)   {}
func (n *False) Walk(_ Visitor)  {}
func (n *Unit) Walk(_ Visitor)   {}
func (n *Application) Walk(v Visitor) {
	Walk(v, n.Applier)
	for _, a := range n.Args {
		Walk(v, a)
	}
}
func (n *Quoted) Walk(v Visitor)      { Walk(v, n.Left) }
func (n *Quasiquoted) Walk(v Visitor) { Walk(v, n.Left) }
func (n *Unquoted) Walk(v Visitor)    { Walk(v, n.Left) }

// Tolist flattens an Application into [Applier, Args...], the representation
// the compiler's macro machinery rewrites in place (mirroring Application in
// the reference implementation: applier plus its argument list as one
// contiguous slice, so a macro's expansion can substitute elements by index
// without distinguishing the operator position from its operands).
func (n *Application) Tolist() []Node {
	out := make([]Node, 0, len(n.Args)+1)
	out = append(out, n.Applier)
	out = append(out, n.Args...)
	return out
}

// Update rebinds Applier and Args from a flattened [Applier, Args...] slice,
// the inverse of Tolist.
func (n *Application) Update(list []Node) {
	n.Applier = list[0]
	n.Args = append(n.Args[:0], list[1:]...)
}
