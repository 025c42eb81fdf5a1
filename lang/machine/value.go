// Package machine implements the stack-based virtual machine that executes
// lang/compiler bytecode: the runtime Value representation, the lexical
// Environment, and the instruction dispatch loop.
package machine

import (
	"fmt"
	"strconv"
	"strings"
)

// Value is the interface implemented by every runtime value the machine
// operates on.
type Value interface {
	// String returns the value's display representation, as printed by the
	// display special form.
	String() string
	// Type returns a short name for the value's type, used in runtime error
	// messages.
	Type() string
}

// Copier is implemented by values whose read semantics require a copy
// rather than a shared reference: a List is mutable (HEAD/TAIL/LISTCAT
// build new lists, but a let/lambda parameter binding should not let one
// binding's in-place future mutation leak into another), so every symbol
// lookup copies the bound value via Copy when the value implements Copier.
type Copier interface {
	Copy() Value
}

// CopyValue returns a copy of v if v implements Copier, else v itself
// (immutable scalar values are safely shared).
func CopyValue(v Value) Value {
	if c, ok := v.(Copier); ok {
		return c.Copy()
	}
	return v
}

// Int is a signed 64-bit integer value.
type Int int64

var _ Value = Int(0)

func (i Int) String() string { return strconv.FormatInt(int64(i), 10) }
func (i Int) Type() string   { return "int" }

// Float is a 64-bit floating point value.
type Float float64

var _ Value = Float(0)

func (f Float) String() string { return strconv.FormatFloat(float64(f), 'g', -1, 64) }
func (f Float) Type() string   { return "float" }

// Str is a string value.
type Str string

var _ Value = Str("")

func (s Str) String() string { return string(s) }
func (s Str) Type() string   { return "string" }

// Bool is a boolean value.
type Bool bool

var _ Value = Bool(false)

func (b Bool) String() string {
	if b {
		return "#t"
	}
	return "#f"
}
func (b Bool) Type() string { return "bool" }

// Unit is the singleton value representing the empty list / "no value",
// written () in source.
type Unit struct{}

var _ Value = Unit{}

func (Unit) String() string { return "()" }
func (Unit) Type() string   { return "unit" }

// Symbol is a bare, unresolved symbol value, produced by quoting a symbol
// (e.g. 'foo) rather than by looking one up in the environment.
type Symbol struct{ Name string }

var _ Value = Symbol{}

func (s Symbol) String() string { return s.Name }
func (s Symbol) Type() string   { return "symbol" }

// List is an ordered, mutable sequence of values, the sole compound data
// type: quoted forms, and the result of the list/:: special forms, all
// produce a List.
type List struct{ Items []Value }

var (
	_ Value  = (*List)(nil)
	_ Copier = (*List)(nil)
)

// NewList returns a List wrapping items directly; callers should not
// subsequently share items with another List.
func NewList(items []Value) *List { return &List{Items: items} }

func (l *List) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i, it := range l.Items {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(it.String())
	}
	sb.WriteByte(')')
	return sb.String()
}

func (l *List) Type() string { return "list" }

// Copy returns a list with the same length and a shallow copy of the
// element slice; the elements themselves are not recursively copied; scalar
// elements don't need it and nested lists are copied again the next time
// they themselves are read out of a binding.
func (l *List) Copy() Value {
	items := make([]Value, len(l.Items))
	copy(items, l.Items)
	return &List{Items: items}
}

// Builtin is a reference to a builtin operator (e.g. "+", "head") as a
// first-class value, produced when PUSHSY resolves a symbol that names a
// builtin but is not bound in the environment: it lets a builtin be passed
// around and called indirectly, e.g. (define plus +) (plus 1 2).
type Builtin string

var _ Value = Builtin("")

func (b Builtin) String() string { return string(b) }
func (b Builtin) Type() string   { return "builtin" }

// Closure is a callable value produced by PUSHCLOSURE: a tape index to run
// and the lexical environment captured at the point the closure was
// created.
type Closure struct {
	Tape int
	Env  *Environment
}

var _ Value = (*Closure)(nil)

func (c *Closure) String() string { return fmt.Sprintf("closure(tape %d)", c.Tape) }
func (c *Closure) Type() string   { return "closure" }

// Continuation is the value captured by call/cc's PUSHCONT instruction: the
// point in the calling tape execution should resume at, the environment
// active at that point, and how much of the operand stack and call stack to
// keep when it's invoked. Invoking a Continuation is an escape: it unwinds
// the machine's call stack back down to the captured frame and truncates
// the operand stack back to its captured depth, then resumes at PC with the
// single value passed to it pushed.  It is single-shot in the sense that it
// can only resume into frames still present on the stack; it cannot restore
// a frame that has already returned.
type Continuation struct {
	Tape       int
	PC         int
	Env        *Environment
	FrameDepth int
	StackDepth int
}

var _ Value = (*Continuation)(nil)

func (c *Continuation) String() string { return fmt.Sprintf("continuation(tape %d, pc %d)", c.Tape, c.PC) }
func (c *Continuation) Type() string   { return "continuation" }
