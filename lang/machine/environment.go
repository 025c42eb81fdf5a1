package machine

import "github.com/dolthub/swiss"

// Environment is a lexical scope: a mutable symbol table plus a link to the
// enclosing scope. The top-level Environment (the one with a nil parent)
// holds every top-level define; let and every lambda invocation push a
// fresh child Environment.
type Environment struct {
	parent *Environment
	vars   *swiss.Map[string, Value]
}

// NewEnvironment returns a fresh top-level Environment with no parent.
func NewEnvironment() *Environment {
	return &Environment{vars: swiss.NewMap[string, Value](8)}
}

// Child returns a new Environment nested inside e, used to enter a let block
// or a lambda call's local scope.
func (e *Environment) Child() *Environment {
	return &Environment{parent: e, vars: swiss.NewMap[string, Value](4)}
}

// Declare creates (or overwrites) a binding for name in e itself, regardless
// of whether an enclosing scope already declares the same name (shadowing).
func (e *Environment) Declare(name string, v Value) {
	e.vars.Put(name, v)
}

// find returns the nearest Environment in the chain, starting at e, that
// declares name.
func (e *Environment) find(name string) *Environment {
	for env := e; env != nil; env = env.parent {
		if _, ok := env.vars.Get(name); ok {
			return env
		}
	}
	return nil
}

// Lookup resolves name by walking outward from e, returning a copy of the
// bound value (see CopyValue) and whether it was found.
func (e *Environment) Lookup(name string) (Value, bool) {
	env := e.find(name)
	if env == nil {
		return nil, false
	}
	v, _ := env.vars.Get(name)
	return CopyValue(v), true
}

// Store assigns v to the nearest existing binding of name in the chain
// starting at e, without creating a new binding. It reports whether such a
// binding was found.
func (e *Environment) Store(name string, v Value) bool {
	env := e.find(name)
	if env == nil {
		return false
	}
	env.vars.Put(name, v)
	return true
}
