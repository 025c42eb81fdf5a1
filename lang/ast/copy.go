package ast

// Copy returns a deep copy of n. Macro expansion copies its body template
// before substituting parameters into it, so the template itself can be
// reused unchanged at every call site.
func Copy(n Node) Node {
	switch n := n.(type) {
	case *Int:
		cp := *n
		return &cp
	case *Float:
		cp := *n
		return &cp
	case *String:
		cp := *n
		return &cp
	case *Symbol:
		cp := *n
		return &cp
	case *True:
		cp := *n
		return &cp
	case *False:
		cp := *n
		return &cp
	case *Unit:
		cp := *n
		return &cp
	case *Application:
		args := make([]Node, len(n.Args))
		for i, a := range n.Args {
			args[i] = Copy(a)
		}
		return &Application{TokPos: n.TokPos, Applier: Copy(n.Applier), Args: args}
	case *Quoted:
		return &Quoted{TokPos: n.TokPos, Left: Copy(n.Left)}
	case *Quasiquoted:
		return &Quasiquoted{TokPos: n.TokPos, Left: Copy(n.Left)}
	case *Unquoted:
		return &Unquoted{TokPos: n.TokPos, Left: Copy(n.Left)}
	default:
		panic("ast: Copy: unknown node type")
	}
}
