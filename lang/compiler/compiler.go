// Package compiler lowers a forest of lang/ast.Node into lang/compiler
// bytecode tapes, ready for lang/machine to execute.
package compiler

import (
	"fmt"

	"github.com/mna/lisby/lang/ast"
	"github.com/mna/lisby/lang/token"
)

// SyntaxError reports a malformed program detected at compile time: an
// unknown special form usage, a wrong argument count, a duplicate macro
// name, and so on.
type SyntaxError struct {
	Pos token.Pos
	Msg string
}

func (e *SyntaxError) Error() string {
	line, col := e.Pos.LineCol()
	return fmt.Sprintf("syntax error: %d:%d: %s", line, col, e.Msg)
}

func synErr(n ast.Node, format string, args ...any) error {
	return &SyntaxError{Pos: n.Pos(), Msg: fmt.Sprintf(format, args...)}
}

// Macro represents a compile-time, unhygienic, textual-substitution macro
// defined with defmacro. Expanding a macro deep-copies its body template so
// that the template itself is reusable, unmodified, at every call site.
type Macro struct {
	compiler *Compiler
	name     string
	params   []string
	body     []ast.Node
}

// substitute walks n (a fresh copy of the macro body), replacing any Symbol
// matching a macro parameter name with the corresponding call-site argument
// node, provided the symbol occurs at quotation level 0 (i.e. is not nested
// under a quote/quasiquote that hasn't been locally unquoted back to level
// 0). quotes tracks that nesting exactly as the compiler's own Quoted and
// Quasiquoted handling does: it increases under Quasiquoted or Quoted, and
// decreases under Unquoted.
func (m *Macro) substitute(args []ast.Node, n ast.Node, quotes int) ast.Node {
	switch n := n.(type) {
	case *ast.Symbol:
		if quotes == 0 {
			for i, p := range m.params {
				if p == n.Name {
					return args[i]
				}
			}
		}
		return n
	case *ast.Application:
		list := n.Tolist()
		for i, c := range list {
			list[i] = m.substitute(args, c, quotes)
		}
		n.Update(list)
		return n
	case *ast.Quoted:
		n.Left = m.substitute(args, n.Left, quotes+1)
		return n
	case *ast.Quasiquoted:
		n.Left = m.substitute(args, n.Left, quotes+1)
		return n
	case *ast.Unquoted:
		n.Left = m.substitute(args, n.Left, quotes-1)
		return n
	default:
		return n
	}
}

// expand compiles an invocation of the macro with the given call-site
// arguments, inline, as if its (substituted) body had been written at the
// call site directly.
func (m *Macro) expand(p *Program, call ast.Node, args []ast.Node) error {
	if len(args) != len(m.params) {
		return synErr(call, "macro %s expects %d arguments, got %d", m.name, len(m.params), len(args))
	}
	body := make([]ast.Node, len(m.body))
	for i, n := range m.body {
		body[i] = ast.Copy(n)
	}
	for i := range body {
		body[i] = m.substitute(args, body[i], 0)
	}
	return m.compiler.compileExprs(p, body)
}

// Compiler compiles one or more forests of AST nodes, accumulating defmacro
// definitions as it goes; a fresh Compiler should be used per independent
// compilation session (one per REPL session, for example) so that macros
// persist across successive top-level forms the way top-level symbol
// bindings persist in the machine's Environment.
type Compiler struct {
	Debug  bool
	macros map[string]*Macro
}

// NewCompiler returns a ready-to-use Compiler with no macros defined.
func NewCompiler() *Compiler {
	return &Compiler{macros: map[string]*Macro{}}
}

func (c *Compiler) debugf(format string, args ...any) {
	if c.Debug {
		fmt.Printf("compiler: "+format+"\n", args...)
	}
}

// specialFormNames lists the names handled directly by the Compiler rather
// than through ordinary symbol application or the builtins table.
var specialFormNames = map[string]bool{
	"let": true, "define": true, "lambda": true, "if": true, "begin": true,
	"set!": true, "display": true, "list": true, "::": true, "eval": true,
	"or": true, "and": true, "call/cc": true, "defmacro": true,
}

// Compile lowers every node of forest onto program's current tape, in
// order, finally emitting HALT. It is the single entry point used to
// compile one complete REPL turn or one complete source file.
func (c *Compiler) Compile(p *Program, forest []ast.Node) error {
	for _, n := range forest {
		if err := c.compileNode(p, n); err != nil {
			return err
		}
	}
	p.Emit(HALT)
	return nil
}

func (c *Compiler) compileNode(p *Program, n ast.Node) error {
	c.debugf("node: %s", n)
	switch n := n.(type) {
	case *ast.Application:
		return c.compileApplication(p, n)
	case *ast.Quoted:
		return c.compileQuoted(p, n.Left, 0)
	case *ast.Quasiquoted:
		return c.compileQuasiquoted(p, n.Left, 0)
	default:
		return c.compileAtom(p, n)
	}
}

func (c *Compiler) compileAtom(p *Program, n ast.Node) error {
	switch n := n.(type) {
	case *ast.Int:
		p.EmitPayload(PUSHI, uint64(n.Value))
	case *ast.Float:
		p.EmitFloatPayload(PUSHF, n.Value)
	case *ast.Symbol:
		c.pushSymbol(p, n)
	case *ast.True:
		p.Emit(PUSHTRUE)
	case *ast.False:
		p.Emit(PUSHFALSE)
	case *ast.String:
		idx := p.FindOrAddString(n.Value)
		p.EmitPayload(PUSHSTR, uint64(idx))
	case *ast.Unit:
		p.Emit(PUSHUNIT)
	default:
		return synErr(n, "atom expected, got %T", n)
	}
	return nil
}

func (c *Compiler) pushSymbol(p *Program, sym *ast.Symbol) {
	idx := p.FindOrAddSymbol(sym.Name)
	p.EmitPayload(PUSHSY, uint64(idx))
}

func (c *Compiler) pushString(p *Program, s string) {
	idx := p.FindOrAddString(s)
	p.EmitPayload(PUSHSTR, uint64(idx))
}

func (c *Compiler) compileApplication(p *Program, app *ast.Application) error {
	if sym, ok := app.Applier.(*ast.Symbol); ok {
		name := sym.Name
		switch {
		case isBuiltin(name):
			return c.compileBuiltin(p, app, name)
		case specialFormNames[name]:
			return c.compileSpecialForm(p, app, name)
		case c.macros[name] != nil:
			return c.macros[name].expand(p, app, app.Args)
		default:
			return c.compileSymbolApply(p, app, sym)
		}
	}

	if err := c.compileListReversed(p, app.Args); err != nil {
		return err
	}
	if err := c.compileNode(p, app.Applier); err != nil {
		return err
	}
	p.Emit(CALL)
	return nil
}

func isBuiltin(name string) bool {
	_, ok := builtins[name]
	return ok
}

func (c *Compiler) compileBuiltin(p *Program, app *ast.Application, name string) error {
	if want := builtinArity(name); len(app.Args) != want {
		return synErr(app, "%s expects %d argument(s), got %d", name, want, len(app.Args))
	}
	if err := c.compileListReversed(p, app.Args); err != nil {
		return err
	}
	p.Emit(builtins[name])
	return nil
}

func (c *Compiler) compileSymbolApply(p *Program, app *ast.Application, sym *ast.Symbol) error {
	if err := c.compileListReversed(p, app.Args); err != nil {
		return err
	}
	c.pushSymbol(p, sym)
	p.Emit(CALL)
	return nil
}

func (c *Compiler) compileListReversed(p *Program, nodes []ast.Node) error {
	for i := len(nodes) - 1; i >= 0; i-- {
		if err := c.compileNode(p, nodes[i]); err != nil {
			return err
		}
	}
	return nil
}

// compileExprs compiles a sequence of expressions, popping the value of
// every expression except the last so that exactly one value survives.
func (c *Compiler) compileExprs(p *Program, exprs []ast.Node) error {
	for i, n := range exprs {
		if err := c.compileNode(p, n); err != nil {
			return err
		}
		if i+1 != len(exprs) {
			p.Emit(POP)
		}
	}
	return nil
}

func (c *Compiler) compileSpecialForm(p *Program, app *ast.Application, name string) error {
	switch name {
	case "let":
		return c.compileLet(p, app)
	case "define":
		return c.compileDefine(p, app)
	case "lambda":
		return c.compileLambdaForm(p, app)
	case "if":
		return c.compileIf(p, app)
	case "begin":
		return c.compileBegin(p, app)
	case "set!":
		return c.compileSet(p, app)
	case "display":
		return c.compileDisplay(p, app)
	case "list":
		return c.compileList(p, app)
	case "::":
		return c.compileConcatList(p, app)
	case "eval":
		return c.compileEval(p, app)
	case "or":
		return c.compileOr(p, app)
	case "and":
		return c.compileAnd(p, app)
	case "call/cc":
		return c.compileCallCC(p, app)
	case "defmacro":
		return c.compileDefmacro(p, app)
	default:
		panic("compiler: unknown special form " + name)
	}
}

func (c *Compiler) compileOr(p *Program, app *ast.Application) error {
	if len(app.Args) != 2 {
		return synErr(app, "or expects two arguments")
	}
	if err := c.compileNode(p, app.Args[0]); err != nil {
		return err
	}
	patchTrue := p.EmitPlaceholder(JT)
	if err := c.compileNode(p, app.Args[1]); err != nil {
		return err
	}
	patchFalse := p.EmitPlaceholder(JF)
	pcTrue := p.Cursor()
	p.Emit(PUSHTRUE)
	patchEnd := p.EmitPlaceholder(JMP)
	pcFalse := p.Cursor()
	p.Emit(PUSHFALSE)
	pcEnd := p.Cursor()
	p.PatchInt(patchFalse, int64(pcFalse))
	p.PatchInt(patchTrue, int64(pcTrue))
	p.PatchInt(patchEnd, int64(pcEnd))
	return nil
}

func (c *Compiler) compileAnd(p *Program, app *ast.Application) error {
	if len(app.Args) != 2 {
		return synErr(app, "and expects two arguments")
	}
	if err := c.compileNode(p, app.Args[0]); err != nil {
		return err
	}
	patchFalse1 := p.EmitPlaceholder(JF)
	if err := c.compileNode(p, app.Args[1]); err != nil {
		return err
	}
	patchFalse2 := p.EmitPlaceholder(JF)
	p.Emit(PUSHTRUE)
	patchEnd := p.EmitPlaceholder(JMP)
	pcFalse := p.Cursor()
	p.Emit(PUSHFALSE)
	pcEnd := p.Cursor()
	p.PatchInt(patchFalse1, int64(pcFalse))
	p.PatchInt(patchFalse2, int64(pcFalse))
	p.PatchInt(patchEnd, int64(pcEnd))
	return nil
}

func (c *Compiler) compileConcatList(p *Program, app *ast.Application) error {
	if len(app.Args) < 2 {
		return synErr(app, "list concatenation needs at least two parameters")
	}
	for _, a := range app.Args {
		if err := c.compileNode(p, a); err != nil {
			return err
		}
	}
	for range app.Args[1:] {
		p.Emit(LISTCAT)
	}
	return nil
}

func (c *Compiler) compileDefmacro(p *Program, app *ast.Application) error {
	if len(app.Args) < 2 {
		return synErr(app, "defmacro needs at least two parameters")
	}
	paramList, ok := app.Args[0].(*ast.Application)
	if !ok {
		return synErr(app.Args[0], "no macro parameters given, got %T", app.Args[0])
	}
	raw := paramList.Tolist()
	if len(raw) == 0 {
		return synErr(app.Args[0], "need at least a macro name")
	}
	names := make([]string, len(raw))
	for i, n := range raw {
		sym, ok := n.(*ast.Symbol)
		if !ok {
			return synErr(n, "macro parameter not a symbol, got %T", n)
		}
		names[i] = sym.Name
	}
	name, params := names[0], names[1:]
	if _, ok := c.macros[name]; ok {
		return synErr(app, "macro %s already defined", name)
	}
	if specialFormNames[name] {
		return synErr(app, "macro name %s collides with a special form", name)
	}
	body := make([]ast.Node, len(app.Args[1:]))
	copy(body, app.Args[1:])
	c.macros[name] = &Macro{compiler: c, name: name, params: params, body: body}
	return nil
}

var errCallCC = "call/cc parameter has to be a lambda expression with one parameter"

func (c *Compiler) compileCallCC(p *Program, app *ast.Application) error {
	if len(app.Args) != 1 {
		return synErr(app, "call/cc accepts only one parameter")
	}
	param, ok := app.Args[0].(*ast.Application)
	if !ok {
		return synErr(app, errCallCC)
	}
	parts := param.Tolist()
	if len(parts) < 2 {
		return synErr(app, errCallCC)
	}
	head, ok := parts[0].(*ast.Symbol)
	if !ok || head.Name != "lambda" {
		return synErr(app, errCallCC)
	}
	binds, ok := parts[1].(*ast.Application)
	if !ok || len(binds.Tolist()) != 1 {
		return synErr(app, errCallCC)
	}
	params := binds.Tolist()
	exprs := parts[2:]

	patchCont := p.EmitPlaceholder(PUSHCONT)
	if err := c.lambdaUnpacked(p, params, exprs); err != nil {
		return err
	}
	p.Emit(CALL)
	p.PatchInt(patchCont, int64(p.Cursor()))
	return nil
}

func (c *Compiler) compileList(p *Program, app *ast.Application) error {
	if err := c.compileListReversed(p, app.Args); err != nil {
		return err
	}
	p.EmitPayload(LIST, uint64(len(app.Args)))
	return nil
}

func (c *Compiler) compileDisplay(p *Program, app *ast.Application) error {
	for _, a := range app.Args {
		if err := c.compileNode(p, a); err != nil {
			return err
		}
		p.Emit(PRINT)
	}
	c.pushString(p, "\n")
	p.Emit(PRINT)
	p.Emit(PUSHUNIT)
	return nil
}

func (c *Compiler) compileBegin(p *Program, app *ast.Application) error {
	if len(app.Args) == 0 {
		return synErr(app, "begin form needs at least one expression")
	}
	return c.compileExprs(p, app.Args)
}

func (c *Compiler) compileSet(p *Program, app *ast.Application) error {
	if len(app.Args) != 2 {
		return synErr(app, "set! form expects two arguments, binding and expression")
	}
	target, ok := app.Args[0].(*ast.Symbol)
	if !ok {
		return synErr(app.Args[0], "set! target should be a symbol")
	}
	if err := c.compileNode(p, app.Args[1]); err != nil {
		return err
	}
	idx := p.FindOrAddSymbol(target.Name)
	p.EmitPayload(STORE, uint64(idx))
	p.Emit(PUSHUNIT)
	return nil
}

func (c *Compiler) compileIf(p *Program, app *ast.Application) error {
	if len(app.Args) != 3 {
		return synErr(app, "if expects three arguments: cond-expr then-expr else-expr")
	}
	cond, then, els := app.Args[0], app.Args[1], app.Args[2]
	if err := c.compileNode(p, cond); err != nil {
		return err
	}
	patchFalse := p.EmitPlaceholder(JF)
	if err := c.compileNode(p, then); err != nil {
		return err
	}
	patchEnd := p.EmitPlaceholder(JMP)
	p.PatchInt(patchFalse, int64(p.Cursor()))
	if err := c.compileNode(p, els); err != nil {
		return err
	}
	p.PatchInt(patchEnd, int64(p.Cursor()))
	return nil
}

func (c *Compiler) compileLambdaForm(p *Program, app *ast.Application) error {
	if len(app.Args) < 2 {
		return synErr(app, "lambda form needs at least two parameters, got %d", len(app.Args))
	}
	var params []ast.Node
	switch first := app.Args[0].(type) {
	case *ast.Application:
		params = first.Tolist()
	case *ast.Unit:
		params = nil
	default:
		return synErr(app.Args[0], "lambda parameters have to be a list, got %T", first)
	}
	return c.lambdaUnpacked(p, params, app.Args[1:])
}

// lambdaUnpacked compiles a lambda body onto a fresh tape: the prologue
// pops one argument per parameter (in declared order, matching the
// caller's convention of pushing arguments in reverse source order so that
// the first declared parameter is on top of the stack first), then the
// body, then returns to the tape active when lambdaUnpacked was called and
// emits the PUSHCLOSURE that captures the new tape and the current
// environment.
func (c *Compiler) lambdaUnpacked(p *Program, params []ast.Node, exprs []ast.Node) error {
	origTape, newTape := p.LambdaStart()
	for _, param := range params {
		sym, ok := param.(*ast.Symbol)
		if !ok {
			return synErr(param, "parameter has to be a symbol, got %T", param)
		}
		idx := p.FindOrAddSymbol(sym.Name)
		p.EmitPayload(DECLARE, uint64(idx))
		p.EmitPayload(STORE, uint64(idx))
	}
	if err := c.compileExprs(p, exprs); err != nil {
		return err
	}
	p.LambdaEnd(origTape)
	p.EmitPayload(PUSHCLOSURE, uint64(newTape))
	return nil
}

func (c *Compiler) compileDefine(p *Program, app *ast.Application) error {
	if len(app.Args) < 2 {
		return synErr(app, "define needs two parameters")
	}
	binding, exprs := app.Args[0], app.Args[1:]
	switch binding := binding.(type) {
	case *ast.Symbol:
		if len(exprs) > 1 {
			return synErr(app, "symbol definition accepts only one expression")
		}
		if err := c.defineSymbol(p, binding.Name, exprs[0]); err != nil {
			return err
		}
	case *ast.Application:
		if err := c.defineLambda(p, binding.Tolist(), exprs); err != nil {
			return err
		}
	default:
		return synErr(app, "define should have `binding expr`")
	}
	p.Emit(PUSHUNIT)
	return nil
}

func (c *Compiler) defineSymbol(p *Program, name string, expr ast.Node) error {
	if err := c.compileNode(p, expr); err != nil {
		return err
	}
	idx := p.FindOrAddSymbol(name)
	p.EmitPayload(DECLARE, uint64(idx))
	p.EmitPayload(STORETOP, uint64(idx))
	return nil
}

func (c *Compiler) defineLambda(p *Program, args []ast.Node, exprs []ast.Node) error {
	if len(args) < 1 {
		return synErr(args[0], "lambda definition needs at least a binding name")
	}
	names := make([]string, len(args))
	for i, a := range args {
		sym, ok := a.(*ast.Symbol)
		if !ok {
			return synErr(a, "lambda argument must be a symbol, got %T", a)
		}
		names[i] = sym.Name
	}
	name := names[0]
	idx := p.FindOrAddSymbol(name)
	p.EmitPayload(DECLARE, uint64(idx))
	if err := c.lambdaUnpacked(p, args[1:], exprs); err != nil {
		return err
	}
	p.EmitPayload(STORETOP, uint64(idx))
	return nil
}

func (c *Compiler) compileLet(p *Program, app *ast.Application) error {
	if len(app.Args) < 2 {
		return synErr(app, "invalid let form")
	}
	rawParams, ok := app.Args[0].(*ast.Application)
	if !ok {
		return synErr(app.Args[0], "let parameters not a list")
	}
	exprs := app.Args[1:]

	p.Emit(NEWENV)
	for _, rp := range rawParams.Tolist() {
		pair, ok := rp.(*ast.Application)
		if !ok {
			return synErr(rp, "let parameter not a list")
		}
		values := pair.Tolist()
		if len(values) != 2 {
			return synErr(rp, "expecting one binding value")
		}
		binding, ok := values[0].(*ast.Symbol)
		if !ok {
			return synErr(values[0], "let binding not a symbol")
		}
		idx := p.FindOrAddSymbol(binding.Name)
		p.EmitPayload(DECLARE, uint64(idx))
		if err := c.compileNode(p, values[1]); err != nil {
			return err
		}
		p.EmitPayload(STORE, uint64(idx))
	}
	if err := c.compileExprs(p, exprs); err != nil {
		return err
	}
	p.Emit(DEPARTENV)
	return nil
}

func (c *Compiler) compileEval(p *Program, app *ast.Application) error {
	if len(app.Args) != 1 {
		return synErr(app, "eval expects one parameter")
	}
	if err := c.compileNode(p, app.Args[0]); err != nil {
		return err
	}
	p.Emit(EVAL)
	return nil
}

// compileQuoted compiles the contents of a 'expr quotation. An Application
// is compiled member-by-member (including its own applier position) as
// plain data, each member at quote level 0 relative to the list itself,
// followed by a QUOTED<level> marker and a LIST<n> that conses them into a
// quoted list value. A Symbol is pushed raw (unresolved, via PUSHSYRAW)
// rather than looked up. A nested Quoted increases level. Anything else is
// compiled as an ordinary atom, wrapped in QUOTED<level>.
func (c *Compiler) compileQuoted(p *Program, n ast.Node, level int) error {
	switch n := n.(type) {
	case *ast.Application:
		members := n.Tolist()
		for i := len(members) - 1; i >= 0; i-- {
			if err := c.compileQuoted(p, members[i], 0); err != nil {
				return err
			}
		}
		p.EmitPayload(QUOTED, uint64(level))
		p.EmitPayload(LIST, uint64(len(members)))
		return nil
	case *ast.Symbol:
		p.EmitPayload(QUOTED, uint64(level))
		idx := p.FindOrAddSymbol(n.Name)
		p.EmitPayload(PUSHSYRAW, uint64(idx))
		return nil
	case *ast.Quoted:
		return c.compileQuoted(p, n.Left, level+1)
	default:
		p.EmitPayload(QUOTED, uint64(level))
		return c.compileAtom(p, n)
	}
}

// compileQuasiquoted mirrors compileQuoted, except that an Unquoted node
// nested exactly level deep (level == 0 at the point it's reached) switches
// back to ordinary, runtime-evaluated compilation of its contents; deeper
// nesting (level > 0) just peels one level off and keeps treating the
// contents as quoted data, and level < 0 (more unquotes than quasiquotes)
// is an error.
func (c *Compiler) compileQuasiquoted(p *Program, n ast.Node, level int) error {
	switch n := n.(type) {
	case *ast.Application:
		members := n.Tolist()
		for i := len(members) - 1; i >= 0; i-- {
			if err := c.compileQuasiquoted(p, members[i], 0); err != nil {
				return err
			}
		}
		p.EmitPayload(QUASIQUOTED, uint64(level))
		p.EmitPayload(LIST, uint64(len(members)))
		return nil
	case *ast.Symbol:
		p.EmitPayload(QUASIQUOTED, uint64(level))
		idx := p.FindOrAddSymbol(n.Name)
		p.EmitPayload(PUSHSYRAW, uint64(idx))
		return nil
	case *ast.Quasiquoted:
		return c.compileQuasiquoted(p, n.Left, level+1)
	case *ast.Unquoted:
		switch {
		case level < 0:
			return synErr(n, "unquoting too hard")
		case level == 0:
			return c.compileNode(p, n.Left)
		default:
			return c.compileQuasiquoted(p, n.Left, level-1)
		}
	default:
		if level >= 0 {
			p.EmitPayload(QUASIQUOTED, uint64(level))
		}
		return c.compileAtom(p, n)
	}
}
