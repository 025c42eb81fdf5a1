package machine

import (
	"fmt"
	"io"
	"math"

	"github.com/mna/lisby/lang/ast"
	"github.com/mna/lisby/lang/compiler"
)

// Frame records one active call: which tape is executing, the program
// counter within it, and the lexical Environment in effect. The machine
// keeps an explicit slice of Frames rather than recursing in Go, so that a
// Continuation can unwind the call stack by simple slice truncation.
type Frame struct {
	Tape int
	PC   int
	Env  *Environment
}

// VM executes the tapes of a single compiler.Program against a single
// operand stack and call stack.
type VM struct {
	Program *compiler.Program
	Out     io.Writer

	Stack  []Value
	Frames []Frame
}

// New returns a VM ready to execute p, writing PRINT/DUMP output to out.
func New(p *compiler.Program, out io.Writer) *VM {
	return &VM{Program: p, Out: out}
}

// Run executes tape 0 from its first instruction, using env as the
// top-level Environment, until it halts or fails. It returns the final
// value left on the stack (Unit if the tape popped everything).
func (vm *VM) Run(env *Environment) (Value, error) {
	vm.Frames = append(vm.Frames, Frame{Tape: 0, PC: 0, Env: env})
	return vm.loop()
}

func (vm *VM) frame() *Frame { return &vm.Frames[len(vm.Frames)-1] }

func (vm *VM) push(v Value) { vm.Stack = append(vm.Stack, v) }

func (vm *VM) pop() Value {
	n := len(vm.Stack) - 1
	v := vm.Stack[n]
	vm.Stack = vm.Stack[:n]
	return v
}

func (vm *VM) top() Value { return vm.Stack[len(vm.Stack)-1] }

// loop runs instructions until a HALT at the outermost frame, returning the
// final value (or Unit if the stack is empty at that point).
func (vm *VM) loop() (Value, error) {
	for {
		fr := vm.frame()
		tape := vm.Program.Tapes[fr.Tape]
		if fr.PC >= len(tape) {
			return nil, vm.errf("fell off the end of tape %d", fr.Tape)
		}
		op := compiler.Opcode(tape[fr.PC])
		var raw []byte
		if n := compiler.PayloadSize(op); n > 0 {
			if fr.PC+1+n > len(tape) {
				return nil, vm.errf("truncated instruction payload")
			}
			raw = tape[fr.PC+1 : fr.PC+1+n]
		}
		advance := compiler.InstructionSize(op)

		switch op {
		case compiler.HALT:
			if len(vm.Stack) == 0 {
				return Unit{}, nil
			}
			return vm.top(), nil

		case compiler.ADD, compiler.SUB, compiler.MUL, compiler.DIV, compiler.MOD,
			compiler.XOR, compiler.AND, compiler.OR,
			compiler.EQ, compiler.NEQ, compiler.GT, compiler.GE, compiler.LT, compiler.LE:
			if err := vm.binary(op); err != nil {
				return nil, err
			}

		case compiler.NOT, compiler.INV, compiler.HEAD, compiler.TAIL, compiler.DUMP:
			if err := vm.unary(op); err != nil {
				return nil, err
			}

		case compiler.PUSHI:
			vm.push(Int(compiler.IntPayload(raw)))
		case compiler.PUSHF:
			vm.push(Float(compiler.FloatPayload(raw)))
		case compiler.PUSHSTR:
			vm.push(Str(vm.Program.StringValue(compiler.IndexPayload(raw))))
		case compiler.PUSHTRUE:
			vm.push(Bool(true))
		case compiler.PUSHFALSE:
			vm.push(Bool(false))
		case compiler.PUSHUNIT:
			vm.push(Unit{})

		case compiler.PUSHSY:
			name := vm.Program.SymbolName(compiler.IndexPayload(raw))
			if v, ok := fr.Env.Lookup(name); ok {
				vm.push(v)
			} else if _, ok := compiler.BuiltinOpcode(name); ok {
				// A builtin-named symbol with no binding refers to the
				// builtin itself, first-class, so it can be passed around
				// and called indirectly (e.g. (define plus +) (plus 1 2)).
				vm.push(Builtin(name))
			} else {
				return nil, vm.errf("unbound symbol: %s", name)
			}
		case compiler.PUSHSYRAW:
			name := vm.Program.SymbolName(compiler.IndexPayload(raw))
			vm.push(Symbol{Name: name})

		case compiler.PUSHCLOSURE:
			vm.push(&Closure{Tape: int(compiler.IndexPayload(raw)), Env: fr.Env})

		case compiler.PUSHCONT:
			vm.push(&Continuation{
				Tape:       fr.Tape,
				PC:         int(compiler.IndexPayload(raw)),
				Env:        fr.Env,
				FrameDepth: len(vm.Frames),
				StackDepth: len(vm.Stack),
			})

		case compiler.QUOTED, compiler.QUASIQUOTED:
			// The quotation level is fully resolved at compile time by the
			// choice between compileQuoted/compileQuasiquoted and plain
			// compileNode; at runtime the following push already produces
			// exactly the intended data value, so these are no-ops.

		case compiler.POP:
			vm.pop()

		case compiler.CALL:
			// Advance the caller's PC past CALL before switching frames, so
			// that RET (or a later continuation invocation resuming this
			// same frame) continues after the call rather than re-issuing
			// it.
			fr.PC += advance
			if err := vm.call(); err != nil {
				return nil, err
			}
			continue

		case compiler.TAILCALL:
			return nil, vm.errf("tailcall: not implemented")

		case compiler.RET:
			vm.Frames = vm.Frames[:len(vm.Frames)-1]
			continue

		case compiler.JT:
			v, ok := vm.pop().(Bool)
			if !ok {
				return nil, vm.errf("jt: operand must be bool")
			}
			if bool(v) {
				fr.PC = int(compiler.IndexPayload(raw))
				continue
			}
		case compiler.JF:
			v, ok := vm.pop().(Bool)
			if !ok {
				return nil, vm.errf("jf: operand must be bool")
			}
			if !bool(v) {
				fr.PC = int(compiler.IndexPayload(raw))
				continue
			}
		case compiler.JMP:
			fr.PC = int(compiler.IndexPayload(raw))
			continue

		case compiler.STORE, compiler.STORETOP:
			name := vm.Program.SymbolName(compiler.IndexPayload(raw))
			v := vm.pop()
			if !fr.Env.Store(name, v) {
				return nil, vm.errf("store: undeclared symbol: %s", name)
			}

		case compiler.DECLARE:
			name := vm.Program.SymbolName(compiler.IndexPayload(raw))
			fr.Env.Declare(name, Unit{})

		case compiler.PRINT:
			fmt.Fprint(vm.Out, vm.pop().String())

		case compiler.LIST:
			n := int(compiler.IndexPayload(raw))
			items := make([]Value, n)
			for i := 0; i < n; i++ {
				items[i] = vm.pop()
			}
			vm.push(NewList(items))

		case compiler.LISTCAT:
			b, ok1 := vm.pop().(*List)
			a, ok2 := vm.pop().(*List)
			if !ok1 || !ok2 {
				return nil, vm.errf(":: operands must be lists")
			}
			items := make([]Value, 0, len(a.Items)+len(b.Items))
			items = append(items, a.Items...)
			items = append(items, b.Items...)
			vm.push(NewList(items))

		case compiler.EVAL:
			v := vm.pop()
			res, err := vm.eval(v, fr.Env)
			if err != nil {
				return nil, err
			}
			vm.push(res)

		case compiler.NEWENV:
			fr.Env = fr.Env.Child()
		case compiler.DEPARTENV:
			if fr.Env.parent == nil {
				return nil, vm.errf("departenv: no enclosing environment")
			}
			fr.Env = fr.Env.parent

		default:
			return nil, vm.errf("illegal opcode %s", op)
		}

		fr.PC += advance
	}
}

// call pops the callee value and either pushes a new Frame for a Closure or
// performs the escape unwind for a Continuation.
func (vm *VM) call() error {
	callee := vm.pop()
	switch c := callee.(type) {
	case *Closure:
		vm.Frames = append(vm.Frames, Frame{Tape: c.Tape, PC: 0, Env: c.Env.Child()})
		return nil
	case *Continuation:
		arg := vm.pop()
		if c.FrameDepth > len(vm.Frames) || c.StackDepth > len(vm.Stack) {
			return vm.errf("continuation escaped its dynamic extent")
		}
		vm.Frames = vm.Frames[:c.FrameDepth]
		fr := vm.frame()
		fr.Tape, fr.PC, fr.Env = c.Tape, c.PC, c.Env
		vm.Stack = vm.Stack[:c.StackDepth]
		vm.push(arg)
		return nil
	case Builtin:
		return vm.callBuiltin(string(c))
	case Symbol:
		return vm.callBuiltin(c.Name)
	default:
		return vm.errf("cannot call value of type %s", callee.Type())
	}
}

// callBuiltin dispatches a builtin invoked indirectly through a Builtin or
// raw Symbol callee (e.g. (define plus +) (plus 1 2)) to the same opcode a
// direct call to that builtin would have compiled to, operating on the
// arguments already sitting on the stack beneath the callee exactly as
// that opcode would.
func (vm *VM) callBuiltin(name string) error {
	op, ok := compiler.BuiltinOpcode(name)
	if !ok {
		return vm.errf("unrecognized builtin: %s", name)
	}
	if compiler.BuiltinArity(name) == 1 {
		return vm.unary(op)
	}
	return vm.binary(op)
}

// eval converts v back into an AST node, compiles it as a single top-level
// form, and runs it against env: the machine-level counterpart of the eval
// special form, letting a program inspect and re-enter its own quoted data
// as code.
func (vm *VM) eval(v Value, env *Environment) (Value, error) {
	node, err := valueToNode(v)
	if err != nil {
		return nil, vm.errf("eval: %v", err)
	}
	sub := compiler.NewProgram()
	if err := compiler.NewCompiler().Compile(sub, []ast.Node{node}); err != nil {
		return nil, vm.errf("eval: %v", err)
	}
	subVM := New(sub, vm.Out)
	return subVM.Run(env)
}

func valueToNode(v Value) (ast.Node, error) {
	switch v := v.(type) {
	case Int:
		return &ast.Int{Value: int64(v)}, nil
	case Float:
		return &ast.Float{Value: float64(v)}, nil
	case Str:
		return &ast.String{Value: string(v)}, nil
	case Bool:
		if v {
			return &ast.True{}, nil
		}
		return &ast.False{}, nil
	case Unit:
		return &ast.Unit{}, nil
	case Symbol:
		return &ast.Symbol{Name: v.Name}, nil
	case *List:
		if len(v.Items) == 0 {
			return &ast.Unit{}, nil
		}
		nodes := make([]ast.Node, len(v.Items))
		for i, it := range v.Items {
			n, err := valueToNode(it)
			if err != nil {
				return nil, err
			}
			nodes[i] = n
		}
		return &ast.Application{Applier: nodes[0], Args: nodes[1:]}, nil
	default:
		return nil, fmt.Errorf("cannot eval value of type %s", v.Type())
	}
}

// binary dispatches the arithmetic, bitwise, and comparison opcodes. Each
// pops the first (top of stack) then the second operand, matching the
// compiler's convention of pushing a binary call's arguments in reverse
// source order (so the first source argument ends up on top): the result
// is always computed as first <op> second, i.e. args[0] <op> args[1].
func (vm *VM) binary(op compiler.Opcode) error {
	first, second := vm.pop(), vm.pop()

	switch op {
	case compiler.AND, compiler.OR, compiler.XOR:
		a, ok1 := first.(Int)
		b, ok2 := second.(Int)
		if !ok1 || !ok2 {
			return vm.errf("%s: operands must be int", op)
		}
		switch op {
		case compiler.AND:
			vm.push(a & b)
		case compiler.OR:
			vm.push(a | b)
		case compiler.XOR:
			vm.push(a ^ b)
		}
		return nil
	case compiler.EQ, compiler.NEQ, compiler.GT, compiler.GE, compiler.LT, compiler.LE:
		return vm.compare(op, first, second)
	default:
		return vm.arith(op, first, second)
	}
}

// arith dispatches ADD/SUB/MUL/DIV/MOD. Mirroring
// original_source/lisby/vm/vm.py's arith(): if either operand is Float, the
// other is widened to Float and the result is a Float; the result only
// stays Int when both operands already are.
func (vm *VM) arith(op compiler.Opcode, first, second Value) error {
	if a, ok := first.(Int); ok {
		if b, ok := second.(Int); ok {
			return vm.arithInt(op, a, b)
		}
	}
	a, aok := toFloat(first)
	b, bok := toFloat(second)
	if !aok || !bok {
		return vm.errf("%s: unsupported operand types %s and %s", op, first.Type(), second.Type())
	}
	return vm.arithFloat(op, a, b)
}

func toFloat(v Value) (Float, bool) {
	switch v := v.(type) {
	case Float:
		return v, true
	case Int:
		return Float(v), true
	default:
		return 0, false
	}
}

func (vm *VM) arithInt(op compiler.Opcode, a, b Int) error {
	switch op {
	case compiler.ADD:
		vm.push(a + b)
	case compiler.SUB:
		vm.push(a - b)
	case compiler.MUL:
		vm.push(a * b)
	case compiler.DIV:
		if b == 0 {
			return vm.errf("division by zero")
		}
		vm.push(a / b)
	case compiler.MOD:
		if b == 0 {
			return vm.errf("division by zero")
		}
		vm.push(a % b)
	default:
		return vm.errf("arith: unexpected opcode %s", op)
	}
	return nil
}

func (vm *VM) arithFloat(op compiler.Opcode, a, b Float) error {
	switch op {
	case compiler.ADD:
		vm.push(a + b)
	case compiler.SUB:
		vm.push(a - b)
	case compiler.MUL:
		vm.push(a * b)
	case compiler.DIV:
		if b == 0 {
			return vm.errf("division by zero")
		}
		vm.push(a / b)
	case compiler.MOD:
		if b == 0 {
			return vm.errf("division by zero")
		}
		vm.push(Float(math.Mod(float64(a), float64(b))))
	default:
		return vm.errf("arith: unexpected opcode %s", op)
	}
	return nil
}

// compare dispatches EQ/NEQ/GT/GE/LT/LE. Unlike arith, comparison requires
// both operands to already be the same type: original_source/lisby/vm/vm.py's
// comp() raises rather than promoting, so (= 1 1.0) and (< 1 1.0) are both
// runtime errors here, not silently false or promoted.
func (vm *VM) compare(op compiler.Opcode, first, second Value) error {
	if first.Type() != second.Type() {
		if op == compiler.EQ || op == compiler.NEQ {
			return vm.errf("cannot compare types %s and %s", first.Type(), second.Type())
		}
		return vm.errf("cannot order types %s and %s", first.Type(), second.Type())
	}

	switch op {
	case compiler.EQ:
		vm.push(Bool(valuesEqual(first, second)))
		return nil
	case compiler.NEQ:
		vm.push(Bool(!valuesEqual(first, second)))
		return nil
	}

	switch a := first.(type) {
	case Int:
		b := second.(Int)
		return vm.compareOnly(op, a < b, a <= b, a > b, a >= b)
	case Float:
		b := second.(Float)
		return vm.compareOnly(op, a < b, a <= b, a > b, a >= b)
	case Str:
		b := second.(Str)
		return vm.compareOnly(op, a < b, a <= b, a > b, a >= b)
	default:
		return vm.errf("%s: unorderable type %s", op, first.Type())
	}
}

// unary dispatches the single-operand opcodes: NOT, INV (bitwise
// complement), HEAD, TAIL, and DUMP. Also used by callBuiltin so that a
// Builtin or Symbol value called indirectly goes through the same logic a
// direct compiled call to the same builtin would.
func (vm *VM) unary(op compiler.Opcode) error {
	switch op {
	case compiler.NOT:
		v, ok := vm.pop().(Bool)
		if !ok {
			return vm.errf("not: operand must be bool")
		}
		vm.push(!v)
	case compiler.INV:
		v, ok := vm.pop().(Int)
		if !ok {
			return vm.errf("~: operand must be int")
		}
		vm.push(^v)
	case compiler.HEAD:
		l, ok := vm.pop().(*List)
		if !ok {
			return vm.errf("head: operand must be a list")
		}
		if len(l.Items) == 0 {
			return vm.errf("head: empty list")
		}
		vm.push(l.Items[0])
	case compiler.TAIL:
		l, ok := vm.pop().(*List)
		if !ok {
			return vm.errf("tail: operand must be a list")
		}
		if len(l.Items) == 0 {
			return vm.errf("tail: empty list")
		}
		rest := make([]Value, len(l.Items)-1)
		copy(rest, l.Items[1:])
		vm.push(NewList(rest))
	case compiler.DUMP:
		v := vm.pop()
		fmt.Fprintf(vm.Out, "dump: %s\n", v.String())
		vm.push(v)
	default:
		return vm.errf("unary: unexpected opcode %s", op)
	}
	return nil
}

func (vm *VM) compareOnly(op compiler.Opcode, lt, le, gt, ge bool) error {
	switch op {
	case compiler.LT:
		vm.push(Bool(lt))
	case compiler.LE:
		vm.push(Bool(le))
	case compiler.GT:
		vm.push(Bool(gt))
	case compiler.GE:
		vm.push(Bool(ge))
	default:
		return vm.errf("unsupported comparison opcode %s", op)
	}
	return nil
}

func valuesEqual(a, b Value) bool {
	switch a := a.(type) {
	case Int:
		b, ok := b.(Int)
		return ok && a == b
	case Float:
		b, ok := b.(Float)
		return ok && a == b
	case Str:
		b, ok := b.(Str)
		return ok && a == b
	case Bool:
		b, ok := b.(Bool)
		return ok && a == b
	case Unit:
		_, ok := b.(Unit)
		return ok
	case Symbol:
		b, ok := b.(Symbol)
		return ok && a.Name == b.Name
	case *List:
		b, ok := b.(*List)
		if !ok || len(a.Items) != len(b.Items) {
			return false
		}
		for i, av := range a.Items {
			if !valuesEqual(av, b.Items[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}
