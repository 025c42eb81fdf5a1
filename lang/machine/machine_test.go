package machine_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mna/lisby/lang/compiler"
	"github.com/mna/lisby/lang/machine"
	"github.com/mna/lisby/lang/parser"
)

func run(t *testing.T, src string) (machine.Value, string) {
	t.Helper()
	forest, err := parser.ParseAll([]byte(src))
	require.NoError(t, err)
	p := compiler.NewProgram()
	require.NoError(t, compiler.NewCompiler().Compile(p, forest))

	var out bytes.Buffer
	vm := machine.New(p, &out)
	res, err := vm.Run(machine.NewEnvironment())
	require.NoError(t, err)
	return res, out.String()
}

func TestRunArithmetic(t *testing.T) {
	res, _ := run(t, "(+ 1 2)")
	require.Equal(t, machine.Int(3), res)

	res, _ = run(t, "(- 10 3)")
	require.Equal(t, machine.Int(7), res)

	res, _ = run(t, "(* 2 (+ 1 2))")
	require.Equal(t, machine.Int(6), res)
}

func TestRunFloatArithmetic(t *testing.T) {
	res, _ := run(t, "(+ 1.5 2.5)")
	require.Equal(t, machine.Float(4), res)

	res, _ = run(t, "(* 2.0 3.0)")
	require.Equal(t, machine.Float(6), res)
}

func TestRunMixedArithmeticPromotesToFloat(t *testing.T) {
	res, _ := run(t, "(+ 1 2.0)")
	require.Equal(t, machine.Float(3), res)

	res, _ = run(t, "(* 2 1.5)")
	require.Equal(t, machine.Float(3), res)

	res, _ = run(t, "(/ 5 2.0)")
	require.Equal(t, machine.Float(2.5), res)
}

func TestRunComparisons(t *testing.T) {
	res, _ := run(t, "(< 1 2)")
	require.Equal(t, machine.Bool(true), res)

	res, _ = run(t, "(= 1 1)")
	require.Equal(t, machine.Bool(true), res)
}

func TestRunComparisonRejectsMixedTypes(t *testing.T) {
	forest, err := parser.ParseAll([]byte("(= 1 1.0)"))
	require.NoError(t, err)
	p := compiler.NewProgram()
	require.NoError(t, compiler.NewCompiler().Compile(p, forest))
	vm := machine.New(p, &bytes.Buffer{})
	_, err = vm.Run(machine.NewEnvironment())
	require.Error(t, err)

	forest, err = parser.ParseAll([]byte("(< 1 1.0)"))
	require.NoError(t, err)
	p = compiler.NewProgram()
	require.NoError(t, compiler.NewCompiler().Compile(p, forest))
	vm = machine.New(p, &bytes.Buffer{})
	_, err = vm.Run(machine.NewEnvironment())
	require.Error(t, err)
}

func TestRunIndirectBuiltinCall(t *testing.T) {
	res, _ := run(t, "(define plus +) (plus 1 2)")
	require.Equal(t, machine.Int(3), res)
}

func TestRunIf(t *testing.T) {
	res, _ := run(t, "(if (< 1 2) 10 20)")
	require.Equal(t, machine.Int(10), res)

	res, _ = run(t, "(if (> 1 2) 10 20)")
	require.Equal(t, machine.Int(20), res)
}

func TestRunOrAnd(t *testing.T) {
	res, _ := run(t, "(or #f #t)")
	require.Equal(t, machine.Bool(true), res)

	res, _ = run(t, "(and #t #f)")
	require.Equal(t, machine.Bool(false), res)
}

func TestRunDefineAndCallLambda(t *testing.T) {
	res, _ := run(t, "(define (square x) (* x x)) (square 7)")
	require.Equal(t, machine.Int(49), res)
}

func TestRunLet(t *testing.T) {
	res, _ := run(t, "(let ((x 3) (y 4)) (+ x y))")
	require.Equal(t, machine.Int(7), res)
}

func TestRunRecursiveLambda(t *testing.T) {
	res, _ := run(t, `
		(define (fact n) (if (= n 0) 1 (* n (fact (- n 1)))))
		(fact 5)
	`)
	require.Equal(t, machine.Int(120), res)
}

func TestRunListHeadTail(t *testing.T) {
	res, _ := run(t, "(head (list 1 2 3))")
	require.Equal(t, machine.Int(1), res)

	res, _ = run(t, "(head (tail (list 1 2 3)))")
	require.Equal(t, machine.Int(2), res)
}

func TestRunListConcat(t *testing.T) {
	res, _ := run(t, "(:: (list 1 2) (list 3 4))")
	l, ok := res.(*machine.List)
	require.True(t, ok)
	require.Equal(t, []machine.Value{machine.Int(1), machine.Int(2), machine.Int(3), machine.Int(4)}, l.Items)
}

func TestRunQuoted(t *testing.T) {
	res, _ := run(t, "'(a b c)")
	l, ok := res.(*machine.List)
	require.True(t, ok)
	require.Equal(t, machine.Symbol{Name: "a"}, l.Items[0])
}

func TestRunQuasiquoteUnquote(t *testing.T) {
	res, _ := run(t, "`(1 ,(+ 1 1) 3)")
	l, ok := res.(*machine.List)
	require.True(t, ok)
	require.Equal(t, machine.Int(2), l.Items[1])
}

func TestRunDisplay(t *testing.T) {
	_, out := run(t, `(display "hello")`)
	require.Equal(t, "hello\n", out)
}

func TestRunSet(t *testing.T) {
	res, _ := run(t, "(define x 1) (set! x 2) x")
	require.Equal(t, machine.Int(2), res)
}

func TestRunDefmacro(t *testing.T) {
	res, _ := run(t, "(defmacro (twice x) (+ x x)) (twice 21)")
	require.Equal(t, machine.Int(42), res)
}

func TestRunCallCC(t *testing.T) {
	res, _ := run(t, "(+ 1 (call/cc (lambda (k) (k 41))))")
	require.Equal(t, machine.Int(42), res)
}

func TestRunCallCCEscapesEarly(t *testing.T) {
	res, _ := run(t, `
		(define (find-first lst)
			(call/cc (lambda (return)
				(+ 100 (if (= (head lst) 0) (return (head lst)) (head lst))))))
		(find-first (list 0 1 2))
	`)
	require.Equal(t, machine.Int(0), res)
}

func TestRunEval(t *testing.T) {
	res, _ := run(t, "(eval '(+ 1 2))")
	require.Equal(t, machine.Int(3), res)
}

func TestRunUnboundSymbol(t *testing.T) {
	_, err := func() (machine.Value, error) {
		forest, err := parser.ParseAll([]byte("nosuchvar"))
		require.NoError(t, err)
		p := compiler.NewProgram()
		require.NoError(t, compiler.NewCompiler().Compile(p, forest))
		vm := machine.New(p, &bytes.Buffer{})
		return vm.Run(machine.NewEnvironment())
	}()
	require.Error(t, err)
}

func TestRunDivisionByZero(t *testing.T) {
	forest, err := parser.ParseAll([]byte("(/ 1 0)"))
	require.NoError(t, err)
	p := compiler.NewProgram()
	require.NoError(t, compiler.NewCompiler().Compile(p, forest))
	vm := machine.New(p, &bytes.Buffer{})
	_, err = vm.Run(machine.NewEnvironment())
	require.Error(t, err)
}
