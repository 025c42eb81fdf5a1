package compiler_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mna/lisby/lang/compiler"
	"github.com/mna/lisby/lang/parser"
)

func compileSrc(t *testing.T, src string) *compiler.Program {
	t.Helper()
	forest, err := parser.ParseAll([]byte(src))
	require.NoError(t, err)
	p := compiler.NewProgram()
	c := compiler.NewCompiler()
	require.NoError(t, c.Compile(p, forest))
	return p
}

func TestCompileArithmetic(t *testing.T) {
	p := compileSrc(t, "(+ 1 2)")
	require.NotEmpty(t, p.Tapes[0])
	dasm := compiler.Dasm(p)
	require.Contains(t, dasm, "pushi 2")
	require.Contains(t, dasm, "pushi 1")
	require.Contains(t, dasm, "add")
	require.Contains(t, dasm, "halt")
}

func TestCompileIf(t *testing.T) {
	p := compileSrc(t, "(if #t 1 2)")
	dasm := compiler.Dasm(p)
	require.Contains(t, dasm, "jf")
	require.Contains(t, dasm, "jmp")
}

func TestCompileOrAnd(t *testing.T) {
	p1 := compileSrc(t, "(or #t #f)")
	require.Contains(t, compiler.Dasm(p1), "jt")

	p2 := compileSrc(t, "(and #t #f)")
	require.Contains(t, compiler.Dasm(p2), "jf")
}

func TestCompileLambdaAndDefine(t *testing.T) {
	p := compileSrc(t, "(define (square x) (* x x))")
	require.Len(t, p.Tapes, 2)
	dasm := compiler.Dasm(p)
	require.Contains(t, dasm, "pushclosure tape 1")
	require.Contains(t, dasm, "ret")
}

func TestCompileLet(t *testing.T) {
	p := compileSrc(t, "(let ((x 1) (y 2)) (+ x y))")
	dasm := compiler.Dasm(p)
	require.Contains(t, dasm, "newenv")
	require.Contains(t, dasm, "departenv")
}

func TestCompileQuoted(t *testing.T) {
	p := compileSrc(t, "'(a b c)")
	dasm := compiler.Dasm(p)
	require.Contains(t, dasm, "pushsyraw")
	require.Contains(t, dasm, "quoted")
	require.Contains(t, dasm, "list 3")
}

func TestCompileQuasiquotedUnquote(t *testing.T) {
	p := compileSrc(t, "`(a ,(+ 1 2))")
	dasm := compiler.Dasm(p)
	require.Contains(t, dasm, "quasiquoted")
	require.Contains(t, dasm, "add")
}

func TestCompileCallCC(t *testing.T) {
	p := compileSrc(t, "(call/cc (lambda (k) (k 1)))")
	dasm := compiler.Dasm(p)
	require.Contains(t, dasm, "pushcont")
}

func TestCompileDefmacroExpansion(t *testing.T) {
	p := compileSrc(t, "(defmacro (twice x) (+ x x)) (twice 5)")
	dasm := compiler.Dasm(p)
	require.Contains(t, dasm, "pushi 5")
	require.Contains(t, dasm, "add")
}

func TestCompileDisplay(t *testing.T) {
	p := compileSrc(t, `(display "hi")`)
	dasm := compiler.Dasm(p)
	require.Contains(t, dasm, "print")
	require.Contains(t, dasm, "pushunit")
}

func TestCompileList(t *testing.T) {
	p := compileSrc(t, "(list 1 2 3)")
	dasm := compiler.Dasm(p)
	require.Contains(t, dasm, "list 3")
}

func TestCompileSet(t *testing.T) {
	p := compileSrc(t, "(define x 1) (set! x 2)")
	dasm := compiler.Dasm(p)
	require.Contains(t, dasm, "store")
}

func TestCompileUnknownSpecialFormArity(t *testing.T) {
	forest, err := parser.ParseAll([]byte("(if #t 1)"))
	require.NoError(t, err)
	p := compiler.NewProgram()
	c := compiler.NewCompiler()
	err = c.Compile(p, forest)
	require.Error(t, err)
	var synErr *compiler.SyntaxError
	require.ErrorAs(t, err, &synErr)
}
