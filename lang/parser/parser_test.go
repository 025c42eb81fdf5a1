package parser

import (
	"testing"

	"github.com/mna/lisby/lang/ast"
	"github.com/stretchr/testify/require"
)

func TestParseAtoms(t *testing.T) {
	forest, err := ParseAll([]byte(`1 2.5 "hi" sym #t #f ()`))
	require.NoError(t, err)
	require.Len(t, forest, 7)
	require.IsType(t, &ast.Int{}, forest[0])
	require.IsType(t, &ast.Float{}, forest[1])
	require.IsType(t, &ast.String{}, forest[2])
	require.IsType(t, &ast.Symbol{}, forest[3])
	require.IsType(t, &ast.True{}, forest[4])
	require.IsType(t, &ast.False{}, forest[5])
	require.IsType(t, &ast.Unit{}, forest[6])
}

func TestParseApplication(t *testing.T) {
	forest, err := ParseAll([]byte(`(+ 1 2)`))
	require.NoError(t, err)
	require.Len(t, forest, 1)
	app, ok := forest[0].(*ast.Application)
	require.True(t, ok)
	require.Equal(t, "+", app.Applier.(*ast.Symbol).Name)
	require.Len(t, app.Args, 2)
}

func TestParseNestedApplication(t *testing.T) {
	forest, err := ParseAll([]byte(`(define (f x) (* x x))`))
	require.NoError(t, err)
	require.Len(t, forest, 1)
}

func TestParseQuotation(t *testing.T) {
	forest, err := ParseAll([]byte("'a `(1 ,a)"))
	require.NoError(t, err)
	require.Len(t, forest, 2)
	require.IsType(t, &ast.Quoted{}, forest[0])
	qq, ok := forest[1].(*ast.Quasiquoted)
	require.True(t, ok)
	app, ok := qq.Left.(*ast.Application)
	require.True(t, ok)
	require.IsType(t, &ast.Unquoted{}, app.Args[0])
}

func TestParseUnbalanced(t *testing.T) {
	_, err := ParseAll([]byte(`(+ 1 2`))
	require.Error(t, err)
}

func TestUnbalancedHelper(t *testing.T) {
	require.Equal(t, 1, Unbalanced([]byte(`(+ 1 (* 2 3)`)))
	require.Equal(t, 0, Unbalanced([]byte(`(+ 1 2)`)))
}
