package scanner

import (
	"testing"

	"github.com/mna/lisby/lang/token"
	"github.com/stretchr/testify/require"
)

func scanAll(t *testing.T, src string) []TokenAndValue {
	t.Helper()
	var s Scanner
	var errs []*Error
	s.Init([]byte(src), func(e *Error) { errs = append(errs, e) })
	var toks []TokenAndValue
	for {
		tv := s.Scan()
		toks = append(toks, tv)
		if tv.Token == token.EOF {
			break
		}
	}
	require.Empty(t, errs)
	return toks
}

func TestScanAtoms(t *testing.T) {
	toks := scanAll(t, `(+ 1 2.5 "hi" sym #t #f)`)
	want := []token.Token{
		token.LPAREN, token.SYMBOL, token.INT, token.FLOAT, token.STRING,
		token.SYMBOL, token.TRUE, token.FALSE, token.RPAREN, token.EOF,
	}
	require.Len(t, toks, len(want))
	for i, w := range want {
		require.Equalf(t, w, toks[i].Token, "token %d", i)
	}
	require.Equal(t, int64(1), toks[2].Int)
	require.Equal(t, 2.5, toks[3].Float)
	require.Equal(t, "hi", toks[4].Raw)
}

func TestScanNegativeNumber(t *testing.T) {
	toks := scanAll(t, `-42`)
	require.Equal(t, token.INT, toks[0].Token)
	require.Equal(t, int64(-42), toks[0].Int)
}

func TestScanQuoteMarks(t *testing.T) {
	toks := scanAll(t, `'a `+"`"+`b ,c`)
	require.Equal(t, token.QUOTE, toks[0].Token)
	require.Equal(t, token.QUASIQUOTE, toks[2].Token)
	require.Equal(t, token.UNQUOTE, toks[4].Token)
}

func TestScanComment(t *testing.T) {
	toks := scanAll(t, "1 ; a comment\n2")
	require.Equal(t, token.INT, toks[0].Token)
	require.Equal(t, token.INT, toks[1].Token)
	require.Equal(t, int64(2), toks[1].Int)
}

func TestUnbalancedTracking(t *testing.T) {
	var s Scanner
	s.Init([]byte("(+ 1 (* 2 3)"), nil)
	for {
		tv := s.Scan()
		if tv.Token == token.EOF {
			break
		}
	}
	require.Equal(t, 1, s.Unbalanced())
}
