package compiler_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mna/lisby/lang/compiler"
)

func TestProgramEmitAndPatch(t *testing.T) {
	p := compiler.NewProgram()
	p.Emit(compiler.PUSHTRUE)
	off := p.EmitPlaceholder(compiler.JMP)
	p.Emit(compiler.POP)
	p.PatchInt(off, int64(p.Cursor()))
	p.Emit(compiler.HALT)

	require.Equal(t, len(p.Tapes[0]), p.Cursor())
}

func TestProgramInterning(t *testing.T) {
	p := compiler.NewProgram()
	i1 := p.FindOrAddSymbol("foo")
	i2 := p.FindOrAddSymbol("bar")
	i3 := p.FindOrAddSymbol("foo")
	require.Equal(t, i1, i3)
	require.NotEqual(t, i1, i2)

	idx, err := p.SymbolFind("foo")
	require.NoError(t, err)
	require.Equal(t, i1, idx)

	_, err = p.SymbolFind("missing")
	require.Error(t, err)
}

func TestProgramSerializeRoundtrip(t *testing.T) {
	p := compiler.NewProgram()
	p.EmitPayload(compiler.PUSHI, 42)
	s := p.FindOrAddString("hello")
	p.EmitPayload(compiler.PUSHSTR, uint64(s))
	sym := p.FindOrAddSymbol("x")
	p.EmitPayload(compiler.PUSHSY, uint64(sym))
	p.Emit(compiler.HALT)

	raw := p.Serialize()
	got, err := compiler.Deserialize(raw)
	require.NoError(t, err)
	require.Equal(t, p.Tapes, got.Tapes)
	require.Equal(t, p.Strings, got.Strings)
	require.Equal(t, p.Symbols, got.Symbols)
}

func TestProgramDeserializeRejectsBadMagic(t *testing.T) {
	_, err := compiler.Deserialize([]byte("not a valid bytecode file at all"))
	require.Error(t, err)
}

func TestProgramDeserializeRejectsTruncated(t *testing.T) {
	p := compiler.NewProgram()
	p.Emit(compiler.HALT)
	raw := p.Serialize()
	_, err := compiler.Deserialize(raw[:len(raw)-4])
	require.Error(t, err)
}

func TestLambdaStartEnd(t *testing.T) {
	p := compiler.NewProgram()
	orig, created := p.LambdaStart()
	require.Equal(t, 0, orig)
	require.Equal(t, 1, created)
	p.Emit(compiler.PUSHUNIT)
	p.LambdaEnd(orig)
	require.Equal(t, orig, p.Tape)
	require.Len(t, p.Tapes, 2)
}
