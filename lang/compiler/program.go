package compiler

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/dolthub/swiss"
)

// magic is the fixed byte sequence that brackets a serialized Program: it
// appears once at the start, and reversed once at the end.
var magic = []byte("LISBY001")

// Program holds the compiled bytecode tapes for a single compilation unit,
// along with its interned string and symbol tables. Tape 0 is the
// top-level tape; every lambda compiles onto a fresh tape of its own.
type Program struct {
	Tapes   [][]byte
	Strings []string
	Symbols []string

	// Tape is the index of the tape currently being emitted into.
	Tape int

	stringIndex *swiss.Map[string, uint32]
	symbolIndex *swiss.Map[string, uint32]
}

// NewProgram returns an empty, ready-to-compile Program with a single
// top-level tape.
func NewProgram() *Program {
	p := &Program{
		Tapes:       [][]byte{{}},
		stringIndex: swiss.NewMap[string, uint32](0),
		symbolIndex: swiss.NewMap[string, uint32](0),
	}
	return p
}

// Cursor returns the offset of the next byte to be emitted on the current
// tape.
func (p *Program) Cursor() int { return len(p.Tapes[p.Tape]) }

// Emit appends a single opcode byte to the current tape and returns the
// offset it was written at.
func (p *Program) Emit(op Opcode) int {
	pos := p.Cursor()
	p.Tapes[p.Tape] = append(p.Tapes[p.Tape], byte(op))
	return pos
}

// EmitPayload appends op followed by an 8-byte little-endian payload and
// returns the offset of the opcode byte.
func (p *Program) EmitPayload(op Opcode, payload uint64) int {
	pos := p.Emit(op)
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], payload)
	p.Tapes[p.Tape] = append(p.Tapes[p.Tape], buf[:]...)
	return pos
}

// EmitFloatPayload appends op followed by the little-endian IEEE-754 bit
// pattern of value and returns the offset of the opcode byte.
func (p *Program) EmitFloatPayload(op Opcode, value float64) int {
	return p.EmitPayload(op, math.Float64bits(value))
}

// EmitPlaceholder appends op followed by 8 placeholder bytes and returns the
// offset of the payload (for a later call to Patch).
func (p *Program) EmitPlaceholder(op Opcode) int {
	p.Emit(op)
	pos := p.Cursor()
	p.Tapes[p.Tape] = append(p.Tapes[p.Tape], 0x42, 0x42, 0x42, 0x42, 0x42, 0x42, 0x42, 0x42)
	return pos
}

// Patch overwrites the 8-byte payload at the given tape/offset with the
// little-endian encoding of value. Patches always target the tape that was
// active at the time Patch is called, matching the reference
// implementation's behavior of patching the tape currently being compiled
// rather than necessarily the tape the placeholder offset was recorded on
// (the two always coincide in practice: placeholders are only patched
// before the enclosing lambda, if any, finishes compiling).
func (p *Program) Patch(offset int, value uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], value)
	copy(p.Tapes[p.Tape][offset:offset+8], buf[:])
}

// PatchInt is a convenience wrapper over Patch for int64 values.
func (p *Program) PatchInt(offset int, value int64) { p.Patch(offset, uint64(value)) }

// LambdaStart opens a new tape for a lambda body, switches Program.Tape to
// it, and returns the index of the tape that was active before the switch
// (the caller resumes emitting there after LambdaEnd).
func (p *Program) LambdaStart() (origTape, newTape int) {
	origTape = p.Tape
	p.Tapes = append(p.Tapes, []byte{})
	newTape = len(p.Tapes) - 1
	p.Tape = newTape
	return origTape, newTape
}

// LambdaEnd emits RET on the current (lambda) tape and restores Program.Tape
// to origTape.
func (p *Program) LambdaEnd(origTape int) {
	p.Emit(RET)
	p.Tape = origTape
}

// FindOrAddString interns s and returns its index.
func (p *Program) FindOrAddString(s string) uint32 {
	if i, ok := p.stringIndex.Get(s); ok {
		return i
	}
	i := uint32(len(p.Strings))
	p.Strings = append(p.Strings, s)
	p.stringIndex.Put(s, i)
	return i
}

// FindOrAddSymbol interns name and returns its index.
func (p *Program) FindOrAddSymbol(name string) uint32 {
	if i, ok := p.symbolIndex.Get(name); ok {
		return i
	}
	i := uint32(len(p.Symbols))
	p.Symbols = append(p.Symbols, name)
	p.symbolIndex.Put(name, i)
	return i
}

// SymbolFind returns the index of an already-interned symbol, or an error if
// it has never been interned.
func (p *Program) SymbolFind(name string) (uint32, error) {
	i, ok := p.symbolIndex.Get(name)
	if !ok {
		return 0, fmt.Errorf("unknown symbol: %s", name)
	}
	return i, nil
}

// SymbolName returns the interned symbol name at index i.
func (p *Program) SymbolName(i uint32) string { return p.Symbols[i] }

// StringValue returns the interned string value at index i.
func (p *Program) StringValue(i uint32) string { return p.Strings[i] }

// IntPayload decodes an 8-byte little-endian payload as a signed 64-bit
// integer.
func IntPayload(raw []byte) int64 { return int64(binary.LittleEndian.Uint64(raw)) }

// FloatPayload decodes an 8-byte little-endian payload as a float64.
func FloatPayload(raw []byte) float64 { return math.Float64frombits(binary.LittleEndian.Uint64(raw)) }

// IndexPayload decodes an 8-byte little-endian payload as an unsigned index
// or count.
func IndexPayload(raw []byte) uint32 { return uint32(binary.LittleEndian.Uint64(raw)) }

// writeStringSection appends an int64 count followed by that many length-prefixed
// strings to buf.
func writeStringSection(buf *bytes.Buffer, items []string) {
	binary.Write(buf, binary.LittleEndian, int64(len(items))) //nolint:errcheck
	for _, s := range items {
		binary.Write(buf, binary.LittleEndian, int64(len(s))) //nolint:errcheck
		buf.WriteString(s)
	}
}

func readStringSection(r *bytes.Reader) ([]string, error) {
	var n int64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	out := make([]string, 0, n)
	for i := int64(0); i < n; i++ {
		var l int64
		if err := binary.Read(r, binary.LittleEndian, &l); err != nil {
			return nil, err
		}
		b := make([]byte, l)
		if _, err := r.Read(b); err != nil {
			return nil, err
		}
		out = append(out, string(b))
	}
	return out, nil
}

// Serialize encodes the program to the binary format documented for bytecode
// files: the magic prefix, then the strings/symbols/tapes sections (each an
// int64 count followed by length-prefixed payloads), then the magic suffix
// reversed.
func (p *Program) Serialize() []byte {
	var buf bytes.Buffer
	buf.Write(magic)
	writeStringSection(&buf, p.Strings)
	writeStringSection(&buf, p.Symbols)

	binary.Write(&buf, binary.LittleEndian, int64(len(p.Tapes))) //nolint:errcheck
	for _, tape := range p.Tapes {
		binary.Write(&buf, binary.LittleEndian, int64(len(tape))) //nolint:errcheck
		buf.Write(tape)
	}

	out := buf.Bytes()
	rev := make([]byte, len(magic))
	for i, b := range magic {
		rev[len(magic)-1-i] = b
	}
	out = append(out, rev...)
	return out
}

// Deserialize decodes a Program from its binary representation, as produced
// by Serialize.
func Deserialize(raw []byte) (*Program, error) {
	if len(raw) < len(magic)*2 {
		return nil, fmt.Errorf("bytecode: truncated input")
	}
	if !bytes.Equal(raw[:len(magic)], magic) {
		return nil, fmt.Errorf("bytecode: bad magic prefix")
	}
	rev := make([]byte, len(magic))
	for i, b := range magic {
		rev[len(magic)-1-i] = b
	}
	if !bytes.Equal(raw[len(raw)-len(magic):], rev) {
		return nil, fmt.Errorf("bytecode: bad magic suffix")
	}

	r := bytes.NewReader(raw[len(magic) : len(raw)-len(magic)])
	p := &Program{
		stringIndex: swiss.NewMap[string, uint32](0),
		symbolIndex: swiss.NewMap[string, uint32](0),
	}

	strs, err := readStringSection(r)
	if err != nil {
		return nil, fmt.Errorf("bytecode: reading strings: %w", err)
	}
	for _, s := range strs {
		p.FindOrAddString(s)
	}

	syms, err := readStringSection(r)
	if err != nil {
		return nil, fmt.Errorf("bytecode: reading symbols: %w", err)
	}
	for _, s := range syms {
		p.FindOrAddSymbol(s)
	}

	var ntapes int64
	if err := binary.Read(r, binary.LittleEndian, &ntapes); err != nil {
		return nil, fmt.Errorf("bytecode: reading tape count: %w", err)
	}
	p.Tapes = make([][]byte, 0, ntapes)
	for i := int64(0); i < ntapes; i++ {
		var l int64
		if err := binary.Read(r, binary.LittleEndian, &l); err != nil {
			return nil, fmt.Errorf("bytecode: reading tape %d length: %w", i, err)
		}
		tape := make([]byte, l)
		if _, err := r.Read(tape); err != nil {
			return nil, fmt.Errorf("bytecode: reading tape %d: %w", i, err)
		}
		p.Tapes = append(p.Tapes, tape)
	}

	if r.Len() != 0 {
		return nil, fmt.Errorf("bytecode: unexpected trailing data")
	}
	return p, nil
}
