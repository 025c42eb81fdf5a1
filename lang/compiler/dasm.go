package compiler

import (
	"fmt"
	"strings"
)

// Dasm renders a human-readable disassembly of every tape in p, one
// instruction per line, annotated with decoded payloads (symbol/string
// names resolved from the interned tables where applicable).
func Dasm(p *Program) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "strings: %d\n", len(p.Strings))
	for i, s := range p.Strings {
		fmt.Fprintf(&sb, "  [%d] %q\n", i, s)
	}
	fmt.Fprintf(&sb, "symbols: %d\n", len(p.Symbols))
	for i, s := range p.Symbols {
		fmt.Fprintf(&sb, "  [%d] %s\n", i, s)
	}

	for ti, tape := range p.Tapes {
		fmt.Fprintf(&sb, "tape %d:\n", ti)
		pc := 0
		for pc < len(tape) {
			op := Opcode(tape[pc])
			size := instructionSize(op)
			fmt.Fprintf(&sb, "  %4d  %s", pc, op)
			if payloadSize(op) == 8 && pc+size <= len(tape) {
				raw := tape[pc+1 : pc+9]
				switch op {
				case PUSHI, LIST:
					fmt.Fprintf(&sb, " %d", IntPayload(raw))
				case PUSHF:
					fmt.Fprintf(&sb, " %g", FloatPayload(raw))
				case PUSHSTR:
					idx := IndexPayload(raw)
					if int(idx) < len(p.Strings) {
						fmt.Fprintf(&sb, " %d %q", idx, p.Strings[idx])
					} else {
						fmt.Fprintf(&sb, " %d", idx)
					}
				case PUSHSY, PUSHSYRAW, DECLARE, STORE, STORETOP:
					idx := IndexPayload(raw)
					if int(idx) < len(p.Symbols) {
						fmt.Fprintf(&sb, " %d %s", idx, p.Symbols[idx])
					} else {
						fmt.Fprintf(&sb, " %d", idx)
					}
				case PUSHCLOSURE:
					fmt.Fprintf(&sb, " tape %d", IndexPayload(raw))
				case JT, JF, JMP, PUSHCONT:
					fmt.Fprintf(&sb, " -> %d", IndexPayload(raw))
				case QUOTED, QUASIQUOTED:
					fmt.Fprintf(&sb, " level %d", IntPayload(raw))
				default:
					fmt.Fprintf(&sb, " %d", IndexPayload(raw))
				}
			}
			sb.WriteByte('\n')
			pc += size
		}
	}
	return sb.String()
}
