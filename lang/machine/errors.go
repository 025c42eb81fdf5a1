package machine

import "fmt"

// RuntimeError reports a failure detected while executing bytecode: an
// unbound symbol, a type mismatch in an arithmetic or comparison opcode, an
// empty-list HEAD/TAIL, an attempt to CALL a non-callable value, and so on.
type RuntimeError struct {
	Tape int
	PC   int
	Msg  string
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: tape %d, pc %d: %s", e.Tape, e.PC, e.Msg)
}

func (vm *VM) errf(format string, args ...any) error {
	return &RuntimeError{Tape: vm.frame().Tape, PC: vm.frame().PC, Msg: fmt.Sprintf(format, args...)}
}
