package maincmd

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/mna/mainer"

	"github.com/mna/lisby/lang/compiler"
	"github.com/mna/lisby/lang/machine"
	"github.com/mna/lisby/lang/parser"
)

const (
	promptInitial   = ">> "
	promptContinued = ":: "
)

// repl runs an interactive read-compile-run-print loop: each accepted form
// is compiled against a long-lived Compiler (so defmacro definitions
// persist across turns) into a long-lived Program whose tape 0 is reset at
// the start of every turn (so lambda tapes and interned symbols from earlier
// turns stay valid), and run against a long-lived Environment (so
// define/set! bindings persist across turns too). A parse or runtime error
// on one turn is reported and the loop continues, leaving whatever earlier,
// successfully-executed definitions in that same turn already took effect
// (the REPL does not roll back a partially-successful multi-form line).
func (c *Cmd) repl(ctx context.Context, stdio mainer.Stdio) error {
	fmt.Fprintf(stdio.Stdout, "%s %s %s\n", binName, c.BuildVersion, c.BuildDate)

	in := bufio.NewScanner(stdio.Stdin)
	comp := compiler.NewCompiler()
	comp.Debug = c.Debug
	env := machine.NewEnvironment()
	prog := compiler.NewProgram()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, ok := c.readForm(stdio, in)
		if !ok {
			return nil
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		forest, err := parser.ParseAll([]byte(line))
		if err != nil {
			fmt.Fprintf(stdio.Stderr, "%s\n", err)
			continue
		}

		prog.Tape = 0
		prog.Tapes[0] = prog.Tapes[0][:0]
		if err := comp.Compile(prog, forest); err != nil {
			fmt.Fprintf(stdio.Stderr, "%s\n", err)
			continue
		}
		if c.Dump {
			fmt.Fprint(stdio.Stdout, compiler.Dasm(prog))
		}

		vm := machine.New(prog, stdio.Stdout)
		res, err := vm.Run(env)
		if err != nil {
			fmt.Fprintf(stdio.Stderr, "%s\n", err)
			continue
		}
		if _, ok := res.(machine.Unit); !ok {
			fmt.Fprintln(stdio.Stdout, res.String())
		}
	}
}

// readForm reads lines from in, prompting promptInitial then promptContinued
// for each further line, until the accumulated input has balanced
// parentheses (per parser.Unbalanced) or the input stream ends. The second
// return value is false once there is no more input to read.
func (c *Cmd) readForm(stdio mainer.Stdio, in *bufio.Scanner) (string, bool) {
	var sb strings.Builder
	prompt := promptInitial
	for {
		fmt.Fprint(stdio.Stdout, prompt)
		if !in.Scan() {
			return sb.String(), sb.Len() > 0
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(in.Text())
		if parser.Unbalanced([]byte(sb.String())) <= 0 {
			return sb.String(), true
		}
		prompt = promptContinued
	}
}
