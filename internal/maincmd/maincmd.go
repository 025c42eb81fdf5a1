// Package maincmd implements the lisby command-line tool: compiling and
// running a source or bytecode file, or dropping into an interactive REPL
// when no file is given.
package maincmd

import (
	"context"
	"fmt"
	"os"

	"github.com/mna/mainer"
)

const binName = "lisby"

var (
	shortUsage = fmt.Sprintf(`
usage: %s [<option>...] [<file>]
Run '%[1]s --help' for details.
`, binName)

	longUsage = fmt.Sprintf(`usage: %s [<option>...] [<file>]
       %[1]s -h|--help
       %[1]s -v|--version

Compiler and virtual machine for the lisby Lisp dialect. With no file
argument, starts an interactive REPL. With a file argument, compiles and
runs it; -b treats the file as already-compiled bytecode instead of source.

Valid flag options are:
       -h --help                 Show this help and exit.
       -v --version              Print version and exit.
       -b --bytecode             <file> is a compiled bytecode file.
       -d --debug                Trace each node as the compiler lowers it.
       -D --dump                 Print the bytecode disassembly before
                                 running.
`, binName)
)

// Cmd holds the parsed flags and positional arguments for one invocation of
// the lisby binary, following the mna/mainer flag-tag convention.
type Cmd struct {
	BuildVersion string
	BuildDate    string

	Help     bool `flag:"h,help"`
	Version  bool `flag:"v,version"`
	Bytecode bool `flag:"b,bytecode"`
	Debug    bool `flag:"d,debug"`
	Dump     bool `flag:"D,dump"`

	args []string
}

func (c *Cmd) SetArgs(args []string) { c.args = args }

func (c *Cmd) SetFlags(map[string]bool) {}

func (c *Cmd) Validate() error {
	if c.Help || c.Version {
		return nil
	}
	if len(c.args) > 1 {
		return fmt.Errorf("at most one file argument is accepted, got %d", len(c.args))
	}
	if c.Bytecode && len(c.args) == 0 {
		return fmt.Errorf("-b/--bytecode requires a file argument")
	}
	return nil
}

// Main parses args, dispatches to the REPL or to file execution, and
// returns the process exit code.
func (c *Cmd) Main(args []string, stdio mainer.Stdio) mainer.ExitCode {
	p := mainer.Parser{EnvVars: false}
	if err := p.Parse(args, c); err != nil {
		fmt.Fprintf(stdio.Stderr, "invalid arguments: %s\n%s", err, shortUsage)
		return mainer.InvalidArgs
	}

	switch {
	case c.Help:
		fmt.Fprint(stdio.Stdout, longUsage)
		return mainer.Success
	case c.Version:
		fmt.Fprintf(stdio.Stdout, "%s %s %s\n", binName, c.BuildVersion, c.BuildDate)
		return mainer.Success
	}

	ctx := mainer.CancelOnSignal(context.Background(), os.Interrupt)

	var err error
	switch {
	case len(c.args) == 0:
		err = c.repl(ctx, stdio)
	case c.Bytecode:
		err = c.runBytecodeFile(stdio, c.args[0])
	default:
		err = c.runSourceFile(stdio, c.args[0])
	}
	if err != nil {
		fmt.Fprintf(stdio.Stderr, "%s: %s\n", binName, err)
		return mainer.Failure
	}
	return mainer.Success
}
