package maincmd

import (
	"fmt"
	"os"

	"github.com/mna/mainer"

	"github.com/mna/lisby/lang/compiler"
	"github.com/mna/lisby/lang/machine"
	"github.com/mna/lisby/lang/parser"
)

func (c *Cmd) runSourceFile(stdio mainer.Stdio, path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	forest, err := parser.ParseAll(src)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}

	comp := compiler.NewCompiler()
	comp.Debug = c.Debug
	prog := compiler.NewProgram()
	if err := comp.Compile(prog, forest); err != nil {
		return fmt.Errorf("compile: %w", err)
	}
	return c.runProgram(stdio, prog)
}

func (c *Cmd) runBytecodeFile(stdio mainer.Stdio, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	prog, err := compiler.Deserialize(raw)
	if err != nil {
		return fmt.Errorf("load bytecode: %w", err)
	}
	return c.runProgram(stdio, prog)
}

func (c *Cmd) runProgram(stdio mainer.Stdio, prog *compiler.Program) error {
	if c.Dump {
		fmt.Fprint(stdio.Stdout, compiler.Dasm(prog))
	}
	vm := machine.New(prog, stdio.Stdout)
	res, err := vm.Run(machine.NewEnvironment())
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	if _, ok := res.(machine.Unit); !ok {
		fmt.Fprintln(stdio.Stdout, res.String())
	}
	return nil
}
