package compiler_test

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/mna/lisby/internal/filetest"
	"github.com/mna/lisby/lang/compiler"
	"github.com/mna/lisby/lang/parser"
)

var testUpdateDasmTests = flag.Bool("test.update-dasm-tests", false, "If set, replace expected dasm test results with actual results.")

// TestDasmGolden compiles every source file under testdata/in and compares
// its disassembly against the corresponding golden file under testdata/out,
// the source/golden-file layout internal/filetest's helpers expect.
func TestDasmGolden(t *testing.T) {
	srcDir, resultDir := filepath.Join("testdata", "in"), filepath.Join("testdata", "out")

	for _, fi := range filetest.SourceFiles(t, srcDir, ".lisby") {
		t.Run(fi.Name(), func(t *testing.T) {
			src, err := os.ReadFile(filepath.Join(srcDir, fi.Name()))
			if err != nil {
				t.Fatal(err)
			}
			forest, err := parser.ParseAll(src)
			if err != nil {
				t.Fatal(err)
			}
			p := compiler.NewProgram()
			if err := compiler.NewCompiler().Compile(p, forest); err != nil {
				t.Fatal(err)
			}
			filetest.DiffCustom(t, fi, "dasm", ".want", compiler.Dasm(p), resultDir, testUpdateDasmTests)
		})
	}
}
