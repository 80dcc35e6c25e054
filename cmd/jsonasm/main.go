// Command jsonasm prints every stage of the pipeline for one program: the
// decoded tree, the symbol table, the module text, the assembled image and
// the value of out after running it.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/compiladores/jsonasm-wasm/pkg/asm"
	"github.com/compiladores/jsonasm-wasm/pkg/ast"
	"github.com/compiladores/jsonasm-wasm/pkg/compiler"
	"github.com/compiladores/jsonasm-wasm/pkg/utils"
	"github.com/compiladores/jsonasm-wasm/pkg/vm"
)

const sampleSource = `[
  {"function":"sq","args":["x"],"block":[{"return":{"binop":"*","argl":"x","argr":"x"}}]},
  {"declare":"n","value":3},
  {"set":"out","value":{"call":"sq","args":["n"]}}
]`

func main() {
	src := []byte(sampleSource)
	if len(os.Args) > 1 {
		data, err := utils.ReadSource(os.Args[1])
		if err != nil {
			fmt.Fprintln(os.Stderr, "read error:", err)
			os.Exit(1)
		}
		src = data
	}

	prog, err := ast.Decode(src)
	if err != nil {
		fmt.Fprintln(os.Stderr, "decode error:", err)
		os.Exit(1)
	}
	fmt.Println("AST")
	fmt.Print(prog)
	fmt.Println()

	mod, err := compiler.Build(prog)
	if err != nil {
		fmt.Fprintln(os.Stderr, "codegen error:", err)
		os.Exit(1)
	}
	fmt.Println("Globals")
	for _, g := range mod.Globals {
		fmt.Printf("  %-12s $%s\n", g.Name, g.Label)
	}
	fmt.Println("Units")
	for _, f := range mod.Funcs {
		fmt.Printf("  $%s", f.Label)
		if f.Export != "" {
			fmt.Printf(" (export %q)", f.Export)
		}
		fmt.Println()
		for _, p := range f.Params {
			fmt.Printf("    param %-12s $%s\n", p.Name, p.Label)
		}
		for _, l := range f.Locals {
			fmt.Printf("    local %-12s $%s\n", l.Name, l.Label)
		}
	}
	fmt.Println()

	wat := mod.String()
	fmt.Println("Module")
	fmt.Print(wat)
	fmt.Println()

	img, err := asm.Assemble(wat)
	if err != nil {
		fmt.Fprintln(os.Stderr, "assembly error:", err)
		os.Exit(1)
	}
	fmt.Println("Image")
	for _, fn := range img.Funcs {
		fmt.Printf("  $%s params=%d locals=%d\n", fn.Name, fn.Params, len(fn.Locals)-fn.Params)
		for pc, in := range fn.Code {
			fmt.Printf("    %4d  %s\n", pc, in)
		}
	}
	fmt.Println()

	out, err := vm.RunEntry(img, compiler.DefaultEntryName)
	if err != nil {
		fmt.Fprintln(os.Stderr, "run error:", err)
		os.Exit(1)
	}
	fmt.Println("out =", strconv.FormatFloat(out, 'g', -1, 64))
}
