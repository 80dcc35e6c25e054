package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/compiladores/jsonasm-wasm/pkg/compiler"
	"github.com/compiladores/jsonasm-wasm/pkg/config"
	"github.com/compiladores/jsonasm-wasm/pkg/logger"
	"github.com/compiladores/jsonasm-wasm/pkg/utils"
	"github.com/compiladores/jsonasm-wasm/pkg/vm"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run compiles one program and optionally executes it. It returns the
// process exit code: 0 on success, 1 on a compile or run failure, 2 on
// bad usage.
func run(args []string, stdout, stderr io.Writer) int {
	cfg := config.FromEnv()
	fs := flag.NewFlagSet("jsonasm-wasm", flag.ContinueOnError)
	fs.SetOutput(stderr)
	inPath := fs.String("in", "", "input program (JSON); \"-\" reads standard input")
	outPath := fs.String("out", "", "output WAT file (default: input with .wat extension, \"-\" for standard output)")
	runProgram := fs.Bool("run", false, "run the compiled module on the reference machine and print out")
	cfg.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *inPath == "" && fs.NArg() > 0 {
		*inPath = fs.Arg(0)
	}
	if *inPath == "" {
		fmt.Fprintln(stderr, "nothing to do: provide -in <program.json> or a file argument")
		fs.Usage()
		return 2
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	if err := logger.InitLoggerTo(stderr, cfg.EffectiveLogLevel()); err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	log := logger.GetLogger()

	source, err := utils.ReadSource(*inPath)
	if err != nil {
		fmt.Fprintf(stderr, "failed to read input %q: %v\n", *inPath, err)
		return 1
	}

	opts := append(cfg.CompileOptions(), compiler.WithLogger(log))
	wat, img, err := compiler.Compile(source, opts...)
	if err != nil {
		fmt.Fprintf(stderr, "compilation failed: %v\n", err)
		return 1
	}

	output := *outPath
	if output == "" {
		output = defaultOutputPath(*inPath)
	}
	if output == "-" {
		fmt.Fprint(stdout, wat)
	} else {
		if err := os.WriteFile(output, []byte(wat), 0o644); err != nil {
			fmt.Fprintf(stderr, "failed to write %q: %v\n", output, err)
			return 1
		}
		log.Info().Str("path", output).Int("bytes", len(wat)).Msg("wrote module")
	}

	if !*runProgram {
		return 0
	}
	mopts := append(cfg.MachineOptions(), vm.WithLogger(log))
	out, err := vm.RunEntry(img, cfg.EntryName, mopts...)
	if err != nil {
		fmt.Fprintf(stderr, "run failed: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "out = %s\n", formatOut(out))
	return 0
}

func defaultOutputPath(inPath string) string {
	if inPath == "-" {
		return "-"
	}
	ext := filepath.Ext(inPath)
	if ext == "" {
		return inPath + ".wat"
	}
	return strings.TrimSuffix(inPath, ext) + ".wat"
}

func formatOut(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
