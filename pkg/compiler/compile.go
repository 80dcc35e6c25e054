package compiler

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/compiladores/jsonasm-wasm/pkg/asm"
	"github.com/compiladores/jsonasm-wasm/pkg/ast"
	"github.com/compiladores/jsonasm-wasm/pkg/vm"
)

// DefaultEntryName is the export name of the synthesized entry function.
const DefaultEntryName = "#main"

const entryLabel = "#main"

type options struct {
	entryName string
	log       zerolog.Logger
}

// Option configures a compilation.
type Option func(*options)

// WithEntryName changes the export name of the entry function.
func WithEntryName(name string) Option {
	return func(o *options) { o.entryName = name }
}

// WithLogger sends debug output about each phase to log.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}

func buildOptions(opts []Option) (options, error) {
	o := options{entryName: DefaultEntryName, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if err := validateExportName(o.entryName); err != nil {
		return o, err
	}
	return o, nil
}

func validateExportName(name string) error {
	if name == "" || name == "out" {
		return fmt.Errorf("invalid entry export name %q", name)
	}
	for i := 0; i < len(name); i++ {
		if c := name[i]; c < 0x20 || c > 0x7e || c == '"' || c == '\\' {
			return fmt.Errorf("invalid entry export name %q: only printable ASCII without quotes", name)
		}
	}
	return nil
}

// Build compiles prog into a Module. Top-level statements are compiled
// first, so every global they create is visible inside every function,
// then the functions in source order, then whatever runtime helpers the
// generated code calls.
func Build(prog *ast.Program, opts ...Option) (*Module, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}

	cg := newCodeGen(NewSymbolTable(), "", o.log)
	if err := cg.defineFunctions(prog.Functions); err != nil {
		return nil, err
	}

	entry, err := cg.genEntry(prog.Statements, entryLabel)
	if err != nil {
		return nil, err
	}
	entry.Export = o.entryName

	mod := &Module{}
	for _, fn := range prog.Functions {
		unit, err := cg.genFunction(fn)
		if err != nil {
			return nil, err
		}
		mod.Funcs = append(mod.Funcs, unit)
	}

	if len(cg.runtimeUses) > 0 {
		units, err := genRuntime(cg.runtimeUses, cg)
		if err != nil {
			return nil, fmt.Errorf("runtime: %w", err)
		}
		mod.Funcs = append(mod.Funcs, units...)
	}

	mod.Funcs = append(mod.Funcs, entry)
	mod.Globals = cg.syms.Globals()
	o.log.Debug().
		Int("functions", len(prog.Functions)).
		Int("globals", len(mod.Globals)).
		Strs("runtime", cg.runtimeUses).
		Msg("module built")
	o.log.Trace().Msg(cg.syms.String())
	return mod, nil
}

// Generate compiles prog to WebAssembly text.
func Generate(prog *ast.Program, opts ...Option) (string, error) {
	mod, err := Build(prog, opts...)
	if err != nil {
		return "", err
	}
	return mod.String(), nil
}

// Compile runs the whole pipeline on a JSON program: decode, generate,
// and assemble the text into an image the reference machine can run.
func Compile(src []byte, opts ...Option) (string, *vm.Image, error) {
	prog, err := ast.Decode(src)
	if err != nil {
		return "", nil, err
	}
	text, err := Generate(prog, opts...)
	if err != nil {
		return "", nil, err
	}
	img, err := asm.Assemble(text)
	if err != nil {
		return text, nil, fmt.Errorf("assembly error: %w", err)
	}
	return text, img, nil
}
