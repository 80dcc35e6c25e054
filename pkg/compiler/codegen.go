package compiler

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/compiladores/jsonasm-wasm/pkg/ast"
	"github.com/compiladores/jsonasm-wasm/pkg/diag"
)

// CodeGen walks an AST and emits WebAssembly text for one callable unit at
// a time.
type CodeGen struct {
	syms      *SymbolTable
	out       strings.Builder
	depth     int
	nextLabel int
	loopStack []LoopLabel

	// labelPrefix namespaces function labels ("rt." for the runtime).
	labelPrefix string
	// runtime helpers the generated code calls, in first-use order
	runtimeUses []string
	log         zerolog.Logger
}

// LoopLabel holds the branch targets of an enclosing loop.
type LoopLabel struct {
	Break    string // block around the whole loop
	Continue string // block around the body; branching to it ends the pass
}

func newCodeGen(syms *SymbolTable, labelPrefix string, log zerolog.Logger) *CodeGen {
	return &CodeGen{syms: syms, labelPrefix: labelPrefix, log: log}
}

func (cg *CodeGen) newLabel() int {
	l := cg.nextLabel
	cg.nextLabel++
	return l
}

func (cg *CodeGen) line(format string, args ...any) {
	for i := 0; i < cg.depth; i++ {
		cg.out.WriteString("  ")
	}
	fmt.Fprintf(&cg.out, format+"\n", args...)
}

func (cg *CodeGen) comment(format string, args ...any) {
	cg.line(";; "+format, args...)
}

func (cg *CodeGen) callRuntime(name string) error {
	found := false
	for _, u := range cg.runtimeUses {
		if u == name {
			found = true
			break
		}
	}
	if !found {
		cg.runtimeUses = append(cg.runtimeUses, name)
	}
	cg.line("call $%s%s", runtimePrefix, name)
	return nil
}

// beginUnit resets the per-unit emission state.
func (cg *CodeGen) beginUnit() {
	cg.out.Reset()
	cg.depth = 0
	cg.nextLabel = 0
	cg.loopStack = nil
}

// defineFunctions registers every declaration before any body is
// compiled, so calls resolve regardless of source order.
func (cg *CodeGen) defineFunctions(funcs []*ast.FunctionDecl) error {
	for _, fn := range funcs {
		if _, ok := cg.syms.DefineFunction(fn, cg.labelPrefix+fn.Name); !ok {
			return diag.Errorf(diag.DuplicateFunction, fn.Path, "function %q is declared more than once", fn.Name)
		}
	}
	return nil
}

func (cg *CodeGen) genEntry(stmts []ast.Stmt, label string) (*Func, error) {
	cg.beginUnit()
	cg.syms.EnterEntry()
	for _, s := range stmts {
		if err := cg.genStmt(s); err != nil {
			return nil, err
		}
	}
	locals := cg.syms.ExitFunction()
	cg.log.Debug().Str("unit", label).Int("locals", len(locals)).Msg("compiled entry")
	return &Func{Label: label, Locals: locals, Body: cg.out.String()}, nil
}

func (cg *CodeGen) genFunction(fn *ast.FunctionDecl) (*Func, error) {
	info, ok := cg.syms.GetFunction(fn.Name)
	if !ok {
		return nil, fmt.Errorf("codegen: function %q was not registered", fn.Name)
	}
	cg.beginUnit()
	params := cg.syms.EnterFunction(fn.Params)
	for _, s := range fn.Body {
		if err := cg.genStmt(s); err != nil {
			return nil, err
		}
	}
	// falling off the end returns 0
	cg.line("f64.const 0")
	locals := cg.syms.ExitFunction()
	cg.log.Debug().Str("unit", info.Label).Int("params", len(params)).Int("locals", len(locals)).Msg("compiled function")
	return &Func{Label: info.Label, Params: params, Locals: locals, Result: true, Body: cg.out.String()}, nil
}

// genBody compiles body inside a fresh frame of the given kind.
func (cg *CodeGen) genBody(body []ast.Stmt, kind FrameKind) error {
	cg.syms.EnterScope(kind)
	defer cg.syms.ExitScope()
	for _, s := range body {
		if err := cg.genStmt(s); err != nil {
			return err
		}
	}
	return nil
}

// nested runs f with the output indented one level deeper.
func (cg *CodeGen) nested(f func() error) error {
	cg.depth++
	defer func() { cg.depth-- }()
	return f()
}

func (cg *CodeGen) genStmt(s ast.Stmt) error {
	switch n := s.(type) {
	case *ast.Declare:
		// the value sees the bindings from before the declaration
		if err := cg.genExpr(n.Value); err != nil {
			return err
		}
		cg.line("%s", cg.syms.Declare(n.Name).Put())

	case *ast.Set:
		if err := cg.genExpr(n.Value); err != nil {
			return err
		}
		sym, created := cg.syms.Assign(n.Name)
		if created {
			cg.log.Trace().Str("name", n.Name).Str("label", sym.Label).Str("path", n.Path).Msg("set installed a new binding")
		}
		cg.line("%s", sym.Put())

	case *ast.Call:
		if err := cg.genCall(n); err != nil {
			return err
		}
		cg.line("drop")

	case *ast.Return:
		if !cg.syms.InFunction() {
			return diag.Errorf(diag.ReturnOutsideFunction, n.Path, "return outside of a function body")
		}
		if err := cg.genExpr(n.Value); err != nil {
			return err
		}
		cg.line("return")

	case *ast.Break:
		if len(cg.loopStack) == 0 {
			return diag.Errorf(diag.BreakOutsideLoop, n.Path, "break statement outside of loop")
		}
		cg.line("br $%s", cg.loopStack[len(cg.loopStack)-1].Break)

	case *ast.Continue:
		if len(cg.loopStack) == 0 {
			return diag.Errorf(diag.ContinueOutsideLoop, n.Path, "continue statement outside of loop")
		}
		cg.line("br $%s", cg.loopStack[len(cg.loopStack)-1].Continue)

	case *ast.Block:
		return cg.genBody(n.Body, FrameBlock)

	case *ast.If:
		return cg.genIf(n, 0)

	case *ast.While:
		return cg.genWhile(n)

	case *ast.DoUntil:
		return cg.genDoUntil(n)

	case *ast.Iterator:
		return cg.genIterator(n)

	default:
		return fmt.Errorf("codegen: unknown statement node %T", s)
	}
	return nil
}

// genIf lowers branches[i:] as a chain of nested if/else.
func (cg *CodeGen) genIf(n *ast.If, i int) error {
	if i == len(n.Branches) {
		return cg.genBody(n.Else, FrameBlock)
	}
	br := n.Branches[i]
	if i == 0 {
		cg.comment("if %s", br.Cond)
	}
	if err := cg.genExpr(br.Cond); err != nil {
		return err
	}
	cg.truthy()
	cg.line("if")
	if err := cg.nested(func() error { return cg.genBody(br.Then, FrameBlock) }); err != nil {
		return err
	}
	if i+1 < len(n.Branches) || n.Else != nil {
		cg.line("else")
		if err := cg.nested(func() error { return cg.genIf(n, i+1) }); err != nil {
			return err
		}
	}
	cg.line("end")
	return nil
}

// openLoop emits the break block and loop header and pushes the targets.
// The caller emits the loop body and must call closeLoop.
func (cg *CodeGen) openLoop() (LoopLabel, string) {
	id := cg.newLabel()
	labels := LoopLabel{Break: fmt.Sprintf("brk.%d", id), Continue: fmt.Sprintf("cont.%d", id)}
	top := fmt.Sprintf("loop.%d", id)
	cg.line("block $%s", labels.Break)
	cg.depth++
	cg.line("loop $%s", top)
	cg.depth++
	return labels, top
}

func (cg *CodeGen) closeLoop(top string) {
	cg.line("br $%s", top)
	cg.depth--
	cg.line("end")
	cg.depth--
	cg.line("end")
}

// genLoopBody compiles body inside the continue block of labels.
func (cg *CodeGen) genLoopBody(labels LoopLabel, body []ast.Stmt) error {
	cg.loopStack = append(cg.loopStack, labels)
	defer func() { cg.loopStack = cg.loopStack[:len(cg.loopStack)-1] }()

	cg.line("block $%s", labels.Continue)
	if err := cg.nested(func() error { return cg.genBody(body, FrameBlock) }); err != nil {
		return err
	}
	cg.line("end")
	return nil
}

func (cg *CodeGen) genWhile(n *ast.While) error {
	cg.comment("while %s", n.Cond)
	labels, top := cg.openLoop()
	if err := cg.genExpr(n.Cond); err != nil {
		return err
	}
	cg.truthy()
	cg.line("i32.eqz")
	cg.line("br_if $%s", labels.Break)
	if err := cg.genLoopBody(labels, n.Body); err != nil {
		return err
	}
	cg.closeLoop(top)
	return nil
}

func (cg *CodeGen) genDoUntil(n *ast.DoUntil) error {
	cg.comment("do ... until %s", n.Cond)
	labels, top := cg.openLoop()
	if err := cg.genLoopBody(labels, n.Body); err != nil {
		return err
	}
	if err := cg.genExpr(n.Cond); err != nil {
		return err
	}
	cg.truthy()
	cg.line("br_if $%s", labels.Break)
	cg.closeLoop(top)
	return nil
}

// genIterator evaluates from, to and step once, in the enclosing frame,
// then binds the loop variable in a frame that lives only as long as the
// loop.
func (cg *CodeGen) genIterator(n *ast.Iterator) error {
	cg.comment("iterator %s", n.Var)
	if err := cg.genExpr(n.From); err != nil {
		return err
	}
	to := cg.syms.Hidden(n.Var + ".to")
	if err := cg.genExpr(n.To); err != nil {
		return err
	}
	cg.line("%s", to.Put())
	step := cg.syms.Hidden(n.Var + ".step")
	if n.Step != nil {
		if err := cg.genExpr(n.Step); err != nil {
			return err
		}
	} else {
		cg.line("f64.const 1")
	}
	cg.line("%s", step.Put())

	cg.syms.EnterScope(FrameLoop)
	defer cg.syms.ExitScope()
	v := cg.syms.Declare(n.Var)
	cg.line("%s", v.Put())

	labels, top := cg.openLoop()
	// (step > 0 and v <= to) or (step < 0 and v >= to)
	cg.line("%s", step.Get())
	cg.line("f64.const 0")
	cg.line("f64.gt")
	cg.line("%s", v.Get())
	cg.line("%s", to.Get())
	cg.line("f64.le")
	cg.line("i32.and")
	cg.line("%s", step.Get())
	cg.line("f64.const 0")
	cg.line("f64.lt")
	cg.line("%s", v.Get())
	cg.line("%s", to.Get())
	cg.line("f64.ge")
	cg.line("i32.and")
	cg.line("i32.or")
	cg.line("i32.eqz")
	cg.line("br_if $%s", labels.Break)
	if err := cg.genLoopBody(labels, n.Body); err != nil {
		return err
	}
	cg.line("%s", v.Get())
	cg.line("%s", step.Get())
	cg.line("f64.add")
	cg.line("%s", v.Put())
	cg.closeLoop(top)
	return nil
}
