// Package asm assembles the WebAssembly text subset produced by the
// compiler into a vm.Image. Instructions must be written flat, one after
// another, the way the compiler prints them; folded expressions are
// rejected.
package asm

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/compiladores/jsonasm-wasm/pkg/vm"
)

type Assembler struct {
	img     *vm.Image
	funcs   map[string]int
	globals map[string]int
	defs    []*funcDef
}

// funcDef is a function whose header was read in pass 1 and whose body
// is encoded in pass 2.
type funcDef struct {
	fn     *vm.Function
	locals map[string]int
	body   []*node
}

type ctrlKind int

const (
	ctrlBlock ctrlKind = iota
	ctrlLoop
	ctrlIf
)

type ctrl struct {
	kind   ctrlKind
	label  string
	start  int   // pc of the loop header
	ifPC   int   // pc of the opening if
	elsePC int   // pc of the else, -1 when absent
	fixups []int // branches that target the end
}

func NewAssembler() *Assembler {
	return &Assembler{
		img:     &vm.Image{Exports: make(map[string]vm.Export)},
		funcs:   make(map[string]int),
		globals: make(map[string]int),
	}
}

// Assemble parses one (module ...) and resolves every name in it.
func Assemble(code string) (*vm.Image, error) {
	return NewAssembler().Assemble(code)
}

func (a *Assembler) Assemble(code string) (*vm.Image, error) {
	toks, err := tokenize(code)
	if err != nil {
		return nil, err
	}
	top, err := parseSExprs(toks)
	if err != nil {
		return nil, err
	}
	if len(top) != 1 || top[0].head() != "module" {
		return nil, fmt.Errorf("expected a single (module ...) form")
	}
	fields := top[0].list[1:]
	if len(fields) > 0 && fields[0].isAtom() && strings.HasPrefix(fields[0].tok.text, "$") {
		fields = fields[1:]
	}

	if err := a.pass1(fields); err != nil {
		return nil, err
	}
	if err := a.pass2(); err != nil {
		return nil, err
	}
	return a.img, nil
}

// pass1 registers every function and global so that references may
// precede definitions, then resolves exports.
func (a *Assembler) pass1(fields []*node) error {
	var exports []*node
	for _, f := range fields {
		switch f.head() {
		case "func":
			if err := a.declareFunc(f); err != nil {
				return err
			}
		case "global":
			if err := a.declareGlobal(f); err != nil {
				return err
			}
		case "export":
			exports = append(exports, f)
		default:
			what := f.head()
			if what == "" {
				what = f.tok.text
			}
			return fmt.Errorf("unsupported module field %q on line %d", what, f.line)
		}
	}
	for _, e := range exports {
		if err := a.export(e); err != nil {
			return err
		}
	}
	return nil
}

func (a *Assembler) addExport(name string, ex vm.Export, line int) error {
	if _, dup := a.img.Exports[name]; dup {
		return fmt.Errorf("duplicate export %q on line %d", name, line)
	}
	a.img.Exports[name] = ex
	return nil
}

// export handles (export "name" (func $f)) and (export "name" (global $g)).
func (a *Assembler) export(n *node) error {
	if len(n.list) != 3 || !n.list[1].isString() || !n.list[2].isList || len(n.list[2].list) != 2 {
		return fmt.Errorf("malformed export on line %d", n.line)
	}
	desc := n.list[2]
	ref := desc.list[1].tok.text
	switch desc.head() {
	case "func":
		idx, err := resolve(a.funcs, ref, len(a.img.Funcs), "function", desc.line)
		if err != nil {
			return err
		}
		return a.addExport(n.list[1].tok.text, vm.Export{Kind: vm.ExportFunc, Index: idx}, n.line)
	case "global":
		idx, err := resolve(a.globals, ref, len(a.img.Globals), "global", desc.line)
		if err != nil {
			return err
		}
		return a.addExport(n.list[1].tok.text, vm.Export{Kind: vm.ExportGlobal, Index: idx}, n.line)
	}
	return fmt.Errorf("unsupported export kind %q on line %d", desc.head(), desc.line)
}

// inlineExport reads an optional (export "name") at items[0].
func inlineExport(items []*node) (string, []*node, error) {
	if len(items) == 0 || items[0].head() != "export" {
		return "", items, nil
	}
	e := items[0]
	if len(e.list) != 2 || !e.list[1].isString() {
		return "", nil, fmt.Errorf("malformed export on line %d", e.line)
	}
	return e.list[1].tok.text, items[1:], nil
}

// optionalID strips a leading $identifier.
func optionalID(items []*node) (string, []*node) {
	if len(items) > 0 && items[0].isAtom() && strings.HasPrefix(items[0].tok.text, "$") {
		return items[0].tok.text[1:], items[1:]
	}
	return "", items
}

func parseValType(n *node) (vm.ValType, error) {
	if n.isAtom() {
		switch n.tok.text {
		case "f64":
			return vm.F64, nil
		case "i32":
			return vm.I32, nil
		case "i64":
			return vm.I64, nil
		}
	}
	return 0, fmt.Errorf("unsupported value type on line %d", n.line)
}

func (a *Assembler) declareGlobal(n *node) error {
	name, items := optionalID(n.list[1:])
	exportName, items, err := inlineExport(items)
	if err != nil {
		return err
	}
	if len(items) != 2 {
		return fmt.Errorf("malformed global on line %d", n.line)
	}

	g := vm.Global{Name: name}
	typ := items[0]
	if typ.head() == "mut" {
		if len(typ.list) != 2 {
			return fmt.Errorf("malformed global type on line %d", typ.line)
		}
		g.Mutable = true
		typ = typ.list[1]
	}
	if g.Type, err = parseValType(typ); err != nil {
		return err
	}

	initVal := items[1]
	if initVal.head() != g.Type.String()+".const" || len(initVal.list) != 2 || !initVal.list[1].isAtom() {
		return fmt.Errorf("global initializer must be a %s.const on line %d", g.Type, initVal.line)
	}
	if g.Init, err = parseConst(g.Type, initVal.list[1].tok.text); err != nil {
		return fmt.Errorf("invalid initializer on line %d: %w", initVal.line, err)
	}

	idx := len(a.img.Globals)
	if name != "" {
		if _, dup := a.globals[name]; dup {
			return fmt.Errorf("duplicate global $%s on line %d", name, n.line)
		}
		a.globals[name] = idx
	}
	a.img.Globals = append(a.img.Globals, g)
	if exportName != "" {
		return a.addExport(exportName, vm.Export{Kind: vm.ExportGlobal, Index: idx}, n.line)
	}
	return nil
}

// declareFunc reads the header of a func: params, results and locals.
// The remaining items are kept as the body.
func (a *Assembler) declareFunc(n *node) error {
	name, items := optionalID(n.list[1:])
	exportName, items, err := inlineExport(items)
	if err != nil {
		return err
	}

	def := &funcDef{fn: &vm.Function{Name: name}, locals: make(map[string]int)}
	bind := func(list *node, isParam bool) error {
		id, types := optionalID(list.list[1:])
		if id != "" && len(types) != 1 {
			return fmt.Errorf("named %s takes exactly one type on line %d", list.head(), list.line)
		}
		for _, t := range types {
			vt, err := parseValType(t)
			if err != nil {
				return err
			}
			if id != "" {
				if _, dup := def.locals[id]; dup {
					return fmt.Errorf("duplicate local $%s on line %d", id, list.line)
				}
				def.locals[id] = len(def.fn.Locals)
			}
			def.fn.Locals = append(def.fn.Locals, vt)
			if isParam {
				def.fn.Params++
			}
		}
		return nil
	}

	phase := 0 // params, results, locals must come in that order
header:
	for len(items) > 0 {
		it := items[0]
		switch it.head() {
		case "param":
			if phase > 0 {
				return fmt.Errorf("param after result or local on line %d", it.line)
			}
			if err := bind(it, true); err != nil {
				return err
			}
		case "result":
			if phase > 1 {
				return fmt.Errorf("result after local on line %d", it.line)
			}
			phase = 1
			for _, t := range it.list[1:] {
				vt, err := parseValType(t)
				if err != nil {
					return err
				}
				def.fn.Results = append(def.fn.Results, vt)
			}
		case "local":
			phase = 2
			if err := bind(it, false); err != nil {
				return err
			}
		default:
			break header
		}
		items = items[1:]
	}
	def.body = items

	idx := len(a.img.Funcs)
	if name != "" {
		if _, dup := a.funcs[name]; dup {
			return fmt.Errorf("duplicate function $%s on line %d", name, n.line)
		}
		a.funcs[name] = idx
	}
	a.img.Funcs = append(a.img.Funcs, def.fn)
	a.defs = append(a.defs, def)
	if exportName != "" {
		return a.addExport(exportName, vm.Export{Kind: vm.ExportFunc, Index: idx}, n.line)
	}
	return nil
}

func (a *Assembler) pass2() error {
	for _, def := range a.defs {
		if err := a.encodeBody(def); err != nil {
			return err
		}
	}
	return nil
}

// resolve maps a $name or a numeric index into the index space of size n.
func resolve(names map[string]int, ref string, n int, what string, line int) (int, error) {
	if strings.HasPrefix(ref, "$") {
		if idx, ok := names[ref[1:]]; ok {
			return idx, nil
		}
		return 0, fmt.Errorf("undefined %s '%s' on line %d", what, ref, line)
	}
	idx, err := strconv.Atoi(ref)
	if err != nil || idx < 0 || idx >= n {
		return 0, fmt.Errorf("invalid %s reference '%s' on line %d", what, ref, line)
	}
	return idx, nil
}

func (a *Assembler) encodeBody(def *funcDef) error {
	fn := def.fn
	var stack []*ctrl
	items := def.body

	emit := func(in vm.Instr, line int) int {
		fn.Code = append(fn.Code, in)
		fn.Lines = append(fn.Lines, line)
		return len(fn.Code) - 1
	}
	// immediate consumes the operand following the current instruction.
	immediate := func(mnemonic string, line int) (string, error) {
		if len(items) == 0 || !items[0].isAtom() {
			return "", fmt.Errorf("%s expects an operand on line %d", mnemonic, line)
		}
		v := items[0].tok.text
		items = items[1:]
		return v, nil
	}
	// optionalLabel consumes a $label after block, loop or if.
	optionalLabel := func(line int) (string, error) {
		label := ""
		if len(items) > 0 && items[0].isAtom() && strings.HasPrefix(items[0].tok.text, "$") {
			label = items[0].tok.text
			items = items[1:]
		}
		if len(items) > 0 && (items[0].head() == "result" || items[0].head() == "param" || items[0].head() == "type") {
			return "", fmt.Errorf("block types are not supported on line %d", line)
		}
		return label, nil
	}
	target := func(ref string, line int) (*ctrl, error) {
		if strings.HasPrefix(ref, "$") {
			for i := len(stack) - 1; i >= 0; i-- {
				if stack[i].label == ref {
					return stack[i], nil
				}
			}
			return nil, fmt.Errorf("undefined label '%s' on line %d", ref, line)
		}
		depth, err := strconv.Atoi(ref)
		if err != nil || depth < 0 || depth >= len(stack) {
			return nil, fmt.Errorf("invalid branch depth '%s' on line %d", ref, line)
		}
		return stack[len(stack)-1-depth], nil
	}

	for len(items) > 0 {
		it := items[0]
		items = items[1:]
		if it.isList {
			return fmt.Errorf("folded instructions are not supported on line %d", it.line)
		}
		if !it.isAtom() {
			return fmt.Errorf("unexpected string in function body on line %d", it.line)
		}
		mnemonic, line := it.tok.text, it.line
		op, ok := vm.LookupOpcode(mnemonic)
		if !ok {
			return fmt.Errorf("unknown instruction on line %d: %s", line, mnemonic)
		}

		switch op {
		case vm.OpBlock, vm.OpLoop, vm.OpIf:
			label, err := optionalLabel(line)
			if err != nil {
				return err
			}
			pc := emit(vm.Instr{Op: op}, line)
			c := &ctrl{label: label, start: pc, ifPC: pc, elsePC: -1}
			switch op {
			case vm.OpLoop:
				c.kind = ctrlLoop
			case vm.OpIf:
				c.kind = ctrlIf
			}
			stack = append(stack, c)

		case vm.OpElse:
			if len(stack) == 0 || stack[len(stack)-1].kind != ctrlIf || stack[len(stack)-1].elsePC >= 0 {
				return fmt.Errorf("else without matching if on line %d", line)
			}
			c := stack[len(stack)-1]
			c.elsePC = emit(vm.Instr{Op: op}, line)
			fn.Code[c.ifPC].Arg = c.elsePC + 1

		case vm.OpEnd:
			if len(stack) == 0 {
				return fmt.Errorf("end without matching block on line %d", line)
			}
			c := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			end := emit(vm.Instr{Op: op}, line)
			for _, pc := range c.fixups {
				fn.Code[pc].Arg = end
			}
			if c.kind == ctrlIf {
				if c.elsePC >= 0 {
					fn.Code[c.elsePC].Arg = end
				} else {
					fn.Code[c.ifPC].Arg = end
				}
			}

		case vm.OpBr, vm.OpBrIf:
			ref, err := immediate(mnemonic, line)
			if err != nil {
				return err
			}
			c, err := target(ref, line)
			if err != nil {
				return err
			}
			pc := emit(vm.Instr{Op: op}, line)
			if c.kind == ctrlLoop {
				fn.Code[pc].Arg = c.start
			} else {
				c.fixups = append(c.fixups, pc)
			}

		case vm.OpCall:
			ref, err := immediate(mnemonic, line)
			if err != nil {
				return err
			}
			idx, err := resolve(a.funcs, ref, len(a.img.Funcs), "function", line)
			if err != nil {
				return err
			}
			emit(vm.Instr{Op: op, Arg: idx}, line)

		case vm.OpLocalGet, vm.OpLocalSet, vm.OpLocalTee:
			ref, err := immediate(mnemonic, line)
			if err != nil {
				return err
			}
			idx, err := resolve(def.locals, ref, len(fn.Locals), "local", line)
			if err != nil {
				return err
			}
			emit(vm.Instr{Op: op, Arg: idx}, line)

		case vm.OpGlobalGet, vm.OpGlobalSet:
			ref, err := immediate(mnemonic, line)
			if err != nil {
				return err
			}
			idx, err := resolve(a.globals, ref, len(a.img.Globals), "global", line)
			if err != nil {
				return err
			}
			if op == vm.OpGlobalSet && !a.img.Globals[idx].Mutable {
				return fmt.Errorf("global.set of immutable global '%s' on line %d", ref, line)
			}
			emit(vm.Instr{Op: op, Arg: idx}, line)

		case vm.OpF64Const, vm.OpI32Const, vm.OpI64Const:
			lit, err := immediate(mnemonic, line)
			if err != nil {
				return err
			}
			typ := map[vm.Opcode]vm.ValType{vm.OpF64Const: vm.F64, vm.OpI32Const: vm.I32, vm.OpI64Const: vm.I64}[op]
			bits, err := parseConst(typ, lit)
			if err != nil {
				return fmt.Errorf("invalid immediate '%s' on line %d: %w", lit, line, err)
			}
			emit(vm.Instr{Op: op, Bits: bits}, line)

		default:
			emit(vm.Instr{Op: op}, line)
		}
	}

	if len(stack) > 0 {
		c := stack[len(stack)-1]
		return fmt.Errorf("block opened on line %d is never closed", fn.Lines[c.start])
	}
	return nil
}

// parseConst reads a numeric literal of type t and returns its bit
// pattern. Underscore separators, hex integers, hex floats, inf and nan
// are accepted.
func parseConst(t vm.ValType, lit string) (uint64, error) {
	s := strings.ReplaceAll(lit, "_", "")
	switch t {
	case vm.F64:
		v, err := parseFloat(s)
		if err != nil {
			return 0, err
		}
		return math.Float64bits(v), nil
	case vm.I32:
		if v, err := strconv.ParseInt(s, 0, 32); err == nil {
			return uint64(uint32(int32(v))), nil
		}
		v, err := strconv.ParseUint(strings.TrimPrefix(s, "+"), 0, 32)
		if err != nil {
			return 0, fmt.Errorf("not an i32")
		}
		return v, nil
	case vm.I64:
		if v, err := strconv.ParseInt(s, 0, 64); err == nil {
			return uint64(v), nil
		}
		v, err := strconv.ParseUint(strings.TrimPrefix(s, "+"), 0, 64)
		if err != nil {
			return 0, fmt.Errorf("not an i64")
		}
		return v, nil
	}
	return 0, fmt.Errorf("unsupported type %s", t)
}

func parseFloat(s string) (float64, error) {
	sign := 1.0
	body := s
	if strings.HasPrefix(body, "-") {
		sign = -1
		body = body[1:]
	} else {
		body = strings.TrimPrefix(body, "+")
	}
	switch {
	case body == "inf":
		return math.Inf(int(sign)), nil
	case body == "nan" || strings.HasPrefix(body, "nan:"):
		return math.Copysign(math.NaN(), sign), nil
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, nil
	}
	if v, err := strconv.ParseInt(s, 0, 64); err == nil {
		return float64(v), nil
	}
	return 0, fmt.Errorf("not an f64")
}
