package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/compiladores/jsonasm-wasm/pkg/ast"
)

type ScopeType int

const (
	ScopeGlobal ScopeType = iota
	ScopeLocal
)

// FrameKind says which construct opened a frame. Only function frames (and
// the module frame beneath everything) receive bindings created by an
// undeclared set.
type FrameKind int

const (
	FrameFunction FrameKind = iota
	FrameBlock
	FrameLoop
)

func (k FrameKind) String() string {
	switch k {
	case FrameFunction:
		return "function"
	case FrameBlock:
		return "block"
	case FrameLoop:
		return "loop"
	}
	return fmt.Sprintf("FrameKind(%d)", int(k))
}

// Symbol is a storage cell: a module global or a local of the callable
// unit being compiled.
type Symbol struct {
	Name  string // source name; hidden cells carry a descriptive hint
	Label string // WAT identifier without the leading '$'
	Scope ScopeType
	Index int // local index within the unit, -1 for globals
}

// Get is the instruction that pushes the cell's value.
func (s Symbol) Get() string {
	if s.Scope == ScopeGlobal {
		return "global.get $" + s.Label
	}
	return "local.get $" + s.Label
}

// Put is the instruction that pops a value into the cell.
func (s Symbol) Put() string {
	if s.Scope == ScopeGlobal {
		return "global.set $" + s.Label
	}
	return "local.set $" + s.Label
}

// FuncInfo is an entry of the flat function table.
type FuncInfo struct {
	Name   string
	Label  string
	Params []string
	Decl   *ast.FunctionDecl
}

type frame struct {
	kind  FrameKind
	names map[string]Symbol
}

// SymbolTable resolves identifiers through a stack of frames sitting on
// top of the module frame. The module frame always holds "out".
type SymbolTable struct {
	globals     map[string]Symbol
	globalOrder []string

	// Frames of the unit being compiled, innermost last. Empty while
	// compiling the entry callable at top level.
	frames []frame

	// Locals of the unit being compiled in index order, params first.
	locals  []Symbol
	nParams int
	inFunc  bool

	functions map[string]*FuncInfo
	funcOrder []string
}

func NewSymbolTable() *SymbolTable {
	s := &SymbolTable{
		globals:   make(map[string]Symbol),
		functions: make(map[string]*FuncInfo),
	}
	s.defineGlobal("out")
	return s
}

func (s *SymbolTable) defineGlobal(name string) Symbol {
	sym := Symbol{Name: name, Label: name, Scope: ScopeGlobal, Index: -1}
	s.globals[name] = sym
	s.globalOrder = append(s.globalOrder, name)
	return sym
}

func (s *SymbolTable) newLocal(name string) Symbol {
	idx := len(s.locals)
	sym := Symbol{Name: name, Label: fmt.Sprintf("%s.%d", name, idx), Scope: ScopeLocal, Index: idx}
	s.locals = append(s.locals, sym)
	return sym
}

// EnterEntry starts compiling the entry callable: no function frame, so
// top-level bindings land in the module frame.
func (s *SymbolTable) EnterEntry() {
	s.frames = nil
	s.locals = nil
	s.nParams = 0
	s.inFunc = false
}

// EnterFunction starts compiling a function body, binding its parameters
// in a fresh function frame.
func (s *SymbolTable) EnterFunction(params []string) []Symbol {
	s.locals = nil
	s.frames = []frame{{kind: FrameFunction, names: make(map[string]Symbol)}}
	s.inFunc = true
	for _, p := range params {
		s.frames[0].names[p] = s.newLocal(p)
	}
	s.nParams = len(params)
	return append([]Symbol(nil), s.locals...)
}

// ExitFunction finishes the current unit and returns its non-parameter
// locals in declaration order.
func (s *SymbolTable) ExitFunction() []Symbol {
	locals := append([]Symbol(nil), s.locals[s.nParams:]...)
	s.frames = nil
	s.locals = nil
	s.nParams = 0
	s.inFunc = false
	return locals
}

func (s *SymbolTable) EnterScope(kind FrameKind) {
	s.frames = append(s.frames, frame{kind: kind, names: make(map[string]Symbol)})
}

func (s *SymbolTable) ExitScope() {
	if len(s.frames) == 0 {
		panic("ExitScope called with no open frame")
	}
	s.frames = s.frames[:len(s.frames)-1]
}

// Declare binds name in the innermost frame, shadowing any outer binding.
// At top level the innermost frame is the module frame, whose cells are
// globals and are reused when redeclared.
func (s *SymbolTable) Declare(name string) Symbol {
	if len(s.frames) == 0 {
		if sym, ok := s.globals[name]; ok {
			return sym
		}
		return s.defineGlobal(name)
	}
	sym := s.newLocal(name)
	s.frames[len(s.frames)-1].names[name] = sym
	return sym
}

// Assign resolves the target of a set. Without a visible binding the cell
// is created in the nearest function frame, or the module frame when
// there is none, so it outlives any block it was set in.
func (s *SymbolTable) Assign(name string) (Symbol, bool) {
	if sym, ok := s.Lookup(name); ok {
		return sym, false
	}
	for i := len(s.frames) - 1; i >= 0; i-- {
		if s.frames[i].kind == FrameFunction {
			sym := s.newLocal(name)
			s.frames[i].names[name] = sym
			return sym, true
		}
	}
	return s.defineGlobal(name), true
}

// Lookup walks the frames innermost first, then the module frame.
func (s *SymbolTable) Lookup(name string) (Symbol, bool) {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if sym, ok := s.frames[i].names[name]; ok {
			return sym, true
		}
	}
	sym, ok := s.globals[name]
	return sym, ok
}

// Hidden allocates a local no identifier can reach, for values the
// generated code keeps on the side (loop bounds, operands).
func (s *SymbolTable) Hidden(hint string) Symbol {
	return s.newLocal(hint)
}

// InFunction reports whether a function body (not the entry) is open.
func (s *SymbolTable) InFunction() bool { return s.inFunc }

// Globals returns the module cells in the order they were created.
func (s *SymbolTable) Globals() []Symbol {
	out := make([]Symbol, len(s.globalOrder))
	for i, name := range s.globalOrder {
		out[i] = s.globals[name]
	}
	return out
}

func (s *SymbolTable) DefineFunction(fn *ast.FunctionDecl, label string) (*FuncInfo, bool) {
	if existing, ok := s.functions[fn.Name]; ok {
		return existing, false
	}
	info := &FuncInfo{Name: fn.Name, Label: label, Params: fn.Params, Decl: fn}
	s.functions[fn.Name] = info
	s.funcOrder = append(s.funcOrder, fn.Name)
	return info, true
}

func (s *SymbolTable) GetFunction(name string) (*FuncInfo, bool) {
	f, ok := s.functions[name]
	return f, ok
}

// String returns a deterministically ordered dump of the table.
func (s *SymbolTable) String() string {
	var sb strings.Builder
	sb.WriteString("Globals:\n")
	for _, name := range s.globalOrder {
		fmt.Fprintf(&sb, "  %-20s  Label: $%s\n", name, s.globals[name].Label)
	}

	if len(s.funcOrder) > 0 {
		sb.WriteString("Functions:\n")
		for _, name := range s.funcOrder {
			f := s.functions[name]
			fmt.Fprintf(&sb, "  %-20s  Label: $%s (Params: %s)\n", name, f.Label, strings.Join(f.Params, ", "))
		}
	}

	if len(s.frames) > 0 {
		sb.WriteString("Frames (Active Stack):\n")
		for i, fr := range s.frames {
			fmt.Fprintf(&sb, "  Frame %d (%s):\n", i, fr.kind)
			names := make([]string, 0, len(fr.names))
			for name := range fr.names {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(&sb, "    %-20s  Label: $%s\n", name, fr.names[name].Label)
			}
		}
	}
	return sb.String()
}
