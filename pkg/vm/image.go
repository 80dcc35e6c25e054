package vm

import (
	"fmt"
	"math"
)

// ValType is the type of a local, parameter, global or result.
type ValType uint8

const (
	F64 ValType = iota
	I32
	I64
)

func (t ValType) String() string {
	switch t {
	case F64:
		return "f64"
	case I32:
		return "i32"
	case I64:
		return "i64"
	}
	return fmt.Sprintf("ValType(%d)", int(t))
}

// Instr is one decoded instruction.
type Instr struct {
	Op   Opcode
	Arg  int    // branch target, local/global/function index
	Bits uint64 // constant operand
}

func (in Instr) String() string {
	switch in.Op {
	case OpF64Const:
		return fmt.Sprintf("%s %v", in.Op, math.Float64frombits(in.Bits))
	case OpI32Const, OpI64Const:
		return fmt.Sprintf("%s %d", in.Op, int64(in.Bits))
	case OpIf, OpElse, OpBr, OpBrIf, OpCall, OpLocalGet, OpLocalSet, OpLocalTee, OpGlobalGet, OpGlobalSet:
		return fmt.Sprintf("%s %d", in.Op, in.Arg)
	}
	return in.Op.String()
}

// Function is a callable unit. Locals holds the types of parameters
// followed by declared locals.
type Function struct {
	Name    string
	Params  int
	Locals  []ValType
	Results []ValType
	Code    []Instr
	Lines   []int // source line of each instruction
}

// Global is a module global and its initial value.
type Global struct {
	Name    string
	Type    ValType
	Mutable bool
	Init    uint64
}

type ExportKind uint8

const (
	ExportFunc ExportKind = iota
	ExportGlobal
)

// Export is a named entry point into the image.
type Export struct {
	Kind  ExportKind
	Index int
}

// Image is an assembled module.
type Image struct {
	Funcs   []*Function
	Globals []Global
	Exports map[string]Export
}

// FuncIndex finds a function by export name, falling back to its
// identifier without the '$'.
func (img *Image) FuncIndex(name string) (int, bool) {
	if ex, ok := img.Exports[name]; ok && ex.Kind == ExportFunc {
		return ex.Index, true
	}
	for i, f := range img.Funcs {
		if f.Name == name {
			return i, true
		}
	}
	return 0, false
}

// GlobalIndex finds a global by export name, falling back to its
// identifier without the '$'.
func (img *Image) GlobalIndex(name string) (int, bool) {
	if ex, ok := img.Exports[name]; ok && ex.Kind == ExportGlobal {
		return ex.Index, true
	}
	for i, g := range img.Globals {
		if g.Name == name {
			return i, true
		}
	}
	return 0, false
}
