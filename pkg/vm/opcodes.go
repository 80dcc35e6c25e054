package vm

import "fmt"

// Opcode is one instruction of the reference machine. The set covers the
// WebAssembly text subset the compiler emits plus the neighbouring numeric
// instructions, so hand-written modules can run too.
type Opcode uint8

const (
	OpNop Opcode = iota
	OpUnreachable

	// Structured control. Branch targets are resolved by the assembler and
	// stored in Instr.Arg, so block, loop and end execute as no-ops.
	OpBlock
	OpLoop
	OpIf   // pop i32; when zero jump to Arg
	OpElse // end of a then-branch; jump to Arg
	OpEnd
	OpBr   // jump to Arg
	OpBrIf // pop i32; when non-zero jump to Arg
	OpReturn
	OpCall // Arg is the function index
	OpDrop
	OpSelect

	OpLocalGet // Arg is the local index
	OpLocalSet
	OpLocalTee
	OpGlobalGet // Arg is the global index
	OpGlobalSet

	OpF64Const // Bits holds the value
	OpI32Const
	OpI64Const

	OpF64Add
	OpF64Sub
	OpF64Mul
	OpF64Div
	OpF64Min
	OpF64Max
	OpF64Copysign
	OpF64Neg
	OpF64Abs
	OpF64Sqrt
	OpF64Ceil
	OpF64Floor
	OpF64Trunc
	OpF64Nearest

	OpF64Eq
	OpF64Ne
	OpF64Lt
	OpF64Gt
	OpF64Le
	OpF64Ge

	OpI32Eqz
	OpI32Eq
	OpI32Ne
	OpI32And
	OpI32Or
	OpI32Xor
	OpI32Add
	OpI32Sub

	OpI64Eqz
	OpI64And
	OpI64Or
	OpI64Xor
	OpI64Shl
	OpI64ShrS
	OpI64ShrU
	OpI64Add
	OpI64Sub
	OpI64Mul

	OpF64ConvertI32S
	OpF64ConvertI32U
	OpF64ConvertI64S
	OpF64ConvertI64U
	OpI32TruncSatF64S
	OpI64TruncSatF64S
	OpI32WrapI64
	OpI64ExtendI32S
	OpI64ExtendI32U

	numOpcodes
)

var opNames = [numOpcodes]string{
	OpNop:         "nop",
	OpUnreachable: "unreachable",
	OpBlock:       "block",
	OpLoop:        "loop",
	OpIf:          "if",
	OpElse:        "else",
	OpEnd:         "end",
	OpBr:          "br",
	OpBrIf:        "br_if",
	OpReturn:      "return",
	OpCall:        "call",
	OpDrop:        "drop",
	OpSelect:      "select",

	OpLocalGet:  "local.get",
	OpLocalSet:  "local.set",
	OpLocalTee:  "local.tee",
	OpGlobalGet: "global.get",
	OpGlobalSet: "global.set",

	OpF64Const: "f64.const",
	OpI32Const: "i32.const",
	OpI64Const: "i64.const",

	OpF64Add:      "f64.add",
	OpF64Sub:      "f64.sub",
	OpF64Mul:      "f64.mul",
	OpF64Div:      "f64.div",
	OpF64Min:      "f64.min",
	OpF64Max:      "f64.max",
	OpF64Copysign: "f64.copysign",
	OpF64Neg:      "f64.neg",
	OpF64Abs:      "f64.abs",
	OpF64Sqrt:     "f64.sqrt",
	OpF64Ceil:     "f64.ceil",
	OpF64Floor:    "f64.floor",
	OpF64Trunc:    "f64.trunc",
	OpF64Nearest:  "f64.nearest",

	OpF64Eq: "f64.eq",
	OpF64Ne: "f64.ne",
	OpF64Lt: "f64.lt",
	OpF64Gt: "f64.gt",
	OpF64Le: "f64.le",
	OpF64Ge: "f64.ge",

	OpI32Eqz: "i32.eqz",
	OpI32Eq:  "i32.eq",
	OpI32Ne:  "i32.ne",
	OpI32And: "i32.and",
	OpI32Or:  "i32.or",
	OpI32Xor: "i32.xor",
	OpI32Add: "i32.add",
	OpI32Sub: "i32.sub",

	OpI64Eqz:  "i64.eqz",
	OpI64And:  "i64.and",
	OpI64Or:   "i64.or",
	OpI64Xor:  "i64.xor",
	OpI64Shl:  "i64.shl",
	OpI64ShrS: "i64.shr_s",
	OpI64ShrU: "i64.shr_u",
	OpI64Add:  "i64.add",
	OpI64Sub:  "i64.sub",
	OpI64Mul:  "i64.mul",

	OpF64ConvertI32S:  "f64.convert_i32_s",
	OpF64ConvertI32U:  "f64.convert_i32_u",
	OpF64ConvertI64S:  "f64.convert_i64_s",
	OpF64ConvertI64U:  "f64.convert_i64_u",
	OpI32TruncSatF64S: "i32.trunc_sat_f64_s",
	OpI64TruncSatF64S: "i64.trunc_sat_f64_s",
	OpI32WrapI64:      "i32.wrap_i64",
	OpI64ExtendI32S:   "i64.extend_i32_s",
	OpI64ExtendI32U:   "i64.extend_i32_u",
}

var opByName map[string]Opcode

func init() {
	opByName = make(map[string]Opcode, numOpcodes)
	for op, name := range opNames {
		opByName[name] = Opcode(op)
	}
}

// LookupOpcode maps a WebAssembly text mnemonic to its Opcode.
func LookupOpcode(mnemonic string) (Opcode, bool) {
	op, ok := opByName[mnemonic]
	return op, ok
}

func (op Opcode) String() string {
	if op < numOpcodes {
		return opNames[op]
	}
	return fmt.Sprintf("Opcode(%d)", int(op))
}
