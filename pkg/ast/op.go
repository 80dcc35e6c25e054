package ast

import "fmt"

// Op identifies a binary or unary operator.
type Op int

const (
	BadOp Op = iota // sentinel: never produced by Decode

	// Arithmetic
	Add // +
	Sub // -
	Mul // *
	Div // /
	Pow // ^
	Mod // %

	// Bitwise and shifts; operands are truncated to integers first
	BitAnd // &
	BitOr  // |
	Shl    // <<
	Shr    // >>

	// Comparisons, yielding 1 or 0
	Lt // <
	Gt // >
	Le // <=
	Ge // >=
	Eq // ==
	Ne // ~=

	// Logical, both sides always evaluated, yielding 1 or 0
	And // and
	Or  // or

	// Unary
	Neg    // -
	Not    // !
	BitNot // ~
)

var opSymbols = [...]string{
	BadOp:  "?",
	Add:    "+",
	Sub:    "-",
	Mul:    "*",
	Div:    "/",
	Pow:    "^",
	Mod:    "%",
	BitAnd: "&",
	BitOr:  "|",
	Shl:    "<<",
	Shr:    ">>",
	Lt:     "<",
	Gt:     ">",
	Le:     "<=",
	Ge:     ">=",
	Eq:     "==",
	Ne:     "~=",
	And:    "and",
	Or:     "or",
	Neg:    "-",
	Not:    "!",
	BitNot: "~",
}

var binaryOps = map[string]Op{
	"+": Add, "-": Sub, "*": Mul, "/": Div, "^": Pow, "%": Mod,
	"&": BitAnd, "|": BitOr, "<<": Shl, ">>": Shr,
	"<": Lt, ">": Gt, "<=": Le, ">=": Ge, "==": Eq, "~=": Ne,
	"and": And, "or": Or,
}

var unaryOps = map[string]Op{
	"-": Neg, "!": Not, "~": BitNot,
}

// LookupBinary maps the JSON spelling of a binary operator to its Op.
func LookupBinary(sym string) (Op, bool) {
	op, ok := binaryOps[sym]
	return op, ok
}

// LookupUnary maps the JSON spelling of a unary operator to its Op.
func LookupUnary(sym string) (Op, bool) {
	op, ok := unaryOps[sym]
	return op, ok
}

// IsComparison reports whether op yields a 1/0 truth value from two numbers.
func (op Op) IsComparison() bool { return op >= Lt && op <= Ne }

// IsBitwise reports whether op works on truncated integer operands.
func (op Op) IsBitwise() bool { return op >= BitAnd && op <= Shr }

// IsUnary reports whether op is a prefix operator.
func (op Op) IsUnary() bool { return op >= Neg && op <= BitNot }

func (op Op) String() string {
	if int(op) >= 0 && int(op) < len(opSymbols) {
		return opSymbols[op]
	}
	return fmt.Sprintf("Op(%d)", int(op))
}
