package compiler

import (
	"fmt"
	"math"
	"strconv"

	"github.com/compiladores/jsonasm-wasm/pkg/ast"
	"github.com/compiladores/jsonasm-wasm/pkg/diag"
)

var arithOps = map[ast.Op]string{
	ast.Add: "f64.add",
	ast.Sub: "f64.sub",
	ast.Mul: "f64.mul",
	ast.Div: "f64.div",
}

var compareOps = map[ast.Op]string{
	ast.Lt: "f64.lt",
	ast.Gt: "f64.gt",
	ast.Le: "f64.le",
	ast.Ge: "f64.ge",
	ast.Eq: "f64.eq",
	ast.Ne: "f64.ne",
}

var bitwiseOps = map[ast.Op]string{
	ast.BitAnd: "i64.and",
	ast.BitOr:  "i64.or",
	ast.Shl:    "i64.shl",
	ast.Shr:    "i64.shr_s",
}

// formatFloat renders v as a WAT f64 literal that parses back to exactly v.
func formatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// genExpr leaves exactly one f64 on the operand stack.
func (cg *CodeGen) genExpr(e ast.Expr) error {
	switch n := e.(type) {
	case *ast.Number:
		cg.line("f64.const %s", formatFloat(n.Value))

	case *ast.Ident:
		sym, ok := cg.syms.Lookup(n.Name)
		if !ok {
			return diag.Errorf(diag.UnboundVariable, n.Path, "identifier %q has no binding in scope", n.Name)
		}
		cg.line("%s", sym.Get())

	case *ast.Binary:
		return cg.genBinary(n)

	case *ast.Unary:
		return cg.genUnary(n)

	case *ast.Call:
		return cg.genCall(n)

	default:
		return fmt.Errorf("codegen: unknown expression node %T", e)
	}
	return nil
}

func (cg *CodeGen) genOperands(n *ast.Binary, convert string) error {
	if err := cg.genExpr(n.Left); err != nil {
		return err
	}
	if convert != "" {
		cg.line("%s", convert)
	}
	if err := cg.genExpr(n.Right); err != nil {
		return err
	}
	if convert != "" {
		cg.line("%s", convert)
	}
	return nil
}

// truthy turns the f64 on top of the stack into an i32 that is 1 when the
// value is non-zero.
func (cg *CodeGen) truthy() {
	cg.line("f64.const 0")
	cg.line("f64.ne")
}

func (cg *CodeGen) genBinary(n *ast.Binary) error {
	if instr, ok := arithOps[n.Op]; ok {
		if err := cg.genOperands(n, ""); err != nil {
			return err
		}
		cg.line("%s", instr)
		return nil
	}

	if instr, ok := compareOps[n.Op]; ok {
		if err := cg.genOperands(n, ""); err != nil {
			return err
		}
		cg.line("%s", instr)
		cg.line("f64.convert_i32_u")
		return nil
	}

	if instr, ok := bitwiseOps[n.Op]; ok {
		if err := cg.genOperands(n, "i64.trunc_sat_f64_s"); err != nil {
			return err
		}
		cg.line("%s", instr)
		cg.line("f64.convert_i64_s")
		return nil
	}

	switch n.Op {
	case ast.And, ast.Or:
		if err := cg.genExpr(n.Left); err != nil {
			return err
		}
		cg.truthy()
		if err := cg.genExpr(n.Right); err != nil {
			return err
		}
		cg.truthy()
		if n.Op == ast.And {
			cg.line("i32.and")
		} else {
			cg.line("i32.or")
		}
		cg.line("f64.convert_i32_u")
		return nil

	case ast.Pow:
		if err := cg.genOperands(n, ""); err != nil {
			return err
		}
		helper := "pow"
		if lit, ok := n.Right.(*ast.Number); ok && lit.Value == math.Trunc(lit.Value) {
			helper = "ipow"
		}
		return cg.callRuntime(helper)

	case ast.Mod:
		// a - b*trunc(a/b), which keeps the sign of the dividend
		a := cg.syms.Hidden("mod.a")
		b := cg.syms.Hidden("mod.b")
		if err := cg.genExpr(n.Left); err != nil {
			return err
		}
		cg.line("%s", a.Put())
		if err := cg.genExpr(n.Right); err != nil {
			return err
		}
		cg.line("%s", b.Put())
		cg.line("%s", a.Get())
		cg.line("%s", a.Get())
		cg.line("%s", b.Get())
		cg.line("f64.div")
		cg.line("f64.trunc")
		cg.line("%s", b.Get())
		cg.line("f64.mul")
		cg.line("f64.sub")
		return nil
	}
	return fmt.Errorf("codegen: unsupported binary operator %s", n.Op)
}

func (cg *CodeGen) genUnary(n *ast.Unary) error {
	if err := cg.genExpr(n.Arg); err != nil {
		return err
	}
	switch n.Op {
	case ast.Neg:
		cg.line("f64.neg")
	case ast.Not:
		cg.line("f64.const 0")
		cg.line("f64.eq")
		cg.line("f64.convert_i32_u")
	case ast.BitNot:
		cg.line("i64.trunc_sat_f64_s")
		cg.line("i64.const -1")
		cg.line("i64.xor")
		cg.line("f64.convert_i64_s")
	default:
		return fmt.Errorf("codegen: unsupported unary operator %s", n.Op)
	}
	return nil
}

// genCall resolves the callee in the flat function table, then pushes the
// arguments left to right and calls it.
func (cg *CodeGen) genCall(n *ast.Call) error {
	fn, ok := cg.syms.GetFunction(n.Name)
	if !ok {
		return diag.Errorf(diag.UnknownFunction, n.Path, "call to undeclared function %q", n.Name)
	}
	if len(n.Args) != len(fn.Params) {
		return diag.Errorf(diag.ArityMismatch, n.Path, "function %q takes %d argument(s), got %d",
			n.Name, len(fn.Params), len(n.Args))
	}
	for _, arg := range n.Args {
		if err := cg.genExpr(arg); err != nil {
			return err
		}
	}
	cg.line("call $%s", fn.Label)
	return nil
}
