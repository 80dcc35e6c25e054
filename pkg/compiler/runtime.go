package compiler

import (
	"math"

	"github.com/compiladores/jsonasm-wasm/pkg/ast"
)

// runtimePrefix namespaces the helper functions. '.' cannot appear in a
// program identifier, so helpers never collide with user functions.
const runtimePrefix = "rt."

// The runtime is written in the source language itself and compiled by the
// same code generator, on demand, when a program uses an operator that
// needs it.
//
//	ipow(b, n)  b^n for integral n, by repeated squaring
//	ln(x)       natural log: reduce x into [1, e), then 2*atanh((x-1)/(x+1))
//	exp(y)      e^y: split y into floor and fraction, Taylor series on the fraction
//	pow(b, e)   ipow on the integral part of e, exp(frac*ln(b)) on the rest

func num(v float64) ast.Expr                       { return &ast.Number{Value: v} }
func ref(name string) ast.Expr                     { return &ast.Ident{Name: name} }
func bin(op ast.Op, l, r ast.Expr) ast.Expr        { return &ast.Binary{Op: op, Left: l, Right: r} }
func neg(e ast.Expr) ast.Expr                      { return &ast.Unary{Op: ast.Neg, Arg: e} }
func call(name string, args ...ast.Expr) *ast.Call { return &ast.Call{Name: name, Args: args} }
func declare(name string, v ast.Expr) ast.Stmt     { return &ast.Declare{Name: name, Value: v} }
func set(name string, v ast.Expr) ast.Stmt         { return &ast.Set{Name: name, Value: v} }
func ret(v ast.Expr) ast.Stmt                      { return &ast.Return{Value: v} }

func when(cond ast.Expr, then ...ast.Stmt) ast.Stmt {
	return &ast.If{Branches: []ast.Branch{{Cond: cond, Then: then}}}
}

func loopWhile(cond ast.Expr, body ...ast.Stmt) ast.Stmt {
	return &ast.While{Cond: cond, Body: body}
}

func fn(name string, params []string, body ...ast.Stmt) *ast.FunctionDecl {
	return &ast.FunctionDecl{Name: name, Params: params, Body: body}
}

// runtimeFunctions builds a fresh copy of the helper library.
func runtimeFunctions() []*ast.FunctionDecl {
	e := num(math.E)
	nan := bin(ast.Div, num(0), num(0))
	inf := bin(ast.Div, num(1), num(0))

	ipow := fn("ipow", []string{"b", "n"},
		declare("inv", bin(ast.Lt, ref("n"), num(0))),
		when(ref("inv"), set("n", neg(ref("n")))),
		declare("r", num(1)),
		loopWhile(bin(ast.Gt, ref("n"), num(0)),
			when(bin(ast.BitAnd, ref("n"), num(1)), set("r", bin(ast.Mul, ref("r"), ref("b")))),
			set("b", bin(ast.Mul, ref("b"), ref("b"))),
			set("n", bin(ast.Shr, ref("n"), num(1))),
		),
		when(ref("inv"), ret(bin(ast.Div, num(1), ref("r")))),
		ret(ref("r")),
	)

	ln := fn("ln", []string{"x"},
		when(bin(ast.Ne, ref("x"), ref("x")), ret(ref("x"))),
		when(bin(ast.Lt, ref("x"), num(0)), ret(nan)),
		when(bin(ast.Eq, ref("x"), num(0)), ret(neg(inf))),
		when(bin(ast.Eq, ref("x"), bin(ast.Add, ref("x"), ref("x"))), ret(ref("x"))),
		declare("k", num(0)),
		loopWhile(bin(ast.Ge, ref("x"), e),
			set("x", bin(ast.Div, ref("x"), e)),
			set("k", bin(ast.Add, ref("k"), num(1))),
		),
		loopWhile(bin(ast.Lt, ref("x"), num(1)),
			set("x", bin(ast.Mul, ref("x"), e)),
			set("k", bin(ast.Sub, ref("k"), num(1))),
		),
		declare("t", bin(ast.Div, bin(ast.Sub, ref("x"), num(1)), bin(ast.Add, ref("x"), num(1)))),
		declare("t2", bin(ast.Mul, ref("t"), ref("t"))),
		declare("term", ref("t")),
		declare("sum", num(0)),
		&ast.Iterator{Var: "i", From: num(0), To: num(30), Body: []ast.Stmt{
			set("sum", bin(ast.Add, ref("sum"), bin(ast.Div, ref("term"), bin(ast.Add, bin(ast.Mul, num(2), ref("i")), num(1))))),
			set("term", bin(ast.Mul, ref("term"), ref("t2"))),
		}},
		ret(bin(ast.Add, ref("k"), bin(ast.Mul, num(2), ref("sum")))),
	)

	exp := fn("exp", []string{"y"},
		when(bin(ast.Ne, ref("y"), ref("y")), ret(ref("y"))),
		when(bin(ast.Gt, ref("y"), num(709.8)), ret(inf)),
		when(bin(ast.Lt, ref("y"), num(-745.2)), ret(num(0))),
		declare("k", bin(ast.BitOr, ref("y"), num(0))),
		when(bin(ast.Lt, ref("y"), ref("k")), set("k", bin(ast.Sub, ref("k"), num(1)))),
		declare("z", bin(ast.Sub, ref("y"), ref("k"))),
		declare("sum", num(1)),
		declare("term", num(1)),
		&ast.Iterator{Var: "i", From: num(1), To: num(25), Body: []ast.Stmt{
			set("term", bin(ast.Div, bin(ast.Mul, ref("term"), ref("z")), ref("i"))),
			set("sum", bin(ast.Add, ref("sum"), ref("term"))),
		}},
		when(bin(ast.Lt, ref("k"), num(0)),
			ret(bin(ast.Mul, ref("sum"), call("ipow", bin(ast.Div, num(1), e), neg(ref("k")))))),
		ret(bin(ast.Mul, ref("sum"), call("ipow", e, ref("k")))),
	)

	pow := fn("pow", []string{"b", "e"},
		declare("ip", bin(ast.BitOr, ref("e"), num(0))),
		declare("fp", bin(ast.Sub, ref("e"), ref("ip"))),
		declare("r", call("ipow", ref("b"), ref("ip"))),
		when(bin(ast.Ne, ref("fp"), num(0)),
			set("r", bin(ast.Mul, ref("r"), call("exp", bin(ast.Mul, ref("fp"), call("ln", ref("b"))))))),
		ret(ref("r")),
	)

	return []*ast.FunctionDecl{pow, ipow, exp, ln}
}

// genRuntime compiles the helpers reachable from roots into callable units
// labelled with runtimePrefix. It uses its own symbol table so the
// program's globals and functions are invisible to it.
func genRuntime(roots []string, cg *CodeGen) ([]*Func, error) {
	funcs := reachableFunctions(runtimeFunctions(), roots)
	rt := newCodeGen(NewSymbolTable(), runtimePrefix, cg.log)
	if err := rt.defineFunctions(funcs); err != nil {
		return nil, err
	}
	var units []*Func
	for _, f := range funcs {
		u, err := rt.genFunction(f)
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, nil
}
