// Package ast holds the closed set of node types for jsonasm programs and
// decodes them from their JSON form.
package ast

import (
	"fmt"
	"strconv"
	"strings"
)

// Pos records where a node sits in the input document, as a JSON Pointer
// from the program root ("/3/do/0/value/argl"). Nodes built in Go rather
// than decoded carry an empty path.
type Pos struct {
	Path string
}

func (p Pos) NodePath() string { return p.Path }

// Node is implemented by every statement and expression.
type Node interface {
	NodePath() string
	String() string
}

//  Expression nodes

// Expr is implemented by every node that produces a number.
type Expr interface {
	Node
	exprNode()
}

// Number is a numeric literal.
//
//	{"set": "x", "value": 2.5}
//	                      ^^^  Number{Value: 2.5}
type Number struct {
	Pos
	Value float64
}

func (*Number) exprNode()        {}
func (n *Number) String() string { return strconv.FormatFloat(n.Value, 'g', -1, 64) }

// Ident is a read of a named variable.
//
//	{"binop": "+", "argl": "x", "argr": 1}
//	                       ^^^  Ident{Name: "x"}
type Ident struct {
	Pos
	Name string
}

func (*Ident) exprNode()        {}
func (i *Ident) String() string { return i.Name }

// Binary represents Left Op Right.
type Binary struct {
	Pos
	Op    Op
	Left  Expr
	Right Expr
}

func (*Binary) exprNode() {}
func (b *Binary) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Left, b.Op, b.Right)
}

// Unary represents Op Arg.
type Unary struct {
	Pos
	Op  Op
	Arg Expr
}

func (*Unary) exprNode()        {}
func (u *Unary) String() string { return fmt.Sprintf("(%s%s)", u.Op, u.Arg) }

// Call invokes a declared function. It is both an expression and, when its
// result is discarded, a statement.
type Call struct {
	Pos
	Name string
	Args []Expr
}

func (*Call) exprNode() {}
func (*Call) stmtNode() {}
func (c *Call) String() string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", c.Name, strings.Join(args, ", "))
}

//  Statement nodes

// Stmt is implemented by every node that can appear in a body.
type Stmt interface {
	Node
	stmtNode()
}

// Declare introduces a new binding in the current frame.
type Declare struct {
	Pos
	Name  string
	Value Expr
}

func (*Declare) stmtNode() {}
func (d *Declare) String() string {
	return fmt.Sprintf("declare %s = %s", d.Name, d.Value)
}

// Set assigns to the nearest binding of Name, creating one in the
// enclosing function (or module) frame when none exists.
type Set struct {
	Pos
	Name  string
	Value Expr
}

func (*Set) stmtNode()        {}
func (s *Set) String() string { return fmt.Sprintf("set %s = %s", s.Name, s.Value) }

// Branch is one {cond, then} entry of an If.
type Branch struct {
	Pos
	Cond Expr
	Then []Stmt
}

// If runs the first branch whose condition is non-zero, or Else.
// A nil Else means there is no else branch.
type If struct {
	Pos
	Branches []Branch
	Else     []Stmt
}

func (*If) stmtNode() {}
func (s *If) String() string {
	var b strings.Builder
	for i, br := range s.Branches {
		if i > 0 {
			b.WriteString(" else ")
		}
		fmt.Fprintf(&b, "if %s %s", br.Cond, bodyString(br.Then))
	}
	if s.Else != nil {
		fmt.Fprintf(&b, " else %s", bodyString(s.Else))
	}
	return b.String()
}

// While tests Cond before every pass.
type While struct {
	Pos
	Cond Expr
	Body []Stmt
}

func (*While) stmtNode() {}
func (w *While) String() string {
	return fmt.Sprintf("while %s %s", w.Cond, bodyString(w.Body))
}

// DoUntil runs Body, then stops once Cond is non-zero.
type DoUntil struct {
	Pos
	Body []Stmt
	Cond Expr
}

func (*DoUntil) stmtNode() {}
func (d *DoUntil) String() string {
	return fmt.Sprintf("do %s until %s", bodyString(d.Body), d.Cond)
}

// Iterator is a counted loop over Var from From to To (inclusive) by Step.
// A nil Step means 1.
type Iterator struct {
	Pos
	Var  string
	From Expr
	To   Expr
	Step Expr
	Body []Stmt
}

func (*Iterator) stmtNode() {}
func (it *Iterator) String() string {
	step := "1"
	if it.Step != nil {
		step = it.Step.String()
	}
	return fmt.Sprintf("for %s = %s, %s, %s %s", it.Var, it.From, it.To, step, bodyString(it.Body))
}

// Break leaves the nearest enclosing loop.
type Break struct{ Pos }

func (*Break) stmtNode()      {}
func (*Break) String() string { return "break" }

// Continue starts the next pass of the nearest enclosing loop.
type Continue struct{ Pos }

func (*Continue) stmtNode()      {}
func (*Continue) String() string { return "continue" }

// Return leaves the enclosing function with Value.
type Return struct {
	Pos
	Value Expr
}

func (*Return) stmtNode()        {}
func (r *Return) String() string { return fmt.Sprintf("return %s", r.Value) }

// Block is an anonymous scope, run once in place.
type Block struct {
	Pos
	Body []Stmt
}

func (*Block) stmtNode()        {}
func (b *Block) String() string { return bodyString(b.Body) }

func bodyString(body []Stmt) string {
	parts := make([]string, len(body))
	for i, s := range body {
		parts[i] = s.String()
	}
	return "{ " + strings.Join(parts, "; ") + " }"
}

//  Top level

// FunctionDecl is a named function. Functions share one flat namespace.
type FunctionDecl struct {
	Pos
	Name   string
	Params []string
	Body   []Stmt
}

func (f *FunctionDecl) String() string {
	return fmt.Sprintf("function %s(%s) %s", f.Name, strings.Join(f.Params, ", "), bodyString(f.Body))
}

// Program is a decoded input document. Functions keep their source order;
// Statements are the top-level statements in execution order.
type Program struct {
	Functions  []*FunctionDecl
	Statements []Stmt
}

func (p *Program) String() string {
	var b strings.Builder
	for _, f := range p.Functions {
		b.WriteString(f.String())
		b.WriteByte('\n')
	}
	for _, s := range p.Statements {
		b.WriteString(s.String())
		b.WriteByte('\n')
	}
	return b.String()
}
