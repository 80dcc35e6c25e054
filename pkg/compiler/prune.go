package compiler

import "github.com/compiladores/jsonasm-wasm/pkg/ast"

// reachableFunctions returns the declarations transitively called from
// roots, in their original order. Calls to names outside funcs are
// ignored.
func reachableFunctions(funcs []*ast.FunctionDecl, roots []string) []*ast.FunctionDecl {
	byName := make(map[string]*ast.FunctionDecl)
	for _, f := range funcs {
		byName[f.Name] = f
	}

	reachable := make(map[string]bool)
	var worklist []string

	addReachable := func(name string) {
		if !reachable[name] {
			reachable[name] = true
			worklist = append(worklist, name)
		}
	}

	for _, r := range roots {
		addReachable(r)
	}

	for len(worklist) > 0 {
		curr := worklist[0]
		worklist = worklist[1:]

		decl, exists := byName[curr]
		if !exists {
			continue
		}

		calls := make(map[string]bool)
		for _, s := range decl.Body {
			findCallsStmt(s, calls)
		}
		for call := range calls {
			addReachable(call)
		}
	}

	var kept []*ast.FunctionDecl
	for _, f := range funcs {
		if reachable[f.Name] {
			kept = append(kept, f)
		}
	}
	return kept
}

// findCallsExpr records every callee named in e.
func findCallsExpr(e ast.Expr, calls map[string]bool) {
	if e == nil {
		return
	}
	switch n := e.(type) {
	case *ast.Call:
		calls[n.Name] = true
		for _, arg := range n.Args {
			findCallsExpr(arg, calls)
		}
	case *ast.Binary:
		findCallsExpr(n.Left, calls)
		findCallsExpr(n.Right, calls)
	case *ast.Unary:
		findCallsExpr(n.Arg, calls)
	case *ast.Number, *ast.Ident:
	}
}

// findCallsStmt records every callee named in s.
func findCallsStmt(s ast.Stmt, calls map[string]bool) {
	if s == nil {
		return
	}
	walk := func(body []ast.Stmt) {
		for _, child := range body {
			findCallsStmt(child, calls)
		}
	}
	switch n := s.(type) {
	case *ast.Declare:
		findCallsExpr(n.Value, calls)
	case *ast.Set:
		findCallsExpr(n.Value, calls)
	case *ast.Return:
		findCallsExpr(n.Value, calls)
	case *ast.Call:
		findCallsExpr(n, calls)
	case *ast.Block:
		walk(n.Body)
	case *ast.If:
		for _, br := range n.Branches {
			findCallsExpr(br.Cond, calls)
			walk(br.Then)
		}
		walk(n.Else)
	case *ast.While:
		findCallsExpr(n.Cond, calls)
		walk(n.Body)
	case *ast.DoUntil:
		walk(n.Body)
		findCallsExpr(n.Cond, calls)
	case *ast.Iterator:
		findCallsExpr(n.From, calls)
		findCallsExpr(n.To, calls)
		findCallsExpr(n.Step, calls)
		walk(n.Body)
	case *ast.Break, *ast.Continue:
	}
}
