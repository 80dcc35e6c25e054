package ast

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/compiladores/jsonasm-wasm/pkg/diag"
)

// Decode parses a JSON program and validates the shape of every node.
// Any failure is a *diag.Error of kind diag.MalformedProgram.
func Decode(data []byte) (*Program, error) {
	return DecodeReader(bytes.NewReader(data))
}

// DecodeReader is Decode over a stream. The stream must hold exactly one
// JSON value.
func DecodeReader(r io.Reader) (*Program, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var root any
	if err := dec.Decode(&root); err != nil {
		return nil, malformed("", "invalid JSON: %v", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, malformed("", "unexpected data after the program")
	}
	return decodeProgram(root)
}

func malformed(path, format string, args ...any) *diag.Error {
	return diag.Errorf(diag.MalformedProgram, path, format, args...)
}

func field(path, key string) string { return path + "/" + key }
func index(path string, i int) string {
	return path + "/" + strconv.Itoa(i)
}

func decodeProgram(root any) (*Program, error) {
	items, ok := root.([]any)
	if !ok {
		return nil, malformed("", "program must be an array, got %s", kindOf(root))
	}
	prog := &Program{}
	for i, item := range items {
		p := index("", i)
		if obj, ok := item.(map[string]any); ok {
			if _, isFunc := obj["function"]; isFunc {
				fn, err := decodeFunction(obj, p)
				if err != nil {
					return nil, err
				}
				prog.Functions = append(prog.Functions, fn)
				continue
			}
		}
		s, err := decodeStmt(item, p)
		if err != nil {
			return nil, err
		}
		prog.Statements = append(prog.Statements, s)
	}
	return prog, nil
}

// shape lists the keys an object form must and may carry. The first
// required key is the discriminator.
type shape struct {
	name     string
	required []string
	optional []string
}

var stmtShapes = map[string]shape{
	"function": {"function", []string{"function", "args", "block"}, nil},
	"declare":  {"declare", []string{"declare", "value"}, nil},
	"set":      {"set", []string{"set", "value"}, nil},
	"if":       {"if", []string{"if"}, []string{"else"}},
	"while":    {"while", []string{"while", "do"}, nil},
	"until":    {"do-until", []string{"until", "do"}, nil},
	"iterator": {"iterator", []string{"iterator", "from", "to", "do"}, []string{"step"}},
	"return":   {"return", []string{"return"}, nil},
	"call":     {"call", []string{"call"}, []string{"args"}},
}

// stmtDiscriminators is stmtShapes' key set in a fixed order.
var stmtDiscriminators = []string{"function", "declare", "set", "if", "while", "until", "iterator", "return", "call"}

var exprShapes = map[string]shape{
	"binop": {"binop", []string{"binop", "argl", "argr"}, nil},
	"unop":  {"unop", []string{"unop", "arg"}, nil},
	"call":  {"call", []string{"call"}, []string{"args"}},
}

var exprDiscriminators = []string{"binop", "unop", "call"}

// classify picks the one shape obj matches and checks its key set.
func classify(obj map[string]any, path string, shapes map[string]shape, order []string, what string) (shape, error) {
	var found []string
	for _, k := range order {
		if _, ok := obj[k]; ok {
			found = append(found, k)
		}
	}
	switch len(found) {
	case 0:
		if _, ok := obj["do"]; ok && what == "statement" {
			return shape{}, malformed(path, `"do" without "while", "until" or "iterator"`)
		}
		return shape{}, malformed(path, "unrecognized %s object with keys %v", what, sortedKeys(obj))
	case 1:
	default:
		return shape{}, malformed(path, "%s mixes %q and %q shapes", what, found[0], found[1])
	}

	sh := shapes[found[0]]
	for _, k := range sh.required {
		if _, ok := obj[k]; !ok {
			return shape{}, malformed(path, "%s is missing %q", sh.name, k)
		}
	}
	for _, k := range sortedKeys(obj) {
		if !contains(sh.required, k) && !contains(sh.optional, k) {
			return shape{}, malformed(field(path, k), "unexpected field %q in %s", k, sh.name)
		}
	}
	return sh, nil
}

func decodeFunction(obj map[string]any, path string) (*FunctionDecl, error) {
	if _, err := classify(obj, path, stmtShapes, stmtDiscriminators, "statement"); err != nil {
		return nil, err
	}
	name, err := decodeName(obj["function"], field(path, "function"))
	if err != nil {
		return nil, err
	}
	rawArgs, ok := obj["args"].([]any)
	if !ok {
		return nil, malformed(field(path, "args"), "parameter list must be an array, got %s", kindOf(obj["args"]))
	}
	fn := &FunctionDecl{Pos: Pos{path}, Name: name}
	seen := make(map[string]bool)
	for i, a := range rawArgs {
		p := index(field(path, "args"), i)
		param, err := decodeName(a, p)
		if err != nil {
			return nil, err
		}
		if seen[param] {
			return nil, malformed(p, "duplicate parameter %q in function %q", param, name)
		}
		seen[param] = true
		fn.Params = append(fn.Params, param)
	}
	if fn.Body, err = decodeBody(obj["block"], field(path, "block")); err != nil {
		return nil, err
	}
	return fn, nil
}

// decodeBody accepts either an array of statements or a single statement.
func decodeBody(v any, path string) ([]Stmt, error) {
	if list, ok := v.([]any); ok {
		return decodeStmtList(list, path)
	}
	s, err := decodeStmt(v, path)
	if err != nil {
		return nil, err
	}
	return []Stmt{s}, nil
}

func decodeStmtList(list []any, path string) ([]Stmt, error) {
	body := make([]Stmt, 0, len(list))
	for i, item := range list {
		s, err := decodeStmt(item, index(path, i))
		if err != nil {
			return nil, err
		}
		body = append(body, s)
	}
	return body, nil
}

func decodeStmt(v any, path string) (Stmt, error) {
	switch n := v.(type) {
	case string:
		switch n {
		case "break":
			return &Break{Pos{path}}, nil
		case "continue":
			return &Continue{Pos{path}}, nil
		}
		return nil, malformed(path, "unknown statement %q", n)
	case []any:
		body, err := decodeStmtList(n, path)
		if err != nil {
			return nil, err
		}
		return &Block{Pos: Pos{path}, Body: body}, nil
	case map[string]any:
		return decodeStmtObject(n, path)
	}
	return nil, malformed(path, "expected a statement, got %s", kindOf(v))
}

func decodeStmtObject(obj map[string]any, path string) (Stmt, error) {
	sh, err := classify(obj, path, stmtShapes, stmtDiscriminators, "statement")
	if err != nil {
		return nil, err
	}

	switch sh.required[0] {
	case "function":
		return nil, malformed(path, "function declarations are only allowed at the top level")

	case "declare", "set":
		key := sh.required[0]
		name, err := decodeName(obj[key], field(path, key))
		if err != nil {
			return nil, err
		}
		val, err := decodeExpr(obj["value"], field(path, "value"))
		if err != nil {
			return nil, err
		}
		if key == "declare" {
			return &Declare{Pos: Pos{path}, Name: name, Value: val}, nil
		}
		return &Set{Pos: Pos{path}, Name: name, Value: val}, nil

	case "if":
		return decodeIf(obj, path)

	case "while":
		cond, err := decodeExpr(obj["while"], field(path, "while"))
		if err != nil {
			return nil, err
		}
		body, err := decodeBody(obj["do"], field(path, "do"))
		if err != nil {
			return nil, err
		}
		return &While{Pos: Pos{path}, Cond: cond, Body: body}, nil

	case "until":
		body, err := decodeBody(obj["do"], field(path, "do"))
		if err != nil {
			return nil, err
		}
		cond, err := decodeExpr(obj["until"], field(path, "until"))
		if err != nil {
			return nil, err
		}
		return &DoUntil{Pos: Pos{path}, Body: body, Cond: cond}, nil

	case "iterator":
		return decodeIterator(obj, path)

	case "return":
		val, err := decodeExpr(obj["return"], field(path, "return"))
		if err != nil {
			return nil, err
		}
		return &Return{Pos: Pos{path}, Value: val}, nil

	case "call":
		return decodeCall(obj, path)
	}
	return nil, malformed(path, "unhandled statement shape %s", sh.name)
}

func decodeIf(obj map[string]any, path string) (Stmt, error) {
	p := field(path, "if")
	entries, ok := obj["if"].([]any)
	if !ok {
		return nil, malformed(p, "if must hold an array of {cond, then} entries, got %s", kindOf(obj["if"]))
	}
	if len(entries) == 0 {
		return nil, malformed(p, "if has no branches")
	}
	stmt := &If{Pos: Pos{path}}
	for i, e := range entries {
		ep := index(p, i)
		entry, ok := e.(map[string]any)
		if !ok {
			return nil, malformed(ep, "if entry must be an object, got %s", kindOf(e))
		}
		for _, k := range []string{"cond", "then"} {
			if _, ok := entry[k]; !ok {
				return nil, malformed(ep, "if entry is missing %q", k)
			}
		}
		for _, k := range sortedKeys(entry) {
			if k != "cond" && k != "then" {
				return nil, malformed(field(ep, k), "unexpected field %q in if entry", k)
			}
		}
		cond, err := decodeExpr(entry["cond"], field(ep, "cond"))
		if err != nil {
			return nil, err
		}
		then, err := decodeBody(entry["then"], field(ep, "then"))
		if err != nil {
			return nil, err
		}
		stmt.Branches = append(stmt.Branches, Branch{Pos: Pos{ep}, Cond: cond, Then: then})
	}
	if raw, ok := obj["else"]; ok {
		els, err := decodeBody(raw, field(path, "else"))
		if err != nil {
			return nil, err
		}
		stmt.Else = els
	}
	return stmt, nil
}

func decodeIterator(obj map[string]any, path string) (Stmt, error) {
	name, err := decodeName(obj["iterator"], field(path, "iterator"))
	if err != nil {
		return nil, err
	}
	it := &Iterator{Pos: Pos{path}, Var: name}
	if it.From, err = decodeExpr(obj["from"], field(path, "from")); err != nil {
		return nil, err
	}
	if it.To, err = decodeExpr(obj["to"], field(path, "to")); err != nil {
		return nil, err
	}
	if raw, ok := obj["step"]; ok {
		if it.Step, err = decodeExpr(raw, field(path, "step")); err != nil {
			return nil, err
		}
	}
	if it.Body, err = decodeBody(obj["do"], field(path, "do")); err != nil {
		return nil, err
	}
	return it, nil
}

func decodeCall(obj map[string]any, path string) (*Call, error) {
	name, err := decodeName(obj["call"], field(path, "call"))
	if err != nil {
		return nil, err
	}
	call := &Call{Pos: Pos{path}, Name: name}
	raw, ok := obj["args"]
	if !ok {
		return call, nil
	}
	args, ok := raw.([]any)
	if !ok {
		return nil, malformed(field(path, "args"), "call arguments must be an array, got %s", kindOf(raw))
	}
	for i, a := range args {
		e, err := decodeExpr(a, index(field(path, "args"), i))
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, e)
	}
	return call, nil
}

func decodeExpr(v any, path string) (Expr, error) {
	switch n := v.(type) {
	case json.Number:
		f, err := strconv.ParseFloat(n.String(), 64)
		if err != nil || math.IsInf(f, 0) {
			return nil, malformed(path, "number %s is not a finite 64-bit float", n)
		}
		return &Number{Pos: Pos{path}, Value: f}, nil
	case string:
		if !IsIdentifier(n) {
			return nil, malformed(path, "invalid identifier %q", n)
		}
		return &Ident{Pos: Pos{path}, Name: n}, nil
	case map[string]any:
		return decodeExprObject(n, path)
	}
	return nil, malformed(path, "expected an expression, got %s", kindOf(v))
}

func decodeExprObject(obj map[string]any, path string) (Expr, error) {
	sh, err := classify(obj, path, exprShapes, exprDiscriminators, "expression")
	if err != nil {
		return nil, err
	}
	switch sh.required[0] {
	case "binop":
		sym, _ := obj["binop"].(string)
		op, ok := LookupBinary(sym)
		if !ok {
			return nil, malformed(field(path, "binop"), "unknown binary operator %v", obj["binop"])
		}
		l, err := decodeExpr(obj["argl"], field(path, "argl"))
		if err != nil {
			return nil, err
		}
		r, err := decodeExpr(obj["argr"], field(path, "argr"))
		if err != nil {
			return nil, err
		}
		return &Binary{Pos: Pos{path}, Op: op, Left: l, Right: r}, nil
	case "unop":
		sym, _ := obj["unop"].(string)
		op, ok := LookupUnary(sym)
		if !ok {
			return nil, malformed(field(path, "unop"), "unknown unary operator %v", obj["unop"])
		}
		arg, err := decodeExpr(obj["arg"], field(path, "arg"))
		if err != nil {
			return nil, err
		}
		return &Unary{Pos: Pos{path}, Op: op, Arg: arg}, nil
	}
	return decodeCall(obj, path)
}

func decodeName(v any, path string) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", malformed(path, "expected a name, got %s", kindOf(v))
	}
	if !IsIdentifier(s) {
		return "", malformed(path, "invalid name %q", s)
	}
	return s, nil
}

// IsIdentifier reports whether s is a valid variable or function name:
// a letter or underscore followed by letters, digits, or underscores.
func IsIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case json.Number:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return "unknown value"
}

func sortedKeys(obj map[string]any) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
