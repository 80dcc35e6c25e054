package compiler

import (
	"strings"
	"testing"

	"github.com/compiladores/jsonasm-wasm/pkg/ast"
)

func TestSymbolTable(t *testing.T) {
	t.Run("OutIsPredeclared", func(t *testing.T) {
		s := NewSymbolTable()
		sym, ok := s.Lookup("out")
		if !ok || sym.Scope != ScopeGlobal || sym.Label != "out" {
			t.Errorf("out = %+v, %v", sym, ok)
		}
	})

	t.Run("TopLevelDeclareReusesGlobal", func(t *testing.T) {
		s := NewSymbolTable()
		s.EnterEntry()
		a := s.Declare("x")
		b := s.Declare("x")
		if a != b || a.Scope != ScopeGlobal {
			t.Errorf("redeclared global: %+v vs %+v", a, b)
		}
		if got := len(s.Globals()); got != 2 {
			t.Errorf("globals = %d, want 2 (out, x)", got)
		}
	})

	t.Run("BlockDeclareShadows", func(t *testing.T) {
		s := NewSymbolTable()
		s.EnterEntry()
		outer, _ := s.Assign("x")
		s.EnterScope(FrameBlock)
		inner := s.Declare("x")
		if inner.Scope != ScopeLocal || inner.Label != "x.0" {
			t.Errorf("inner = %+v, want local x.0", inner)
		}
		if got, _ := s.Lookup("x"); got != inner {
			t.Errorf("lookup inside block = %+v, want %+v", got, inner)
		}
		s.ExitScope()
		if got, _ := s.Lookup("x"); got != outer {
			t.Errorf("lookup after block = %+v, want %+v", got, outer)
		}
		locals := s.ExitFunction()
		if len(locals) != 1 || locals[0].Label != "x.0" {
			t.Errorf("entry locals = %+v", locals)
		}
	})

	t.Run("SetInBlockAtTopLevelMakesGlobal", func(t *testing.T) {
		s := NewSymbolTable()
		s.EnterEntry()
		s.EnterScope(FrameBlock)
		sym, created := s.Assign("g")
		s.ExitScope()
		if !created || sym.Scope != ScopeGlobal {
			t.Errorf("Assign(g) = %+v, created %v", sym, created)
		}
		if _, ok := s.Lookup("g"); !ok {
			t.Error("g not visible after the block closed")
		}
	})

	t.Run("SetInFunctionLandsInFunctionFrame", func(t *testing.T) {
		s := NewSymbolTable()
		params := s.EnterFunction([]string{"a", "b"})
		if len(params) != 2 || params[1].Label != "b.1" {
			t.Fatalf("params = %+v", params)
		}
		s.EnterScope(FrameBlock)
		s.EnterScope(FrameLoop)
		z, created := s.Assign("z")
		s.ExitScope()
		s.ExitScope()
		if !created || z.Scope != ScopeLocal || z.Label != "z.2" {
			t.Errorf("Assign(z) = %+v, created %v", z, created)
		}
		if got, ok := s.Lookup("z"); !ok || got != z {
			t.Errorf("z not visible in the function frame: %+v %v", got, ok)
		}
		locals := s.ExitFunction()
		if len(locals) != 1 || locals[0] != z {
			t.Errorf("function locals = %+v", locals)
		}
		if _, ok := s.Lookup("z"); ok {
			t.Error("z leaked out of the function")
		}
	})

	t.Run("HiddenCellsAreUnreachable", func(t *testing.T) {
		s := NewSymbolTable()
		s.EnterFunction(nil)
		h := s.Hidden("i.to")
		if h.Label != "i.to.0" {
			t.Errorf("hidden label = %q", h.Label)
		}
		if _, ok := s.Lookup("i.to"); ok {
			t.Error("hidden cell resolved by name")
		}
	})

	t.Run("Functions", func(t *testing.T) {
		s := NewSymbolTable()
		fn := &ast.FunctionDecl{Name: "add", Params: []string{"x", "y"}}
		if _, ok := s.DefineFunction(fn, "add"); !ok {
			t.Fatal("first definition rejected")
		}
		if _, ok := s.DefineFunction(fn, "add"); ok {
			t.Error("duplicate definition accepted")
		}
		info, ok := s.GetFunction("add")
		if !ok || info.Label != "add" || len(info.Params) != 2 {
			t.Errorf("GetFunction(add) = %+v, %v", info, ok)
		}
	})

	t.Run("StringIsDeterministic", func(t *testing.T) {
		build := func() string {
			s := NewSymbolTable()
			s.EnterEntry()
			for _, n := range []string{"c", "a", "b"} {
				s.Assign(n)
			}
			s.DefineFunction(&ast.FunctionDecl{Name: "f", Params: []string{"p"}}, "f")
			return s.String()
		}
		first := build()
		for i := 0; i < 5; i++ {
			if got := build(); got != first {
				t.Fatalf("String() changed between runs:\n%s\nvs\n%s", first, got)
			}
		}
		if !strings.Contains(first, "Params: p") || strings.Index(first, "  c ") > strings.Index(first, "  a ") {
			t.Errorf("unexpected dump:\n%s", first)
		}
	})
}
