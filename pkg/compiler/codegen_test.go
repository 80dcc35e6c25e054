package compiler

import (
	"errors"
	"strings"
	"testing"

	"github.com/compiladores/jsonasm-wasm/pkg/ast"
	"github.com/compiladores/jsonasm-wasm/pkg/diag"
	"github.com/compiladores/jsonasm-wasm/pkg/vm"
)

func generate(t *testing.T, src string, opts ...Option) string {
	t.Helper()
	prog, err := ast.Decode([]byte(src))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	wat, err := Generate(prog, opts...)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	return wat
}

func run(t *testing.T, src string) float64 {
	t.Helper()
	wat, img, err := Compile([]byte(src))
	if err != nil {
		t.Fatalf("Compile failed: %v\n%s", err, wat)
	}
	out, err := vm.RunEntry(img, DefaultEntryName)
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, wat)
	}
	return out
}

func TestGenerateShape(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains []string
		absent   []string
	}{
		{
			name:  "out global and entry export",
			input: `[{"set":"out","value":{"binop":"+","argl":1,"argr":2}}]`,
			contains: []string{
				"(global $out (mut f64) (f64.const 0))",
				`(export "out" (global $out))`,
				"(func $#main",
				"f64.const 1",
				"f64.const 2",
				"f64.add",
				"global.set $out",
				`(export "#main" (func $#main))`,
			},
			absent: []string{"$rt."},
		},
		{
			name: "function with params and default return",
			input: `[{"function":"add","args":["a","b"],"block":[{"return":{"binop":"+","argl":"a","argr":"b"}}]},
				{"set":"out","value":{"call":"add","args":[1,2]}}]`,
			contains: []string{
				"(func $add (param $a.0 f64) (param $b.1 f64) (result f64)",
				"local.get $a.0",
				"local.get $b.1",
				"return",
				"call $add",
			},
		},
		{
			name:  "comparison converts to f64",
			input: `[{"set":"out","value":{"binop":"<","argl":1,"argr":2}}]`,
			contains: []string{"f64.lt", "f64.convert_i32_u"},
		},
		{
			name:  "logical operators combine truth values",
			input: `[{"set":"out","value":{"binop":"and","argl":3,"argr":{"binop":"or","argl":0,"argr":5}}}]`,
			contains: []string{"f64.ne", "i32.or", "i32.and", "f64.convert_i32_u"},
		},
		{
			name:  "bitwise goes through i64",
			input: `[{"set":"out","value":{"binop":">>","argl":-8,"argr":1}}]`,
			contains: []string{"i64.trunc_sat_f64_s", "i64.shr_s", "f64.convert_i64_s"},
		},
		{
			name:  "integral power uses ipow only",
			input: `[{"set":"out","value":{"binop":"^","argl":2,"argr":10}}]`,
			contains: []string{"call $rt.ipow", "(func $rt.ipow"},
			absent:   []string{"(func $rt.pow", "(func $rt.exp", "(func $rt.ln"},
		},
		{
			name:  "general power pulls in the whole runtime",
			input: `[{"set":"x","value":0.5},{"set":"out","value":{"binop":"^","argl":2,"argr":"x"}}]`,
			contains: []string{"call $rt.pow", "(func $rt.pow", "(func $rt.ipow", "(func $rt.exp", "(func $rt.ln"},
		},
		{
			name:  "while loop labels",
			input: `[{"set":"i","value":0},{"while":{"binop":"<","argl":"i","argr":3},"do":[{"set":"i","value":{"binop":"+","argl":"i","argr":1}}]}]`,
			contains: []string{"block $brk.0", "loop $loop.0", "i32.eqz", "br_if $brk.0", "block $cont.0", "br $loop.0"},
		},
		{
			name:  "iterator hidden bounds",
			input: `[{"iterator":"k","from":0,"to":3,"do":[]}]`,
			contains: []string{"(local $k.to.0 f64)", "(local $k.step.1 f64)", "(local $k.2 f64)"},
		},
		{
			name:  "modulo uses hidden operands",
			input: `[{"set":"out","value":{"binop":"%","argl":7,"argr":3}}]`,
			contains: []string{"local.set $mod.a.0", "local.set $mod.b.1", "f64.trunc"},
		},
		{
			name:  "call statement drops its result",
			input: `[{"function":"f","args":[],"block":[]},{"call":"f"}]`,
			contains: []string{"call $f", "drop"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			wat := generate(t, tc.input)
			for _, want := range tc.contains {
				if !strings.Contains(wat, want) {
					t.Errorf("expected WAT to contain %q\n%s", want, wat)
				}
			}
			for _, bad := range tc.absent {
				if strings.Contains(wat, bad) {
					t.Errorf("expected WAT not to contain %q\n%s", bad, wat)
				}
			}
		})
	}
}

func TestEntryName(t *testing.T) {
	wat := generate(t, `[]`, WithEntryName("_start"))
	if !strings.Contains(wat, `(export "_start" (func $#main))`) {
		t.Errorf("custom entry export missing:\n%s", wat)
	}

	prog, _ := ast.Decode([]byte(`[]`))
	for _, bad := range []string{"", "out", `a"b`, "tab\there"} {
		if _, err := Generate(prog, WithEntryName(bad)); err == nil {
			t.Errorf("entry name %q accepted", bad)
		}
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		kind  diag.Kind
		path  string
	}{
		{"unbound read", `[{"set":"out","value":"nope"}]`, diag.UnboundVariable, "/0/value"},
		{"declared after use", `[{"set":"out","value":"x"},{"declare":"x","value":1}]`, diag.UnboundVariable, "/0/value"},
		{"block local does not escape", `[[{"declare":"y","value":1}],{"set":"out","value":"y"}]`, diag.UnboundVariable, "/1/value"},
		{"unknown function", `[{"set":"out","value":{"call":"f","args":[]}}]`, diag.UnknownFunction, "/0/value"},
		{"arity", `[{"function":"f","args":["a"],"block":[]},{"call":"f","args":[1,2]}]`, diag.ArityMismatch, "/1"},
		{"break outside loop", `["break"]`, diag.BreakOutsideLoop, "/0"},
		{"continue outside loop", `[{"if":[{"cond":1,"then":["continue"]}]}]`, diag.ContinueOutsideLoop, "/0/if/0/then/0"},
		{"break inside function outside loop", `[{"while":1,"do":[]},{"function":"f","args":[],"block":["break"]}]`, diag.BreakOutsideLoop, "/1/block/0"},
		{"return at top level", `[{"return":1}]`, diag.ReturnOutsideFunction, "/0"},
		{"duplicate function", `[{"function":"f","args":[],"block":[]},{"function":"f","args":[],"block":[]}]`, diag.DuplicateFunction, "/1"},
		{"function sees no caller locals", `[{"function":"f","args":[],"block":[{"return":"z"}]},[{"declare":"z","value":1},{"call":"f"}]]`, diag.UnboundVariable, "/0/block/0/return"},
		{"malformed", `[{"set":"x"}]`, diag.MalformedProgram, "/0"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Compile([]byte(tc.input))
			if err == nil {
				t.Fatal("Compile succeeded, want error")
			}
			if got := diag.KindOf(err); got != tc.kind {
				t.Errorf("kind = %q, want %q (%v)", got, tc.kind, err)
			}
			var d *diag.Error
			if !errors.As(err, &d) || d.Path != tc.path {
				t.Errorf("error = %v, want path %q", err, tc.path)
			}
		})
	}
}

func TestRuntimeAccuracy(t *testing.T) {
	// base, exponent, expected
	tests := []struct {
		b, e, want float64
	}{
		{2, 0.5, 1.4142135623730951},
		{10, -0.5, 0.31622776601683794},
		{7, 2.5, 129.64181424216494},
		{0.5, 3.25, 0.10511205190671431},
		{2, 52.5, 6369051672525773},
		{1e-3, 0.25, 0.1778279410038923},
	}
	for _, tc := range tests {
		src := `[{"set":"b","value":` + formatFloat(tc.b) + `},{"set":"e","value":` + formatFloat(tc.e) + `},` +
			`{"set":"out","value":{"binop":"^","argl":"b","argr":"e"}}]`
		got := run(t, src)
		if rel := (got - tc.want) / tc.want; rel > 1e-12 || rel < -1e-12 {
			t.Errorf("%v ^ %v = %v, want %v (rel err %g)", tc.b, tc.e, got, tc.want, rel)
		}
	}
}

func TestRuntimeSpecialValues(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want float64
	}{
		{"zero to the zero", `[{"set":"out","value":{"binop":"^","argl":0,"argr":0}}]`, 1},
		{"negative base integral exponent", `[{"set":"out","value":{"binop":"^","argl":-2,"argr":3}}]`, -8},
		{"large integral exponent", `[{"set":"out","value":{"binop":"^","argl":1.5,"argr":40}}]`, 11057332.320940012},
		{"division by zero", `[{"set":"out","value":{"binop":"/","argl":1,"argr":0}}]`, 1 / zero()},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := run(t, tc.src)
			if got != tc.want {
				if d := (got - tc.want) / tc.want; d > 1e-12 || d < -1e-12 {
					t.Errorf("got %v, want %v", got, tc.want)
				}
			}
		})
	}
}

func zero() float64 { return 0 }
