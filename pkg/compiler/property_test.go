package compiler

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/compiladores/jsonasm-wasm/pkg/ast"
	"github.com/compiladores/jsonasm-wasm/pkg/vm"
)

func runQuiet(src string) (float64, error) {
	_, img, err := Compile([]byte(src))
	if err != nil {
		return 0, err
	}
	return vm.RunEntry(img, DefaultEntryName)
}

func TestProperty_Compiler(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("generation is deterministic", prop.ForAll(
		func(a, b int, op string) bool {
			src := fmt.Sprintf(`[{"set":"x","value":%d},{"iterator":"i","from":0,"to":%d,"do":[
				{"set":"x","value":{"binop":%q,"argl":"x","argr":"i"}}]},
				{"set":"out","value":{"binop":"^","argl":"x","argr":0.5}}]`, a, b, op)
			prog, err := ast.Decode([]byte(src))
			if err != nil {
				return false
			}
			first, err := Generate(prog)
			if err != nil {
				return false
			}
			for i := 0; i < 3; i++ {
				again, err := Generate(prog)
				if err != nil || again != first {
					return false
				}
			}
			return true
		},
		gen.IntRange(-100, 100),
		gen.IntRange(0, 20),
		gen.OneConstOf("+", "-", "*", "%", "&", "|", "<"),
	))

	properties.Property("comparisons and logic yield 0 or 1", prop.ForAll(
		func(a, b float64, op string) bool {
			src := fmt.Sprintf(`[{"set":"out","value":{"binop":%q,"argl":%s,"argr":%s}}]`, op, formatFloat(a), formatFloat(b))
			out, err := runQuiet(src)
			return err == nil && (out == 0 || out == 1)
		},
		gen.Float64Range(-1e6, 1e6),
		gen.Float64Range(-1e6, 1e6),
		gen.OneConstOf("<", ">", "<=", ">=", "==", "~=", "and", "or"),
	))

	properties.Property("iterator sums an arithmetic series", prop.ForAll(
		func(from, count, step int) bool {
			to := from + (count-1)*step
			src := fmt.Sprintf(`[{"set":"acc","value":0},
				{"iterator":"i","from":%d,"to":%d,"step":%d,"do":[{"set":"acc","value":{"binop":"+","argl":"acc","argr":"i"}}]},
				{"set":"out","value":"acc"}]`, from, to, step)
			out, err := runQuiet(src)
			want := 0
			for k := 0; k < count; k++ {
				want += from + k*step
			}
			return err == nil && out == float64(want)
		},
		gen.IntRange(-50, 50),
		gen.IntRange(1, 30),
		gen.IntRange(1, 5),
	))

	properties.Property("a shadowing block leaves the outer binding untouched", prop.ForAll(
		func(outer, inner int) bool {
			src := fmt.Sprintf(`[{"set":"v","value":%d},
				[{"declare":"v","value":%d},{"set":"v","value":{"binop":"*","argl":"v","argr":2}}],
				{"set":"out","value":"v"}]`, outer, inner)
			out, err := runQuiet(src)
			return err == nil && out == float64(outer)
		},
		gen.IntRange(-1000, 1000),
		gen.IntRange(-1000, 1000),
	))

	properties.TestingRun(t)
}
