package asm

import (
	"fmt"
	"strings"
	"testing"
)

// benchModule builds a module of n functions, each a counted loop.
func benchModule(n int) string {
	var sb strings.Builder
	sb.WriteString("(module\n  (global $out (mut f64) (f64.const 0))\n  (export \"out\" (global $out))\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, `  (func $f%d (param $n.0 f64) (result f64)
    (local $i.1 f64)
    block $brk.0
      loop $loop.0
        local.get $i.1
        local.get $n.0
        f64.ge
        br_if $brk.0
        block $cont.0
          global.get $out
          local.get $i.1
          f64.add
          global.set $out
        end
        local.get $i.1
        f64.const 1
        f64.add
        local.set $i.1
        br $loop.0
      end
    end
    f64.const 0
  )
`, i)
	}
	sb.WriteString(")\n")
	return sb.String()
}

var (
	smallModule  = benchModule(1)
	mediumModule = benchModule(20)
	largeModule  = benchModule(400)
)

func BenchmarkAssemble_Small(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := Assemble(smallModule); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkAssemble_Medium(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := Assemble(mediumModule); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkAssemble_Large(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := Assemble(largeModule); err != nil {
			b.Fatal(err)
		}
	}
}
