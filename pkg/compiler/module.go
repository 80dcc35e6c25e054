package compiler

import (
	"fmt"
	"strings"
)

// Func is one compiled callable unit.
type Func struct {
	Label  string
	Params []Symbol
	Locals []Symbol
	Result bool   // yields one f64
	Export string // export name, empty when not exported
	Body   string // instructions, one per line, unindented
}

// Module is a compiled program ready to render as WebAssembly text.
type Module struct {
	Globals []Symbol // "out" first
	Funcs   []*Func  // user functions, then runtime helpers, then the entry
}

// Entry returns the exported parameterless unit, or nil.
func (m *Module) Entry() *Func {
	for _, f := range m.Funcs {
		if f.Export != "" && !f.Result && len(f.Params) == 0 {
			return f
		}
	}
	return nil
}

// String renders the module in WebAssembly text format.
func (m *Module) String() string {
	var sb strings.Builder
	sb.WriteString("(module\n")
	for _, g := range m.Globals {
		fmt.Fprintf(&sb, "  (global $%s (mut f64) (f64.const 0))\n", g.Label)
		if g.Name == "out" {
			fmt.Fprintf(&sb, "  (export \"out\" (global $%s))\n", g.Label)
		}
	}
	for _, f := range m.Funcs {
		sb.WriteString("  (func $" + f.Label)
		for _, p := range f.Params {
			fmt.Fprintf(&sb, " (param $%s f64)", p.Label)
		}
		if f.Result {
			sb.WriteString(" (result f64)")
		}
		sb.WriteString("\n")
		for _, l := range f.Locals {
			fmt.Fprintf(&sb, "    (local $%s f64)\n", l.Label)
		}
		for _, ins := range strings.SplitAfter(f.Body, "\n") {
			if ins == "" {
				continue
			}
			sb.WriteString("    " + ins)
		}
		sb.WriteString("  )\n")
		if f.Export != "" {
			fmt.Fprintf(&sb, "  (export %q (func $%s))\n", f.Export, f.Label)
		}
	}
	sb.WriteString(")\n")
	return sb.String()
}
