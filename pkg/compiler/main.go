// Package compiler lowers jsonasm programs to WebAssembly text.
//
// Pipeline: JSON → ast.Decode → Generate → WAT text → asm.Assemble (for
// the reference machine) or wat2wasm (for a real host).
//
// Every number is an f64. The module exports the mutable global "out",
// which starts at 0, and a parameterless entry function ("#main" by
// default) that runs the top-level statements. Each declared function
// becomes a "(func $name ...)" taking and returning f64 values.
package compiler
