// Package wat compiles WebAssembly Text format into binary modules.
//
// Parsing produces a wasm.Module, so the binary output comes from the same
// encoder the rest of the project uses for rewriting modules. Text sources
// are handy for tests and examples where checking in .wasm files would
// obscure what a module does.
//
// Basic usage:
//
//	bin, err := wat.Compile(`(module
//		(func (export "add") (param i32 i32) (result i32)
//			(i32.add (local.get 0) (local.get 1)))
//	)`)
//
// Both folded expressions and flat instruction sequences are accepted, with
// named or numeric indices throughout. The supported surface covers WASM 2.0
// core: multi-value signatures and block types, imports and exports for all
// four kinds, active/passive/declarative element and data segments (with
// inline memory data and inline table elem forms), bulk memory and table
// instructions, reference types, saturating truncation, sign extension,
// tail calls, multi-memory, and line (;;) plus nested block (; ;) comments.
//
// Not supported: SIMD (v128), threads/atomics, exception handling, GC types.
package wat
