// Package wasm provides WebAssembly binary format parsing and encoding.
//
// This package implements a parser and encoder for core WebAssembly 2.0
// binary modules. It is the foundation for bytecode rewriting: a module
// is parsed, sections are modified in place, and the result is encoded
// back to binary.
//
// # Supported Features
//
//	WebAssembly 2.0:
//	  - Core value types (i32, i64, f32, f64)
//	  - Functions, tables, memories, globals
//	  - Control flow, calls, local/global access
//	  - Memory and table operations
//	  - Import/export of all definitions
//	  - Bulk memory (memory.copy, memory.fill, data.drop)
//	  - Reference types (funcref, externref, ref.null, ref.is_null)
//	  - SIMD (128-bit vector operations, v128 type)
//	  - Sign extension and saturating truncation
//
//	Decoded but rejected downstream:
//	  - Tail calls (return_call, return_call_indirect)
//
//	Not supported (parse error):
//	  - GC (structs, arrays, typed references)
//	  - Exception handling (tags, try/catch, throw)
//	  - Threads (atomic operations, shared memory)
//	  - Memory64 (64-bit memory addressing)
//
// # Parsing
//
// Parse a WebAssembly module from binary:
//
//	data, _ := os.ReadFile("module.wasm")
//	module, err := wasm.ParseModule(data)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Parse with validation enabled:
//
//	module, err := wasm.ParseModuleValidate(data)
//
// # Encoding
//
// Encode a module back to binary:
//
//	encoded := module.Encode()
//
// Round-trip parsing and encoding preserves module semantics:
//
//	original, _ := wasm.ParseModule(data)
//	roundtrip, _ := wasm.ParseModule(original.Encode())
//	// original and roundtrip are semantically equivalent
//
// # Module Structure
//
// A parsed module contains all sections:
//
//	module.Types      []FuncType    // Function signatures
//	module.Funcs      []uint32      // Type indices for functions
//	module.Tables     []TableType   // Table definitions
//	module.Memories   []MemoryType  // Memory definitions
//	module.Globals    []Global      // Global definitions
//	module.Imports    []Import      // Imported definitions
//	module.Exports    []Export      // Exported definitions
//	module.Code       []FuncBody    // Function bodies
//	module.Data       []DataSegment // Data segments
//	module.Elements   []Element     // Element segments
//
// # Instructions
//
// Decode instructions from bytecode:
//
//	instructions, err := wasm.DecodeInstructions(code)
//	for _, instr := range instructions {
//	    fmt.Printf("%s\n", instr.Opcode)
//	}
//
// Encode instructions back to bytecode:
//
//	encoded := wasm.EncodeInstructions(instructions)
//
// # Validation
//
// Validate module structure:
//
//	if err := module.Validate(); err != nil {
//	    log.Printf("invalid module: %v", err)
//	}
//
// Validation checks:
//   - Type indices are in bounds
//   - Function signatures match
//   - Import/export names are valid UTF-8
//   - Table and memory limits are valid
//   - Section counts are consistent
//
// # LEB128 Encoding
//
// The package provides LEB128 utilities used throughout:
//
//	n, err := wasm.ReadLEB128u(r)  // Unsigned
//	n, err := wasm.ReadLEB128s(r)  // Signed
package wasm
