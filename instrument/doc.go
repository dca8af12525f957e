// Package instrument rewrites WebAssembly modules to enforce execution
// limits that hold identically across engine backends.
//
// # Injections
//
// Call-depth metering adds one exported mutable i32 counter and wraps
// every call and call_indirect site with an increment, a limit check
// that traps on excess, and a decrement after the call returns. The
// increment and decrement sit on a straight-line path at the call site,
// so no branch in guest control flow can skip half of the pair. The
// counter is exported under DepthGlobalExport: after a trap, a value
// above the limit tells the host the trap was a depth trip rather than
// a guest unreachable.
//
// Memory-growth guarding appends a function that refuses growth past a
// page limit by returning -1, the WASM growth-failure sentinel, and
// rewrites every memory.grow to call it. The declared maximum of the
// module's memory is also clamped to the same limit so the engine
// enforces the bound on growth paths the rewrite cannot see.
//
// # Determinism
//
// Transform is pure. Identical input bytes and limits produce identical
// output bytes, which the module cache relies on when it hashes the
// instrumented binary. All additions append to the type, function,
// global, and export index spaces; existing indices are never
// renumbered.
//
// # Usage
//
//	out, err := instrument.Transform(raw, instrument.Limits{
//	    MaxCallDepth:   1024,
//	    MaxMemoryPages: 256,
//	})
//
// A zero limit disables its injection. Transform with zero limits still
// decodes and re-encodes the module, so malformed bytes fail the same
// way under any configuration.
package instrument
