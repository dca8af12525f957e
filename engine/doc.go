// Package engine wraps wazero behind a small execution boundary.
//
// The boundary has four pieces:
//
//	Engine   - compiles module bytes, hosts registered host modules
//	Artifact - a compiled module, instantiable many times
//	Instance - one running module with its own memory and globals
//	Memory   - the raw view of an instance's linear memory
//
// Callers above this package never touch wazero types: scalars cross the
// boundary as erased uint64 words, host functions are bound from plain
// descriptors, and guest faults come back as structured trap errors.
// WazeroEngine is the provided implementation; any engine satisfying the
// interfaces can stand in.
//
// # Cancellation
//
// The runtime is built with close-on-context-done, so a canceled or
// expired context aborts in-flight execution. The instance involved is
// closed by the runtime and must be discarded, never reused.
//
// # Thread safety
//
// WazeroEngine and artifacts are safe for concurrent use. An Instance
// is single-owner; the caller serializes access to it.
package engine
