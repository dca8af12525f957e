// Package bridge provides the high-level API for deterministic WASM
// execution.
//
// # Quick Start
//
//	ctx := context.Background()
//	b, err := bridge.New(ctx, bridge.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer b.Close(ctx)
//
//	// Invoke an export with erased scalar arguments
//	results, err := b.Call(ctx, wasmBytes, "add", 2, 3)
//
//	// Or exchange opaque byte payloads
//	resp, err := b.CallBytes(ctx, wasmBytes, "handle", []byte(`{"op":"ping"}`))
//
// Every call instruments the module with a call-depth counter, compiles
// it through a content-addressed cache, and runs it on a pooled
// instance that is restored to its post-instantiation baseline before
// reuse. Two calls with the same bytes, export, and arguments see the
// same module state.
//
// # Host Functions
//
// Guests import host functions from the bridge's dispatch table.
// Register them before the first call; the table freezes when the first
// module instantiates.
//
//	b.Hosts().Register("env", "now", bridge.Signature{...}, myClock)
//	b.Hosts().RegisterBytes("env", "fetch", myFetch)
//
// A module importing anything absent from the table fails at
// instantiation with an unresolved-import error naming every missing
// function, before any guest code runs.
//
// # Limits
//
// Execution is always metered. Config.Limits bounds the guest call
// depth and the linear memory page count; zero fields select the
// documented defaults rather than disabling the limit. Exceeding a
// limit surfaces as a structured trap or grow error and poisons the
// instance it happened on.
//
// # Versioning
//
// Modules may export interface_version declaring the host interface
// revision they were built against:
//
//	vi, err := b.ProbeVersion(ctx, wasmBytes)
//	if vi.Legacy {
//	    // module predates the version export
//	}
//
// # Thread Safety
//
// Bridge is safe for concurrent use. Concurrent calls against the same
// module bytes share one compiled artifact and run on separate
// instances.
//
// # Errors
//
// Every failure is an *errors.Error carrying a phase, a kind, and for
// guest faults a trap code. Faults that leave an instance in an unknown
// state (traps, host function failures, memory violations) evict it;
// clean completions return it to the idle pool.
package bridge
