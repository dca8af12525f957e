// Package wasmbridge provides a deterministic execution bridge for
// WebAssembly modules.
//
// The bridge loads core WASM modules, rewrites their bytecode to enforce
// call-depth and memory-growth limits, compiles them once per content
// hash, and executes exported functions on pooled single-owner instances
// whose memory is restored to a trusted baseline between calls.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct
// responsibilities:
//
//	wasmbridge/          Root package with the Memory and Allocator interfaces
//	├── bridge/          High-level API: module cache, instance pool, calls
//	├── engine/          Execution boundary and the wazero implementation
//	├── instrument/      Bytecode rewriting for call-depth and growth limits
//	├── memory/          Linear memory manager: bounds, snapshots, arena
//	├── hostfunc/        Host function registry and dispatch adapters
//	├── wasm/            Core WASM binary codec (parse, rewrite, encode)
//	├── wat/             WAT text format to WASM binary compiler
//	└── errors/          Structured error taxonomy
//
// # Quick Start
//
// Load a module and call an export:
//
//	b, err := bridge.New(bridge.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer b.Close(ctx)
//
//	results, err := b.Call(ctx, wasmBytes, "add", 3, 4)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(results[0]) // 7
//
// Byte payloads travel through guest memory with the packed
// pointer+length convention:
//
//	reply, err := b.CallBytes(ctx, wasmBytes, "handle", []byte(`{"op":"ping"}`))
//
// # Host Functions
//
// Register Go handlers before the first call; guests import them by
// namespace and name:
//
//	reg := hostfunc.NewRegistry()
//	err := reg.RegisterBytes("env", "fetch", func(ctx context.Context, payload []byte) ([]byte, error) {
//	    return store.Lookup(payload)
//	})
//
// # Determinism
//
// Instrumentation is pure: identical module bytes and limits produce
// identical rewritten bytes, so compiled artifacts can be cached by
// content hash. Between calls an instance's linear memory and exported
// mutable globals are restored to their post-instantiation baseline;
// an instance that traps, grows its memory, or observes a canceled
// context is discarded instead of reused.
//
// # Memory Model
//
// WASM linear memory can only grow, never shrink. This is a WebAssembly
// specification limitation. The bridge therefore evicts instances whose
// memory grew during a call rather than carrying the larger footprint
// in the idle pool.
package wasmbridge
