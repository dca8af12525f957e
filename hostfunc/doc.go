// Package hostfunc is the dispatch table for functions the host exposes
// to guests. Handlers are registered under (namespace, name) before any
// module is instantiated; the table freezes at first instantiation and
// is read-only during calls, so dispatch never takes a lock on the call
// path.
//
// Two handler variants exist and registration picks exactly one:
//
//   - RawFunc works on the erased scalar stack, for handlers that match
//     an arbitrary core signature.
//   - BytesFunc works on byte payloads under the packed ptr+len ABI:
//     the guest passes (i32 ptr, i32 len), the handler returns bytes,
//     and the adapter hands back an i64 word packing the response
//     region. PackPtrLen and UnpackPtrLen implement the word format for
//     guests and embedders.
//
// Imports resolve at instantiation time: CheckImports compares a
// module's declared imports against the table and reports every
// unresolved or mismatched one at once. Calls never fail late on a
// missing import.
//
// A handler error aborts the in-flight guest call and poisons the
// instance. The structured failure travels on the Invocation bound into
// the call's context, because the engine's abort path does not preserve
// error chains.
package hostfunc
