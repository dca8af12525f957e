// Package memory manages one instance's linear memory for the bridge.
//
// Manager layers three concerns over the engine's raw view:
//
//   - bounds-checked access with structured out-of-bounds errors, in
//     byte-slice and little-endian scalar forms
//   - a growth limit in pages, checked before the engine sees the
//     request so refused grows never change the size
//   - baseline snapshots used to restore a pooled instance between
//     calls, and a bump-allocated arena for the byte-payload call ABI
//
// Linear memory never shrinks, so Restore refuses a memory that grew
// after its snapshot; callers evict the instance instead of reusing it.
package memory
