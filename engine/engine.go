package engine

import (
	"context"
	"fmt"
)

// PageSize is the WebAssembly linear memory page size in bytes.
const PageSize = 65536

// ValueType identifies a core scalar crossing the engine boundary. The
// values match the binary encoding, so conversions to and from wazero's
// api.ValueType are plain casts.
type ValueType byte

const (
	I32 ValueType = 0x7F
	I64 ValueType = 0x7E
	F32 ValueType = 0x7D
	F64 ValueType = 0x7C
)

// String returns the WAT spelling of the type.
func (v ValueType) String() string {
	switch v {
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	}
	return fmt.Sprintf("valuetype(0x%02x)", byte(v))
}

// ImportedFunc names one function import a compiled module declares.
type ImportedFunc struct {
	Namespace string
	Name      string
	Params    []ValueType
	Results   []ValueType
}

// ExportInfo describes one function export of a compiled module.
type ExportInfo struct {
	Name    string
	Params  []ValueType
	Results []ValueType
}

// HostCallback runs on the guest's calling goroutine when an imported
// function is invoked. Parameters arrive in stack[:len(params)] and
// results are written back into the same slots. mem views the calling
// instance's linear memory and is nil when the caller declares none.
// A non-nil error aborts the in-flight guest call.
type HostCallback func(ctx context.Context, mem Memory, stack []uint64) error

// HostFunc is one host function exposed to guests under a namespace.
type HostFunc struct {
	Name    string
	Params  []ValueType
	Results []ValueType
	Fn      HostCallback
}

// HostModule groups host functions under one import namespace.
type HostModule struct {
	Namespace string
	Funcs     []HostFunc
}

// Engine compiles module bytes and executes the resulting instances.
// Implementations are safe for concurrent use.
type Engine interface {
	// Compile translates raw WASM bytes into an executable artifact.
	Compile(ctx context.Context, raw []byte) (Artifact, error)

	// RegisterHost makes the given host modules importable by every
	// instance created afterward. Registering a namespace twice fails.
	RegisterHost(ctx context.Context, modules []HostModule) error

	// Close releases the engine and everything compiled on it.
	Close(ctx context.Context) error
}

// Artifact is a compiled module. It can be instantiated many times, from
// many goroutines, and stays valid while instances created from it run.
type Artifact interface {
	// ImportedFunctions lists the function imports the module declares,
	// in declaration order.
	ImportedFunctions() []ImportedFunc

	// ExportedFunctions lists the function exports, sorted by name.
	ExportedFunctions() []ExportInfo

	// Instantiate creates a fresh instance with its own linear memory
	// and globals, independent of every other instance.
	Instantiate(ctx context.Context) (Instance, error)

	// Close releases the compiled code. Callers stop instantiating
	// before closing.
	Close(ctx context.Context) error
}

// Instance is one running module.
//
// An Instance is NOT safe for concurrent use; the caller serializes
// access to it.
type Instance interface {
	// ExportedFunction reports the shape of a named function export.
	ExportedFunction(name string) (ExportInfo, bool)

	// Invoke calls an exported function with erased scalars. Guest
	// faults come back classified as *errors.Error trap values, never
	// as opaque engine errors.
	Invoke(ctx context.Context, export string, args []uint64) ([]uint64, error)

	// Memory returns the instance's linear memory view, or nil when
	// the module declares none.
	Memory() Memory

	// Global reads a named exported global.
	Global(name string) (uint64, bool)

	// SetGlobal writes a named exported mutable global, reporting
	// whether the write happened.
	SetGlobal(name string, value uint64) bool

	// Close tears the instance down. Closing twice is harmless.
	Close(ctx context.Context) error
}

// Memory is the raw view of one instance's linear memory. Accessors
// report ok=false on out-of-range access instead of faulting.
type Memory interface {
	// Read returns a view of [offset, offset+length). The slice
	// aliases instance memory and is invalidated by growth.
	Read(offset, length uint32) ([]byte, bool)

	// Write copies data into memory at offset.
	Write(offset uint32, data []byte) bool

	// Size returns the current byte size.
	Size() uint32

	// Pages returns the current size in 64KiB pages.
	Pages() uint32

	// Grow adds delta pages and returns the previous page count. A
	// refused grow leaves the size untouched.
	Grow(delta uint32) (uint32, bool)
}
