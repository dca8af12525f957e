package hostfunc

import (
	"context"
	"strings"

	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/memory"
)

// Scalar types crossing the host boundary (aliases of the engine's set).
type ValueType = engine.ValueType

const (
	I32 = engine.I32
	I64 = engine.I64
	F32 = engine.F32
	F64 = engine.F64
)

// Signature declares the scalar shape of a host function.
type Signature struct {
	Params  []ValueType
	Results []ValueType
}

// Equal reports whether two signatures have identical shapes.
func (s Signature) Equal(other Signature) bool {
	if len(s.Params) != len(other.Params) || len(s.Results) != len(other.Results) {
		return false
	}
	for i, p := range s.Params {
		if p != other.Params[i] {
			return false
		}
	}
	for i, r := range s.Results {
		if r != other.Results[i] {
			return false
		}
	}
	return true
}

// String renders the signature as "(i32, i32) -> (i64)".
func (s Signature) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, p := range s.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.String())
	}
	b.WriteString(") -> (")
	for i, r := range s.Results {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(r.String())
	}
	b.WriteByte(')')
	return b.String()
}

// RawFunc handles a host call on the erased scalar stack. Parameters
// arrive in stack[:len(params)] and results are written back into the
// same slots; floats cross as raw IEEE-754 bits. mem is the calling
// instance's memory manager, nil when the module declares no memory.
// A non-nil error aborts the guest call and poisons the instance.
type RawFunc func(ctx context.Context, mem *memory.Manager, stack []uint64) error

// BytesFunc handles a host call under the byte-payload convention. The
// guest passes a pointer and length naming the request region; the
// returned bytes are written to a fresh region and handed back as one
// packed i64 word. A non-nil error aborts the guest call.
type BytesFunc func(ctx context.Context, payload []byte) ([]byte, error)

// Func is one registered host function. Immutable once registered.
type Func struct {
	Namespace string
	Name      string
	Sig       Signature

	// Exactly one handler variant is set.
	raw   RawFunc
	bytes BytesFunc
}

// BytesSignature returns the implied shape of every byte-payload
// function: (i32 ptr, i32 len) -> (i64 packed ptr+len).
func BytesSignature() Signature {
	return Signature{
		Params:  []ValueType{I32, I32},
		Results: []ValueType{I64},
	}
}

// PackPtrLen packs a memory region into one word: pointer in the high
// 32 bits, length in the low 32.
func PackPtrLen(ptr, length uint32) uint64 {
	return uint64(ptr)<<32 | uint64(length)
}

// UnpackPtrLen splits a packed region word into pointer and length.
func UnpackPtrLen(packed uint64) (ptr, length uint32) {
	return uint32(packed >> 32), uint32(packed)
}
