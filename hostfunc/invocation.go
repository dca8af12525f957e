package hostfunc

import (
	"context"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/memory"
)

// Invocation carries per-call state between the invoking session and the
// host adapters: the calling instance's memory manager and the first
// structured handler failure. One Invocation serves one guest call on
// one goroutine; it is never shared across calls.
type Invocation struct {
	mem     *memory.Manager
	hostErr *errors.Error
}

// invocationContextKey is the context key for the active invocation.
type invocationContextKey struct{}

// NewInvocation binds fresh per-call state into ctx. The bridge does
// this before every guest call so handlers resolve the right memory
// manager and the session can read back a structured handler failure.
func NewInvocation(ctx context.Context, mem *memory.Manager) (context.Context, *Invocation) {
	inv := &Invocation{mem: mem}
	return context.WithValue(ctx, invocationContextKey{}, inv), inv
}

// InvocationFromContext extracts the active invocation, or nil if the
// call did not come through a bridge session.
func InvocationFromContext(ctx context.Context) *Invocation {
	if inv, ok := ctx.Value(invocationContextKey{}).(*Invocation); ok {
		return inv
	}
	return nil
}

// Memory returns the calling instance's memory manager, or nil when the
// module declares no memory.
func (inv *Invocation) Memory() *memory.Manager {
	return inv.mem
}

// HostError returns the structured failure a handler raised during the
// call, or nil. The engine's panic recovery flattens error chains, so
// the session reads the original from here rather than unwrapping the
// call error.
func (inv *Invocation) HostError() *errors.Error {
	return inv.hostErr
}

// recordHostError keeps the first handler failure of the call.
func recordHostError(ctx context.Context, err *errors.Error) {
	if inv := InvocationFromContext(ctx); inv != nil && inv.hostErr == nil {
		inv.hostErr = err
	}
}
