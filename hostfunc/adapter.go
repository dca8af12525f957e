package hostfunc

import (
	"context"
	"math"

	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/memory"
)

// callback builds the engine-facing adapter for this function.
func (f *Func) callback() engine.HostCallback {
	if f.bytes != nil {
		return f.bytesCallback()
	}
	return f.rawCallback()
}

func (f *Func) rawCallback() engine.HostCallback {
	return func(ctx context.Context, mem engine.Memory, stack []uint64) error {
		if err := f.raw(ctx, callManager(ctx, mem), stack); err != nil {
			return f.fail(ctx, err)
		}
		return nil
	}
}

// bytesCallback reads the request region, runs the handler, and writes
// the response to a fresh arena region. An empty response is the zero
// word; regions stay valid until the session resets the arena at call
// end.
func (f *Func) bytesCallback() engine.HostCallback {
	return func(ctx context.Context, mem engine.Memory, stack []uint64) error {
		inv := InvocationFromContext(ctx)
		if inv == nil || inv.mem == nil {
			return f.fail(ctx, errors.InvalidInput(errors.PhaseHost,
				"byte-payload functions require an invocation with guest memory"))
		}
		mgr := inv.mem

		ptr, length := uint32(stack[0]), uint32(stack[1])
		payload, err := mgr.Read(ptr, length)
		if err != nil {
			return f.fail(ctx, err)
		}

		resp, err := f.bytes(ctx, payload)
		if err != nil {
			return f.fail(ctx, err)
		}
		if len(resp) == 0 {
			stack[0] = 0
			return nil
		}
		if uint64(len(resp)) > math.MaxUint32 {
			return f.fail(ctx, errors.InvalidInput(errors.PhaseHost, "response exceeds 4GiB"))
		}

		respPtr, err := mgr.Allocate(uint32(len(resp)))
		if err != nil {
			return f.fail(ctx, err)
		}
		if err := mgr.Write(respPtr, resp); err != nil {
			return f.fail(ctx, err)
		}
		stack[0] = PackPtrLen(respPtr, uint32(len(resp)))
		return nil
	}
}

// fail wraps a handler failure, records it on the invocation, and hands
// it to the engine to abort the call.
func (f *Func) fail(ctx context.Context, cause error) *errors.Error {
	herr := errors.HostFunction(f.Namespace, f.Name, cause)
	recordHostError(ctx, herr)
	return herr
}

// callManager resolves the memory manager handed to raw handlers. A
// session-bound call carries the instance's manager with its heap base
// and page limit; a bare engine call falls back to an accessor-only
// view of the caller's memory.
func callManager(ctx context.Context, mem engine.Memory) *memory.Manager {
	if inv := InvocationFromContext(ctx); inv != nil && inv.mem != nil {
		return inv.mem
	}
	if mem == nil {
		return nil
	}
	return memory.NewManager(mem, 0, 0)
}
