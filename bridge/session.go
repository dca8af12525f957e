package bridge

import (
	"context"
	"fmt"

	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/hostfunc"
	"github.com/wippyai/wasm-bridge/instrument"
)

// Session is the execution context of one guest call: the checked-out
// instance, the bound dispatch table, and the recorded outcome. Created
// at call start, discarded at call end, never shared.
type Session struct {
	inst    *Instance
	hosts   *hostfunc.Registry
	limits  instrument.Limits
	results []uint64
	err     error
}

func newSession(inst *Instance, hosts *hostfunc.Registry, limits instrument.Limits) *Session {
	return &Session{inst: inst, hosts: hosts, limits: limits}
}

// invoke runs an exported function with erased scalars and records the
// outcome.
func (s *Session) invoke(ctx context.Context, export string, args []uint64) ([]uint64, error) {
	if s.inst.mem != nil {
		s.inst.mem.ResetArena()
	}
	ctx, inv := hostfunc.NewInvocation(ctx, s.inst.mem)

	results, err := s.inst.inst.Invoke(ctx, export, args)
	if err != nil {
		s.err = s.classify(inv, err)
		return nil, s.err
	}
	s.results = results
	return results, nil
}

// invokeBytes runs an exported function under the byte ABI: the payload
// goes to a fresh arena region, the export receives (ptr, len), and the
// packed result word names the response region.
func (s *Session) invokeBytes(ctx context.Context, export string, payload []byte) ([]byte, error) {
	info, ok := s.exported(export)
	if !ok {
		s.err = errors.NotFound(errors.PhaseCall, "export", export)
		return nil, s.err
	}
	sig := hostfunc.Signature{Params: info.Params, Results: info.Results}
	if !sig.Equal(hostfunc.BytesSignature()) {
		s.err = errors.InvalidInput(errors.PhaseCall,
			fmt.Sprintf("export %q has signature %s, the byte ABI needs %s", export, sig, hostfunc.BytesSignature()))
		return nil, s.err
	}
	if s.inst.mem == nil {
		s.err = errors.InvalidInput(errors.PhaseCall, "module declares no memory for the byte ABI")
		return nil, s.err
	}

	s.inst.mem.ResetArena()
	var ptr uint32
	if len(payload) > 0 {
		var err error
		ptr, err = s.inst.mem.Allocate(uint32(len(payload)))
		if err != nil {
			s.err = err
			return nil, err
		}
		if err := s.inst.mem.Write(ptr, payload); err != nil {
			s.err = err
			return nil, err
		}
	}

	ctx, inv := hostfunc.NewInvocation(ctx, s.inst.mem)
	results, err := s.inst.inst.Invoke(ctx, export, []uint64{uint64(ptr), uint64(len(payload))})
	if err != nil {
		s.err = s.classify(inv, err)
		return nil, s.err
	}
	s.results = results

	if results[0] == 0 {
		return nil, nil
	}
	respPtr, respLen := hostfunc.UnpackPtrLen(results[0])
	out, err := s.inst.mem.Read(respPtr, respLen)
	if err != nil {
		s.err = errors.Wrap(errors.PhaseCall, errors.KindMemoryOutOfBounds, err,
			fmt.Sprintf("export %q returned an out-of-range region", export))
		return nil, s.err
	}
	return out, nil
}

// exported reports the shape of a named export.
func (s *Session) exported(name string) (engine.ExportInfo, bool) {
	return s.inst.inst.ExportedFunction(name)
}

// classify refines an engine call error. A recorded host failure
// replaces the flattened engine error, and an unreachable trap with the
// depth counter past its limit becomes a depth-limit trap.
func (s *Session) classify(inv *hostfunc.Invocation, err error) error {
	if herr := inv.HostError(); herr != nil {
		return herr
	}
	if code, ok := errors.TrapCodeOf(err); ok && code == errors.TrapUnreachable {
		if d, ok := s.inst.depth(); ok && s.limits.MaxCallDepth > 0 && d > s.limits.MaxCallDepth {
			return errors.TrapError(errors.TrapCallDepth, err)
		}
	}
	return err
}

// Results returns the recorded scalar outcome of the session's call.
func (s *Session) Results() []uint64 {
	return s.results
}

// Err returns the recorded failure, if any.
func (s *Session) Err() error {
	return s.err
}
