package bridge

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/instrument"
	"github.com/wippyai/wasm-bridge/memory"
)

// instanceState is the single-occupancy tag. Transitions: fresh and
// idle become busy on checkout, busy becomes idle on a clean checkin,
// and evicted is terminal.
type instanceState uint8

const (
	stateFresh instanceState = iota
	stateBusy
	stateIdle
	stateEvicted
)

func (s instanceState) String() string {
	switch s {
	case stateFresh:
		return "fresh"
	case stateBusy:
		return "busy"
	case stateIdle:
		return "idle"
	case stateEvicted:
		return "evicted"
	}
	return "unknown"
}

// Instance is one live execution unit bound to a compiled module: the
// engine instance, its memory manager, and the baseline the pool
// restores between calls. Exclusively owned by one session while busy.
type Instance struct {
	inst     engine.Instance
	mem      *memory.Manager
	baseline *memory.Snapshot
	globals  map[string]uint64
	heapBase uint32
	handle   *Handle

	mu    sync.Mutex
	state instanceState
}

// heapBaseExport is the linker convention for the start of the guest
// heap. Modules that do not export it fall back to the end of static
// data.
const heapBaseExport = "__heap_base"

// newInstance instantiates the handle's artifact and captures the
// post-instantiation baseline. The returned instance holds its own pin
// on the cache entry.
func newInstance(ctx context.Context, h *Handle, limits instrument.Limits, logger *zap.Logger) (*Instance, error) {
	ei, err := h.Artifact().Instantiate(ctx)
	if err != nil {
		return nil, err
	}

	heapBase := h.meta().dataEnd
	if v, ok := ei.Global(heapBaseExport); ok {
		heapBase = uint32(v)
	}

	var mgr *memory.Manager
	var baseline *memory.Snapshot
	if view := ei.Memory(); view != nil {
		mgr = memory.NewManager(view, limits.MaxMemoryPages, heapBase)
		baseline, err = mgr.Snapshot()
		if err != nil {
			ei.Close(ctx)
			return nil, err
		}
	}

	globals := make(map[string]uint64)
	for _, name := range h.meta().mutableGlobals {
		if v, ok := ei.Global(name); ok {
			globals[name] = v
		}
	}

	logger.Debug("instance created",
		zap.String("key", h.Key()[:12]),
		zap.Uint32("heap_base", heapBase),
		zap.Int("baseline_globals", len(globals)))

	return &Instance{
		inst:     ei,
		mem:      mgr,
		baseline: baseline,
		globals:  globals,
		heapBase: heapBase,
		handle:   h.pin(),
		state:    stateFresh,
	}, nil
}

// markBusy claims the instance for one session.
func (i *Instance) markBusy() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	switch i.state {
	case stateFresh, stateIdle:
		i.state = stateBusy
		return nil
	case stateBusy:
		return errors.Busy("instance")
	default:
		return errors.Closed("instance")
	}
}

// markIdle returns the instance to the reusable state.
func (i *Instance) markIdle() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state != stateBusy {
		return errors.InvalidInput(errors.PhaseRuntime, "checkin of a "+i.state.String()+" instance")
	}
	i.state = stateIdle
	return nil
}

// reset restores memory and exported mutable globals to the baseline
// captured at instantiation. A failure means the instance diverged in a
// way reset cannot undo, and the caller evicts it.
func (i *Instance) reset() error {
	if i.mem != nil {
		if err := i.mem.Restore(i.baseline); err != nil {
			return err
		}
	}
	for name, v := range i.globals {
		if !i.inst.SetGlobal(name, v) {
			return errors.InvalidInput(errors.PhaseRuntime, "restore global "+name)
		}
	}
	return nil
}

// evict closes the engine instance and releases the cache pin.
// Terminal; safe to call from any state.
func (i *Instance) evict(ctx context.Context) {
	i.mu.Lock()
	if i.state == stateEvicted {
		i.mu.Unlock()
		return
	}
	i.state = stateEvicted
	i.mu.Unlock()

	i.inst.Close(ctx)
	i.handle.Release()
}

// depth reads the instrumented call-depth counter.
func (i *Instance) depth() (uint32, bool) {
	v, ok := i.inst.Global(instrument.DepthGlobalExport)
	return uint32(v), ok
}

func (i *Instance) key() string {
	return i.handle.Key()
}

func (i *Instance) currentState() instanceState {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}
