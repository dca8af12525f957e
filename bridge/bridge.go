package bridge

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/hostfunc"
)

// Bridge runs sandboxed WASM modules deterministically: modules are
// instrumented and cached by content, instances are pooled and restored
// to their baseline between calls, and every failure comes back as a
// structured error. Safe for concurrent use.
type Bridge struct {
	cfg    Config
	eng    engine.Engine
	ownEng bool
	hosts  *hostfunc.Registry
	cache  *moduleCache
	pool   *pool
	logger *zap.Logger

	bindOnce sync.Once
	bindErr  error

	mu     sync.Mutex
	closed bool
}

// New creates a Bridge. Zero Config fields select the documented
// defaults; a nil Config.Engine gets a bridge-owned WazeroEngine
// configured with the memory page limit.
func New(ctx context.Context, cfg Config) (*Bridge, error) {
	cfg = cfg.withDefaults()

	eng := cfg.Engine
	ownEng := false
	if eng == nil {
		var err error
		eng, err = engine.NewWazeroEngineWithConfig(ctx, &engine.Config{
			MemoryLimitPages: cfg.Limits.MaxMemoryPages,
		})
		if err != nil {
			return nil, err
		}
		ownEng = true
	}

	return &Bridge{
		cfg:    cfg,
		eng:    eng,
		ownEng: ownEng,
		hosts:  cfg.Hosts,
		cache:  newModuleCache(eng, cfg.Limits, cfg.CacheSize, cfg.Logger),
		pool:   newPool(cfg.Limits, cfg.MaxIdlePerModule, cfg.Logger),
		logger: cfg.Logger,
	}, nil
}

// Call invokes an exported function of the module raw with erased
// scalar arguments. The module is instrumented, compiled through the
// cache, and run on a pooled instance that is restored or evicted
// afterward.
func (b *Bridge) Call(ctx context.Context, raw []byte, export string, args ...uint64) ([]uint64, error) {
	h, inst, err := b.acquire(ctx, raw)
	if err != nil {
		return nil, err
	}
	defer h.Release()

	s := newSession(inst, b.hosts, b.cfg.Limits)
	results, err := s.invoke(ctx, export, args)
	b.pool.finish(ctx, inst, err)
	return results, err
}

// CallBytes invokes an exported function under the byte ABI: payload in
// guest memory as (ptr, len), response handed back through a packed
// pointer+length word. The export must have the shape
// (i32, i32) -> (i64).
func (b *Bridge) CallBytes(ctx context.Context, raw []byte, export string, payload []byte) ([]byte, error) {
	h, inst, err := b.acquire(ctx, raw)
	if err != nil {
		return nil, err
	}
	defer h.Release()

	s := newSession(inst, b.hosts, b.cfg.Limits)
	out, err := s.invokeBytes(ctx, export, payload)
	b.pool.finish(ctx, inst, err)
	return out, err
}

// Exports lists the exported functions of the module raw, sorted by
// name. The module is instrumented and compiled through the cache like
// any call, so a later Call hits the compiled artifact.
func (b *Bridge) Exports(ctx context.Context, raw []byte) ([]engine.ExportInfo, error) {
	if err := b.active(); err != nil {
		return nil, err
	}
	h, err := b.cache.getOrCompile(ctx, raw)
	if err != nil {
		return nil, err
	}
	defer h.Release()
	return h.Artifact().ExportedFunctions(), nil
}

// Hosts returns the dispatch table guests import from. Register host
// functions on it before the first call; the table freezes when the
// first module instantiates.
func (b *Bridge) Hosts() *hostfunc.Registry {
	return b.hosts
}

// Close releases pooled instances, cached artifacts, and a bridge-owned
// engine. Outstanding calls finish first.
func (b *Bridge) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.pool.close(ctx)
	b.cache.close(ctx)
	if b.ownEng {
		return b.eng.Close(ctx)
	}
	return nil
}

// acquire compiles raw through the cache and checks out an instance.
// On failure the handle is already released.
func (b *Bridge) acquire(ctx context.Context, raw []byte) (*Handle, *Instance, error) {
	if err := b.active(); err != nil {
		return nil, nil, err
	}
	h, err := b.cache.getOrCompile(ctx, raw)
	if err != nil {
		return nil, nil, err
	}
	inst, err := b.checkout(ctx, h)
	if err != nil {
		h.Release()
		return nil, nil, err
	}
	return h, inst, nil
}

// checkout binds the dispatch table on first use, verifies the module's
// imports resolve, and takes an instance from the pool.
func (b *Bridge) checkout(ctx context.Context, h *Handle) (*Instance, error) {
	if err := b.bindHosts(ctx); err != nil {
		return nil, err
	}
	if err := b.hosts.CheckImports(h.Artifact().ImportedFunctions()); err != nil {
		return nil, err
	}
	return b.pool.checkout(ctx, h)
}

// bindHosts freezes the dispatch table and registers it with the engine
// exactly once, before the first instantiation.
func (b *Bridge) bindHosts(ctx context.Context) error {
	b.bindOnce.Do(func() {
		b.hosts.Freeze()
		if b.hosts.Len() == 0 {
			return
		}
		b.bindErr = b.eng.RegisterHost(ctx, b.hosts.Modules())
	})
	return b.bindErr
}

func (b *Bridge) active() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.Closed("bridge")
	}
	return nil
}
