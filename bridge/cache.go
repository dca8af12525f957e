package bridge

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/instrument"
	"github.com/wippyai/wasm-bridge/wasm"
)

// moduleCache deduplicates compilation. Keys are content hashes of the
// instrumented bytes, so identical raw modules under identical limits
// share one artifact. The mutex guards map and LRU bookkeeping only;
// compilation runs outside it and concurrent requesters for the same
// key block on the entry's ready channel.
type moduleCache struct {
	eng    engine.Engine
	limits instrument.Limits
	size   int
	logger *zap.Logger

	mu      sync.Mutex
	entries map[string]*cacheEntry
	lru     *list.List // front = most recently used
}

type cacheEntry struct {
	key      string
	artifact engine.Artifact
	meta     moduleMeta
	version  *VersionInfo // probe result, lives with the entry

	refs int // live pins: handles, instances
	elem *list.Element

	ready chan struct{} // closed when artifact or err is set
	err   error
}

// Handle pins one cache entry. Release it when done; an instance built
// from the entry carries its own pin.
type Handle struct {
	cache *moduleCache
	entry *cacheEntry
	once  sync.Once
}

func newModuleCache(eng engine.Engine, limits instrument.Limits, size int, logger *zap.Logger) *moduleCache {
	return &moduleCache{
		eng:     eng,
		limits:  limits,
		size:    size,
		logger:  logger,
		entries: make(map[string]*cacheEntry),
		lru:     list.New(),
	}
}

// getOrCompile instruments raw, hashes the result, and returns a pinned
// handle on the compiled artifact. At most one compilation per key runs;
// losers of the race share the winner's result. Failures are not
// cached, so a later call retries.
func (c *moduleCache) getOrCompile(ctx context.Context, raw []byte) (*Handle, error) {
	instrumented, err := instrument.Transform(raw, c.limits)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(instrumented)
	key := hex.EncodeToString(sum[:])

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		e.refs++
		c.lru.MoveToFront(e.elem)
		c.mu.Unlock()

		<-e.ready
		if e.err != nil {
			c.release(e)
			return nil, e.err
		}
		return &Handle{cache: c, entry: e}, nil
	}

	e := &cacheEntry{
		key:   key,
		refs:  1,
		ready: make(chan struct{}),
	}
	c.entries[key] = e
	e.elem = c.lru.PushFront(e)
	c.mu.Unlock()

	artifact, err := c.eng.Compile(ctx, instrumented)
	if err == nil {
		e.meta, err = buildMeta(instrumented)
		if err != nil {
			artifact.Close(ctx)
		}
	}
	if err != nil {
		c.mu.Lock()
		e.err = err
		delete(c.entries, key)
		c.lru.Remove(e.elem)
		c.mu.Unlock()
		close(e.ready)
		return nil, err
	}

	c.mu.Lock()
	e.artifact = artifact
	c.mu.Unlock()
	close(e.ready)

	c.logger.Debug("module compiled",
		zap.String("key", key[:12]),
		zap.Int("raw_bytes", len(raw)),
		zap.Int("instrumented_bytes", len(instrumented)))

	c.evictExcess(ctx)
	return &Handle{cache: c, entry: e}, nil
}

// release drops one pin and reclaims any resulting eviction headroom.
func (c *moduleCache) release(e *cacheEntry) {
	c.mu.Lock()
	e.refs--
	c.mu.Unlock()
	c.evictExcess(context.Background())
}

// evictExcess walks the LRU tail closing unpinned entries until the
// cache fits its budget. Pinned entries are skipped, so the count can
// temporarily exceed the budget while modules are in use.
func (c *moduleCache) evictExcess(ctx context.Context) {
	var evicted []*cacheEntry

	c.mu.Lock()
	over := len(c.entries) - c.size
	for elem := c.lru.Back(); elem != nil && over > 0; {
		prev := elem.Prev()
		e := elem.Value.(*cacheEntry)
		if e.refs == 0 {
			delete(c.entries, e.key)
			c.lru.Remove(elem)
			evicted = append(evicted, e)
			over--
		}
		elem = prev
	}
	c.mu.Unlock()

	for _, e := range evicted {
		e.artifact.Close(ctx)
		c.logger.Debug("module evicted", zap.String("key", e.key[:12]))
	}
}

// close tears down every entry. Callers finish outstanding calls first.
func (c *moduleCache) close(ctx context.Context) {
	c.mu.Lock()
	entries := c.entries
	c.entries = make(map[string]*cacheEntry)
	c.lru.Init()
	c.mu.Unlock()

	for _, e := range entries {
		if e.artifact != nil {
			e.artifact.Close(ctx)
		}
	}
}

func (c *moduleCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// pin takes an additional pin on the handle's entry for a new owner.
func (h *Handle) pin() *Handle {
	h.cache.mu.Lock()
	h.entry.refs++
	h.cache.mu.Unlock()
	return &Handle{cache: h.cache, entry: h.entry}
}

// Artifact returns the compiled module.
func (h *Handle) Artifact() engine.Artifact {
	return h.entry.artifact
}

// Key returns the content hash identifying the module.
func (h *Handle) Key() string {
	return h.entry.key
}

// Release drops the pin. Idempotent.
func (h *Handle) Release() {
	h.once.Do(func() { h.cache.release(h.entry) })
}

func (h *Handle) meta() moduleMeta {
	return h.entry.meta
}

func (h *Handle) cachedVersion() *VersionInfo {
	h.cache.mu.Lock()
	defer h.cache.mu.Unlock()
	return h.entry.version
}

func (h *Handle) storeVersion(vi *VersionInfo) {
	h.cache.mu.Lock()
	h.entry.version = vi
	h.cache.mu.Unlock()
}

// moduleMeta is read once from the instrumented bytes at compile time.
type moduleMeta struct {
	// dataEnd is the end of statically initialized data, the allocator
	// origin when the module does not export __heap_base.
	dataEnd uint32

	// mutableGlobals names the exported mutable globals whose values are
	// part of the restorable baseline.
	mutableGlobals []string
}

func buildMeta(raw []byte) (moduleMeta, error) {
	m, err := wasm.ParseModule(raw)
	if err != nil {
		return moduleMeta{}, errors.MalformedModule(err)
	}

	var meta moduleMeta
	numImported := uint32(m.NumImportedGlobals())
	for _, exp := range m.Exports {
		if exp.Kind != wasm.KindGlobal {
			continue
		}
		var mutable bool
		if exp.Idx < numImported {
			if gt := importedGlobalType(m, exp.Idx); gt != nil {
				mutable = gt.Mutable
			}
		} else if int(exp.Idx-numImported) < len(m.Globals) {
			mutable = m.Globals[exp.Idx-numImported].Type.Mutable
		}
		if mutable {
			meta.mutableGlobals = append(meta.mutableGlobals, exp.Name)
		}
	}

	var end uint64
	for _, seg := range m.Data {
		if seg.Flags == 1 { // passive
			continue
		}
		off, ok := constExprI32(seg.Offset)
		if !ok {
			continue
		}
		if e := uint64(off) + uint64(len(seg.Init)); e > end {
			end = e
		}
	}
	if end > 0xFFFFFFFF {
		end = 0xFFFFFFFF
	}
	meta.dataEnd = uint32(end)
	return meta, nil
}

func importedGlobalType(m *wasm.Module, idx uint32) *wasm.GlobalType {
	for _, imp := range m.Imports {
		if imp.Desc.Kind != wasm.KindGlobal {
			continue
		}
		if idx == 0 {
			return imp.Desc.Global
		}
		idx--
	}
	return nil
}

// constExprI32 evaluates an init expression of the form (i32.const n).
func constExprI32(expr []byte) (uint32, bool) {
	instrs, err := wasm.DecodeInstructions(expr)
	if err != nil || len(instrs) == 0 || instrs[0].Opcode != wasm.OpI32Const {
		return 0, false
	}
	imm, ok := instrs[0].Imm.(wasm.I32Imm)
	if !ok {
		return 0, false
	}
	return uint32(imm.Value), true
}
