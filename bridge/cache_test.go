package bridge

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/instrument"
)

func newTestCache(t *testing.T, size int) (*moduleCache, *countingEngine) {
	t.Helper()
	ctx := context.Background()
	inner, err := engine.NewWazeroEngine(ctx)
	if err != nil {
		t.Fatalf("NewWazeroEngine: %v", err)
	}
	ce := &countingEngine{Engine: inner}
	c := newModuleCache(ce, instrument.Limits{MaxCallDepth: 8, MaxMemoryPages: 16}, size, zap.NewNop())
	t.Cleanup(func() {
		c.close(ctx)
		inner.Close(ctx)
	})
	return c, ce
}

func TestCacheDeduplicatesByContent(t *testing.T) {
	ctx := context.Background()
	c, ce := newTestCache(t, 4)

	raw := compileWat(t, addModule)
	h1, err := c.getOrCompile(ctx, raw)
	if err != nil {
		t.Fatalf("first getOrCompile: %v", err)
	}
	h2, err := c.getOrCompile(ctx, raw)
	if err != nil {
		t.Fatalf("second getOrCompile: %v", err)
	}
	defer h1.Release()
	defer h2.Release()

	if h1.Key() != h2.Key() {
		t.Errorf("keys differ: %s vs %s", h1.Key(), h2.Key())
	}
	if h1.Artifact() != h2.Artifact() {
		t.Error("handles should share one artifact")
	}
	if got := ce.compiles.Load(); got != 1 {
		t.Errorf("compilations = %d, want 1", got)
	}
	if got := c.len(); got != 1 {
		t.Errorf("cache entries = %d, want 1", got)
	}
}

func TestCacheConcurrentRequestersShareWinner(t *testing.T) {
	ctx := context.Background()
	c, ce := newTestCache(t, 4)

	raw := compileWat(t, addModule)
	var wg sync.WaitGroup
	handles := make([]*Handle, 8)
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := c.getOrCompile(ctx, raw)
			if err != nil {
				t.Errorf("getOrCompile: %v", err)
				return
			}
			handles[i] = h
		}(i)
	}
	wg.Wait()

	if got := ce.compiles.Load(); got != 1 {
		t.Errorf("compilations = %d, want 1", got)
	}
	var firstKey string
	for _, h := range handles {
		if h == nil {
			continue
		}
		if firstKey == "" {
			firstKey = h.Key()
		}
		if h.Key() != firstKey {
			t.Error("concurrent requesters should land on one entry")
		}
		h.Release()
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c, ce := newTestCache(t, 1)

	rawA := compileWat(t, addModule)
	rawB := compileWat(t, bumpModule)

	h, err := c.getOrCompile(ctx, rawA)
	if err != nil {
		t.Fatalf("compile A: %v", err)
	}
	h.Release()

	h, err = c.getOrCompile(ctx, rawB)
	if err != nil {
		t.Fatalf("compile B: %v", err)
	}
	h.Release()

	if got := c.len(); got != 1 {
		t.Errorf("cache entries = %d, want 1", got)
	}

	// A was evicted, so requesting it again recompiles.
	h, err = c.getOrCompile(ctx, rawA)
	if err != nil {
		t.Fatalf("recompile A: %v", err)
	}
	h.Release()
	if got := ce.compiles.Load(); got != 3 {
		t.Errorf("compilations = %d, want 3", got)
	}
}

func TestCachePinnedEntryOutlivesBudget(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, 1)

	hA, err := c.getOrCompile(ctx, compileWat(t, addModule))
	if err != nil {
		t.Fatalf("compile A: %v", err)
	}

	hB, err := c.getOrCompile(ctx, compileWat(t, bumpModule))
	if err != nil {
		t.Fatalf("compile B: %v", err)
	}
	defer hB.Release()

	// A is pinned by its handle, so it survives past the budget.
	if got := c.len(); got != 2 {
		t.Errorf("cache entries = %d, want 2", got)
	}
	if hA.Artifact() == nil {
		t.Fatal("pinned artifact should stay usable")
	}

	hA.Release()
	if got := c.len(); got != 1 {
		t.Errorf("cache entries after release = %d, want 1", got)
	}
}

func TestCacheHandleReleaseIdempotent(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, 4)

	h, err := c.getOrCompile(ctx, compileWat(t, addModule))
	if err != nil {
		t.Fatalf("getOrCompile: %v", err)
	}
	h.Release()
	h.Release() // second release must not double-count the pin

	c.mu.Lock()
	refs := h.entry.refs
	c.mu.Unlock()
	if refs != 0 {
		t.Errorf("refs after double release = %d, want 0", refs)
	}

	h2, err := c.getOrCompile(ctx, compileWat(t, addModule))
	if err != nil {
		t.Fatalf("getOrCompile after release: %v", err)
	}
	h2.Release()
}

func TestCacheFailureNotCached(t *testing.T) {
	ctx := context.Background()
	c, ce := newTestCache(t, 4)

	raw := compileWat(t, addModule)
	ce.failNext.Store(true)
	if _, err := c.getOrCompile(ctx, raw); err == nil {
		t.Fatal("expected compile failure")
	}
	if got := c.len(); got != 0 {
		t.Errorf("cache entries after failure = %d, want 0", got)
	}

	// The failure is not remembered; the next attempt compiles again.
	ce.failNext.Store(false)
	h, err := c.getOrCompile(ctx, raw)
	if err != nil {
		t.Fatalf("getOrCompile after failure: %v", err)
	}
	h.Release()
	if got := ce.compiles.Load(); got != 2 {
		t.Errorf("compilations = %d, want 2", got)
	}
}

func TestBuildMeta(t *testing.T) {
	raw := compileWat(t, `(module
		(memory 1)
		(global (export "count") (mut i32) (i32.const 3))
		(global (export "base") i32 (i32.const 9))
		(data (i32.const 100) "hello")
		(data (i32.const 300) "xy")
	)`)

	meta, err := buildMeta(raw)
	if err != nil {
		t.Fatalf("buildMeta: %v", err)
	}
	if meta.dataEnd != 302 {
		t.Errorf("dataEnd = %d, want 302", meta.dataEnd)
	}
	if len(meta.mutableGlobals) != 1 || meta.mutableGlobals[0] != "count" {
		t.Errorf("mutableGlobals = %v, want [count]", meta.mutableGlobals)
	}
}

func TestBuildMetaEmptyModule(t *testing.T) {
	meta, err := buildMeta(compileWat(t, `(module)`))
	if err != nil {
		t.Fatalf("buildMeta: %v", err)
	}
	if meta.dataEnd != 0 {
		t.Errorf("dataEnd = %d, want 0", meta.dataEnd)
	}
	if len(meta.mutableGlobals) != 0 {
		t.Errorf("mutableGlobals = %v, want none", meta.mutableGlobals)
	}
}
