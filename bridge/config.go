package bridge

import (
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/hostfunc"
	"github.com/wippyai/wasm-bridge/instrument"
)

// Defaults applied by New for zero Config fields.
const (
	DefaultMaxCallDepth     = 1024
	DefaultMaxMemoryPages   = 1024 // 64 MiB
	DefaultCacheSize        = 64
	DefaultMaxIdlePerModule = 4
)

// Config configures a Bridge. The zero value selects the documented
// defaults for every field.
type Config struct {
	// Limits bound guest recursion and memory growth through injected
	// bytecode. Zero fields get the package defaults; execution through
	// the bridge is always metered.
	Limits instrument.Limits

	// CacheSize bounds the number of compiled modules kept in memory.
	// Entries with live instances are pinned and do not count against
	// evictability. Zero selects DefaultCacheSize.
	CacheSize int

	// MaxIdlePerModule bounds the idle instances retained per module
	// for reuse. Zero selects DefaultMaxIdlePerModule; a negative value
	// disables reuse so every instance is evicted after its call.
	MaxIdlePerModule int

	// Hosts is the dispatch table guests import from. Nil means no host
	// functions. The table freezes when the first module instantiates.
	Hosts *hostfunc.Registry

	// Engine compiles and runs modules. Nil selects a fresh WazeroEngine
	// owned and closed by the bridge; a caller-provided engine is left
	// open on Close.
	Engine engine.Engine

	// Logger receives bridge lifecycle events. Nil means no logging.
	Logger *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.Limits.MaxCallDepth == 0 {
		c.Limits.MaxCallDepth = DefaultMaxCallDepth
	}
	if c.Limits.MaxMemoryPages == 0 {
		c.Limits.MaxMemoryPages = DefaultMaxMemoryPages
	}
	if c.CacheSize <= 0 {
		c.CacheSize = DefaultCacheSize
	}
	switch {
	case c.MaxIdlePerModule == 0:
		c.MaxIdlePerModule = DefaultMaxIdlePerModule
	case c.MaxIdlePerModule < 0:
		c.MaxIdlePerModule = 0
	}
	if c.Hosts == nil {
		c.Hosts = hostfunc.NewRegistry()
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}
