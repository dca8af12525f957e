package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/errors"
)

// Config controls engine-level execution limits.
type Config struct {
	// MemoryLimitPages caps every linear memory at instantiation and
	// growth, in 64KiB pages. 0 means the wazero default (65536 pages
	// = 4GB). Module-declared maxima below the cap still apply.
	MemoryLimitPages uint32
}

// WazeroEngine executes modules on an embedded wazero runtime.
//
// The runtime is built with close-on-context-done, so a canceled or
// expired context aborts in-flight execution; the instance involved is
// closed by the runtime and must be discarded.
type WazeroEngine struct {
	runtime wazero.Runtime
}

// NewWazeroEngine creates an engine with default configuration.
func NewWazeroEngine(ctx context.Context) (*WazeroEngine, error) {
	return NewWazeroEngineWithConfig(ctx, nil)
}

// NewWazeroEngineWithConfig creates an engine with the given limits.
// A nil config uses defaults.
func NewWazeroEngineWithConfig(ctx context.Context, cfg *Config) (*WazeroEngine, error) {
	runtimeConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cfg != nil && cfg.MemoryLimitPages > 0 {
		runtimeConfig = runtimeConfig.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}

	return &WazeroEngine{
		runtime: wazero.NewRuntimeWithConfig(ctx, runtimeConfig),
	}, nil
}

// Compile translates raw WASM bytes into executable code.
func (e *WazeroEngine) Compile(ctx context.Context, raw []byte) (Artifact, error) {
	compiled, err := e.runtime.CompileModule(ctx, raw)
	if err != nil {
		return nil, errors.Compilation(err)
	}

	return &wazeroArtifact{
		runtime:  e.runtime,
		compiled: compiled,
	}, nil
}

// RegisterHost instantiates one wazero host module per namespace. It is
// called before the first guest Instantiate; wazero rejects a namespace
// registered twice.
func (e *WazeroEngine) RegisterHost(ctx context.Context, modules []HostModule) error {
	for _, hm := range modules {
		builder := e.runtime.NewHostModuleBuilder(hm.Namespace)
		for _, fn := range hm.Funcs {
			builder = builder.NewFunctionBuilder().
				WithGoModuleFunction(goModuleFunc(fn), apiValueTypes(fn.Params), apiValueTypes(fn.Results)).
				Export(fn.Name)
		}
		if _, err := builder.Instantiate(ctx); err != nil {
			return errors.Registration(hm.Namespace, "", err)
		}
		Logger().Debug("host module registered",
			zap.String("namespace", hm.Namespace),
			zap.Int("functions", len(hm.Funcs)))
	}
	return nil
}

// Close releases the runtime and everything compiled on it.
func (e *WazeroEngine) Close(ctx context.Context) error {
	if e.runtime == nil {
		return nil
	}
	err := e.runtime.Close(ctx)
	e.runtime = nil
	return err
}

// goModuleFunc adapts a host callback to wazero's stack calling
// convention. Errors abort the in-flight call by panicking; wazero
// recovers the panic and fails the guest call with it.
func goModuleFunc(fn HostFunc) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		var mem Memory
		if m := mod.Memory(); m != nil {
			mem = &wazeroMemory{mem: m}
		}
		if err := fn.Fn(ctx, mem, stack); err != nil {
			panic(err)
		}
	}
}

// wazeroArtifact is a compiled module plus the runtime that owns it.
type wazeroArtifact struct {
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
}

// ImportedFunctions lists declared function imports with their scalar
// shapes.
func (a *wazeroArtifact) ImportedFunctions() []ImportedFunc {
	defs := a.compiled.ImportedFunctions()
	imports := make([]ImportedFunc, 0, len(defs))
	for _, def := range defs {
		ns, name, _ := def.Import()
		imports = append(imports, ImportedFunc{
			Namespace: ns,
			Name:      name,
			Params:    valueTypes(def.ParamTypes()),
			Results:   valueTypes(def.ResultTypes()),
		})
	}
	return imports
}

// ExportedFunctions lists function exports sorted by name.
func (a *wazeroArtifact) ExportedFunctions() []ExportInfo {
	defs := a.compiled.ExportedFunctions()
	exports := make([]ExportInfo, 0, len(defs))
	for name, def := range defs {
		exports = append(exports, ExportInfo{
			Name:    name,
			Params:  valueTypes(def.ParamTypes()),
			Results: valueTypes(def.ResultTypes()),
		})
	}
	sort.Slice(exports, func(i, j int) bool { return exports[i].Name < exports[j].Name })
	return exports
}

// Instantiate creates an anonymous instance so many can coexist for the
// same compiled module.
func (a *wazeroArtifact) Instantiate(ctx context.Context) (Instance, error) {
	mod, err := a.runtime.InstantiateModule(ctx, a.compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return nil, errors.Instantiation(err)
	}
	return newWazeroInstance(mod), nil
}

// Close releases the compiled code.
func (a *wazeroArtifact) Close(ctx context.Context) error {
	if a.compiled == nil {
		return nil
	}
	err := a.compiled.Close(ctx)
	a.compiled = nil
	return err
}

// wazeroInstance is one running module.
//
// NOT safe for concurrent use from multiple goroutines; the pool above
// this package enforces single occupancy.
type wazeroInstance struct {
	instance  api.Module
	memory    *wazeroMemory
	funcCache map[string]api.Function
	stackBuf  []uint64
}

func newWazeroInstance(mod api.Module) *wazeroInstance {
	inst := &wazeroInstance{
		instance:  mod,
		funcCache: make(map[string]api.Function),
		stackBuf:  make([]uint64, 16),
	}
	if mem := mod.Memory(); mem != nil {
		inst.memory = &wazeroMemory{mem: mem}
	}
	return inst
}

// fn resolves an exported function, caching the lookup.
func (i *wazeroInstance) fn(name string) api.Function {
	if f, ok := i.funcCache[name]; ok {
		return f
	}
	f := i.instance.ExportedFunction(name)
	if f != nil {
		i.funcCache[name] = f
	}
	return f
}

// ExportedFunction reports the scalar shape of a named export.
func (i *wazeroInstance) ExportedFunction(name string) (ExportInfo, bool) {
	f := i.fn(name)
	if f == nil {
		return ExportInfo{}, false
	}
	def := f.Definition()
	return ExportInfo{
		Name:    name,
		Params:  valueTypes(def.ParamTypes()),
		Results: valueTypes(def.ResultTypes()),
	}, true
}

// Invoke calls an exported function with erased scalars.
func (i *wazeroInstance) Invoke(ctx context.Context, export string, args []uint64) ([]uint64, error) {
	f := i.fn(export)
	if f == nil {
		return nil, errors.NotFound(errors.PhaseCall, "export", export)
	}

	def := f.Definition()
	nParams := len(def.ParamTypes())
	nResults := len(def.ResultTypes())
	if len(args) != nParams {
		return nil, errors.InvalidInput(errors.PhaseCall,
			fmt.Sprintf("export %q takes %d arguments, got %d", export, nParams, len(args)))
	}

	need := nParams
	if nResults > need {
		need = nResults
	}
	stack := i.stackBuf
	if len(stack) < need {
		i.stackBuf = make([]uint64, need)
		stack = i.stackBuf
	}
	copy(stack, args)

	if err := f.CallWithStack(ctx, stack); err != nil {
		return nil, translateCallError(err)
	}

	if nResults == 0 {
		return nil, nil
	}
	results := make([]uint64, nResults)
	copy(results, stack)
	return results, nil
}

// Memory returns the linear memory view, nil when the module has none.
func (i *wazeroInstance) Memory() Memory {
	if i.memory == nil {
		return nil
	}
	return i.memory
}

// Global reads a named exported global.
func (i *wazeroInstance) Global(name string) (uint64, bool) {
	g := i.instance.ExportedGlobal(name)
	if g == nil {
		return 0, false
	}
	return g.Get(), true
}

// SetGlobal writes a named exported mutable global.
func (i *wazeroInstance) SetGlobal(name string, value uint64) bool {
	g := i.instance.ExportedGlobal(name)
	if g == nil {
		return false
	}
	mg, ok := g.(api.MutableGlobal)
	if !ok {
		return false
	}
	mg.Set(value)
	return true
}

// Close tears down the instance and drops references to help GC.
func (i *wazeroInstance) Close(ctx context.Context) error {
	if i.instance == nil {
		return nil
	}
	err := i.instance.Close(ctx)
	i.instance = nil
	i.memory = nil
	i.funcCache = nil
	return err
}

// wazeroMemory adapts api.Memory to the engine view.
type wazeroMemory struct {
	mem api.Memory
}

func (m *wazeroMemory) Read(offset, length uint32) ([]byte, bool) {
	return m.mem.Read(offset, length)
}

func (m *wazeroMemory) Write(offset uint32, data []byte) bool {
	return m.mem.Write(offset, data)
}

func (m *wazeroMemory) Size() uint32 {
	return m.mem.Size()
}

func (m *wazeroMemory) Pages() uint32 {
	return m.mem.Size() / PageSize
}

func (m *wazeroMemory) Grow(delta uint32) (uint32, bool) {
	return m.mem.Grow(delta)
}

// valueTypes converts wazero value types to engine value types.
func valueTypes(in []api.ValueType) []ValueType {
	if len(in) == 0 {
		return nil
	}
	out := make([]ValueType, len(in))
	for i, t := range in {
		out[i] = ValueType(t)
	}
	return out
}

// apiValueTypes converts engine value types to wazero value types.
func apiValueTypes(in []ValueType) []api.ValueType {
	if len(in) == 0 {
		return nil
	}
	out := make([]api.ValueType, len(in))
	for i, t := range in {
		out[i] = api.ValueType(t)
	}
	return out
}

var (
	_ Engine   = (*WazeroEngine)(nil)
	_ Artifact = (*wazeroArtifact)(nil)
	_ Instance = (*wazeroInstance)(nil)
	_ Memory   = (*wazeroMemory)(nil)
)
