package hostfunc

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/errors"
)

// Registry is the dispatch table mapping (namespace, name) to host
// functions. Populate it before handing it to a bridge; the table
// freezes when the first module is instantiated and is read-only during
// calls. Thread-safe.
type Registry struct {
	funcs  map[string]*Func
	order  []string
	frozen bool
	mu     sync.RWMutex
}

// NewRegistry creates an empty dispatch table.
func NewRegistry() *Registry {
	return &Registry{
		funcs: make(map[string]*Func),
	}
}

// Register binds a raw scalar handler under (namespace, name).
func (r *Registry) Register(namespace, name string, sig Signature, fn RawFunc) error {
	if fn == nil {
		return registrationErr(namespace, name, "handler is nil")
	}
	return r.add(&Func{
		Namespace: namespace,
		Name:      name,
		Sig: Signature{
			Params:  append([]ValueType(nil), sig.Params...),
			Results: append([]ValueType(nil), sig.Results...),
		},
		raw: fn,
	})
}

// RegisterBytes binds a byte-payload handler under (namespace, name).
// The guest-visible signature is fixed: (i32 ptr, i32 len) -> (i64
// packed ptr+len).
func (r *Registry) RegisterBytes(namespace, name string, fn BytesFunc) error {
	if fn == nil {
		return registrationErr(namespace, name, "handler is nil")
	}
	return r.add(&Func{
		Namespace: namespace,
		Name:      name,
		Sig:       BytesSignature(),
		bytes:     fn,
	})
}

func (r *Registry) add(f *Func) error {
	if f.Namespace == "" || f.Name == "" {
		return registrationErr(f.Namespace, f.Name, "namespace and name must be non-empty")
	}
	for _, vt := range f.Sig.Params {
		if !validValueType(vt) {
			return registrationErr(f.Namespace, f.Name, fmt.Sprintf("invalid param type %s", vt))
		}
	}
	for _, vt := range f.Sig.Results {
		if !validValueType(vt) {
			return registrationErr(f.Namespace, f.Name, fmt.Sprintf("invalid result type %s", vt))
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return registrationErr(f.Namespace, f.Name, "registry is frozen")
	}
	key := f.Namespace + "#" + f.Name
	if _, exists := r.funcs[key]; exists {
		return registrationErr(f.Namespace, f.Name, "already registered")
	}
	r.funcs[key] = f
	r.order = append(r.order, key)

	Logger().Debug("host function registered",
		zap.String("namespace", f.Namespace),
		zap.String("name", f.Name),
		zap.String("signature", f.Sig.String()))
	return nil
}

// Freeze makes the table immutable. The bridge freezes the table before
// binding it to an engine; late registration fails. Idempotent.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.frozen {
		r.frozen = true
		Logger().Debug("dispatch table frozen", zap.Int("functions", len(r.order)))
	}
}

// Frozen reports whether the table has been frozen.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Lookup returns the function bound to (namespace, name).
func (r *Registry) Lookup(namespace, name string) (*Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.funcs[namespace+"#"+name]
	return f, ok
}

// Len returns the number of registered functions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.funcs)
}

// Modules converts the table into engine host modules, one per
// namespace, functions in registration order. Callers freeze the table
// first; a table bound to an engine must not change.
func (r *Registry) Modules() []engine.HostModule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byNS := make(map[string][]engine.HostFunc)
	var nsOrder []string
	for _, key := range r.order {
		f := r.funcs[key]
		if _, seen := byNS[f.Namespace]; !seen {
			nsOrder = append(nsOrder, f.Namespace)
		}
		byNS[f.Namespace] = append(byNS[f.Namespace], engine.HostFunc{
			Name:    f.Name,
			Params:  f.Sig.Params,
			Results: f.Sig.Results,
			Fn:      f.callback(),
		})
	}

	modules := make([]engine.HostModule, 0, len(nsOrder))
	for _, ns := range nsOrder {
		modules = append(modules, engine.HostModule{Namespace: ns, Funcs: byNS[ns]})
	}
	return modules
}

// CheckImports verifies every function import a module declares binds to
// a registered host function with a matching signature. Failures list
// every unresolved import at once so callers fix them in one pass.
func (r *Registry) CheckImports(imports []engine.ImportedFunc) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var missing []string
	for _, imp := range imports {
		f, ok := r.funcs[imp.Namespace+"#"+imp.Name]
		if !ok {
			missing = append(missing, imp.Namespace+"#"+imp.Name)
			continue
		}
		declared := Signature{Params: imp.Params, Results: imp.Results}
		if !f.Sig.Equal(declared) {
			missing = append(missing, fmt.Sprintf("%s#%s (module declares %s, registered %s)",
				imp.Namespace, imp.Name, declared, f.Sig))
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return errors.Wrap(errors.PhaseLink, errors.KindUnresolvedImport,
		errors.NewUnresolvedImportsError(missing), "")
}

func registrationErr(namespace, name, detail string) *errors.Error {
	b := errors.New(errors.PhaseHost, errors.KindRegistration).Detail(detail)
	if namespace != "" || name != "" {
		b = b.Path(namespace, name)
	}
	return b.Build()
}

func validValueType(vt ValueType) bool {
	switch vt {
	case I32, I64, F32, F64:
		return true
	}
	return false
}
