package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseLoad       Phase = "load"       // module loading
	PhaseInstrument Phase = "instrument" // bytecode rewriting
	PhaseCompile    Phase = "compile"    // engine compilation
	PhaseLink       Phase = "link"       // import resolution / instantiation
	PhaseCall       Phase = "call"       // guest invocation
	PhaseMemory     Phase = "memory"     // linear memory access
	PhaseHost       Phase = "host"       // host function dispatch
	PhaseProbe      Phase = "probe"      // version probing
	PhaseParse      Phase = "parse"      // WAT parsing
	PhaseRuntime    Phase = "runtime"    // bridge lifecycle operations
)

// Kind categorizes the error
type Kind string

const (
	// Caller-facing taxonomy. Every failure a bridge call can return
	// carries one of these.
	KindMalformedModule   Kind = "malformed_module"
	KindInstrumentation   Kind = "instrumentation_failed"
	KindCompilation       Kind = "compilation_failed"
	KindUnresolvedImport  Kind = "unresolved_import"
	KindMemoryOutOfBounds Kind = "memory_out_of_bounds"
	KindMemoryGrowLimit   Kind = "memory_grow_limit"
	KindTrap              Kind = "trap"
	KindHostFunction      Kind = "host_function"

	// Infrastructure kinds.
	KindNotFound      Kind = "not_found"
	KindInvalidInput  Kind = "invalid_input"
	KindInvalidData   Kind = "invalid_data"
	KindUnsupported   Kind = "unsupported"
	KindRegistration  Kind = "registration"
	KindInstantiation Kind = "instantiation"
	KindBusy          Kind = "busy"
	KindClosed        Kind = "closed"
)

// TrapCode identifies the fault class of a KindTrap error.
type TrapCode string

const (
	TrapUnreachable       TrapCode = "unreachable"
	TrapCallDepth         TrapCode = "call_depth_exceeded"
	TrapStackExhausted    TrapCode = "stack_exhausted"
	TrapMemoryOutOfBounds TrapCode = "memory_out_of_bounds"
	TrapDivideByZero      TrapCode = "divide_by_zero"
	TrapIntegerOverflow   TrapCode = "integer_overflow"
	TrapInvalidConversion TrapCode = "invalid_conversion"
	TrapIndirectCall      TrapCode = "indirect_call"
	TrapCanceled          TrapCode = "canceled"
	TrapUnknown           TrapCode = "unknown"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Trap   TrapCode
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Trap != "" {
		b.WriteByte('/')
		b.WriteString(string(e.Trap))
	}

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. Two Errors match when
// phase and kind agree; a target trap code of "" matches any trap.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Phase != t.Phase || e.Kind != t.Kind {
		return false
	}
	if t.Trap != "" && e.Trap != t.Trap {
		return false
	}
	return true
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the context path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Trap sets the trap code
func (b *Builder) Trap(code TrapCode) *Builder {
	b.err.Trap = code
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for the caller-facing taxonomy

// MalformedModule reports module bytes rejected before compilation.
func MalformedModule(cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindMalformedModule,
		Detail: "module bytes do not parse",
		Cause:  cause,
	}
}

// Instrumentation reports a structural assumption violated during rewriting.
func Instrumentation(detail string, args ...any) *Error {
	if len(args) > 0 {
		detail = fmt.Sprintf(detail, args...)
	}
	return &Error{
		Phase:  PhaseInstrument,
		Kind:   KindInstrumentation,
		Detail: detail,
	}
}

// Compilation reports an engine-level compile failure.
func Compilation(cause error) *Error {
	return &Error{
		Phase:  PhaseCompile,
		Kind:   KindCompilation,
		Detail: "compile module",
		Cause:  cause,
	}
}

// MemoryOutOfBounds reports an access outside the current memory size.
func MemoryOutOfBounds(phase Phase, offset, length, size uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindMemoryOutOfBounds,
		Detail: fmt.Sprintf("access offset=%d length=%d exceeds size=%d", offset, length, size),
	}
}

// MemoryGrowLimit reports growth past the configured maximum page count.
func MemoryGrowLimit(current, additional, maxPages uint32) *Error {
	return &Error{
		Phase:  PhaseMemory,
		Kind:   KindMemoryGrowLimit,
		Detail: fmt.Sprintf("grow %d+%d pages exceeds limit %d", current, additional, maxPages),
	}
}

// TrapError reports a guest-originated fault.
func TrapError(code TrapCode, cause error) *Error {
	return &Error{
		Phase: PhaseCall,
		Kind:  KindTrap,
		Trap:  code,
		Cause: cause,
	}
}

// HostFunction reports a registered handler failure, surfaced on the
// guest-trap channel.
func HostFunction(namespace, name string, cause error) *Error {
	return &Error{
		Phase:  PhaseHost,
		Kind:   KindHostFunction,
		Detail: fmt.Sprintf("host function %s#%s failed", namespace, name),
		Cause:  cause,
	}
}

// Infrastructure constructors

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// Registration creates a registration error
func Registration(namespace, name string, cause error) *Error {
	return &Error{
		Phase:  PhaseHost,
		Kind:   KindRegistration,
		Detail: fmt.Sprintf("register %s#%s", namespace, name),
		Cause:  cause,
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseLink,
		Kind:   KindInstantiation,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// Busy reports a single-occupancy violation.
func Busy(what string) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindBusy,
		Detail: fmt.Sprintf("%s is busy", what),
	}
}

// Closed reports use after teardown.
func Closed(what string) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s is closed", what),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// ParseFailed creates a parsing error
func ParseFailed(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindInvalidData,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
	}
}

// Classification helpers

// IsTrap reports whether err carries a guest trap.
func IsTrap(err error) bool {
	_, ok := TrapCodeOf(err)
	return ok
}

// TrapCodeOf extracts the trap code from an error chain.
func TrapCodeOf(err error) (TrapCode, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == KindTrap {
			return e.Trap, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return "", false
		}
		err = u.Unwrap()
	}
	return "", false
}

// Poisons reports whether err invalidates the instance it occurred on.
// A poisoned instance must be evicted, never reset and reused.
func Poisons(err error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			switch e.Kind {
			case KindTrap, KindHostFunction, KindMemoryOutOfBounds, KindMemoryGrowLimit:
				return true
			}
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// UnresolvedImport identifies a single import the host never registered
type UnresolvedImport struct {
	Namespace string // e.g., "env"
	Function  string // e.g., "log_line"
}

// UnresolvedImportsError is returned when instantiation fails because the
// guest requires imports absent from the dispatch table
type UnresolvedImportsError struct {
	Imports []UnresolvedImport
}

// NewUnresolvedImportsError creates an error from "namespace#function" keys
func NewUnresolvedImportsError(imports []string) *UnresolvedImportsError {
	result := &UnresolvedImportsError{
		Imports: make([]UnresolvedImport, 0, len(imports)),
	}
	for _, imp := range imports {
		ns, fn := parseImportKey(imp)
		result.Imports = append(result.Imports, UnresolvedImport{
			Namespace: ns,
			Function:  fn,
		})
	}
	return result
}

func parseImportKey(key string) (namespace, function string) {
	ns, fn, found := strings.Cut(key, "#")
	if found {
		return ns, fn
	}
	return key, ""
}

func (e *UnresolvedImportsError) Error() string {
	if len(e.Imports) == 0 {
		return "[link] unresolved_import: no imports specified"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("unresolved %d host import(s):\n", len(e.Imports)))

	// Group by namespace for cleaner output
	byNS := make(map[string][]string)
	var nsOrder []string
	for _, imp := range e.Imports {
		if _, exists := byNS[imp.Namespace]; !exists {
			nsOrder = append(nsOrder, imp.Namespace)
		}
		byNS[imp.Namespace] = append(byNS[imp.Namespace], imp.Function)
	}

	for _, ns := range nsOrder {
		b.WriteString("\n  ")
		b.WriteString(ns)
		b.WriteString(":\n")
		for _, fn := range byNS[ns] {
			b.WriteString("    - ")
			b.WriteString(fn)
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type
func (e *UnresolvedImportsError) Is(target error) bool {
	_, ok := target.(*UnresolvedImportsError)
	return ok
}
