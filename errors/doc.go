// Package errors provides structured error types for the wasm-bridge library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). Guest faults additionally carry a TrapCode identifying the fault
// class. The Error type includes rich context: context path, trap code, and
// cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseCall, errors.KindTrap).
//		Trap(errors.TrapDivideByZero).
//		Path("guest", "compute").
//		Detail("i32.div_s with zero divisor").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.MalformedModule(cause)
//	err := errors.MemoryOutOfBounds(errors.PhaseMemory, 4096, 16, 2048)
//
// All errors implement the standard error interface and support errors.Is/As.
// Poisons reports whether an error invalidates the instance it arose on.
package errors
