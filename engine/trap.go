package engine

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/tetratelabs/wazero/sys"

	"github.com/wippyai/wasm-bridge/errors"
)

// wazero surfaces traps as opaque errors whose message prefix is the
// only stable classification key. "unreachable" goes last as the
// weakest match.
var trapMessages = []struct {
	substr string
	code   errors.TrapCode
}{
	{"out of bounds memory access", errors.TrapMemoryOutOfBounds},
	{"integer divide by zero", errors.TrapDivideByZero},
	{"integer overflow", errors.TrapIntegerOverflow},
	{"invalid conversion to integer", errors.TrapInvalidConversion},
	{"stack overflow", errors.TrapStackExhausted},
	{"indirect call type mismatch", errors.TrapIndirectCall},
	{"invalid table access", errors.TrapIndirectCall},
	{"unreachable", errors.TrapUnreachable},
}

// translateCallError maps a failed call onto the closed trap taxonomy.
func translateCallError(err error) error {
	// Host adapters abort calls with structured errors; wazero hands
	// them back through its panic recovery. Pass them through intact.
	var bridgeErr *errors.Error
	if stderrors.As(err, &bridgeErr) {
		return bridgeErr
	}

	// Context cancellation closes the module mid-call; an explicit
	// close during a call surfaces the same way.
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return errors.TrapError(errors.TrapCanceled, err)
	}
	var exitErr *sys.ExitError
	if stderrors.As(err, &exitErr) {
		return errors.TrapError(errors.TrapCanceled, err)
	}

	msg := err.Error()
	for _, tm := range trapMessages {
		if strings.Contains(msg, tm.substr) {
			return errors.TrapError(tm.code, err)
		}
	}
	return errors.TrapError(errors.TrapUnknown, err)
}
