package instrument

import (
	"fmt"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/wasm"
)

// DepthGlobalExport names the exported call-depth counter added by depth
// metering. A counter above the configured limit after a trap identifies
// a depth-limit trip.
const DepthGlobalExport = "__bridge_call_depth"

// Limits bounds guest recursion and memory growth through injected
// bytecode. A zero field disables the corresponding injection.
type Limits struct {
	MaxCallDepth   uint32
	MaxMemoryPages uint32
}

// Transform rewrites a module to enforce lim and returns the new binary.
//
// Returns MalformedModule when the bytes do not decode as a module in
// the supported core profile, and InstrumentationFailed when an active
// injection cannot hold its guarantees: tail calls break the paired
// depth accounting, and growth guarding assumes at most one memory.
func Transform(raw []byte, lim Limits) ([]byte, error) {
	m, err := wasm.ParseModuleValidate(raw)
	if err != nil {
		return nil, errors.MalformedModule(err)
	}

	numImported := uint32(m.NumImportedFuncs())
	bodies := make([][]wasm.Instruction, len(m.Code))
	for i := range m.Code {
		instrs, err := wasm.DecodeInstructions(m.Code[i].Code)
		if err != nil {
			return nil, errors.MalformedModule(fmt.Errorf("function %d: %w", numImported+uint32(i), err))
		}
		bodies[i] = instrs
	}

	// Bodies are re-encoded only when a pass touches them, so untouched
	// functions keep their original bytes.
	modified := make([]bool, len(m.Code))

	if lim.MaxCallDepth > 0 {
		if err := meterCallDepth(m, bodies, modified, lim.MaxCallDepth); err != nil {
			return nil, err
		}
	}
	if lim.MaxMemoryPages > 0 {
		if err := guardMemoryGrowth(m, bodies, modified, lim.MaxMemoryPages); err != nil {
			return nil, err
		}
	}

	for i := range bodies {
		if modified[i] {
			m.Code[i].Code = wasm.EncodeInstructions(bodies[i])
		}
	}
	return m.Encode(), nil
}
