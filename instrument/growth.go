package instrument

import (
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/wasm"
)

// guardMemoryGrowth clamps the memory's declared maximum to maxPages and
// routes every memory.grow in existing code through an appended guard
// function. Modules without a memory are left alone.
func guardMemoryGrowth(m *wasm.Module, bodies [][]wasm.Instruction, modified []bool, maxPages uint32) error {
	numMemories := m.NumImportedMemories() + len(m.Memories)
	if numMemories == 0 {
		return nil
	}
	if numMemories > 1 {
		return errors.Instrumentation("module has %d linear memories; growth guarding supports one", numMemories)
	}

	if err := clampMemoryLimits(m, maxPages); err != nil {
		return err
	}

	// The guard lands at the end of the function space; compute its
	// index before the rewrite so call sites can target it.
	guardIdx := uint32(m.NumImportedFuncs() + len(m.Funcs))

	for i := range bodies {
		changed := false
		for j := range bodies[i] {
			if bodies[i][j].Opcode == wasm.OpMemoryGrow {
				bodies[i][j] = wasm.Instruction{Opcode: wasm.OpCall, Imm: wasm.CallImm{FuncIdx: guardIdx}}
				changed = true
			}
		}
		if changed {
			modified[i] = true
		}
	}

	appendGrowGuard(m, maxPages)
	return nil
}

// clampMemoryLimits caps declared maxima at maxPages. A memory whose
// minimum already exceeds the limit cannot be instantiated under it.
func clampMemoryLimits(m *wasm.Module, maxPages uint32) error {
	for i := range m.Imports {
		if m.Imports[i].Desc.Kind == wasm.KindMemory && m.Imports[i].Desc.Memory != nil {
			if err := clampLimits(&m.Imports[i].Desc.Memory.Limits, maxPages, "imported memory"); err != nil {
				return err
			}
		}
	}
	for i := range m.Memories {
		if err := clampLimits(&m.Memories[i].Limits, maxPages, "memory"); err != nil {
			return err
		}
	}
	return nil
}

func clampLimits(lim *wasm.Limits, maxPages uint32, what string) error {
	if lim.Min > maxPages {
		return errors.Instrumentation("%s needs %d pages at minimum, above the %d page limit", what, lim.Min, maxPages)
	}
	if lim.Max == nil || *lim.Max > maxPages {
		capped := maxPages
		lim.Max = &capped
	}
	return nil
}

// appendGrowGuard adds the (delta i32) -> (i32) guard function.
//
// The guard compares delta against remaining headroom rather than
// adding it to the current size, so an oversized delta cannot wrap the
// comparison:
//
//	if delta > max - memory.size { return -1 }
//	return memory.grow(delta)
func appendGrowGuard(m *wasm.Module, maxPages uint32) uint32 {
	typeIdx := m.AddType(wasm.FuncType{
		Params:  []wasm.ValType{wasm.ValI32},
		Results: []wasm.ValType{wasm.ValI32},
	})
	body := wasm.EncodeInstructions([]wasm.Instruction{
		{Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIdx: 0}},
		{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: int32(maxPages)}},
		{Opcode: wasm.OpMemorySize, Imm: wasm.MemoryIdxImm{MemIdx: 0}},
		{Opcode: wasm.OpI32Sub},
		{Opcode: wasm.OpI32GtU},
		{Opcode: wasm.OpIf, Imm: wasm.BlockImm{Type: wasm.BlockTypeVoid}},
		{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: -1}},
		{Opcode: wasm.OpReturn},
		{Opcode: wasm.OpEnd},
		{Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIdx: 0}},
		{Opcode: wasm.OpMemoryGrow, Imm: wasm.MemoryIdxImm{MemIdx: 0}},
		{Opcode: wasm.OpEnd},
	})
	m.Funcs = append(m.Funcs, typeIdx)
	m.Code = append(m.Code, wasm.FuncBody{Code: body})
	return uint32(m.NumImportedFuncs() + len(m.Code) - 1)
}
