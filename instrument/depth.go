package instrument

import (
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/wasm"
)

// Instructions injected around each metered call: ten before, four after.
const depthSeqLen = 14

// meterCallDepth appends the exported depth counter global and wraps
// every call and call_indirect in every local function body.
func meterCallDepth(m *wasm.Module, bodies [][]wasm.Instruction, modified []bool, maxDepth uint32) error {
	if exp := m.FindExport(DepthGlobalExport); exp != nil {
		return errors.Instrumentation("module already exports %q; refusing to meter twice", DepthGlobalExport)
	}

	numImported := uint32(m.NumImportedFuncs())
	for i, instrs := range bodies {
		for _, instr := range instrs {
			switch instr.Opcode {
			case wasm.OpReturnCall, wasm.OpReturnCallIndirect:
				return errors.Instrumentation("function %d uses tail calls, which discard the frame the depth decrement runs in", numImported+uint32(i))
			}
		}
	}

	depthGlobal := uint32(m.NumImportedGlobals()) + uint32(len(m.Globals))
	m.Globals = append(m.Globals, wasm.Global{
		Type: wasm.GlobalType{ValType: wasm.ValI32, Mutable: true},
		Init: wasm.EncodeInstructions([]wasm.Instruction{
			{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: 0}},
			{Opcode: wasm.OpEnd},
		}),
	})
	m.Exports = append(m.Exports, wasm.Export{
		Name: DepthGlobalExport,
		Kind: wasm.KindGlobal,
		Idx:  depthGlobal,
	})

	for i := range bodies {
		out, changed := meterBody(bodies[i], depthGlobal, maxDepth)
		if changed {
			bodies[i] = out
			modified[i] = true
		}
	}
	return nil
}

func isMeteredCall(op byte) bool {
	return op == wasm.OpCall || op == wasm.OpCallIndirect
}

// meterBody splices the depth sequence around each call site:
//
//	depth++
//	if depth > max { unreachable }
//	<original call>
//	depth--
//
// The injected sequence has net-zero stack effect, so the call's
// operands pass through it untouched. On a depth trap the counter is
// left above the limit; only a completed call decrements it.
func meterBody(instrs []wasm.Instruction, depthGlobal, maxDepth uint32) ([]wasm.Instruction, bool) {
	sites := 0
	for _, instr := range instrs {
		if isMeteredCall(instr.Opcode) {
			sites++
		}
	}
	if sites == 0 {
		return instrs, false
	}

	out := make([]wasm.Instruction, 0, len(instrs)+sites*depthSeqLen)
	for _, instr := range instrs {
		if !isMeteredCall(instr.Opcode) {
			out = append(out, instr)
			continue
		}
		out = append(out,
			wasm.Instruction{Opcode: wasm.OpGlobalGet, Imm: wasm.GlobalImm{GlobalIdx: depthGlobal}},
			wasm.Instruction{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: 1}},
			wasm.Instruction{Opcode: wasm.OpI32Add},
			wasm.Instruction{Opcode: wasm.OpGlobalSet, Imm: wasm.GlobalImm{GlobalIdx: depthGlobal}},
			wasm.Instruction{Opcode: wasm.OpGlobalGet, Imm: wasm.GlobalImm{GlobalIdx: depthGlobal}},
			// i32.gt_u keeps the comparison correct for limits above MaxInt32.
			wasm.Instruction{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: int32(maxDepth)}},
			wasm.Instruction{Opcode: wasm.OpI32GtU},
			wasm.Instruction{Opcode: wasm.OpIf, Imm: wasm.BlockImm{Type: wasm.BlockTypeVoid}},
			wasm.Instruction{Opcode: wasm.OpUnreachable},
			wasm.Instruction{Opcode: wasm.OpEnd},
		)
		out = append(out, instr)
		out = append(out,
			wasm.Instruction{Opcode: wasm.OpGlobalGet, Imm: wasm.GlobalImm{GlobalIdx: depthGlobal}},
			wasm.Instruction{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: 1}},
			wasm.Instruction{Opcode: wasm.OpI32Sub},
			wasm.Instruction{Opcode: wasm.OpGlobalSet, Imm: wasm.GlobalImm{GlobalIdx: depthGlobal}},
		)
	}
	return out, true
}
