package wat

import (
	"math/bits"
	"strings"

	"github.com/wippyai/wasm-bridge/wasm"
)

// funcContext tracks per-function name resolution while a body is parsed.
// labels holds the enclosing block names innermost-last, so branch targets
// resolve to their relative depth.
type funcContext struct {
	locals map[string]uint32
	labels []string
}

// parseInstrSeq parses instructions until the enclosing ')' and consumes it.
func (p *parser) parseInstrSeq(fc *funcContext, out *[]wasm.Instruction) error {
	for {
		t := p.peek()
		if t == nil {
			return p.eof()
		}
		if t.kind == tokRParen {
			p.next()
			return nil
		}
		if err := p.parseInstr(fc, out); err != nil {
			return err
		}
	}
}

// parseInstr parses one folded expression or one flat instruction.
func (p *parser) parseInstr(fc *funcContext, out *[]wasm.Instruction) error {
	t := p.peek()
	if t == nil {
		return p.eof()
	}
	switch t.kind {
	case tokLParen:
		return p.parseFolded(fc, out)
	case tokWord:
		p.next()
		return p.parseFlat(fc, t, out)
	}
	return p.errf(t, "expected instruction, got %q", t.text)
}

// parseFolded handles the parenthesized form. Operand expressions are
// emitted before the operator itself, matching evaluation order.
func (p *parser) parseFolded(fc *funcContext, out *[]wasm.Instruction) error {
	op, err := p.fieldHead()
	if err != nil {
		return err
	}
	switch op.text {
	case "block", "loop":
		opcode := wasm.OpBlock
		if op.text == "loop" {
			opcode = wasm.OpLoop
		}
		label := p.parseOptionalName()
		bt, err := p.parseBlockType()
		if err != nil {
			return err
		}
		fc.labels = append(fc.labels, label)
		*out = append(*out, wasm.Instruction{Opcode: opcode, Imm: bt})
		err = p.parseInstrSeq(fc, out)
		fc.labels = fc.labels[:len(fc.labels)-1]
		if err != nil {
			return err
		}
		*out = append(*out, wasm.Instruction{Opcode: wasm.OpEnd})
		return nil

	case "if":
		label := p.parseOptionalName()
		bt, err := p.parseBlockType()
		if err != nil {
			return err
		}
		// Condition expressions run before the if and sit outside its
		// label scope.
		for p.peekFormHead() != "then" {
			if t := p.peek(); t == nil || t.kind != tokLParen {
				return p.errf(t, "expected '(then ...)' in if")
			}
			if err := p.parseFolded(fc, out); err != nil {
				return err
			}
		}
		fc.labels = append(fc.labels, label)
		*out = append(*out, wasm.Instruction{Opcode: wasm.OpIf, Imm: bt})
		p.fieldHead()
		if err := p.parseInstrSeq(fc, out); err != nil {
			return err
		}
		if p.peekFormHead() == "else" {
			p.fieldHead()
			*out = append(*out, wasm.Instruction{Opcode: wasm.OpElse})
			if err := p.parseInstrSeq(fc, out); err != nil {
				return err
			}
		}
		fc.labels = fc.labels[:len(fc.labels)-1]
		*out = append(*out, wasm.Instruction{Opcode: wasm.OpEnd})
		return p.expectRParen()

	default:
		instr, err := p.parseOpWithImm(fc, op)
		if err != nil {
			return err
		}
		for {
			t := p.peek()
			if t == nil {
				return p.eof()
			}
			if t.kind != tokLParen {
				break
			}
			if err := p.parseFolded(fc, out); err != nil {
				return err
			}
		}
		*out = append(*out, instr)
		return p.expectRParen()
	}
}

// parseFlat handles one bare-word instruction whose operator token has
// already been consumed.
func (p *parser) parseFlat(fc *funcContext, op *token, out *[]wasm.Instruction) error {
	switch op.text {
	case "block", "loop":
		opcode := wasm.OpBlock
		if op.text == "loop" {
			opcode = wasm.OpLoop
		}
		label := p.parseOptionalName()
		bt, err := p.parseBlockType()
		if err != nil {
			return err
		}
		fc.labels = append(fc.labels, label)
		*out = append(*out, wasm.Instruction{Opcode: opcode, Imm: bt})
		_, err = p.parseFlatBody(fc, out, false)
		fc.labels = fc.labels[:len(fc.labels)-1]
		if err != nil {
			return err
		}
		if err := p.consumeTrailingLabel(label); err != nil {
			return err
		}
		*out = append(*out, wasm.Instruction{Opcode: wasm.OpEnd})
		return nil

	case "if":
		label := p.parseOptionalName()
		bt, err := p.parseBlockType()
		if err != nil {
			return err
		}
		fc.labels = append(fc.labels, label)
		*out = append(*out, wasm.Instruction{Opcode: wasm.OpIf, Imm: bt})
		stop, err := p.parseFlatBody(fc, out, true)
		if err == nil && stop.text == "else" {
			if err = p.consumeTrailingLabel(label); err == nil {
				*out = append(*out, wasm.Instruction{Opcode: wasm.OpElse})
				_, err = p.parseFlatBody(fc, out, false)
			}
		}
		fc.labels = fc.labels[:len(fc.labels)-1]
		if err != nil {
			return err
		}
		if err := p.consumeTrailingLabel(label); err != nil {
			return err
		}
		*out = append(*out, wasm.Instruction{Opcode: wasm.OpEnd})
		return nil

	case "else", "end":
		return p.errf(op, "%q outside a block", op.text)

	default:
		instr, err := p.parseOpWithImm(fc, op)
		if err != nil {
			return err
		}
		*out = append(*out, instr)
		return nil
	}
}

// parseFlatBody reads instructions until the closing 'end', or 'else' when
// stopElse is set. The stop word is consumed and returned.
func (p *parser) parseFlatBody(fc *funcContext, out *[]wasm.Instruction, stopElse bool) (*token, error) {
	for {
		t := p.peek()
		if t == nil {
			return nil, p.eof()
		}
		if t.kind == tokWord && (t.text == "end" || (stopElse && t.text == "else")) {
			p.next()
			return t, nil
		}
		if err := p.parseInstr(fc, out); err != nil {
			return nil, err
		}
	}
}

// consumeTrailingLabel accepts the optional repeated label after end/else
// and rejects a mismatch.
func (p *parser) consumeTrailingLabel(label string) error {
	t := p.peek()
	if t == nil || t.kind != tokWord || !strings.HasPrefix(t.text, "$") {
		return nil
	}
	if t.text != label {
		return p.errf(t, "label %s does not match block label", t.text)
	}
	p.next()
	return nil
}

// parseBlockType reads the optional result annotation of block, loop and if.
// Void and single-result blocks use the shorthand encoding; anything else
// registers a signature in the type section.
func (p *parser) parseBlockType() (wasm.BlockImm, error) {
	if p.peekFormHead() == "type" {
		p.fieldHead()
		idx, err := p.parseIdxIn(p.typeNames, "type")
		if err != nil {
			return wasm.BlockImm{}, err
		}
		if err := p.expectRParen(); err != nil {
			return wasm.BlockImm{}, err
		}
		if int(idx) >= len(p.mod.Types) {
			return wasm.BlockImm{}, p.errf(nil, "unknown type %d", idx)
		}
		ft, _, err := p.parseSigParts()
		if err != nil {
			return wasm.BlockImm{}, err
		}
		if (len(ft.Params) > 0 || len(ft.Results) > 0) && !sigEqual(p.mod.Types[idx], ft) {
			return wasm.BlockImm{}, p.errf(nil, "inline signature does not match type %d", idx)
		}
		return wasm.BlockImm{Type: int32(idx)}, nil
	}
	ft, _, err := p.parseSigParts()
	if err != nil {
		return wasm.BlockImm{}, err
	}
	switch {
	case len(ft.Params) == 0 && len(ft.Results) == 0:
		return wasm.BlockImm{Type: wasm.BlockTypeVoid}, nil
	case len(ft.Params) == 0 && len(ft.Results) == 1:
		// Value types encode as the s33 complement of their byte form.
		return wasm.BlockImm{Type: int32(ft.Results[0]) - 0x80}, nil
	default:
		return wasm.BlockImm{Type: int32(p.mod.AddType(ft))}, nil
	}
}

// parseOpWithImm builds a single non-block instruction, consuming any
// immediates that follow the operator.
func (p *parser) parseOpWithImm(fc *funcContext, op *token) (wasm.Instruction, error) {
	if code, ok := plainOps[op.text]; ok {
		return wasm.Instruction{Opcode: code}, nil
	}
	if sub, ok := miscPlainOps[op.text]; ok {
		return wasm.Instruction{Opcode: wasm.OpPrefixMisc, Imm: wasm.MiscImm{SubOpcode: sub}}, nil
	}
	if mo, ok := memOps[op.text]; ok {
		return p.parseMemArg(mo)
	}

	switch op.text {
	case "i32.const":
		w, err := p.expectWord()
		if err != nil {
			return wasm.Instruction{}, err
		}
		v, err := parseI32(w.text)
		if err != nil {
			return wasm.Instruction{}, p.errf(w, "%v", err)
		}
		return wasm.Instruction{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: v}}, nil

	case "i64.const":
		w, err := p.expectWord()
		if err != nil {
			return wasm.Instruction{}, err
		}
		v, err := parseI64(w.text)
		if err != nil {
			return wasm.Instruction{}, p.errf(w, "%v", err)
		}
		return wasm.Instruction{Opcode: wasm.OpI64Const, Imm: wasm.I64Imm{Value: v}}, nil

	case "f32.const":
		w, err := p.expectWord()
		if err != nil {
			return wasm.Instruction{}, err
		}
		v, err := parseFloat(w.text, 32)
		if err != nil {
			return wasm.Instruction{}, p.errf(w, "%v", err)
		}
		return wasm.Instruction{Opcode: wasm.OpF32Const, Imm: wasm.F32Imm{Value: float32(v)}}, nil

	case "f64.const":
		w, err := p.expectWord()
		if err != nil {
			return wasm.Instruction{}, err
		}
		v, err := parseFloat(w.text, 64)
		if err != nil {
			return wasm.Instruction{}, p.errf(w, "%v", err)
		}
		return wasm.Instruction{Opcode: wasm.OpF64Const, Imm: wasm.F64Imm{Value: v}}, nil

	case "local.get", "local.set", "local.tee":
		idx, err := p.parseIdxIn(fc.locals, "local")
		if err != nil {
			return wasm.Instruction{}, err
		}
		opcode := wasm.OpLocalGet
		switch op.text {
		case "local.set":
			opcode = wasm.OpLocalSet
		case "local.tee":
			opcode = wasm.OpLocalTee
		}
		return wasm.Instruction{Opcode: opcode, Imm: wasm.LocalImm{LocalIdx: idx}}, nil

	case "global.get", "global.set":
		idx, err := p.parseIdxIn(p.globalNames, "global")
		if err != nil {
			return wasm.Instruction{}, err
		}
		opcode := wasm.OpGlobalGet
		if op.text == "global.set" {
			opcode = wasm.OpGlobalSet
		}
		return wasm.Instruction{Opcode: opcode, Imm: wasm.GlobalImm{GlobalIdx: idx}}, nil

	case "call", "return_call":
		idx, err := p.parseIdxIn(p.funcNames, "function")
		if err != nil {
			return wasm.Instruction{}, err
		}
		opcode := wasm.OpCall
		if op.text == "return_call" {
			opcode = wasm.OpReturnCall
		}
		return wasm.Instruction{Opcode: opcode, Imm: wasm.CallImm{FuncIdx: idx}}, nil

	case "call_indirect", "return_call_indirect":
		var tableIdx uint32
		if t := p.peek(); t != nil && t.kind == tokWord && isIdxWord(t.text) {
			idx, err := p.parseIdxIn(p.tableNames, "table")
			if err != nil {
				return wasm.Instruction{}, err
			}
			tableIdx = idx
		}
		typeIdx, _, err := p.parseTypeUse(op)
		if err != nil {
			return wasm.Instruction{}, err
		}
		opcode := wasm.OpCallIndirect
		if op.text == "return_call_indirect" {
			opcode = wasm.OpReturnCallIndirect
		}
		return wasm.Instruction{Opcode: opcode, Imm: wasm.CallIndirectImm{TypeIdx: typeIdx, TableIdx: tableIdx}}, nil

	case "br", "br_if":
		depth, err := p.parseLabelIdx(fc)
		if err != nil {
			return wasm.Instruction{}, err
		}
		opcode := wasm.OpBr
		if op.text == "br_if" {
			opcode = wasm.OpBrIf
		}
		return wasm.Instruction{Opcode: opcode, Imm: wasm.BranchImm{LabelIdx: depth}}, nil

	case "br_table":
		var labels []uint32
		for {
			t := p.peek()
			if t == nil || t.kind != tokWord || !isIdxWord(t.text) {
				break
			}
			depth, err := p.parseLabelIdx(fc)
			if err != nil {
				return wasm.Instruction{}, err
			}
			labels = append(labels, depth)
		}
		if len(labels) == 0 {
			return wasm.Instruction{}, p.errf(op, "br_table needs at least one label")
		}
		return wasm.Instruction{Opcode: wasm.OpBrTable, Imm: wasm.BrTableImm{
			Labels:  labels[:len(labels)-1],
			Default: labels[len(labels)-1],
		}}, nil

	case "ref.null":
		ht, err := p.parseHeapType()
		if err != nil {
			return wasm.Instruction{}, err
		}
		return wasm.Instruction{Opcode: wasm.OpRefNull, Imm: wasm.RefNullImm{HeapType: ht}}, nil

	case "ref.func":
		idx, err := p.parseIdxIn(p.funcNames, "function")
		if err != nil {
			return wasm.Instruction{}, err
		}
		return wasm.Instruction{Opcode: wasm.OpRefFunc, Imm: wasm.RefFuncImm{FuncIdx: idx}}, nil

	case "select":
		if p.peekFormHead() != "result" {
			return wasm.Instruction{Opcode: wasm.OpSelect}, nil
		}
		p.fieldHead()
		var types []wasm.ValType
		for {
			t := p.peek()
			if t == nil {
				return wasm.Instruction{}, p.eof()
			}
			if t.kind == tokRParen {
				p.next()
				break
			}
			vt, err := p.parseValTypeWord()
			if err != nil {
				return wasm.Instruction{}, err
			}
			types = append(types, vt)
		}
		return wasm.Instruction{Opcode: wasm.OpSelectType, Imm: wasm.SelectTypeImm{Types: types}}, nil

	case "memory.size", "memory.grow":
		memIdx, err := p.parseOptionalIdx(p.memNames, "memory")
		if err != nil {
			return wasm.Instruction{}, err
		}
		opcode := wasm.OpMemorySize
		if op.text == "memory.grow" {
			opcode = wasm.OpMemoryGrow
		}
		return wasm.Instruction{Opcode: opcode, Imm: wasm.MemoryIdxImm{MemIdx: memIdx}}, nil

	case "memory.init":
		first, second, err := p.parseIdxPair(p.memNames, p.dataNames, "memory", "data")
		if err != nil {
			return wasm.Instruction{}, err
		}
		p.needsDataCount = true
		return miscInstr(wasm.MiscMemoryInit, second, first), nil

	case "data.drop":
		idx, err := p.parseIdxIn(p.dataNames, "data")
		if err != nil {
			return wasm.Instruction{}, err
		}
		p.needsDataCount = true
		return miscInstr(wasm.MiscDataDrop, idx), nil

	case "memory.copy":
		dst, err := p.parseOptionalIdx(p.memNames, "memory")
		if err != nil {
			return wasm.Instruction{}, err
		}
		src, err := p.parseOptionalIdx(p.memNames, "memory")
		if err != nil {
			return wasm.Instruction{}, err
		}
		return miscInstr(wasm.MiscMemoryCopy, dst, src), nil

	case "memory.fill":
		memIdx, err := p.parseOptionalIdx(p.memNames, "memory")
		if err != nil {
			return wasm.Instruction{}, err
		}
		return miscInstr(wasm.MiscMemoryFill, memIdx), nil

	case "table.get", "table.set":
		tableIdx, err := p.parseOptionalIdx(p.tableNames, "table")
		if err != nil {
			return wasm.Instruction{}, err
		}
		opcode := wasm.OpTableGet
		if op.text == "table.set" {
			opcode = wasm.OpTableSet
		}
		return wasm.Instruction{Opcode: opcode, Imm: wasm.TableImm{TableIdx: tableIdx}}, nil

	case "table.grow", "table.size", "table.fill":
		tableIdx, err := p.parseOptionalIdx(p.tableNames, "table")
		if err != nil {
			return wasm.Instruction{}, err
		}
		sub := wasm.MiscTableGrow
		switch op.text {
		case "table.size":
			sub = wasm.MiscTableSize
		case "table.fill":
			sub = wasm.MiscTableFill
		}
		return miscInstr(sub, tableIdx), nil

	case "table.init":
		first, second, err := p.parseIdxPair(p.tableNames, p.elemNames, "table", "element segment")
		if err != nil {
			return wasm.Instruction{}, err
		}
		return miscInstr(wasm.MiscTableInit, second, first), nil

	case "table.copy":
		dst, err := p.parseOptionalIdx(p.tableNames, "table")
		if err != nil {
			return wasm.Instruction{}, err
		}
		src, err := p.parseOptionalIdx(p.tableNames, "table")
		if err != nil {
			return wasm.Instruction{}, err
		}
		return miscInstr(wasm.MiscTableCopy, dst, src), nil

	case "elem.drop":
		idx, err := p.parseIdxIn(p.elemNames, "element segment")
		if err != nil {
			return wasm.Instruction{}, err
		}
		return miscInstr(wasm.MiscElemDrop, idx), nil
	}

	return wasm.Instruction{}, p.errf(op, "unknown instruction %q", op.text)
}

func miscInstr(sub uint32, operands ...uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpPrefixMisc, Imm: wasm.MiscImm{SubOpcode: sub, Operands: operands}}
}

// parseMemArg reads the optional offset= and align= annotations. The text
// form gives alignment in bytes; the binary form wants its log2.
func (p *parser) parseMemArg(mo memOp) (wasm.Instruction, error) {
	imm := wasm.MemoryImm{Align: mo.natAlign}
	if t := p.peek(); t != nil && t.kind == tokWord && strings.HasPrefix(t.text, "offset=") {
		p.next()
		v, err := parseU32(t.text[len("offset="):])
		if err != nil {
			return wasm.Instruction{}, p.errf(t, "%v", err)
		}
		imm.Offset = v
	}
	if t := p.peek(); t != nil && t.kind == tokWord && strings.HasPrefix(t.text, "align=") {
		p.next()
		v, err := parseU32(t.text[len("align="):])
		if err != nil {
			return wasm.Instruction{}, p.errf(t, "%v", err)
		}
		if v == 0 || v&(v-1) != 0 {
			return wasm.Instruction{}, p.errf(t, "alignment %d is not a power of two", v)
		}
		imm.Align = uint32(bits.TrailingZeros32(v))
	}
	return wasm.Instruction{Opcode: mo.opcode, Imm: imm}, nil
}

// parseLabelIdx resolves a branch target. Numbers are relative depths
// already; names search the enclosing labels innermost-first.
func (p *parser) parseLabelIdx(fc *funcContext) (uint32, error) {
	w, err := p.expectWord()
	if err != nil {
		return 0, err
	}
	if !strings.HasPrefix(w.text, "$") {
		depth, err := parseU32(w.text)
		if err != nil {
			return 0, p.errf(w, "%v", err)
		}
		return depth, nil
	}
	for i := len(fc.labels) - 1; i >= 0; i-- {
		if fc.labels[i] == w.text {
			return uint32(len(fc.labels) - 1 - i), nil
		}
	}
	return 0, p.errf(w, "unknown label %s", w.text)
}

func (p *parser) parseHeapType() (int64, error) {
	w, err := p.expectWord()
	if err != nil {
		return 0, err
	}
	switch w.text {
	case "func", "funcref":
		return heapTypeFunc, nil
	case "extern", "externref":
		return heapTypeExtern, nil
	}
	return 0, p.errf(w, "unknown heap type %q", w.text)
}

// parseOptionalIdx consumes an index only when the next word looks like one,
// defaulting to zero otherwise.
func (p *parser) parseOptionalIdx(names map[string]uint32, space string) (uint32, error) {
	if t := p.peek(); t == nil || t.kind != tokWord || !isIdxWord(t.text) {
		return 0, nil
	}
	return p.parseIdxIn(names, space)
}

// parseIdxPair handles the two-index form "op first second" and the common
// one-index shorthand where first defaults to zero.
func (p *parser) parseIdxPair(firstNames, secondNames map[string]uint32, firstSpace, secondSpace string) (uint32, uint32, error) {
	w1, err := p.expectWord()
	if err != nil {
		return 0, 0, err
	}
	if t := p.peek(); t != nil && t.kind == tokWord && isIdxWord(t.text) {
		first, err := p.resolveIdx(w1, firstNames, firstSpace)
		if err != nil {
			return 0, 0, err
		}
		second, err := p.parseIdxIn(secondNames, secondSpace)
		if err != nil {
			return 0, 0, err
		}
		return first, second, nil
	}
	second, err := p.resolveIdx(w1, secondNames, secondSpace)
	if err != nil {
		return 0, 0, err
	}
	return 0, second, nil
}

func (p *parser) resolveIdx(w *token, names map[string]uint32, space string) (uint32, error) {
	if strings.HasPrefix(w.text, "$") {
		idx, ok := names[w.text]
		if !ok {
			return 0, p.errf(w, "unknown %s %s", space, w.text)
		}
		return idx, nil
	}
	idx, err := parseU32(w.text)
	if err != nil {
		return 0, p.errf(w, "%v", err)
	}
	return idx, nil
}

// isIdxWord reports whether a word can denote an index, which keeps
// optional-index operators from swallowing keywords like end.
func isIdxWord(s string) bool {
	return s != "" && (s[0] == '$' || (s[0] >= '0' && s[0] <= '9'))
}

type memOp struct {
	opcode   byte
	natAlign uint32
}

var memOps = map[string]memOp{
	"i32.load":     {wasm.OpI32Load, 2},
	"i64.load":     {wasm.OpI64Load, 3},
	"f32.load":     {wasm.OpF32Load, 2},
	"f64.load":     {wasm.OpF64Load, 3},
	"i32.load8_s":  {wasm.OpI32Load8S, 0},
	"i32.load8_u":  {wasm.OpI32Load8U, 0},
	"i32.load16_s": {wasm.OpI32Load16S, 1},
	"i32.load16_u": {wasm.OpI32Load16U, 1},
	"i64.load8_s":  {wasm.OpI64Load8S, 0},
	"i64.load8_u":  {wasm.OpI64Load8U, 0},
	"i64.load16_s": {wasm.OpI64Load16S, 1},
	"i64.load16_u": {wasm.OpI64Load16U, 1},
	"i64.load32_s": {wasm.OpI64Load32S, 2},
	"i64.load32_u": {wasm.OpI64Load32U, 2},
	"i32.store":    {wasm.OpI32Store, 2},
	"i64.store":    {wasm.OpI64Store, 3},
	"f32.store":    {wasm.OpF32Store, 2},
	"f64.store":    {wasm.OpF64Store, 3},
	"i32.store8":   {wasm.OpI32Store8, 0},
	"i32.store16":  {wasm.OpI32Store16, 1},
	"i64.store8":   {wasm.OpI64Store8, 0},
	"i64.store16":  {wasm.OpI64Store16, 1},
	"i64.store32":  {wasm.OpI64Store32, 2},
}

var miscPlainOps = map[string]uint32{
	"i32.trunc_sat_f32_s": wasm.MiscI32TruncSatF32S,
	"i32.trunc_sat_f32_u": wasm.MiscI32TruncSatF32U,
	"i32.trunc_sat_f64_s": wasm.MiscI32TruncSatF64S,
	"i32.trunc_sat_f64_u": wasm.MiscI32TruncSatF64U,
	"i64.trunc_sat_f32_s": wasm.MiscI64TruncSatF32S,
	"i64.trunc_sat_f32_u": wasm.MiscI64TruncSatF32U,
	"i64.trunc_sat_f64_s": wasm.MiscI64TruncSatF64S,
	"i64.trunc_sat_f64_u": wasm.MiscI64TruncSatF64U,
}

var plainOps = map[string]byte{
	"unreachable": wasm.OpUnreachable,
	"nop":         wasm.OpNop,
	"return":      wasm.OpReturn,
	"drop":        wasm.OpDrop,
	"ref.is_null": wasm.OpRefIsNull,

	"i32.eqz":  wasm.OpI32Eqz,
	"i32.eq":   wasm.OpI32Eq,
	"i32.ne":   wasm.OpI32Ne,
	"i32.lt_s": wasm.OpI32LtS,
	"i32.lt_u": wasm.OpI32LtU,
	"i32.gt_s": wasm.OpI32GtS,
	"i32.gt_u": wasm.OpI32GtU,
	"i32.le_s": wasm.OpI32LeS,
	"i32.le_u": wasm.OpI32LeU,
	"i32.ge_s": wasm.OpI32GeS,
	"i32.ge_u": wasm.OpI32GeU,

	"i64.eqz":  wasm.OpI64Eqz,
	"i64.eq":   wasm.OpI64Eq,
	"i64.ne":   wasm.OpI64Ne,
	"i64.lt_s": wasm.OpI64LtS,
	"i64.lt_u": wasm.OpI64LtU,
	"i64.gt_s": wasm.OpI64GtS,
	"i64.gt_u": wasm.OpI64GtU,
	"i64.le_s": wasm.OpI64LeS,
	"i64.le_u": wasm.OpI64LeU,
	"i64.ge_s": wasm.OpI64GeS,
	"i64.ge_u": wasm.OpI64GeU,

	"f32.eq": wasm.OpF32Eq,
	"f32.ne": wasm.OpF32Ne,
	"f32.lt": wasm.OpF32Lt,
	"f32.gt": wasm.OpF32Gt,
	"f32.le": wasm.OpF32Le,
	"f32.ge": wasm.OpF32Ge,

	"f64.eq": wasm.OpF64Eq,
	"f64.ne": wasm.OpF64Ne,
	"f64.lt": wasm.OpF64Lt,
	"f64.gt": wasm.OpF64Gt,
	"f64.le": wasm.OpF64Le,
	"f64.ge": wasm.OpF64Ge,

	"i32.clz":    wasm.OpI32Clz,
	"i32.ctz":    wasm.OpI32Ctz,
	"i32.popcnt": wasm.OpI32Popcnt,
	"i32.add":    wasm.OpI32Add,
	"i32.sub":    wasm.OpI32Sub,
	"i32.mul":    wasm.OpI32Mul,
	"i32.div_s":  wasm.OpI32DivS,
	"i32.div_u":  wasm.OpI32DivU,
	"i32.rem_s":  wasm.OpI32RemS,
	"i32.rem_u":  wasm.OpI32RemU,
	"i32.and":    wasm.OpI32And,
	"i32.or":     wasm.OpI32Or,
	"i32.xor":    wasm.OpI32Xor,
	"i32.shl":    wasm.OpI32Shl,
	"i32.shr_s":  wasm.OpI32ShrS,
	"i32.shr_u":  wasm.OpI32ShrU,
	"i32.rotl":   wasm.OpI32Rotl,
	"i32.rotr":   wasm.OpI32Rotr,

	"i64.clz":    wasm.OpI64Clz,
	"i64.ctz":    wasm.OpI64Ctz,
	"i64.popcnt": wasm.OpI64Popcnt,
	"i64.add":    wasm.OpI64Add,
	"i64.sub":    wasm.OpI64Sub,
	"i64.mul":    wasm.OpI64Mul,
	"i64.div_s":  wasm.OpI64DivS,
	"i64.div_u":  wasm.OpI64DivU,
	"i64.rem_s":  wasm.OpI64RemS,
	"i64.rem_u":  wasm.OpI64RemU,
	"i64.and":    wasm.OpI64And,
	"i64.or":     wasm.OpI64Or,
	"i64.xor":    wasm.OpI64Xor,
	"i64.shl":    wasm.OpI64Shl,
	"i64.shr_s":  wasm.OpI64ShrS,
	"i64.shr_u":  wasm.OpI64ShrU,
	"i64.rotl":   wasm.OpI64Rotl,
	"i64.rotr":   wasm.OpI64Rotr,

	"f32.abs":      wasm.OpF32Abs,
	"f32.neg":      wasm.OpF32Neg,
	"f32.ceil":     wasm.OpF32Ceil,
	"f32.floor":    wasm.OpF32Floor,
	"f32.trunc":    wasm.OpF32Trunc,
	"f32.nearest":  wasm.OpF32Nearest,
	"f32.sqrt":     wasm.OpF32Sqrt,
	"f32.add":      wasm.OpF32Add,
	"f32.sub":      wasm.OpF32Sub,
	"f32.mul":      wasm.OpF32Mul,
	"f32.div":      wasm.OpF32Div,
	"f32.min":      wasm.OpF32Min,
	"f32.max":      wasm.OpF32Max,
	"f32.copysign": wasm.OpF32Copysign,

	"f64.abs":      wasm.OpF64Abs,
	"f64.neg":      wasm.OpF64Neg,
	"f64.ceil":     wasm.OpF64Ceil,
	"f64.floor":    wasm.OpF64Floor,
	"f64.trunc":    wasm.OpF64Trunc,
	"f64.nearest":  wasm.OpF64Nearest,
	"f64.sqrt":     wasm.OpF64Sqrt,
	"f64.add":      wasm.OpF64Add,
	"f64.sub":      wasm.OpF64Sub,
	"f64.mul":      wasm.OpF64Mul,
	"f64.div":      wasm.OpF64Div,
	"f64.min":      wasm.OpF64Min,
	"f64.max":      wasm.OpF64Max,
	"f64.copysign": wasm.OpF64Copysign,

	"i32.wrap_i64":        wasm.OpI32WrapI64,
	"i32.trunc_f32_s":     wasm.OpI32TruncF32S,
	"i32.trunc_f32_u":     wasm.OpI32TruncF32U,
	"i32.trunc_f64_s":     wasm.OpI32TruncF64S,
	"i32.trunc_f64_u":     wasm.OpI32TruncF64U,
	"i64.extend_i32_s":    wasm.OpI64ExtendI32S,
	"i64.extend_i32_u":    wasm.OpI64ExtendI32U,
	"i64.trunc_f32_s":     wasm.OpI64TruncF32S,
	"i64.trunc_f32_u":     wasm.OpI64TruncF32U,
	"i64.trunc_f64_s":     wasm.OpI64TruncF64S,
	"i64.trunc_f64_u":     wasm.OpI64TruncF64U,
	"f32.convert_i32_s":   wasm.OpF32ConvertI32S,
	"f32.convert_i32_u":   wasm.OpF32ConvertI32U,
	"f32.convert_i64_s":   wasm.OpF32ConvertI64S,
	"f32.convert_i64_u":   wasm.OpF32ConvertI64U,
	"f32.demote_f64":      wasm.OpF32DemoteF64,
	"f64.convert_i32_s":   wasm.OpF64ConvertI32S,
	"f64.convert_i32_u":   wasm.OpF64ConvertI32U,
	"f64.convert_i64_s":   wasm.OpF64ConvertI64S,
	"f64.convert_i64_u":   wasm.OpF64ConvertI64U,
	"f64.promote_f32":     wasm.OpF64PromoteF32,
	"i32.reinterpret_f32": wasm.OpI32ReinterpretF32,
	"i64.reinterpret_f64": wasm.OpI64ReinterpretF64,
	"f32.reinterpret_i32": wasm.OpF32ReinterpretI32,
	"f64.reinterpret_i64": wasm.OpF64ReinterpretI64,

	"i32.extend8_s":  wasm.OpI32Extend8S,
	"i32.extend16_s": wasm.OpI32Extend16S,
	"i64.extend8_s":  wasm.OpI64Extend8S,
	"i64.extend16_s": wasm.OpI64Extend16S,
	"i64.extend32_s": wasm.OpI64Extend32S,
}
