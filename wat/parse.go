package wat

import (
	"fmt"
	"strings"

	"github.com/wippyai/wasm-bridge/wasm"
)

// parser builds a wasm.Module from the token stream in three walks over the
// top-level fields. The first walk assigns indices: imports claim the low
// indices of each space, definitions follow in order of appearance. The
// second walk parses explicit (type ...) declarations so their indices stay
// stable before inline signatures start appending deduplicated entries. The
// third walk parses everything else.
type parser struct {
	toks []token
	pos  int
	mod  *wasm.Module

	funcNames   map[string]uint32
	typeNames   map[string]uint32
	tableNames  map[string]uint32
	memNames    map[string]uint32
	globalNames map[string]uint32
	dataNames   map[string]uint32
	elemNames   map[string]uint32

	numFuncImports   uint32
	numTableImports  uint32
	numMemImports    uint32
	numGlobalImports uint32

	needsDataCount bool
}

func (p *parser) parseModule() (*wasm.Module, error) {
	if err := p.expectLParen(); err != nil {
		return nil, err
	}
	w, err := p.expectWord()
	if err != nil {
		return nil, err
	}
	if w.text != "module" {
		return nil, p.errf(w, "expected 'module', got %q", w.text)
	}
	p.parseOptionalName()

	p.mod = &wasm.Module{}
	p.funcNames = make(map[string]uint32)
	p.typeNames = make(map[string]uint32)
	p.tableNames = make(map[string]uint32)
	p.memNames = make(map[string]uint32)
	p.globalNames = make(map[string]uint32)
	p.dataNames = make(map[string]uint32)
	p.elemNames = make(map[string]uint32)

	fieldsStart := p.pos
	if err := p.scanIndexSpaces(); err != nil {
		return nil, err
	}
	p.pos = fieldsStart
	if err := p.parseFields(true); err != nil {
		return nil, err
	}
	p.pos = fieldsStart
	if err := p.parseFields(false); err != nil {
		return nil, err
	}
	if t := p.peek(); t != nil {
		return nil, p.errf(t, "expected end of input after module")
	}

	if p.needsDataCount {
		n := uint32(len(p.mod.Data))
		p.mod.DataCount = &n
	}
	return p.mod, nil
}

// parseFields walks the module body once. With typesOnly set it parses just
// the (type ...) declarations and skips the rest; otherwise the reverse.
func (p *parser) parseFields(typesOnly bool) error {
	for {
		t := p.peek()
		if t == nil {
			return p.eof()
		}
		if t.kind == tokRParen {
			p.next()
			return nil
		}
		if t.kind != tokLParen {
			return p.errf(t, "expected module field, got %q", t.text)
		}
		head, err := p.fieldHead()
		if err != nil {
			return err
		}
		if (head.text == "type") != typesOnly {
			p.skipForm()
			continue
		}
		switch head.text {
		case "type":
			err = p.parseTypeDecl()
		case "import":
			err = p.parseImport()
		case "func":
			err = p.parseFunc()
		case "table":
			err = p.parseTable()
		case "memory":
			err = p.parseMemory()
		case "global":
			err = p.parseGlobal()
		case "export":
			err = p.parseExportDecl()
		case "start":
			err = p.parseStart()
		case "elem":
			err = p.parseElem()
		case "data":
			err = p.parseData()
		default:
			err = p.errf(head, "unknown module field %q", head.text)
		}
		if err != nil {
			return err
		}
	}
}

// scanIndexSpaces pre-registers every named item so bodies may reference
// functions, globals and segments declared later in the source.
func (p *parser) scanIndexSpaces() error {
	start := p.pos
	var defFuncs, defTables, defMems, defGlobals, defData, defElems []string
	numTypes := uint32(0)
	for {
		t := p.peek()
		if t == nil {
			return p.eof()
		}
		if t.kind == tokRParen {
			break
		}
		if t.kind != tokLParen {
			return p.errf(t, "expected module field, got %q", t.text)
		}
		head, err := p.fieldHead()
		if err != nil {
			return err
		}
		switch head.text {
		case "import":
			if err := p.scanImport(); err != nil {
				return err
			}
		case "type":
			if name := p.parseOptionalName(); name != "" {
				p.typeNames[name] = numTypes
			}
			numTypes++
			p.skipForm()
		case "func":
			defFuncs = append(defFuncs, p.parseOptionalName())
			p.skipForm()
		case "table":
			defTables = append(defTables, p.parseOptionalName())
			// An inline (elem ...) form claims the next element index.
			p.skipInlineExports()
			if t := p.peek(); t != nil && t.kind == tokWord && isRefTypeWord(t.text) {
				defElems = append(defElems, "")
			}
			p.skipForm()
		case "memory":
			defMems = append(defMems, p.parseOptionalName())
			// An inline (data ...) form claims the next data index.
			p.skipInlineExports()
			if p.peekFormHead() == "data" {
				defData = append(defData, "")
			}
			p.skipForm()
		case "global":
			defGlobals = append(defGlobals, p.parseOptionalName())
			p.skipForm()
		case "data":
			defData = append(defData, p.parseOptionalName())
			p.skipForm()
		case "elem":
			defElems = append(defElems, p.parseOptionalName())
			p.skipForm()
		default:
			p.skipForm()
		}
	}
	register := func(names map[string]uint32, base uint32, defs []string) {
		for i, n := range defs {
			if n != "" {
				names[n] = base + uint32(i)
			}
		}
	}
	register(p.funcNames, p.numFuncImports, defFuncs)
	register(p.tableNames, p.numTableImports, defTables)
	register(p.memNames, p.numMemImports, defMems)
	register(p.globalNames, p.numGlobalImports, defGlobals)
	register(p.dataNames, 0, defData)
	register(p.elemNames, 0, defElems)
	p.pos = start
	return nil
}

func (p *parser) skipInlineExports() {
	for p.peekFormHead() == "export" {
		p.fieldHead()
		p.skipForm()
	}
}

func (p *parser) scanImport() error {
	// module and item name strings
	p.next()
	p.next()
	if t := p.peek(); t != nil && t.kind == tokLParen {
		head, err := p.fieldHead()
		if err != nil {
			return err
		}
		name := p.parseOptionalName()
		switch head.text {
		case "func":
			if name != "" {
				p.funcNames[name] = p.numFuncImports
			}
			p.numFuncImports++
		case "table":
			if name != "" {
				p.tableNames[name] = p.numTableImports
			}
			p.numTableImports++
		case "memory":
			if name != "" {
				p.memNames[name] = p.numMemImports
			}
			p.numMemImports++
		case "global":
			if name != "" {
				p.globalNames[name] = p.numGlobalImports
			}
			p.numGlobalImports++
		}
		p.skipForm()
	}
	p.skipForm()
	return nil
}

// (type $name? (func (param ...)* (result ...)*))
func (p *parser) parseTypeDecl() error {
	p.parseOptionalName()
	if err := p.expectLParen(); err != nil {
		return err
	}
	w, err := p.expectWord()
	if err != nil {
		return err
	}
	if w.text != "func" {
		return p.errf(w, "expected 'func' in type declaration, got %q", w.text)
	}
	ft, _, err := p.parseSigParts()
	if err != nil {
		return err
	}
	if err := p.expectRParen(); err != nil {
		return err
	}
	p.mod.Types = append(p.mod.Types, ft)
	return p.expectRParen()
}

// (import "mod" "name" (func ...) | (table ...) | (memory ...) | (global ...))
func (p *parser) parseImport() error {
	modName, err := p.expectString()
	if err != nil {
		return err
	}
	itemName, err := p.expectString()
	if err != nil {
		return err
	}
	if err := p.expectLParen(); err != nil {
		return err
	}
	head, err := p.expectWord()
	if err != nil {
		return err
	}
	imp := wasm.Import{Module: modName.text, Name: itemName.text}
	p.parseOptionalName()
	switch head.text {
	case "func":
		typeIdx, _, err := p.parseTypeUse(head)
		if err != nil {
			return err
		}
		imp.Desc = wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: typeIdx}
	case "memory":
		lim, err := p.parseLimits()
		if err != nil {
			return err
		}
		imp.Desc = wasm.ImportDesc{Kind: wasm.KindMemory, Memory: &wasm.MemoryType{Limits: lim}}
	case "table":
		tt, err := p.parseTableType()
		if err != nil {
			return err
		}
		imp.Desc = wasm.ImportDesc{Kind: wasm.KindTable, Table: &tt}
	case "global":
		gt, err := p.parseGlobalType()
		if err != nil {
			return err
		}
		imp.Desc = wasm.ImportDesc{Kind: wasm.KindGlobal, Global: &gt}
	default:
		return p.errf(head, "unknown import kind %q", head.text)
	}
	if err := p.expectRParen(); err != nil {
		return err
	}
	if err := p.expectRParen(); err != nil {
		return err
	}
	p.mod.Imports = append(p.mod.Imports, imp)
	return nil
}

// (func $name? (export "n")* typeuse (local ...)* instr*)
func (p *parser) parseFunc() error {
	p.parseOptionalName()
	funcIdx := p.numFuncImports + uint32(len(p.mod.Funcs))
	if err := p.parseInlineExports(wasm.KindFunc, funcIdx); err != nil {
		return err
	}
	typeIdx, paramNames, err := p.parseTypeUse(nil)
	if err != nil {
		return err
	}

	var localTypes []wasm.ValType
	var localNames []string
	for p.peekFormHead() == "local" {
		p.fieldHead()
		if name := p.parseOptionalName(); name != "" {
			vt, err := p.parseValTypeWord()
			if err != nil {
				return err
			}
			localTypes = append(localTypes, vt)
			localNames = append(localNames, name)
			if err := p.expectRParen(); err != nil {
				return err
			}
			continue
		}
		for {
			t := p.peek()
			if t == nil {
				return p.eof()
			}
			if t.kind == tokRParen {
				p.next()
				break
			}
			vt, err := p.parseValTypeWord()
			if err != nil {
				return err
			}
			localTypes = append(localTypes, vt)
			localNames = append(localNames, "")
		}
	}

	fc := &funcContext{locals: make(map[string]uint32)}
	for i, n := range paramNames {
		if n != "" {
			fc.locals[n] = uint32(i)
		}
	}
	numParams := uint32(len(p.mod.Types[typeIdx].Params))
	for i, n := range localNames {
		if n != "" {
			fc.locals[n] = numParams + uint32(i)
		}
	}

	var instrs []wasm.Instruction
	if err := p.parseInstrSeq(fc, &instrs); err != nil {
		return err
	}
	instrs = append(instrs, wasm.Instruction{Opcode: wasm.OpEnd})

	p.mod.Funcs = append(p.mod.Funcs, typeIdx)
	p.mod.Code = append(p.mod.Code, wasm.FuncBody{
		Locals: groupLocals(localTypes),
		Code:   wasm.EncodeInstructions(instrs),
	})
	return nil
}

// (memory $name? (export "n")* (limits | (data "bytes"*)))
func (p *parser) parseMemory() error {
	p.parseOptionalName()
	memIdx := p.numMemImports + uint32(len(p.mod.Memories))
	if err := p.parseInlineExports(wasm.KindMemory, memIdx); err != nil {
		return err
	}
	if p.peekFormHead() == "data" {
		p.fieldHead()
		bytes, err := p.parseStringBytes()
		if err != nil {
			return err
		}
		pages := uint32((len(bytes) + pageSize - 1) / pageSize)
		max := pages
		p.mod.Memories = append(p.mod.Memories, wasm.MemoryType{Limits: wasm.Limits{Min: pages, Max: &max}})
		p.mod.Data = append(p.mod.Data, wasm.DataSegment{
			Offset: constExprBytes(wasm.Instruction{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{}}),
			Init:   bytes,
		})
		return p.expectRParen()
	}
	lim, err := p.parseLimits()
	if err != nil {
		return err
	}
	p.mod.Memories = append(p.mod.Memories, wasm.MemoryType{Limits: lim})
	return p.expectRParen()
}

// A WebAssembly page is 64 KiB.
const pageSize = 65536

// (table $name? (export "n")* (limits reftype | reftype (elem idx*)))
func (p *parser) parseTable() error {
	p.parseOptionalName()
	tableIdx := p.numTableImports + uint32(len(p.mod.Tables))
	if err := p.parseInlineExports(wasm.KindTable, tableIdx); err != nil {
		return err
	}
	if t := p.peek(); t != nil && t.kind == tokWord && isRefTypeWord(t.text) {
		et, _ := refTypeByte(t.text)
		p.next()
		if err := p.expectLParen(); err != nil {
			return err
		}
		w, err := p.expectWord()
		if err != nil {
			return err
		}
		if w.text != "elem" {
			return p.errf(w, "expected 'elem' in inline table, got %q", w.text)
		}
		var idxs []uint32
		for {
			t := p.peek()
			if t == nil {
				return p.eof()
			}
			if t.kind == tokRParen {
				p.next()
				break
			}
			idx, err := p.parseIdxIn(p.funcNames, "function")
			if err != nil {
				return err
			}
			idxs = append(idxs, idx)
		}
		n := uint32(len(idxs))
		p.mod.Tables = append(p.mod.Tables, wasm.TableType{ElemType: et, Limits: wasm.Limits{Min: n, Max: &n}})
		elem := wasm.Element{
			Offset:   constExprBytes(wasm.Instruction{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{}}),
			FuncIdxs: idxs,
			TableIdx: tableIdx,
		}
		if tableIdx != 0 {
			elem.Flags = 2
		}
		p.mod.Elements = append(p.mod.Elements, elem)
		return p.expectRParen()
	}
	tt, err := p.parseTableType()
	if err != nil {
		return err
	}
	p.mod.Tables = append(p.mod.Tables, tt)
	return p.expectRParen()
}

// (global $name? (export "n")* globaltype initexpr)
func (p *parser) parseGlobal() error {
	p.parseOptionalName()
	globalIdx := p.numGlobalImports + uint32(len(p.mod.Globals))
	if err := p.parseInlineExports(wasm.KindGlobal, globalIdx); err != nil {
		return err
	}
	gt, err := p.parseGlobalType()
	if err != nil {
		return err
	}
	init, err := p.parseConstExpr()
	if err != nil {
		return err
	}
	p.mod.Globals = append(p.mod.Globals, wasm.Global{Type: gt, Init: init})
	return p.expectRParen()
}

// (export "name" (func|table|memory|global idx))
func (p *parser) parseExportDecl() error {
	name, err := p.expectString()
	if err != nil {
		return err
	}
	if err := p.expectLParen(); err != nil {
		return err
	}
	head, err := p.expectWord()
	if err != nil {
		return err
	}
	var kind byte
	var idx uint32
	switch head.text {
	case "func":
		kind = wasm.KindFunc
		idx, err = p.parseIdxIn(p.funcNames, "function")
	case "table":
		kind = wasm.KindTable
		idx, err = p.parseIdxIn(p.tableNames, "table")
	case "memory":
		kind = wasm.KindMemory
		idx, err = p.parseIdxIn(p.memNames, "memory")
	case "global":
		kind = wasm.KindGlobal
		idx, err = p.parseIdxIn(p.globalNames, "global")
	default:
		return p.errf(head, "unknown export kind %q", head.text)
	}
	if err != nil {
		return err
	}
	if err := p.expectRParen(); err != nil {
		return err
	}
	if err := p.expectRParen(); err != nil {
		return err
	}
	p.mod.Exports = append(p.mod.Exports, wasm.Export{Name: name.text, Kind: kind, Idx: idx})
	return nil
}

// (start funcidx)
func (p *parser) parseStart() error {
	idx, err := p.parseIdxIn(p.funcNames, "function")
	if err != nil {
		return err
	}
	p.mod.Start = &idx
	return p.expectRParen()
}

// Element segments:
//
//	(elem $e? (offset) idx*)          active, bare function list
//	(elem $e? (offset) func idx*)     active, explicit elemkind
//	(elem $e? (offset) reftype expr*) active, expression items
//	(elem $e? func idx*)              passive
//	(elem $e? reftype expr*)          passive, expression items
//	(elem declare func idx*)          declarative
func (p *parser) parseElem() error {
	declare := false
	if t := p.peek(); t != nil && t.kind == tokWord && t.text == "declare" {
		declare = true
		p.next()
	} else {
		p.parseOptionalName()
		if t := p.peek(); t != nil && t.kind == tokWord && t.text == "declare" {
			declare = true
			p.next()
		}
	}

	var elem wasm.Element
	active := false
	if !declare {
		if t := p.peek(); t != nil && t.kind == tokLParen {
			active = true
			offset, err := p.parseOffsetExpr()
			if err != nil {
				return err
			}
			elem.Offset = offset
		}
	}

	useExprs := false
	if t := p.peek(); t != nil && t.kind == tokWord {
		switch {
		case t.text == "func":
			p.next()
		case isRefTypeWord(t.text):
			et, _ := refTypeByte(t.text)
			p.next()
			useExprs = true
			elem.Type = wasm.ValType(et)
		}
	}

	if useExprs {
		for {
			t := p.peek()
			if t == nil {
				return p.eof()
			}
			if t.kind == tokRParen {
				p.next()
				break
			}
			expr, err := p.parseConstExpr()
			if err != nil {
				return err
			}
			elem.Exprs = append(elem.Exprs, expr)
		}
		switch {
		case active && elem.Type == wasm.ValFuncRef:
			elem.Flags = 4
		case active:
			elem.Flags = 6
		case declare:
			elem.Flags = 7
		default:
			elem.Flags = 5
		}
	} else {
		for {
			t := p.peek()
			if t == nil {
				return p.eof()
			}
			if t.kind == tokRParen {
				p.next()
				break
			}
			idx, err := p.parseIdxIn(p.funcNames, "function")
			if err != nil {
				return err
			}
			elem.FuncIdxs = append(elem.FuncIdxs, idx)
		}
		switch {
		case active:
			elem.Flags = 0
		case declare:
			elem.Flags = 3
		default:
			elem.Flags = 1
		}
	}
	p.mod.Elements = append(p.mod.Elements, elem)
	return nil
}

// (data $d? (memory idx)? (offset) "bytes"* | $d? "bytes"*)
func (p *parser) parseData() error {
	p.parseOptionalName()
	var seg wasm.DataSegment
	if p.peekFormHead() == "memory" {
		p.fieldHead()
		idx, err := p.parseIdxIn(p.memNames, "memory")
		if err != nil {
			return err
		}
		if err := p.expectRParen(); err != nil {
			return err
		}
		seg.MemIdx = idx
		if idx != 0 {
			seg.Flags = 2
		}
	}
	if t := p.peek(); t != nil && t.kind == tokLParen {
		offset, err := p.parseOffsetExpr()
		if err != nil {
			return err
		}
		seg.Offset = offset
	} else {
		seg.Flags = 1
		p.needsDataCount = true
	}
	bytes, err := p.parseStringBytes()
	if err != nil {
		return err
	}
	seg.Init = bytes
	p.mod.Data = append(p.mod.Data, seg)
	return nil
}

// parseInlineExports consumes any number of (export "name") forms and binds
// them to the item under construction.
func (p *parser) parseInlineExports(kind byte, idx uint32) error {
	for p.peekFormHead() == "export" {
		p.fieldHead()
		name, err := p.expectString()
		if err != nil {
			return err
		}
		if err := p.expectRParen(); err != nil {
			return err
		}
		p.mod.Exports = append(p.mod.Exports, wasm.Export{Name: name.text, Kind: kind, Idx: idx})
	}
	return nil
}

// parseTypeUse resolves an optional (type ...) reference plus inline
// (param)/(result) forms to a type index, registering new signatures through
// the module's deduplicating type table. at names the surrounding form for
// error reporting and may be nil.
func (p *parser) parseTypeUse(at *token) (uint32, []string, error) {
	var explicit *uint32
	if p.peekFormHead() == "type" {
		p.fieldHead()
		idx, err := p.parseIdxIn(p.typeNames, "type")
		if err != nil {
			return 0, nil, err
		}
		if err := p.expectRParen(); err != nil {
			return 0, nil, err
		}
		explicit = &idx
	}
	ft, names, err := p.parseSigParts()
	if err != nil {
		return 0, nil, err
	}
	if explicit != nil {
		if int(*explicit) >= len(p.mod.Types) {
			return 0, nil, p.errf(at, "unknown type %d", *explicit)
		}
		if (len(ft.Params) > 0 || len(ft.Results) > 0) && !sigEqual(p.mod.Types[*explicit], ft) {
			return 0, nil, p.errf(at, "inline signature does not match type %d", *explicit)
		}
		return *explicit, names, nil
	}
	return p.mod.AddType(ft), names, nil
}

// parseSigParts reads consecutive (param ...) and (result ...) forms. It
// stops before any other form and leaves the enclosing ')' unconsumed.
func (p *parser) parseSigParts() (wasm.FuncType, []string, error) {
	var ft wasm.FuncType
	var names []string
	for {
		head := p.peekFormHead()
		if head != "param" && head != "result" {
			return ft, names, nil
		}
		p.fieldHead()
		if head == "param" {
			if name := p.parseOptionalName(); name != "" {
				vt, err := p.parseValTypeWord()
				if err != nil {
					return ft, nil, err
				}
				ft.Params = append(ft.Params, vt)
				names = append(names, name)
				if err := p.expectRParen(); err != nil {
					return ft, nil, err
				}
				continue
			}
		}
		for {
			t := p.peek()
			if t == nil {
				return ft, nil, p.eof()
			}
			if t.kind == tokRParen {
				p.next()
				break
			}
			vt, err := p.parseValTypeWord()
			if err != nil {
				return ft, nil, err
			}
			if head == "param" {
				ft.Params = append(ft.Params, vt)
				names = append(names, "")
			} else {
				ft.Results = append(ft.Results, vt)
			}
		}
	}
}

func (p *parser) parseLimits() (wasm.Limits, error) {
	w, err := p.expectWord()
	if err != nil {
		return wasm.Limits{}, err
	}
	min, err := parseU32(w.text)
	if err != nil {
		return wasm.Limits{}, p.errf(w, "%v", err)
	}
	lim := wasm.Limits{Min: min}
	if t := p.peek(); t != nil && t.kind == tokWord && !isRefTypeWord(t.text) {
		max, err := parseU32(t.text)
		if err != nil {
			return wasm.Limits{}, p.errf(t, "%v", err)
		}
		p.next()
		lim.Max = &max
	}
	return lim, nil
}

func (p *parser) parseTableType() (wasm.TableType, error) {
	lim, err := p.parseLimits()
	if err != nil {
		return wasm.TableType{}, err
	}
	w, err := p.expectWord()
	if err != nil {
		return wasm.TableType{}, err
	}
	et, ok := refTypeByteChecked(w.text)
	if !ok {
		return wasm.TableType{}, p.errf(w, "unknown reference type %q", w.text)
	}
	return wasm.TableType{ElemType: et, Limits: lim}, nil
}

func (p *parser) parseGlobalType() (wasm.GlobalType, error) {
	if p.peekFormHead() == "mut" {
		p.fieldHead()
		vt, err := p.parseValTypeWord()
		if err != nil {
			return wasm.GlobalType{}, err
		}
		if err := p.expectRParen(); err != nil {
			return wasm.GlobalType{}, err
		}
		return wasm.GlobalType{ValType: vt, Mutable: true}, nil
	}
	vt, err := p.parseValTypeWord()
	if err != nil {
		return wasm.GlobalType{}, err
	}
	return wasm.GlobalType{ValType: vt}, nil
}

// parseOffsetExpr accepts both the (offset (expr)) keyword form and a bare
// constant expression.
func (p *parser) parseOffsetExpr() ([]byte, error) {
	if p.peekFormHead() == "offset" {
		p.fieldHead()
		expr, err := p.parseConstExpr()
		if err != nil {
			return nil, err
		}
		return expr, p.expectRParen()
	}
	return p.parseConstExpr()
}

// parseConstExpr parses one folded constant instruction and returns its
// binary encoding terminated with end.
func (p *parser) parseConstExpr() ([]byte, error) {
	if err := p.expectLParen(); err != nil {
		return nil, err
	}
	op, err := p.expectWord()
	if err != nil {
		return nil, err
	}
	var instr wasm.Instruction
	switch op.text {
	case "i32.const":
		w, err := p.expectWord()
		if err != nil {
			return nil, err
		}
		v, err := parseI32(w.text)
		if err != nil {
			return nil, p.errf(w, "%v", err)
		}
		instr = wasm.Instruction{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: v}}
	case "i64.const":
		w, err := p.expectWord()
		if err != nil {
			return nil, err
		}
		v, err := parseI64(w.text)
		if err != nil {
			return nil, p.errf(w, "%v", err)
		}
		instr = wasm.Instruction{Opcode: wasm.OpI64Const, Imm: wasm.I64Imm{Value: v}}
	case "f32.const":
		w, err := p.expectWord()
		if err != nil {
			return nil, err
		}
		v, err := parseFloat(w.text, 32)
		if err != nil {
			return nil, p.errf(w, "%v", err)
		}
		instr = wasm.Instruction{Opcode: wasm.OpF32Const, Imm: wasm.F32Imm{Value: float32(v)}}
	case "f64.const":
		w, err := p.expectWord()
		if err != nil {
			return nil, err
		}
		v, err := parseFloat(w.text, 64)
		if err != nil {
			return nil, p.errf(w, "%v", err)
		}
		instr = wasm.Instruction{Opcode: wasm.OpF64Const, Imm: wasm.F64Imm{Value: v}}
	case "global.get":
		idx, err := p.parseIdxIn(p.globalNames, "global")
		if err != nil {
			return nil, err
		}
		instr = wasm.Instruction{Opcode: wasm.OpGlobalGet, Imm: wasm.GlobalImm{GlobalIdx: idx}}
	case "ref.null":
		ht, err := p.parseHeapType()
		if err != nil {
			return nil, err
		}
		instr = wasm.Instruction{Opcode: wasm.OpRefNull, Imm: wasm.RefNullImm{HeapType: ht}}
	case "ref.func":
		idx, err := p.parseIdxIn(p.funcNames, "function")
		if err != nil {
			return nil, err
		}
		instr = wasm.Instruction{Opcode: wasm.OpRefFunc, Imm: wasm.RefFuncImm{FuncIdx: idx}}
	default:
		return nil, p.errf(op, "unsupported constant expression %q", op.text)
	}
	if err := p.expectRParen(); err != nil {
		return nil, err
	}
	return constExprBytes(instr), nil
}

func constExprBytes(instr wasm.Instruction) []byte {
	return wasm.EncodeInstructions([]wasm.Instruction{instr, {Opcode: wasm.OpEnd}})
}

// parseStringBytes concatenates string literals up to and including the
// closing ')'.
func (p *parser) parseStringBytes() ([]byte, error) {
	var out []byte
	for {
		t := p.peek()
		if t == nil {
			return nil, p.eof()
		}
		if t.kind == tokRParen {
			p.next()
			return out, nil
		}
		if t.kind != tokString {
			return nil, p.errf(t, "expected string literal, got %q", t.text)
		}
		out = append(out, t.text...)
		p.next()
	}
}

func (p *parser) parseValTypeWord() (wasm.ValType, error) {
	w, err := p.expectWord()
	if err != nil {
		return 0, err
	}
	vt, ok := valTypeFor(w.text)
	if !ok {
		return 0, p.errf(w, "unknown value type %q", w.text)
	}
	return vt, nil
}

// parseIdxIn resolves a numeric index or a $name against the given space.
func (p *parser) parseIdxIn(names map[string]uint32, space string) (uint32, error) {
	w, err := p.expectWord()
	if err != nil {
		return 0, err
	}
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

func (p *parser) parseOptionalName() string {
	if t := p.peek(); t != nil && t.kind == tokWord && strings.HasPrefix(t.text, "$") {
		p.next()
		return t.text
	}
	return ""
}

// fieldHead consumes '(' plus the keyword that names the form.
func (p *parser) fieldHead() (*token, error) {
	if err := p.expectLParen(); err != nil {
		return nil, err
	}
	return p.expectWord()
}

// peekFormHead returns the keyword of the upcoming form without consuming
// anything, or "" when the next token does not open a form.
func (p *parser) peekFormHead() string {
	if t := p.peek(); t == nil || t.kind != tokLParen {
		return ""
	}
	if t := p.peekAhead(1); t != nil && t.kind == tokWord {
		return t.text
	}
	return ""
}

// skipForm advances past the current form. The opening '(' and head word
// have already been consumed.
func (p *parser) skipForm() {
	depth := 1
	for p.pos < len(p.toks) && depth > 0 {
		switch p.toks[p.pos].kind {
		case tokLParen:
			depth++
		case tokRParen:
			depth--
		}
		p.pos++
	}
}

func (p *parser) peek() *token {
	if p.pos >= len(p.toks) {
		return nil
	}
	return &p.toks[p.pos]
}

func (p *parser) peekAhead(n int) *token {
	if p.pos+n >= len(p.toks) {
		return nil
	}
	return &p.toks[p.pos+n]
}

func (p *parser) next() *token {
	t := p.peek()
	if t != nil {
		p.pos++
	}
	return t
}

func (p *parser) expectLParen() error {
	t := p.next()
	if t == nil {
		return p.eof()
	}
	if t.kind != tokLParen {
		return p.errf(t, "expected '(', got %q", t.text)
	}
	return nil
}

func (p *parser) expectRParen() error {
	t := p.next()
	if t == nil {
		return p.eof()
	}
	if t.kind != tokRParen {
		return p.errf(t, "expected ')', got %q", t.text)
	}
	return nil
}

func (p *parser) expectWord() (*token, error) {
	t := p.next()
	if t == nil {
		return nil, p.eof()
	}
	if t.kind != tokWord {
		return nil, p.errf(t, "expected keyword, got %q", t.text)
	}
	return t, nil
}

func (p *parser) expectString() (*token, error) {
	t := p.next()
	if t == nil {
		return nil, p.eof()
	}
	if t.kind != tokString {
		return nil, p.errf(t, "expected string literal, got %q", t.text)
	}
	return t, nil
}

func (p *parser) errf(at *token, format string, args ...interface{}) error {
	if at == nil {
		if p.pos < len(p.toks) {
			at = &p.toks[p.pos]
		} else if len(p.toks) > 0 {
			at = &p.toks[len(p.toks)-1]
		} else {
			return &SyntaxError{Line: 1, Col: 1, Msg: fmt.Sprintf(format, args...)}
		}
	}
	return &SyntaxError{Line: at.line, Col: at.col, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) eof() error {
	line, col := 1, 1
	if n := len(p.toks); n > 0 {
		line, col = p.toks[n-1].line, p.toks[n-1].col
	}
	return &SyntaxError{Line: line, Col: col, Msg: "unexpected end of input"}
}

func groupLocals(types []wasm.ValType) []wasm.LocalEntry {
	var entries []wasm.LocalEntry
	for _, t := range types {
		if n := len(entries); n > 0 && entries[n-1].ValType == t {
			entries[n-1].Count++
			continue
		}
		entries = append(entries, wasm.LocalEntry{Count: 1, ValType: t})
	}
	return entries
}

func sigEqual(a, b wasm.FuncType) bool {
	if len(a.Params) != len(b.Params) || len(a.Results) != len(b.Results) {
		return false
	}
	for i := range a.Params {
		if a.Params[i] != b.Params[i] {
			return false
		}
	}
	for i := range a.Results {
		if a.Results[i] != b.Results[i] {
			return false
		}
	}
	return true
}

func valTypeFor(s string) (wasm.ValType, bool) {
	switch s {
	case "i32":
		return wasm.ValI32, true
	case "i64":
		return wasm.ValI64, true
	case "f32":
		return wasm.ValF32, true
	case "f64":
		return wasm.ValF64, true
	case "funcref":
		return wasm.ValFuncRef, true
	case "externref":
		return wasm.ValExtern, true
	}
	return 0, false
}

func isRefTypeWord(s string) bool {
	return s == "funcref" || s == "externref"
}

func refTypeByte(s string) (byte, int64) {
	if s == "externref" {
		return byte(wasm.ValExtern), heapTypeExtern
	}
	return byte(wasm.ValFuncRef), heapTypeFunc
}

func refTypeByteChecked(s string) (byte, bool) {
	if !isRefTypeWord(s) {
		return 0, false
	}
	b, _ := refTypeByte(s)
	return b, true
}

// Heap types encode as negative s33 values in ref.null immediates.
const (
	heapTypeFunc   int64 = -16 // 0x70
	heapTypeExtern int64 = -17 // 0x6F
)
