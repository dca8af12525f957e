package engine

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"testing"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/wat"
)

func compileWat(t *testing.T, source string) []byte {
	t.Helper()
	raw, err := wat.Compile(source)
	if err != nil {
		t.Fatalf("compile wat: %v", err)
	}
	return raw
}

const addModule = `(module
	(func (export "add") (param i32 i32) (result i32)
		(i32.add (local.get 0) (local.get 1)))
)`

func TestNewWazeroEngineWithConfig(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		cfg  *Config
		name string
	}{
		{nil, "nil config"},
		{&Config{}, "default config"},
		{&Config{MemoryLimitPages: 256}, "16MB limit"},
		{&Config{MemoryLimitPages: 1024}, "64MB limit"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			eng, err := NewWazeroEngineWithConfig(ctx, tc.cfg)
			if err != nil {
				t.Fatalf("NewWazeroEngineWithConfig: %v", err)
			}
			defer eng.Close(ctx)

			if eng.runtime == nil {
				t.Error("engine runtime should not be nil")
			}
		})
	}
}

func TestWazeroEngine_Close(t *testing.T) {
	ctx := context.Background()

	eng, err := NewWazeroEngine(ctx)
	if err != nil {
		t.Fatalf("NewWazeroEngine: %v", err)
	}
	if err := eng.Close(ctx); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := eng.Close(ctx); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestCompileInvalidBytes(t *testing.T) {
	ctx := context.Background()

	eng, err := NewWazeroEngine(ctx)
	if err != nil {
		t.Fatalf("NewWazeroEngine: %v", err)
	}
	defer eng.Close(ctx)

	_, err = eng.Compile(ctx, []byte{0x00, 0x61, 0x73})
	if err == nil {
		t.Fatal("expected error for truncated bytes")
	}
	var e *errors.Error
	if !stderrors.As(err, &e) {
		t.Fatalf("expected structured error, got %T", err)
	}
	if e.Kind != errors.KindCompilation {
		t.Errorf("kind = %q, want %q", e.Kind, errors.KindCompilation)
	}
}

func TestCompileAndInvoke(t *testing.T) {
	ctx := context.Background()

	eng, err := NewWazeroEngine(ctx)
	if err != nil {
		t.Fatalf("NewWazeroEngine: %v", err)
	}
	defer eng.Close(ctx)

	art, err := eng.Compile(ctx, compileWat(t, addModule))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	defer art.Close(ctx)

	inst, err := art.Instantiate(ctx)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	defer inst.Close(ctx)

	results, err := inst.Invoke(ctx, "add", []uint64{3, 4})
	if err != nil {
		t.Fatalf("Invoke add(3,4): %v", err)
	}
	if len(results) != 1 || results[0] != 7 {
		t.Errorf("add(3,4) = %v, want [7]", results)
	}
}

func TestInvokeMissingExport(t *testing.T) {
	ctx := context.Background()

	eng, err := NewWazeroEngine(ctx)
	if err != nil {
		t.Fatalf("NewWazeroEngine: %v", err)
	}
	defer eng.Close(ctx)

	art, err := eng.Compile(ctx, compileWat(t, addModule))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	inst, err := art.Instantiate(ctx)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	defer inst.Close(ctx)

	_, err = inst.Invoke(ctx, "missing", nil)
	if err == nil {
		t.Fatal("expected error for missing export")
	}
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindNotFound {
		t.Errorf("expected not_found, got %v", err)
	}
}

func TestInvokeArgumentCount(t *testing.T) {
	ctx := context.Background()

	eng, err := NewWazeroEngine(ctx)
	if err != nil {
		t.Fatalf("NewWazeroEngine: %v", err)
	}
	defer eng.Close(ctx)

	art, err := eng.Compile(ctx, compileWat(t, addModule))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	inst, err := art.Instantiate(ctx)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	defer inst.Close(ctx)

	_, err = inst.Invoke(ctx, "add", []uint64{1})
	if err == nil {
		t.Fatal("expected error for wrong argument count")
	}
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindInvalidInput {
		t.Errorf("expected invalid_input, got %v", err)
	}
	if !strings.Contains(err.Error(), "takes 2") {
		t.Errorf("error should name the expected count: %v", err)
	}
}

func TestInvokeNoResults(t *testing.T) {
	ctx := context.Background()

	eng, err := NewWazeroEngine(ctx)
	if err != nil {
		t.Fatalf("NewWazeroEngine: %v", err)
	}
	defer eng.Close(ctx)

	art, err := eng.Compile(ctx, compileWat(t, `(module (func (export "nop")))`))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	inst, err := art.Instantiate(ctx)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	defer inst.Close(ctx)

	results, err := inst.Invoke(ctx, "nop", nil)
	if err != nil {
		t.Fatalf("Invoke nop: %v", err)
	}
	if results != nil {
		t.Errorf("nop results = %v, want nil", results)
	}
}

func TestExportedFunction(t *testing.T) {
	ctx := context.Background()

	eng, err := NewWazeroEngine(ctx)
	if err != nil {
		t.Fatalf("NewWazeroEngine: %v", err)
	}
	defer eng.Close(ctx)

	art, err := eng.Compile(ctx, compileWat(t, addModule))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	inst, err := art.Instantiate(ctx)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	defer inst.Close(ctx)

	info, ok := inst.ExportedFunction("add")
	if !ok {
		t.Fatal("add should be exported")
	}
	if info.Name != "add" {
		t.Errorf("name = %q, want add", info.Name)
	}
	if len(info.Params) != 2 || info.Params[0] != I32 || info.Params[1] != I32 {
		t.Errorf("params = %v, want [i32 i32]", info.Params)
	}
	if len(info.Results) != 1 || info.Results[0] != I32 {
		t.Errorf("results = %v, want [i32]", info.Results)
	}

	if _, ok := inst.ExportedFunction("missing"); ok {
		t.Error("missing should not resolve")
	}
}

func TestArtifactExportedFunctions(t *testing.T) {
	ctx := context.Background()

	eng, err := NewWazeroEngine(ctx)
	if err != nil {
		t.Fatalf("NewWazeroEngine: %v", err)
	}
	defer eng.Close(ctx)

	art, err := eng.Compile(ctx, compileWat(t, `(module
		(func (export "mul") (param i32 i32) (result i32)
			(i32.mul (local.get 0) (local.get 1)))
		(func (export "add") (param i64 i64) (result i64)
			(i64.add (local.get 0) (local.get 1)))
	)`))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	defer art.Close(ctx)

	exports := art.ExportedFunctions()
	if len(exports) != 2 {
		t.Fatalf("got %d exports, want 2", len(exports))
	}
	if exports[0].Name != "add" || exports[1].Name != "mul" {
		t.Errorf("exports not sorted by name: %q, %q", exports[0].Name, exports[1].Name)
	}
	if len(exports[0].Params) != 2 || exports[0].Params[0] != I64 {
		t.Errorf("add params = %v, want [i64 i64]", exports[0].Params)
	}
}

func TestArtifactImportedFunctions(t *testing.T) {
	ctx := context.Background()

	eng, err := NewWazeroEngine(ctx)
	if err != nil {
		t.Fatalf("NewWazeroEngine: %v", err)
	}
	defer eng.Close(ctx)

	art, err := eng.Compile(ctx, compileWat(t, `(module
		(import "env" "log" (func (param i32)))
		(import "host" "read" (func (param i32 i32) (result i32)))
	)`))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	defer art.Close(ctx)

	imports := art.ImportedFunctions()
	if len(imports) != 2 {
		t.Fatalf("got %d imports, want 2", len(imports))
	}
	if imports[0].Namespace != "env" || imports[0].Name != "log" {
		t.Errorf("first import = %s#%s, want env#log", imports[0].Namespace, imports[0].Name)
	}
	if len(imports[0].Params) != 1 || imports[0].Params[0] != I32 || len(imports[0].Results) != 0 {
		t.Errorf("env#log shape = %v -> %v", imports[0].Params, imports[0].Results)
	}
	if imports[1].Namespace != "host" || imports[1].Name != "read" {
		t.Errorf("second import = %s#%s, want host#read", imports[1].Namespace, imports[1].Name)
	}
	if len(imports[1].Params) != 2 || len(imports[1].Results) != 1 {
		t.Errorf("host#read shape = %v -> %v", imports[1].Params, imports[1].Results)
	}
}

func TestMemoryReadWrite(t *testing.T) {
	ctx := context.Background()

	eng, err := NewWazeroEngine(ctx)
	if err != nil {
		t.Fatalf("NewWazeroEngine: %v", err)
	}
	defer eng.Close(ctx)

	art, err := eng.Compile(ctx, compileWat(t, `(module (memory (export "memory") 1))`))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	inst, err := art.Instantiate(ctx)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	defer inst.Close(ctx)

	mem := inst.Memory()
	if mem == nil {
		t.Fatal("memory should not be nil")
	}
	if mem.Size() != PageSize {
		t.Errorf("size = %d, want %d", mem.Size(), PageSize)
	}
	if mem.Pages() != 1 {
		t.Errorf("pages = %d, want 1", mem.Pages())
	}

	if !mem.Write(16, []byte("hello")) {
		t.Fatal("in-bounds write refused")
	}
	data, ok := mem.Read(16, 5)
	if !ok || string(data) != "hello" {
		t.Errorf("read back %q, ok=%v", data, ok)
	}

	if _, ok := mem.Read(PageSize-2, 5); ok {
		t.Error("out-of-bounds read should fail")
	}
	if mem.Write(PageSize-2, []byte("hello")) {
		t.Error("out-of-bounds write should fail")
	}
}

func TestMemoryNoneDeclared(t *testing.T) {
	ctx := context.Background()

	eng, err := NewWazeroEngine(ctx)
	if err != nil {
		t.Fatalf("NewWazeroEngine: %v", err)
	}
	defer eng.Close(ctx)

	art, err := eng.Compile(ctx, compileWat(t, `(module (func (export "nop")))`))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	inst, err := art.Instantiate(ctx)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	defer inst.Close(ctx)

	if mem := inst.Memory(); mem != nil {
		t.Errorf("memory = %v, want nil", mem)
	}
}

func TestMemoryGrowDeclaredMax(t *testing.T) {
	ctx := context.Background()

	eng, err := NewWazeroEngine(ctx)
	if err != nil {
		t.Fatalf("NewWazeroEngine: %v", err)
	}
	defer eng.Close(ctx)

	art, err := eng.Compile(ctx, compileWat(t, `(module (memory 1 2))`))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	inst, err := art.Instantiate(ctx)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	defer inst.Close(ctx)

	mem := inst.Memory()
	prev, ok := mem.Grow(1)
	if !ok || prev != 1 {
		t.Fatalf("Grow(1) = %d, %v; want 1, true", prev, ok)
	}
	if mem.Pages() != 2 {
		t.Errorf("pages = %d, want 2", mem.Pages())
	}

	if _, ok := mem.Grow(1); ok {
		t.Error("grow past declared max should fail")
	}
	if mem.Pages() != 2 {
		t.Errorf("refused grow mutated size: pages = %d", mem.Pages())
	}
}

func TestMemoryGrowRuntimeLimit(t *testing.T) {
	ctx := context.Background()

	eng, err := NewWazeroEngineWithConfig(ctx, &Config{MemoryLimitPages: 2})
	if err != nil {
		t.Fatalf("NewWazeroEngineWithConfig: %v", err)
	}
	defer eng.Close(ctx)

	// No declared max; the runtime limit is the only ceiling.
	art, err := eng.Compile(ctx, compileWat(t, `(module (memory 1))`))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	inst, err := art.Instantiate(ctx)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	defer inst.Close(ctx)

	mem := inst.Memory()
	if _, ok := mem.Grow(1); !ok {
		t.Fatal("grow within runtime limit refused")
	}
	if _, ok := mem.Grow(1); ok {
		t.Error("grow past runtime limit should fail")
	}
	if mem.Pages() != 2 {
		t.Errorf("pages = %d, want 2", mem.Pages())
	}
}

func TestGlobals(t *testing.T) {
	ctx := context.Background()

	eng, err := NewWazeroEngine(ctx)
	if err != nil {
		t.Fatalf("NewWazeroEngine: %v", err)
	}
	defer eng.Close(ctx)

	art, err := eng.Compile(ctx, compileWat(t, `(module
		(global (export "counter") (mut i32) (i32.const 7))
		(global (export "fixed") i32 (i32.const 9))
	)`))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	inst, err := art.Instantiate(ctx)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	defer inst.Close(ctx)

	v, ok := inst.Global("counter")
	if !ok || v != 7 {
		t.Errorf("counter = %d, ok=%v; want 7, true", v, ok)
	}
	if !inst.SetGlobal("counter", 42) {
		t.Fatal("counter is mutable, set should succeed")
	}
	if v, _ := inst.Global("counter"); v != 42 {
		t.Errorf("counter after set = %d, want 42", v)
	}

	if inst.SetGlobal("fixed", 1) {
		t.Error("set on immutable global should fail")
	}
	if v, _ := inst.Global("fixed"); v != 9 {
		t.Errorf("fixed = %d, want 9", v)
	}

	if _, ok := inst.Global("missing"); ok {
		t.Error("missing global should not resolve")
	}
	if inst.SetGlobal("missing", 1) {
		t.Error("set on missing global should fail")
	}
}

func TestHostFunctionRoundTrip(t *testing.T) {
	ctx := context.Background()

	eng, err := NewWazeroEngine(ctx)
	if err != nil {
		t.Fatalf("NewWazeroEngine: %v", err)
	}
	defer eng.Close(ctx)

	err = eng.RegisterHost(ctx, []HostModule{{
		Namespace: "env",
		Funcs: []HostFunc{{
			Name:    "add_ten",
			Params:  []ValueType{I32},
			Results: []ValueType{I32},
			Fn: func(_ context.Context, _ Memory, stack []uint64) error {
				stack[0] = uint64(uint32(stack[0]) + 10)
				return nil
			},
		}},
	}})
	if err != nil {
		t.Fatalf("RegisterHost: %v", err)
	}

	art, err := eng.Compile(ctx, compileWat(t, `(module
		(import "env" "add_ten" (func $add_ten (param i32) (result i32)))
		(func (export "run") (param i32) (result i32)
			(call $add_ten (local.get 0)))
	)`))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	inst, err := art.Instantiate(ctx)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	defer inst.Close(ctx)

	results, err := inst.Invoke(ctx, "run", []uint64{5})
	if err != nil {
		t.Fatalf("Invoke run(5): %v", err)
	}
	if results[0] != 15 {
		t.Errorf("run(5) = %d, want 15", results[0])
	}
}

func TestHostFunctionSeesCallerMemory(t *testing.T) {
	ctx := context.Background()

	eng, err := NewWazeroEngine(ctx)
	if err != nil {
		t.Fatalf("NewWazeroEngine: %v", err)
	}
	defer eng.Close(ctx)

	err = eng.RegisterHost(ctx, []HostModule{{
		Namespace: "env",
		Funcs: []HostFunc{{
			Name: "stamp",
			Fn: func(_ context.Context, mem Memory, _ []uint64) error {
				if mem == nil {
					return stderrors.New("no caller memory")
				}
				if !mem.Write(8, []byte("ok")) {
					return stderrors.New("write refused")
				}
				return nil
			},
		}},
	}})
	if err != nil {
		t.Fatalf("RegisterHost: %v", err)
	}

	art, err := eng.Compile(ctx, compileWat(t, `(module
		(import "env" "stamp" (func $stamp))
		(memory (export "memory") 1)
		(func (export "run") (call $stamp))
	)`))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	inst, err := art.Instantiate(ctx)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	defer inst.Close(ctx)

	if _, err := inst.Invoke(ctx, "run", nil); err != nil {
		t.Fatalf("Invoke run: %v", err)
	}
	data, ok := inst.Memory().Read(8, 2)
	if !ok || string(data) != "ok" {
		t.Errorf("guest memory at 8 = %q, ok=%v; want \"ok\"", data, ok)
	}
}

func TestHostFunctionErrorAbortsCall(t *testing.T) {
	ctx := context.Background()

	eng, err := NewWazeroEngine(ctx)
	if err != nil {
		t.Fatalf("NewWazeroEngine: %v", err)
	}
	defer eng.Close(ctx)

	err = eng.RegisterHost(ctx, []HostModule{{
		Namespace: "env",
		Funcs: []HostFunc{{
			Name: "fail",
			Fn: func(_ context.Context, _ Memory, _ []uint64) error {
				return stderrors.New("boom")
			},
		}},
	}})
	if err != nil {
		t.Fatalf("RegisterHost: %v", err)
	}

	art, err := eng.Compile(ctx, compileWat(t, `(module
		(import "env" "fail" (func $fail))
		(func (export "run") (call $fail))
	)`))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	inst, err := art.Instantiate(ctx)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	defer inst.Close(ctx)

	_, err = inst.Invoke(ctx, "run", nil)
	if err == nil {
		t.Fatal("expected host error to abort the call")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("error should carry the host message: %v", err)
	}
}

func TestRegisterHostDuplicateNamespace(t *testing.T) {
	ctx := context.Background()

	eng, err := NewWazeroEngine(ctx)
	if err != nil {
		t.Fatalf("NewWazeroEngine: %v", err)
	}
	defer eng.Close(ctx)

	mods := []HostModule{{
		Namespace: "env",
		Funcs: []HostFunc{{
			Name: "nop",
			Fn:   func(context.Context, Memory, []uint64) error { return nil },
		}},
	}}
	if err := eng.RegisterHost(ctx, mods); err != nil {
		t.Fatalf("first RegisterHost: %v", err)
	}
	if err := eng.RegisterHost(ctx, mods); err == nil {
		t.Fatal("second registration of the same namespace should fail")
	}
}

func TestTrapUnreachable(t *testing.T) {
	ctx := context.Background()

	eng, err := NewWazeroEngine(ctx)
	if err != nil {
		t.Fatalf("NewWazeroEngine: %v", err)
	}
	defer eng.Close(ctx)

	art, err := eng.Compile(ctx, compileWat(t, `(module (func (export "boom") unreachable))`))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	inst, err := art.Instantiate(ctx)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	defer inst.Close(ctx)

	_, err = inst.Invoke(ctx, "boom", nil)
	if err == nil {
		t.Fatal("expected trap")
	}
	code, ok := errors.TrapCodeOf(err)
	if !ok || code != errors.TrapUnreachable {
		t.Errorf("trap code = %q, ok=%v; want unreachable", code, ok)
	}
	if !errors.Poisons(err) {
		t.Error("a trap should poison the instance")
	}
}

func TestTrapOutOfBoundsAccess(t *testing.T) {
	ctx := context.Background()

	eng, err := NewWazeroEngine(ctx)
	if err != nil {
		t.Fatalf("NewWazeroEngine: %v", err)
	}
	defer eng.Close(ctx)

	art, err := eng.Compile(ctx, compileWat(t, `(module
		(memory 1)
		(func (export "oob") (result i32)
			(i32.load (i32.const 70000)))
	)`))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	inst, err := art.Instantiate(ctx)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	defer inst.Close(ctx)

	_, err = inst.Invoke(ctx, "oob", nil)
	code, ok := errors.TrapCodeOf(err)
	if !ok || code != errors.TrapMemoryOutOfBounds {
		t.Errorf("trap code = %q, ok=%v; want memory_out_of_bounds", code, ok)
	}
}

func TestTrapDivision(t *testing.T) {
	ctx := context.Background()

	eng, err := NewWazeroEngine(ctx)
	if err != nil {
		t.Fatalf("NewWazeroEngine: %v", err)
	}
	defer eng.Close(ctx)

	art, err := eng.Compile(ctx, compileWat(t, `(module
		(func (export "div") (param i32 i32) (result i32)
			(i32.div_s (local.get 0) (local.get 1)))
	)`))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	inst, err := art.Instantiate(ctx)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	defer inst.Close(ctx)

	t.Run("divide by zero", func(t *testing.T) {
		_, err := inst.Invoke(ctx, "div", []uint64{1, 0})
		code, ok := errors.TrapCodeOf(err)
		if !ok || code != errors.TrapDivideByZero {
			t.Errorf("trap code = %q, ok=%v; want divide_by_zero", code, ok)
		}
	})

	t.Run("overflow", func(t *testing.T) {
		// MinInt32 / -1 does not fit in i32.
		_, err := inst.Invoke(ctx, "div", []uint64{0x80000000, 0xFFFFFFFF})
		code, ok := errors.TrapCodeOf(err)
		if !ok || code != errors.TrapIntegerOverflow {
			t.Errorf("trap code = %q, ok=%v; want integer_overflow", code, ok)
		}
	})
}

func TestTrapStackOverflow(t *testing.T) {
	ctx := context.Background()

	eng, err := NewWazeroEngine(ctx)
	if err != nil {
		t.Fatalf("NewWazeroEngine: %v", err)
	}
	defer eng.Close(ctx)

	art, err := eng.Compile(ctx, compileWat(t, `(module
		(func $r (export "recurse") (call $r))
	)`))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	inst, err := art.Instantiate(ctx)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	defer inst.Close(ctx)

	_, err = inst.Invoke(ctx, "recurse", nil)
	code, ok := errors.TrapCodeOf(err)
	if !ok || code != errors.TrapStackExhausted {
		t.Errorf("trap code = %q, ok=%v; want stack_exhausted", code, ok)
	}
}

func TestInvokeContextCanceled(t *testing.T) {
	ctx := context.Background()

	eng, err := NewWazeroEngine(ctx)
	if err != nil {
		t.Fatalf("NewWazeroEngine: %v", err)
	}
	defer eng.Close(ctx)

	art, err := eng.Compile(ctx, compileWat(t, addModule))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	inst, err := art.Instantiate(ctx)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	defer inst.Close(ctx)

	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = inst.Invoke(canceled, "add", []uint64{1, 2})
	if err == nil {
		t.Fatal("expected error under canceled context")
	}
	code, ok := errors.TrapCodeOf(err)
	if !ok || code != errors.TrapCanceled {
		t.Errorf("trap code = %q, ok=%v; want canceled", code, ok)
	}
}

func TestConcurrentInstantiate(t *testing.T) {
	ctx := context.Background()

	eng, err := NewWazeroEngine(ctx)
	if err != nil {
		t.Fatalf("NewWazeroEngine: %v", err)
	}
	defer eng.Close(ctx)

	art, err := eng.Compile(ctx, compileWat(t, addModule))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	defer art.Close(ctx)

	var wg sync.WaitGroup
	errCh := make(chan error, 8)
	for n := 0; n < 8; n++ {
		wg.Add(1)
		go func(n uint64) {
			defer wg.Done()
			inst, err := art.Instantiate(ctx)
			if err != nil {
				errCh <- err
				return
			}
			defer inst.Close(ctx)
			results, err := inst.Invoke(ctx, "add", []uint64{n, n})
			if err != nil {
				errCh <- err
				return
			}
			if results[0] != 2*n {
				errCh <- stderrors.New("wrong result")
			}
		}(uint64(n))
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Errorf("concurrent instantiate: %v", err)
	}
}
