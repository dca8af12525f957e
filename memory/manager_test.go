package memory

import (
	"bytes"
	stderrors "errors"
	"testing"

	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/errors"
)

// fakeMemory implements engine.Memory without a runtime.
type fakeMemory struct {
	data     []byte
	maxPages uint32 // 0 = unlimited
}

func newFakeMemory(pages uint32, maxPages uint32) *fakeMemory {
	return &fakeMemory{
		data:     make([]byte, pages*engine.PageSize),
		maxPages: maxPages,
	}
}

func (f *fakeMemory) Read(offset, length uint32) ([]byte, bool) {
	if uint64(offset)+uint64(length) > uint64(len(f.data)) {
		return nil, false
	}
	return f.data[offset : offset+length], true
}

func (f *fakeMemory) Write(offset uint32, data []byte) bool {
	if uint64(offset)+uint64(len(data)) > uint64(len(f.data)) {
		return false
	}
	copy(f.data[offset:], data)
	return true
}

func (f *fakeMemory) Size() uint32 {
	return uint32(len(f.data))
}

func (f *fakeMemory) Pages() uint32 {
	return f.Size() / engine.PageSize
}

func (f *fakeMemory) Grow(delta uint32) (uint32, bool) {
	prev := f.Pages()
	if f.maxPages > 0 && prev+delta > f.maxPages {
		return 0, false
	}
	f.data = append(f.data, make([]byte, delta*engine.PageSize)...)
	return prev, true
}

func wantOutOfBounds(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected out-of-bounds error")
	}
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindMemoryOutOfBounds {
		t.Fatalf("expected memory_out_of_bounds, got %v", err)
	}
}

func TestManagerReadWriteRoundTrip(t *testing.T) {
	m := NewManager(newFakeMemory(1, 0), 0, 0)

	payload := []byte("the quick brown fox")
	if err := m.Write(128, payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := m.Read(128, uint32(len(payload)))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("read back %q, want %q", got, payload)
	}
}

func TestManagerReadCopies(t *testing.T) {
	m := NewManager(newFakeMemory(1, 0), 0, 0)

	if err := m.Write(0, []byte{1, 2, 3}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := m.Read(0, 3)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	got[0] = 99

	again, err := m.Read(0, 1)
	if err != nil {
		t.Fatalf("second Read: %v", err)
	}
	if again[0] != 1 {
		t.Errorf("mutating a returned slice changed memory: got %d", again[0])
	}
}

func TestManagerOutOfBounds(t *testing.T) {
	m := NewManager(newFakeMemory(1, 0), 0, 0)
	size := uint32(engine.PageSize)

	_, err := m.Read(size-2, 5)
	wantOutOfBounds(t, err)

	wantOutOfBounds(t, m.Write(size-2, []byte("hello")))

	// Accesses straddling the end by one byte.
	_, err = m.ReadU16(size - 1)
	wantOutOfBounds(t, err)
	_, err = m.ReadU32(size - 3)
	wantOutOfBounds(t, err)
	_, err = m.ReadU64(size - 7)
	wantOutOfBounds(t, err)
	wantOutOfBounds(t, m.WriteU32(size-3, 1))
	wantOutOfBounds(t, m.WriteU64(size-7, 1))
}

func TestManagerScalarAccessors(t *testing.T) {
	m := NewManager(newFakeMemory(1, 0), 0, 0)

	if err := m.WriteU8(10, 0xAB); err != nil {
		t.Fatalf("WriteU8: %v", err)
	}
	if v, err := m.ReadU8(10); err != nil || v != 0xAB {
		t.Errorf("ReadU8 = %#x, %v; want 0xAB", v, err)
	}

	if err := m.WriteU16(12, 0xBEEF); err != nil {
		t.Fatalf("WriteU16: %v", err)
	}
	if v, err := m.ReadU16(12); err != nil || v != 0xBEEF {
		t.Errorf("ReadU16 = %#x, %v; want 0xBEEF", v, err)
	}

	if err := m.WriteU32(16, 0xDEADBEEF); err != nil {
		t.Fatalf("WriteU32: %v", err)
	}
	if v, err := m.ReadU32(16); err != nil || v != 0xDEADBEEF {
		t.Errorf("ReadU32 = %#x, %v; want 0xDEADBEEF", v, err)
	}

	if err := m.WriteU64(24, 0x0123456789ABCDEF); err != nil {
		t.Fatalf("WriteU64: %v", err)
	}
	if v, err := m.ReadU64(24); err != nil || v != 0x0123456789ABCDEF {
		t.Errorf("ReadU64 = %#x, %v; want 0x0123456789ABCDEF", v, err)
	}

	// Scalars are little-endian in memory.
	raw, err := m.Read(16, 4)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(raw, []byte{0xEF, 0xBE, 0xAD, 0xDE}) {
		t.Errorf("u32 bytes = %x, want efbeadde", raw)
	}
}

func TestManagerGrow(t *testing.T) {
	m := NewManager(newFakeMemory(1, 0), 4, 0)

	pages, err := m.Grow(2)
	if err != nil {
		t.Fatalf("Grow(2): %v", err)
	}
	if pages != 3 {
		t.Errorf("Grow(2) = %d pages, want 3", pages)
	}
	if m.Pages() != 3 || m.Size() != 3*engine.PageSize {
		t.Errorf("pages=%d size=%d after grow", m.Pages(), m.Size())
	}
}

func TestManagerGrowBeyondLimit(t *testing.T) {
	m := NewManager(newFakeMemory(2, 0), 4, 0)

	_, err := m.Grow(3)
	if err == nil {
		t.Fatal("expected grow past limit to fail")
	}
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindMemoryGrowLimit {
		t.Fatalf("expected memory_grow_limit, got %v", err)
	}
	if m.Pages() != 2 {
		t.Errorf("refused grow mutated size: %d pages", m.Pages())
	}

	// Huge deltas must not wrap the limit arithmetic.
	if _, err := m.Grow(0xFFFFFFFF); err == nil {
		t.Error("expected huge grow to fail")
	}
	if m.Pages() != 2 {
		t.Errorf("refused grow mutated size: %d pages", m.Pages())
	}
}

func TestManagerGrowEngineRefusal(t *testing.T) {
	// Engine ceiling below the manager's configured limit.
	m := NewManager(newFakeMemory(1, 2), 8, 0)

	if _, err := m.Grow(1); err != nil {
		t.Fatalf("Grow(1): %v", err)
	}
	_, err := m.Grow(1)
	if err == nil {
		t.Fatal("expected engine refusal to surface")
	}
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindMemoryGrowLimit {
		t.Fatalf("expected memory_grow_limit, got %v", err)
	}
	if m.Pages() != 2 {
		t.Errorf("refused grow mutated size: %d pages", m.Pages())
	}
}

func TestSnapshotRestore(t *testing.T) {
	m := NewManager(newFakeMemory(1, 0), 0, 0)

	if err := m.Write(100, []byte("baseline")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	snap, err := m.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Pages() != 1 {
		t.Errorf("snapshot pages = %d, want 1", snap.Pages())
	}

	if err := m.Write(100, []byte("scribble")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := m.Restore(snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	got, err := m.Read(100, 8)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "baseline" {
		t.Errorf("after restore: %q, want \"baseline\"", got)
	}
}

func TestRestoreRefusesGrownMemory(t *testing.T) {
	m := NewManager(newFakeMemory(1, 0), 0, 0)

	snap, err := m.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if _, err := m.Grow(1); err != nil {
		t.Fatalf("Grow: %v", err)
	}

	if err := m.Restore(snap); err == nil {
		t.Fatal("restore onto grown memory should fail")
	}
}

func TestAllocateAligned(t *testing.T) {
	m := NewManager(newFakeMemory(1, 0), 0, 17)

	ptr, err := m.Allocate(5)
	if err != nil {
		t.Fatalf("Allocate(5): %v", err)
	}
	if ptr != 24 {
		t.Errorf("first region at %d, want 24", ptr)
	}

	ptr, err = m.Allocate(3)
	if err != nil {
		t.Fatalf("Allocate(3): %v", err)
	}
	if ptr != 32 {
		t.Errorf("second region at %d, want 32", ptr)
	}
	if ptr%8 != 0 {
		t.Errorf("region %d not 8-byte aligned", ptr)
	}
}

func TestAllocateGrowsMemory(t *testing.T) {
	m := NewManager(newFakeMemory(1, 0), 4, 0)

	ptr, err := m.Allocate(engine.PageSize + 100)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if ptr != 0 {
		t.Errorf("region at %d, want 0", ptr)
	}
	if m.Pages() != 2 {
		t.Errorf("pages = %d after growing allocation, want 2", m.Pages())
	}
}

func TestAllocateGrowLimit(t *testing.T) {
	m := NewManager(newFakeMemory(1, 0), 2, 0)

	_, err := m.Allocate(3 * engine.PageSize)
	if err == nil {
		t.Fatal("expected allocation past the page limit to fail")
	}
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindMemoryGrowLimit {
		t.Fatalf("expected memory_grow_limit, got %v", err)
	}

	// The failed allocation must not move the watermark.
	ptr, err := m.Allocate(8)
	if err != nil {
		t.Fatalf("Allocate(8): %v", err)
	}
	if ptr != 0 {
		t.Errorf("watermark moved by failed allocation: ptr = %d", ptr)
	}
}

func TestResetArena(t *testing.T) {
	m := NewManager(newFakeMemory(1, 0), 0, 64)

	first, err := m.Allocate(16)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if _, err := m.Allocate(16); err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	m.ResetArena()

	again, err := m.Allocate(16)
	if err != nil {
		t.Fatalf("Allocate after reset: %v", err)
	}
	if again != first {
		t.Errorf("after reset got %d, want %d", again, first)
	}
}
