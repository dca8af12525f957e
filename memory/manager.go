package memory

import (
	"encoding/binary"
	"fmt"

	wasmbridge "github.com/wippyai/wasm-bridge"
	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/errors"
)

// Manager wraps one instance's linear memory with the bridge's bounds
// policy, growth limit, baseline snapshots and the call-ABI arena.
//
// A Manager belongs to a single instance and is not safe for concurrent
// use, same as the instance itself.
type Manager struct {
	view     engine.Memory
	maxPages uint32
	heapBase uint32
	next     uint32
}

// NewManager wraps a memory view. maxPages caps growth through the
// manager, 0 leaves only the engine's own ceiling. heapBase is the first
// byte the arena may hand out; guest code below it is never allocated
// over.
func NewManager(view engine.Memory, maxPages, heapBase uint32) *Manager {
	return &Manager{
		view:     view,
		maxPages: maxPages,
		heapBase: heapBase,
		next:     heapBase,
	}
}

// Read copies length bytes out of memory starting at offset.
func (m *Manager) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.view.Read(offset, length)
	if !ok {
		return nil, errors.MemoryOutOfBounds(errors.PhaseMemory, offset, length, m.view.Size())
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Write copies data into memory starting at offset.
func (m *Manager) Write(offset uint32, data []byte) error {
	if !m.view.Write(offset, data) {
		return errors.MemoryOutOfBounds(errors.PhaseMemory, offset, uint32(len(data)), m.view.Size())
	}
	return nil
}

func (m *Manager) ReadU8(offset uint32) (uint8, error) {
	data, ok := m.view.Read(offset, 1)
	if !ok {
		return 0, errors.MemoryOutOfBounds(errors.PhaseMemory, offset, 1, m.view.Size())
	}
	return data[0], nil
}

func (m *Manager) ReadU16(offset uint32) (uint16, error) {
	data, ok := m.view.Read(offset, 2)
	if !ok {
		return 0, errors.MemoryOutOfBounds(errors.PhaseMemory, offset, 2, m.view.Size())
	}
	return uint16(data[0]) | uint16(data[1])<<8, nil
}

func (m *Manager) ReadU32(offset uint32) (uint32, error) {
	data, ok := m.view.Read(offset, 4)
	if !ok {
		return 0, errors.MemoryOutOfBounds(errors.PhaseMemory, offset, 4, m.view.Size())
	}
	return binary.LittleEndian.Uint32(data), nil
}

func (m *Manager) ReadU64(offset uint32) (uint64, error) {
	data, ok := m.view.Read(offset, 8)
	if !ok {
		return 0, errors.MemoryOutOfBounds(errors.PhaseMemory, offset, 8, m.view.Size())
	}
	return binary.LittleEndian.Uint64(data), nil
}

func (m *Manager) WriteU8(offset uint32, value uint8) error {
	return m.Write(offset, []byte{value})
}

func (m *Manager) WriteU16(offset uint32, value uint16) error {
	return m.Write(offset, []byte{byte(value), byte(value >> 8)})
}

func (m *Manager) WriteU32(offset uint32, value uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], value)
	return m.Write(offset, buf[:])
}

func (m *Manager) WriteU64(offset uint32, value uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], value)
	return m.Write(offset, buf[:])
}

// Size returns the current byte size of memory.
func (m *Manager) Size() uint32 {
	return m.view.Size()
}

// Pages returns the current size in 64KiB pages.
func (m *Manager) Pages() uint32 {
	return m.view.Pages()
}

// Grow adds pages and returns the new page count. The configured
// maximum is checked before the engine sees the request; a refused grow
// never mutates the size.
func (m *Manager) Grow(additionalPages uint32) (uint32, error) {
	current := m.view.Pages()
	if m.maxPages > 0 && (additionalPages > m.maxPages || current > m.maxPages-additionalPages) {
		return 0, errors.MemoryGrowLimit(current, additionalPages, m.maxPages)
	}
	if _, ok := m.view.Grow(additionalPages); !ok {
		limit := m.maxPages
		if limit == 0 {
			// The engine refused below any configured ceiling; the
			// module's declared maximum is the binding one.
			limit = current
		}
		return 0, errors.MemoryGrowLimit(current, additionalPages, limit)
	}
	return m.view.Pages(), nil
}

// Snapshot is a full image of linear memory at a point in time.
type Snapshot struct {
	data  []byte
	pages uint32
}

// Pages returns the page count captured in the snapshot.
func (s *Snapshot) Pages() uint32 {
	return s.pages
}

// Snapshot captures the current page count and contents.
func (m *Manager) Snapshot() (*Snapshot, error) {
	data, err := m.Read(0, m.view.Size())
	if err != nil {
		return nil, err
	}
	return &Snapshot{data: data, pages: m.view.Pages()}, nil
}

// Restore rewrites memory to a snapshot taken earlier on the same
// instance. Linear memory cannot shrink, so a memory that grew since
// the snapshot is refused; the caller discards the instance instead.
func (m *Manager) Restore(snap *Snapshot) error {
	if m.view.Pages() != snap.pages {
		return errors.InvalidInput(errors.PhaseMemory,
			fmt.Sprintf("memory grew from %d to %d pages since the snapshot", snap.pages, m.view.Pages()))
	}
	return m.Write(0, snap.data)
}

// Allocate hands out an 8-byte-aligned region from the arena, growing
// memory as needed within the configured limit. Regions stay valid
// until ResetArena.
func (m *Manager) Allocate(size uint32) (uint32, error) {
	ptr := (uint64(m.next) + 7) &^ 7
	end := ptr + uint64(size)
	if end > uint64(m.view.Size()) {
		needed := end - uint64(m.view.Size())
		pages := uint32((needed + engine.PageSize - 1) / engine.PageSize)
		if _, err := m.Grow(pages); err != nil {
			return 0, err
		}
	}
	m.next = uint32(end)
	return uint32(ptr), nil
}

// ResetArena rewinds the allocation watermark to the heap base. Regions
// from the previous call become dead.
func (m *Manager) ResetArena() {
	m.next = m.heapBase
}

var (
	_ wasmbridge.Memory    = (*Manager)(nil)
	_ wasmbridge.Allocator = (*Manager)(nil)
)
