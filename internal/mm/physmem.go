package mm

import (
	"fmt"
	"io"
	"sync"

	"golang.org/x/sys/unix"
)

// PhysMemory is the flat, byte-addressable physical address space that page
// tables are built over. It mirrors the teacher's GuestMemory interface
// (internal/devices/virtio/queue.go) used to read/write ring structures at a
// guest-physical offset; here it plays the same role for page-table nodes
// and DMA descriptors, just from the guest's own point of view instead of
// the host's.
type PhysMemory interface {
	io.ReaderAt
	io.WriterAt
}

// MmapMemory backs PhysMemory with a single anonymous mmap, standing in for
// "firmware reported memory" (spec.md §4.2) with real page-granular OS
// memory rather than a Go slice. ReadAt and WriteAt bounds-check every
// access and return an error when it falls outside the mapping, so no
// out-of-range access reaches the OS as a page fault.
type MmapMemory struct {
	mu   sync.RWMutex
	data []byte
}

// NewMmapMemory mmaps an anonymous region of size bytes.
func NewMmapMemory(size int) (*MmapMemory, error) {
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("mm: mmap %d bytes: %w", size, err)
	}
	return &MmapMemory{data: data}, nil
}

// Close unmaps the backing region.
func (m *MmapMemory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil
	}
	err := unix.Munmap(m.data)
	m.data = nil
	return err
}

func (m *MmapMemory) ReadAt(p []byte, off int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if off < 0 || int(off)+len(p) > len(m.data) {
		return 0, fmt.Errorf("mm: ReadAt out of range: off=%#x len=%d size=%#x", off, len(p), len(m.data))
	}
	return copy(p, m.data[off:]), nil
}

func (m *MmapMemory) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if off < 0 || int(off)+len(p) > len(m.data) {
		return 0, fmt.Errorf("mm: WriteAt out of range: off=%#x len=%d size=%#x", off, len(p), len(m.data))
	}
	return copy(m.data[off:], p), nil
}

// ByteMemory is a plain-slice PhysMemory, used by unit tests that don't need
// real mmap semantics.
type ByteMemory struct {
	mu   sync.RWMutex
	data []byte
}

func NewByteMemory(size int) *ByteMemory {
	return &ByteMemory{data: make([]byte, size)}
}

func (m *ByteMemory) ReadAt(p []byte, off int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if off < 0 || int(off)+len(p) > len(m.data) {
		return 0, fmt.Errorf("mm: ReadAt out of range: off=%#x len=%d size=%#x", off, len(p), len(m.data))
	}
	return copy(p, m.data[off:]), nil
}

func (m *ByteMemory) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if off < 0 || int(off)+len(p) > len(m.data) {
		return 0, fmt.Errorf("mm: WriteAt out of range: off=%#x len=%d size=%#x", off, len(p), len(m.data))
	}
	return copy(m.data[off:], p), nil
}
