// Package mm implements physical and virtual memory management: typed
// addresses, page ranges, the free-list allocators, paging, and the thin
// device-memory allocator used by DMA-capable drivers.
package mm

import "fmt"

// PhysAddr is a physical machine address. It is a distinct type from
// VirtAddr so the two address spaces can never be mixed by accident.
type PhysAddr uint64

// VirtAddr is a virtual machine address.
type VirtAddr uint64

// alignedU64 reports whether a is aligned to align, which must be a power of two.
func alignedU64(a uint64, align uint64) bool {
	return a&(align-1) == 0
}

// AlignUp rounds a up to the next multiple of align (a power of two).
func AlignUp(a, align uint64) uint64 {
	return (a + align - 1) &^ (align - 1)
}

// AlignDown rounds a down to the previous multiple of align (a power of two).
func AlignDown(a, align uint64) uint64 {
	return a &^ (align - 1)
}

func (p PhysAddr) Aligned(align uint64) bool { return alignedU64(uint64(p), align) }
func (v VirtAddr) Aligned(align uint64) bool { return alignedU64(uint64(v), align) }

func (p PhysAddr) String() string { return fmt.Sprintf("phys:%#x", uint64(p)) }
func (v VirtAddr) String() string { return fmt.Sprintf("virt:%#x", uint64(v)) }
