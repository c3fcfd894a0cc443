package mm

import (
	"fmt"

	"github.com/hermit-os/kernel-go/internal/archconst"
)

const oneGiB = 1 << 30
const ceiling256GiB = 256 << 30

// VirtAlloc is the per-architecture virtual-address-space free list of
// spec.md §4.2, carved between kernel-end and a well-known ceiling:
//
//	x86_64:  [kernel-end       .. top-of-space)
//	AArch64: [kernel-end       .. 256 GiB)
//	RISC-V:  [round_up(ram_start+total_ram, 1GiB) .. 256 GiB)
type VirtAlloc struct {
	list  *freeList
	arch  archconst.Arch
	floor VirtAddr // task_heap_start(): the ceiling, also the heap floor
}

// topOfSpaceX86_64 is the x86_64 "top-of-space" ceiling: the canonical-address
// boundary just below the kernel's own upper-half mapping.
const topOfSpaceX86_64 = 0x0000_8000_0000_0000

// NewVirtAlloc installs the virtual address range for arch per spec.md
// §4.2. kernelEnd is the first free virtual address after the kernel
// image; for RISC-V, ramStart/totalRAM additionally determine the floor.
func NewVirtAlloc(arch archconst.Arch, kernelEnd VirtAddr, ramStart, totalRAM uint64) (*VirtAlloc, error) {
	v := &VirtAlloc{list: newFreeList(), arch: arch}

	var start, end uint64
	switch arch {
	case archconst.X86_64:
		start, end = uint64(kernelEnd), topOfSpaceX86_64
	case archconst.AArch64:
		start, end = uint64(kernelEnd), ceiling256GiB
	case archconst.RISCV64:
		start, end = AlignUp(ramStart+totalRAM, oneGiB), ceiling256GiB
	default:
		return nil, fmt.Errorf("mm: unknown architecture %q", arch)
	}
	if start >= end {
		return nil, fmt.Errorf("mm: virtual address space is empty for %s (start=%#x end=%#x)", arch, start, end)
	}
	v.list.insert(rawRange{start: start, end: end})
	v.floor = VirtAddr(end)
	return v, nil
}

// Allocate returns the lowest-address virtual range of size bytes aligned
// to align.
func (v *VirtAlloc) Allocate(size, align uint64) (VirtAddr, error) {
	addr, err := v.list.allocate(size, align)
	return VirtAddr(addr), err
}

// Reserve carves out [addr, addr+size) so it is never handed out by
// Allocate, used for fixed mappings like MMIO windows.
func (v *VirtAlloc) Reserve(addr VirtAddr, size uint64) error {
	v.list.mu.Lock()
	defer v.list.mu.Unlock()
	reserved := false
	for i := 0; i < len(v.list.ranges); i++ {
		r := v.list.ranges[i]
		lo := max64(r.start, uint64(addr))
		hi := min64(r.end, uint64(addr)+size)
		if lo < hi {
			v.list.removeSubrangeLocked(i, rawRange{start: lo, end: hi})
			reserved = true
			i = -1 // ranges mutated; restart scan
		}
	}
	if reserved {
		return nil
	}
	return fmt.Errorf("mm: cannot reserve [%#x,%#x): not within the free virtual range", addr, uint64(addr)+size)
}

// Deallocate returns addr..addr+size to the virtual free list.
func (v *VirtAlloc) Deallocate(addr VirtAddr, size uint64) {
	v.list.deallocate(uint64(addr), size)
}

// TaskHeapStart returns the ceiling of the installed range, which is also
// the application-visible heap floor, per spec.md §4.2.
func (v *VirtAlloc) TaskHeapStart() VirtAddr {
	return v.floor
}
