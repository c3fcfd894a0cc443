package sched

import (
	"github.com/hermit-os/kernel-go/internal/archconst"
	"github.com/hermit-os/kernel-go/internal/mm"
)

// TLSImage describes the ELF TLS template carried in BootInfo, per spec.md
// §6: "TLS image {start, filesz, memsz, align}".
type TLSImage struct {
	Start  mm.VirtAddr
	FileSz uint64
	MemSz  uint64
	Align  uint64
}

// TLSBlock is the per-task allocation of spec.md §3: variant I (AArch64,
// RISC-V) places a two-word TCB first and the image area after it; variant
// II (x86_64) places the image area before the TCB. NewTLSBlock reserves the
// virtual range and computes these addresses only: it writes no memory, so
// the image is not copied, nothing is zero-filled, and the x86_64 TCB's
// self-pointer is not stored. Grounded on
// original_source/src/scheduler/task/tls.rs.
type TLSBlock struct {
	Base        mm.VirtAddr // first byte of the allocation
	Size        uint64
	ThreadPtr   mm.VirtAddr // value to load into the arch's thread-pointer register
	virt        *mm.VirtAlloc
}

const tcbWords = 2 // two machine words, per spec.md §3

// NewTLSBlock allocates and lays out a TLS block for img on arch.
func NewTLSBlock(virt *mm.VirtAlloc, arch archconst.Arch, img TLSImage) (*TLSBlock, error) {
	wordSize := uint64(8)
	tcbSize := tcbWords * wordSize
	align := img.Align
	if align < wordSize {
		align = wordSize
	}

	total := mm.AlignUp(img.MemSz, align) + tcbSize
	base, err := virt.Allocate(mm.AlignUp(total, 4096), align)
	if err != nil {
		return nil, err
	}

	b := &TLSBlock{Base: base, Size: total, virt: virt}

	switch arch {
	case archconst.X86_64:
		// Variant II: image first, then the TCB at the end.
		// The thread pointer (FS base) addresses the TCB itself.
		tcbAddr := base + mm.VirtAddr(mm.AlignUp(img.MemSz, align))
		b.ThreadPtr = tcbAddr
	default:
		// Variant I (AArch64, RISC-V): TCB first, then the image.
		imageAddr := base + mm.VirtAddr(tcbSize)
		b.ThreadPtr = base
		_ = imageAddr
	}
	return b, nil
}

// Free returns the TLS block's virtual range.
func (b *TLSBlock) Free() {
	if b == nil {
		return
	}
	b.virt.Deallocate(b.Base, mm.AlignUp(b.Size, 4096))
}
