package mm

import "github.com/hermit-os/kernel-go/internal/archconst"

// Flags is the normalized flag vocabulary of spec.md §4.1, translated to
// each architecture's hardware encoding by an ArchCodec.
type Flags uint32

const (
	Present Flags = 1 << iota
	Writable
	ExecuteDisable
	Normal
	Device
	ReadOnly
	Accessed
	User
	Global
)

// PageTableEntry is the abstract, arch-neutral entry described in spec.md
// §3: "when present, the address field is page-aligned; flag bits are drawn
// from a per-arch closed set". Huge marks a leaf at a non-final level (2
// MiB / 1 GiB), since the normalized vocabulary above has no size bit of
// its own -- each ArchCodec encodes it using its own hardware convention
// (the PS bit on x86_64, a block-vs-table descriptor type on AArch64, a
// leaf-at-any-level PTE on RISC-V Sv39).
type PageTableEntry struct {
	Addr  PhysAddr
	Flags Flags
	Huge  bool
}

func (e PageTableEntry) present() bool { return e.Flags&Present != 0 }

// ArchCodec translates between the normalized PageTableEntry and an
// architecture's 64-bit hardware encoding, and describes that
// architecture's table depth -- spec.md §9: "page table level depth ... are
// abstracted by a type-parameterized trait".
type ArchCodec interface {
	Encode(e PageTableEntry) uint64
	Decode(raw uint64) PageTableEntry
	// Levels returns the total number of page table levels (4 for x86_64
	// and AArch64's 48-bit VA, 3 for RISC-V Sv39).
	Levels() int
	// LeafLevel returns the zero-based level index (0 = root) at which the
	// given page size becomes a leaf entry.
	LeafLevel(size PageSize) (level int, err error)
}

// CodecFor returns the ArchCodec for arch.
func CodecFor(arch archconst.Arch) ArchCodec {
	switch arch {
	case archconst.X86_64:
		return amd64Codec{}
	case archconst.AArch64:
		return arm64Codec{}
	case archconst.RISCV64:
		return riscv64Codec{}
	default:
		panic("mm: unknown architecture " + string(arch))
	}
}
