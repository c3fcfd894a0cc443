package mm

import (
	"encoding/binary"
	"fmt"

	"github.com/hermit-os/kernel-go/internal/archconst"
)

const entriesPerLevel = 512 // 9 VA bits per level on every supported arch
const pageBits = 12         // 4 KiB base page

// Paging implements the multi-level page table walk of spec.md §4.1: map,
// unmap, identity-map, and translate, over a generic page-size trait
// realized here as the PageSize interface (see pagesize.go) rather than a
// Rust-style const generic, per the guidance in spec.md §9.
type Paging struct {
	arch    archconst.Arch
	codec   ArchCodec
	root    PhysAddr
	mem     PhysMemory
	phys    *PhysAlloc
	flusher TLBFlusher
}

// NewPaging allocates a fresh, zeroed root table and returns a Paging ready
// to install mappings into it.
func NewPaging(arch archconst.Arch, mem PhysMemory, phys *PhysAlloc, flusher TLBFlusher) (*Paging, error) {
	codec := CodecFor(arch)
	root, err := phys.AllocateAligned(entriesPerLevel*8, entriesPerLevel*8)
	if err != nil {
		return nil, fmt.Errorf("mm: allocate root page table: %w", err)
	}
	p := &Paging{arch: arch, codec: codec, root: root, mem: mem, phys: phys, flusher: flusher}
	if err := p.zeroTable(root); err != nil {
		return nil, err
	}
	return p, nil
}

// Root returns the physical address of the top-level table, for programming
// into the architecture's page-table-base register (CR3, TTBR1_EL1, satp).
func (p *Paging) Root() PhysAddr { return p.root }

func (p *Paging) zeroTable(table PhysAddr) error {
	zero := make([]byte, entriesPerLevel*8)
	_, err := p.mem.WriteAt(zero, int64(table))
	return err
}

func (p *Paging) readEntry(table PhysAddr, index int) (PageTableEntry, error) {
	var buf [8]byte
	if _, err := p.mem.ReadAt(buf[:], int64(table)+int64(index)*8); err != nil {
		return PageTableEntry{}, err
	}
	return p.codec.Decode(binary.LittleEndian.Uint64(buf[:])), nil
}

func (p *Paging) writeEntry(table PhysAddr, index int, e PageTableEntry) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], p.codec.Encode(e))
	_, err := p.mem.WriteAt(buf[:], int64(table)+int64(index)*8)
	return err
}

func indexForLevel(va VirtAddr, level, levels int) int {
	shift := pageBits + 9*(levels-1-level)
	return int((uint64(va) >> shift) & (entriesPerLevel - 1))
}

// walkCreate descends from the root to targetLevel, allocating and zeroing
// any missing intermediate table, per spec.md §4.1: "Intermediate tables
// are allocated on demand from PhysAlloc; newly created tables are zeroed."
// It returns the table holding the targetLevel entry and the index within
// it.
func (p *Paging) walkCreate(va VirtAddr, targetLevel int) (PhysAddr, int, error) {
	levels := p.codec.Levels()
	table := p.root
	for level := 0; level < targetLevel; level++ {
		idx := indexForLevel(va, level, levels)
		e, err := p.readEntry(table, idx)
		if err != nil {
			return 0, 0, err
		}
		if !e.present() {
			child, err := p.phys.AllocateAligned(entriesPerLevel*8, entriesPerLevel*8)
			if err != nil {
				return 0, 0, fmt.Errorf("mm: out of physical memory for page table level %d: %w", level+1, err)
			}
			if err := p.zeroTable(child); err != nil {
				return 0, 0, err
			}
			e = PageTableEntry{Addr: child, Flags: Present | Writable}
			if p.arch == archconst.RISCV64 {
				// An Sv39 pointer to the next level has R=W=X=0, but the
				// codec always encodes a leaf, so write the pointer raw.
				var buf [8]byte
				binary.LittleEndian.PutUint64(buf[:], riscvValid|(uint64(child)>>pageBits)<<riscvPPNShift)
				if _, err := p.mem.WriteAt(buf[:], int64(table)+int64(idx)*8); err != nil {
					return 0, 0, err
				}
			} else if err := p.writeEntry(table, idx, e); err != nil {
				return 0, 0, err
			}
		} else if e.Huge {
			return 0, 0, fmt.Errorf("mm: cannot descend through huge mapping at level %d, va=%s", level, va)
		}
		table = e.Addr
	}
	return table, indexForLevel(va, targetLevel, levels), nil
}

// walkLookup descends without creating tables, stopping early if it hits a
// huge leaf above targetLevel or a missing intermediate table.
func (p *Paging) walkLookup(va VirtAddr) (entry PageTableEntry, level int, found bool, err error) {
	levels := p.codec.Levels()
	table := p.root
	for l := 0; l < levels; l++ {
		idx := indexForLevel(va, l, levels)
		e, err := p.readEntry(table, idx)
		if err != nil {
			return PageTableEntry{}, 0, false, err
		}
		if !e.present() {
			return PageTableEntry{}, 0, false, nil
		}
		if e.Huge || l == levels-1 {
			return e, l, true, nil
		}
		table = e.Addr
	}
	return PageTableEntry{}, 0, false, nil
}

func requirePageAligned(name string, addr uint64, size PageSize) {
	if !alignedU64(addr, size.Bytes()) {
		panic(fmt.Sprintf("mm: %s %#x is not aligned to page size %s", name, addr, size.Name()))
	}
}

// Map installs count consecutive size-sized mappings starting at va,
// mapping to consecutive physical pages starting at pa, per spec.md §4.1.
// It panics on unaligned inputs, matching the documented failure mode.
func (p *Paging) Map(size PageSize, va VirtAddr, pa PhysAddr, count int, flags Flags) error {
	requirePageAligned("va", uint64(va), size)
	requirePageAligned("pa", uint64(pa), size)

	leafLevel, err := p.codec.LeafLevel(size)
	if err != nil {
		return err
	}
	huge := leafLevel != p.codec.Levels()-1
	step := size.Bytes()

	for i := 0; i < count; i++ {
		curVA := VirtAddr(uint64(va) + uint64(i)*step)
		curPA := PhysAddr(uint64(pa) + uint64(i)*step)

		table, index, err := p.walkCreate(curVA, leafLevel)
		if err != nil {
			return err
		}
		existing, err := p.readEntry(table, index)
		if err != nil {
			return err
		}
		if err := p.writeEntry(table, index, PageTableEntry{Addr: curPA, Flags: flags | Present, Huge: huge}); err != nil {
			return err
		}
		if existing.present() {
			p.flusher.FlushLocal(curVA, 1, size)
			if p.arch == archconst.X86_64 {
				p.flusher.Shootdown(curVA, 1, size)
			}
		}
	}
	return nil
}

// Unmap clears count consecutive size-sized mappings starting at va and
// invalidates the TLB for the range, per spec.md §4.1.
func (p *Paging) Unmap(size PageSize, va VirtAddr, count int) error {
	requirePageAligned("va", uint64(va), size)

	leafLevel, err := p.codec.LeafLevel(size)
	if err != nil {
		return err
	}
	step := size.Bytes()

	for i := 0; i < count; i++ {
		curVA := VirtAddr(uint64(va) + uint64(i)*step)
		table, index, err := p.walkCreate(curVA, leafLevel)
		if err != nil {
			return err
		}
		if err := p.writeEntry(table, index, PageTableEntry{}); err != nil {
			return err
		}
		p.flusher.FlushLocal(curVA, 1, size)
		p.flusher.Shootdown(curVA, 1, size)
	}
	return nil
}

// IdentityMap installs va == pa for [pStart, pEnd], rounded outward to
// size-granularity, per spec.md §4.1.
func (p *Paging) IdentityMap(size PageSize, pStart, pEnd PhysAddr, flags Flags) error {
	sz := size.Bytes()
	start := AlignDown(uint64(pStart), sz)
	end := AlignUp(uint64(pEnd)+1, sz)
	count := int((end - start) / sz)
	return p.Map(size, VirtAddr(start), PhysAddr(start), count, flags)
}

// VirtualToPhysical returns the mapped physical address for va, or false if
// unmapped, per spec.md §4.1. It never panics or faults.
func (p *Paging) VirtualToPhysical(va VirtAddr) (PhysAddr, bool) {
	e, level, found, err := p.walkLookup(va)
	if err != nil || !found {
		return 0, false
	}
	levels := p.codec.Levels()
	offsetBits := pageBits + 9*(levels-1-level)
	offset := uint64(va) & ((uint64(1) << offsetBits) - 1)
	return PhysAddr(uint64(e.Addr) + offset), true
}

// VirtToPhys is the infallible form used by DMA-producing code paths
// (spec.md §4.1); it panics if va is unmapped, since a DMA producer that
// races ahead of an established mapping is a programming error, not a
// recoverable condition.
func (p *Paging) VirtToPhys(va VirtAddr) PhysAddr {
	pa, ok := p.VirtualToPhysical(va)
	if !ok {
		panic(fmt.Sprintf("mm: virt_to_phys: %s is not mapped", va))
	}
	return pa
}
