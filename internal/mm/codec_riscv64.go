package mm

import "fmt"

// riscv64Codec encodes spec.md's normalized flags into RISC-V Sv39 PTE
// bits: V (valid), R, W, X, U, G, A (accessed), D (dirty), and the PPN
// field at bits 10-53. Sv39 has no separate "table" bit: an entry with any
// of R/W/X set is a leaf at whatever level it appears, which is exactly
// spec.md's Huge marker for this architecture. Sv39 also has no dedicated
// cacheability attribute bits in the PTE itself (device-vs-normal is a PMA
// property outside the page table); Device does not change the encoded
// bits, and Decode always reports Normal, so Device is not recovered from
// an encoded entry.
type riscv64Codec struct{}

const (
	riscvValid    = 1 << 0
	riscvRead     = 1 << 1
	riscvWrite    = 1 << 2
	riscvExec     = 1 << 3
	riscvUser     = 1 << 4
	riscvGlobal   = 1 << 5
	riscvAccessed = 1 << 6
	riscvDirty    = 1 << 7
	riscvPPNShift = 10
	riscvPPNMask  = 0x003f_ffff_ffff_fc00
)

func (riscv64Codec) Encode(e PageTableEntry) uint64 {
	if !e.present() {
		return 0
	}
	raw := uint64(riscvValid) | ((uint64(e.Addr) >> 12) << riscvPPNShift)
	raw |= riscvRead
	if e.Flags&Writable != 0 && e.Flags&ReadOnly == 0 {
		raw |= riscvWrite
	}
	if e.Flags&ExecuteDisable == 0 {
		raw |= riscvExec
	}
	if e.Flags&User != 0 {
		raw |= riscvUser
	}
	if e.Flags&Global != 0 {
		raw |= riscvGlobal
	}
	if e.Flags&Accessed != 0 {
		raw |= riscvAccessed | riscvDirty
	}
	return raw
}

func (riscv64Codec) Decode(raw uint64) PageTableEntry {
	if raw&riscvValid == 0 {
		return PageTableEntry{}
	}
	var f Flags = Present | Normal
	if raw&riscvWrite != 0 {
		f |= Writable
	} else {
		f |= ReadOnly
	}
	if raw&riscvExec == 0 {
		f |= ExecuteDisable
	}
	if raw&riscvUser != 0 {
		f |= User
	}
	if raw&riscvGlobal != 0 {
		f |= Global
	}
	if raw&riscvAccessed != 0 {
		f |= Accessed
	}
	return PageTableEntry{
		Addr:  PhysAddr((raw & riscvPPNMask) >> riscvPPNShift << 12),
		Flags: f,
		Huge:  raw&(riscvRead|riscvWrite|riscvExec) != 0,
	}
}

func (riscv64Codec) Levels() int { return 3 } // Sv39: level 2 (root), 1, 0

func (riscv64Codec) LeafLevel(size PageSize) (int, error) {
	switch size.(type) {
	case BasePageSize:
		return 2, nil
	case LargePageSize:
		return 1, nil
	case HugePageSize:
		return 0, nil
	default:
		return 0, fmt.Errorf("mm: riscv64 has no page size %s", size.Name())
	}
}
