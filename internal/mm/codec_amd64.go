package mm

import "fmt"

// amd64Codec encodes spec.md's normalized flags into x86_64 4-level paging
// PTE bits: 0=Present, 1=R/W, 2=User, 3=PWT, 4=PCD, 5=Accessed, 6=Dirty,
// 7=PS (huge, only meaningful above the final level), 8=Global, 12-51=addr,
// 63=NX. "Device" maps to PCD|PWT (strong uncacheable), "Normal" to neither.
type amd64Codec struct{}

const (
	amd64Present  = 1 << 0
	amd64Writable = 1 << 1
	amd64User     = 1 << 2
	amd64PWT      = 1 << 3
	amd64PCD      = 1 << 4
	amd64Accessed = 1 << 5
	amd64PS       = 1 << 7
	amd64Global   = 1 << 8
	amd64AddrMask = 0x000f_ffff_ffff_f000
	amd64NX       = 1 << 63
)

func (amd64Codec) Encode(e PageTableEntry) uint64 {
	if !e.present() {
		return 0
	}
	var raw uint64 = amd64Present | (uint64(e.Addr) & amd64AddrMask)
	if e.Flags&Writable != 0 && e.Flags&ReadOnly == 0 {
		raw |= amd64Writable
	}
	if e.Flags&User != 0 {
		raw |= amd64User
	}
	if e.Flags&Device != 0 {
		raw |= amd64PCD | amd64PWT
	}
	if e.Flags&Accessed != 0 {
		raw |= amd64Accessed
	}
	if e.Flags&Global != 0 {
		raw |= amd64Global
	}
	if e.Huge {
		raw |= amd64PS
	}
	if e.Flags&ExecuteDisable != 0 {
		raw |= amd64NX
	}
	return raw
}

func (amd64Codec) Decode(raw uint64) PageTableEntry {
	if raw&amd64Present == 0 {
		return PageTableEntry{}
	}
	var f Flags = Present
	if raw&amd64Writable != 0 {
		f |= Writable
	} else {
		f |= ReadOnly
	}
	if raw&amd64User != 0 {
		f |= User
	}
	if raw&(amd64PCD|amd64PWT) != 0 {
		f |= Device
	} else {
		f |= Normal
	}
	if raw&amd64Accessed != 0 {
		f |= Accessed
	}
	if raw&amd64Global != 0 {
		f |= Global
	}
	if raw&amd64NX != 0 {
		f |= ExecuteDisable
	}
	return PageTableEntry{
		Addr:  PhysAddr(raw & amd64AddrMask),
		Flags: f,
		Huge:  raw&amd64PS != 0,
	}
}

func (amd64Codec) Levels() int { return 4 } // PML4, PDPT, PD, PT

func (amd64Codec) LeafLevel(size PageSize) (int, error) {
	switch size.(type) {
	case BasePageSize:
		return 3, nil
	case LargePageSize:
		return 2, nil
	case HugePageSize:
		return 1, nil
	default:
		return 0, fmt.Errorf("mm: x86_64 has no page size %s", size.Name())
	}
}
