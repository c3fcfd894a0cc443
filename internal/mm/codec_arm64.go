package mm

import "fmt"

// arm64Codec encodes spec.md's normalized flags into AArch64 4 KiB-granule,
// 48-bit VA, 4-level (L0..L3) descriptor bits: bit0 valid, bit1
// table-vs-block (1=table/page, 0=block at a non-final level), AP[2:1] at
// bits 6-7 (AP[2]=1 read-only, AP[1]=1 user-accessible), bit10 AF
// (accessed), bit11 nG (0=global), bits12-47 addr, bit54 UXN/PXN
// (execute-never), and AttrIndx[2:0] at bits 2-4 selecting MAIR entry 0
// (Normal, write-back) or entry 1 (Device-nGnRnE).
type arm64Codec struct{}

const (
	arm64Valid      = 1 << 0
	arm64TableOrPg  = 1 << 1
	arm64AttrDevice = 1 << 2 // MAIR index 1
	arm64APReadOnly = 1 << 7
	arm64APUser     = 1 << 6
	arm64AF         = 1 << 10
	arm64NG         = 1 << 11
	arm64AddrMask   = 0x0000_ffff_ffff_f000
	arm64UXN        = 1 << 54
)

func (arm64Codec) Encode(e PageTableEntry) uint64 {
	if !e.present() {
		return 0
	}
	raw := uint64(arm64Valid) | (uint64(e.Addr) & arm64AddrMask)
	if !e.Huge {
		raw |= arm64TableOrPg
	}
	if e.Flags&Writable == 0 || e.Flags&ReadOnly != 0 {
		raw |= arm64APReadOnly
	}
	if e.Flags&User != 0 {
		raw |= arm64APUser
	}
	if e.Flags&Device != 0 {
		raw |= arm64AttrDevice
	}
	if e.Flags&Accessed != 0 {
		raw |= arm64AF
	}
	if e.Flags&Global == 0 {
		raw |= arm64NG
	}
	if e.Flags&ExecuteDisable != 0 {
		raw |= arm64UXN
	}
	return raw
}

func (arm64Codec) Decode(raw uint64) PageTableEntry {
	if raw&arm64Valid == 0 {
		return PageTableEntry{}
	}
	var f Flags = Present
	if raw&arm64APReadOnly != 0 {
		f |= ReadOnly
	} else {
		f |= Writable
	}
	if raw&arm64APUser != 0 {
		f |= User
	}
	if raw&arm64AttrDevice != 0 {
		f |= Device
	} else {
		f |= Normal
	}
	if raw&arm64AF != 0 {
		f |= Accessed
	}
	if raw&arm64NG == 0 {
		f |= Global
	}
	if raw&arm64UXN != 0 {
		f |= ExecuteDisable
	}
	return PageTableEntry{
		Addr:  PhysAddr(raw & arm64AddrMask),
		Flags: f,
		Huge:  raw&arm64TableOrPg == 0,
	}
}

func (arm64Codec) Levels() int { return 4 } // L0, L1, L2, L3

func (arm64Codec) LeafLevel(size PageSize) (int, error) {
	switch size.(type) {
	case BasePageSize:
		return 3, nil
	case LargePageSize:
		return 2, nil
	case HugePageSize:
		return 1, nil
	default:
		return 0, fmt.Errorf("mm: aarch64 has no page size %s", size.Name())
	}
}
