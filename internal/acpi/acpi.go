// Package acpi parses ACPI tables exposed to the kernel by firmware, per
// spec.md §4.7 / §6: RSDP location, RSDT-vs-XSDT selection by revision,
// checksum verification, and MADT/FADT walk for the BP to discover APs and
// the IOAPIC/GICv3 distributor.
//
// Grounded on tinyrange-cc's internal/acpi package, which builds these same
// tables for a guest to consume; this package performs the inverse
// operation, reading what that package (or real firmware) wrote. The
// 36-byte ACPI SDT header layout and the simple byte-sum checksum in
// builder.go's checksum() are reproduced here as the verification half of
// that same algorithm.
package acpi

import (
	"encoding/binary"
	"fmt"

	"github.com/hermit-os/kernel-go/internal/mm"
)

const sdtHeaderLen = 36

// SDTHeader is the common ACPI System Description Table header,
// ACPI spec §5.2.6.
type SDTHeader struct {
	Signature       [4]byte
	Length          uint32
	Revision        uint8
	Checksum        uint8
	OEMID           [6]byte
	OEMTableID      [8]byte
	OEMRevision     uint32
	CreatorID       [4]byte
	CreatorRevision uint32
}

func (h SDTHeader) SignatureString() string { return string(h.Signature[:]) }

// Reader reads ACPI tables out of guest-physical memory.
type Reader struct {
	mem mm.PhysMemory
}

func NewReader(mem mm.PhysMemory) *Reader { return &Reader{mem: mem} }

// locateRSDP scans 16-byte-aligned addresses in [start, end) for the 8-byte
// "RSD PTR " signature, per ACPI spec §5.2.5.1. Real firmware publishes the
// RSDP in the EBDA or the 0xE0000-0xFFFFF BIOS area; callers on hosted
// platforms pass whatever range their boot protocol documents (e.g. Multiboot2's
// ACPI old/new RSDP tag just hands the address directly, skipping the scan).
func (r *Reader) locateRSDP(start, end mm.PhysAddr) (mm.PhysAddr, error) {
	const sig = "RSD PTR "
	buf := make([]byte, 8)
	for addr := start; addr+8 <= end; addr += 16 {
		if _, err := r.mem.ReadAt(buf, int64(addr)); err != nil {
			return 0, err
		}
		if string(buf) == sig {
			return addr, nil
		}
	}
	return 0, fmt.Errorf("acpi: no RSDP signature found in [%s, %s)", start, end)
}

// RSDP is the Root System Description Pointer, ACPI spec §5.2.5.3.
type RSDP struct {
	Revision    uint8
	RSDTAddress uint32
	Length      uint32
	XSDTAddress uint64
}

// ReadRSDP locates and validates the RSDP within [start, end).
func (r *Reader) ReadRSDP(start, end mm.PhysAddr) (RSDP, error) {
	addr, err := r.locateRSDP(start, end)
	if err != nil {
		return RSDP{}, err
	}
	buf := make([]byte, 36)
	if _, err := r.mem.ReadAt(buf[:20], int64(addr)); err != nil {
		return RSDP{}, err
	}

	rev := buf[15]
	rsdp := RSDP{
		Revision:    rev,
		RSDTAddress: binary.LittleEndian.Uint32(buf[16:20]),
	}
	if !checksumOK(buf[:20]) {
		return RSDP{}, fmt.Errorf("acpi: RSDP checksum mismatch")
	}
	if rev >= 2 {
		if _, err := r.mem.ReadAt(buf[20:36], int64(addr)+20); err != nil {
			return RSDP{}, err
		}
		if !checksumOK(buf[:36]) {
			return RSDP{}, fmt.Errorf("acpi: extended RSDP checksum mismatch")
		}
		rsdp.Length = binary.LittleEndian.Uint32(buf[20:24])
		rsdp.XSDTAddress = binary.LittleEndian.Uint64(buf[24:32])
	}
	return rsdp, nil
}

func checksumOK(b []byte) bool {
	var sum uint8
	for _, v := range b {
		sum += v
	}
	return sum == 0
}

// ReadHeader parses and checksum-verifies the SDT header at addr, returning
// it along with the address of its body (immediately following the
// header).
func (r *Reader) ReadHeader(addr mm.PhysAddr) (SDTHeader, mm.PhysAddr, error) {
	buf := make([]byte, sdtHeaderLen)
	if _, err := r.mem.ReadAt(buf, int64(addr)); err != nil {
		return SDTHeader{}, 0, err
	}
	var h SDTHeader
	copy(h.Signature[:], buf[0:4])
	h.Length = binary.LittleEndian.Uint32(buf[4:8])
	h.Revision = buf[8]
	h.Checksum = buf[9]
	copy(h.OEMID[:], buf[10:16])
	copy(h.OEMTableID[:], buf[16:24])
	h.OEMRevision = binary.LittleEndian.Uint32(buf[24:28])
	copy(h.CreatorID[:], buf[28:32])
	h.CreatorRevision = binary.LittleEndian.Uint32(buf[32:36])

	if h.Length < sdtHeaderLen {
		return SDTHeader{}, 0, fmt.Errorf("acpi: table %q reports implausible length %d", h.SignatureString(), h.Length)
	}
	full := make([]byte, h.Length)
	if _, err := r.mem.ReadAt(full, int64(addr)); err != nil {
		return SDTHeader{}, 0, err
	}
	if !checksumOK(full) {
		return SDTHeader{}, 0, fmt.Errorf("acpi: table %q failed checksum verification, rejecting", h.SignatureString())
	}
	return h, addr + sdtHeaderLen, nil
}

// RootEntries reads the pointer-table entries of the RSDT (4-byte entries)
// or XSDT (8-byte entries) pointed to by rsdp, choosing based on revision
// per ACPI spec §5.2.7/§5.2.8: XSDT when Revision >= 2 and an XSDT address
// was published, RSDT otherwise.
func (r *Reader) RootEntries(rsdp RSDP) ([]mm.PhysAddr, error) {
	var rootAddr mm.PhysAddr
	var useXSDT bool
	if rsdp.Revision >= 2 && rsdp.XSDTAddress != 0 {
		rootAddr = mm.PhysAddr(rsdp.XSDTAddress)
		useXSDT = true
	} else {
		rootAddr = mm.PhysAddr(rsdp.RSDTAddress)
	}

	hdr, body, err := r.ReadHeader(rootAddr)
	if err != nil {
		return nil, err
	}
	wantSig := "RSDT"
	entrySize := 4
	if useXSDT {
		wantSig = "XSDT"
		entrySize = 8
	}
	if hdr.SignatureString() != wantSig {
		return nil, fmt.Errorf("acpi: expected %s signature, got %q", wantSig, hdr.SignatureString())
	}

	bodyLen := int(hdr.Length) - sdtHeaderLen
	raw := make([]byte, bodyLen)
	if _, err := r.mem.ReadAt(raw, int64(body)); err != nil {
		return nil, err
	}

	var out []mm.PhysAddr
	for off := 0; off+entrySize <= len(raw); off += entrySize {
		if entrySize == 4 {
			out = append(out, mm.PhysAddr(binary.LittleEndian.Uint32(raw[off:off+4])))
		} else {
			out = append(out, mm.PhysAddr(binary.LittleEndian.Uint64(raw[off:off+8])))
		}
	}
	return out, nil
}
