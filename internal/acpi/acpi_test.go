package acpi

import (
	"encoding/binary"
	"testing"

	"github.com/hermit-os/kernel-go/internal/mm"
)

func checksumByte(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum += v
	}
	return byte(-sum)
}

// buildRSDP returns a 36-byte ACPI 2.0+ RSDP with both the legacy and
// extended checksums correct, pointing at rsdtAddr/xsdtAddr.
func buildRSDP(rsdtAddr uint32, xsdtAddr uint64) []byte {
	buf := make([]byte, 36)
	copy(buf[0:8], "RSD PTR ")
	copy(buf[9:15], "HERMIT")
	buf[15] = 2 // revision: ACPI 2.0+
	binary.LittleEndian.PutUint32(buf[16:20], rsdtAddr)
	buf[8] = checksumByte(buf[:20])

	binary.LittleEndian.PutUint32(buf[20:24], 36)
	binary.LittleEndian.PutUint64(buf[24:32], xsdtAddr)
	buf[32] = checksumByte(buf[:36])
	return buf
}

// buildTable assembles a full SDT (header + body) with a correct checksum.
func buildTable(sig string, body []byte) []byte {
	length := uint32(sdtHeaderLen + len(body))
	buf := make([]byte, length)
	copy(buf[0:4], sig)
	binary.LittleEndian.PutUint32(buf[4:8], length)
	buf[8] = 1 // revision
	copy(buf[10:16], "HERMIT")
	copy(buf[16:24], "KRNLTBL ")
	binary.LittleEndian.PutUint32(buf[24:28], 1)
	copy(buf[28:32], "HRMT")
	binary.LittleEndian.PutUint32(buf[32:36], 1)
	copy(buf[36:], body)
	buf[9] = checksumByte(buf)
	return buf
}

func writeAt(t *testing.T, mem mm.PhysMemory, addr mm.PhysAddr, data []byte) {
	t.Helper()
	if _, err := mem.WriteAt(data, int64(addr)); err != nil {
		t.Fatalf("writeAt %s: %v", addr, err)
	}
}

func TestReadRSDPValid(t *testing.T) {
	mem := mm.NewByteMemory(1 << 16)
	writeAt(t, mem, 0x100, buildRSDP(0x1000, 0x2000))

	r := NewReader(mem)
	rsdp, err := r.ReadRSDP(0, 0x1000)
	if err != nil {
		t.Fatalf("ReadRSDP: %v", err)
	}
	if rsdp.RSDTAddress != 0x1000 || rsdp.XSDTAddress != 0x2000 || rsdp.Revision != 2 {
		t.Fatalf("rsdp = %+v, want RSDT=0x1000 XSDT=0x2000 rev=2", rsdp)
	}
}

// TestReadRSDPRejectsCorruptedChecksum exercises spec.md §8 property 8: a
// single corrupted byte anywhere in the checksummed region is detected.
func TestReadRSDPRejectsCorruptedChecksum(t *testing.T) {
	mem := mm.NewByteMemory(1 << 16)
	blob := buildRSDP(0x1000, 0x2000)
	blob[17] ^= 0xff // flip a byte inside the checksummed legacy region
	writeAt(t, mem, 0x100, blob)

	r := NewReader(mem)
	if _, err := r.ReadRSDP(0, 0x1000); err == nil {
		t.Fatalf("expected a checksum error for a corrupted RSDP")
	}
}

func TestReadRSDPRejectsCorruptedExtendedChecksum(t *testing.T) {
	mem := mm.NewByteMemory(1 << 16)
	blob := buildRSDP(0x1000, 0x2000)
	blob[25] ^= 0xff // inside the extended (rev>=2) region only
	writeAt(t, mem, 0x100, blob)

	r := NewReader(mem)
	if _, err := r.ReadRSDP(0, 0x1000); err == nil {
		t.Fatalf("expected an extended checksum error")
	}
}

func TestReadRSDPNotFound(t *testing.T) {
	mem := mm.NewByteMemory(1 << 16)
	r := NewReader(mem)
	if _, err := r.ReadRSDP(0, 0x1000); err == nil {
		t.Fatalf("expected an error when no RSDP signature is present")
	}
}

func TestReadHeaderRejectsBadChecksum(t *testing.T) {
	mem := mm.NewByteMemory(1 << 16)
	table := buildTable("FACP", make([]byte, 16))
	table[40] ^= 0xff // corrupt a body byte
	writeAt(t, mem, 0x1000, table)

	r := NewReader(mem)
	if _, _, err := r.ReadHeader(0x1000); err == nil {
		t.Fatalf("expected a checksum error for a corrupted table body")
	}
}

func TestRootEntriesRSDT(t *testing.T) {
	mem := mm.NewByteMemory(1 << 16)
	madt := buildTable("APIC", make([]byte, 8))
	writeAt(t, mem, 0x3000, madt)

	rsdtBody := make([]byte, 4)
	binary.LittleEndian.PutUint32(rsdtBody, 0x3000)
	rsdt := buildTable("RSDT", rsdtBody)
	writeAt(t, mem, 0x2000, rsdt)

	r := NewReader(mem)
	entries, err := r.RootEntries(RSDP{Revision: 0, RSDTAddress: 0x2000})
	if err != nil {
		t.Fatalf("RootEntries: %v", err)
	}
	if len(entries) != 1 || entries[0] != 0x3000 {
		t.Fatalf("entries = %v, want [0x3000]", entries)
	}
}

func TestRootEntriesXSDT(t *testing.T) {
	mem := mm.NewByteMemory(1 << 16)
	madt := buildTable("APIC", make([]byte, 8))
	writeAt(t, mem, 0x3000, madt)
	facp := buildTable("FACP", make([]byte, 76))
	writeAt(t, mem, 0x4000, facp)

	xsdtBody := make([]byte, 16)
	binary.LittleEndian.PutUint64(xsdtBody[0:8], 0x3000)
	binary.LittleEndian.PutUint64(xsdtBody[8:16], 0x4000)
	xsdt := buildTable("XSDT", xsdtBody)
	writeAt(t, mem, 0x2000, xsdt)

	r := NewReader(mem)
	entries, err := r.RootEntries(RSDP{Revision: 2, XSDTAddress: 0x2000})
	if err != nil {
		t.Fatalf("RootEntries: %v", err)
	}
	if len(entries) != 2 || entries[0] != 0x3000 || entries[1] != 0x4000 {
		t.Fatalf("entries = %v, want [0x3000 0x4000]", entries)
	}
}

func TestRootEntriesRejectsWrongSignature(t *testing.T) {
	mem := mm.NewByteMemory(1 << 16)
	wrong := buildTable("APIC", nil)
	writeAt(t, mem, 0x2000, wrong)

	r := NewReader(mem)
	if _, err := r.RootEntries(RSDP{Revision: 0, RSDTAddress: 0x2000}); err == nil {
		t.Fatalf("expected an error when the root table's signature is not RSDT")
	}
}

func TestParseMADTEntries(t *testing.T) {
	var body []byte
	body = binary.LittleEndian.AppendUint32(body, 0xfee00000) // local APIC address
	body = binary.LittleEndian.AppendUint32(body, 1)           // flags: PCAT_COMPAT

	// Processor Local APIC: type=0, len=8, {uid, apicID, flags(enabled=1)}
	body = append(body, 0, 8, 1, 2, 1, 0, 0, 0)

	// IO APIC: type=1, len=12, {id, reserved, address, gsi_base}
	ioapic := make([]byte, 12)
	ioapic[0], ioapic[1] = 1, 12
	ioapic[2] = 9
	binary.LittleEndian.PutUint32(ioapic[4:8], 0xfec00000)
	binary.LittleEndian.PutUint32(ioapic[8:12], 0)
	body = append(body, ioapic...)

	// Processor Local x2APIC: type=9, len=16, {reserved(2), x2apicID(4), flags(4), uid(4)}
	x2 := make([]byte, 16)
	x2[0], x2[1] = 9, 16
	binary.LittleEndian.PutUint32(x2[4:8], 255)
	binary.LittleEndian.PutUint32(x2[8:12], 1)
	binary.LittleEndian.PutUint32(x2[12:16], 7)
	body = append(body, x2...)

	madt, err := ParseMADT(body)
	if err != nil {
		t.Fatalf("ParseMADT: %v", err)
	}
	if madt.LocalAPICAddress != 0xfee00000 {
		t.Fatalf("LocalAPICAddress = %#x, want 0xfee00000", madt.LocalAPICAddress)
	}
	if len(madt.Processors) != 2 {
		t.Fatalf("Processors = %+v, want 2 entries", madt.Processors)
	}
	if madt.Processors[0].ID != 2 || !madt.Processors[0].Enabled {
		t.Fatalf("local APIC entry = %+v, want ID=2 Enabled=true", madt.Processors[0])
	}
	if madt.Processors[1].ID != 255 || madt.Processors[1].ProcessorUID != 7 {
		t.Fatalf("x2APIC entry = %+v, want ID=255 ProcessorUID=7", madt.Processors[1])
	}
	if len(madt.IOControllers) != 1 || madt.IOControllers[0].ID != 9 || madt.IOControllers[0].Address != 0xfec00000 {
		t.Fatalf("IOControllers = %+v", madt.IOControllers)
	}
}

func TestParseMADTRejectsTruncatedEntry(t *testing.T) {
	body := make([]byte, 8)
	body = append(body, 0, 0) // entry claiming length 0 — invalid
	if _, err := ParseMADT(body); err == nil {
		t.Fatalf("expected an error for a zero-length MADT entry")
	}
}

func TestParseFADT(t *testing.T) {
	body := make([]byte, 112-sdtHeaderLen)
	const (
		offSCIInterrupt = 46 - sdtHeaderLen
		offPM1aCntBlk   = 64 - sdtHeaderLen
		offPM1CntLen    = 89 - sdtHeaderLen
	)
	binary.LittleEndian.PutUint16(body[offSCIInterrupt:], 9)
	binary.LittleEndian.PutUint32(body[offPM1aCntBlk:], 0x604)
	body[offPM1CntLen] = 2

	fadt, err := ParseFADT(body)
	if err != nil {
		t.Fatalf("ParseFADT: %v", err)
	}
	if fadt.SCIInterrupt != 9 || fadt.PM1aCntBlk != 0x604 || fadt.PM1CntLenB != 2 {
		t.Fatalf("fadt = %+v", fadt)
	}
}
