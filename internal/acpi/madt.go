package acpi

import (
	"encoding/binary"
	"fmt"
)

// MADT entry types, ACPI spec §5.2.12.2.
const (
	madtLocalAPIC       = 0
	madtIOAPIC          = 1
	madtInterruptSrcOvr = 2
	madtLocalX2APIC     = 9
	madtGICC            = 0x0b
	madtGICD            = 0x0c
)

// ProcessorEntry is one bootable logical processor discovered via MADT, per
// spec.md §4.7's "enumerate application processors from the MADT/FDT before
// sending INIT-SIPI-SIPI / PSCI CPU_ON".
type ProcessorEntry struct {
	ID            uint32 // APIC ID (x86_64) or MPIDR-derived id (AArch64 GICC)
	ProcessorUID  uint32
	Enabled       bool
	OnlineCapable bool
}

// IOInterruptController describes the IOAPIC (x86_64) discovered via MADT.
type IOInterruptController struct {
	ID                  uint8
	Address             uint32
	GlobalSystemIntrBase uint32
}

// MADT is the parsed Multiple APIC Description Table: every bootable
// processor plus the I/O interrupt controller(s) the BP needs to program
// before releasing APs, per spec.md §4.3/§4.7.
type MADT struct {
	LocalAPICAddress uint32
	Flags            uint32
	Processors       []ProcessorEntry
	IOControllers     []IOInterruptController
}

// ParseMADT walks the MADT entry list in raw, the table body that follows
// the 36-byte header (the bytes at the address ReadHeader returned), per
// ACPI spec §5.2.12.
func ParseMADT(raw []byte) (MADT, error) {
	if len(raw) < 8 {
		return MADT{}, fmt.Errorf("acpi: MADT body too short (%d bytes)", len(raw))
	}
	m := MADT{
		LocalAPICAddress: binary.LittleEndian.Uint32(raw[0:4]),
		Flags:            binary.LittleEndian.Uint32(raw[4:8]),
	}

	off := 8
	for off+2 <= len(raw) {
		entryType := raw[off]
		entryLen := int(raw[off+1])
		if entryLen < 2 || off+entryLen > len(raw) {
			return MADT{}, fmt.Errorf("acpi: MADT entry at offset %d has invalid length %d", off, entryLen)
		}
		entry := raw[off : off+entryLen]

		switch entryType {
		case madtLocalAPIC:
			if entryLen < 8 {
				break
			}
			flags := binary.LittleEndian.Uint32(entry[4:8])
			m.Processors = append(m.Processors, ProcessorEntry{
				ID:            uint32(entry[3]),
				ProcessorUID:  uint32(entry[2]),
				Enabled:       flags&1 != 0,
				OnlineCapable: flags&2 != 0,
			})
		case madtLocalX2APIC:
			if entryLen < 16 {
				break
			}
			flags := binary.LittleEndian.Uint32(entry[8:12])
			m.Processors = append(m.Processors, ProcessorEntry{
				ID:            binary.LittleEndian.Uint32(entry[4:8]),
				ProcessorUID:  binary.LittleEndian.Uint32(entry[12:16]),
				Enabled:       flags&1 != 0,
				OnlineCapable: flags&2 != 0,
			})
		case madtIOAPIC:
			if entryLen < 12 {
				break
			}
			m.IOControllers = append(m.IOControllers, IOInterruptController{
				ID:                  entry[2],
				Address:              binary.LittleEndian.Uint32(entry[4:8]),
				GlobalSystemIntrBase: binary.LittleEndian.Uint32(entry[8:12]),
			})
		case madtGICC:
			if entryLen < 12 {
				break
			}
			flags := binary.LittleEndian.Uint32(entry[8:12])
			m.Processors = append(m.Processors, ProcessorEntry{
				ID:            binary.LittleEndian.Uint32(entry[4:8]),
				ProcessorUID:  binary.LittleEndian.Uint32(entry[4:8]),
				Enabled:       flags&1 != 0,
				OnlineCapable: flags&2 != 0,
			})
		}
		off += entryLen
	}
	return m, nil
}

// FADT carries the subset of the Fixed ACPI Description Table the kernel
// acts on: the SCI interrupt and the PM1 control block used for S5 shutdown
// (spec.md §4.7 "ACPI-initiated shutdown").
type FADT struct {
	SCIInterrupt uint16
	PM1aCntBlk   uint32
	PM1CntLenB   uint8
}

// ParseFADT reads the handful of FADT fields this kernel needs, per ACPI
// spec §5.2.9. Field offsets are relative to the start of the table body
// (immediately after the 36-byte SDT header).
func ParseFADT(raw []byte) (FADT, error) {
	if len(raw) < 112-sdtHeaderLen {
		return FADT{}, fmt.Errorf("acpi: FADT body too short (%d bytes)", len(raw))
	}
	const (
		offSCIInterrupt = 46 - sdtHeaderLen
		offPM1aCntBlk   = 64 - sdtHeaderLen
		offPM1CntLen    = 89 - sdtHeaderLen
	)
	return FADT{
		SCIInterrupt: binary.LittleEndian.Uint16(raw[offSCIInterrupt : offSCIInterrupt+2]),
		PM1aCntBlk:   binary.LittleEndian.Uint32(raw[offPM1aCntBlk : offPM1aCntBlk+4]),
		PM1CntLenB:   raw[offPM1CntLen],
	}, nil
}
