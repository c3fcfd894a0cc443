// Package boot decodes the BootInfo block a hypervisor or bootloader hands
// the kernel before the BP runs its first instruction, per spec.md §3/§6.
// Grounded on the YAML-driven configuration tinyrange-cc's cmd/ccapp and
// internal/bundle read at startup (gopkg.in/yaml.v3), adapted here from
// "describe a VM to launch" to "describe the VM the kernel woke up inside
// of" -- the same library, the opposite direction of information flow.
package boot

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/hermit-os/kernel-go/internal/archconst"
	"github.com/hermit-os/kernel-go/internal/mm"
)

// Platform identifies which of spec.md §6's boot protocols produced this
// BootInfo.
type Platform string

const (
	PlatformUhyve     Platform = "uhyve"
	PlatformMultiboot Platform = "multiboot"
	PlatformFDT       Platform = "fdt"
)

// TLSImageDescriptor mirrors sched.TLSImage in a YAML-friendly shape (boot
// carries raw numbers; sched.TLSImage carries mm.VirtAddr/typed fields).
type TLSImageDescriptor struct {
	Start  uint64 `yaml:"start"`
	FileSz uint64 `yaml:"filesz"`
	MemSz  uint64 `yaml:"memsz"`
	Align  uint64 `yaml:"align"`
}

// BootInfo is the spec.md §3 entity: everything the BP reads, once, before
// any allocator or scheduler exists. Every field is read-only for the rest
// of boot; spec.md §5 calls this out explicitly ("BootInfo is published
// once by the BP and only ever read after that").
type BootInfo struct {
	Platform Platform `yaml:"platform"`
	Arch     archconst.Arch `yaml:"arch"`

	RAMStart uint64 `yaml:"ram_start"`
	RAMSize  uint64 `yaml:"ram_size"`

	KernelImageStart uint64 `yaml:"kernel_image_start"`
	KernelImageEnd   uint64 `yaml:"kernel_image_end"`

	// FDTAddress is set (non-zero) only when Platform == PlatformFDT.
	FDTAddress uint64 `yaml:"fdt_address,omitempty"`

	// SerialPortBase is a UART MMIO/port base, interpretation is
	// arch-specific (I/O port on x86_64, MMIO address otherwise).
	SerialPortBase uint64 `yaml:"serial_port_base"`

	TLSImage TLSImageDescriptor `yaml:"tls_image"`

	CommandLine string `yaml:"command_line"`

	CPUCount int `yaml:"cpu_count"`
}

// Decode parses a YAML-encoded BootInfo, as produced by a host-side loader
// (uhyve's param block, a Multiboot2 bridge, or an FDT-to-YAML shim) and
// validates the handful of invariants spec.md §6 requires before any other
// subsystem may run.
func Decode(data []byte) (BootInfo, error) {
	var info BootInfo
	if err := yaml.Unmarshal(data, &info); err != nil {
		return BootInfo{}, fmt.Errorf("boot: decode BootInfo: %w", err)
	}
	if err := info.validate(); err != nil {
		return BootInfo{}, err
	}
	return info, nil
}

func (b BootInfo) validate() error {
	if b.RAMSize == 0 {
		return fmt.Errorf("boot: RAMSize must be non-zero")
	}
	if b.KernelImageEnd <= b.KernelImageStart {
		return fmt.Errorf("boot: KernelImageEnd must exceed KernelImageStart")
	}
	if b.Platform == PlatformFDT && b.FDTAddress == 0 {
		return fmt.Errorf("boot: FDT platform requires a non-zero FDTAddress")
	}
	if b.CPUCount < 1 {
		return fmt.Errorf("boot: CPUCount must be at least 1")
	}
	switch b.Arch {
	case archconst.X86_64, archconst.AArch64, archconst.RISCV64:
	default:
		return fmt.Errorf("boot: unknown arch %q", b.Arch)
	}
	return nil
}

// KernelEnd returns the first virtual address past the loaded kernel image,
// the floor spec.md §4.2 hands to NewVirtAlloc.
func (b BootInfo) KernelEnd() mm.VirtAddr { return mm.VirtAddr(b.KernelImageEnd) }

// MemoryRegion returns the single RAM region this BootInfo describes, ready
// for mm.PhysAlloc.Init.
func (b BootInfo) MemoryRegion() mm.MemoryRegion {
	return mm.MemoryRegion{
		Start: mm.PhysAddr(b.RAMStart),
		End:   mm.PhysAddr(b.RAMStart + b.RAMSize),
	}
}

// KernelReservation reserves the loaded kernel image's own physical frames
// so the physical allocator never hands them back out, per spec.md §4.2.
func (b BootInfo) KernelReservation() mm.Reservation {
	return mm.Reservation{
		Start: mm.PhysAddr(b.KernelImageStart),
		End:   mm.PhysAddr(b.KernelImageEnd),
		Why:   "kernel image",
	}
}
