package mm

import (
	"testing"

	"github.com/hermit-os/kernel-go/internal/archconst"
)

func TestNewVirtAllocPerArchitectureRanges(t *testing.T) {
	cases := []struct {
		arch      archconst.Arch
		wantStart uint64
		wantEnd   uint64
	}{
		{archconst.X86_64, 0x20_0000, topOfSpaceX86_64},
		{archconst.AArch64, 0x20_0000, ceiling256GiB},
	}
	for _, c := range cases {
		v, err := NewVirtAlloc(c.arch, VirtAddr(c.wantStart), 0, 0)
		if err != nil {
			t.Fatalf("%s: NewVirtAlloc: %v", c.arch, err)
		}
		if got := v.TaskHeapStart(); uint64(got) != c.wantEnd {
			t.Fatalf("%s: TaskHeapStart = %#x, want %#x", c.arch, got, c.wantEnd)
		}
	}
}

func TestNewVirtAllocRISCVFloorsAboveRAM(t *testing.T) {
	v, err := NewVirtAlloc(archconst.RISCV64, 0, 0x8000_0000, 0x1000_0000)
	if err != nil {
		t.Fatalf("NewVirtAlloc: %v", err)
	}
	addr, err := v.Allocate(0x1000, 0x1000)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if uint64(addr) < 0x9000_0000 {
		t.Fatalf("allocated %#x below the RISC-V floor (ram_start+total_ram rounded up to 1GiB)", addr)
	}
}

func TestVirtAllocReserveExcludesFixedWindow(t *testing.T) {
	v, err := NewVirtAlloc(archconst.X86_64, 0x1000, 0, 0)
	if err != nil {
		t.Fatalf("NewVirtAlloc: %v", err)
	}
	if err := v.Reserve(0x1000, 0x1000); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	addr, err := v.Allocate(0x1000, 0x1000)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if addr == 0x1000 {
		t.Fatalf("Allocate returned the reserved window")
	}
}

func TestVirtAllocUnknownArchitectureErrors(t *testing.T) {
	if _, err := NewVirtAlloc(archconst.Arch("bogus"), 0, 0, 0); err == nil {
		t.Fatalf("expected error for unknown architecture")
	}
}
