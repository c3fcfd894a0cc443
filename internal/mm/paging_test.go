package mm

import (
	"testing"

	"github.com/hermit-os/kernel-go/internal/archconst"
)

// newTestPaging builds a Paging instance whose page tables live in
// [0x10000, 0x100000) of a small byte-addressed PhysMemory, leaving
// [0, 0x10000) free to stand in for mapped "device memory" the tests write
// through directly once translated -- avoiding any collision between table
// allocations (from PhysAlloc) and the data addresses used as `pa` in Map.
func newTestPaging(t *testing.T, arch archconst.Arch) (*Paging, *CountingFlusher) {
	t.Helper()
	mem := NewByteMemory(0x100000)
	phys := NewPhysAlloc()
	if err := phys.Init([]MemoryRegion{{Start: 0x10000, End: 0x100000}}, nil, false); err != nil {
		t.Fatalf("phys.Init: %v", err)
	}
	flusher := &CountingFlusher{}
	p, err := NewPaging(arch, mem, phys, flusher)
	if err != nil {
		t.Fatalf("NewPaging: %v", err)
	}
	return p, flusher
}

// TestPagingMapUnmapRoundTrip exercises spec.md §8 property 2: after
// map(va, pa, 1, flags), virtual_to_physical(va) == Some(pa); after
// unmap(va, 1), it is None.
func TestPagingMapUnmapRoundTrip(t *testing.T) {
	for _, arch := range []archconst.Arch{archconst.X86_64, archconst.AArch64, archconst.RISCV64} {
		t.Run(string(arch), func(t *testing.T) {
			p, _ := newTestPaging(t, arch)
			const va = VirtAddr(0x2000_0000)
			const pa = PhysAddr(0x3000)

			if err := p.Map(BasePageSize{}, va, pa, 1, Writable|Normal); err != nil {
				t.Fatalf("Map: %v", err)
			}
			got, ok := p.VirtualToPhysical(va)
			if !ok || got != pa {
				t.Fatalf("VirtualToPhysical = (%s, %v), want (%s, true)", got, ok, pa)
			}

			if err := p.Unmap(BasePageSize{}, va, 1); err != nil {
				t.Fatalf("Unmap: %v", err)
			}
			if _, ok := p.VirtualToPhysical(va); ok {
				t.Fatalf("VirtualToPhysical returned mapped after Unmap")
			}
		})
	}
}

// TestPagingLargePageMapping mirrors S5 of spec.md §8: a 2MiB mapping
// translates every offset within the page consistently.
func TestPagingLargePageMapping(t *testing.T) {
	p, _ := newTestPaging(t, archconst.X86_64)
	const va = VirtAddr(0x4000_0000)
	const pa = PhysAddr(0)

	if err := p.Map(LargePageSize{}, va, pa, 1, Writable|Normal); err != nil {
		t.Fatalf("Map: %v", err)
	}
	got, ok := p.VirtualToPhysical(va + 0x1000)
	if !ok || got != pa+0x1000 {
		t.Fatalf("VirtualToPhysical(va+0x1000) = (%s, %v), want (%s, true)", got, ok, pa+0x1000)
	}
	if got := p.VirtToPhys(va + 0x1000); got != pa+0x1000 {
		t.Fatalf("VirtToPhys = %s, want %s", got, pa+0x1000)
	}
}

func TestPagingVirtualToPhysicalUnmappedIsNone(t *testing.T) {
	p, _ := newTestPaging(t, archconst.X86_64)
	if _, ok := p.VirtualToPhysical(0x1234_0000); ok {
		t.Fatalf("expected unmapped address to report false")
	}
}

func TestPagingVirtToPhysPanicsOnUnmapped(t *testing.T) {
	p, _ := newTestPaging(t, archconst.X86_64)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected VirtToPhys to panic on an unmapped address")
		}
	}()
	p.VirtToPhys(0x1234_0000)
}

func TestPagingMapPanicsOnUnalignedInput(t *testing.T) {
	p, _ := newTestPaging(t, archconst.X86_64)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected Map to panic on unaligned va")
		}
	}()
	_ = p.Map(BasePageSize{}, 0x1001, 0x3000, 1, Writable)
}

// TestPagingOverwriteFlushesTLB exercises spec.md §4.1: "if a present entry
// already exists at the leaf, its prior TLB entry is flushed (locally) and
// on multi-core x86 a TLB-shootdown IPI is broadcast."
func TestPagingOverwriteFlushesTLB(t *testing.T) {
	p, flusher := newTestPaging(t, archconst.X86_64)
	const va = VirtAddr(0x5000_0000)

	if err := p.Map(BasePageSize{}, va, 0x3000, 1, Writable); err != nil {
		t.Fatalf("Map: %v", err)
	}
	if flusher.LocalFlushes != 0 || flusher.Shootdowns != 0 {
		t.Fatalf("first map of a fresh entry should not flush: local=%d shootdown=%d", flusher.LocalFlushes, flusher.Shootdowns)
	}

	if err := p.Map(BasePageSize{}, va, 0x4000, 1, Writable); err != nil {
		t.Fatalf("remap: %v", err)
	}
	if flusher.LocalFlushes == 0 {
		t.Fatalf("expected a local flush on remap over a present entry")
	}
	if flusher.Shootdowns == 0 {
		t.Fatalf("expected an x86_64 shootdown on remap over a present entry")
	}
}

func TestPagingIdentityMapRoundsOutward(t *testing.T) {
	p, _ := newTestPaging(t, archconst.X86_64)
	if err := p.IdentityMap(BasePageSize{}, 0x3001, 0x3fff, Writable); err != nil {
		t.Fatalf("IdentityMap: %v", err)
	}
	for _, va := range []VirtAddr{0x3000, 0x3fff} {
		got, ok := p.VirtualToPhysical(va)
		if !ok || uint64(got) != uint64(va) {
			t.Fatalf("IdentityMap(%s) = (%s, %v), want (%s, true)", va, got, ok, va)
		}
	}
}

func TestPagingWalkCannotDescendThroughHugeMapping(t *testing.T) {
	p, _ := newTestPaging(t, archconst.X86_64)
	const va = VirtAddr(0x4000_0000)
	if err := p.Map(LargePageSize{}, va, 0, 1, Writable); err != nil {
		t.Fatalf("Map large: %v", err)
	}
	if err := p.Map(BasePageSize{}, va, 0x1000, 1, Writable); err == nil {
		t.Fatalf("expected error descending through a huge leaf")
	}
}
