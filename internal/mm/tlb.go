package mm

import "log/slog"

// TLBFlusher is invoked by Paging whenever a mapping changes under a leaf
// that previously had a different translation, per spec.md §4.1's
// invariant: "after map returns, all cores observe the new mapping on next
// access (local flush + shootdown)". The concrete implementation is
// supplied by each internal/arch/* package: x86_64 issues an explicit
// TLB-shootdown IPI to every other core (spec.md §5), while AArch64's single
// `tlbi vale1is` instruction and RISC-V's SBI RFENCE.VMA already broadcast,
// so those arch packages' Shootdown is a thin wrapper around one
// instruction rather than an IPI loop. Paging itself is arch-agnostic about
// which shape that takes.
type TLBFlusher interface {
	FlushLocal(va VirtAddr, count int, size PageSize)
	Shootdown(va VirtAddr, count int, size PageSize)
}

// NoopFlusher discards flush requests; used in unit tests where Paging's
// walk is always authoritative (there is no separate cache to go stale) and
// by single-core configurations where a shootdown would have no targets.
type NoopFlusher struct {
	Logger *slog.Logger
}

func (f NoopFlusher) FlushLocal(va VirtAddr, count int, size PageSize) {
	if f.Logger != nil {
		f.Logger.Debug("tlb: local flush", "va", va, "count", count, "size", size.Name())
	}
}

func (f NoopFlusher) Shootdown(va VirtAddr, count int, size PageSize) {
	if f.Logger != nil {
		f.Logger.Debug("tlb: shootdown", "va", va, "count", count, "size", size.Name())
	}
}

// CountingFlusher records how many local-flush and shootdown calls have
// been made, so tests can assert spec.md §8 property 7 (TLB coherence)
// and the S6/S7 scenarios without a real MMU: since Paging's own
// VirtualToPhysical always performs a fresh walk (see paging.go), coherence
// holds unconditionally, and this flusher exists to verify the *control
// flow* that real hardware depends on still fires on every overwrite/unmap.
type CountingFlusher struct {
	LocalFlushes int
	Shootdowns   int
}

func (f *CountingFlusher) FlushLocal(va VirtAddr, count int, size PageSize) { f.LocalFlushes++ }
func (f *CountingFlusher) Shootdown(va VirtAddr, count int, size PageSize)  { f.Shootdowns++ }
