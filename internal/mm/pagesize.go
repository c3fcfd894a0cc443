package mm

// PageSize is the compile-time page-size trait referenced by spec.md §4.1 and
// §9 ("Architectural polymorphism"). Go has no const-generic specialization,
// so each size is a distinct type implementing this interface and callers
// instantiate the generic Paging[S] / PageRange[S] with it — the same shape
// the teacher repo uses for its CpuArchitecture-keyed dispatch tables
// (internal/hv/common.go), just specialized on size instead of architecture.
type PageSize interface {
	Bytes() uint64
	Name() string
}

// BasePageSize is the 4 KiB page, present on every supported architecture.
type BasePageSize struct{}

func (BasePageSize) Bytes() uint64 { return 4 << 10 }
func (BasePageSize) Name() string  { return "4K" }

// LargePageSize is the 2 MiB huge page (x86_64 PD leaf, AArch64 level-2
// block, RISC-V Sv39 megapage).
type LargePageSize struct{}

func (LargePageSize) Bytes() uint64 { return 2 << 20 }
func (LargePageSize) Name() string  { return "2M" }

// HugePageSize is the 1 GiB page (x86_64 PDPT leaf, AArch64 level-1 block,
// RISC-V Sv39 gigapage).
type HugePageSize struct{}

func (HugePageSize) Bytes() uint64 { return 1 << 30 }
func (HugePageSize) Name() string  { return "1G" }

// PageRange is a half-open, page-aligned interval of addresses of type A
// (PhysAddr or VirtAddr), sized in units of S.
type PageRange[A ~uint64, S PageSize] struct {
	Start A
	End   A
}

// NewPageRange validates alignment and ordering per spec.md §3.
func NewPageRange[A ~uint64, S PageSize](start, end A) (PageRange[A, S], error) {
	var s S
	sz := s.Bytes()
	if uint64(start) >= uint64(end) {
		return PageRange[A, S]{}, errRangeOrder(uint64(start), uint64(end))
	}
	if !alignedU64(uint64(start), sz) || !alignedU64(uint64(end), sz) {
		return PageRange[A, S]{}, errRangeAlign(uint64(start), uint64(end), sz)
	}
	return PageRange[A, S]{Start: start, End: end}, nil
}

// Len returns the number of S-sized pages in the range.
func (r PageRange[A, S]) Len() uint64 {
	var s S
	return (uint64(r.End) - uint64(r.Start)) / s.Bytes()
}

// Size returns the byte length of the range.
func (r PageRange[A, S]) Size() uint64 {
	return uint64(r.End) - uint64(r.Start)
}

// Overlaps reports whether r and o share any address.
func (r PageRange[A, S]) Overlaps(o PageRange[A, S]) bool {
	return uint64(r.Start) < uint64(o.End) && uint64(o.Start) < uint64(r.End)
}

// Adjacent reports whether r and o are immediately contiguous (either order).
func (r PageRange[A, S]) Adjacent(o PageRange[A, S]) bool {
	return uint64(r.End) == uint64(o.Start) || uint64(o.End) == uint64(r.Start)
}
