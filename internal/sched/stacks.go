package sched

import (
	"fmt"

	"github.com/hermit-os/kernel-go/internal/mm"
)

// stackSentinel is the debug marker value for a stack's top. NewTaskStacks
// only reserves virtual ranges and writes no memory, so it is not stored.
const stackSentinel uint32 = 0xDEADBEEF

// guardPageCount is the number of unmapped pages left between adjacent
// stacks to turn an overflow into a fault instead of silent corruption.
const guardPageCount = 1

// TaskStackKind distinguishes the statically-reserved boot stack from a
// normally-allocated task stack, per spec.md §3's `TaskStacks [enum Boot |
// Common]`.
type TaskStackKind int

const (
	StackBoot TaskStackKind = iota
	StackCommon
)

// TaskStacks is the spec.md §3 TaskStacks entity. A Common instance owns a
// separate virtual allocation for each of its kernel, IST, and (x86_64 only)
// user stacks, each with a guard page reserved below the stack's base; the
// three allocations are not required to be adjacent.
type TaskStacks struct {
	Kind TaskStackKind

	KernelStackBase mm.VirtAddr
	KernelStackTop  mm.VirtAddr
	KernelStackSize uint64

	ISTStackBase mm.VirtAddr
	ISTStackTop  mm.VirtAddr
	ISTStackSize uint64

	UserStackBase mm.VirtAddr // zero if no user stack was provisioned
	UserStackTop  mm.VirtAddr
	UserStackSize uint64

	virt *mm.VirtAlloc
}

const (
	defaultISTStackSize = 4096 * 4
	pageSize            = 4096
)

// NewTaskStacks allocates a Common TaskStacks with a kernel stack of
// stackSize bytes (rounded up to page size), a fixed IST stack, and, when
// withUserStack is set (x86_64 user-mode provisioning, per spec.md §1 "no
// user/kernel address-space separation except where an x86_64 user stack is
// explicitly provisioned"), a same-sized user stack.
func NewTaskStacks(virt *mm.VirtAlloc, stackSize uint64, withUserStack bool) (*TaskStacks, error) {
	stackSize = mm.AlignUp(stackSize, pageSize)

	s := &TaskStacks{Kind: StackCommon, virt: virt}

	kBase, err := virt.Allocate(stackSize+guardPageCount*pageSize, pageSize)
	if err != nil {
		return nil, fmt.Errorf("sched: allocate kernel stack: %w", err)
	}
	s.KernelStackBase = kBase + mm.VirtAddr(guardPageCount*pageSize)
	s.KernelStackSize = stackSize
	s.KernelStackTop = s.KernelStackBase + mm.VirtAddr(stackSize)

	istBase, err := virt.Allocate(defaultISTStackSize+guardPageCount*pageSize, pageSize)
	if err != nil {
		return nil, fmt.Errorf("sched: allocate IST stack: %w", err)
	}
	s.ISTStackBase = istBase + mm.VirtAddr(guardPageCount*pageSize)
	s.ISTStackSize = defaultISTStackSize
	s.ISTStackTop = s.ISTStackBase + mm.VirtAddr(defaultISTStackSize)

	if withUserStack {
		uBase, err := virt.Allocate(stackSize+guardPageCount*pageSize, pageSize)
		if err != nil {
			return nil, fmt.Errorf("sched: allocate user stack: %w", err)
		}
		s.UserStackBase = uBase + mm.VirtAddr(guardPageCount*pageSize)
		s.UserStackSize = stackSize
		s.UserStackTop = s.UserStackBase + mm.VirtAddr(stackSize)
	}

	return s, nil
}

// Free returns every range this TaskStacks owns to the virtual allocator.
// Called when a finished task is drained from the scheduler's finished
// list, per spec.md §4.4.
func (s *TaskStacks) Free() {
	if s == nil || s.Kind != StackCommon {
		return
	}
	s.virt.Deallocate(s.KernelStackBase-mm.VirtAddr(guardPageCount*pageSize), s.KernelStackSize+guardPageCount*pageSize)
	s.virt.Deallocate(s.ISTStackBase-mm.VirtAddr(guardPageCount*pageSize), s.ISTStackSize+guardPageCount*pageSize)
	if s.UserStackSize != 0 {
		s.virt.Deallocate(s.UserStackBase-mm.VirtAddr(guardPageCount*pageSize), s.UserStackSize+guardPageCount*pageSize)
	}
}
