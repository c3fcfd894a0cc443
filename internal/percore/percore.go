// Package percore implements the PerCore entity of spec.md §3 and §4.7: a
// cache-line-aligned record reached "via a reserved base register" on real
// hardware (GS on x86_64, a GP register on RISC-V, TPIDR_EL1 on AArch64).
//
// Go has no stable inline assembly and no notion of "the current core" for a
// goroutine, so this package follows the fallback spec.md §9 names
// explicitly: "a thread-local with a fixed index table over a preallocated
// per-core array is equivalent". Every goroutine that acts for a simulated
// core is pinned to its OS thread (runtime.LockOSThread), and several such
// threads may be bound to the same core (see BindCurrentThreadToCore); the
// OS thread id (from golang.org/x/sys/unix.Gettid on Linux) is the "reserved
// register" value, and Current looks it up in a map keyed by it — the same
// technique the teacher uses to key per-VM state off a stable handle
// (internal/hv/common.go's CpuArchitecture-indexed tables) rather than
// ambient globals.
package percore

import (
	"fmt"
	"sync"
)

// IRQCounters tracks per-vector interrupt counts, per spec.md §9 supplement
// grounded on original_source/src/arch/x86_64/kernel/irq.rs.
type IRQCounters struct {
	mu     sync.Mutex
	counts map[uint8]uint64
}

func (c *IRQCounters) Increment(vector uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[uint8]uint64)
	}
	c.counts[vector]++
}

func (c *IRQCounters) Count(vector uint8) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[vector]
}

// Core is the PerCore record. Fields mirror spec.md §3: core id, current
// scheduler pointer (opaque here to avoid an import cycle with sched),
// current kernel stack pointer, TSS/IST placeholders, and IRQ counters.
type Core struct {
	ID int

	// Scheduler is set by package sched to *sched.PerCoreScheduler; kept as
	// an opaque pointer here so mm/sched/percore don't form an import cycle
	// (the same layering the teacher enforces between internal/hv and
	// internal/devices/virtio via narrow interfaces).
	Scheduler any

	KernelStackTop uintptr
	IST            [7]uintptr // x86_64 Interrupt Stack Table slots, unused elsewhere
	TSSBase        uintptr

	IRQCount IRQCounters

	// IrqDepth counts nested nested_disable() calls that have not yet been
	// matched by nested_enable(); see spec.md §4.3.
	IrqDepth int
	IrqWasOn bool
}

var (
	mu        sync.Mutex
	byThread  = map[int64]*Core{}
	byCoreID  = map[int]*Core{}
	bspCore   = &Core{ID: 0}
	bootBound bool
)

// BindBSP associates the calling OS thread with the statically-reserved
// "BSP" record (core 0), per spec.md §4.7 ("the register is set to ... a
// statically-reserved BSP record"). Call once from boot_processor_init.
func BindBSP() *Core {
	mu.Lock()
	defer mu.Unlock()
	byThread[threadID()] = bspCore
	byCoreID[0] = bspCore
	bootBound = true
	return bspCore
}

// BindAP allocates a freshly-boxed Core for an application processor and
// binds it to the calling OS thread, per spec.md §4.7.
func BindAP(id int) *Core {
	c := &Core{ID: id}
	mu.Lock()
	defer mu.Unlock()
	byThread[threadID()] = c
	byCoreID[id] = c
	return c
}

// Current returns the Core bound to the calling OS thread. It panics if the
// thread was never bound, mirroring a hard fault on an unprogrammed base
// register on real hardware.
func Current() *Core {
	mu.Lock()
	defer mu.Unlock()
	c, ok := byThread[threadID()]
	if !ok {
		panic(fmt.Sprintf("percore: thread %d has no bound core; call BindBSP/BindAP first", threadID()))
	}
	return c
}

// BindCurrentThreadToCore binds the calling OS thread to the already
// registered Core for coreID, without creating a new Core. Every task's
// trampoline goroutine (package sched's Task.start) calls this once before
// running the task's entry point: the scheduler's single-goroutine-at-a-time
// baton means only one of a core's task goroutines is ever actually
// executing, but each lives on its own OS thread (Go gives LockOSThread
// callers a dedicated thread), so each must independently register as
// "this core" for synch.NestedDisable/NestedEnable and Current to resolve
// correctly.
func BindCurrentThreadToCore(coreID int) (*Core, error) {
	mu.Lock()
	defer mu.Unlock()
	c, ok := byCoreID[coreID]
	if !ok {
		return nil, fmt.Errorf("percore: core %d is not bound; call BindBSP/BindAP first", coreID)
	}
	byThread[threadID()] = c
	return c, nil
}

// ByID returns the Core for a given core id, used by cross-core wakeup paths
// that need to reach another core's state (e.g. pushing onto its remote
// input queue) without being bound to it.
func ByID(id int) (*Core, bool) {
	mu.Lock()
	defer mu.Unlock()
	c, ok := byCoreID[id]
	return c, ok
}

// NumCores returns how many cores have been bound so far.
func NumCores() int {
	mu.Lock()
	defer mu.Unlock()
	return len(byCoreID)
}

// resetForTest clears all bindings; only called from tests in this package
// tree to isolate cases that each bring up their own fake topology.
func resetForTest() {
	mu.Lock()
	defer mu.Unlock()
	byThread = map[int64]*Core{}
	byCoreID = map[int]*Core{}
	bspCore = &Core{ID: 0}
	bootBound = false
}
