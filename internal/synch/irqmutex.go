// Package synch implements the interrupt-safe synchronization primitives of
// spec.md §4.5 and §5: the futex parking lot, an interrupt-disabling ticket
// mutex for the global tables (task table, free lists, remote input queues),
// and an interrupt-safe borrow cell for driver singletons.
package synch

import (
	"sync"

	"github.com/hermit-os/kernel-go/internal/percore"
)

// NestedDisable disables "interrupts" for the current core and returns the
// previous enabled state, per spec.md §4.3. On this hosted build there is no
// real IRQ line to mask; the call instead increments the current Core's
// IrqDepth, which governs whether futex/scheduler code sections are allowed
// to assume exclusive access to per-core state. Composing pairs nest
// correctly because depth is a counter, not a boolean.
func NestedDisable() bool {
	c := percore.Current()
	prev := c.IrqDepth == 0 && c.IrqWasOn
	wasOn := c.IrqDepth == 0
	c.IrqDepth++
	if c.IrqDepth == 1 {
		c.IrqWasOn = wasOn
	}
	return prev || (c.IrqDepth == 1 && wasOn)
}

// NestedEnable undoes one matching NestedDisable by decrementing the nesting
// depth; interrupts count as enabled again once the depth is back to zero.
// prev is not consulted.
func NestedEnable(prev bool) {
	c := percore.Current()
	if c.IrqDepth == 0 {
		panic("synch: nested_enable without matching nested_disable")
	}
	c.IrqDepth--
	_ = prev
}

// IrqMutex is the "interrupt-ticket-mutex" of spec.md §5: it serializes
// access to a process-wide singleton (the global task table, a free list, a
// remote core's input queue) and also disables interrupts on the local core
// for the duration of the critical section, so a timer tick can never
// reenter a lock holder's own core. Fairness under cross-core contention is
// delegated to sync.Mutex, which is fair enough for the rare contention
// spec.md §5 describes ("contention is rare enough that ticket fairness is
// acceptable").
type IrqMutex struct {
	mu sync.Mutex
}

// Lock acquires the mutex, disabling local interrupts for as long as it is
// held.
func (m *IrqMutex) Lock() {
	NestedDisable()
	m.mu.Lock()
}

// Unlock releases the mutex and restores the local interrupt state.
func (m *IrqMutex) Unlock() {
	m.mu.Unlock()
	NestedEnable(true)
}
