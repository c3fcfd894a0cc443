package synch

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// Errors surfaced to futex callers, per spec.md §7 (recoverable-local).
var (
	ErrAgain     = errors.New("synch: futex: value did not match expected (EAGAIN)")
	ErrTimedOut  = errors.New("synch: futex: wait timed out (ETIMEDOUT)")
)

// WaitFlags selects how a futex deadline is interpreted, grounded on
// original_source/src/synch/futex.rs's RELATIVE/ABSOLUTE flag bit.
type WaitFlags uint32

const (
	// FlagRelative interprets the timeout as a duration from now.
	FlagRelative WaitFlags = 0
	// FlagAbsolute interprets the timeout as an absolute deadline.
	FlagAbsolute WaitFlags = 1
)

// Waiter is a blocked task's handle, parked on the address it waits on.
// Blocker is the scheduling primitive that performs the actual suspend; it
// is supplied by package sched to avoid an import cycle (mm/sched/synch
// form a strict DAG the way the teacher keeps internal/hv independent of
// internal/devices).
type Waiter struct {
	wake chan struct{}
}

// Blocker is implemented by the scheduler so Futex can suspend and resume
// callers without importing package sched directly.
type Blocker interface {
	// Block suspends the calling task until deadline (zero means
	// indefinite) or until wake is closed.
	Block(deadline time.Time, wake <-chan struct{})
}

// ParkingLot is the map described in spec.md §3: address -> waiter queue,
// with an entry existing iff at least one waiter is present.
type ParkingLot struct {
	mu      sync.Mutex
	waiters map[uintptr][]*Waiter
}

// NewParkingLot constructs an empty parking lot.
func NewParkingLot() *ParkingLot {
	return &ParkingLot{waiters: make(map[uintptr][]*Waiter)}
}

// Futex implements futex_wait / futex_wait_and_set / futex_wake over a
// shared ParkingLot, per spec.md §4.5.
type Futex struct {
	lot     *ParkingLot
	blocker Blocker
}

// NewFutex builds a Futex bound to lot, parked via blocker.
func NewFutex(lot *ParkingLot, blocker Blocker) *Futex {
	return &Futex{lot: lot, blocker: blocker}
}

// Wait implements futex_wait. addr identifies the futex word (its address,
// as a stable key — callers pass uintptr(unsafe.Pointer(&word))); load
// reads *addr's current value under the parking-lot lock, which is required
// to close the lost-wakeup window with Wake (spec.md §4.5 "Ordering").
func (f *Futex) Wait(addr uintptr, expected uint32, load func() uint32, timeout time.Duration, flags WaitFlags) error {
	return f.wait(addr, expected, load, nil, timeout, flags)
}

// WaitAndSet implements futex_wait_and_set. set is invoked unconditionally
// while the parking-lot lock is held, swapping in the new value as part of
// the same critical section as the equality check -- matching
// original_source's documented-intentional behavior (spec.md §9 Open
// Question (a)): the swap happens even when the precondition fails, and the
// caller still observes ErrAgain in that case and is responsible for
// reconciling the value it just wrote.
func (f *Futex) WaitAndSet(addr uintptr, expected uint32, load func() uint32, set func(), timeout time.Duration, flags WaitFlags) error {
	return f.wait(addr, expected, load, set, timeout, flags)
}

func (f *Futex) wait(addr uintptr, expected uint32, load func() uint32, set func(), timeout time.Duration, flags WaitFlags) error {
	f.lot.mu.Lock()
	current := load()
	if set != nil {
		set()
	}
	if current != expected {
		f.lot.mu.Unlock()
		return ErrAgain
	}

	w := &Waiter{wake: make(chan struct{})}
	f.lot.waiters[addr] = append(f.lot.waiters[addr], w)
	f.lot.mu.Unlock()

	var deadline time.Time
	if timeout > 0 {
		if flags&FlagAbsolute != 0 {
			deadline = time.Unix(0, int64(timeout))
		} else {
			deadline = time.Now().Add(timeout)
		}
	}
	for {
		f.blocker.Block(deadline, w.wake)

		select {
		case <-w.wake:
			return nil // woken by Wake, which dequeues before closing wake
		default:
		}
		if deadline.IsZero() || time.Now().Before(deadline) {
			// Block returned early without a wake: spurious (spec.md §7
			// "Retryable"); re-park without re-checking the value.
			continue
		}
		// Deadline passed. Still queued means a timeout; already dequeued
		// means Wake got there first.
		if !f.removeIfPresent(addr, w) {
			return nil
		}
		return ErrTimedOut
	}
}

// removeIfPresent removes w from addr's queue if still present, reporting
// whether it was found (i.e. whether the wakeup was spurious/timeout rather
// than an explicit Wake, which already removes the waiter itself).
func (f *Futex) removeIfPresent(addr uintptr, w *Waiter) bool {
	f.lot.mu.Lock()
	defer f.lot.mu.Unlock()
	q := f.lot.waiters[addr]
	for i, cand := range q {
		if cand == w {
			f.lot.waiters[addr] = append(q[:i], q[i+1:]...)
			if len(f.lot.waiters[addr]) == 0 {
				delete(f.lot.waiters, addr)
			}
			return true
		}
	}
	return false
}

// Wake implements futex_wake: pops up to count waiters (or all, if count is
// negative, matching i32::MAX in the original) and wakes them, returning
// the number actually woken.
func (f *Futex) Wake(addr uintptr, count int) int {
	f.lot.mu.Lock()
	q := f.lot.waiters[addr]
	if len(q) == 0 {
		f.lot.mu.Unlock()
		return 0
	}
	n := len(q)
	if count >= 0 && count < n {
		n = count
	}
	woken := q[:n]
	remaining := q[n:]
	if len(remaining) == 0 {
		delete(f.lot.waiters, addr)
	} else {
		f.lot.waiters[addr] = remaining
	}
	f.lot.mu.Unlock()

	for _, w := range woken {
		close(w.wake)
	}
	return len(woken)
}

// AtomicLoad32 is a small helper callers can pass as the load func when the
// futex word is a plain *uint32 backed by atomic operations.
func AtomicLoad32(word *uint32) func() uint32 {
	return func() uint32 { return atomic.LoadUint32(word) }
}

// AtomicStore32 builds a set func for WaitAndSet over an atomic *uint32.
func AtomicStore32(word *uint32, value uint32) func() {
	return func() { atomic.StoreUint32(word, value) }
}
