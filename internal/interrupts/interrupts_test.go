package interrupts

import (
	"runtime"
	"testing"

	"github.com/hermit-os/kernel-go/internal/percore"
)

func bindTestCore(t *testing.T) *percore.Core {
	t.Helper()
	runtime.LockOSThread()
	t.Cleanup(runtime.UnlockOSThread)
	return percore.BindBSP()
}

func TestDispatchRoutesToRegisteredHandler(t *testing.T) {
	bindTestCore(t)
	table := NewTable()

	var got uint8
	calls := 0
	table.Register(VectorPageFault, func(vector uint8) {
		got = vector
		calls++
	})

	table.Dispatch(VectorPageFault)
	if calls != 1 || got != VectorPageFault {
		t.Fatalf("handler called %d times with vector %d, want 1 call with %d", calls, got, VectorPageFault)
	}
}

func TestDispatchUnhandledVectorDoesNotPanic(t *testing.T) {
	core := bindTestCore(t)
	table := NewTable()

	before := core.IRQCount.Count(IRQBaseVector)
	table.Dispatch(IRQBaseVector)
	if after := core.IRQCount.Count(IRQBaseVector); after != before+1 {
		t.Fatalf("IRQCount after an unhandled vector = %d, want %d", after, before+1)
	}
}

func TestRegisterReplacesExistingHandler(t *testing.T) {
	bindTestCore(t)
	table := NewTable()

	var which string
	table.Register(VectorBreakpoint, func(uint8) { which = "first" })
	table.Register(VectorBreakpoint, func(uint8) { which = "second" })

	table.Dispatch(VectorBreakpoint)
	if which != "second" {
		t.Fatalf("which = %q, want %q after replacing the handler", which, "second")
	}
}

func TestIPIReasonString(t *testing.T) {
	cases := map[IPIReason]string{
		IPIReschedule:   "reschedule",
		IPIWakeup:       "wakeup",
		IPITLBShootdown: "tlb-shootdown",
		IPIStop:         "stop",
		IPIReason(200):  "unknown",
	}
	for reason, want := range cases {
		if got := reason.String(); got != want {
			t.Fatalf("%d.String() = %q, want %q", reason, got, want)
		}
	}
}

func TestWithIRQDisabledRestoresStateAndRunsOnce(t *testing.T) {
	bindTestCore(t)

	calls := 0
	WithIRQDisabled(func() { calls++ })
	if calls != 1 {
		t.Fatalf("fn ran %d times, want 1", calls)
	}

	// Nested use must not panic: NestedEnable restores the saved state
	// from its matching NestedDisable.
	WithIRQDisabled(func() {
		WithIRQDisabled(func() { calls++ })
	})
	if calls != 2 {
		t.Fatalf("fn ran %d times after nested use, want 2", calls)
	}
}

func TestWithIRQDisabledRestoresStateOnPanic(t *testing.T) {
	bindTestCore(t)

	func() {
		defer func() { recover() }()
		WithIRQDisabled(func() { panic("boom") })
	}()

	// If the nested-disable depth wasn't restored by the deferred
	// NestedEnable, this call panics instead of running cleanly.
	WithIRQDisabled(func() {})
}
