package amd64

import (
	"testing"
	"time"

	"github.com/hermit-os/kernel-go/internal/interrupts"
	"github.com/hermit-os/kernel-go/internal/mm"
)

// vectorUnderTest picks an arbitrary vector distinct from 0 so the
// zero-value default of the masked array doesn't trivially satisfy the
// assertions below.
const vectorUnderTest uint8 = 0x40

func TestLocalAPICEnableDisableVector(t *testing.T) {
	apic := NewLocalAPIC(0, true)
	apic.DisableVector(vectorUnderTest)
	apic.mu.Lock()
	masked := apic.masked[vectorUnderTest]
	apic.mu.Unlock()
	if !masked {
		t.Fatalf("vector should be masked after DisableVector")
	}

	apic.EnableVector(vectorUnderTest)
	apic.mu.Lock()
	masked = apic.masked[vectorUnderTest]
	apic.mu.Unlock()
	if masked {
		t.Fatalf("vector should be unmasked after EnableVector")
	}
}

func TestLocalAPICSupportsTSCDeadlineAndCalibration(t *testing.T) {
	apic := NewLocalAPIC(0, true)
	if !apic.SupportsTSCDeadline() {
		t.Fatalf("SupportsTSCDeadline = false, want true")
	}
	if apic.CalibratedTicksPerMicrosecond() == 0 {
		t.Fatalf("CalibratedTicksPerMicrosecond = 0, want a positive calibrated value")
	}
}

func TestLocalAPICSetOneshotFiresCallback(t *testing.T) {
	apic := NewLocalAPIC(1, false)
	fired := make(chan struct{}, 1)
	apic.OnTimerFire(func() { fired <- struct{}{} })

	deadline := time.Now().Add(10 * time.Millisecond).UnixNano()
	apic.SetOneshot(&deadline)

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatalf("timer never fired within 1s")
	}
}

func TestLocalAPICSetOneshotNilCancelsPendingTimer(t *testing.T) {
	apic := NewLocalAPIC(1, false)
	fired := make(chan struct{}, 1)
	apic.OnTimerFire(func() { fired <- struct{}{} })

	deadline := time.Now().Add(50 * time.Millisecond).UnixNano()
	apic.SetOneshot(&deadline)
	apic.SetOneshot(nil)

	select {
	case <-fired:
		t.Fatalf("timer fired after being cancelled with SetOneshot(nil)")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSendIPIDeliversToRegisteredTarget(t *testing.T) {
	got := make(chan interrupts.IPIReason, 1)
	RegisterIPITarget(9, func(r interrupts.IPIReason) { got <- r })
	defer RegisterIPITarget(9, nil)

	apic := NewLocalAPIC(0, true)
	apic.SendIPI(9, interrupts.IPIWakeup)

	select {
	case r := <-got:
		if r != interrupts.IPIWakeup {
			t.Fatalf("delivered reason = %v, want IPIWakeup", r)
		}
	default:
		t.Fatalf("SendIPI did not deliver synchronously")
	}
}

func TestTLBFlusherShootdownBroadcastsToOtherOnlineCores(t *testing.T) {
	notified := make(chan int, 4)
	RegisterIPITarget(2, func(interrupts.IPIReason) { notified <- 2 })
	RegisterIPITarget(3, func(interrupts.IPIReason) { notified <- 3 })
	defer RegisterIPITarget(2, nil)
	defer RegisterIPITarget(3, nil)

	flusher := &TLBFlusher{
		CoreID:      1,
		APIC:        NewLocalAPIC(1, true),
		OnlineCores: func() []int { return []int{1, 2, 3} },
	}
	flusher.Shootdown(0x1000, 1, mm.BasePageSize{})

	got := map[int]bool{}
	for i := 0; i < 2; i++ {
		select {
		case core := <-notified:
			got[core] = true
		case <-time.After(time.Second):
			t.Fatalf("did not receive shootdown notification %d", i)
		}
	}
	if !got[2] || !got[3] {
		t.Fatalf("notified cores = %v, want {2, 3}", got)
	}
	if got[1] {
		t.Fatalf("Shootdown must not send an IPI to its own core")
	}
}
