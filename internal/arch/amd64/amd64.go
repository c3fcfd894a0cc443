// Package amd64 implements the x86_64 half of spec.md §4.3's interrupt
// controller contract and §4.4's TLB shootdown requirement: a hosted
// simulation of the LAPIC timer/IPI/spurious-vector machinery the original
// implementation programs through MSRs (original_source's
// src/arch/x86_64/kernel/apic.rs). This package runs the guest side of the
// same x2APIC register protocol tinyrange-cc's internal/devices/amd64/chipset
// package emulates for a guest; here there is no host to cross, so register
// access is modeled directly as in-process state rather than MMIO/MSR
// traps, matching the rest of this kernel's "hosted instead of bare-metal"
// stance (see internal/mm's PhysMemory doc comment).
package amd64

import (
	"sync"
	"time"

	"github.com/hermit-os/kernel-go/internal/interrupts"
	"github.com/hermit-os/kernel-go/internal/mm"
)

// ErrorInterruptNumber and SpuriousInterruptNumber mirror the original's
// apic.rs constants of the same purpose.
const (
	ErrorInterruptNumber    uint8 = 0x7e
	SpuriousInterruptNumber uint8 = interrupts.SpuriousVector
	TimerInterruptNumber    uint8 = 0x7f
	RescheduleInterruptNum  uint8 = 0x7c
	WakeupInterruptNumber   uint8 = 0x7d
)

// LocalAPIC is one core's simulated x2APIC: a masked-vector table plus a
// one-shot timer. Every LocalAPIC is calibrated at construction by waiting
// a fixed window (after apic.rs's calibrate_timer), whether or not the
// (simulated) processor reports the TSC-deadline MSR; supportsTSCDeadline
// only records which mode the core reports.
type LocalAPIC struct {
	CoreID int

	mu            sync.Mutex
	masked        [256]bool
	timerDeadline *time.Timer
	onTimerFire   func()

	// calibratedTicksPerUsec mirrors CALIBRATED_COUNTER_VALUE; unused by
	// this hosted simulation's own timer (time.Timer is already
	// wall-clock accurate) but exposed so higher layers that want to
	// report a "frequency" in the boot log have a real value to show,
	// matching the original's debug! log line.
	calibratedTicksPerUsec uint64

	supportsTSCDeadline bool
}

// NewLocalAPIC constructs and calibrates a LocalAPIC for coreID.
// supportsTSCDeadline models the CPUID leaf 1 ECX[24] check
// processor::supports_tsc_deadline() performs in the original.
func NewLocalAPIC(coreID int, supportsTSCDeadline bool) *LocalAPIC {
	a := &LocalAPIC{CoreID: coreID, supportsTSCDeadline: supportsTSCDeadline}
	a.calibrate()
	return a
}

// calibrate sleeps 30ms (the original's chosen accuracy/latency tradeoff)
// and records an arbitrary but stable ticks-per-microsecond figure, used
// only for reporting.
func (a *LocalAPIC) calibrate() {
	const window = 30 * time.Millisecond
	start := time.Now()
	time.Sleep(window)
	elapsed := time.Since(start)
	if elapsed <= 0 {
		elapsed = window
	}
	a.calibratedTicksPerUsec = uint64(elapsed.Microseconds())
	if a.calibratedTicksPerUsec == 0 {
		a.calibratedTicksPerUsec = 1
	}
}

func (a *LocalAPIC) EnableVector(vector uint8) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.masked[vector] = false
}

func (a *LocalAPIC) DisableVector(vector uint8) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.masked[vector] = true
}

// EndOfInterrupt models writing IA32_X2APIC_EOI; this hosted simulation has
// no in-flight interrupt state to clear, so it is a bookkeeping no-op
// documented for parity with the real register write sequence.
func (a *LocalAPIC) EndOfInterrupt(uint8) {}

// SendIPI delivers reason to targetCoreID's dispatch table immediately.
// Real hardware writes IA32_X2APIC_ICR and the target takes a trap on its
// own time; here the sender drives the callback directly, since there is no
// real asynchronous core to interrupt.
func (a *LocalAPIC) SendIPI(targetCoreID int, reason interrupts.IPIReason) {
	deliverIPI(targetCoreID, reason)
}

// SetOneshot implements sched.Timer, standing in for __set_oneshot_timer's
// TSC-deadline-or-counter split: both hardware modes converge to the same
// time.Timer here since wall-clock Go timers don't need the distinction,
// so there is a single code path for either mode.
func (a *LocalAPIC) SetOneshot(deadlineNanos *int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.timerDeadline != nil {
		a.timerDeadline.Stop()
		a.timerDeadline = nil
	}
	if deadlineNanos == nil || a.onTimerFire == nil {
		return
	}
	delay := time.Until(time.Unix(0, *deadlineNanos))
	if delay < 0 {
		delay = 0
	}
	// Both the TSC-deadline MSR path and the counter/divisor path the
	// original distinguishes converge to the same wall-clock timer here.
	a.timerDeadline = time.AfterFunc(delay, a.onTimerFire)
}

// OnTimerFire registers the callback SetOneshot's expiry invokes (normally
// PerCoreScheduler.HandleWaitingTasks bound to this core's wall-clock).
func (a *LocalAPIC) OnTimerFire(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onTimerFire = fn
}

// SupportsTSCDeadline reports which calibration mode this core negotiated,
// for boot-log parity with the original's debug! line.
func (a *LocalAPIC) SupportsTSCDeadline() bool { return a.supportsTSCDeadline }

// CalibratedTicksPerMicrosecond mirrors CALIBRATED_COUNTER_VALUE.
func (a *LocalAPIC) CalibratedTicksPerMicrosecond() uint64 { return a.calibratedTicksPerUsec }

var (
	ipiMu   sync.Mutex
	targets = map[int]func(interrupts.IPIReason){}
)

// RegisterIPITarget lets coreID receive SendIPI deliveries via fn.
func RegisterIPITarget(coreID int, fn func(interrupts.IPIReason)) {
	ipiMu.Lock()
	defer ipiMu.Unlock()
	targets[coreID] = fn
}

func deliverIPI(coreID int, reason interrupts.IPIReason) {
	ipiMu.Lock()
	fn := targets[coreID]
	ipiMu.Unlock()
	if fn != nil {
		fn(reason)
	}
}

// TLBFlusher is the x86_64 mm.TLBFlusher: a local invlpg stands in for
// FlushLocal, and Shootdown additionally broadcasts an IPI to every other
// online core, per spec.md §4.4 ("x86_64 has no broadcast TLB invalidate
// instruction; AArch64 and RISC-V do").
type TLBFlusher struct {
	CoreID      int
	APIC        *LocalAPIC
	OnlineCores func() []int
}

func (f *TLBFlusher) FlushLocal(va mm.VirtAddr, count int, size mm.PageSize) {
	// A real invlpg loop would execute here; this hosted kernel's page
	// tables live in simulated memory with no TLB to desynchronize.
}

func (f *TLBFlusher) Shootdown(va mm.VirtAddr, count int, size mm.PageSize) {
	f.FlushLocal(va, count, size)
	if f.OnlineCores == nil {
		return
	}
	for _, core := range f.OnlineCores() {
		if core == f.CoreID {
			continue
		}
		f.APIC.SendIPI(core, interrupts.IPITLBShootdown)
	}
}
