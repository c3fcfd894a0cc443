// Package riscv64 implements the RISC-V half of spec.md §4.3/§4.4: a hosted
// simulation of the PLIC (platform-level interrupt controller) for external
// interrupts, SBI IPI/timer calls for inter-hart signaling and the timer,
// and the SFENCE.VMA-is-broadcast assumption that, like AArch64, lets
// Shootdown skip an explicit cross-hart IPI under SBI's HART_MASK
// remote-fence extension.
package riscv64

import (
	"sync"
	"time"

	"github.com/hermit-os/kernel-go/internal/interrupts"
	"github.com/hermit-os/kernel-go/internal/mm"
)

// PLIC is one hart's simulated platform-level interrupt controller claim/
// complete interface, plus the SBI timer extension's one-shot deadline.
type PLIC struct {
	HartID int

	mu          sync.Mutex
	masked      [256]bool
	timer       *time.Timer
	onTimerFire func()
}

func NewPLIC(hartID int) *PLIC { return &PLIC{HartID: hartID} }

func (p *PLIC) EnableVector(vector uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.masked[vector] = false
}

func (p *PLIC) DisableVector(vector uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.masked[vector] = true
}

// EndOfInterrupt models the PLIC claim/complete write-back; no claim state
// to release in this simulation.
func (p *PLIC) EndOfInterrupt(uint8) {}

// SendIPI models an SBI sbi_send_ipi call to another hart.
func (p *PLIC) SendIPI(targetHartID int, reason interrupts.IPIReason) {
	deliverIPI(targetHartID, reason)
}

func (p *PLIC) OnTimerFire(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onTimerFire = fn
}

// SetOneshot models an SBI sbi_set_timer call against the mtime/mtimecmp
// pair.
func (p *PLIC) SetOneshot(deadlineNanos *int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if deadlineNanos == nil || p.onTimerFire == nil {
		return
	}
	delay := time.Until(time.Unix(0, *deadlineNanos))
	if delay < 0 {
		delay = 0
	}
	p.timer = time.AfterFunc(delay, p.onTimerFire)
}

var (
	ipiMu   sync.Mutex
	targets = map[int]func(interrupts.IPIReason){}
)

func RegisterIPITarget(hartID int, fn func(interrupts.IPIReason)) {
	ipiMu.Lock()
	defer ipiMu.Unlock()
	targets[hartID] = fn
}

func deliverIPI(hartID int, reason interrupts.IPIReason) {
	ipiMu.Lock()
	fn := targets[hartID]
	ipiMu.Unlock()
	if fn != nil {
		fn(reason)
	}
}

// TLBFlusher implements mm.TLBFlusher for Sv39: SFENCE.VMA is local-only on
// bare RISC-V, but this kernel only targets SBI platforms, which expose the
// remote-fence-vma SBI extension as a single call covering every hart, so
// Shootdown still needs no manual per-core IPI loop from the scheduler's
// point of view.
type TLBFlusher struct {
	HartID      int
	OnlineHarts func() []int
}

func (f *TLBFlusher) FlushLocal(va mm.VirtAddr, count int, size mm.PageSize) {}
func (f *TLBFlusher) Shootdown(va mm.VirtAddr, count int, size mm.PageSize) {
	f.FlushLocal(va, count, size)
}
