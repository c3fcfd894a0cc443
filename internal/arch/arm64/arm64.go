// Package arm64 implements the AArch64 half of spec.md §4.3/§4.4: a hosted
// simulation of the GICv3 distributor/redistributor IPI fabric and the
// generic timer, plus the broadcast TLBI semantics that let Shootdown skip
// the explicit cross-core IPI x86_64 needs. Register-level detail is
// modeled in-process rather than through real MMIO, matching amd64's
// LocalAPIC.
package arm64

import (
	"sync"
	"time"

	"github.com/hermit-os/kernel-go/internal/interrupts"
	"github.com/hermit-os/kernel-go/internal/mm"
)

const (
	TimerInterruptID     uint8 = 30 // PPI 14, the ARM generic timer's usual id
	RescheduleSGIID      uint8 = 0
	WakeupSGIID          uint8 = 1
)

// GICv3 is one core's simulated redistributor + generic-timer interface.
type GICv3 struct {
	CoreID int

	mu          sync.Mutex
	masked      [256]bool
	timer       *time.Timer
	onTimerFire func()
}

func NewGICv3(coreID int) *GICv3 { return &GICv3{CoreID: coreID} }

func (g *GICv3) EnableVector(vector uint8) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.masked[vector] = false
}

func (g *GICv3) DisableVector(vector uint8) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.masked[vector] = true
}

// EndOfInterrupt models a write to ICC_EOIR1_EL1; no state to clear here.
func (g *GICv3) EndOfInterrupt(uint8) {}

// SendIPI models an SGI (Software Generated Interrupt) to another core's
// redistributor, delivered directly since there is no real distributor.
func (g *GICv3) SendIPI(targetCoreID int, reason interrupts.IPIReason) {
	deliverIPI(targetCoreID, reason)
}

func (g *GICv3) OnTimerFire(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onTimerFire = fn
}

// SetOneshot programs the virtual/physical generic timer's CompareValue
// register equivalent.
func (g *GICv3) SetOneshot(deadlineNanos *int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	if deadlineNanos == nil || g.onTimerFire == nil {
		return
	}
	delay := time.Until(time.Unix(0, *deadlineNanos))
	if delay < 0 {
		delay = 0
	}
	g.timer = time.AfterFunc(delay, g.onTimerFire)
}

var (
	ipiMu   sync.Mutex
	targets = map[int]func(interrupts.IPIReason){}
)

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

// TLBFlusher implements mm.TLBFlusher for AArch64: TLBI VAE1IS is an
// inner-shareable broadcast instruction, so Shootdown never needs an
// explicit IPI, per spec.md §4.4.
type TLBFlusher struct{ CoreID int }

func (f *TLBFlusher) FlushLocal(va mm.VirtAddr, count int, size mm.PageSize) {}
func (f *TLBFlusher) Shootdown(va mm.VirtAddr, count int, size mm.PageSize) {
	f.FlushLocal(va, count, size)
}
