// Package interrupts defines the architecture-neutral vector table contract
// of spec.md §4.3: a fixed dispatch table keyed by vector number, IPI
// reasons as data instead of one handler per cause, and the spurious-vector
// accounting spec.md §9 calls out as a supplemented feature. Each
// internal/arch/* package supplies the concrete controller (8259/LAPIC,
// GICv3, PLIC/SBI) behind the Controller interface and feeds raw vector
// numbers into Dispatch from its trap entry stub.
package interrupts

import (
	"log/slog"
	"sync"

	"github.com/hermit-os/kernel-go/internal/percore"
	"github.com/hermit-os/kernel-go/internal/synch"
)

// Vector numbers 0-31 are architecturally reserved for CPU exceptions on
// x86_64 (Intel SDM Vol.3 §6.3); IRQs begin at 32 in this kernel's mapping,
// per spec.md §4.3.
const (
	VectorDivideError     uint8 = 0
	VectorDebug           uint8 = 1
	VectorNMI             uint8 = 2
	VectorBreakpoint      uint8 = 3
	VectorOverflow        uint8 = 4
	VectorBoundRange      uint8 = 5
	VectorInvalidOpcode   uint8 = 6
	VectorDeviceNotAvail  uint8 = 7
	VectorDoubleFault     uint8 = 8
	VectorInvalidTSS      uint8 = 10
	VectorSegmentNotPres  uint8 = 11
	VectorStackFault      uint8 = 12
	VectorGeneralProtect  uint8 = 13
	VectorPageFault       uint8 = 14
	VectorFPUError        uint8 = 16
	VectorAlignmentCheck  uint8 = 17
	VectorMachineCheck    uint8 = 18
	VectorSIMDFPException uint8 = 19

	IRQBaseVector uint8 = 32
	SpuriousVector uint8 = 255
)

// IPIReason is the cause of an inter-processor interrupt, carried as data
// rather than as a distinct vector per cause, per spec.md §4.3 "the IPI
// payload is a small reason code, not a vector allocation per use".
type IPIReason uint8

const (
	IPIReschedule IPIReason = iota
	IPIWakeup
	IPITLBShootdown
	IPIStop
)

func (r IPIReason) String() string {
	switch r {
	case IPIReschedule:
		return "reschedule"
	case IPIWakeup:
		return "wakeup"
	case IPITLBShootdown:
		return "tlb-shootdown"
	case IPIStop:
		return "stop"
	default:
		return "unknown"
	}
}

// Controller is the architecture-specific interrupt controller binding:
// 8259 PIC or LAPIC/IOAPIC on x86_64, GICv3 on AArch64, PLIC/SBI on
// RISC-V. internal/arch/* implements this once per architecture.
type Controller interface {
	EnableVector(vector uint8)
	DisableVector(vector uint8)
	EndOfInterrupt(vector uint8)
	SendIPI(targetCoreID int, reason IPIReason)
}

// Handler processes one interrupt occurrence. It runs with local interrupts
// still disabled, per spec.md §4.3 ("handlers never re-enable interrupts
// before returning").
type Handler func(vector uint8)

// Table is the fixed-size vector dispatch table of spec.md §4.3, one
// instance shared across cores (handler registration happens once at boot,
// before APs start).
type Table struct {
	mu       sync.RWMutex
	handlers [256]Handler
	Logger   *slog.Logger
}

// NewTable returns an empty dispatch table.
func NewTable() *Table {
	return &Table{Logger: slog.Default()}
}

// Register installs handler for vector, replacing whatever was there
// before.
func (t *Table) Register(vector uint8, handler Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[vector] = handler
}

// Dispatch is called by the architecture's trap entry stub with the raw
// vector number. Every dispatched vector is counted under its own number in
// the core's IRQCount. A vector with no registered handler is logged
// (SpuriousVector silently) and dropped rather than panicking the kernel.
func (t *Table) Dispatch(vector uint8) {
	core := percore.Current()
	core.IRQCount.Increment(vector)

	t.mu.RLock()
	h := t.handlers[vector]
	t.mu.RUnlock()

	if h == nil {
		if vector != SpuriousVector {
			t.Logger.Warn("interrupts: unhandled vector, treating as spurious",
				slog.Int("vector", int(vector)), slog.Int("core", core.ID))
		}
		return
	}
	h(vector)
}

// WithIRQDisabled runs fn with this core's interrupts disabled, restoring
// the prior state afterward even on panic. This is the portable stand-in
// for "cli ... sti" critical sections spec.md §5 describes, reusing the
// same nested-disable counter package synch's IrqMutex does.
func WithIRQDisabled(fn func()) {
	prev := synch.NestedDisable()
	defer synch.NestedEnable(prev)
	fn()
}
