package virtio

import (
	"testing"

	"github.com/hermit-os/kernel-go/internal/mm"
)

// TestTransportOverPortIO wires NewTransport against mm.PortIO instead of
// the hand-rolled fakeRegisters, proving RegisterIO's production
// implementation (backed by a real PhysMemory window, spec.md §2's "PortIO
// / MMIO primitives" component) round-trips the same register protocol the
// fakes exercise everywhere else in this package.
func TestTransportOverPortIO(t *testing.T) {
	mem := mm.NewByteMemory(4096)
	regs := mm.PortIO{Mem: mem, Base: 0}

	regs.Store32(RegMagicValue, magicValueLE)
	regs.Store32(RegVersion, 2)
	regs.Store32(RegDeviceID, 1)

	tr, err := NewTransport(regs)
	if err != nil {
		t.Fatalf("NewTransport over mm.PortIO: %v", err)
	}

	tr.AddStatus(StatusAcknowledge)
	if got := regs.Load32(RegStatus); got != StatusAcknowledge {
		t.Fatalf("status register = %#x, want %#x", got, StatusAcknowledge)
	}

	regs.Store64(RegQueueDescLow, 0x1000_2000_3000_4000)
	if got := regs.Load64(RegQueueDescLow); got != 0x1000_2000_3000_4000 {
		t.Fatalf("64-bit round trip = %#x", got)
	}

	if !regs.WaitFor(0, RegStatus, 0, StatusAcknowledge, StatusAcknowledge) {
		t.Fatalf("WaitFor should observe the already-set ACKNOWLEDGE bit immediately")
	}
}
