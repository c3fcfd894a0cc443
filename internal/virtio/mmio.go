// Package virtio implements the guest (driver) side of the virtio transport
// described in spec.md §4.6: split-ring virtqueues, feature negotiation, and
// an MMIO transport binding. Grounded on the host/device-side implementation
// in tinyrange-cc's internal/devices/virtio (mmio.go, queue.go): that package
// is the device emulator talking to a guest driver; this package is the
// driver talking to that same device, so every register write/read below is
// the mirror image of the corresponding device-side handler.
package virtio

// MMIO register offsets, virtio-v1.2 §4.2.2. Identical names and values to
// the device-side VIRTIO_MMIO_* constants this package's counterpart reads
// and writes from the other end of the bus.
const (
	RegMagicValue        = 0x000
	RegVersion           = 0x004
	RegDeviceID          = 0x008
	RegVendorID          = 0x00c
	RegDeviceFeatures    = 0x010
	RegDeviceFeaturesSel = 0x014
	RegDriverFeatures    = 0x020
	RegDriverFeaturesSel = 0x024
	RegQueueSel          = 0x030
	RegQueueNumMax       = 0x034
	RegQueueNum          = 0x038
	RegQueueReady        = 0x044
	RegQueueNotify       = 0x050
	RegInterruptStatus   = 0x060
	RegInterruptACK      = 0x064
	RegStatus            = 0x070
	RegQueueDescLow      = 0x080
	RegQueueDescHigh     = 0x084
	RegQueueAvailLow     = 0x090
	RegQueueAvailHigh    = 0x094
	RegQueueUsedLow      = 0x0a0
	RegQueueUsedHigh     = 0x0a4
	RegConfigGeneration  = 0x0fc
	RegConfig            = 0x100

	magicValueLE = 0x74726976 // "virt"
)

// Status bits, virtio-v1.2 §2.1.
const (
	StatusAcknowledge uint32 = 1 << 0
	StatusDriver      uint32 = 1 << 1
	StatusDriverOK    uint32 = 1 << 2
	StatusFeaturesOK  uint32 = 1 << 3
	StatusNeedsReset  uint32 = 1 << 6
	StatusFailed      uint32 = 1 << 7
)

// RegisterIO is the narrow MMIO access surface a Transport needs; mm.PortIO
// supplies it over a PhysMemory register window (the teacher's device side
// implements the server half of this same protocol over a slice, since it
// has no real bus to cross).
type RegisterIO interface {
	Load32(offset uintptr) uint32
	Store32(offset uintptr, value uint32)
}

// Transport is the spec.md §4.6 MmioTransport: one bound device, reached
// through its register block.
type Transport struct {
	regs RegisterIO
}

// NewTransport validates the magic value and version before returning, per
// virtio-v1.2 §4.2.3.1.
func NewTransport(regs RegisterIO) (*Transport, error) {
	t := &Transport{regs: regs}
	if v := t.regs.Load32(RegMagicValue); v != magicValueLE {
		return nil, errBadMagic(v)
	}
	if v := t.regs.Load32(RegVersion); v != 2 {
		return nil, errUnsupportedVersion(v)
	}
	return t, nil
}

func (t *Transport) DeviceID() uint32 { return t.regs.Load32(RegDeviceID) }
func (t *Transport) VendorID() uint32 { return t.regs.Load32(RegVendorID) }

// Reset writes the zero status, per virtio-v1.2 §3.1.1 step 1.
func (t *Transport) Reset() { t.regs.Store32(RegStatus, 0) }

func (t *Transport) Status() uint32          { return t.regs.Load32(RegStatus) }
func (t *Transport) SetStatus(status uint32) { t.regs.Store32(RegStatus, status) }
func (t *Transport) AddStatus(bit uint32)    { t.regs.Store32(RegStatus, t.Status()|bit) }

// DeviceFeatures reads the low or high 32 bits of the device's offered
// 64-bit feature bitmap, per the DEVICE_FEATURES_SEL-indexed register pair.
func (t *Transport) DeviceFeatures(selectHigh bool) uint32 {
	sel := uint32(0)
	if selectHigh {
		sel = 1
	}
	t.regs.Store32(RegDeviceFeaturesSel, sel)
	return t.regs.Load32(RegDeviceFeatures)
}

// SetDriverFeatures writes the low or high 32 bits of the driver's accepted
// subset.
func (t *Transport) SetDriverFeatures(selectHigh bool, bits uint32) {
	sel := uint32(0)
	if selectHigh {
		sel = 1
	}
	t.regs.Store32(RegDriverFeaturesSel, sel)
	t.regs.Store32(RegDriverFeatures, bits)
}

// SelectQueue points every subsequent Queue* register access at queue idx.
func (t *Transport) SelectQueue(idx uint32) { t.regs.Store32(RegQueueSel, idx) }

func (t *Transport) QueueNumMax() uint32   { return t.regs.Load32(RegQueueNumMax) }
func (t *Transport) SetQueueNum(n uint32)  { t.regs.Store32(RegQueueNum, n) }
func (t *Transport) SetQueueReady(v bool) {
	if v {
		t.regs.Store32(RegQueueReady, 1)
	} else {
		t.regs.Store32(RegQueueReady, 0)
	}
}
func (t *Transport) QueueReady() bool { return t.regs.Load32(RegQueueReady) != 0 }

// SetQueueAddresses publishes the three split-ring physical addresses for
// the currently selected queue.
func (t *Transport) SetQueueAddresses(desc, avail, used uint64) {
	t.regs.Store32(RegQueueDescLow, uint32(desc))
	t.regs.Store32(RegQueueDescHigh, uint32(desc>>32))
	t.regs.Store32(RegQueueAvailLow, uint32(avail))
	t.regs.Store32(RegQueueAvailHigh, uint32(avail>>32))
	t.regs.Store32(RegQueueUsedLow, uint32(used))
	t.regs.Store32(RegQueueUsedHigh, uint32(used>>32))
}

// Notify rings the doorbell for queue idx, per spec.md §4.6 notify().
func (t *Transport) Notify(idx uint32) { t.regs.Store32(RegQueueNotify, idx) }

func (t *Transport) InterruptStatus() uint32 { return t.regs.Load32(RegInterruptStatus) }
func (t *Transport) AckInterrupt(bits uint32) {
	t.regs.Store32(RegInterruptACK, bits)
}

// ReadConfig32/WriteConfig32 access the device-specific configuration space
// starting at RegConfig, per virtio-v1.2 §4.2.2.
func (t *Transport) ReadConfig32(relOffset uintptr) uint32 {
	return t.regs.Load32(RegConfig + relOffset)
}
func (t *Transport) WriteConfig32(relOffset uintptr, v uint32) {
	t.regs.Store32(RegConfig+relOffset, v)
}
