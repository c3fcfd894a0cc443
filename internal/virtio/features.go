package virtio

// FeatureBit names a single negotiable capability, keyed the same way
// virtio-v1.2 numbers them (0..23 device-type-specific, 24..41 transport
// and shared feature bits such as the constants below).
type FeatureBit uint64

const (
	FeatureVersion1     FeatureBit = 32 // VIRTIO_F_VERSION_1
	FeatureRingIndirect FeatureBit = 28 // VIRTIO_F_RING_INDIRECT_DESC
	FeatureRingEventIdx FeatureBit = 29 // VIRTIO_F_RING_EVENT_IDX
	FeatureSRIOV        FeatureBit = 37 // VIRTIO_F_SR_IOV
)

// FeatureRequirement is one row of the negotiation requirement table spec.md
// §4.6 calls for ("a data table of {bit, name, required}" rather than
// scattered if-chains per device type).
type FeatureRequirement struct {
	Bit      FeatureBit
	Name     string
	Required bool
}

// Negotiate implements the virtio-v1.2 §3.1.1 feature negotiation steps
// 1-6: reset, ACKNOWLEDGE, DRIVER, read device features, AND against the
// requirement table (rejecting if a required bit is missing), write driver
// features, FEATURES_OK, then verify the device didn't clear it.
func Negotiate(t *Transport, table []FeatureRequirement) (accepted uint64, err error) {
	t.Reset()
	t.AddStatus(StatusAcknowledge)
	t.AddStatus(StatusDriver)

	deviceLow := uint64(t.DeviceFeatures(false))
	deviceHigh := uint64(t.DeviceFeatures(true))
	offered := deviceLow | deviceHigh<<32

	for _, req := range table {
		if req.Required && offered&(1<<req.Bit) == 0 {
			t.AddStatus(StatusFailed)
			return 0, errFeatureRequired(req.Name, uint64(req.Bit))
		}
	}

	var want uint64
	for _, req := range table {
		if offered&(1<<req.Bit) != 0 {
			want |= 1 << req.Bit
		}
	}
	want |= 1 << FeatureVersion1

	t.SetDriverFeatures(false, uint32(want))
	t.SetDriverFeatures(true, uint32(want>>32))
	t.AddStatus(StatusFeaturesOK)

	if t.Status()&StatusFeaturesOK == 0 {
		t.AddStatus(StatusFailed)
		return 0, errFeatureRequired("FEATURES_OK", 0)
	}
	return want, nil
}

// Finish completes negotiation by raising DRIVER_OK, per virtio-v1.2 §3.1.1
// step 8 -- the device may start using the queues from this point on.
func Finish(t *Transport) { t.AddStatus(StatusDriverOK) }
