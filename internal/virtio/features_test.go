package virtio

import "testing"

func TestNegotiateAcceptsOfferedOptionalFeatures(t *testing.T) {
	offered := uint64(1<<FeatureVersion1) | uint64(1<<FeatureRingEventIdx)
	regs := newFakeRegisters(offered)
	tr, err := NewTransport(regs)
	if err != nil {
		t.Fatalf("NewTransport: %v", err)
	}

	table := []FeatureRequirement{
		{Bit: FeatureRingEventIdx, Name: "VIRTIO_F_RING_EVENT_IDX", Required: false},
		{Bit: FeatureRingIndirect, Name: "VIRTIO_F_RING_INDIRECT_DESC", Required: false},
	}
	accepted, err := Negotiate(tr, table)
	if err != nil {
		t.Fatalf("Negotiate: %v", err)
	}
	if accepted&(1<<FeatureRingEventIdx) == 0 {
		t.Fatalf("accepted %#x should include the offered optional feature", accepted)
	}
	if accepted&(1<<FeatureRingIndirect) != 0 {
		t.Fatalf("accepted %#x should not include a feature the device never offered", accepted)
	}
	if accepted&(1<<FeatureVersion1) == 0 {
		t.Fatalf("accepted %#x must always include VIRTIO_F_VERSION_1", accepted)
	}
	if regs.status&StatusFeaturesOK == 0 {
		t.Fatalf("FEATURES_OK must be set in status after a successful negotiation")
	}
}

func TestNegotiateFailsWhenRequiredFeatureMissing(t *testing.T) {
	regs := newFakeRegisters(1 << FeatureVersion1)
	tr, err := NewTransport(regs)
	if err != nil {
		t.Fatalf("NewTransport: %v", err)
	}

	table := []FeatureRequirement{
		{Bit: FeatureRingIndirect, Name: "VIRTIO_F_RING_INDIRECT_DESC", Required: true},
	}
	if _, err := Negotiate(tr, table); err == nil {
		t.Fatalf("expected an error when a required feature is not offered")
	}
	if regs.status&StatusFailed == 0 {
		t.Fatalf("status should be marked FAILED after a rejected negotiation")
	}
}

func TestFinishRaisesDriverOK(t *testing.T) {
	regs := newFakeRegisters(1 << FeatureVersion1)
	tr, err := NewTransport(regs)
	if err != nil {
		t.Fatalf("NewTransport: %v", err)
	}
	Finish(tr)
	if tr.Status()&StatusDriverOK == 0 {
		t.Fatalf("Finish should raise DRIVER_OK")
	}
}
