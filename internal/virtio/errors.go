package virtio

import "fmt"

func errBadMagic(got uint32) error {
	return fmt.Errorf("virtio: bad magic value %#08x, expected \"virt\"", got)
}

func errUnsupportedVersion(got uint32) error {
	return fmt.Errorf("virtio: unsupported transport version %d, want 2", got)
}

func errFeatureRequired(name string, bit uint64) error {
	return fmt.Errorf("virtio: device did not offer required feature %s (bit %d)", name, bit)
}

func errQueueTooSmall(max, want uint32) error {
	return fmt.Errorf("virtio: queue max size %d smaller than requested %d", max, want)
}

func errChainTooLong(max int) error {
	return fmt.Errorf("virtio: descriptor chain exceeds queue size %d", max)
}

func errNoFreeDescriptors() error {
	return fmt.Errorf("virtio: no free descriptors available")
}
