package virtio

import (
	"encoding/binary"

	"github.com/hermit-os/kernel-go/internal/mm"
)

// Descriptor flags, virtio-v1.2 §2.7.5.
const (
	descFNext     uint16 = 1
	descFWrite    uint16 = 2
	descFIndirect uint16 = 4
)

const descSize = 16 // addr(8) + len(4) + flags(2) + next(2)

// Payload is one buffer in a descriptor chain the driver hands to the
// device: readable (device reads it, e.g. a request header) or writable
// (device writes into it, e.g. a response buffer).
type Payload struct {
	Addr    mm.PhysAddr
	Length  uint32
	Writable bool
}

// Virtqueue is the driver side of the spec.md §4.6 split-ring virtqueue:
// the mirror image of tinyrange-cc's internal/devices/virtio/queue.go
// VirtQueue, which implements the device side of this same protocol
// (reading the avail ring, writing the used ring). Here the driver writes
// the avail ring and reads the used ring, and additionally owns the free
// descriptor list -- a bookkeeping concern the device side never needs
// because it never allocates descriptors.
type Virtqueue struct {
	mem mm.PhysMemory

	descPhys  mm.PhysAddr
	availPhys mm.PhysAddr
	usedPhys  mm.PhysAddr

	size uint16

	freeHead uint16
	numFree  uint16

	availIdx   uint16 // next slot this driver will publish into
	lastUsedIdx uint16 // next used-ring slot this driver expects
}

// NewVirtqueue allocates the three split-ring regions from phys and wires
// up the initial all-descriptors-free chain, per virtio-v1.2 §2.7.
func NewVirtqueue(mem mm.PhysMemory, phys *mm.PhysAlloc, size uint16) (*Virtqueue, error) {
	descBytes := uint64(size) * descSize
	availBytes := uint64(4 + 2*int(size) + 2) // flags, idx, ring[size], used_event
	usedBytes := uint64(4 + 8*int(size) + 2)  // flags, idx, ring[size]{id,len}, avail_event

	descAddr, err := phys.AllocateAligned(descBytes, 16)
	if err != nil {
		return nil, err
	}
	availAddr, err := phys.AllocateAligned(availBytes, 2)
	if err != nil {
		return nil, err
	}
	usedAddr, err := phys.AllocateAligned(usedBytes, 4)
	if err != nil {
		return nil, err
	}

	q := &Virtqueue{
		mem:       mem,
		descPhys:  descAddr,
		availPhys: availAddr,
		usedPhys:  usedAddr,
		size:      size,
		numFree:   size,
	}

	for i := uint16(0); i < size; i++ {
		next := i + 1
		if next == size {
			next = 0xffff
		}
		q.writeDescriptor(i, 0, 0, 0, next)
	}
	return q, nil
}

func (q *Virtqueue) DescTableAddr() mm.PhysAddr { return q.descPhys }
func (q *Virtqueue) AvailRingAddr() mm.PhysAddr { return q.availPhys }
func (q *Virtqueue) UsedRingAddr() mm.PhysAddr  { return q.usedPhys }
func (q *Virtqueue) Size() uint16               { return q.size }

func (q *Virtqueue) writeDescriptor(idx uint16, addr uint64, length uint32, flags, next uint16) {
	var buf [descSize]byte
	binary.LittleEndian.PutUint64(buf[0:8], addr)
	binary.LittleEndian.PutUint32(buf[8:12], length)
	binary.LittleEndian.PutUint16(buf[12:14], flags)
	binary.LittleEndian.PutUint16(buf[14:16], next)
	_, _ = q.mem.WriteAt(buf[:], int64(q.descPhys)+int64(idx)*descSize)
}

func (q *Virtqueue) readDescriptor(idx uint16) (flags, next uint16) {
	var buf [descSize]byte
	_, _ = q.mem.ReadAt(buf[:], int64(q.descPhys)+int64(idx)*descSize)
	flags = binary.LittleEndian.Uint16(buf[12:14])
	next = binary.LittleEndian.Uint16(buf[14:16])
	return
}

// AddBuffer allocates a descriptor chain for payloads (in order), links
// them, publishes the head into the avail ring, and returns the head index.
// Per spec.md §4.6 add_buffer(): "a chain, not individual pushes" -- the
// whole chain becomes visible to the device atomically when avail.idx is
// bumped.
func (q *Virtqueue) AddBuffer(payloads []Payload) (head uint16, err error) {
	if len(payloads) == 0 {
		return 0, errNoFreeDescriptors()
	}
	if len(payloads) > int(q.size) {
		return 0, errChainTooLong(int(q.size))
	}
	if len(payloads) > int(q.numFree) {
		return 0, errNoFreeDescriptors()
	}

	head = q.freeHead
	idx := head
	for i, p := range payloads {
		flags := uint16(0)
		if p.Writable {
			flags |= descFWrite
		}
		last := i == len(payloads)-1
		next := uint16(0)
		if !last {
			_, next = q.readDescriptor(idx)
			flags |= descFNext
		}
		if !last {
			q.writeDescriptor(idx, uint64(p.Addr), p.Length, flags, next)
			idx = next
		} else {
			_, freeNext := q.readDescriptor(idx)
			q.writeDescriptor(idx, uint64(p.Addr), p.Length, flags, 0)
			q.freeHead = freeNext
		}
	}
	q.numFree -= uint16(len(payloads))

	q.publishAvail(head)
	return head, nil
}

func (q *Virtqueue) publishAvail(head uint16) {
	ringSlot := q.availIdx % q.size
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], head)
	_, _ = q.mem.WriteAt(buf[:], int64(q.availPhys)+4+int64(ringSlot)*2)

	q.availIdx++
	binary.LittleEndian.PutUint16(buf[:], q.availIdx)
	_, _ = q.mem.WriteAt(buf[:], int64(q.availPhys)+2)
}

// UsedEntry is one completion the device reported.
type UsedEntry struct {
	Head   uint16
	Length uint32
}

// PopUsed returns the next completed chain, if any, and frees its
// descriptors back onto the free list.
func (q *Virtqueue) PopUsed() (UsedEntry, bool) {
	var idxBuf [2]byte
	_, _ = q.mem.ReadAt(idxBuf[:], int64(q.usedPhys)+2)
	usedIdx := binary.LittleEndian.Uint16(idxBuf[:])
	if usedIdx == q.lastUsedIdx {
		return UsedEntry{}, false
	}

	slot := q.lastUsedIdx % q.size
	var elem [8]byte
	_, _ = q.mem.ReadAt(elem[:], int64(q.usedPhys)+4+int64(slot)*8)
	entry := UsedEntry{
		Head:   uint16(binary.LittleEndian.Uint32(elem[0:4])),
		Length: binary.LittleEndian.Uint32(elem[4:8]),
	}
	q.lastUsedIdx++

	q.freeChain(entry.Head)
	return entry, true
}

// freeChain walks a completed descriptor chain and splices it back onto the
// head of the free list, per virtio-v1.2 §2.7.13.
func (q *Virtqueue) freeChain(head uint16) {
	idx := head
	n := uint16(1)
	for {
		flags, next := q.readDescriptor(idx)
		if flags&descFNext == 0 {
			q.writeDescriptor(idx, 0, 0, 0, q.freeHead)
			break
		}
		idx = next
		n++
	}
	q.freeHead = head
	q.numFree += n
}

// HasAvailWork reports whether the driver has unconsumed free descriptors,
// used by callers deciding whether to keep feeding the queue.
func (q *Virtqueue) HasAvailWork() bool { return q.numFree > 0 }
