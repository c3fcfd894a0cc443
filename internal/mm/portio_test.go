package mm

import "testing"

func TestPortIOLoadStore32(t *testing.T) {
	mem := NewByteMemory(64)
	p := PortIO{Mem: mem, Base: 16}

	p.Store32(0, 0xdeadbeef)
	if got := p.Load32(0); got != 0xdeadbeef {
		t.Fatalf("Load32 = %#x, want 0xdeadbeef", got)
	}

	// Base offsets the underlying memory; a plain ByteMemory read at the
	// absolute address must see the same bytes.
	var raw [4]byte
	if _, err := mem.ReadAt(raw[:], 16); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if PortIO{Mem: mem}.Load32(16) != 0xdeadbeef {
		t.Fatalf("base offset not applied correctly")
	}
}

func TestPortIOLoadStore64(t *testing.T) {
	mem := NewByteMemory(64)
	p := PortIO{Mem: mem}

	p.Store64(0, 0x1122334455667788)
	if got := p.Load64(0); got != 0x1122334455667788 {
		t.Fatalf("Load64 = %#x, want 0x1122334455667788", got)
	}
	// low word first, per spec.md §6.
	if got := p.Load32(0); got != 0x55667788 {
		t.Fatalf("low word = %#x, want 0x55667788", got)
	}
	if got := p.Load32(4); got != 0x11223344 {
		t.Fatalf("high word = %#x, want 0x11223344", got)
	}
}

func TestPortIOBitHelpers(t *testing.T) {
	mem := NewByteMemory(64)
	p := PortIO{Mem: mem}

	p.Set(0, 3)
	p.Set(0, 5)
	if got := p.Load32(0); got != (1<<3)|(1<<5) {
		t.Fatalf("Load32 = %#x after Set", got)
	}

	p.Clear(0, 3)
	if got := p.Load32(0); got != 1<<5 {
		t.Fatalf("Load32 = %#x after Clear", got)
	}

	if p.Get(0, 5, 1) != 1 {
		t.Fatalf("Get did not observe bit 5")
	}

	p.SetTo(0, 5, false)
	if p.Get(0, 5, 1) != 0 {
		t.Fatalf("SetTo(false) did not clear bit 5")
	}
}

func TestPortIOWaitFor(t *testing.T) {
	mem := NewByteMemory(64)
	p := PortIO{Mem: mem}

	if p.WaitFor(0, 0, 0, 0xff, 0) != true {
		t.Fatalf("WaitFor should succeed immediately when the field already matches")
	}

	if p.WaitFor(0, 0, 0, 0xff, 1) != false {
		t.Fatalf("WaitFor with a zero timeout and a mismatched field must report failure")
	}
}
