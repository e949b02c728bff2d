package buffer

import "testing"

func TestSegmentAcquireIsReset(t *testing.T) {
	p := NewSegmentPool(64, 0)
	seg, err := p.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !seg.Empty() || seg.Len() != 0 {
		t.Errorf("fresh segment should be empty, got Pos=%d Last=%d", seg.Pos, seg.Last)
	}
	if seg.Free() != 64 {
		t.Errorf("Free() = %d, want 64", seg.Free())
	}
}

func TestSegmentReleaseThenAcquireReusesCapacity(t *testing.T) {
	p := NewSegmentPool(32, 0)
	seg, _ := p.Acquire()
	seg.Last = 10
	p.Release(seg)

	seg2, _ := p.Acquire()
	if len(seg2.Data) != 32 {
		t.Errorf("reused segment Data len = %d, want 32", len(seg2.Data))
	}
	if !seg2.Empty() {
		t.Error("reacquired segment should be reset to empty")
	}
}

func TestSegmentPoolExhaustion(t *testing.T) {
	p := NewSegmentPool(16, 1)
	if _, err := p.Acquire(); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	if _, err := p.Acquire(); err != ErrPoolExhausted {
		t.Errorf("second Acquire err = %v, want ErrPoolExhausted", err)
	}
	if p.InUse() != 1 {
		t.Errorf("InUse() = %d, want 1", p.InUse())
	}
}

func TestSegmentReleaseForeignSegmentIsNoop(t *testing.T) {
	p1 := NewSegmentPool(16, 1)
	p2 := NewSegmentPool(16, 1)
	seg, _ := p1.Acquire()
	p2.Release(seg) // must not affect p2's accounting
	if p2.InUse() != 0 {
		t.Errorf("p2.InUse() = %d, want 0 after releasing a foreign segment", p2.InUse())
	}
}

func TestSegmentFullAndBytes(t *testing.T) {
	p := NewSegmentPool(4, 0)
	seg, _ := p.Acquire()
	copy(seg.Data, []byte("ab"))
	seg.Last = 2
	if seg.Full() {
		t.Error("segment with 2/4 bytes written should not be Full")
	}
	if string(seg.Bytes()) != "ab" {
		t.Errorf("Bytes() = %q, want \"ab\"", seg.Bytes())
	}
	seg.Last = 4
	if !seg.Full() {
		t.Error("segment with Last==len(Data) should be Full")
	}
}
