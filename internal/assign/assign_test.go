package assign

import "testing"

func TestAssignNaiveSplitsEvenly(t *testing.T) {
	p := Assign(Options{Addrs: []string{"a:1", "b:1", "c:1", "d:1"}, ReaderSlots: 2, WriterSlots: 2})
	if p.ReaderCount != 2 || p.WriterCount != 2 {
		t.Fatalf("plan = %+v", p)
	}
	counts := map[int]int{}
	for _, s := range p.ReaderOf {
		counts[s]++
	}
	if counts[0] != 2 || counts[1] != 2 {
		t.Errorf("reader counts = %+v, want 2/2", counts)
	}
}

func TestAssignRDBFileForcesZeroReaders(t *testing.T) {
	p := Assign(Options{Addrs: []string{"a:1", "b:1"}, ReaderSlots: 4, WriterSlots: 4, RDBFile: true})
	if p.ReaderCount != 0 {
		t.Errorf("ReaderCount = %d, want 0", p.ReaderCount)
	}
	for _, s := range p.ReaderOf {
		if s != -1 {
			t.Errorf("ReaderOf entry = %d, want -1 under RDBFILE", s)
		}
	}
}

func TestAssignRDBFileClampsWritersToSourceCount(t *testing.T) {
	p := Assign(Options{Addrs: []string{"a:1", "b:1"}, WriterSlots: 8, RDBFile: true})
	if p.WriterCount != 2 {
		t.Errorf("WriterCount = %d, want min(N=2,T=8)=2", p.WriterCount)
	}
}

func TestAssignEveryAddrGetsASlot(t *testing.T) {
	addrs := []string{"h1:1", "h1:2", "h2:1", "h3:1", "h3:2", "h3:3"}
	p := Assign(Options{Addrs: addrs, ReaderSlots: 3, WriterSlots: 3})
	if len(p.ReaderOf) != len(addrs) || len(p.WriterOf) != len(addrs) {
		t.Fatalf("plan slot maps len mismatch: %+v", p)
	}
	for i, s := range p.ReaderOf {
		if s < 0 || s >= p.ReaderCount {
			t.Errorf("ReaderOf[%d] = %d out of range", i, s)
		}
	}
}

func TestAssignHostAffineKeepsSameHostTogether(t *testing.T) {
	addrs := []string{"h1:1", "h1:2", "h1:3", "h2:1"}
	p := Assign(Options{Addrs: addrs, ReaderSlots: 2, WriterSlots: 2, SourceSafe: true})
	h1Slot := p.WriterOf[0]
	for i := 0; i < 3; i++ {
		if p.WriterOf[i] != h1Slot {
			t.Errorf("host h1 instance %d assigned to slot %d, want %d (all h1 instances together)", i, p.WriterOf[i], h1Slot)
		}
	}
}

func TestAssignEmptyAddrsYieldsEmptyPlan(t *testing.T) {
	p := Assign(Options{ReaderSlots: 4, WriterSlots: 4})
	if len(p.ReaderOf) != 0 || len(p.WriterOf) != 0 {
		t.Errorf("expected empty slot maps for zero sources, got %+v", p)
	}
}

func TestSplitThreadsTwentyPercentReaders(t *testing.T) {
	r, w := SplitThreads(10, 10)
	if r != 2 || w != 8 {
		t.Errorf("SplitThreads(10,10) = (%d,%d), want (2,8)", r, w)
	}
}

func TestSplitThreadsReaderFloorIsOne(t *testing.T) {
	r, w := SplitThreads(3, 10)
	if r != 1 {
		t.Errorf("SplitThreads(3,10) r = %d, want max(1, floor(3*0.2))=1", r)
	}
	if w != 2 {
		t.Errorf("SplitThreads(3,10) w = %d, want 2", w)
	}
}

func TestSplitThreadsReaderClampedToSourceCount(t *testing.T) {
	r, w := SplitThreads(20, 2)
	if r > 2 {
		t.Errorf("SplitThreads(20,2) r = %d, want <= N=2", r)
	}
	if r+w < 2 && w < 2 {
		t.Errorf("SplitThreads(20,2) = (%d,%d), expected writers to pick up slack up to N", r, w)
	}
}

func TestSplitThreadsSingleThreadGivesWriterNotZero(t *testing.T) {
	_, w := SplitThreads(1, 5)
	if w == 0 {
		t.Errorf("SplitThreads(1,5) w = 0, want W bumped to at least 1 when T-R hits 0")
	}
}

func TestSplitThreadsNeverExceedsSourceCountOnEitherSide(t *testing.T) {
	r, w := SplitThreads(100, 4)
	if r > 4 || w > 4 {
		t.Errorf("SplitThreads(100,4) = (%d,%d), both must be <= N=4", r, w)
	}
}

func TestSplitThreadsZeroInputs(t *testing.T) {
	if r, w := SplitThreads(0, 5); r != 0 || w != 0 {
		t.Errorf("SplitThreads(0,5) = (%d,%d), want (0,0)", r, w)
	}
	if r, w := SplitThreads(5, 0); r != 0 || w != 0 {
		t.Errorf("SplitThreads(5,0) = (%d,%d), want (0,0)", r, w)
	}
}

func TestNaiveDistributesRemainderToEarliestSlots(t *testing.T) {
	out := naive(5, 2)
	counts := map[int]int{}
	for _, s := range out {
		counts[s]++
	}
	if counts[0] != 3 || counts[1] != 2 {
		t.Errorf("counts = %+v, want {0:3,1:2}", counts)
	}
}
