package route

import (
	"os"
	"path/filepath"
	"testing"

	"rmtcore/internal/buffer"
	"rmtcore/internal/cluster"
)

func TestSingleGroupRoutesEverythingToOneNode(t *testing.T) {
	pool := buffer.NewSegmentPool(16, 0)
	g := NewSingleGroup("127.0.0.1:6379", false, pool)
	n1, err := g.Keyed([]byte("foo"))
	if err != nil {
		t.Fatalf("Keyed: %v", err)
	}
	n2, err := g.Keyed([]byte("bar"))
	if err != nil {
		t.Fatalf("Keyed: %v", err)
	}
	if n1 != n2 {
		t.Error("SINGLE group should route every key to the same node")
	}
}

func TestClusterGroupSplitsSlotsEvenly(t *testing.T) {
	pool := buffer.NewSegmentPool(16, 0)
	g := NewClusterGroup([]string{"a:1", "b:1", "c:1"}, false, pool)
	counts := map[string]int{}
	for slot := 0; slot < len(g.slotTable); slot++ {
		counts[g.slotTable[slot]]++
	}
	if len(counts) != 3 {
		t.Fatalf("expected 3 distinct owners, got %d: %+v", len(counts), counts)
	}
	for addr, c := range counts {
		if c < 5461 || c > 5462 {
			t.Errorf("owner %s has %d slots, want ~5461", addr, c)
		}
	}
}

func TestClusterGroupKeyedUsesHashTag(t *testing.T) {
	pool := buffer.NewSegmentPool(16, 0)
	g := NewClusterGroup([]string{"a:1", "b:1", "c:1"}, false, pool)
	n1, err := g.Keyed([]byte("{user1}.a"))
	if err != nil {
		t.Fatalf("Keyed: %v", err)
	}
	n2, err := g.Keyed([]byte("{user1}.b"))
	if err != nil {
		t.Fatalf("Keyed: %v", err)
	}
	if n1.Addr != n2.Addr {
		t.Error("keys sharing a hash tag must route to the same node")
	}
}

func TestSetSlotOwnerOverridesRouting(t *testing.T) {
	pool := buffer.NewSegmentPool(16, 0)
	g := NewClusterGroup([]string{"a:1", "b:1"}, false, pool)
	g.SetSlotOwner(0, "b:1")
	// "foo" hashes to slot 12182, which the even split gives to b:1;
	// reassigning it to a:1 must change where Keyed routes "foo".
	g.SetSlotOwner(int(cluster.Slot([]byte("foo"))), "a:1")
	n, err := g.Keyed([]byte("foo"))
	if err != nil {
		t.Fatalf("Keyed: %v", err)
	}
	if n.Addr != "a:1" {
		t.Errorf("Keyed(foo) = %q after SetSlotOwner, want a:1", n.Addr)
	}
	owner := g.slotTable[0]
	if owner != "b:1" {
		t.Errorf("slotTable[0] = %q, want b:1", owner)
	}
}

func TestRDBFileGroupWritesToSinkPath(t *testing.T) {
	pool := buffer.NewSegmentPool(16, 0)
	path := filepath.Join(t.TempDir(), "out.rdb")
	g, err := NewRDBFileGroup(path, pool)
	if err != nil {
		t.Fatalf("NewRDBFileGroup: %v", err)
	}
	defer g.Close()

	if g.Sink() == nil {
		t.Fatal("Sink() should be non-nil for an RDBFILE group")
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("sink file not created: %v", err)
	}
	n, err := g.Keyed([]byte("anything"))
	if err != nil {
		t.Fatalf("Keyed: %v", err)
	}
	if n.Addr != path {
		t.Errorf("RDBFILE node addr = %q, want %q", n.Addr, path)
	}
}

func TestGroupNodesSortedByAddr(t *testing.T) {
	pool := buffer.NewSegmentPool(16, 0)
	g := NewClusterGroup([]string{"c:1", "a:1", "b:1"}, false, pool)
	nodes := g.Nodes()
	for i := 1; i < len(nodes); i++ {
		if nodes[i-1].Addr > nodes[i].Addr {
			t.Errorf("Nodes() not sorted: %q before %q", nodes[i-1].Addr, nodes[i].Addr)
		}
	}
}

func TestDiscoverTopologyRejectsNonClusterGroup(t *testing.T) {
	pool := buffer.NewSegmentPool(16, 0)
	g := NewSingleGroup("127.0.0.1:6379", false, pool)
	if err := g.DiscoverTopology("", false); err == nil {
		t.Error("expected error: discovery only applies to CLUSTER groups")
	}
}

func TestDiscoverTopologyKeepsEvenSplitWhenEveryDialFails(t *testing.T) {
	pool := buffer.NewSegmentPool(16, 0)
	g := NewClusterGroup([]string{"127.0.0.1:1", "127.0.0.1:2"}, false, pool)
	before := g.slotTable
	if err := g.DiscoverTopology("", false); err == nil {
		t.Error("expected error: no real cluster listening on these addrs")
	}
	if g.slotTable != before {
		t.Error("failed discovery must not alter the even slot split")
	}
}
