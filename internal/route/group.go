// Package route implements the Redis Group abstraction: a target topology
// of kind SINGLE, CLUSTER, or RDBFILE, plus the keyed() routing function
// that maps a command's key to the TgtNode responsible for it.
package route

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"rmtcore/internal/buffer"
	"rmtcore/internal/cluster"
	"rmtcore/internal/node"
)

// Kind enumerates the three target topology shapes spec.md §3/§4.F names.
type Kind int

const (
	KindSingle Kind = iota
	KindCluster
	KindRDBFile
)

func (k Kind) String() string {
	switch k {
	case KindSingle:
		return "SINGLE"
	case KindCluster:
		return "CLUSTER"
	case KindRDBFile:
		return "RDBFILE"
	default:
		return "UNKNOWN"
	}
}

// Group is a logical target cluster: a map of addr->TgtNode, a routing
// function, a 16384-entry slot table when Kind==KindCluster, and the
// segment pool it was built with (orchestrator.New hands every Group the
// same engine-wide pool; Msg values come from respio's package-level pool).
type Group struct {
	Kind Kind

	SegPool *buffer.SegmentPool

	mu    sync.RWMutex
	nodes map[string]*node.TgtNode

	// slotTable maps slot -> node addr, populated only for KindCluster.
	slotTable [cluster.NumSlots]string

	// sinkFile backs KindRDBFile: RESP bytes are dumped to this writer
	// instead of a socket.
	sinkFile *os.File

	// noReply is the setting every node in this group was created with;
	// DiscoverTopology reuses it when it adds nodes the initial seed list
	// didn't already know about.
	noReply bool

	nextID int
}

// NewSingleGroup builds a Group with exactly one target node.
func NewSingleGroup(addr string, noReply bool, segPool *buffer.SegmentPool) *Group {
	g := &Group{Kind: KindSingle, SegPool: segPool, nodes: map[string]*node.TgtNode{}}
	g.addNode(addr, noReply)
	return g
}

// NewClusterGroup builds a Group spanning the given master addresses, with
// slots distributed evenly in address order (the caller is expected to
// overwrite this with a live topology via SetSlotOwner once cluster
// discovery completes; this even split lets tests run without a real
// cluster).
func NewClusterGroup(addrs []string, noReply bool, segPool *buffer.SegmentPool) *Group {
	g := &Group{Kind: KindCluster, SegPool: segPool, nodes: map[string]*node.TgtNode{}, noReply: noReply}
	sorted := append([]string(nil), addrs...)
	sort.Strings(sorted)
	for _, a := range sorted {
		g.addNode(a, noReply)
	}
	if len(sorted) > 0 {
		per := cluster.NumSlots / len(sorted)
		rem := cluster.NumSlots % len(sorted)
		slot := 0
		for i, a := range sorted {
			n := per
			if i < rem {
				n++
			}
			for j := 0; j < n; j++ {
				g.slotTable[slot] = a
				slot++
			}
		}
	}
	return g
}

// NewRDBFileGroup builds a Group that routes every key to a single sink
// file descriptor instead of a network node.
func NewRDBFileGroup(path string, segPool *buffer.SegmentPool) (*Group, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("route: create rdb sink %q: %w", path, err)
	}
	g := &Group{Kind: KindRDBFile, SegPool: segPool, nodes: map[string]*node.TgtNode{}, sinkFile: f}
	g.addNode(path, true)
	return g, nil
}

func (g *Group) addNode(addr string, noReply bool) *node.TgtNode {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := node.NodeID(g.nextID)
	g.nextID++
	n := node.NewTgtNode(id, addr, noReply)
	g.nodes[addr] = n
	return n
}

// SetSlotOwner reassigns a single slot to addr, used when live cluster
// topology discovery (MOVED redirects, CLUSTER SLOTS) refines the initial
// even split.
func (g *Group) SetSlotOwner(slot int, addr string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.slotTable[slot] = addr
}

// DiscoverTopology replaces the even slot split NewClusterGroup seeds at
// construction with the target's real slot ownership, per spec.md §4.F's
// requirement that a CLUSTER target route by live topology rather than a
// guess. It dials one of the group's existing nodes, runs CLUSTER NODES
// through cluster.ClusterClient, and overwrites slotTable with the masters
// it reports. A master address absent from the group's current node set
// (e.g. the seed list didn't name every master) is added on the fly with
// the same noReply setting the group was built with. If the seed turns out
// to be a standalone instance, the even split is left untouched.
func (g *Group) DiscoverTopology(password string, useTLS bool) error {
	if g.Kind != KindCluster {
		return fmt.Errorf("route: topology discovery only applies to CLUSTER groups")
	}
	seeds := g.Nodes()
	if len(seeds) == 0 {
		return fmt.Errorf("route: cluster group has no seed node to discover from")
	}

	var lastErr error
	for _, seed := range seeds {
		cc := cluster.NewClusterClient(seed.Addr, password, useTLS)
		if err := cc.Connect(); err != nil {
			lastErr = err
			continue
		}
		defer cc.Close()

		if !cc.IsCluster() {
			return nil // standalone seed, keep the even split
		}

		for _, info := range cc.GetTopology() {
			if info == nil || !info.IsMaster() || len(info.Slots) == 0 {
				continue
			}
			n := g.ensureNode(info.Addr)
			g.mu.Lock()
			for _, r := range info.Slots {
				for slot := r[0]; slot <= r[1] && slot < cluster.NumSlots; slot++ {
					g.slotTable[slot] = n.Addr
				}
			}
			g.mu.Unlock()
		}
		return nil
	}
	return fmt.Errorf("route: cluster discovery failed against every seed: %w", lastErr)
}

// ensureNode returns the existing node for addr, or creates one using the
// group's noReply setting.
func (g *Group) ensureNode(addr string) *node.TgtNode {
	g.mu.RLock()
	n, ok := g.nodes[addr]
	g.mu.RUnlock()
	if ok {
		return n
	}
	return g.addNode(addr, g.noReply)
}

// Keyed implements the keyed(key) -> TgtNode routing function.
func (g *Group) Keyed(key []byte) (*node.TgtNode, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	switch g.Kind {
	case KindSingle, KindRDBFile:
		for _, n := range g.nodes {
			return n, nil
		}
		return nil, fmt.Errorf("route: group has no target node")
	case KindCluster:
		slot := cluster.Slot(key)
		addr := g.slotTable[slot]
		n, ok := g.nodes[addr]
		if !ok {
			return nil, fmt.Errorf("route: no node owns slot %d (addr %q)", slot, addr)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("route: unknown group kind %v", g.Kind)
	}
}

// Nodes returns a snapshot slice of all target nodes, sorted by address
// for deterministic iteration (used by the writer's fan-out and by stats).
func (g *Group) Nodes() []*node.TgtNode {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*node.TgtNode, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out
}

// Sink returns the backing file for a KindRDBFile group, or nil.
func (g *Group) Sink() *os.File { return g.sinkFile }

// Close releases the group's sink file, if any.
func (g *Group) Close() error {
	if g.sinkFile != nil {
		return g.sinkFile.Close()
	}
	return nil
}
