// Package assign implements thread/partition assignment: binding source
// instances to reader and writer worker slots. Two variants are provided,
// selected by SourceSafe and whether the target is an RDBFILE group (spec
// md §4.C): a host-affine variant that avoids co-locating multiple
// instances of the same physical host on one worker, and a naive
// contiguous-split variant.
package assign

import (
	"sort"
	"strings"
)

// Plan is the output of an assignment run: for each source index (its
// position in the input Addrs slice), which reader and writer slot owns
// it.
type Plan struct {
	ReaderCount int
	WriterCount int
	// ReaderOf/WriterOf map source index -> worker slot index.
	ReaderOf []int
	WriterOf []int
}

// Options configures an assignment run.
type Options struct {
	Addrs       []string // source addresses, "host:port"
	ReaderSlots int      // R
	WriterSlots int      // W
	SourceSafe  bool      // host-affine packing requested
	RDBFile     bool      // target kind is RDBFILE: forces R=0
}

// SplitThreads computes the reader/writer worker-count split from a
// configured thread total T and source count N, per spec.md §4.C:
// R = max(1, floor(T*20/100)), clamped to <= N; W = T - R, bumped to 1
// reader's worth (R--, W++) if that leaves W at 0; W is then clamped to
// N; any threads still unassigned are handed to W while W < N, then to R
// once W is saturated, until none remain or both sides have reached N.
// Callers with an RDBFILE target should not use this — RDBFILE forces
// R=0, W=min(N,T) directly (see Assign).
func SplitThreads(t, n int) (r, w int) {
	if t <= 0 || n <= 0 {
		return 0, 0
	}
	r = t * 20 / 100
	if r < 1 {
		r = 1
	}
	if r > n {
		r = n
	}
	w = t - r
	if w == 0 {
		r--
		w++
	}
	if w > n {
		w = n
	}
	remaining := t - (r + w)
	for remaining > 0 {
		switch {
		case w < n:
			w++
		case r < n:
			r++
		default:
			return r, w // both saturated at N, nothing more to place
		}
		remaining--
	}
	return r, w
}

// Assign computes a Plan per spec.md §4.C. For RDBFILE targets R is forced
// to 0 and W = min(N, T) where T is the configured WriterSlots (the
// orchestrator is expected to have already set WriterSlots to that bound).
func Assign(opt Options) Plan {
	n := len(opt.Addrs)
	r := opt.ReaderSlots
	w := opt.WriterSlots
	if opt.RDBFile {
		r = 0
		if w > n {
			w = n
		}
	}
	if n == 0 {
		return Plan{ReaderCount: r, WriterCount: w}
	}

	useHostAffine := opt.SourceSafe && !opt.RDBFile

	var readerOf []int
	if r > 0 {
		if useHostAffine {
			readerOf = hostAffine(opt.Addrs, r)
		} else {
			readerOf = naive(n, r)
		}
	} else {
		readerOf = make([]int, n)
		for i := range readerOf {
			readerOf[i] = -1
		}
	}

	var writerOf []int
	if useHostAffine {
		writerOf = hostAffine(opt.Addrs, w)
	} else {
		writerOf = naive(n, w)
	}

	return Plan{ReaderCount: r, WriterCount: w, ReaderOf: readerOf, WriterOf: writerOf}
}

// naive assigns nodes in N/slots-sized contiguous runs over the input
// order, with the N mod slots remainder distributed to the earliest
// workers.
func naive(n, slots int) []int {
	out := make([]int, n)
	if slots <= 0 {
		for i := range out {
			out[i] = -1
		}
		return out
	}
	base := n / slots
	rem := n % slots
	idx := 0
	for slot := 0; slot < slots; slot++ {
		count := base
		if slot < rem {
			count++
		}
		for j := 0; j < count; j++ {
			out[idx] = slot
			idx++
		}
	}
	return out
}

// hostAffine groups source nodes by hostname (the substring of addr
// before ':'), sorts host-buckets by descending instance count, and
// assigns whole buckets to worker slots: if the number of hosts is at
// most slots, one bucket per slot; otherwise the first `slots` buckets
// seed one worker each and every remaining bucket attaches to whichever
// worker currently holds the fewest nodes (ties broken by lowest slot
// index), guaranteeing no worker is overloaded with multi-instance hosts.
func hostAffine(addrs []string, slots int) []int {
	n := len(addrs)
	out := make([]int, n)
	if slots <= 0 {
		for i := range out {
			out[i] = -1
		}
		return out
	}

	hostIdx := map[string][]int{}
	var hosts []string
	for i, addr := range addrs {
		h := host(addr)
		if _, seen := hostIdx[h]; !seen {
			hosts = append(hosts, h)
		}
		hostIdx[h] = append(hostIdx[h], i)
	}

	sort.SliceStable(hosts, func(a, b int) bool {
		return len(hostIdx[hosts[a]]) > len(hostIdx[hosts[b]])
	})

	slotCount := make([]int, slots)
	for bi, h := range hosts {
		members := hostIdx[h]
		var slot int
		if bi < slots {
			slot = bi
		} else {
			slot = leastLoaded(slotCount)
		}
		for _, idx := range members {
			out[idx] = slot
		}
		slotCount[slot] += len(members)
	}
	return out
}

func leastLoaded(counts []int) int {
	best := 0
	for i, c := range counts {
		if c < counts[best] {
			best = i
		}
	}
	return best
}

func host(addr string) string {
	if i := strings.LastIndexByte(addr, ':'); i >= 0 {
		return addr[:i]
	}
	return addr
}
