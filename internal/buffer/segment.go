// Package buffer implements the fixed-capacity byte segment and framed
// message pools described as the "buffer pool" component of the core.
package buffer

import (
	"errors"
	"sync"
)

// DefaultSegmentSize matches the original tool's mbuf chunk size.
const DefaultSegmentSize = 16 * 1024

// ErrPoolExhausted is returned when a pool has hit its hard cap. Callers
// treat this as a back-pressure signal and retry on the next readiness
// event rather than blocking.
var ErrPoolExhausted = errors.New("buffer: pool exhausted")

// Segment is a fixed-capacity buffer with a read cursor (Pos) and a write
// cursor (Last). Invariant: 0 <= Pos <= Last <= len(Data).
type Segment struct {
	Data []byte
	Pos  int
	Last int

	pool *SegmentPool
}

// Empty reports whether there is nothing left to read.
func (s *Segment) Empty() bool { return s.Pos == s.Last }

// Full reports whether there is no room left to write.
func (s *Segment) Full() bool { return s.Last == len(s.Data) }

// Len returns the number of unread bytes.
func (s *Segment) Len() int { return s.Last - s.Pos }

// Free returns the number of bytes that can still be written.
func (s *Segment) Free() int { return len(s.Data) - s.Last }

// Bytes returns the unread slice [Pos:Last).
func (s *Segment) Bytes() []byte { return s.Data[s.Pos:s.Last] }

// Reset clears the segment for reuse without releasing the backing array.
func (s *Segment) Reset() {
	s.Pos = 0
	s.Last = 0
}

// SegmentPool is a pool of fixed-size segments. It is not per Group:
// orchestrator.New builds one pool that every reader, writer and Group of
// the engine shares. Acquire and Release may be called from any goroutine
// (a sync.Pool plus a mutex around the in-use count); a Segment may be
// *read* by another goroutine while it travels across the reader->writer
// queue.
type SegmentPool struct {
	size int
	cap  int64 // 0 = unbounded

	mu       sync.Mutex
	inUse    int64
	freelist *sync.Pool
}

// NewSegmentPool builds a pool producing segments of segSize bytes.
// capHint <= 0 means unbounded (exhaustion never triggers).
func NewSegmentPool(segSize int, capHint int64) *SegmentPool {
	if segSize <= 0 {
		segSize = DefaultSegmentSize
	}
	p := &SegmentPool{size: segSize, cap: capHint}
	p.freelist = &sync.Pool{
		New: func() any {
			return &Segment{Data: make([]byte, segSize), pool: p}
		},
	}
	return p
}

// Acquire returns a ready-to-write Segment, or ErrPoolExhausted if the
// pool's hard cap has been reached.
func (p *SegmentPool) Acquire() (*Segment, error) {
	if p.cap > 0 {
		p.mu.Lock()
		if p.inUse >= p.cap {
			p.mu.Unlock()
			return nil, ErrPoolExhausted
		}
		p.inUse++
		p.mu.Unlock()
	}
	seg := p.freelist.Get().(*Segment)
	seg.Reset()
	return seg, nil
}

// Release returns a Segment to its originating pool. Only the consuming
// goroutine (never the original producer, once a segment has been handed
// across a channel) should call this.
func (p *SegmentPool) Release(seg *Segment) {
	if seg == nil || seg.pool != p {
		return
	}
	seg.Reset()
	p.freelist.Put(seg)
	if p.cap > 0 {
		p.mu.Lock()
		p.inUse--
		p.mu.Unlock()
	}
}

// InUse reports the number of segments currently checked out (only
// meaningful when the pool was constructed with a cap).
func (p *SegmentPool) InUse() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse
}
