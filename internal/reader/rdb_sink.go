package reader

import (
	"rmtcore/internal/buffer"
	"rmtcore/internal/node"
)

// segmentSink is an io.Writer that chunks whatever bytes it's handed into
// pool segments and pushes each full (or final, on Flush) segment onto a
// node's queue. It backs the io.TeeReader the reader worker wraps around a
// source connection during RDB transfer, so the same bytes the rdbread
// parser consumes for EOF detection also land in SrcNode.RDBData for the
// writer side to replay.
type segmentSink struct {
	pool  *buffer.SegmentPool
	queue *node.SegQueue
	cur   *buffer.Segment
	total int64
}

func newSegmentSink(pool *buffer.SegmentPool, queue *node.SegQueue) *segmentSink {
	return &segmentSink{pool: pool, queue: queue}
}

func (s *segmentSink) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		if s.cur == nil {
			seg, err := s.pool.Acquire()
			for err == buffer.ErrPoolExhausted {
				seg, err = s.pool.Acquire()
			}
			if err != nil {
				return written, err
			}
			s.cur = seg
		}
		n := copy(s.cur.Data[s.cur.Last:], p)
		s.cur.Last += n
		p = p[n:]
		written += n
		s.total += int64(n)
		if s.cur.Full() {
			s.queue.Push(s.cur)
			s.cur = nil
		}
	}
	return written, nil
}

// Flush pushes any partially-filled trailing segment, called once the RDB
// stream's EOF opcode has been consumed.
func (s *segmentSink) Flush() {
	if s.cur != nil && s.cur.Len() > 0 {
		s.queue.Push(s.cur)
		s.cur = nil
	}
}
