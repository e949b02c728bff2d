package respio

import "rmtcore/internal/buffer"

// Split implements msg_split(pos): it truncates m's segment chain so m
// contains exactly the first `pos` bytes of the flattened chain, and
// returns a fresh Segment holding the remaining tail bytes (caller pushes
// it onto piece_data's head). mlen accounting is preserved on both sides.
//
// Idempotence (spec.md §8 invariant 7): Split followed by re-concatenating
// m's bytes with the returned tail's bytes reproduces the original byte
// stream exactly, because Split only ever moves a contiguous suffix of the
// last affected segment into a new segment — no bytes are copied twice or
// dropped.
func (m *Msg) Split(pos int, pool *buffer.SegmentPool) (*buffer.Segment, error) {
	if pos < 0 || pos > m.mlen {
		return nil, errSplitRange
	}
	offset := 0
	for idx, seg := range m.segments {
		segLen := seg.Len()
		if offset+segLen < pos {
			offset += segLen
			continue
		}
		// The split point falls within (or at the end of) this segment.
		cut := pos - offset // bytes of this segment that stay with m
		if cut == segLen {
			// Clean boundary: nothing to move out of this segment, but
			// any segments after it (if any) become the tail.
			if idx == len(m.segments)-1 {
				return nil, nil
			}
			tailSegs := m.segments[idx+1:]
			m.segments = m.segments[:idx+1]
			m.mlen = pos
			return concatIntoOne(tailSegs, pool)
		}

		tail, err := pool.Acquire()
		if err != nil {
			return nil, err
		}
		tailBytes := seg.Bytes()[cut:]
		n := copy(tail.Data, tailBytes)
		tail.Last = n

		seg.Last = seg.Pos + cut
		m.mlen = pos

		if idx < len(m.segments)-1 {
			// Any whole segments after this one also belong to the tail;
			// fold them after the spliced-out remainder.
			rest := m.segments[idx+1:]
			merged, err := concatIntoOne(append([]*buffer.Segment{tail}, rest...), pool)
			if err != nil {
				return nil, err
			}
			m.segments = m.segments[:idx+1]
			return merged, nil
		}
		m.segments = m.segments[:idx+1]
		return tail, nil
	}
	return nil, nil
}

// concatIntoOne flattens a run of segments into a single fresh segment
// (used by Split when more than one trailing segment must become the new
// tail). Falls back to returning the sole segment unchanged when there is
// only one.
func concatIntoOne(segs []*buffer.Segment, pool *buffer.SegmentPool) (*buffer.Segment, error) {
	if len(segs) == 0 {
		return nil, nil
	}
	if len(segs) == 1 {
		return segs[0], nil
	}
	out, err := pool.Acquire()
	if err != nil {
		return nil, err
	}
	for _, seg := range segs {
		n := copy(out.Data[out.Last:], seg.Bytes())
		out.Last += n
		pool.Release(seg)
	}
	return out, nil
}

var errSplitRange = splitRangeError{}

type splitRangeError struct{}

func (splitRangeError) Error() string { return "respio: split position out of range" }
