// Package respio implements the framed RESP2 message type and its
// parser/encoder — the "pluggable parser capability" spec.md treats as an
// external collaborator, made concrete here as the core's wire codec.
package respio

import (
	"sync"

	"rmtcore/internal/buffer"
)

// ParseResult mirrors the four-way outcome of a RESP parse attempt.
type ParseResult int

const (
	// ResultAgain means a valid prefix was seen but more bytes are needed
	// and no structural repair is required yet.
	ResultAgain ParseResult = iota
	// ResultOK means a complete message was parsed.
	ResultOK
	// ResultRepair means the message is structurally valid so far but the
	// current segment ended mid-field; the writer must splice the next
	// segment's head onto the tail before retrying.
	ResultRepair
	// ResultError means the byte stream is not a valid RESP frame.
	ResultError
)

// Kind enumerates the handful of command shapes the writer must
// understand structurally (how many keys, whether they fragment). This is
// the "tagged message/state" that design note §9 asks for in place of
// raw function pointers.
type Kind int

const (
	KindUnknown Kind = iota
	KindSingleKey
	KindMultiKeyIndependent // MSET-style: key,val,key,val,...
	KindMultiKeyFlat        // DEL/MGET-style: key,key,key,...
	KindNoForward           // e.g. SELECT — consumed by the parser, never sent on
	KindAdmin               // PING, REPLCONF etc. — no keys, consumed by the writer
)

// Spec describes static per-command routing/fragmentation behavior. The
// dispatch table below is populated once at init and is read-only after
// that, so it needs no locking.
type Spec struct {
	Kind      Kind
	KeyStep   int // for KindMultiKeyIndependent: stride between keys (2 for MSET)
	NoReplies bool
}

var commandTable = map[string]Spec{
	"SELECT":  {Kind: KindNoForward},
	"PING":    {Kind: KindAdmin},
	"REPLCONF": {Kind: KindAdmin},
	"MULTI":   {Kind: KindAdmin},
	"EXEC":    {Kind: KindAdmin},
	"MSET":    {Kind: KindMultiKeyIndependent, KeyStep: 2},
	"MSETNX":  {Kind: KindMultiKeyIndependent, KeyStep: 2},
	"DEL":     {Kind: KindMultiKeyFlat},
	"UNLINK":  {Kind: KindMultiKeyFlat},
	"MGET":    {Kind: KindMultiKeyFlat},
	"EXISTS":  {Kind: KindMultiKeyFlat},
	"TOUCH":   {Kind: KindMultiKeyFlat},
}

// LookupSpec returns the static spec for cmd, defaulting to single-key.
func LookupSpec(cmd string) Spec {
	if spec, ok := commandTable[cmd]; ok {
		return spec
	}
	return Spec{Kind: KindSingleKey}
}

// Msg is an ordered sequence of Segments plus parse/routing metadata. A
// request Msg has at most one owner at a time: source parser -> writer
// send queue -> writer in-flight queue -> destruction.
type Msg struct {
	segments []*buffer.Segment
	mlen     int
	pos      int // parser cursor within the logical byte stream

	Result   ParseResult
	Cmd      string
	Kind     Kind
	Keys     [][]byte
	Args     [][]byte // full argv including command name, argv[0]==Cmd
	Request  bool
	NoReply  bool
	NoForward bool
	Sent     bool
	FragSeq  int
	Peer     *Msg // paired request<->response
}

var msgPool = sync.Pool{New: func() any { return &Msg{} }}

// AcquireMsg returns a zeroed Msg from the pool.
func AcquireMsg(request bool) *Msg {
	m := msgPool.Get().(*Msg)
	m.Request = request
	return m
}

// ReleaseMsg resets and returns a Msg to the pool, releasing its segments
// back to pool via release. Safe to call with a nil release func if the
// segments are owned by something else (e.g. a fragment that borrowed
// segments from its parent without copying).
func ReleaseMsg(m *Msg, release func(*buffer.Segment)) {
	if m == nil {
		return
	}
	if release != nil {
		for _, seg := range m.segments {
			release(seg)
		}
	}
	*m = Msg{}
	msgPool.Put(m)
}

// ReleaseSegments returns m's segment chain to the pool and clears it,
// without pooling m itself. Used once a command has been fully parsed:
// Parse copies argv out of the flattened chain, so the backing segments
// can be freed immediately even though m (and any fragment's Peer link
// back to it) lives on until the command is sent and, if a reply is
// expected, matched.
func (m *Msg) ReleaseSegments(release func(*buffer.Segment)) {
	if release != nil {
		for _, seg := range m.segments {
			release(seg)
		}
	}
	m.segments = nil
	m.mlen = 0
}

// AppendSegment appends a segment to the message's chain and updates mlen.
func (m *Msg) AppendSegment(seg *buffer.Segment) {
	m.segments = append(m.segments, seg)
	m.mlen += seg.Len()
}

// Segments exposes the underlying chain (read-only use expected).
func (m *Msg) Segments() []*buffer.Segment { return m.segments }

// Len returns total accumulated byte length across the chain.
func (m *Msg) Len() int { return m.mlen }

// LastSegment returns the tail segment, or nil if empty.
func (m *Msg) LastSegment() *buffer.Segment {
	if len(m.segments) == 0 {
		return nil
	}
	return m.segments[len(m.segments)-1]
}

// Bytes flattens the chain's unread portion into a new slice. Used by
// Parse and by tests; the writer does not send it, it re-encodes Args
// instead (redisx.Client.Pipeline, or Encode for an RDBFILE sink; see
// internal/writer).
func (m *Msg) Bytes() []byte {
	out := make([]byte, 0, m.mlen)
	for _, seg := range m.segments {
		out = append(out, seg.Bytes()...)
	}
	return out
}
