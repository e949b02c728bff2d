package node

import (
	"sync"
	"time"

	"rmtcore/internal/buffer"
	"rmtcore/internal/rdbread"
	"rmtcore/internal/respio"
)

// SrcNode models one source replication connection. Its queues (RDBData,
// CmdData) are filled by the owning reader worker and drained by the
// owning writer worker; NoticePipe is the channel-based stand-in for the
// original notice-pipe wakeup byte — sending on it is non-blocking and
// coalesces (buffered, size 1) since the writer only needs to know "more
// bytes are available", not how many wakeups fired.
type SrcNode struct {
	ID   NodeID
	Addr string

	mu    sync.Mutex
	state State

	ReaderOwner ReaderID
	WriterOwner WriterID

	RDBData *SegQueue
	CmdData *SegQueue

	// RDBEntries carries decoded RDB key/value entries from the reader's
	// rdbread.Parser pass to the writer, which turns each into one or more
	// target commands. Buffered so a burst of small keys never stalls the
	// reader behind the writer's pipeline flush cadence.
	RDBEntries chan *rdbread.Entry

	// PieceData holds segments pulled off a queue but not yet fully
	// consumed by the parser (spec.md's "piece_data" — the leftover tail
	// of a previous parse, length at most 1).
	PieceData []*buffer.Segment

	// Msg is the half-parsed message currently being assembled.
	Msg *respio.Msg

	NoticePipe chan struct{}

	LastHeartbeat time.Time
	ReplOffset    int64
}

// NewSrcNode constructs a SrcNode in StateNone with empty queues.
func NewSrcNode(id NodeID, addr string) *SrcNode {
	return &SrcNode{
		ID:         id,
		Addr:       addr,
		state:      StateNone,
		RDBData:    &SegQueue{},
		CmdData:    &SegQueue{},
		RDBEntries: make(chan *rdbread.Entry, 4096),
		NoticePipe: make(chan struct{}, 1),
	}
}

// State returns the current replication state.
func (n *SrcNode) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// SetState transitions the node's state. Only the reader worker that owns
// this node should call this (exclusive-mutation-by-owner, per spec.md
// §3's Worker data note); the mutex exists only so the writer and control
// plane can safely read it concurrently.
func (n *SrcNode) SetState(s State) {
	n.mu.Lock()
	n.state = s
	n.mu.Unlock()
}

// Notify wakes the paired writer worker. Safe to call repeatedly without
// blocking: the channel is a coalescing 1-slot signal, not a counter.
func (n *SrcNode) Notify() {
	select {
	case n.NoticePipe <- struct{}{}:
	default:
	}
}

// Reset clears transient parse/queue state on a transition back to
// StateNone (e.g. after a recoverable error), releasing any segments held
// in PieceData and the in-flight Msg back to pool.
func (n *SrcNode) Reset(segPool *buffer.SegmentPool) {
	for _, seg := range n.RDBData.Drain() {
		segPool.Release(seg)
	}
	for _, seg := range n.CmdData.Drain() {
		segPool.Release(seg)
	}
	for _, seg := range n.PieceData {
		segPool.Release(seg)
	}
	n.PieceData = nil
	if n.Msg != nil {
		respio.ReleaseMsg(n.Msg, segPool.Release)
		n.Msg = nil
	}
}
