package node

import (
	"sync"

	"rmtcore/internal/respio"
)

// TgtNode models one target backend connection. SendData and SentData are
// plain slice-backed FIFOs guarded by a mutex rather than channels: the
// writer worker that owns a TgtNode is the only goroutine that ever
// touches them (push on send, pop on socket-write completion or response
// arrival), so the mutex only needs to protect against concurrent reads
// from the control plane (queue-depth stats), not producer/consumer races.
type TgtNode struct {
	ID   NodeID
	Addr string

	mu       sync.Mutex
	sendData []*respio.Msg // awaiting socket-write completion
	sentData []*respio.Msg // awaiting response (only when replies enabled)

	// MsgRcv is the response currently being assembled from the target
	// socket's byte stream.
	MsgRcv *respio.Msg

	NoReply bool

	WriterOwner WriterID

	Connected bool
}

// NewTgtNode constructs a disconnected TgtNode.
func NewTgtNode(id NodeID, addr string, noReply bool) *TgtNode {
	return &TgtNode{ID: id, Addr: addr, NoReply: noReply}
}

// EnqueueSend appends m to send_data, preserving FIFO order (spec.md §3's
// TgtNode invariant: messages dequeue in the order enqueued).
func (n *TgtNode) EnqueueSend(m *respio.Msg) {
	n.mu.Lock()
	n.sendData = append(n.sendData, m)
	n.mu.Unlock()
}

// PeekSend returns the head of send_data without removing it.
func (n *TgtNode) PeekSend() *respio.Msg {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sendData) == 0 {
		return nil
	}
	return n.sendData[0]
}

// PopSend removes and returns the head of send_data (called once a
// message's bytes have been fully written to the socket); if replies are
// enabled it is moved onto sent_data, otherwise it is returned to the
// caller for release.
func (n *TgtNode) PopSend() *respio.Msg {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sendData) == 0 {
		return nil
	}
	m := n.sendData[0]
	n.sendData[0] = nil
	n.sendData = n.sendData[1:]
	if !n.NoReply {
		n.sentData = append(n.sentData, m)
		return nil
	}
	return m
}

// PeekSent returns the oldest unmatched in-flight message, or nil.
func (n *TgtNode) PeekSent() *respio.Msg {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sentData) == 0 {
		return nil
	}
	return n.sentData[0]
}

// PopSent removes and returns the oldest in-flight message once its
// response has been matched.
func (n *TgtNode) PopSent() *respio.Msg {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sentData) == 0 {
		return nil
	}
	m := n.sentData[0]
	n.sentData[0] = nil
	n.sentData = n.sentData[1:]
	return m
}

// DrainOnDisconnect empties both FIFOs, releasing sent_data (the in-flight
// replied commands spec.md's open question says to drop at-most-once) and
// returning send_data so the caller can requeue it for resend after
// reconnect.
func (n *TgtNode) DrainOnDisconnect(release func(*respio.Msg)) []*respio.Msg {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, m := range n.sentData {
		if release != nil {
			release(m)
		}
	}
	n.sentData = nil
	pending := n.sendData
	n.sendData = nil
	n.Connected = false
	return pending
}

// SendQueueDepth and SentQueueDepth expose queue lengths for stats/metrics.
func (n *TgtNode) SendQueueDepth() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sendData)
}

func (n *TgtNode) SentQueueDepth() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sentData)
}
