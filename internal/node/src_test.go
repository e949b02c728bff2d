package node

import (
	"testing"

	"rmtcore/internal/buffer"
)

func TestNewSrcNodeStartsInStateNone(t *testing.T) {
	n := NewSrcNode(NodeID(1), "127.0.0.1:6379")
	if n.State() != StateNone {
		t.Errorf("State() = %v, want StateNone", n.State())
	}
	if n.RDBData == nil || n.CmdData == nil {
		t.Error("RDBData/CmdData queues should be non-nil after construction")
	}
}

func TestSrcNodeSetStateTransition(t *testing.T) {
	n := NewSrcNode(NodeID(1), "h:1")
	n.SetState(StateConnecting)
	if n.State() != StateConnecting {
		t.Errorf("State() = %v, want StateConnecting", n.State())
	}
	n.SetState(StateConnected)
	if n.State() != StateConnected {
		t.Errorf("State() = %v, want StateConnected", n.State())
	}
}

func TestSrcNodeNotifyCoalesces(t *testing.T) {
	n := NewSrcNode(NodeID(1), "h:1")
	n.Notify()
	n.Notify()
	n.Notify()
	select {
	case <-n.NoticePipe:
	default:
		t.Fatal("expected at least one pending notice")
	}
	select {
	case <-n.NoticePipe:
		t.Fatal("second notice should have been coalesced, not queued")
	default:
	}
}

func TestSrcNodeResetReleasesSegments(t *testing.T) {
	pool := buffer.NewSegmentPool(16, 0)
	n := NewSrcNode(NodeID(1), "h:1")
	seg, _ := pool.Acquire()
	n.RDBData.Push(seg)
	n.Reset(pool)
	if n.RDBData.Len() != 0 {
		t.Errorf("RDBData.Len() = %d, want 0 after Reset", n.RDBData.Len())
	}
}

func TestStateString(t *testing.T) {
	if StateConnected.String() != "CONNECTED" {
		t.Errorf("StateConnected.String() = %q, want CONNECTED", StateConnected.String())
	}
	if State(99).String() == "" {
		t.Error("unknown State should still format to a non-empty string")
	}
}
