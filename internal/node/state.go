// Package node implements the per-source and per-target endpoint state
// described as the "node model" component of the core: SrcNode, TgtNode,
// and the byte-segment MPSC queues that hand data between a reader and its
// paired writer.
package node

import "fmt"

// State enumerates the replication lifecycle a SrcNode moves through.
type State int

const (
	StateNone State = iota
	StateConnecting
	StateTransfer
	StateConnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "NONE"
	case StateConnecting:
		return "CONNECTING"
	case StateTransfer:
		return "TRANSFER"
	case StateConnected:
		return "CONNECTED"
	case StateError:
		return "ERROR"
	default:
		return fmt.Sprintf("STATE(%d)", int(s))
	}
}

// ReaderID and WriterID are opaque integer handles identifying the worker
// goroutines that own a node, used in place of pointer back-references
// (design note §9: replace pointer graphs with indices) so a SrcNode can be
// inspected from the control plane without chasing live worker pointers.
type ReaderID int

type WriterID int

// NodeID identifies a SrcNode/TgtNode within its owning Group, again as a
// plain integer handle rather than a pointer.
type NodeID int
