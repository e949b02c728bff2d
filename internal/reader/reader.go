// Package reader implements the reader worker: drives the PSYNC handshake
// against a source's owned subset of SrcNodes, then ingests RDB-transfer
// and live command-stream bytes into each node's byte-segment MPSC
// queues, waking the paired writer after every batch.
package reader

import (
	"context"
	"fmt"
	"io"
	"time"

	"rmtcore/internal/buffer"
	"rmtcore/internal/evloop"
	"rmtcore/internal/node"
	"rmtcore/internal/rdbread"
	"rmtcore/internal/redisx"
)

// Worker owns a disjoint subset of SrcNodes and one cooperative Loop.
type Worker struct {
	ID    node.ReaderID
	Nodes []*node.SrcNode
	Pool  *buffer.SegmentPool
	Log   Logger

	conns map[node.NodeID]*redisx.Client

	Stats Stats
	loop  *evloop.Loop
}

// Stats mirrors the reader-side counters named in the control-plane
// contract (spec.md §6): bytes read off source sockets and nodes that
// have completed their RDB transfer.
type Stats struct {
	TotalNetInputBytes int64
	FinishReadNodes    int
}

// Logger is the minimal structured-logging surface the reader needs;
// satisfied by *logger.Logger (see internal/logger).
type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// NewWorker builds a reader Worker for the given node subset.
func NewWorker(id node.ReaderID, nodes []*node.SrcNode, pool *buffer.SegmentPool, log Logger) *Worker {
	return &Worker{
		ID:    id,
		Nodes: nodes,
		Pool:  pool,
		Log:   log,
		conns: make(map[node.NodeID]*redisx.Client, len(nodes)),
		loop:  evloop.New(),
	}
}

// Run connects every owned node and services the loop until ctx is
// cancelled. Each node starts replication at once in its own goroutine; no
// signal from the writer is awaited. readThreadCron runs at 1Hz and only
// restarts nodes in StateError; it does no keepalive or heartbeat-timeout
// check (LastHeartbeat is recorded but not read).
func (w *Worker) Run(ctx context.Context) {
	for _, n := range w.Nodes {
		n := n
		go w.beginReplication(ctx, n)
	}

	w.loop.AddTimer(time.Second, func() { w.cron(ctx) })
	w.loop.Run(ctx)
}

// beginReplication drives one node's PSYNC handshake and, on success, its
// RDB transfer and command-stream ingest. On any error the node
// transitions to StateError and beginReplication returns; cron is
// responsible for retrying from NONE.
func (w *Worker) beginReplication(ctx context.Context, n *node.SrcNode) {
	n.SetState(node.StateConnecting)
	conn, err := redisx.Dial(ctx, redisx.Config{Addr: n.Addr})
	if err != nil {
		w.fail(n, fmt.Errorf("connect %s: %w", n.Addr, err))
		return
	}
	w.conns[n.ID] = conn

	if err := w.handshake(conn, n); err != nil {
		w.fail(n, fmt.Errorf("handshake %s: %w", n.Addr, err))
		return
	}

	n.SetState(node.StateTransfer)
	if err := w.ingestRDB(ctx, conn, n); err != nil {
		w.fail(n, fmt.Errorf("rdb transfer %s: %w", n.Addr, err))
		return
	}
	n.SetState(node.StateConnected)
	w.Stats.FinishReadNodes++
	w.ingestCommands(ctx, conn, n)
}

// ingestRDB reads the FULLRESYNC preamble and the RDB payload that follows
// it, feeding both the rdbread parser (for EOF-opcode detection) and the
// node's RDBData queue (via segmentSink, which receives a copy of every
// byte the parser reads through an io.TeeReader) from the same byte stream. It returns once the stream's EOF opcode has
// been consumed.
func (w *Worker) ingestRDB(ctx context.Context, conn *redisx.Client, n *node.SrcNode) error {
	if err := skipFullresyncLine(conn); err != nil {
		return fmt.Errorf("fullresync preamble: %w", err)
	}

	sink := newSegmentSink(w.Pool, n.RDBData)
	parser := rdbread.NewParser(io.TeeReader(conn, sink))

	if err := parser.ParseHeader(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		entry, err := parser.ParseNext()
		if err == io.EOF {
			sink.Flush()
			w.Stats.TotalNetInputBytes += sink.total
			n.Notify()
			close(n.RDBEntries)
			return nil
		}
		if err != nil {
			return err
		}
		select {
		case n.RDBEntries <- entry:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// skipFullresyncLine reads and discards the "+FULLRESYNC <replid> <offset>"
// line a source sends before the RDB payload begins.
func skipFullresyncLine(conn *redisx.Client) error {
	for {
		b := make([]byte, 1)
		if _, err := conn.Read(b); err != nil {
			return err
		}
		if b[0] == '\n' {
			return nil
		}
	}
}

// handshake performs the PING / REPLCONF listening-port / PSYNC ? -1
// exchange. It stops short of the RDB/command byte stream, which ingest
// takes over once PSYNC's FULLRESYNC reply is received.
func (w *Worker) handshake(conn *redisx.Client, n *node.SrcNode) error {
	if resp, err := conn.Do("PING"); err != nil {
		return fmt.Errorf("PING: %w", err)
	} else if s, err := redisx.ToString(resp); err != nil || s != "PONG" {
		return fmt.Errorf("PING: unexpected reply %v", resp)
	}

	if _, err := conn.Do("REPLCONF", "listening-port", "0"); err != nil {
		return fmt.Errorf("REPLCONF listening-port: %w", err)
	}
	if _, err := conn.Do("REPLCONF", "capa", "eof", "capa", "psync2"); err != nil {
		return fmt.Errorf("REPLCONF capa: %w", err)
	}

	if _, err := conn.Write([]byte("*3\r\n$5\r\nPSYNC\r\n$1\r\n?\r\n$2\r\n-1\r\n")); err != nil {
		return fmt.Errorf("PSYNC: %w", err)
	}
	// The FULLRESYNC reply line and the RDB payload that follows it are
	// consumed by ingestRDB, not here.
	return nil
}

// ingestCommands reads the live command stream following RDB transfer,
// appending raw bytes as Segments to the node's command queue and
// notifying the paired writer after every batch.
func (w *Worker) ingestCommands(ctx context.Context, conn *redisx.Client, n *node.SrcNode) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		seg, err := w.Pool.Acquire()
		if err == buffer.ErrPoolExhausted {
			time.Sleep(time.Millisecond)
			continue
		}
		if err != nil {
			w.fail(n, err)
			return
		}

		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		nread, err := conn.Read(seg.Data)
		if err != nil {
			w.Pool.Release(seg)
			if isTimeout(err) {
				continue
			}
			w.fail(n, fmt.Errorf("read: %w", err))
			return
		}
		if nread == 0 {
			w.Pool.Release(seg)
			continue
		}
		seg.Last = nread
		n.LastHeartbeat = time.Now()

		n.CmdData.Push(seg)
		w.Stats.TotalNetInputBytes += int64(nread)
		n.Notify()
	}
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	te, ok := err.(timeouter)
	return ok && te.Timeout()
}

func (w *Worker) fail(n *node.SrcNode, err error) {
	if w.Log != nil {
		w.Log.Warnf("reader: node %s failed: %v", n.Addr, err)
	}
	n.SetState(node.StateError)
	if conn, ok := w.conns[n.ID]; ok {
		conn.Close()
		delete(w.conns, n.ID)
	}
}

// cron is readThreadCron: it resets any node sitting in StateError to
// StateNone and runs beginReplication for it again. It keeps no clock of
// its own and checks no heartbeat.
func (w *Worker) cron(ctx context.Context) {
	for _, n := range w.Nodes {
		if n.State() != node.StateError {
			continue
		}
		n.SetState(node.StateNone)
		go w.beginReplication(ctx, n)
	}
}
