package writer

import (
	"context"
	"fmt"
	"strings"

	"rmtcore/internal/node"
	"rmtcore/internal/redisx"
	"rmtcore/internal/respio"
	"rmtcore/internal/route"
)

// flushNode implements send_data_to_target/recv_data_from_target/
// parse_response for one target: it drains every message currently queued
// on tgt, writes them as one pipelined batch (or, for an RDBFILE group,
// appends their RESP encoding to the sink file), and for messages expecting
// a reply matches the pipeline's per-command result back in FIFO order.
func (w *Worker) flushNode(ctx context.Context, tgt *node.TgtNode) error {
	var msgs []*respio.Msg
	for {
		m := tgt.PeekSend()
		if m == nil {
			break
		}
		tgt.PopSend()
		msgs = append(msgs, m)
	}
	if len(msgs) == 0 {
		return nil
	}

	if w.Group.Kind == route.KindRDBFile {
		return w.flushToSink(msgs)
	}

	if w.Limiter != nil {
		if err := w.Limiter.WaitN(ctx, len(msgs)); err != nil {
			return err
		}
	}

	client, err := w.ensureConn(ctx, tgt.Addr)
	if err != nil {
		w.requeue(tgt, msgs)
		return fmt.Errorf("connect %s: %w", tgt.Addr, err)
	}

	cmds := make([][]interface{}, len(msgs))
	for i, m := range msgs {
		args := make([]interface{}, len(m.Args))
		for j, a := range m.Args {
			args[j] = string(a)
		}
		cmds[i] = args
	}

	results, err := client.Pipeline(cmds)
	if err != nil {
		w.dropConn(tgt.Addr)
		w.requeue(tgt, msgs)
		return fmt.Errorf("pipeline %s: %w", tgt.Addr, err)
	}

	w.Stats.TotalBatchesSent++
	for i, m := range msgs {
		w.Stats.TotalCommandsSent++
		if !m.NoReply {
			tgt.PopSent()
		}
		w.handleResult(tgt, m, results[i])
		respio.ReleaseMsg(m, nil)
	}
	return nil
}

// flushToSink writes each message's RESP encoding directly to the
// RDBFILE group's sink file instead of a network target.
func (w *Worker) flushToSink(msgs []*respio.Msg) error {
	sink := w.Group.Sink()
	if sink == nil {
		return fmt.Errorf("writer: rdbfile group has no sink")
	}
	for _, m := range msgs {
		if _, err := sink.Write(respio.Encode(m.Args)); err != nil {
			return fmt.Errorf("writer: sink write: %w", err)
		}
		w.Stats.TotalCommandsSent++
		respio.ReleaseMsg(m, nil)
	}
	w.Stats.TotalBatchesSent++
	return nil
}

// handleResult inspects one pipelined command's reply. A -MOVED reply means
// our routing table (or the initial even slot split, before live topology
// discovery refines it via SetSlotOwner) is stale; this is logged, not
// retried here — the control plane's topology refresh is what corrects it.
func (w *Worker) handleResult(tgt *node.TgtNode, m *respio.Msg, result interface{}) {
	if errStr, ok := result.(string); ok && strings.HasPrefix(errStr, "MOVED") {
		w.Stats.TotalErrors++
		if w.Log != nil {
			w.Log.Warnf("writer: MOVED from %s for %s: %s", tgt.Addr, m.Cmd, errStr)
		}
	}
}

// requeue puts undelivered messages back on tgt's send queue in their
// original order, for retry once the connection recovers; they go behind
// anything enqueued since the batch was drained. Any
// message PopSend already moved onto sent_data (every non-NoReply one) is
// first popped back off it, since the pipeline it was "sent" as part of
// never actually completed.
func (w *Worker) requeue(tgt *node.TgtNode, msgs []*respio.Msg) {
	for _, m := range msgs {
		if !m.NoReply {
			tgt.PopSent()
		}
	}
	for _, m := range msgs {
		tgt.EnqueueSend(m)
	}
}

// ensureConn returns the cached connection to addr, dialing one on first
// use.
func (w *Worker) ensureConn(ctx context.Context, addr string) (*redisx.Client, error) {
	if c, ok := w.conns[addr]; ok {
		return c, nil
	}
	c, err := redisx.Dial(ctx, redisx.Config{Addr: addr})
	if err != nil {
		return nil, err
	}
	w.conns[addr] = c
	return c, nil
}

func (w *Worker) dropConn(addr string) {
	if c, ok := w.conns[addr]; ok {
		c.Close()
		delete(w.conns, addr)
	}
}
