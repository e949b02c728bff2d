package writer

import (
	"context"

	"rmtcore/internal/node"
	"rmtcore/internal/respio"
	"rmtcore/internal/route"
)

// drainCommands implements parse_prepare/parse_request: it pulls every
// segment currently queued on n's command queue into n's in-flight Msg and
// parses as many complete commands out of it as the buffered bytes allow,
// routing (or fragmenting, for multi-key commands) each one onto the owning
// target(s)' send queues.
func (w *Worker) drainCommands(ctx context.Context, n *node.SrcNode) {
	if n.Msg == nil {
		n.Msg = respio.AcquireMsg(true)
	}

	for {
		seg := n.CmdData.Pop()
		if seg == nil {
			break
		}
		n.Msg.AppendSegment(seg)
	}

	for {
		result := n.Msg.Parse()
		switch result {
		case respio.ResultOK:
			if err := w.dispatchParsed(n); err != nil {
				w.Stats.TotalErrors++
				if w.Log != nil {
					w.Log.Warnf("writer: dispatch %s: %v", n.Addr, err)
				}
			}
		case respio.ResultAgain, respio.ResultRepair:
			select {
			case <-ctx.Done():
			default:
				w.cron(ctx)
			}
			return
		case respio.ResultError:
			if w.Log != nil {
				w.Log.Errorf("writer: malformed command stream from %s", n.Addr)
			}
			n.SetState(node.StateError)
			return
		}
	}
}

// dispatchParsed carves the just-completed command off n.Msg (splitting
// any leftover trailing bytes into a fresh in-flight Msg per msg_split),
// routes or fragments it through the worker's Group, and releases the
// completed Msg's segments back to the pool — safe immediately, since
// Parse copies argv out of the flattened chain rather than aliasing it.
func (w *Worker) dispatchParsed(n *node.SrcNode) error {
	m := n.Msg
	tail, err := m.Split(m.ParsedPos(), w.Pool)
	if err != nil {
		return err
	}

	next := respio.AcquireMsg(true)
	if tail != nil {
		next.AppendSegment(tail)
	}
	n.Msg = next

	// Parse has already copied argv out of the flattened chain, so the
	// backing segments can be freed now regardless of what happens to m
	// itself (which may or may not go on to be queued for sending).
	m.ReleaseSegments(w.Pool.Release)

	switch {
	case m.NoForward:
		respio.ReleaseMsg(m, nil)
		return nil
	case m.Kind == respio.KindAdmin:
		// Session/transaction framing (PING, REPLCONF, MULTI/EXEC) has no
		// key and no coherent meaning once independently fragmented across
		// target shards; it is consumed here rather than replayed.
		respio.ReleaseMsg(m, nil)
		return nil
	case len(m.Keys) == 0:
		respio.ReleaseMsg(m, nil)
		return nil
	}

	frags, err := route.Fragment(w.Group, m)
	if err != nil {
		respio.ReleaseMsg(m, nil)
		return err
	}
	for tgt, frag := range frags {
		frag.NoReply = tgt.NoReply
		if frag != m {
			tgt.EnqueueSend(frag)
			continue
		}
		// KindSingleKey: Fragment returned m itself as the sole fragment,
		// so m goes straight onto the send queue instead of back to pool.
		tgt.EnqueueSend(m)
	}
	return nil
}
