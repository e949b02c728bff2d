// Package writer implements the writer worker: the counterpart to
// internal/reader on the target side. It drains each owned SrcNode's
// decoded RDB entries and live command-stream bytes, turns both into
// target commands, routes/fragments them through the owning route.Group,
// and pumps batched pipelines to target connections.
package writer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"rmtcore/internal/buffer"
	"rmtcore/internal/evloop"
	"rmtcore/internal/node"
	"rmtcore/internal/redisx"
	"rmtcore/internal/respio"
	"rmtcore/internal/route"
)

// Logger is the minimal structured-logging surface the writer needs.
type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Stats mirrors the writer-side counters named in the control-plane
// contract (spec.md §6).
type Stats struct {
	TotalCommandsSent int64
	TotalBatchesSent  int64
	TotalErrors       int64
}

// Worker owns a disjoint subset of SrcNodes and the route.Group their
// writes fan out to.
type Worker struct {
	ID      node.WriterID
	Nodes   []*node.SrcNode
	Group   *route.Group
	Pool    *buffer.SegmentPool
	Log     Logger
	Limiter *rate.Limiter

	conns map[string]*redisx.Client
	Stats Stats
	loop  *evloop.Loop
}

// NewWorker builds a writer Worker.
func NewWorker(id node.WriterID, nodes []*node.SrcNode, group *route.Group, pool *buffer.SegmentPool, limiter *rate.Limiter, log Logger) *Worker {
	return &Worker{
		ID:      id,
		Nodes:   nodes,
		Group:   group,
		Pool:    pool,
		Log:     log,
		Limiter: limiter,
		conns:   map[string]*redisx.Client{},
		loop:    evloop.New(),
	}
}

// Run starts one RDB-replay goroutine and registers one command-stream
// handler per owned SrcNode, plus writeThreadCron's periodic pipeline
// flush, then services the loop until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for _, n := range w.Nodes {
		n := n
		go w.replayRDB(ctx, n)
		w.loop.OnReadable(evloop.Readiness(n.NoticePipe), func() { w.drainCommands(ctx, n) })
	}

	w.loop.AddTimer(50*time.Millisecond, func() { w.cron(ctx) })
	w.loop.Run(ctx)
}

// replayRDB drains n's decoded RDB entries, translates each into its
// target command(s), and enqueues them on the owning TgtNode(s) until the
// channel is closed by the reader at end-of-snapshot.
func (w *Worker) replayRDB(ctx context.Context, n *node.SrcNode) {
	for {
		select {
		case entry, ok := <-n.RDBEntries:
			if !ok {
				return
			}
			for _, args := range buildCommands(entry) {
				if err := w.routeCommand(args); err != nil {
					w.Stats.TotalErrors++
					if w.Log != nil {
						w.Log.Warnf("writer: rdb replay %s: %v", entry.Key, err)
					}
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

// routeCommand builds a command Msg from args and enqueues it on the
// TgtNode that owns its key (args[1] for every command buildCommands
// emits: SET/HSET/RPUSH/SADD/ZADD/XADD/PEXPIREAT).
func (w *Worker) routeCommand(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("writer: command %v has no key", args)
	}
	tgt, err := w.Group.Keyed([]byte(args[1]))
	if err != nil {
		return err
	}
	tgt.EnqueueSend(newCommandMsg(args, tgt.NoReply))
	return nil
}

// newCommandMsg builds a respio.Msg from plain string args, for commands
// synthesized by this worker (RDB replay) rather than parsed off a source
// byte stream.
func newCommandMsg(args []string, noReply bool) *respio.Msg {
	m := respio.AcquireMsg(true)
	argv := make([][]byte, len(args))
	for i, a := range args {
		argv[i] = []byte(a)
	}
	m.Args = argv
	m.Cmd = strings.ToUpper(args[0])
	m.NoReply = noReply
	return m
}

// cron is writeThreadCron: flushes every owned target's pending send
// queue. Run both on a timer and opportunistically after each drainCommands
// call so a live command stream doesn't wait a full tick to go out.
func (w *Worker) cron(ctx context.Context) {
	for _, tgt := range w.Group.Nodes() {
		if err := w.flushNode(ctx, tgt); err != nil {
			w.Stats.TotalErrors++
			if w.Log != nil {
				w.Log.Warnf("writer: flush %s: %v", tgt.Addr, err)
			}
		}
	}
}
