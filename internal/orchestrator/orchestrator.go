// Package orchestrator implements the "G" component of spec.md §2: it
// spawns reader and writer worker goroutines per internal/assign's Plan,
// validates the post-assignment invariants of spec.md §8 items 1-3, and
// runs the control-plane loop alongside them until shutdown. Grounded on
// the teacher's internal/cli.runMigrate/runReplicate (config load, signal
// handling, logger init, background server goroutine) generalized from one
// source/target pair to the spec's N-source worker-pool model.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"rmtcore/internal/assign"
	"rmtcore/internal/buffer"
	"rmtcore/internal/compare"
	"rmtcore/internal/config"
	"rmtcore/internal/controlplane"
	"rmtcore/internal/metrics"
	"rmtcore/internal/node"
	"rmtcore/internal/reader"
	"rmtcore/internal/route"
	"rmtcore/internal/writer"
)

// Logger is the minimal structured-logging surface the orchestrator needs;
// satisfied by *logger.Logger.
type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Engine owns every node, worker, and group spawned for one migrate run.
type Engine struct {
	cfg *config.Config
	log Logger

	pool *buffer.SegmentPool

	srcNodes []*node.SrcNode
	readers  []*reader.Worker
	writers  []*writer.Worker
	groups   []*route.Group

	stats *metrics.Stats
	cp    *controlplane.Server
}

// New builds an Engine from a validated config: constructs the segment
// pool, one SrcNode per configured source instance, an assign.Plan binding
// each to a reader/writer slot, and one writer-owned route.Group per writer
// slot (never shared across writers, per spec.md §5).
func New(cfg *config.Config, log Logger) (*Engine, error) {
	pool := buffer.NewSegmentPool(buffer.DefaultSegmentSize, 0)

	addrs := make([]string, len(cfg.Source))
	for i, s := range cfg.Source {
		addrs[i] = s.Addr
	}

	isRDBFile := cfg.Target.Kind == "RDBFILE"
	readerSlots, writerSlots := splitSlots(cfg, len(addrs), isRDBFile)

	plan := assign.Assign(assign.Options{
		Addrs:       addrs,
		ReaderSlots: readerSlots,
		WriterSlots: writerSlots,
		SourceSafe:  cfg.Threads.SourceSafe,
		RDBFile:     isRDBFile,
	})
	log.Infof("orchestrator: readers=%d writers=%d", plan.ReaderCount, plan.WriterCount)

	srcNodes := make([]*node.SrcNode, len(addrs))
	for i, addr := range addrs {
		srcNodes[i] = node.NewSrcNode(node.NodeID(i), addr)
	}

	if err := validatePlan(plan, len(addrs), isRDBFile); err != nil {
		return nil, err
	}

	readerNodes := make([][]*node.SrcNode, plan.ReaderCount)
	for i, slot := range plan.ReaderOf {
		if slot < 0 {
			continue
		}
		readerNodes[slot] = append(readerNodes[slot], srcNodes[i])
		srcNodes[i].ReaderOwner = node.ReaderID(slot)
	}
	writerNodes := make([][]*node.SrcNode, plan.WriterCount)
	for i, slot := range plan.WriterOf {
		writerNodes[slot] = append(writerNodes[slot], srcNodes[i])
		srcNodes[i].WriterOwner = node.WriterID(slot)
	}

	perWorker := 0
	if cfg.Threads.RateLimit > 0 && plan.WriterCount > 0 {
		perWorker = cfg.Threads.RateLimit / plan.WriterCount
		if perWorker <= 0 {
			perWorker = 1
		}
	}

	e := &Engine{cfg: cfg, log: log, pool: pool, srcNodes: srcNodes, stats: metrics.New("rmtcore")}

	for i := 0; i < plan.ReaderCount; i++ {
		rw := reader.NewWorker(node.ReaderID(i), readerNodes[i], pool, log)
		e.readers = append(e.readers, rw)
	}

	for i := 0; i < plan.WriterCount; i++ {
		group, err := newGroup(cfg, i, pool)
		if err != nil {
			return nil, err
		}
		if group.Kind == route.KindCluster {
			if err := group.DiscoverTopology(cfg.Target.Password, cfg.Target.TLS); err != nil {
				log.Warnf("orchestrator: cluster topology discovery: %v, keeping even slot split", err)
			}
		}
		e.groups = append(e.groups, group)
		var limiter *rate.Limiter
		if perWorker > 0 {
			limiter = rate.NewLimiter(rate.Limit(perWorker), perWorker*2)
		}
		ww := writer.NewWorker(node.WriterID(i), writerNodes[i], group, pool, limiter, log)
		e.writers = append(e.writers, ww)
	}

	e.cp = controlplane.New(e.stats, cfg.ControlPlane.RespAddr, cfg.ControlPlane.HTTPAddr)
	return e, nil
}

// splitSlots derives the reader/writer worker counts from the configured
// thread total, per spec.md §4.C: for an RDBFILE target R is forced to 0
// and W is the configured thread count clamped to both the source count
// and the number of available sink files; otherwise the 20%-reader split
// in assign.SplitThreads applies.
func splitSlots(cfg *config.Config, n int, isRDBFile bool) (readerSlots, writerSlots int) {
	if isRDBFile {
		w := cfg.Threads.Count
		if w > len(cfg.Target.RDBPaths) {
			w = len(cfg.Target.RDBPaths)
		}
		return 0, w
	}
	return assign.SplitThreads(cfg.Threads.Count, n)
}

// newGroup builds the route.Group one writer slot owns. For RDBFILE each
// writer gets its own sink file (writerIdx selects cfg.Target.RDBPaths[i]
// per spec.md's scenario 5, "4 source files and T=8").
func newGroup(cfg *config.Config, writerIdx int, pool *buffer.SegmentPool) (*route.Group, error) {
	switch cfg.Target.Kind {
	case "SINGLE":
		return route.NewSingleGroup(cfg.Target.Addrs[0], cfg.Threads.NoReply, pool), nil
	case "CLUSTER":
		return route.NewClusterGroup(cfg.Target.Addrs, cfg.Threads.NoReply, pool), nil
	case "RDBFILE":
		if writerIdx >= len(cfg.Target.RDBPaths) {
			return nil, fmt.Errorf("orchestrator: writer %d has no rdb sink path", writerIdx)
		}
		return route.NewRDBFileGroup(cfg.Target.RDBPaths[writerIdx], pool)
	default:
		return nil, fmt.Errorf("orchestrator: unknown target kind %q", cfg.Target.Kind)
	}
}

// validatePlan checks the post-assignment invariants of spec.md §8 items
// 1-3: every source node maps to exactly one reader/writer slot (or, for
// readers under RDBFILE, none), and per-slot counts sum to N.
func validatePlan(p assign.Plan, n int, isRDBFile bool) error {
	if isRDBFile && p.ReaderCount != 0 {
		return fmt.Errorf("orchestrator: RDBFILE target must have 0 readers, got %d", p.ReaderCount)
	}
	if p.ReaderCount == 0 {
		// SplitThreads can legitimately yield R=0 for a non-RDBFILE target
		// when T==1 (W==0 after the initial split forces R--, W++); every
		// source's ReaderOf entry must then be the -1 "no reader" sentinel.
		for i, slot := range p.ReaderOf {
			if slot != -1 {
				return fmt.Errorf("orchestrator: reader slot %d for source %d, want -1 sentinel when ReaderCount==0", slot, i)
			}
		}
	} else {
		readerTotal := make([]int, p.ReaderCount)
		for _, slot := range p.ReaderOf {
			if slot < 0 || slot >= p.ReaderCount {
				return fmt.Errorf("orchestrator: reader slot %d out of range [0,%d)", slot, p.ReaderCount)
			}
			readerTotal[slot]++
		}
		sum := 0
		for _, c := range readerTotal {
			sum += c
		}
		if sum != n {
			return fmt.Errorf("orchestrator: reader assignment covers %d of %d sources", sum, n)
		}
	}

	writerTotal := make([]int, p.WriterCount)
	for _, slot := range p.WriterOf {
		if slot < 0 || slot >= p.WriterCount {
			return fmt.Errorf("orchestrator: writer slot %d out of range [0,%d)", slot, p.WriterCount)
		}
		writerTotal[slot]++
	}
	sum := 0
	for _, c := range writerTotal {
		sum += c
	}
	if sum != n {
		return fmt.Errorf("orchestrator: writer assignment covers %d of %d sources", sum, n)
	}
	return nil
}

// Run starts every reader/writer worker, the control-plane loop, and a
// periodic metrics aggregator, and blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, rw := range e.readers {
		rw := rw
		wg.Add(1)
		go func() { defer wg.Done(); rw.Run(ctx) }()
	}
	for _, ww := range e.writers {
		ww := ww
		wg.Add(1)
		go func() { defer wg.Done(); ww.Run(ctx) }()
	}

	wg.Add(1)
	go func() { defer wg.Done(); e.reportLoop(ctx) }()

	if e.cfg.ControlPlane.RespAddr != "" || e.cfg.ControlPlane.HTTPAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := e.cp.Run(ctx); err != nil && ctx.Err() == nil {
				e.log.Warnf("orchestrator: control plane: %v", err)
			}
		}()
	}

	if e.cfg.StateDir != "" {
		e.log.Infof("orchestrator: %s", e.cfg.Summary())
	}

	<-ctx.Done()
	wg.Wait()

	for _, g := range e.groups {
		if err := g.Close(); err != nil {
			e.log.Warnf("orchestrator: close group: %v", err)
		}
	}
	return nil
}

// reportLoop periodically folds every worker's stats into the shared
// metrics.Stats and refreshes the control plane's INFO line.
func (e *Engine) reportLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.snapshot()
		}
	}
}

func (e *Engine) snapshot() {
	var readers []metrics.ReaderSnapshot
	for _, r := range e.readers {
		readers = append(readers, metrics.ReaderSnapshot{TotalNetInputBytes: r.Stats.TotalNetInputBytes, FinishReadNodes: r.Stats.FinishReadNodes})
	}
	var writers []metrics.WriterSnapshot
	var batches, errs int64
	for _, w := range e.writers {
		writers = append(writers, metrics.WriterSnapshot{TotalCommandsSent: w.Stats.TotalCommandsSent, TotalBatchesSent: w.Stats.TotalBatchesSent, TotalErrors: w.Stats.TotalErrors})
		batches += w.Stats.TotalBatchesSent
		errs += w.Stats.TotalErrors
	}
	e.stats.Update(readers, writers, 0, 0, 0)
	e.cp.SetInfo(fmt.Sprintf("stat_total_msgs_sent:%d\r\nstat_total_batches_sent:%d\r\nstat_total_errors:%d\r\n",
		sumSent(writers), batches, errs))
}

func sumSent(writers []metrics.WriterSnapshot) int64 {
	var total int64
	for _, w := range writers {
		total += w.TotalCommandsSent
	}
	return total
}

// Compare runs the sampled consistency check (spec.md §4.G's "separate
// feature") between the first configured source and the target group.
func Compare(ctx context.Context, cfg *config.Config) (*compare.Result, error) {
	if len(cfg.Source) == 0 {
		return nil, fmt.Errorf("orchestrator: compare requires at least one source")
	}
	timeout, _ := time.ParseDuration(cfg.Consistency.Timeout)
	return compare.Run(ctx, compare.Config{
		SourceAddr:  cfg.Source[0].Addr,
		SourcePass:  cfg.Source[0].Password,
		TargetKind:  cfg.Target.Kind,
		TargetAddrs: cfg.Target.Addrs,
		TargetPass:  cfg.Target.Password,
		SampleRate:  cfg.Consistency.SampleRate,
		Timeout:     timeout,
	})
}

// GroupState reports, for the group_state subcommand, the assignment plan
// that would result from cfg without actually connecting anything.
func GroupState(cfg *config.Config) (assign.Plan, error) {
	addrs := make([]string, len(cfg.Source))
	for i, s := range cfg.Source {
		addrs[i] = s.Addr
	}
	isRDBFile := cfg.Target.Kind == "RDBFILE"
	readerSlots, writerSlots := splitSlots(cfg, len(addrs), isRDBFile)
	plan := assign.Assign(assign.Options{
		Addrs:       addrs,
		ReaderSlots: readerSlots,
		WriterSlots: writerSlots,
		SourceSafe:  cfg.Threads.SourceSafe,
		RDBFile:     isRDBFile,
	})
	if err := validatePlan(plan, len(addrs), isRDBFile); err != nil {
		return plan, err
	}
	return plan, nil
}
