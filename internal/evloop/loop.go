// Package evloop implements the single-goroutine cooperative scheduler
// each reader/writer worker runs: readiness callbacks fired off channel
// sends plus a periodic timer tick, expressed as one select loop per
// design note §9 ("channel-based select loop in place of aeEventLoop").
package evloop

import (
	"context"
	"time"
)

// Readiness is a channel that carries a wakeup signal when its source has
// bytes (or send-queue entries) ready to process. Producers should send
// non-blockingly into a 1-buffered channel so repeated wakeups coalesce.
type Readiness <-chan struct{}

// Handler is invoked once per readiness wakeup or timer tick. It should
// drain everything currently available and return promptly — the loop is
// cooperative, so a slow handler starves every other registered source.
type Handler func()

// Loop is a single-threaded cooperative scheduler: any number of readiness
// sources plus one periodic timer, serviced by one goroutine's select
// statement. Handlers never run concurrently — Run must be called from the
// one goroutine that owns this Loop, and every handler executes on it. Each
// registered
// source gets a small fan-in goroutine that forwards its wakeups onto a
// shared dispatch channel, so Run's select has a fixed two arms
// (dispatch + timer) no matter how many sources are registered.
type Loop struct {
	dispatch chan Handler
	pending  []pendingSource
	period   time.Duration
	onTick   Handler
}

// New builds a Loop with no sources and no timer registered yet.
func New() *Loop {
	return &Loop{dispatch: make(chan Handler, 32)}
}

// OnReadable registers a readiness source and its handler. Must be called
// before Run; each source gets its own forwarding goroutine that exits
// when ctx (passed to Run) is cancelled.
func (l *Loop) OnReadable(ready Readiness, h Handler) {
	l.forward(ready, h)
}

// forward is split out from OnReadable so Run can start it once ctx is
// known; sources registered before Run starts are queued here and spun up
// by Run itself.
func (l *Loop) forward(ready Readiness, h Handler) {
	l.pending = append(l.pending, pendingSource{ready, h})
}

type pendingSource struct {
	ready   Readiness
	handler Handler
}

// AddTimer installs the loop's periodic tick (spec.md's readThreadCron /
// writeThreadCron, 1 Hz in the reader/writer workers). Calling it again
// before Run replaces the previous timer.
func (l *Loop) AddTimer(period time.Duration, h Handler) {
	l.period = period
	l.onTick = h
}

// Run starts each registered source's forwarding goroutine and services
// the dispatch/timer channels until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	for _, s := range l.pending {
		go l.runSource(ctx, s)
	}

	var tickC <-chan time.Time
	if l.period > 0 {
		ticker := time.NewTicker(l.period)
		defer ticker.Stop()
		tickC = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case h := <-l.dispatch:
			h()
		case <-tickC:
			if l.onTick != nil {
				l.onTick()
			}
		}
	}
}

func (l *Loop) runSource(ctx context.Context, s pendingSource) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.ready:
			select {
			case l.dispatch <- s.handler:
			case <-ctx.Done():
				return
			}
		}
	}
}
