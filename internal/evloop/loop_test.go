package evloop

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestLoopDispatchesOnReadable(t *testing.T) {
	l := New()
	ready := make(chan struct{}, 1)
	var fired int32
	l.OnReadable(ready, func() { atomic.AddInt32(&fired, 1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	ready <- struct{}{}

	deadline := time.After(time.Second)
	for atomic.LoadInt32(&fired) == 0 {
		select {
		case <-deadline:
			t.Fatal("handler never fired")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestLoopTimerFiresPeriodically(t *testing.T) {
	l := New()
	var ticks int32
	l.AddTimer(5*time.Millisecond, func() { atomic.AddInt32(&ticks, 1) })

	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	time.Sleep(30 * time.Millisecond)
	cancel()

	if atomic.LoadInt32(&ticks) < 2 {
		t.Errorf("ticks = %d, want at least 2 within 30ms at a 5ms period", ticks)
	}
}

func TestLoopStopsOnContextCancel(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after ctx cancellation")
	}
}
