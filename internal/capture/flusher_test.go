package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hexprov/hexprov/internal/trace"
)

type recordingSink struct {
	mu    sync.Mutex
	got   []*trace.Trace
	fail  bool
	calls int
}

func (s *recordingSink) WriteSnapshot(_ context.Context, t *trace.Trace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fail {
		return errors.New("sink write failed")
	}
	s.got = append(s.got, t)
	return nil
}

func (s *recordingSink) snapshots() []*trace.Trace {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*trace.Trace(nil), s.got...)
}

func snapshotWithIndex(i int) *trace.Trace {
	return &trace.Trace{Data: nil, StartIndex: i, Root: trace.NewSpan("root")}
}

func TestFlusherCoalescesToNewestSnapshot(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	f := NewFlusher(sink, 8)

	for i := 1; i <= 3; i++ {
		if !f.Enqueue(snapshotWithIndex(i)) {
			t.Fatalf("Enqueue(%d) dropped", i)
		}
	}
	f.Start(context.Background())
	if err := f.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}

	got := sink.snapshots()
	if len(got) != 1 || got[0].StartIndex != 3 {
		t.Fatalf("sink received %d snapshots (last=%v), want only the newest", len(got), got)
	}
}

func TestFlusherDropsWhenQueueFull(t *testing.T) {
	t.Parallel()

	f := NewFlusher(&recordingSink{}, 1)
	if !f.Enqueue(snapshotWithIndex(1)) {
		t.Fatal("first Enqueue dropped")
	}
	if f.Enqueue(snapshotWithIndex(2)) {
		t.Fatal("second Enqueue accepted on a full queue")
	}

	d := f.Diagnostics()
	if d.EnqueueAcceptedTotal != 1 || d.EnqueueDroppedTotal != 1 {
		t.Fatalf("accepted=%d dropped=%d, want 1/1", d.EnqueueAcceptedTotal, d.EnqueueDroppedTotal)
	}
}

func TestFlusherCountsWriteFailures(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{fail: true}
	f := NewFlusher(sink, 4)

	var flushErr error
	done := make(chan struct{})
	f.SetMetrics(&FlusherMetrics{
		OnFlush: func(_ time.Duration, err error) {
			flushErr = err
			close(done)
		},
	})

	f.Start(context.Background())
	f.Enqueue(snapshotWithIndex(1))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("flush callback never fired")
	}
	if err := f.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}

	if flushErr == nil {
		t.Fatal("OnFlush error=nil, want sink failure")
	}
	if d := f.Diagnostics(); d.WriteFailedTotal != 1 || d.LastWriteFailureAt == nil {
		t.Fatalf("diagnostics=%+v, want one recorded write failure", d)
	}
}

func TestFlusherEnqueueAfterShutdown(t *testing.T) {
	t.Parallel()

	f := NewFlusher(&recordingSink{}, 4)
	f.Start(context.Background())
	if err := f.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
	if f.Enqueue(snapshotWithIndex(1)) {
		t.Fatal("Enqueue accepted after shutdown")
	}
}
