package capture

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hexprov/hexprov/internal/trace"
)

// FlusherMetrics holds optional callbacks the Flusher invokes at key
// pipeline points.
type FlusherMetrics struct {
	// OnEnqueue is called each time a snapshot is accepted onto the queue.
	OnEnqueue func()
	// OnDrop is called each time a snapshot is dropped because the queue is full.
	OnDrop func()
	// OnFlush is called after each snapshot write attempt completes.
	OnFlush func(duration time.Duration, err error)
}

// FlusherDiagnostics is a point-in-time snapshot of queue and failure
// counters for operator diagnostics.
type FlusherDiagnostics struct {
	QueueCapacity        int        `json:"queue_capacity"`
	QueueDepth           int        `json:"queue_depth"`
	EnqueueAcceptedTotal int64      `json:"enqueue_accepted_total"`
	EnqueueDroppedTotal  int64      `json:"enqueue_dropped_total"`
	WriteFailedTotal     int64      `json:"write_failed_total"`
	LastWriteFailureAt   *time.Time `json:"last_write_failure_at,omitempty"`
}

// Flusher persists capture snapshots in the background so a long-running
// capture does not stall on storage. Snapshots supersede each other, so when
// the queue backs up the worker coalesces to the newest pending snapshot and
// drops the stale ones. A failed write never affects capture state; the next
// snapshot simply retries from scratch.
type Flusher struct {
	sink  Sink
	queue chan *trace.Trace

	wg       sync.WaitGroup
	started  atomic.Bool
	stopped  atomic.Bool
	stopOnce sync.Once
	queueMu  sync.RWMutex
	metrics  atomic.Value // *FlusherMetrics

	enqueueAcceptedTotal  atomic.Int64
	enqueueDroppedTotal   atomic.Int64
	writeFailedTotal      atomic.Int64
	lastWriteFailUnixNano atomic.Int64
}

func NewFlusher(sink Sink, bufferSize int) *Flusher {
	if bufferSize <= 0 {
		bufferSize = 16
	}
	f := &Flusher{
		sink:  sink,
		queue: make(chan *trace.Trace, bufferSize),
	}
	f.metrics.Store(&FlusherMetrics{})
	return f
}

// SetMetrics replaces the metric callbacks used by the flush pipeline.
func (f *Flusher) SetMetrics(m *FlusherMetrics) {
	if f == nil {
		return
	}
	if m == nil {
		m = &FlusherMetrics{}
	}
	f.metrics.Store(m)
}

func (f *Flusher) loadMetrics() *FlusherMetrics {
	m, _ := f.metrics.Load().(*FlusherMetrics)
	return m
}

func (f *Flusher) Start(ctx context.Context) {
	if !f.started.CompareAndSwap(false, true) {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case snapshot, ok := <-f.queue:
				if !ok {
					return
				}
				// Coalesce: only the newest pending snapshot matters.
			drain:
				for {
					select {
					case next, ok := <-f.queue:
						if !ok {
							f.write(context.Background(), snapshot)
							return
						}
						snapshot = next
					default:
						break drain
					}
				}
				f.write(ctx, snapshot)
			}
		}
	}()
}

// Enqueue offers a snapshot to the background worker. Returns false when the
// flusher is stopped or the queue is full; the snapshot is dropped, counted,
// and capture continues unaffected.
func (f *Flusher) Enqueue(snapshot *trace.Trace) bool {
	if f.stopped.Load() {
		return false
	}
	f.queueMu.RLock()
	defer f.queueMu.RUnlock()
	if f.stopped.Load() {
		return false
	}

	select {
	case f.queue <- snapshot:
		f.enqueueAcceptedTotal.Add(1)
		if m := f.loadMetrics(); m != nil && m.OnEnqueue != nil {
			m.OnEnqueue()
		}
		return true
	default:
		f.enqueueDroppedTotal.Add(1)
		if m := f.loadMetrics(); m != nil && m.OnDrop != nil {
			m.OnDrop()
		}
		return false
	}
}

// Shutdown stops intake, waits for the worker to drain, and returns the
// context error if the wait is cut short.
func (f *Flusher) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	f.stopOnce.Do(func() {
		f.stopped.Store(true)
		f.queueMu.Lock()
		close(f.queue)
		f.queueMu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Flusher) write(ctx context.Context, snapshot *trace.Trace) {
	if snapshot == nil {
		return
	}
	start := time.Now()
	err := f.sink.WriteSnapshot(ctx, snapshot)
	if err != nil {
		f.writeFailedTotal.Add(1)
		f.lastWriteFailUnixNano.Store(time.Now().UTC().UnixNano())
	}
	if m := f.loadMetrics(); m != nil && m.OnFlush != nil {
		m.OnFlush(time.Since(start), err)
	}
}

// Diagnostics returns current queue depth and failure counters.
func (f *Flusher) Diagnostics() FlusherDiagnostics {
	if f == nil {
		return FlusherDiagnostics{}
	}
	d := FlusherDiagnostics{
		QueueCapacity:        cap(f.queue),
		QueueDepth:           len(f.queue),
		EnqueueAcceptedTotal: f.enqueueAcceptedTotal.Load(),
		EnqueueDroppedTotal:  f.enqueueDroppedTotal.Load(),
		WriteFailedTotal:     f.writeFailedTotal.Load(),
	}
	if ts := f.lastWriteFailUnixNano.Load(); ts > 0 {
		last := time.Unix(0, ts).UTC()
		d.LastWriteFailureAt = &last
	}
	return d
}
