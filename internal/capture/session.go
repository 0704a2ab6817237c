package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/hexprov/hexprov/internal/trace"
)

// ErrUnbalancedSpan reports an ExitSpan call with no matching EnterSpan.
// Fatal to the current capture session.
var ErrUnbalancedSpan = errors.New("unbalanced span: exit without matching enter")

// ErrSessionClosed reports capture calls after Close.
var ErrSessionClosed = errors.New("capture session is closed")

// Session builds a Trace from explicit span-enter/span-exit notifications
// interleaved with read/seek events on a wrapped stream. One logical stream
// per session; events must arrive in true temporal order.
//
// The engine is exact by construction: enter/exit pairs are properly nested,
// so the resulting tree matches the true call structure.
type Session struct {
	mu         sync.Mutex
	data       []byte
	startIndex int
	cursor     int
	root       *trace.Action
	stack      []*trace.Action // open spans, innermost last; root excluded
	closed     bool
	failed     bool
	logger     *slog.Logger
}

// NewSession starts capture over data with the stream cursor seeded at
// startIndex. logger may be nil.
func NewSession(data []byte, startIndex int, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Session{
		data:       data,
		startIndex: startIndex,
		cursor:     startIndex,
		root:       trace.NewSpan("root"),
		logger:     logger,
	}
}

// top returns the innermost open span, or the root when none is open.
func (s *Session) top() *trace.Action {
	if len(s.stack) == 0 {
		return s.root
	}
	return s.stack[len(s.stack)-1]
}

// EnterSpan pushes a new named span; it becomes the innermost open span.
// The span is attached to its parent on ExitSpan, keeping in-progress
// snapshots free to reattach open spans without double-linking.
func (s *Session) EnterSpan(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.failed {
		return
	}
	s.stack = append(s.stack, trace.NewSpan(name))
}

// ExitSpan pops the innermost open span and appends it as the last action of
// its parent. An exit with no span open returns ErrUnbalancedSpan and marks
// the session failed: the notification stream can no longer be trusted, so
// further capture calls are ignored. Snapshot, Flush and Close still yield
// the state recorded before the failure.
func (s *Session) ExitSpan() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.failed {
		return ErrUnbalancedSpan
	}
	if len(s.stack) == 0 {
		s.failed = true
		s.logger.Warn("capture session failed: exit without matching enter")
		return ErrUnbalancedSpan
	}
	span := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	s.top().Append(span)
	return nil
}

// OnRead records a read of length bytes at the current cursor and advances
// the cursor.
func (s *Session) OnRead(length int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.failed || length < 0 {
		return
	}
	s.top().Append(trace.NewRead(length))
	s.cursor += length
}

// OnSeek records a cursor reposition. target is interpreted per whence
// (io.SeekStart, io.SeekCurrent, io.SeekEnd) and resolved to an absolute
// position before recording, so the persisted form is always absolute.
func (s *Session) OnSeek(target int, whence int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.failed {
		return
	}
	abs := target
	switch whence {
	case io.SeekCurrent:
		abs = s.cursor + target
	case io.SeekEnd:
		abs = len(s.data) + target
	}
	act := trace.NewSeek(abs)
	act.Whence = whence
	s.top().Append(act)
	s.cursor = abs
}

// Cursor returns the current logical stream position.
func (s *Session) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Depth returns the number of currently open spans.
func (s *Session) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stack)
}

// Snapshot returns a structurally valid copy of the in-progress trace without
// closing any open span. Open spans appear in the copy with the children they
// have so far, so a long-running or crashing capture still yields a usable,
// possibly-truncated trace. The live tree is never mutated.
func (s *Session) Snapshot() *trace.Trace {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() *trace.Trace {
	root := cloneAction(s.root)
	parent := root
	for _, open := range s.stack {
		c := cloneAction(open)
		parent.Append(c)
		parent = c
	}
	data := make([]byte, len(s.data))
	copy(data, s.data)
	return &trace.Trace{Data: data, StartIndex: s.startIndex, Root: root}
}

func cloneAction(a *trace.Action) *trace.Action {
	c := &trace.Action{
		Kind:   a.Kind,
		Length: a.Length,
		Target: a.Target,
		Whence: a.Whence,
		Name:   a.Name,
	}
	if len(a.Actions) > 0 {
		c.Actions = make([]*trace.Action, 0, len(a.Actions))
		for _, child := range a.Actions {
			c.Actions = append(c.Actions, cloneAction(child))
		}
	}
	return c
}

// Flush writes a snapshot of the current state to sink. A failed flush
// surfaces to the caller and leaves the in-memory session untouched and
// usable for further capture.
func (s *Session) Flush(ctx context.Context, sink Sink) error {
	s.mu.Lock()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	if err := sink.WriteSnapshot(ctx, snapshot); err != nil {
		s.logger.Warn("trace flush failed", "error", err)
		return fmt.Errorf("flush capture snapshot: %w", err)
	}
	return nil
}

// Close consumes the session into an immutable Trace. Spans still open are
// carried over as-is, same as a snapshot: a truncated capture is valid, not
// an error. Further capture calls on the session are ignored.
func (s *Session) Close() *trace.Trace {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	final := s.snapshotLocked()
	s.closed = true
	s.stack = nil
	return final
}
