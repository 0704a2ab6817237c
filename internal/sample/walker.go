package sample

import (
	"fmt"
	"io"
	"runtime"

	"github.com/hexprov/hexprov/internal/trace"
)

const maxStackDepth = 128

// callerSkip cuts runtime.Callers itself, callStack, and the Read/Seek
// method that invoked it.
const callerSkip = 3

func callStack() []Frame {
	pcs := make([]uintptr, maxStackDepth)
	n := runtime.Callers(callerSkip, pcs)
	if n == 0 {
		return nil
	}
	frames := runtime.CallersFrames(pcs[:n])
	out := make([]Frame, 0, n)
	for {
		f, more := frames.Next()
		out = append(out, Frame{ID: uint64(f.Entry), Name: f.Function})
		if !more {
			break
		}
	}
	return out
}

// Reader wraps a stream and snapshots the Go call stack at every successful
// read and seek, accumulating one StackSample per event. Unlike the
// span-stack engine it needs no cooperation from the consuming code: nesting
// is inferred from the sampled stacks when Trace is called.
//
// The captured buffer is the bytes in consumption order; with seeks in play,
// re-read regions appear once per read. Single goroutine per reader.
type Reader struct {
	inner   io.Reader
	opts    Options
	data    []byte
	samples []StackSample
}

// NewReader wraps inner with stack-sampling capture.
func NewReader(inner io.Reader, opts Options) *Reader {
	return &Reader{inner: inner, opts: opts}
}

func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.inner.Read(p)
	if n > 0 {
		r.samples = append(r.samples, StackSample{
			Frames: callStack(),
			Action: trace.NewRead(n),
		})
		r.data = append(r.data, p[:n]...)
	}
	return n, err
}

// Seek forwards to the wrapped stream when seekable and samples the stack at
// the event. The recorded target is resolved against the consumption buffer,
// not the underlying stream: the captured bytes live in consumption order, so
// the next read lands at the end of the buffer no matter where the stream
// repositions, and bytes re-read after a backward seek reappear as fresh
// reads. The seek survives as a boundary marker whose target is the
// consumption cursor, which keeps every emitted trace valid under replay.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	seeker, ok := r.inner.(io.Seeker)
	if !ok {
		return 0, fmt.Errorf("sample reader: wrapped stream %T is not seekable", r.inner)
	}
	pos, err := seeker.Seek(offset, whence)
	if err != nil {
		return pos, err
	}
	r.samples = append(r.samples, StackSample{
		Frames: callStack(),
		Action: trace.NewSeek(len(r.data)),
	})
	return pos, nil
}

// Samples returns the raw samples collected so far.
func (r *Reader) Samples() []StackSample {
	return r.samples
}

// Data returns the bytes consumed so far, in consumption order.
func (r *Reader) Data() []byte {
	return r.data
}

// Trace merges the collected samples into an approximate trace document over
// the consumed bytes. The reader stays usable; Trace can be called again
// after further reads.
func (r *Reader) Trace() *trace.Trace {
	return MergeTrace(r.data, 0, r.samples, r.opts)
}
