// Package sample reconstructs an approximate action tree from call-stack
// snapshots taken at read/seek events, without any explicit exit signal.
//
// Accuracy is best-effort by design: the stack is observed only at stream
// operations, so scopes that open and close between two reads are invisible,
// and recursion at the same frame identifier merges into one span. These are
// documented limitations of sampling, not error conditions.
package sample

import (
	"fmt"

	"github.com/hexprov/hexprov/internal/trace"
)

// Frame identifies one call frame. Two frames are the same span when their
// IDs are equal; Name is the symbolized display name.
type Frame struct {
	ID   uint64
	Name string
}

func (f Frame) spanName() string {
	if f.Name != "" {
		return f.Name
	}
	return fmt.Sprintf("0x%X", f.ID)
}

// StackSample pairs one read/seek event with the call stack captured
// atomically at that event. Frames are innermost first, as a stack walker
// reports them.
type StackSample struct {
	Frames []Frame
	Action *trace.Action
}

// Options configures merging.
type Options struct {
	// SkipFrames discards this many innermost frames from every sample
	// before merging, excluding the tracer's own call frames. A sample with
	// fewer frames than SkipFrames contributes an empty frame list.
	SkipFrames int
}

// Merge folds an ordered sequence of samples into an approximate span tree
// under a synthetic root, using longest-common-prefix merging over
// consecutive samples (frames compared outermost to innermost). Samples with
// empty frame lists attach their action directly to the root. Merge never
// fails on malformed input.
func Merge(samples []StackSample, opts Options) *trace.Action {
	root := trace.NewSpan("root")

	// Open spans, outermost first, mirroring the previous sample's reversed
	// frame list. Spans are attached to their parent when opened; closing is
	// just truncation.
	var open []*trace.Action
	var prev []Frame

	for _, sample := range samples {
		frames := trimmed(sample.Frames, opts.SkipFrames)

		k := commonPrefix(prev, frames)
		open = open[:k]
		for _, f := range frames[k:] {
			span := trace.NewSpan(f.spanName())
			parentOf(root, open).Append(span)
			open = append(open, span)
		}
		prev = frames

		if sample.Action != nil {
			parentOf(root, open).Append(sample.Action)
		}
	}

	return root
}

// MergeTrace wraps Merge into a full trace document over the given buffer.
func MergeTrace(data []byte, startIndex int, samples []StackSample, opts Options) *trace.Trace {
	return &trace.Trace{
		Data:       data,
		StartIndex: startIndex,
		Root:       Merge(samples, opts),
	}
}

// trimmed drops skip innermost frames and reverses to outermost-first order.
func trimmed(frames []Frame, skip int) []Frame {
	if skip < 0 {
		skip = 0
	}
	if skip >= len(frames) {
		return nil
	}
	kept := frames[skip:]
	out := make([]Frame, len(kept))
	for i, f := range kept {
		out[len(kept)-1-i] = f
	}
	return out
}

func commonPrefix(a, b []Frame) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i].ID != b[i].ID {
			return i
		}
	}
	return n
}

func parentOf(root *trace.Action, open []*trace.Action) *trace.Action {
	if len(open) == 0 {
		return root
	}
	return open[len(open)-1]
}
