// Package index flattens a trace into a queryable mapping between byte
// offsets and the span paths that produced them.
package index

import (
	"errors"
	"fmt"
	"sort"

	"github.com/hexprov/hexprov/internal/trace"
)

// ErrOffsetOutOfRange reports a point query outside [0, len(data)).
// Recoverable: callers clamp or ignore.
var ErrOffsetOutOfRange = errors.New("offset out of range")

// Interval is a half-open byte range [Start, End).
type Interval struct {
	Start int
	End   int
}

func (iv Interval) Len() int { return iv.End - iv.Start }

func (iv Interval) Contains(offset int) bool {
	return offset >= iv.Start && offset < iv.End
}

// Entry maps one consumed interval to the span-name chain that produced it,
// root first, and to the Read leaf itself.
type Entry struct {
	Interval Interval
	Path     []string
	Leaf     *trace.Action

	ord int // replay order, for tie-breaking overlapping re-reads
}

// SeekEvent retains a recorded cursor jump for display: the position before
// the jump and the landing target. Seeks produce no interval but mark
// skipped or re-visited regions.
type SeekEvent struct {
	From int
	To   int
	Path []string
}

// Index is a read-only flattening of one immutable trace. Build once per
// loaded trace; never mutated in place.
type Index struct {
	size    int
	entries []Entry     // sorted by Interval.Start, build order among equals
	seeks   []SeekEvent // temporal order
	spans   map[*trace.Action]Interval
}

// Build replays the trace once, producing the sorted interval index and the
// inverse span-to-interval mapping. Span coverage is the min/max of its
// descendants' consumed offsets, never wider.
func Build(t *trace.Trace) (*Index, error) {
	idx := &Index{
		size:  len(t.Data),
		spans: make(map[*trace.Action]Interval),
	}

	type frame struct {
		span *trace.Action
		cov  Interval
		any  bool
	}
	var stack []frame

	snapshotPath := func() []string {
		path := make([]string, len(stack))
		for i, f := range stack {
			path[i] = f.span.Name
		}
		return path
	}

	var walk func(act *trace.Action, cursor int) (int, error)
	walk = func(act *trace.Action, cursor int) (int, error) {
		switch act.Kind {
		case trace.KindRead:
			start, end := cursor, cursor+act.Length
			if act.Length > 0 {
				idx.entries = append(idx.entries, Entry{
					Interval: Interval{Start: start, End: end},
					Path:     snapshotPath(),
					Leaf:     act,
					ord:      len(idx.entries),
				})
				for i := range stack {
					f := &stack[i]
					if !f.any || start < f.cov.Start {
						f.cov.Start = start
					}
					if !f.any || end > f.cov.End {
						f.cov.End = end
					}
					f.any = true
				}
			}
			return end, nil
		case trace.KindSeek:
			idx.seeks = append(idx.seeks, SeekEvent{
				From: cursor,
				To:   act.Target,
				Path: snapshotPath(),
			})
			return act.Target, nil
		case trace.KindSpan:
			stack = append(stack, frame{span: act})
			var err error
			for _, child := range act.Actions {
				if cursor, err = walk(child, cursor); err != nil {
					return cursor, err
				}
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if top.any {
				idx.spans[act] = top.cov
			}
			return cursor, nil
		}
		return cursor, fmt.Errorf("index build: unknown action kind %d", act.Kind)
	}

	if t.Root != nil {
		if _, err := walk(t.Root, t.StartIndex); err != nil {
			return nil, err
		}
	}

	sort.SliceStable(idx.entries, func(i, j int) bool {
		return idx.entries[i].Interval.Start < idx.entries[j].Interval.Start
	})
	return idx, nil
}

// Size returns the length of the indexed buffer.
func (idx *Index) Size() int { return idx.size }

// Entries returns every consumed interval with its producing path, sorted by
// interval start.
func (idx *Index) Entries() []Entry { return idx.entries }

// Seeks returns the recorded cursor jumps in temporal order.
func (idx *Index) Seeks() []SeekEvent { return idx.seeks }

// Lookup answers a point query: the entry whose interval contains offset,
// located by binary search over sorted interval starts. When the offset was
// consumed more than once (re-reads after a backward seek), the temporally
// latest covering read wins: the display answers "what most recently produced
// this byte". Returns ErrOffsetOutOfRange outside [0, len(data)); ok=false
// for in-range bytes no Read ever touched.
func (idx *Index) Lookup(offset int) (Entry, bool, error) {
	if offset < 0 || offset >= idx.size {
		return Entry{}, false, fmt.Errorf("%w: offset %d, buffer is %d bytes", ErrOffsetOutOfRange, offset, idx.size)
	}

	// First entry starting beyond the offset. Leaf intervals are disjoint
	// except across re-reads, so the scan back is short.
	pos := sort.Search(len(idx.entries), func(i int) bool {
		return idx.entries[i].Interval.Start > offset
	})
	best := -1
	for i := pos - 1; i >= 0; i-- {
		if !idx.entries[i].Interval.Contains(offset) {
			continue
		}
		if best < 0 || idx.entries[i].ord > idx.entries[best].ord {
			best = i
		}
	}
	if best < 0 {
		return Entry{}, false, nil
	}
	return idx.entries[best], true, nil
}

// SpanInterval answers a span query: the covered interval union for the
// given span node. ok is false when no Read occurs under the span.
func (idx *Index) SpanInterval(span *trace.Action) (Interval, bool) {
	iv, ok := idx.spans[span]
	return iv, ok
}
