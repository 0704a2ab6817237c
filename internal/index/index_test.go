package index

import (
	"errors"
	"strings"
	"testing"

	"github.com/hexprov/hexprov/internal/trace"
)

// The canonical worked example: a 16-byte buffer holding a length-prefixed
// string, length field indexed under a nested span.
func pascalStringTrace() *trace.Trace {
	return &trace.Trace{
		Data: make([]byte, 16),
		Root: trace.NewSpan("pascal_string",
			trace.NewSpan("length", trace.NewRead(4)),
			trace.NewRead(12),
		),
	}
}

func TestLookupPaths(t *testing.T) {
	t.Parallel()

	idx, err := Build(pascalStringTrace())
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	cases := []struct {
		offset   int
		wantPath string
	}{
		{0, "pascal_string/length"},
		{2, "pascal_string/length"},
		{3, "pascal_string/length"},
		{4, "pascal_string"},
		{10, "pascal_string"},
		{15, "pascal_string"},
	}
	for _, tc := range cases {
		entry, ok, err := idx.Lookup(tc.offset)
		if err != nil {
			t.Fatalf("Lookup(%d) error: %v", tc.offset, err)
		}
		if !ok {
			t.Fatalf("Lookup(%d): no entry", tc.offset)
		}
		if got := strings.Join(entry.Path, "/"); got != tc.wantPath {
			t.Fatalf("Lookup(%d) path=%q, want %q", tc.offset, got, tc.wantPath)
		}
	}
}

func TestLookupOutOfRange(t *testing.T) {
	t.Parallel()

	idx, err := Build(pascalStringTrace())
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	for _, offset := range []int{16, 100, -1} {
		if _, _, err := idx.Lookup(offset); !errors.Is(err, ErrOffsetOutOfRange) {
			t.Fatalf("Lookup(%d) error=%v, want ErrOffsetOutOfRange", offset, err)
		}
	}
}

func TestLookupUntouchedByte(t *testing.T) {
	t.Parallel()

	tr := &trace.Trace{
		Data: make([]byte, 8),
		Root: trace.NewSpan("root",
			trace.NewRead(2),
			trace.NewSeek(6),
			trace.NewRead(2),
		),
	}
	idx, err := Build(tr)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	// Bytes 2..5 were skipped over by the seek.
	if _, ok, err := idx.Lookup(4); err != nil || ok {
		t.Fatalf("Lookup(4)=(ok=%v, err=%v), want untouched", ok, err)
	}
	if _, ok, err := idx.Lookup(7); err != nil || !ok {
		t.Fatalf("Lookup(7)=(ok=%v, err=%v), want touched", ok, err)
	}
}

func TestLookupPrefersLatestReRead(t *testing.T) {
	t.Parallel()

	rewind := trace.NewSpan("rewind", trace.NewRead(2))
	tr := &trace.Trace{
		Data: make([]byte, 8),
		Root: trace.NewSpan("root",
			trace.NewSpan("first", trace.NewRead(4)),
			trace.NewSeek(0),
			rewind,
		),
	}
	idx, err := Build(tr)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	entry, ok, err := idx.Lookup(1)
	if err != nil || !ok {
		t.Fatalf("Lookup(1)=(ok=%v, err=%v)", ok, err)
	}
	if got := strings.Join(entry.Path, "/"); got != "root/rewind" {
		t.Fatalf("Lookup(1) path=%q, want root/rewind", got)
	}

	// Offset 3 is only covered by the first pass.
	entry, ok, err = idx.Lookup(3)
	if err != nil || !ok {
		t.Fatalf("Lookup(3)=(ok=%v, err=%v)", ok, err)
	}
	if got := strings.Join(entry.Path, "/"); got != "root/first" {
		t.Fatalf("Lookup(3) path=%q, want root/first", got)
	}
}

// A later re-read that starts before the earlier read must still win for the
// overlap, even though it sorts first by interval start.
func TestLookupReReadStartingEarlierWins(t *testing.T) {
	t.Parallel()

	tail := trace.NewSpan("tail", trace.NewRead(4))
	whole := trace.NewSpan("whole", trace.NewRead(8))
	tr := &trace.Trace{
		Data: make([]byte, 8),
		Root: trace.NewSpan("root",
			trace.NewSeek(4),
			tail,
			trace.NewSeek(0),
			whole,
		),
	}
	idx, err := Build(tr)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	entry, ok, err := idx.Lookup(5)
	if err != nil || !ok {
		t.Fatalf("Lookup(5)=(ok=%v, err=%v)", ok, err)
	}
	if got := strings.Join(entry.Path, "/"); got != "root/whole" {
		t.Fatalf("Lookup(5) path=%q, want root/whole", got)
	}
}

func TestSpanIntervals(t *testing.T) {
	t.Parallel()

	length := trace.NewSpan("length", trace.NewRead(4))
	empty := trace.NewSpan("empty")
	root := trace.NewSpan("pascal_string", length, trace.NewRead(12), empty)
	tr := &trace.Trace{Data: make([]byte, 16), Root: root}

	idx, err := Build(tr)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	iv, ok := idx.SpanInterval(length)
	if !ok || iv != (Interval{Start: 0, End: 4}) {
		t.Fatalf("SpanInterval(length)=(%+v, %v), want [0,4)", iv, ok)
	}
	iv, ok = idx.SpanInterval(root)
	if !ok || iv != (Interval{Start: 0, End: 16}) {
		t.Fatalf("SpanInterval(root)=(%+v, %v), want [0,16)", iv, ok)
	}
	if _, ok := idx.SpanInterval(empty); ok {
		t.Fatalf("SpanInterval(empty) ok=true, want no interval for spans without reads")
	}
}

func TestSeeksRetainedForDisplay(t *testing.T) {
	t.Parallel()

	tr := &trace.Trace{
		Data: make([]byte, 8),
		Root: trace.NewSpan("root",
			trace.NewRead(4),
			trace.NewSeek(0),
			trace.NewRead(2),
		),
	}
	idx, err := Build(tr)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	seeks := idx.Seeks()
	if len(seeks) != 1 {
		t.Fatalf("seeks=%d, want 1", len(seeks))
	}
	if seeks[0].From != 4 || seeks[0].To != 0 {
		t.Fatalf("seek=%+v, want from 4 to 0", seeks[0])
	}
}

func TestEntriesSortedByStart(t *testing.T) {
	t.Parallel()

	tr := &trace.Trace{
		Data: make([]byte, 16),
		Root: trace.NewSpan("root",
			trace.NewSeek(8),
			trace.NewRead(4),
			trace.NewSeek(0),
			trace.NewRead(4),
		),
	}
	idx, err := Build(tr)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	entries := idx.Entries()
	if len(entries) != 2 {
		t.Fatalf("entries=%d, want 2", len(entries))
	}
	if entries[0].Interval.Start != 0 || entries[1].Interval.Start != 8 {
		t.Fatalf("entry starts=[%d,%d], want [0,8]", entries[0].Interval.Start, entries[1].Interval.Start)
	}
}
