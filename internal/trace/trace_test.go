package trace

import (
	"errors"
	"strings"
	"testing"
)

func TestReplayCursorTrajectory(t *testing.T) {
	t.Parallel()

	// length(4) then payload(12), with a seek back over the payload.
	root := NewSpan("pascal_string",
		NewSpan("length", NewRead(4)),
		NewRead(12),
		NewSeek(4),
		NewRead(2),
	)
	tr := &Trace{Data: make([]byte, 16), StartIndex: 0, Root: root}

	type visit struct {
		path  string
		kind  Kind
		start int
		end   int
	}
	var got []visit
	err := tr.Replay(func(path []string, act *Action, start, end int) error {
		got = append(got, visit{strings.Join(path, "/"), act.Kind, start, end})
		return nil
	})
	if err != nil {
		t.Fatalf("Replay() error: %v", err)
	}

	want := []visit{
		{"pascal_string/length", KindRead, 0, 4},
		{"pascal_string", KindRead, 4, 16},
		{"pascal_string", KindSeek, 16, 4},
		{"pascal_string", KindRead, 4, 6},
	}
	if len(got) != len(want) {
		t.Fatalf("visits=%d, want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("visit[%d]=%+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestReplayStartIndexSeedsCursor(t *testing.T) {
	t.Parallel()

	tr := &Trace{
		Data:       make([]byte, 8),
		StartIndex: 3,
		Root:       NewSpan("root", NewRead(2)),
	}
	var start, end int
	err := tr.Replay(func(path []string, act *Action, s, e int) error {
		start, end = s, e
		return nil
	})
	if err != nil {
		t.Fatalf("Replay() error: %v", err)
	}
	if start != 3 || end != 5 {
		t.Fatalf("read range=[%d,%d), want [3,5)", start, end)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		trace   *Trace
		wantErr bool
	}{
		{
			name:  "reads within bounds",
			trace: &Trace{Data: make([]byte, 8), Root: NewSpan("root", NewRead(4), NewRead(4))},
		},
		{
			name:    "read past end of buffer",
			trace:   &Trace{Data: make([]byte, 8), Root: NewSpan("root", NewRead(9))},
			wantErr: true,
		},
		{
			name:    "negative read length",
			trace:   &Trace{Data: make([]byte, 8), Root: NewSpan("root", NewRead(-1))},
			wantErr: true,
		},
		{
			name:  "seek to end of buffer is allowed",
			trace: &Trace{Data: make([]byte, 8), Root: NewSpan("root", NewSeek(8))},
		},
		{
			name:    "seek past end of buffer",
			trace:   &Trace{Data: make([]byte, 8), Root: NewSpan("root", NewSeek(9))},
			wantErr: true,
		},
		{
			name:    "seek to negative offset",
			trace:   &Trace{Data: make([]byte, 8), Root: NewSpan("root", NewSeek(-2))},
			wantErr: true,
		},
		{
			name:    "read after bad seek escapes",
			trace:   &Trace{Data: make([]byte, 8), Root: NewSpan("root", NewSeek(6), NewRead(4))},
			wantErr: true,
		},
		{
			name:  "nested spans replay through shared cursor",
			trace: &Trace{Data: make([]byte, 8), Root: NewSpan("a", NewSpan("b", NewRead(4)), NewRead(4))},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.trace.Validate()
			if tc.wantErr {
				if !errors.Is(err, ErrMalformedTrace) {
					t.Fatalf("Validate() error=%v, want ErrMalformedTrace", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() error: %v", err)
			}
		})
	}
}

func TestCountActions(t *testing.T) {
	t.Parallel()

	tr := &Trace{Root: NewSpan("root",
		NewRead(1),
		NewSpan("inner", NewRead(2), NewSeek(0)),
		NewRead(3),
	)}
	reads, seeks, spans := tr.CountActions()
	if reads != 3 || seeks != 1 || spans != 2 {
		t.Fatalf("counts=(%d,%d,%d), want (3,1,2)", reads, seeks, spans)
	}
}
