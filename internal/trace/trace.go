package trace

import (
	"errors"
	"fmt"
	"io"
)

// ErrMalformedTrace reports a trace document that violates the data-model
// invariants: a read escaping the buffer, a negative length, or an absolute
// seek target outside the buffer. Surfaced at load time; fatal to that load
// but not to the process.
var ErrMalformedTrace = errors.New("malformed trace")

// Kind selects the variant of an Action.
type Kind uint8

const (
	// KindRead consumed Length bytes at the current cursor.
	KindRead Kind = iota + 1
	// KindSeek repositioned the cursor to Target without consuming bytes.
	KindSeek
	// KindSpan groups the actions performed inside one named logical scope.
	KindSpan
)

func (k Kind) String() string {
	switch k {
	case KindRead:
		return "read"
	case KindSeek:
		return "seek"
	case KindSpan:
		return "span"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Action is one node of the trace tree: a Read leaf, a Seek leaf, or a named
// Span grouping child actions in temporal order. The zero Action is invalid;
// use the constructors.
type Action struct {
	Kind Kind

	// Length is the number of bytes consumed. Read only.
	Length int

	// Target is the absolute stream position after the seek. Seek only.
	// Relative and end-relative seeks are resolved against the live cursor
	// at capture time, so persisted targets are always absolute.
	Target int
	// Whence records how the seek was originally expressed (io.SeekStart,
	// io.SeekCurrent, io.SeekEnd). Display metadata; not persisted.
	Whence int

	// Name and Actions describe a Span. Actions preserves temporal order of
	// occurrence; consumers must not reorder.
	Name    string
	Actions []*Action
}

// NewRead returns a Read action consuming length bytes.
func NewRead(length int) *Action {
	return &Action{Kind: KindRead, Length: length}
}

// NewSeek returns a Seek action targeting the given absolute position.
func NewSeek(target int) *Action {
	return &Action{Kind: KindSeek, Target: target, Whence: io.SeekStart}
}

// NewSpan returns a named Span with the given child actions.
func NewSpan(name string, actions ...*Action) *Action {
	return &Action{Kind: KindSpan, Name: name, Actions: actions}
}

// Append adds a child action to a span.
func (a *Action) Append(child *Action) {
	a.Actions = append(a.Actions, child)
}

// Trace is the root document: the raw byte buffer, the stream position at
// which recording began, and the action tree. All action offsets are relative
// to a running cursor seeded at StartIndex.
type Trace struct {
	Data       []byte  `json:"data"`
	StartIndex int     `json:"start_index"`
	Root       *Action `json:"root"`
}

// New returns an empty Trace over data with the cursor seeded at startIndex.
func New(data []byte, startIndex int) *Trace {
	return &Trace{
		Data:       data,
		StartIndex: startIndex,
		Root:       NewSpan("root"),
	}
}

// Visit is called once per leaf action during Replay. path holds the span
// names enclosing the leaf, outermost first, root included. start and end
// bound the affected byte range: [start, end) for reads, and for seeks start
// is the cursor before the jump and end the cursor after.
type Visit func(path []string, act *Action, start, end int) error

// Replay walks the action tree in temporal order with an implicit cursor
// seeded at StartIndex, invoking fn for every Read and Seek leaf. The walk
// is deterministic: each leaf is visited exactly once, in occurrence order.
func (t *Trace) Replay(fn Visit) error {
	if t.Root == nil {
		return nil
	}
	cursor := t.StartIndex
	path := make([]string, 0, 8)
	_, err := replay(t.Root, cursor, path, fn)
	return err
}

func replay(act *Action, cursor int, path []string, fn Visit) (int, error) {
	switch act.Kind {
	case KindRead:
		end := cursor + act.Length
		if err := fn(path, act, cursor, end); err != nil {
			return cursor, err
		}
		return end, nil
	case KindSeek:
		if err := fn(path, act, cursor, act.Target); err != nil {
			return cursor, err
		}
		return act.Target, nil
	case KindSpan:
		path = append(path, act.Name)
		for _, child := range act.Actions {
			next, err := replay(child, cursor, path, fn)
			if err != nil {
				return cursor, err
			}
			cursor = next
		}
		return cursor, nil
	default:
		return cursor, fmt.Errorf("%w: unknown action kind %d", ErrMalformedTrace, act.Kind)
	}
}

// Validate replays the tree and checks every cursor movement against the
// buffer bounds. It returns an error wrapping ErrMalformedTrace on the first
// violation: a negative read length, a read extending past the end of the
// buffer, or a seek landing outside [0, len(data)].
func (t *Trace) Validate() error {
	size := len(t.Data)
	return t.Replay(func(path []string, act *Action, start, end int) error {
		switch act.Kind {
		case KindRead:
			if act.Length < 0 {
				return fmt.Errorf("%w: negative read length %d at %s", ErrMalformedTrace, act.Length, pathString(path))
			}
			if start < 0 || end > size {
				return fmt.Errorf("%w: read [%d,%d) escapes buffer of %d bytes at %s", ErrMalformedTrace, start, end, size, pathString(path))
			}
		case KindSeek:
			if end < 0 || end > size {
				return fmt.Errorf("%w: seek target %d outside [0,%d] at %s", ErrMalformedTrace, end, size, pathString(path))
			}
		}
		return nil
	})
}

func pathString(path []string) string {
	if len(path) == 0 {
		return "(root)"
	}
	out := path[0]
	for _, p := range path[1:] {
		out += "/" + p
	}
	return out
}

// CountActions returns the number of Read, Seek and Span nodes in the tree.
func (t *Trace) CountActions() (reads, seeks, spans int) {
	var walk func(*Action)
	walk = func(act *Action) {
		switch act.Kind {
		case KindRead:
			reads++
		case KindSeek:
			seeks++
		case KindSpan:
			spans++
			for _, child := range act.Actions {
				walk(child)
			}
		}
	}
	if t.Root != nil {
		walk(t.Root)
	}
	return reads, seeks, spans
}
