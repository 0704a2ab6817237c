package trace

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// The wire format serializes every Action as a single-key mapping selecting
// the variant: {"Read": n}, {"Seek": n}, or {"Span": {"name": ..., "actions":
// [...]}}. Order inside every actions array is temporal order of occurrence
// and is load-bearing.

type spanPayload struct {
	Name    string    `json:"name"`
	Actions []*Action `json:"actions"`
}

func (a *Action) MarshalJSON() ([]byte, error) {
	switch a.Kind {
	case KindRead:
		return json.Marshal(map[string]int{"Read": a.Length})
	case KindSeek:
		return json.Marshal(map[string]int{"Seek": a.Target})
	case KindSpan:
		actions := a.Actions
		if actions == nil {
			actions = []*Action{}
		}
		return json.Marshal(map[string]spanPayload{"Span": {Name: a.Name, Actions: actions}})
	default:
		return nil, fmt.Errorf("marshal action: unknown kind %d", a.Kind)
	}
}

func (a *Action) UnmarshalJSON(data []byte) error {
	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(data, &tagged); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedTrace, err)
	}
	if len(tagged) != 1 {
		return fmt.Errorf("%w: action must have exactly one tag, got %d", ErrMalformedTrace, len(tagged))
	}
	for tag, raw := range tagged {
		switch tag {
		case "Read":
			var length int
			if err := json.Unmarshal(raw, &length); err != nil {
				return fmt.Errorf("%w: read length: %v", ErrMalformedTrace, err)
			}
			*a = Action{Kind: KindRead, Length: length}
		case "Seek":
			var target int
			if err := json.Unmarshal(raw, &target); err != nil {
				return fmt.Errorf("%w: seek target: %v", ErrMalformedTrace, err)
			}
			*a = Action{Kind: KindSeek, Target: target, Whence: io.SeekStart}
		case "Span":
			var payload spanPayload
			if err := json.Unmarshal(raw, &payload); err != nil {
				return fmt.Errorf("%w: span payload: %v", ErrMalformedTrace, err)
			}
			*a = Action{Kind: KindSpan, Name: payload.Name, Actions: payload.Actions}
		default:
			return fmt.Errorf("%w: unknown action tag %q", ErrMalformedTrace, tag)
		}
	}
	return nil
}

// Encode writes the trace document as JSON.
func Encode(w io.Writer, t *Trace) error {
	if t == nil {
		return fmt.Errorf("encode trace: trace is nil")
	}
	enc := json.NewEncoder(w)
	if err := enc.Encode(t); err != nil {
		return fmt.Errorf("encode trace: %w", err)
	}
	return nil
}

// Decode reads a trace document from r and validates it against the
// data-model invariants. Any structural violation is reported as an error
// wrapping ErrMalformedTrace.
func Decode(r io.Reader) (*Trace, error) {
	dec := json.NewDecoder(r)
	var t Trace
	if err := dec.Decode(&t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTrace, err)
	}
	if t.Root == nil {
		return nil, fmt.Errorf("%w: missing root action", ErrMalformedTrace)
	}
	if t.StartIndex < 0 {
		return nil, fmt.Errorf("%w: negative start_index %d", ErrMalformedTrace, t.StartIndex)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Load reads and validates a trace document from a file.
func Load(path string) (*Trace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace %q: %w", path, err)
	}
	defer f.Close()

	t, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("load trace %q: %w", path, err)
	}
	return t, nil
}
