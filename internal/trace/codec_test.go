package trace

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func actionsEqual(a, b *Action) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindRead:
		return a.Length == b.Length
	case KindSeek:
		return a.Target == b.Target
	case KindSpan:
		if a.Name != b.Name || len(a.Actions) != len(b.Actions) {
			return false
		}
		for i := range a.Actions {
			if !actionsEqual(a.Actions[i], b.Actions[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	tr := &Trace{
		Data:       []byte{1, 2, 3, 4, 5, 6, 7, 8},
		StartIndex: 0,
		Root: NewSpan("root",
			NewSpan("header", NewRead(2), NewRead(2)),
			NewSeek(0),
			NewSpan("body", NewRead(8)),
		),
	}

	var buf bytes.Buffer
	if err := Encode(&buf, tr); err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	decoded, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}

	if !bytes.Equal(decoded.Data, tr.Data) {
		t.Fatalf("data=%v, want %v", decoded.Data, tr.Data)
	}
	if decoded.StartIndex != tr.StartIndex {
		t.Fatalf("start_index=%d, want %d", decoded.StartIndex, tr.StartIndex)
	}
	if !actionsEqual(decoded.Root, tr.Root) {
		t.Fatalf("decoded tree differs from encoded tree")
	}
}

func TestWireFormatShape(t *testing.T) {
	t.Parallel()

	tr := &Trace{
		Data:       []byte{0xAB, 0xCD},
		StartIndex: 0,
		Root:       NewSpan("root", NewRead(2)),
	}
	var buf bytes.Buffer
	if err := Encode(&buf, tr); err != nil {
		t.Fatalf("Encode() error: %v", err)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("unmarshal document: %v", err)
	}
	for _, field := range []string{"data", "start_index", "root"} {
		if _, ok := doc[field]; !ok {
			t.Fatalf("document missing field %q", field)
		}
	}

	// data is base64, root is a single-key Span mapping.
	var data string
	if err := json.Unmarshal(doc["data"], &data); err != nil {
		t.Fatalf("data field is not a base64 string: %v", err)
	}
	if data != "q80=" {
		t.Fatalf("data=%q, want %q", data, "q80=")
	}
	var root map[string]json.RawMessage
	if err := json.Unmarshal(doc["root"], &root); err != nil {
		t.Fatalf("unmarshal root: %v", err)
	}
	if len(root) != 1 {
		t.Fatalf("root has %d tags, want 1", len(root))
	}
	if _, ok := root["Span"]; !ok {
		t.Fatalf("root tag=%v, want Span", root)
	}
}

func TestDecodeRejectsMalformedDocuments(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		doc  string
	}{
		{"missing root", `{"data":"","start_index":0}`},
		{"negative start_index", `{"data":"","start_index":-1,"root":{"Span":{"name":"root","actions":[]}}}`},
		{"unknown action tag", `{"data":"","start_index":0,"root":{"Skip":4}}`},
		{"two tags on one action", `{"data":"","start_index":0,"root":{"Read":1,"Seek":2}}`},
		{"read past end of buffer", `{"data":"AAE=","start_index":0,"root":{"Span":{"name":"root","actions":[{"Read":3}]}}}`},
		{"seek outside buffer", `{"data":"AAE=","start_index":0,"root":{"Span":{"name":"root","actions":[{"Seek":5}]}}}`},
		{"not json", `!!`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Decode(strings.NewReader(tc.doc))
			if !errors.Is(err, ErrMalformedTrace) {
				t.Fatalf("Decode() error=%v, want ErrMalformedTrace", err)
			}
		})
	}
}

func TestDecodePreservesActionOrder(t *testing.T) {
	t.Parallel()

	doc := `{"data":"AAAAAAAAAAA=","start_index":0,"root":{"Span":{"name":"root","actions":[{"Read":1},{"Seek":0},{"Read":2},{"Span":{"name":"tail","actions":[{"Read":3}]}}]}}}`
	tr, err := Decode(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	kinds := make([]Kind, 0, 4)
	for _, act := range tr.Root.Actions {
		kinds = append(kinds, act.Kind)
	}
	want := []Kind{KindRead, KindSeek, KindRead, KindSpan}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("action[%d].Kind=%v, want %v", i, kinds[i], want[i])
		}
	}
}
