// Package archive persists captured trace documents with metadata so
// long-running captures can flush incrementally and finished traces can be
// listed and reloaded later.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hexprov/hexprov/internal/trace"
)

var ErrNotFound = errors.New("archive record not found")

// Record is one archived trace document plus its display metadata.
// SaveTrace upserts by ID, so a capture session flushing under a stable ID
// keeps exactly one, newest snapshot in the archive.
type Record struct {
	ID        string
	Label     string
	ByteCount int
	ReadCount int
	SeekCount int
	SpanCount int
	// Truncated marks a snapshot of a still-open capture: structurally
	// valid, open spans just have fewer children than their final form.
	Truncated bool
	Document  []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewRecord builds a record from a trace document, deriving the counters.
func NewRecord(id, label string, t *trace.Trace, truncated bool) (*Record, error) {
	var buf bytes.Buffer
	if err := trace.Encode(&buf, t); err != nil {
		return nil, err
	}
	reads, seeks, spans := t.CountActions()
	return &Record{
		ID:        id,
		Label:     label,
		ByteCount: len(t.Data),
		ReadCount: reads,
		SeekCount: seeks,
		SpanCount: spans,
		Truncated: truncated,
		Document:  buf.Bytes(),
	}, nil
}

// Trace decodes and validates the archived document.
func (r *Record) Trace() (*trace.Trace, error) {
	t, err := trace.Decode(bytes.NewReader(r.Document))
	if err != nil {
		return nil, fmt.Errorf("archive record %q: %w", r.ID, err)
	}
	return t, nil
}

// Store is the archive persistence contract.
type Store interface {
	SaveTrace(ctx context.Context, rec *Record) error
	GetTrace(ctx context.Context, id string) (*Record, error)
	ListTraces(ctx context.Context, limit int) ([]*Record, error)
	DeleteTrace(ctx context.Context, id string) error
	Close() error
}
