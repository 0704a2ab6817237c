package archive

import (
	"context"

	"github.com/hexprov/hexprov/internal/trace"

	"github.com/google/uuid"
)

// StoreSink adapts a Store to the capture flush contract. Every snapshot is
// written under the same record ID, so the archive always holds the newest
// snapshot of the session and nothing else.
type StoreSink struct {
	store Store
	id    string
	label string
}

func NewStoreSink(store Store, label string) *StoreSink {
	return &StoreSink{
		store: store,
		id:    uuid.NewString(),
		label: label,
	}
}

// ID returns the record ID all snapshots of this session are written under.
func (s *StoreSink) ID() string { return s.id }

// WriteSnapshot archives the snapshot. Snapshots are marked truncated; call
// Finalize with the closed trace to clear the flag.
func (s *StoreSink) WriteSnapshot(ctx context.Context, t *trace.Trace) error {
	rec, err := NewRecord(s.id, s.label, t, true)
	if err != nil {
		return err
	}
	return s.store.SaveTrace(ctx, rec)
}

// Finalize writes the completed trace over any earlier snapshots.
func (s *StoreSink) Finalize(ctx context.Context, t *trace.Trace) error {
	rec, err := NewRecord(s.id, s.label, t, false)
	if err != nil {
		return err
	}
	return s.store.SaveTrace(ctx, rec)
}
