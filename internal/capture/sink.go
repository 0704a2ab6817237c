package capture

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hexprov/hexprov/internal/trace"
)

// Sink receives capture snapshots for incremental persistence.
type Sink interface {
	WriteSnapshot(ctx context.Context, t *trace.Trace) error
}

// FileSink persists snapshots as a JSON trace document at a fixed path.
// Each write replaces the previous snapshot atomically (write temp, rename),
// so a crash mid-flush never leaves a torn document behind.
type FileSink struct {
	Path string
}

func NewFileSink(path string) *FileSink {
	return &FileSink{Path: path}
}

func (s *FileSink) WriteSnapshot(ctx context.Context, t *trace.Trace) error {
	if s == nil || s.Path == "" {
		return fmt.Errorf("file sink path cannot be empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := trace.Encode(&buf, t); err != nil {
		return err
	}

	dir := filepath.Dir(s.Path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot directory %q: %w", dir, err)
		}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.Path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create snapshot temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close snapshot temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.Path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace snapshot %q: %w", s.Path, err)
	}
	return nil
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, t *trace.Trace) error

func (f SinkFunc) WriteSnapshot(ctx context.Context, t *trace.Trace) error {
	return f(ctx, t)
}
