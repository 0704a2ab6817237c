package archive

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
)

func TestClassifyWriteError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, WriteErrorClassUnknown},
		{"deadline exceeded", context.DeadlineExceeded, WriteErrorClassTimeout},
		{"wrapped cancellation", fmt.Errorf("save trace: %w", context.Canceled), WriteErrorClassTimeout},
		{"net op error", &net.OpError{Op: "dial", Err: errors.New("refused")}, WriteErrorClassConnection},
		{"syscall refused", fmt.Errorf("flush: %w", syscall.ECONNREFUSED), WriteErrorClassConnection},
		{"driver busy string", errors.New("SQLITE_BUSY: database is locked"), WriteErrorClassContention},
		{"locked string", errors.New("database is locked (5)"), WriteErrorClassContention},
		{"unique violation", errors.New(`ERROR: duplicate key value violates unique constraint "traces_pkey"`), WriteErrorClassConstraint},
		{"timeout string", errors.New("write tcp: i/o timeout"), WriteErrorClassTimeout},
		{"unknown", errors.New("disk exploded"), WriteErrorClassUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyWriteError(tt.err); got != tt.want {
				t.Fatalf("ClassifyWriteError(%v)=%q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestRetrySQLiteBusyGivesUpOnPermanentError(t *testing.T) {
	calls := 0
	permanent := errors.New("no such table: traces")
	err := retrySQLiteBusy(context.Background(), func() error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("error=%v, want %v", err, permanent)
	}
	if calls != 1 {
		t.Fatalf("calls=%d, want 1", calls)
	}
}

func TestRetrySQLiteBusyRetriesContention(t *testing.T) {
	calls := 0
	err := retrySQLiteBusy(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("error=%v, want nil", err)
	}
	if calls != 3 {
		t.Fatalf("calls=%d, want 3", calls)
	}
}
