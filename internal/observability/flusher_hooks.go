package observability

import (
	"context"
	"time"

	"github.com/hexprov/hexprov/internal/capture"
)

// FlusherMetrics adapts the runtime counters to the capture flush pipeline:
// dropped snapshots and failed sink writes feed the OTLP counters.
func (r *Runtime) FlusherMetrics() *capture.FlusherMetrics {
	return &capture.FlusherMetrics{
		OnDrop: func() {
			r.RecordSnapshotDropped(context.Background())
		},
		OnFlush: func(_ time.Duration, err error) {
			if err != nil {
				r.RecordSnapshotWriteFailed(context.Background())
			}
		},
	}
}
