package capture

import (
	"context"
	"log/slog"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// SpanBridge is an OpenTelemetry span processor that mirrors span lifecycle
// onto a capture session: span start becomes EnterSpan, span end becomes
// ExitSpan. Instrumented deserializers can then mark logical fields with
// ordinary OTel spans around their reads, and the session reconstructs the
// exact nesting.
//
// Spans must start and end on the single goroutine driving the traced stream;
// the session assumes an externally-enforced total order of events.
type SpanBridge struct {
	session *Session
	logger  *slog.Logger
}

var _ sdktrace.SpanProcessor = (*SpanBridge)(nil)

func NewSpanBridge(session *Session, logger *slog.Logger) *SpanBridge {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SpanBridge{session: session, logger: logger}
}

func (b *SpanBridge) OnStart(_ context.Context, s sdktrace.ReadWriteSpan) {
	b.session.EnterSpan(s.Name())
}

func (b *SpanBridge) OnEnd(s sdktrace.ReadOnlySpan) {
	if err := b.session.ExitSpan(); err != nil {
		b.logger.Error("span bridge exit failed", "span", s.Name(), "error", err)
	}
}

func (b *SpanBridge) Shutdown(context.Context) error { return nil }

func (b *SpanBridge) ForceFlush(context.Context) error { return nil }

// NewTracer returns a tracer whose spans drive the given session, plus the
// provider to shut down when capture ends. The provider samples everything:
// span fidelity is the whole point of the capture.
func NewTracer(session *Session, logger *slog.Logger) (oteltrace.Tracer, *sdktrace.TracerProvider) {
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithSpanProcessor(NewSpanBridge(session, logger)),
	)
	return provider.Tracer("hexprov.capture"), provider
}
