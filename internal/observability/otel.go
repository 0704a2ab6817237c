package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/hexprov/hexprov/internal/config"
)

const instrumentationName = "hexprov"

// Runtime exposes OpenTelemetry hooks for the capture pipeline: optional
// OTLP export of capture spans and counters for the snapshot flusher.
type Runtime struct {
	enabled bool

	snapshotDroppedCounter     metric.Int64Counter
	snapshotWriteFailedCounter metric.Int64Counter

	shutdownFns []func(context.Context) error
}

// Setup initializes OpenTelemetry providers and runtime hooks. With OTel
// disabled in config it returns an inert runtime whose hooks are no-ops.
func Setup(ctx context.Context, cfg config.OTelConfig, serviceVersion string, logger *slog.Logger) (*Runtime, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	runtime := &Runtime{}
	if !cfg.Enabled {
		return runtime, nil
	}

	exportTimeout := time.Duration(cfg.ExportTimeoutMS) * time.Millisecond
	metricInterval := time.Duration(cfg.MetricExportIntervalMS) * time.Millisecond
	endpoint := strings.TrimSpace(cfg.Endpoint)

	res := resource.NewSchemaless(
		attribute.String("service.name", strings.TrimSpace(cfg.ServiceName)),
		attribute.String("service.version", strings.TrimSpace(serviceVersion)),
	)

	if cfg.TracesEnabled {
		traceExporterOptions := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(endpoint),
			otlptracehttp.WithTimeout(exportTimeout),
		}
		if cfg.Insecure {
			traceExporterOptions = append(traceExporterOptions, otlptracehttp.WithInsecure())
		}
		traceExporter, err := otlptracehttp.New(ctx, traceExporterOptions...)
		if err != nil {
			return nil, fmt.Errorf("initialize otel trace exporter: %w", err)
		}

		tracerProvider := sdktrace.NewTracerProvider(
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
			sdktrace.WithBatcher(traceExporter),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tracerProvider)
		runtime.shutdownFns = append(runtime.shutdownFns, tracerProvider.Shutdown)
	}

	if cfg.MetricsEnabled {
		metricExporterOptions := []otlpmetrichttp.Option{
			otlpmetrichttp.WithEndpoint(endpoint),
			otlpmetrichttp.WithTimeout(exportTimeout),
		}
		if cfg.Insecure {
			metricExporterOptions = append(metricExporterOptions, otlpmetrichttp.WithInsecure())
		}
		metricExporter, err := otlpmetrichttp.New(ctx, metricExporterOptions...)
		if err != nil {
			_ = runtime.Shutdown(context.Background())
			return nil, fmt.Errorf("initialize otel metric exporter: %w", err)
		}

		reader := sdkmetric.NewPeriodicReader(
			metricExporter,
			sdkmetric.WithInterval(metricInterval),
			sdkmetric.WithTimeout(exportTimeout),
		)
		meterProvider := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(reader),
		)
		otel.SetMeterProvider(meterProvider)
		runtime.shutdownFns = append(runtime.shutdownFns, meterProvider.Shutdown)
	}

	meter := otel.Meter(instrumentationName)
	snapshotDroppedCounter, metricErr := meter.Int64Counter(
		"hexprov.capture.snapshot_dropped_total",
		metric.WithDescription("Count of capture snapshots dropped because the flush queue was full."),
	)
	if metricErr != nil && logger != nil {
		logger.Warn("failed to create opentelemetry counter", "metric", "hexprov.capture.snapshot_dropped_total", "error", metricErr)
	}
	runtime.snapshotDroppedCounter = snapshotDroppedCounter

	snapshotWriteFailedCounter, metricErr := meter.Int64Counter(
		"hexprov.capture.snapshot_write_failed_total",
		metric.WithDescription("Count of capture snapshot writes that failed at the storage sink."),
	)
	if metricErr != nil && logger != nil {
		logger.Warn("failed to create opentelemetry counter", "metric", "hexprov.capture.snapshot_write_failed_total", "error", metricErr)
	}
	runtime.snapshotWriteFailedCounter = snapshotWriteFailedCounter

	runtime.enabled = true
	if logger != nil {
		logger.Info(
			"opentelemetry enabled",
			"otel_endpoint", endpoint,
			"otel_traces_enabled", cfg.TracesEnabled,
			"otel_metrics_enabled", cfg.MetricsEnabled,
		)
	}

	return runtime, nil
}

// Enabled reports whether OpenTelemetry instrumentation is active.
func (r *Runtime) Enabled() bool {
	return r != nil && r.enabled
}

// RecordSnapshotDropped increments the dropped-snapshot counter.
func (r *Runtime) RecordSnapshotDropped(ctx context.Context) {
	if !r.Enabled() || r.snapshotDroppedCounter == nil {
		return
	}
	r.snapshotDroppedCounter.Add(ctx, 1)
}

// RecordSnapshotWriteFailed increments the failed-snapshot-write counter.
func (r *Runtime) RecordSnapshotWriteFailed(ctx context.Context) {
	if !r.Enabled() || r.snapshotWriteFailedCounter == nil {
		return
	}
	r.snapshotWriteFailedCounter.Add(ctx, 1)
}

// Shutdown flushes and stops every provider started by Setup.
func (r *Runtime) Shutdown(ctx context.Context) error {
	if r == nil {
		return nil
	}
	var errs []error
	for _, fn := range r.shutdownFns {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	r.shutdownFns = nil
	r.enabled = false
	return errors.Join(errs...)
}
