package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"mdbundle/internal/config"
	"mdbundle/pkg/contracts"
)

// instrumentation scope shared by the tracer and the meter
const scopeName = "mdbundle"

// OTelProviders is the telemetry of one ingest process. Tracer and Meter are
// always usable; the SDK providers and Registry are nil for disabled signals.
type OTelProviders struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Tracer         trace.Tracer
	Meter          metric.Meter
	Registry       *prometheus.Registry

	traceOut io.Closer
}

// InitializeOTel builds tracing and metrics from cfg and installs the enabled
// providers as the otel globals.
func InitializeOTel(cfg config.TelemetryConfig, logger *slog.Logger) (*OTelProviders, error) {
	if logger == nil {
		logger = GetLogger()
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", contracts.Version),
	)
	p := &OTelProviders{
		Tracer: tracenoop.NewTracerProvider().Tracer(scopeName),
		Meter:  noop.NewMeterProvider().Meter(scopeName),
	}

	if cfg.TraceExporter == "stdout" {
		tp, out, err := stdoutTracing(cfg, res)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
		p.TracerProvider, p.traceOut = tp, out
		p.Tracer = tp.Tracer(scopeName, trace.WithInstrumentationVersion(contracts.Version))
		otel.SetTracerProvider(tp)
	}

	if cfg.MetricsEnabled {
		mp, reg, err := prometheusMetrics(res)
		if err != nil {
			p.Shutdown(context.Background())
			return nil, fmt.Errorf("failed to initialize metrics: %w", err)
		}
		p.MeterProvider, p.Registry = mp, reg
		p.Meter = mp.Meter(scopeName, metric.WithInstrumentationVersion(contracts.Version))
		otel.SetMeterProvider(mp)
	}

	logger.Info("telemetry_initialized",
		slog.String("service", cfg.ServiceName),
		slog.String("trace_exporter", cfg.TraceExporter),
		slog.Float64("sample_ratio", cfg.SampleRatio),
		slog.Bool("metrics_enabled", cfg.MetricsEnabled))
	return p, nil
}

// stdoutTracing exports spans as JSON lines to cfg.TraceFile, or to stdout
// when no file is set. The returned closer is nil for stdout.
func stdoutTracing(cfg config.TelemetryConfig, res *resource.Resource) (*sdktrace.TracerProvider, io.Closer, error) {
	var (
		w      io.Writer = os.Stdout
		closer io.Closer
	)
	if cfg.TraceFile != "" {
		f, err := openLogFile(cfg.TraceFile)
		if err != nil {
			return nil, nil, err
		}
		w, closer = f, f
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		if closer != nil {
			closer.Close()
		}
		return nil, nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	return tp, closer, nil
}

// prometheusMetrics bridges otel instruments into a private registry that is
// dumped to a textfile when the run ends.
func prometheusMetrics(res *resource.Resource) (*sdkmetric.MeterProvider, *prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	return mp, reg, nil
}

// WriteMetricsFile writes the gathered metrics in the Prometheus text format
// for the node_exporter textfile collector. No-op when metrics are disabled
// or path is empty.
func (p *OTelProviders) WriteMetricsFile(path string) error {
	if p.Registry == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	return prometheus.WriteToTextfile(path, p.Registry)
}

// Shutdown flushes pending spans, stops the providers and closes the trace file.
func (p *OTelProviders) Shutdown(ctx context.Context) error {
	var errs []error
	if p.TracerProvider != nil {
		if err := p.TracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider: %w", err))
		}
	}
	if p.MeterProvider != nil {
		if err := p.MeterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider: %w", err))
		}
	}
	if p.traceOut != nil {
		if err := p.traceOut.Close(); err != nil {
			errs = append(errs, fmt.Errorf("trace file: %w", err))
		}
		p.traceOut = nil
	}
	return errors.Join(errs...)
}

// AddSpanEvent adds an event to the span in ctx, if it is recording
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.AddEvent(name, trace.WithAttributes(attrs...))
	}
}

// RecordError marks the span in ctx as failed with err
func RecordError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
