package operations

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"mdbundle/internal/infrastructure"
)

const (
	TracerName = "mdbundle.operation"
)

// OperationTracer provides OpenTelemetry instrumentation for runs
type OperationTracer struct {
	tracer  trace.Tracer
	metrics *infrastructure.BundleMetrics
}

// NewOperationTracer creates a tracer on the given providers
func NewOperationTracer(providers *infrastructure.OTelProviders) (*OperationTracer, error) {
	metrics, err := infrastructure.CreateBundleMetrics(providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create bundle metrics: %w", err)
	}

	return &OperationTracer{
		tracer:  providers.Tracer,
		metrics: metrics,
	}, nil
}

// Metrics returns the run instruments
func (pt *OperationTracer) Metrics() *infrastructure.BundleMetrics {
	return pt.metrics
}

// TraceOperationExecution creates a span for the entire run
func (pt *OperationTracer) TraceOperationExecution(ctx context.Context, operationID, bundle string) (context.Context, trace.Span) {
	return pt.tracer.Start(ctx, "bundle.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("operation.id", operationID),
			attribute.String("bundle.name", bundle),
		),
	)
}

// TraceStageExecution creates a span for one step
func (pt *OperationTracer) TraceStageExecution(ctx context.Context, operationID, stepID string) (context.Context, trace.Span) {
	return pt.tracer.Start(ctx, fmt.Sprintf("bundle.step.%s", stepID),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("operation.id", operationID),
			attribute.String("step.id", stepID),
		),
	)
}

// RecordStageCompletion closes out a step span and records its metrics
func (pt *OperationTracer) RecordStageCompletion(ctx context.Context, span trace.Span, stepID string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "failure"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.SetAttributes(
		attribute.String("step.status", status),
		attribute.Float64("step.duration_seconds", duration.Seconds()),
	)
	pt.metrics.RecordStep(ctx, stepID, status, duration)
}

// RecordOperationCompletion closes out the run span and records its metrics
func (pt *OperationTracer) RecordOperationCompletion(ctx context.Context, span trace.Span, bundle string, duration time.Duration, err error) {
	if err != nil {
		infrastructure.RecordError(ctx, err)
	} else {
		span.SetStatus(codes.Ok, "run completed")
	}
	infrastructure.AddSpanEvent(ctx, "bundle.run.completed",
		attribute.String("bundle", bundle),
		attribute.Bool("success", err == nil),
		attribute.Float64("duration", duration.Seconds()),
	)
	pt.metrics.RecordRun(ctx, bundle, duration, err == nil)
}
