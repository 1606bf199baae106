package infrastructure

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// BundleMetrics holds the instruments recorded by an ingestion run
type BundleMetrics struct {
	RunsTotal        metric.Int64Counter
	RunDuration      metric.Float64Histogram
	StepsTotal       metric.Int64Counter
	StepDuration     metric.Float64Histogram
	SymbolsTotal     metric.Int64Counter
	BarsWritten      metric.Int64Counter
	AdjustmentEvents metric.Int64Counter
	DuplicateRows    metric.Int64Counter
	NewSessions      metric.Int64Counter
}

// CreateBundleMetrics registers the run instruments on meter
func CreateBundleMetrics(meter metric.Meter) (*BundleMetrics, error) {
	var (
		m   BundleMetrics
		err error
	)

	if m.RunsTotal, err = meter.Int64Counter("bundle_runs_total",
		metric.WithDescription("Ingestion runs by final status")); err != nil {
		return nil, err
	}
	if m.RunDuration, err = meter.Float64Histogram("bundle_run_duration_seconds",
		metric.WithDescription("Wall time of an ingestion run"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.StepsTotal, err = meter.Int64Counter("bundle_steps_total",
		metric.WithDescription("Executed run steps by step and status")); err != nil {
		return nil, err
	}
	if m.StepDuration, err = meter.Float64Histogram("bundle_step_duration_seconds",
		metric.WithDescription("Wall time of a run step"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.SymbolsTotal, err = meter.Int64Counter("bundle_symbols_total",
		metric.WithDescription("Symbols seen by a run, by outcome")); err != nil {
		return nil, err
	}
	if m.BarsWritten, err = meter.Int64Counter("bundle_bars_written_total",
		metric.WithDescription("Aligned bars committed to the bar store")); err != nil {
		return nil, err
	}
	if m.AdjustmentEvents, err = meter.Int64Counter("bundle_adjustment_events_total",
		metric.WithDescription("Adjustment events by kind and outcome")); err != nil {
		return nil, err
	}
	if m.DuplicateRows, err = meter.Int64Counter("bundle_duplicate_rows_total",
		metric.WithDescription("Duplicate symbol sessions collapsed to the last row")); err != nil {
		return nil, err
	}
	if m.NewSessions, err = meter.Int64Counter("bundle_new_sessions_total",
		metric.WithDescription("Sessions added to the business-day list")); err != nil {
		return nil, err
	}

	return &m, nil
}

// RecordRun records the outcome of a whole run
func (m *BundleMetrics) RecordRun(ctx context.Context, bundle string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	attrs := metric.WithAttributes(
		attribute.String("bundle", bundle),
		attribute.String("status", status),
	)
	m.RunsTotal.Add(ctx, 1, attrs)
	m.RunDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordStep records one executed step
func (m *BundleMetrics) RecordStep(ctx context.Context, stepID, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("step", stepID),
		attribute.String("status", status),
	)
	m.StepsTotal.Add(ctx, 1, attrs)
	m.StepDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordSymbols adds n symbols with the given outcome (active, skipped)
func (m *BundleMetrics) RecordSymbols(ctx context.Context, outcome string, n int) {
	if n == 0 {
		return
	}
	m.SymbolsTotal.Add(ctx, int64(n), metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordAdjustments adds n events of kind with the given outcome
func (m *BundleMetrics) RecordAdjustments(ctx context.Context, kind, outcome string, n int) {
	if n == 0 {
		return
	}
	m.AdjustmentEvents.Add(ctx, int64(n), metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
}
