package infrastructure

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mdbundle/internal/config"
)

func testTelemetry(exporter, traceFile string, metrics bool) config.TelemetryConfig {
	return config.TelemetryConfig{
		ServiceName:    "mdbundle-test",
		TraceExporter:  exporter,
		TraceFile:      traceFile,
		SampleRatio:    1,
		MetricsEnabled: metrics,
	}
}

func TestOTelInitialization_Disabled(t *testing.T) {
	providers, err := InitializeOTel(testTelemetry("none", "", false), nil)
	require.NoError(t, err)
	require.NotNil(t, providers)

	assert.Nil(t, providers.TracerProvider)
	assert.Nil(t, providers.MeterProvider)
	assert.Nil(t, providers.Registry)
	assert.NotNil(t, providers.Tracer, "noop tracer")
	assert.NotNil(t, providers.Meter, "noop meter")

	// Metrics are still creatable against the noop meter
	metrics, err := CreateBundleMetrics(providers.Meter)
	require.NoError(t, err)
	metrics.RecordRun(context.Background(), "xnse", time.Second, true)

	assert.NoError(t, providers.WriteMetricsFile(filepath.Join(t.TempDir(), "m.prom")))
	assert.NoError(t, providers.Shutdown(context.Background()))
}

func TestOTelInitialization_StdoutTraceFile(t *testing.T) {
	traceFile := filepath.Join(t.TempDir(), "traces", "run.jsonl")

	providers, err := InitializeOTel(testTelemetry("stdout", traceFile, false), nil)
	require.NoError(t, err)
	require.NotNil(t, providers.TracerProvider)

	ctx, span := providers.Tracer.Start(context.Background(), "bundle.test")
	assert.True(t, span.IsRecording())
	AddSpanEvent(ctx, "symbols_aligned",
		attribute.Int("count", 3),
		attribute.String("bundle", "xnse"),
		attribute.Float64("ratio", 0.5),
	)
	RecordError(ctx, errors.New("stale file"))
	span.End()

	require.NoError(t, providers.Shutdown(context.Background()))

	content, err := os.ReadFile(traceFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), "bundle.test")
	assert.Contains(t, string(content), "symbols_aligned")
	assert.Contains(t, string(content), "stale file")
}

func TestSpanHelpers_NoSpan(t *testing.T) {
	ctx := context.Background()
	assert.False(t, trace.SpanFromContext(ctx).IsRecording())

	assert.NotPanics(t, func() {
		AddSpanEvent(ctx, "ignored", attribute.String("k", "v"))
		RecordError(ctx, errors.New("ignored"))
	})
}

func TestBundleMetrics_WriteMetricsFile(t *testing.T) {
	providers, err := InitializeOTel(testTelemetry("none", "", true), nil)
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())
	require.NotNil(t, providers.Registry)

	metrics, err := CreateBundleMetrics(providers.Meter)
	require.NoError(t, err)

	ctx := context.Background()
	metrics.RecordRun(ctx, "xnse", 2*time.Second, true)
	metrics.RecordStep(ctx, "align", "completed", time.Second)
	metrics.RecordSymbols(ctx, "active", 4)
	metrics.RecordSymbols(ctx, "skipped", 0)
	metrics.RecordAdjustments(ctx, "split", "kept", 2)

	runtimeMetrics, err := NewRuntimeMetrics(providers.Meter)
	require.NoError(t, err)
	stats := runtimeMetrics.Collect(ctx, time.Now().Add(-time.Minute))
	assert.Positive(t, stats.GoRoutines)
	assert.GreaterOrEqual(t, stats.Uptime, time.Minute)
	assert.Contains(t, stats.FormatStats(), "heap_alloc_mb")

	path := filepath.Join(t.TempDir(), "metrics", "mdbundle.prom")
	require.NoError(t, providers.WriteMetricsFile(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(content)

	assert.Contains(t, text, "bundle_runs_total")
	assert.Contains(t, text, "bundle_steps_total")
	assert.Contains(t, text, `outcome="active"`)
	assert.NotContains(t, text, `outcome="skipped"`, "zero counts are not recorded")
	assert.Contains(t, text, "bundle_adjustment_events_total")
	assert.Contains(t, text, "runtime_goroutines")
	assert.True(t, strings.HasSuffix(text, "\n"))
}

func TestWriteMetricsFile_EmptyPath(t *testing.T) {
	providers, err := InitializeOTel(testTelemetry("none", "", true), nil)
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	assert.NoError(t, providers.WriteMetricsFile(""))
}
