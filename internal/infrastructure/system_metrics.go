package infrastructure

import (
	"context"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// RuntimeMetrics samples Go runtime figures at the end of a run
type RuntimeMetrics struct {
	goRoutines   metric.Int64Gauge
	heapAlloc    metric.Int64Gauge
	totalAlloc   metric.Int64Gauge
	memorySystem metric.Int64Gauge
	gcCount      metric.Int64Gauge
	runUptime    metric.Float64Gauge
}

// RuntimeStats is one sample of the runtime figures
type RuntimeStats struct {
	GoRoutines   int64
	HeapAlloc    int64
	TotalAlloc   int64
	MemorySystem int64
	GCCount      uint32
	LastGCPause  time.Duration
	Uptime       time.Duration
}

// NewRuntimeMetrics registers the runtime gauges on meter
func NewRuntimeMetrics(meter metric.Meter) (*RuntimeMetrics, error) {
	var (
		m   RuntimeMetrics
		err error
	)

	if m.goRoutines, err = meter.Int64Gauge("runtime_goroutines",
		metric.WithDescription("Number of live goroutines")); err != nil {
		return nil, err
	}
	if m.heapAlloc, err = meter.Int64Gauge("runtime_heap_alloc_bytes",
		metric.WithDescription("Bytes of allocated heap objects"),
		metric.WithUnit("By")); err != nil {
		return nil, err
	}
	if m.totalAlloc, err = meter.Int64Gauge("runtime_total_alloc_bytes",
		metric.WithDescription("Cumulative bytes allocated during the run"),
		metric.WithUnit("By")); err != nil {
		return nil, err
	}
	if m.memorySystem, err = meter.Int64Gauge("runtime_memory_system_bytes",
		metric.WithDescription("Memory obtained from the OS"),
		metric.WithUnit("By")); err != nil {
		return nil, err
	}
	if m.gcCount, err = meter.Int64Gauge("runtime_gc_cycles",
		metric.WithDescription("Completed GC cycles")); err != nil {
		return nil, err
	}
	if m.runUptime, err = meter.Float64Gauge("runtime_run_uptime_seconds",
		metric.WithDescription("Seconds since the run started"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}

	return &m, nil
}

// Collect reads runtime.MemStats, records the gauges and returns the sample
func (m *RuntimeMetrics) Collect(ctx context.Context, startTime time.Time) *RuntimeStats {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	stats := &RuntimeStats{
		GoRoutines:   int64(runtime.NumGoroutine()),
		HeapAlloc:    int64(memStats.HeapAlloc),
		TotalAlloc:   int64(memStats.TotalAlloc),
		MemorySystem: int64(memStats.Sys),
		GCCount:      memStats.NumGC,
		LastGCPause:  time.Duration(memStats.PauseNs[(memStats.NumGC+255)%256]),
		Uptime:       time.Since(startTime),
	}

	m.goRoutines.Record(ctx, stats.GoRoutines)
	m.heapAlloc.Record(ctx, stats.HeapAlloc)
	m.totalAlloc.Record(ctx, stats.TotalAlloc)
	m.memorySystem.Record(ctx, stats.MemorySystem)
	m.gcCount.Record(ctx, int64(stats.GCCount))
	m.runUptime.Record(ctx, stats.Uptime.Seconds())

	return stats
}

// FormatStats returns the sample as log-friendly fields
func (s *RuntimeStats) FormatStats() map[string]interface{} {
	return map[string]interface{}{
		"goroutines":       s.GoRoutines,
		"heap_alloc_mb":    s.HeapAlloc / 1024 / 1024,
		"total_alloc_mb":   s.TotalAlloc / 1024 / 1024,
		"memory_system_mb": s.MemorySystem / 1024 / 1024,
		"gc_count":         s.GCCount,
		"last_gc_pause_ms": s.LastGCPause.Milliseconds(),
		"uptime_seconds":   s.Uptime.Seconds(),
	}
}
