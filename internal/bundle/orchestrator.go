package bundle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"mdbundle/internal/config"
	apperrors "mdbundle/internal/errors"
	"mdbundle/internal/infrastructure"
	"mdbundle/internal/operations"
	"mdbundle/internal/store"
)

// Request parameterises one run
type Request struct {
	// RunID becomes the operation ID and the log trace_id. Empty generates
	// a UUID.
	RunID string

	// CarryOverTo, when set, extends every active symbol whose series ends
	// on the session just before it by one carried bar with volume 0. The
	// date must already be a calendar session.
	CarryOverTo time.Time
}

// Result is the outcome of a run. It is returned even when the run fails.
type Result struct {
	RunID       string
	Status      operations.OperationStatusValue
	Duration    time.Duration
	Diagnostics *Diagnostics
	Steps       *operations.OperationResponse
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithTracer records spans and run metrics through tracer
func WithTracer(tracer *operations.OperationTracer) Option {
	return func(o *Orchestrator) {
		o.tracer = tracer
	}
}

// WithOperationsConfig overrides step timeouts and the retry policy
func WithOperationsConfig(cfg *operations.Config) Option {
	return func(o *Orchestrator) {
		o.opsConfig = cfg
	}
}

// WithRuntimeMetrics samples runtime gauges at the end of every run
func WithRuntimeMetrics(m *infrastructure.RuntimeMetrics) Option {
	return func(o *Orchestrator) {
		o.runtime = m
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// Orchestrator turns the configured inputs into a committed bundle
type Orchestrator struct {
	cfg       *config.Config
	schemas   *config.FeedSchemas
	store     store.Bundle
	tracer    *operations.OperationTracer
	opsConfig *operations.Config
	runtime   *infrastructure.RuntimeMetrics
	logger    *slog.Logger
}

// New creates an orchestrator over the given configuration, feed schemas
// and store.
func New(cfg *config.Config, schemas *config.FeedSchemas, st store.Bundle, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:     cfg,
		schemas: schemas,
		store:   st,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.opsConfig == nil {
		o.opsConfig = operations.NewConfig()
	}
	if o.logger == nil {
		o.logger = infrastructure.GetLogger()
	}
	o.logger = infrastructure.WithComponent(o.logger, "bundle")
	return o
}

// Run executes one ingestion. The returned error matches
// apperrors.ErrMissingInput or apperrors.ErrEmptyCalendar for hard aborts;
// in that case nothing was written to the store.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	if o.store == nil || o.schemas == nil || o.cfg == nil {
		return nil, errors.New("orchestrator needs a config, feed schemas and a store")
	}

	runID := req.RunID
	if runID == "" {
		runID = infrastructure.GenerateRunID()
	}
	ctx = infrastructure.WithRun(ctx, runID, o.cfg.Bundle.Name)
	start := time.Now()

	var span trace.Span
	if o.tracer != nil {
		ctx, span = o.tracer.TraceOperationExecution(ctx, runID, o.cfg.Bundle.Name)
		defer span.End()
	}

	diag := newDiagnostics(runID, o.cfg.Bundle.Name)

	state := operations.NewOperationState(runID)
	state.SetContext(keyDiagnostics, diag)

	manager := operations.NewManager(nil, o.opsConfig, o.tracer)
	for _, step := range o.steps(req) {
		if err := manager.RegisterStage(step); err != nil {
			return nil, fmt.Errorf("failed to register step %s: %w", step.ID(), err)
		}
	}

	o.logger.InfoContext(ctx, "bundle_run_started",
		slog.String("input_dir", o.cfg.Paths.InputDir),
		slog.String("store", o.cfg.Store.Driver))

	state, runErr := manager.ExecuteState(ctx, state, map[string]interface{}{
		"bundle": o.cfg.Bundle.Name,
	})
	duration := time.Since(start)

	if o.tracer != nil {
		o.tracer.RecordOperationCompletion(ctx, span, o.cfg.Bundle.Name, duration, runErr)
	}
	if o.runtime != nil {
		stats := o.runtime.Collect(ctx, start)
		o.logger.DebugContext(ctx, "runtime_stats", slog.Any("stats", stats.FormatStats()))
	}

	result := &Result{
		RunID:       runID,
		Status:      state.GetStatus(),
		Duration:    duration,
		Diagnostics: diag,
		Steps:       operations.Response(state),
	}

	if runErr != nil {
		o.logger.ErrorContext(ctx, "bundle_run_failed",
			slog.String("error_type", errorType(runErr)),
			slog.String("error", runErr.Error()))
		return result, runErr
	}

	o.logger.InfoContext(ctx, "bundle_run_completed",
		slog.Int("symbols_active", diag.SymbolsActive),
		slog.Int("symbols_skipped", diag.SymbolsSkipped),
		slog.Int("bars_written", diag.BarsWritten),
		slog.Int("events_dropped", diag.EventsDropped.Total()),
		slog.Duration("duration", duration))
	return result, nil
}

// steps builds the step graph of one run
func (o *Orchestrator) steps(req Request) []operations.Step {
	return []operations.Step{
		newDiscoverStep(o),
		newCalendarStep(o),
		newRegistryStep(o),
		newAlignStep(o, req.CarryOverTo),
		newAdjustmentsStep(o),
		newCommitStep(o),
	}
}

// metrics returns the run instruments, or nil without a tracer
func (o *Orchestrator) metrics() *infrastructure.BundleMetrics {
	if o.tracer == nil {
		return nil
	}
	return o.tracer.Metrics()
}

// errorType names the failure class of a run error for logs
func errorType(err error) string {
	if t := apperrors.TypeOf(err); t != "" {
		return string(t)
	}
	return string(operations.GetErrorType(err))
}

// exchange is the exchange recorded on symbols first seen in this run: the
// exchange of the first price feed.
func (o *Orchestrator) exchange() string {
	for _, f := range o.schemas.Feeds {
		if f.Role != config.RoleActions {
			return f.Exchange
		}
	}
	return o.cfg.Bundle.Name
}
