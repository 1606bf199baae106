package operations

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mdbundle/internal/infrastructure"
)

// Manager runs the registered steps of a bundle run in dependency order
type Manager struct {
	registry *Registry
	config   *Config
	tracer   *OperationTracer
}

// NewManager creates a manager. A nil registry or config uses the defaults;
// a nil tracer disables span and metric recording.
func NewManager(registry *Registry, config *Config, tracer *OperationTracer) *Manager {
	if registry == nil {
		registry = NewRegistry()
	}
	if config == nil {
		config = NewConfig()
	}
	return &Manager{
		registry: registry,
		config:   config,
		tracer:   tracer,
	}
}

// RegisterStage registers a Step with the manager
func (m *Manager) RegisterStage(step Step) error {
	return m.registry.Register(step)
}

// GetRegistry returns the step registry
func (m *Manager) GetRegistry() *Registry {
	return m.registry
}

// GetConfig returns the current configuration
func (m *Manager) GetConfig() *Config {
	return m.config
}

// Execute runs every registered step against a fresh state. The returned
// state carries the context written by the steps even when a step failed.
func (m *Manager) Execute(ctx context.Context, req OperationRequest) (*OperationState, error) {
	if req.ID == "" {
		req.ID = infrastructure.GenerateRunID()
	}
	return m.ExecuteState(ctx, NewOperationState(req.ID), req.Parameters)
}

// ExecuteState runs every registered step against a caller-prepared state
func (m *Manager) ExecuteState(ctx context.Context, state *OperationState, params map[string]interface{}) (*OperationState, error) {
	for k, v := range params {
		state.SetParam(k, v)
	}

	m.logOperationStart(ctx, state.ID, params)

	steps, err := m.registry.GetDependencyOrder()
	if err != nil {
		err = NewFatalError("invalid step graph", err)
		m.logOperationError(ctx, state.ID, err)
		state.Fail(err)
		return state, err
	}
	for _, step := range steps {
		state.SetStage(step.ID(), NewStepState(step.ID(), step.Name()))
	}

	state.Start()
	err = m.executeSequential(ctx, state, steps)
	if err != nil {
		if ctx.Err() != nil {
			state.Cancel()
		} else {
			state.Fail(err)
		}
		m.logOperationError(ctx, state.ID, err)
		return state, err
	}

	state.Complete()
	m.logOperationComplete(ctx, state.ID, state.Duration(), string(state.GetStatus()))
	return state, nil
}

// Response converts a finished state into a summary
func Response(state *OperationState) *OperationResponse {
	resp := &OperationResponse{
		ID:       state.ID,
		Status:   state.GetStatus(),
		Duration: state.Duration(),
		Steps:    state.Steps,
	}
	if state.Error != nil {
		resp.Error = state.Error.Error()
	}
	return resp
}

// executeSequential runs steps one by one. A failed step marks everything
// that depends on it skipped and stops the run.
func (m *Manager) executeSequential(ctx context.Context, state *OperationState, steps []Step) error {
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return NewCancellationError(step.ID())
		}

		stepState := state.GetStage(step.ID())
		if stepState.GetStatus() == StepStatusSkipped {
			slog.InfoContext(ctx, "step_skipped",
				slog.String("operation_id", state.ID),
				slog.String("step", step.ID()),
				slog.String("reason", stepState.Message))
			continue
		}

		slog.InfoContext(ctx, "executing_step",
			slog.String("operation_id", state.ID),
			slog.String("step", step.ID()),
			slog.Int("step_number", i+1),
			slog.Int("total_steps", len(steps)))

		if err := m.executeStage(ctx, state, step); err != nil {
			m.logStageError(ctx, state.ID, step.ID(), err)
			m.skipDependents(state, step.ID())
			return err
		}
	}
	return nil
}

// executeStage runs a single Step with retry
func (m *Manager) executeStage(ctx context.Context, state *OperationState, step Step) error {
	stepState := state.GetStage(step.ID())

	if err := m.checkDependencies(state, step); err != nil {
		stepState.Skip(err.Error())
		return err
	}

	if err := step.Validate(state); err != nil {
		stepState.Fail(err)
		return NewValidationError(step.ID(), err.Error())
	}

	timeout := m.config.GetStageTimeout(step.ID())
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	retry := m.config.RetryConfig
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}

	for attempt := 1; ; attempt++ {
		stepState.Start()
		m.logStageStart(ctx, state.ID, step.ID(), attempt)

		err := m.runOnce(stepCtx, state, step)
		duration := stepState.Duration()
		if err == nil {
			stepState.Complete()
			m.logStageComplete(ctx, state.ID, step.ID(), duration)
			return nil
		}

		if !IsRetryable(err) || attempt >= retry.MaxAttempts {
			stepState.Fail(err)
			return WrapError(err, step.ID(), "step execution failed")
		}

		delay := m.calculateRetryDelay(attempt, retry)
		slog.WarnContext(ctx, "step_retry",
			slog.String("operation_id", state.ID),
			slog.String("step", step.ID()),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", retry.MaxAttempts),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()))

		select {
		case <-time.After(delay):
		case <-stepCtx.Done():
			timeoutErr := NewTimeoutError(step.ID(), timeout)
			if ctx.Err() != nil {
				timeoutErr = NewCancellationError(step.ID())
			}
			stepState.Fail(timeoutErr)
			return timeoutErr
		}
	}
}

// runOnce executes one attempt inside its own span
func (m *Manager) runOnce(ctx context.Context, state *OperationState, step Step) error {
	if m.tracer == nil {
		return step.Execute(ctx, state)
	}

	spanCtx, span := m.tracer.TraceStageExecution(ctx, state.ID, step.ID())
	defer span.End()

	start := time.Now()
	err := step.Execute(spanCtx, state)
	m.tracer.RecordStageCompletion(spanCtx, span, step.ID(), time.Since(start), err)
	return err
}

// skipDependents marks every pending step that depends on failedID as skipped
func (m *Manager) skipDependents(state *OperationState, failedID string) {
	for _, id := range m.registry.GetDependents(failedID) {
		if st := state.GetStage(id); st != nil && st.GetStatus() == StepStatusPending {
			st.Skip(fmt.Sprintf("dependency %s failed", failedID))
		}
	}
}

// checkDependencies verifies that all dependencies completed
func (m *Manager) checkDependencies(state *OperationState, step Step) error {
	for _, dep := range step.GetDependencies() {
		depState := state.GetStage(dep)
		if depState == nil {
			return NewDependencyError(step.ID(), dep, "dependency not scheduled")
		}
		if status := depState.GetStatus(); status != StepStatusCompleted {
			return NewDependencyError(step.ID(), dep, fmt.Sprintf("dependency %s is %s", dep, status))
		}
	}
	return nil
}

// calculateRetryDelay grows the delay geometrically from InitialDelay
func (m *Manager) calculateRetryDelay(attempt int, config RetryConfig) time.Duration {
	delay := config.InitialDelay
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * config.Multiplier)
	}
	if config.MaxDelay > 0 && delay > config.MaxDelay {
		delay = config.MaxDelay
	}
	return delay
}
