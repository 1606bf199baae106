package operations

import (
	"context"
	"sync"
	"time"
)

// Step is one unit of work in a run. Steps exchange data through the
// OperationState context.
type Step interface {
	// ID returns the unique identifier for this Step
	ID() string

	// Name returns the human-readable name for this Step
	Name() string

	// Execute runs the Step against the shared operation state
	Execute(ctx context.Context, state *OperationState) error

	// Validate checks that the inputs the Step reads are present
	Validate(state *OperationState) error

	// GetDependencies returns the IDs of steps that must complete first
	GetDependencies() []string
}

// StepStatus is the lifecycle position of a Step within one run
type StepStatus string

// A step moves pending -> active -> completed|failed, returning to active on
// a retry; skipped is terminal and set only when a dependency failed.
const (
	StepStatusPending   StepStatus = "pending"
	StepStatusActive    StepStatus = "active"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// StepState records one Step's progress in a run; Metadata carries the
// step's counters (e.g. bars written) for the run response.
type StepState struct {
	mu        sync.RWMutex
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Status    StepStatus             `json:"status"`
	StartTime *time.Time             `json:"start_time,omitempty"`
	EndTime   *time.Time             `json:"end_time,omitempty"`
	Attempts  int                    `json:"attempts"`
	Message   string                 `json:"message,omitempty"`
	Error     error                  `json:"-"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewStepState creates a pending Step state
func NewStepState(id, name string) *StepState {
	return &StepState{
		ID:       id,
		Name:     name,
		Status:   StepStatusPending,
		Metadata: make(map[string]interface{}),
	}
}

// Start marks the Step active and counts the attempt
func (s *StepState) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.StartTime, s.EndTime = &now, nil
	s.Status = StepStatusActive
	s.Attempts++
}

// Complete, Fail and Skip end the current attempt
func (s *StepState) Complete()          { s.finish(StepStatusCompleted, nil, "") }
func (s *StepState) Fail(err error)     { s.finish(StepStatusFailed, err, "") }
func (s *StepState) Skip(reason string) { s.finish(StepStatusSkipped, nil, reason) }

func (s *StepState) finish(status StepStatus, err error, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.EndTime = &now
	s.Status = status
	s.Error = err
	if message != "" {
		s.Message = message
	}
}

// SetMetadata records a step-level counter or note
func (s *StepState) SetMetadata(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Metadata[key] = value
}

// GetStatus returns the current status
func (s *StepState) GetStatus() StepStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Status
}

// Duration returns the duration of the last attempt
func (s *StepState) Duration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.StartTime == nil {
		return 0
	}
	if s.EndTime != nil {
		return s.EndTime.Sub(*s.StartTime)
	}
	return time.Since(*s.StartTime)
}

// BaseStage provides the identity half of a Step. Steps embed it and
// implement Execute, overriding Validate when they read context keys.
type BaseStage struct {
	id           string
	name         string
	dependencies []string
}

func NewBaseStage(id, name string, dependencies []string) BaseStage {
	deps := make([]string, len(dependencies))
	copy(deps, dependencies)
	return BaseStage{id: id, name: name, dependencies: deps}
}

func (b *BaseStage) ID() string                { return b.id }
func (b *BaseStage) Name() string              { return b.name }
func (b *BaseStage) GetDependencies() []string { return b.dependencies }

// Validate accepts any state
func (b *BaseStage) Validate(*OperationState) error { return nil }
