package operations

import (
	"fmt"
	"sync"
	"time"
)

// OperationStatusValue is the overall status of a run
type OperationStatusValue string

const (
	OperationStatusPending   OperationStatusValue = "pending"
	OperationStatusRunning   OperationStatusValue = "running"
	OperationStatusCompleted OperationStatusValue = "completed"
	OperationStatusFailed    OperationStatusValue = "failed"
	OperationStatusCancelled OperationStatusValue = "cancelled"
)

// OperationState is the shared state of one run. Steps read the outputs of
// earlier steps from Context and write their own; Params holds the request
// parameters the run was started with.
type OperationState struct {
	mu sync.RWMutex

	ID        string               `json:"id"`
	Status    OperationStatusValue `json:"status"`
	StartTime time.Time            `json:"start_time"`
	EndTime   *time.Time           `json:"end_time,omitempty"`

	Steps   map[string]*StepState  `json:"steps"`
	Context map[string]interface{} `json:"-"`
	Params  map[string]interface{} `json:"params"`

	Error error `json:"-"`
}

func NewOperationState(id string) *OperationState {
	return &OperationState{
		ID:        id,
		Status:    OperationStatusPending,
		StartTime: time.Now(),
		Steps:     make(map[string]*StepState),
		Context:   make(map[string]interface{}),
		Params:    make(map[string]interface{}),
	}
}

// Start marks the run as running
func (p *OperationState) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Status = OperationStatusRunning
	p.StartTime = time.Now()
}

// Complete, Fail and Cancel end the run
func (p *OperationState) Complete()      { p.end(OperationStatusCompleted, nil) }
func (p *OperationState) Fail(err error) { p.end(OperationStatusFailed, err) }
func (p *OperationState) Cancel()        { p.end(OperationStatusCancelled, nil) }

func (p *OperationState) end(status OperationStatusValue, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	p.EndTime = &now
	p.Status = status
	if err != nil {
		p.Error = err
	}
}

// GetStatus returns the current status
func (p *OperationState) GetStatus() OperationStatusValue {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.Status
}

// GetStage returns the state of a specific Step
func (p *OperationState) GetStage(stepID string) *StepState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.Steps[stepID]
}

// SetStage updates the state of a specific Step
func (p *OperationState) SetStage(stepID string, state *StepState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Steps[stepID] = state
}

// GetContext retrieves a value from the operation context
func (p *OperationState) GetContext(key string) (interface{}, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	val, ok := p.Context[key]
	return val, ok
}

// SetContext sets a value in the operation context
func (p *OperationState) SetContext(key string, value interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Context[key] = value
}

// Param returns a request parameter
func (p *OperationState) Param(key string) (interface{}, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	val, ok := p.Params[key]
	return val, ok
}

// SetParam records a request parameter
func (p *OperationState) SetParam(key string, value interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Params[key] = value
}

// Duration returns the duration of the operation execution
func (p *OperationState) Duration() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.EndTime != nil {
		return p.EndTime.Sub(p.StartTime)
	}
	return time.Since(p.StartTime)
}

// HasFailures returns true if any Step has failed
func (p *OperationState) HasFailures() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, step := range p.Steps {
		if step.GetStatus() == StepStatusFailed {
			return true
		}
	}
	return false
}

// ContextValue reads a typed value written by an earlier step. A missing key
// or a value of another type is an error naming the key.
func ContextValue[T any](state *OperationState, key string) (T, error) {
	var zero T
	raw, ok := state.GetContext(key)
	if !ok {
		return zero, fmt.Errorf("operation context has no %q", key)
	}
	v, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("operation context %q holds %T, want %T", key, raw, zero)
	}
	return v, nil
}
