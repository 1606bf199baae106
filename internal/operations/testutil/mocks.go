// Package testutil provides step doubles for manager tests.
package testutil

import (
	"context"
	"sync/atomic"

	"mdbundle/internal/operations"
)

// MockStage is an operations.Step whose behaviour is set per test. With no
// ExecuteFunc it succeeds.
type MockStage struct {
	IDValue           string
	DependenciesValue []string

	ExecuteFunc  func(ctx context.Context, state *operations.OperationState) error
	ValidateFunc func(state *operations.OperationState) error

	executeCalls atomic.Int32
}

func NewMockStage(id string, deps ...string) *MockStage {
	return &MockStage{IDValue: id, DependenciesValue: deps}
}

func (m *MockStage) ID() string   { return m.IDValue }
func (m *MockStage) Name() string { return m.IDValue }

func (m *MockStage) GetDependencies() []string {
	return append([]string{}, m.DependenciesValue...)
}

func (m *MockStage) Execute(ctx context.Context, state *operations.OperationState) error {
	m.executeCalls.Add(1)
	if m.ExecuteFunc == nil {
		return nil
	}
	return m.ExecuteFunc(ctx, state)
}

func (m *MockStage) Validate(state *operations.OperationState) error {
	if m.ValidateFunc == nil {
		return nil
	}
	return m.ValidateFunc(state)
}

// GetExecuteCalls counts Execute calls, retries included
func (m *MockStage) GetExecuteCalls() int {
	return int(m.executeCalls.Load())
}

// FailTimes returns an ExecuteFunc that fails n times with err, then succeeds
func FailTimes(n int, err error) func(context.Context, *operations.OperationState) error {
	var calls atomic.Int32
	return func(context.Context, *operations.OperationState) error {
		if int(calls.Add(1)) <= n {
			return err
		}
		return nil
	}
}
