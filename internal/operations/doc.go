// Package operations runs a bundle ingestion as an ordered list of steps.
//
// Core components:
//
// Step: one unit of work (discover, calendar, registry, align, adjustments,
// commit). Steps declare the IDs they depend on and exchange data through
// the OperationState context.
//
// Registry: holds the steps and orders them topologically, keeping
// registration order among independent steps.
//
// Manager: executes the ordered steps one at a time. A step failing with a
// retryable OperationError is re-attempted with geometric back-off; any other
// failure stops the run and marks dependent steps skipped.
//
// OperationTracer: wraps each step attempt in a span and records step and
// run metrics.
//
// Example usage:
//
//	manager := operations.NewManager(nil, operations.NewConfig(), tracer)
//	manager.RegisterStage(newDiscoverStep(...))
//	manager.RegisterStage(newCommitStep(...))
//	state, err := manager.Execute(ctx, operations.OperationRequest{ID: runID})
package operations
