package operations

import (
	"context"
	"log/slog"
	"time"
)

// logOperationStart logs the start of a run
func (m *Manager) logOperationStart(ctx context.Context, operationID string, params map[string]interface{}) {
	slog.InfoContext(ctx, "operation_start",
		slog.String("operation_id", operationID),
		slog.Any("parameters", params))
}

// logOperationComplete logs the completion of a run
func (m *Manager) logOperationComplete(ctx context.Context, operationID string, duration time.Duration, status string) {
	slog.InfoContext(ctx, "operation_complete",
		slog.String("operation_id", operationID),
		slog.String("status", status),
		slog.Duration("duration", duration))
}

// logOperationError logs a run failure
func (m *Manager) logOperationError(ctx context.Context, operationID string, err error) {
	slog.ErrorContext(ctx, "operation_error",
		slog.String("operation_id", operationID),
		slog.String("error", errorString(err)))
}

func (m *Manager) logStageStart(ctx context.Context, operationID, stepID string, attempt int) {
	slog.DebugContext(ctx, "step_start",
		slog.String("operation_id", operationID),
		slog.String("step", stepID),
		slog.Int("attempt", attempt))
}

func (m *Manager) logStageComplete(ctx context.Context, operationID, stepID string, duration time.Duration) {
	slog.InfoContext(ctx, "step_complete",
		slog.String("operation_id", operationID),
		slog.String("step", stepID),
		slog.Duration("duration", duration))
}

func (m *Manager) logStageError(ctx context.Context, operationID, stepID string, err error) {
	slog.ErrorContext(ctx, "step_error",
		slog.String("operation_id", operationID),
		slog.String("step", stepID),
		slog.String("error", errorString(err)))
}

func errorString(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
