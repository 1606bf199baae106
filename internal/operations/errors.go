package operations

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType classifies why a step did not complete
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeDependency   ErrorType = "dependency"
	ErrorTypeExecution    ErrorType = "execution"
	ErrorTypeTimeout      ErrorType = "timeout"
	ErrorTypeCancellation ErrorType = "cancellation"
	ErrorTypeFatal        ErrorType = "fatal"
)

// OperationError is a step failure as the manager reports it. Only
// Retryable execution errors are attempted again.
type OperationError struct {
	Type      ErrorType     `json:"type"`
	Step      string        `json:"step,omitempty"`
	Message   string        `json:"message"`
	DependsOn string        `json:"depends_on,omitempty"`
	Timeout   time.Duration `json:"timeout,omitempty"`
	Retryable bool          `json:"retryable"`
	Cause     error         `json:"-"`
}

func (e *OperationError) Error() string {
	prefix := "[" + string(e.Type) + "] "
	if e.Step != "" {
		prefix += e.Step + ": "
	}
	if e.Cause == nil {
		return prefix + e.Message
	}
	return fmt.Sprintf("%s%s: %v", prefix, e.Message, e.Cause)
}

func (e *OperationError) Unwrap() error { return e.Cause }

func NewValidationError(step, message string) *OperationError {
	return &OperationError{Type: ErrorTypeValidation, Step: step, Message: message}
}

// NewDependencyError reports that step cannot run because dependsOn did not complete
func NewDependencyError(step, dependsOn, message string) *OperationError {
	return &OperationError{Type: ErrorTypeDependency, Step: step, Message: message, DependsOn: dependsOn}
}

// NewExecutionError wraps a failure returned by a step's Execute
func NewExecutionError(step string, cause error, retryable bool) *OperationError {
	return &OperationError{
		Type:      ErrorTypeExecution,
		Step:      step,
		Message:   "step execution failed",
		Cause:     cause,
		Retryable: retryable,
	}
}

func NewTimeoutError(step string, timeout time.Duration) *OperationError {
	return &OperationError{
		Type:    ErrorTypeTimeout,
		Step:    step,
		Message: "step exceeded timeout of " + timeout.String(),
		Timeout: timeout,
	}
}

func NewCancellationError(step string) *OperationError {
	return &OperationError{Type: ErrorTypeCancellation, Step: step, Message: "operation was cancelled"}
}

// NewFatalError aborts a run before any step starts
func NewFatalError(message string, cause error) *OperationError {
	return &OperationError{Type: ErrorTypeFatal, Message: message, Cause: cause}
}

func operationError(err error) (*OperationError, bool) {
	var opErr *OperationError
	ok := errors.As(err, &opErr)
	return opErr, ok
}

// IsRetryable reports whether the first OperationError in err's chain may be
// attempted again.
func IsRetryable(err error) bool {
	opErr, ok := operationError(err)
	return ok && opErr.Retryable
}

// GetErrorType returns the type of the first OperationError in err's chain.
// Any other non-nil error counts as an execution error.
func GetErrorType(err error) ErrorType {
	if err == nil {
		return ""
	}
	if opErr, ok := operationError(err); ok {
		return opErr.Type
	}
	return ErrorTypeExecution
}

// WrapError ties err to step. An OperationError already in the chain gets
// its Step filled in place; any other error becomes a non-retryable
// execution error carrying message.
func WrapError(err error, step string, message string) error {
	if err == nil {
		return nil
	}
	if opErr, ok := operationError(err); ok {
		if opErr.Step == "" {
			opErr.Step = step
		}
		return err
	}
	return &OperationError{Type: ErrorTypeExecution, Step: step, Message: message, Cause: err}
}
