package operations

import (
	"time"
)

// Step identifiers of a bundle run
const (
	StepIDDiscover    = "discover"
	StepIDCalendar    = "calendar"
	StepIDRegistry    = "registry"
	StepIDAlign       = "align"
	StepIDAdjustments = "adjustments"
	StepIDCommit      = "commit"
)

// Step names of a bundle run
const (
	StepNameDiscover    = "Feed Discovery"
	StepNameCalendar    = "Trading Calendar"
	StepNameRegistry    = "Symbol Registry"
	StepNameAlign       = "Bar Alignment"
	StepNameAdjustments = "Adjustment Extraction"
	StepNameCommit      = "Bundle Commit"
)

// Default timeouts
const (
	DefaultStepTimeout   = 30 * time.Minute
	DefaultCommitTimeout = 60 * time.Minute
)

// RetryConfig defines retry behavior for steps
type RetryConfig struct {
	MaxAttempts  int           `json:"max_attempts"`
	InitialDelay time.Duration `json:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay"`
	Multiplier   float64       `json:"multiplier"`
}

// NewRetryConfig returns the default retry configuration
func NewRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// OperationRequest asks the manager to run the registered steps
type OperationRequest struct {
	ID         string                 `json:"id"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

// OperationResponse summarises a finished run
type OperationResponse struct {
	ID       string                `json:"id"`
	Status   OperationStatusValue  `json:"status"`
	Duration time.Duration         `json:"duration"`
	Steps    map[string]*StepState `json:"steps"`
	Error    string                `json:"error,omitempty"`
}
