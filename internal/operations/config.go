package operations

import (
	"time"
)

// Config controls how the manager runs steps
type Config struct {
	// Per-step timeouts; steps not listed use DefaultStepTimeout
	StageTimeouts map[string]time.Duration `json:"stage_timeouts"`

	// Retry policy for steps that fail with a retryable error
	RetryConfig RetryConfig `json:"retry_config"`
}

// NewConfig returns the default operation configuration
func NewConfig() *Config {
	return &Config{
		StageTimeouts: map[string]time.Duration{
			StepIDCommit: DefaultCommitTimeout,
		},
		RetryConfig: NewRetryConfig(),
	}
}

// GetStageTimeout returns the timeout for a specific Step
func (c *Config) GetStageTimeout(stepID string) time.Duration {
	if timeout, ok := c.StageTimeouts[stepID]; ok && timeout > 0 {
		return timeout
	}
	return DefaultStepTimeout
}

// SetStageTimeout sets the timeout for a specific Step
func (c *Config) SetStageTimeout(stepID string, timeout time.Duration) {
	if c.StageTimeouts == nil {
		c.StageTimeouts = make(map[string]time.Duration)
	}
	c.StageTimeouts[stepID] = timeout
}
