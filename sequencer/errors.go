package sequencer

import (
	"errors"
	"fmt"
)

// ConfigErrorCode classifies a configuration error
type ConfigErrorCode string

const (
	ErrCodeChance     ConfigErrorCode = "CHANCE_RANGE"
	ErrCodeCondition  ConfigErrorCode = "BAD_CONDITION"
	ErrCodeStepLength ConfigErrorCode = "BAD_STEP_LENGTH"
	ErrCodeReset      ConfigErrorCode = "RESET_RANGE"
	ErrCodeChannel    ConfigErrorCode = "CHANNEL_RANGE"
	ErrCodeCCNumber   ConfigErrorCode = "CC_RANGE"
	ErrCodeMode       ConfigErrorCode = "BAD_MODE"
	ErrCodeLatency    ConfigErrorCode = "LATENCY_RANGE"
	ErrCodeStepIndex  ConfigErrorCode = "STEP_INDEX"
)

// ConfigError is a configuration value the sequencer refuses to run with
type ConfigError struct {
	Code    ConfigErrorCode
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Field, e.Message, e.Code)
}

// Errors for persisted state restores. A restore that fails with either
// leaves the live configuration untouched.
var (
	ErrVersionMismatch = errors.New("saved state version mismatch")
	ErrMalformedState  = errors.New("malformed saved state")
)
