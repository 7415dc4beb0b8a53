package pipeline

import (
	"errors"
	"fmt"
	"time"
)

// Registry errors
var (
	ErrDuplicateComponent = errors.New("duplicate component")
	ErrUnknownComponent   = errors.New("unknown component")
	ErrInvalidTransition  = errors.New("invalid status transition")
)

// Recovery errors
var (
	ErrNoRecoveryStrategy  = errors.New("no recovery strategy registered")
	ErrDuplicateStrategy   = errors.New("recovery strategy already registered")
	ErrRecoveryCoolingDown = errors.New("recovery cooling down")
	ErrRecoveryInProgress  = errors.New("recovery already in progress")
	ErrNotFailed           = errors.New("component is not failed")
)

// Pipeline errors
var (
	ErrQueueOverflow      = errors.New("queue overflow, oldest item dropped")
	ErrPipelineRunning    = errors.New("pipeline already running")
	ErrPipelineNotRunning = errors.New("pipeline not running")
	ErrEmptyInput         = errors.New("empty input")
	ErrShutdownTimeout    = errors.New("shutdown timed out")
	ErrStageTimeout       = errors.New("stage timed out")
)

// StageError is a failure raised by a collaborator while an item was in a
// given stage. The item is discarded and the component reported as failed.
type StageError struct {
	Stage     Stage
	Component string
	ItemID    string
	Cause     error
	Timestamp time.Time
}

// NewStageError creates a new stage error
func NewStageError(stage Stage, component string, cause error) *StageError {
	return &StageError{
		Stage:     stage,
		Component: component,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed in %s: %v", e.Stage, e.Component, e.Cause)
}

func (e *StageError) Unwrap() error {
	return e.Cause
}

// RecoveryExhaustedError is returned once a component has used every recovery
// attempt of its episode. The component stays failed until a full recovery.
type RecoveryExhaustedError struct {
	Component string
	Attempts  int
}

func (e *RecoveryExhaustedError) Error() string {
	return fmt.Sprintf("recovery exhausted for %s after %d attempts", e.Component, e.Attempts)
}

// IsRecoveryExhausted reports whether err carries a RecoveryExhaustedError
func IsRecoveryExhausted(err error) bool {
	var exhausted *RecoveryExhaustedError
	return errors.As(err, &exhausted)
}
