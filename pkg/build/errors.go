package build

import (
	"errors"
	"fmt"
)

// Common errors
var (
	// ErrWorkflowAlreadyExecuted is returned when Execute is called on a
	// workflow that has already left the Initialized state.
	ErrWorkflowAlreadyExecuted = errors.New("workflow already executed")

	// ErrWorkflowNotExecuted is returned by CollectArtifacts before Execute.
	ErrWorkflowNotExecuted = errors.New("workflow has not been executed")

	// ErrStepAlreadyExecuted is returned when a step instance is executed twice.
	ErrStepAlreadyExecuted = errors.New("step already executed")
)

// StepExecutionError reports that a step's command did not complete
// successfully or that an upload directive referenced a missing path.
type StepExecutionError struct {
	StepID string
	Cause  error
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("step %q failed: %v", e.StepID, e.Cause)
}

func (e *StepExecutionError) Unwrap() error {
	return e.Cause
}

// WorkflowAbortedError wraps the failure that stopped a workflow. Steps after
// StepIndex were never invoked.
type WorkflowAbortedError struct {
	StepIndex int    // index of the failing step, -1 when aborted between steps
	StepID    string // empty when aborted between steps
	Cause     error
}

func (e *WorkflowAbortedError) Error() string {
	if e.StepID == "" {
		return fmt.Sprintf("workflow aborted: %v", e.Cause)
	}
	return fmt.Sprintf("workflow aborted at step %d (%s): %v", e.StepIndex, e.StepID, e.Cause)
}

func (e *WorkflowAbortedError) Unwrap() error {
	return e.Cause
}

// UnknownFunctionError is returned when a step references a function id
// that is not registered.
type UnknownFunctionError struct {
	FunctionID string
	Available  []string
}

func (e *UnknownFunctionError) Error() string {
	return fmt.Sprintf("unknown function %q", e.FunctionID)
}

// ConfigurationError reports malformed step or function parameters, detected
// before any step runs.
type ConfigurationError struct {
	Field   string // e.g. "steps[2].with.scheme"
	Message string
	Cause   error
}

func (e *ConfigurationError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("configuration error: %s: %v", msg, e.Cause)
	}
	return "configuration error: " + msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}

func configErrorf(field, format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
