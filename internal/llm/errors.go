package llm

import (
	"errors"
	"fmt"
)

var (
	ErrCLINotFound = errors.New("claude CLI not found on PATH")
	ErrNoModels    = errors.New("no chat models configured")
)

// ProcessError is a failure reported by the model process. Message carries
// the CLI's own wording.
type ProcessError struct {
	Message  string
	ExitCode int
	Stderr   string
	Cause    error
}

func (e *ProcessError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("claude exited with code %d", e.ExitCode)
}

func (e *ProcessError) Unwrap() error {
	return e.Cause
}
