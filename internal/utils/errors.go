package utils

import (
	"errors"
	"fmt"
)

// Exit codes returned by the CLI.
const (
	ExitOK      = 0
	ExitRuntime = 1
	ExitInput   = 2
)

// AppError wraps the failing stage, a human-facing message, and the cause.
type AppError struct {
	Op  string
	Msg string
	Err error
	// Input marks failures caused by the supplied data or configuration rather
	// than the runtime environment.
	Input bool
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError constructs an AppError for a runtime failure.
func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err}
}

// NewInputError constructs an AppError for invalid input data or configuration.
func NewInputError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err, Input: true}
}

// ExitCode picks the process exit status for err.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Input {
		return ExitInput
	}
	return ExitRuntime
}
