package errors

import (
	"errors"
	"fmt"
)

// ConsoleBridgeError is the base interface for all bridge errors.
type ConsoleBridgeError interface {
	error
	IsConsoleBridgeError() bool
}

// Compile-time verification that all error types implement ConsoleBridgeError.
var (
	_ ConsoleBridgeError = (*ConsoleNotFoundError)(nil)
	_ ConsoleBridgeError = (*SpawnError)(nil)
	_ ConsoleBridgeError = (*ConsoleExitError)(nil)
)

// Sentinel errors for commonly checked conditions.
var (
	// ErrSessionClosed indicates the session has been disposed and can no
	// longer accept or complete commands.
	ErrSessionClosed = errors.New("session terminated: sessions are single-use, create a new one with NewSession()")

	// ErrSessionNotStarted indicates Start has not been called yet.
	ErrSessionNotStarted = errors.New("session not started")

	// ErrSessionAlreadyStarted indicates Start was called twice.
	ErrSessionAlreadyStarted = errors.New("session already started")

	// ErrEmptyCommand indicates an empty command string was submitted.
	ErrEmptyCommand = errors.New("empty command")

	// ErrMultilineCommand indicates a submitted command contains a line
	// terminator. Commands must be a single line.
	ErrMultilineCommand = errors.New("command must be a single line")
)

// ConsoleNotFoundError indicates the platform console binary was not found.
type ConsoleNotFoundError struct {
	SearchedPaths []string
}

// NewConsoleNotFoundError creates a ConsoleNotFoundError.
func NewConsoleNotFoundError(searched []string) *ConsoleNotFoundError {
	return &ConsoleNotFoundError{SearchedPaths: searched}
}

func (e *ConsoleNotFoundError) Error() string {
	return fmt.Sprintf("console binary not found in: %v", e.SearchedPaths)
}

// IsConsoleBridgeError implements ConsoleBridgeError.
func (e *ConsoleNotFoundError) IsConsoleBridgeError() bool { return true }

// SpawnError indicates the console subprocess failed to start.
type SpawnError struct {
	Err error
}

// NewSpawnError creates a SpawnError wrapping err.
func NewSpawnError(err error) *SpawnError {
	return &SpawnError{Err: err}
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn console: %v", e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// IsConsoleBridgeError implements ConsoleBridgeError.
func (e *SpawnError) IsConsoleBridgeError() bool { return true }

// ConsoleExitError records an unexpected console subprocess exit.
type ConsoleExitError struct {
	ExitCode int
	Err      error
}

// NewConsoleExitError creates a ConsoleExitError.
func NewConsoleExitError(code int, err error) *ConsoleExitError {
	return &ConsoleExitError{ExitCode: code, Err: err}
}

func (e *ConsoleExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("console exited (code %d): %v", e.ExitCode, e.Err)
	}

	return fmt.Sprintf("console exited (code %d)", e.ExitCode)
}

func (e *ConsoleExitError) Unwrap() error {
	return e.Err
}

// IsConsoleBridgeError implements ConsoleBridgeError.
func (e *ConsoleExitError) IsConsoleBridgeError() bool { return true }
