package consolebridge

import "github.com/opshell/console-bridge-go/internal/errors"

// Re-export error types from internal package

// ConsoleNotFoundError indicates the platform console binary was not found.
type ConsoleNotFoundError = errors.ConsoleNotFoundError

// SpawnError indicates the console subprocess failed to start.
type SpawnError = errors.SpawnError

// ConsoleExitError records an unexpected console subprocess exit.
type ConsoleExitError = errors.ConsoleExitError

// ConsoleBridgeError is the base interface for all bridge errors.
type ConsoleBridgeError = errors.ConsoleBridgeError

// Re-export sentinel errors from internal package.
var (
	// ErrSessionClosed indicates the session has been disposed and can no
	// longer accept or complete commands.
	ErrSessionClosed = errors.ErrSessionClosed

	// ErrSessionNotStarted indicates Start has not been called yet.
	ErrSessionNotStarted = errors.ErrSessionNotStarted

	// ErrSessionAlreadyStarted indicates Start was called twice.
	ErrSessionAlreadyStarted = errors.ErrSessionAlreadyStarted

	// ErrEmptyCommand indicates an empty command string was submitted.
	ErrEmptyCommand = errors.ErrEmptyCommand

	// ErrMultilineCommand indicates a submitted command contains a line
	// terminator. Commands must be a single line.
	ErrMultilineCommand = errors.ErrMultilineCommand
)
