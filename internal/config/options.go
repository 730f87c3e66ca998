// Package config provides configuration types for the console bridge.
package config

import (
	"log/slog"
	"time"
)

const (
	// DefaultReadyMarker is the prompt string the console prints when it is
	// ready to accept the next command.
	DefaultReadyMarker = "console>"

	// DefaultSentinel is the out-of-band marker the console emits at the end
	// of each command's output.
	DefaultSentinel = "___CMD_COMPLETE___"

	// DefaultCommandTimeout bounds how long a single command may run before
	// the console is restarted and a timeout diagnostic is synthesized.
	DefaultCommandTimeout = 30 * time.Second

	// DefaultRespawnDelay is the pause before respawning after a clean exit
	// or a failed spawn attempt. It prevents tight respawn loops when the
	// console is repeatedly terminated externally.
	DefaultRespawnDelay = 1 * time.Second

	// DefaultEventBuffer is the capacity of the command-started event channel.
	// Events beyond this are dropped rather than blocking the pump loop.
	DefaultEventBuffer = 16

	// AutomationEnvVar marks the console invocation as programmatic so the
	// child skips interactive-only behaviors (pagers, color, extra prompts).
	AutomationEnvVar = "PLATFORM_CONSOLE_AUTOMATION"
)

// Options holds the full configuration for a console session.
type Options struct {
	// Logger receives structured debug/info/warn/error output.
	// Nil means silent operation.
	Logger *slog.Logger

	// ConsolePath is an explicit path to the console binary.
	// If empty, the binary is discovered via PATH and common locations.
	ConsolePath string

	// ConsoleCommand is the binary name searched for when ConsolePath is
	// empty. Defaults to "platformctl".
	ConsoleCommand string

	// ConsoleArgs are passed to the console binary on every spawn.
	ConsoleArgs []string

	// Env holds additional environment variables for the console process.
	Env map[string]string

	// Cwd is the console's working directory. Empty means inherit.
	Cwd string

	// ReadyMarker gates command writes after a (re)spawn.
	ReadyMarker string

	// Sentinel delimits one command's output from the next.
	Sentinel string

	// CommandTimeout is the per-command execution deadline.
	CommandTimeout time.Duration

	// RespawnDelay is the pause before respawning after a clean exit or a
	// failed spawn.
	RespawnDelay time.Duration

	// EventBuffer is the capacity of the command-started event channel.
	EventBuffer int

	// UsePTY runs the console under a pseudo-terminal instead of pipes, for
	// consoles that refuse to prompt without a controlling terminal.
	UsePTY bool
}

// Normalize fills in defaults for unset fields and returns the receiver.
func (o *Options) Normalize() *Options {
	if o.ConsoleCommand == "" {
		o.ConsoleCommand = "platformctl"
	}

	if o.ReadyMarker == "" {
		o.ReadyMarker = DefaultReadyMarker
	}

	if o.Sentinel == "" {
		o.Sentinel = DefaultSentinel
	}

	if o.CommandTimeout <= 0 {
		o.CommandTimeout = DefaultCommandTimeout
	}

	if o.RespawnDelay <= 0 {
		o.RespawnDelay = DefaultRespawnDelay
	}

	if o.EventBuffer <= 0 {
		o.EventBuffer = DefaultEventBuffer
	}

	return o
}
