package consolebridge

import (
	"log/slog"
	"time"

	"github.com/opshell/console-bridge-go/internal/config"
)

// Option configures a Session using the functional options pattern.
type Option func(*sessionConfig)

// applyOptions applies functional options over a fresh configuration.
func applyOptions(opts []Option) *sessionConfig {
	cfg := &sessionConfig{Options: &config.Options{}}
	for _, opt := range opts {
		opt(cfg)
	}

	return cfg
}

// WithLogger sets the logger for debug output.
// If not set, logging is disabled (silent operation).
func WithLogger(logger *slog.Logger) Option {
	return func(c *sessionConfig) {
		c.Logger = logger
	}
}

// WithConsolePath sets an explicit path to the console binary, skipping
// discovery.
func WithConsolePath(path string) Option {
	return func(c *sessionConfig) {
		c.ConsolePath = path
	}
}

// WithConsoleCommand sets the binary name searched for during discovery.
// Defaults to "platformctl".
func WithConsoleCommand(name string) Option {
	return func(c *sessionConfig) {
		c.ConsoleCommand = name
	}
}

// WithConsoleArgs sets arguments passed to the console on every spawn.
func WithConsoleArgs(args ...string) Option {
	return func(c *sessionConfig) {
		c.ConsoleArgs = args
	}
}

// WithEnv sets additional environment variables for the console process.
func WithEnv(env map[string]string) Option {
	return func(c *sessionConfig) {
		c.Env = env
	}
}

// WithCwd sets the console's working directory.
func WithCwd(cwd string) Option {
	return func(c *sessionConfig) {
		c.Cwd = cwd
	}
}

// WithReadyMarker sets the prompt string that signals the console is ready
// for input after a spawn.
func WithReadyMarker(marker string) Option {
	return func(c *sessionConfig) {
		c.ReadyMarker = marker
	}
}

// WithSentinel sets the completion marker the console emits after each
// command's output.
func WithSentinel(sentinel string) Option {
	return func(c *sessionConfig) {
		c.Sentinel = sentinel
	}
}

// WithCommandTimeout sets the per-command execution deadline. A command
// exceeding it resolves with a timeout diagnostic and the console is
// restarted.
func WithCommandTimeout(d time.Duration) Option {
	return func(c *sessionConfig) {
		c.CommandTimeout = d
	}
}

// WithRespawnDelay sets the pause before respawning after a clean console
// exit or a failed spawn attempt.
func WithRespawnDelay(d time.Duration) Option {
	return func(c *sessionConfig) {
		c.RespawnDelay = d
	}
}

// WithEventBuffer sets the capacity of the command-started event channel.
func WithEventBuffer(n int) Option {
	return func(c *sessionConfig) {
		c.EventBuffer = n
	}
}

// WithPTY runs the console under a pseudo-terminal instead of pipes.
// Use this for consoles that refuse to print their prompt without a
// controlling terminal.
func WithPTY() Option {
	return func(c *sessionConfig) {
		c.UsePTY = true
	}
}

// WithSpawner replaces the process-spawning primitive entirely. Intended
// for tests and for driving remote consoles.
func WithSpawner(spawner Spawner) Option {
	return func(c *sessionConfig) {
		c.Spawner = spawner
	}
}
