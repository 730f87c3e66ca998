package consolebridge

import (
	"context"
	"iter"

	"github.com/opshell/console-bridge-go/internal/console"
)

// Command is the future for a submitted console command. Its Output method
// blocks until the command completes, fails, or the context is done.
type Command = console.Command

// Handle is a live console subprocess as seen by the session: writable
// standard input, readable output streams, and exit notification.
type Handle = console.Handle

// Spawner produces console subprocess handles. Provide a custom Spawner via
// WithSpawner to run the session against something other than a local
// executable.
type Spawner = console.Spawner

// Session supervises a single interactive platform console subprocess.
//
// Submitted commands execute strictly in submission order, one at a time.
// The session transparently replaces consoles that crash, exit, or stop
// responding; callers never deal with process lifecycle.
//
// Lifecycle: Sessions are single-use. After Close(), create a new session
// with NewSession().
type Session interface {
	// Start spawns the console process and begins executing queued
	// commands once the console reports ready. Must be called before
	// Submit. Returns ErrSessionAlreadyStarted on repeated calls.
	Start() error

	// Submit queues a command for execution and returns its future.
	// The command must be a single non-empty line. Submit never blocks
	// on console availability.
	// Returns ErrSessionClosed after disposal.
	Submit(text string) (*Command, error)

	// Events yields the text of each command as it is written to the
	// console. The sequence ends when ctx is done or the session is
	// closed. Events are dropped, not buffered indefinitely, when no
	// consumer is pulling.
	Events(ctx context.Context) iter.Seq[string]

	// Close disposes the session: the console is killed, respawns stop,
	// and all unresolved commands are rejected with ErrSessionClosed.
	// Idempotent; always returns nil.
	Close() error
}

// NewSession creates a console session with the given options.
// The session is inert until Start is called.
func NewSession(opts ...Option) Session {
	return newSessionImpl(opts)
}
