package console

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"
)

// Command is a queued console command paired with its future result.
//
// A Command is created by Session.Submit and resolved exactly once, either
// with the console's textual output (which may carry timeout or crash
// diagnostics) or with an error when the session is closed before the
// command completes.
type Command struct {
	id   string
	text string

	once   sync.Once
	done   chan struct{}
	output string
	err    error
}

func newCommand(text string) *Command {
	return &Command{
		id:   ulid.Make().String(),
		text: text,
		done: make(chan struct{}),
	}
}

// ID returns the unique identifier assigned at submission.
func (c *Command) ID() string {
	return c.id
}

// Text returns the command line as submitted.
func (c *Command) Text() string {
	return c.text
}

// Done returns a channel that is closed when the command has a result.
func (c *Command) Done() <-chan struct{} {
	return c.done
}

// Output blocks until the command resolves or ctx is done.
//
// Timeouts and console crashes resolve the command successfully with
// diagnostic text in the output, so downstream text-pattern error detection
// still sees them. An error is returned only if the session was closed
// before completion or ctx expired.
func (c *Command) Output(ctx context.Context) (string, error) {
	select {
	case <-c.done:
		return c.output, c.err

	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// resolve completes the command with output. Subsequent calls are no-ops.
func (c *Command) resolve(output string) {
	c.once.Do(func() {
		c.output = output
		close(c.done)
	})
}

// reject completes the command with an error. Subsequent calls are no-ops.
func (c *Command) reject(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
	})
}
