package consolebridge

import (
	"context"
	"iter"

	"github.com/opshell/console-bridge-go/internal/config"
	"github.com/opshell/console-bridge-go/internal/console"
)

// sessionWrapper wraps the internal session to adapt it to the public
// interface.
type sessionWrapper struct {
	impl *console.Session
}

// Compile-time check that *sessionWrapper implements the Session interface.
var _ Session = (*sessionWrapper)(nil)

// newSessionImpl builds the internal session from public options.
func newSessionImpl(opts []Option) Session {
	cfg := applyOptions(opts)

	log := cfg.Logger
	if log == nil {
		log = NopLogger()
		cfg.Logger = log
	}

	spawner := cfg.Spawner
	if spawner == nil {
		if cfg.UsePTY {
			spawner = console.NewPTYSpawner(log, cfg.Options)
		} else {
			spawner = console.NewExecSpawner(log, cfg.Options)
		}
	}

	return &sessionWrapper{impl: console.New(log, cfg.Options, spawner)}
}

// Start spawns the console process and begins executing queued commands.
func (s *sessionWrapper) Start() error {
	return s.impl.Start()
}

// Submit queues a command for execution and returns its future.
func (s *sessionWrapper) Submit(text string) (*Command, error) {
	return s.impl.Submit(text)
}

// Events yields the text of each command as it is written to the console.
func (s *sessionWrapper) Events(ctx context.Context) iter.Seq[string] {
	return func(yield func(string) bool) {
		for {
			select {
			case text := <-s.impl.Events():
				if !yield(text) {
					return
				}

			case <-ctx.Done():
				return

			case <-s.impl.Done():
				return
			}
		}
	}
}

// Close disposes the session.
func (s *sessionWrapper) Close() error {
	return s.impl.Close()
}

// sessionConfig carries the internal options plus public-only knobs.
type sessionConfig struct {
	*config.Options

	Spawner Spawner
}
