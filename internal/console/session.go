package console

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/opshell/console-bridge-go/internal/config"
	"github.com/opshell/console-bridge-go/internal/errors"
)

// readChunkSize is the read buffer size for console output streams.
// Output is accumulated chunk-wise, not line-wise: completion detection
// depends only on cumulative buffer content, never on chunk boundaries.
const readChunkSize = 4096

// Session supervises a single interactive console subprocess.
//
// Commands are executed strictly in submission order, one at a time. The
// pump loop is the sole writer to the console's stdin; stream readers and
// the exit watcher only mutate session state under the mutex and signal the
// pump, which keeps command serialization free of any per-command locking.
//
// A Session is single-use: once Close is called it never spawns another
// process and rejects all further submissions.
type Session struct {
	log     *slog.Logger
	opts    *config.Options
	spawner Spawner

	mu       sync.Mutex
	queue    []*Command // head is the next (or currently executing) command
	inFlight *Command
	buf      strings.Builder // output since the last command boundary
	ready    bool
	handle   Handle
	gen      int // process generation; stale listeners compare and bail
	timer    *time.Timer
	started  bool
	closed   bool

	wake      chan struct{} // pump wake-up, buffered 1
	done      chan struct{}
	closeOnce sync.Once

	events chan string
}

// New creates a session driving consoles produced by spawner.
//
// The session is inert until Start is called. Pass NopLogger-style loggers
// for silent operation.
func New(log *slog.Logger, opts *config.Options, spawner Spawner) *Session {
	opts.Normalize()

	return &Session{
		log:     log.With("component", "console_session"),
		opts:    opts,
		spawner: spawner,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		events:  make(chan string, opts.EventBuffer),
	}
}

// Start spawns the first console process and launches the pump loop.
//
// Start does not wait for the console to become ready; submitted commands
// are queued until the ready marker is observed.
func (s *Session) Start() error {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()

		return errors.ErrSessionClosed
	}

	if s.started {
		s.mu.Unlock()

		return errors.ErrSessionAlreadyStarted
	}

	s.started = true
	s.mu.Unlock()

	s.spawn()

	go s.run()

	return nil
}

// Submit appends a command to the queue and returns its future result.
//
// Commands must be a single non-empty line. Submission never blocks;
// execution order is submission order.
func (s *Session) Submit(text string) (*Command, error) {
	if text == "" {
		return nil, errors.ErrEmptyCommand
	}

	if strings.ContainsAny(text, "\r\n") {
		return nil, errors.ErrMultilineCommand
	}

	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()

		return nil, errors.ErrSessionClosed
	}

	if !s.started {
		s.mu.Unlock()

		return nil, errors.ErrSessionNotStarted
	}

	cmd := newCommand(text)
	s.queue = append(s.queue, cmd)
	s.notifyLocked()
	s.mu.Unlock()

	s.log.Debug("Command queued", "command_id", cmd.ID(), "command", text)

	return cmd, nil
}

// Events returns the command-started event channel.
//
// Each value is the text of a command the moment it is written to the
// console. The feed is passive: events are dropped when no one is reading,
// and the channel is never closed; consumers should select against Done.
func (s *Session) Events() <-chan string {
	return s.events
}

// Done returns a channel closed when the session is disposed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close disposes the session: the console process is killed, respawns are
// suppressed forever, and every unresolved command is rejected with
// ErrSessionClosed. Close is idempotent and always returns nil.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()

		s.closed = true
		s.ready = false
		s.stopTimerLocked()

		pending := s.queue
		s.queue = nil

		if s.inFlight != nil && (len(pending) == 0 || pending[0] != s.inFlight) {
			pending = append([]*Command{s.inFlight}, pending...)
		}

		s.inFlight = nil

		h := s.handle
		s.handle = nil
		s.mu.Unlock()

		close(s.done)

		if h != nil {
			if err := h.Kill(); err != nil {
				s.log.Debug("Kill during close failed", "error", err)
			}
		}

		for _, cmd := range pending {
			cmd.reject(errors.ErrSessionClosed)
		}

		s.log.Info("Console session closed", "discarded_commands", len(pending))
	})

	return nil
}

// run is the pump loop: the only place where the next command is chosen and
// the only writer to the console's stdin.
func (s *Session) run() {
	defer s.log.Debug("Pump loop stopped")

	for {
		s.mu.Lock()

		if s.closed {
			s.mu.Unlock()

			return
		}

		var (
			cmd   *Command
			stdin io.Writer
		)

		if s.ready && s.inFlight == nil && len(s.queue) > 0 && s.handle != nil {
			cmd = s.queue[0]
			s.buf.Reset()
			s.inFlight = cmd
			stdin = s.handle.Stdin()
		}

		s.mu.Unlock()

		if cmd == nil {
			select {
			case <-s.wake:
				continue

			case <-s.done:
				return
			}
		}

		s.emit(cmd.Text())
		s.log.Debug("Writing command to console", "command_id", cmd.ID(), "command", cmd.Text())

		if _, err := io.WriteString(stdin, cmd.Text()+"\n"); err != nil {
			// The exit watcher or the command timer will recover; the
			// command stays in flight until then.
			s.log.Warn("Failed to write command to console", "command_id", cmd.ID(), "error", err)
		}

		s.armTimer(cmd)

		select {
		case <-cmd.Done():

		case <-s.done:
			return
		}
	}
}

// spawn replaces the console process: the previous handle is detached and
// killed, then a new process is started and its listeners attached.
// No-op once the session is closed. Spawn failures schedule another attempt
// after the respawn delay, without limit.
//
// The generation counter advances before the old process is killed so its
// listeners are already stale when the kill-induced exit event arrives.
func (s *Session) spawn() {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()

		return
	}

	s.gen++
	gen := s.gen
	old := s.handle
	s.handle = nil
	s.ready = false
	s.mu.Unlock()

	if old != nil {
		if err := old.Kill(); err != nil {
			s.log.Debug("Kill of previous console failed", "error", err)
		}
	}

	h, err := s.spawner.Spawn()
	if err != nil {
		s.log.Error("Console spawn failed; retrying", "error", err, "retry_in", s.opts.RespawnDelay)
		time.AfterFunc(s.opts.RespawnDelay, s.spawn)

		return
	}

	s.mu.Lock()

	if s.closed || s.gen != gen {
		s.mu.Unlock()

		_ = h.Kill()

		return
	}

	s.handle = h
	s.mu.Unlock()

	go s.readStream(gen, h.Stdout())
	go s.readStream(gen, h.Stderr())
	go s.watchExit(gen, h)

	s.notify()
}

// readStream pumps one output stream into the demultiplexer until EOF.
// Used for both stdout and stderr: stderr is informational, not an error.
func (s *Session) readStream(gen int, r io.Reader) {
	buf := make([]byte, readChunkSize)

	for {
		n, err := r.Read(buf)
		if n > 0 {
			s.ingest(gen, string(buf[:n]))
		}

		if err != nil {
			return
		}
	}
}

// ingest feeds stream data into the buffer unless the producing process has
// already been replaced.
func (s *Session) ingest(gen int, data string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || gen != s.gen {
		return
	}

	s.feedLocked(data)
}

// feedLocked appends data to the output buffer, flips readiness when the
// ready marker appears, and resolves the in-flight command when the buffer
// contains the completion sentinel. Caller holds s.mu.
func (s *Session) feedLocked(data string) {
	s.buf.WriteString(data)

	if !s.ready && strings.Contains(s.buf.String(), s.opts.ReadyMarker) {
		s.log.Debug("Console is ready")
		s.ready = true
		s.notifyLocked()
	}

	if s.inFlight == nil {
		return
	}

	idx := strings.Index(s.buf.String(), s.opts.Sentinel)
	if idx < 0 {
		return
	}

	result := strings.TrimSpace(s.buf.String()[:idx+len(s.opts.Sentinel)])
	s.buf.Reset()

	cmd := s.inFlight
	s.inFlight = nil
	s.stopTimerLocked()

	if len(s.queue) > 0 && s.queue[0] == cmd {
		s.queue = s.queue[1:]
	}

	s.notifyLocked()

	s.log.Debug("Command completed", "command_id", cmd.ID(), "output_len", len(result))
	cmd.resolve(result)
}

// watchExit translates a process exit into session state changes per the
// recovery policy: crash respawns immediately with a diagnostic appended to
// the buffer, clean exit respawns after a short delay, and nothing happens
// after disposal.
func (s *Session) watchExit(gen int, h Handle) {
	var code int

	select {
	case code = <-h.Exited():

	case <-s.done:
		return
	}

	s.mu.Lock()

	if s.closed || gen != s.gen {
		s.mu.Unlock()

		return
	}

	s.ready = false
	s.notifyLocked()

	if code != 0 {
		exitErr := errors.NewConsoleExitError(code, nil)
		s.buf.WriteString(fmt.Sprintf("\n[%s; restarting]\n", exitErr))
		s.mu.Unlock()

		s.log.Warn("Console crashed; respawning immediately", "exit_code", code)
		s.spawn()

		return
	}

	s.mu.Unlock()

	s.log.Info("Console exited cleanly; respawning after delay", "delay", s.opts.RespawnDelay)
	time.AfterFunc(s.opts.RespawnDelay, s.spawn)
}

// armTimer starts the per-command timeout for cmd, unless it already
// resolved.
func (s *Session) armTimer(cmd *Command) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.inFlight != cmd {
		return
	}

	s.stopTimerLocked()
	s.timer = time.AfterFunc(s.opts.CommandTimeout, func() {
		s.onCommandTimeout(cmd)
	})
}

// stopTimerLocked cancels the pending command timer. Caller holds s.mu.
func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// onCommandTimeout forces a respawn and synthesizes a sentinel-terminated
// diagnostic so the blocked future resolves through the normal demultiplexer
// path instead of hanging forever.
func (s *Session) onCommandTimeout(cmd *Command) {
	s.mu.Lock()

	if s.closed || s.inFlight != cmd {
		s.mu.Unlock()

		return
	}

	s.mu.Unlock()

	s.log.Warn("Command timed out; restarting console",
		"command_id", cmd.ID(),
		"command", cmd.Text(),
		"timeout", s.opts.CommandTimeout,
	)

	s.spawn()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.inFlight != cmd {
		return
	}

	s.feedLocked(fmt.Sprintf(
		"\n[command timed out after %s; console restarted]\n%s",
		s.opts.CommandTimeout, s.opts.Sentinel,
	))
}

// emit publishes a command-started event without ever blocking the pump.
func (s *Session) emit(text string) {
	select {
	case s.events <- text:

	default:
		s.log.Debug("Dropping command-started event; feed is full", "command", text)
	}
}

// notify wakes the pump loop.
func (s *Session) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// notifyLocked is notify for callers already holding s.mu; the channel send
// never blocks so holding the lock is safe.
func (s *Session) notifyLocked() {
	s.notify()
}
