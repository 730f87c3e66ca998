package console

import (
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/opshell/console-bridge-go/internal/cli"
	"github.com/opshell/console-bridge-go/internal/config"
	"github.com/opshell/console-bridge-go/internal/errors"
)

// Handle is a running console subprocess.
//
// A Handle exposes the streams and the exit notification the Session needs;
// the Session never touches os/exec directly. Fake handles back the tests.
type Handle interface {
	// Stdin is the console's writable input stream.
	Stdin() io.Writer

	// Stdout is the console's readable output stream.
	Stdout() io.Reader

	// Stderr is the console's readable error stream. May be empty for
	// pty-backed handles, which merge all output into Stdout.
	Stderr() io.Reader

	// Exited delivers the process exit code exactly once.
	Exited() <-chan int

	// Kill forcibly terminates the process. Safe to call on an already
	// terminated process.
	Kill() error
}

// Spawner starts console subprocesses.
type Spawner interface {
	Spawn() (Handle, error)
}

// ExecSpawner starts the console with os/exec and plain pipes.
type ExecSpawner struct {
	log  *slog.Logger
	opts *config.Options

	mu   sync.Mutex
	path string // cached discovery result
}

// Compile-time verification that ExecSpawner implements Spawner.
var _ Spawner = (*ExecSpawner)(nil)

// NewExecSpawner creates a pipe-based spawner. Binary discovery is deferred
// to the first Spawn call.
func NewExecSpawner(log *slog.Logger, opts *config.Options) *ExecSpawner {
	return &ExecSpawner{
		log:  log.With("component", "exec_spawner"),
		opts: opts,
	}
}

// Spawn discovers the console binary if needed and starts it with stdin,
// stdout, and stderr pipes.
func (s *ExecSpawner) Spawn() (Handle, error) {
	path, err := s.consolePath()
	if err != nil {
		return nil, err
	}

	//nolint:gosec // G204: launching the configured console binary is the point
	cmd := exec.Command(path, s.opts.ConsoleArgs...)
	cmd.Dir = s.opts.Cwd
	cmd.Env = cli.BuildEnvironment(s.opts)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &errors.SpawnError{Err: fmt.Errorf("stdin pipe: %w", err)}
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &errors.SpawnError{Err: fmt.Errorf("stdout pipe: %w", err)}
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &errors.SpawnError{Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		return nil, &errors.SpawnError{Err: fmt.Errorf("start process: %w", err)}
	}

	s.log.Info("Console subprocess started", "pid", cmd.Process.Pid, "path", path)

	h := &execHandle{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		exited: make(chan int, 1),
	}

	go h.wait()

	return h, nil
}

// consolePath resolves and caches the console binary location.
func (s *ExecSpawner) consolePath() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path != "" {
		return s.path, nil
	}

	discoverer := cli.NewDiscoverer(&cli.Config{
		ConsolePath:    s.opts.ConsolePath,
		ConsoleCommand: s.opts.ConsoleCommand,
		Logger:         s.log,
	})

	path, err := discoverer.Discover()
	if err != nil {
		return "", err
	}

	s.path = path

	return path, nil
}

// execHandle wraps an exec.Cmd with its pipes and exit notification.
type execHandle struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser
	exited chan int
}

func (h *execHandle) Stdin() io.Writer  { return h.stdin }
func (h *execHandle) Stdout() io.Reader { return h.stdout }
func (h *execHandle) Stderr() io.Reader { return h.stderr }

func (h *execHandle) Exited() <-chan int {
	return h.exited
}

func (h *execHandle) Kill() error {
	if h.cmd.Process == nil {
		return nil
	}

	return h.cmd.Process.Kill()
}

// wait reaps the process and publishes its exit code.
func (h *execHandle) wait() {
	err := h.cmd.Wait()

	code := 0

	if err != nil {
		code = -1
		if exitErr, ok := stderrors.AsType[*exec.ExitError](err); ok {
			code = exitErr.ExitCode()
		}
	}

	h.exited <- code
}
