package console

import (
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/creack/pty"

	"github.com/opshell/console-bridge-go/internal/cli"
	"github.com/opshell/console-bridge-go/internal/config"
	"github.com/opshell/console-bridge-go/internal/errors"
)

// PTYSpawner starts the console under a pseudo-terminal.
//
// Some platform consoles only print their interactive prompt when attached
// to a terminal; for those the automation env marker alone is not enough.
// Stdout and stderr are merged into the single pty stream.
type PTYSpawner struct {
	log  *slog.Logger
	opts *config.Options
	exec *ExecSpawner // reused for binary discovery
}

// Compile-time verification that PTYSpawner implements Spawner.
var _ Spawner = (*PTYSpawner)(nil)

// NewPTYSpawner creates a pty-based spawner.
func NewPTYSpawner(log *slog.Logger, opts *config.Options) *PTYSpawner {
	return &PTYSpawner{
		log:  log.With("component", "pty_spawner"),
		opts: opts,
		exec: NewExecSpawner(log, opts),
	}
}

// Spawn starts the console attached to a new pty.
func (s *PTYSpawner) Spawn() (Handle, error) {
	path, err := s.exec.consolePath()
	if err != nil {
		return nil, err
	}

	//nolint:gosec // G204: launching the configured console binary is the point
	cmd := exec.Command(path, s.opts.ConsoleArgs...)
	cmd.Dir = s.opts.Cwd
	cmd.Env = cli.BuildEnvironment(s.opts)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: 40, Cols: 120})
	if err != nil {
		return nil, &errors.SpawnError{Err: fmt.Errorf("start pty: %w", err)}
	}

	s.log.Info("Console subprocess started under pty", "pid", cmd.Process.Pid, "path", path)

	h := &ptyHandle{
		cmd:    cmd,
		ptmx:   ptmx,
		exited: make(chan int, 1),
	}

	go h.wait()

	return h, nil
}

// ptyHandle wraps an exec.Cmd whose I/O flows through a single pty file.
type ptyHandle struct {
	cmd    *exec.Cmd
	ptmx   *os.File
	exited chan int
}

func (h *ptyHandle) Stdin() io.Writer  { return h.ptmx }
func (h *ptyHandle) Stdout() io.Reader { return h.ptmx }

// Stderr is empty: the pty merges all child output into Stdout.
func (h *ptyHandle) Stderr() io.Reader { return strings.NewReader("") }

func (h *ptyHandle) Exited() <-chan int {
	return h.exited
}

func (h *ptyHandle) Kill() error {
	if h.cmd.Process != nil {
		if err := h.cmd.Process.Kill(); err != nil {
			return err
		}
	}

	return h.ptmx.Close()
}

func (h *ptyHandle) wait() {
	err := h.cmd.Wait()

	code := 0

	if err != nil {
		code = -1
		if exitErr, ok := stderrors.AsType[*exec.ExitError](err); ok {
			code = exitErr.ExitCode()
		}
	}

	_ = h.ptmx.Close()
	h.exited <- code
}
