package console

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opshell/console-bridge-go/internal/config"
	"github.com/opshell/console-bridge-go/internal/errors"
)

// fakeHandle is an in-memory console process. Tests script its output and
// exit events directly and observe stdin writes through a channel.
type fakeHandle struct {
	writes chan string
	exited chan int

	outR *io.PipeReader
	outW *io.PipeWriter
	errR *io.PipeReader
	errW *io.PipeWriter

	killOnce sync.Once
	killed   chan struct{}
}

func newFakeHandle() *fakeHandle {
	h := &fakeHandle{
		writes: make(chan string, 64),
		exited: make(chan int, 4),
		killed: make(chan struct{}),
	}
	h.outR, h.outW = io.Pipe()
	h.errR, h.errW = io.Pipe()

	return h
}

func (h *fakeHandle) Stdin() io.Writer  { return fakeStdin{h} }
func (h *fakeHandle) Stdout() io.Reader { return h.outR }
func (h *fakeHandle) Stderr() io.Reader { return h.errR }

func (h *fakeHandle) Exited() <-chan int { return h.exited }

func (h *fakeHandle) Kill() error {
	h.killOnce.Do(func() {
		close(h.killed)
		h.outW.Close()
		h.errW.Close()
	})

	return nil
}

// print emits text on the fake console's stdout.
func (h *fakeHandle) print(t *testing.T, text string) {
	t.Helper()

	_, err := h.outW.Write([]byte(text))
	require.NoError(t, err)
}

// printStderr emits text on the fake console's stderr.
func (h *fakeHandle) printStderr(t *testing.T, text string) {
	t.Helper()

	_, err := h.errW.Write([]byte(text))
	require.NoError(t, err)
}

// exit simulates the console process terminating with the given code.
func (h *fakeHandle) exit(code int) {
	h.exited <- code
}

// awaitWrite returns the next line written to the fake console's stdin.
func (h *fakeHandle) awaitWrite(t *testing.T) string {
	t.Helper()

	select {
	case w := <-h.writes:
		return w

	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a console stdin write")

		return ""
	}
}

// requireNoWrite asserts nothing is written to stdin within the window.
func (h *fakeHandle) requireNoWrite(t *testing.T, window time.Duration) {
	t.Helper()

	select {
	case w := <-h.writes:
		t.Fatalf("unexpected console stdin write: %q", w)

	case <-time.After(window):
	}
}

type fakeStdin struct {
	h *fakeHandle
}

func (w fakeStdin) Write(p []byte) (int, error) {
	w.h.writes <- string(p)

	return len(p), nil
}

// fakeSpawner hands out fakeHandles and counts spawn attempts. The first
// failures attempts return a SpawnError.
type fakeSpawner struct {
	mu       sync.Mutex
	handles  []*fakeHandle
	attempts int
	failures int
}

func (f *fakeSpawner) Spawn() (Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.attempts++

	if f.attempts <= f.failures {
		return nil, errors.NewSpawnError(fmt.Errorf("spawn attempt %d refused", f.attempts))
	}

	h := newFakeHandle()
	f.handles = append(f.handles, h)

	return h, nil
}

func (f *fakeSpawner) spawnCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.attempts
}

// handle blocks until the i-th (zero-based) spawned handle exists.
func (f *fakeSpawner) handle(t *testing.T, i int) *fakeHandle {
	t.Helper()

	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()

		return len(f.handles) > i
	}, 2*time.Second, 5*time.Millisecond, "handle %d never spawned", i)

	f.mu.Lock()
	defer f.mu.Unlock()

	return f.handles[i]
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOptions() *config.Options {
	return &config.Options{
		ReadyMarker:    "console>",
		Sentinel:       config.DefaultSentinel,
		CommandTimeout: 2 * time.Second,
		RespawnDelay:   25 * time.Millisecond,
	}
}

// newTestSession builds and starts a session around sp with fast test
// timings, applying any option mutations first.
func newTestSession(t *testing.T, sp *fakeSpawner, mutate ...func(*config.Options)) *Session {
	t.Helper()

	opts := testOptions()
	for _, m := range mutate {
		m(opts)
	}

	s := New(testLogger(), opts, sp)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Start())

	return s
}

// awaitOutput resolves a command future with a test-scoped deadline.
func awaitOutput(t *testing.T, cmd *Command) string {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	out, err := cmd.Output(ctx)
	require.NoError(t, err)

	return out
}

// TestSession_StartTwice tests that a session can only be started once.
func TestSession_StartTwice(t *testing.T) {
	sp := &fakeSpawner{}
	s := newTestSession(t, sp)

	err := s.Start()
	require.ErrorIs(t, err, errors.ErrSessionAlreadyStarted)
}

// TestSession_SubmitBeforeStart tests that submission requires Start.
func TestSession_SubmitBeforeStart(t *testing.T) {
	s := New(testLogger(), testOptions(), &fakeSpawner{})
	defer s.Close()

	_, err := s.Submit("service list")
	require.ErrorIs(t, err, errors.ErrSessionNotStarted)
}

// TestSession_SubmitValidation tests rejection of empty and multiline input.
func TestSession_SubmitValidation(t *testing.T) {
	sp := &fakeSpawner{}
	s := newTestSession(t, sp)

	_, err := s.Submit("")
	require.ErrorIs(t, err, errors.ErrEmptyCommand)

	_, err = s.Submit("service list\nservice status web")
	require.ErrorIs(t, err, errors.ErrMultilineCommand)

	_, err = s.Submit("service\rlist")
	require.ErrorIs(t, err, errors.ErrMultilineCommand)
}

// TestSession_WaitsForReadyMarker tests that no command is written before
// the console prints its interactive prompt.
func TestSession_WaitsForReadyMarker(t *testing.T) {
	sp := &fakeSpawner{}
	s := newTestSession(t, sp)
	h := sp.handle(t, 0)

	_, err := s.Submit("service list")
	require.NoError(t, err)

	h.requireNoWrite(t, 50*time.Millisecond)

	h.print(t, "platform console 3.2\nconsole> ")

	require.Equal(t, "service list\n", h.awaitWrite(t))
}

// TestSession_FIFOOrder tests that commands execute strictly in submission
// order, one at a time.
func TestSession_FIFOOrder(t *testing.T) {
	sp := &fakeSpawner{}
	s := newTestSession(t, sp)
	h := sp.handle(t, 0)

	first, err := s.Submit("service list")
	require.NoError(t, err)

	second, err := s.Submit("service status web")
	require.NoError(t, err)

	third, err := s.Submit("service status db")
	require.NoError(t, err)

	h.print(t, "console> ")

	require.Equal(t, "service list\n", h.awaitWrite(t))
	h.requireNoWrite(t, 30*time.Millisecond)

	h.print(t, "web\ndb\n"+config.DefaultSentinel+"\n")
	require.Contains(t, awaitOutput(t, first), "web\ndb")

	require.Equal(t, "service status web\n", h.awaitWrite(t))
	h.print(t, "web: running\n"+config.DefaultSentinel+"\n")
	require.Contains(t, awaitOutput(t, second), "web: running")

	require.Equal(t, "service status db\n", h.awaitWrite(t))
	h.print(t, "db: stopped\n"+config.DefaultSentinel+"\n")
	require.Contains(t, awaitOutput(t, third), "db: stopped")
}

// TestSession_ChunkBoundaries tests that completion detection is unaffected
// by how the console's output is split into read chunks.
func TestSession_ChunkBoundaries(t *testing.T) {
	sp := &fakeSpawner{}
	s := newTestSession(t, sp)
	h := sp.handle(t, 0)

	h.print(t, "console> ")

	cmd, err := s.Submit("service list")
	require.NoError(t, err)

	require.Equal(t, "service list\n", h.awaitWrite(t))

	// One byte at a time, sentinel included.
	payload := "web\n" + config.DefaultSentinel
	for i := range len(payload) {
		h.print(t, payload[i:i+1])
	}

	out := awaitOutput(t, cmd)
	require.Contains(t, out, "web")
	require.Contains(t, out, config.DefaultSentinel)
}

// TestSession_StderrContributesOutput tests that stderr text flows into
// command results alongside stdout.
func TestSession_StderrContributesOutput(t *testing.T) {
	sp := &fakeSpawner{}
	s := newTestSession(t, sp)
	h := sp.handle(t, 0)

	h.print(t, "console> ")

	cmd, err := s.Submit("service restart web")
	require.NoError(t, err)

	require.Equal(t, "service restart web\n", h.awaitWrite(t))

	h.printStderr(t, "warning: slow shutdown\n")
	h.print(t, "restarted\n"+config.DefaultSentinel+"\n")

	out := awaitOutput(t, cmd)
	require.Contains(t, out, "restarted")
}

// TestSession_CommandTimeout tests that a hung command forces a respawn and
// resolves with a diagnostic instead of hanging forever.
func TestSession_CommandTimeout(t *testing.T) {
	sp := &fakeSpawner{}
	s := newTestSession(t, sp, func(o *config.Options) {
		o.CommandTimeout = 100 * time.Millisecond
	})
	h := sp.handle(t, 0)

	h.print(t, "console> ")

	cmd, err := s.Submit("service hang")
	require.NoError(t, err)

	require.Equal(t, "service hang\n", h.awaitWrite(t))

	// Never print a sentinel; the timer has to rescue the future.
	out := awaitOutput(t, cmd)
	require.Contains(t, out, "timed out")
	require.Contains(t, out, config.DefaultSentinel)

	require.Equal(t, 2, sp.spawnCount())

	// The replacement console still executes new work.
	h2 := sp.handle(t, 1)
	h2.print(t, "console> ")

	next, err := s.Submit("service list")
	require.NoError(t, err)

	require.Equal(t, "service list\n", h2.awaitWrite(t))
	h2.print(t, "web\n"+config.DefaultSentinel+"\n")
	require.Contains(t, awaitOutput(t, next), "web")
}

// TestSession_CrashRecovery tests that a non-zero exit while idle causes
// exactly one immediate respawn and execution continues.
func TestSession_CrashRecovery(t *testing.T) {
	sp := &fakeSpawner{}
	s := newTestSession(t, sp)
	h := sp.handle(t, 0)

	h.print(t, "console> ")
	h.exit(2)

	h2 := sp.handle(t, 1)
	require.Equal(t, 2, sp.spawnCount())

	h2.print(t, "console> ")

	cmd, err := s.Submit("service list")
	require.NoError(t, err)

	require.Equal(t, "service list\n", h2.awaitWrite(t))
	h2.print(t, "web\n"+config.DefaultSentinel+"\n")
	require.Contains(t, awaitOutput(t, cmd), "web")
}

// TestSession_CrashWithInFlightCommand tests that a crash mid-command leaves
// the future pending until the command timer rescues it, with the crash
// diagnostic visible in the resolved output.
func TestSession_CrashWithInFlightCommand(t *testing.T) {
	sp := &fakeSpawner{}
	s := newTestSession(t, sp, func(o *config.Options) {
		o.CommandTimeout = 150 * time.Millisecond
	})
	h := sp.handle(t, 0)

	h.print(t, "console> ")

	cmd, err := s.Submit("service restart web")
	require.NoError(t, err)

	require.Equal(t, "service restart web\n", h.awaitWrite(t))

	h.print(t, "stopping web...\n")
	h.exit(3)

	sp.handle(t, 1).print(t, "console> ")

	out := awaitOutput(t, cmd)
	require.Contains(t, out, "stopping web...")
	require.Contains(t, out, "console exited (code 3)")
	require.Contains(t, out, "timed out")
}

// TestSession_CleanExitRespawnsAfterDelay tests that a zero exit respawns
// only after the configured delay.
func TestSession_CleanExitRespawnsAfterDelay(t *testing.T) {
	sp := &fakeSpawner{}
	s := newTestSession(t, sp, func(o *config.Options) {
		o.RespawnDelay = 150 * time.Millisecond
	})
	defer s.Close()

	h := sp.handle(t, 0)
	h.print(t, "console> ")
	h.exit(0)

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, sp.spawnCount())

	require.Eventually(t, func() bool {
		return sp.spawnCount() == 2
	}, 2*time.Second, 10*time.Millisecond)
}

// TestSession_SpawnFailureRetries tests that failed spawn attempts are
// retried until one succeeds.
func TestSession_SpawnFailureRetries(t *testing.T) {
	sp := &fakeSpawner{failures: 2}
	s := newTestSession(t, sp)
	h := sp.handle(t, 0)

	require.Equal(t, 3, sp.spawnCount())

	h.print(t, "console> ")

	cmd, err := s.Submit("service list")
	require.NoError(t, err)

	require.Equal(t, "service list\n", h.awaitWrite(t))
	h.print(t, "web\n"+config.DefaultSentinel+"\n")
	require.Contains(t, awaitOutput(t, cmd), "web")
}

// TestSession_NoRespawnAfterClose tests that exit events after disposal do
// not trigger new spawns.
func TestSession_NoRespawnAfterClose(t *testing.T) {
	sp := &fakeSpawner{}
	s := newTestSession(t, sp)
	h := sp.handle(t, 0)

	h.print(t, "console> ")

	require.NoError(t, s.Close())

	h.exit(2)

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 1, sp.spawnCount())
}

// TestSession_CloseIdempotent tests that disposal is safe to repeat.
func TestSession_CloseIdempotent(t *testing.T) {
	sp := &fakeSpawner{}
	s := newTestSession(t, sp)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

// TestSession_CloseRejectsPending tests that every queued and in-flight
// command is rejected on disposal.
func TestSession_CloseRejectsPending(t *testing.T) {
	sp := &fakeSpawner{}
	s := newTestSession(t, sp)
	h := sp.handle(t, 0)

	h.print(t, "console> ")

	inFlight, err := s.Submit("service hang")
	require.NoError(t, err)

	require.Equal(t, "service hang\n", h.awaitWrite(t))

	queued, err := s.Submit("service list")
	require.NoError(t, err)

	require.NoError(t, s.Close())

	ctx := context.Background()

	_, err = inFlight.Output(ctx)
	require.ErrorIs(t, err, errors.ErrSessionClosed)

	_, err = queued.Output(ctx)
	require.ErrorIs(t, err, errors.ErrSessionClosed)
}

// TestSession_SubmitAfterClose tests rejection of submissions to a disposed
// session.
func TestSession_SubmitAfterClose(t *testing.T) {
	sp := &fakeSpawner{}
	s := newTestSession(t, sp)

	require.NoError(t, s.Close())

	_, err := s.Submit("service list")
	require.ErrorIs(t, err, errors.ErrSessionClosed)
}

// TestSession_Events tests that each dispatched command is announced on the
// event feed before it completes.
func TestSession_Events(t *testing.T) {
	sp := &fakeSpawner{}
	s := newTestSession(t, sp)
	h := sp.handle(t, 0)

	h.print(t, "console> ")

	cmd, err := s.Submit("service status web")
	require.NoError(t, err)

	select {
	case got := <-s.Events():
		require.Equal(t, "service status web", got)

	case <-time.After(2 * time.Second):
		t.Fatal("no command-started event observed")
	}

	require.Equal(t, "service status web\n", h.awaitWrite(t))
	h.print(t, "web: running\n"+config.DefaultSentinel+"\n")
	require.Contains(t, awaitOutput(t, cmd), "web: running")
}

// TestSession_OutputExcludesPriorPrompt tests that the buffer is cleared at
// dispatch so banner and prompt text never leak into results.
func TestSession_OutputExcludesPriorPrompt(t *testing.T) {
	sp := &fakeSpawner{}
	s := newTestSession(t, sp)
	h := sp.handle(t, 0)

	h.print(t, "platform console 3.2\nconsole> ")

	cmd, err := s.Submit("service list")
	require.NoError(t, err)

	require.Equal(t, "service list\n", h.awaitWrite(t))
	h.print(t, "web\n"+config.DefaultSentinel+"\n")

	out := awaitOutput(t, cmd)
	require.NotContains(t, out, "platform console 3.2")
	require.NotContains(t, out, "console>")
}

// TestCommand_OutputContext tests that Output honors caller cancellation.
func TestCommand_OutputContext(t *testing.T) {
	cmd := newCommand("service list")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := cmd.Output(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	cmd.resolve("web")

	out, err := cmd.Output(context.Background())
	require.NoError(t, err)
	require.Equal(t, "web", out)
}
