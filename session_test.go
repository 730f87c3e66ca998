package consolebridge

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// scriptedSpawner hands out scriptedConsole handles through the public
// Spawner interface.
type scriptedSpawner struct {
	mu       sync.Mutex
	consoles []*scriptedConsole
}

func (s *scriptedSpawner) Spawn() (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := newScriptedConsole()
	s.consoles = append(s.consoles, c)

	return c, nil
}

func (s *scriptedSpawner) console(t *testing.T, i int) *scriptedConsole {
	t.Helper()

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()

		return len(s.consoles) > i
	}, 2*time.Second, 5*time.Millisecond)

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.consoles[i]
}

type scriptedConsole struct {
	writes chan string
	exited chan int

	outR *io.PipeReader
	outW *io.PipeWriter
	errR *io.PipeReader
	errW *io.PipeWriter

	killOnce sync.Once
}

func newScriptedConsole() *scriptedConsole {
	c := &scriptedConsole{
		writes: make(chan string, 16),
		exited: make(chan int, 1),
	}
	c.outR, c.outW = io.Pipe()
	c.errR, c.errW = io.Pipe()

	return c
}

func (c *scriptedConsole) Stdin() io.Writer   { return scriptedStdin{c} }
func (c *scriptedConsole) Stdout() io.Reader  { return c.outR }
func (c *scriptedConsole) Stderr() io.Reader  { return c.errR }
func (c *scriptedConsole) Exited() <-chan int { return c.exited }

func (c *scriptedConsole) Kill() error {
	c.killOnce.Do(func() {
		c.outW.Close()
		c.errW.Close()
	})

	return nil
}

type scriptedStdin struct {
	c *scriptedConsole
}

func (w scriptedStdin) Write(p []byte) (int, error) {
	w.c.writes <- string(p)

	return len(p), nil
}

// TestNewSession_Creation tests session creation and disposal.
func TestNewSession_Creation(t *testing.T) {
	session := NewSession(WithSpawner(&scriptedSpawner{}))
	require.NotNil(t, session)

	err := session.Close()
	require.NoError(t, err)
}

// TestSession_SubmitNotStarted tests submission before Start.
func TestSession_SubmitNotStarted(t *testing.T) {
	session := NewSession(WithSpawner(&scriptedSpawner{}))
	defer session.Close()

	_, err := session.Submit("service list")
	require.ErrorIs(t, err, ErrSessionNotStarted)
}

// TestSession_EndToEnd tests the full submit/execute/resolve path through
// the public API.
func TestSession_EndToEnd(t *testing.T) {
	sp := &scriptedSpawner{}
	session := NewSession(WithSpawner(sp))
	defer session.Close()

	require.NoError(t, session.Start())

	c := sp.console(t, 0)

	cmd, err := session.Submit("service list")
	require.NoError(t, err)
	require.NotEmpty(t, cmd.ID())
	require.Equal(t, "service list", cmd.Text())

	_, werr := c.outW.Write([]byte("console> "))
	require.NoError(t, werr)

	select {
	case w := <-c.writes:
		require.Equal(t, "service list\n", w)

	case <-time.After(2 * time.Second):
		t.Fatal("command never written to console")
	}

	_, werr = c.outW.Write([]byte("web\ndb\n___CMD_COMPLETE___\n"))
	require.NoError(t, werr)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	out, err := cmd.Output(ctx)
	require.NoError(t, err)
	require.Contains(t, out, "web\ndb")
}

// TestSession_EventsIterator tests the public event sequence, including its
// termination on context cancellation.
func TestSession_EventsIterator(t *testing.T) {
	sp := &scriptedSpawner{}
	session := NewSession(WithSpawner(sp))
	defer session.Close()

	require.NoError(t, session.Start())

	c := sp.console(t, 0)
	_, werr := c.outW.Write([]byte("console> "))
	require.NoError(t, werr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 1)

	go func() {
		for text := range session.Events(ctx) {
			got <- text

			cancel()
		}

		close(got)
	}()

	_, err := session.Submit("service status web")
	require.NoError(t, err)

	select {
	case text := <-got:
		require.Equal(t, "service status web", text)

	case <-time.After(2 * time.Second):
		t.Fatal("no event observed")
	}

	// The iterator must terminate after cancellation.
	select {
	case _, open := <-got:
		require.False(t, open)

	case <-time.After(2 * time.Second):
		t.Fatal("event iterator did not stop")
	}
}

// TestSession_EventsEndOnClose tests that the event sequence terminates when
// the session is disposed.
func TestSession_EventsEndOnClose(t *testing.T) {
	sp := &scriptedSpawner{}
	session := NewSession(WithSpawner(sp))

	require.NoError(t, session.Start())

	done := make(chan struct{})

	go func() {
		for range session.Events(context.Background()) {
		}

		close(done)
	}()

	require.NoError(t, session.Close())

	select {
	case <-done:

	case <-time.After(2 * time.Second):
		t.Fatal("event iterator did not stop on close")
	}
}

// TestSession_CloseRejects tests post-disposal behavior through the public
// API.
func TestSession_CloseRejects(t *testing.T) {
	sp := &scriptedSpawner{}
	session := NewSession(WithSpawner(sp))

	require.NoError(t, session.Start())
	require.NoError(t, session.Close())
	require.NoError(t, session.Close())

	_, err := session.Submit("service list")
	require.ErrorIs(t, err, ErrSessionClosed)
}
