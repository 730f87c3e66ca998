// Command console-bridge keeps a platform console subprocess alive and
// exposes it to automated clients as an MCP tool server over stdio.
// Optionally it records command history to SQLite and broadcasts
// command-started events over WebSocket.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	consolebridge "github.com/opshell/console-bridge-go"
	"github.com/opshell/console-bridge-go/internal/eventfeed"
	"github.com/opshell/console-bridge-go/internal/history"
	"github.com/opshell/console-bridge-go/internal/mcpserver"
)

const version = "0.1.0"

type flags struct {
	consolePath    string
	consoleCommand string
	consoleArgs    []string
	readyMarker    string
	sentinel       string
	commandTimeout time.Duration
	respawnDelay   time.Duration
	usePTY         bool
	historyPath    string
	listenAddr     string
	verbose        bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	cmd := &cobra.Command{
		Use:     "console-bridge",
		Short:   "Bridge a platform console CLI to MCP clients",
		Version: version,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), f)
		},
	}

	cmd.Flags().StringVar(&f.consolePath, "console-path", "", "explicit path to the console binary")
	cmd.Flags().StringVar(&f.consoleCommand, "console-command", "", "console binary name for discovery")
	cmd.Flags().StringSliceVar(&f.consoleArgs, "console-arg", nil, "argument passed to the console (repeatable)")
	cmd.Flags().StringVar(&f.readyMarker, "ready-marker", "", "prompt string that signals console readiness")
	cmd.Flags().StringVar(&f.sentinel, "sentinel", "", "completion marker emitted after each command")
	cmd.Flags().DurationVar(&f.commandTimeout, "command-timeout", 0, "per-command execution deadline")
	cmd.Flags().DurationVar(&f.respawnDelay, "respawn-delay", 0, "pause before respawning after a clean exit")
	cmd.Flags().BoolVar(&f.usePTY, "pty", false, "run the console under a pseudo-terminal")
	cmd.Flags().StringVar(&f.historyPath, "history-db", "", "path to the SQLite command history database")
	cmd.Flags().StringVar(&f.listenAddr, "listen", "", "address for the WebSocket event feed (disabled if empty)")
	cmd.Flags().BoolVar(&f.verbose, "verbose", false, "log debug output to stderr")

	return cmd
}

func run(ctx context.Context, f *flags) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := newLogger(f.verbose)

	// Process-lifetime identity for correlating logs across restarts.
	instanceID := uuid.NewString()
	log = log.With("instance_id", instanceID)

	session := consolebridge.NewSession(sessionOptions(f, log)...)
	defer session.Close()

	if err := session.Start(); err != nil {
		return fmt.Errorf("start console session: %w", err)
	}

	var store *history.Store

	if f.historyPath != "" {
		var err error

		store, err = history.Open(log, f.historyPath)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	exec := func(ctx context.Context, command string) (string, error) {
		cmd, err := session.Submit(command)
		if err != nil {
			return "", err
		}

		return cmd.Output(ctx)
	}

	srv := mcpserver.New(log, exec, store, "console-bridge", version)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Run(ctx)
	})

	if f.listenAddr != "" {
		feed := eventfeed.New(log)

		g.Go(func() error {
			feed.Run(session.Events(ctx))

			return nil
		})

		g.Go(func() error {
			return serveFeed(ctx, log, f.listenAddr, feed)
		})
	}

	log.Info("Console bridge running", "version", version, "pty", f.usePTY, "feed", f.listenAddr)

	err := g.Wait()
	if err != nil && ctx.Err() != nil {
		// Shutdown via signal, not a failure.
		return nil
	}

	return err
}

func sessionOptions(f *flags, log *slog.Logger) []consolebridge.Option {
	opts := []consolebridge.Option{consolebridge.WithLogger(log)}

	if f.consolePath != "" {
		opts = append(opts, consolebridge.WithConsolePath(f.consolePath))
	}

	if f.consoleCommand != "" {
		opts = append(opts, consolebridge.WithConsoleCommand(f.consoleCommand))
	}

	if len(f.consoleArgs) > 0 {
		opts = append(opts, consolebridge.WithConsoleArgs(f.consoleArgs...))
	}

	if f.readyMarker != "" {
		opts = append(opts, consolebridge.WithReadyMarker(f.readyMarker))
	}

	if f.sentinel != "" {
		opts = append(opts, consolebridge.WithSentinel(f.sentinel))
	}

	if f.commandTimeout > 0 {
		opts = append(opts, consolebridge.WithCommandTimeout(f.commandTimeout))
	}

	if f.respawnDelay > 0 {
		opts = append(opts, consolebridge.WithRespawnDelay(f.respawnDelay))
	}

	if f.usePTY {
		opts = append(opts, consolebridge.WithPTY())
	}

	return opts
}

func serveFeed(ctx context.Context, log *slog.Logger, addr string, feed *eventfeed.Feed) error {
	mux := http.NewServeMux()
	mux.Handle("GET /ws/events", feed)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("Event feed listening", "addr", addr)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("event feed listener: %w", err)
	}

	return nil
}

// newLogger writes to stderr; stdout belongs to the MCP stdio transport.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
