// Package consolebridge keeps a long-lived interactive platform console
// subprocess alive and turns it into a programmatic command interface.
//
// A Session owns exactly one console process at a time. Commands submitted
// to the session are executed strictly in submission order; each command's
// output is collected until the console prints its completion sentinel, at
// which point the command's future resolves. Crashed or hung consoles are
// replaced automatically and pending work continues against the
// replacement.
//
// # Basic Usage
//
//	session := consolebridge.NewSession(
//	    consolebridge.WithLogger(slog.Default()),
//	    consolebridge.WithCommandTimeout(time.Minute),
//	)
//	defer session.Close()
//
//	if err := session.Start(); err != nil {
//	    log.Fatal(err)
//	}
//
//	cmd, err := session.Submit("service list")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	out, err := cmd.Output(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(out)
//
// # Observing Command Activity
//
// Events yields the text of each command the moment it is written to the
// console, which is useful for audit trails and activity feeds:
//
//	for text := range session.Events(ctx) {
//	    log.Printf("console executing: %s", text)
//	}
//
// # Lifecycle
//
// Sessions are single-use. Close kills the console, suppresses respawns
// forever, and rejects every unresolved command with ErrSessionClosed;
// create a new session with NewSession to continue working.
package consolebridge
