// Package console supervises a long-lived interactive platform console
// subprocess.
//
// A Session keeps exactly one console process alive, serializes submitted
// commands into its stdin, and demultiplexes its output back to the matching
// caller using a completion sentinel. Crashes and hangs are recovered by
// respawning the process; callers observe failures as ordinary textual
// results carrying diagnostic lines.
package console
