// Package mcpserver exposes the console session to automated clients as an
// MCP tool server. It is the translation layer between structured tool
// calls and single-line console commands: requests become command strings,
// returned text is scanned for the console's in-band error markers, and
// flagged output is surfaced as MCP error results.
package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/oklog/ulid/v2"

	"github.com/opshell/console-bridge-go/internal/history"
)

// The console brackets failed command output with this marker pair.
const (
	ErrorStartMarker = "___ERROR_START___"
	ErrorEndMarker   = "___ERROR_END___"
)

// ExecFunc runs one console command to completion and returns its output.
type ExecFunc func(ctx context.Context, command string) (string, error)

// Server is the MCP tool server bridging automated clients to the console.
type Server struct {
	log     *slog.Logger
	exec    ExecFunc
	store   *history.Store // nil disables the command_history tool
	mcpSrv  *mcp.Server
	name    string
	version string
}

// New creates the tool server around exec. store may be nil, in which case
// command history is neither recorded nor queryable.
func New(log *slog.Logger, exec ExecFunc, store *history.Store, name, version string) *Server {
	s := &Server{
		log:     log.With("component", "mcp_server"),
		exec:    exec,
		store:   store,
		name:    name,
		version: version,
	}

	s.mcpSrv = mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil)
	s.registerTools()

	return s
}

// Run serves MCP over stdio until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("Serving MCP over stdio", "server", s.name, "version", s.version)

	return s.mcpSrv.Run(ctx, &mcp.StdioTransport{})
}

type execInput struct {
	Command string `json:"command" jsonschema:"Single-line console command to execute"`
}

type execOutput struct {
	Output string `json:"output"`
}

type statusInput struct {
	Service string `json:"service" jsonschema:"Name of the service to inspect"`
}

type historyInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of entries to return (default 20)"`
}

type historyOutput struct {
	Entries []historyEntry `json:"entries"`
}

type historyEntry struct {
	ID         string `json:"id"`
	Command    string `json:"command"`
	Output     string `json:"output"`
	StartedAt  string `json:"started_at"`
	DurationMS int64  `json:"duration_ms"`
}

func (s *Server) registerTools() {
	// Explicit schema here: the inferred one would not carry the
	// single-line constraint in its description.
	mcp.AddTool(s.mcpSrv, &mcp.Tool{
		Name:        "console_exec",
		Description: "Execute a raw single-line command on the platform console and return its output",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"command": {
					Type:        "string",
					Description: "Console command to execute; must be a single line with no embedded newlines",
				},
			},
			Required: []string{"command"},
		},
	}, s.handleExec)

	mcp.AddTool(s.mcpSrv, &mcp.Tool{
		Name:        "service_list",
		Description: "List all services known to the platform console",
	}, s.handleServiceList)

	mcp.AddTool(s.mcpSrv, &mcp.Tool{
		Name:        "service_status",
		Description: "Show the status of a single service",
	}, s.handleServiceStatus)

	if s.store != nil {
		mcp.AddTool(s.mcpSrv, &mcp.Tool{
			Name:        "command_history",
			Description: "Return recently executed console commands, newest first",
		}, s.handleHistory)
	}
}

func (s *Server) handleExec(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	in execInput,
) (*mcp.CallToolResult, execOutput, error) {
	return s.runCommand(ctx, in.Command)
}

func (s *Server) handleServiceList(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ struct{},
) (*mcp.CallToolResult, execOutput, error) {
	return s.runCommand(ctx, "service list")
}

func (s *Server) handleServiceStatus(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	in statusInput,
) (*mcp.CallToolResult, execOutput, error) {
	if in.Service == "" || strings.ContainsAny(in.Service, " \t\r\n") {
		return errorResult(fmt.Sprintf("invalid service name: %q", in.Service)), execOutput{}, nil
	}

	return s.runCommand(ctx, "service status "+in.Service)
}

func (s *Server) handleHistory(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	in historyInput,
) (*mcp.CallToolResult, historyOutput, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = 20
	}

	entries, err := s.store.Recent(ctx, limit)
	if err != nil {
		return nil, historyOutput{}, err
	}

	out := historyOutput{Entries: make([]historyEntry, 0, len(entries))}
	for _, e := range entries {
		out.Entries = append(out.Entries, historyEntry{
			ID:         e.ID,
			Command:    e.Command,
			Output:     e.Output,
			StartedAt:  e.StartedAt.Format(time.RFC3339),
			DurationMS: e.Duration.Milliseconds(),
		})
	}

	return nil, out, nil
}

// runCommand executes one console command, records it, and classifies the
// returned text via the in-band error markers.
func (s *Server) runCommand(ctx context.Context, command string) (*mcp.CallToolResult, execOutput, error) {
	started := time.Now()

	output, err := s.exec(ctx, command)
	if err != nil {
		return nil, execOutput{}, err
	}

	if s.store != nil {
		entry := history.Entry{
			ID:        ulid.Make().String(),
			Command:   command,
			Output:    output,
			StartedAt: started.UTC(),
			Duration:  time.Since(started),
		}
		if rerr := s.store.Record(ctx, entry); rerr != nil {
			s.log.Warn("Failed to record command history", "command", command, "error", rerr)
		}
	}

	if msg, flagged := ExtractError(output); flagged {
		return errorResult(msg), execOutput{}, nil
	}

	return nil, execOutput{Output: output}, nil
}

// ExtractError reports whether text carries the console's error marker pair
// and returns the bracketed message. An unpaired start marker flags the
// remainder of the text.
func ExtractError(text string) (string, bool) {
	start := strings.Index(text, ErrorStartMarker)
	if start < 0 {
		return "", false
	}

	msg := text[start+len(ErrorStartMarker):]
	if end := strings.Index(msg, ErrorEndMarker); end >= 0 {
		msg = msg[:end]
	}

	return strings.TrimSpace(msg), true
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
	}
}
