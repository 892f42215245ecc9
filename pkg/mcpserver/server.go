// Package mcpserver exposes the desktop as an MCP tool, so MCP clients can
// drive the shared machine one action at a time.
package mcpserver

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/docker/deskpilot/pkg/action"
	"github.com/docker/deskpilot/pkg/desktop"
	"github.com/docker/deskpilot/pkg/runtime"
	"github.com/docker/deskpilot/pkg/version"
)

const screenshotMIMEType = "image/png"

// Server serves the computer_action tool.
type Server struct {
	server   *mcp.Server
	desktop  desktop.Desktop
	executor *action.Executor
}

// New registers computer_action against d. If d also implements
// runtime.Locker, every call holds the desktop lock while it runs.
func New(d desktop.Desktop) (*Server, error) {
	schema, err := action.Schema()
	if err != nil {
		return nil, fmt.Errorf("building action schema: %w", err)
	}

	s := &Server{
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "deskpilot",
			Version: version.Version,
		}, nil),
		desktop:  d,
		executor: action.NewExecutor(d),
	}
	s.server.AddTool(&mcp.Tool{
		Name:        action.ToolName,
		Description: action.ToolDescription,
		InputSchema: schema,
	}, s.callAction)

	return s, nil
}

// Run serves over stdin and stdout until the client disconnects or ctx is done.
func (s *Server) Run(ctx context.Context) error {
	slog.Debug("Serving MCP over stdio")
	if err := s.server.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Connect serves a single session over t. Used with in-memory transports.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.server.Connect(ctx, t, nil)
}

func (s *Server) callAction(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	d, err := action.Parse(req.Params.Arguments)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	if locker, ok := s.desktop.(runtime.Locker); ok {
		release, err := locker.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquiring desktop: %w", err)
		}
		defer release()
	}

	res := s.executor.Execute(ctx, d)
	slog.Debug("MCP action executed", "action", d.String(), "failed", res.Failed())

	switch {
	case res.Failed():
		return errorResult(res.Summary()), nil
	case res.Image != "":
		img, err := base64.StdEncoding.DecodeString(res.Image)
		if err != nil {
			return errorResult("screenshot is not valid base64: " + err.Error()), nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.ImageContent{Data: img, MIMEType: screenshotMIMEType}},
		}, nil
	default:
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: res.Summary()}},
		}, nil
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
	}
}
