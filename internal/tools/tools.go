package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"matrixmcp/internal/matrix"
	"matrixmcp/pkg/logging"
)

// SessionSource hands out sessions for the caller of a tool.
type SessionSource interface {
	Session(ctx context.Context, rc matrix.RequestCredentials) (matrix.Session, error)
	Invalidate(rc matrix.RequestCredentials)
}

// Toolset implements the Matrix tools on top of a SessionSource.
type Toolset struct {
	sessions SessionSource
}

// New returns a Toolset.
func New(sessions SessionSource) *Toolset {
	return &Toolset{sessions: sessions}
}

// Tool pairs a tool definition with its handler.
type Tool struct {
	Definition mcp.Tool
	Handler    server.ToolHandlerFunc
}

// Tools returns every tool in registration order.
func (t *Toolset) Tools() []Tool {
	var out []Tool
	out = append(out, t.roomTools()...)
	out = append(out, t.messageTools()...)
	out = append(out, t.userTools()...)
	out = append(out, t.searchTools()...)
	out = append(out, t.notificationTools()...)
	out = append(out, t.messagingTools()...)
	out = append(out, t.roomAdminTools()...)
	out = append(out, t.roomManagementTools()...)
	return out
}

// Register adds every tool to s.
func (t *Toolset) Register(s *server.MCPServer) {
	tools := t.Tools()
	for _, tool := range tools {
		s.AddTool(tool.Definition, tool.Handler)
	}
	logging.Info("Tools", "Registered %d Matrix tools", len(tools))
}

// sessionHandler is a tool body that runs against the caller's session.
type sessionHandler func(ctx context.Context, req mcp.CallToolRequest, call *toolCall) (*mcp.CallToolResult, error)

// toolCall carries the per-call session and caller.
type toolCall struct {
	session matrix.Session
	creds   matrix.RequestCredentials
}

func (c *toolCall) self() string {
	return c.session.UserID()
}

// withSession resolves the caller's session before running fn. Errors
// returned by fn become error results prefixed with "Failed to <action>"
// and drop the cached session unless they are ordinary homeserver
// refusals.
func (t *Toolset) withSession(toolName, action string, fn sessionHandler) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		creds, _ := matrix.RequestCredentialsFromContext(ctx)

		start := time.Now()
		sess, err := t.sessions.Session(ctx, creds)
		if err != nil {
			logging.Error("Tools", err, "Tool %s: no session for %s", toolName, logging.TruncateIdentity(creds.Identity))
			return sessionErrorResult(err), nil
		}

		call := &toolCall{session: sess, creds: creds}
		result, err := fn(ctx, req, call)
		if err != nil {
			logging.Error("Tools", err, "Tool %s failed for %s", toolName, logging.TruncateIdentity(creds.Identity))
			if shouldInvalidate(err) {
				t.sessions.Invalidate(creds)
			}
			return errorResult("Error: Failed to %s - %s", action, matrix.Describe(err)), nil
		}

		logging.Debug("Tools", "Tool %s completed for %s in %s", toolName,
			logging.TruncateIdentity(creds.Identity), time.Since(start).Round(time.Millisecond))
		return result, nil
	}
}

// shouldInvalidate reports whether err suggests the session itself is
// unusable. Refusals the homeserver issues for a specific request leave
// the session intact.
func shouldInvalidate(err error) bool {
	switch {
	case errors.Is(err, matrix.ErrForbidden),
		errors.Is(err, matrix.ErrNotFound),
		errors.Is(err, matrix.ErrRateLimited),
		errors.Is(err, matrix.ErrRoomInUse),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

func sessionErrorResult(err error) *mcp.CallToolResult {
	step := matrix.FailedStep(err)
	if step == "" {
		step = matrix.StepBootstrap
	}
	msg := fmt.Sprintf("Error: Matrix session %s failed - %s", step, matrix.Describe(err))
	if matrix.IsRetryable(err) {
		msg += " (temporary, please retry)"
	}
	return mcp.NewToolResultError(msg)
}

func errorResult(format string, args ...any) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf(format, args...))
}

// textResult returns one text content item per entry.
func textResult(texts ...string) *mcp.CallToolResult {
	content := make([]mcp.Content, 0, len(texts))
	for _, text := range texts {
		content = append(content, mcp.NewTextContent(text))
	}
	return &mcp.CallToolResult{Content: content}
}

func roomNotFound(roomID string) *mcp.CallToolResult {
	return errorResult("Error: Room with ID %s not found. You may not be a member of this room.", roomID)
}

// requireString returns a trimmed, non-empty string argument.
func requireString(req mcp.CallToolRequest, name string) (string, *mcp.CallToolResult) {
	value, err := req.RequireString(name)
	if err != nil || strings.TrimSpace(value) == "" {
		return "", errorResult("Error: %s argument is required", name)
	}
	return strings.TrimSpace(value), nil
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "Unknown"
	}
	return t.UTC().Format(time.RFC3339)
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// serverName returns the homeserver part of a user ID.
func serverName(userID string) string {
	if i := strings.IndexByte(userID, ':'); i >= 0 {
		return userID[i+1:]
	}
	return ""
}
