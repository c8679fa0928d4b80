package tools

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"matrixmcp/internal/matrix"
	"matrixmcp/pkg/logging"
)

const (
	defaultMessageLimit = 20
	defaultActiveUsers  = 10
	// activityWindow is how much recent history identify-active-users reads.
	activityWindow = 200
)

func (t *Toolset) messageTools() []Tool {
	return []Tool{
		{
			Definition: mcp.NewTool("get-room-messages",
				mcp.WithTitleAnnotation("Get Matrix Room Messages"),
				mcp.WithDescription("Retrieve recent messages from a specific Matrix room, including text and image content"),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithString("roomId", mcp.Required(), mcp.Description(roomIDDescription)),
				mcp.WithNumber("limit",
					mcp.DefaultNumber(defaultMessageLimit),
					mcp.Description("Maximum number of messages to retrieve (default: 20)"),
				),
			),
			Handler: t.withSession("get-room-messages", "get room messages", t.handleGetRoomMessages),
		},
		{
			Definition: mcp.NewTool("get-messages-by-date",
				mcp.WithTitleAnnotation("Get Matrix Messages by Date Range"),
				mcp.WithDescription("Retrieve messages from a Matrix room within a specific date range"),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithString("roomId", mcp.Required(), mcp.Description(roomIDDescription)),
				mcp.WithString("startDate", mcp.Required(),
					mcp.Description("Start date in ISO 8601 format (e.g., 2024-01-01T00:00:00Z)")),
				mcp.WithString("endDate", mcp.Required(),
					mcp.Description("End date in ISO 8601 format (e.g., 2024-01-02T00:00:00Z)")),
			),
			Handler: t.withSession("get-messages-by-date", "filter messages by date", t.handleGetMessagesByDate),
		},
		{
			Definition: mcp.NewTool("identify-active-users",
				mcp.WithTitleAnnotation("Identify Most Active Users"),
				mcp.WithDescription("Find the most active users in a Matrix room based on message count in recent history"),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithString("roomId", mcp.Required(), mcp.Description(roomIDDescription)),
				mcp.WithNumber("limit",
					mcp.DefaultNumber(defaultActiveUsers),
					mcp.Description("Maximum number of active users to return (default: 10)"),
				),
			),
			Handler: t.withSession("identify-active-users", "identify active users", t.handleIdentifyActiveUsers),
		},
	}
}

func (t *Toolset) handleGetRoomMessages(ctx context.Context, req mcp.CallToolRequest, call *toolCall) (*mcp.CallToolResult, error) {
	roomID, errRes := requireString(req, "roomId")
	if errRes != nil {
		return errRes, nil
	}
	limit := req.GetInt("limit", defaultMessageLimit)
	if limit <= 0 {
		return errorResult("Error: limit must be positive"), nil
	}
	room, ok := call.session.Room(roomID)
	if !ok {
		return roomNotFound(roomID), nil
	}

	messages, err := matrix.RecentMessages(ctx, call.session, roomID, limit)
	if err != nil {
		return nil, err
	}

	content := renderMessages(ctx, call.session, messages)
	if len(content) == 0 {
		return textResult(fmt.Sprintf("No messages found in room %s", room.DisplayName(call.self()))), nil
	}
	return &mcp.CallToolResult{Content: content}, nil
}

func (t *Toolset) handleGetMessagesByDate(ctx context.Context, req mcp.CallToolRequest, call *toolCall) (*mcp.CallToolResult, error) {
	roomID, errRes := requireString(req, "roomId")
	if errRes != nil {
		return errRes, nil
	}
	startRaw, errRes := requireString(req, "startDate")
	if errRes != nil {
		return errRes, nil
	}
	endRaw, errRes := requireString(req, "endDate")
	if errRes != nil {
		return errRes, nil
	}
	start, err := parseDate(startRaw)
	if err != nil {
		return errorResult("Error: invalid startDate %q - expected ISO 8601", startRaw), nil
	}
	end, err := parseDate(endRaw)
	if err != nil {
		return errorResult("Error: invalid endDate %q - expected ISO 8601", endRaw), nil
	}
	if end.Before(start) {
		return errorResult("Error: endDate must not be before startDate"), nil
	}

	room, ok := call.session.Room(roomID)
	if !ok {
		return roomNotFound(roomID), nil
	}

	messages, err := matrix.MessagesBetween(ctx, call.session, roomID, start, end)
	if err != nil {
		return nil, err
	}

	content := renderMessages(ctx, call.session, messages)
	if len(content) == 0 {
		return textResult(fmt.Sprintf("No messages found in room %s between %s and %s",
			room.DisplayName(call.self()), startRaw, endRaw)), nil
	}
	return &mcp.CallToolResult{Content: content}, nil
}

func (t *Toolset) handleIdentifyActiveUsers(ctx context.Context, req mcp.CallToolRequest, call *toolCall) (*mcp.CallToolResult, error) {
	roomID, errRes := requireString(req, "roomId")
	if errRes != nil {
		return errRes, nil
	}
	limit := req.GetInt("limit", defaultActiveUsers)
	if limit <= 0 {
		return errorResult("Error: limit must be positive"), nil
	}
	room, ok := call.session.Room(roomID)
	if !ok {
		return roomNotFound(roomID), nil
	}

	messages, err := matrix.RecentMessages(ctx, call.session, roomID, activityWindow)
	if err != nil {
		return nil, err
	}

	counts := matrix.CountMessagesByUser(messages, limit)
	if len(counts) == 0 {
		return textResult(fmt.Sprintf("No message activity found in room %s", room.DisplayName(call.self()))), nil
	}
	texts := make([]string, 0, len(counts))
	for _, c := range counts {
		texts = append(texts, fmt.Sprintf("%s: %d messages", c.UserID, c.Count))
	}
	return textResult(texts...), nil
}

// renderMessages turns text messages into text content and images into
// image content. Other message types and images that cannot be fetched
// are skipped.
func renderMessages(ctx context.Context, s matrix.Session, messages []matrix.Message) []mcp.Content {
	var content []mcp.Content
	for _, m := range messages {
		switch {
		case m.IsText():
			content = append(content, mcp.NewTextContent(m.Body))
		case m.Image != nil:
			data, err := s.DownloadMedia(ctx, m.Image.URL)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return content
				}
				logging.Warn("Tools", "Failed to fetch image %s: %v", m.Image.URL, err)
				continue
			}
			content = append(content, mcp.NewImageContent(base64.StdEncoding.EncodeToString(data), m.Image.MimeType))
		}
	}
	return content
}

// parseDate accepts RFC 3339 timestamps and plain dates.
func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}
