package tools

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"matrixmcp/internal/matrix"
	pkgstrings "matrixmcp/pkg/strings"
)

func (t *Toolset) notificationTools() []Tool {
	return []Tool{
		{
			Definition: mcp.NewTool("get-notification-counts",
				mcp.WithTitleAnnotation("Get Matrix Notification Counts"),
				mcp.WithDescription("Get unread message counts and notification status for Matrix rooms"),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithString("roomFilter", mcp.Description("Optional room ID to get counts for specific room only")),
			),
			Handler: t.withSession("get-notification-counts", "get notification counts", t.handleGetNotificationCounts),
		},
		{
			Definition: mcp.NewTool("get-direct-messages",
				mcp.WithTitleAnnotation("Get Direct Message Conversations"),
				mcp.WithDescription("List all direct message conversations with their recent activity and unread status"),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithBoolean("includeEmpty",
					mcp.DefaultBool(false),
					mcp.Description("Include DM rooms with no recent messages (default: false)"),
				),
			),
			Handler: t.withSession("get-direct-messages", "get direct messages", t.handleGetDirectMessages),
		},
	}
}

func (t *Toolset) handleGetNotificationCounts(_ context.Context, req mcp.CallToolRequest, call *toolCall) (*mcp.CallToolResult, error) {
	filter := req.GetString("roomFilter", "")

	rooms := call.session.JoinedRooms()
	if filter != "" {
		room, ok := call.session.Room(filter)
		if !ok {
			return errorResult("Error: Room with ID %s not found.", filter), nil
		}
		rooms = []*matrix.Room{room}
	}

	totalUnread, totalMentions := 0, 0
	var entries []string
	for _, room := range rooms {
		totalUnread += room.NotificationCount
		totalMentions += room.HighlightCount
		if room.NotificationCount == 0 && room.HighlightCount == 0 && filter == "" {
			continue
		}
		entries = append(entries, fmt.Sprintf(`%s (%s)
Unread: %d messages
Mentions: %d
Last message: %s`,
			room.DisplayName(call.self()), room.ID,
			room.NotificationCount, room.HighlightCount,
			formatTime(room.LastActivity),
		))
	}

	if filter != "" {
		return textResult(entries...), nil
	}
	if len(entries) == 0 {
		return textResult("No unread notifications across all rooms"), nil
	}
	summary := fmt.Sprintf(`Notification Summary:
Total unread messages: %d
Total mentions/highlights: %d
Rooms with notifications: %d`, totalUnread, totalMentions, len(entries))
	return textResult(append([]string{summary}, entries...)...), nil
}

type directConversation struct {
	text     string
	activity time.Time
}

func (t *Toolset) handleGetDirectMessages(_ context.Context, req mcp.CallToolRequest, call *toolCall) (*mcp.CallToolResult, error) {
	includeEmpty := req.GetBool("includeEmpty", false)
	self := call.self()

	var candidates int
	var conversations []directConversation
	for _, room := range call.session.JoinedRooms() {
		peer, ok := room.DirectPeer(self)
		if !ok {
			continue
		}
		candidates++
		if room.LastMessage == nil && !includeEmpty {
			continue
		}

		lastTime, preview := "No recent messages", "No recent messages"
		var activity time.Time
		if room.LastMessage != nil {
			activity = room.LastMessage.Timestamp
			lastTime = formatTime(activity)
			preview = orDefault(pkgstrings.Preview(room.LastMessage.Body, pkgstrings.PreviewMaxLen), preview)
		}
		conversations = append(conversations, directConversation{
			activity: activity,
			text: fmt.Sprintf(`%s (%s)
Room ID: %s
Last message: %s
Preview: %s
Unread: %d messages
Mentions: %d`,
				peer.Name(), peer.UserID, room.ID, lastTime, preview,
				room.NotificationCount, room.HighlightCount),
		})
	}

	if candidates == 0 {
		return textResult("No direct message conversations found"), nil
	}
	if len(conversations) == 0 {
		return textResult("No direct message conversations with recent activity found"), nil
	}

	sort.SliceStable(conversations, func(i, j int) bool {
		return conversations[i].activity.After(conversations[j].activity)
	})

	suffix := "s"
	if len(conversations) == 1 {
		suffix = ""
	}
	texts := []string{fmt.Sprintf("Found %d direct message conversation%s:", len(conversations), suffix)}
	for _, c := range conversations {
		texts = append(texts, c.text)
	}
	return textResult(texts...), nil
}
