package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"matrixmcp/internal/matrix"
	"matrixmcp/pkg/logging"
)

func (t *Toolset) messagingTools() []Tool {
	return []Tool{
		{
			Definition: mcp.NewTool("send-message",
				mcp.WithTitleAnnotation("Send Matrix Message"),
				mcp.WithDescription("Send a text message to a Matrix room, with support for plain text, HTML, markdown, emotes, and replies"),
				mcp.WithString("roomId", mcp.Required(), mcp.Description(roomIDDescription)),
				mcp.WithString("message", mcp.Required(), mcp.Description("The message content to send")),
				mcp.WithString("messageType",
					mcp.Enum(matrix.KindText, matrix.KindHTML, matrix.KindMarkdown, matrix.KindEmote),
					mcp.DefaultString(matrix.KindText),
					mcp.Description("Type of message: text (plain), html (formatted), markdown (rendered to HTML), or emote (action)"),
				),
				mcp.WithString("replyToEventId", mcp.Description("Event ID to reply to (optional)")),
			),
			Handler: t.withSession("send-message", "send message", t.handleSendMessage),
		},
		{
			Definition: mcp.NewTool("send-direct-message",
				mcp.WithTitleAnnotation("Send Direct Message"),
				mcp.WithDescription("Send a direct message to a Matrix user. Creates a new DM room if one doesn't exist"),
				mcp.WithString("targetUserId", mcp.Required(),
					mcp.Description("Target user's Matrix ID (e.g., @user:domain.com)")),
				mcp.WithString("message", mcp.Required(), mcp.Description("The message content to send")),
			),
			Handler: t.withSession("send-direct-message", "send direct message", t.handleSendDirectMessage),
		},
	}
}

func (t *Toolset) handleSendMessage(ctx context.Context, req mcp.CallToolRequest, call *toolCall) (*mcp.CallToolResult, error) {
	roomID, errRes := requireString(req, "roomId")
	if errRes != nil {
		return errRes, nil
	}
	body, err := req.RequireString("message")
	if err != nil || body == "" {
		return errorResult("Error: message argument is required"), nil
	}
	kind := req.GetString("messageType", matrix.KindText)
	replyTo := req.GetString("replyToEventId", "")

	room, ok := call.session.Room(roomID)
	if !ok {
		return roomNotFound(roomID), nil
	}

	levels := room.EffectivePowerLevels()
	self := call.self()
	if !levels.CanSendMessage(self) {
		return errorResult("Error: You don't have permission to send messages in this room. Required power level: %d, your level: %d",
			levels.MessageLevel(matrix.EventTypeMessage), levels.UserLevel(self)), nil
	}

	msg, err := matrix.NewOutgoingMessage(body, kind, replyTo)
	if err != nil {
		var kindErr *matrix.UnsupportedKindError
		if errors.As(err, &kindErr) {
			return errorResult("Error: %s", kindErr.Error()), nil
		}
		return nil, err
	}

	if replyTo != "" {
		if _, err := call.session.Event(ctx, roomID, replyTo); err != nil {
			if errors.Is(err, matrix.ErrNotFound) {
				return errorResult("Error: Reply event %s not found in room", replyTo), nil
			}
			return nil, err
		}
	}

	eventID, err := call.session.SendMessage(ctx, roomID, msg)
	if err != nil {
		return nil, err
	}

	replyNote := ""
	if replyTo != "" {
		replyNote = fmt.Sprintf(" (reply to %s)", replyTo)
	}
	return textResult(fmt.Sprintf("Message sent successfully to %s\nEvent ID: %s\nMessage type: %s%s",
		room.DisplayName(self), eventID, orDefault(kind, matrix.KindText), replyNote)), nil
}

func (t *Toolset) handleSendDirectMessage(ctx context.Context, req mcp.CallToolRequest, call *toolCall) (*mcp.CallToolResult, error) {
	target, errRes := requireString(req, "targetUserId")
	if errRes != nil {
		return errRes, nil
	}
	body, err := req.RequireString("message")
	if err != nil || body == "" {
		return errorResult("Error: message argument is required"), nil
	}
	self := call.self()

	roomID, roomName, existing := findDirectRoom(call.session, self, target)
	if !existing {
		roomID, err = call.session.CreateRoom(ctx, matrix.CreateRoomOptions{
			Private: true,
			Direct:  true,
			Invite:  []string{target},
		})
		if err != nil {
			return directMessageError(target, err)
		}
		if err := call.session.MarkDirect(ctx, target, roomID); err != nil {
			logging.Warn("Tools", "Could not update m.direct for %s: %v", logging.TruncateIdentity(self), err)
		}
		roomName = "DM with " + target
	}

	eventID, err := call.session.SendMessage(ctx, roomID, matrix.OutgoingMessage{MsgType: matrix.MsgTypeText, Body: body})
	if err != nil {
		return directMessageError(target, err)
	}

	note := "Used existing DM room"
	if !existing {
		note = "New DM room created"
	}
	return textResult(fmt.Sprintf("Direct message sent successfully to %s\nRoom: %s (%s)\nEvent ID: %s\n%s",
		target, roomName, roomID, eventID, note)), nil
}

// findDirectRoom looks for a joined two-person room with target, preferring
// rooms listed in m.direct.
func findDirectRoom(s matrix.Session, self, target string) (roomID, name string, ok bool) {
	for _, id := range s.DirectRooms()[target] {
		if room, found := s.Room(id); found {
			if peer, isDirect := room.DirectPeer(self); isDirect && peer.UserID == target {
				return room.ID, room.DisplayName(self), true
			}
		}
	}
	for _, room := range s.JoinedRooms() {
		if peer, isDirect := room.DirectPeer(self); isDirect && peer.UserID == target {
			return room.ID, room.DisplayName(self), true
		}
	}
	return "", "", false
}

func directMessageError(target string, err error) (*mcp.CallToolResult, error) {
	switch {
	case errors.Is(err, matrix.ErrNotFound):
		return errorResult("Error: User %s not found or not accessible from your homeserver", target), nil
	case errors.Is(err, matrix.ErrForbidden):
		return errorResult("Error: Cannot send direct message to %s - they may have blocked DMs or be on a different homeserver", target), nil
	}
	return nil, err
}
