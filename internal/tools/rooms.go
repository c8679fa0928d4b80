package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

const roomIDDescription = "Matrix room ID (e.g., !roomid:domain.com)"

func (t *Toolset) roomTools() []Tool {
	return []Tool{
		{
			Definition: mcp.NewTool("list-joined-rooms",
				mcp.WithTitleAnnotation("List Joined Matrix Rooms"),
				mcp.WithDescription("Get a list of all Matrix rooms the user has joined, including room names, IDs, and basic information"),
				mcp.WithReadOnlyHintAnnotation(true),
			),
			Handler: t.withSession("list-joined-rooms", "list joined rooms", t.handleListJoinedRooms),
		},
		{
			Definition: mcp.NewTool("get-room-info",
				mcp.WithTitleAnnotation("Get Matrix Room Information"),
				mcp.WithDescription("Get detailed information about a Matrix room including name, topic, settings, and member count"),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithString("roomId", mcp.Required(), mcp.Description(roomIDDescription)),
			),
			Handler: t.withSession("get-room-info", "get room information", t.handleGetRoomInfo),
		},
		{
			Definition: mcp.NewTool("get-room-members",
				mcp.WithTitleAnnotation("Get Matrix Room Members"),
				mcp.WithDescription("List all members currently joined to a Matrix room with their display names and user IDs"),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithString("roomId", mcp.Required(), mcp.Description(roomIDDescription)),
			),
			Handler: t.withSession("get-room-members", "get room members", t.handleGetRoomMembers),
		},
	}
}

func (t *Toolset) handleListJoinedRooms(_ context.Context, _ mcp.CallToolRequest, call *toolCall) (*mcp.CallToolResult, error) {
	rooms := call.session.JoinedRooms()
	if len(rooms) == 0 {
		return textResult("You have not joined any rooms"), nil
	}

	texts := make([]string, 0, len(rooms))
	for _, room := range rooms {
		texts = append(texts, fmt.Sprintf("Room: %s (%s) - %d members",
			room.DisplayName(call.self()), room.ID, len(room.JoinedMembers())))
	}
	return textResult(texts...), nil
}

func (t *Toolset) handleGetRoomInfo(_ context.Context, req mcp.CallToolRequest, call *toolCall) (*mcp.CallToolResult, error) {
	roomID, errRes := requireString(req, "roomId")
	if errRes != nil {
		return errRes, nil
	}
	room, ok := call.session.Room(roomID)
	if !ok {
		return roomNotFound(roomID), nil
	}

	return textResult(fmt.Sprintf(`Room Information:
Name: %s
Room ID: %s
Alias: %s
Topic: %s
Members: %d
Encrypted: %s
Creator: %s
Created: %s`,
		room.DisplayName(call.self()),
		room.ID,
		orDefault(room.CanonicalAlias, "No alias"),
		orDefault(room.Topic, "No topic set"),
		len(room.JoinedMembers()),
		yesNo(room.Encrypted),
		orDefault(room.Creator, "Unknown"),
		formatTime(room.CreatedAt),
	)), nil
}

func (t *Toolset) handleGetRoomMembers(_ context.Context, req mcp.CallToolRequest, call *toolCall) (*mcp.CallToolResult, error) {
	roomID, errRes := requireString(req, "roomId")
	if errRes != nil {
		return errRes, nil
	}
	room, ok := call.session.Room(roomID)
	if !ok {
		return roomNotFound(roomID), nil
	}

	members := room.JoinedMembers()
	if len(members) == 0 {
		return textResult(fmt.Sprintf("No members found in room %s", room.DisplayName(call.self()))), nil
	}
	texts := make([]string, 0, len(members))
	for _, m := range members {
		texts = append(texts, fmt.Sprintf("%s (%s)", m.Name(), m.UserID))
	}
	return textResult(texts...), nil
}
