package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"matrixmcp/internal/matrix"
)

func (t *Toolset) roomAdminTools() []Tool {
	return []Tool{
		{
			Definition: mcp.NewTool("set-room-name",
				mcp.WithTitleAnnotation("Set Matrix Room Name"),
				mcp.WithDescription("Update the display name of a Matrix room. Requires appropriate permissions in the room"),
				mcp.WithString("roomId", mcp.Required(), mcp.Description(roomIDDescription)),
				mcp.WithString("roomName", mcp.Required(), mcp.Description("New name for the room")),
			),
			Handler: t.withSession("set-room-name", "set room name", t.handleSetRoomName),
		},
		{
			Definition: mcp.NewTool("set-room-topic",
				mcp.WithTitleAnnotation("Set Matrix Room Topic"),
				mcp.WithDescription("Update the topic/description of a Matrix room. Requires appropriate permissions in the room"),
				mcp.WithString("roomId", mcp.Required(), mcp.Description(roomIDDescription)),
				mcp.WithString("topic", mcp.Required(), mcp.Description("New topic/description for the room")),
			),
			Handler: t.withSession("set-room-topic", "set room topic", t.handleSetRoomTopic),
		},
	}
}

func (t *Toolset) handleSetRoomName(ctx context.Context, req mcp.CallToolRequest, call *toolCall) (*mcp.CallToolResult, error) {
	roomID, errRes := requireString(req, "roomId")
	if errRes != nil {
		return errRes, nil
	}
	name, errRes := requireString(req, "roomName")
	if errRes != nil {
		return errRes, nil
	}
	room, ok := call.session.Room(roomID)
	if !ok {
		return roomNotFound(roomID), nil
	}
	if res := checkStatePermission(room, call.self(), matrix.EventTypeName, "change the room name"); res != nil {
		return res, nil
	}

	if err := call.session.SetRoomName(ctx, roomID, name); err != nil {
		return stateChangeError(roomID, "room name", err)
	}
	return textResult(fmt.Sprintf("Successfully updated room name\nRoom ID: %s\nPrevious name: %s\nNew name: %s",
		roomID, room.DisplayName(call.self()), name)), nil
}

func (t *Toolset) handleSetRoomTopic(ctx context.Context, req mcp.CallToolRequest, call *toolCall) (*mcp.CallToolResult, error) {
	roomID, errRes := requireString(req, "roomId")
	if errRes != nil {
		return errRes, nil
	}
	topic, err := req.RequireString("topic")
	if err != nil {
		return errorResult("Error: topic argument is required"), nil
	}
	room, ok := call.session.Room(roomID)
	if !ok {
		return roomNotFound(roomID), nil
	}
	if res := checkStatePermission(room, call.self(), matrix.EventTypeTopic, "change the room topic"); res != nil {
		return res, nil
	}

	if err := call.session.SetRoomTopic(ctx, roomID, topic); err != nil {
		return stateChangeError(roomID, "room topic", err)
	}
	return textResult(fmt.Sprintf("Successfully updated room topic for %s\nRoom ID: %s\nPrevious topic: %s\nNew topic: %s",
		room.DisplayName(call.self()), roomID, orDefault(room.Topic, "No topic set"), topic)), nil
}

func checkStatePermission(room *matrix.Room, self, eventType, action string) *mcp.CallToolResult {
	levels := room.EffectivePowerLevels()
	if levels.CanSendState(self, eventType) {
		return nil
	}
	return errorResult("Error: You don't have permission to %s. Required power level: %d, your level: %d",
		action, levels.StateLevel(eventType), levels.UserLevel(self))
}

func stateChangeError(roomID, what string, err error) (*mcp.CallToolResult, error) {
	switch {
	case errors.Is(err, matrix.ErrNotFound):
		return errorResult("Error: Room %s not found", roomID), nil
	case errors.Is(err, matrix.ErrForbidden):
		return errorResult("Error: You don't have permission to change the %s", what), nil
	case errors.Is(err, matrix.ErrRateLimited):
		return errorResult("Error: Rate limited when changing %s - please try again later", what), nil
	}
	return nil, err
}
