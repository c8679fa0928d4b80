package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"matrixmcp/internal/matrix"
)

func (t *Toolset) roomManagementTools() []Tool {
	return []Tool{
		{
			Definition: mcp.NewTool("create-room",
				mcp.WithTitleAnnotation("Create Matrix Room"),
				mcp.WithDescription("Create a new Matrix room with customizable settings including name, topic, privacy, and initial invitations"),
				mcp.WithString("roomName", mcp.Required(), mcp.Description("Name for the new room")),
				mcp.WithBoolean("isPrivate",
					mcp.DefaultBool(false),
					mcp.Description("Whether the room should be private (default: false - public room)"),
				),
				mcp.WithString("topic", mcp.Description("Optional topic/description for the room")),
				mcp.WithArray("inviteUsers",
					mcp.WithStringItems(),
					mcp.Description("Optional array of user IDs to invite to the room"),
				),
				mcp.WithString("roomAlias", mcp.Description("Optional room alias (e.g., 'my-room' for #my-room:domain.com)")),
			),
			Handler: t.withSession("create-room", "create room", t.handleCreateRoom),
		},
		{
			Definition: mcp.NewTool("join-room",
				mcp.WithTitleAnnotation("Join Matrix Room"),
				mcp.WithDescription("Join a Matrix room by room ID or alias. Can also be used to accept room invitations"),
				mcp.WithString("roomIdOrAlias", mcp.Required(),
					mcp.Description("Room ID (e.g., !roomid:domain.com) or room alias (e.g., #roomalias:domain.com)")),
			),
			Handler: t.withSession("join-room", "join room", t.handleJoinRoom),
		},
		{
			Definition: mcp.NewTool("leave-room",
				mcp.WithTitleAnnotation("Leave Matrix Room"),
				mcp.WithDescription("Leave a Matrix room with an optional reason message"),
				mcp.WithDestructiveHintAnnotation(true),
				mcp.WithString("roomId", mcp.Required(), mcp.Description(roomIDDescription)),
				mcp.WithString("reason", mcp.Description("Optional reason for leaving the room")),
			),
			Handler: t.withSession("leave-room", "leave room", t.handleLeaveRoom),
		},
		{
			Definition: mcp.NewTool("invite-user",
				mcp.WithTitleAnnotation("Invite User to Matrix Room"),
				mcp.WithDescription("Invite a user to a Matrix room. Requires appropriate permissions in the room"),
				mcp.WithString("roomId", mcp.Required(), mcp.Description(roomIDDescription)),
				mcp.WithString("targetUserId", mcp.Required(),
					mcp.Description("Target user's Matrix ID to invite (e.g., @user:domain.com)")),
			),
			Handler: t.withSession("invite-user", "invite user", t.handleInviteUser),
		},
	}
}

func (t *Toolset) handleCreateRoom(ctx context.Context, req mcp.CallToolRequest, call *toolCall) (*mcp.CallToolResult, error) {
	name, errRes := requireString(req, "roomName")
	if errRes != nil {
		return errRes, nil
	}
	opts := matrix.CreateRoomOptions{
		Name:    name,
		Topic:   req.GetString("topic", ""),
		Alias:   strings.TrimPrefix(req.GetString("roomAlias", ""), "#"),
		Private: req.GetBool("isPrivate", false),
		Invite:  req.GetStringSlice("inviteUsers", nil),
	}

	roomID, err := call.session.CreateRoom(ctx, opts)
	if err != nil {
		switch {
		case errors.Is(err, matrix.ErrRoomInUse):
			return errorResult("Error: Room alias %q is already in use", opts.Alias), nil
		case errors.Is(err, matrix.ErrRateLimited):
			return errorResult("Error: Rate limited when creating room - please try again later"), nil
		case errors.Is(err, matrix.ErrForbidden):
			return errorResult("Error: You don't have permission to create rooms on this homeserver"), nil
		}
		return nil, err
	}

	alias := "No alias"
	if opts.Alias != "" {
		alias = fmt.Sprintf("#%s:%s", opts.Alias, serverName(call.self()))
	}
	privacy := "Public"
	if opts.Private {
		privacy = "Private"
	}
	invited := "None"
	if len(opts.Invite) > 0 {
		invited = strings.Join(opts.Invite, ", ")
	}
	return textResult(fmt.Sprintf(`Successfully created room: %s
Room ID: %s
Alias: %s
Privacy: %s
Topic: %s
Invited users: %s`,
		name, roomID, alias, privacy, orDefault(opts.Topic, "No topic set"), invited)), nil
}

func (t *Toolset) handleJoinRoom(ctx context.Context, req mcp.CallToolRequest, call *toolCall) (*mcp.CallToolResult, error) {
	target, errRes := requireString(req, "roomIdOrAlias")
	if errRes != nil {
		return errRes, nil
	}
	if room, ok := call.session.Room(target); ok {
		return textResult(fmt.Sprintf("You are already a member of room %s", room.DisplayName(call.self()))), nil
	}

	roomID, err := call.session.JoinRoom(ctx, target)
	if err != nil {
		switch {
		case errors.Is(err, matrix.ErrNotFound):
			return errorResult("Error: Room %s not found", target), nil
		case errors.Is(err, matrix.ErrForbidden):
			return errorResult("Error: Access denied to room %s - it may be private or you may be banned", target), nil
		case errors.Is(err, matrix.ErrRateLimited):
			return errorResult("Error: Rate limited when trying to join room %s - please try again later", target), nil
		}
		return nil, err
	}

	name, members := "Unnamed Room", "Unknown"
	if room, ok := call.session.Room(roomID); ok {
		name = room.DisplayName(call.self())
		members = fmt.Sprint(len(room.JoinedMembers()))
	}
	text := fmt.Sprintf("Successfully joined room: %s\nRoom ID: %s\nMembers: %s", name, roomID, members)
	if target != roomID {
		text += "\nJoined via alias: " + target
	}
	return textResult(text), nil
}

func (t *Toolset) handleLeaveRoom(ctx context.Context, req mcp.CallToolRequest, call *toolCall) (*mcp.CallToolResult, error) {
	roomID, errRes := requireString(req, "roomId")
	if errRes != nil {
		return errRes, nil
	}
	reason := req.GetString("reason", "")

	room, ok := call.session.Room(roomID)
	if !ok {
		return roomNotFound(roomID), nil
	}
	name := room.DisplayName(call.self())
	if membership := room.Membership(call.self()); membership != "" && membership != matrix.MembershipJoin {
		return textResult(fmt.Sprintf("You are not currently joined to room %s. Current membership: %s", name, membership)), nil
	}

	if err := call.session.LeaveRoom(ctx, roomID, reason); err != nil {
		switch {
		case errors.Is(err, matrix.ErrNotFound):
			return errorResult("Error: Room %s not found", roomID), nil
		case errors.Is(err, matrix.ErrForbidden):
			return errorResult("Error: Cannot leave room %s - you may not have permission or may not be a member", roomID), nil
		}
		return nil, err
	}

	text := fmt.Sprintf("Successfully left room: %s\nRoom ID: %s", name, roomID)
	if reason != "" {
		text += "\nReason: " + reason
	}
	return textResult(text), nil
}

func (t *Toolset) handleInviteUser(ctx context.Context, req mcp.CallToolRequest, call *toolCall) (*mcp.CallToolResult, error) {
	roomID, errRes := requireString(req, "roomId")
	if errRes != nil {
		return errRes, nil
	}
	target, errRes := requireString(req, "targetUserId")
	if errRes != nil {
		return errRes, nil
	}
	room, ok := call.session.Room(roomID)
	if !ok {
		return roomNotFound(roomID), nil
	}
	name := room.DisplayName(call.self())

	switch room.Membership(target) {
	case matrix.MembershipJoin:
		return textResult(fmt.Sprintf("User %s is already a member of room %s", target, name)), nil
	case matrix.MembershipInvite:
		return textResult(fmt.Sprintf("User %s has already been invited to room %s", target, name)), nil
	case matrix.MembershipBan:
		return errorResult("User %s is banned from room %s. Cannot invite banned users.", target, name), nil
	}

	levels := room.EffectivePowerLevels()
	if !levels.CanInvite(call.self()) {
		return errorResult("Error: You don't have permission to invite users to this room. Required power level: %d, your level: %d",
			levels.Invite, levels.UserLevel(call.self())), nil
	}

	if err := call.session.InviteUser(ctx, roomID, target); err != nil {
		switch {
		case errors.Is(err, matrix.ErrNotFound):
			return errorResult("Error: User %s not found or room %s not found", target, roomID), nil
		case errors.Is(err, matrix.ErrForbidden):
			return errorResult("Error: Cannot invite %s to room - you may not have permission or the user may be banned", target), nil
		case errors.Is(err, matrix.ErrRateLimited):
			return errorResult("Error: Rate limited when inviting user - please try again later"), nil
		}
		return nil, err
	}
	return textResult(fmt.Sprintf("Successfully invited %s to room %s\nRoom ID: %s\nThe user will receive an invitation and can choose to join the room.",
		target, name, roomID)), nil
}
