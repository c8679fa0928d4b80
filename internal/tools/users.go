package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"matrixmcp/internal/matrix"
	"matrixmcp/pkg/logging"
)

const maxSharedRooms = 5

func (t *Toolset) userTools() []Tool {
	return []Tool{
		{
			Definition: mcp.NewTool("get-user-profile",
				mcp.WithTitleAnnotation("Get Matrix User Profile"),
				mcp.WithDescription("Get profile information for a specific Matrix user including display name, avatar, and presence"),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithString("targetUserId", mcp.Required(),
					mcp.Description("Target user's Matrix ID to get profile for (e.g., @user:domain.com)")),
			),
			Handler: t.withSession("get-user-profile", "get user profile", t.handleGetUserProfile),
		},
		{
			Definition: mcp.NewTool("get-my-profile",
				mcp.WithTitleAnnotation("Get My Matrix Profile"),
				mcp.WithDescription("Get your own profile information including display name, avatar, settings, and device list"),
				mcp.WithReadOnlyHintAnnotation(true),
			),
			Handler: t.withSession("get-my-profile", "get your profile", t.handleGetMyProfile),
		},
		{
			Definition: mcp.NewTool("get-all-users",
				mcp.WithTitleAnnotation("Get All Known Users"),
				mcp.WithDescription("List all users known to the Matrix client, including their display names and user IDs"),
				mcp.WithReadOnlyHintAnnotation(true),
			),
			Handler: t.withSession("get-all-users", "get users", t.handleGetAllUsers),
		},
	}
}

func (t *Toolset) handleGetUserProfile(ctx context.Context, req mcp.CallToolRequest, call *toolCall) (*mcp.CallToolResult, error) {
	target, errRes := requireString(req, "targetUserId")
	if errRes != nil {
		return errRes, nil
	}

	profile, err := call.session.Profile(ctx, target)
	if err != nil {
		if errors.Is(err, matrix.ErrNotFound) {
			return errorResult("Error: User %s not found or not known to your client.", target), nil
		}
		return nil, err
	}
	presence := lookupPresence(ctx, call.session, target)

	var shared []string
	for _, room := range matrix.RoomsSharedWith(call.session.JoinedRooms(), target) {
		if len(shared) == maxSharedRooms {
			break
		}
		shared = append(shared, room.DisplayName(call.self()))
	}
	sharedText := "None visible"
	if len(shared) > 0 {
		sharedText = strings.Join(shared, ", ")
	}

	return textResult(fmt.Sprintf(`User Profile: %s
Display Name: %s
Avatar: %s
Presence: %s
Status: %s
Last Active: %s
Shared Rooms (up to 5): %s`,
		target,
		orDefault(profile.DisplayName, "No display name set"),
		orDefault(profile.AvatarURL, "No avatar set"),
		orDefault(presence.State, "unknown"),
		orDefault(presence.StatusMsg, "No status message"),
		lastActive(presence.LastActiveAgo),
		sharedText,
	)), nil
}

func (t *Toolset) handleGetMyProfile(ctx context.Context, _ mcp.CallToolRequest, call *toolCall) (*mcp.CallToolResult, error) {
	self := call.self()
	profile, err := call.session.Profile(ctx, self)
	if err != nil {
		if errors.Is(err, matrix.ErrNotFound) {
			return errorResult("Error: Could not retrieve your own profile information."), nil
		}
		return nil, err
	}
	presence := lookupPresence(ctx, call.session, self)

	deviceInfo := "Unable to retrieve device list"
	if devices, err := call.session.Devices(ctx); err != nil {
		logging.Warn("Tools", "Could not retrieve devices for %s: %v", logging.TruncateIdentity(self), err)
	} else {
		current := "Unknown"
		for _, d := range devices {
			if d.ID == call.session.DeviceID() {
				current = orDefault(d.DisplayName, "Unknown")
			}
		}
		deviceInfo = fmt.Sprintf("Current device: %s (%s)\nTotal devices: %d",
			current, call.session.DeviceID(), len(devices))
	}

	rooms := call.session.JoinedRooms()
	dmCount := 0
	for _, room := range rooms {
		if len(room.JoinedMembers()) == 2 {
			dmCount++
		}
	}

	return textResult(fmt.Sprintf(`My Profile: %s
Display Name: %s
Avatar: %s
Presence: %s
Status: %s
Joined Rooms: %d
Direct Messages: %d
%s`,
		self,
		orDefault(profile.DisplayName, "No display name set"),
		orDefault(profile.AvatarURL, "No avatar set"),
		orDefault(presence.State, "unknown"),
		orDefault(presence.StatusMsg, "No status message"),
		len(rooms),
		dmCount,
		deviceInfo,
	)), nil
}

func (t *Toolset) handleGetAllUsers(_ context.Context, _ mcp.CallToolRequest, call *toolCall) (*mcp.CallToolResult, error) {
	names := map[string]string{}
	for _, room := range call.session.JoinedRooms() {
		for _, m := range room.Members {
			if m.Membership != matrix.MembershipJoin && m.Membership != matrix.MembershipInvite {
				continue
			}
			if names[m.UserID] == "" {
				names[m.UserID] = m.DisplayName
			}
		}
	}
	if len(names) == 0 {
		return textResult("No users found in the client cache"), nil
	}

	ids := make([]string, 0, len(names))
	for id := range names {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	texts := make([]string, 0, len(ids))
	for _, id := range ids {
		texts = append(texts, fmt.Sprintf("%s (%s)", orDefault(names[id], id), id))
	}
	return textResult(texts...), nil
}

// lookupPresence returns an empty Presence when the homeserver does not
// share it.
func lookupPresence(ctx context.Context, s matrix.Session, userID string) *matrix.Presence {
	presence, err := s.Presence(ctx, userID)
	if err != nil {
		logging.Debug("Tools", "Presence unavailable for %s: %v", logging.TruncateIdentity(userID), err)
		return &matrix.Presence{}
	}
	return presence
}

func lastActive(ago time.Duration) string {
	if ago <= 0 {
		return "Unknown"
	}
	return fmt.Sprintf("%d minutes ago", int(ago.Minutes()))
}
