package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matrixmcp/internal/matrix"
)

func TestSendMessage(t *testing.T) {
	t.Run("markdown reply", func(t *testing.T) {
		ts, _, s := newFixture()
		s.AddRoom("!r:example.org", "General", self)
		s.Events["$parent"] = matrix.Message{EventID: "$parent"}

		res := callTool(t, ts, "send-message", map[string]any{
			"roomId": "!r:example.org", "message": "*hi*", "messageType": "markdown", "replyToEventId": "$parent",
		})
		require.False(t, res.IsError, firstText(t, res))
		assert.Equal(t, "Message sent successfully to General\nEvent ID: $event1\nMessage type: markdown (reply to $parent)", firstText(t, res))

		require.Len(t, s.Sent, 1)
		assert.Equal(t, "<p><em>hi</em></p>", s.Sent[0].Message.FormattedBody)
		assert.Equal(t, "$parent", s.Sent[0].Message.ReplyTo)
	})

	t.Run("missing reply target", func(t *testing.T) {
		ts, _, s := newFixture()
		s.AddRoom("!r:example.org", "General", self)

		res := callTool(t, ts, "send-message", map[string]any{
			"roomId": "!r:example.org", "message": "hi", "replyToEventId": "$gone",
		})
		assert.True(t, res.IsError)
		assert.Equal(t, "Error: Reply event $gone not found in room", firstText(t, res))
		assert.Empty(t, s.Sent)
	})

	t.Run("insufficient power", func(t *testing.T) {
		ts, _, s := newFixture()
		room := s.AddRoom("!r:example.org", "Announcements", self)
		room.HasPowerLevels = true
		room.PowerLevels = matrix.ParsePowerLevels(map[string]any{"events_default": float64(50)})

		res := callTool(t, ts, "send-message", map[string]any{"roomId": "!r:example.org", "message": "hi"})
		assert.True(t, res.IsError)
		assert.Contains(t, firstText(t, res), "Required power level: 50, your level: 0")
		assert.Empty(t, s.Sent)
	})

	t.Run("unknown type", func(t *testing.T) {
		ts, _, s := newFixture()
		s.AddRoom("!r:example.org", "General", self)

		res := callTool(t, ts, "send-message", map[string]any{"roomId": "!r:example.org", "message": "hi", "messageType": "shout"})
		assert.True(t, res.IsError)
		assert.Equal(t, "Error: unsupported message type: shout", firstText(t, res))
	})
}

func TestSendDirectMessage(t *testing.T) {
	t.Run("existing room", func(t *testing.T) {
		ts, _, s := newFixture()
		s.AddRoom("!dm:example.org", "", self, "@bob:example.org")

		res := callTool(t, ts, "send-direct-message", map[string]any{"targetUserId": "@bob:example.org", "message": "hey"})
		require.False(t, res.IsError)
		assert.Contains(t, firstText(t, res), "Room: @bob:example.org (!dm:example.org)")
		assert.Contains(t, firstText(t, res), "Used existing DM room")
		assert.Empty(t, s.Created)
	})

	t.Run("creates room", func(t *testing.T) {
		ts, _, s := newFixture()
		s.CreateRoomID = "!new:example.org"

		res := callTool(t, ts, "send-direct-message", map[string]any{"targetUserId": "@bob:example.org", "message": "hey"})
		require.False(t, res.IsError)
		assert.Contains(t, firstText(t, res), "New DM room created")

		require.Len(t, s.Created, 1)
		assert.True(t, s.Created[0].Direct)
		assert.True(t, s.Created[0].Private)
		assert.Equal(t, []string{"@bob:example.org"}, s.Created[0].Invite)
		assert.Equal(t, []string{"@bob:example.org|!new:example.org"}, s.MarkedDirect)
		require.Len(t, s.Sent, 1)
		assert.Equal(t, "!new:example.org", s.Sent[0].RoomID)
	})

	t.Run("forbidden", func(t *testing.T) {
		ts, src, s := newFixture()
		s.Err = matrix.ErrForbidden

		res := callTool(t, ts, "send-direct-message", map[string]any{"targetUserId": "@bob:example.org", "message": "hey"})
		assert.True(t, res.IsError)
		assert.Contains(t, firstText(t, res), "they may have blocked DMs")
		assert.Zero(t, src.invalidations())
	})
}

func TestSetRoomNameAndTopic(t *testing.T) {
	ts, _, s := newFixture()
	room := s.AddRoom("!r:example.org", "Old", self)
	room.Topic = "Old topic"
	room.HasPowerLevels = true
	room.PowerLevels = matrix.ParsePowerLevels(map[string]any{
		"users":  map[string]any{self: float64(50)},
		"events": map[string]any{"m.room.name": float64(100)},
	})

	res := callTool(t, ts, "set-room-name", map[string]any{"roomId": "!r:example.org", "roomName": "New"})
	assert.True(t, res.IsError)
	assert.Equal(t, "Error: You don't have permission to change the room name. Required power level: 100, your level: 50", firstText(t, res))

	res = callTool(t, ts, "set-room-topic", map[string]any{"roomId": "!r:example.org", "topic": "New topic"})
	require.False(t, res.IsError)
	assert.Equal(t, "Successfully updated room topic for Old\nRoom ID: !r:example.org\nPrevious topic: Old topic\nNew topic: New topic", firstText(t, res))
	assert.Equal(t, "New topic", s.Topics["!r:example.org"])

	room.PowerLevels.Users[self] = 100
	res = callTool(t, ts, "set-room-name", map[string]any{"roomId": "!r:example.org", "roomName": "New"})
	require.False(t, res.IsError)
	assert.Equal(t, "New", s.Names["!r:example.org"])

	s.Err = matrix.ErrRateLimited
	res = callTool(t, ts, "set-room-name", map[string]any{"roomId": "!r:example.org", "roomName": "Newer"})
	assert.Equal(t, "Error: Rate limited when changing room name - please try again later", firstText(t, res))
}

func TestCreateRoom(t *testing.T) {
	ts, _, s := newFixture()
	s.CreateRoomID = "!made:example.org"

	res := callTool(t, ts, "create-room", map[string]any{
		"roomName":    "Project",
		"isPrivate":   true,
		"roomAlias":   "#project",
		"inviteUsers": []any{"@bob:example.org", "@carol:example.org"},
	})
	require.False(t, res.IsError)
	text := firstText(t, res)
	assert.Contains(t, text, "Room ID: !made:example.org")
	assert.Contains(t, text, "Alias: #project:example.org")
	assert.Contains(t, text, "Privacy: Private")
	assert.Contains(t, text, "Invited users: @bob:example.org, @carol:example.org")

	require.Len(t, s.Created, 1)
	assert.Equal(t, "project", s.Created[0].Alias)

	s.Err = matrix.ErrRoomInUse
	res = callTool(t, ts, "create-room", map[string]any{"roomName": "Dup", "roomAlias": "taken"})
	assert.Equal(t, `Error: Room alias "taken" is already in use`, firstText(t, res))
}

func TestJoinLeaveInvite(t *testing.T) {
	ts, _, s := newFixture()
	room := s.AddRoom("!r:example.org", "General", self, "@bob:example.org")
	room.Members["@eve:example.org"] = &matrix.Member{UserID: "@eve:example.org", Membership: matrix.MembershipBan}

	res := callTool(t, ts, "join-room", map[string]any{"roomIdOrAlias": "!r:example.org"})
	assert.Equal(t, "You are already a member of room General", firstText(t, res))

	res = callTool(t, ts, "join-room", map[string]any{"roomIdOrAlias": "#other:example.org"})
	require.False(t, res.IsError)
	assert.Equal(t, "Successfully joined room: Unnamed Room\nRoom ID: !joined:example.org\nMembers: Unknown\nJoined via alias: #other:example.org", firstText(t, res))

	res = callTool(t, ts, "invite-user", map[string]any{"roomId": "!r:example.org", "targetUserId": "@bob:example.org"})
	assert.Equal(t, "User @bob:example.org is already a member of room General", firstText(t, res))

	res = callTool(t, ts, "invite-user", map[string]any{"roomId": "!r:example.org", "targetUserId": "@eve:example.org"})
	assert.True(t, res.IsError)

	res = callTool(t, ts, "invite-user", map[string]any{"roomId": "!r:example.org", "targetUserId": "@carol:example.org"})
	require.False(t, res.IsError)
	assert.Equal(t, []string{"!r:example.org|@carol:example.org"}, s.Invited)

	res = callTool(t, ts, "leave-room", map[string]any{"roomId": "!r:example.org", "reason": "bye"})
	require.False(t, res.IsError)
	assert.Equal(t, "Successfully left room: General\nRoom ID: !r:example.org\nReason: bye", firstText(t, res))
	assert.Equal(t, []string{"!r:example.org|bye"}, s.Left)
}
