package tools

import (
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matrixmcp/internal/matrix"
	"matrixmcp/internal/oauth"
)

func TestTools_Names(t *testing.T) {
	ts, _, _ := newFixture()

	var names []string
	for _, tool := range ts.Tools() {
		names = append(names, tool.Definition.Name)
	}
	assert.ElementsMatch(t, []string{
		"list-joined-rooms", "get-room-info", "get-room-members",
		"get-room-messages", "get-messages-by-date", "identify-active-users",
		"get-user-profile", "get-my-profile", "get-all-users",
		"search-public-rooms",
		"get-notification-counts", "get-direct-messages",
		"send-message", "send-direct-message",
		"set-room-name", "set-room-topic",
		"create-room", "join-room", "leave-room", "invite-user",
	}, names)

	s := server.NewMCPServer("test", "0.0.0", server.WithToolCapabilities(false))
	ts.Register(s)
}

func TestSessionErrors(t *testing.T) {
	t.Run("exchange failure names the step", func(t *testing.T) {
		ts, src, _ := newFixture()
		src.err = &matrix.StepError{Step: matrix.StepExchange, Err: &oauth.ExchangeError{StatusCode: 400}}

		res := callTool(t, ts, "list-joined-rooms", nil)
		assert.True(t, res.IsError)
		assert.Contains(t, firstText(t, res), "Matrix session exchange failed")
		assert.NotContains(t, firstText(t, res), "syt_token")
	})

	t.Run("timeout is reported as temporary", func(t *testing.T) {
		ts, src, _ := newFixture()
		src.err = &matrix.StepError{Step: matrix.StepBootstrap, Err: matrix.ErrTimeout}

		res := callTool(t, ts, "list-joined-rooms", nil)
		assert.True(t, res.IsError)
		assert.Contains(t, firstText(t, res), "bootstrap failed")
		assert.Contains(t, firstText(t, res), "temporary")
	})
}

func TestHomeserverErrorsInvalidate(t *testing.T) {
	ts, src, s := newFixture()
	s.AddRoom("!r:example.org", "General", self)

	s.Err = errors.New("connection reset")
	res := callTool(t, ts, "get-room-messages", map[string]any{"roomId": "!r:example.org"})
	assert.True(t, res.IsError)
	assert.Equal(t, "Error: Failed to get room messages - connection reset", firstText(t, res))
	assert.Equal(t, 1, src.invalidations())

	s.Err = matrix.ErrRateLimited
	res = callTool(t, ts, "get-room-messages", map[string]any{"roomId": "!r:example.org"})
	assert.True(t, res.IsError)
	assert.Equal(t, 1, src.invalidations(), "rate limits keep the session")
}

func TestListJoinedRooms(t *testing.T) {
	ts, _, s := newFixture()

	res := callTool(t, ts, "list-joined-rooms", nil)
	assert.Equal(t, "You have not joined any rooms", firstText(t, res))

	s.AddRoom("!a:example.org", "Alpha", self, "@bob:example.org")
	s.AddRoom("!b:example.org", "", self, "@bob:example.org")

	res = callTool(t, ts, "list-joined-rooms", nil)
	assert.Equal(t, []string{
		"Room: Alpha (!a:example.org) - 2 members",
		"Room: @bob:example.org (!b:example.org) - 2 members",
	}, texts(t, res))
}

func TestGetRoomInfo(t *testing.T) {
	ts, _, s := newFixture()
	room := s.AddRoom("!r:example.org", "General", self)
	room.Topic = "Chat"
	room.Encrypted = true
	room.Creator = self
	room.CreatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	res := callTool(t, ts, "get-room-info", map[string]any{"roomId": "!r:example.org"})
	require.False(t, res.IsError)
	text := firstText(t, res)
	assert.Contains(t, text, "Name: General")
	assert.Contains(t, text, "Alias: No alias")
	assert.Contains(t, text, "Topic: Chat")
	assert.Contains(t, text, "Members: 1")
	assert.Contains(t, text, "Encrypted: Yes")
	assert.Contains(t, text, "Created: 2024-01-01T00:00:00Z")

	res = callTool(t, ts, "get-room-info", map[string]any{"roomId": "!missing:example.org"})
	assert.True(t, res.IsError)
	assert.Contains(t, firstText(t, res), "not found")

	res = callTool(t, ts, "get-room-info", map[string]any{})
	assert.True(t, res.IsError)
	assert.Equal(t, "Error: roomId argument is required", firstText(t, res))
}

func TestGetRoomMembers(t *testing.T) {
	ts, _, s := newFixture()
	room := s.AddRoom("!r:example.org", "General", self, "@bob:example.org")
	room.Members["@bob:example.org"].DisplayName = "Bob"
	room.Members["@carol:example.org"] = &matrix.Member{UserID: "@carol:example.org", Membership: matrix.MembershipLeave}

	res := callTool(t, ts, "get-room-members", map[string]any{"roomId": "!r:example.org"})
	assert.Equal(t, []string{"@alice:example.org (@alice:example.org)", "Bob (@bob:example.org)"}, texts(t, res))
}

func TestGetRoomMessages(t *testing.T) {
	ts, _, s := newFixture()
	s.AddRoom("!r:example.org", "General", self)
	now := time.Now()
	s.History["!r:example.org"] = []matrix.Message{
		{Sender: self, MsgType: matrix.MsgTypeText, Body: "newest", Timestamp: now},
		{Sender: self, MsgType: matrix.MsgTypeImage, Image: &matrix.MediaRef{URL: "mxc://x/img", MimeType: "image/png"}, Timestamp: now.Add(-time.Minute)},
		{Sender: self, MsgType: matrix.MsgTypeImage, Image: &matrix.MediaRef{URL: "mxc://x/gone", MimeType: "image/png"}, Timestamp: now.Add(-2 * time.Minute)},
		{Sender: self, MsgType: matrix.MsgTypeText, Body: "oldest", Timestamp: now.Add(-3 * time.Minute)},
	}
	s.Media["mxc://x/img"] = []byte("png-bytes")

	res := callTool(t, ts, "get-room-messages", map[string]any{"roomId": "!r:example.org", "limit": float64(10)})
	require.False(t, res.IsError)
	require.Len(t, res.Content, 3)

	assert.Equal(t, "oldest", res.Content[0].(mcp.TextContent).Text)
	img, ok := res.Content[1].(mcp.ImageContent)
	require.True(t, ok)
	assert.Equal(t, "image/png", img.MIMEType)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("png-bytes")), img.Data)
	assert.Equal(t, "newest", res.Content[2].(mcp.TextContent).Text)

	s.AddRoom("!empty:example.org", "Quiet", self)
	res = callTool(t, ts, "get-room-messages", map[string]any{"roomId": "!empty:example.org"})
	assert.Equal(t, "No messages found in room Quiet", firstText(t, res))
}

func TestGetMessagesByDate(t *testing.T) {
	ts, _, s := newFixture()
	s.AddRoom("!r:example.org", "General", self)
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.History["!r:example.org"] = []matrix.Message{
		{MsgType: matrix.MsgTypeText, Body: "late", Timestamp: base.Add(48 * time.Hour)},
		{MsgType: matrix.MsgTypeText, Body: "inside", Timestamp: base},
		{MsgType: matrix.MsgTypeText, Body: "early", Timestamp: base.Add(-48 * time.Hour)},
	}

	res := callTool(t, ts, "get-messages-by-date", map[string]any{
		"roomId": "!r:example.org", "startDate": "2024-01-01T00:00:00Z", "endDate": "2024-01-02",
	})
	assert.Equal(t, []string{"inside"}, texts(t, res))

	res = callTool(t, ts, "get-messages-by-date", map[string]any{
		"roomId": "!r:example.org", "startDate": "yesterday", "endDate": "2024-01-02",
	})
	assert.True(t, res.IsError)

	res = callTool(t, ts, "get-messages-by-date", map[string]any{
		"roomId": "!r:example.org", "startDate": "2023-01-01", "endDate": "2023-01-02",
	})
	assert.Equal(t, "No messages found in room General between 2023-01-01 and 2023-01-02", firstText(t, res))
}

func TestIdentifyActiveUsers(t *testing.T) {
	ts, _, s := newFixture()
	s.AddRoom("!r:example.org", "General", self)
	s.History["!r:example.org"] = []matrix.Message{
		{Sender: "@bob:example.org", MsgType: matrix.MsgTypeText},
		{Sender: self, MsgType: matrix.MsgTypeText},
		{Sender: "@bob:example.org", MsgType: matrix.MsgTypeText},
	}

	res := callTool(t, ts, "identify-active-users", map[string]any{"roomId": "!r:example.org", "limit": float64(1)})
	assert.Equal(t, []string{"@bob:example.org: 2 messages"}, texts(t, res))
}

func TestGetUserProfile(t *testing.T) {
	ts, _, s := newFixture()
	s.AddRoom("!a:example.org", "Alpha", self, "@bob:example.org")
	s.AddRoom("!b:example.org", "Beta", self)
	s.Profiles["@bob:example.org"] = &matrix.Profile{UserID: "@bob:example.org", DisplayName: "Bob"}
	s.Presences["@bob:example.org"] = &matrix.Presence{State: "online", LastActiveAgo: 5 * time.Minute}

	res := callTool(t, ts, "get-user-profile", map[string]any{"targetUserId": "@bob:example.org"})
	text := firstText(t, res)
	assert.Contains(t, text, "Display Name: Bob")
	assert.Contains(t, text, "Avatar: No avatar set")
	assert.Contains(t, text, "Presence: online")
	assert.Contains(t, text, "Last Active: 5 minutes ago")
	assert.Contains(t, text, "Shared Rooms (up to 5): Alpha")

	res = callTool(t, ts, "get-user-profile", map[string]any{"targetUserId": "@nobody:example.org"})
	assert.True(t, res.IsError)
	assert.Equal(t, "Error: User @nobody:example.org not found or not known to your client.", firstText(t, res))
}

func TestGetMyProfile(t *testing.T) {
	ts, _, s := newFixture()
	s.AddRoom("!dm:example.org", "", self, "@bob:example.org")
	s.AddRoom("!g:example.org", "Group", self, "@bob:example.org", "@carol:example.org")
	s.Profiles[self] = &matrix.Profile{UserID: self, DisplayName: "Alice"}
	s.DeviceList = []matrix.Device{{ID: "FAKEDEVICE", DisplayName: "Laptop"}, {ID: "OTHER"}}

	text := firstText(t, callTool(t, ts, "get-my-profile", nil))
	assert.Contains(t, text, "My Profile: @alice:example.org")
	assert.Contains(t, text, "Display Name: Alice")
	assert.Contains(t, text, "Presence: unknown")
	assert.Contains(t, text, "Joined Rooms: 2")
	assert.Contains(t, text, "Direct Messages: 1")
	assert.Contains(t, text, "Current device: Laptop (FAKEDEVICE)")
	assert.Contains(t, text, "Total devices: 2")
}

func TestGetAllUsers(t *testing.T) {
	ts, _, s := newFixture()

	assert.Equal(t, "No users found in the client cache", firstText(t, callTool(t, ts, "get-all-users", nil)))

	room := s.AddRoom("!a:example.org", "Alpha", self, "@bob:example.org")
	room.Members["@bob:example.org"].DisplayName = "Bob"
	s.AddRoom("!b:example.org", "Beta", self, "@bob:example.org")

	assert.Equal(t, []string{
		"@alice:example.org (@alice:example.org)",
		"Bob (@bob:example.org)",
	}, texts(t, callTool(t, ts, "get-all-users", nil)))
}

func TestSearchPublicRooms(t *testing.T) {
	ts, _, s := newFixture()

	res := callTool(t, ts, "search-public-rooms", map[string]any{"searchTerm": "go"})
	assert.Equal(t, `No public rooms found matching "go"`, firstText(t, res))

	s.Directory = []matrix.PublicRoom{
		{RoomID: "!go:example.org", Name: "Gophers", CanonicalAlias: "#go:example.org", Members: 42, AvatarURL: "mxc://x/a"},
		{RoomID: "!x:example.org"},
	}
	res = callTool(t, ts, "search-public-rooms", map[string]any{"limit": float64(5)})
	all := texts(t, res)
	require.Len(t, all, 3)
	assert.Equal(t, "Found 2 public rooms:", all[0])
	assert.Contains(t, all[1], "Gophers (#go:example.org)")
	assert.Contains(t, all[1], "Members: 42")
	assert.Contains(t, all[1], "Avatar: Has avatar")
	assert.Contains(t, all[2], "Unnamed Room (!x:example.org)")
	assert.Contains(t, all[2], "Topic: No topic")
}

func TestGetNotificationCounts(t *testing.T) {
	ts, _, s := newFixture()
	quiet := s.AddRoom("!quiet:example.org", "Quiet", self)
	busy := s.AddRoom("!busy:example.org", "Busy", self)
	busy.NotificationCount = 4
	busy.HighlightCount = 1

	all := texts(t, callTool(t, ts, "get-notification-counts", nil))
	require.Len(t, all, 2)
	assert.Contains(t, all[0], "Total unread messages: 4")
	assert.Contains(t, all[0], "Rooms with notifications: 1")
	assert.Contains(t, all[1], "Busy (!busy:example.org)")

	filtered := texts(t, callTool(t, ts, "get-notification-counts", map[string]any{"roomFilter": quiet.ID}))
	require.Len(t, filtered, 1)
	assert.Contains(t, filtered[0], "Unread: 0 messages")

	res := callTool(t, ts, "get-notification-counts", map[string]any{"roomFilter": "!none:example.org"})
	assert.True(t, res.IsError)

	busy.NotificationCount, busy.HighlightCount = 0, 0
	assert.Equal(t, "No unread notifications across all rooms", firstText(t, callTool(t, ts, "get-notification-counts", nil)))
}

func TestGetDirectMessages(t *testing.T) {
	ts, _, s := newFixture()

	assert.Equal(t, "No direct message conversations found", firstText(t, callTool(t, ts, "get-direct-messages", nil)))

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	older := s.AddRoom("!bob:example.org", "", self, "@bob:example.org")
	older.LastMessage = &matrix.TimelineEntry{Body: "hi", Timestamp: base}
	newer := s.AddRoom("!carol:example.org", "", self, "@carol:example.org")
	long := make([]rune, 150)
	for i := range long {
		long[i] = 'x'
	}
	newer.LastMessage = &matrix.TimelineEntry{Body: string(long), Timestamp: base.Add(time.Hour)}
	s.AddRoom("!dave:example.org", "", self, "@dave:example.org")

	all := texts(t, callTool(t, ts, "get-direct-messages", nil))
	require.Len(t, all, 3)
	assert.Equal(t, "Found 2 direct message conversations:", all[0])
	assert.Contains(t, all[1], "@carol:example.org")
	assert.Contains(t, all[1], "Preview: "+string(long[:100])+"...")
	assert.Contains(t, all[2], "@bob:example.org")

	withEmpty := texts(t, callTool(t, ts, "get-direct-messages", map[string]any{"includeEmpty": true}))
	require.Len(t, withEmpty, 4)
	assert.Contains(t, withEmpty[3], "Preview: No recent messages")
}
