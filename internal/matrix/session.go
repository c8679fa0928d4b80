package matrix

import (
	"context"
	"time"
)

// Session is a live, authenticated and synced homeserver connection for one
// user. Room state comes from the sync snapshot; everything else is a
// request to the homeserver.
type Session interface {
	// UserID is the Matrix user the session acts as.
	UserID() string
	// Server is the homeserver base URL.
	Server() string
	// DeviceID is the device the access token belongs to.
	DeviceID() string

	// JoinedRooms returns a snapshot of every joined room.
	JoinedRooms() []*Room
	// Room returns a snapshot of one joined room.
	Room(roomID string) (*Room, bool)
	// DirectRooms returns the m.direct account data: user ID to room IDs.
	DirectRooms() map[string][]string

	RoomMessages(ctx context.Context, roomID string, query MessageQuery) (*MessagePage, error)
	Event(ctx context.Context, roomID, eventID string) (*Message, error)
	SendMessage(ctx context.Context, roomID string, msg OutgoingMessage) (string, error)
	SetRoomName(ctx context.Context, roomID, name string) error
	SetRoomTopic(ctx context.Context, roomID, topic string) error
	CreateRoom(ctx context.Context, opts CreateRoomOptions) (string, error)
	JoinRoom(ctx context.Context, roomIDOrAlias string) (string, error)
	LeaveRoom(ctx context.Context, roomID, reason string) error
	InviteUser(ctx context.Context, roomID, userID string) error
	MarkDirect(ctx context.Context, userID, roomID string) error

	Profile(ctx context.Context, userID string) (*Profile, error)
	Presence(ctx context.Context, userID string) (*Presence, error)
	Devices(ctx context.Context) ([]Device, error)
	PublicRooms(ctx context.Context, query PublicRoomsQuery) (*PublicRoomsPage, error)
	DownloadMedia(ctx context.Context, mxcURI string) ([]byte, error)

	// Close stops the background sync. It is safe to call more than once.
	Close() error
}

// Direction of message pagination.
type Direction string

const (
	Backward Direction = "b"
	Forward  Direction = "f"
)

// MessageQuery selects a page of room history.
type MessageQuery struct {
	From      string
	Direction Direction
	Limit     int
}

// MessagePage is one page of room history in the order the homeserver
// returned it.
type MessagePage struct {
	Messages []Message
	// End is the pagination token for the next page, "" at the end of history.
	End string
}

// OutgoingMessage is the content of an m.room.message to send.
type OutgoingMessage struct {
	MsgType       string
	Body          string
	FormattedBody string
	ReplyTo       string
}

// CreateRoomOptions describes a room to create.
type CreateRoomOptions struct {
	Name    string
	Topic   string
	Alias   string
	Private bool
	Direct  bool
	Invite  []string
}

// Profile is a user's global profile.
type Profile struct {
	UserID      string
	DisplayName string
	AvatarURL   string
}

// Presence is a user's presence state.
type Presence struct {
	State           string
	StatusMsg       string
	LastActiveAgo   time.Duration
	CurrentlyActive bool
}

// Device is one of the session user's devices.
type Device struct {
	ID          string
	DisplayName string
	LastSeenIP  string
	LastSeen    time.Time
}

// PublicRoomsQuery searches a room directory.
type PublicRoomsQuery struct {
	Server     string
	SearchTerm string
	Limit      int
}

// PublicRoom is one room directory entry.
type PublicRoom struct {
	RoomID         string `json:"room_id"`
	Name           string `json:"name"`
	Topic          string `json:"topic"`
	CanonicalAlias string `json:"canonical_alias"`
	AvatarURL      string `json:"avatar_url"`
	Members        int    `json:"num_joined_members"`
	WorldReadable  bool   `json:"world_readable"`
	GuestCanJoin   bool   `json:"guest_can_join"`
}

// PublicRoomsPage is the result of a directory search.
type PublicRoomsPage struct {
	Rooms                  []PublicRoom `json:"chunk"`
	TotalRoomCountEstimate int          `json:"total_room_count_estimate"`
	NextBatch              string       `json:"next_batch"`
}
