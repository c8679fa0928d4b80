package matrix

import (
	"encoding/json"
	"strconv"
	"time"
)

// Event types read from sync responses and room history.
const (
	EventTypeMessage           = "m.room.message"
	EventTypeName              = "m.room.name"
	EventTypeTopic             = "m.room.topic"
	EventTypeCanonicalAlias    = "m.room.canonical_alias"
	EventTypeMember            = "m.room.member"
	EventTypeEncryption        = "m.room.encryption"
	EventTypeCreate            = "m.room.create"
	EventTypePowerLevels       = "m.room.power_levels"
	EventTypeDirect            = "m.direct"
	EventTypeGuestAccess       = "m.room.guest_access"
	EventTypeHistoryVisibility = "m.room.history_visibility"
)

// WireEvent is a client-server API event as it appears on the wire.
type WireEvent struct {
	Type           string         `json:"type"`
	StateKey       *string        `json:"state_key,omitempty"`
	Sender         string         `json:"sender,omitempty"`
	EventID        string         `json:"event_id,omitempty"`
	RoomID         string         `json:"room_id,omitempty"`
	OriginServerTS int64          `json:"origin_server_ts,omitempty"`
	Content        map[string]any `json:"content"`
}

// IsState reports whether the event carries a state key.
func (e *WireEvent) IsState() bool {
	return e.StateKey != nil
}

// Key returns the state key, or "" for non-state events.
func (e *WireEvent) Key() string {
	if e.StateKey == nil {
		return ""
	}
	return *e.StateKey
}

// Timestamp converts origin_server_ts to a time.
func (e *WireEvent) Timestamp() time.Time {
	if e.OriginServerTS == 0 {
		return time.Time{}
	}
	return time.UnixMilli(e.OriginServerTS)
}

// ContentString returns a string content field, "" if absent or not a string.
func (e *WireEvent) ContentString(key string) string {
	s, _ := e.Content[key].(string)
	return s
}

// ContentMap returns a nested object content field.
func (e *WireEvent) ContentMap(key string) map[string]any {
	m, _ := e.Content[key].(map[string]any)
	return m
}

// SyncPayload is the subset of a /sync response the room snapshot uses.
type SyncPayload struct {
	NextBatch   string    `json:"next_batch"`
	AccountData EventList `json:"account_data"`
	Rooms       SyncRooms `json:"rooms"`
}

// SyncRooms groups rooms by membership.
type SyncRooms struct {
	Join   map[string]JoinedRoomSync  `json:"join"`
	Leave  map[string]LeftRoomSync    `json:"leave"`
	Invite map[string]json.RawMessage `json:"invite"`
}

// EventList is a list of events.
type EventList struct {
	Events []*WireEvent `json:"events"`
}

// JoinedRoomSync is the update for one joined room.
type JoinedRoomSync struct {
	State               EventList           `json:"state"`
	Timeline            TimelineSync        `json:"timeline"`
	AccountData         EventList           `json:"account_data"`
	UnreadNotifications UnreadNotifications `json:"unread_notifications"`
}

// LeftRoomSync is the update for a room the user left.
type LeftRoomSync struct {
	State    EventList    `json:"state"`
	Timeline TimelineSync `json:"timeline"`
}

// TimelineSync is a timeline slice.
type TimelineSync struct {
	Events    []*WireEvent `json:"events"`
	Limited   bool         `json:"limited"`
	PrevBatch string       `json:"prev_batch"`
}

// UnreadNotifications are the server-computed counts for a room.
type UnreadNotifications struct {
	HighlightCount    int `json:"highlight_count"`
	NotificationCount int `json:"notification_count"`
}

// intValue reads a JSON number that may also be encoded as a string, as
// some older rooms do for power levels.
func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	default:
		return 0, false
	}
}
