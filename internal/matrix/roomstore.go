package matrix

import (
	"sort"
	"sync"
)

// RoomStore holds the joined-room snapshot maintained from sync responses.
type RoomStore struct {
	mu     sync.RWMutex
	rooms  map[string]*Room
	direct map[string][]string
	since  string
}

// NewRoomStore returns an empty store.
func NewRoomStore() *RoomStore {
	return &RoomStore{
		rooms:  map[string]*Room{},
		direct: map[string][]string{},
	}
}

// ApplySync folds one sync response into the snapshot.
func (s *RoomStore) ApplySync(payload *SyncPayload) {
	if payload == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, evt := range payload.AccountData.Events {
		if evt != nil && evt.Type == EventTypeDirect {
			s.direct = parseDirect(evt.Content)
		}
	}

	for roomID, update := range payload.Rooms.Join {
		room, ok := s.rooms[roomID]
		if !ok {
			room = newRoom(roomID)
			s.rooms[roomID] = room
		}
		for _, evt := range update.State.Events {
			applyStateEvent(room, evt)
		}
		for _, evt := range update.Timeline.Events {
			if evt == nil {
				continue
			}
			if evt.IsState() {
				applyStateEvent(room, evt)
			}
			applyTimelineEvent(room, evt)
		}
		room.NotificationCount = update.UnreadNotifications.NotificationCount
		room.HighlightCount = update.UnreadNotifications.HighlightCount
	}

	for roomID := range payload.Rooms.Leave {
		delete(s.rooms, roomID)
	}

	if payload.NextBatch != "" {
		s.since = payload.NextBatch
	}
}

// Since returns the batch token of the last applied sync.
func (s *RoomStore) Since() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.since
}

// JoinedRooms returns copies of all joined rooms ordered by room ID.
func (s *RoomStore) JoinedRooms() []*Room {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		out = append(out, room.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Room returns a copy of one joined room.
func (s *RoomStore) Room(roomID string) (*Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return nil, false
	}
	return room.clone(), true
}

// DirectRooms returns a copy of the m.direct mapping.
func (s *RoomStore) DirectRooms() map[string][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]string, len(s.direct))
	for user, rooms := range s.direct {
		out[user] = append([]string(nil), rooms...)
	}
	return out
}

// AddDirect records roomID as a direct room with userID in the local
// snapshot. The next sync of m.direct replaces it.
func (s *RoomStore) AddDirect(userID, roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.direct[userID] {
		if existing == roomID {
			return
		}
	}
	s.direct[userID] = append(s.direct[userID], roomID)
}

func applyStateEvent(room *Room, evt *WireEvent) {
	if evt == nil || !evt.IsState() {
		return
	}
	switch evt.Type {
	case EventTypeName:
		room.Name = evt.ContentString("name")
	case EventTypeTopic:
		room.Topic = evt.ContentString("topic")
	case EventTypeCanonicalAlias:
		room.CanonicalAlias = evt.ContentString("alias")
	case EventTypeEncryption:
		room.Encrypted = evt.ContentString("algorithm") != ""
	case EventTypeCreate:
		room.Creator = evt.ContentString("creator")
		if room.Creator == "" {
			room.Creator = evt.Sender
		}
		room.CreatedAt = evt.Timestamp()
	case EventTypePowerLevels:
		room.PowerLevels = ParsePowerLevels(evt.Content)
		room.HasPowerLevels = true
	case EventTypeMember:
		userID := evt.Key()
		if userID == "" {
			return
		}
		room.Members[userID] = &Member{
			UserID:      userID,
			DisplayName: evt.ContentString("displayname"),
			AvatarURL:   evt.ContentString("avatar_url"),
			Membership:  evt.ContentString("membership"),
		}
	}
}

func applyTimelineEvent(room *Room, evt *WireEvent) {
	ts := evt.Timestamp()
	if ts.After(room.LastActivity) {
		room.LastActivity = ts
	}
	if evt.Type != EventTypeMessage {
		return
	}
	if room.LastMessage != nil && ts.Before(room.LastMessage.Timestamp) {
		return
	}
	room.LastMessage = &TimelineEntry{
		EventID:   evt.EventID,
		Sender:    evt.Sender,
		Body:      evt.ContentString("body"),
		Timestamp: ts,
	}
}

func parseDirect(content map[string]any) map[string][]string {
	out := make(map[string][]string, len(content))
	for user, raw := range content {
		list, ok := raw.([]any)
		if !ok {
			continue
		}
		for _, item := range list {
			if roomID, ok := item.(string); ok && roomID != "" {
				out[user] = append(out[user], roomID)
			}
		}
	}
	return out
}

// RoomsSharedWith returns the joined rooms where userID is also joined,
// ordered by room ID.
func RoomsSharedWith(rooms []*Room, userID string) []*Room {
	var out []*Room
	for _, room := range rooms {
		if room.Membership(userID) == MembershipJoin {
			out = append(out, room)
		}
	}
	return out
}
