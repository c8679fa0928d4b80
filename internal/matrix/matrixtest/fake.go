// Package matrixtest provides an in-memory Matrix session for tests.
package matrixtest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"matrixmcp/internal/matrix"
)

// SentMessage records a SendMessage call.
type SentMessage struct {
	RoomID  string
	Message matrix.OutgoingMessage
}

// Session is a scriptable matrix.Transport. Set fields before use; the
// recorded calls are safe to read after the calls returned.
type Session struct {
	mu sync.Mutex

	User       string
	Home       string
	Device     string
	Rooms      map[string]*matrix.Room
	Direct     map[string][]string
	History    map[string][]matrix.Message // newest first, as returned by backward pagination
	Events     map[string]matrix.Message
	Profiles   map[string]*matrix.Profile
	Presences  map[string]*matrix.Presence
	DeviceList []matrix.Device
	Directory  []matrix.PublicRoom
	Media      map[string][]byte

	// Err, when set, is returned by every homeserver request.
	Err error

	// Bootstrap behaviour.
	LoginErr    error
	SyncErr     error
	SyncHangs   bool
	AccessToken string
	LoginToken  string
	CloseErr    error
	CloseCount  int
	SyncStarted bool

	Sent         []SentMessage
	Names        map[string]string
	Topics       map[string]string
	Created      []matrix.CreateRoomOptions
	Joined       []string
	Left         []string
	Invited      []string
	MarkedDirect []string
	CreateRoomID string
}

// New returns a session for user on server with no rooms.
func New(user, server string) *Session {
	return &Session{
		User:      user,
		Home:      server,
		Device:    "FAKEDEVICE",
		Rooms:     map[string]*matrix.Room{},
		Direct:    map[string][]string{},
		History:   map[string][]matrix.Message{},
		Events:    map[string]matrix.Message{},
		Profiles:  map[string]*matrix.Profile{},
		Presences: map[string]*matrix.Presence{},
		Media:     map[string][]byte{},
		Names:     map[string]string{},
		Topics:    map[string]string{},
	}
}

// AddRoom registers a joined room and returns it for further setup.
func (s *Session) AddRoom(roomID, name string, members ...string) *matrix.Room {
	room := &matrix.Room{ID: roomID, Name: name, Members: map[string]*matrix.Member{}}
	for _, m := range members {
		room.Members[m] = &matrix.Member{UserID: m, Membership: matrix.MembershipJoin}
	}
	s.Rooms[roomID] = room
	return room
}

func (s *Session) UserID() string   { return s.User }
func (s *Session) Server() string   { return s.Home }
func (s *Session) DeviceID() string { return s.Device }

func (s *Session) SetAccessToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AccessToken = token
}

func (s *Session) LoginWithToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LoginToken = token
	if s.LoginErr != nil {
		return s.LoginErr
	}
	s.AccessToken = "session-" + token
	return nil
}

func (s *Session) StartSync(ctx context.Context) (<-chan struct{}, <-chan error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SyncStarted = true

	prepared := make(chan struct{})
	failed := make(chan error, 1)
	switch {
	case s.SyncHangs:
	case s.SyncErr != nil:
		failed <- s.SyncErr
	default:
		close(prepared)
	}
	return prepared, failed
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCount++
	return s.CloseErr
}

// Closed reports how many times Close was called.
func (s *Session) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CloseCount
}

func (s *Session) JoinedRooms() []*matrix.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*matrix.Room, 0, len(s.Rooms))
	for _, r := range s.Rooms {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Session) Room(roomID string) (*matrix.Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.Rooms[roomID]
	return r, ok
}

func (s *Session) DirectRooms() map[string][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]string, len(s.Direct))
	for k, v := range s.Direct {
		out[k] = append([]string(nil), v...)
	}
	return out
}

func (s *Session) RoomMessages(ctx context.Context, roomID string, query matrix.MessageQuery) (*matrix.MessagePage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	history := s.History[roomID]
	start := 0
	if query.From != "" {
		if _, err := fmt.Sscanf(query.From, "t%d", &start); err != nil {
			return nil, fmt.Errorf("bad token %q", query.From)
		}
	}
	if start >= len(history) {
		return &matrix.MessagePage{}, nil
	}
	end := len(history)
	if query.Limit > 0 && start+query.Limit < end {
		end = start + query.Limit
	}
	page := &matrix.MessagePage{Messages: append([]matrix.Message(nil), history[start:end]...)}
	if end < len(history) {
		page.End = fmt.Sprintf("t%d", end)
	}
	return page, nil
}

func (s *Session) Event(ctx context.Context, roomID, eventID string) (*matrix.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	msg, ok := s.Events[eventID]
	if !ok {
		return nil, matrix.ErrNotFound
	}
	return &msg, nil
}

func (s *Session) SendMessage(ctx context.Context, roomID string, msg matrix.OutgoingMessage) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return "", s.Err
	}
	s.Sent = append(s.Sent, SentMessage{RoomID: roomID, Message: msg})
	return fmt.Sprintf("$event%d", len(s.Sent)), nil
}

func (s *Session) SetRoomName(ctx context.Context, roomID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.Names[roomID] = name
	return nil
}

func (s *Session) SetRoomTopic(ctx context.Context, roomID, topic string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.Topics[roomID] = topic
	return nil
}

func (s *Session) CreateRoom(ctx context.Context, opts matrix.CreateRoomOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return "", s.Err
	}
	s.Created = append(s.Created, opts)
	if s.CreateRoomID != "" {
		return s.CreateRoomID, nil
	}
	return fmt.Sprintf("!created%d:example.org", len(s.Created)), nil
}

func (s *Session) JoinRoom(ctx context.Context, roomIDOrAlias string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return "", s.Err
	}
	s.Joined = append(s.Joined, roomIDOrAlias)
	return "!joined:example.org", nil
}

func (s *Session) LeaveRoom(ctx context.Context, roomID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.Left = append(s.Left, roomID+"|"+reason)
	return nil
}

func (s *Session) InviteUser(ctx context.Context, roomID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.Invited = append(s.Invited, roomID+"|"+userID)
	return nil
}

func (s *Session) MarkDirect(ctx context.Context, userID, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.MarkedDirect = append(s.MarkedDirect, userID+"|"+roomID)
	s.Direct[userID] = append(s.Direct[userID], roomID)
	return nil
}

func (s *Session) Profile(ctx context.Context, userID string) (*matrix.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	p, ok := s.Profiles[userID]
	if !ok {
		return nil, matrix.ErrNotFound
	}
	return p, nil
}

func (s *Session) Presence(ctx context.Context, userID string) (*matrix.Presence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	p, ok := s.Presences[userID]
	if !ok {
		return nil, matrix.ErrNotFound
	}
	return p, nil
}

func (s *Session) Devices(ctx context.Context) ([]matrix.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	return s.DeviceList, nil
}

func (s *Session) PublicRooms(ctx context.Context, query matrix.PublicRoomsQuery) (*matrix.PublicRoomsPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	page := &matrix.PublicRoomsPage{}
	for _, r := range s.Directory {
		if query.Limit > 0 && len(page.Rooms) >= query.Limit {
			break
		}
		page.Rooms = append(page.Rooms, r)
	}
	page.TotalRoomCountEstimate = len(s.Directory)
	return page, nil
}

func (s *Session) DownloadMedia(ctx context.Context, mxcURI string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	data, ok := s.Media[mxcURI]
	if !ok {
		return nil, matrix.ErrNotFound
	}
	return data, nil
}

var _ matrix.Transport = (*Session)(nil)
