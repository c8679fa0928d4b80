package matrix

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"matrixmcp/pkg/logging"
)

// mautrixSession is the Transport backed by a mautrix client.
type mautrixSession struct {
	client *mautrix.Client
	server string
	store  *RoomStore

	syncer   *snapshotSyncer
	cancel   context.CancelFunc
	done     chan struct{}
	startMu  sync.Mutex
	started  bool
	closeErr error
	closed   sync.Once
}

// DialMautrix creates an unauthenticated mautrix transport.
func DialMautrix(server, identity string) (Transport, error) {
	client, err := mautrix.NewClient(server, id.UserID(identity), "")
	if err != nil {
		return nil, err
	}

	s := &mautrixSession{
		client: client,
		server: server,
		store:  NewRoomStore(),
		done:   make(chan struct{}),
	}
	s.syncer = newSnapshotSyncer(s.store)
	client.Syncer = s.syncer
	return s, nil
}

func (s *mautrixSession) UserID() string   { return s.client.UserID.String() }
func (s *mautrixSession) Server() string   { return s.server }
func (s *mautrixSession) DeviceID() string { return s.client.DeviceID.String() }

func (s *mautrixSession) SetAccessToken(token string) {
	s.client.AccessToken = token
}

func (s *mautrixSession) LoginWithToken(ctx context.Context, token string) error {
	resp, err := s.client.Login(ctx, &mautrix.ReqLogin{
		Type:             mautrix.AuthTypeToken,
		Token:            token,
		StoreCredentials: true,
	})
	if err != nil {
		return err
	}
	logging.Debug("Matrix", "Token login succeeded for %s (device %s)",
		logging.TruncateIdentity(resp.UserID.String()), resp.DeviceID)
	return nil
}

func (s *mautrixSession) StartSync(ctx context.Context) (<-chan struct{}, <-chan error) {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	if s.started {
		return s.syncer.prepared, s.syncer.failed
	}
	s.started = true

	if s.client.DeviceID == "" {
		resp, err := s.client.Whoami(ctx)
		if err != nil {
			logging.Debug("Matrix", "Could not resolve device for %s: %v",
				logging.TruncateIdentity(s.UserID()), err)
		} else {
			s.client.DeviceID = resp.DeviceID
		}
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go func() {
		defer close(s.done)
		err := s.client.SyncWithContext(loopCtx)
		if err != nil && loopCtx.Err() == nil {
			s.syncer.fail(err)
			logging.Warn("Matrix", "Sync loop for %s stopped: %v",
				logging.TruncateIdentity(s.UserID()), err)
		}
	}()
	return s.syncer.prepared, s.syncer.failed
}

func (s *mautrixSession) Close() error {
	s.closed.Do(func() {
		s.startMu.Lock()
		started := s.started
		s.startMu.Unlock()

		if !started {
			return
		}
		s.client.StopSync()
		s.cancel()
		select {
		case <-s.done:
		case <-time.After(5 * time.Second):
			s.closeErr = fmt.Errorf("sync loop for %s did not stop", s.UserID())
		}
	})
	return s.closeErr
}

func (s *mautrixSession) JoinedRooms() []*Room             { return s.store.JoinedRooms() }
func (s *mautrixSession) Room(roomID string) (*Room, bool) { return s.store.Room(roomID) }
func (s *mautrixSession) DirectRooms() map[string][]string { return s.store.DirectRooms() }

type messagesResponse struct {
	Chunk []*WireEvent `json:"chunk"`
	Start string       `json:"start"`
	End   string       `json:"end"`
}

func (s *mautrixSession) RoomMessages(ctx context.Context, roomID string, query MessageQuery) (*MessagePage, error) {
	params := map[string]string{
		"dir": string(Backward),
	}
	if query.Direction != "" {
		params["dir"] = string(query.Direction)
	}
	if query.From != "" {
		params["from"] = query.From
	}
	if query.Limit > 0 {
		params["limit"] = strconv.Itoa(query.Limit)
	}

	url := s.client.BuildURLWithQuery(mautrix.ClientURLPath{"v3", "rooms", roomID, "messages"}, params)
	var resp messagesResponse
	if _, err := s.client.MakeRequest(ctx, http.MethodGet, url, nil, &resp); err != nil {
		return nil, classifyError(err)
	}

	page := &MessagePage{End: resp.End}
	for _, evt := range resp.Chunk {
		if msg, ok := MessageFromEvent(evt); ok {
			page.Messages = append(page.Messages, msg)
		}
	}
	return page, nil
}

func (s *mautrixSession) Event(ctx context.Context, roomID, eventID string) (*Message, error) {
	url := s.client.BuildClientURL("v3", "rooms", roomID, "event", eventID)
	var evt WireEvent
	if _, err := s.client.MakeRequest(ctx, http.MethodGet, url, nil, &evt); err != nil {
		return nil, classifyError(err)
	}
	msg, ok := MessageFromEvent(&evt)
	if !ok {
		return nil, fmt.Errorf("event %s is not a message: %w", eventID, ErrNotFound)
	}
	return &msg, nil
}

func (s *mautrixSession) SendMessage(ctx context.Context, roomID string, msg OutgoingMessage) (string, error) {
	content := &event.MessageEventContent{
		MsgType: event.MessageType(msg.MsgType),
		Body:    msg.Body,
	}
	if msg.FormattedBody != "" {
		content.Format = event.FormatHTML
		content.FormattedBody = msg.FormattedBody
	}
	if msg.ReplyTo != "" {
		content.RelatesTo = &event.RelatesTo{
			InReplyTo: &event.InReplyTo{EventID: id.EventID(msg.ReplyTo)},
		}
	}

	resp, err := s.client.SendMessageEvent(ctx, id.RoomID(roomID), event.EventMessage, content)
	if err != nil {
		return "", classifyError(err)
	}
	return resp.EventID.String(), nil
}

func (s *mautrixSession) SetRoomName(ctx context.Context, roomID, name string) error {
	_, err := s.client.SendStateEvent(ctx, id.RoomID(roomID), event.StateRoomName, "", map[string]string{"name": name})
	return classifyError(err)
}

func (s *mautrixSession) SetRoomTopic(ctx context.Context, roomID, topic string) error {
	_, err := s.client.SendStateEvent(ctx, id.RoomID(roomID), event.StateTopic, "", map[string]string{"topic": topic})
	return classifyError(err)
}

func (s *mautrixSession) CreateRoom(ctx context.Context, opts CreateRoomOptions) (string, error) {
	req := &mautrix.ReqCreateRoom{
		Name:          opts.Name,
		Topic:         opts.Topic,
		RoomAliasName: opts.Alias,
		IsDirect:      opts.Direct,
		Visibility:    "public",
		Preset:        "public_chat",
	}
	if opts.Private {
		req.Visibility = "private"
		req.Preset = "private_chat"
		if opts.Direct {
			req.Preset = "trusted_private_chat"
		}
	}
	for _, user := range opts.Invite {
		req.Invite = append(req.Invite, id.UserID(user))
	}
	if opts.Private {
		stateKey := ""
		req.InitialState = append(req.InitialState, &event.Event{
			Type:     event.StateGuestAccess,
			StateKey: &stateKey,
			Content:  event.Content{Raw: map[string]any{"guest_access": "forbidden"}},
		})
		if !opts.Direct {
			req.InitialState = append(req.InitialState, &event.Event{
				Type:     event.StateHistoryVisibility,
				StateKey: &stateKey,
				Content:  event.Content{Raw: map[string]any{"history_visibility": "invited"}},
			})
		}
	}

	resp, err := s.client.CreateRoom(ctx, req)
	if err != nil {
		return "", classifyError(err)
	}
	return resp.RoomID.String(), nil
}

func (s *mautrixSession) JoinRoom(ctx context.Context, roomIDOrAlias string) (string, error) {
	roomID := id.RoomID(roomIDOrAlias)
	if strings.HasPrefix(roomIDOrAlias, "#") {
		resolved, err := s.client.ResolveAlias(ctx, id.RoomAlias(roomIDOrAlias))
		if err != nil {
			return "", classifyError(err)
		}
		roomID = resolved.RoomID
	}

	resp, err := s.client.JoinRoomByID(ctx, roomID)
	if err != nil {
		return "", classifyError(err)
	}
	return resp.RoomID.String(), nil
}

func (s *mautrixSession) LeaveRoom(ctx context.Context, roomID, reason string) error {
	_, err := s.client.LeaveRoom(ctx, id.RoomID(roomID), &mautrix.ReqLeave{Reason: reason})
	return classifyError(err)
}

func (s *mautrixSession) InviteUser(ctx context.Context, roomID, userID string) error {
	_, err := s.client.InviteUser(ctx, id.RoomID(roomID), &mautrix.ReqInviteUser{UserID: id.UserID(userID)})
	return classifyError(err)
}

func (s *mautrixSession) MarkDirect(ctx context.Context, userID, roomID string) error {
	direct := map[string][]string{}
	if err := s.client.GetAccountData(ctx, EventTypeDirect, &direct); err != nil {
		// No m.direct yet is reported as M_NOT_FOUND.
		if classified := classifyError(err); !errors.Is(classified, ErrNotFound) {
			return classified
		}
		direct = map[string][]string{}
	}
	for _, existing := range direct[userID] {
		if existing == roomID {
			s.store.AddDirect(userID, roomID)
			return nil
		}
	}
	direct[userID] = append(direct[userID], roomID)
	if err := s.client.SetAccountData(ctx, EventTypeDirect, direct); err != nil {
		return classifyError(err)
	}
	s.store.AddDirect(userID, roomID)
	return nil
}

func (s *mautrixSession) Profile(ctx context.Context, userID string) (*Profile, error) {
	resp, err := s.client.GetProfile(ctx, id.UserID(userID))
	if err != nil {
		return nil, classifyError(err)
	}
	return &Profile{
		UserID:      userID,
		DisplayName: resp.DisplayName,
		AvatarURL:   resp.AvatarURL.String(),
	}, nil
}

func (s *mautrixSession) Presence(ctx context.Context, userID string) (*Presence, error) {
	resp, err := s.client.GetPresence(ctx, id.UserID(userID))
	if err != nil {
		return nil, classifyError(err)
	}
	return &Presence{
		State:           string(resp.Presence),
		StatusMsg:       resp.StatusMsg,
		LastActiveAgo:   time.Duration(resp.LastActiveAgo) * time.Millisecond,
		CurrentlyActive: resp.CurrentlyActive,
	}, nil
}

func (s *mautrixSession) Devices(ctx context.Context) ([]Device, error) {
	resp, err := s.client.GetDevicesInfo(ctx)
	if err != nil {
		return nil, classifyError(err)
	}
	devices := make([]Device, 0, len(resp.Devices))
	for _, d := range resp.Devices {
		dev := Device{
			ID:          d.DeviceID.String(),
			DisplayName: d.DisplayName,
			LastSeenIP:  d.LastSeenIP,
		}
		if d.LastSeenTS > 0 {
			dev.LastSeen = time.UnixMilli(d.LastSeenTS)
		}
		devices = append(devices, dev)
	}
	return devices, nil
}

type publicRoomsRequest struct {
	Limit  int                `json:"limit,omitempty"`
	Filter *publicRoomsFilter `json:"filter,omitempty"`
}

type publicRoomsFilter struct {
	GenericSearchTerm string `json:"generic_search_term,omitempty"`
}

func (s *mautrixSession) PublicRooms(ctx context.Context, query PublicRoomsQuery) (*PublicRoomsPage, error) {
	params := map[string]string{}
	if query.Server != "" {
		params["server"] = query.Server
	}
	body := publicRoomsRequest{Limit: query.Limit}
	if query.SearchTerm != "" {
		body.Filter = &publicRoomsFilter{GenericSearchTerm: query.SearchTerm}
	}

	url := s.client.BuildURLWithQuery(mautrix.ClientURLPath{"v3", "publicRooms"}, params)
	var page PublicRoomsPage
	if _, err := s.client.MakeRequest(ctx, http.MethodPost, url, &body, &page); err != nil {
		return nil, classifyError(err)
	}
	return &page, nil
}

func (s *mautrixSession) DownloadMedia(ctx context.Context, mxcURI string) ([]byte, error) {
	uri, err := id.ParseContentURI(mxcURI)
	if err != nil {
		return nil, fmt.Errorf("invalid media URI %q: %w", mxcURI, err)
	}
	data, err := s.client.DownloadBytes(ctx, uri)
	if err != nil {
		return nil, classifyError(err)
	}
	return data, nil
}

// snapshotSyncer feeds sync responses into a RoomStore and reports when the
// first one has been processed.
type snapshotSyncer struct {
	*mautrix.DefaultSyncer

	store *RoomStore

	prepared     chan struct{}
	failed       chan error
	preparedOnce sync.Once
	mu           sync.Mutex
	isPrepared   bool
}

func newSnapshotSyncer(store *RoomStore) *snapshotSyncer {
	s := &snapshotSyncer{
		DefaultSyncer: mautrix.NewDefaultSyncer(),
		store:         store,
		prepared:      make(chan struct{}),
		failed:        make(chan error, 1),
	}
	s.OnSync(s.handleSync)
	return s
}

func (s *snapshotSyncer) handleSync(_ context.Context, resp *mautrix.RespSync, _ string) bool {
	raw, err := json.Marshal(resp)
	if err != nil {
		logging.Warn("Matrix", "Failed to encode sync response: %v", err)
		return true
	}
	var payload SyncPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		logging.Warn("Matrix", "Failed to decode sync response: %v", err)
		return true
	}
	s.store.ApplySync(&payload)

	s.preparedOnce.Do(func() {
		s.mu.Lock()
		s.isPrepared = true
		s.mu.Unlock()
		close(s.prepared)
	})
	return true
}

// OnFailedSync stops the sync loop when the first sync fails so bootstrap
// can report it. Later failures are retried by the default syncer.
func (s *snapshotSyncer) OnFailedSync(res *mautrix.RespSync, err error) (time.Duration, error) {
	s.mu.Lock()
	prepared := s.isPrepared
	s.mu.Unlock()

	if !prepared {
		return 0, err
	}
	return s.DefaultSyncer.OnFailedSync(res, err)
}

func (s *snapshotSyncer) fail(err error) {
	select {
	case s.failed <- err:
	default:
	}
}
