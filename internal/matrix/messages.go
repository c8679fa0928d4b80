package matrix

import (
	"bytes"
	"context"
	"sort"
	"time"

	"github.com/yuin/goldmark"
)

// Message types.
const (
	MsgTypeText   = "m.text"
	MsgTypeEmote  = "m.emote"
	MsgTypeNotice = "m.notice"
	MsgTypeImage  = "m.image"
	MsgTypeFile   = "m.file"

	formatHTML = "org.matrix.custom.html"

	defaultMediaType = "application/octet-stream"
)

// Message is an m.room.message event from room history.
type Message struct {
	EventID       string
	Sender        string
	MsgType       string
	Body          string
	FormattedBody string
	Timestamp     time.Time
	Image         *MediaRef
}

// MediaRef points at media content attached to a message.
type MediaRef struct {
	URL      string
	MimeType string
}

// IsText reports whether the message carries readable text.
func (m Message) IsText() bool {
	switch m.MsgType {
	case MsgTypeText, MsgTypeEmote, MsgTypeNotice:
		return true
	}
	return false
}

// MessageFromEvent converts a history event into a Message. It returns
// false for events that are not room messages, including redacted ones.
func MessageFromEvent(evt *WireEvent) (Message, bool) {
	if evt == nil || evt.Type != EventTypeMessage {
		return Message{}, false
	}
	msgType := evt.ContentString("msgtype")
	if msgType == "" {
		return Message{}, false
	}
	msg := Message{
		EventID:   evt.EventID,
		Sender:    evt.Sender,
		MsgType:   msgType,
		Body:      evt.ContentString("body"),
		Timestamp: evt.Timestamp(),
	}
	if evt.ContentString("format") == formatHTML {
		msg.FormattedBody = evt.ContentString("formatted_body")
	}
	if msgType == MsgTypeImage {
		if url := evt.ContentString("url"); url != "" {
			mime := defaultMediaType
			if info := evt.ContentMap("info"); info != nil {
				if s, ok := info["mimetype"].(string); ok && s != "" {
					mime = s
				}
			}
			msg.Image = &MediaRef{URL: url, MimeType: mime}
		}
	}
	return msg, true
}

// Message kinds accepted by NewOutgoingMessage.
const (
	KindText     = "text"
	KindHTML     = "html"
	KindMarkdown = "markdown"
	KindEmote    = "emote"
)

// NewOutgoingMessage builds message content for the given kind. Markdown is
// rendered to HTML and the source kept as the plain body.
func NewOutgoingMessage(body, kind, replyTo string) (OutgoingMessage, error) {
	msg := OutgoingMessage{MsgType: MsgTypeText, Body: body, ReplyTo: replyTo}
	switch kind {
	case "", KindText:
	case KindHTML:
		msg.FormattedBody = body
	case KindMarkdown:
		var buf bytes.Buffer
		if err := goldmark.Convert([]byte(body), &buf); err != nil {
			return OutgoingMessage{}, err
		}
		msg.FormattedBody = string(bytes.TrimSpace(buf.Bytes()))
	case KindEmote:
		msg.MsgType = MsgTypeEmote
	default:
		return OutgoingMessage{}, &UnsupportedKindError{Kind: kind}
	}
	return msg, nil
}

// UnsupportedKindError reports an unknown message kind.
type UnsupportedKindError struct {
	Kind string
}

func (e *UnsupportedKindError) Error() string {
	return "unsupported message type: " + e.Kind
}

// UserMessageCount is the number of messages a user sent.
type UserMessageCount struct {
	UserID string
	Count  int
}

// CountMessagesByUser ranks senders by message count, highest first, ties
// broken by user ID. At most limit entries are returned when limit > 0.
func CountMessagesByUser(messages []Message, limit int) []UserMessageCount {
	counts := map[string]int{}
	for _, m := range messages {
		if m.Sender != "" {
			counts[m.Sender]++
		}
	}
	out := make([]UserMessageCount, 0, len(counts))
	for user, n := range counts {
		out = append(out, UserMessageCount{UserID: user, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].UserID < out[j].UserID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// FilterByDate keeps messages with start <= timestamp <= end.
func FilterByDate(messages []Message, start, end time.Time) []Message {
	var out []Message
	for _, m := range messages {
		if m.Timestamp.Before(start) || m.Timestamp.After(end) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Pagination bounds for history walks.
const (
	historyPageSize = 100
	maxHistoryPages = 10
)

// RecentMessages returns up to limit of the newest messages in roomID,
// oldest first.
func RecentMessages(ctx context.Context, s Session, roomID string, limit int) ([]Message, error) {
	var out []Message
	from := ""
	for page := 0; page < maxHistoryPages && len(out) < limit; page++ {
		res, err := s.RoomMessages(ctx, roomID, MessageQuery{
			From:      from,
			Direction: Backward,
			Limit:     min(historyPageSize, limit-len(out)),
		})
		if err != nil {
			return nil, err
		}
		out = append(out, res.Messages...)
		if res.End == "" || len(res.Messages) == 0 {
			break
		}
		from = res.End
	}
	if len(out) > limit {
		out = out[:limit]
	}
	reverse(out)
	return out, nil
}

// MessagesBetween walks history backwards until it passes start and
// returns the messages in [start, end], oldest first.
func MessagesBetween(ctx context.Context, s Session, roomID string, start, end time.Time) ([]Message, error) {
	var all []Message
	from := ""
	for page := 0; page < maxHistoryPages; page++ {
		res, err := s.RoomMessages(ctx, roomID, MessageQuery{
			From:      from,
			Direction: Backward,
			Limit:     historyPageSize,
		})
		if err != nil {
			return nil, err
		}
		all = append(all, res.Messages...)
		if res.End == "" || len(res.Messages) == 0 {
			break
		}
		if oldest := res.Messages[len(res.Messages)-1]; oldest.Timestamp.Before(start) {
			break
		}
		from = res.End
	}
	reverse(all)
	return FilterByDate(all, start, end), nil
}

func reverse(messages []Message) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}
