package matrix_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matrixmcp/internal/matrix"
	"matrixmcp/internal/matrix/matrixtest"
)

func TestMessageFromEvent(t *testing.T) {
	tests := []struct {
		name  string
		event *matrix.WireEvent
		ok    bool
		check func(t *testing.T, m matrix.Message)
	}{
		{
			name: "text",
			event: &matrix.WireEvent{Type: matrix.EventTypeMessage, EventID: "$1", Sender: "@a:x", OriginServerTS: 1000,
				Content: map[string]any{"msgtype": "m.text", "body": "hi"}},
			ok: true,
			check: func(t *testing.T, m matrix.Message) {
				assert.Equal(t, "hi", m.Body)
				assert.True(t, m.IsText())
				assert.Equal(t, time.UnixMilli(1000), m.Timestamp)
			},
		},
		{
			name: "html",
			event: &matrix.WireEvent{Type: matrix.EventTypeMessage,
				Content: map[string]any{"msgtype": "m.text", "body": "hi", "format": "org.matrix.custom.html", "formatted_body": "<b>hi</b>"}},
			ok: true,
			check: func(t *testing.T, m matrix.Message) {
				assert.Equal(t, "<b>hi</b>", m.FormattedBody)
			},
		},
		{
			name: "image with mimetype",
			event: &matrix.WireEvent{Type: matrix.EventTypeMessage,
				Content: map[string]any{"msgtype": "m.image", "body": "cat.png", "url": "mxc://x/abc", "info": map[string]any{"mimetype": "image/png"}}},
			ok: true,
			check: func(t *testing.T, m matrix.Message) {
				require.NotNil(t, m.Image)
				assert.Equal(t, "mxc://x/abc", m.Image.URL)
				assert.Equal(t, "image/png", m.Image.MimeType)
				assert.False(t, m.IsText())
			},
		},
		{
			name: "image without info",
			event: &matrix.WireEvent{Type: matrix.EventTypeMessage,
				Content: map[string]any{"msgtype": "m.image", "url": "mxc://x/abc"}},
			ok: true,
			check: func(t *testing.T, m matrix.Message) {
				require.NotNil(t, m.Image)
				assert.Equal(t, "application/octet-stream", m.Image.MimeType)
			},
		},
		{
			name:  "redacted",
			event: &matrix.WireEvent{Type: matrix.EventTypeMessage, Content: map[string]any{}},
		},
		{
			name:  "not a message",
			event: &matrix.WireEvent{Type: matrix.EventTypeName, Content: map[string]any{"name": "x"}},
		},
		{
			name: "nil",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, ok := matrix.MessageFromEvent(tt.event)
			assert.Equal(t, tt.ok, ok)
			if tt.check != nil {
				tt.check(t, msg)
			}
		})
	}
}

func TestNewOutgoingMessage(t *testing.T) {
	t.Run("text", func(t *testing.T) {
		msg, err := matrix.NewOutgoingMessage("hi", "", "")
		require.NoError(t, err)
		assert.Equal(t, matrix.MsgTypeText, msg.MsgType)
		assert.Empty(t, msg.FormattedBody)
	})

	t.Run("markdown", func(t *testing.T) {
		msg, err := matrix.NewOutgoingMessage("**bold**", matrix.KindMarkdown, "$parent")
		require.NoError(t, err)
		assert.Equal(t, "**bold**", msg.Body)
		assert.Equal(t, "<p><strong>bold</strong></p>", msg.FormattedBody)
		assert.Equal(t, "$parent", msg.ReplyTo)
	})

	t.Run("html", func(t *testing.T) {
		msg, err := matrix.NewOutgoingMessage("<i>x</i>", matrix.KindHTML, "")
		require.NoError(t, err)
		assert.Equal(t, "<i>x</i>", msg.FormattedBody)
	})

	t.Run("emote", func(t *testing.T) {
		msg, err := matrix.NewOutgoingMessage("waves", matrix.KindEmote, "")
		require.NoError(t, err)
		assert.Equal(t, matrix.MsgTypeEmote, msg.MsgType)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := matrix.NewOutgoingMessage("x", "shout", "")
		var kindErr *matrix.UnsupportedKindError
		require.ErrorAs(t, err, &kindErr)
		assert.Equal(t, "shout", kindErr.Kind)
	})
}

func TestCountMessagesByUser(t *testing.T) {
	messages := []matrix.Message{
		{Sender: "@b:x"}, {Sender: "@a:x"}, {Sender: "@b:x"},
		{Sender: "@c:x"}, {Sender: "@a:x"}, {Sender: "@b:x"}, {Sender: ""},
	}

	counts := matrix.CountMessagesByUser(messages, 2)
	assert.Equal(t, []matrix.UserMessageCount{
		{UserID: "@b:x", Count: 3},
		{UserID: "@a:x", Count: 2},
	}, counts)

	assert.Len(t, matrix.CountMessagesByUser(messages, 0), 3)
	assert.Empty(t, matrix.CountMessagesByUser(nil, 5))
}

// history builds n messages, newest first, one minute apart ending at end.
func history(n int, end time.Time) []matrix.Message {
	out := make([]matrix.Message, n)
	for i := range out {
		out[i] = matrix.Message{
			EventID:   fmt.Sprintf("$%d", n-i),
			Sender:    "@a:x",
			MsgType:   matrix.MsgTypeText,
			Body:      fmt.Sprintf("m%d", n-i),
			Timestamp: end.Add(-time.Duration(i) * time.Minute),
		}
	}
	return out
}

func TestRecentMessages(t *testing.T) {
	end := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	s := matrixtest.New("@a:x", "https://x")
	s.History["!r:x"] = history(250, end)

	msgs, err := matrix.RecentMessages(context.Background(), s, "!r:x", 150)
	require.NoError(t, err)
	require.Len(t, msgs, 150)
	assert.Equal(t, "m101", msgs[0].Body)
	assert.Equal(t, "m250", msgs[149].Body)

	s.Err = matrix.ErrForbidden
	_, err = matrix.RecentMessages(context.Background(), s, "!r:x", 10)
	assert.ErrorIs(t, err, matrix.ErrForbidden)
}

func TestMessagesBetween(t *testing.T) {
	end := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	s := matrixtest.New("@a:x", "https://x")
	s.History["!r:x"] = history(300, end)

	msgs, err := matrix.MessagesBetween(context.Background(), s, "!r:x",
		end.Add(-150*time.Minute), end.Add(-10*time.Minute))
	require.NoError(t, err)
	require.Len(t, msgs, 141)
	assert.Equal(t, end.Add(-150*time.Minute), msgs[0].Timestamp)
	assert.Equal(t, end.Add(-10*time.Minute), msgs[140].Timestamp)
}

func TestFilterByDate(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	msgs := []matrix.Message{
		{Body: "before", Timestamp: base.Add(-time.Second)},
		{Body: "start", Timestamp: base},
		{Body: "end", Timestamp: base.Add(time.Hour)},
		{Body: "after", Timestamp: base.Add(time.Hour + time.Second)},
	}

	got := matrix.FilterByDate(msgs, base, base.Add(time.Hour))
	require.Len(t, got, 2)
	assert.Equal(t, "start", got[0].Body)
	assert.Equal(t, "end", got[1].Body)
}
