package chat

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDecodeConversationID(t *testing.T) {
	cases := []struct {
		raw  string
		want int
		ok   bool
	}{
		{"5", 5, true},
		{`{"conversationId": 12}`, 12, true},
		{"0", 0, false},
		{"-3", 0, false},
		{`{"conversationId": 0}`, 0, false},
		{`"five"`, 0, false},
		{"{}", 0, false},
	}
	for _, tc := range cases {
		got, ok := decodeConversationID(json.RawMessage(tc.raw))
		require.Equal(t, tc.ok, ok, "input %q", tc.raw)
		require.Equal(t, tc.want, got, "input %q", tc.raw)
	}
}

func TestPublicErrorMessages(t *testing.T) {
	require.Equal(t, "Conversation not found", publicError(ErrConversationNotFound))
	require.Equal(t, "Conversation not found", publicError(fmt.Errorf("wrapped: %w", ErrConversationNotFound)))
	require.Equal(t, "Conversation ID is required", publicError(ErrMissingConversation))
	require.Equal(t, "Cannot create conversation with yourself", publicError(ErrSelfConversation))
	require.Equal(t, "Internal server error", publicError(errors.New("pq: connection reset")))
}

func newFrameClient(t *testing.T) (*Client, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := zap.NewNop()
	metrics := NewMetrics(prometheus.NewRegistry())
	svc := NewService(NewRepository(db), NewCipher("client-test-secret"), &fakeNotifier{}, logger, metrics)

	hub := NewHub(nil, logger, metrics)
	go hub.Run()

	c := newTestClient(hub, 1, 4)
	c.Username = "alice"
	c.svc = svc
	c.log = logger
	hub.Register <- c
	return c, mock
}

func expectErrorEvent(t *testing.T, c *Client, want string) {
	t.Helper()
	frame := expectFrame(t, c)

	var env Envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	require.Equal(t, EventError, env.Event)

	var ev ErrorEvent
	require.NoError(t, json.Unmarshal(env.Data, &ev))
	require.Equal(t, want, ev.Message)
}

func TestHandleFrameMalformed(t *testing.T) {
	c, _ := newFrameClient(t)

	c.handleFrame([]byte("not json"))
	expectErrorEvent(t, c, "invalid frame")
}

func TestHandleFrameUnknownEvent(t *testing.T) {
	c, _ := newFrameClient(t)

	c.handleFrame(mustEnvelope("self-destruct", nil))
	expectErrorEvent(t, c, "unknown event")
}

func TestHandleFrameJoinUnauthorized(t *testing.T) {
	c, mock := newFrameClient(t)

	mock.ExpectQuery("SELECT (.+) FROM conversations").
		WithArgs(5, 1).
		WillReturnError(sql.ErrNoRows)

	c.handleFrame(mustEnvelope(EventJoinConversation, 5))
	expectErrorEvent(t, c, "Conversation not found")

	// an unauthorized join must not have subscribed the client
	c.Hub.deliver <- &broadcastEnvelope{Room: conversationRoom(5), Frame: mustEnvelope(EventNewMessage, nil)}
	expectNoFrame(t, c)
}

func TestHandleFrameJoinThenReceive(t *testing.T) {
	c, mock := newFrameClient(t)

	mock.ExpectQuery("SELECT (.+) FROM conversations").
		WithArgs(5, 1).
		WillReturnRows(conversationRows(5, 1, 2))

	c.handleFrame(mustEnvelope(EventJoinConversation, 5))

	frame := mustEnvelope(EventNewMessage, map[string]int{"id": 9})
	c.Hub.deliver <- &broadcastEnvelope{Room: conversationRoom(5), Frame: frame}
	require.JSONEq(t, string(frame), string(expectFrame(t, c)))
}
