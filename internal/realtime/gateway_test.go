package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	roomDomain "okeyonline/internal/domain/room"
	errs "okeyonline/internal/errors"
	repo "okeyonline/internal/repository"
	"okeyonline/internal/token"
)

type mockChat struct {
	mock.Mock
}

func (m *mockChat) RecordChatMessage(ctx context.Context, msg roomDomain.ChatMessage) error {
	return m.Called(ctx, msg).Error(0)
}

type mockStatus struct {
	mock.Mock
}

func (m *mockStatus) MarkOnline(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *mockStatus) MarkOffline(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

type gatewayFixture struct {
	srv      *httptest.Server
	tokens   *token.Service
	chat     *mockChat
	status   *mockStatus
	presence *repo.MapPresenceStorage
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()
	log := zap.NewNop().Sugar()
	f := &gatewayFixture{
		tokens:   token.NewService("test-secret", time.Hour),
		chat:     new(mockChat),
		status:   new(mockStatus),
		presence: repo.NewMapPresenceStorage(),
	}
	f.status.On("MarkOnline", mock.Anything, mock.Anything).Return(nil)
	f.status.On("MarkOffline", mock.Anything, mock.Anything).Return(nil)

	gw := NewGateway(NewHub(log), f.tokens, f.chat, f.status, f.presence, log)
	gw.now = func() time.Time { return fixedNow }
	f.srv = httptest.NewServer(http.HandlerFunc(gw.ServeWS))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *gatewayFixture) dial(t *testing.T, userID, username string) *websocket.Conn {
	t.Helper()
	tok, err := f.tokens.Generate(userID, username)
	require.NoError(t, err)

	header := http.Header{"Authorization": []string{"Bearer " + tok}}
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(f.srv.URL, "http"), header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func emit(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(Message{Event: event, Data: data}))
}

// expect reads frames until one with the given event arrives.
func expect(t *testing.T, conn *websocket.Conn, event string) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var f frame
		require.NoError(t, conn.ReadJSON(&f), "waiting for %s", event)
		if f.Event == event {
			return f
		}
	}
}

func TestServeWSRejectsMissingToken(t *testing.T) {
	f := newGatewayFixture(t)

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(f.srv.URL, "http"), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServeWSRejectsInvalidToken(t *testing.T) {
	f := newGatewayFixture(t)

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(f.srv.URL, "http")+"?token=garbage", nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGatewayRoomChatScenario(t *testing.T) {
	f := newGatewayFixture(t)
	f.chat.On("RecordChatMessage", mock.Anything, mock.MatchedBy(func(m roomDomain.ChatMessage) bool {
		return m.RoomID == "123456" && m.Message == "selam" && m.UserID == "u2"
	})).Return(nil).Once()

	alice := f.dial(t, "u1", "alice")
	online := expect(t, alice, EventOnlineUsers)
	assert.JSONEq(t, `[{"userId":"u1","username":"alice"}]`, string(online.Data))

	emit(t, alice, EventJoinRoom, RoomPayload{RoomID: "123456"})
	expect(t, alice, EventJoinedRoom)

	bob := f.dial(t, "u2", "bob")
	expect(t, bob, EventOnlineUsers)
	cameOnline := expect(t, alice, EventUserOnline)
	assert.JSONEq(t, `{"userId":"u2","username":"bob","timestamp":"2026-03-14T09:30:00Z"}`, string(cameOnline.Data))

	emit(t, bob, EventJoinRoom, RoomPayload{RoomID: "123456"})
	joined := expect(t, bob, EventJoinedRoom)
	assert.JSONEq(t, `{"roomId":"123456"}`, string(joined.Data))
	userJoined := expect(t, alice, EventUserJoined)
	assert.JSONEq(t, `{"userId":"u2","username":"bob","roomId":"123456","timestamp":"2026-03-14T09:30:00Z"}`, string(userJoined.Data))

	members, err := f.presence.ChannelMembers(context.Background(), "123456")
	require.NoError(t, err)
	assert.Len(t, members, 2)

	emit(t, bob, EventSendMessage, map[string]string{"roomId": "123456", "message": "  selam  "})
	var got roomDomain.ChatMessage
	require.NoError(t, json.Unmarshal(expect(t, bob, EventNewMessage).Data, &got))
	assert.Equal(t, "selam", got.Message)
	assert.Equal(t, "bob", got.Username)
	assert.NotEmpty(t, got.ID)
	assert.True(t, got.Timestamp.Equal(fixedNow))

	sent := expect(t, bob, EventMessageSent)
	assert.JSONEq(t, `{"id":"`+got.ID+`","userId":"u2","username":"bob","roomId":"123456","message":"selam","timestamp":"2026-03-14T09:30:00Z","type":"text"}`, string(sent.Data))
	require.NoError(t, json.Unmarshal(expect(t, alice, EventNewMessage).Data, &got))
	assert.Equal(t, "selam", got.Message)

	emit(t, alice, EventTypingStart, RoomPayload{RoomID: "123456"})
	typing := expect(t, bob, EventUserTyping)
	assert.JSONEq(t, `{"userId":"u1","username":"alice","roomId":"123456","isTyping":true}`, string(typing.Data))

	require.NoError(t, bob.Close())
	left := expect(t, alice, EventUserLeft)
	assert.JSONEq(t, `{"userId":"u2","username":"bob","roomId":"123456","timestamp":"2026-03-14T09:30:00Z"}`, string(left.Data))
	offline := expect(t, alice, EventUserOffline)
	assert.JSONEq(t, `{"userId":"u2","username":"bob","timestamp":"2026-03-14T09:30:00Z"}`, string(offline.Data))

	f.chat.AssertExpectations(t)
	f.status.AssertCalled(t, "MarkOnline", mock.Anything, "u2")
	f.status.AssertCalled(t, "MarkOffline", mock.Anything, "u2")
}

func TestGatewayRejectsBadEvents(t *testing.T) {
	f := newGatewayFixture(t)
	conn := f.dial(t, "u1", "alice")
	expect(t, conn, EventOnlineUsers)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	assert.Contains(t, string(expect(t, conn, EventError).Data), "invalid message format")

	emit(t, conn, "dance", nil)
	assert.Contains(t, string(expect(t, conn, EventError).Data), "unknown event")

	emit(t, conn, EventJoinRoom, map[string]string{})
	assert.Contains(t, string(expect(t, conn, EventError).Data), "roomId is required")

	emit(t, conn, EventSendMessage, map[string]string{"roomId": "123456", "message": "   "})
	assert.Contains(t, string(expect(t, conn, EventError).Data), "message are required")

	emit(t, conn, EventSendMessage, map[string]string{"roomId": "123456", "message": strings.Repeat("a", 501)})
	assert.Contains(t, string(expect(t, conn, EventError).Data), "at most 500")

	f.chat.AssertNotCalled(t, "RecordChatMessage", mock.Anything, mock.Anything)
}

func TestGatewayUserWithTwoTabs(t *testing.T) {
	f := newGatewayFixture(t)
	tab1 := f.dial(t, "u1", "alice")
	expect(t, tab1, EventOnlineUsers)
	tab2 := f.dial(t, "u1", "alice")
	online := expect(t, tab2, EventOnlineUsers)
	assert.JSONEq(t, `[{"userId":"u1","username":"alice"}]`, string(online.Data))

	bob := f.dial(t, "u2", "bob")
	expect(t, bob, EventOnlineUsers)

	require.NoError(t, tab1.Close())
	require.NoError(t, tab2.Close())
	offline := expect(t, bob, EventUserOffline)
	assert.Contains(t, string(offline.Data), `"userId":"u1"`)

	// One MarkOnline per user, one MarkOffline for alice's last tab.
	f.status.AssertNumberOfCalls(t, "MarkOnline", 2)
	f.status.AssertNumberOfCalls(t, "MarkOffline", 1)
	f.status.AssertCalled(t, "MarkOffline", mock.Anything, "u1")
}

func TestGatewayTypingStartThenStop(t *testing.T) {
	f := newGatewayFixture(t)
	alice := f.dial(t, "u1", "alice")
	bob := f.dial(t, "u2", "bob")
	for _, conn := range []*websocket.Conn{alice, bob} {
		emit(t, conn, EventJoinRoom, RoomPayload{RoomID: "123456"})
		expect(t, conn, EventJoinedRoom)
	}

	emit(t, alice, EventTypingStart, RoomPayload{RoomID: "123456"})
	emit(t, alice, EventTypingStop, RoomPayload{RoomID: "123456"})

	var first, last TypingPayload
	require.NoError(t, json.Unmarshal(expect(t, bob, EventUserTyping).Data, &first))
	require.NoError(t, json.Unmarshal(expect(t, bob, EventUserTyping).Data, &last))
	assert.True(t, first.IsTyping)
	assert.False(t, last.IsTyping)
	assert.Equal(t, "alice", last.Username)
}

func TestGatewayRejectedMessageIsNotBroadcast(t *testing.T) {
	f := newGatewayFixture(t)
	f.chat.On("RecordChatMessage", mock.Anything, mock.Anything).Return(nil)

	alice := f.dial(t, "u1", "alice")
	bob := f.dial(t, "u2", "bob")
	for _, conn := range []*websocket.Conn{alice, bob} {
		emit(t, conn, EventJoinRoom, RoomPayload{RoomID: "123456"})
		expect(t, conn, EventJoinedRoom)
	}

	emit(t, alice, EventSendMessage, map[string]string{"roomId": "123456", "message": strings.Repeat("a", 501)})
	assert.Contains(t, string(expect(t, alice, EventError).Data), "at most 500")

	// Frames to one channel keep their order, so bob's first chat frame
	// must be the message sent after the rejected one.
	emit(t, alice, EventSendMessage, map[string]string{"roomId": "123456", "message": "ok"})
	var got roomDomain.ChatMessage
	require.NoError(t, json.Unmarshal(expect(t, bob, EventNewMessage).Data, &got))
	assert.Equal(t, "ok", got.Message)
	f.chat.AssertNumberOfCalls(t, "RecordChatMessage", 1)
}

func TestGatewayChatWithoutRoomDocument(t *testing.T) {
	f := newGatewayFixture(t)
	f.chat.On("RecordChatMessage", mock.Anything, mock.Anything).Return(errs.ErrRoomNotFound).Once()
	f.chat.On("RecordChatMessage", mock.Anything, mock.Anything).Return(errors.New("mongo down")).Once()

	conn := f.dial(t, "u1", "alice")
	expect(t, conn, EventOnlineUsers)
	emit(t, conn, EventJoinRoom, RoomPayload{RoomID: "lobby"})
	expect(t, conn, EventJoinedRoom)

	emit(t, conn, EventSendMessage, map[string]string{"roomId": "lobby", "message": "hi"})
	expect(t, conn, EventNewMessage)
	expect(t, conn, EventMessageSent)

	emit(t, conn, EventSendMessage, map[string]string{"roomId": "lobby", "message": "hi again"})
	assert.Contains(t, string(expect(t, conn, EventError).Data), "failed to send message")
}
