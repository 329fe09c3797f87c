package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"okeyonline/internal/domain/presence"
	roomDomain "okeyonline/internal/domain/room"
	errs "okeyonline/internal/errors"
	"okeyonline/internal/httpresponse"
	"okeyonline/internal/lock"
	"okeyonline/internal/middleware"
)

const opTimeout = 5 * time.Second

type ChatRecorder interface {
	RecordChatMessage(ctx context.Context, msg roomDomain.ChatMessage) error
}

type UserStatus interface {
	MarkOnline(ctx context.Context, userID string) error
	MarkOffline(ctx context.Context, userID string) error
}

// Gateway authenticates websocket connections and routes their events
// through the hub.
type Gateway struct {
	hub      *Hub
	tokens   middleware.TokenValidator
	chat     ChatRecorder
	users    UserStatus
	presence presence.Store
	status   *lock.RoomLockManager
	upgrader websocket.Upgrader
	log      *zap.SugaredLogger
	now      func() time.Time
}

func NewGateway(hub *Hub, tokens middleware.TokenValidator, chat ChatRecorder, users UserStatus, store presence.Store, log *zap.SugaredLogger) *Gateway {
	return &Gateway{
		hub:      hub,
		tokens:   tokens,
		chat:     chat,
		users:    users,
		presence: store,
		status:   lock.NewRoomLockManager(log, opTimeout),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log,
		now: time.Now,
	}
}

func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	raw := middleware.BearerToken(r)
	if raw == "" {
		raw = r.URL.Query().Get("token")
	}
	if raw == "" {
		httpresponse.WriteError(w, errs.ErrUnauthorized)
		return
	}
	claims, err := g.tokens.Validate(raw)
	if err != nil {
		g.log.Warnf("ws: rejected token: %v", err)
		httpresponse.WriteError(w, errs.ErrInvalidToken)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Errorf("ws: upgrade error: %v", err)
		return
	}

	c := newClient(uuid.New().String(), claims.UserID, claims.Username, conn, g.log)
	g.connect(c)
	go c.writePump()
	c.readPump(func(raw []byte) { g.dispatch(c, raw) })
	g.disconnect(c)
}

func (g *Gateway) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), opTimeout)
}

// withUser runs fn while no other connect or disconnect of the same user
// is in flight, so the stored online flag follows the last transition.
func (g *Gateway) withUser(ctx context.Context, userID string, fn func()) {
	key := "user:" + userID
	if err := g.status.Lock(ctx, key); err != nil {
		g.log.Warnf("ws: status lock %s: %v", userID, err)
		fn()
		return
	}
	defer g.status.Unlock(key)
	fn()
}

func (g *Gateway) connect(c *Client) {
	ctx, cancel := g.ctx()
	defer cancel()

	g.hub.Register(c)
	g.log.Infof("ws: %s (%s) connected as %s", c.Username, c.UserID, c.ID)

	var first bool
	g.withUser(ctx, c.UserID, func() {
		var err error
		first, err = g.presence.Connect(ctx, presence.OnlineUser{UserID: c.UserID, Username: c.Username})
		if err != nil {
			g.log.Errorf("ws: presence connect %s: %v", c.UserID, err)
			return
		}
		if first {
			if err = g.users.MarkOnline(ctx, c.UserID); err != nil {
				g.log.Errorf("ws: mark %s online: %v", c.UserID, err)
			}
		}
	})

	online, err := g.presence.Online(ctx)
	if err != nil {
		g.log.Errorf("ws: presence list: %v", err)
		online = []presence.OnlineUser{}
	}
	c.Send(Message{Event: EventOnlineUsers, Data: online})

	if first {
		g.hub.BroadcastAll(Message{Event: EventUserOnline, Data: g.userPayload(c, "")}, c)
	}
}

func (g *Gateway) disconnect(c *Client) {
	ctx, cancel := g.ctx()
	defer cancel()

	for _, channel := range g.hub.Unregister(c) {
		g.hub.Broadcast(channel, Message{Event: EventUserLeft, Data: g.userPayload(c, channel)}, nil)
		g.leaveChannel(ctx, channel, c)
	}

	var last bool
	g.withUser(ctx, c.UserID, func() {
		var err error
		last, err = g.presence.Disconnect(ctx, c.UserID)
		if err != nil {
			g.log.Errorf("ws: presence disconnect %s: %v", c.UserID, err)
			return
		}
		if last {
			if err = g.users.MarkOffline(ctx, c.UserID); err != nil {
				g.log.Errorf("ws: mark %s offline: %v", c.UserID, err)
			}
		}
	})
	g.log.Infof("ws: %s (%s) disconnected", c.Username, c.ID)

	if last {
		g.hub.BroadcastAll(Message{Event: EventUserOffline, Data: g.userPayload(c, "")}, nil)
	}
}

// leaveChannel drops the presence entry once no connection of the user
// is left in the channel.
func (g *Gateway) leaveChannel(ctx context.Context, channel string, c *Client) {
	if g.hub.HasUser(channel, c.UserID) {
		return
	}
	if err := g.presence.LeaveChannel(ctx, channel, c.UserID); err != nil {
		g.log.Errorf("ws: presence leave %s/%s: %v", channel, c.UserID, err)
	}
}

func (g *Gateway) dispatch(c *Client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		c.Send(errorMessage("invalid message format"))
		return
	}

	switch env.Event {
	case EventJoinRoom:
		var p RoomPayload
		if g.decode(c, env, &p) && g.requireRoom(c, p.RoomID) {
			g.joinRoom(c, p.RoomID)
		}
	case EventLeaveRoom:
		var p RoomPayload
		if g.decode(c, env, &p) && g.requireRoom(c, p.RoomID) {
			g.leaveRoom(c, p.RoomID)
		}
	case EventSendMessage:
		var p SendMessagePayload
		if g.decode(c, env, &p) {
			g.sendMessage(c, p)
		}
	case EventTypingStart, EventTypingStop:
		var p RoomPayload
		if g.decode(c, env, &p) && g.requireRoom(c, p.RoomID) {
			g.typing(c, p.RoomID, env.Event == EventTypingStart)
		}
	default:
		c.Send(errorMessage("unknown event: " + env.Event))
	}
}

func (g *Gateway) decode(c *Client, env Envelope, v any) bool {
	if len(env.Data) == 0 {
		c.Send(errorMessage("missing data for " + env.Event))
		return false
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		c.Send(errorMessage("invalid data for " + env.Event))
		return false
	}
	return true
}

func (g *Gateway) requireRoom(c *Client, roomID string) bool {
	if roomID == "" {
		c.Send(errorMessage("roomId is required"))
		return false
	}
	return true
}

func (g *Gateway) userPayload(c *Client, roomID string) UserPayload {
	return UserPayload{UserID: c.UserID, Username: c.Username, RoomID: roomID, Timestamp: g.now()}
}

func (g *Gateway) joinRoom(c *Client, roomID string) {
	if g.hub.Subscribe(roomID, c) {
		ctx, cancel := g.ctx()
		defer cancel()

		if err := g.presence.JoinChannel(ctx, roomID, presence.OnlineUser{UserID: c.UserID, Username: c.Username}); err != nil {
			g.log.Errorf("ws: presence join %s/%s: %v", roomID, c.UserID, err)
		}
		g.hub.Broadcast(roomID, Message{Event: EventUserJoined, Data: g.userPayload(c, roomID)}, c)
		g.log.Debugf("ws: %s joined channel %s", c.UserID, roomID)
	}
	c.Send(Message{Event: EventJoinedRoom, Data: RoomPayload{RoomID: roomID}})
}

func (g *Gateway) leaveRoom(c *Client, roomID string) {
	if !g.hub.Unsubscribe(roomID, c) {
		return
	}
	ctx, cancel := g.ctx()
	defer cancel()

	g.leaveChannel(ctx, roomID, c)
	g.hub.Broadcast(roomID, Message{Event: EventUserLeft, Data: g.userPayload(c, roomID)}, nil)
}

func (g *Gateway) sendMessage(c *Client, p SendMessagePayload) {
	msg, err := roomDomain.NewChatMessage(uuid.New().String(), c.UserID, c.Username, p.RoomID, p.Message, p.Timestamp, g.now())
	if err != nil {
		c.Send(errorMessage(err.Error()))
		return
	}

	ctx, cancel := g.ctx()
	defer cancel()

	// Channels without a room document are plain chat channels.
	if err = g.chat.RecordChatMessage(ctx, msg); err != nil && !errors.Is(err, errs.ErrRoomNotFound) {
		g.log.Errorf("ws: save message in %s: %v", msg.RoomID, err)
		c.Send(errorMessage("failed to send message"))
		return
	}

	g.hub.Broadcast(msg.RoomID, Message{Event: EventNewMessage, Data: msg}, nil)
	c.Send(Message{Event: EventMessageSent, Data: msg})
}

func (g *Gateway) typing(c *Client, roomID string, isTyping bool) {
	g.hub.Broadcast(roomID, Message{Event: EventUserTyping, Data: TypingPayload{
		UserID:   c.UserID,
		Username: c.Username,
		RoomID:   roomID,
		IsTyping: isTyping,
	}}, c)
}
