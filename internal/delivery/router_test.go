package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"okeyonline/internal/bootstrap"
	"okeyonline/internal/client"
	authDelivery "okeyonline/internal/delivery/auth"
	roomDelivery "okeyonline/internal/delivery/room"
	userDelivery "okeyonline/internal/delivery/user"
	roomDomain "okeyonline/internal/domain/room"
	"okeyonline/internal/lock"
	ownMiddleware "okeyonline/internal/middleware"
	"okeyonline/internal/realtime"
	repo "okeyonline/internal/repository"
	"okeyonline/internal/token"
	authUC "okeyonline/internal/usecase/auth"
	roomUC "okeyonline/internal/usecase/room"
	userUC "okeyonline/internal/usecase/user"
)

func newTestServer(t *testing.T) (*httptest.Server, *token.Service) {
	t.Helper()
	log := zap.NewNop().Sugar()

	users := repo.NewMapUserStorage()
	rooms := repo.NewMapRoomStorage()
	online := repo.NewMapPresenceStorage()
	tokens := token.NewService("e2e-secret", time.Hour)
	hub := realtime.NewHub(log)

	authUsecase := authUC.NewAuthUsecaseHandler(users, tokens, bcrypt.MinCost, log)
	userUsecase := userUC.NewUserUsecaseHandler(users, online, log)
	roomUsecase := roomUC.NewRoomUseCase(rooms, lock.NewRoomLockManager(log, lock.DefaultTimeout), hub, userUsecase, log,
		roomUC.Config{PageLimit: 20, BcryptCost: bcrypt.MinCost})
	gateway := realtime.NewGateway(hub, tokens, roomUsecase, userUsecase, online, log)

	router := NewRouter(&bootstrap.Config{IsLocalCors: true}, Handlers{
		Auth:    authDelivery.NewAuthHandler(authUsecase, log),
		User:    userDelivery.NewUserHandler(userUsecase, log),
		Room:    roomDelivery.NewRoomHandler(roomUsecase, log),
		Socket:  gateway.ServeWS,
		Tokens:  tokens,
		Limiter: ownMiddleware.NewRateLimiter(1000, 1000),
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, tokens
}

func newClient(srv *httptest.Server) *client.Client {
	return client.New(srv.URL, client.WithBackoff(time.Millisecond))
}

func apiStatus(t *testing.T, err error) int {
	t.Helper()
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr), "expected an API error, got %v", err)
	return apiErr.Status
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	h, err := newClient(srv).Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "OK", h.Status)
	assert.Equal(t, Version, h.Version)
}

func TestRegisterLoginProfile(t *testing.T) {
	ctx := context.Background()
	srv, tokens := newTestServer(t)
	a := newClient(srv)

	reg, err := a.Register(ctx, "weddy", "Weddy@Mail.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "weddy@mail.com", reg.User.Email)

	_, err = newClient(srv).Register(ctx, "other", "weddy@mail.com", "secret1")
	assert.Equal(t, http.StatusBadRequest, apiStatus(t, err))
	_, err = newClient(srv).Register(ctx, "weddy", "other@mail.com", "secret1")
	assert.Equal(t, http.StatusBadRequest, apiStatus(t, err))

	_, err = newClient(srv).Login(ctx, "weddy@mail.com", "wrong-pass")
	assert.Equal(t, http.StatusBadRequest, apiStatus(t, err))
	_, err = newClient(srv).Login(ctx, "nobody@mail.com", "secret1")
	assert.Equal(t, http.StatusBadRequest, apiStatus(t, err))

	login, err := a.Login(ctx, "weddy@mail.com", "secret1")
	require.NoError(t, err)
	claims, err := tokens.Validate(login.Token)
	require.NoError(t, err)

	profile, err := a.Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, claims.UserID, profile.ID)
	assert.EqualValues(t, 1000, profile.GoldCoins)
	assert.Equal(t, 1, profile.Level)

	_, err = newClient(srv).Profile(ctx)
	assert.Equal(t, http.StatusUnauthorized, apiStatus(t, err))
	_, err = client.New(srv.URL, client.WithToken("garbage")).Profile(ctx)
	assert.Equal(t, http.StatusUnauthorized, apiStatus(t, err))
}

func TestRoomLifecycleScenario(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv, _ := newTestServer(t)

	a := newClient(srv)
	_, err := a.Register(ctx, "alice", "alice@mail.com", "secret1")
	require.NoError(t, err)
	_, err = a.Login(ctx, "alice@mail.com", "secret1")
	require.NoError(t, err)

	created, err := a.CreateRoom(ctx, roomUC.CreateRequest{GameType: "okey", MaxPlayers: 2})
	require.NoError(t, err)
	assert.Len(t, created.RoomID, 6)
	assert.Equal(t, 1, created.CurrentPlayerCount)
	assert.False(t, created.CanStartGame)

	socket, err := a.Dial(ctx)
	require.NoError(t, err)
	defer socket.Close()
	_, err = socket.Await(ctx, realtime.EventOnlineUsers)
	require.NoError(t, err)
	require.NoError(t, socket.Emit(realtime.EventJoinRoom, realtime.RoomPayload{RoomID: created.RoomID}))
	_, err = socket.Await(ctx, realtime.EventJoinedRoom)
	require.NoError(t, err)

	b := newClient(srv)
	_, err = b.Register(ctx, "bobby", "bob@mail.com", "secret1")
	require.NoError(t, err)
	_, err = b.Login(ctx, "bob@mail.com", "secret1")
	require.NoError(t, err)

	joined, err := b.JoinRoom(ctx, created.RoomID, "")
	require.NoError(t, err)
	assert.Equal(t, 2, joined.CurrentPlayerCount)
	assert.True(t, joined.CanStartGame)

	ev, err := socket.Await(ctx, roomUC.EventPlayerJoined)
	require.NoError(t, err)
	var event roomUC.RoomEvent
	require.NoError(t, json.Unmarshal(ev.Data, &event))
	assert.Equal(t, 2, event.Room.CurrentPlayerCount)

	c := newClient(srv)
	_, err = c.Register(ctx, "carol", "carol@mail.com", "secret1")
	require.NoError(t, err)
	_, err = c.JoinRoom(ctx, created.RoomID, "")
	assert.Equal(t, http.StatusBadRequest, apiStatus(t, err))

	started, err := a.StartGame(ctx, created.RoomID)
	require.NoError(t, err)
	assert.Equal(t, roomDomain.StatusPlaying, started.Status)
	require.NotNil(t, started.CurrentGame)
	require.Len(t, started.CurrentGame.Players, 2)
	assert.NotEqual(t, started.CurrentGame.Players[0].Position, started.CurrentGame.Players[1].Position)

	_, err = socket.Await(ctx, roomUC.EventGameStarted)
	require.NoError(t, err)

	ended, err := b.EndGame(ctx, created.RoomID, roomUC.EndRequest{
		WinnerID:    joined.Players[1],
		FinalScores: map[string]int{joined.Players[1]: 120},
	})
	require.NoError(t, err)
	assert.Equal(t, roomDomain.StatusFinished, ended.Status)
	assert.Equal(t, 1, ended.Statistics.TotalGames)

	stats, err := b.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Stats.GamesWon)
	assert.InDelta(t, 100.0, stats.Stats.WinRate, 0.001)

	aliceStats, err := b.UserStats(ctx, joined.Players[0])
	require.NoError(t, err)
	assert.Equal(t, 1, aliceStats.Stats.GamesPlayed)
	assert.Zero(t, aliceStats.Stats.WinRate)
}

func TestRoomChatOverSocket(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv, _ := newTestServer(t)

	a := newClient(srv)
	_, err := a.Register(ctx, "alice", "alice@mail.com", "secret1")
	require.NoError(t, err)
	created, err := a.CreateRoom(ctx, roomUC.CreateRequest{GameType: "batak"})
	require.NoError(t, err)

	socket, err := a.Dial(ctx)
	require.NoError(t, err)
	defer socket.Close()

	require.NoError(t, socket.Emit(realtime.EventJoinRoom, realtime.RoomPayload{RoomID: created.RoomID}))
	_, err = socket.Await(ctx, realtime.EventJoinedRoom)
	require.NoError(t, err)

	require.NoError(t, socket.Emit(realtime.EventSendMessage, realtime.SendMessagePayload{RoomID: created.RoomID, Message: "selam"}))
	_, err = socket.Await(ctx, realtime.EventMessageSent)
	require.NoError(t, err)

	history, err := a.Messages(ctx, created.RoomID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "selam", history[0].Message)
	assert.Equal(t, "alice", history[0].Username)

	members, err := a.RoomOnline(ctx, created.RoomID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "alice", members[0].Username)

	online, err := a.OnlineUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, online, 1)
}

func TestUnknownAPIRoute(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
