package room

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	roomDomain "okeyonline/internal/domain/room"
	errs "okeyonline/internal/errors"
	"okeyonline/internal/middleware"
	"okeyonline/internal/mocks"
	roomUC "okeyonline/internal/usecase/room"
)

func asUser(userID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(middleware.WithIdentity(r.Context(), middleware.Identity{UserID: userID})))
		})
	}
}

func newRouter(uc *mocks.MockRoomUsecase) http.Handler {
	h := NewRoomHandler(uc, zap.NewNop().Sugar())
	r := chi.NewRouter()
	r.Get("/rooms", h.List)
	r.Get("/rooms/{id}", h.Get)
	r.Get("/rooms/{id}/messages", h.Messages)
	r.Group(func(r chi.Router) {
		r.Use(asUser("u1"))
		r.Post("/rooms", h.Create)
		r.Get("/my-rooms", h.MyRooms)
		r.Post("/rooms/{id}/join", h.Join)
		r.Delete("/rooms/{id}/leave", h.Leave)
		r.Post("/rooms/{id}/start", h.Start)
		r.Post("/rooms/{id}/end", h.End)
		r.Delete("/rooms/{id}", h.Cancel)
	})
	return r
}

type dataResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func serve(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, dataResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp dataResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp
}

func sampleRoom() roomDomain.Room {
	return roomDomain.Room{
		RoomID:     "123456",
		Name:       "Okey Salonu",
		GameType:   roomDomain.GameOkey,
		Players:    []string{"u1"},
		MaxPlayers: 2,
		Status:     roomDomain.StatusWaiting,
		IsActive:   true,
	}
}

func TestCreateRoom(t *testing.T) {
	uc := new(mocks.MockRoomUsecase)
	uc.On("Create", mock.Anything, "u1", roomUC.CreateRequest{GameType: "okey", MaxPlayers: 2}).Return(sampleRoom(), nil)

	rec, resp := serve(t, newRouter(uc), http.MethodPost, "/rooms", `{"gameType":"okey","maxPlayers":2}`)

	assert.Equal(t, http.StatusCreated, rec.Code)
	var view roomDomain.View
	require.NoError(t, json.Unmarshal(resp.Data, &view))
	assert.Equal(t, "123456", view.RoomID)
	assert.Equal(t, 1, view.AvailableSlots)
	assert.False(t, view.CanStartGame)
}

func TestCreateRoomValidationError(t *testing.T) {
	uc := new(mocks.MockRoomUsecase)
	uc.On("Create", mock.Anything, "u1", mock.Anything).
		Return(roomDomain.Room{}, errs.ErrValidation)

	rec, _ := serve(t, newRouter(uc), http.MethodPost, "/rooms", `{"gameType":"chess"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListRooms(t *testing.T) {
	uc := new(mocks.MockRoomUsecase)
	uc.On("List", mock.Anything, "okey", "waiting", 2).Return([]roomDomain.Room{sampleRoom()}, nil)

	rec, resp := serve(t, newRouter(uc), http.MethodGet, "/rooms?gameType=okey&status=waiting&page=2", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	var views []roomDomain.View
	require.NoError(t, json.Unmarshal(resp.Data, &views))
	require.Len(t, views, 1)
	assert.Equal(t, 1, views[0].CurrentPlayerCount)
}

func TestListRoomsBadPage(t *testing.T) {
	uc := new(mocks.MockRoomUsecase)
	rec, _ := serve(t, newRouter(uc), http.MethodGet, "/rooms?page=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	uc.AssertNotCalled(t, "List", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGetRoomNotFound(t *testing.T) {
	uc := new(mocks.MockRoomUsecase)
	uc.On("Get", mock.Anything, "999999").Return(roomDomain.Room{}, errs.ErrRoomNotFound)

	rec, _ := serve(t, newRouter(uc), http.MethodGet, "/rooms/999999", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"room not found"}`, rec.Body.String())
}

func TestJoinRoom(t *testing.T) {
	uc := new(mocks.MockRoomUsecase)
	joined := sampleRoom()
	joined.Players = append(joined.Players, "u2")
	uc.On("Join", mock.Anything, "123456", "u1", "").Return(joined, nil).Once()
	uc.On("Join", mock.Anything, "123456", "u1", "1234").Return(roomDomain.Room{}, errs.ErrWrongRoomPassword).Once()

	router := newRouter(uc)
	rec, resp := serve(t, router, http.MethodPost, "/rooms/123456/join", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var view roomDomain.View
	require.NoError(t, json.Unmarshal(resp.Data, &view))
	assert.True(t, view.CanStartGame)
	assert.True(t, view.IsFull)

	rec, _ = serve(t, router, http.MethodPost, "/rooms/123456/join", `{"password":"1234"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestJoinFullRoom(t *testing.T) {
	uc := new(mocks.MockRoomUsecase)
	uc.On("Join", mock.Anything, "123456", "u1", "").Return(roomDomain.Room{}, errs.ErrRoomFull)

	rec, _ := serve(t, newRouter(uc), http.MethodPost, "/rooms/123456/join", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"room is full"}`, rec.Body.String())
}

func TestLeaveStartEndCancel(t *testing.T) {
	uc := new(mocks.MockRoomUsecase)
	uc.On("Leave", mock.Anything, "123456", "u1").Return(sampleRoom(), nil)
	uc.On("Start", mock.Anything, "123456", "u1").Return(roomDomain.Room{}, errs.ErrNotEnoughPlayers)
	uc.On("End", mock.Anything, "123456", "u1", roomUC.EndRequest{WinnerID: "u1", FinalScores: map[string]int{"u1": 5}}).
		Return(sampleRoom(), nil)
	uc.On("Cancel", mock.Anything, "123456", "u1").Return(roomDomain.Room{}, errs.ErrForbidden)

	router := newRouter(uc)

	rec, _ := serve(t, router, http.MethodDelete, "/rooms/123456/leave", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = serve(t, router, http.MethodPost, "/rooms/123456/start", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = serve(t, router, http.MethodPost, "/rooms/123456/end", `{"winnerId":"u1","finalScores":{"u1":5}}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = serve(t, router, http.MethodDelete, "/rooms/123456", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	uc.AssertExpectations(t)
}

func TestMessages(t *testing.T) {
	uc := new(mocks.MockRoomUsecase)
	uc.On("ChatHistory", mock.Anything, "123456").Return([]roomDomain.ChatMessage{{ID: "m1", Message: "selam"}}, nil)

	rec, resp := serve(t, newRouter(uc), http.MethodGet, "/rooms/123456/messages", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var msgs []roomDomain.ChatMessage
	require.NoError(t, json.Unmarshal(resp.Data, &msgs))
	assert.Equal(t, "selam", msgs[0].Message)
}

func TestInternalErrorIsGeneric(t *testing.T) {
	uc := new(mocks.MockRoomUsecase)
	uc.On("MyRooms", mock.Anything, "u1").Return([]roomDomain.Room(nil), assert.AnError)

	rec, _ := serve(t, newRouter(uc), http.MethodGet, "/my-rooms", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"Internal server error"}`, rec.Body.String())
}
