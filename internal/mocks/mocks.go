package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"okeyonline/internal/domain/presence"
	"okeyonline/internal/domain/room"
	"okeyonline/internal/domain/user"
	roomUC "okeyonline/internal/usecase/room"
	authUC "okeyonline/internal/usecase/auth"
	userUC "okeyonline/internal/usecase/user"
)

// MockUserRepository - mock of user.Repository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, u *user.User) error {
	args := m.Called(ctx, u)
	if args.Error(0) == nil && u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	return args.Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id primitive.ObjectID) (user.User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(user.User), args.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (user.User, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(user.User), args.Error(1)
}

func (m *MockUserRepository) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	args := m.Called(ctx, username, email)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserRepository) ExistsByUsername(ctx context.Context, username string, except primitive.ObjectID) (bool, error) {
	args := m.Called(ctx, username, except)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserRepository) UpdateLogin(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

func (m *MockUserRepository) SetOnline(ctx context.Context, id primitive.ObjectID, online bool) error {
	return m.Called(ctx, id, online).Error(0)
}

func (m *MockUserRepository) UpdateProfile(ctx context.Context, id primitive.ObjectID, username, avatar string) error {
	return m.Called(ctx, id, username, avatar).Error(0)
}

func (m *MockUserRepository) RecordGame(ctx context.Context, id primitive.ObjectID, won bool, score int) error {
	return m.Called(ctx, id, won, score).Error(0)
}

// MockTokenIssuer - mock of the JWT issuer
type MockTokenIssuer struct {
	mock.Mock
}

func (m *MockTokenIssuer) Generate(userID, username string) (string, error) {
	args := m.Called(userID, username)
	return args.String(0), args.Error(1)
}

// MockNotifier records room notifications
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(roomID, event string, data any) {
	m.Called(roomID, event, data)
}

// MockStatsRecorder - mock of the per-user game result recorder
type MockStatsRecorder struct {
	mock.Mock
}

func (m *MockStatsRecorder) RecordGameResult(ctx context.Context, userID string, won bool, score int) error {
	return m.Called(ctx, userID, won, score).Error(0)
}

// MockAuthUsecase - mock of the auth use case used by the HTTP handler
type MockAuthUsecase struct {
	mock.Mock
}

func (m *MockAuthUsecase) RegisterUser(ctx context.Context, username, email, password string) (authUC.Result, error) {
	args := m.Called(ctx, username, email, password)
	return args.Get(0).(authUC.Result), args.Error(1)
}

func (m *MockAuthUsecase) LoginUser(ctx context.Context, email, password string) (authUC.Result, error) {
	args := m.Called(ctx, email, password)
	return args.Get(0).(authUC.Result), args.Error(1)
}

// MockUserUsecase - mock of the user use case used by the HTTP handler
type MockUserUsecase struct {
	mock.Mock
}

func (m *MockUserUsecase) Profile(ctx context.Context, userID string) (user.Profile, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(user.Profile), args.Error(1)
}

func (m *MockUserUsecase) UpdateProfile(ctx context.Context, userID string, req userUC.UpdateProfileRequest) (user.Profile, error) {
	args := m.Called(ctx, userID, req)
	return args.Get(0).(user.Profile), args.Error(1)
}

func (m *MockUserUsecase) Stats(ctx context.Context, userID string) (user.StatsView, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(user.StatsView), args.Error(1)
}

func (m *MockUserUsecase) OnlineUsers(ctx context.Context) ([]presence.OnlineUser, error) {
	args := m.Called(ctx)
	return args.Get(0).([]presence.OnlineUser), args.Error(1)
}

func (m *MockUserUsecase) RoomOnline(ctx context.Context, roomID string) ([]presence.OnlineUser, error) {
	args := m.Called(ctx, roomID)
	return args.Get(0).([]presence.OnlineUser), args.Error(1)
}

// MockRoomUsecase - mock of the room use case used by the HTTP handler
type MockRoomUsecase struct {
	mock.Mock
}

func (m *MockRoomUsecase) Create(ctx context.Context, creatorID string, req roomUC.CreateRequest) (room.Room, error) {
	args := m.Called(ctx, creatorID, req)
	return args.Get(0).(room.Room), args.Error(1)
}

func (m *MockRoomUsecase) Get(ctx context.Context, roomID string) (room.Room, error) {
	args := m.Called(ctx, roomID)
	return args.Get(0).(room.Room), args.Error(1)
}

func (m *MockRoomUsecase) List(ctx context.Context, gameType, status string, page int) ([]room.Room, error) {
	args := m.Called(ctx, gameType, status, page)
	return args.Get(0).([]room.Room), args.Error(1)
}

func (m *MockRoomUsecase) MyRooms(ctx context.Context, userID string) ([]room.Room, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]room.Room), args.Error(1)
}

func (m *MockRoomUsecase) Join(ctx context.Context, roomID, userID, password string) (room.Room, error) {
	args := m.Called(ctx, roomID, userID, password)
	return args.Get(0).(room.Room), args.Error(1)
}

func (m *MockRoomUsecase) Leave(ctx context.Context, roomID, userID string) (room.Room, error) {
	args := m.Called(ctx, roomID, userID)
	return args.Get(0).(room.Room), args.Error(1)
}

func (m *MockRoomUsecase) Spectate(ctx context.Context, roomID, userID string) (room.Room, error) {
	args := m.Called(ctx, roomID, userID)
	return args.Get(0).(room.Room), args.Error(1)
}

func (m *MockRoomUsecase) Unspectate(ctx context.Context, roomID, userID string) (room.Room, error) {
	args := m.Called(ctx, roomID, userID)
	return args.Get(0).(room.Room), args.Error(1)
}

func (m *MockRoomUsecase) Start(ctx context.Context, roomID, userID string) (room.Room, error) {
	args := m.Called(ctx, roomID, userID)
	return args.Get(0).(room.Room), args.Error(1)
}

func (m *MockRoomUsecase) End(ctx context.Context, roomID, userID string, req roomUC.EndRequest) (room.Room, error) {
	args := m.Called(ctx, roomID, userID, req)
	return args.Get(0).(room.Room), args.Error(1)
}

func (m *MockRoomUsecase) Cancel(ctx context.Context, roomID, userID string) (room.Room, error) {
	args := m.Called(ctx, roomID, userID)
	return args.Get(0).(room.Room), args.Error(1)
}

func (m *MockRoomUsecase) ChatHistory(ctx context.Context, roomID string) ([]room.ChatMessage, error) {
	args := m.Called(ctx, roomID)
	return args.Get(0).([]room.ChatMessage), args.Error(1)
}
