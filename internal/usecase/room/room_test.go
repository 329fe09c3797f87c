package room_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	roomDomain "okeyonline/internal/domain/room"
	errs "okeyonline/internal/errors"
	"okeyonline/internal/lock"
	"okeyonline/internal/mocks"
	repo "okeyonline/internal/repository"
	"okeyonline/internal/usecase/room"
)

type fixture struct {
	uc       *room.RoomUseCase
	store    *repo.MapRoomStorage
	notifier *mocks.MockNotifier
	stats    *mocks.MockStatsRecorder
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	log := zap.NewNop().Sugar()
	store := repo.NewMapRoomStorage()
	notifier := new(mocks.MockNotifier)
	notifier.On("Notify", mock.Anything, mock.Anything, mock.Anything).Return()
	stats := new(mocks.MockStatsRecorder)

	uc := room.NewRoomUseCase(store, lock.NewRoomLockManager(log, time.Second), notifier, stats, log,
		room.Config{PageLimit: 20, BcryptCost: bcrypt.MinCost})
	return fixture{uc: uc, store: store, notifier: notifier, stats: stats}
}

func TestCreateRoom(t *testing.T) {
	f := newFixture(t)

	r, err := f.uc.Create(context.Background(), "creator", room.CreateRequest{GameType: "Okey", MaxPlayers: 2})
	require.NoError(t, err)

	assert.Len(t, r.RoomID, 6)
	assert.Equal(t, roomDomain.GameOkey, r.GameType)
	assert.Equal(t, []string{"creator"}, r.Players)
	assert.Equal(t, "creator", r.CreatedBy)

	stored, err := f.uc.Get(context.Background(), r.RoomID)
	require.NoError(t, err)
	assert.Equal(t, r.RoomID, stored.RoomID)
}

func TestCreateRoomValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.uc.Create(context.Background(), "creator", room.CreateRequest{GameType: "poker"})
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestJoinStartScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	r, err := f.uc.Create(ctx, "a", room.CreateRequest{GameType: "okey", MaxPlayers: 2})
	require.NoError(t, err)

	_, err = f.uc.Start(ctx, r.RoomID, "a")
	assert.ErrorIs(t, err, errs.ErrNotEnoughPlayers)

	joined, err := f.uc.Join(ctx, r.RoomID, "b", "")
	require.NoError(t, err)
	assert.Equal(t, 2, joined.CurrentPlayerCount())
	assert.True(t, joined.CanStartGame())

	_, err = f.uc.Join(ctx, r.RoomID, "c", "")
	assert.ErrorIs(t, err, errs.ErrRoomFull)

	_, err = f.uc.Start(ctx, r.RoomID, "outsider")
	assert.ErrorIs(t, err, errs.ErrNotInRoom)

	started, err := f.uc.Start(ctx, r.RoomID, "a")
	require.NoError(t, err)
	assert.Equal(t, roomDomain.StatusPlaying, started.Status)
	require.Len(t, started.CurrentGame.Players, 2)
	assert.Equal(t, "a", started.CurrentGame.Players[0].UserID)
	assert.Equal(t, "top", started.CurrentGame.Players[0].Position)
	assert.Equal(t, "right", started.CurrentGame.Players[1].Position)
	assert.Contains(t, started.CurrentGame.GameID, "game_")

	f.notifier.AssertCalled(t, "Notify", r.RoomID, room.EventPlayerJoined, mock.Anything)
	f.notifier.AssertCalled(t, "Notify", r.RoomID, room.EventGameStarted, mock.Anything)
}

func TestEndRecordsStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	r, err := f.uc.Create(ctx, "a", room.CreateRequest{GameType: "batak"})
	require.NoError(t, err)
	_, err = f.uc.Join(ctx, r.RoomID, "b", "")
	require.NoError(t, err)
	_, err = f.uc.Start(ctx, r.RoomID, "b")
	require.NoError(t, err)

	f.stats.On("RecordGameResult", mock.Anything, "a", false, 10).Return(nil)
	f.stats.On("RecordGameResult", mock.Anything, "b", true, 0).Return(errors.New("db down"))

	ended, err := f.uc.End(ctx, r.RoomID, "a", room.EndRequest{WinnerID: "b", FinalScores: map[string]int{"a": 10}})
	require.NoError(t, err)
	assert.Equal(t, roomDomain.StatusFinished, ended.Status)
	assert.Equal(t, 1, ended.Statistics.TotalGames)

	f.stats.AssertExpectations(t)
	f.notifier.AssertCalled(t, "Notify", r.RoomID, room.EventGameEnded, mock.Anything)
}

func TestPrivateRoomPassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	r, err := f.uc.Create(ctx, "a", room.CreateRequest{GameType: "tavla", Password: "1234"})
	require.NoError(t, err)
	assert.True(t, r.IsPrivate())

	_, err = f.uc.Join(ctx, r.RoomID, "b", "wrong")
	assert.ErrorIs(t, err, errs.ErrWrongRoomPassword)

	_, err = f.uc.Join(ctx, r.RoomID, "b", "1234")
	assert.NoError(t, err)
}

func TestLeaveAndSpectate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	r, err := f.uc.Create(ctx, "a", room.CreateRequest{GameType: "pisti"})
	require.NoError(t, err)

	_, err = f.uc.Leave(ctx, r.RoomID, "ghost")
	assert.ErrorIs(t, err, errs.ErrNotInRoom)

	watched, err := f.uc.Spectate(ctx, r.RoomID, "s")
	require.NoError(t, err)
	assert.True(t, watched.HasSpectator("s"))

	mine, err := f.uc.MyRooms(ctx, "s")
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	_, err = f.uc.Unspectate(ctx, r.RoomID, "s")
	require.NoError(t, err)

	left, err := f.uc.Leave(ctx, r.RoomID, "a")
	require.NoError(t, err)
	assert.Empty(t, left.Players)
	f.notifier.AssertCalled(t, "Notify", r.RoomID, room.EventPlayerLeft, mock.Anything)
}

func TestCancelOnlyByCreator(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	r, err := f.uc.Create(ctx, "a", room.CreateRequest{GameType: "okey"})
	require.NoError(t, err)

	_, err = f.uc.Cancel(ctx, r.RoomID, "b")
	assert.ErrorIs(t, err, errs.ErrForbidden)

	cancelled, err := f.uc.Cancel(ctx, r.RoomID, "a")
	require.NoError(t, err)
	assert.Equal(t, roomDomain.StatusCancelled, cancelled.Status)

	rooms, err := f.uc.List(ctx, "", "", 1)
	require.NoError(t, err)
	assert.Empty(t, rooms)
}

func TestListValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.uc.List(context.Background(), "chess", "", 1)
	assert.ErrorIs(t, err, errs.ErrValidation)
	_, err = f.uc.List(context.Background(), "", "paused", 1)
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestConcurrentJoinsRespectCapacity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	r, err := f.uc.Create(ctx, "creator", room.CreateRequest{GameType: "okey", MaxPlayers: 4})
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		full int
		ok   int
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.uc.Join(ctx, r.RoomID, string(rune('a'+i)), "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, errs.ErrRoomFull):
				full++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 3, ok)
	assert.Equal(t, 9, full)

	stored, err := f.uc.Get(ctx, r.RoomID)
	require.NoError(t, err)
	assert.Len(t, stored.Players, 4)
}

// conflictOnce makes the first versioned update fail as if another
// writer had bumped the room in between.
type conflictOnce struct {
	*repo.MapRoomStorage
	mu   sync.Mutex
	done bool
}

func (c *conflictOnce) Update(ctx context.Context, r *roomDomain.Room) error {
	c.mu.Lock()
	first := !c.done
	c.done = true
	c.mu.Unlock()
	if first {
		return errs.ErrVersionConflict
	}
	return c.MapRoomStorage.Update(ctx, r)
}

func TestMutationRetriesOnVersionConflict(t *testing.T) {
	ctx := context.Background()
	log := zap.NewNop().Sugar()
	store := &conflictOnce{MapRoomStorage: repo.NewMapRoomStorage()}
	uc := room.NewRoomUseCase(store, lock.NewRoomLockManager(log, time.Second), nil, new(mocks.MockStatsRecorder), log, room.Config{})

	r, err := uc.Create(ctx, "a", room.CreateRequest{GameType: "okey"})
	require.NoError(t, err)

	joined, err := uc.Join(ctx, r.RoomID, "b", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, joined.Players)
}

func TestChatHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	r, err := f.uc.Create(ctx, "a", room.CreateRequest{GameType: "okey"})
	require.NoError(t, err)

	empty, err := f.uc.ChatHistory(ctx, r.RoomID)
	require.NoError(t, err)
	assert.NotNil(t, empty)

	for i := 0; i < 51; i++ {
		msg, err := roomDomain.NewChatMessage(string(rune('A'+i%26)), "a", "weddy", r.RoomID, "selam", time.Time{}, time.Now())
		require.NoError(t, err)
		require.NoError(t, f.uc.RecordChatMessage(ctx, msg))
	}

	history, err := f.uc.ChatHistory(ctx, r.RoomID)
	require.NoError(t, err)
	assert.Len(t, history, roomDomain.MaxChatHistory)

	err = f.uc.RecordChatMessage(ctx, roomDomain.ChatMessage{RoomID: "000000"})
	assert.ErrorIs(t, err, errs.ErrRoomNotFound)
}
