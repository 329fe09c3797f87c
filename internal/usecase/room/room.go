package room

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	roomDomain "okeyonline/internal/domain/room"
	errs "okeyonline/internal/errors"
)

// Events pushed to the room channel after a successful mutation.
const (
	EventPlayerJoined  = "player-joined-game"
	EventPlayerLeft    = "player-left-game"
	EventGameStarted   = "game-started"
	EventGameEnded     = "game-ended"
	EventStatusChanged = "table-status-changed"
)

const (
	maxUpdateRetries  = 3
	maxPasswordLength = 72
)

type Notifier interface {
	Notify(roomID, event string, data any)
}

type Locker interface {
	Lock(ctx context.Context, key string) error
	Unlock(key string)
}

type StatsRecorder interface {
	RecordGameResult(ctx context.Context, userID string, won bool, score int) error
}

type RoomUseCase struct {
	store      roomDomain.Repository
	locks      Locker
	notifier   Notifier
	stats      StatsRecorder
	log        *zap.SugaredLogger
	pageLimit  int
	bcryptCost int
	now        func() time.Time
}

type Config struct {
	PageLimit  int
	BcryptCost int
}

func NewRoomUseCase(store roomDomain.Repository, locks Locker, notifier Notifier, stats StatsRecorder, log *zap.SugaredLogger, cfg Config) *RoomUseCase {
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = 20
	}
	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &RoomUseCase{
		store:      store,
		locks:      locks,
		notifier:   notifier,
		stats:      stats,
		log:        log,
		pageLimit:  cfg.PageLimit,
		bcryptCost: cfg.BcryptCost,
		now:        time.Now,
	}
}

type CreateRequest struct {
	Name       string                    `json:"name,omitempty"`
	GameType   string                    `json:"gameType"`
	MaxPlayers int                       `json:"maxPlayers,omitempty"`
	BetAmount  int64                     `json:"betAmount,omitempty"`
	Settings   *roomDomain.SettingsInput `json:"settings,omitempty"`
	Password   string                    `json:"password,omitempty"`
}

type EndRequest struct {
	WinnerID    string         `json:"winnerId"`
	FinalScores map[string]int `json:"finalScores,omitempty"`
}

// RoomEvent is the payload of every room notification.
type RoomEvent struct {
	RoomID string          `json:"roomId"`
	UserID string          `json:"userId,omitempty"`
	Room   roomDomain.View `json:"room"`
}

func (u *RoomUseCase) Create(ctx context.Context, creatorID string, req CreateRequest) (roomDomain.Room, error) {
	params := roomDomain.CreateParams{
		Name:       req.Name,
		GameType:   roomDomain.GameType(strings.ToLower(strings.TrimSpace(req.GameType))),
		MaxPlayers: req.MaxPlayers,
		BetAmount:  req.BetAmount,
		Settings:   req.Settings,
	}
	if req.Password != "" {
		if len(req.Password) > maxPasswordLength {
			return roomDomain.Room{}, fmt.Errorf("%w: room password is too long", errs.ErrValidation)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), u.bcryptCost)
		if err != nil {
			return roomDomain.Room{}, err
		}
		params.PasswordHash = string(hash)
	}

	for attempt := 0; ; attempt++ {
		roomID, err := u.GenerateRoomID(ctx)
		if err != nil {
			return roomDomain.Room{}, err
		}

		r, err := roomDomain.New(roomID, creatorID, params, u.now())
		if err != nil {
			return roomDomain.Room{}, err
		}
		if err = r.AddPlayer(creatorID); err != nil {
			return roomDomain.Room{}, err
		}

		err = u.store.Create(ctx, &r)
		if errors.Is(err, errs.ErrRoomExists) && attempt < maxUpdateRetries {
			continue
		}
		if err != nil {
			return roomDomain.Room{}, err
		}

		u.log.Infof("room %s (%s) created by %s", r.RoomID, r.GameType, creatorID)
		return r, nil
	}
}

func (u *RoomUseCase) Get(ctx context.Context, roomID string) (roomDomain.Room, error) {
	return u.store.GetByRoomID(ctx, roomID)
}

func (u *RoomUseCase) List(ctx context.Context, gameType, status string, page int) ([]roomDomain.Room, error) {
	f := roomDomain.ListFilter{
		GameType: roomDomain.GameType(gameType),
		Status:   roomDomain.Status(status),
		Page:     max(page, 1),
		Limit:    u.pageLimit,
	}
	if f.GameType != "" && !roomDomain.ValidGameType(f.GameType) {
		return nil, fmt.Errorf("%w: unknown gameType %q", errs.ErrValidation, gameType)
	}
	if f.Status != "" && !roomDomain.ValidStatus(f.Status) {
		return nil, fmt.Errorf("%w: unknown status %q", errs.ErrValidation, status)
	}
	return u.store.FindActive(ctx, f)
}

func (u *RoomUseCase) MyRooms(ctx context.Context, userID string) ([]roomDomain.Room, error) {
	return u.store.FindByMember(ctx, userID)
}

func (u *RoomUseCase) Join(ctx context.Context, roomID, userID, password string) (roomDomain.Room, error) {
	r, err := u.mutate(ctx, roomID, func(r *roomDomain.Room) error {
		if r.PasswordHash != "" && !r.HasPlayer(userID) {
			if bcrypt.CompareHashAndPassword([]byte(r.PasswordHash), []byte(password)) != nil {
				return errs.ErrWrongRoomPassword
			}
		}
		return r.AddPlayer(userID)
	})
	if err != nil {
		return r, err
	}
	u.notify(r, EventPlayerJoined, userID)
	return r, nil
}

func (u *RoomUseCase) Leave(ctx context.Context, roomID, userID string) (roomDomain.Room, error) {
	r, err := u.mutate(ctx, roomID, func(r *roomDomain.Room) error {
		removed := r.RemovePlayer(userID)
		if r.RemoveSpectator(userID) {
			removed = true
		}
		if !removed {
			return errs.ErrNotInRoom
		}
		return nil
	})
	if err != nil {
		return r, err
	}
	u.notify(r, EventPlayerLeft, userID)
	return r, nil
}

func (u *RoomUseCase) Spectate(ctx context.Context, roomID, userID string) (roomDomain.Room, error) {
	r, err := u.mutate(ctx, roomID, func(r *roomDomain.Room) error {
		return r.AddSpectator(userID)
	})
	if err != nil {
		return r, err
	}
	u.notify(r, EventStatusChanged, userID)
	return r, nil
}

func (u *RoomUseCase) Unspectate(ctx context.Context, roomID, userID string) (roomDomain.Room, error) {
	r, err := u.mutate(ctx, roomID, func(r *roomDomain.Room) error {
		if !r.RemoveSpectator(userID) {
			return errs.ErrNotInRoom
		}
		return nil
	})
	if err != nil {
		return r, err
	}
	u.notify(r, EventStatusChanged, userID)
	return r, nil
}

func (u *RoomUseCase) Start(ctx context.Context, roomID, userID string) (roomDomain.Room, error) {
	r, err := u.mutate(ctx, roomID, func(r *roomDomain.Room) error {
		if !r.HasPlayer(userID) {
			return errs.ErrNotInRoom
		}
		return r.StartGame("game_"+uuid.New().String(), u.now())
	})
	if err != nil {
		return r, err
	}
	u.log.Infof("room %s started game %s with %d players", r.RoomID, r.CurrentGame.GameID, len(r.CurrentGame.Players))
	u.notify(r, EventGameStarted, userID)
	return r, nil
}

// End finishes the running game and records a result for every seated player.
func (u *RoomUseCase) End(ctx context.Context, roomID, userID string, req EndRequest) (roomDomain.Room, error) {
	r, err := u.mutate(ctx, roomID, func(r *roomDomain.Room) error {
		if !r.HasPlayer(userID) {
			return errs.ErrNotInRoom
		}
		return r.EndGame(req.WinnerID, req.FinalScores, u.now())
	})
	if err != nil {
		return r, err
	}

	for _, p := range r.CurrentGame.Players {
		if err := u.stats.RecordGameResult(ctx, p.UserID, p.UserID == r.CurrentGame.Winner, p.Score); err != nil {
			u.log.Errorf("room %s: failed to record result for %s: %v", r.RoomID, p.UserID, err)
		}
	}
	u.notify(r, EventGameEnded, userID)
	return r, nil
}

func (u *RoomUseCase) Cancel(ctx context.Context, roomID, userID string) (roomDomain.Room, error) {
	r, err := u.mutate(ctx, roomID, func(r *roomDomain.Room) error {
		if r.CreatedBy != userID {
			return errs.ErrForbidden
		}
		return r.Cancel()
	})
	if err != nil {
		return r, err
	}
	u.notify(r, EventStatusChanged, userID)
	return r, nil
}

func (u *RoomUseCase) ChatHistory(ctx context.Context, roomID string) ([]roomDomain.ChatMessage, error) {
	r, err := u.store.GetByRoomID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if r.ChatMessages == nil {
		return []roomDomain.ChatMessage{}, nil
	}
	return r.ChatMessages, nil
}

// RecordChatMessage appends to the room history. The store trims it to the
// last roomDomain.MaxChatHistory messages.
func (u *RoomUseCase) RecordChatMessage(ctx context.Context, msg roomDomain.ChatMessage) error {
	return u.store.AppendChatMessage(ctx, msg.RoomID, msg)
}

// mutate runs op on a fresh copy of the room under the room lock and stores
// the result with a version check, retrying when another writer got there first.
func (u *RoomUseCase) mutate(ctx context.Context, roomID string, op func(r *roomDomain.Room) error) (roomDomain.Room, error) {
	if err := u.locks.Lock(ctx, roomID); err != nil {
		return roomDomain.Room{}, err
	}
	defer u.locks.Unlock(roomID)

	for attempt := 1; attempt <= maxUpdateRetries; attempt++ {
		r, err := u.store.GetByRoomID(ctx, roomID)
		if err != nil {
			return roomDomain.Room{}, err
		}
		if err = op(&r); err != nil {
			return roomDomain.Room{}, err
		}

		err = u.store.Update(ctx, &r)
		if errors.Is(err, errs.ErrVersionConflict) {
			u.log.Warnf("room %s: version conflict, attempt %d", roomID, attempt)
			continue
		}
		if err != nil {
			return roomDomain.Room{}, err
		}
		return r, nil
	}
	return roomDomain.Room{}, errs.ErrVersionConflict
}

func (u *RoomUseCase) notify(r roomDomain.Room, event, userID string) {
	if u.notifier == nil {
		return
	}
	u.notifier.Notify(r.RoomID, event, RoomEvent{RoomID: r.RoomID, UserID: userID, Room: r.View()})
}
