package user

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"okeyonline/internal/domain/presence"
	userDomain "okeyonline/internal/domain/user"
	errs "okeyonline/internal/errors"
)

type UserUsecaseHandler struct {
	users    userDomain.Repository
	presence presence.Store
	log      *zap.SugaredLogger
}

func NewUserUsecaseHandler(users userDomain.Repository, presence presence.Store, log *zap.SugaredLogger) *UserUsecaseHandler {
	return &UserUsecaseHandler{users: users, presence: presence, log: log}
}

type UpdateProfileRequest struct {
	Username *string `json:"username,omitempty"`
	Avatar   *string `json:"avatar,omitempty"`
}

func parseID(userID string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return primitive.NilObjectID, errs.ErrUserNotFound
	}
	return id, nil
}

func (u *UserUsecaseHandler) get(ctx context.Context, userID string) (userDomain.User, error) {
	id, err := parseID(userID)
	if err != nil {
		return userDomain.User{}, err
	}
	return u.users.GetByID(ctx, id)
}

func (u *UserUsecaseHandler) Profile(ctx context.Context, userID string) (userDomain.Profile, error) {
	found, err := u.get(ctx, userID)
	if err != nil {
		return userDomain.Profile{}, err
	}
	return found.Profile(), nil
}

func (u *UserUsecaseHandler) UpdateProfile(ctx context.Context, userID string, req UpdateProfileRequest) (userDomain.Profile, error) {
	if req.Username == nil && req.Avatar == nil {
		return userDomain.Profile{}, fmt.Errorf("%w: username or avatar is required", errs.ErrValidation)
	}

	found, err := u.get(ctx, userID)
	if err != nil {
		return userDomain.Profile{}, err
	}

	if req.Username != nil {
		username := strings.TrimSpace(*req.Username)
		if err = userDomain.ValidateUsername(username); err != nil {
			return userDomain.Profile{}, err
		}
		if username != found.Username {
			taken, err := u.users.ExistsByUsername(ctx, username, found.ID)
			if err != nil {
				return userDomain.Profile{}, err
			}
			if taken {
				return userDomain.Profile{}, errs.ErrUserExists
			}
		}
		found.Username = username
	}
	if req.Avatar != nil {
		avatar := strings.TrimSpace(*req.Avatar)
		if err = userDomain.ValidateAvatar(avatar); err != nil {
			return userDomain.Profile{}, err
		}
		found.Avatar = avatar
	}

	if err = u.users.UpdateProfile(ctx, found.ID, found.Username, found.Avatar); err != nil {
		return userDomain.Profile{}, err
	}
	return found.Profile(), nil
}

func (u *UserUsecaseHandler) Stats(ctx context.Context, userID string) (userDomain.StatsView, error) {
	found, err := u.get(ctx, userID)
	if err != nil {
		return userDomain.StatsView{}, err
	}
	return found.StatsView(), nil
}

func (u *UserUsecaseHandler) OnlineUsers(ctx context.Context) ([]presence.OnlineUser, error) {
	return u.presence.Online(ctx)
}

func (u *UserUsecaseHandler) RoomOnline(ctx context.Context, roomID string) ([]presence.OnlineUser, error) {
	return u.presence.ChannelMembers(ctx, roomID)
}

func (u *UserUsecaseHandler) MarkOnline(ctx context.Context, userID string) error {
	return u.setOnline(ctx, userID, true)
}

func (u *UserUsecaseHandler) MarkOffline(ctx context.Context, userID string) error {
	return u.setOnline(ctx, userID, false)
}

func (u *UserUsecaseHandler) setOnline(ctx context.Context, userID string, online bool) error {
	id, err := parseID(userID)
	if err != nil {
		return err
	}
	return u.users.SetOnline(ctx, id, online)
}

func (u *UserUsecaseHandler) RecordGameResult(ctx context.Context, userID string, won bool, score int) error {
	id, err := parseID(userID)
	if err != nil {
		return err
	}
	return u.users.RecordGame(ctx, id, won, score)
}
