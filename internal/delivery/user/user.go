package user

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"okeyonline/internal/domain/presence"
	userDomain "okeyonline/internal/domain/user"
	errs "okeyonline/internal/errors"
	"okeyonline/internal/httpresponse"
	"okeyonline/internal/middleware"
	userUC "okeyonline/internal/usecase/user"
	"okeyonline/internal/utils"
)

type UserUsecase interface {
	Profile(ctx context.Context, userID string) (userDomain.Profile, error)
	UpdateProfile(ctx context.Context, userID string, req userUC.UpdateProfileRequest) (userDomain.Profile, error)
	Stats(ctx context.Context, userID string) (userDomain.StatsView, error)
	OnlineUsers(ctx context.Context) ([]presence.OnlineUser, error)
	RoomOnline(ctx context.Context, roomID string) ([]presence.OnlineUser, error)
}

type UserHandler struct {
	usecase UserUsecase
	log     *zap.SugaredLogger
}

func NewUserHandler(usecase UserUsecase, log *zap.SugaredLogger) *UserHandler {
	return &UserHandler{usecase: usecase, log: log}
}

func (h *UserHandler) identity(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		httpresponse.WriteError(w, errs.ErrUnauthorized)
		return "", false
	}
	return id.UserID, true
}

func (h *UserHandler) fail(w http.ResponseWriter, op string, err error) {
	if status, _ := httpresponse.StatusFromError(err); status >= http.StatusInternalServerError {
		h.log.Errorf("%s: %v", op, err)
	}
	httpresponse.WriteError(w, err)
}

func (h *UserHandler) Profile(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.identity(w, r)
	if !ok {
		return
	}
	profile, err := h.usecase.Profile(r.Context(), userID)
	if err != nil {
		h.fail(w, "Profile", err)
		return
	}
	httpresponse.WriteData(w, http.StatusOK, "", profile)
}

func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req userUC.UpdateProfileRequest
	if err := utils.DecodeJSONRequest(r, &req); err != nil {
		httpresponse.WriteError(w, err)
		return
	}
	profile, err := h.usecase.UpdateProfile(r.Context(), userID, req)
	if err != nil {
		h.fail(w, "UpdateProfile", err)
		return
	}
	httpresponse.WriteData(w, http.StatusOK, "Profile updated", profile)
}

// Stats serves both /users/stats and /users/{id}/stats.
func (h *UserHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.identity(w, r)
	if !ok {
		return
	}
	if id := chi.URLParam(r, "id"); id != "" {
		userID = id
	}
	stats, err := h.usecase.Stats(r.Context(), userID)
	if err != nil {
		h.fail(w, "Stats", err)
		return
	}
	httpresponse.WriteData(w, http.StatusOK, "", stats)
}

func (h *UserHandler) Online(w http.ResponseWriter, r *http.Request) {
	users, err := h.usecase.OnlineUsers(r.Context())
	if err != nil {
		h.fail(w, "Online", err)
		return
	}
	httpresponse.WriteData(w, http.StatusOK, "", users)
}

func (h *UserHandler) RoomOnline(w http.ResponseWriter, r *http.Request) {
	users, err := h.usecase.RoomOnline(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "RoomOnline", err)
		return
	}
	httpresponse.WriteData(w, http.StatusOK, "", users)
}
