package room

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	roomDomain "okeyonline/internal/domain/room"
	errs "okeyonline/internal/errors"
	"okeyonline/internal/httpresponse"
	"okeyonline/internal/middleware"
	roomUC "okeyonline/internal/usecase/room"
	"okeyonline/internal/utils"
)

type RoomUsecase interface {
	Create(ctx context.Context, creatorID string, req roomUC.CreateRequest) (roomDomain.Room, error)
	Get(ctx context.Context, roomID string) (roomDomain.Room, error)
	List(ctx context.Context, gameType, status string, page int) ([]roomDomain.Room, error)
	MyRooms(ctx context.Context, userID string) ([]roomDomain.Room, error)
	Join(ctx context.Context, roomID, userID, password string) (roomDomain.Room, error)
	Leave(ctx context.Context, roomID, userID string) (roomDomain.Room, error)
	Spectate(ctx context.Context, roomID, userID string) (roomDomain.Room, error)
	Unspectate(ctx context.Context, roomID, userID string) (roomDomain.Room, error)
	Start(ctx context.Context, roomID, userID string) (roomDomain.Room, error)
	End(ctx context.Context, roomID, userID string, req roomUC.EndRequest) (roomDomain.Room, error)
	Cancel(ctx context.Context, roomID, userID string) (roomDomain.Room, error)
	ChatHistory(ctx context.Context, roomID string) ([]roomDomain.ChatMessage, error)
}

type RoomHandler struct {
	usecase RoomUsecase
	log     *zap.SugaredLogger
}

type JoinRequest struct {
	Password string `json:"password,omitempty"`
}

func NewRoomHandler(usecase RoomUsecase, log *zap.SugaredLogger) *RoomHandler {
	return &RoomHandler{usecase: usecase, log: log}
}

func views(rooms []roomDomain.Room) []roomDomain.View {
	out := make([]roomDomain.View, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.View())
	}
	return out
}

func (h *RoomHandler) fail(w http.ResponseWriter, op string, err error) {
	status, _ := httpresponse.StatusFromError(err)
	if status >= http.StatusInternalServerError {
		h.log.Errorf("%s: %v", op, err)
	} else {
		h.log.Debugf("%s: %v", op, err)
	}
	httpresponse.WriteError(w, err)
}

func (h *RoomHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := 1
	if raw := q.Get("page"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil || p < 1 {
			httpresponse.WriteErrorMessage(w, http.StatusBadRequest, "page must be a positive integer")
			return
		}
		page = p
	}

	rooms, err := h.usecase.List(r.Context(), q.Get("gameType"), q.Get("status"), page)
	if err != nil {
		h.fail(w, "List", err)
		return
	}
	httpresponse.WriteData(w, http.StatusOK, "", views(rooms))
}

func (h *RoomHandler) MyRooms(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		httpresponse.WriteError(w, errs.ErrUnauthorized)
		return
	}
	rooms, err := h.usecase.MyRooms(r.Context(), id.UserID)
	if err != nil {
		h.fail(w, "MyRooms", err)
		return
	}
	httpresponse.WriteData(w, http.StatusOK, "", views(rooms))
}

func (h *RoomHandler) Get(w http.ResponseWriter, r *http.Request) {
	room, err := h.usecase.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "Get", err)
		return
	}
	httpresponse.WriteData(w, http.StatusOK, "", room.View())
}

func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		httpresponse.WriteError(w, errs.ErrUnauthorized)
		return
	}
	var req roomUC.CreateRequest
	if err := utils.DecodeJSONRequest(r, &req); err != nil {
		httpresponse.WriteError(w, err)
		return
	}

	room, err := h.usecase.Create(r.Context(), id.UserID, req)
	if err != nil {
		h.fail(w, "Create", err)
		return
	}
	httpresponse.WriteData(w, http.StatusCreated, "Room created", room.View())
}

func (h *RoomHandler) Messages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.usecase.ChatHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "Messages", err)
		return
	}
	httpresponse.WriteData(w, http.StatusOK, "", msgs)
}

type roomAction func(ctx context.Context, roomID, userID string) (roomDomain.Room, error)

// action adapts a member operation on {id} into a handler.
func (h *RoomHandler) action(op, message string, fn roomAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := middleware.IdentityFromContext(r.Context())
		if !ok {
			httpresponse.WriteError(w, errs.ErrUnauthorized)
			return
		}
		room, err := fn(r.Context(), chi.URLParam(r, "id"), id.UserID)
		if err != nil {
			h.fail(w, op, err)
			return
		}
		httpresponse.WriteData(w, http.StatusOK, message, room.View())
	}
}

func (h *RoomHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req JoinRequest
	if err := utils.DecodeOptionalJSON(r, &req); err != nil {
		httpresponse.WriteError(w, err)
		return
	}
	h.action("Join", "Joined room", func(ctx context.Context, roomID, userID string) (roomDomain.Room, error) {
		return h.usecase.Join(ctx, roomID, userID, req.Password)
	})(w, r)
}

func (h *RoomHandler) Leave(w http.ResponseWriter, r *http.Request) {
	h.action("Leave", "Left room", h.usecase.Leave)(w, r)
}

func (h *RoomHandler) Spectate(w http.ResponseWriter, r *http.Request) {
	h.action("Spectate", "Watching room", h.usecase.Spectate)(w, r)
}

func (h *RoomHandler) Unspectate(w http.ResponseWriter, r *http.Request) {
	h.action("Unspectate", "Stopped watching room", h.usecase.Unspectate)(w, r)
}

func (h *RoomHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.action("Start", "Game started", h.usecase.Start)(w, r)
}

func (h *RoomHandler) End(w http.ResponseWriter, r *http.Request) {
	var req roomUC.EndRequest
	if err := utils.DecodeJSONRequest(r, &req); err != nil {
		httpresponse.WriteError(w, err)
		return
	}
	h.action("End", "Game ended", func(ctx context.Context, roomID, userID string) (roomDomain.Room, error) {
		return h.usecase.End(ctx, roomID, userID, req)
	})(w, r)
}

func (h *RoomHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.action("Cancel", "Room cancelled", h.usecase.Cancel)(w, r)
}
