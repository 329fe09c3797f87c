package delivery

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"okeyonline/internal/bootstrap"
	authDelivery "okeyonline/internal/delivery/auth"
	roomDelivery "okeyonline/internal/delivery/room"
	userDelivery "okeyonline/internal/delivery/user"
	"okeyonline/internal/httpresponse"
	ownMiddleware "okeyonline/internal/middleware"
)

type Handlers struct {
	Auth    *authDelivery.AuthHandler
	User    *userDelivery.UserHandler
	Room    *roomDelivery.RoomHandler
	Socket  http.HandlerFunc
	Tokens  ownMiddleware.TokenValidator
	Limiter *ownMiddleware.RateLimiter
}

func NewRouter(cfg *bootstrap.Config, h Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	if cfg.IsLocalCors {
		r.Use(ownMiddleware.CORS)
	}

	r.Get("/health", Health)
	r.Get("/ws", h.Socket)

	authRequired := ownMiddleware.Auth(h.Tokens)

	r.Route("/api", func(r chi.Router) {
		if h.Limiter != nil {
			r.Use(h.Limiter.Middleware)
		}

		r.Post("/auth/register", h.Auth.Register)
		r.Post("/auth/login", h.Auth.Login)

		r.Route("/users", func(r chi.Router) {
			r.Use(authRequired)
			r.Get("/profile", h.User.Profile)
			r.Put("/profile", h.User.UpdateProfile)
			r.Get("/stats", h.User.Stats)
			r.Get("/online", h.User.Online)
			r.Get("/{id}/stats", h.User.Stats)
		})

		r.Route("/rooms", func(r chi.Router) {
			r.Get("/", h.Room.List)
			r.With(authRequired).Get("/my-rooms", h.Room.MyRooms)
			r.With(authRequired).Post("/", h.Room.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.Room.Get)
				r.Get("/messages", h.Room.Messages)
				r.Get("/online", h.User.RoomOnline)

				r.Group(func(r chi.Router) {
					r.Use(authRequired)
					r.Delete("/", h.Room.Cancel)
					r.Post("/join", h.Room.Join)
					r.Delete("/leave", h.Room.Leave)
					r.Post("/spectate", h.Room.Spectate)
					r.Delete("/spectate", h.Room.Unspectate)
					r.Post("/start", h.Room.Start)
					r.Post("/end", h.Room.End)
				})
			})
		})

		r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
			httpresponse.WriteErrorMessage(w, http.StatusNotFound, "Route not found")
		})
	})

	if cfg.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(cfg.StaticDir)))
	}
	return r
}
