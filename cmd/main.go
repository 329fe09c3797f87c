package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"okeyonline/internal/adapters"
	"okeyonline/internal/bootstrap"
	"okeyonline/internal/delivery"
	authDelivery "okeyonline/internal/delivery/auth"
	roomDelivery "okeyonline/internal/delivery/room"
	userDelivery "okeyonline/internal/delivery/user"
	"okeyonline/internal/domain/presence"
	roomDomain "okeyonline/internal/domain/room"
	userDomain "okeyonline/internal/domain/user"
	"okeyonline/internal/lock"
	ownMiddleware "okeyonline/internal/middleware"
	"okeyonline/internal/realtime"
	repo "okeyonline/internal/repository"
	"okeyonline/internal/token"
	authUC "okeyonline/internal/usecase/auth"
	roomUC "okeyonline/internal/usecase/room"
	userUC "okeyonline/internal/usecase/user"
)

const initTimeout = 15 * time.Second

func main() {
	fx.New(
		fx.Provide(
			NewConfig,
			NewLogger,
			NewStorages,
			NewPresence,
			NewTokenService,
			NewLockManager,
			realtime.NewHub,
			NewAuthUsecase,
			NewUserUsecase,
			NewRoomUsecase,
			NewGateway,
			NewRouter,
		),
		fx.WithLogger(func(log *zap.SugaredLogger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Desugar()}
		}),
		fx.Invoke(StartServer),
	).Run()
}

func NewConfig() (*bootstrap.Config, error) {
	return bootstrap.Setup(".env")
}

func NewLogger(cfg *bootstrap.Config) (*zap.SugaredLogger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.IsProduction() {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger.Sugar(), nil
}

type Storages struct {
	fx.Out

	Users userDomain.Repository
	Rooms roomDomain.Repository
}

func NewStorages(lc fx.Lifecycle, cfg *bootstrap.Config, log *zap.SugaredLogger) (Storages, error) {
	if cfg.StorageDriver == bootstrap.DriverMemory {
		log.Warn("using in-memory storage, data is lost on restart")
		return Storages{Users: repo.NewMapUserStorage(), Rooms: repo.NewMapRoomStorage()}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	mongoAdapter := adapters.NewAdapterMongo(cfg, log)
	if err := mongoAdapter.Init(ctx); err != nil {
		return Storages{}, err
	}
	lc.Append(fx.Hook{OnStop: mongoAdapter.Close})

	users := repo.NewMongoUserStorage(mongoAdapter.Database, log)
	rooms := repo.NewMongoRoomStorage(mongoAdapter.Database, log)
	if err := users.EnsureIndexes(ctx); err != nil {
		return Storages{}, err
	}
	if err := rooms.EnsureIndexes(ctx); err != nil {
		return Storages{}, err
	}
	return Storages{Users: users, Rooms: rooms}, nil
}

func NewPresence(lc fx.Lifecycle, cfg *bootstrap.Config, log *zap.SugaredLogger) (presence.Store, error) {
	if cfg.PresenceDriver == bootstrap.DriverMemory {
		return repo.NewMapPresenceStorage(), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	redisAdapter := adapters.NewAdapterRedis(cfg, log)
	if err := redisAdapter.Init(ctx); err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: redisAdapter.Close})
	return repo.NewRedisPresenceStorage(redisAdapter.GetClient(), log), nil
}

func NewTokenService(cfg *bootstrap.Config) *token.Service {
	return token.NewService(cfg.JwtSecret, cfg.JwtExpiry)
}

func NewLockManager(log *zap.SugaredLogger) *lock.RoomLockManager {
	return lock.NewRoomLockManager(log, lock.DefaultTimeout)
}

func NewAuthUsecase(users userDomain.Repository, tokens *token.Service, cfg *bootstrap.Config, log *zap.SugaredLogger) *authUC.AuthUsecaseHandler {
	return authUC.NewAuthUsecaseHandler(users, tokens, cfg.BcryptCost, log)
}

func NewUserUsecase(users userDomain.Repository, store presence.Store, log *zap.SugaredLogger) *userUC.UserUsecaseHandler {
	return userUC.NewUserUsecaseHandler(users, store, log)
}

func NewRoomUsecase(
	rooms roomDomain.Repository,
	locks *lock.RoomLockManager,
	hub *realtime.Hub,
	users *userUC.UserUsecaseHandler,
	cfg *bootstrap.Config,
	log *zap.SugaredLogger,
) *roomUC.RoomUseCase {
	return roomUC.NewRoomUseCase(rooms, locks, hub, users, log, roomUC.Config{
		PageLimit:  cfg.PageLimitRooms,
		BcryptCost: cfg.BcryptCost,
	})
}

func NewGateway(
	hub *realtime.Hub,
	tokens *token.Service,
	rooms *roomUC.RoomUseCase,
	users *userUC.UserUsecaseHandler,
	store presence.Store,
	log *zap.SugaredLogger,
) *realtime.Gateway {
	return realtime.NewGateway(hub, tokens, rooms, users, store, log)
}

func NewRouter(
	cfg *bootstrap.Config,
	log *zap.SugaredLogger,
	tokens *token.Service,
	auth *authUC.AuthUsecaseHandler,
	users *userUC.UserUsecaseHandler,
	rooms *roomUC.RoomUseCase,
	gateway *realtime.Gateway,
) http.Handler {
	return delivery.NewRouter(cfg, delivery.Handlers{
		Auth:    authDelivery.NewAuthHandler(auth, log),
		User:    userDelivery.NewUserHandler(users, log),
		Room:    roomDelivery.NewRoomHandler(rooms, log),
		Socket:  gateway.ServeWS,
		Tokens:  tokens,
		Limiter: ownMiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
	})
}

func StartServer(lc fx.Lifecycle, cfg *bootstrap.Config, handler http.Handler, log *zap.SugaredLogger) {
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Infof("Server is running on port %s (%s)", cfg.ServerPort, cfg.AppEnv)
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Errorf("server stopped: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Received shutdown signal")
			_ = log.Sync()
			return srv.Shutdown(ctx)
		},
	})
}
