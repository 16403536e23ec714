package main

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	redislib "github.com/redis/go-redis/v9"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	apiHandler "github.com/jborjar/paquetes/api/handler"
	"github.com/jborjar/paquetes/credentials"
	"github.com/jborjar/paquetes/internal/config"
	"github.com/jborjar/paquetes/internal/infrastructure/monitor"
	pgInfra "github.com/jborjar/paquetes/internal/infrastructure/postgres"
	redisInfra "github.com/jborjar/paquetes/internal/infrastructure/redis"
	"github.com/jborjar/paquetes/internal/middleware"
	"github.com/jborjar/paquetes/internal/router"
	"github.com/jborjar/paquetes/internal/services"
	"github.com/jborjar/paquetes/internal/services/lifecycle"
	"github.com/jborjar/paquetes/pkg/httpcontext"
	"github.com/jborjar/paquetes/pkg/logger"
	"github.com/jborjar/paquetes/repository"
	boltStore "github.com/jborjar/paquetes/repository/bolt"
	memoryStore "github.com/jborjar/paquetes/repository/memory"
	pgStore "github.com/jborjar/paquetes/repository/postgres"
	redisStore "github.com/jborjar/paquetes/repository/redis"
	loginUC "github.com/jborjar/paquetes/usecase/login"
	sessionUC "github.com/jborjar/paquetes/usecase/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.Logger.Level,
		Encoding: cfg.Logger.Encoding,
	})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer zapLogger.Sync()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := lifecycle.New(cfg.Context.ShutdownTimeout, zapLogger)
	manager.Listen(cancel)

	store, validator, deps, err := buildStore(appCtx, cfg, manager, zapLogger)
	if err != nil {
		zapLogger.Fatal("store initialization failed", zap.Error(err))
	}

	if err := store.EnsureSchema(appCtx); err != nil {
		zapLogger.Fatal("schema initialization failed", zap.Error(err))
	}

	sessions := sessionUC.New(store, cfg.Auth.SessionTTL, zapLogger)
	login := loginUC.New(validator, sessions, zapLogger)

	mon := monitor.New(sessions, deps.pool, deps.redis, cfg.Auth.MonitorInterval, zapLogger)
	mon.Start()
	manager.Register("monitor", func(ctx context.Context) error {
		mon.Stop()
		return nil
	})

	cleaner := services.NewCleaner(sessions, cfg.Auth.CleanupSchedule, zapLogger)
	cleaner.Start()
	manager.Register("session_cleaner", func(ctx context.Context) error {
		cleaner.Stop(ctx)
		return nil
	})

	ctxAdapter := httpcontext.NewAdapter(cfg.Context.RequestTimeout)

	handlers := router.Handlers{
		Auth:     apiHandler.NewAuthHandler(login, ctxAdapter, zapLogger, cfg.Auth.CookieName),
		Sessions: apiHandler.NewSessionsHandler(sessions, ctxAdapter, zapLogger),
		Health:   apiHandler.NewHealthHandler(mon, ctxAdapter, zapLogger),
	}

	extractor := middleware.NewBearerExtractor(cfg.Auth.CookieName)
	mw := router.Middleware{
		Authenticated: middleware.RequireSession(sessions, extractor, nil, zapLogger),
		Peek:          middleware.RequireSessionPeek(sessions, extractor, nil, zapLogger),
		SessionsRead:  middleware.RequireSession(sessions, extractor, []string{"sessions:read"}, zapLogger),
		SessionsAdmin: middleware.RequireSession(sessions, extractor, []string{"sessions:admin"}, zapLogger),
	}
	r := router.New(handlers, mw)

	server := &fasthttp.Server{
		Handler:      r.Handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		Name:         cfg.AppName,
	}

	go func() {
		zapLogger.Info("server started",
			zap.String("address", cfg.Address()),
			zap.String("backend", cfg.Auth.StoreBackend))
		if err := server.ListenAndServe(cfg.Address()); err != nil {
			zapLogger.Fatal("server crashed", zap.Error(err))
		}
	}()

	manager.Register("http_server", func(ctx context.Context) error {
		return server.Shutdown()
	})

	<-appCtx.Done()

	if err := manager.Shutdown(context.Background()); err != nil {
		zapLogger.Error("graceful shutdown error", zap.Error(err))
	}
}

// storeDeps carries the backing connections so the monitor can probe them.
// Both fields stay nil for backends that do not need them.
type storeDeps struct {
	pool  *pgxpool.Pool
	redis *redislib.Client
}

// buildStore assembles the configured session store backend and the
// credential validator that goes with it. Only the postgres backend
// carries user records; the others fall back to a static credential table
// from AUTH_STATIC_USERS when one is configured.
func buildStore(
	ctx context.Context,
	cfg *config.Config,
	manager *lifecycle.Manager,
	zapLogger *zap.Logger,
) (repository.SessionStore, credentials.Validator, storeDeps, error) {
	var (
		deps  storeDeps
		store repository.SessionStore
	)

	switch cfg.Auth.StoreBackend {
	case config.BackendMemory:
		store = memoryStore.New(cfg.Auth.MaxSessions)

	case config.BackendBolt:
		bolt, err := boltStore.Open(cfg.Bolt.Path, cfg.Auth.MaxSessions)
		if err != nil {
			return nil, nil, deps, err
		}
		manager.Register("bolt", func(ctx context.Context) error {
			return bolt.Close()
		})
		store = bolt

	case config.BackendPostgres:
		if err := pgInfra.RunMigrations(cfg, zapLogger); err != nil {
			return nil, nil, deps, err
		}
		pool, err := pgInfra.NewPool(ctx, cfg.Database, zapLogger)
		if err != nil {
			return nil, nil, deps, err
		}
		manager.Register("postgres", func(ctx context.Context) error {
			pool.Close()
			return nil
		})
		deps.pool = pool
		return pgStore.New(pool, cfg.Auth.MaxSessions), credentials.Postgres(pool), deps, nil

	case config.BackendRedis:
		client, err := redisInfra.NewClient(cfg.Redis)
		if err != nil {
			return nil, nil, deps, err
		}
		manager.Register("redis", func(ctx context.Context) error {
			return client.Close()
		})
		deps.redis = client
		store = redisStore.New(client, cfg.Auth.MaxSessions)

	default:
		return nil, nil, deps, fmt.Errorf("unknown store backend %q", cfg.Auth.StoreBackend)
	}

	var validator credentials.Validator
	if cfg.Auth.StaticUsers != "" {
		users, err := credentials.ParseStatic(cfg.Auth.StaticUsers)
		if err != nil {
			return nil, nil, deps, err
		}
		validator = credentials.Static(users)
	}
	return store, validator, deps, nil
}
