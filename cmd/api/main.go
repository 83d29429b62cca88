package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/token-service/internal/api/http"
	"github.com/spec-kit/token-service/internal/api/http/handlers"
	"github.com/spec-kit/token-service/internal/auth"
	"github.com/spec-kit/token-service/internal/config"
	"github.com/spec-kit/token-service/internal/events"
	"github.com/spec-kit/token-service/internal/observability"
	"github.com/spec-kit/token-service/internal/persistence"
	"github.com/spec-kit/token-service/internal/repository"
	"github.com/spec-kit/token-service/internal/service"
	"github.com/spec-kit/token-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.Pool, cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	userRepo := repository.NewUserRepository(pg.Pool)
	credentialRepo := repository.NewCredentialRepository(pg.Pool)
	tokenRepo := repository.NewTokenRepository(pg.Pool)
	revocationCache := repository.NewRevocationCache(redis.Client)
	hasher := auth.NewBcryptHasher(cfg.Auth.BcryptCost)

	var encoder service.TokenEncoder
	if cfg.Token.CanSign() {
		signer, err := auth.NewTokenEncoder([]byte(cfg.Token.PrivateKeyPEM), cfg.Token.AccessTTL, cfg.Token.RefreshTTL)
		if err != nil {
			logger.Fatal("failed to load signing key", zap.Error(err))
		}
		encoder = signer
	} else {
		logger.Warn("no signing key configured; token issuance disabled")
	}
	decoder, err := auth.NewTokenDecoder([]byte(cfg.Token.PublicKeyPEM))
	if err != nil {
		logger.Fatal("failed to load verification key", zap.Error(err))
	}

	queue := events.NewQueue(cfg.Events.QueueSize, cfg.Events.RetryInterval(), logger.Named("events"))

	tokenManager := service.NewAuthTokenManager(cfg.Token, service.TokenManagerDependencies{
		UserRepo:        userRepo,
		CredentialRepo:  credentialRepo,
		TokenRepo:       tokenRepo,
		RevocationCache: revocationCache,
		Encoder:         encoder,
		Hasher:          hasher,
		Logger:          logger.Named("tokens"),
	})
	userService := service.NewUserService(service.UserDependencies{
		UserRepo:       userRepo,
		CredentialRepo: credentialRepo,
		Hasher:         hasher,
		Dispatcher:     queue,
		Logger:         logger.Named("users"),
	})

	listener := service.NewRevocationListener(queue, tokenManager)
	workerDone := worker.StartRevocationWorker(ctx, queue, listener, logger.Named("worker"))

	if _, err := userService.EnsureAdmin(ctx, cfg.Auth.BootstrapAdminUsername, cfg.Auth.BootstrapAdminPassword); err != nil {
		logger.Fatal("failed to bootstrap admin", zap.Error(err))
	}

	metrics := observability.NewMetrics()
	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis, metrics),
		Users:          handlers.NewUsersHandler(userService),
		Tokens:         handlers.NewTokensHandler(tokenManager),
		AuthMiddleware: auth.NewAuthMiddleware(decoder, tokenManager),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
	cancel()
	<-workerDone
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
