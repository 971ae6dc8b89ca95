package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/contacts/internal/app"
	"github.com/odyssey-erp/contacts/internal/auth"
	"github.com/odyssey-erp/contacts/internal/avatar"
	"github.com/odyssey-erp/contacts/internal/contacts"
	"github.com/odyssey-erp/contacts/internal/observability"
	"github.com/odyssey-erp/contacts/internal/platform/cache"
	"github.com/odyssey-erp/contacts/internal/platform/db"
	"github.com/odyssey-erp/contacts/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if cfg.DBAutoMigrate {
		if err := db.Migrate(ctx, cfg.PGDSN, db.MigrateUp); err != nil {
			logger.Error("migrate database", slog.Any("error", err))
			os.Exit(1)
		}
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr(), Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	codec, err := auth.NewTokenCodec(cfg.TokenConfig())
	if err != nil {
		logger.Error("token codec", slog.Any("error", err))
		os.Exit(1)
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr(), Password: cfg.RedisPassword, DB: cfg.RedisDB}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	deps := auth.ServiceDeps{
		Repo:           auth.NewRepository(pool),
		Hasher:         auth.NewBcryptHasher(cfg.BcryptCost),
		Codec:          codec,
		Cache:          auth.NewRedisSessionCache(redisClient, logger, metrics),
		Mail:           jobClient,
		Logger:         logger,
		BaseURL:        cfg.AppBaseURL,
		AvatarCacheTTL: cfg.AvatarCacheTTL,
	}
	if cfg.GravatarEnabled {
		deps.Avatars = avatar.NewGravatar()
	}
	if cfg.S3Bucket != "" {
		s3Client, err := avatar.NewS3Client(ctx, cfg.S3())
		if err != nil {
			logger.Error("s3 client", slog.Any("error", err))
			os.Exit(1)
		}
		deps.Uploader = avatar.NewS3Uploader(s3Client, cfg.S3())
	}

	authService := auth.NewService(deps)
	resolver := auth.NewResolver(codec, deps.Cache, deps.Repo, cfg.SessionCacheTTL, logger)
	authHandler := auth.NewHandler(logger, authService, resolver)

	contactsService := contacts.NewService(contacts.NewRepository(pool))
	contactsHandler := contacts.NewHandler(logger, contactsService)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		DB:              pool,
		Resolver:        resolver,
		AuthHandler:     authHandler,
		ContactsHandler: contactsHandler,
		JobHandler:      jobs.NewHandler(inspector, logger),
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
