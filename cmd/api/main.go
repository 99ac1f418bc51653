package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"clockpoint/internal/authz"
	"clockpoint/internal/cache"
	"clockpoint/internal/config"
	"clockpoint/internal/database"
	"clockpoint/internal/events"
	"clockpoint/internal/handlers"
	"clockpoint/internal/jobs"
	"clockpoint/internal/log"
	"clockpoint/internal/mail"
	"clockpoint/internal/metrics"
	"clockpoint/internal/middleware"
	"clockpoint/internal/notify"
	"clockpoint/internal/repository"
	"clockpoint/internal/security"
	"clockpoint/internal/server"
	"clockpoint/internal/service"
	"clockpoint/internal/storage"
	"clockpoint/internal/tokens"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment)
	metrics.MustRegister(cfg.AppName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	if err := database.EnsureSchema(ctx, dbPool); err != nil {
		logger.Fatal().Err(err).Msg("failed to apply schema")
	}
	store := service.NewPostgresStore(repository.NewStore(dbPool))

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}

	codec, err := security.NewTokenCodec(cfg.Security.SecretKey, cfg.Security.Algorithm)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid token settings")
	}
	hasher := security.NewPasswordHasher(security.Argon2Params{
		Time:    cfg.Security.ArgonTime,
		Memory:  cfg.Security.ArgonMemoryKiB,
		Threads: cfg.Security.ArgonThreads,
		KeyLen:  security.DefaultParams.KeyLen,
	})
	tokenStore := tokens.NewStore(redisClient, codec, cfg.Redis.OpTimeout)
	evaluator := authz.NewEvaluator(service.NewAuthzSource(store))

	hub := notify.NewHub(logger)
	go hub.Run(ctx)
	go func() {
		if err := notify.Bridge(ctx, redisClient, hub, logger); err != nil {
			logger.Error().Err(err).Msg("notification bridge stopped")
		}
	}()

	effects := service.Effects{
		Mailer:   mail.NewOutbox(redisClient, cfg.MailQueue.Stream, cfg.Redis.OpTimeout),
		Notifier: notify.NewPublisher(redisClient, cfg.Redis.OpTimeout),
		Log:      logger,
	}
	var publisher *events.Publisher
	if cfg.Events.Enabled {
		publisher = events.NewPublisher(cfg.Events, logger)
		if err := publisher.Connect(); err != nil {
			logger.Warn().Err(err).Msg("event broker unavailable, publishing will retry")
		}
		effects.Events = publisher
	}

	var archive service.ReportArchive
	if cfg.Storage.Enabled {
		objectStore, err := storage.NewObjectStore(cfg.Storage)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to init object store")
		}
		if err := objectStore.EnsureBucket(ctx); err != nil {
			logger.Warn().Err(err).Msg("ensure bucket failed")
		}
		archive = objectStore
	}

	loc := time.UTC
	if cfg.Scheduler.Timezone != "" {
		if loc, err = time.LoadLocation(cfg.Scheduler.Timezone); err != nil {
			logger.Fatal().Err(err).Str("timezone", cfg.Scheduler.Timezone).Msg("unknown timezone")
		}
	}

	services := handlers.Services{
		Auth:     service.NewAuthService(store, tokenStore, codec, hasher, effects, cfg, logger),
		Groups:   service.NewGroupService(store, tokenStore, evaluator, effects, cfg, logger),
		Sessions: service.NewSessionService(store, evaluator, effects, logger),
		Clock:    service.NewClockService(store, tokenStore, codec, evaluator, effects, cfg, logger),
		Reports:  service.NewReportService(store, evaluator, archive, loc, logger),
	}

	ws := notify.NewWSServer(hub, middleware.OriginChecker(cfg.AllowCORSOrigins), logger)
	handlerSet := handlers.NewHandlerSet(logger, cfg, services, store, redisClient, ws)
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet)

	var scheduler *jobs.Scheduler
	if cfg.Scheduler.Enabled {
		scheduler, err = jobs.NewScheduler(services.Sessions, cache.NewClaimer(redisClient, cfg.Redis.OpTimeout), cfg.Scheduler, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("scheduler init failed")
		}
		if err := scheduler.Start(); err != nil {
			logger.Error().Err(err).Msg("scheduler start failed")
		}
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	waitForShutdown(logger, httpServer, scheduler, publisher, dbPool, redisClient)
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, publisher *events.Publisher, db *pgxpool.Pool, redisClient *redis.Client) {
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	if scheduler != nil {
		select {
		case <-scheduler.Stop().Done():
		case <-shutdownCtx.Done():
			logger.Warn().Msg("scheduler did not stop in time")
		}
	}

	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error().Err(err).Msg("event publisher close error")
		}
	}

	db.Close()
	if err := redisClient.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close error")
	}

	logger.Info().Msg("server exited cleanly")
}
