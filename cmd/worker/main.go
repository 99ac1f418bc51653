package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"clockpoint/internal/cache"
	"clockpoint/internal/config"
	"clockpoint/internal/log"
	"clockpoint/internal/mail"
	"clockpoint/internal/metrics"
	"clockpoint/internal/worker/queue"
	"clockpoint/internal/worker/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment).With().Str("component", "mail-worker").Logger()
	metrics.MustRegister(cfg.AppName + "-worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer client.Close()

	sender := mail.NewSMTPSender(cfg.SMTP)
	if err := sender.Connect(); err != nil {
		logger.Warn().Err(err).Msg("smtp connect failed, will redial on first message")
	}
	defer sender.Close()

	processor := tasks.NewProcessor(mail.NewDeliverer(sender, cfg.SMTP, logger), logger)
	consumer := queue.NewConsumer(
		client,
		cfg.MailQueue.Stream,
		cfg.MailQueue.Group,
		cfg.MailQueue.Consumer,
		cfg.MailQueue.ClaimInterval,
		logger,
		processor,
	)

	done := make(chan error, 1)
	go func() { done <- consumer.Start(ctx) }()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			logger.Warn().Msg("consumer did not stop in time")
		}
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Fatal().Err(err).Msg("consumer stopped unexpectedly")
		}
	}
}
