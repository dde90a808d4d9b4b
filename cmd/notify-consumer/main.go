package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"github.com/parcelpoint/parcelpoint-sync/internal/notifications"
	"github.com/parcelpoint/parcelpoint-sync/pkg/config"
	pkgerrors "github.com/parcelpoint/parcelpoint-sync/pkg/errors"
	"github.com/parcelpoint/parcelpoint-sync/pkg/logger"
	"github.com/parcelpoint/parcelpoint-sync/pkg/pubsub"
	"github.com/parcelpoint/parcelpoint-sync/pkg/remote"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "notify-consumer"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "notify-consumer",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	remoteClient, err := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.Token,
		remote.WithHTTPClient(&http.Client{Timeout: cfg.Remote.Timeout}))
	if err != nil {
		logg.Error(ctx, "failed to build remote store client", err)
		os.Exit(1)
	}

	store, err := notifications.NewStore(notifications.StoreParams{
		Remote:          remoteClient,
		Logger:          logg,
		TTL:             cfg.Cache.TTL,
		CacheMaxEntries: cfg.Cache.MaxEntries,
		Retry: pkgerrors.RetryOptions{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			Exponential: cfg.Retry.Exponential,
		},
	})
	if err != nil {
		logg.Error(ctx, "failed to build notification store", err)
		os.Exit(1)
	}

	psClient, err := pubsub.NewClient(ctx, cfg.PubSub)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := psClient.Close(); err != nil {
			logg.Error(ctx, "error closing pubsub", err)
		}
	}()

	consumer, err := notifications.NewConsumer(store, psClient.NotificationSubscription(), logg)
	if err != nil {
		logg.Error(ctx, "failed to build notification consumer", err)
		os.Exit(1)
	}

	logg.Info(ctx, "starting notification consumer")
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "notification consumer stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "notification consumer shutting down gracefully")
}
