package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/parcelpoint/parcelpoint-sync/internal/cron"
	"github.com/parcelpoint/parcelpoint-sync/internal/lifecycle"
	"github.com/parcelpoint/parcelpoint-sync/pkg/config"
	pkgerrors "github.com/parcelpoint/parcelpoint-sync/pkg/errors"
	"github.com/parcelpoint/parcelpoint-sync/pkg/logger"
	"github.com/parcelpoint/parcelpoint-sync/pkg/metrics"
	"github.com/parcelpoint/parcelpoint-sync/pkg/redis"
	"github.com/parcelpoint/parcelpoint-sync/pkg/remote"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "sweep-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "sweep-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
	})

	remoteClient, err := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.Token,
		remote.WithHTTPClient(&http.Client{Timeout: cfg.Remote.Timeout}))
	if err != nil {
		logg.Error(context.Background(), "failed to build remote store client", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	retryOpts := pkgerrors.RetryOptions{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		Exponential: cfg.Retry.Exponential,
	}
	transitioner, err := lifecycle.NewTransitioner(lifecycle.TransitionerParams{
		Remote: remoteClient,
		Logger: logg,
		Retry:  retryOpts,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build transitioner", err)
		os.Exit(1)
	}

	sweepMetrics := metrics.NewSweepMetrics(prometheus.DefaultRegisterer)
	sweepJob, err := cron.NewSweepJob(cron.SweepJobParams{
		Logger:       logg,
		Transitioner: transitioner,
		Metrics:      sweepMetrics,
		Timeout:      cfg.Sweep.ProcessingTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build sweep job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockScope(cfg.App.Env)), cfg.Sweep.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create sweep lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(sweepJob),
		Lock:     lock,
		Metrics:  sweepMetrics,
		Interval: cfg.Sweep.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sweep service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithField(ctx, "env", cfg.App.Env)

	opsServer := newOpsServer(cfg.Sweep.OpsAddr, redisClient)
	go func() {
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "ops server stopped unexpectedly", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := opsServer.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "ops server shutdown failed", err)
		}
	}()

	logg.Info(ctx, "starting sweep worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "sweep worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "sweep worker shutting down gracefully")
}

func newOpsServer(addr string, redisClient *redis.Client) *http.Server {
	router := chi.NewRouter()
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := redisClient.Ping(r.Context()); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())
	return &http.Server{Addr: addr, Handler: router}
}

func lockScope(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf("sweep-worker:%s", env)
}
