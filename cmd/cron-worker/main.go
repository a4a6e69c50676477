package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/flashticket-backend/internal/bootstrap"
	"github.com/angelmondragon/flashticket-backend/internal/cron"
	"github.com/angelmondragon/flashticket-backend/internal/lock"
	"github.com/angelmondragon/flashticket-backend/pkg/config"
	"github.com/angelmondragon/flashticket-backend/pkg/db"
	"github.com/angelmondragon/flashticket-backend/pkg/logger"
	"github.com/angelmondragon/flashticket-backend/pkg/metrics"
	"github.com/angelmondragon/flashticket-backend/pkg/migrate"
	"github.com/angelmondragon/flashticket-backend/pkg/outbox"
	"github.com/angelmondragon/flashticket-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stack, err := bootstrap.NewReservations(ctx, cfg, logg, dbClient, redisClient, prometheus.DefaultRegisterer)
	if err != nil {
		logg.Error(ctx, "failed to create reservation service", err)
		os.Exit(1)
	}
	defer func() {
		if err := stack.Close(); err != nil {
			logg.Error(context.Background(), "error closing event log", err)
		}
	}()

	registry := cron.NewRegistry()
	expiryJob, err := cron.NewReservationExpiryJob(cron.ReservationExpiryJobParams{
		Logger:    logg,
		Reclaimer: stack.Service,
		Metrics:   stack.Metrics,
		BatchSize: cfg.Reclaimer.BatchSize,
	})
	if err != nil {
		logg.Error(ctx, "failed to create reservation expiry job", err)
		os.Exit(1)
	}
	if err := registry.Register(expiryJob); err != nil {
		logg.Error(ctx, "failed to register reservation expiry job", err)
		os.Exit(1)
	}

	if cfg.Events.UsesOutbox() {
		retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
			Logger:      logg,
			DB:          dbClient,
			Repository:  outbox.NewRepository(dbClient.DB()),
			MaxAttempts: cfg.Outbox.MaxAttempts,
		})
		if err != nil {
			logg.Error(ctx, "failed to create outbox retention job", err)
			os.Exit(1)
		}
		if err := registry.Register(retentionJob); err != nil {
			logg.Error(ctx, "failed to register outbox retention job", err)
			os.Exit(1)
		}
	}

	leader, err := lock.NewMutex(redisClient.Cmdable(), redisClient.CronLockKey(cfg.App.Env), cfg.Reclaimer.LockTTL)
	if err != nil {
		logg.Error(ctx, "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     leader,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Reclaimer.Interval,
	})
	if err != nil {
		logg.Error(ctx, "failed to create cron service", err)
		os.Exit(1)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"interval":    cfg.Reclaimer.Interval.String(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}
