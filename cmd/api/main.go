package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/flashticket-backend/api"
	"github.com/angelmondragon/flashticket-backend/api/controllers"
	"github.com/angelmondragon/flashticket-backend/api/routes"
	"github.com/angelmondragon/flashticket-backend/internal/bootstrap"
	"github.com/angelmondragon/flashticket-backend/internal/waitroom"
	"github.com/angelmondragon/flashticket-backend/pkg/config"
	"github.com/angelmondragon/flashticket-backend/pkg/db"
	"github.com/angelmondragon/flashticket-backend/pkg/logger"
	"github.com/angelmondragon/flashticket-backend/pkg/migrate"
	"github.com/angelmondragon/flashticket-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	queueStore, err := waitroom.NewStore(redisClient)
	if err != nil {
		logg.Error(ctx, "failed to create queue store", err)
		os.Exit(1)
	}
	queue, err := waitroom.NewService(waitroom.ServiceParams{
		Store:         queueStore,
		Logger:        logg,
		AdmissionRate: cfg.Queue.AdmissionRatePerSecond,
		MaxAdmitBatch: cfg.Queue.MaxAdmitBatch,
	})
	if err != nil {
		logg.Error(ctx, "failed to create waitroom service", err)
		os.Exit(1)
	}

	probes := map[string]controllers.Pinger{
		"db":    dbClient,
		"redis": redisClient,
	}
	if stack.Log != nil {
		probes["events"] = stack.Log
	}

	handler := routes.NewRouter(cfg, logg, routes.Deps{
		Reservations: stack.Service,
		Waitroom:     queue,
		Probes:       probes,
		Gatherer:     prometheus.DefaultGatherer,
	})

	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"port":     cfg.App.Port,
		"instance": cfg.Service.InstanceID,
		"delivery": cfg.Events.Delivery,
	})
	logg.Info(ctx, "starting api server")

	if err := api.NewServer(cfg, handler, logg).Run(ctx); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server stopped")
}
