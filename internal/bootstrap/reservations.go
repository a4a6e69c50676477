// Package bootstrap assembles the reservation stack shared by cmd/api and
// cmd/cron-worker.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/flashticket-backend/internal/events"
	"github.com/angelmondragon/flashticket-backend/internal/lock"
	"github.com/angelmondragon/flashticket-backend/internal/reservations"
	"github.com/angelmondragon/flashticket-backend/internal/stock"
	"github.com/angelmondragon/flashticket-backend/pkg/config"
	"github.com/angelmondragon/flashticket-backend/pkg/db"
	"github.com/angelmondragon/flashticket-backend/pkg/logger"
	"github.com/angelmondragon/flashticket-backend/pkg/metrics"
	"github.com/angelmondragon/flashticket-backend/pkg/outbox"
	ftredis "github.com/angelmondragon/flashticket-backend/pkg/redis"
)

// Reservations is the wired orchestrator plus the resources it owns.
type Reservations struct {
	Service reservations.Service
	Metrics *metrics.ReservationMetrics
	// Log is nil in outbox delivery mode.
	Log events.Log
}

func NewReservations(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *ftredis.Client, reg prometheus.Registerer) (*Reservations, error) {
	m := metrics.NewReservationMetrics(reg)

	counter, err := stock.NewStore(redisClient, cfg.Reservation.CounterTTL)
	if err != nil {
		return nil, fmt.Errorf("stock store: %w", err)
	}
	locker, err := lock.NewExecutor(lock.ExecutorParams{
		Redis:         redisClient.Cmdable(),
		Logger:        logg,
		RetryInterval: cfg.Reservation.LockRetryInterval,
		Observer:      m,
	})
	if err != nil {
		return nil, fmt.Errorf("lock executor: %w", err)
	}

	out := &Reservations{Metrics: m}
	var publisher events.Publisher
	if cfg.Events.UsesOutbox() {
		publisher, err = events.NewOutboxPublisher(
			outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
			cfg.Events.Topic,
			m,
		)
		if err != nil {
			return nil, err
		}
	} else {
		log, err := events.OpenLog(ctx, cfg, logg)
		if err != nil {
			return nil, fmt.Errorf("event log: %w", err)
		}
		direct, err := events.NewDirectPublisher(events.DirectParams{
			Log:      log,
			Logger:   logg,
			Topic:    cfg.Events.Topic,
			Timeout:  cfg.Events.PublishTimeout,
			Recorder: m,
		})
		if err != nil {
			_ = log.Close()
			return nil, err
		}
		out.Log = log
		publisher = direct
	}

	svc, err := reservations.NewService(reservations.ServiceParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: reservations.NewRepository(dbClient.DB()),
		Counter:    counter,
		Locker:     locker,
		Keys:       redisClient,
		Events:     publisher,
		Metrics:    m,
		TTL:        cfg.Reservation.TTL,
		LockWait:   cfg.Reservation.LockWait,
		LockLease:  cfg.Reservation.LockLease,
	})
	if err != nil {
		out.Close()
		return nil, err
	}
	out.Service = svc
	return out, nil
}

// Close releases the event log, if one was opened.
func (r *Reservations) Close() error {
	if r == nil || r.Log == nil {
		return nil
	}
	return r.Log.Close()
}
