package cron

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/angelmondragon/flashticket-backend/pkg/db/models"
	"github.com/angelmondragon/flashticket-backend/pkg/logger"
)

const (
	ReservationExpiryJobName = "reservation_expiry"
	defaultExpiryBatch       = 500
)

type expiryReclaimer interface {
	ListExpiryCandidates(ctx context.Context, limit int) ([]models.Reservation, error)
	Reclaim(ctx context.Context, reservation models.Reservation) (bool, error)
}

type reclaimRecorder interface {
	AddReclaimed(n int)
}

// ReservationExpiryJobParams configure the reclaimer.
type ReservationExpiryJobParams struct {
	Logger    *logger.Logger
	Reclaimer expiryReclaimer
	Metrics   reclaimRecorder
	BatchSize int
}

// NewReservationExpiryJob builds the job that returns stock held by abandoned
// PENDING reservations.
func NewReservationExpiryJob(params ReservationExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reclaimer == nil {
		return nil, fmt.Errorf("reservation reclaimer required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultExpiryBatch
	}
	return &reservationExpiryJob{
		logg:      params.Logger,
		reclaimer: params.Reclaimer,
		metrics:   params.Metrics,
		batch:     batch,
	}, nil
}

type reservationExpiryJob struct {
	logg      *logger.Logger
	reclaimer expiryReclaimer
	metrics   reclaimRecorder
	batch     int
}

func (j *reservationExpiryJob) Name() string { return ReservationExpiryJobName }

// Run reclaims one batch. An item that fails is logged and left for the next
// cycle; the remaining items still run.
func (j *reservationExpiryJob) Run(ctx context.Context) error {
	candidates, err := j.reclaimer.ListExpiryCandidates(ctx, j.batch)
	if err != nil {
		return fmt.Errorf("list expiry candidates: %w", err)
	}

	var (
		errs      error
		reclaimed int
		skipped   int
	)
	for _, reservation := range candidates {
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			break
		}
		ok, err := j.reclaimer.Reclaim(ctx, reservation)
		if err != nil {
			itemCtx := j.logg.WithReservationID(ctx, reservation.ID.String())
			j.logg.Error(itemCtx, "reservation reclaim failed", err)
			errs = multierr.Append(errs, fmt.Errorf("reclaim %s: %w", reservation.ID, err))
			continue
		}
		if ok {
			reclaimed++
		} else {
			skipped++
		}
	}
	if j.metrics != nil && reclaimed > 0 {
		j.metrics.AddReclaimed(reclaimed)
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": len(candidates),
		"reclaimed":  reclaimed,
		"skipped":    skipped,
		"failed":     len(multierr.Errors(errs)),
	})
	j.logg.Info(logCtx, "reservation expiry sweep complete")
	return errs
}
