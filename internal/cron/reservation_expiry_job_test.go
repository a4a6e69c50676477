package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/flashticket-backend/pkg/db/models"
	"github.com/angelmondragon/flashticket-backend/pkg/enums"
	"github.com/angelmondragon/flashticket-backend/pkg/logger"
)

type fakeReclaimer struct {
	candidates []models.Reservation
	listErr    error
	failures   map[uuid.UUID]error
	settled    map[uuid.UUID]bool
	limit      int
	attempts   []uuid.UUID
}

func (f *fakeReclaimer) ListExpiryCandidates(_ context.Context, limit int) ([]models.Reservation, error) {
	f.limit = limit
	return f.candidates, f.listErr
}

func (f *fakeReclaimer) Reclaim(_ context.Context, reservation models.Reservation) (bool, error) {
	f.attempts = append(f.attempts, reservation.ID)
	if err, ok := f.failures[reservation.ID]; ok {
		return false, err
	}
	if f.settled[reservation.ID] {
		return false, nil
	}
	return true, nil
}

type countingRecorder struct {
	total int
}

func (c *countingRecorder) AddReclaimed(n int) { c.total += n }

func pendingReservation() models.Reservation {
	return models.Reservation{
		ID:       uuid.New(),
		TicketID: uuid.New(),
		UserID:   uuid.New(),
		Status:   enums.ReservationStatusPending,
	}
}

func newExpiryJob(t *testing.T, reclaimer *fakeReclaimer, recorder *countingRecorder, batch int) Job {
	t.Helper()
	job, err := NewReservationExpiryJob(ReservationExpiryJobParams{
		Logger:    logger.Nop(),
		Reclaimer: reclaimer,
		Metrics:   recorder,
		BatchSize: batch,
	})
	if err != nil {
		t.Fatalf("NewReservationExpiryJob: %v", err)
	}
	return job
}

func TestReservationExpiryJobReclaimsBatch(t *testing.T) {
	first, second, third := pendingReservation(), pendingReservation(), pendingReservation()
	reclaimer := &fakeReclaimer{
		candidates: []models.Reservation{first, second, third},
		settled:    map[uuid.UUID]bool{second.ID: true},
	}
	recorder := &countingRecorder{}
	job := newExpiryJob(t, reclaimer, recorder, 50)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if reclaimer.limit != 50 {
		t.Fatalf("expected batch limit 50, got %d", reclaimer.limit)
	}
	if len(reclaimer.attempts) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(reclaimer.attempts))
	}
	if recorder.total != 2 {
		t.Fatalf("expected 2 reclaimed, got %d", recorder.total)
	}
	if job.Name() != ReservationExpiryJobName {
		t.Fatalf("unexpected job name %q", job.Name())
	}
}

func TestReservationExpiryJobContinuesPastItemFailures(t *testing.T) {
	first, second, third := pendingReservation(), pendingReservation(), pendingReservation()
	reclaimer := &fakeReclaimer{
		candidates: []models.Reservation{first, second, third},
		failures: map[uuid.UUID]error{
			first.ID: errors.New("db down"),
			third.ID: errors.New("lock busy"),
		},
	}
	recorder := &countingRecorder{}
	job := newExpiryJob(t, reclaimer, recorder, 0)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected combined error")
	}
	if got := len(multierr.Errors(err)); got != 2 {
		t.Fatalf("expected 2 combined errors, got %d", got)
	}
	if len(reclaimer.attempts) != 3 {
		t.Fatalf("expected every item to be attempted, got %d", len(reclaimer.attempts))
	}
	if recorder.total != 1 {
		t.Fatalf("expected 1 reclaimed, got %d", recorder.total)
	}
	if reclaimer.limit != defaultExpiryBatch {
		t.Fatalf("expected default batch %d, got %d", defaultExpiryBatch, reclaimer.limit)
	}
}

func TestReservationExpiryJobListFailure(t *testing.T) {
	reclaimer := &fakeReclaimer{listErr: errors.New("query failed")}
	job := newExpiryJob(t, reclaimer, &countingRecorder{}, 10)
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected list error")
	}
}

func TestNewReservationExpiryJobValidates(t *testing.T) {
	if _, err := NewReservationExpiryJob(ReservationExpiryJobParams{Logger: logger.Nop()}); err == nil {
		t.Fatal("expected missing reclaimer error")
	}
	if _, err := NewReservationExpiryJob(ReservationExpiryJobParams{Reclaimer: &fakeReclaimer{}}); err == nil {
		t.Fatal("expected missing logger error")
	}
}
