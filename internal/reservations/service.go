package reservations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/flashticket-backend/internal/events"
	"github.com/angelmondragon/flashticket-backend/internal/lock"
	"github.com/angelmondragon/flashticket-backend/internal/stock"
	dbpkg "github.com/angelmondragon/flashticket-backend/pkg/db"
	"github.com/angelmondragon/flashticket-backend/pkg/db/models"
	"github.com/angelmondragon/flashticket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/flashticket-backend/pkg/errors"
	"github.com/angelmondragon/flashticket-backend/pkg/logger"
	"github.com/angelmondragon/flashticket-backend/pkg/metrics"
	"github.com/angelmondragon/flashticket-backend/pkg/pagination"
)

const (
	DefaultTTL = 5 * time.Minute

	opReserve = "reserve"
	opConfirm = "confirm"
	opCancel  = "cancel"
	opReclaim = "reclaim"
)

var errStaleCounter = errors.New("durable stock exhausted")

// Service is the reservation orchestrator.
type Service interface {
	Reserve(ctx context.Context, ticketID, userID uuid.UUID) (*ReservationView, error)
	Confirm(ctx context.Context, id uuid.UUID) (*ReservationView, error)
	Cancel(ctx context.Context, id uuid.UUID) (*ReservationView, error)
	Get(ctx context.Context, id uuid.UUID) (*ReservationView, error)
	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*ReservationList, error)
	GetTicket(ctx context.Context, id uuid.UUID) (*TicketView, error)
	ListExpiryCandidates(ctx context.Context, limit int) ([]models.Reservation, error)
	Reclaim(ctx context.Context, reservation models.Reservation) (bool, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type counterStore interface {
	Peek(ctx context.Context, ticketID string) (int64, bool, error)
	GetOrInit(ctx context.Context, ticketID string, loader stock.Loader) (int64, error)
	DecrementIfPositive(ctx context.Context, ticketID string) (int64, bool, error)
	Increment(ctx context.Context, ticketID string) error
	Invalidate(ctx context.Context, ticketID string) error
}

type lockKeyer interface {
	LockKey(ticketID, userID string) string
}

// ServiceParams wires the orchestrator's collaborators.
type ServiceParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository Repository
	Counter    counterStore
	Locker     *lock.Executor
	Keys       lockKeyer
	Events     events.Publisher
	Metrics    *metrics.ReservationMetrics
	TTL        time.Duration
	LockWait   time.Duration
	LockLease  time.Duration
}

type service struct {
	logg      *logger.Logger
	db        txRunner
	repo      Repository
	counter   counterStore
	locker    *lock.Executor
	keys      lockKeyer
	events    events.Publisher
	metrics   *metrics.ReservationMetrics
	ttl       time.Duration
	lockWait  time.Duration
	lockLease time.Duration
	now       func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("reservation repository required")
	}
	if params.Counter == nil {
		return nil, fmt.Errorf("stock counter required")
	}
	if params.Locker == nil || params.Keys == nil {
		return nil, fmt.Errorf("lock executor and key builder required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	publisher := params.Events
	if publisher == nil {
		publisher = events.Nop{}
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	wait := params.LockWait
	if wait < 0 {
		wait = lock.DefaultWait
	}
	lease := params.LockLease
	if lease <= 0 {
		lease = lock.DefaultLease
	}
	return &service{
		logg:      logg,
		db:        params.DB,
		repo:      params.Repository,
		counter:   params.Counter,
		locker:    params.Locker,
		keys:      params.Keys,
		events:    publisher,
		metrics:   params.Metrics,
		ttl:       ttl,
		lockWait:  wait,
		lockLease: lease,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Reserve(ctx context.Context, ticketID, userID uuid.UUID) (*ReservationView, error) {
	if ticketID == uuid.Nil || userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ticketId and userId are required")
	}
	ctx = s.logg.WithTicketID(s.logg.WithUserID(ctx, userID.String()), ticketID.String())

	reservation, err := s.reserve(ctx, ticketID, userID)
	s.metrics.ObserveOutcome(opReserve, outcome(err))
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithReservationID(ctx, reservation.ID.String()), "reservation created")
	return newReservationView(reservation, s.ttl, s.now()), nil
}

func (s *service) reserve(ctx context.Context, ticketID, userID uuid.UUID) (*models.Reservation, error) {
	ticket, err := s.findTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureNoActive(ctx, ticketID, userID); err != nil {
		return nil, err
	}
	key := s.keys.LockKey(ticketID.String(), userID.String())
	reservation, err := lock.WithLock(ctx, s.locker, key, s.lockWait, s.lockLease, func(ctx context.Context) (*models.Reservation, error) {
		return s.reserveLocked(ctx, ticketID, userID)
	})
	if err != nil {
		return nil, err
	}
	reservation.Ticket = ticket
	return reservation, nil
}

// reserveLocked runs with the (user, ticket) lock held. The counter is
// decremented before the durable write and compensated on every failure.
func (s *service) reserveLocked(ctx context.Context, ticketID, userID uuid.UUID) (*models.Reservation, error) {
	if err := s.ensureNoActive(ctx, ticketID, userID); err != nil {
		return nil, err
	}

	remaining, err := s.decrementCounter(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if remaining < 0 {
		s.restoreCounter(ctx, ticketID, metrics.RollbackNegative)
		return nil, errOutOfStock(ticketID)
	}

	reservation := &models.Reservation{
		ID:        uuid.New(),
		TicketID:  ticketID,
		UserID:    userID,
		Status:    enums.ReservationStatusPending,
		CreatedAt: s.now(),
	}
	evt := events.NewLifecycleEvent(enums.LifecycleEventCreated, reservation.ID, ticketID, userID.String(), "")

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, reservation); err != nil {
			return err
		}
		ok, err := repo.DecrementStock(ctx, ticketID)
		if err != nil {
			return err
		}
		if !ok {
			return errStaleCounter
		}
		return s.events.Stage(ctx, tx, evt)
	})
	switch {
	case err == nil:
	case errors.Is(err, errStaleCounter):
		s.invalidateCounter(ctx, ticketID)
		return nil, errOutOfStock(ticketID)
	case dbpkg.IsUniqueViolation(err, ActiveIndex):
		s.restoreCounter(ctx, ticketID, metrics.RollbackDuplicate)
		return nil, errDuplicate(ticketID, userID)
	default:
		s.restoreCounter(ctx, ticketID, metrics.RollbackPersist)
		s.logg.Error(ctx, "reservation persistence failed", err)
		return nil, errPersistence(err)
	}

	s.events.Publish(ctx, evt)
	return reservation, nil
}

// decrementCounter hydrates a cold counter and decrements it. A key that
// expires between hydration and decrement is hydrated once more.
func (s *service) decrementCounter(ctx context.Context, ticketID uuid.UUID) (int64, error) {
	id := ticketID.String()
	for attempt := 0; attempt < 2; attempt++ {
		if _, err := s.counter.GetOrInit(ctx, id, s.loadStock); err != nil {
			return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "hydrate stock counter")
		}
		remaining, found, err := s.counter.DecrementIfPositive(ctx, id)
		if err != nil {
			return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement stock counter")
		}
		if found {
			return remaining, nil
		}
	}
	return 0, pkgerrors.New(pkgerrors.CodeDependency, "stock counter unavailable")
}

func (s *service) loadStock(ctx context.Context, ticketID string) (int64, error) {
	id, err := uuid.Parse(ticketID)
	if err != nil {
		return 0, err
	}
	return s.repo.TicketStock(ctx, id)
}

func (s *service) restoreCounter(ctx context.Context, ticketID uuid.UUID, reason string) {
	s.metrics.IncCounterRollback(reason)
	if err := s.counter.Increment(ctx, ticketID.String()); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "rollback_reason", reason), "stock counter restore failed", err)
		s.invalidateCounter(ctx, ticketID)
	}
}

func (s *service) invalidateCounter(ctx context.Context, ticketID uuid.UUID) {
	s.metrics.IncCounterRollback(metrics.RollbackStale)
	if err := s.counter.Invalidate(ctx, ticketID.String()); err != nil {
		s.logg.Error(ctx, "stock counter invalidation failed", err)
	}
}

func (s *service) ensureNoActive(ctx context.Context, ticketID, userID uuid.UUID) error {
	existing, err := s.repo.FindActive(ctx, ticketID, userID)
	if err != nil {
		return errPersistence(err)
	}
	if existing != nil {
		return errDuplicate(ticketID, userID)
	}
	return nil
}

func (s *service) findTicket(ctx context.Context, ticketID uuid.UUID) (*models.Ticket, error) {
	ticket, err := s.repo.FindTicket(ctx, ticketID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errTicketNotFound(ticketID)
	}
	if err != nil {
		return nil, errPersistence(err)
	}
	return ticket, nil
}

func (s *service) findReservation(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	reservation, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errReservationNotFound(id)
	}
	if err != nil {
		return nil, errPersistence(err)
	}
	return reservation, nil
}

func (s *service) Confirm(ctx context.Context, id uuid.UUID) (*ReservationView, error) {
	view, err := s.confirm(s.logg.WithReservationID(ctx, id.String()), id)
	s.metrics.ObserveOutcome(opConfirm, outcome(err))
	return view, err
}

func (s *service) confirm(ctx context.Context, id uuid.UUID) (*ReservationView, error) {
	reservation, err := s.findReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if reservation.Status != enums.ReservationStatusPending {
		return nil, errInvalidTransition(id, reservation.Status, enums.ReservationStatusConfirmed, "only pending reservations can be confirmed")
	}
	now := s.now()
	if isExpired(reservation, s.ttl, now) {
		return nil, errInvalidTransition(id, reservation.Status, enums.ReservationStatusConfirmed, "reservation hold has expired")
	}

	evt := events.NewLifecycleEvent(enums.LifecycleEventConfirmed, id, reservation.TicketID, reservation.UserID.String(), "")
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).ConfirmPending(ctx, id, now.Add(-s.ttl), now)
		if err != nil {
			return errPersistence(err)
		}
		if !ok {
			return errInvalidTransition(id, reservation.Status, enums.ReservationStatusConfirmed, "reservation changed state concurrently")
		}
		if err := s.events.Stage(ctx, tx, evt); err != nil {
			return errPersistence(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.events.Publish(ctx, evt)

	reservation.Status = enums.ReservationStatusConfirmed
	reservation.ConfirmedAt = &now
	s.logg.Info(ctx, "reservation confirmed")
	return newReservationView(reservation, s.ttl, now), nil
}

func (s *service) Cancel(ctx context.Context, id uuid.UUID) (*ReservationView, error) {
	view, err := s.cancel(s.logg.WithReservationID(ctx, id.String()), id)
	s.metrics.ObserveOutcome(opCancel, outcome(err))
	return view, err
}

func (s *service) cancel(ctx context.Context, id uuid.UUID) (*ReservationView, error) {
	reservation, err := s.findReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !reservation.Status.CanTransitionTo(enums.ReservationStatusCancelled) {
		return nil, errInvalidTransition(id, reservation.Status, enums.ReservationStatusCancelled, "reservation is already cancelled")
	}

	key := s.keys.LockKey(reservation.TicketID.String(), reservation.UserID.String())
	return lock.WithLock(ctx, s.locker, key, s.lockWait, s.lockLease, func(ctx context.Context) (*ReservationView, error) {
		from := []enums.ReservationStatus{
			enums.ReservationStatusPending,
			enums.ReservationStatusExpired,
			enums.ReservationStatusConfirmed,
		}
		if err := s.cancelAndRestore(ctx, reservation, from, enums.CancelReasonUser); err != nil {
			return nil, err
		}
		now := s.now()
		reason := string(enums.CancelReasonUser)
		reservation.Status = enums.ReservationStatusCancelled
		reservation.CancelledAt = &now
		reservation.CancelReason = &reason
		s.logg.Info(ctx, "reservation cancelled")
		return newReservationView(reservation, s.ttl, now), nil
	})
}

// cancelAndRestore moves the reservation to CANCELLED and returns its unit to
// the durable stock in one transaction, then to the counter. The guarded
// update makes the restore happen at most once per reservation.
func (s *service) cancelAndRestore(ctx context.Context, reservation *models.Reservation, from []enums.ReservationStatus, reason enums.CancelReason) error {
	evt := events.NewLifecycleEvent(enums.LifecycleEventCancelled, reservation.ID, reservation.TicketID, reservation.UserID.String(), reason)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.Cancel(ctx, reservation.ID, from, reason, s.now())
		if err != nil {
			return errPersistence(err)
		}
		if !ok {
			return errInvalidTransition(reservation.ID, reservation.Status, enums.ReservationStatusCancelled, "reservation changed state concurrently")
		}
		if err := repo.IncrementStock(ctx, reservation.TicketID); err != nil {
			return errPersistence(err)
		}
		if err := s.events.Stage(ctx, tx, evt); err != nil {
			return errPersistence(err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := s.counter.Increment(ctx, reservation.TicketID.String()); err != nil {
		s.logg.Error(ctx, "stock counter restore failed", err)
		s.invalidateCounter(ctx, reservation.TicketID)
	}
	s.events.Publish(ctx, evt)
	return nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*ReservationView, error) {
	reservation, err := s.findReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	return newReservationView(reservation, s.ttl, s.now()), nil
}

func (s *service) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*ReservationList, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "userId is required")
	}
	params = pagination.Normalize(params)
	rows, total, err := s.repo.ListByUser(ctx, userID, params)
	if err != nil {
		return nil, errPersistence(err)
	}
	now := s.now()
	items := make([]ReservationView, 0, len(rows))
	for i := range rows {
		items = append(items, *newReservationView(&rows[i], s.ttl, now))
	}
	return &ReservationList{Items: items, Page: params.Page, Size: params.Size, Total: total}, nil
}

func (s *service) GetTicket(ctx context.Context, id uuid.UUID) (*TicketView, error) {
	ticket, err := s.findTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	view := &TicketView{
		ID:      ticket.ID,
		EventID: ticket.EventID,
		Name:    ticket.Name,
		Price:   ticket.Price,
		Stock:   ticket.Stock,
	}
	cached, ok, err := s.counter.Peek(ctx, id.String())
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "stock counter read failed")
	} else if ok {
		view.CachedStock = &cached
	}
	return view, nil
}

func (s *service) ListExpiryCandidates(ctx context.Context, limit int) ([]models.Reservation, error) {
	if limit <= 0 {
		limit = pagination.MaxSize
	}
	rows, err := s.repo.ListExpiryCandidates(ctx, s.now().Add(-s.ttl), limit)
	if err != nil {
		return nil, errPersistence(err)
	}
	return rows, nil
}

// Reclaim expires a stale PENDING reservation and restores its stock. EXPIRED
// rows left by an earlier partial failure resume at the restore step. It
// reports false when another actor already settled the reservation.
func (s *service) Reclaim(ctx context.Context, reservation models.Reservation) (bool, error) {
	ctx = s.logg.WithReservationID(ctx, reservation.ID.String())
	key := s.keys.LockKey(reservation.TicketID.String(), reservation.UserID.String())
	reclaimed, err := lock.WithLock(ctx, s.locker, key, s.lockWait, s.lockLease, func(ctx context.Context) (bool, error) {
		if reservation.Status == enums.ReservationStatusPending {
			expired, err := s.repo.ExpirePending(ctx, reservation.ID, s.now().Add(-s.ttl))
			if err != nil {
				return false, errPersistence(err)
			}
			if !expired {
				return false, nil
			}
			reservation.Status = enums.ReservationStatusExpired
		}
		err := s.cancelAndRestore(ctx, &reservation, []enums.ReservationStatus{enums.ReservationStatusExpired}, enums.CancelReasonExpired)
		if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		s.metrics.ObserveOutcome(opReclaim, outcome(err))
		return false, err
	}
	if reclaimed {
		s.metrics.ObserveOutcome(opReclaim, metrics.ResultOK)
		s.logg.Info(ctx, "expired reservation reclaimed")
	}
	return reclaimed, nil
}

func outcome(err error) string {
	if err == nil {
		return metrics.ResultOK
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		return metrics.ResultFailed
	}
	switch typed.Code() {
	case pkgerrors.CodeDuplicate:
		return metrics.ResultDuplicate
	case pkgerrors.CodeOutOfStock:
		return metrics.ResultOutOfStock
	case pkgerrors.CodeLockUnavailable:
		return metrics.ResultLockBusy
	case pkgerrors.CodeStateConflict:
		return metrics.ResultConflict
	case pkgerrors.CodeNotFound:
		return metrics.ResultNotFound
	default:
		return metrics.ResultFailed
	}
}
