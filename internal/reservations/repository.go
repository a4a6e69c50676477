package reservations

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/flashticket-backend/pkg/db/models"
	"github.com/angelmondragon/flashticket-backend/pkg/enums"
	"github.com/angelmondragon/flashticket-backend/pkg/pagination"
)

// ActiveIndex is the partial unique index backing the one-active-claim rule.
const ActiveIndex = "ux_reservations_active"

// Repository defines persistence operations for tickets and reservations.
// Status changes are guarded updates; the bool result reports whether the
// guard matched.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindTicket(ctx context.Context, id uuid.UUID) (*models.Ticket, error)
	TicketStock(ctx context.Context, id uuid.UUID) (int64, error)
	DecrementStock(ctx context.Context, ticketID uuid.UUID) (bool, error)
	IncrementStock(ctx context.Context, ticketID uuid.UUID) error
	Create(ctx context.Context, reservation *models.Reservation) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	FindActive(ctx context.Context, ticketID, userID uuid.UUID) (*models.Reservation, error)
	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Reservation, int64, error)
	ListExpiryCandidates(ctx context.Context, cutoff time.Time, limit int) ([]models.Reservation, error)
	ConfirmPending(ctx context.Context, id uuid.UUID, notBefore, at time.Time) (bool, error)
	ExpirePending(ctx context.Context, id uuid.UUID, cutoff time.Time) (bool, error)
	Cancel(ctx context.Context, id uuid.UUID, from []enums.ReservationStatus, reason enums.CancelReason, at time.Time) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a reservations repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindTicket(ctx context.Context, id uuid.UUID) (*models.Ticket, error) {
	var ticket models.Ticket
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&ticket).Error; err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *repository) TicketStock(ctx context.Context, id uuid.UUID) (int64, error) {
	var ticket models.Ticket
	err := r.db.WithContext(ctx).
		Select("id", "stock").
		Where("id = ?", id).
		Take(&ticket).Error
	if err != nil {
		return 0, err
	}
	return int64(ticket.Stock), nil
}

// DecrementStock is the durable oversell guard: it never takes stock below zero.
func (r *repository) DecrementStock(ctx context.Context, ticketID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Ticket{}).
		Where("id = ? AND stock > 0", ticketID).
		Updates(map[string]any{"stock": gorm.Expr("stock - 1")})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) IncrementStock(ctx context.Context, ticketID uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Model(&models.Ticket{}).
		Where("id = ?", ticketID).
		Updates(map[string]any{"stock": gorm.Expr("stock + 1")})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) Create(ctx context.Context, reservation *models.Reservation) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(reservation).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	var reservation models.Reservation
	err := r.db.WithContext(ctx).
		Preload("Ticket").
		Where("id = ?", id).
		First(&reservation).Error
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}

// GetForUpdate row-locks the reservation on Postgres; sqlite ignores the clause.
func (r *repository) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	var reservation models.Reservation
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&reservation).Error
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}

// FindActive returns the user's PENDING or CONFIRMED reservation, or nil.
func (r *repository) FindActive(ctx context.Context, ticketID, userID uuid.UUID) (*models.Reservation, error) {
	var reservation models.Reservation
	err := r.db.WithContext(ctx).
		Where("ticket_id = ? AND user_id = ? AND status IN ?", ticketID, userID, enums.ActiveReservationStatuses).
		Take(&reservation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Reservation, int64, error) {
	params = pagination.Normalize(params)
	base := r.db.WithContext(ctx).Model(&models.Reservation{}).Where("user_id = ?", userID)

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.Reservation
	err := base.Session(&gorm.Session{}).
		Preload("Ticket").
		Order("created_at DESC").
		Order("id DESC").
		Offset(params.Offset()).
		Limit(params.Size).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// ListExpiryCandidates returns stale PENDING rows plus EXPIRED rows whose
// stock restore never committed, oldest first.
func (r *repository) ListExpiryCandidates(ctx context.Context, cutoff time.Time, limit int) ([]models.Reservation, error) {
	var rows []models.Reservation
	err := r.db.WithContext(ctx).
		Where("(status = ? AND created_at < ?) OR status = ?",
			enums.ReservationStatusPending, cutoff, enums.ReservationStatusExpired).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) ConfirmPending(ctx context.Context, id uuid.UUID, notBefore, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("id = ? AND status = ? AND created_at >= ?", id, enums.ReservationStatusPending, notBefore).
		Updates(map[string]any{
			"status":       enums.ReservationStatusConfirmed,
			"confirmed_at": at,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *repository) ExpirePending(ctx context.Context, id uuid.UUID, cutoff time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("id = ? AND status = ? AND created_at < ?", id, enums.ReservationStatusPending, cutoff).
		Updates(map[string]any{"status": enums.ReservationStatusExpired})
	return res.RowsAffected == 1, res.Error
}

func (r *repository) Cancel(ctx context.Context, id uuid.UUID, from []enums.ReservationStatus, reason enums.CancelReason, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(map[string]any{
			"status":        enums.ReservationStatusCancelled,
			"cancelled_at":  at,
			"cancel_reason": string(reason),
		})
	return res.RowsAffected == 1, res.Error
}
