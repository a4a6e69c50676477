package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/flashticket-backend/pkg/enums"
)

// Reservation is one buyer's claim against one ticket type. Rows are never deleted.
type Reservation struct {
	ID           uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	TicketID     uuid.UUID               `gorm:"column:ticket_id;type:uuid;not null;uniqueIndex:ux_reservations_active,where:status <> 'CANCELLED' AND status <> 'EXPIRED';index:idx_reservations_status_created,priority:2"`
	UserID       uuid.UUID               `gorm:"column:user_id;type:uuid;not null;uniqueIndex:ux_reservations_active;index:idx_reservations_user_created,priority:1"`
	Status       enums.ReservationStatus `gorm:"column:status;type:varchar(16);not null;index:idx_reservations_status_created,priority:1"`
	CancelReason *string                 `gorm:"column:cancel_reason"`
	CreatedAt    time.Time               `gorm:"column:created_at;not null;index:idx_reservations_user_created,priority:2"`
	ConfirmedAt  *time.Time              `gorm:"column:confirmed_at"`
	CancelledAt  *time.Time              `gorm:"column:cancelled_at"`
	UpdatedAt    time.Time               `gorm:"column:updated_at;autoUpdateTime"`

	Ticket *Ticket `gorm:"foreignKey:TicketID;references:ID"`
}

func (r *Reservation) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	return nil
}
